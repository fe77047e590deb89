package api

import (
	"net/http"
	"testing"

	"trackmirror/internal/config"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func authedConfig(keys ...config.APIClientKey) config.APIConfig {
	return config.APIConfig{Auth: config.APIAuthConfig{
		Enabled:      true,
		HeaderAPIKey: "x-api-key",
		APIKeys:      keys,
	}}
}

func TestAuthRejectsMissingKey(t *testing.T) {
	cfg := authedConfig(config.APIClientKey{Key: "secret", Name: "ops"})
	srv := newTestServer(cfg, &fakeSyncService{}, &fakeItemStore{}, nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/sync/status", nil)
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["error"], "missing api key")
}

func TestAuthRejectsInvalidKey(t *testing.T) {
	cfg := authedConfig(config.APIClientKey{Key: "secret", Name: "ops"})
	srv := newTestServer(cfg, &fakeSyncService{}, &fakeItemStore{}, nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/sync/status", map[string]string{"x-api-key": "wrong"})
	require.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["error"], "invalid api key")
}

func TestAuthAcceptsValidKey(t *testing.T) {
	cfg := authedConfig(config.APIClientKey{Key: "secret", Name: "ops"})
	srv := newTestServer(cfg, &fakeSyncService{}, &fakeItemStore{}, nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/sync/status", map[string]string{"x-api-key": "secret"})
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestAuthEnforcesPermissions(t *testing.T) {
	reader := config.APIClientKey{Key: "reader-key", Name: "dashboard", Permissions: []string{"read:sync", "read:items"}}
	cfg := authedConfig(reader)
	srv := newTestServer(cfg, &fakeSyncService{}, &fakeItemStore{}, nil)

	headers := map[string]string{"x-api-key": "reader-key"}

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/sync/status", headers)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/items", headers)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = doRequest(t, srv, http.MethodPost, "/api/v1/sync", headers)
	assert.Equal(t, http.StatusForbidden, rec.Code)

	rec = doRequest(t, srv, http.MethodGet, "/api/v1/export", headers)
	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestAuthEmptyPermissionsGrantEverything(t *testing.T) {
	cfg := authedConfig(config.APIClientKey{Key: "admin-key", Name: "ops"})
	srv := newTestServer(cfg, &fakeSyncService{}, &fakeItemStore{}, nil)

	headers := map[string]string{"x-api-key": "admin-key"}

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/sync", headers)
	assert.Equal(t, http.StatusAccepted, rec.Code)
}

func TestHealthzBypassesAuth(t *testing.T) {
	cfg := authedConfig(config.APIClientKey{Key: "secret", Name: "ops"})
	srv := newTestServer(cfg, &fakeSyncService{}, &fakeItemStore{}, nil)

	rec := doRequest(t, srv, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitPerClient(t *testing.T) {
	cfg := config.APIConfig{RateLimit: config.APIRateLimitConfig{RPS: 0.001, Burst: 2}}
	srv := newTestServer(cfg, &fakeSyncService{}, &fakeItemStore{}, nil)

	headers := map[string]string{"x-api-key": "client-a"}

	for i := 0; i < 2; i++ {
		rec := doRequest(t, srv, http.MethodGet, "/api/v1/sync/status", headers)
		require.Equal(t, http.StatusOK, rec.Code)
	}

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/sync/status", headers)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)

	// A different client key gets its own bucket.
	rec = doRequest(t, srv, http.MethodGet, "/api/v1/sync/status", map[string]string{"x-api-key": "client-b"})
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRateLimitDisabledWhenZero(t *testing.T) {
	srv := newTestServer(config.APIConfig{}, &fakeSyncService{}, &fakeItemStore{}, nil)

	for i := 0; i < 20; i++ {
		rec := doRequest(t, srv, http.MethodGet, "/api/v1/sync/status", nil)
		require.Equal(t, http.StatusOK, rec.Code)
	}
}

func TestClientNameAnonymous(t *testing.T) {
	auth := NewHTTPAuth(authedConfig(config.APIClientKey{Key: "secret", Name: "ops"}))

	req, _ := http.NewRequest(http.MethodGet, "/api/v1/sync/status", nil)
	assert.Nil(t, auth.ClientName(req))

	req.Header.Set("x-api-key", "secret")
	name := auth.ClientName(req)
	require.NotNil(t, name)
	assert.Equal(t, "ops", *name)
}
