package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"trackmirror/internal/config"
	"trackmirror/internal/models"
	"trackmirror/internal/syncer"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSyncService struct {
	status      *models.SyncStatus
	statusErr   error
	history     []models.SyncHistoryEntry
	historyErr  error
	runErr      error
	runCalls    int
	triggeredBy *string
}

func (f *fakeSyncService) RunSync(ctx context.Context, triggerType string, triggeredBy *string) error {
	f.runCalls++
	f.triggeredBy = triggeredBy
	return f.runErr
}

func (f *fakeSyncService) GetStatus(ctx context.Context) (*models.SyncStatus, error) {
	return f.status, f.statusErr
}

func (f *fakeSyncService) ListHistory(ctx context.Context, limit int) ([]models.SyncHistoryEntry, error) {
	return f.history, f.historyErr
}

type fakeItemStore struct {
	items []models.BacklogItem
	err   error
}

func (f *fakeItemStore) UpsertFromSync(ctx context.Context, items []models.BacklogItem) error {
	return nil
}

func (f *fakeItemStore) ListItems(ctx context.Context) ([]models.BacklogItem, error) {
	return f.items, f.err
}

func (f *fakeItemStore) CountItems(ctx context.Context) (int, error) {
	return len(f.items), f.err
}

type fakeExporter struct {
	path string
	err  error
}

func (f *fakeExporter) ExportBacklog(ctx context.Context) (string, error) {
	return f.path, f.err
}

func newTestServer(cfg config.APIConfig, sync *fakeSyncService, items *fakeItemStore, exporter Exporter) *HTTPServer {
	return NewHTTPServer(cfg, sync, items, exporter, zerolog.Nop())
}

func doRequest(t *testing.T, srv *HTTPServer, method, path string, headers map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, nil)
	for k, v := range headers {
		req.Header.Set(k, v)
	}
	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, req)
	return rec
}

func decodeBody(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	return body
}

func TestSyncStatusEndpoint(t *testing.T) {
	now := time.Now().UTC()
	sync := &fakeSyncService{status: &models.SyncStatus{
		Status:       models.SyncStatusSuccess,
		LastSyncedAt: &now,
		ItemsSynced:  12,
	}}
	srv := newTestServer(config.APIConfig{}, sync, &fakeItemStore{}, nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/sync/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))

	body := decodeBody(t, rec)
	assert.Equal(t, "success", body["status"])
	assert.Equal(t, float64(12), body["itemsSynced"])
}

func TestSyncStatusDefaultsToIdle(t *testing.T) {
	srv := newTestServer(config.APIConfig{}, &fakeSyncService{}, &fakeItemStore{}, nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/sync/status", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "idle", decodeBody(t, rec)["status"])
}

func TestSyncTriggerAccepted(t *testing.T) {
	sync := &fakeSyncService{}
	srv := newTestServer(config.APIConfig{}, sync, &fakeItemStore{}, nil)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/sync", nil)
	require.Equal(t, http.StatusAccepted, rec.Code)
	assert.Equal(t, 1, sync.runCalls)
	assert.Nil(t, sync.triggeredBy)
}

func TestSyncTriggerConflictWhenRunning(t *testing.T) {
	sync := &fakeSyncService{runErr: syncer.ErrSyncInProgress}
	srv := newTestServer(config.APIConfig{}, sync, &fakeItemStore{}, nil)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/sync", nil)
	require.Equal(t, http.StatusConflict, rec.Code)
	assert.Contains(t, decodeBody(t, rec)["error"], "in progress")
}

func TestSyncTriggerRequiresPost(t *testing.T) {
	srv := newTestServer(config.APIConfig{}, &fakeSyncService{}, &fakeItemStore{}, nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/sync", nil)
	require.Equal(t, http.StatusMethodNotAllowed, rec.Code)
}

func TestSyncTriggerRecordsClientName(t *testing.T) {
	sync := &fakeSyncService{}
	cfg := config.APIConfig{Auth: config.APIAuthConfig{
		Enabled:      true,
		HeaderAPIKey: "x-api-key",
		APIKeys:      []config.APIClientKey{{Key: "ops-key", Name: "ops"}},
	}}
	srv := newTestServer(cfg, sync, &fakeItemStore{}, nil)

	rec := doRequest(t, srv, http.MethodPost, "/api/v1/sync", map[string]string{"x-api-key": "ops-key"})
	require.Equal(t, http.StatusAccepted, rec.Code)
	require.NotNil(t, sync.triggeredBy)
	assert.Equal(t, "ops", *sync.triggeredBy)
}

func TestSyncHistoryEndpoint(t *testing.T) {
	sync := &fakeSyncService{history: []models.SyncHistoryEntry{
		{ID: 2, Status: models.SyncStatusSuccess},
		{ID: 1, Status: models.SyncStatusError},
	}}
	srv := newTestServer(config.APIConfig{}, sync, &fakeItemStore{}, nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/sync/history?limit=10", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	history, ok := body["history"].([]any)
	require.True(t, ok)
	assert.Len(t, history, 2)
}

func TestSyncHistoryRejectsBadLimit(t *testing.T) {
	srv := newTestServer(config.APIConfig{}, &fakeSyncService{}, &fakeItemStore{}, nil)

	for _, limit := range []string{"-1", "abc", "1.5"} {
		rec := doRequest(t, srv, http.MethodGet, "/api/v1/sync/history?limit="+limit, nil)
		assert.Equal(t, http.StatusBadRequest, rec.Code, "limit=%s", limit)
	}
}

func TestItemsEndpoint(t *testing.T) {
	items := &fakeItemStore{items: []models.BacklogItem{
		{ID: "i-1", Identifier: "ENG-1", Title: "First", Labels: []string{}},
		{ID: "i-2", Identifier: "ENG-2", Title: "Second", Labels: []string{"bug"}},
	}}
	srv := newTestServer(config.APIConfig{}, &fakeSyncService{}, items, nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/items", nil)
	require.Equal(t, http.StatusOK, rec.Code)

	body := decodeBody(t, rec)
	assert.Equal(t, float64(2), body["count"])
}

func TestExportEndpoint(t *testing.T) {
	path := filepath.Join(t.TempDir(), "backlog_export_test.xlsx")
	require.NoError(t, os.WriteFile(path, []byte("xlsx-bytes"), 0o644))

	srv := newTestServer(config.APIConfig{}, &fakeSyncService{}, &fakeItemStore{}, &fakeExporter{path: path})

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/export", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "backlog_export_test.xlsx")
	assert.Equal(t, "xlsx-bytes", rec.Body.String())
}

func TestExportNotConfigured(t *testing.T) {
	srv := newTestServer(config.APIConfig{}, &fakeSyncService{}, &fakeItemStore{}, nil)

	rec := doRequest(t, srv, http.MethodGet, "/api/v1/export", nil)
	require.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealthEndpoint(t *testing.T) {
	srv := newTestServer(config.APIConfig{}, &fakeSyncService{}, &fakeItemStore{}, nil)

	rec := doRequest(t, srv, http.MethodGet, "/healthz", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", decodeBody(t, rec)["status"])
}
