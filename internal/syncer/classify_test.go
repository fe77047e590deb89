package syncer

import (
	"errors"
	"fmt"
	"testing"

	"trackmirror/internal/linear"
	"trackmirror/internal/models"

	"github.com/stretchr/testify/assert"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name        string
		err         error
		wantCode    string
		wantMessage string
	}{
		{
			name:        "nil error",
			err:         nil,
			wantCode:    models.ErrCodeUnknown,
			wantMessage: "Unknown sync error",
		},
		{
			name:        "network error",
			err:         &linear.NetworkError{Op: "issues", Err: errors.New("connection refused")},
			wantCode:    models.ErrCodeAPIUnavailable,
			wantMessage: "Upstream API is unavailable",
		},
		{
			name:        "wrapped network error",
			err:         fmt.Errorf("fetch page: %w", &linear.NetworkError{Op: "issues", Err: errors.New("dial tcp")}),
			wantCode:    models.ErrCodeAPIUnavailable,
			wantMessage: "Upstream API is unavailable",
		},
		{
			name:        "config error",
			err:         &linear.ConfigError{Reason: "api token is required"},
			wantCode:    models.ErrCodeConfigError,
			wantMessage: "Sync configuration is invalid",
		},
		{
			name:        "auth error",
			err:         &linear.APIError{Kind: linear.KindAuth, Message: "invalid token"},
			wantCode:    models.ErrCodeAuthFailed,
			wantMessage: "Upstream authentication failed",
		},
		{
			name:        "permission error",
			err:         &linear.APIError{Kind: linear.KindPermission, Message: "forbidden"},
			wantCode:    models.ErrCodeAuthFailed,
			wantMessage: "Upstream authentication failed",
		},
		{
			name:        "rate limit error",
			err:         &linear.APIError{Kind: linear.KindRateLimit, Message: "slow down"},
			wantCode:    models.ErrCodeRateLimited,
			wantMessage: "Upstream rate limit exceeded",
		},
		{
			name:        "not found error",
			err:         &linear.APIError{Kind: linear.KindNotFound, Message: "no such team"},
			wantCode:    models.ErrCodeConfigError,
			wantMessage: "Configured upstream resource not found",
		},
		{
			name:        "graphql error",
			err:         &linear.APIError{Kind: linear.KindGraphQL, Message: "malformed query"},
			wantCode:    models.ErrCodeAPIUnavailable,
			wantMessage: "Upstream API request failed",
		},
		{
			name:        "timeout text",
			err:         errors.New("operation timed out after 30s"),
			wantCode:    models.ErrCodeTimeout,
			wantMessage: "Upstream request timed out",
		},
		{
			name:        "deadline text",
			err:         errors.New("context deadline exceeded"),
			wantCode:    models.ErrCodeTimeout,
			wantMessage: "Upstream request timed out",
		},
		{
			name:        "unknown error keeps message",
			err:         errors.New("something odd"),
			wantCode:    models.ErrCodeUnknown,
			wantMessage: "something odd",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Classify(tt.err)
			assert.Equal(t, tt.wantCode, got.Code)
			assert.Equal(t, tt.wantMessage, got.Message)
		})
	}
}

func TestClassifyIsDeterministic(t *testing.T) {
	err := &linear.APIError{Kind: linear.KindRateLimit, Message: "slow down"}
	first := Classify(err)
	second := Classify(err)
	assert.Equal(t, first, second)
}
