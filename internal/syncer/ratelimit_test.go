package syncer

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"trackmirror/internal/config"
	"trackmirror/internal/linear"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeQuotaSource struct {
	info linear.RateLimitInfo
	ok   bool
}

func (f *fakeQuotaSource) LastRateLimit() (linear.RateLimitInfo, bool) {
	return f.info, f.ok
}

func rateLimitedErr(resetIn time.Duration) error {
	return &linear.APIError{
		Kind:    linear.KindRateLimit,
		Message: "rate limit exceeded",
		RateLimit: &linear.RateLimitInfo{
			Limit:     1500,
			Remaining: 0,
			ResetAt:   time.Now().Add(resetIn),
		},
	}
}

func TestIsRateLimited(t *testing.T) {
	assert.True(t, IsRateLimited(rateLimitedErr(time.Second)))
	assert.False(t, IsRateLimited(&linear.APIError{Kind: linear.KindAuth}))
	assert.False(t, IsRateLimited(&linear.NetworkError{Op: "issues", Err: errors.New("refused")}))
	assert.False(t, IsRateLimited(nil))
}

func TestRateLimiterWaitsOutResetAndRetries(t *testing.T) {
	limiter := NewRateLimiter(config.RateConfig{MaxAttempts: 2, MaxWaitSeconds: 1}, nil, zerolog.New(io.Discard))

	calls := 0
	start := time.Now()
	err := limiter.ExecuteWithRetry(context.Background(), "op", func(ctx context.Context) error {
		calls++
		if calls == 1 {
			return rateLimitedErr(20 * time.Millisecond)
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 2, calls)
	assert.GreaterOrEqual(t, time.Since(start), 20*time.Millisecond)
}

func TestRateLimiterWaitIsBounded(t *testing.T) {
	limiter := NewRateLimiter(config.RateConfig{MaxAttempts: 1, MaxWaitSeconds: 1}, nil, zerolog.New(io.Discard))

	// Reset far in the future must be clamped to the configured bound.
	wait := limiter.waitFor(rateLimitedErr(time.Hour))
	assert.Equal(t, time.Second, wait)
}

func TestRateLimiterFallbackWaitWithoutResetInfo(t *testing.T) {
	limiter := NewRateLimiter(config.RateConfig{MaxAttempts: 1, MaxWaitSeconds: 60}, nil, zerolog.New(io.Discard))

	wait := limiter.waitFor(&linear.APIError{Kind: linear.KindRateLimit})
	assert.Equal(t, defaultRateWait, wait)
}

func TestRateLimiterPassesThroughOtherErrors(t *testing.T) {
	limiter := NewRateLimiter(config.RateConfig{MaxAttempts: 2, MaxWaitSeconds: 1}, nil, zerolog.New(io.Discard))

	calls := 0
	authErr := &linear.APIError{Kind: linear.KindAuth, Message: "bad token"}
	err := limiter.ExecuteWithRetry(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return authErr
	})

	require.Error(t, err)
	assert.Equal(t, 1, calls)
}

func TestRateLimiterGivesUpAfterMaxAttempts(t *testing.T) {
	limiter := NewRateLimiter(config.RateConfig{MaxAttempts: 2, MaxWaitSeconds: 1}, nil, zerolog.New(io.Discard))

	calls := 0
	err := limiter.ExecuteWithRetry(context.Background(), "op", func(ctx context.Context) error {
		calls++
		return rateLimitedErr(time.Millisecond)
	})

	require.Error(t, err)
	assert.True(t, IsRateLimited(err))
	assert.Equal(t, 3, calls) // initial attempt + 2 retries
}

func TestRateLimiterObservesQuotaSnapshot(t *testing.T) {
	source := &fakeQuotaSource{
		info: linear.RateLimitInfo{Limit: 1500, Remaining: 42, ResetAt: time.Now().Add(time.Hour)},
		ok:   true,
	}
	limiter := NewRateLimiter(config.RateConfig{MaxAttempts: 1, MaxWaitSeconds: 1}, source, zerolog.New(io.Discard))

	err := limiter.ExecuteWithRetry(context.Background(), "op", func(ctx context.Context) error {
		return nil
	})
	require.NoError(t, err)

	state := limiter.State()
	assert.Equal(t, 1500, state.Limit)
	assert.Equal(t, 42, state.Remaining)
	assert.False(t, state.UpdatedAt.IsZero())
}

func TestRateLimiterContextCancelledDuringWait(t *testing.T) {
	limiter := NewRateLimiter(config.RateConfig{MaxAttempts: 2, MaxWaitSeconds: 60}, nil, zerolog.New(io.Discard))

	ctx, cancel := context.WithCancel(context.Background())
	go func() {
		time.Sleep(20 * time.Millisecond)
		cancel()
	}()

	err := limiter.ExecuteWithRetry(ctx, "op", func(ctx context.Context) error {
		return rateLimitedErr(time.Minute)
	})

	require.ErrorIs(t, err, context.Canceled)
}
