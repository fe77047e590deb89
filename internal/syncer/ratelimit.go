package syncer

import (
	"context"
	"sync"
	"time"

	"trackmirror/internal/config"
	"trackmirror/internal/linear"
	"trackmirror/internal/metrics"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"
)

// defaultRateWait is used when a rate-limit error carries no usable reset.
const defaultRateWait = 5 * time.Second

// RateLimitState is the quota snapshot derived from the most recent
// upstream response.
type RateLimitState struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
	UpdatedAt time.Time
}

// QuotaSource exposes the rate-limit metadata of the most recent upstream
// response. Implemented by the linear client.
type QuotaSource interface {
	LastRateLimit() (linear.RateLimitInfo, bool)
}

// RateLimiter owns the rate-limit retry domain: it paces outgoing calls
// through a client-side token bucket and, when the upstream reports an
// exhausted quota, waits out the reset window before retrying.
type RateLimiter struct {
	maxAttempts int
	maxWait     time.Duration
	pacer       *rate.Limiter
	source      QuotaSource
	logger      zerolog.Logger

	mu    sync.Mutex
	state RateLimitState
}

func NewRateLimiter(cfg config.RateConfig, source QuotaSource, logger zerolog.Logger) *RateLimiter {
	maxAttempts := cfg.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 2
	}
	maxWait := time.Duration(cfg.MaxWaitSeconds) * time.Second
	if maxWait <= 0 {
		maxWait = 60 * time.Second
	}

	var pacer *rate.Limiter
	if cfg.RPS > 0 {
		burst := cfg.Burst
		if burst <= 0 {
			burst = 1
		}
		pacer = rate.NewLimiter(rate.Limit(cfg.RPS), burst)
	}

	return &RateLimiter{
		maxAttempts: maxAttempts,
		maxWait:     maxWait,
		pacer:       pacer,
		source:      source,
		logger:      logger.With().Str("component", "rate-limiter").Logger(),
	}
}

// IsRateLimited is the pure predicate other components use to decide
// whether an error belongs to this retry domain.
func IsRateLimited(err error) bool {
	apiErr, ok := linear.AsAPIError(err)
	return ok && apiErr.Kind == linear.KindRateLimit
}

// ExecuteWithRetry runs fn; on a rate-limit error it sleeps until the
// reported reset (bounded by the configured maximum) and retries a small
// fixed number of times before giving up. The quota snapshot is refreshed
// after every call, successful or not.
func (l *RateLimiter) ExecuteWithRetry(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= l.maxAttempts; attempt++ {
		if l.pacer != nil {
			if err := l.pacer.Wait(ctx); err != nil {
				return err
			}
		}

		metrics.IncUpstreamRequest()
		err := fn(ctx)
		l.observe()
		if err == nil {
			return nil
		}
		lastErr = err

		if !IsRateLimited(err) {
			return err
		}
		if attempt == l.maxAttempts {
			break
		}

		wait := l.waitFor(err)
		metrics.IncRateLimitWait()
		l.logger.Warn().
			Str("operation", operation).
			Int("attempt", attempt+1).
			Dur("wait", wait).
			Msg("upstream rate limit hit, waiting for reset")

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	l.logger.Error().Str("operation", operation).Int("attempts", l.maxAttempts+1).Msg("rate limit retries exhausted")
	return lastErr
}

// State returns the current quota snapshot.
func (l *RateLimiter) State() RateLimitState {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.state
}

// waitFor derives the sleep from the error's reset metadata, falling back
// to a default and never exceeding the configured bound.
func (l *RateLimiter) waitFor(err error) time.Duration {
	wait := defaultRateWait
	if apiErr, ok := linear.AsAPIError(err); ok && apiErr.RateLimit != nil {
		if until := time.Until(apiErr.RateLimit.ResetAt); until > 0 {
			wait = until
		}
	}
	if wait > l.maxWait {
		wait = l.maxWait
	}
	return wait
}

func (l *RateLimiter) observe() {
	if l.source == nil {
		return
	}
	info, ok := l.source.LastRateLimit()
	if !ok {
		return
	}
	metrics.SetRateLimitRemaining(info.Remaining)

	l.mu.Lock()
	l.state = RateLimitState{
		Limit:     info.Limit,
		Remaining: info.Remaining,
		ResetAt:   info.ResetAt,
		UpdatedAt: time.Now(),
	}
	l.mu.Unlock()
}
