package syncer

import (
	"context"
	"errors"
	"math"
	"math/rand"
	"net"
	"strings"
	"syscall"
	"time"

	"trackmirror/internal/config"
	"trackmirror/internal/linear"
	"trackmirror/internal/metrics"

	"github.com/rs/zerolog"
)

// RetryPolicy defines exponential backoff parameters.
type RetryPolicy struct {
	MaxRetries    int
	InitialDelay  time.Duration
	MaxDelay      time.Duration
	BackoffFactor float64
}

// NextDelay returns the base delay for a given retry (1-based) with clamping.
func (r RetryPolicy) NextDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if r.InitialDelay <= 0 {
		r.InitialDelay = time.Second
	}
	if r.BackoffFactor <= 0 {
		r.BackoffFactor = 2
	}

	delay := float64(r.InitialDelay) * math.Pow(r.BackoffFactor, float64(attempt-1))
	d := time.Duration(delay)
	if r.MaxDelay > 0 && d > r.MaxDelay {
		d = r.MaxDelay
	}
	if d <= 0 {
		d = time.Second
	}
	return d
}

// RetryHandler retries transient upstream failures: network-level errors and
// 5xx responses. Rate-limit errors belong to the RateLimiter and are never
// retried here, so the two backoff policies cannot interfere.
type RetryHandler struct {
	policy RetryPolicy
	logger zerolog.Logger
}

func NewRetryHandler(cfg config.RetryConfig, logger zerolog.Logger) *RetryHandler {
	policy := RetryPolicy{
		MaxRetries:    cfg.MaxRetries,
		InitialDelay:  time.Duration(cfg.InitialDelayMs) * time.Millisecond,
		MaxDelay:      time.Duration(cfg.MaxDelayMs) * time.Millisecond,
		BackoffFactor: cfg.Multiplier,
	}
	if policy.MaxRetries <= 0 {
		policy.MaxRetries = 3
	}
	if policy.InitialDelay <= 0 {
		policy.InitialDelay = time.Second
	}
	if policy.MaxDelay <= 0 {
		policy.MaxDelay = 8 * time.Second
	}
	if policy.BackoffFactor <= 0 {
		policy.BackoffFactor = 2
	}

	return &RetryHandler{
		policy: policy,
		logger: logger.With().Str("component", "retry-handler").Logger(),
	}
}

// ExecuteWithRetry runs fn and retries transient failures with exponential
// backoff plus up to 10% uniform jitter. Non-retryable errors are returned
// immediately without delay; exhaustion returns the last error.
func (h *RetryHandler) ExecuteWithRetry(ctx context.Context, operation string, fn func(ctx context.Context) error) error {
	var lastErr error

	for attempt := 0; attempt <= h.policy.MaxRetries; attempt++ {
		if attempt > 0 {
			wait := h.delayFor(attempt)
			metrics.IncRetry()
			h.logger.Warn().
				Str("operation", operation).
				Int("attempt", attempt).
				Int("max_retries", h.policy.MaxRetries).
				Dur("delay", wait).
				Err(lastErr).
				Msg("retrying transient upstream failure")

			select {
			case <-time.After(wait):
			case <-ctx.Done():
				return ctx.Err()
			}
		}

		err := fn(ctx)
		if err == nil {
			return nil
		}
		lastErr = err

		if !h.IsRetryable(err) {
			return err
		}
	}

	h.logger.Error().
		Str("operation", operation).
		Int("attempts", h.policy.MaxRetries+1).
		Err(lastErr).
		Msg("retries exhausted")
	return lastErr
}

// delayFor computes the wait before retry attempt (1-based): the clamped
// exponential base plus uniform jitter, capped at MaxDelay.
func (h *RetryHandler) delayFor(attempt int) time.Duration {
	base := h.policy.NextDelay(attempt)
	jitter := time.Duration(rand.Float64() * 0.1 * float64(base))
	wait := base + jitter
	if h.policy.MaxDelay > 0 && wait > h.policy.MaxDelay {
		wait = h.policy.MaxDelay
	}
	return wait
}

// transientSignals are message fragments that mark an error as a transient
// network condition when no typed shape is available.
var transientSignals = []string{
	"connection refused",
	"connection reset",
	"broken pipe",
	"timeout",
	"timed out",
	"no such host",
	"network is unreachable",
	"unexpected EOF",
}

// IsRetryable reports whether the retry handler owns this error. Rate-limit
// errors are explicitly excluded: they belong to the RateLimiter.
func (h *RetryHandler) IsRetryable(err error) bool {
	if err == nil {
		return false
	}
	if IsRateLimited(err) {
		return false
	}

	if linear.IsNetworkError(err) {
		return true
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return true
	}
	if errors.Is(err, syscall.ECONNREFUSED) ||
		errors.Is(err, syscall.ECONNRESET) ||
		errors.Is(err, syscall.EPIPE) ||
		errors.Is(err, syscall.ETIMEDOUT) {
		return true
	}

	msg := strings.ToLower(err.Error())
	for _, signal := range transientSignals {
		if strings.Contains(msg, strings.ToLower(signal)) {
			return true
		}
	}
	return false
}
