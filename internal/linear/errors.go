package linear

import (
	"errors"
	"fmt"
	"time"
)

// APIErrorKind distinguishes upstream API failures the sync engine treats
// differently: auth and permission problems are terminal, rate limits are
// retried by the rate limiter, not-found usually means a misconfigured
// workspace, graphql covers malformed queries and other generic failures.
type APIErrorKind string

const (
	KindAuth       APIErrorKind = "authentication"
	KindPermission APIErrorKind = "permission"
	KindRateLimit  APIErrorKind = "ratelimit"
	KindNotFound   APIErrorKind = "notfound"
	KindGraphQL    APIErrorKind = "graphql"
)

// RateLimitInfo is the quota metadata the upstream attaches to responses.
type RateLimitInfo struct {
	Limit     int
	Remaining int
	ResetAt   time.Time
}

// APIError is a structured upstream API failure.
type APIError struct {
	Kind       APIErrorKind
	StatusCode int
	Message    string
	RateLimit  *RateLimitInfo
}

func (e *APIError) Error() string {
	return fmt.Sprintf("linear api error (%s): %s", e.Kind, e.Message)
}

// NetworkError wraps transport-level failures (connection refused/reset,
// DNS, TLS, upstream 5xx). These are the retry handler's domain.
type NetworkError struct {
	Op  string
	Err error
}

func (e *NetworkError) Error() string {
	return fmt.Sprintf("linear network error during %s: %v", e.Op, e.Err)
}

func (e *NetworkError) Unwrap() error { return e.Err }

// ConfigError reports a client misconfiguration (missing token, bad URL).
type ConfigError struct {
	Reason string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("linear config error: %s", e.Reason)
}

// AsAPIError unwraps err into an *APIError if it is one.
func AsAPIError(err error) (*APIError, bool) {
	var apiErr *APIError
	if errors.As(err, &apiErr) {
		return apiErr, true
	}
	return nil, false
}

// IsNetworkError reports whether err is (or wraps) a NetworkError.
func IsNetworkError(err error) bool {
	var netErr *NetworkError
	return errors.As(err, &netErr)
}

// IsConfigError reports whether err is (or wraps) a ConfigError.
func IsConfigError(err error) bool {
	var cfgErr *ConfigError
	return errors.As(err, &cfgErr)
}
