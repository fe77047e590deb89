package syncer

import (
	"strings"

	"trackmirror/internal/linear"
	"trackmirror/internal/models"
)

// ClassifiedError is the sanitized outcome of mapping an arbitrary error to
// a stable sync error code. The message is always safe to show to users:
// either a fixed phrase or the original short error text, never a stack
// trace or credentials.
type ClassifiedError struct {
	Code    string
	Message string
}

// Classify maps any error produced during a sync to a standardized code and
// message. It is a pure function: first matching rule wins and the same
// input always yields the same result.
func Classify(err error) ClassifiedError {
	if err == nil {
		return ClassifiedError{Code: models.ErrCodeUnknown, Message: "Unknown sync error"}
	}

	if linear.IsNetworkError(err) {
		return ClassifiedError{Code: models.ErrCodeAPIUnavailable, Message: "Upstream API is unavailable"}
	}

	if linear.IsConfigError(err) {
		return ClassifiedError{Code: models.ErrCodeConfigError, Message: "Sync configuration is invalid"}
	}

	if apiErr, ok := linear.AsAPIError(err); ok {
		switch apiErr.Kind {
		case linear.KindAuth, linear.KindPermission:
			return ClassifiedError{Code: models.ErrCodeAuthFailed, Message: "Upstream authentication failed"}
		case linear.KindRateLimit:
			return ClassifiedError{Code: models.ErrCodeRateLimited, Message: "Upstream rate limit exceeded"}
		case linear.KindNotFound:
			return ClassifiedError{Code: models.ErrCodeConfigError, Message: "Configured upstream resource not found"}
		default:
			return ClassifiedError{Code: models.ErrCodeAPIUnavailable, Message: "Upstream API request failed"}
		}
	}

	msg := strings.ToLower(err.Error())
	if strings.Contains(msg, "timeout") || strings.Contains(msg, "timed out") ||
		strings.Contains(msg, "deadline exceeded") || strings.Contains(msg, "aborted") {
		return ClassifiedError{Code: models.ErrCodeTimeout, Message: "Upstream request timed out"}
	}

	return ClassifiedError{Code: models.ErrCodeUnknown, Message: err.Error()}
}
