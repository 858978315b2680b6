package search

import (
	"errors"
)

var (
	// Configuration errors
	ErrAPIKeyMissing = errors.New("API key is required but not configured")

	// API-related errors, mapped from HTTP status codes
	ErrAPIKeyInvalid  = errors.New("API key is invalid or expired")
	ErrAPIForbidden   = errors.New("API access forbidden")
	ErrAPIRateLimit   = errors.New("API rate limit exceeded")
	ErrAPIServerError = errors.New("API server error")

	// Network errors
	ErrNetworkError = errors.New("network error occurred")

	// Exhaustion: retryable failures persisted through every attempt
	ErrServiceUnavailable = errors.New("search service unavailable")
)

// IsRetryableError returns true if the error might succeed on retry
func IsRetryableError(err error) bool {
	return errors.Is(err, ErrAPIRateLimit) ||
		errors.Is(err, ErrNetworkError)
}

// UserMessage maps a search error to its user-facing string. Each failure
// class gets a distinct message so users can tell quota problems from
// connectivity problems.
func UserMessage(err error) string {
	switch {
	case errors.Is(err, ErrAPIKeyInvalid):
		return "⚠️ Search failed: Invalid API key"
	case errors.Is(err, ErrAPIForbidden):
		return "⚠️ Search failed: Access forbidden"
	case errors.Is(err, ErrAPIRateLimit):
		return "⚠️ Search failed: Rate limit exceeded"
	case errors.Is(err, ErrAPIServerError):
		return "⚠️ Search failed: Server error"
	case errors.Is(err, ErrNetworkError):
		return "⚠️ Network issue. Check connection."
	case errors.Is(err, ErrServiceUnavailable):
		return "⚠️ Service unavailable. Try later."
	default:
		return "⚠️ Search failed: Unknown error"
	}
}
