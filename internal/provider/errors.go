package provider

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors returned (possibly wrapped) by all back-ends.
var (
	// ErrAuthentication indicates the provider rejected the credentials.
	ErrAuthentication = errors.New("authentication failed")
	// ErrConnection indicates the provider could not be reached.
	ErrConnection = errors.New("cannot connect")
	// ErrUnsupported indicates the provider does not offer the operation.
	ErrUnsupported = errors.New("not supported")
)

// RateLimitError indicates the provider's rate limit was exceeded.
// RetryAfter is zero when the provider did not say when to retry.
type RateLimitError struct {
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("rate limit exceeded (retry after %s)", e.RetryAfter)
	}
	return "rate limit exceeded"
}

// Summary returns a short user-facing description of a provider error.
func Summary(err error) string {
	var rateLimitErr *RateLimitError
	switch {
	case errors.Is(err, ErrAuthentication):
		return "authentication failed"
	case errors.Is(err, ErrConnection):
		return "cannot connect"
	case errors.Is(err, ErrUnsupported):
		return "not supported"
	case errors.As(err, &rateLimitErr):
		return "rate limit exceeded"
	default:
		return err.Error()
	}
}
