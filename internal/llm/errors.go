package llm

import (
	"errors"
	"fmt"
	"time"
)

// RateLimitError marks a quota or rate-limit rejection from a provider.
// RetryAfter is zero when the provider gave no hint.
type RateLimitError struct {
	Provider   string
	StatusCode int
	Message    string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	if e.RetryAfter > 0 {
		return fmt.Sprintf("%s rate limited (%d): %s (retry after %s)", e.Provider, e.StatusCode, e.Message, e.RetryAfter)
	}
	return fmt.Sprintf("%s rate limited (%d): %s", e.Provider, e.StatusCode, e.Message)
}

// AsRateLimit extracts a RateLimitError from an error chain.
func AsRateLimit(err error) (*RateLimitError, bool) {
	var rle *RateLimitError
	if errors.As(err, &rle) {
		return rle, true
	}
	return nil, false
}
