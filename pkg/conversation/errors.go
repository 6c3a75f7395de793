package conversation

import (
	"errors"
	"fmt"
	"time"
)

// Sentinel errors for the conversation package.
var (
	// ErrRateLimited indicates a request arrived inside the minimum interval.
	ErrRateLimited = errors.New("conversation: rate limited")
)

// RateLimitError reports how long the caller must wait.
type RateLimitError struct {
	RetryAfter time.Duration
}

// Error implements the error interface.
func (e *RateLimitError) Error() string {
	return fmt.Sprintf("conversation: rate limited, retry after %.2fs", e.RetryAfter.Seconds())
}

// Is lets errors.Is match ErrRateLimited.
func (e *RateLimitError) Is(target error) bool {
	return target == ErrRateLimited
}

// IsRateLimited returns true if the error is due to rate limiting.
func IsRateLimited(err error) bool {
	return errors.Is(err, ErrRateLimited)
}

// RetryAfter extracts the wait from a rate limit error, or zero.
func RetryAfter(err error) time.Duration {
	var rl *RateLimitError
	if errors.As(err, &rl) {
		return rl.RetryAfter
	}
	return 0
}
