package dispatch

import "errors"

// Dispatcher error types.
var (
	ErrRateLimitExceeded = errors.New("rate limit exceeded: 100 messages per minute")
)
