package lifecycle

import "errors"

// Lifecycle controller error types.
var (
	ErrNotCustomer     = errors.New("only customers can create sessions")
	ErrSessionClosed   = errors.New("session is closed")
	ErrEmptySessionRef = errors.New("missing session_id")
)
