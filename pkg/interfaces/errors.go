package interfaces

import "errors"

// Common collaborator errors used across components.
var (
	ErrSessionNotFound = errors.New("session not found")
	ErrUnauthorized    = errors.New("unauthorized access")
)
