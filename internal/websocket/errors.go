package websocket

import "errors"

// Connection-related errors
var (
	ErrConnectionClosed = errors.New("connection closed")
	ErrWriteTimeout     = errors.New("write timeout")
	ErrInvalidJSON      = errors.New("invalid JSON data")
)

// Registry-related errors
var (
	ErrNilConnection = errors.New("connection cannot be nil")
)

// Handshake-related errors
var (
	ErrMissingCredentials = errors.New("missing handshake credentials")
	ErrInvalidPrincipal   = errors.New("invalid principal identifier")
	ErrInvalidKind        = errors.New("kind must be 'customer' or 'agent'")
)
