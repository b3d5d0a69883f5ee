package types

import "errors"

// Validation errors surfaced to senders as error frames.
var (
	ErrMissingSessionID   = errors.New("message missing session_id")
	ErrMissingContent     = errors.New("message missing content")
	ErrContentTooLarge    = errors.New("message content exceeds 64KB limit")
	ErrInvalidPrincipalID = errors.New("principal ID must be 1-64 characters, alphanumeric + underscore/hyphen")
	ErrInvalidStatus      = errors.New("status must be online, busy or offline")
)
