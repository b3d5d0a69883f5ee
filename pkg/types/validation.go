package types

import (
	"regexp"
)

// Regexes compiled once at package initialization for high-frequency
// validation on the frame path.
var principalIDRegex = regexp.MustCompile(`^[a-zA-Z0-9_-]+$`)

// maxContentBytes caps a single message body at 64KB.
const maxContentBytes = 65536

// Validate ensures a message carries the fields required for persistence
// and fan-out. Missing session or content rejects the message; the sender
// is told, the connection stays open.
func (m *Message) Validate() error {
	if m.SessionID == "" {
		return ErrMissingSessionID
	}
	if m.Content == "" {
		return ErrMissingContent
	}
	if len(m.Content) > maxContentBytes {
		return ErrContentTooLarge
	}
	if !IsValidPrincipalID(m.SenderID) {
		return ErrInvalidPrincipalID
	}
	return nil
}

// IsValidPrincipalID checks the opaque principal identifier format.
func IsValidPrincipalID(id string) bool {
	if len(id) < 1 || len(id) > 64 {
		return false
	}
	return principalIDRegex.MatchString(id)
}

// IsValidKind reports whether kind is a known principal kind.
func IsValidKind(kind string) bool {
	return kind == KindCustomer || kind == KindAgent
}

// IsValidStatus reports whether status is a known agent presence status.
func IsValidStatus(status string) bool {
	switch status {
	case StatusOnline, StatusBusy, StatusOffline:
		return true
	default:
		return false
	}
}
