package interfaces

import (
	"context"

	"github.com/Aeglx/WeDrawOS-sub009/pkg/types"
)

// Store is the external storage collaborator. Its internals are out of
// scope for the messaging core; the dispatcher and lifecycle controller only
// rely on the contract below.
type Store interface {
	// CreateSession persists a new conversation session.
	CreateSession(ctx context.Context, session *types.Session) error

	// GetSession retrieves a session by ID. Returns ErrSessionNotFound when
	// no such session exists.
	GetSession(ctx context.Context, sessionID string) (*types.Session, error)

	// GetUserSessions returns the open sessions a principal participates in,
	// used to re-subscribe a reconnecting principal.
	GetUserSessions(ctx context.Context, principalID string) ([]*types.Session, error)

	// SendMessage persists a chat message. Persistence must complete before
	// the message is broadcast so a reconnecting client can always fetch the
	// same message from history.
	SendMessage(ctx context.Context, message *types.Message) error

	// GetSessionMessages returns one page of a session's message log in
	// chronological order. Page 1 is the most recent page.
	GetSessionMessages(ctx context.Context, sessionID string, page, pageSize int) ([]*types.Message, error)

	// MarkMessagesAsRead marks all messages in the session not authored by
	// the principal as read.
	MarkMessagesAsRead(ctx context.Context, sessionID, principalID string) error

	// CheckSessionAccess reports whether the principal may read the session.
	CheckSessionAccess(ctx context.Context, principalID, sessionID string) (bool, error)

	// CheckAutoReply asks the auto-reply policy whether an automated
	// response applies to the message. Returns nil when none does.
	CheckAutoReply(ctx context.Context, message *types.Message) (*types.AutoReply, error)

	// HealthCheck verifies connectivity for the ops surface.
	HealthCheck(ctx context.Context) error

	// Close releases storage resources.
	Close() error
}
