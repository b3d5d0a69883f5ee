package types

import (
	"time"
)

// Principal kinds as delivered by the authentication collaborator.
const (
	KindCustomer = "customer"
	KindAgent    = "agent"
)

// Agent presence statuses.
const (
	StatusOnline  = "online"
	StatusBusy    = "busy"
	StatusOffline = "offline"
)

// Inbound frame types consumed by the WebSocket handler.
const (
	FrameHeartbeat     = "heartbeat"
	FrameMessage       = "message"
	FrameCreateSession = "create_session"
	FrameJoinSession   = "join_session"
	FrameLeaveSession  = "leave_session"
	FrameReadReceipt   = "read_receipt"
	FrameTyping        = "typing"
	FrameStopTyping    = "stop_typing"
	FrameStatusChange  = "status_change"
)

// Outbound frame types produced by the subsystem.
const (
	FrameConnectionEstablished  = "connection_established"
	FrameError                  = "error"
	FrameNewMessage             = "new_message"
	FrameSessionCreated         = "session_created"
	FrameSessionJoined          = "session_joined"
	FrameNewSession             = "new_session"
	FrameUserJoined             = "user_joined"
	FrameUserLeft               = "user_left"
	FrameStatusChangeBroadcast  = "customer_service_status_change"
	FrameNewMessageNotification = "new_message_notification"
	FrameOnlineAgents           = "online_customer_services"
)

// Session statuses.
const (
	SessionOpen   = "open"
	SessionClosed = "closed"
)

// MessageTypeText is the default message content type.
const MessageTypeText = "text"

// Principal is an authenticated connection owner as returned by the
// authentication collaborator. Kind is either KindCustomer or KindAgent.
type Principal struct {
	ID          string `json:"id"`
	Kind        string `json:"kind"`
	DisplayName string `json:"display_name"`
}

// Session represents a conversation thread between a customer and
// (eventually) an agent. The message log itself is owned by the store and
// referenced here only by ID.
type Session struct {
	ID         string     `json:"id" db:"id"`
	CustomerID string     `json:"customer_id" db:"customer_id"`
	AgentID    *string    `json:"agent_id,omitempty" db:"agent_id"`
	Status     string     `json:"status" db:"status"`
	CreatedAt  time.Time  `json:"created_at" db:"created_at"`
	ClosedAt   *time.Time `json:"closed_at,omitempty" db:"closed_at"`
}

// Message is a single chat message. Created by the dispatcher, persisted by
// the store, then treated as immutable for fan-out.
type Message struct {
	ID          string    `json:"id"`
	SessionID   string    `json:"session_id"`
	SenderID    string    `json:"sender_id"`
	SenderKind  string    `json:"sender_kind"`
	Type        string    `json:"type"`
	Content     string    `json:"content"`
	IsAutoReply bool      `json:"is_auto_reply"`
	Read        bool      `json:"read"`
	Timestamp   time.Time `json:"timestamp"`
}

// PresenceRecord tracks a support agent's availability. Mutated only by the
// owning agent's connection lifecycle events or explicit status changes.
type PresenceRecord struct {
	AgentID   string    `json:"agent_id"`
	Status    string    `json:"status"`
	RemoteIP  string    `json:"remote_ip,omitempty"`
	UpdatedAt time.Time `json:"updated_at"`
}

// AutoReply is the outcome of the store's auto-reply policy check.
type AutoReply struct {
	Content string `json:"content"`
}

// NotificationEvent is handed to the push-notification collaborator when a
// new customer message arrives, regardless of WebSocket delivery success.
type NotificationEvent struct {
	Kind      string    `json:"kind"`
	SessionID string    `json:"session_id"`
	SenderID  string    `json:"sender_id"`
	Preview   string    `json:"preview"`
	Timestamp time.Time `json:"timestamp"`
}
