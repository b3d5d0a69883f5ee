package types

import (
	"encoding/json"
	"time"
)

// Frame is the outbound wire envelope. Every frame sent to a client is
// {"type": string, "data": object}.
type Frame struct {
	Type string      `json:"type"`
	Data interface{} `json:"data,omitempty"`
}

// InboundFrame is the inbound wire envelope. Data is decoded lazily by the
// handler for the specific frame type.
type InboundFrame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data,omitempty"`
}

// NewFrame builds an outbound frame.
func NewFrame(frameType string, data interface{}) *Frame {
	return &Frame{Type: frameType, Data: data}
}

// ErrorFrame builds the standard error frame reported to a sender. The
// connection stays open; errors never tear down the transport.
func ErrorFrame(message string) *Frame {
	return &Frame{
		Type: FrameError,
		Data: map[string]interface{}{
			"message":   message,
			"timestamp": time.Now(),
		},
	}
}

// MessagePayload is the inbound "message" frame payload.
type MessagePayload struct {
	SessionID string `json:"session_id"`
	Content   string `json:"content"`
	Type      string `json:"type,omitempty"`
}

// CreateSessionPayload is the inbound "create_session" frame payload.
type CreateSessionPayload struct {
	InitialMessage string `json:"initial_message,omitempty"`
}

// SessionRefPayload covers inbound frames that carry only a session
// reference (join_session, leave_session, read_receipt, typing, stop_typing).
type SessionRefPayload struct {
	SessionID string `json:"session_id"`
}

// StatusChangePayload is the inbound "status_change" frame payload sent by
// agent connections.
type StatusChangePayload struct {
	Status string `json:"status"`
}
