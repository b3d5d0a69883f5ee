package hub

import (
	"log"
	"sync"
)

// Sender delivers a payload to a principal's live connection. Implemented by
// the connection registry; best-effort by contract (false means not
// delivered, never an error). Keeping delivery behind this interface is also
// the substitution point for a distributed backplane if this subsystem ever
// runs multi-instance.
type Sender interface {
	Send(principalID string, v interface{}) bool
}

// Hub is the session subscription index: it maps a session identifier to
// the set of principal identifiers currently listening to it. It stores
// identifiers only, never transport handles, so disconnect cleanup can never
// race an in-flight send on a handle being torn down; every delivery goes
// through the Sender's current lookup.
type Hub struct {
	mu sync.RWMutex
	// sessionID -> set of principal IDs
	sessions map[string]map[string]struct{}
	// principalID -> set of session IDs, for O(1) disconnect cleanup
	principals map[string]map[string]struct{}

	sender Sender
}

// NewHub creates an empty subscription index delivering through sender.
func NewHub(sender Sender) *Hub {
	return &Hub{
		sessions:   make(map[string]map[string]struct{}),
		principals: make(map[string]map[string]struct{}),
		sender:     sender,
	}
}

// Subscribe adds a principal to a session's subscriber set. Idempotent; set
// semantics guarantee no duplicate delivery.
func (h *Hub) Subscribe(principalID, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	if h.sessions[sessionID] == nil {
		h.sessions[sessionID] = make(map[string]struct{})
	}
	h.sessions[sessionID][principalID] = struct{}{}

	if h.principals[principalID] == nil {
		h.principals[principalID] = make(map[string]struct{})
	}
	h.principals[principalID][sessionID] = struct{}{}
}

// Unsubscribe removes a principal from a session. Empty subscriber sets are
// deleted outright so session churn cannot grow the index without bound.
func (h *Hub) Unsubscribe(principalID, sessionID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.unsubscribeLocked(principalID, sessionID)
}

// UnsubscribeAll removes a principal from every session it is subscribed to.
// Called exactly once per connection, at disconnect.
func (h *Hub) UnsubscribeAll(principalID string) {
	h.mu.Lock()
	defer h.mu.Unlock()

	for sessionID := range h.principals[principalID] {
		h.unsubscribeLocked(principalID, sessionID)
	}
}

func (h *Hub) unsubscribeLocked(principalID, sessionID string) {
	if subscribers, exists := h.sessions[sessionID]; exists {
		delete(subscribers, principalID)
		if len(subscribers) == 0 {
			delete(h.sessions, sessionID)
		}
	}
	if sessions, exists := h.principals[principalID]; exists {
		delete(sessions, sessionID)
		if len(sessions) == 0 {
			delete(h.principals, principalID)
		}
	}
}

// Broadcast delivers a payload to every current subscriber of a session,
// skipping any excluded principals (used to avoid echoing a sender's own
// typing or read-receipt events back to itself). A failed delivery to one
// subscriber never aborts delivery to the rest.
func (h *Hub) Broadcast(sessionID string, payload interface{}, exclude ...string) {
	subscribers := h.Subscribers(sessionID)

	excluded := make(map[string]struct{}, len(exclude))
	for _, id := range exclude {
		excluded[id] = struct{}{}
	}

	for _, principalID := range subscribers {
		if _, skip := excluded[principalID]; skip {
			continue
		}
		if !h.sender.Send(principalID, payload) {
			// Offline subscriber or broken connection; delivery is
			// best-effort and the entry will be pruned at disconnect.
			log.Printf("Broadcast skipped subscriber: session=%s principal=%s", sessionID, principalID)
		}
	}
}

// Subscribers returns a snapshot of a session's subscriber set.
func (h *Hub) Subscribers(sessionID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	subscribers := make([]string, 0, len(h.sessions[sessionID]))
	for principalID := range h.sessions[sessionID] {
		subscribers = append(subscribers, principalID)
	}
	return subscribers
}

// IsSubscribed reports whether a principal is subscribed to a session.
func (h *Hub) IsSubscribed(principalID, sessionID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()

	_, exists := h.sessions[sessionID][principalID]
	return exists
}

// Sessions returns a snapshot of the session IDs a principal subscribes to.
func (h *Hub) Sessions(principalID string) []string {
	h.mu.RLock()
	defer h.mu.RUnlock()

	sessions := make([]string, 0, len(h.principals[principalID]))
	for sessionID := range h.principals[principalID] {
		sessions = append(sessions, sessionID)
	}
	return sessions
}

// Stats returns index counters for the ops API.
func (h *Hub) Stats() map[string]int {
	h.mu.RLock()
	defer h.mu.RUnlock()

	return map[string]int{
		"active_sessions":       len(h.sessions),
		"subscribed_principals": len(h.principals),
	}
}
