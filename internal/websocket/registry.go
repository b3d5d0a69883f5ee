package websocket

import (
	"log"
	"sync"

	"github.com/Aeglx/WeDrawOS-sub009/pkg/types"
)

// Registry maps principal identifiers to their live connections. Pure
// connection tracking; no business logic lives here. One entry per
// principal: registering a second connection for the same principal replaces
// the entry without closing the old handle (the caller decides what happens
// to it).
type Registry struct {
	mu          sync.RWMutex
	connections map[string]*Connection
}

// NewRegistry creates an empty connection registry.
func NewRegistry() *Registry {
	return &Registry{
		connections: make(map[string]*Connection),
	}
}

// Register inserts or replaces the entry for the connection's principal.
func (r *Registry) Register(conn *Connection) error {
	if conn == nil {
		return ErrNilConnection
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.connections[conn.PrincipalID()]; exists {
		log.Printf("Replacing registry entry: principal=%s", conn.PrincipalID())
	}
	r.connections[conn.PrincipalID()] = conn

	return nil
}

// Unregister removes the entry for a principal. Idempotent.
func (r *Registry) Unregister(principalID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.connections, principalID)
}

// UnregisterConnection removes the entry only if it still holds this exact
// connection instance. This stops an old connection's cleanup from removing
// the replacement that has already taken its slot.
func (r *Registry) UnregisterConnection(conn *Connection) {
	if conn == nil {
		return
	}

	r.mu.Lock()
	defer r.mu.Unlock()

	registered, exists := r.connections[conn.PrincipalID()]
	if !exists || registered != conn {
		return
	}
	delete(r.connections, conn.PrincipalID())
}

// Get returns the current connection for a principal.
func (r *Registry) Get(principalID string) (*Connection, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conn, exists := r.connections[principalID]
	return conn, exists
}

// Send delivers a payload to a principal's live connection. Best-effort:
// returns false when the principal is offline or delivery fails, and the
// caller decides whether that is worth logging. Never escalates to an error.
func (r *Registry) Send(principalID string, v interface{}) bool {
	conn, exists := r.Get(principalID)
	if !exists {
		return false
	}

	if err := conn.WriteJSON(v); err != nil {
		log.Printf("Delivery failed: principal=%s err=%v", principalID, err)
		return false
	}
	return true
}

// IsOnline reports whether a principal has a registered connection.
func (r *Registry) IsOnline(principalID string) bool {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, exists := r.connections[principalID]
	return exists
}

// Connections returns a snapshot of all registered connections, used by the
// liveness monitor's sweep.
func (r *Registry) Connections() []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	conns := make([]*Connection, 0, len(r.connections))
	for _, conn := range r.connections {
		conns = append(conns, conn)
	}
	return conns
}

// Agents returns a snapshot of connections owned by support agents.
func (r *Registry) Agents() []*Connection {
	return r.byKind(types.KindAgent)
}

// Customers returns a snapshot of connections owned by customers.
func (r *Registry) Customers() []*Connection {
	return r.byKind(types.KindCustomer)
}

func (r *Registry) byKind(kind string) []*Connection {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var conns []*Connection
	for _, conn := range r.connections {
		if conn.Kind() == kind {
			conns = append(conns, conn)
		}
	}
	return conns
}

// Stats returns registry counters for the ops API.
func (r *Registry) Stats() map[string]int {
	r.mu.RLock()
	defer r.mu.RUnlock()

	agents := 0
	customers := 0
	for _, conn := range r.connections {
		switch conn.Kind() {
		case types.KindAgent:
			agents++
		case types.KindCustomer:
			customers++
		}
	}

	return map[string]int{
		"total_connections":    len(r.connections),
		"agent_connections":    agents,
		"customer_connections": customers,
	}
}
