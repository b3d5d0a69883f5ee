package websocket

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/Aeglx/WeDrawOS-sub009/pkg/types"
)

// Connection wraps a live transport handle. The handle is owned exclusively
// by this wrapper: all writes go through a single writer goroutine and only
// Close may tear the handle down.
type Connection struct {
	conn         *websocket.Conn
	writeCh      chan []byte
	writeTimeout time.Duration

	principal   types.Principal
	remoteIP    string
	connectedAt time.Time

	mu           sync.RWMutex
	lastActivity time.Time

	ctx         context.Context
	cancel      context.CancelFunc
	closeOnce   sync.Once
	cleanupOnce sync.Once
}

// NewConnection creates a connection wrapper for an upgraded WebSocket and
// starts its writer goroutine.
func NewConnection(conn *websocket.Conn, principal types.Principal, remoteIP string, bufferSize int, writeTimeout time.Duration) *Connection {
	ctx, cancel := context.WithCancel(context.Background())
	now := time.Now()
	c := &Connection{
		conn:         conn,
		writeCh:      make(chan []byte, bufferSize),
		writeTimeout: writeTimeout,
		principal:    principal,
		remoteIP:     remoteIP,
		connectedAt:  now,
		lastActivity: now,
		ctx:          ctx,
		cancel:       cancel,
	}

	go c.writeLoop()

	return c
}

// writeLoop is the single writer for the underlying handle. Serializing
// writes here is what makes WriteJSON safe from any goroutine.
//
// writeCh is never closed: a WriteJSON racing Close may still be inside the
// send select, and a send on a closed channel panics in the sender, which is
// some other principal's read loop mid-broadcast. Exiting on ctx.Done leaves
// any queued payloads to the garbage collector instead.
func (c *Connection) writeLoop() {
	for {
		select {
		case data := <-c.writeCh:
			if err := c.conn.SetWriteDeadline(time.Now().Add(c.writeTimeout)); err != nil {
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}

		case <-c.ctx.Done():
			return
		}
	}
}

// WriteJSON queues a JSON payload for delivery. Safe for concurrent use.
func (c *Connection) WriteJSON(v interface{}) error {
	select {
	case <-c.ctx.Done():
		return ErrConnectionClosed
	default:
	}

	data, err := json.Marshal(v)
	if err != nil {
		return ErrInvalidJSON
	}

	select {
	case c.writeCh <- data:
		return nil
	case <-time.After(c.writeTimeout):
		return ErrWriteTimeout
	case <-c.ctx.Done():
		return ErrConnectionClosed
	}
}

// Close closes the transport handle and stops the writer goroutine.
// Idempotent.
func (c *Connection) Close() error {
	var err error
	c.closeOnce.Do(func() {
		c.cancel()
		if c.conn != nil {
			err = c.conn.Close()
		}
	})
	return err
}

// Touch records inbound activity. Called for every frame read, including
// heartbeats; the liveness monitor reads this clock.
func (c *Connection) Touch() {
	c.mu.Lock()
	c.lastActivity = time.Now()
	c.mu.Unlock()
}

// LastActivity returns the time of the most recent inbound frame.
func (c *Connection) LastActivity() time.Time {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.lastActivity
}

// ConnectedAt returns when the connection completed its handshake.
func (c *Connection) ConnectedAt() time.Time {
	return c.connectedAt
}

// PrincipalID returns the connection owner's identifier.
func (c *Connection) PrincipalID() string {
	return c.principal.ID
}

// Kind returns the connection owner's principal kind.
func (c *Connection) Kind() string {
	return c.principal.Kind
}

// DisplayName returns the connection owner's display name.
func (c *Connection) DisplayName() string {
	return c.principal.DisplayName
}

// RemoteIP returns the client address captured at handshake time.
func (c *Connection) RemoteIP() string {
	return c.remoteIP
}

// Done exposes the connection's lifetime for goroutines tied to it.
func (c *Connection) Done() <-chan struct{} {
	return c.ctx.Done()
}
