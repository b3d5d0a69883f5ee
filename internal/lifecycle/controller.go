package lifecycle

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Aeglx/WeDrawOS-sub009/internal/dispatch"
	"github.com/Aeglx/WeDrawOS-sub009/internal/hub"
	"github.com/Aeglx/WeDrawOS-sub009/internal/presence"
	"github.com/Aeglx/WeDrawOS-sub009/pkg/interfaces"
	"github.com/Aeglx/WeDrawOS-sub009/pkg/types"
)

// Controller owns session create/join/leave. Authorization is delegated:
// agents have universal access to sessions (they staff the queue), customers
// are checked against the store's access rule.
type Controller struct {
	store      interfaces.Store
	index      *hub.Hub
	sender     hub.Sender
	presence   *presence.Tracker
	dispatcher *dispatch.Dispatcher
	pageSize   int

	mu             sync.RWMutex
	activeSessions map[string]*types.Session
}

// NewController creates a session lifecycle controller. pageSize bounds the
// history page delivered on join.
func NewController(store interfaces.Store, index *hub.Hub, sender hub.Sender, tracker *presence.Tracker, dispatcher *dispatch.Dispatcher, pageSize int) *Controller {
	return &Controller{
		store:          store,
		index:          index,
		sender:         sender,
		presence:       tracker,
		dispatcher:     dispatcher,
		pageSize:       pageSize,
		activeSessions: make(map[string]*types.Session),
	}
}

// CreateSession creates a conversation for a customer, subscribes the
// creator, announces the session to every online agent, and routes the
// optional initial message through the dispatcher exactly as a follow-up
// message would be.
func (c *Controller) CreateSession(ctx context.Context, customer *types.Principal, initialMessage string) (*types.Session, error) {
	if customer.Kind != types.KindCustomer {
		return nil, ErrNotCustomer
	}

	session := &types.Session{
		ID:         uuid.New().String(),
		CustomerID: customer.ID,
		Status:     types.SessionOpen,
		CreatedAt:  time.Now(),
	}

	if err := c.store.CreateSession(ctx, session); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}

	c.mu.Lock()
	c.activeSessions[session.ID] = session
	c.mu.Unlock()

	c.index.Subscribe(customer.ID, session.ID)

	c.sender.Send(customer.ID, types.NewFrame(types.FrameSessionCreated, session))

	unread := 0
	if initialMessage != "" {
		unread = 1
	}
	announcement := types.NewFrame(types.FrameNewSession, map[string]interface{}{
		"session":      session,
		"unread_count": unread,
	})
	for _, agentID := range c.presence.OnlineAgents() {
		c.sender.Send(agentID, announcement)
	}

	log.Printf("Session created: id=%s customer=%s", session.ID, customer.ID)

	if initialMessage != "" {
		// Steady-state message path; no special first-message handling.
		if err := c.dispatcher.Dispatch(ctx, customer, &types.MessagePayload{
			SessionID: session.ID,
			Content:   initialMessage,
		}); err != nil {
			return session, fmt.Errorf("initial message failed: %w", err)
		}
	}

	return session, nil
}

// JoinSession authorizes the principal, subscribes it, delivers the most
// recent page of history, marks messages read, and tells the other
// subscribers. An authorization failure leaves the subscriber set untouched.
func (c *Controller) JoinSession(ctx context.Context, principal *types.Principal, sessionID string) error {
	if sessionID == "" {
		return ErrEmptySessionRef
	}

	session, err := c.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	if session.Status != types.SessionOpen {
		return ErrSessionClosed
	}

	if principal.Kind != types.KindAgent {
		allowed, err := c.store.CheckSessionAccess(ctx, principal.ID, sessionID)
		if err != nil {
			return fmt.Errorf("access check failed: %w", err)
		}
		if !allowed {
			return interfaces.ErrUnauthorized
		}
	}

	// History fetched before subscribing so a failed join has no side
	// effects.
	history, err := c.store.GetSessionMessages(ctx, sessionID, 1, c.pageSize)
	if err != nil {
		return fmt.Errorf("failed to load session history: %w", err)
	}

	c.index.Subscribe(principal.ID, sessionID)

	if principal.Kind == types.KindAgent {
		c.presence.Assign(sessionID, principal.ID)
	}

	c.sender.Send(principal.ID, types.NewFrame(types.FrameSessionJoined, map[string]interface{}{
		"session_id": sessionID,
		"messages":   history,
	}))

	if err := c.store.MarkMessagesAsRead(ctx, sessionID, principal.ID); err != nil {
		log.Printf("Mark-as-read failed: session=%s principal=%s err=%v", sessionID, principal.ID, err)
	}

	c.index.Broadcast(sessionID, types.NewFrame(types.FrameUserJoined, map[string]interface{}{
		"session_id":   sessionID,
		"principal_id": principal.ID,
		"display_name": principal.DisplayName,
		"timestamp":    time.Now(),
	}), principal.ID)

	log.Printf("Session joined: id=%s principal=%s kind=%s", sessionID, principal.ID, principal.Kind)
	return nil
}

// LeaveSession unsubscribes the principal and tells the remaining
// subscribers. Never errors, even when the principal was not subscribed.
// When the session loses its last subscriber, pending auto-replies into it
// are cancelled.
func (c *Controller) LeaveSession(principal *types.Principal, sessionID string) {
	if sessionID == "" {
		return
	}

	c.index.Unsubscribe(principal.ID, sessionID)

	if principal.Kind == types.KindAgent {
		if assigned, ok := c.presence.AssignedAgent(sessionID); ok && assigned == principal.ID {
			c.presence.ClearAssignment(sessionID)
		}
	}

	c.index.Broadcast(sessionID, types.NewFrame(types.FrameUserLeft, map[string]interface{}{
		"session_id":   sessionID,
		"principal_id": principal.ID,
		"timestamp":    time.Now(),
	}))

	if len(c.index.Subscribers(sessionID)) == 0 {
		c.dispatcher.CancelPending(sessionID)
	}

	log.Printf("Session left: id=%s principal=%s", sessionID, principal.ID)
}

// ResubscribeAll subscribes a reconnecting principal to every open session
// it participates in, so broadcasts resume without an explicit re-join.
func (c *Controller) ResubscribeAll(ctx context.Context, principal *types.Principal) error {
	sessions, err := c.store.GetUserSessions(ctx, principal.ID)
	if err != nil {
		return fmt.Errorf("failed to load principal sessions: %w", err)
	}

	for _, session := range sessions {
		if session.Status != types.SessionOpen {
			continue
		}
		c.index.Subscribe(principal.ID, session.ID)
	}

	return nil
}

// GetSession returns a session, cache first, store on miss.
func (c *Controller) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	c.mu.RLock()
	if session, exists := c.activeSessions[sessionID]; exists {
		c.mu.RUnlock()
		return session, nil
	}
	c.mu.RUnlock()

	session, err := c.store.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	if session.Status == types.SessionOpen {
		c.mu.Lock()
		c.activeSessions[sessionID] = session
		c.mu.Unlock()
	}

	return session, nil
}

// Stats returns controller counters for the ops API.
func (c *Controller) Stats() map[string]int {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return map[string]int{
		"cached_sessions": len(c.activeSessions),
	}
}
