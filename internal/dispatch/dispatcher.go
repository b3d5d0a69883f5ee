package dispatch

import (
	"context"
	"fmt"
	"log"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Aeglx/WeDrawOS-sub009/internal/hub"
	"github.com/Aeglx/WeDrawOS-sub009/internal/presence"
	"github.com/Aeglx/WeDrawOS-sub009/pkg/interfaces"
	"github.com/Aeglx/WeDrawOS-sub009/pkg/types"
)

// autoReplySender identifies auto-reply messages when no agent is assigned
// to the session.
const autoReplySender = "system"

// Dispatcher moves an inbound chat message through
// validate -> persist -> broadcast, then drives the downstream automation:
// auto-reply scheduling for customer messages and agent/push notifications.
//
// Persistence always completes before broadcast so a client reconnecting
// right after seeing a broadcast can fetch the same message from history.
type Dispatcher struct {
	index    *hub.Hub
	sender   hub.Sender
	presence *presence.Tracker
	store    interfaces.Store
	notifier interfaces.Notifier
	limiter  *RateLimiter

	delayMin time.Duration
	delayMax time.Duration

	// Pending auto-reply timers per session, so a session going quiet can
	// cancel replies scheduled into it instead of posting into a dead
	// conversation.
	pendingMu sync.Mutex
	pending   map[string]map[*time.Timer]struct{}
}

// NewDispatcher creates a message dispatcher. delayMin/delayMax bound the
// randomized auto-reply delay window.
func NewDispatcher(index *hub.Hub, sender hub.Sender, tracker *presence.Tracker, store interfaces.Store, notifier interfaces.Notifier, delayMin, delayMax time.Duration) *Dispatcher {
	return &Dispatcher{
		index:    index,
		sender:   sender,
		presence: tracker,
		store:    store,
		notifier: notifier,
		limiter:  NewRateLimiter(),
		delayMin: delayMin,
		delayMax: delayMax,
		pending:  make(map[string]map[*time.Timer]struct{}),
	}
}

// Dispatch processes one inbound chat message from a connected principal.
// Validation and persistence errors are returned so the handler can report
// them to the sender; downstream automation failures are logged only.
func (d *Dispatcher) Dispatch(ctx context.Context, from *types.Principal, payload *types.MessagePayload) error {
	messageType := payload.Type
	if messageType == "" {
		messageType = types.MessageTypeText
	}

	// Server-side ID and timestamp; client-provided values are ignored.
	message := &types.Message{
		ID:         uuid.New().String(),
		SessionID:  payload.SessionID,
		SenderID:   from.ID,
		SenderKind: from.Kind,
		Type:       messageType,
		Content:    payload.Content,
		Timestamp:  time.Now(),
	}

	if err := message.Validate(); err != nil {
		return err
	}

	if !d.limiter.Allow(from.ID) {
		return ErrRateLimitExceeded
	}

	// Persist-then-broadcast, never the reverse.
	if err := d.store.SendMessage(ctx, message); err != nil {
		return fmt.Errorf("failed to persist message: %w", err)
	}

	d.index.Broadcast(message.SessionID, types.NewFrame(types.FrameNewMessage, message))

	if from.Kind == types.KindCustomer {
		d.afterCustomerMessage(ctx, message)
	}

	return nil
}

// afterCustomerMessage drives the automation that follows a persisted and
// broadcast customer message. Nothing in here may fail the dispatch: the
// push notifier is fire-and-forget, and auto-reply/notification problems are
// logged only.
func (d *Dispatcher) afterCustomerMessage(ctx context.Context, message *types.Message) {
	// The push collaborator is always informed, regardless of WebSocket
	// delivery success; it is the fallback when no agent is connected at all.
	d.notifier.Notify(&types.NotificationEvent{
		Kind:      types.FrameNewMessage,
		SessionID: message.SessionID,
		SenderID:  message.SenderID,
		Preview:   message.Content,
		Timestamp: message.Timestamp,
	})

	reply, err := d.store.CheckAutoReply(ctx, message)
	if err != nil {
		log.Printf("Auto-reply check failed: session=%s err=%v", message.SessionID, err)
		reply = nil
	}

	if reply != nil {
		d.scheduleAutoReply(message.SessionID, reply)
		return
	}

	d.notifyAgents(message)
}

// scheduleAutoReply sends an automated reply after a randomized delay that
// models human response latency. The delay never blocks other messages on
// this or any other session; the timer fires on its own goroutine.
func (d *Dispatcher) scheduleAutoReply(sessionID string, reply *types.AutoReply) {
	delay := d.delayMin
	if d.delayMax > d.delayMin {
		delay += time.Duration(rand.Int63n(int64(d.delayMax - d.delayMin)))
	}

	var timer *time.Timer
	timer = time.AfterFunc(delay, func() {
		d.removePending(sessionID, timer)
		d.sendAutoReply(sessionID, reply)
	})
	d.addPending(sessionID, timer)

	log.Printf("Auto-reply scheduled: session=%s delay=%s", sessionID, delay)
}

// sendAutoReply persists and broadcasts the automated reply once its delay
// elapses. Same persist-then-broadcast ordering as any other message.
func (d *Dispatcher) sendAutoReply(sessionID string, reply *types.AutoReply) {
	senderID := autoReplySender
	if agentID, ok := d.presence.AssignedAgent(sessionID); ok {
		senderID = agentID
	}

	message := &types.Message{
		ID:          uuid.New().String(),
		SessionID:   sessionID,
		SenderID:    senderID,
		SenderKind:  types.KindAgent,
		Type:        types.MessageTypeText,
		Content:     reply.Content,
		IsAutoReply: true,
		Timestamp:   time.Now(),
	}

	if err := d.store.SendMessage(context.Background(), message); err != nil {
		// System-initiated action: logged only, never surfaced as a crash.
		log.Printf("Auto-reply persistence failed: session=%s err=%v", sessionID, err)
		return
	}

	d.index.Broadcast(sessionID, types.NewFrame(types.FrameNewMessage, message))
}

// notifyAgents tells support staff about a customer message that got no
// auto-reply. The agent assigned to the session is preferred; with no
// assignment every online agent is notified with unassigned=true, and the
// session-assignment collaborator resolves any pickup collision.
func (d *Dispatcher) notifyAgents(message *types.Message) {
	notification := func(unassigned bool) *types.Frame {
		return types.NewFrame(types.FrameNewMessageNotification, map[string]interface{}{
			"session_id": message.SessionID,
			"message":    message,
			"unassigned": unassigned,
			"timestamp":  message.Timestamp,
		})
	}

	if agentID, ok := d.presence.AssignedAgent(message.SessionID); ok {
		if !d.sender.Send(agentID, notification(false)) {
			log.Printf("Assigned agent unreachable: session=%s agent=%s", message.SessionID, agentID)
		}
		return
	}

	for _, agentID := range d.presence.OnlineAgents() {
		d.sender.Send(agentID, notification(true))
	}
}

// CancelPending stops every auto-reply still scheduled into a session.
// Called when a session loses its last subscriber. A reply whose timer has
// already fired is unaffected.
func (d *Dispatcher) CancelPending(sessionID string) {
	d.pendingMu.Lock()
	defer d.pendingMu.Unlock()

	for timer := range d.pending[sessionID] {
		timer.Stop()
	}
	delete(d.pending, sessionID)
}

// PendingCount reports scheduled auto-replies for a session.
func (d *Dispatcher) PendingCount(sessionID string) int {
	d.pendingMu.Lock()
	defer d.pendingMu.Unlock()
	return len(d.pending[sessionID])
}

func (d *Dispatcher) addPending(sessionID string, timer *time.Timer) {
	d.pendingMu.Lock()
	defer d.pendingMu.Unlock()

	if d.pending[sessionID] == nil {
		d.pending[sessionID] = make(map[*time.Timer]struct{})
	}
	d.pending[sessionID][timer] = struct{}{}
}

func (d *Dispatcher) removePending(sessionID string, timer *time.Timer) {
	d.pendingMu.Lock()
	defer d.pendingMu.Unlock()

	if timers, exists := d.pending[sessionID]; exists {
		delete(timers, timer)
		if len(timers) == 0 {
			delete(d.pending, sessionID)
		}
	}
}

// CleanupLimiter prunes stale rate-limit entries; wired to a periodic task
// by the application.
func (d *Dispatcher) CleanupLimiter() {
	d.limiter.Cleanup()
}
