package lifecycle

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/Aeglx/WeDrawOS-sub009/internal/dispatch"
	"github.com/Aeglx/WeDrawOS-sub009/internal/hub"
	"github.com/Aeglx/WeDrawOS-sub009/internal/presence"
	"github.com/Aeglx/WeDrawOS-sub009/pkg/interfaces"
	"github.com/Aeglx/WeDrawOS-sub009/pkg/types"
)

// fakeStore implements interfaces.Store over in-memory maps.
type fakeStore struct {
	mu       sync.Mutex
	sessions map[string]*types.Session
	messages map[string][]*types.Message
	// principals allowed past the customer access check
	access map[string]bool

	historyErr error
	markedRead []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		sessions: make(map[string]*types.Session),
		messages: make(map[string][]*types.Message),
		access:   make(map[string]bool),
	}
}

func (s *fakeStore) CreateSession(ctx context.Context, session *types.Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[session.ID] = session
	s.access[session.CustomerID+"/"+session.ID] = true
	return nil
}

func (s *fakeStore) GetSession(ctx context.Context, sessionID string) (*types.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	session, exists := s.sessions[sessionID]
	if !exists {
		return nil, interfaces.ErrSessionNotFound
	}
	return session, nil
}

func (s *fakeStore) GetUserSessions(ctx context.Context, principalID string) ([]*types.Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []*types.Session
	for _, session := range s.sessions {
		if session.CustomerID == principalID || (session.AgentID != nil && *session.AgentID == principalID) {
			out = append(out, session)
		}
	}
	return out, nil
}

func (s *fakeStore) SendMessage(ctx context.Context, message *types.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.messages[message.SessionID] = append(s.messages[message.SessionID], message)
	return nil
}

func (s *fakeStore) GetSessionMessages(ctx context.Context, sessionID string, page, pageSize int) ([]*types.Message, error) {
	if s.historyErr != nil {
		return nil, s.historyErr
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*types.Message(nil), s.messages[sessionID]...), nil
}

func (s *fakeStore) MarkMessagesAsRead(ctx context.Context, sessionID, principalID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.markedRead = append(s.markedRead, sessionID+"/"+principalID)
	return nil
}

func (s *fakeStore) CheckSessionAccess(ctx context.Context, principalID, sessionID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.access[principalID+"/"+sessionID], nil
}

func (s *fakeStore) CheckAutoReply(ctx context.Context, message *types.Message) (*types.AutoReply, error) {
	return nil, nil
}
func (s *fakeStore) HealthCheck(ctx context.Context) error { return nil }
func (s *fakeStore) Close() error                          { return nil }

// captureSender records deliveries per principal.
type captureSender struct {
	mu   sync.Mutex
	sent map[string][]*types.Frame
}

func newCaptureSender() *captureSender {
	return &captureSender{sent: make(map[string][]*types.Frame)}
}

func (s *captureSender) Send(principalID string, v interface{}) bool {
	frame, ok := v.(*types.Frame)
	if !ok {
		return false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent[principalID] = append(s.sent[principalID], frame)
	return true
}

func (s *captureSender) frames(principalID string) []*types.Frame {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]*types.Frame(nil), s.sent[principalID]...)
}

func (s *captureSender) framesOfType(principalID, frameType string) []*types.Frame {
	var out []*types.Frame
	for _, f := range s.frames(principalID) {
		if f.Type == frameType {
			out = append(out, f)
		}
	}
	return out
}

type noopNotifier struct{}

func (noopNotifier) Notify(event *types.NotificationEvent) {}

type controllerFixture struct {
	controller *Controller
	store      *fakeStore
	sender     *captureSender
	index      *hub.Hub
	tracker    *presence.Tracker
	dispatcher *dispatch.Dispatcher
}

func newControllerFixture() *controllerFixture {
	store := newFakeStore()
	sender := newCaptureSender()
	index := hub.NewHub(sender)
	tracker := presence.NewTracker()
	dispatcher := dispatch.NewDispatcher(index, sender, tracker, store, noopNotifier{}, time.Millisecond, 2*time.Millisecond)

	return &controllerFixture{
		controller: NewController(store, index, sender, tracker, dispatcher, 50),
		store:      store,
		sender:     sender,
		index:      index,
		tracker:    tracker,
		dispatcher: dispatcher,
	}
}

func customer(id string) *types.Principal {
	return &types.Principal{ID: id, Kind: types.KindCustomer, DisplayName: id}
}

func agent(id string) *types.Principal {
	return &types.Principal{ID: id, Kind: types.KindAgent, DisplayName: id}
}

func TestController_CreateSessionCustomerOnly(t *testing.T) {
	f := newControllerFixture()

	if _, err := f.controller.CreateSession(context.Background(), agent("agent-1"), ""); err != ErrNotCustomer {
		t.Errorf("Expected ErrNotCustomer, got %v", err)
	}
}

func TestController_CreateSessionSubscribesAndAnnounces(t *testing.T) {
	f := newControllerFixture()
	f.tracker.SetStatus("agent-1", types.StatusOnline, "10.0.0.1")
	f.tracker.SetStatus("agent-2", types.StatusBusy, "10.0.0.2")

	session, err := f.controller.CreateSession(context.Background(), customer("customer-1"), "")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	if session.Status != types.SessionOpen || session.CustomerID != "customer-1" {
		t.Error("Session not created open for the customer")
	}
	if !f.index.IsSubscribed("customer-1", session.ID) {
		t.Error("Creator not subscribed to the new session")
	}
	if len(f.sender.framesOfType("customer-1", types.FrameSessionCreated)) != 1 {
		t.Error("Creator did not receive session_created")
	}
	if len(f.sender.framesOfType("agent-1", types.FrameNewSession)) != 1 {
		t.Error("Online agent did not receive new_session")
	}
	if len(f.sender.framesOfType("agent-2", types.FrameNewSession)) != 0 {
		t.Error("Busy agent received new_session")
	}
}

func TestController_CreateSessionDispatchesInitialMessage(t *testing.T) {
	f := newControllerFixture()

	session, err := f.controller.CreateSession(context.Background(), customer("customer-1"), "I need help")
	if err != nil {
		t.Fatalf("CreateSession failed: %v", err)
	}

	messages := f.store.messages[session.ID]
	if len(messages) != 1 {
		t.Fatalf("Expected 1 persisted message, got %d", len(messages))
	}
	if messages[0].Content != "I need help" || messages[0].SenderID != "customer-1" {
		t.Error("Initial message not routed through the normal message path")
	}
	// The message broadcast reaches the already-subscribed creator.
	if len(f.sender.framesOfType("customer-1", types.FrameNewMessage)) != 1 {
		t.Error("Creator did not receive the initial message broadcast")
	}
}

func TestController_JoinSessionUnauthorizedHasNoSideEffects(t *testing.T) {
	f := newControllerFixture()
	session, _ := f.controller.CreateSession(context.Background(), customer("customer-1"), "")

	err := f.controller.JoinSession(context.Background(), customer("customer-2"), session.ID)
	if err != interfaces.ErrUnauthorized {
		t.Fatalf("Expected ErrUnauthorized, got %v", err)
	}
	if f.index.IsSubscribed("customer-2", session.ID) {
		t.Error("Unauthorized principal was subscribed")
	}
	if len(f.sender.frames("customer-2")) != 0 {
		t.Error("Unauthorized principal received frames")
	}
}

func TestController_JoinClosedSessionRejected(t *testing.T) {
	f := newControllerFixture()

	closed := &types.Session{
		ID:         "closed-session",
		CustomerID: "customer-1",
		Status:     types.SessionClosed,
		CreatedAt:  time.Now(),
	}
	_ = f.store.CreateSession(context.Background(), closed)

	if err := f.controller.JoinSession(context.Background(), agent("agent-1"), closed.ID); err != ErrSessionClosed {
		t.Errorf("Expected ErrSessionClosed, got %v", err)
	}
	if err := f.controller.JoinSession(context.Background(), agent("agent-1"), "nope"); err != interfaces.ErrSessionNotFound {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}
}

func TestController_JoinSessionHistoryFailureHasNoSideEffects(t *testing.T) {
	f := newControllerFixture()
	session, _ := f.controller.CreateSession(context.Background(), customer("customer-1"), "")
	f.store.historyErr = errors.New("db gone")

	err := f.controller.JoinSession(context.Background(), agent("agent-1"), session.ID)
	if err == nil {
		t.Fatal("Expected history load error")
	}
	if f.index.IsSubscribed("agent-1", session.ID) {
		t.Error("Failed join still subscribed the principal")
	}
	if _, ok := f.tracker.AssignedAgent(session.ID); ok {
		t.Error("Failed join still assigned the agent")
	}
}

func TestController_AgentJoinAssignsAndDeliversHistory(t *testing.T) {
	f := newControllerFixture()
	session, _ := f.controller.CreateSession(context.Background(), customer("customer-1"), "hello")

	if err := f.controller.JoinSession(context.Background(), agent("agent-1"), session.ID); err != nil {
		t.Fatalf("JoinSession failed: %v", err)
	}

	if assigned, _ := f.tracker.AssignedAgent(session.ID); assigned != "agent-1" {
		t.Error("Agent not recorded as session handler")
	}

	joined := f.sender.framesOfType("agent-1", types.FrameSessionJoined)
	if len(joined) != 1 {
		t.Fatal("Agent did not receive session_joined")
	}
	data := joined[0].Data.(map[string]interface{})
	history := data["messages"].([]*types.Message)
	if len(history) != 1 || history[0].Content != "hello" {
		t.Error("session_joined missing the session history")
	}

	// Messages from other participants are marked read on join.
	if len(f.store.markedRead) != 1 || f.store.markedRead[0] != session.ID+"/agent-1" {
		t.Errorf("Unexpected mark-as-read calls: %v", f.store.markedRead)
	}

	// The customer hears about the join; the joiner does not hear about itself.
	if len(f.sender.framesOfType("customer-1", types.FrameUserJoined)) != 1 {
		t.Error("Existing subscriber did not receive user_joined")
	}
	if len(f.sender.framesOfType("agent-1", types.FrameUserJoined)) != 0 {
		t.Error("Joiner received its own user_joined")
	}
}

func TestController_LeaveSessionClearsAssignmentAndNotifies(t *testing.T) {
	f := newControllerFixture()
	session, _ := f.controller.CreateSession(context.Background(), customer("customer-1"), "")
	_ = f.controller.JoinSession(context.Background(), agent("agent-1"), session.ID)

	f.controller.LeaveSession(agent("agent-1"), session.ID)

	if f.index.IsSubscribed("agent-1", session.ID) {
		t.Error("Agent still subscribed after leave")
	}
	if _, ok := f.tracker.AssignedAgent(session.ID); ok {
		t.Error("Assignment survived the assigned agent leaving")
	}
	if len(f.sender.framesOfType("customer-1", types.FrameUserLeft)) != 1 {
		t.Error("Remaining subscriber did not receive user_left")
	}

	// Leaving a session never errors, even unsubscribed principals.
	f.controller.LeaveSession(customer("customer-9"), session.ID)
	f.controller.LeaveSession(customer("customer-1"), "")
}

func TestController_LeaveKeepsOtherAgentsAssignment(t *testing.T) {
	f := newControllerFixture()
	session, _ := f.controller.CreateSession(context.Background(), customer("customer-1"), "")
	_ = f.controller.JoinSession(context.Background(), agent("agent-1"), session.ID)
	_ = f.controller.JoinSession(context.Background(), agent("agent-2"), session.ID)

	// agent-2 took over the assignment; agent-1 leaving must not clear it.
	f.controller.LeaveSession(agent("agent-1"), session.ID)

	if assigned, _ := f.tracker.AssignedAgent(session.ID); assigned != "agent-2" {
		t.Errorf("Expected agent-2 to stay assigned, got %q", assigned)
	}
}

func TestController_LastLeaveCancelsPendingAutoReplies(t *testing.T) {
	f := newControllerFixture()
	session, _ := f.controller.CreateSession(context.Background(), customer("customer-1"), "")

	f.controller.LeaveSession(customer("customer-1"), session.ID)

	if f.dispatcher.PendingCount(session.ID) != 0 {
		t.Error("Pending auto-replies survived the last leave")
	}
	if len(f.index.Subscribers(session.ID)) != 0 {
		t.Error("Session still has subscribers after last leave")
	}
}

func TestController_ResubscribeAllRestoresOpenSessions(t *testing.T) {
	f := newControllerFixture()
	open, _ := f.controller.CreateSession(context.Background(), customer("customer-1"), "")

	closed := &types.Session{
		ID:         "closed-session",
		CustomerID: "customer-1",
		Status:     types.SessionClosed,
		CreatedAt:  time.Now(),
	}
	_ = f.store.CreateSession(context.Background(), closed)

	// Fresh index models a reconnect.
	f.index.UnsubscribeAll("customer-1")

	if err := f.controller.ResubscribeAll(context.Background(), customer("customer-1")); err != nil {
		t.Fatalf("ResubscribeAll failed: %v", err)
	}

	if !f.index.IsSubscribed("customer-1", open.ID) {
		t.Error("Open session not resubscribed")
	}
	if f.index.IsSubscribed("customer-1", "closed-session") {
		t.Error("Closed session resubscribed")
	}
}

func TestController_GetSessionCachesOpenSessions(t *testing.T) {
	f := newControllerFixture()
	session, _ := f.controller.CreateSession(context.Background(), customer("customer-1"), "")

	got, err := f.controller.GetSession(context.Background(), session.ID)
	if err != nil || got.ID != session.ID {
		t.Fatalf("GetSession failed: %v", err)
	}

	if _, err := f.controller.GetSession(context.Background(), "missing"); err != interfaces.ErrSessionNotFound {
		t.Errorf("Expected ErrSessionNotFound, got %v", err)
	}

	if f.controller.Stats()["cached_sessions"] != 1 {
		t.Errorf("Expected 1 cached session, got %d", f.controller.Stats()["cached_sessions"])
	}
}
