package websocket

import (
	"context"
	"encoding/json"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/Aeglx/WeDrawOS-sub009/internal/dispatch"
	"github.com/Aeglx/WeDrawOS-sub009/internal/hub"
	"github.com/Aeglx/WeDrawOS-sub009/internal/lifecycle"
	"github.com/Aeglx/WeDrawOS-sub009/internal/presence"
	"github.com/Aeglx/WeDrawOS-sub009/pkg/interfaces"
	"github.com/Aeglx/WeDrawOS-sub009/pkg/types"
)

// maxFrameBytes caps one inbound frame.
const maxFrameBytes = 128 * 1024

// Handler owns the WebSocket endpoint: handshake, the per-connection read
// loop, the frame-type switch, and disconnect cleanup. The cleanup path is
// shared between graceful client disconnects and liveness eviction; there is
// exactly one.
type Handler struct {
	auth       interfaces.Authenticator
	registry   *Registry
	index      *hub.Hub
	presence   *presence.Tracker
	dispatcher *dispatch.Dispatcher
	lifecycle  *lifecycle.Controller
	store      interfaces.Store

	bufferSize   int
	writeTimeout time.Duration

	upgrader websocket.Upgrader
}

// NewHandler creates the WebSocket handler.
func NewHandler(auth interfaces.Authenticator, registry *Registry, index *hub.Hub, tracker *presence.Tracker, dispatcher *dispatch.Dispatcher, controller *lifecycle.Controller, store interfaces.Store, bufferSize int, writeTimeout time.Duration) *Handler {
	return &Handler{
		auth:         auth,
		registry:     registry,
		index:        index,
		presence:     tracker,
		dispatcher:   dispatcher,
		lifecycle:    controller,
		store:        store,
		bufferSize:   bufferSize,
		writeTimeout: writeTimeout,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin: func(r *http.Request) bool {
				// Origin checking is the reverse proxy's job in this
				// deployment.
				return true
			},
			HandshakeTimeout: 10 * time.Second,
		},
	}
}

// HandleWebSocket authenticates the handshake, upgrades, registers, restores
// the principal's session subscriptions, and starts the read loop. Failed
// handshakes answer with an HTTP error before the upgrade; nothing is ever
// left half-open.
func (h *Handler) HandleWebSocket(c echo.Context) error {
	principal, err := h.auth.Authenticate(c.Request())
	if err != nil {
		return echo.NewHTTPError(http.StatusUnauthorized, err.Error())
	}

	ws, err := h.upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		log.Printf("WebSocket upgrade failed: principal=%s err=%v", principal.ID, err)
		return err
	}

	conn := NewConnection(ws, *principal, c.RealIP(), h.bufferSize, h.writeTimeout)
	ws.SetReadLimit(maxFrameBytes)

	if err := h.registry.Register(conn); err != nil {
		_ = conn.Close()
		return nil
	}

	if principal.Kind == types.KindAgent {
		previous := h.presence.SetStatus(principal.ID, types.StatusOnline, conn.RemoteIP())
		if previous != types.StatusOnline {
			h.broadcastAgentStatus(principal.ID, types.StatusOnline)
		}
	}

	if err := h.lifecycle.ResubscribeAll(context.Background(), principal); err != nil {
		log.Printf("Session resubscription failed: principal=%s err=%v", principal.ID, err)
	}

	_ = conn.WriteJSON(types.NewFrame(types.FrameConnectionEstablished, map[string]interface{}{
		"principal_id": principal.ID,
		"kind":         principal.Kind,
		"connected_at": conn.ConnectedAt(),
	}))

	if principal.Kind == types.KindCustomer {
		_ = conn.WriteJSON(types.NewFrame(types.FrameOnlineAgents, map[string]interface{}{
			"agents": h.presence.OnlineAgents(),
		}))
	}

	log.Printf("Connection established: principal=%s kind=%s ip=%s", principal.ID, principal.Kind, conn.RemoteIP())

	go h.readLoop(conn)

	return nil
}

// readLoop reads frames until the transport dies, touching the activity
// clock for every frame. Frame handling errors never tear down the
// connection; only transport errors do.
func (h *Handler) readLoop(conn *Connection) {
	defer h.Disconnect(conn)

	for {
		messageType, data, err := conn.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("WebSocket read error: principal=%s err=%v", conn.PrincipalID(), err)
			}
			return
		}

		if messageType != websocket.TextMessage {
			continue
		}

		conn.Touch()

		var frame types.InboundFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			_ = conn.WriteJSON(types.ErrorFrame("malformed frame: invalid JSON"))
			continue
		}

		h.handleFrame(conn, &frame)
	}
}

// handleFrame routes one inbound frame. Unknown types get an error frame,
// never a dropped connection.
func (h *Handler) handleFrame(conn *Connection, frame *types.InboundFrame) {
	ctx := context.Background()
	principal := types.Principal{ID: conn.PrincipalID(), Kind: conn.Kind(), DisplayName: conn.DisplayName()}

	switch frame.Type {
	case types.FrameHeartbeat:
		_ = conn.WriteJSON(types.NewFrame(types.FrameHeartbeat, map[string]interface{}{
			"timestamp": time.Now(),
		}))

	case types.FrameMessage:
		var payload types.MessagePayload
		if !h.decode(conn, frame.Data, &payload) {
			return
		}
		if err := h.dispatcher.Dispatch(ctx, &principal, &payload); err != nil {
			_ = conn.WriteJSON(types.ErrorFrame(err.Error()))
		}

	case types.FrameCreateSession:
		var payload types.CreateSessionPayload
		if !h.decode(conn, frame.Data, &payload) {
			return
		}
		if _, err := h.lifecycle.CreateSession(ctx, &principal, payload.InitialMessage); err != nil {
			_ = conn.WriteJSON(types.ErrorFrame(err.Error()))
		}

	case types.FrameJoinSession:
		var payload types.SessionRefPayload
		if !h.decode(conn, frame.Data, &payload) {
			return
		}
		if err := h.lifecycle.JoinSession(ctx, &principal, payload.SessionID); err != nil {
			_ = conn.WriteJSON(types.ErrorFrame(err.Error()))
		}

	case types.FrameLeaveSession:
		var payload types.SessionRefPayload
		if !h.decode(conn, frame.Data, &payload) {
			return
		}
		h.lifecycle.LeaveSession(&principal, payload.SessionID)

	case types.FrameReadReceipt:
		var payload types.SessionRefPayload
		if !h.decode(conn, frame.Data, &payload) {
			return
		}
		h.handleReadReceipt(ctx, conn, payload.SessionID)

	case types.FrameTyping, types.FrameStopTyping:
		var payload types.SessionRefPayload
		if !h.decode(conn, frame.Data, &payload) {
			return
		}
		h.index.Broadcast(payload.SessionID, types.NewFrame(frame.Type, map[string]interface{}{
			"session_id":   payload.SessionID,
			"principal_id": conn.PrincipalID(),
		}), conn.PrincipalID())

	case types.FrameStatusChange:
		h.handleStatusChange(conn, frame.Data)

	default:
		_ = conn.WriteJSON(types.ErrorFrame("unknown frame type: " + frame.Type))
	}
}

// decode unmarshals a frame payload, answering the sender with an error
// frame on malformed data.
func (h *Handler) decode(conn *Connection, data json.RawMessage, v interface{}) bool {
	if len(data) == 0 {
		_ = conn.WriteJSON(types.ErrorFrame("malformed frame: missing data"))
		return false
	}
	if err := json.Unmarshal(data, v); err != nil {
		_ = conn.WriteJSON(types.ErrorFrame("malformed frame: " + err.Error()))
		return false
	}
	return true
}

// handleReadReceipt marks the session read for this principal and relays the
// receipt to the other subscribers.
func (h *Handler) handleReadReceipt(ctx context.Context, conn *Connection, sessionID string) {
	if sessionID == "" {
		_ = conn.WriteJSON(types.ErrorFrame("read_receipt missing session_id"))
		return
	}

	if err := h.store.MarkMessagesAsRead(ctx, sessionID, conn.PrincipalID()); err != nil {
		log.Printf("Mark-as-read failed: session=%s principal=%s err=%v", sessionID, conn.PrincipalID(), err)
		_ = conn.WriteJSON(types.ErrorFrame("could not mark messages as read"))
		return
	}

	h.index.Broadcast(sessionID, types.NewFrame(types.FrameReadReceipt, map[string]interface{}{
		"session_id":   sessionID,
		"principal_id": conn.PrincipalID(),
	}), conn.PrincipalID())
}

// handleStatusChange updates an agent's presence and broadcasts the change
// to the other agents when the status actually changed.
func (h *Handler) handleStatusChange(conn *Connection, data json.RawMessage) {
	if conn.Kind() != types.KindAgent {
		_ = conn.WriteJSON(types.ErrorFrame("status_change is agent-only"))
		return
	}

	var payload types.StatusChangePayload
	if !h.decode(conn, data, &payload) {
		return
	}
	if !types.IsValidStatus(payload.Status) {
		_ = conn.WriteJSON(types.ErrorFrame(types.ErrInvalidStatus.Error()))
		return
	}

	previous := h.presence.SetStatus(conn.PrincipalID(), payload.Status, conn.RemoteIP())
	if previous != payload.Status {
		h.broadcastAgentStatus(conn.PrincipalID(), payload.Status)
	}
}

// broadcastAgentStatus tells every other live agent connection about a
// presence change. Failures are logged only; presence broadcasts are
// system-initiated.
func (h *Handler) broadcastAgentStatus(agentID, status string) {
	frame := types.NewFrame(types.FrameStatusChangeBroadcast, map[string]interface{}{
		"agent_id":  agentID,
		"status":    status,
		"timestamp": time.Now(),
	})

	for _, agentConn := range h.registry.Agents() {
		if agentConn.PrincipalID() == agentID {
			continue
		}
		h.registry.Send(agentConn.PrincipalID(), frame)
	}
}

// Disconnect tears a connection down and runs cleanup exactly once. This is
// the single cleanup path for client disconnects, transport errors, and
// liveness eviction alike: unregister, drop all subscriptions, update agent
// presence.
func (h *Handler) Disconnect(conn *Connection) {
	conn.cleanupOnce.Do(func() {
		_ = conn.Close()

		// A replacement connection may already own this principal's slot;
		// its subscriptions and presence are not ours to clean up.
		if current, ok := h.registry.Get(conn.PrincipalID()); ok && current != conn {
			log.Printf("Connection closed (replaced): principal=%s", conn.PrincipalID())
			return
		}

		h.registry.UnregisterConnection(conn)
		h.index.UnsubscribeAll(conn.PrincipalID())

		if conn.Kind() == types.KindAgent {
			previous := h.presence.SetStatus(conn.PrincipalID(), types.StatusOffline, conn.RemoteIP())
			if previous != types.StatusOffline {
				h.broadcastAgentStatus(conn.PrincipalID(), types.StatusOffline)
			}
		}

		log.Printf("Connection closed: principal=%s kind=%s", conn.PrincipalID(), conn.Kind())
	})
}
