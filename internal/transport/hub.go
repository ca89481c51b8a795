package transport

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/visitly/handoff/internal/util"
)

const (
	writeWait  = 10 * time.Second
	pongWait   = 60 * time.Second
	pingPeriod = (pongWait * 9) / 10

	// maxFrameSize bounds inbound client frames.
	maxFrameSize = 16 * 1024

	// sendBuffer is the per-client outbound queue; a client that cannot
	// drain it gets dropped rather than blocking the hub.
	sendBuffer = 64
)

// Inbound frame types sent by browser clients.
const (
	frameMessage  = "message"
	frameAccept   = "accept_handoff"
	frameDecline  = "decline_handoff"
	frameCallback = "request_callback"
)

// clientFrame is the JSON envelope for inbound client frames.
type clientFrame struct {
	Type      string `json:"type"`
	VisitorID string `json:"visitor_id,omitempty"`
	Body      string `json:"body,omitempty"`
}

// serverFrame is the JSON envelope for outbound events.
type serverFrame struct {
	Event   string      `json:"event"`
	Payload interface{} `json:"payload,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	// The widget is embedded on arbitrary customer pages.
	CheckOrigin: func(r *http.Request) bool { return true },
}

// Hub fans outbound events to the websocket clients of each session and
// dispatches inbound frames to a Handler. It implements Emitter.
type Hub struct {
	handler Handler

	mu       sync.RWMutex
	sessions map[string]map[*client]bool
}

// NewHub creates a websocket hub dispatching inbound frames to handler.
// The handler may be nil at construction and set later with SetHandler,
// since the hub and its handler reference each other.
func NewHub(handler Handler) *Hub {
	slog.Debug("Creating transport Hub")
	return &Hub{
		handler:  handler,
		sessions: make(map[string]map[*client]bool),
	}
}

// SetHandler installs the inbound frame handler. Must be called before the
// hub starts accepting connections.
func (h *Hub) SetHandler(handler Handler) {
	h.handler = handler
}

type client struct {
	hub       *Hub
	conn      *websocket.Conn
	sessionID string
	send      chan []byte
}

// Emit pushes one event to every live client of a session. Sessions with no
// live connection drop the event silently; delivery is best-effort.
func (h *Hub) Emit(sessionID, event string, payload interface{}) {
	data, err := json.Marshal(serverFrame{Event: event, Payload: payload})
	if err != nil {
		slog.Error("Hub Emit marshal failed", "error", err, "event", event)
		return
	}

	h.mu.RLock()
	clients := h.sessions[sessionID]
	for c := range clients {
		select {
		case c.send <- data:
		default:
			slog.Warn("Hub Emit dropped frame, slow client", "sessionID", sessionID, "event", event)
		}
	}
	h.mu.RUnlock()
	slog.Debug("Hub Emit succeeded", "sessionID", sessionID, "event", event, "clients", len(clients))
}

// ServeWS upgrades an HTTP request to a websocket session connection. The
// session identity comes from the "session" query parameter; a fresh one is
// minted when the client supplies none.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("session")
	if sessionID == "" {
		sessionID = util.GenerateSessionID()
	}

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Hub websocket upgrade failed", "error", err)
		return
	}

	c := &client{hub: h, conn: conn, sessionID: sessionID, send: make(chan []byte, sendBuffer)}
	h.register(c)

	// Echo the session identity so the client can persist and resume it.
	if data, err := json.Marshal(serverFrame{Event: "session", Payload: map[string]string{"session_id": sessionID}}); err == nil {
		c.send <- data
	}

	go c.writePump()
	go c.readPump()
}

func (h *Hub) register(c *client) {
	h.mu.Lock()
	if h.sessions[c.sessionID] == nil {
		h.sessions[c.sessionID] = make(map[*client]bool)
	}
	h.sessions[c.sessionID][c] = true
	h.mu.Unlock()
	slog.Debug("Hub client registered", "sessionID", c.sessionID)
}

// unregister removes a client and reports whether it was the session's last.
func (h *Hub) unregister(c *client) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	clients, ok := h.sessions[c.sessionID]
	if !ok {
		return false
	}
	delete(clients, c)
	if len(clients) == 0 {
		delete(h.sessions, c.sessionID)
		return true
	}
	return false
}

// dispatch routes one decoded inbound frame to the handler.
func (h *Hub) dispatch(ctx context.Context, c *client, frame clientFrame) {
	if h.handler == nil {
		slog.Warn("Hub dropped frame, no handler installed", "sessionID", c.sessionID)
		return
	}
	switch frame.Type {
	case frameMessage:
		h.handler.OnMessage(ctx, c.sessionID, frame.VisitorID, frame.Body)
	case frameAccept:
		h.handler.OnAccept(ctx, c.sessionID)
	case frameDecline:
		h.handler.OnDecline(ctx, c.sessionID)
	case frameCallback:
		h.handler.OnCallback(ctx, c.sessionID)
	default:
		slog.Warn("Hub dropped unknown frame type", "sessionID", c.sessionID, "type", frame.Type)
	}
}

func (c *client) readPump() {
	defer func() {
		last := c.hub.unregister(c)
		c.conn.Close()
		close(c.send)
		if last && c.hub.handler != nil {
			slog.Debug("Hub session fully disconnected", "sessionID", c.sessionID)
			c.hub.handler.OnDisconnect(context.Background(), c.sessionID)
		}
	}()

	c.conn.SetReadLimit(maxFrameSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				slog.Warn("Hub read error", "error", err, "sessionID", c.sessionID)
			}
			return
		}
		var frame clientFrame
		if err := json.Unmarshal(data, &frame); err != nil {
			slog.Warn("Hub dropped malformed frame", "error", err, "sessionID", c.sessionID)
			continue
		}
		c.hub.dispatch(context.Background(), c, frame)
	}
}

func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

// NullEmitter discards all events. It stands in for the hub in tests and in
// deployments that consume events over a different channel.
type NullEmitter struct{}

// Emit discards the event.
func (NullEmitter) Emit(sessionID, event string, payload interface{}) {}

var _ Emitter = (*Hub)(nil)
var _ Emitter = NullEmitter{}
