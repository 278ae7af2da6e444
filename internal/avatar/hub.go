package avatar

import (
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"go.uber.org/zap"
)

const (
	writeWait      = 10 * time.Second
	sendBufferSize = 16
)

// Event is the frame pushed to avatar renderers over the websocket.
type Event struct {
	Type         string       `json:"type"`
	ExpressionID ExpressionID `json:"expressionId,omitempty"`
	Intensity    float64      `json:"intensity"`
	Enabled      *bool        `json:"enabled,omitempty"`
	Timestamp    int64        `json:"timestamp"`
}

const (
	EventExpression = "expression"
	EventTracking   = "tracking"
)

type client struct {
	conn *websocket.Conn
	send chan []byte
}

// Hub implements Driver by broadcasting commands to every connected
// renderer. The latest expression and tracking state are replayed to new
// connections.
type Hub struct {
	logger   *zap.Logger
	upgrader websocket.Upgrader

	mu       sync.Mutex
	clients  map[*client]struct{}
	last     *Event
	tracking bool
	closed   bool
}

// NewHub creates an empty hub.
func NewHub(logger *zap.Logger) *Hub {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Hub{
		logger: logger.Named("avatar"),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				return true
			},
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
		},
		clients:  make(map[*client]struct{}),
		tracking: true,
	}
}

// ShowExpression broadcasts cmd and remembers it for late joiners.
func (h *Hub) ShowExpression(cmd Command) {
	event := Event{
		Type:         EventExpression,
		ExpressionID: cmd.ExpressionID,
		Intensity:    cmd.Intensity,
		Timestamp:    time.Now().UnixMilli(),
	}

	h.mu.Lock()
	h.last = &event
	h.mu.Unlock()

	h.broadcast(event)
}

// SetTracking broadcasts the camera tracking toggle.
func (h *Hub) SetTracking(enabled bool) {
	h.mu.Lock()
	h.tracking = enabled
	h.mu.Unlock()

	h.broadcast(trackingEvent(enabled))
}

// Tracking reports the current tracking toggle.
func (h *Hub) Tracking() bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.tracking
}

// ClientCount returns the number of connected renderers.
func (h *Hub) ClientCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and registers the renderer.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Warn("websocket upgrade failed", zap.Error(err))
		return
	}

	c := &client{conn: conn, send: make(chan []byte, sendBufferSize)}

	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[c] = struct{}{}
	replay := []Event{trackingEvent(h.tracking)}
	if h.last != nil {
		replay = append(replay, *h.last)
	}
	for _, event := range replay {
		if payload, err := json.Marshal(event); err == nil {
			c.send <- payload
		}
	}
	h.mu.Unlock()

	h.logger.Info("renderer connected", zap.String("remote", r.RemoteAddr))

	go h.writeLoop(c)
	go h.readLoop(c)
}

// Close disconnects every renderer and refuses new ones.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) broadcast(event Event) {
	payload, err := json.Marshal(event)
	if err != nil {
		h.logger.Error("failed to marshal avatar event", zap.Error(err))
		return
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		select {
		case c.send <- payload:
		default:
			// Slow renderer; drop it.
			h.logger.Warn("dropping slow renderer")
			delete(h.clients, c)
			close(c.send)
		}
	}
}

func (h *Hub) remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		close(c.send)
	}
}

func (h *Hub) writeLoop(c *client) {
	defer c.conn.Close()
	for payload := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := c.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
			h.logger.Debug("renderer write failed", zap.Error(err))
			h.remove(c)
			return
		}
	}
	_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
}

// readLoop only drains control frames so a closed renderer is noticed.
func (h *Hub) readLoop(c *client) {
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			h.remove(c)
			return
		}
	}
}

func trackingEvent(enabled bool) Event {
	return Event{
		Type:      EventTracking,
		Enabled:   &enabled,
		Timestamp: time.Now().UnixMilli(),
	}
}
