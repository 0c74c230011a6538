package indicator

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/rbright/rehearse/internal/interview"
	"github.com/rs/zerolog"
)

const (
	hubSendBuffer   = 16
	hubWriteTimeout = 5 * time.Second
	hubPingInterval = 20 * time.Second
	hubReadLimit    = 1024
)

// Frame is one message pushed to websocket clients.
type Frame struct {
	Type  string           `json:"type"`
	Label string           `json:"label,omitempty"`
	State *interview.State `json:"state,omitempty"`
	Error string           `json:"error,omitempty"`
}

type hubClient struct {
	conn *websocket.Conn
	send chan []byte
	once sync.Once
}

func (c *hubClient) close() {
	c.once.Do(func() { close(c.send) })
}

// Hub streams session state to websocket clients. New clients receive the
// latest state first. Slow clients are dropped rather than blocking the session.
type Hub struct {
	logger   zerolog.Logger
	messages messages
	upgrader websocket.Upgrader

	mu      sync.Mutex
	clients map[*hubClient]struct{}
	last    []byte
	closed  bool
}

// NewHub creates an empty hub.
func NewHub(logger zerolog.Logger) *Hub {
	return &Hub{
		logger:   logger,
		messages: messagesFromEnv(),
		upgrader: websocket.Upgrader{
			CheckOrigin: func(*http.Request) bool { return true },
		},
		clients: make(map[*hubClient]struct{}),
	}
}

// ServeHTTP upgrades the request and streams frames until the client leaves.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug().Err(err).Msg("websocket upgrade failed")
		return
	}

	client := &hubClient{conn: conn, send: make(chan []byte, hubSendBuffer)}
	h.mu.Lock()
	if h.closed {
		h.mu.Unlock()
		_ = conn.Close()
		return
	}
	h.clients[client] = struct{}{}
	if h.last != nil {
		client.send <- h.last
	}
	h.mu.Unlock()

	go h.writeLoop(client)
	h.readLoop(client)
}

// PhaseChanged broadcasts a state frame.
func (h *Hub) PhaseChanged(_ context.Context, state interview.State) {
	state = state.Clone()
	frame, err := json.Marshal(Frame{Type: "state", Label: h.messages.label(state.Phase), State: &state})
	if err != nil {
		h.logger.Error().Err(err).Msg("marshal state frame")
		return
	}
	h.broadcast(frame, true)
}

// ShowError broadcasts an error frame.
func (h *Hub) ShowError(_ context.Context, text string) {
	if text == "" {
		text = h.messages.errorText
	}
	frame, err := json.Marshal(Frame{Type: "error", Error: text})
	if err != nil {
		return
	}
	h.broadcast(frame, false)
}

// Clients reports connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for client := range h.clients {
		delete(h.clients, client)
		client.close()
	}
}

func (h *Hub) broadcast(frame []byte, remember bool) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if remember {
		h.last = frame
	}
	for client := range h.clients {
		select {
		case client.send <- frame:
		default:
			h.logger.Warn().Msg("dropping slow websocket client")
			delete(h.clients, client)
			client.close()
		}
	}
}

func (h *Hub) remove(client *hubClient) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.clients[client]; ok {
		delete(h.clients, client)
		client.close()
	}
}

// readLoop discards inbound messages and detects disconnects.
func (h *Hub) readLoop(client *hubClient) {
	defer h.remove(client)
	client.conn.SetReadLimit(hubReadLimit)
	for {
		if _, _, err := client.conn.ReadMessage(); err != nil {
			return
		}
	}
}

func (h *Hub) writeLoop(client *hubClient) {
	ticker := time.NewTicker(hubPingInterval)
	defer func() {
		ticker.Stop()
		_ = client.conn.Close()
	}()

	for {
		select {
		case frame, ok := <-client.send:
			_ = client.conn.SetWriteDeadline(time.Now().Add(hubWriteTimeout))
			if !ok {
				_ = client.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
				return
			}
			if err := client.conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				h.remove(client)
				return
			}
		case <-ticker.C:
			if err := client.conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(hubWriteTimeout)); err != nil {
				h.remove(client)
				return
			}
		}
	}
}
