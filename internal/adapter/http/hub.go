package http

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/couchcryptid/quake-watch/internal/domain"
	"github.com/couchcryptid/quake-watch/internal/views"
	"github.com/gorilla/websocket"
)

const (
	writeWait     = 2 * time.Second
	sendQueueSize = 16
)

// Message is the envelope pushed to WebSocket clients.
type Message struct {
	Type string `json:"type"`
	Data any    `json:"data,omitempty"`
}

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
}

// Hub pushes each refreshed list and every alert to connected WebSocket
// clients. It is a pipeline subscriber. Each client has its own send queue
// and writer goroutine, so a stalled client never delays a broadcast.
type Hub struct {
	mu      sync.Mutex
	clients map[*client]struct{}
	logger  *slog.Logger
}

type client struct {
	conn *websocket.Conn
	send chan []byte
	done chan struct{}
}

// NewHub creates an empty hub.
func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		clients: make(map[*client]struct{}),
		logger:  logger,
	}
}

func (h *Hub) Name() string { return "websocket" }

func (h *Hub) Receive(_ context.Context, quakes []domain.Earthquake) error {
	return h.Broadcast(Message{Type: "earthquakes", Data: quakes})
}

// Alert forwards a threshold alert. Register it with AlertNotifier.OnAlert.
func (h *Hub) Alert(a views.Alert) {
	if err := h.Broadcast(Message{Type: "alert", Data: a}); err != nil {
		h.logger.Warn("alert broadcast failed", "error", err)
	}
}

// Broadcast queues msg for every client without waiting for the writes.
// A client whose queue is full is dropped.
func (h *Hub) Broadcast(msg Message) error {
	b, err := json.Marshal(msg)
	if err != nil {
		return err
	}

	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
	}
	h.mu.Unlock()

	for _, c := range clients {
		select {
		case c.send <- b:
		case <-c.done:
		default:
			h.logger.Debug("dropping slow websocket client", "remote", c.conn.RemoteAddr().String())
			h.remove(c)
		}
	}
	return nil
}

// remove unregisters c and closes its connection. It is safe to call more
// than once.
func (h *Hub) remove(c *client) {
	h.mu.Lock()
	_, ok := h.clients[c]
	if ok {
		delete(h.clients, c)
		close(c.done)
	}
	h.mu.Unlock()
	if ok {
		_ = c.conn.Close()
	}
}

// writePump is the only goroutine that writes data frames to c.
func (h *Hub) writePump(c *client) {
	for {
		select {
		case b := <-c.send:
			_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.TextMessage, b); err != nil {
				h.logger.Debug("dropping websocket client", "remote", c.conn.RemoteAddr().String(), "error", err)
				h.remove(c)
				return
			}
		case <-c.done:
			return
		}
	}
}

// Count returns the number of connected clients.
func (h *Hub) Count() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

// ServeHTTP upgrades the request and holds the connection until the client
// goes away. Incoming messages are ignored.
func (h *Hub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	ws, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Debug("websocket upgrade failed", "error", err)
		return
	}

	_ = ws.SetWriteDeadline(time.Now().Add(writeWait))
	if err := ws.WriteJSON(Message{Type: "welcome"}); err != nil {
		_ = ws.Close()
		return
	}

	c := &client{conn: ws, send: make(chan []byte, sendQueueSize), done: make(chan struct{})}
	h.mu.Lock()
	h.clients[c] = struct{}{}
	n := len(h.clients)
	h.mu.Unlock()
	go h.writePump(c)
	h.logger.Debug("websocket client connected", "clients", n)

	for {
		if _, _, err := ws.ReadMessage(); err != nil {
			break
		}
	}

	h.remove(c)
	h.logger.Debug("websocket client disconnected")
}

// Close disconnects every client.
func (h *Hub) Close() {
	h.mu.Lock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		clients = append(clients, c)
		delete(h.clients, c)
		close(c.done)
	}
	h.mu.Unlock()

	for _, c := range clients {
		_ = c.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseGoingAway, "shutting down"),
			time.Now().Add(writeWait))
		_ = c.conn.Close()
	}
}
