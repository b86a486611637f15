// Package ws bridges the feed manager's broadcast fan-out to WebSocket
// clients. Every connected client registers as a sink on the manager and
// receives the same envelopes internal consumers do: venue market data and
// the engine's arbitrage snapshots.
package ws

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/oddslab/arbscan/internal/domain"
)

const (
	// writeWait is the maximum time to wait for a write to complete.
	writeWait = 10 * time.Second

	// pongWait is the maximum time to wait for a pong from the client.
	pongWait = 60 * time.Second

	// pingPeriod sends pings at this interval. Must be less than pongWait.
	pingPeriod = (pongWait * 9) / 10

	// maxMessageSize is the maximum size of an incoming message.
	maxMessageSize = 4096

	// sendBufferSize is the channel buffer for outgoing messages per client.
	sendBufferSize = 256
)

// upgrader configures the WebSocket upgrade parameters.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow all origins. In production, restrict this to known origins.
		return true
	},
}

// SinkRegistry registers clients for broadcast fan-out.
type SinkRegistry interface {
	AddSink(sink domain.Sink)
	RemoveSink(id string)
}

// AlertAcker acknowledges alerts on behalf of connected clients.
type AlertAcker interface {
	AcknowledgeAlert(id string) bool
}

// client represents a single WebSocket connection. It doubles as the
// domain.Sink the feed manager fans out to.
type client struct {
	hub  *Hub
	id   string
	conn *websocket.Conn
	send chan []byte
}

// inboundMsg is the JSON command format clients send.
type inboundMsg struct {
	Type    string `json:"type"`
	AlertID string `json:"alert_id"`
}

// Hub manages the set of connected WebSocket clients. Registration flows
// through the run loop so client lifetime and sink registration stay in
// one place.
type Hub struct {
	feed   SinkRegistry
	engine AlertAcker
	logger *slog.Logger

	clients    map[*client]bool
	register   chan *client
	unregister chan *client
	mu         sync.RWMutex
}

// NewHub creates a hub that registers each client on the given sink
// registry and routes alert acknowledgements to the engine.
func NewHub(feed SinkRegistry, engine AlertAcker, logger *slog.Logger) *Hub {
	return &Hub{
		feed:       feed,
		engine:     engine,
		logger:     logger.With(slog.String("component", "ws_hub")),
		clients:    make(map[*client]bool),
		register:   make(chan *client),
		unregister: make(chan *client),
	}
}

// Run starts the hub's main event loop. It handles client registration and
// unregistration and exits when the provided context is cancelled.
func (h *Hub) Run(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			h.mu.Lock()
			for c := range h.clients {
				h.feed.RemoveSink(c.id)
				close(c.send)
				delete(h.clients, c)
			}
			h.mu.Unlock()
			return ctx.Err()

		case c := <-h.register:
			h.mu.Lock()
			h.clients[c] = true
			h.mu.Unlock()
			h.feed.AddSink(c)
			h.logger.Info("ws: client connected",
				slog.String("client_id", c.id),
				slog.Int("total_clients", h.clientCount()),
			)

		case c := <-h.unregister:
			h.mu.Lock()
			_, ok := h.clients[c]
			delete(h.clients, c)
			h.mu.Unlock()
			if ok {
				// Remove the sink before closing the channel so the
				// broadcast worker cannot send into a closed channel.
				h.feed.RemoveSink(c.id)
				close(c.send)
			}
			h.logger.Info("ws: client disconnected",
				slog.String("client_id", c.id),
				slog.Int("total_clients", h.clientCount()),
			)
		}
	}
}

// HandleWS upgrades an HTTP request to a WebSocket connection and registers
// the client with the hub.
// GET /ws
func (h *Hub) HandleWS(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("ws: upgrade failed", slog.String("error", err.Error()))
		return
	}

	c := &client{
		hub:  h,
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, sendBufferSize),
	}

	h.register <- c
	c.sendConnectionStatus()

	// Start read and write pumps in separate goroutines.
	go c.writePump()
	go c.readPump()
}

// clientCount returns the number of currently connected clients.
func (h *Hub) clientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// ID implements domain.Sink.
func (c *client) ID() string { return c.id }

// Send implements domain.Sink. It queues a broadcast frame without
// blocking; a full buffer reports the sink closed so the manager drops it
// instead of stalling the fan-out worker.
func (c *client) Send(msg []byte) error {
	select {
	case c.send <- msg:
		return nil
	default:
		return domain.ErrSinkClosed
	}
}

// readPump reads messages from the WebSocket connection and handles client
// commands: ping and alert acknowledgement.
func (c *client) readPump() {
	defer func() {
		c.hub.unregister <- c
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.hub.logger.Warn("ws: unexpected close error",
					slog.String("error", err.Error()),
				)
			}
			return
		}

		var msg inboundMsg
		if err := json.Unmarshal(message, &msg); err != nil {
			continue
		}
		c.handleCommand(msg)
	}
}

// handleCommand processes one inbound client command. Unknown types are
// ignored.
func (c *client) handleCommand(msg inboundMsg) {
	switch msg.Type {
	case "ping":
		c.reply(map[string]any{
			"type":      "pong",
			"timestamp": time.Now().UnixMilli(),
		})

	case "acknowledge_alert":
		acked := c.hub.engine.AcknowledgeAlert(msg.AlertID)
		c.reply(map[string]any{
			"type":         "alert_acknowledged",
			"alert_id":     msg.AlertID,
			"acknowledged": acked,
			"timestamp":    time.Now().UnixMilli(),
		})
	}
}

// sendConnectionStatus pushes a small JSON envelope so clients can
// immediately mark the connection as healthy before the first broadcast
// arrives.
func (c *client) sendConnectionStatus() {
	c.reply(map[string]any{
		"type":      "connection_status",
		"status":    "connected",
		"message":   "connected to arbitrage stream",
		"timestamp": time.Now().UnixMilli(),
	})
}

func (c *client) reply(v any) {
	msg, err := json.Marshal(v)
	if err != nil {
		return
	}
	select {
	case c.send <- msg:
	default:
	}
}

// writePump pumps messages from the send buffer to the WebSocket
// connection and keeps the connection alive with periodic pings.
func (c *client) writePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// The hub closed the channel.
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}

			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
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
