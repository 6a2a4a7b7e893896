package api

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/gorilla/websocket"
	"github.com/treykane/termshare/internal/events"
	"github.com/treykane/termshare/internal/model"
	"github.com/treykane/termshare/internal/util"
)

const (
	clientBuffer = 16
	writeTimeout = 5 * time.Second
)

type client struct {
	conn   *websocket.Conn
	remote string
	send   chan []byte
}

func newClient(conn *websocket.Conn) *client {
	c := &client{conn: conn, remote: conn.RemoteAddr().String(), send: make(chan []byte, clientBuffer)}
	go c.writePump()
	return c
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		_ = c.conn.SetWriteDeadline(time.Now().Add(writeTimeout))
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
	_ = c.conn.WriteControl(websocket.CloseMessage,
		websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"),
		time.Now().Add(time.Second))
}

// Hub relays session status snapshots from the bus to websocket clients.
// A client that falls behind is disconnected rather than allowed to stall
// the others.
//
// A client's send queue is only ever written or closed with mu held, and
// closing it also removes the client from the set. Every send is
// non-blocking, so holding mu across a broadcast is bounded by the number
// of clients, never by a client's speed.
type Hub struct {
	bus *events.Bus
	log *slog.Logger

	mu      sync.Mutex
	clients map[*client]struct{}
	closed  bool
}

// NewHub returns a hub reading from bus.
func NewHub(bus *events.Bus, log *slog.Logger) *Hub {
	if log == nil {
		log = slog.Default()
	}
	return &Hub{bus: bus, log: log, clients: make(map[*client]struct{})}
}

// Run forwards snapshots until ctx ends, then disconnects every client.
func (h *Hub) Run(ctx context.Context) error {
	ch, cancel := h.bus.Subscribe(util.StatusTopic, clientBuffer)
	defer cancel()
	defer h.closeAll()
	for {
		select {
		case <-ctx.Done():
			return nil
		case snap, ok := <-ch:
			if !ok {
				return nil
			}
			h.broadcast(snap)
		}
	}
}

// Add registers conn and queues the current snapshot for it. After the hub
// has stopped, the connection is closed straight away.
func (h *Hub) Add(conn *websocket.Conn, current model.StatusSnapshot) *client {
	c := newClient(conn)
	data, err := json.Marshal(current)
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(c.send)
		return c
	}
	h.clients[c] = struct{}{}
	if err == nil {
		h.offer(c, data)
	}
	return c
}

// Remove unregisters c and closes its send queue. Safe to repeat.
func (h *Hub) Remove(c *client) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.drop(c)
}

// Clients reports the number of connected clients.
func (h *Hub) Clients() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.clients)
}

func (h *Hub) broadcast(snap model.StatusSnapshot) {
	data, err := json.Marshal(snap)
	if err != nil {
		h.log.Warn("marshal status snapshot", "error", err)
		return
	}
	h.mu.Lock()
	defer h.mu.Unlock()
	for c := range h.clients {
		h.offer(c, data)
	}
}

// offer queues data for c or disconnects c when its queue is full.
// Callers hold mu.
func (h *Hub) offer(c *client, data []byte) {
	select {
	case c.send <- data:
	default:
		h.log.Warn("websocket client too slow, disconnecting", "remote", c.remote)
		h.drop(c)
	}
}

// drop removes c and closes its queue once. Callers hold mu.
func (h *Hub) drop(c *client) {
	if _, ok := h.clients[c]; !ok {
		return
	}
	delete(h.clients, c)
	close(c.send)
}

func (h *Hub) closeAll() {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.closed = true
	for c := range h.clients {
		h.drop(c)
	}
}
