package ws

import (
	"bytes"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
)

// restartPrefix marks the one plain-text control command spectators may
// send; the remaining text is the server password.
const restartPrefix = "please restart "

type client struct {
	conn *websocket.Conn
	send chan []byte
}

func newClient(conn *websocket.Conn) *client {
	c := &client{
		conn: conn,
		send: make(chan []byte, 64),
	}
	go c.writePump()
	return c
}

func (c *client) writePump() {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			return
		}
	}
}

func (c *client) close() {
	close(c.send)
}

// Restarter handles an authenticated restart request from a spectator.
type Restarter interface {
	Restart(password string)
}

// Hub maintains the live set of spectator connections and fans protocol
// lines out to them.
type Hub struct {
	mu      sync.RWMutex
	clients map[*client]bool

	snapMu   sync.Mutex
	snapshot []byte // most recent subscriber state snapshot

	restarter Restarter
}

func NewHub() *Hub {
	return &Hub{clients: make(map[*client]bool)}
}

// SetRestarter wires the restart command target. Must be called before the
// hub accepts connections.
func (h *Hub) SetRestarter(r Restarter) {
	h.restarter = r
}

// AddClient registers a connection and immediately replays the most recent
// state snapshot, if one exists, so late joiners see current state.
func (h *Hub) AddClient(conn *websocket.Conn) *client {
	c := newClient(conn)

	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()

	h.snapMu.Lock()
	snapshot := h.snapshot
	h.snapMu.Unlock()
	if snapshot != nil {
		select {
		case c.send <- snapshot:
		default:
		}
	}

	return c
}

// RemoveClient drops a connection from the live set. Only the transport's
// close/error signal leads here; a full send buffer never does.
func (h *Hub) RemoveClient(c *client) {
	h.mu.Lock()
	if _, ok := h.clients[c]; ok {
		delete(h.clients, c)
		c.close()
	}
	h.mu.Unlock()
}

// Broadcast sends to every currently-connected, write-ready subscriber.
// Subscribers whose buffers are full are silently skipped; the stale send is
// dropped rather than retried.
func (h *Hub) Broadcast(msg []byte) {
	h.sendAll(msg, nil)
}

func (h *Hub) sendAll(msg []byte, except *client) {
	h.mu.RLock()
	clients := make([]*client, 0, len(h.clients))
	for c := range h.clients {
		if c != except {
			clients = append(clients, c)
		}
	}
	h.mu.RUnlock()

	for _, c := range clients {
		select {
		case c.send <- msg:
		default:
		}
	}
}

// HandleInbound classifies a subscriber message: JSON-shaped payloads are
// cached as the latest state snapshot and relayed to every other subscriber;
// the restart command is forwarded to the supervisor.
func (h *Hub) HandleInbound(sender *client, msg []byte) {
	trimmed := bytes.TrimSpace(msg)
	if len(trimmed) == 0 {
		return
	}

	if trimmed[0] == '{' {
		h.snapMu.Lock()
		h.snapshot = append([]byte(nil), msg...)
		h.snapMu.Unlock()
		h.sendAll(msg, sender)
		return
	}

	if text := string(trimmed); strings.HasPrefix(text, restartPrefix) {
		if h.restarter != nil {
			h.restarter.Restart(strings.TrimSpace(strings.TrimPrefix(text, restartPrefix)))
		}
	}
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}
