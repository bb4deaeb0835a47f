// Package monitor implements the live websocket dashboard feed: every
// frame completion the master scheduler reports is broadcast to connected
// clients as JSON, carrying the running dropped-slot count, alongside the
// durable file record internal/stats keeps. cmd/decoder sends no separate
// event at the moment a slot is dropped. Adapted from the teacher's server.go
// hub/Client.writePump broadcast pattern (binary FFT frames there,
// small JSON stats frames here) — the registration, per-client send
// channel, and best-effort non-blocking broadcast are the same shape.
package monitor

import (
	"log"
	"net/http"
	"sync"

	"github.com/gorilla/websocket"
)

// FrameEvent is one broadcast unit: a completed frame or a dropped slot.
type FrameEvent struct {
	Type         string `json:"type"` // "frame_complete" | "slot_drop"
	FrameID      uint32 `json:"frame_id,omitempty"`
	FramesDone   int    `json:"frames_done"`
	DroppedSlots int    `json:"dropped_slots"`
}

type client struct {
	conn *websocket.Conn
	send chan FrameEvent
}

// Hub owns the set of connected dashboard clients and the upgrader that
// accepts new ones, mirroring the teacher's package-level wsClients/
// wsClientsMu pair but scoped to an instance instead of globals, per the
// same "no package-level mutable state in library code" redesign that
// motivates internal/runctl.Token.
type Hub struct {
	mu        sync.RWMutex
	clients   map[*client]bool
	upgrader  websocket.Upgrader
}

// NewHub builds an empty hub ready to accept connections at ServeWS.
func NewHub() *Hub {
	return &Hub{
		clients: make(map[*client]bool),
		upgrader: websocket.Upgrader{
			CheckOrigin:     func(r *http.Request) bool { return true },
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
}

// ServeWS upgrades an HTTP connection to a websocket and registers it as
// a dashboard client, exactly the /ws handler's registration dance in
// the teacher's server.go.
func (h *Hub) ServeWS(w http.ResponseWriter, r *http.Request) {
	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("monitor: upgrade: %v", err)
		return
	}
	c := &client{conn: conn, send: make(chan FrameEvent, 256)}

	h.mu.Lock()
	h.clients[c] = true
	h.mu.Unlock()

	go h.writePump(c)
	go h.readPump(c)
}

func (h *Hub) writePump(c *client) {
	defer c.conn.Close()
	for msg := range c.send {
		if err := c.conn.WriteJSON(msg); err != nil {
			return
		}
	}
}

// readPump drains and discards client messages purely to detect
// disconnects (this dashboard is read-only, unlike the teacher's /ws
// handler which accepts stream-control messages back from the client).
func (h *Hub) readPump(c *client) {
	defer func() {
		h.mu.Lock()
		delete(h.clients, c)
		h.mu.Unlock()
		close(c.send)
	}()
	for {
		if _, _, err := c.conn.ReadMessage(); err != nil {
			return
		}
	}
}

// Broadcast fans ev out to every connected client, dropping it for any
// client whose send buffer is full rather than blocking the caller —
// the same best-effort discipline as the teacher's broadcastJSON.
func (h *Hub) Broadcast(ev FrameEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for c := range h.clients {
		select {
		case c.send <- ev:
		default:
		}
	}
}
