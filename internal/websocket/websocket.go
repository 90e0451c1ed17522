package websocket

import (
	"encoding/json"
	"log"
	"net/http"
	"sync"
	"time"

	ws "github.com/gorilla/websocket"
)

// Event is the payload pushed to connected clients when a record changes.
// Resource is the REST collection name ("products", "deals", ...), so a
// client can invalidate its cache without parsing Type.
type Event struct {
	Type     string `json:"type"`
	Resource string `json:"resource"`
	ID       any    `json:"id"`
	Action   string `json:"action"`
}

type conn struct {
	c  *ws.Conn
	mu sync.Mutex
}

func (c *conn) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.c.SetWriteDeadline(time.Now().Add(5 * time.Second))
	return c.c.WriteMessage(ws.TextMessage, data)
}

// Hub maintains connected WebSocket clients and broadcasts events.
type Hub struct {
	mu        sync.RWMutex
	conns     map[*conn]struct{}
	listeners []func(Event)
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{conns: make(map[*conn]struct{})}
}

// Listen registers an in-process callback invoked for every broadcast.
func (h *Hub) Listen(fn func(Event)) {
	h.mu.Lock()
	h.listeners = append(h.listeners, fn)
	h.mu.Unlock()
}

// Clients returns the number of connected sockets.
func (h *Hub) Clients() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.conns)
}

func (h *Hub) add(c *conn) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.conns[c] = struct{}{}
	return len(h.conns)
}

func (h *Hub) remove(c *conn) {
	h.mu.Lock()
	_, ok := h.conns[c]
	delete(h.conns, c)
	h.mu.Unlock()
	if ok {
		_ = c.c.Close()
	}
}

// Broadcast sends an event to all connected clients and listeners.
func (h *Hub) Broadcast(evt Event) {
	data, err := json.Marshal(evt)
	if err != nil {
		log.Printf("ws: marshal error: %v", err)
		return
	}
	h.mu.RLock()
	conns := make([]*conn, 0, len(h.conns))
	for c := range h.conns {
		conns = append(conns, c)
	}
	listeners := append([]func(Event){}, h.listeners...)
	h.mu.RUnlock()

	for _, fn := range listeners {
		fn(evt)
	}
	for _, c := range conns {
		if err := c.write(data); err != nil {
			h.remove(c)
		}
	}
}

// BroadcastChange is a convenience helper for broadcasting resource changes.
// action is "create", "update" or "delete".
func (h *Hub) BroadcastChange(resource, action string, id any) {
	h.Broadcast(Event{
		Type:     resource + "_" + action + "d",
		Resource: resource,
		ID:       id,
		Action:   action,
	})
}

// Upgrader is the default WebSocket upgrader.
var Upgrader = ws.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// HandleWebSocket upgrades the connection and keeps it alive with pings.
func HandleWebSocket(hub *Hub, w http.ResponseWriter, r *http.Request) {
	wc, err := Upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Printf("ws: upgrade error: %v", err)
		return
	}

	c := &conn{c: wc}
	log.Printf("ws: client connected (%d total)", hub.add(c))

	wc.SetReadDeadline(time.Now().Add(60 * time.Second))
	wc.SetPongHandler(func(string) error {
		wc.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	done := make(chan struct{})
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-done:
				return
			case <-ticker.C:
				c.mu.Lock()
				err := wc.WriteControl(ws.PingMessage, nil, time.Now().Add(5*time.Second))
				c.mu.Unlock()
				if err != nil {
					return
				}
			}
		}
	}()

	for {
		if _, _, err := wc.ReadMessage(); err != nil {
			break
		}
	}
	close(done)
	hub.remove(c)
	log.Printf("ws: client disconnected")
}
