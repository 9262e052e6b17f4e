// Package events pushes storage change notifications to every open tab of a
// client over WebSocket, the way browsers fire "storage" events across tabs.
package events

import (
	"context"
	"encoding/json"
	"log"
	"sync"
	"time"
)

// Event reports a change to one key of a client's store.
type Event struct {
	Namespace string    `json:"-"`
	Key       string    `json:"key"`
	Removed   bool      `json:"removed"`
	Timestamp time.Time `json:"timestamp"`
}

// Hub maintains connected clients per namespace and fans events out to them.
type Hub struct {
	clients    map[string]map[*Client]bool // namespace -> clients
	broadcast  chan *Event
	register   chan *Client
	unregister chan *Client
	done       chan struct{}
	mu         sync.RWMutex
}

// NewHub creates a new Hub. Call Run to start delivering events.
func NewHub() *Hub {
	return &Hub{
		clients:    make(map[string]map[*Client]bool),
		broadcast:  make(chan *Event, 256),
		register:   make(chan *Client),
		unregister: make(chan *Client),
		done:       make(chan struct{}),
	}
}

// Publish queues a change for delivery. It never blocks; events are dropped
// when the queue is full.
func (h *Hub) Publish(namespace, key string, removed bool) {
	ev := &Event{Namespace: namespace, Key: key, Removed: removed, Timestamp: time.Now()}
	select {
	case h.broadcast <- ev:
	default:
		log.Printf("Dropping storage event for %s: queue full", key)
	}
}

// Listener returns a function suitable for storage.Observe that publishes
// changes made in namespace.
func (h *Hub) Listener(namespace string) func(key string, removed bool) {
	return func(key string, removed bool) {
		h.Publish(namespace, key, removed)
	}
}

// ClientCount returns the number of clients connected for namespace.
func (h *Hub) ClientCount(namespace string) int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients[namespace])
}

// Run processes registrations and broadcasts until ctx is done.
func (h *Hub) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.done)
			h.mu.Lock()
			for ns, clients := range h.clients {
				for c := range clients {
					close(c.send)
				}
				delete(h.clients, ns)
			}
			h.mu.Unlock()
			return

		case client := <-h.register:
			h.mu.Lock()
			if h.clients[client.namespace] == nil {
				h.clients[client.namespace] = make(map[*Client]bool)
			}
			h.clients[client.namespace][client] = true
			h.mu.Unlock()

		case client := <-h.unregister:
			h.mu.Lock()
			h.remove(client)
			h.mu.Unlock()

		case ev := <-h.broadcast:
			msg := mustMarshal(ev)
			h.mu.Lock()
			for client := range h.clients[ev.Namespace] {
				select {
				case client.send <- msg:
				default:
					h.remove(client)
				}
			}
			h.mu.Unlock()
		}
	}
}

// remove must be called with mu held.
func (h *Hub) remove(client *Client) {
	clients, ok := h.clients[client.namespace]
	if !ok {
		return
	}
	if _, ok := clients[client]; !ok {
		return
	}
	delete(clients, client)
	close(client.send)
	if len(clients) == 0 {
		delete(h.clients, client.namespace)
	}
}

func mustMarshal(v any) []byte {
	b, err := json.Marshal(v)
	if err != nil {
		log.Printf("Failed to marshal: %v", err)
		return []byte("{}")
	}
	return b
}
