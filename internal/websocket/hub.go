// Package websocket pushes cart changes and sync status to connected views.
package websocket

import (
	"encoding/json"
	"log/slog"
	"sync"
)

// Message is one feed entry. Seq grows by one per published message, so a
// view that sees a gap has missed entries and should refetch /api/state.
type Message struct {
	Seq    uint64         `json:"seq"`
	Type   string         `json:"type"`
	Entity string         `json:"entity"`
	Action string         `json:"action"`
	ID     int64          `json:"id,omitempty"`
	Extra  map[string]any `json:"extra,omitempty"`
}

func NewMessage(entity, action string, id int64, extra map[string]any) Message {
	return Message{
		Type:   entity + "_" + action,
		Entity: entity,
		Action: action,
		ID:     id,
		Extra:  extra,
	}
}

// Hub fans published messages out to every attached view. It serves the
// feed itself through ServeHTTP.
type Hub struct {
	mu      sync.Mutex
	views   map[*view]struct{}
	seq     uint64
	dropped uint64
	greet   func() []Message
	logger  *slog.Logger
}

func NewHub(logger *slog.Logger) *Hub {
	return &Hub{
		views:  make(map[*view]struct{}),
		logger: logger,
	}
}

// OnConnect sets the messages a view receives as soon as it attaches,
// before any published ones. They carry the current sequence number.
func (h *Hub) OnConnect(fn func() []Message) {
	h.mu.Lock()
	h.greet = fn
	h.mu.Unlock()
}

func (h *Hub) attach(v *view) {
	h.mu.Lock()
	greet := h.greet
	h.mu.Unlock()

	var hello []Message
	if greet != nil {
		hello = greet()
	}

	h.mu.Lock()
	defer h.mu.Unlock()
	for _, msg := range hello {
		msg.Seq = h.seq
		if data, err := json.Marshal(msg); err == nil {
			v.enqueue(data)
		}
	}
	h.views[v] = struct{}{}
}

// detach is safe to call twice.
func (h *Hub) detach(v *view) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.views[v]; ok {
		delete(h.views, v)
		close(v.send)
	}
}

// Publish stamps msg with the next sequence number and queues it for every
// view. A view whose buffer is full misses the message.
func (h *Hub) Publish(msg Message) {
	h.mu.Lock()
	defer h.mu.Unlock()

	h.seq++
	msg.Seq = h.seq
	data, err := json.Marshal(msg)
	if err != nil {
		h.logger.Error("marshal feed message", "type", msg.Type, "error", err)
		return
	}
	for v := range h.views {
		if !v.enqueue(data) {
			h.dropped++
			h.logger.Debug("view lagging, message dropped", "seq", msg.Seq)
		}
	}
}

// Views returns the number of attached views.
func (h *Hub) Views() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.views)
}

// Dropped returns how many per-view deliveries were skipped.
func (h *Hub) Dropped() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.dropped
}
