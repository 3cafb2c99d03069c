package realtime

import (
	"context"
	"encoding/json"
	"sync"

	"mangrovewatch/core"
)

// Filter decides whether a subscriber receives an event. Nil accepts all.
type Filter func(core.Event) bool

// ForUser accepts events about user plus community-wide events that carry
// no user, such as leaderboard refreshes.
func ForUser(user core.UserID) Filter {
	return func(ev core.Event) bool { return ev.UserID == "" || ev.UserID == user }
}

// OfTypes accepts only the listed event types.
func OfTypes(types ...core.EventType) Filter {
	set := make(map[core.EventType]struct{}, len(types))
	for _, t := range types {
		set[t] = struct{}{}
	}
	return func(ev core.Event) bool {
		_, ok := set[ev.Type]
		return ok
	}
}

type subscriber struct {
	ch     chan core.Event
	filter Filter
}

// Hub is a simple pub/sub for broadcasting events to channels.
type Hub struct {
	mu      sync.RWMutex
	subs    map[int]subscriber
	next    int
	dropped int64
}

func NewHub() *Hub { return &Hub{subs: map[int]subscriber{}} }

func (h *Hub) Subscribe(buffer int, filter Filter) (int, <-chan core.Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.next++
	id := h.next
	ch := make(chan core.Event, buffer)
	h.subs[id] = subscriber{ch: ch, filter: filter}
	return id, ch
}

func (h *Hub) Unsubscribe(id int) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.subs[id]; ok {
		delete(h.subs, id)
		close(sub.ch)
	}
}

// Len reports the number of live subscribers.
func (h *Hub) Len() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.subs)
}

// Dropped reports how many deliveries were skipped for slow subscribers.
func (h *Hub) Dropped() int64 {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.dropped
}

// Broadcast delivers ev to every matching subscriber without blocking.
// It holds the read lock while sending so Unsubscribe cannot close a
// channel mid-send.
func (h *Hub) Broadcast(_ context.Context, ev core.Event) {
	h.mu.RLock()
	var dropped int64
	for _, sub := range h.subs {
		if sub.filter != nil && !sub.filter(ev) {
			continue
		}
		select {
		case sub.ch <- ev:
		default: /* drop if full */
			dropped++
		}
	}
	h.mu.RUnlock()
	if dropped > 0 {
		h.mu.Lock()
		h.dropped += dropped
		h.mu.Unlock()
	}
}

// MarshalJSON is a helper to convert events to JSON bytes for WebSocket/SSE.
func MarshalJSON(ev core.Event) []byte {
	b, _ := json.Marshal(ev)
	return b
}
