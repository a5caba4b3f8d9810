// Package eventhub fans reconciled timeline snapshots out to interested
// consumers (websocket pushers, the tail printer). Subscription lifecycle is
// owned by the caller: whoever subscribes must unsubscribe.
package eventhub

import (
	"sync"

	"overmind/internal/timeline"
)

// Hub broadcasts snapshots to all current subscribers.
type Hub struct {
	mu          sync.Mutex
	subscribers map[chan timeline.Snapshot]struct{}
	closed      bool
}

// NewHub creates an empty hub.
func NewHub() *Hub {
	return &Hub{subscribers: make(map[chan timeline.Snapshot]struct{})}
}

// Subscribe registers a new subscriber channel with the given buffer size.
// The returned channel is closed by Unsubscribe or Close.
func (h *Hub) Subscribe(buffer int) chan timeline.Snapshot {
	if buffer < 1 {
		buffer = 1
	}
	ch := make(chan timeline.Snapshot, buffer)

	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		close(ch)
		return ch
	}
	h.subscribers[ch] = struct{}{}
	return ch
}

// Unsubscribe removes and closes a subscriber channel. Unknown channels are
// ignored so double-unsubscribes stay harmless.
func (h *Hub) Unsubscribe(ch chan timeline.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, ok := h.subscribers[ch]; !ok {
		return
	}
	delete(h.subscribers, ch)
	close(ch)
}

// Publish delivers a snapshot to every subscriber. Delivery is best-effort:
// a subscriber whose buffer is full misses this snapshot and catches up on
// the next one, since snapshots are full re-derivations rather than diffs.
func (h *Hub) Publish(snapshot timeline.Snapshot) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	for ch := range h.subscribers {
		select {
		case ch <- snapshot:
		default:
		}
	}
}

// Close shuts the hub down and closes every subscriber channel.
func (h *Hub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	if h.closed {
		return
	}
	h.closed = true
	for ch := range h.subscribers {
		close(ch)
	}
	h.subscribers = make(map[chan timeline.Snapshot]struct{})
}
