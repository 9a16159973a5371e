// Package monitoring - events.go broadcasts request events in-process.
//
// DESIGN: EventHub fans RequestEvents out to subscribers (the /events
// WebSocket feed). Publishing never blocks request handling: a subscriber
// whose buffer is full simply misses events.
package monitoring

import "sync"

// EventHub broadcasts request events to subscribers.
type EventHub struct {
	mu      sync.Mutex
	subs    map[chan *RequestEvent]struct{}
	bufSize int
}

// NewEventHub creates a hub with the given per-subscriber buffer size.
func NewEventHub(bufSize int) *EventHub {
	if bufSize <= 0 {
		bufSize = 64
	}
	return &EventHub{
		subs:    make(map[chan *RequestEvent]struct{}),
		bufSize: bufSize,
	}
}

// Subscribe registers a new subscriber and returns its channel.
func (h *EventHub) Subscribe() chan *RequestEvent {
	ch := make(chan *RequestEvent, h.bufSize)
	h.mu.Lock()
	h.subs[ch] = struct{}{}
	h.mu.Unlock()
	return ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (h *EventHub) Unsubscribe(ch chan *RequestEvent) {
	h.mu.Lock()
	if _, ok := h.subs[ch]; ok {
		delete(h.subs, ch)
		close(ch)
	}
	h.mu.Unlock()
}

// Publish delivers an event to every subscriber that has buffer room.
func (h *EventHub) Publish(event *RequestEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for ch := range h.subs {
		select {
		case ch <- event:
		default:
			// Slow subscriber; drop rather than block.
		}
	}
}

// SubscriberCount returns the number of active subscribers.
func (h *EventHub) SubscriberCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.subs)
}
