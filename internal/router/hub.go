package router

import "sync"

// DeliveryEvent summarizes the outcome of fanning one dispatched event out
// to its matched (route, endpoint) pairs. It is broadcast on EventHub after
// every call to Router.HandleEvent that matched at least one route
// (unrouted events broadcast nothing), independent of the aggregate
// Statistics counters, so an operator-facing surface (e.g. a future
// streaming admin endpoint) can observe activity without polling.
type DeliveryEvent struct {
	EventType string
	Succeeded int
	Failed    int
}

// EventHub is an in-process, best-effort publish/subscribe dispatcher for
// DeliveryEvent values. It is the same fan-out shape used throughout this
// codebase's ancestry for realtime feeds: each listener gets its own
// buffered channel, and a full buffer means the event is dropped for that
// listener only — a slow subscriber never backpressures event handling.
type EventHub struct {
	mu        sync.RWMutex
	listeners map[uint64]chan DeliveryEvent
	nextID    uint64
	bufSize   int
}

// NewEventHub constructs a hub with the given per-listener buffer size. A
// non-positive bufSize defaults to 32.
func NewEventHub(bufSize int) *EventHub {
	if bufSize <= 0 {
		bufSize = 32
	}
	return &EventHub{
		listeners: make(map[uint64]chan DeliveryEvent),
		bufSize:   bufSize,
	}
}

// Register adds a listener and returns its id and receive-only channel.
// Callers must Unregister(id) when done.
func (h *EventHub) Register() (uint64, <-chan DeliveryEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	id := h.nextID
	h.nextID++
	ch := make(chan DeliveryEvent, h.bufSize)
	h.listeners[id] = ch
	return id, ch
}

// Unregister removes and closes the listener's channel. Safe to call more
// than once; unknown ids are ignored.
func (h *EventHub) Unregister(id uint64) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if ch, ok := h.listeners[id]; ok {
		delete(h.listeners, id)
		close(ch)
	}
}

// Broadcast delivers ev to every registered listener, dropping it for any
// listener whose buffer is full.
func (h *EventHub) Broadcast(ev DeliveryEvent) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	for _, ch := range h.listeners {
		select {
		case ch <- ev:
		default:
		}
	}
}

// Size returns the current listener count.
func (h *EventHub) Size() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.listeners)
}
