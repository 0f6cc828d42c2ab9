package relay

import (
	"log"
	"runtime/debug"
	"sync"
	"sync/atomic"
)

// Sink is a function that receives an event.
type Sink func(Event)

// subscription represents a registered sink.
type subscription struct {
	id   uint64
	sink Sink
	// stop is invoked when the subscription is replaced or detached.
	// Stream subscriptions use it to close their channel.
	stop func()
}

// Hub routes entity events to subscribers. Each entity key has at most one
// subscriber at a time: attaching a new sink for a key replaces the previous
// one (latest wins). Wildcard observers additionally receive every event and
// are unlimited; the TUI, the daemon's metrics and SSE fan-out use those.
//
// Publishing is synchronous; handlers are dispatched outside the hub lock
// and panics in one handler never block delivery to others.
type Hub struct {
	mu        sync.RWMutex
	perKey    map[string]subscription
	observers []subscription
	nextID    atomic.Uint64
}

// NewHub creates a new Hub.
func NewHub() *Hub {
	return &Hub{
		perKey: make(map[string]subscription),
	}
}

// Attach registers sink as the single subscriber for key, replacing any
// previous subscriber (the previous subscription's stop hook runs). The
// returned detach func removes the subscription; it is a no-op if a later
// subscriber has already replaced this one.
func (h *Hub) Attach(key string, sink Sink) func() {
	return h.attach(key, sink, nil)
}

func (h *Hub) attach(key string, sink Sink, stop func()) func() {
	h.mu.Lock()
	prev, hadPrev := h.perKey[key]
	id := h.nextID.Add(1)
	h.perKey[key] = subscription{id: id, sink: sink, stop: stop}
	h.mu.Unlock()

	if hadPrev && prev.stop != nil {
		prev.stop()
	}

	return func() { h.detachID(key, id) }
}

// detachID removes the subscription for key only if it still owns it.
func (h *Hub) detachID(key string, id uint64) {
	h.mu.Lock()
	sub, ok := h.perKey[key]
	if ok && sub.id == id {
		delete(h.perKey, key)
	} else {
		ok = false
	}
	h.mu.Unlock()

	if ok && sub.stop != nil {
		sub.stop()
	}
}

// Detach removes the current subscriber for key, if any.
func (h *Hub) Detach(key string) {
	h.mu.Lock()
	sub, ok := h.perKey[key]
	delete(h.perKey, key)
	h.mu.Unlock()

	if ok && sub.stop != nil {
		sub.stop()
	}
}

// Observe registers a wildcard observer that receives every event.
// Returns a func that removes the observer.
func (h *Hub) Observe(sink Sink) func() {
	h.mu.Lock()
	id := h.nextID.Add(1)
	h.observers = append(h.observers, subscription{id: id, sink: sink})
	h.mu.Unlock()

	return func() {
		h.mu.Lock()
		defer h.mu.Unlock()
		for i, sub := range h.observers {
			if sub.id == id {
				h.observers = append(h.observers[:i], h.observers[i+1:]...)
				return
			}
		}
	}
}

// Publish dispatches an event to the key's subscriber (if any), then to all
// wildcard observers in registration order. If a handler panics, the panic
// is logged, recovered, and publishing continues.
func (h *Hub) Publish(event Event) {
	h.mu.RLock()
	keySub, hasKeySub := h.perKey[event.Key()]
	observers := make([]subscription, len(h.observers))
	copy(observers, h.observers)
	h.mu.RUnlock()

	if hasKeySub {
		safeCall(keySub.sink, event)
	}
	for _, sub := range observers {
		safeCall(sub.sink, event)
	}
}

// safeCall invokes a sink and recovers from any panic so one misbehaving
// subscriber cannot block event delivery to others.
func safeCall(sink Sink, event Event) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("ERROR: event sink panicked for event %s: %v\n%s",
				event.EventType(), r, debug.Stack())
		}
	}()
	sink(event)
}

// Clear removes all subscriptions and observers.
func (h *Hub) Clear() {
	h.mu.Lock()
	perKey := h.perKey
	h.perKey = make(map[string]subscription)
	h.observers = nil
	h.mu.Unlock()

	for _, sub := range perKey {
		if sub.stop != nil {
			sub.stop()
		}
	}
}

// SubscriberCount returns the number of per-key subscribers plus observers.
func (h *Hub) SubscriberCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.perKey) + len(h.observers)
}

// -----------------------------------------------------------------------------
// Channel streams
// -----------------------------------------------------------------------------

// stream adapts a subscription to a channel. Sends never block the
// publisher: when the buffer is full the oldest event is dropped so the
// newest (including the terminal ResultEvent) always lands.
type stream struct {
	mu     sync.Mutex
	ch     chan Event
	closed bool
}

func (s *stream) send(event Event) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return
	}
	for {
		select {
		case s.ch <- event:
			return
		default:
		}
		select {
		case <-s.ch:
		default:
		}
	}
}

func (s *stream) close() {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.closed {
		s.closed = true
		close(s.ch)
	}
}

// Stream attaches a buffered channel subscriber for key and returns the
// receive side plus a detach func. The channel closes when detached or when
// a later subscriber replaces this one (latest wins), so ranging over it
// terminates. Progress events may be dropped under backpressure; the most
// recent event is always retained.
func (h *Hub) Stream(key string, buffer int) (<-chan Event, func()) {
	if buffer < 1 {
		buffer = 1
	}
	s := &stream{ch: make(chan Event, buffer)}
	detach := h.attach(key, s.send, s.close)

	return s.ch, func() {
		detach()
		s.close()
	}
}
