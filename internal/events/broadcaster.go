package events

import (
	"sync"

	"mercato/internal/metrics"
	"mercato/pkg/logger"
)

// DefaultBufferLen is the per-subscriber queue depth used when the caller
// passes a non-positive buffer size
const DefaultBufferLen = 256

// Broadcaster fans events out to subscribers without ever blocking the
// publisher. Delivery order matches emission order; a subscriber that
// cannot keep up loses events (at-most-once is acceptable here, the
// cross-process transport lives elsewhere).
type Broadcaster struct {
	mu     sync.RWMutex
	nextID int
	subs   map[int]chan Event
	buffer int
	closed bool
	log    *logger.Logger
}

// NewBroadcaster creates a broadcaster with the given per-subscriber buffer
func NewBroadcaster(buffer int) *Broadcaster {
	if buffer <= 0 {
		buffer = DefaultBufferLen
	}
	return &Broadcaster{
		subs:   make(map[int]chan Event),
		buffer: buffer,
		log:    logger.Get().With("component", "broadcaster"),
	}
}

// Subscribe registers a listener. The returned cancel func must be called
// to release the subscription; the channel is closed by the broadcaster.
func (b *Broadcaster) Subscribe() (<-chan Event, func()) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		ch := make(chan Event)
		close(ch)
		return ch, func() {}
	}

	id := b.nextID
	b.nextID++
	ch := make(chan Event, b.buffer)
	b.subs[id] = ch

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			if sub, ok := b.subs[id]; ok {
				delete(b.subs, id)
				close(sub)
			}
		})
	}
	return ch, cancel
}

// Publish delivers the event to every subscriber, dropping it for
// subscribers whose queue is full
func (b *Broadcaster) Publish(e Event) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	if b.closed {
		return
	}

	metrics.EventsPublished.WithLabelValues(string(e.Type)).Inc()

	for _, ch := range b.subs {
		select {
		case ch <- e:
		default:
			metrics.EventsDropped.Inc()
			b.log.Debugw("event dropped for slow subscriber",
				"type", e.Type,
				"session_id", e.SessionID,
			)
		}
	}
}

// SubscriberCount returns the number of active subscribers
func (b *Broadcaster) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}

// Close shuts the broadcaster down and closes all subscriber channels
func (b *Broadcaster) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subs {
		delete(b.subs, id)
		close(ch)
	}
}
