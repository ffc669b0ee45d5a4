package bridge

import (
	"sync"

	"go.uber.org/zap"
)

// EventBus is a multi-subscriber broadcast of decoded daemon notifications
// (spec §4.4). It is lossy under slow consumers: a subscriber whose buffer
// is full misses that message — it never blocks the publish path — matching the
// teacher's websocket Hub (internal/websocket/hub.go), whose Publish takes
// a read lock only long enough to copy the subscriber set and sends
// outside the lock.
type EventBus struct {
	mu       sync.RWMutex
	subs     map[int]chan Notification
	nextID   int
	capacity int
	logger   *zap.Logger
}

// NewEventBus creates an EventBus whose subscriber channels have the given
// buffer capacity (100 per spec §4.4).
func NewEventBus(capacity int, logger *zap.Logger) *EventBus {
	return &EventBus{
		subs:     make(map[int]chan Notification),
		capacity: capacity,
		logger:   logger,
	}
}

// Subscribe registers a new subscriber and returns its id (for Unsubscribe)
// and the channel it should read notifications from.
func (b *EventBus) Subscribe() (int, <-chan Notification) {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan Notification, b.capacity)
	b.subs[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber. Safe to call more than once.
func (b *EventBus) Unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subs[id]; ok {
		delete(b.subs, id)
		close(ch)
	}
}

// Publish fans a notification out to every current subscriber. Slow
// subscribers whose buffer is full are skipped for this message, not
// blocked on — they observe a gap, not backpressure.
func (b *EventBus) Publish(n Notification) {
	b.mu.RLock()
	targets := make([]chan Notification, 0, len(b.subs))
	for _, ch := range b.subs {
		targets = append(targets, ch)
	}
	b.mu.RUnlock()

	for _, ch := range targets {
		select {
		case ch <- n:
		default:
			b.logger.Warn("event bus subscriber dropped message, buffer full")
		}
	}
}
