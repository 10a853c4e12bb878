// Package bus provides the realtime change bus: a small publish/subscribe
// channel that notifies subscribers when rows of interest change, so the
// rest of the system can re-evaluate liveness and nearby aggregates sooner
// than the next poll tick.
//
// Delivery contract (and its limits, which callers must tolerate):
//   - at-least-once per connected subscriber
//   - no ordering guarantee across distinct entities
//   - events MAY be dropped silently when a subscriber is slow or while a
//     transport reconnects; the periodic poll path is the fallback
//
// Events are triggers, never authorities: receiving (or missing) an event
// must not by itself change any liveness classification.
package bus

import (
	"sync"
	"time"
)

// ChangeKind identifies what changed about an entity.
type ChangeKind string

const (
	KindPositionUpdated ChangeKind = "position_updated"
	KindPresenceJoined  ChangeKind = "presence_joined"
	KindPresenceLeft    ChangeKind = "presence_left"
	KindAnchorCreated   ChangeKind = "anchor_created"
	KindAnchorResolved  ChangeKind = "anchor_resolved"
	KindMessagePosted   ChangeKind = "message_posted"
)

// Well-known topics.
const (
	TopicPresence = "presence"
	TopicAnchors  = "anchors"
	TopicMessages = "messages"
)

// ChangeEvent describes a single row-of-interest change.
type ChangeEvent struct {
	EntityID string     `json:"entity_id"`
	Kind     ChangeKind `json:"kind"`
	At       time.Time  `json:"at"`
}

// Bus is the publish/subscribe contract consumed by the presence subsystem.
//
// Subscribe returns a receive channel and a cancel function; cancel must be
// called when the subscriber goes away, after which the channel is closed.
// Publish never blocks on slow subscribers.
type Bus interface {
	Publish(topic string, ev ChangeEvent)
	Subscribe(topic string) (<-chan ChangeEvent, func())
}

// subscriber is a single bounded delivery queue.
type subscriber struct {
	ch chan ChangeEvent
}

// InMemoryBus is a process-local Bus implementation. It is the production
// implementation for single-node deployments and the test double everywhere
// else; a broker-backed implementation can replace it behind the same
// interface.
//
// Each subscriber owns a bounded buffer. When the buffer is full the event
// is dropped for that subscriber only, which is within the delivery
// contract above.
type InMemoryBus struct {
	mu     sync.RWMutex
	topics map[string]map[*subscriber]struct{}
	buf    int
	closed bool
}

// NewInMemoryBus creates a bus whose subscribers buffer up to buf events.
// buf values < 1 are coerced to 16.
func NewInMemoryBus(buf int) *InMemoryBus {
	if buf < 1 {
		buf = 16
	}
	return &InMemoryBus{
		topics: make(map[string]map[*subscriber]struct{}),
		buf:    buf,
	}
}

// Publish delivers ev to every current subscriber of topic. Full subscriber
// buffers drop the event rather than blocking the publisher.
func (b *InMemoryBus) Publish(topic string, ev ChangeEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	if b.closed {
		return
	}
	for sub := range b.topics[topic] {
		select {
		case sub.ch <- ev:
		default:
			// Slow consumer; the poll path will catch it up.
		}
	}
}

// Subscribe registers a new subscriber for topic. The returned cancel
// function is idempotent and closes the channel.
func (b *InMemoryBus) Subscribe(topic string) (<-chan ChangeEvent, func()) {
	sub := &subscriber{ch: make(chan ChangeEvent, b.buf)}

	b.mu.Lock()
	if b.closed {
		b.mu.Unlock()
		close(sub.ch)
		return sub.ch, func() {}
	}
	if b.topics[topic] == nil {
		b.topics[topic] = make(map[*subscriber]struct{})
	}
	b.topics[topic][sub] = struct{}{}
	b.mu.Unlock()

	var once sync.Once
	cancel := func() {
		once.Do(func() {
			b.mu.Lock()
			registered := false
			if subs, ok := b.topics[topic]; ok {
				if _, registered = subs[sub]; registered {
					delete(subs, sub)
					if len(subs) == 0 {
						delete(b.topics, topic)
					}
				}
			}
			b.mu.Unlock()
			// Close already happened if the whole bus was shut down first.
			if registered {
				close(sub.ch)
			}
		})
	}
	return sub.ch, cancel
}

// Close drops all subscribers and closes their channels. Publish becomes a
// no-op afterwards.
func (b *InMemoryBus) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for _, subs := range b.topics {
		for sub := range subs {
			close(sub.ch)
		}
	}
	b.topics = make(map[string]map[*subscriber]struct{})
}

// SubscriberCount returns the number of active subscribers for topic.
// Intended for metrics and tests.
func (b *InMemoryBus) SubscriberCount(topic string) int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.topics[topic])
}
