// Package events is a small publish/subscribe bus for scan lifecycle events.
package events

import (
	"sync"
)

// Topic names a kind of event.
type Topic string

const (
	Shown     Topic = "shown"
	Hidden    Topic = "hidden"
	Decoded   Topic = "decoded"
	Failed    Topic = "failed"
	Cancelled Topic = "cancelled"
	Destroyed Topic = "destroyed"
)

// Event is published on a Bus. Text is set for Decoded, Err for Failed and
// Cancelled.
type Event struct {
	Topic     Topic
	SessionID string
	Text      string
	Err       error
	Critical  bool
}

// Handler receives events.
type Handler func(Event)

// Subscription identifies a registered handler for Off.
type Subscription uint64

type entry struct {
	id   Subscription
	fn   Handler
	once bool
}

// Bus dispatches events to handlers synchronously, in subscription order.
// Handlers run without the bus lock held and may subscribe or unsubscribe.
// The zero value is ready to use.
type Bus struct {
	mu       sync.Mutex
	next     Subscription
	handlers map[Topic][]entry
}

// New returns an empty bus.
func New() *Bus {
	return &Bus{}
}

// On registers fn for every event on topic.
func (b *Bus) On(topic Topic, fn Handler) Subscription {
	return b.add(topic, fn, false)
}

// Once registers fn for the next event on topic only.
func (b *Bus) Once(topic Topic, fn Handler) Subscription {
	return b.add(topic, fn, true)
}

func (b *Bus) add(topic Topic, fn Handler, once bool) Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.handlers == nil {
		b.handlers = make(map[Topic][]entry)
	}
	b.next++
	b.handlers[topic] = append(b.handlers[topic], entry{id: b.next, fn: fn, once: once})
	return b.next
}

// Off removes a subscription. Unknown subscriptions are ignored.
func (b *Bus) Off(topic Topic, sub Subscription) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.remove(topic, sub)
}

// remove must be called with mu held.
func (b *Bus) remove(topic Topic, sub Subscription) bool {
	hs := b.handlers[topic]
	for i, h := range hs {
		if h.id == sub {
			b.handlers[topic] = append(hs[:i:i], hs[i+1:]...)
			return true
		}
	}
	return false
}

// Emit delivers ev to the handlers of ev.Topic. Publishing to a topic
// nobody listens on is a no-op. A nil *Bus drops everything.
func (b *Bus) Emit(ev Event) {
	if b == nil {
		return
	}
	b.mu.Lock()
	hs := append([]entry(nil), b.handlers[ev.Topic]...)
	var run []Handler
	for _, h := range hs {
		if h.once && !b.remove(ev.Topic, h.id) {
			// Already fired by a concurrent Emit.
			continue
		}
		run = append(run, h.fn)
	}
	b.mu.Unlock()

	for _, fn := range run {
		fn(ev)
	}
}

// Len returns the number of handlers subscribed to topic.
func (b *Bus) Len(topic Topic) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.handlers[topic])
}
