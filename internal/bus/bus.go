package bus

import (
	"log"
	"sync"

	"presence-backend/internal/model"
)

// Subscriber receives messages published to a topic. Deliver must not block;
// it returns false when the subscriber cannot keep up, after which the bus
// evicts it from the topic.
type Subscriber interface {
	ID() string
	Deliver(topic string, msg *model.WireMessage) bool
}

// Publisher is the write side of the bus. The in-memory Bus implements it
// directly; RedisBridge implements it for multi-process setups.
type Publisher interface {
	Publish(topic string, msg *model.WireMessage)
}

// Bus is an in-memory topic fan-out. One mutex serializes all publishes, so
// every subscriber observes a topic's messages in publish order; delivery is
// a non-blocking channel send, so nothing slow ever runs under the lock.
// There is no persistence: a subscriber that is not attached at publish time
// misses the message.
type Bus struct {
	mu     sync.Mutex
	topics map[string][]Subscriber
}

func New() *Bus {
	return &Bus{topics: make(map[string][]Subscriber)}
}

// Subscribe attaches sub to the topic. A subscriber with the same ID replaces
// the previous attachment.
func (b *Bus) Subscribe(name string, sub Subscriber) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.topics[name]
	for i, existing := range subs {
		if existing.ID() == sub.ID() {
			subs[i] = sub
			return
		}
	}
	b.topics[name] = append(subs, sub)
}

func (b *Bus) Unsubscribe(name, subscriberID string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs := b.topics[name]
	for i, sub := range subs {
		if sub.ID() == subscriberID {
			subs = append(subs[:i], subs[i+1:]...)
			break
		}
	}
	if len(subs) == 0 {
		delete(b.topics, name)
		return
	}
	b.topics[name] = subs
}

// Publish fans msg out to every current subscriber of the topic. Subscribers
// that fail delivery are evicted, matching the slow-client policy of the
// transport layer.
func (b *Bus) Publish(name string, msg *model.WireMessage) {
	b.mu.Lock()
	defer b.mu.Unlock()
	subs, ok := b.topics[name]
	if !ok {
		return
	}

	kept := subs[:0]
	delivered := 0
	for _, sub := range subs {
		if sub.Deliver(name, msg) {
			kept = append(kept, sub)
			delivered++
		} else {
			log.Printf("bus: evicting slow subscriber %s from %s", sub.ID(), name)
			incEvicted()
		}
	}

	if len(kept) == 0 {
		delete(b.topics, name)
	} else {
		b.topics[name] = kept
	}
	if delivered > 0 {
		addDelivered(delivered)
	}
}

// Subscribers reports the current subscriber count of a topic.
func (b *Bus) Subscribers(name string) int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.topics[name])
}
