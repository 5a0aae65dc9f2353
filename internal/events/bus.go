package events

import (
	"sync"

	"call-compass-go/internal/logger"
	"call-compass-go/internal/metrics"
)

// Handler receives events. It runs on the publisher's goroutine.
type Handler func(Event)

// Publisher is what producers of events depend on.
type Publisher interface {
	Publish(Event)
}

type subscription struct {
	id uint64
	fn Handler
}

// Bus is an in-process, synchronous publish/subscribe channel. Publish returns after every
// subscriber has run. Nothing is deduplicated.
type Bus struct {
	mu     sync.RWMutex
	nextID uint64
	subs   []subscription
	log    *logger.Logger
}

func NewBus(log *logger.Logger) *Bus {
	if log == nil {
		log = logger.New()
	}
	return &Bus{log: log.WithComponent("events")}
}

// Subscribe registers fn and returns the function that detaches it. Calling the returned
// function more than once is harmless.
func (b *Bus) Subscribe(fn Handler) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	b.subs = append(b.subs, subscription{id: id, fn: fn})
	b.mu.Unlock()
	metrics.Subscribers.Inc()

	var once sync.Once
	return func() {
		once.Do(func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			for i, s := range b.subs {
				if s.id == id {
					b.subs = append(b.subs[:i:i], b.subs[i+1:]...)
					metrics.Subscribers.Dec()
					return
				}
			}
		})
	}
}

// Publish delivers ev to every current subscriber in subscription order. A subscriber may
// unsubscribe or publish from inside its handler.
func (b *Bus) Publish(ev Event) {
	b.mu.RLock()
	subs := make([]subscription, len(b.subs))
	copy(subs, b.subs)
	b.mu.RUnlock()

	metrics.EventsPublished.WithLabelValues(string(ev.Kind())).Inc()
	b.log.WithField("kind", ev.Kind()).WithField("subscribers", len(subs)).Debug("event published")
	for _, s := range subs {
		b.deliver(s, ev)
	}
}

func (b *Bus) deliver(s subscription, ev Event) {
	defer func() {
		if r := recover(); r != nil {
			b.log.WithField("kind", ev.Kind()).WithField("panic", r).Error("subscriber panicked")
		}
	}()
	s.fn(ev)
}

// Len returns the number of active subscribers.
func (b *Bus) Len() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subs)
}
