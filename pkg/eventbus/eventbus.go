// Package eventbus implements the broadcast channel every handler and
// monitor publishes onto and every long-lived consumer (the engine loop,
// external observers) subscribes to.
package eventbus

import (
	"log"
	"sync"

	types "github.com/oif-solver/solver-core/pkg/solvertypes"
)

const defaultCapacity = 1000

// EventBus is a best-effort broadcast channel: Publish never blocks. A
// subscriber whose backlog fills drops its oldest buffered event to make
// room for the new one, rather than stall the publisher.
type EventBus struct {
	mu          sync.RWMutex
	subscribers map[int]chan types.SolverEvent
	nextID      int
	capacity    int
	logger      *log.Logger
}

// New constructs an EventBus with the given per-subscriber buffer capacity.
// A capacity of 0 selects a conservative default of 1000.
func New(capacity int, logger *log.Logger) *EventBus {
	if capacity <= 0 {
		capacity = defaultCapacity
	}
	return &EventBus{
		subscribers: make(map[int]chan types.SolverEvent),
		capacity:    capacity,
		logger:      logger,
	}
}

// Subscription is a handle returned by Subscribe. Call Close when done to
// release the underlying channel and stop receiving events.
type Subscription struct {
	id     int
	events <-chan types.SolverEvent
	bus    *EventBus
}

func (s *Subscription) Events() <-chan types.SolverEvent { return s.events }

func (s *Subscription) Close() {
	s.bus.unsubscribe(s.id)
}

// Subscribe registers a new listener. Events published before Subscribe
// returns are never delivered to it; events published after may still be
// dropped under backlog pressure (see Publish).
func (b *EventBus) Subscribe() *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	id := b.nextID
	b.nextID++
	ch := make(chan types.SolverEvent, b.capacity)
	b.subscribers[id] = ch

	return &Subscription{id: id, events: ch, bus: b}
}

func (b *EventBus) unsubscribe(id int) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if ch, ok := b.subscribers[id]; ok {
		delete(b.subscribers, id)
		close(ch)
	}
}

// Publish fans an event out to every current subscriber. It never blocks:
// a full subscriber channel has its oldest entry dropped to make room. If
// the bus has no subscribers this is a no-op.
func (b *EventBus) Publish(event types.SolverEvent) {
	b.mu.RLock()
	defer b.mu.RUnlock()

	for id, ch := range b.subscribers {
		b.deliver(id, ch, event)
	}
}

func (b *EventBus) deliver(id int, ch chan types.SolverEvent, event types.SolverEvent) {
	select {
	case ch <- event:
		return
	default:
	}

	// Backlog full: drop the oldest buffered event and retry once.
	select {
	case <-ch:
		if b.logger != nil {
			b.logger.Printf("[eventbus] subscriber %d backlog full, dropped oldest event", id)
		}
	default:
	}

	select {
	case ch <- event:
	default:
		if b.logger != nil {
			b.logger.Printf("[eventbus] subscriber %d still full after drop, dropping new event %s", id, event.Kind)
		}
	}
}

// SubscriberCount reports the current number of live subscriptions, used
// by the ops health endpoint.
func (b *EventBus) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
