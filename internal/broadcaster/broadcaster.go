// Package broadcaster fans out values to subscribers without blocking the sender.
package broadcaster

import (
	"sync"

	"github.com/google/uuid"
)

// DefaultBuffer is the per-subscriber channel capacity.
const DefaultBuffer = 100

// Subscriber receives published values on Events until it unsubscribes or
// the broadcaster closes.
type Subscriber[T any] struct {
	ID     string
	Events chan T
}

// Broadcaster manages subscribers and distributes values to them.
type Broadcaster[T any] struct {
	mu          sync.RWMutex
	subscribers map[string]*Subscriber[T]
	buffer      int
	closed      bool
}

// New creates a Broadcaster whose subscribers buffer up to buffer values.
func New[T any](buffer int) *Broadcaster[T] {
	if buffer <= 0 {
		buffer = DefaultBuffer
	}
	return &Broadcaster[T]{
		subscribers: make(map[string]*Subscriber[T]),
		buffer:      buffer,
	}
}

// Subscribe registers a new subscriber. Returns nil after Close.
func (b *Broadcaster[T]) Subscribe() *Subscriber[T] {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return nil
	}
	sub := &Subscriber[T]{
		ID:     uuid.New().String(),
		Events: make(chan T, b.buffer),
	}
	b.subscribers[sub.ID] = sub
	return sub
}

// Unsubscribe removes a subscription and closes its channel.
func (b *Broadcaster[T]) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if sub, ok := b.subscribers[id]; ok {
		close(sub.Events)
		delete(b.subscribers, id)
	}
}

// Notify delivers v to every subscriber without blocking. When a
// subscriber's buffer is full its oldest pending value is dropped so the
// newest one always gets through.
func (b *Broadcaster[T]) Notify(v T) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	for _, sub := range b.subscribers {
		select {
		case sub.Events <- v:
			continue
		default:
		}
		select {
		case <-sub.Events:
		default:
		}
		select {
		case sub.Events <- v:
		default:
		}
	}
}

// Close closes the broadcaster and all subscriptions.
func (b *Broadcaster[T]) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()

	if b.closed {
		return
	}
	b.closed = true
	for _, sub := range b.subscribers {
		close(sub.Events)
	}
	b.subscribers = make(map[string]*Subscriber[T])
}

// SubscriberCount returns the number of active subscribers.
func (b *Broadcaster[T]) SubscriberCount() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return len(b.subscribers)
}
