// Package events provides the in-process publish/subscribe channel for rate limit events.
package events

import (
	"sync"

	"github.com/j-veylop/llm-quota-governor/internal/models"
)

// Handler receives published events on the publishing goroutine. It must not block.
type Handler func(models.RateLimitEvent)

type subscription struct {
	handler Handler
	id      uint64
}

// Bus fans events out to subscribers in registration order. The subscriber
// list is copy-on-write, so Publish never holds the lock while handlers run.
type Bus struct {
	subs   []subscription
	nextID uint64
	mu     sync.Mutex
}

// NewBus creates an empty bus.
func NewBus() *Bus {
	return &Bus{}
}

// Subscribe registers handler and returns a function that removes it.
// The returned function may be called more than once.
func (b *Bus) Subscribe(handler Handler) (unsubscribe func()) {
	b.mu.Lock()
	b.nextID++
	id := b.nextID
	subs := make([]subscription, len(b.subs), len(b.subs)+1)
	copy(subs, b.subs)
	b.subs = append(subs, subscription{id: id, handler: handler})
	b.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() { b.remove(id) })
	}
}

func (b *Bus) remove(id uint64) {
	b.mu.Lock()
	defer b.mu.Unlock()

	subs := make([]subscription, 0, len(b.subs))
	for _, s := range b.subs {
		if s.id != id {
			subs = append(subs, s)
		}
	}
	b.subs = subs
}

// Publish delivers event to every current subscriber synchronously.
func (b *Bus) Publish(event models.RateLimitEvent) {
	b.mu.Lock()
	subs := b.subs
	b.mu.Unlock()

	for _, s := range subs {
		s.handler(event)
	}
}

// Len returns the number of subscribers.
func (b *Bus) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subs)
}

// SubscribeChan returns a buffered stream of events. When the buffer is full
// the oldest queued event is dropped so publishers never block. Unsubscribing
// closes the channel.
func (b *Bus) SubscribeChan(buffer int) (<-chan models.RateLimitEvent, func()) {
	if buffer <= 0 {
		buffer = 100
	}
	ch := make(chan models.RateLimitEvent, buffer)

	var mu sync.Mutex
	closed := false

	unsubscribe := b.Subscribe(func(event models.RateLimitEvent) {
		mu.Lock()
		defer mu.Unlock()
		if closed {
			return
		}
		select {
		case ch <- event:
			return
		default:
		}
		// Channel full, drop oldest
		select {
		case <-ch:
		default:
		}
		select {
		case ch <- event:
		default:
		}
	})

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			unsubscribe()
			mu.Lock()
			closed = true
			close(ch)
			mu.Unlock()
		})
	}
}
