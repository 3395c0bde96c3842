package events

import (
	"sync"

	"github.com/j-veylop/llm-quota-governor/internal/models"
)

// DefaultRingSize is the event history kept for UIs.
const DefaultRingSize = 100

// Ring keeps the most recent events in a fixed-size circular buffer.
type Ring struct {
	events []models.RateLimitEvent
	head   int
	count  int
	mu     sync.Mutex
}

// NewRing creates a ring holding up to size events.
func NewRing(size int) *Ring {
	if size <= 0 {
		size = DefaultRingSize
	}
	return &Ring{events: make([]models.RateLimitEvent, size)}
}

// Handle appends an event, evicting the oldest when full. It matches Handler.
func (r *Ring) Handle(event models.RateLimitEvent) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.events[r.head] = event
	r.head = (r.head + 1) % len(r.events)
	if r.count < len(r.events) {
		r.count++
	}
}

// Recent returns up to limit events, newest first. A limit <= 0 returns all.
func (r *Ring) Recent(limit int) []models.RateLimitEvent {
	r.mu.Lock()
	defer r.mu.Unlock()

	if limit <= 0 || limit > r.count {
		limit = r.count
	}
	out := make([]models.RateLimitEvent, 0, limit)
	for i := 1; i <= limit; i++ {
		idx := (r.head - i + len(r.events)) % len(r.events)
		out = append(out, r.events[idx])
	}
	return out
}

// Len returns the number of stored events.
func (r *Ring) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.count
}
