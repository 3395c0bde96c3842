package services

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/j-veylop/llm-quota-governor/internal/events"
	"github.com/j-veylop/llm-quota-governor/internal/models"
)

type memoryStore struct {
	mu      sync.Mutex
	batches [][]models.RateLimitEvent
	err     error
}

func (s *memoryStore) InsertEvents(_ context.Context, evs []models.RateLimitEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, append([]models.RateLimitEvent(nil), evs...))
	return s.err
}

func (s *memoryStore) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, b := range s.batches {
		n += len(b)
	}
	return n
}

func TestRecorder_FlushesOnClose(t *testing.T) {
	bus := events.NewBus()
	store := &memoryStore{}
	ch, unsub := bus.SubscribeChan(500)

	r := NewRecorder(store, ch, unsub)
	r.Start()

	for i := 0; i < 150; i++ {
		bus.Publish(models.RateLimitEvent{Provider: "gemini", Type: models.EventSuccess})
	}
	r.Close()

	if got := store.count(); got != 150 {
		t.Errorf("recorded %d events, want 150", got)
	}
	for i, b := range store.batches {
		if len(b) > recorderBatchSize {
			t.Errorf("batch %d has %d events, want at most %d", i, len(b), recorderBatchSize)
		}
	}
}

func TestRecorder_StoreErrorKeepsRunning(t *testing.T) {
	bus := events.NewBus()
	store := &memoryStore{err: errors.New("disk full")}
	ch, unsub := bus.SubscribeChan(10)

	r := NewRecorder(store, ch, unsub)
	r.Start()
	bus.Publish(models.RateLimitEvent{Provider: "gemini", Type: models.EventError})
	r.Close()

	if got := store.count(); got != 1 {
		t.Errorf("attempted %d events, want 1", got)
	}
}
