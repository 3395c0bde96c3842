package services

import (
	"context"
	"time"

	"github.com/j-veylop/llm-quota-governor/internal/logger"
	"github.com/j-veylop/llm-quota-governor/internal/models"
)

const (
	recorderBatchSize     = 64
	recorderFlushInterval = 500 * time.Millisecond
)

// EventStore persists rate limit events.
type EventStore interface {
	InsertEvents(ctx context.Context, evs []models.RateLimitEvent) error
}

// Recorder drains an event stream into a store in small batches so the
// publishing goroutine never waits on disk.
type Recorder struct {
	store       EventStore
	events      <-chan models.RateLimitEvent
	unsubscribe func()
	done        chan struct{}
}

// NewRecorder creates a recorder for a channel subscription.
func NewRecorder(store EventStore, events <-chan models.RateLimitEvent, unsubscribe func()) *Recorder {
	return &Recorder{
		store:       store,
		events:      events,
		unsubscribe: unsubscribe,
		done:        make(chan struct{}),
	}
}

// Start runs the recorder until the subscription is closed.
func (r *Recorder) Start() {
	go r.run()
}

func (r *Recorder) run() {
	defer close(r.done)

	ticker := time.NewTicker(recorderFlushInterval)
	defer ticker.Stop()

	batch := make([]models.RateLimitEvent, 0, recorderBatchSize)
	flush := func() {
		if len(batch) == 0 {
			return
		}
		if err := r.store.InsertEvents(context.Background(), batch); err != nil {
			logger.Error("failed to record events", "count", len(batch), "error", err)
		}
		batch = batch[:0]
	}

	for {
		select {
		case ev, ok := <-r.events:
			if !ok {
				flush()
				return
			}
			batch = append(batch, ev)
			if len(batch) >= recorderBatchSize {
				flush()
			}
		case <-ticker.C:
			flush()
		}
	}
}

// Close ends the subscription and waits until queued events are written.
func (r *Recorder) Close() {
	r.unsubscribe()
	<-r.done
}
