// Package metrics derives adaptive statistics and usage predictions from the event stream.
package metrics

import (
	"slices"
	"sync"
	"time"

	"github.com/j-veylop/llm-quota-governor/internal/clock"
	"github.com/j-veylop/llm-quota-governor/internal/models"
)

const (
	// DefaultMaxEvents bounds the per-provider event window by count.
	DefaultMaxEvents = 1000
	// DefaultMaxAge bounds the per-provider event window by age.
	DefaultMaxAge = 60 * time.Minute
	// DefaultMaxSamples bounds the usage samples kept for prediction.
	DefaultMaxSamples = 20

	throughputWindow = time.Minute
)

// Config holds configuration for the aggregator.
type Config struct {
	MaxEvents  int
	MaxAge     time.Duration
	MaxSamples int
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		MaxEvents:  DefaultMaxEvents,
		MaxAge:     DefaultMaxAge,
		MaxSamples: DefaultMaxSamples,
	}
}

// Aggregator holds no authoritative state: it is a bounded cache of recent
// events and usage samples from which metrics are recomputed on demand.
type Aggregator struct {
	clock     clock.Clock
	providers map[string]*window
	config    Config
	mu        sync.Mutex
}

type window struct {
	events  []models.RateLimitEvent
	samples []sample
}

type sample struct {
	at       time.Time
	requests models.QuotaUsage
	tokens   models.QuotaUsage
}

// New creates an aggregator. A nil clock uses the system clock.
func New(clk clock.Clock, config Config) *Aggregator {
	if clk == nil {
		clk = clock.System{}
	}
	def := DefaultConfig()
	if config.MaxEvents <= 0 {
		config.MaxEvents = def.MaxEvents
	}
	if config.MaxAge <= 0 {
		config.MaxAge = def.MaxAge
	}
	if config.MaxSamples <= 1 {
		config.MaxSamples = def.MaxSamples
	}
	return &Aggregator{
		clock:     clk,
		providers: make(map[string]*window),
		config:    config,
	}
}

// Handle records an event. It is meant to be subscribed to the event bus.
func (a *Aggregator) Handle(event models.RateLimitEvent) {
	a.mu.Lock()
	defer a.mu.Unlock()

	w := a.window(event.Provider)
	w.events = append(w.events, event)
	if over := len(w.events) - a.config.MaxEvents; over > 0 {
		w.events = slices.Delete(w.events, 0, over)
	}
}

// Observe stores a usage sample for prediction.
func (a *Aggregator) Observe(requests, tokens models.QuotaUsage) {
	a.mu.Lock()
	defer a.mu.Unlock()

	w := a.window(requests.Provider)
	w.samples = append(w.samples, sample{
		at:       a.clock.Now(),
		requests: requests,
		tokens:   tokens,
	})
	if over := len(w.samples) - a.config.MaxSamples; over > 0 {
		w.samples = slices.Delete(w.samples, 0, over)
	}
}

// Metrics computes rolling statistics for a provider over the sliding window.
func (a *Aggregator) Metrics(provider string) models.AdaptiveMetrics {
	a.mu.Lock()
	defer a.mu.Unlock()

	now := a.clock.Now()
	w, ok := a.providers[provider]
	if !ok {
		return models.AdaptiveMetrics{}
	}
	a.evict(w, now)

	var (
		successes, failures, granted int
		latencySum                   time.Duration
		latencyCount                 int
	)
	throughputCutoff := now.Add(-throughputWindow)

	for _, ev := range w.events {
		switch ev.Type {
		case models.EventSuccess:
			successes++
		case models.EventError:
			failures++
		case models.EventPermissionGranted:
			if !ev.Timestamp.Before(throughputCutoff) {
				granted++
			}
		}
		if (ev.Type == models.EventSuccess || ev.Type == models.EventError) && ev.Latency > 0 {
			latencySum += ev.Latency
			latencyCount++
		}
	}

	m := models.AdaptiveMetrics{
		Throughput: float64(granted),
		Samples:    len(w.events),
	}
	if attempts := successes + failures; attempts > 0 {
		m.SuccessRate = float64(successes) / float64(attempts)
		m.ErrorRate = float64(failures) / float64(attempts)
	}
	if latencyCount > 0 {
		m.AverageResponseTime = latencySum / time.Duration(latencyCount)
	}
	return m
}

// Providers returns the providers with recorded events or samples, sorted.
func (a *Aggregator) Providers() []string {
	a.mu.Lock()
	defer a.mu.Unlock()

	names := make([]string, 0, len(a.providers))
	for name := range a.providers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Reset drops everything recorded for a provider.
func (a *Aggregator) Reset(provider string) {
	a.mu.Lock()
	delete(a.providers, provider)
	a.mu.Unlock()
}

func (a *Aggregator) window(provider string) *window {
	w, ok := a.providers[provider]
	if !ok {
		w = &window{}
		a.providers[provider] = w
	}
	return w
}

func (a *Aggregator) evict(w *window, now time.Time) {
	cutoff := now.Add(-a.config.MaxAge)
	i := 0
	for i < len(w.events) && w.events[i].Timestamp.Before(cutoff) {
		i++
	}
	if i > 0 {
		w.events = slices.Delete(w.events, 0, i)
	}
}
