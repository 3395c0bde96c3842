// Package governor arbitrates outbound LLM API calls against quota, adapting
// backoff and strategy to observed errors and predicted exhaustion.
package governor

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"slices"
	"sync"
	"time"

	"github.com/j-veylop/llm-quota-governor/internal/alerts"
	"github.com/j-veylop/llm-quota-governor/internal/clock"
	"github.com/j-veylop/llm-quota-governor/internal/events"
	"github.com/j-veylop/llm-quota-governor/internal/metrics"
	"github.com/j-veylop/llm-quota-governor/internal/models"
	"github.com/j-veylop/llm-quota-governor/internal/quota"
)

// Exporter receives provider snapshots on every monitor tick.
type Exporter interface {
	Export(ctx context.Context, snapshots []models.ProviderSnapshot) error
}

// ExporterFunc adapts a function to Exporter.
type ExporterFunc func(ctx context.Context, snapshots []models.ProviderSnapshot) error

// Export calls f.
func (f ExporterFunc) Export(ctx context.Context, snapshots []models.ProviderSnapshot) error {
	return f(ctx, snapshots)
}

// Exporters fans snapshots out to every exporter and joins their errors.
func Exporters(list ...Exporter) Exporter {
	return ExporterFunc(func(ctx context.Context, snapshots []models.ProviderSnapshot) error {
		var errs []error
		for _, e := range list {
			if err := e.Export(ctx, snapshots); err != nil {
				errs = append(errs, err)
			}
		}
		return errors.Join(errs...)
	})
}

// Option configures optional collaborators of a Governor.
type Option func(*Governor)

// WithClock replaces the system clock.
func WithClock(clk clock.Clock) Option {
	return func(g *Governor) { g.clock = clk }
}

// WithRand replaces the jitter source. f must return values in [0, 1).
func WithRand(f func() float64) Option {
	return func(g *Governor) { g.rand = f }
}

// WithNotifier delivers raised alerts.
func WithNotifier(n alerts.Notifier) Option {
	return func(g *Governor) { g.notifier = n }
}

// WithExporter exports snapshots on every monitor tick.
func WithExporter(e Exporter) Option {
	return func(g *Governor) { g.exporter = e }
}

// Governor is the rate limiting manager. RequestPermission and ReportOutcome
// serialize per provider, so unrelated providers never contend.
type Governor struct {
	clock      clock.Clock
	tracker    *quota.Tracker
	bus        *events.Bus
	aggregator *metrics.Aggregator
	alerts     *alerts.Set
	notifier   alerts.Notifier
	exporter   Exporter
	rand       func() float64
	sleep      func(ctx context.Context, d time.Duration) error
	providers  map[string]*providerState
	config     Config
	thresholds alerts.Thresholds
	mu         sync.RWMutex

	// refreshMu serializes monitor passes so exported snapshots stay ordered.
	refreshMu sync.Mutex
	runMu     sync.Mutex
	cancel    context.CancelFunc
	done      chan struct{}
}

// New creates a governor from a validated configuration.
func New(config Config, opts ...Option) (*Governor, error) {
	def := DefaultConfig()
	if config.Window == 0 {
		config.Window = def.Window
	}
	if config.PollInterval == 0 {
		config.PollInterval = def.PollInterval
	}
	if config.ReservationTTL == 0 {
		config.ReservationTTL = def.ReservationTTL
	}
	if err := config.Validate(); err != nil {
		return nil, err
	}

	g := &Governor{
		clock:      clock.System{},
		bus:        events.NewBus(),
		alerts:     alerts.NewSet(),
		rand:       rand.Float64,
		sleep:      sleepContext,
		providers:  make(map[string]*providerState, len(config.Providers)),
		config:     config,
		thresholds: config.Alerts,
	}
	for _, opt := range opts {
		opt(g)
	}

	g.tracker = quota.New(g.clock, config.quotaConfig())
	g.aggregator = metrics.New(g.clock, config.Metrics)
	g.bus.Subscribe(g.aggregator.Handle)

	for name, p := range config.Providers {
		warnZeroBudgets(name, p)
		g.providers[name] = newProviderState(name, p.withDefaults())
	}
	warnZeroBudgets("default", config.Default)
	return g, nil
}

// Subscribe registers a handler for every event the governor publishes.
func (g *Governor) Subscribe(handler events.Handler) (unsubscribe func()) {
	return g.bus.Subscribe(handler)
}

// SubscribeChan returns a buffered event stream that drops the oldest event when full.
func (g *Governor) SubscribeChan(buffer int) (<-chan models.RateLimitEvent, func()) {
	return g.bus.SubscribeChan(buffer)
}

// Providers returns the names of all known providers, sorted.
func (g *Governor) Providers() []string {
	g.mu.RLock()
	defer g.mu.RUnlock()

	names := make([]string, 0, len(g.providers))
	for name := range g.providers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Usage returns the tracker's view of (provider, resource).
func (g *Governor) Usage(provider string, resource models.ResourceType) (models.QuotaUsage, error) {
	return g.tracker.Usage(provider, resource)
}

// Restore seeds tracker usage from a stored snapshot and reports whether it applied.
func (g *Governor) Restore(stored models.QuotaUsage) bool {
	if _, err := g.provider(stored.Provider); err != nil {
		return false
	}
	return g.tracker.Restore(stored)
}

// Status returns the read projection of a provider.
func (g *Governor) Status(provider string) (models.RateLimitStatus, error) {
	ps, err := g.provider(provider)
	if err != nil {
		return models.RateLimitStatus{}, err
	}
	req, tok, err := g.usage(provider)
	if err != nil {
		return models.RateLimitStatus{}, err
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()
	return ps.status(g.clock.Now(), req, tok), nil
}

// Metrics returns the rolling statistics of a provider.
func (g *Governor) Metrics(provider string) models.AdaptiveMetrics {
	m := g.aggregator.Metrics(provider)
	if ps, err := g.provider(provider); err == nil {
		ps.mu.Lock()
		m.LastAdjustment = ps.lastAdjustment
		ps.mu.Unlock()
	}
	return m
}

// Prediction returns the usage prediction of a provider.
func (g *Governor) Prediction(provider string) models.UsagePrediction {
	return g.aggregator.Predict(provider)
}

// Alerts returns the active alerts.
func (g *Governor) Alerts() []models.Alert {
	return g.alerts.Active()
}

// DismissAlert removes an active alert and reports whether it existed.
func (g *Governor) DismissAlert(id string) bool {
	return g.alerts.Dismiss(id)
}

// SetAlertThresholds replaces the thresholds used from the next evaluation on.
func (g *Governor) SetAlertThresholds(th alerts.Thresholds) {
	g.mu.Lock()
	g.thresholds = th
	g.mu.Unlock()
}

// AlertThresholds returns the current thresholds.
func (g *Governor) AlertThresholds() alerts.Thresholds {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.thresholds
}

// UpdateProvider replaces the configuration of a provider. Usage, error
// counts and any active backoff are kept.
func (g *Governor) UpdateProvider(name string, config ProviderConfig) error {
	if name == "" || config.Limits.IsZero() {
		return fmt.Errorf("%w: provider %q needs limits", ErrConfiguration, name)
	}
	if err := config.Validate(); err != nil {
		return fmt.Errorf("provider %q: %w", name, err)
	}
	config = config.withDefaults()
	warnZeroBudgets(name, config)

	g.tracker.SetLimits(name, config.Limits)

	g.mu.Lock()
	ps, ok := g.providers[name]
	if !ok {
		ps = newProviderState(name, config)
		g.providers[name] = ps
	}
	g.mu.Unlock()

	if ok {
		ps.mu.Lock()
		ps.config = config
		ps.retune()
		ps.mu.Unlock()
	}
	return nil
}

// Snapshot returns the full view of every provider.
func (g *Governor) Snapshot() []models.ProviderSnapshot {
	names := g.Providers()
	out := make([]models.ProviderSnapshot, 0, len(names))
	for _, name := range names {
		snap, err := g.snapshot(name)
		if err != nil {
			continue
		}
		out = append(out, snap)
	}
	return out
}

func (g *Governor) snapshot(provider string) (models.ProviderSnapshot, error) {
	ps, err := g.provider(provider)
	if err != nil {
		return models.ProviderSnapshot{}, err
	}
	req, tok, err := g.usage(provider)
	if err != nil {
		return models.ProviderSnapshot{}, err
	}

	now := g.clock.Now()
	ps.mu.Lock()
	status := ps.status(now, req, tok)
	ps.mu.Unlock()

	return models.ProviderSnapshot{
		Timestamp:  now,
		Requests:   req,
		Tokens:     tok,
		Status:     status,
		Metrics:    g.Metrics(provider),
		Prediction: g.Prediction(provider),
	}, nil
}

// provider returns the state of a known provider, creating it for providers
// covered by the default limits.
func (g *Governor) provider(name string) (*providerState, error) {
	g.mu.RLock()
	ps, ok := g.providers[name]
	g.mu.RUnlock()
	if ok {
		return ps, nil
	}

	if name == "" || g.config.Default.Limits.IsZero() {
		return nil, fmt.Errorf("%w: %q", quota.ErrUnknownProvider, name)
	}

	g.mu.Lock()
	defer g.mu.Unlock()
	if ps, ok := g.providers[name]; ok {
		return ps, nil
	}
	ps = newProviderState(name, g.config.Default.withDefaults())
	g.providers[name] = ps
	return ps, nil
}

func (g *Governor) usage(provider string) (req, tok models.QuotaUsage, err error) {
	req, err = g.tracker.Usage(provider, models.ResourceRequests)
	if err != nil {
		return req, tok, err
	}
	tok, err = g.tracker.Usage(provider, models.ResourceTokens)
	return req, tok, err
}

func (g *Governor) publish(evs []models.RateLimitEvent) {
	for _, ev := range evs {
		g.bus.Publish(ev)
	}
}
