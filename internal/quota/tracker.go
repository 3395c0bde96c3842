// Package quota tracks per-provider resource usage across fixed quota windows.
package quota

import (
	"errors"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/j-veylop/llm-quota-governor/internal/clock"
	"github.com/j-veylop/llm-quota-governor/internal/models"
)

var (
	// ErrUnknownProvider is returned for a provider with no configured or default limits.
	ErrUnknownProvider = errors.New("unknown provider")
	// ErrClockSkew is returned when the clock reads earlier than the current window start.
	ErrClockSkew = errors.New("clock moved behind quota window")
	// ErrNegativeAmount is returned when usage would be decreased.
	ErrNegativeAmount = errors.New("usage amount must not be negative")
)

// Config holds configuration for the tracker.
type Config struct {
	Providers map[string]Limits
	// Default applies to providers without explicit limits. Zero limits make
	// unknown providers an error.
	Default Limits
	Window  time.Duration
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Providers: make(map[string]Limits),
		Window:    time.Minute,
	}
}

// Tracker owns the QuotaUsage records. Window rollover is lazy: every read and
// write first rolls an elapsed window, so no timer is needed for correctness.
type Tracker struct {
	clock     clock.Clock
	providers map[string]*providerQuota
	limits    map[string]Limits
	defaults  Limits
	window    clock.Window
	mu        sync.RWMutex
}

type providerQuota struct {
	usage    map[models.ResourceType]*usage
	limits   Limits
	strategy models.Strategy
	mu       sync.Mutex
}

type usage struct {
	windowStart time.Time
	used        int64
}

// New creates a tracker. A nil clock uses the system clock.
func New(clk clock.Clock, config Config) *Tracker {
	if clk == nil {
		clk = clock.System{}
	}
	if config.Window <= 0 {
		config.Window = DefaultConfig().Window
	}

	limits := make(map[string]Limits, len(config.Providers))
	for name, l := range config.Providers {
		limits[name] = l
	}

	return &Tracker{
		clock:     clk,
		providers: make(map[string]*providerQuota),
		limits:    limits,
		defaults:  config.Default,
		window:    clock.Window{Length: config.Window},
	}
}

// Window returns the configured window length.
func (t *Tracker) Window() time.Duration {
	return t.window.Length
}

// RecordUsage adds amount to the current window of (provider, resource),
// rolling the window first if it has elapsed.
func (t *Tracker) RecordUsage(provider string, resource models.ResourceType, amount int64) error {
	if amount < 0 {
		return fmt.Errorf("%w: %d", ErrNegativeAmount, amount)
	}

	pq, err := t.provider(provider)
	if err != nil {
		return err
	}

	pq.mu.Lock()
	defer pq.mu.Unlock()

	u, err := t.current(pq, resource)
	if err != nil {
		return fmt.Errorf("record usage for %s/%s: %w", provider, resource, err)
	}
	u.used += amount
	return nil
}

// Usage returns a snapshot of (provider, resource) after the lazy window roll.
func (t *Tracker) Usage(provider string, resource models.ResourceType) (models.QuotaUsage, error) {
	pq, err := t.provider(provider)
	if err != nil {
		return models.QuotaUsage{}, err
	}

	pq.mu.Lock()
	defer pq.mu.Unlock()

	u, err := t.current(pq, resource)
	if err != nil {
		return models.QuotaUsage{}, fmt.Errorf("usage for %s/%s: %w", provider, resource, err)
	}
	return t.snapshot(provider, resource, pq, u), nil
}

// SetLimits replaces the configured limits of a provider. Usage in the
// current window is kept.
func (t *Tracker) SetLimits(provider string, limits Limits) {
	t.mu.Lock()
	t.limits[provider] = limits
	pq := t.providers[provider]
	t.mu.Unlock()

	if pq != nil {
		pq.mu.Lock()
		pq.limits = limits
		pq.mu.Unlock()
	}
}

// SetStrategy changes the strategy whose cap factor scales the provider's limits.
func (t *Tracker) SetStrategy(provider string, strategy models.Strategy) error {
	pq, err := t.provider(provider)
	if err != nil {
		return err
	}
	pq.mu.Lock()
	pq.strategy = strategy
	pq.mu.Unlock()
	return nil
}

// Strategy returns the strategy currently applied to a provider's caps.
func (t *Tracker) Strategy(provider string) (models.Strategy, error) {
	pq, err := t.provider(provider)
	if err != nil {
		return "", err
	}
	pq.mu.Lock()
	defer pq.mu.Unlock()
	return pq.strategy, nil
}

// Providers returns the names of all providers with usage records, sorted.
func (t *Tracker) Providers() []string {
	t.mu.RLock()
	defer t.mu.RUnlock()

	names := make([]string, 0, len(t.providers))
	for name := range t.providers {
		names = append(names, name)
	}
	slices.Sort(names)
	return names
}

// Snapshot returns the usage of every tracked (provider, resource) pair.
func (t *Tracker) Snapshot() []models.QuotaUsage {
	var out []models.QuotaUsage
	for _, name := range t.Providers() {
		for _, res := range models.Resources {
			u, err := t.Usage(name, res)
			if err != nil {
				continue
			}
			out = append(out, u)
		}
	}
	return out
}

// Restore seeds usage from a stored snapshot. It only applies when the stored
// window is still the current one and reports whether it did.
func (t *Tracker) Restore(stored models.QuotaUsage) bool {
	if stored.Used <= 0 {
		return false
	}
	pq, err := t.provider(stored.Provider)
	if err != nil {
		return false
	}

	pq.mu.Lock()
	defer pq.mu.Unlock()

	u, err := t.current(pq, stored.Resource)
	if err != nil || !u.windowStart.Equal(stored.WindowStart) {
		return false
	}
	if stored.Used > u.used {
		u.used = stored.Used
	}
	return true
}

func (t *Tracker) provider(name string) (*providerQuota, error) {
	t.mu.RLock()
	pq, ok := t.providers[name]
	t.mu.RUnlock()
	if ok {
		return pq, nil
	}

	t.mu.Lock()
	defer t.mu.Unlock()

	if pq, ok := t.providers[name]; ok {
		return pq, nil
	}

	limits, ok := t.limits[name]
	if !ok {
		limits = t.defaults
	}
	if limits.IsZero() {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, name)
	}

	pq = &providerQuota{
		usage:    make(map[models.ResourceType]*usage, len(models.Resources)),
		limits:   limits,
		strategy: models.StrategyBalanced,
	}
	t.providers[name] = pq
	return pq, nil
}

// current returns the usage record for resource with any elapsed window rolled.
// The caller holds pq.mu.
func (t *Tracker) current(pq *providerQuota, resource models.ResourceType) (*usage, error) {
	now := t.clock.Now()

	u, ok := pq.usage[resource]
	if !ok {
		u = &usage{windowStart: now.Truncate(t.window.Length)}
		pq.usage[resource] = u
	}

	if now.Before(u.windowStart) {
		return nil, ErrClockSkew
	}
	if t.window.Expired(u.windowStart, now) {
		u.windowStart = t.window.Align(u.windowStart, now)
		u.used = 0
	}
	return u, nil
}

func (t *Tracker) snapshot(provider string, resource models.ResourceType, pq *providerQuota, u *usage) models.QuotaUsage {
	return models.QuotaUsage{
		Provider:    provider,
		Resource:    resource,
		Used:        u.used,
		Limit:       EffectiveLimit(pq.limits.For(resource), t.window.Length, pq.strategy),
		WindowStart: u.windowStart,
		Window:      t.window.Length,
	}
}
