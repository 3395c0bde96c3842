package governor

import (
	"fmt"
	"time"

	"github.com/j-veylop/llm-quota-governor/internal/alerts"
	"github.com/j-veylop/llm-quota-governor/internal/logger"
	"github.com/j-veylop/llm-quota-governor/internal/metrics"
	"github.com/j-veylop/llm-quota-governor/internal/models"
	"github.com/j-veylop/llm-quota-governor/internal/quota"
)

// Default values.
const (
	DefaultWindow         = time.Minute
	DefaultPollInterval   = 5 * time.Second
	DefaultReservationTTL = 2 * time.Minute
	DefaultErrorThreshold = 3
	DefaultBaseBackoff    = time.Second
	DefaultMaxBackoff     = 60 * time.Second
	DefaultJitter         = 0.15

	// MaxJitter keeps a jittered backoff from undercutting the previous one.
	MaxJitter = 0.3
)

// ProviderConfig holds the quota limits and backoff parameters of one provider.
// Zero adaptive fields take the defaults; a negative Jitter disables jitter.
type ProviderConfig struct {
	Limits         quota.Limits  `yaml:",inline"`
	ErrorThreshold int           `yaml:"error_threshold"`
	BaseBackoff    time.Duration `yaml:"base_backoff"`
	MaxBackoff     time.Duration `yaml:"max_backoff"`
	Jitter         float64       `yaml:"jitter"`
}

// Config holds configuration for the governor.
type Config struct {
	Providers map[string]ProviderConfig
	// Default applies to providers that are not listed. Zero limits make
	// unlisted providers an internal error.
	Default        ProviderConfig
	Window         time.Duration
	PollInterval   time.Duration
	ReservationTTL time.Duration
	Alerts         alerts.Thresholds
	Metrics        metrics.Config
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Providers:      make(map[string]ProviderConfig),
		Window:         DefaultWindow,
		PollInterval:   DefaultPollInterval,
		ReservationTTL: DefaultReservationTTL,
		Alerts:         alerts.DefaultThresholds(),
		Metrics:        metrics.DefaultConfig(),
	}
}

// withDefaults fills zero adaptive fields.
func (p ProviderConfig) withDefaults() ProviderConfig {
	if p.ErrorThreshold == 0 {
		p.ErrorThreshold = DefaultErrorThreshold
	}
	if p.BaseBackoff == 0 {
		p.BaseBackoff = DefaultBaseBackoff
	}
	if p.MaxBackoff == 0 {
		p.MaxBackoff = DefaultMaxBackoff
	}
	switch {
	case p.Jitter == 0:
		p.Jitter = DefaultJitter
	case p.Jitter < 0:
		p.Jitter = 0
	}
	return p
}

// Validate checks the provider configuration after defaults are applied.
func (p ProviderConfig) Validate() error {
	p = p.withDefaults()
	switch {
	case p.Limits.RequestsPerMinute < 0 || p.Limits.TokensPerMinute < 0:
		return fmt.Errorf("%w: limits must not be negative", ErrConfiguration)
	case p.ErrorThreshold < 1:
		return fmt.Errorf("%w: error threshold %d must be at least 1", ErrConfiguration, p.ErrorThreshold)
	case p.BaseBackoff < 0:
		return fmt.Errorf("%w: base backoff %s must not be negative", ErrConfiguration, p.BaseBackoff)
	case p.MaxBackoff < p.BaseBackoff:
		return fmt.Errorf("%w: max backoff %s is below base backoff %s", ErrConfiguration, p.MaxBackoff, p.BaseBackoff)
	case p.Jitter > MaxJitter:
		return fmt.Errorf("%w: jitter %.2f exceeds %.2f", ErrConfiguration, p.Jitter, MaxJitter)
	}
	return nil
}

// zeroBudgets returns the resources that get no budget while the other
// resource is limited. Every non-empty request for them is denied.
func (p ProviderConfig) zeroBudgets() []models.ResourceType {
	if p.Limits.IsZero() {
		return nil
	}
	var out []models.ResourceType
	for _, r := range []models.ResourceType{models.ResourceRequests, models.ResourceTokens} {
		if p.Limits.For(r) == 0 {
			out = append(out, r)
		}
	}
	return out
}

func warnZeroBudgets(name string, p ProviderConfig) {
	for _, r := range p.zeroBudgets() {
		logger.WithProvider(name).Warn("zero per-minute limit, every request for this resource will be denied",
			"resource", r)
	}
}

// Validate checks the whole configuration.
func (c Config) Validate() error {
	if c.Window <= 0 {
		return fmt.Errorf("%w: window must be positive", ErrConfiguration)
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("%w: poll interval must be positive", ErrConfiguration)
	}
	if c.ReservationTTL <= 0 {
		return fmt.Errorf("%w: reservation TTL must be positive", ErrConfiguration)
	}
	for name, p := range c.Providers {
		if name == "" {
			return fmt.Errorf("%w: empty provider name", ErrConfiguration)
		}
		if p.Limits.IsZero() {
			return fmt.Errorf("%w: provider %q has no limits", ErrConfiguration, name)
		}
		if err := p.Validate(); err != nil {
			return fmt.Errorf("provider %q: %w", name, err)
		}
	}
	if err := c.Default.Validate(); err != nil {
		return fmt.Errorf("default provider: %w", err)
	}
	return nil
}

func (c Config) quotaConfig() quota.Config {
	qc := quota.Config{
		Providers: make(map[string]quota.Limits, len(c.Providers)),
		Default:   c.Default.Limits,
		Window:    c.Window,
	}
	for name, p := range c.Providers {
		qc.Providers[name] = p.Limits
	}
	return qc
}
