package config

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/j-veylop/llm-quota-governor/internal/alerts"
	"github.com/j-veylop/llm-quota-governor/internal/governor"
)

// Limits is the YAML limits file. Durations are written like "60s" or "2m".
//
//	window: 60s
//	providers:
//	  gemini:
//	    requests_per_minute: 100
//	    tokens_per_minute: 100000
//	    error_threshold: 3
//	alerts:
//	  requests_warning: 5
type Limits struct {
	Providers      map[string]governor.ProviderConfig `yaml:"providers"`
	Default        governor.ProviderConfig            `yaml:"default"`
	Alerts         alerts.Thresholds                  `yaml:"alerts"`
	Window         time.Duration                      `yaml:"window"`
	PollInterval   time.Duration                      `yaml:"poll_interval"`
	ReservationTTL time.Duration                      `yaml:"reservation_ttl"`
}

// DefaultLimits returns limits with no providers and default tuning.
func DefaultLimits() *Limits {
	return &Limits{
		Providers:      make(map[string]governor.ProviderConfig),
		Alerts:         alerts.DefaultThresholds(),
		Window:         governor.DefaultWindow,
		PollInterval:   governor.DefaultPollInterval,
		ReservationTTL: governor.DefaultReservationTTL,
	}
}

// LoadLimits reads and validates a limits file.
func LoadLimits(path string) (*Limits, error) {
	b, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read limits file: %w", err)
	}
	l, err := ParseLimits(b)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", path, err)
	}
	return l, nil
}

// ParseLimits decodes limits over the defaults and validates them. Fields
// missing from the document keep their defaults.
func ParseLimits(data []byte) (*Limits, error) {
	l := DefaultLimits()
	if err := yaml.Unmarshal(data, l); err != nil {
		return nil, fmt.Errorf("%w: %w", governor.ErrConfiguration, err)
	}
	if l.Providers == nil {
		l.Providers = make(map[string]governor.ProviderConfig)
	}
	if err := l.GovernorConfig().Validate(); err != nil {
		return nil, err
	}
	return l, nil
}

// GovernorConfig converts the file into a governor configuration.
func (l *Limits) GovernorConfig() governor.Config {
	cfg := governor.DefaultConfig()
	for name, p := range l.Providers {
		cfg.Providers[name] = p
	}
	cfg.Default = l.Default
	cfg.Alerts = l.Alerts
	cfg.Window = l.Window
	cfg.PollInterval = l.PollInterval
	cfg.ReservationTTL = l.ReservationTTL
	return cfg
}
