package quota

import (
	"time"

	"github.com/j-veylop/llm-quota-governor/internal/models"
)

// Limits are the configured per-minute quotas of a provider.
type Limits struct {
	RequestsPerMinute int64 `yaml:"requests_per_minute"`
	TokensPerMinute   int64 `yaml:"tokens_per_minute"`
}

// For returns the per-minute limit of a resource.
func (l Limits) For(resource models.ResourceType) int64 {
	if resource == models.ResourceTokens {
		return l.TokensPerMinute
	}
	return l.RequestsPerMinute
}

// IsZero reports whether no limit is configured at all.
func (l Limits) IsZero() bool {
	return l.RequestsPerMinute <= 0 && l.TokensPerMinute <= 0
}

// CapFactor is the share of the configured limit a strategy lets callers use.
// Lower factors leave headroom against imprecise provider accounting.
func CapFactor(strategy models.Strategy) float64 {
	switch strategy {
	case models.StrategyConservative:
		return 0.75
	case models.StrategyAggressive:
		return 1.0
	default:
		return 0.9
	}
}

// EffectiveLimit scales a per-minute limit to the window length and applies
// the strategy cap factor. A positive limit never scales below 1.
func EffectiveLimit(perMinute int64, window time.Duration, strategy models.Strategy) int64 {
	if perMinute <= 0 {
		return 0
	}
	perWindow := float64(perMinute) * window.Seconds() / time.Minute.Seconds()
	limit := int64(perWindow * CapFactor(strategy))
	if limit < 1 {
		return 1
	}
	return limit
}
