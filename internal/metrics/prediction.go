package metrics

import (
	"math"
	"time"

	"github.com/j-veylop/llm-quota-governor/internal/models"
)

const (
	lowConfSamples  = 5
	highConfSamples = 10

	// ConservativeBelow is the time-to-exhaustion under which the conservative strategy applies.
	ConservativeBelow = 5 * time.Minute
	// AggressiveAbove is the time-to-exhaustion over which the aggressive strategy applies.
	AggressiveAbove = 15 * time.Minute
)

// Predict estimates time-to-exhaustion from the last two usage samples.
func (a *Aggregator) Predict(provider string) models.UsagePrediction {
	a.mu.Lock()
	defer a.mu.Unlock()

	pred := models.UsagePrediction{Confidence: Confidence(0)}
	w, ok := a.providers[provider]
	if !ok {
		pred.RecommendedStrategy = RecommendStrategy(pred)
		return pred
	}

	pred.Samples = len(w.samples)
	pred.Confidence = Confidence(pred.Samples)

	if len(w.samples) >= 2 {
		prev, cur := w.samples[len(w.samples)-2], w.samples[len(w.samples)-1]
		best := math.Inf(1)
		for _, pair := range [][2]models.QuotaUsage{
			{prev.requests, cur.requests},
			{prev.tokens, cur.tokens},
		} {
			rate := consumptionRate(prev.at, cur.at, pair[0], pair[1])
			if rate <= 0 {
				continue
			}
			if ttl := float64(pair[1].Remaining()) / rate; ttl < best {
				best = ttl
			}
		}
		if !math.IsInf(best, 1) {
			pred.Exhausts = true
			pred.TimeToExhaustion = time.Duration(best)
		}
	}

	pred.RecommendedStrategy = RecommendStrategy(pred)
	return pred
}

// consumptionRate returns units consumed per nanosecond between two samples.
// Across a window roll the previous sample is meaningless, so the rate is the
// new window's usage over its elapsed time.
func consumptionRate(prevAt, curAt time.Time, prev, cur models.QuotaUsage) float64 {
	if !cur.WindowStart.Equal(prev.WindowStart) {
		elapsed := curAt.Sub(cur.WindowStart)
		if elapsed <= 0 {
			return 0
		}
		return float64(cur.Used) / float64(elapsed)
	}

	elapsed := curAt.Sub(prevAt)
	if elapsed <= 0 {
		return 0
	}
	return float64(cur.Used-prev.Used) / float64(elapsed)
}

// Confidence is a step function of the number of samples.
func Confidence(samples int) float64 {
	switch {
	case samples < lowConfSamples:
		return 0.5
	case samples < highConfSamples:
		return 0.8
	default:
		return 0.9
	}
}

// RecommendStrategy maps a prediction to a strategy: under 5 minutes to
// exhaustion is conservative, over 15 minutes (or no risk) is aggressive.
func RecommendStrategy(pred models.UsagePrediction) models.Strategy {
	if !pred.Exhausts {
		return models.StrategyAggressive
	}
	switch {
	case pred.TimeToExhaustion < ConservativeBelow:
		return models.StrategyConservative
	case pred.TimeToExhaustion > AggressiveAbove:
		return models.StrategyAggressive
	default:
		return models.StrategyBalanced
	}
}
