package governor

import (
	"fmt"

	"github.com/j-veylop/llm-quota-governor/internal/logger"
	"github.com/j-veylop/llm-quota-governor/internal/models"
)

// minPredictionSamples is the number of usage samples a prediction needs
// before it may move the strategy.
const minPredictionSamples = 2

// Reevaluate switches the provider to the strategy recommended by its usage
// prediction and returns the strategy in effect. Without enough samples the
// current strategy is kept.
func (g *Governor) Reevaluate(provider string) (models.Strategy, error) {
	ps, err := g.provider(provider)
	if err != nil {
		return "", err
	}
	pred := g.aggregator.Predict(provider)

	ps.mu.Lock()
	defer ps.mu.Unlock()

	if pred.Samples < minPredictionSamples || pred.RecommendedStrategy == ps.strategy {
		return ps.strategy, nil
	}
	return pred.RecommendedStrategy, g.applyStrategy(ps, pred.RecommendedStrategy, pred)
}

// SetStrategy forces a strategy until the next reevaluation changes it.
func (g *Governor) SetStrategy(provider string, strategy models.Strategy) error {
	if _, ok := models.ParseStrategy(string(strategy)); !ok {
		return fmt.Errorf("%w: unknown strategy %q", ErrConfiguration, strategy)
	}
	ps, err := g.provider(provider)
	if err != nil {
		return err
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()
	if ps.strategy == strategy {
		return nil
	}
	return g.applyStrategy(ps, strategy, models.UsagePrediction{})
}

// applyStrategy changes the caps and backoff tuning. The caller holds ps.mu.
func (g *Governor) applyStrategy(ps *providerState, strategy models.Strategy, pred models.UsagePrediction) error {
	if err := g.tracker.SetStrategy(ps.name, strategy); err != nil {
		return err
	}
	previous := ps.strategy
	ps.strategy = strategy
	ps.retune()
	ps.lastAdjustment = g.clock.Now()

	logger.WithProvider(ps.name).Info("strategy changed",
		"from", previous,
		"to", strategy,
		"time_to_exhaustion", pred.TimeToExhaustion,
		"exhausts", pred.Exhausts,
		"error_threshold", ps.errorThreshold,
		"base_backoff", ps.baseBackoff,
	)
	return nil
}
