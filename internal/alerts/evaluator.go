// Package alerts evaluates governor status against thresholds and tracks active alerts.
package alerts

import (
	"fmt"
	"time"

	"github.com/j-veylop/llm-quota-governor/internal/models"
)

// Thresholds configure the alert rules. Negative remaining thresholds and
// zero error, backoff and exhaustion thresholds disable their rule.
type Thresholds struct {
	RequestsWarning  int64         `yaml:"requests_warning"`
	TokensWarning    int64         `yaml:"tokens_warning"`
	ErrorAlert       int           `yaml:"error_alert"`
	BackoffAlert     time.Duration `yaml:"backoff_alert"`
	ErrorRateWarning float64       `yaml:"error_rate_warning"`
	ExhaustionInfo   time.Duration `yaml:"exhaustion_info"`
}

// DefaultThresholds returns the default thresholds.
func DefaultThresholds() Thresholds {
	return Thresholds{
		RequestsWarning:  5,
		TokensWarning:    2000,
		ErrorAlert:       5,
		BackoffAlert:     30 * time.Second,
		ErrorRateWarning: 0.5,
		ExhaustionInfo:   5 * time.Minute,
	}
}

// Evaluate returns the alerts whose conditions hold for the given view. It is
// pure: IDs are assigned when a Set activates an alert.
func Evaluate(
	now time.Time,
	status models.RateLimitStatus,
	metrics models.AdaptiveMetrics,
	prediction models.UsagePrediction,
	th Thresholds,
) []models.Alert {
	var out []models.Alert

	add := func(rule string, typ models.AlertType, autoResolve bool, threshold, current float64, msg string) {
		out = append(out, models.Alert{
			Provider:     status.Provider,
			Rule:         rule,
			Type:         typ,
			Message:      msg,
			Timestamp:    now,
			Threshold:    threshold,
			CurrentValue: current,
			AutoResolve:  autoResolve,
		})
	}

	if th.RequestsWarning >= 0 && status.RequestsRemaining <= th.RequestsWarning {
		add(models.RuleRequestsLow, models.AlertWarning, true,
			float64(th.RequestsWarning), float64(status.RequestsRemaining),
			fmt.Sprintf("%s: only %d requests left in this window", status.Provider, status.RequestsRemaining))
	}

	if th.TokensWarning >= 0 && status.TokensRemaining <= th.TokensWarning {
		add(models.RuleTokensLow, models.AlertWarning, true,
			float64(th.TokensWarning), float64(status.TokensRemaining),
			fmt.Sprintf("%s: only %d tokens left in this window", status.Provider, status.TokensRemaining))
	}

	if th.ErrorAlert > 0 && status.ConsecutiveErrors >= th.ErrorAlert {
		add(models.RuleConsecutiveErrors, models.AlertCritical, false,
			float64(th.ErrorAlert), float64(status.ConsecutiveErrors),
			fmt.Sprintf("%s: %d consecutive provider errors", status.Provider, status.ConsecutiveErrors))
	}

	if th.BackoffAlert > 0 && status.Backoff >= th.BackoffAlert {
		add(models.RuleBackoff, models.AlertCritical, false,
			th.BackoffAlert.Seconds(), status.Backoff.Seconds(),
			fmt.Sprintf("%s: backing off for %s", status.Provider, status.Backoff.Round(time.Second)))
	}

	if th.ErrorRateWarning > 0 && metrics.SuccessRate+metrics.ErrorRate > 0 && metrics.ErrorRate >= th.ErrorRateWarning {
		add(models.RuleErrorRate, models.AlertWarning, true,
			th.ErrorRateWarning, metrics.ErrorRate,
			fmt.Sprintf("%s: %.0f%% of recent calls failed", status.Provider, metrics.ErrorRate*100))
	}

	if th.ExhaustionInfo > 0 && prediction.Exhausts && prediction.TimeToExhaustion < th.ExhaustionInfo {
		add(models.RuleExhaustion, models.AlertInfo, true,
			th.ExhaustionInfo.Seconds(), prediction.TimeToExhaustion.Seconds(),
			fmt.Sprintf("%s: quota exhausted in about %s at the current rate",
				status.Provider, prediction.TimeToExhaustion.Round(time.Second)))
	}

	return out
}
