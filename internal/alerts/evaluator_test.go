package alerts

import (
	"testing"
	"time"

	"github.com/j-veylop/llm-quota-governor/internal/models"
)

var now = time.Date(2026, 4, 2, 10, 0, 0, 0, time.UTC)

func healthyStatus() models.RateLimitStatus {
	return models.RateLimitStatus{
		Provider:          "gemini",
		RequestsRemaining: 80,
		TokensRemaining:   50000,
	}
}

func rules(list []models.Alert) map[string]models.Alert {
	out := make(map[string]models.Alert, len(list))
	for _, a := range list {
		out[a.Rule] = a
	}
	return out
}

func TestEvaluate_Healthy(t *testing.T) {
	got := Evaluate(now, healthyStatus(), models.AdaptiveMetrics{SuccessRate: 1}, models.UsagePrediction{}, DefaultThresholds())
	if len(got) != 0 {
		t.Errorf("Evaluate() = %+v, want no alerts", got)
	}
}

func TestEvaluate_AllRules(t *testing.T) {
	status := models.RateLimitStatus{
		Provider:          "gemini",
		RequestsRemaining: 3,
		TokensRemaining:   1500,
		ConsecutiveErrors: 6,
		Backoff:           45 * time.Second,
	}
	metrics := models.AdaptiveMetrics{SuccessRate: 0.4, ErrorRate: 0.6}
	pred := models.UsagePrediction{Exhausts: true, TimeToExhaustion: 2 * time.Minute}

	got := rules(Evaluate(now, status, metrics, pred, DefaultThresholds()))

	tests := []struct {
		rule        string
		typ         models.AlertType
		autoResolve bool
		current     float64
	}{
		{models.RuleRequestsLow, models.AlertWarning, true, 3},
		{models.RuleTokensLow, models.AlertWarning, true, 1500},
		{models.RuleConsecutiveErrors, models.AlertCritical, false, 6},
		{models.RuleBackoff, models.AlertCritical, false, 45},
		{models.RuleErrorRate, models.AlertWarning, true, 0.6},
		{models.RuleExhaustion, models.AlertInfo, true, 120},
	}

	if len(got) != len(tests) {
		t.Fatalf("Evaluate() returned %d alerts, want %d", len(got), len(tests))
	}
	for _, tt := range tests {
		t.Run(tt.rule, func(t *testing.T) {
			a, ok := got[tt.rule]
			if !ok {
				t.Fatalf("rule %s did not fire", tt.rule)
			}
			if a.Type != tt.typ {
				t.Errorf("Type = %s, want %s", a.Type, tt.typ)
			}
			if a.AutoResolve != tt.autoResolve {
				t.Errorf("AutoResolve = %v, want %v", a.AutoResolve, tt.autoResolve)
			}
			if a.CurrentValue != tt.current {
				t.Errorf("CurrentValue = %v, want %v", a.CurrentValue, tt.current)
			}
			if a.Provider != "gemini" || a.ID != "" || !a.Timestamp.Equal(now) {
				t.Errorf("unexpected alert metadata: %+v", a)
			}
		})
	}
}

func TestEvaluate_Boundaries(t *testing.T) {
	th := DefaultThresholds()
	status := healthyStatus()
	status.RequestsRemaining = th.RequestsWarning
	status.ConsecutiveErrors = th.ErrorAlert - 1
	status.Backoff = th.BackoffAlert

	got := rules(Evaluate(now, status, models.AdaptiveMetrics{}, models.UsagePrediction{}, th))

	if _, ok := got[models.RuleRequestsLow]; !ok {
		t.Error("requests at the threshold should warn")
	}
	if _, ok := got[models.RuleConsecutiveErrors]; ok {
		t.Error("errors below the threshold should not alert")
	}
	if _, ok := got[models.RuleBackoff]; !ok {
		t.Error("backoff at the threshold should alert")
	}
}

func TestEvaluate_DisabledRules(t *testing.T) {
	th := Thresholds{RequestsWarning: -1, TokensWarning: -1}
	status := models.RateLimitStatus{Provider: "gemini", ConsecutiveErrors: 100, Backoff: time.Hour}
	metrics := models.AdaptiveMetrics{ErrorRate: 1}
	pred := models.UsagePrediction{Exhausts: true}

	if got := Evaluate(now, status, metrics, pred, th); len(got) != 0 {
		t.Errorf("disabled thresholds produced %+v", got)
	}
}
