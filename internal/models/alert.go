// Package models defines data structures and domain types.
package models

import "time"

// AlertType is the severity of an alert.
type AlertType string

const (
	AlertInfo     AlertType = "info"
	AlertWarning  AlertType = "warning"
	AlertCritical AlertType = "critical"
)

// Alert rule identifiers. At most one alert per (provider, rule) is active.
const (
	RuleRequestsLow       = "requests_low"
	RuleTokensLow         = "tokens_low"
	RuleConsecutiveErrors = "consecutive_errors"
	RuleBackoff           = "backoff"
	RuleErrorRate         = "error_rate"
	RuleExhaustion        = "exhaustion"
)

// Alert records a crossed threshold.
type Alert struct {
	Timestamp    time.Time `json:"timestamp"`
	ID           string    `json:"id"`
	Provider     string    `json:"provider"`
	Rule         string    `json:"rule"`
	Type         AlertType `json:"type"`
	Message      string    `json:"message"`
	Threshold    float64   `json:"threshold"`
	CurrentValue float64   `json:"currentValue"`
	AutoResolve  bool      `json:"autoResolve"`
}

// Key identifies the condition an alert tracks.
func (a Alert) Key() string {
	return a.Provider + "/" + a.Rule
}
