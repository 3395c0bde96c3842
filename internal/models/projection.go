// Package models defines data structures and domain types.
package models

import "time"

// AdaptiveMetrics are rolling statistics derived from recorded events.
type AdaptiveMetrics struct {
	LastAdjustment      time.Time     `json:"lastAdjustment"`
	SuccessRate         float64       `json:"successRate"`         // 0-1
	ErrorRate           float64       `json:"errorRate"`           // 0-1
	Throughput          float64       `json:"throughput"`          // grants in the last minute
	AverageResponseTime time.Duration `json:"averageResponseTime"` // zero when no latency was reported
	Samples             int           `json:"samples"`             // events in the sliding window
}

// UsagePrediction estimates when quota runs out at the current consumption rate.
type UsagePrediction struct {
	RecommendedStrategy Strategy      `json:"recommendedStrategy"`
	TimeToExhaustion    time.Duration `json:"timeToExhaustion"`
	Confidence          float64       `json:"confidence"`
	Samples             int           `json:"samples"`
	// Exhausts is false when consumption is flat, meaning there is no exhaustion risk;
	// TimeToExhaustion is meaningless in that case.
	Exhausts bool `json:"exhausts"`
}

// ProviderSnapshot bundles everything the governor knows about one provider at an instant.
// It is the unit handed to exporters and read back by monitors.
type ProviderSnapshot struct {
	Timestamp  time.Time       `json:"timestamp"`
	Requests   QuotaUsage      `json:"requests"`
	Tokens     QuotaUsage      `json:"tokens"`
	Status     RateLimitStatus `json:"status"`
	Metrics    AdaptiveMetrics `json:"metrics"`
	Prediction UsagePrediction `json:"prediction"`
}
