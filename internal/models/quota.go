// Package models defines data structures and domain types.
package models

import "time"

// ResourceType names a metered provider resource.
type ResourceType string

const (
	// ResourceRequests counts API calls; each call costs 1.
	ResourceRequests ResourceType = "requests"
	// ResourceTokens counts model tokens consumed by calls.
	ResourceTokens ResourceType = "tokens"
)

// Resources lists every metered resource in a stable order.
var Resources = []ResourceType{ResourceRequests, ResourceTokens}

// QuotaUsage is the usage of one resource of one provider in the current window.
// Remaining and rate-limited state are always derived from Used and Limit.
type QuotaUsage struct {
	WindowStart time.Time     `json:"windowStart"`
	Provider    string        `json:"provider"`
	Resource    ResourceType  `json:"resource"`
	Used        int64         `json:"used"`
	Limit       int64         `json:"limit"`
	Window      time.Duration `json:"window"`
}

// Remaining returns max(0, Limit-Used).
func (q QuotaUsage) Remaining() int64 {
	if q.Used >= q.Limit {
		return 0
	}
	return q.Limit - q.Used
}

// IsRateLimited reports whether the window has no quota left.
func (q QuotaUsage) IsRateLimited() bool {
	return q.Remaining() == 0
}

// ResetTime returns when the current window rolls over.
func (q QuotaUsage) ResetTime() time.Time {
	return q.WindowStart.Add(q.Window)
}

// UsagePercentage returns the consumed share of the limit in percent.
func (q QuotaUsage) UsagePercentage() float64 {
	if q.Limit <= 0 {
		return 100
	}
	pct := float64(q.Used) / float64(q.Limit) * 100
	if pct > 100 {
		return 100
	}
	return pct
}
