// Package models defines data structures and domain types.
package models

import "time"

// State is the arbitration state of a provider.
type State string

const (
	// StateNormal means quota has headroom and no backoff is active.
	StateNormal State = "normal"
	// StateThrottled means a resource is exhausted for the current window.
	StateThrottled State = "throttled"
	// StateBackoff means repeated errors have paused the provider.
	StateBackoff State = "backoff"
)

// Strategy is a named profile trading throughput against safety margin.
type Strategy string

const (
	StrategyConservative Strategy = "conservative"
	StrategyBalanced     Strategy = "balanced"
	StrategyAggressive   Strategy = "aggressive"
)

// ParseStrategy converts a string into a Strategy, reporting whether it is known.
func ParseStrategy(s string) (Strategy, bool) {
	switch Strategy(s) {
	case StrategyConservative, StrategyBalanced, StrategyAggressive:
		return Strategy(s), true
	}
	return "", false
}

// RateLimitStatus is a point-in-time view of a provider for callers and UIs.
type RateLimitStatus struct {
	ResetTime         time.Time     `json:"resetTime"`
	Provider          string        `json:"provider"`
	State             State         `json:"state"`
	Strategy          Strategy      `json:"strategy"`
	RequestsRemaining int64         `json:"requestsRemaining"`
	TokensRemaining   int64         `json:"tokensRemaining"`
	Backoff           time.Duration `json:"backoff"`
	ConsecutiveErrors int           `json:"consecutiveErrors"`
	InFlight          int           `json:"inFlight"`
	IsRateLimited     bool          `json:"isRateLimited"`
}

// Decision is the answer to a permission request. A denial is an ordinary
// value: the caller waits Delay and asks again.
type Decision struct {
	// Grant identifies the reservation made by a grant. Pass it back in
	// Outcome.Grant so the outcome releases exactly that reservation.
	Grant   string        `json:"grant,omitempty"`
	Reason  string        `json:"reason,omitempty"`
	Delay   time.Duration `json:"delay"`
	Granted bool          `json:"granted"`
}

// Denial reasons carried by Decision and permission_denied events.
const (
	ReasonBackoff       = "backoff"
	ReasonRequestsLimit = "requests_limit"
	ReasonTokensLimit   = "tokens_limit"
	ReasonInternal      = "internal"
)

// LimitReason returns the denial reason for an exhausted resource.
func LimitReason(resource ResourceType) string {
	if resource == ResourceTokens {
		return ReasonTokensLimit
	}
	return ReasonRequestsLimit
}

// Result is the outcome of a call made after a grant.
type Result string

const (
	ResultSuccess Result = "success"
	ResultError   Result = "error"
	// ResultCanceled releases a grant that was never used.
	ResultCanceled Result = "canceled"
)

// Outcome is reported back to the governor once a granted call resolves.
type Outcome struct {
	// Grant is Decision.Grant of the permission this outcome settles. When
	// empty, the oldest reservation of exactly ActualCost is released.
	Grant      string
	Provider   string
	Resource   ResourceType
	Result     Result
	ErrorType  string
	ActualCost int64
	Latency    time.Duration
}
