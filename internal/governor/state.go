package governor

import (
	"slices"
	"sync"
	"time"

	"github.com/j-veylop/llm-quota-governor/internal/models"
)

// providerState is the adaptive state of one provider. Every field is
// guarded by mu.
type providerState struct {
	lastAdjustment    time.Time
	backoffUntil      time.Time
	probeExpires      time.Time
	reservations      map[models.ResourceType][]reservation
	name              string
	state             models.State
	strategy          models.Strategy
	config            ProviderConfig
	errorThreshold    int
	baseBackoff       time.Duration
	backoff           time.Duration
	consecutiveErrors int
	probing           bool
	mu                sync.Mutex
}

// reservation holds granted quota until the caller reports the outcome.
type reservation struct {
	expires time.Time
	grant   string
	amount  int64
}

func newProviderState(name string, config ProviderConfig) *providerState {
	ps := &providerState{
		name:         name,
		config:       config,
		state:        models.StateNormal,
		strategy:     models.StrategyBalanced,
		reservations: make(map[models.ResourceType][]reservation, len(models.Resources)),
	}
	ps.retune()
	return ps
}

// retune derives the effective error threshold and base backoff from the
// configuration and the current strategy.
func (ps *providerState) retune() {
	ps.errorThreshold = ps.config.ErrorThreshold
	ps.baseBackoff = ps.config.BaseBackoff

	switch ps.strategy {
	case models.StrategyConservative:
		ps.errorThreshold = max(1, ps.errorThreshold-1)
		ps.baseBackoff *= 2
	case models.StrategyAggressive:
		ps.errorThreshold++
		ps.baseBackoff /= 2
	}
	ps.baseBackoff = min(ps.baseBackoff, ps.config.MaxBackoff)
}

// reserved returns the in-flight amount of resource after dropping expired
// reservations.
func (ps *providerState) reserved(resource models.ResourceType, now time.Time) int64 {
	list := ps.reservations[resource]
	kept := list[:0]
	var total int64
	for _, r := range list {
		if now.Before(r.expires) {
			kept = append(kept, r)
			total += r.amount
		}
	}
	ps.reservations[resource] = kept
	return total
}

func (ps *providerState) reserve(resource models.ResourceType, grant string, amount int64, expires time.Time) {
	ps.reservations[resource] = append(ps.reservations[resource],
		reservation{grant: grant, amount: amount, expires: expires})
}

// release drops the reservation made for grant. Without a grant ID it drops
// the oldest reservation of exactly amount, so an outcome can never free
// quota held by a larger call still in flight. It reports whether anything
// was released; unknown, expired and repeated grants release nothing.
func (ps *providerState) release(resource models.ResourceType, grant string, amount int64) bool {
	list := ps.reservations[resource]
	idx := slices.IndexFunc(list, func(r reservation) bool {
		if grant != "" {
			return r.grant == grant
		}
		return r.amount == amount
	})
	if idx < 0 {
		return false
	}
	ps.reservations[resource] = slices.Delete(list, idx, idx+1)
	return true
}

func (ps *providerState) inFlight(now time.Time) int {
	n := 0
	for _, list := range ps.reservations {
		for _, r := range list {
			if now.Before(r.expires) {
				n++
			}
		}
	}
	return n
}

// status builds the read projection. The reset time comes from the tracker
// windows only: the earliest reset of an exhausted resource, otherwise the
// requests window reset.
func (ps *providerState) status(now time.Time, req, tok models.QuotaUsage) models.RateLimitStatus {
	st := models.RateLimitStatus{
		Provider:          ps.name,
		State:             models.StateNormal,
		Strategy:          ps.strategy,
		RequestsRemaining: req.Remaining(),
		TokensRemaining:   tok.Remaining(),
		ResetTime:         req.ResetTime(),
		ConsecutiveErrors: ps.consecutiveErrors,
		InFlight:          ps.inFlight(now),
	}

	switch {
	case req.IsRateLimited() && tok.IsRateLimited():
		st.State = models.StateThrottled
		if tok.ResetTime().Before(st.ResetTime) {
			st.ResetTime = tok.ResetTime()
		}
	case req.IsRateLimited():
		st.State = models.StateThrottled
	case tok.IsRateLimited():
		st.State = models.StateThrottled
		st.ResetTime = tok.ResetTime()
	}

	if ps.state == models.StateBackoff {
		st.State = models.StateBackoff
		if now.Before(ps.backoffUntil) {
			st.Backoff = ps.backoffUntil.Sub(now)
		}
	}
	st.IsRateLimited = st.State == models.StateThrottled || st.Backoff > 0
	return st
}
