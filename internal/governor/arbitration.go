package governor

import (
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/j-veylop/llm-quota-governor/internal/logger"
	"github.com/j-veylop/llm-quota-governor/internal/models"
)

// RequestPermission decides whether a call costing estimatedCost units of
// resource may proceed now. A grant reserves the cost until ReportOutcome.
// Internal faults never grant: they deny with InternalRetryDelay.
func (g *Governor) RequestPermission(provider string, resource models.ResourceType, estimatedCost int64) models.Decision {
	decision, ev, err := g.decide(provider, resource, estimatedCost)
	if err != nil {
		logger.Error("permission check failed, denying",
			"provider", provider, "resource", resource, "cost", estimatedCost, "error", err)
		decision = models.Decision{Reason: models.ReasonInternal, Delay: InternalRetryDelay}
		ev = models.RateLimitEvent{
			Timestamp: g.clock.Now(),
			Type:      models.EventPermissionDenied,
			Provider:  provider,
			Resource:  resource,
			Reason:    models.ReasonInternal,
			Tokens:    estimatedCost,
			Delay:     InternalRetryDelay,
		}
	}
	g.bus.Publish(ev)
	return decision
}

func (g *Governor) decide(provider string, resource models.ResourceType, cost int64) (models.Decision, models.RateLimitEvent, error) {
	var ev models.RateLimitEvent
	if cost < 0 {
		return models.Decision{}, ev, fmt.Errorf("%w: %d", ErrInvalidCost, cost)
	}
	if !validResource(resource) {
		return models.Decision{}, ev, fmt.Errorf("%w: unknown resource %q", ErrInternalState, resource)
	}
	ps, err := g.provider(provider)
	if err != nil {
		return models.Decision{}, ev, err
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()

	now := g.clock.Now()
	ev = models.RateLimitEvent{Timestamp: now, Provider: provider, Resource: resource, Tokens: cost}
	deny := func(reason string, delay time.Duration) (models.Decision, models.RateLimitEvent, error) {
		ev.Type = models.EventPermissionDenied
		ev.Reason = reason
		ev.Delay = delay
		return models.Decision{Reason: reason, Delay: delay}, ev, nil
	}

	probe := false
	if ps.state == models.StateBackoff {
		if now.Before(ps.backoffUntil) {
			return deny(models.ReasonBackoff, ps.backoffUntil.Sub(now))
		}
		// One request at a time probes an elapsed backoff.
		if resource == models.ResourceRequests {
			if ps.probing && now.Before(ps.probeExpires) {
				return deny(models.ReasonBackoff, min(ps.baseBackoff, ps.probeExpires.Sub(now)))
			}
			probe = true
		}
	}

	u, err := g.tracker.Usage(provider, resource)
	if err != nil {
		return models.Decision{}, ev, err
	}
	if available := u.Remaining() - ps.reserved(resource, now); available < cost {
		delay := u.ResetTime().Sub(now)
		if delay <= 0 {
			return models.Decision{}, ev, fmt.Errorf("%w: window of %s/%s already reset", ErrInternalState, provider, resource)
		}
		return deny(models.LimitReason(resource), delay)
	}

	expires := now.Add(g.config.ReservationTTL)
	grant := uuid.NewString()
	ps.reserve(resource, grant, cost, expires)
	if probe {
		ps.probing = true
		ps.probeExpires = expires
	}

	ev.Type = models.EventPermissionGranted
	return models.Decision{Granted: true, Grant: grant}, ev, nil
}

// ReportOutcome records the result of a granted call. It charges the actual
// cost, releases the reservation of o.Grant and updates the error and backoff
// state. A canceled outcome only releases the reservation.
func (g *Governor) ReportOutcome(o models.Outcome) error {
	evs, err := g.report(o, true)
	g.publish(evs)
	if err != nil {
		logger.Error("failed to report outcome", "provider", o.Provider, "resource", o.Resource, "error", err)
	}
	return err
}

// settle charges and releases a reservation without touching error state.
// It accounts for the secondary resource of a call whose outcome is reported
// on the other one.
func (g *Governor) settle(provider string, resource models.ResourceType, grant string, cost int64) error {
	_, err := g.report(models.Outcome{
		Grant:      grant,
		Provider:   provider,
		Resource:   resource,
		Result:     models.ResultSuccess,
		ActualCost: cost,
	}, false)
	return err
}

func (g *Governor) report(o models.Outcome, adapt bool) ([]models.RateLimitEvent, error) {
	if o.ActualCost < 0 {
		return nil, fmt.Errorf("%w: %d", ErrInvalidCost, o.ActualCost)
	}
	if !validResource(o.Resource) {
		return nil, fmt.Errorf("%w: unknown resource %q", ErrInternalState, o.Resource)
	}
	ps, err := g.provider(o.Provider)
	if err != nil {
		return nil, err
	}

	ps.mu.Lock()
	defer ps.mu.Unlock()

	now := g.clock.Now()
	ps.release(o.Resource, o.Grant, o.ActualCost)

	if o.Result == models.ResultCanceled {
		if adapt && o.Resource == models.ResourceRequests {
			ps.probing = false
		}
		return nil, nil
	}
	if o.Result != models.ResultSuccess && o.Result != models.ResultError {
		return nil, fmt.Errorf("%w: unknown result %q", ErrInternalState, o.Result)
	}

	recordErr := g.tracker.RecordUsage(o.Provider, o.Resource, o.ActualCost)
	if !adapt {
		return nil, recordErr
	}

	ev := models.RateLimitEvent{
		Timestamp: now,
		Provider:  o.Provider,
		Resource:  o.Resource,
		Tokens:    o.ActualCost,
		Latency:   o.Latency,
	}
	ps.probing = false

	if o.Result == models.ResultSuccess {
		ev.Type = models.EventSuccess
		ps.consecutiveErrors = 0
		if ps.state == models.StateBackoff {
			ps.state = models.StateNormal
			ps.backoff = 0
			ps.backoffUntil = time.Time{}
			logger.WithProvider(o.Provider).Info("provider recovered from backoff")
		}
		return []models.RateLimitEvent{ev}, recordErr
	}

	ev.Type = models.EventError
	ev.ErrorType = o.ErrorType
	evs := []models.RateLimitEvent{ev}

	ps.consecutiveErrors++
	if ps.consecutiveErrors >= ps.errorThreshold {
		delay := g.backoffDelay(ps)
		ps.state = models.StateBackoff
		ps.backoff = delay
		ps.backoffUntil = now.Add(delay)
		logger.WithProvider(o.Provider).Warn("backoff applied",
			"consecutive_errors", ps.consecutiveErrors, "delay", delay, "error_type", o.ErrorType)
		evs = append(evs, models.RateLimitEvent{
			Timestamp: now,
			Type:      models.EventBackoffApplied,
			Provider:  o.Provider,
			Resource:  o.Resource,
			ErrorType: o.ErrorType,
			Delay:     delay,
		})
	}
	return evs, recordErr
}

func validResource(r models.ResourceType) bool {
	return r == models.ResourceRequests || r == models.ResourceTokens
}
