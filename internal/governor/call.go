package governor

import (
	"context"
	"fmt"
	"time"

	"github.com/j-veylop/llm-quota-governor/internal/models"
)

// Call describes one outbound API call.
type Call struct {
	Provider        string
	EstimatedTokens int64
}

// Response is what a call reports back after it ran.
type Response struct {
	// ErrorType classifies a failure, e.g. "rate_limited" or "server_error".
	ErrorType string
	// Tokens is the actual token cost. Zero means the estimate is charged.
	Tokens int64
}

// CallFunc performs the API call.
type CallFunc func(ctx context.Context) (Response, error)

// Do waits until the governor grants both a request and the estimated tokens,
// runs fn and reports its outcome. Denials are waited out while ctx allows;
// when ctx ends first its error is returned and held reservations are released.
func (g *Governor) Do(ctx context.Context, call Call, fn CallFunc) (Response, error) {
	if call.EstimatedTokens < 0 {
		return Response{}, fmt.Errorf("%w: estimated tokens %d", ErrInvalidCost, call.EstimatedTokens)
	}
	requests, tokens, err := g.acquire(ctx, call)
	if err != nil {
		return Response{}, err
	}

	start := g.clock.Now()
	resp, callErr := fn(ctx)
	latency := g.clock.Now().Sub(start)

	used := resp.Tokens
	if used <= 0 {
		used = call.EstimatedTokens
	}
	if err := g.settle(call.Provider, models.ResourceTokens, tokens.Grant, used); err != nil {
		return resp, err
	}

	outcome := models.Outcome{
		Grant:      requests.Grant,
		Provider:   call.Provider,
		Resource:   models.ResourceRequests,
		Result:     models.ResultSuccess,
		ActualCost: 1,
		Latency:    latency,
	}
	if callErr != nil {
		outcome.Result = models.ResultError
		outcome.ErrorType = resp.ErrorType
		if outcome.ErrorType == "" {
			outcome.ErrorType = "call_failed"
		}
	}
	if err := g.ReportOutcome(outcome); err != nil && callErr == nil {
		return resp, err
	}
	return resp, callErr
}

// acquire waits for a request grant and a token grant. An internal denial on
// either leg ends the wait with ErrInternalState.
func (g *Governor) acquire(ctx context.Context, call Call) (requests, tokens models.Decision, err error) {
	for {
		if err := ctx.Err(); err != nil {
			return requests, tokens, err
		}

		d := g.RequestPermission(call.Provider, models.ResourceRequests, 1)
		if d.Reason == models.ReasonInternal {
			return requests, tokens, fmt.Errorf("%w: request permission for %q failed", ErrInternalState, call.Provider)
		}
		if d.Granted {
			requests = d
			d = g.RequestPermission(call.Provider, models.ResourceTokens, call.EstimatedTokens)
			if d.Granted {
				return requests, d, nil
			}
			g.cancelGrant(call.Provider, models.ResourceRequests, requests)
			if d.Reason == models.ReasonInternal {
				return models.Decision{}, tokens, fmt.Errorf("%w: token permission for %q failed", ErrInternalState, call.Provider)
			}
		}

		if err := g.sleep(ctx, d.Delay); err != nil {
			return models.Decision{}, tokens, err
		}
	}
}

func (g *Governor) cancelGrant(provider string, resource models.ResourceType, d models.Decision) {
	_ = g.ReportOutcome(models.Outcome{
		Grant:    d.Grant,
		Provider: provider,
		Resource: resource,
		Result:   models.ResultCanceled,
	})
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()

	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
