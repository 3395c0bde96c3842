package governor

import (
	"context"
	"errors"
	"time"

	"github.com/j-veylop/llm-quota-governor/internal/alerts"
	"github.com/j-veylop/llm-quota-governor/internal/logger"
	"github.com/j-veylop/llm-quota-governor/internal/models"
)

// Start runs the periodic monitor until ctx is canceled or Stop is called.
// Calling Start on a running governor does nothing.
func (g *Governor) Start(ctx context.Context) {
	g.runMu.Lock()
	defer g.runMu.Unlock()

	if g.cancel != nil {
		return
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	g.cancel = cancel
	g.done = done

	go g.run(ctx, done)
}

// Stop halts the monitor and waits for it to exit. It is safe to call more
// than once and on a governor that was never started.
func (g *Governor) Stop() {
	g.runMu.Lock()
	cancel, done := g.cancel, g.done
	g.cancel, g.done = nil, nil
	g.runMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
}

// Running reports whether the monitor goroutine is active.
func (g *Governor) Running() bool {
	g.runMu.Lock()
	defer g.runMu.Unlock()
	return g.cancel != nil
}

func (g *Governor) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	g.refreshLogged(ctx)

	ticker := time.NewTicker(g.config.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			g.refreshLogged(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (g *Governor) refreshLogged(ctx context.Context) {
	if err := g.Refresh(ctx); err != nil && ctx.Err() == nil {
		logger.Error("monitor refresh failed", "error", err)
	}
}

// Refresh runs one monitor pass: it samples usage for prediction, reevaluates
// strategies, evaluates alerts and hands snapshots to the exporter.
func (g *Governor) Refresh(ctx context.Context) error {
	g.refreshMu.Lock()
	defer g.refreshMu.Unlock()

	var errs []error
	th := g.AlertThresholds()
	snapshots := make([]models.ProviderSnapshot, 0, len(g.Providers()))

	for _, name := range g.Providers() {
		if err := ctx.Err(); err != nil {
			return err
		}

		req, tok, err := g.usage(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		g.aggregator.Observe(req, tok)

		if _, err := g.Reevaluate(name); err != nil {
			errs = append(errs, err)
		}

		snap, err := g.snapshot(name)
		if err != nil {
			errs = append(errs, err)
			continue
		}
		snapshots = append(snapshots, snap)

		triggered := alerts.Evaluate(snap.Timestamp, snap.Status, snap.Metrics, snap.Prediction, th)
		raised, resolved := g.alerts.Apply(name, triggered)
		for _, a := range raised {
			g.raise(a)
		}
		for _, a := range resolved {
			logger.WithProvider(name).Info("alert resolved", "rule", a.Rule)
		}
	}

	if g.exporter != nil && len(snapshots) > 0 {
		if err := g.exporter.Export(ctx, snapshots); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (g *Governor) raise(a models.Alert) {
	log := logger.WithProvider(a.Provider)
	log.Warn("alert raised", "rule", a.Rule, "type", a.Type, "message", a.Message)

	if g.notifier == nil {
		return
	}
	if err := g.notifier.Notify(a); err != nil {
		log.Error("failed to deliver alert", "rule", a.Rule, "error", err)
	}
}
