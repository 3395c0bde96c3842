// Package services wires the governor, its store and its observers into a
// single session for an embedding application.
package services

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/j-veylop/llm-quota-governor/internal/alerts"
	"github.com/j-veylop/llm-quota-governor/internal/config"
	"github.com/j-veylop/llm-quota-governor/internal/db"
	"github.com/j-veylop/llm-quota-governor/internal/events"
	"github.com/j-veylop/llm-quota-governor/internal/governor"
	"github.com/j-veylop/llm-quota-governor/internal/logger"
	"github.com/j-veylop/llm-quota-governor/internal/models"
	"github.com/j-veylop/llm-quota-governor/internal/obs"
)

const recentEventsSize = 200

// Manager owns a governor session and everything subscribed to it.
type Manager struct {
	mu       sync.RWMutex
	limits   *config.Limits
	database *db.DB
	governor *governor.Governor
	registry *prometheus.Registry
	metrics  *obs.Metrics
	recent   *events.Ring
	recorder *Recorder
	watcher  *config.Watcher
	server   *http.Server
	addr     string
	unsubs   []func()
	closed   bool
}

// NewManager opens the store, builds the governor with the limits file,
// restores persisted usage and starts the monitor. Extra options are passed
// to the governor after the manager's own.
func NewManager(ctx context.Context, cfg *config.Config, opts ...governor.Option) (*Manager, error) {
	logger.SetLevel(cfg.LogLevel)

	limits, err := config.LoadLimits(cfg.LimitsPath)
	switch {
	case errors.Is(err, fs.ErrNotExist):
		logger.Warn("limits file not found, using defaults", "path", cfg.LimitsPath)
		limits = config.DefaultLimits()
	case err != nil:
		return nil, err
	}

	m := &Manager{limits: limits}

	m.database, err = db.New(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize database: %w", err)
	}

	m.registry = prometheus.NewRegistry()
	m.metrics = obs.NewMetrics(m.registry)

	gcfg := limits.GovernorConfig()
	if cfg.RefreshInterval > 0 {
		gcfg.PollInterval = cfg.RefreshInterval
	}

	base := []governor.Option{
		governor.WithExporter(governor.Exporters(
			m.database,
			m.metrics,
			governor.ExporterFunc(m.exportAlerts),
		)),
	}
	if cfg.Notify {
		base = append(base, governor.WithNotifier(alerts.DesktopNotifier{}))
	}

	m.governor, err = governor.New(gcfg, append(base, opts...)...)
	if err != nil {
		_ = m.database.Close()
		return nil, err
	}

	m.restore(ctx)

	if cfg.Retention > 0 {
		if n, err := m.database.Prune(ctx, time.Now().Add(-cfg.Retention)); err != nil {
			logger.Warn("failed to prune history", "error", err)
		} else if n > 0 {
			logger.Info("pruned history", "rows", n)
			if err := m.database.Vacuum(ctx); err != nil {
				logger.Warn("failed to vacuum history", "error", err)
			}
		}
	}

	m.recent = events.NewRing(recentEventsSize)
	m.unsubs = append(m.unsubs,
		m.governor.Subscribe(m.metrics.Handle),
		m.governor.Subscribe(m.recent.Handle),
	)
	ch, unsub := m.governor.SubscribeChan(cfg.EventBuffer)
	m.recorder = NewRecorder(m.database, ch, unsub)
	m.recorder.Start()

	m.governor.Start(ctx)

	if w, err := config.WatchLimits(cfg.LimitsPath, m.ApplyLimits); err != nil {
		logger.Warn("limits file will not be watched", "path", cfg.LimitsPath, "error", err)
	} else {
		m.watcher = w
	}

	if cfg.MetricsAddr != "" {
		if err := m.serveMetrics(cfg.MetricsAddr); err != nil {
			_ = m.Close()
			return nil, err
		}
	}

	return m, nil
}

func (m *Manager) restore(ctx context.Context) {
	snaps, err := m.database.LatestSnapshots(ctx)
	if err != nil {
		logger.Warn("failed to load stored usage", "error", err)
		return
	}
	restored := 0
	for _, s := range snaps {
		if m.governor.Restore(s.Requests) {
			restored++
		}
		if m.governor.Restore(s.Tokens) {
			restored++
		}
	}
	if restored > 0 {
		logger.Info("restored usage", "windows", restored)
	}
}

func (m *Manager) exportAlerts(context.Context, []models.ProviderSnapshot) error {
	m.metrics.SetAlerts(m.governor.Alerts())
	return nil
}

func (m *Manager) serveMetrics(addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen for metrics: %w", err)
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", obs.Handler(m.registry))
	m.server = &http.Server{
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		if err := m.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server stopped", "error", err)
		}
	}()
	m.addr = ln.Addr().String()
	logger.Info("serving metrics", "addr", m.addr)
	return nil
}

// ApplyLimits pushes a reloaded limits file into the running governor.
// Window and reservation settings only take effect on restart.
func (m *Manager) ApplyLimits(l *config.Limits) {
	m.mu.Lock()
	prev := m.limits
	m.limits = l
	m.mu.Unlock()

	for name, p := range l.Providers {
		if err := m.governor.UpdateProvider(name, p); err != nil {
			logger.Warn("failed to apply provider limits", "provider", name, "error", err)
		}
	}
	m.governor.SetAlertThresholds(l.Alerts)

	if prev != nil && (prev.Window != l.Window || prev.ReservationTTL != l.ReservationTTL) {
		logger.Warn("window changes require a restart")
	}
	logger.Info("limits reloaded", "providers", len(l.Providers))
}

// Governor returns the running governor.
func (m *Manager) Governor() *governor.Governor {
	return m.governor
}

// Database returns the history store.
func (m *Manager) Database() *db.DB {
	return m.database
}

// Registry returns the Prometheus registry holding the governor collectors.
func (m *Manager) Registry() *prometheus.Registry {
	return m.registry
}

// MetricsAddr returns the address the metrics endpoint listens on, or ""
// when it is disabled.
func (m *Manager) MetricsAddr() string {
	return m.addr
}

// Limits returns the limits currently applied.
func (m *Manager) Limits() *config.Limits {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.limits
}

// RecentEvents returns up to limit of the latest events, newest first.
func (m *Manager) RecentEvents(limit int) []models.RateLimitEvent {
	return m.recent.Recent(limit)
}

// Close stops the session in reverse start order. It is safe to call more
// than once.
func (m *Manager) Close() error {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return nil
	}
	m.closed = true
	m.mu.Unlock()

	var errs []error

	if m.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		if err := m.server.Shutdown(ctx); err != nil {
			errs = append(errs, err)
		}
		cancel()
	}

	if m.watcher != nil {
		if err := m.watcher.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	m.governor.Stop()

	for _, unsub := range m.unsubs {
		unsub()
	}
	m.recorder.Close()

	if err := m.database.Close(); err != nil {
		errs = append(errs, err)
	}

	return errors.Join(errs...)
}
