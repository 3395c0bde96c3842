// Package obs exposes governor activity as Prometheus metrics.
package obs

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/j-veylop/llm-quota-governor/internal/models"
)

// Metrics holds the collectors fed by the event bus and the monitor.
type Metrics struct {
	EventsTotal  *prometheus.CounterVec
	CallLatency  *prometheus.HistogramVec
	Remaining    *prometheus.GaugeVec
	Limit        *prometheus.GaugeVec
	Backoff      *prometheus.GaugeVec
	Strategy     *prometheus.GaugeVec
	ActiveAlerts *prometheus.GaugeVec
}

// NewMetrics creates the collectors and registers them with reg.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		EventsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "qgov_events_total",
				Help: "Rate limit events published by the governor",
			},
			[]string{"provider", "type", "reason"},
		),
		CallLatency: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "qgov_call_latency_seconds",
				Help:    "Latency of governed calls as reported with their outcome",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"provider", "result"},
		),
		Remaining: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "qgov_quota_remaining",
				Help: "Quota remaining in the current window",
			},
			[]string{"provider", "resource"},
		),
		Limit: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "qgov_quota_limit",
				Help: "Effective quota limit of the current window after strategy caps",
			},
			[]string{"provider", "resource"},
		),
		Backoff: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "qgov_backoff_seconds",
				Help: "Backoff left before the provider accepts a probe",
			},
			[]string{"provider"},
		),
		Strategy: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "qgov_strategy",
				Help: "Active strategy of a provider (1 for the active one)",
			},
			[]string{"provider", "strategy"},
		),
		ActiveAlerts: prometheus.NewGaugeVec(
			prometheus.GaugeOpts{
				Name: "qgov_active_alerts",
				Help: "Active alerts by severity",
			},
			[]string{"type"},
		),
	}

	reg.MustRegister(m.EventsTotal, m.CallLatency, m.Remaining, m.Limit, m.Backoff, m.Strategy, m.ActiveAlerts)
	return m
}

// Handle counts an event. It is meant to be subscribed to the event bus.
func (m *Metrics) Handle(ev models.RateLimitEvent) {
	m.EventsTotal.WithLabelValues(ev.Provider, string(ev.Type), ev.Reason).Inc()

	if ev.Latency > 0 && (ev.Type == models.EventSuccess || ev.Type == models.EventError) {
		m.CallLatency.WithLabelValues(ev.Provider, string(ev.Type)).Observe(ev.Latency.Seconds())
	}
}

// Export updates the quota gauges from a monitor tick.
func (m *Metrics) Export(_ context.Context, snapshots []models.ProviderSnapshot) error {
	for _, s := range snapshots {
		p := s.Status.Provider
		for _, u := range []models.QuotaUsage{s.Requests, s.Tokens} {
			m.Remaining.WithLabelValues(p, string(u.Resource)).Set(float64(u.Remaining()))
			m.Limit.WithLabelValues(p, string(u.Resource)).Set(float64(u.Limit))
		}
		m.Backoff.WithLabelValues(p).Set(s.Status.Backoff.Seconds())

		for _, st := range []models.Strategy{models.StrategyConservative, models.StrategyBalanced, models.StrategyAggressive} {
			v := 0.0
			if st == s.Status.Strategy {
				v = 1
			}
			m.Strategy.WithLabelValues(p, string(st)).Set(v)
		}
	}
	return nil
}

// SetAlerts replaces the active alert gauges.
func (m *Metrics) SetAlerts(active []models.Alert) {
	counts := map[models.AlertType]int{
		models.AlertInfo:     0,
		models.AlertWarning:  0,
		models.AlertCritical: 0,
	}
	for _, a := range active {
		counts[a.Type]++
	}
	for typ, n := range counts {
		m.ActiveAlerts.WithLabelValues(string(typ)).Set(float64(n))
	}
}

// Handler serves the metrics gathered by g.
func Handler(g prometheus.Gatherer) http.Handler {
	return promhttp.HandlerFor(g, promhttp.HandlerOpts{})
}
