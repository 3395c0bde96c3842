package dashboard

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/j-veylop/llm-quota-governor/internal/models"
	"github.com/j-veylop/llm-quota-governor/internal/ui/components"
	"github.com/j-veylop/llm-quota-governor/internal/ui/styles"
)

// View renders the dashboard.
func (m *Model) View() string {
	if m.width == 0 {
		return "Loading..."
	}

	if m.state.IsInitialLoading() {
		return m.renderLoading()
	}

	m.viewport.SetContent(m.renderContent(time.Now()))
	return m.viewport.View()
}

func (m *Model) renderLoading() string {
	barWidth := max(m.width-8, 20)
	lines := []string{
		m.spinner.View(),
		"",
		components.LoadingBar("Requests", barWidth, m.frame),
		components.LoadingBar("Tokens", barWidth, m.frame),
	}
	return styles.CenterBoth(strings.Join(lines, "\n"), m.width, m.height)
}

func (m *Model) renderContent(now time.Time) string {
	snaps := m.state.Snapshots()

	var sections []string
	sections = append(sections, m.renderHeader(now, len(snaps)))

	if len(snaps) == 0 {
		empty := styles.HelpStyle.Render("No provider snapshots in the store yet.")
		sections = append(sections, styles.CardStyle.Width(m.cardWidth()).Render(empty))
	}

	selected := m.state.Selected()
	for i, snap := range snaps {
		sections = append(sections, m.renderProviderCard(snap, i == selected, now))
	}

	sections = append(sections, m.renderAlerts(now))
	return lipgloss.JoinVertical(lipgloss.Left, sections...)
}

func (m *Model) renderHeader(now time.Time, n int) string {
	title := styles.TitleStyle.Render("Providers")
	updated := m.state.LastUpdated()
	info := fmt.Sprintf("%d tracked", n)
	if !updated.IsZero() {
		info += fmt.Sprintf(" · read %s ago", components.FormatDuration(now.Sub(updated)))
	}
	return lipgloss.JoinHorizontal(lipgloss.Top, title, "  ", styles.HelpStyle.Render(info))
}

func (m *Model) cardWidth() int {
	return max(m.width-4, 30)
}

func (m *Model) renderProviderCard(snap models.ProviderSnapshot, selected bool, now time.Time) string {
	inner := m.cardWidth() - 6
	st := snap.Status

	lines := []string{m.renderCardTitle(snap, selected, now), ""}

	lines = append(lines, components.QuotaBar("Requests", st.RequestsRemaining, snap.Requests.Limit, inner))
	lines = append(lines, components.QuotaBar("Tokens", st.TokensRemaining, snap.Tokens.Limit, inner))
	if !st.ResetTime.IsZero() {
		lines = append(lines, components.CountdownBar("Reset", st.ResetTime.Sub(now), snap.Requests.Window, inner))
	}

	if st.State == models.StateBackoff && st.Backoff > 0 {
		left := st.Backoff - now.Sub(snap.Timestamp)
		if left > 0 {
			lines = append(lines, styles.ErrorTextStyle.Render(
				fmt.Sprintf("  backing off, probe in %s", components.FormatDuration(left))))
		} else {
			lines = append(lines, styles.WarningTextStyle.Render("  backoff elapsed, waiting for probe"))
		}
	}

	lines = append(lines, "", m.renderMetrics(snap), m.renderPrediction(snap))

	card := styles.CardStyle.Width(m.cardWidth())
	if selected {
		card = card.BorderForeground(styles.Primary)
	}
	return card.Render(strings.Join(lines, "\n"))
}

func (m *Model) renderCardTitle(snap models.ProviderSnapshot, selected bool, now time.Time) string {
	st := snap.Status

	marker := "  "
	if selected {
		marker = styles.FocusedStyle.Render("▸ ")
	}

	parts := []string{
		marker + lipgloss.NewStyle().Bold(true).Render(st.Provider),
		styles.GetStateStyle(st.State).Render(strings.ToUpper(string(st.State))),
		styles.GetStrategyStyle(st.Strategy).Render("◆ " + string(st.Strategy)),
		styles.HelpStyle.Render(fmt.Sprintf("%d in flight", st.InFlight)),
	}
	if st.ConsecutiveErrors > 0 {
		parts = append(parts, styles.ErrorTextStyle.Render(fmt.Sprintf("%d consecutive errors", st.ConsecutiveErrors)))
	}
	if isStale(snap, now) {
		parts = append(parts, styles.BlurredStyle.Italic(true).Render("stale"))
	}
	return strings.Join(parts, "  ")
}

// isStale reports whether the snapshot is older than its own window, which
// means the governor that wrote it is no longer running.
func isStale(snap models.ProviderSnapshot, now time.Time) bool {
	if snap.Timestamp.IsZero() || snap.Requests.Window <= 0 {
		return false
	}
	return now.Sub(snap.Timestamp) > snap.Requests.Window
}

func (m *Model) renderMetrics(snap models.ProviderSnapshot) string {
	mt := snap.Metrics
	if mt.Samples == 0 {
		return styles.HelpStyle.Render("  no calls in the sliding window")
	}

	latency := "n/a"
	if mt.AverageResponseTime > 0 {
		latency = mt.AverageResponseTime.Round(time.Millisecond).String()
	}

	errStyle := styles.HelpStyle
	if mt.ErrorRate > 0 {
		errStyle = styles.ErrorTextStyle
	}

	return strings.Join([]string{
		"  " + styles.SuccessTextStyle.Render(fmt.Sprintf("success %.0f%%", mt.SuccessRate*100)),
		errStyle.Render(fmt.Sprintf("errors %.0f%%", mt.ErrorRate*100)),
		styles.InfoTextStyle.Render(fmt.Sprintf("%.0f req/min", mt.Throughput)),
		styles.HelpStyle.Render("avg " + latency),
		styles.HelpStyle.Render(fmt.Sprintf("%d samples", mt.Samples)),
	}, "  ")
}

func (m *Model) renderPrediction(snap models.ProviderSnapshot) string {
	p := snap.Prediction

	exhaustion := styles.SuccessTextStyle.Render("no exhaustion predicted")
	if p.Exhausts {
		style := styles.WarningTextStyle
		if p.TimeToExhaustion < time.Minute {
			style = styles.ErrorTextStyle
		}
		exhaustion = style.Render(fmt.Sprintf("exhausts in %s (%.0f%% confidence)",
			components.FormatDuration(p.TimeToExhaustion), p.Confidence*100))
	}

	recommended := p.RecommendedStrategy
	if recommended == "" {
		recommended = snap.Status.Strategy
	}
	return fmt.Sprintf("  %s  %s %s",
		exhaustion,
		styles.HelpStyle.Render("recommends"),
		styles.GetStrategyStyle(recommended).Render(string(recommended)))
}

func (m *Model) renderAlerts(now time.Time) string {
	active := m.state.Alerts()
	title := styles.CardTitleStyle.Render(fmt.Sprintf("Alerts (%d)", len(active)))

	if len(active) == 0 {
		body := styles.SuccessTextStyle.Render("No active alerts")
		return styles.AlertCardStyle.BorderForeground(styles.Subtle).Width(m.cardWidth()).
			Render(lipgloss.JoinVertical(lipgloss.Left, title, body))
	}

	lines := []string{title}
	for _, a := range active {
		badge := styles.GetAlertStyle(a.Type).Width(9).Render(strings.ToUpper(string(a.Type)))
		age := styles.HelpStyle.Render(components.FormatDuration(now.Sub(a.Timestamp)) + " ago")
		lines = append(lines, fmt.Sprintf("%s %s  %s  %s",
			badge,
			lipgloss.NewStyle().Bold(true).Render(a.Provider),
			a.Message,
			age))
	}
	return styles.AlertCardStyle.Width(m.cardWidth()).Render(strings.Join(lines, "\n"))
}
