package info

import (
	"fmt"
	"runtime"
	"slices"
	"strconv"

	"github.com/charmbracelet/lipgloss"

	"github.com/j-veylop/llm-quota-governor/internal/governor"
	"github.com/j-veylop/llm-quota-governor/internal/ui/components"
	"github.com/j-veylop/llm-quota-governor/internal/ui/styles"
	"github.com/j-veylop/llm-quota-governor/internal/version"
)

// View renders the info tab.
func (m *Model) View() string {
	sections := []string{
		m.renderTitle(),
		m.renderConfigCard(),
		m.renderLimitsCard(),
		m.renderThresholdsCard(),
		m.renderAboutCard(),
	}

	content := lipgloss.JoinVertical(lipgloss.Left, sections...)
	m.viewport.SetContent(content)

	return styles.DocStyle.
		Width(m.width).
		Height(m.height).
		Render(m.viewport.View())
}

func (m *Model) renderTitle() string {
	title := styles.TitleStyle.Render("Info")
	subtitle := styles.HelpStyle.Render("Configuration, limits and build information")

	return lipgloss.JoinVertical(lipgloss.Left, title, subtitle, "")
}

func (m *Model) cardWidth() int {
	return min(max(m.width-6, 50), 90)
}

func (m *Model) renderCard(title string, rows []string) string {
	body := append([]string{styles.CardTitleStyle.Render(title)}, rows...)
	return styles.CardStyle.Width(m.cardWidth()).Render(
		lipgloss.JoinVertical(lipgloss.Left, body...),
	)
}

// renderConfigRow renders a configuration key-value row.
func (m *Model) renderConfigRow(label, value string) string {
	labelStyle := lipgloss.NewStyle().
		Width(20).
		Foreground(styles.TextMuted)

	valueStyle := lipgloss.NewStyle().
		Foreground(styles.TextPrimary)

	return labelStyle.Render(label+":") + " " + valueStyle.Render(value)
}

func (m *Model) renderConfigCard() string {
	if m.config == nil {
		return m.renderCard("Configuration", []string{styles.HelpStyle.Render("Configuration not loaded")})
	}

	c := m.config
	metrics := c.MetricsAddr
	if metrics == "" {
		metrics = "disabled"
	}
	retention := "forever"
	if c.Retention > 0 {
		retention = c.Retention.String()
	}

	return m.renderCard("Configuration", []string{
		m.renderConfigRow("Database", c.DatabasePath),
		m.renderConfigRow("Limits File", c.LimitsPath),
		m.renderConfigRow("Metrics Address", metrics),
		m.renderConfigRow("Refresh Interval", c.RefreshInterval.String()),
		m.renderConfigRow("History Retention", retention),
		m.renderConfigRow("Event Buffer", strconv.Itoa(c.EventBuffer)),
		m.renderConfigRow("Desktop Alerts", strconv.FormatBool(c.Notify)),
		m.renderConfigRow("Log Level", c.LogLevel),
	})
}

func formatLimit(n int64) string {
	return components.FormatCount(max(n, 0))
}

func (m *Model) renderProviderRow(name string, p governor.ProviderConfig) string {
	nameStyle := lipgloss.NewStyle().Width(16).Bold(true).Foreground(styles.TextPrimary)
	return nameStyle.Render(name) + " " + styles.HelpStyle.Render(fmt.Sprintf(
		"%s rpm · %s tpm · backoff after %d errors, %s to %s",
		formatLimit(p.Limits.RequestsPerMinute),
		formatLimit(p.Limits.TokensPerMinute),
		p.ErrorThreshold,
		p.BaseBackoff,
		p.MaxBackoff,
	))
}

func (m *Model) renderLimitsCard() string {
	if m.limits == nil {
		return m.renderCard("Limits", []string{styles.HelpStyle.Render("Limits not loaded")})
	}
	l := m.limits

	rows := []string{
		m.renderConfigRow("Window", l.Window.String()),
		m.renderConfigRow("Poll Interval", l.PollInterval.String()),
		m.renderConfigRow("Reservation TTL", l.ReservationTTL.String()),
		"",
	}

	names := make([]string, 0, len(l.Providers))
	for name := range l.Providers {
		names = append(names, name)
	}
	slices.Sort(names)

	if len(names) == 0 {
		rows = append(rows, styles.WarningTextStyle.Render("No providers configured"))
	}
	for _, name := range names {
		rows = append(rows, m.renderProviderRow(name, l.Providers[name]))
	}
	if !l.Default.Limits.IsZero() {
		rows = append(rows, m.renderProviderRow("(default)", l.Default))
	}

	return m.renderCard(fmt.Sprintf("Limits (%d providers)", len(names)), rows)
}

func (m *Model) renderThresholdsCard() string {
	if m.limits == nil {
		return ""
	}
	t := m.limits.Alerts

	return m.renderCard("Alert Thresholds", []string{
		m.renderConfigRow("Requests Warning", fmt.Sprintf("%d left", t.RequestsWarning)),
		m.renderConfigRow("Tokens Warning", fmt.Sprintf("%s left", components.FormatCount(t.TokensWarning))),
		m.renderConfigRow("Error Alert", fmt.Sprintf("%d consecutive", t.ErrorAlert)),
		m.renderConfigRow("Backoff Alert", t.BackoffAlert.String()),
		m.renderConfigRow("Error Rate Warning", fmt.Sprintf("%.0f%%", t.ErrorRateWarning*100)),
		m.renderConfigRow("Exhaustion Info", t.ExhaustionInfo.String()),
	})
}

func (m *Model) renderAboutCard() string {
	return m.renderCard("About "+version.Name, []string{
		m.renderConfigRow("Version", version.GetVersion()),
		m.renderConfigRow("Build Date", version.GetDate()),
		m.renderConfigRow("Git Commit", version.GetCommit()),
		m.renderConfigRow("Go Version", runtime.Version()),
		m.renderConfigRow("Platform", fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH)),
		"",
		fmt.Sprintf("Providers in store: %s", styles.InfoTextStyle.Render(strconv.Itoa(len(m.state.Snapshots())))),
	})
}
