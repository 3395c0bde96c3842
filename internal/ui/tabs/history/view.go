package history

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/j-veylop/llm-quota-governor/internal/models"
	"github.com/j-veylop/llm-quota-governor/internal/ui/components"
	"github.com/j-veylop/llm-quota-governor/internal/ui/styles"
)

// eventOrder fixes the row order of the event chart.
var eventOrder = []models.EventType{
	models.EventPermissionGranted,
	models.EventPermissionDenied,
	models.EventSuccess,
	models.EventError,
	models.EventBackoffApplied,
}

// View renders the history tab.
func (m *Model) View() string {
	if m.loading && m.historyData == nil {
		return m.renderLoading()
	}
	if m.errorMsg != "" {
		return m.renderError()
	}
	if !m.historyData.HasData() {
		return m.renderEmpty()
	}

	sections := []string{
		m.renderHeader(),
		m.renderRemainingChart(),
		m.renderLatencyChart(),
		m.renderEventCounts(),
	}

	content := lipgloss.JoinVertical(lipgloss.Left, sections...)
	m.viewport.SetContent(content)

	return styles.DocStyle.
		Width(m.width).
		Height(m.height).
		Render(m.viewport.View())
}

func (m *Model) renderLoading() string {
	return styles.DocStyle.
		Width(m.width).
		Height(m.height).
		Render(styles.HelpStyle.Render("Loading history..."))
}

func (m *Model) renderError() string {
	content := fmt.Sprintf("%s %s",
		styles.ErrorTextStyle.Render("Error:"),
		m.errorMsg,
	)
	return styles.DocStyle.
		Width(m.width).
		Height(m.height).
		Render(content)
}

func (m *Model) renderEmpty() string {
	content := lipgloss.JoinVertical(lipgloss.Left,
		styles.TitleStyle.Render("History"),
		m.renderRangeSelector(),
		"",
		styles.HelpStyle.Render(fmt.Sprintf("No snapshots in the last %s.", m.timeRange)),
		styles.HelpStyle.Render("Snapshots are written on every monitor pass."),
	)
	return styles.DocStyle.
		Width(m.width).
		Height(m.height).
		Render(content)
}

func (m *Model) renderHeader() string {
	title := styles.TitleStyle.Render("History · " + m.historyData.provider)

	refreshed := ""
	if !m.lastRefresh.IsZero() {
		refreshed = styles.HelpStyle.Render(fmt.Sprintf("  %d snapshots · read at %s",
			len(m.historyData.snapshots), m.lastRefresh.Format("15:04:05")))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		title,
		m.renderRangeSelector()+refreshed,
		"",
	)
}

func (m *Model) renderRangeSelector() string {
	parts := make([]string, 0, len(timeRanges))
	for _, tr := range timeRanges {
		if tr == m.timeRange {
			parts = append(parts, styles.FocusedStyle.Render("["+tr.String()+"]"))
		} else {
			parts = append(parts, styles.BlurredStyle.Render(" "+tr.String()+" "))
		}
	}
	return strings.Join(parts, " ")
}

func (m *Model) chartWidth() int {
	return max(m.width-20, 20)
}

// remainingSeries converts snapshots into remaining percentages. A resource
// with a zero limit reads as exhausted.
func remainingSeries(snaps []models.ProviderSnapshot) (requests, tokens []float64) {
	requests = make([]float64, len(snaps))
	tokens = make([]float64, len(snaps))
	for i, s := range snaps {
		requests[i] = percent(s.Status.RequestsRemaining, s.Requests.Limit)
		tokens[i] = percent(s.Status.TokensRemaining, s.Tokens.Limit)
	}
	return requests, tokens
}

func percent(remaining, limit int64) float64 {
	if limit <= 0 {
		return 0
	}
	return min(max(float64(remaining)/float64(limit)*100, 0), 100)
}

func (m *Model) renderRemainingChart() string {
	requests, tokens := remainingSeries(m.historyData.snapshots)

	title := styles.SubTitleStyle.Render("Remaining quota (%)")
	chart := components.RenderRemainingChart(requests, tokens, m.chartWidth(), 10,
		fmt.Sprintf("last %s", m.historyData.timeRange))
	legend := components.RenderLegend([]components.LegendItem{
		{Label: "requests", Color: components.ChartRequestsColor},
		{Label: "tokens", Color: components.ChartTokensColor},
	})

	return lipgloss.JoinVertical(lipgloss.Left, title, chart, legend, "")
}

func (m *Model) renderLatencyChart() string {
	snaps := m.historyData.snapshots
	latency := make([]float64, 0, len(snaps))
	throughput := make([]float64, 0, len(snaps))
	for _, s := range snaps {
		latency = append(latency, float64(s.Metrics.AverageResponseTime.Milliseconds()))
		throughput = append(throughput, s.Metrics.Throughput)
	}

	title := styles.SubTitleStyle.Render("Average latency (ms)")
	chart := components.RenderLineChart(latency, m.chartWidth(), 6, "")

	spark := components.RenderSparkline(throughput, m.chartWidth())
	last := snaps[len(snaps)-1]
	tp := fmt.Sprintf("%s %s %s",
		styles.HelpStyle.Render("throughput"),
		lipgloss.NewStyle().Foreground(styles.Requests).Render(spark),
		styles.HelpStyle.Render(fmt.Sprintf("%.0f/min now", last.Metrics.Throughput)))

	return lipgloss.JoinVertical(lipgloss.Left, title, chart, "", tp, "")
}

func (m *Model) renderEventCounts() string {
	title := styles.SubTitleStyle.Render(fmt.Sprintf("Events in the last %s", m.historyData.timeRange))

	values := make([]float64, 0, len(eventOrder))
	labels := make([]string, 0, len(eventOrder))
	total := 0
	for _, t := range eventOrder {
		n := m.historyData.counts[t]
		total += n
		values = append(values, float64(n))
		labels = append(labels, string(t))
	}
	if total == 0 {
		return lipgloss.JoinVertical(lipgloss.Left, title, styles.HelpStyle.Render("No events recorded."))
	}

	return lipgloss.JoinVertical(lipgloss.Left,
		title,
		components.RenderBarChart(values, labels, min(m.chartWidth(), 80)),
		"",
		styles.HelpStyle.Render(fmt.Sprintf("%d events · updated %s ago",
			total, components.FormatDuration(time.Since(m.lastRefresh)))),
	)
}
