package events

import (
	"fmt"

	"github.com/charmbracelet/lipgloss"

	"github.com/j-veylop/llm-quota-governor/internal/ui/styles"
)

// View renders the events tab.
func (m *Model) View() string {
	if m.state.IsInitialLoading() {
		return m.spinner.Centered(m.width, m.height)
	}

	m.refreshRows()

	sections := []string{m.renderTitle()}
	if len(m.visible) == 0 {
		sections = append(sections, m.renderEmptyState())
	} else {
		sections = append(sections, m.renderTable(), m.renderSelected())
	}

	return styles.DocStyle.
		Width(m.width).
		Height(m.height).
		Render(lipgloss.JoinVertical(lipgloss.Left, sections...))
}

func (m *Model) renderTitle() string {
	title := styles.TitleStyle.Render("Events")

	scope := "all providers"
	if m.filtered {
		scope = m.state.SelectedProvider()
		if scope == "" {
			scope = "no provider"
		}
	}
	subtitle := styles.HelpStyle.Render(fmt.Sprintf("%d recent events · %s", len(m.visible), scope))

	return lipgloss.JoinVertical(lipgloss.Left, title, subtitle, "")
}

func (m *Model) cardWidth() int {
	return max(m.width-6, 60)
}

func (m *Model) renderTable() string {
	return styles.CardStyle.Width(m.cardWidth()).Render(m.table.View())
}

func (m *Model) renderEmptyState() string {
	msg := "No events recorded yet."
	if m.filtered {
		msg = "No events for the selected provider. Press f to show all providers."
	}
	return styles.CardStyle.Width(m.cardWidth()).Render(styles.HelpStyle.Render(msg))
}

// renderSelected shows the event under the cursor with its type colored.
func (m *Model) renderSelected() string {
	idx := m.table.Cursor()
	if idx < 0 || idx >= len(m.visible) {
		return ""
	}
	ev := m.visible[idx]

	line := fmt.Sprintf("%s %s %s",
		styles.GetEventStyle(ev.Type).Bold(true).Render(string(ev.Type)),
		lipgloss.NewStyle().Bold(true).Render(ev.Provider),
		styles.HelpStyle.Render(ev.Timestamp.Local().Format("2006-01-02 15:04:05.000")),
	)
	if detail := eventDetail(ev); detail != "" {
		line += "  " + detail
	}
	return line
}
