// Package events provides the event log tab listing recent governor events.
package events

import (
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/table"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/j-veylop/llm-quota-governor/internal/app"
	"github.com/j-veylop/llm-quota-governor/internal/models"
	"github.com/j-veylop/llm-quota-governor/internal/ui/components"
	"github.com/j-veylop/llm-quota-governor/internal/ui/styles"
)

// keyMap defines the key bindings specific to the events tab.
type keyMap struct {
	Filter key.Binding
	Up     key.Binding
	Down   key.Binding
}

func defaultKeyMap() keyMap {
	return keyMap{
		Filter: key.NewBinding(
			key.WithKeys("f"),
			key.WithHelp("f", "filter selected provider"),
		),
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "down"),
		),
	}
}

// Model represents the events tab state.
type Model struct {
	state    *app.State
	table    table.Model
	spinner  components.LoadingSpinner
	keys     keyMap
	filtered bool
	visible  []models.RateLimitEvent
	width    int
	height   int
}

// New creates a new events model.
func New(state *app.State) *Model {
	t := table.New(
		table.WithColumns(columnsFor(80)),
		table.WithFocused(true),
		table.WithHeight(10),
	)

	s := table.DefaultStyles()
	s.Header = s.Header.
		BorderStyle(lipgloss.NormalBorder()).
		BorderForeground(styles.Subtle).
		BorderBottom(true).
		Bold(true).
		Foreground(styles.Primary)
	s.Selected = s.Selected.
		Foreground(styles.TextPrimary).
		Background(styles.BgAccent).
		Bold(true)
	t.SetStyles(s)

	return &Model{
		state:   state,
		table:   t,
		spinner: components.NewSpinner("Reading events..."),
		keys:    defaultKeyMap(),
	}
}

func columnsFor(width int) []table.Column {
	detail := min(max(width-68, 16), 60)
	return []table.Column{
		{Title: "Time", Width: 10},
		{Title: "Provider", Width: 14},
		{Title: "Event", Width: 20},
		{Title: "Resource", Width: 10},
		{Title: "Detail", Width: detail},
	}
}

// Init initializes the model.
func (m *Model) Init() tea.Cmd {
	return m.spinner.Init()
}

// Update handles messages and updates the model.
func (m *Model) Update(msg tea.Msg) (app.Tab, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.KeyMsg:
		if key.Matches(msg, m.keys.Filter) {
			m.filtered = !m.filtered
			m.refreshRows()
			m.table.GotoTop()
			return m, nil
		}
		var cmd tea.Cmd
		m.table, cmd = m.table.Update(msg)
		cmds = append(cmds, cmd)

	case app.SnapshotsLoadedMsg, app.SelectedProviderChangedMsg, app.TabSwitchMsg:
		m.refreshRows()

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

// refreshRows rebuilds the table from the shared event log.
func (m *Model) refreshRows() {
	all := m.state.Events()
	provider := m.state.SelectedProvider()

	m.visible = m.visible[:0]
	for _, ev := range all {
		if m.filtered && ev.Provider != provider {
			continue
		}
		m.visible = append(m.visible, ev)
	}

	rows := make([]table.Row, 0, len(m.visible))
	for _, ev := range m.visible {
		resource := string(ev.Resource)
		if resource == "" {
			resource = "-"
		}
		rows = append(rows, table.Row{
			ev.Timestamp.Local().Format("15:04:05"),
			ev.Provider,
			string(ev.Type),
			resource,
			eventDetail(ev),
		})
	}
	m.table.SetRows(rows)
}

// eventDetail summarizes the fields relevant to an event's type.
func eventDetail(ev models.RateLimitEvent) string {
	switch ev.Type {
	case models.EventPermissionDenied:
		if ev.Delay > 0 {
			return fmt.Sprintf("%s, retry in %s", ev.Reason, components.FormatDuration(ev.Delay))
		}
		return ev.Reason
	case models.EventBackoffApplied:
		return fmt.Sprintf("backoff %s", components.FormatDuration(ev.Delay))
	case models.EventError:
		if ev.ErrorType != "" {
			return ev.ErrorType
		}
		return "error"
	case models.EventSuccess:
		detail := fmt.Sprintf("%d tokens", ev.Tokens)
		if ev.Latency > 0 {
			detail += fmt.Sprintf(" in %s", ev.Latency.Round(time.Millisecond))
		}
		return detail
	case models.EventPermissionGranted:
		if ev.Tokens > 0 {
			return fmt.Sprintf("%d tokens reserved", ev.Tokens)
		}
	}
	return ""
}

// SetSize sets the available size for the events tab.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.table.SetHeight(max(height-10, 3))
	m.table.SetColumns(columnsFor(width))
}

// ShortHelp returns the key bindings for the short help view.
func (m *Model) ShortHelp() []key.Binding {
	return []key.Binding{m.keys.Filter, m.keys.Up, m.keys.Down}
}

// FullHelp returns the key bindings for the full help view.
func (m *Model) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{m.keys.Filter},
		{m.keys.Up, m.keys.Down},
	}
}
