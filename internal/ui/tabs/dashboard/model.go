// Package dashboard provides the provider overview tab.
package dashboard

import (
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/j-veylop/llm-quota-governor/internal/app"
	"github.com/j-veylop/llm-quota-governor/internal/ui/components"
)

// keyMap defines the key bindings specific to the dashboard tab.
type keyMap struct {
	NextProvider  key.Binding
	PrevProvider  key.Binding
	FirstProvider key.Binding
	LastProvider  key.Binding
	Dismiss       key.Binding
}

// defaultKeyMap returns the default key bindings for the dashboard tab.
func defaultKeyMap() keyMap {
	return keyMap{
		NextProvider: key.NewBinding(
			key.WithKeys("j", "down"),
			key.WithHelp("j/↓", "next provider"),
		),
		PrevProvider: key.NewBinding(
			key.WithKeys("k", "up"),
			key.WithHelp("k/↑", "prev provider"),
		),
		FirstProvider: key.NewBinding(
			key.WithKeys("g", "home"),
			key.WithHelp("g", "first provider"),
		),
		LastProvider: key.NewBinding(
			key.WithKeys("G", "end"),
			key.WithHelp("G", "last provider"),
		),
		Dismiss: key.NewBinding(
			key.WithKeys("x"),
			key.WithHelp("x", "dismiss alert"),
		),
	}
}

// Model represents the dashboard tab state.
type Model struct {
	state    *app.State
	spinner  components.LoadingSpinner
	keys     keyMap
	viewport viewport.Model
	width    int
	height   int
	frame    int
}

// New creates a new dashboard model.
func New(state *app.State) *Model {
	return &Model{
		state:    state,
		spinner:  components.NewSpinner("Reading providers..."),
		keys:     defaultKeyMap(),
		viewport: viewport.New(0, 0),
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
		if cmd, handled := m.handleKeyMsg(msg); handled {
			return m, cmd
		}
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)

	case tea.MouseMsg:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		m.frame++
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) handleKeyMsg(msg tea.KeyMsg) (tea.Cmd, bool) {
	n := len(m.state.Snapshots())
	current := m.state.Selected()

	switch {
	case key.Matches(msg, m.keys.NextProvider):
		return m.selectProvider(current + 1), true
	case key.Matches(msg, m.keys.PrevProvider):
		return m.selectProvider(current - 1), true
	case key.Matches(msg, m.keys.FirstProvider):
		return m.selectProvider(0), true
	case key.Matches(msg, m.keys.LastProvider):
		return m.selectProvider(n - 1), true
	case key.Matches(msg, m.keys.Dismiss):
		active := m.state.AlertsFor(m.state.SelectedProvider())
		if len(active) == 0 {
			return nil, true
		}
		id := active[0].ID
		return func() tea.Msg { return app.DismissAlertMsg{ID: id} }, true
	}
	return nil, false
}

func (m *Model) selectProvider(idx int) tea.Cmd {
	before := m.state.Selected()
	m.state.Select(idx)
	after := m.state.Selected()
	if after == before {
		return nil
	}
	provider := m.state.SelectedProvider()
	return func() tea.Msg {
		return app.SelectedProviderChangedMsg{Index: after, Provider: provider}
	}
}

// SetSize sets the dimensions of the dashboard.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width
	m.viewport.Height = height
}

// ShortHelp returns key bindings for the short help view.
func (m *Model) ShortHelp() []key.Binding {
	return []key.Binding{m.keys.NextProvider, m.keys.PrevProvider, m.keys.Dismiss}
}

// FullHelp returns key bindings for the full help view.
func (m *Model) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{m.keys.NextProvider, m.keys.PrevProvider, m.keys.FirstProvider, m.keys.LastProvider},
		{m.keys.Dismiss},
	}
}
