// Package history provides the history tab charting a provider's remaining
// quota and event mix over a time range.
package history

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/j-veylop/llm-quota-governor/internal/app"
	"github.com/j-veylop/llm-quota-governor/internal/models"
)

const (
	historyLimit = 500
	loadTimeout  = 5 * time.Second
)

// TimeRange is how far back the history tab reads.
type TimeRange time.Duration

// Time ranges cycled with the toggle key.
const (
	Range15Minutes TimeRange = TimeRange(15 * time.Minute)
	RangeHour      TimeRange = TimeRange(time.Hour)
	Range6Hours    TimeRange = TimeRange(6 * time.Hour)
	RangeDay       TimeRange = TimeRange(24 * time.Hour)
)

var timeRanges = []TimeRange{Range15Minutes, RangeHour, Range6Hours, RangeDay}

// Next returns the following time range, wrapping around.
func (r TimeRange) Next() TimeRange {
	for i, tr := range timeRanges {
		if tr == r {
			return timeRanges[(i+1)%len(timeRanges)]
		}
	}
	return timeRanges[0]
}

// String returns a short label such as "15m" or "24h".
func (r TimeRange) String() string {
	d := time.Duration(r)
	if d < time.Hour {
		return fmt.Sprintf("%dm", int(d.Minutes()))
	}
	return fmt.Sprintf("%dh", int(d.Hours()))
}

// keyMap defines the key bindings specific to the history tab.
type keyMap struct {
	ToggleRange key.Binding
	Up          key.Binding
	Down        key.Binding
}

// defaultKeyMap returns the default key bindings for the history tab.
func defaultKeyMap() keyMap {
	return keyMap{
		ToggleRange: key.NewBinding(
			key.WithKeys("t"),
			key.WithHelp("t", "toggle time range"),
		),
		Up: key.NewBinding(
			key.WithKeys("up", "k"),
			key.WithHelp("↑/k", "scroll up"),
		),
		Down: key.NewBinding(
			key.WithKeys("down", "j"),
			key.WithHelp("↓/j", "scroll down"),
		),
	}
}

// historyData is one read of a provider's history.
type historyData struct {
	provider  string
	timeRange TimeRange
	snapshots []models.ProviderSnapshot
	counts    map[models.EventType]int
}

// HasData returns true if there is anything to chart.
func (h *historyData) HasData() bool {
	return h != nil && len(h.snapshots) > 0
}

// historyLoadedMsg is sent when history data is loaded.
type historyLoadedMsg struct {
	data *historyData
}

// historyErrorMsg is sent when there's an error loading history.
type historyErrorMsg struct {
	err string
}

var errNoProvider = errors.New("no provider selected")

// Model represents the history tab state.
type Model struct {
	state    *app.State
	source   app.Source
	width    int
	height   int
	keys     keyMap
	viewport viewport.Model

	timeRange   TimeRange
	historyData *historyData
	loading     bool
	lastRefresh time.Time
	errorMsg    string
}

// New creates a new history model reading from src.
func New(state *app.State, src app.Source) *Model {
	return &Model{
		state:     state,
		source:    src,
		keys:      defaultKeyMap(),
		viewport:  viewport.New(0, 0),
		timeRange: RangeHour,
	}
}

// Init initializes the history tab. History is read once snapshots arrive.
func (m *Model) Init() tea.Cmd {
	return nil
}

func (m *Model) loadHistoryCmd() tea.Cmd {
	src := m.source
	provider := m.state.SelectedProvider()
	tr := m.timeRange

	return func() tea.Msg {
		if src == nil {
			return historyErrorMsg{err: "store not available"}
		}
		if provider == "" {
			return historyErrorMsg{err: errNoProvider.Error()}
		}

		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()

		since := time.Now().Add(-time.Duration(tr))
		snaps, err := src.SnapshotHistory(ctx, provider, since, historyLimit)
		if err != nil {
			return historyErrorMsg{err: err.Error()}
		}
		counts, err := src.EventCounts(ctx, provider, since)
		if err != nil {
			return historyErrorMsg{err: err.Error()}
		}
		return historyLoadedMsg{data: &historyData{
			provider:  provider,
			timeRange: tr,
			snapshots: snaps,
			counts:    counts,
		}}
	}
}

func (m *Model) reload() tea.Cmd {
	if m.loading {
		return nil
	}
	m.loading = true
	return m.loadHistoryCmd()
}

// Update handles messages for the history tab.
func (m *Model) Update(msg tea.Msg) (app.Tab, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case historyLoadedMsg:
		m.historyData = msg.data
		m.loading = false
		m.lastRefresh = time.Now()
		m.errorMsg = ""

	case historyErrorMsg:
		m.loading = false
		m.errorMsg = msg.err
		if msg.err != errNoProvider.Error() {
			cmds = append(cmds, func() tea.Msg {
				return app.AddNotificationMsg{
					Type:     app.NotificationError,
					Message:  fmt.Sprintf("History error: %s", msg.err),
					Duration: app.LongNotificationDuration,
				}
			})
		}

	case app.SnapshotsLoadedMsg:
		if msg.Err == nil {
			cmds = append(cmds, m.reload())
		}

	case app.TabSwitchMsg:
		if msg.Tab == app.TabHistory {
			cmds = append(cmds, m.reload())
		}

	case app.SelectedProviderChangedMsg:
		cmds = append(cmds, m.reload())

	case tea.KeyMsg:
		return m.handleKeyMsg(msg)
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) handleKeyMsg(msg tea.KeyMsg) (app.Tab, tea.Cmd) {
	var cmds []tea.Cmd
	switch {
	case key.Matches(msg, m.keys.ToggleRange):
		m.timeRange = m.timeRange.Next()
		m.loading = true
		cmds = append(cmds, m.loadHistoryCmd())

	default:
		var cmd tea.Cmd
		m.viewport, cmd = m.viewport.Update(msg)
		cmds = append(cmds, cmd)
	}
	return m, tea.Batch(cmds...)
}

// SetSize sets the available size for the history tab.
func (m *Model) SetSize(width, height int) {
	m.width = width
	m.height = height
	m.viewport.Width = width
	m.viewport.Height = height
}

// ShortHelp returns the key bindings for the short help view.
func (m *Model) ShortHelp() []key.Binding {
	return []key.Binding{m.keys.ToggleRange}
}

// FullHelp returns the key bindings for the full help view.
func (m *Model) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{m.keys.ToggleRange},
		{m.keys.Up, m.keys.Down},
	}
}
