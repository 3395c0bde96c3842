// Package app implements the monitor's Bubble Tea application with tab-based
// navigation over the governor's history store.
package app

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/spinner"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/x/ansi"

	"github.com/j-veylop/llm-quota-governor/internal/alerts"
	"github.com/j-veylop/llm-quota-governor/internal/models"
	"github.com/j-veylop/llm-quota-governor/internal/ui/styles"
)

// TabID represents the identifier for a tab in the application.
type TabID int

const (
	// TabDashboard shows per-provider status and active alerts.
	TabDashboard TabID = iota
	// TabHistory charts remaining quota over time.
	TabHistory
	// TabEvents lists recent rate limit events.
	TabEvents
	// TabInfo shows configuration and build info.
	TabInfo
)

var tabNames = []string{"Dashboard", "History", "Events", "Info"}

// String returns the string representation of the TabID.
func (t TabID) String() string {
	if t < 0 || int(t) >= len(tabNames) {
		return "Unknown"
	}
	return tabNames[t]
}

// Tab defines the interface that all tabs must implement.
type Tab interface {
	// Init initializes the tab and returns any initial commands.
	Init() tea.Cmd

	// Update handles messages and returns the updated tab and any commands.
	Update(msg tea.Msg) (Tab, tea.Cmd)

	// View renders the tab content.
	View() string

	// SetSize sets the available size for the tab.
	SetSize(width, height int)

	// ShortHelp returns key bindings for the short help view.
	ShortHelp() []key.Binding

	// FullHelp returns key bindings for the full help view.
	FullHelp() [][]key.Binding
}

// KeyMap defines the global keybindings.
type KeyMap struct {
	Tab1    key.Binding
	Tab2    key.Binding
	Tab3    key.Binding
	Tab4    key.Binding
	NextTab key.Binding
	PrevTab key.Binding
	Refresh key.Binding
	Help    key.Binding
	Quit    key.Binding
	Escape  key.Binding
}

// DefaultKeyMap returns the default keybindings.
func DefaultKeyMap() KeyMap {
	return KeyMap{
		Tab1:    key.NewBinding(key.WithKeys("1"), key.WithHelp("1", "dashboard")),
		Tab2:    key.NewBinding(key.WithKeys("2"), key.WithHelp("2", "history")),
		Tab3:    key.NewBinding(key.WithKeys("3"), key.WithHelp("3", "events")),
		Tab4:    key.NewBinding(key.WithKeys("4"), key.WithHelp("4", "info")),
		NextTab: key.NewBinding(key.WithKeys("tab", "l", "right"), key.WithHelp("tab/→", "next tab")),
		PrevTab: key.NewBinding(key.WithKeys("shift+tab", "h", "left"), key.WithHelp("shift+tab/←", "prev tab")),
		Refresh: key.NewBinding(key.WithKeys("r", "ctrl+r"), key.WithHelp("r", "reload")),
		Help:    key.NewBinding(key.WithKeys("?"), key.WithHelp("?", "toggle help")),
		Quit:    key.NewBinding(key.WithKeys("q", "ctrl+c"), key.WithHelp("q", "quit")),
		Escape:  key.NewBinding(key.WithKeys("esc"), key.WithHelp("esc", "close")),
	}
}

// ShortHelp returns key bindings for the short help view.
func (k KeyMap) ShortHelp() []key.Binding {
	return []key.Binding{k.Help, k.Refresh, k.Quit}
}

// FullHelp returns key bindings for the full help view.
func (k KeyMap) FullHelp() [][]key.Binding {
	return [][]key.Binding{
		{k.Tab1, k.Tab2, k.Tab3, k.Tab4},
		{k.NextTab, k.PrevTab},
		{k.Refresh, k.Help, k.Quit},
	}
}

// Styles defines the application chrome styles.
type Styles struct {
	TabBar      lipgloss.Style
	ActiveTab   lipgloss.Style
	InactiveTab lipgloss.Style

	NotificationSuccess lipgloss.Style
	NotificationError   lipgloss.Style
	NotificationWarning lipgloss.Style
	NotificationInfo    lipgloss.Style

	Content   lipgloss.Style
	Toast     lipgloss.Style
	Title     lipgloss.Style
	Subtle    lipgloss.Style
	Highlight lipgloss.Style
}

// DefaultStyles returns the default application styles.
func DefaultStyles() Styles {
	subtle := lipgloss.AdaptiveColor{Light: "#9B9B9B", Dark: "#5C5C5C"}
	highlight := lipgloss.AdaptiveColor{Light: "#874BFD", Dark: "#7D56F4"}
	success := lipgloss.AdaptiveColor{Light: "#04B575", Dark: "#04B575"}
	warning := lipgloss.AdaptiveColor{Light: "#FF8C00", Dark: "#FF8C00"}
	errorColor := lipgloss.AdaptiveColor{Light: "#FF5F87", Dark: "#FF5F87"}
	info := lipgloss.AdaptiveColor{Light: "#0087D7", Dark: "#5FAFFF"}

	return Styles{
		TabBar: lipgloss.NewStyle().Padding(0, 1).BorderStyle(lipgloss.NormalBorder()).
			BorderBottom(true).BorderForeground(subtle),
		ActiveTab:   lipgloss.NewStyle().Bold(true).Foreground(highlight).Padding(0, 2),
		InactiveTab: lipgloss.NewStyle().Foreground(subtle).Padding(0, 2),

		NotificationSuccess: lipgloss.NewStyle().Foreground(success).Padding(0, 1),
		NotificationError:   lipgloss.NewStyle().Foreground(errorColor).Bold(true).Padding(0, 1),
		NotificationWarning: lipgloss.NewStyle().Foreground(warning).Padding(0, 1),
		NotificationInfo:    lipgloss.NewStyle().Foreground(info).Padding(0, 1),

		Content:   lipgloss.NewStyle().Padding(1, 2),
		Toast:     styles.ToastStyle,
		Title:     lipgloss.NewStyle().Bold(true).Foreground(highlight),
		Subtle:    lipgloss.NewStyle().Foreground(subtle),
		Highlight: lipgloss.NewStyle().Foreground(highlight),
	}
}

// Options configure a Model.
type Options struct {
	Source       Source
	Thresholds   alerts.Thresholds
	PollInterval time.Duration
	EventLimit   int
}

// Model is the root application model.
type Model struct {
	activeTab TabID
	tabs      []Tab

	state    *State
	source   Source
	commands *Commands
	alerts   *alerts.Set
	keymap   KeyMap
	styles   Styles
	spinner  spinner.Model

	thresholds    alerts.Thresholds
	pollInterval  time.Duration
	pollScheduled bool

	width    int
	height   int
	showHelp bool
	ready    bool
}

// NewModel creates the root model. Tabs are attached with SetTabs.
func NewModel(opts Options) *Model {
	s := spinner.New()
	s.Spinner = spinner.Dot
	s.Style = lipgloss.NewStyle().Foreground(styles.Primary)

	if opts.PollInterval <= 0 {
		opts.PollInterval = DefaultPollInterval
	}

	return &Model{
		activeTab:    TabDashboard,
		tabs:         make([]Tab, len(tabNames)),
		state:        NewState(),
		source:       opts.Source,
		commands:     NewCommands(opts.Source, opts.EventLimit),
		alerts:       alerts.NewSet(),
		keymap:       DefaultKeyMap(),
		styles:       DefaultStyles(),
		spinner:      s,
		thresholds:   opts.Thresholds,
		pollInterval: opts.PollInterval,
	}
}

// SetTabs sets the tabs for the model.
func (m *Model) SetTabs(tabs []Tab) {
	m.tabs = tabs
	if m.width > 0 && m.height > 0 {
		m.updateTabSizes()
	}
}

// State returns the shared application state.
func (m *Model) State() *State {
	return m.state
}

// Commands returns the command helpers.
func (m *Model) Commands() *Commands {
	return m.commands
}

// ActiveTab returns the currently active tab ID.
func (m *Model) ActiveTab() TabID {
	return m.activeTab
}

// Thresholds returns the alert thresholds in use.
func (m *Model) Thresholds() alerts.Thresholds {
	return m.thresholds
}

// Init starts the spinner, the notification ticker and the first store read.
func (m *Model) Init() tea.Cmd {
	m.state.SetLoadingNotification("Reading store...")

	cmds := []tea.Cmd{
		m.spinner.Tick,
		defaultTickCmd(),
	}
	if cmd := m.commands.Reload(); cmd != nil {
		cmds = append(cmds, cmd)
	}
	for _, tab := range m.tabs {
		if tab != nil {
			cmds = append(cmds, tab.Init())
		}
	}

	return tea.Batch(cmds...)
}

// Update handles messages and updates the model.
func (m *Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmds []tea.Cmd

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.ready = true
		m.updateTabSizes()
	case tea.KeyMsg:
		if cmd, handled := m.handleKeyMsg(msg); handled {
			return m, cmd
		}
	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		cmds = append(cmds, cmd)
	default:
		cmds = append(cmds, m.handleAppMsg(msg)...)
	}

	if _, ok := msg.(LimitsReloadedMsg); ok {
		cmds = append(cmds, m.broadcast(msg)...)
	} else if cmd := m.updateActiveTab(msg); cmd != nil {
		cmds = append(cmds, cmd)
	}

	return m, tea.Batch(cmds...)
}

func (m *Model) handleAppMsg(msg tea.Msg) []tea.Cmd {
	var cmds []tea.Cmd
	switch msg := msg.(type) {
	case TickMsg:
		m.state.ClearExpiredNotifications()
		cmds = append(cmds, defaultTickCmd())
	case PollMsg:
		m.pollScheduled = false
		if m.source != nil {
			cmds = append(cmds, loadSnapshotsCmd(m.source, m.commands.eventLimit))
		}
	case SnapshotsLoadedMsg:
		cmds = append(cmds, m.handleSnapshotsLoaded(msg)...)
	case DismissAlertMsg:
		if m.alerts.Dismiss(msg.ID) {
			m.state.SetAlerts(m.alerts.Active())
			cmds = append(cmds, notifyInfoCmd("Alert dismissed"))
		}
	case LimitsReloadedMsg:
		if msg.Limits != nil {
			m.thresholds = msg.Limits.Alerts
			cmds = append(cmds, m.evaluateAlerts(m.state.Snapshots())...)
			cmds = append(cmds, notifyInfoCmd(fmt.Sprintf("Limits reloaded (%d providers)", len(msg.Limits.Providers))))
		}
	case AddNotificationMsg:
		id := m.state.AddNotification(msg.Type, msg.Message, msg.Duration)
		if msg.Duration > 0 {
			cmds = append(cmds, clearNotificationCmd(id, msg.Duration))
		}
	case RemoveNotificationMsg:
		m.state.RemoveNotification(msg.ID)
	case StartLoadingMsg:
		m.state.SetLoading(msg.Resource, true)
		m.state.SetLoadingNotification("Reloading...")
	case StopLoadingMsg:
		m.stopLoading(msg.Resource)
	case ErrorMsg:
		cmds = append(cmds, notifyErrorCmd(msg.Error.Error()))
	case TabSwitchMsg:
		m.activeTab = msg.Tab
		m.updateTabSizes()
	case ToggleHelpMsg:
		m.showHelp = !m.showHelp
	}
	return cmds
}

func (m *Model) stopLoading(resource string) {
	m.state.SetLoading(resource, false)
	if !m.state.AnyLoading() {
		m.state.ClearLoadingNotification()
	}
}

func (m *Model) handleSnapshotsLoaded(msg SnapshotsLoadedMsg) []tea.Cmd {
	var cmds []tea.Cmd

	m.stopLoading("snapshots")
	if !m.pollScheduled {
		m.pollScheduled = true
		cmds = append(cmds, pollCmd(m.pollInterval))
	}

	if msg.Err != nil {
		return append(cmds, notifyErrorCmd(fmt.Sprintf("Failed to read store: %v", msg.Err)))
	}

	m.state.SetSnapshots(msg.Snapshots)
	m.state.SetEvents(msg.Events)
	return append(cmds, m.evaluateAlerts(msg.Snapshots)...)
}

// evaluateAlerts runs the alert rules over snaps and raises toasts for new alerts.
func (m *Model) evaluateAlerts(snaps []models.ProviderSnapshot) []tea.Cmd {
	var changed AlertsChangedMsg
	for _, snap := range snaps {
		triggered := alerts.Evaluate(snap.Timestamp, snap.Status, snap.Metrics, snap.Prediction, m.thresholds)
		raised, resolved := m.alerts.Apply(snap.Status.Provider, triggered)
		changed.Raised = append(changed.Raised, raised...)
		changed.Resolved = append(changed.Resolved, resolved...)
	}
	m.state.SetAlerts(m.alerts.Active())

	if len(changed.Raised) == 0 && len(changed.Resolved) == 0 {
		return nil
	}

	cmds := []tea.Cmd{func() tea.Msg { return changed }}
	for _, a := range changed.Raised {
		text := fmt.Sprintf("[%s] %s", a.Provider, a.Message)
		switch a.Type {
		case models.AlertCritical:
			cmds = append(cmds, notifyErrorCmd(text))
		case models.AlertWarning:
			cmds = append(cmds, notifyWarningCmd(text))
		default:
			cmds = append(cmds, notifyInfoCmd(text))
		}
	}
	return cmds
}

func (m *Model) updateActiveTab(msg tea.Msg) tea.Cmd {
	if int(m.activeTab) < len(m.tabs) && m.tabs[m.activeTab] != nil {
		var cmd tea.Cmd
		m.tabs[m.activeTab], cmd = m.tabs[m.activeTab].Update(msg)
		return cmd
	}
	return nil
}

// broadcast delivers msg to every tab, not only the active one.
func (m *Model) broadcast(msg tea.Msg) []tea.Cmd {
	var cmds []tea.Cmd
	for i, tab := range m.tabs {
		if tab == nil {
			continue
		}
		var cmd tea.Cmd
		m.tabs[i], cmd = tab.Update(msg)
		if cmd != nil {
			cmds = append(cmds, cmd)
		}
	}
	return cmds
}

func (m *Model) updateTabSizes() {
	contentHeight := max(m.height-5, 0)
	for _, tab := range m.tabs {
		if tab != nil {
			tab.SetSize(m.width, contentHeight)
		}
	}
}

func (m *Model) switchTab(id TabID) tea.Cmd {
	m.activeTab = id
	m.updateTabSizes()
	return func() tea.Msg { return TabSwitchMsg{Tab: id} }
}

// handleKeyMsg handles global keys. Keys it does not consume go to the active tab.
func (m *Model) handleKeyMsg(msg tea.KeyMsg) (tea.Cmd, bool) {
	n := len(m.tabs)
	switch {
	case key.Matches(msg, m.keymap.Quit):
		return tea.Quit, true
	case key.Matches(msg, m.keymap.Help):
		m.showHelp = !m.showHelp
		return nil, true
	case key.Matches(msg, m.keymap.Escape) && m.showHelp:
		m.showHelp = false
		return nil, true
	case key.Matches(msg, m.keymap.Tab1):
		return m.switchTab(TabDashboard), true
	case key.Matches(msg, m.keymap.Tab2):
		return m.switchTab(TabHistory), true
	case key.Matches(msg, m.keymap.Tab3):
		return m.switchTab(TabEvents), true
	case key.Matches(msg, m.keymap.Tab4):
		return m.switchTab(TabInfo), true
	case key.Matches(msg, m.keymap.NextTab) && !m.showHelp && n > 0:
		return m.switchTab(TabID((int(m.activeTab) + 1) % n)), true
	case key.Matches(msg, m.keymap.PrevTab) && !m.showHelp && n > 0:
		return m.switchTab(TabID((int(m.activeTab) - 1 + n) % n)), true
	case key.Matches(msg, m.keymap.Refresh):
		return m.commands.Reload(), true
	}
	return nil, false
}

// View renders the application UI.
func (m *Model) View() string {
	var b strings.Builder

	if m.width > 0 {
		b.WriteString(m.renderNavbar())
		b.WriteString("\n")
	}

	if !m.ready {
		b.WriteString(m.styles.Content.Render(m.spinner.View() + " Loading..."))
		return b.String()
	}

	if int(m.activeTab) < len(m.tabs) && m.tabs[m.activeTab] != nil {
		b.WriteString(m.tabs[m.activeTab].View())
	} else {
		b.WriteString(m.styles.Content.Render(m.styles.Subtle.Render("Nothing to show.")))
	}

	view := b.String()
	if m.showHelp {
		view = m.overlayCentered(view, m.renderHelp())
	}
	if toasts := m.renderNotifications(); len(toasts) > 0 {
		view = m.overlayToasts(view, toasts)
	}
	return view
}

func (m *Model) renderNavbar() string {
	tabs := make([]string, 0, len(m.tabs))
	for i := range m.tabs {
		name := TabID(i).String()
		if TabID(i) == m.activeTab {
			tabs = append(tabs, m.styles.ActiveTab.Render(fmt.Sprintf("[%d] %s", i+1, name)))
		} else {
			tabs = append(tabs, m.styles.InactiveTab.Render(fmt.Sprintf(" %d  %s", i+1, name)))
		}
	}

	if n := len(m.state.Alerts()); n > 0 {
		tabs = append(tabs, styles.WarningTextStyle.Render(fmt.Sprintf("  ⚠ %d active", n)))
	}

	return m.styles.TabBar.Width(m.width).Render(lipgloss.JoinHorizontal(lipgloss.Top, tabs...))
}

func (m *Model) renderNotifications() []string {
	notifications := m.state.Notifications()
	toasts := make([]string, 0, len(notifications))

	for _, n := range notifications {
		var style lipgloss.Style
		var prefix string

		switch n.Type {
		case NotificationSuccess:
			style, prefix = m.styles.NotificationSuccess, "[OK]"
		case NotificationError:
			style, prefix = m.styles.NotificationError, "[ERR]"
		case NotificationWarning:
			style, prefix = m.styles.NotificationWarning, "[WARN]"
		case NotificationLoading:
			style, prefix = m.styles.NotificationInfo, m.spinner.View()
		default:
			style, prefix = m.styles.NotificationInfo, "[INFO]"
		}

		toasts = append(toasts, m.styles.Toast.Render(style.Render(prefix+" "+n.Message)))
	}

	return toasts
}

// overlayCentered draws overlay over the middle of base.
func (m *Model) overlayCentered(base, overlay string) string {
	overlayLines := strings.Split(overlay, "\n")
	x := max((m.width-lipgloss.Width(overlay))/2, 0)
	y := max((m.height-len(overlayLines))/2, 0)
	return overlayAt(base, overlayLines, x, y)
}

// overlayToasts stacks toasts in the top right corner of base.
func (m *Model) overlayToasts(base string, toasts []string) string {
	stack := lipgloss.JoinVertical(lipgloss.Right, toasts...)
	x := max(m.width-lipgloss.Width(stack)-2, 0)
	return overlayAt(base, strings.Split(stack, "\n"), x, 2)
}

// overlayAt writes lines over base starting at cell (x, y), keeping what
// base shows to the right of each line.
func overlayAt(base string, lines []string, x, y int) string {
	baseLines := strings.Split(base, "\n")

	for i, line := range lines {
		row := y + i
		if row >= len(baseLines) {
			break
		}

		left := ansi.Truncate(baseLines[row], x, "")
		if w := lipgloss.Width(left); w < x {
			left += strings.Repeat(" ", x-w)
		}
		right := ansi.TruncateLeft(baseLines[row], x+lipgloss.Width(line), "")
		baseLines[row] = left + line + right
	}

	return strings.Join(baseLines, "\n")
}

func (m *Model) renderHelp() string {
	lines := []string{
		m.styles.Title.Render("Keyboard Shortcuts"),
		"",
		m.styles.Highlight.Render("Navigation"),
		"  1-4        Switch tabs",
		"  Tab        Next tab",
		"  Shift+Tab  Previous tab",
		"",
		m.styles.Highlight.Render("Actions"),
		"  r          Reload from store",
		"  ?          Toggle help",
		"  q/Ctrl+C   Quit",
	}

	if int(m.activeTab) < len(m.tabs) && m.tabs[m.activeTab] != nil {
		if bindings := m.tabs[m.activeTab].ShortHelp(); len(bindings) > 0 {
			lines = append(lines, "", m.styles.Highlight.Render(m.activeTab.String()+" Tab"))
			for _, b := range bindings {
				lines = append(lines, fmt.Sprintf("  %-10s %s", b.Help().Key, b.Help().Desc))
			}
		}
	}

	lines = append(lines, "", m.styles.Subtle.Render("Press ? or Esc to close"))

	return styles.HelpPanelStyle.Render(strings.Join(lines, "\n"))
}
