// Package styles defines the visual styling for the application.
package styles

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/j-veylop/llm-quota-governor/internal/models"
)

// Color definitions for the governor theme.
var (
	// Primary colors
	Primary   = lipgloss.Color("205") // Pink
	Secondary = lipgloss.Color("63")  // Purple
	Subtle    = lipgloss.Color("240") // Gray

	// Resource colors
	Requests = lipgloss.Color("39")  // Blue
	Tokens   = lipgloss.Color("208") // Orange

	// Status colors
	Success = lipgloss.Color("42")  // Green
	Error   = lipgloss.Color("196") // Red
	Warning = lipgloss.Color("220") // Yellow
	Info    = lipgloss.Color("39")  // Blue

	// Background colors
	BgDark   = lipgloss.Color("235")
	BgLight  = lipgloss.Color("237")
	BgAccent = lipgloss.Color("236")

	// Text colors
	TextPrimary   = lipgloss.Color("252")
	TextSecondary = lipgloss.Color("245")
	TextMuted     = lipgloss.Color("240")

	// ToastStyle for floating notifications.
	ToastStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(Primary).
			Padding(0, 1).
			MarginBottom(1)
)

// TitleStyle is used for main headings.
var TitleStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(Primary).
	MarginBottom(1)

// SubTitleStyle is used for section headings.
var SubTitleStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(Secondary).
	MarginBottom(1)

// DocStyle provides consistent document margins.
var DocStyle = lipgloss.NewStyle().
	Margin(1, 2).
	Padding(0, 1)

// CardStyle creates a bordered card container.
var CardStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(Subtle).
	Padding(1, 2).
	MarginBottom(1)

// CardTitleStyle styles card headers.
var CardTitleStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(Primary).
	MarginBottom(1)

// FocusedStyle is used for the selected provider marker.
var FocusedStyle = lipgloss.NewStyle().
	Foreground(Primary).
	Bold(true)

// BlurredStyle is used for unfocused elements.
var BlurredStyle = lipgloss.NewStyle().
	Foreground(TextMuted)

// ProgressLabelStyle styles progress bar labels.
var ProgressLabelStyle = lipgloss.NewStyle().
	Foreground(TextSecondary).
	Width(20)

// HelpStyle is the base style for help text.
var HelpStyle = lipgloss.NewStyle().
	Foreground(TextMuted)

// HelpKeyStyle styles keyboard shortcut keys.
var HelpKeyStyle = lipgloss.NewStyle().
	Foreground(Primary).
	Bold(true)

// HelpDescStyle styles help descriptions.
var HelpDescStyle = lipgloss.NewStyle().
	Foreground(TextSecondary)

// HelpPanelStyle creates the help overlay panel.
var HelpPanelStyle = lipgloss.NewStyle().
	Border(lipgloss.DoubleBorder()).
	BorderForeground(Primary).
	Padding(1, 3).
	Background(BgDark)

// TableHeaderStyle styles table headers.
var TableHeaderStyle = lipgloss.NewStyle().
	Bold(true).
	Foreground(Primary).
	BorderStyle(lipgloss.NormalBorder()).
	BorderBottom(true).
	BorderForeground(Subtle)

// TableSelectedStyle styles selected table rows.
var TableSelectedStyle = lipgloss.NewStyle().
	Background(BgAccent).
	Foreground(TextPrimary).
	Bold(true)

// QuotaHighStyle for plenty of remaining quota (>50%).
var QuotaHighStyle = lipgloss.NewStyle().
	Foreground(Success)

// QuotaMediumStyle for medium remaining quota (20-50%).
var QuotaMediumStyle = lipgloss.NewStyle().
	Foreground(Warning)

// QuotaLowStyle for low remaining quota (<20%).
var QuotaLowStyle = lipgloss.NewStyle().
	Foreground(Error)

// QuotaRateLimitedStyle for exhausted resources.
var QuotaRateLimitedStyle = lipgloss.NewStyle().
	Foreground(Error).
	Bold(true).
	Italic(true)

// ErrorTextStyle for error messages.
var ErrorTextStyle = lipgloss.NewStyle().
	Foreground(Error)

// SuccessTextStyle for success messages.
var SuccessTextStyle = lipgloss.NewStyle().
	Foreground(Success)

// WarningTextStyle for warning messages.
var WarningTextStyle = lipgloss.NewStyle().
	Foreground(Warning)

// InfoTextStyle for info messages.
var InfoTextStyle = lipgloss.NewStyle().
	Foreground(Info)

var (
	strategyConservativeStyle = lipgloss.NewStyle().Foreground(Warning).Bold(true)
	strategyBalancedStyle     = lipgloss.NewStyle().Foreground(Info)
	strategyAggressiveStyle   = lipgloss.NewStyle().Foreground(Success).Bold(true)
)

// AlertCardStyle frames the active alerts list.
var AlertCardStyle = lipgloss.NewStyle().
	Border(lipgloss.RoundedBorder()).
	BorderForeground(Warning).
	Padding(0, 2).
	MarginBottom(1)

// GetQuotaStyle returns the style for a remaining-quota percentage.
func GetQuotaStyle(percent float64, isRateLimited bool) lipgloss.Style {
	if isRateLimited {
		return QuotaRateLimitedStyle
	}
	switch {
	case percent > 50:
		return QuotaHighStyle
	case percent > 20:
		return QuotaMediumStyle
	default:
		return QuotaLowStyle
	}
}

// GetStrategyStyle returns the badge style of a strategy.
func GetStrategyStyle(s models.Strategy) lipgloss.Style {
	switch s {
	case models.StrategyConservative:
		return strategyConservativeStyle
	case models.StrategyAggressive:
		return strategyAggressiveStyle
	default:
		return strategyBalancedStyle
	}
}

// GetStateStyle returns the style of a provider state.
func GetStateStyle(s models.State) lipgloss.Style {
	switch s {
	case models.StateBackoff:
		return QuotaRateLimitedStyle
	case models.StateThrottled:
		return WarningTextStyle
	default:
		return SuccessTextStyle
	}
}

// GetAlertStyle returns the style of an alert severity.
func GetAlertStyle(t models.AlertType) lipgloss.Style {
	switch t {
	case models.AlertCritical:
		return ErrorTextStyle.Bold(true)
	case models.AlertWarning:
		return WarningTextStyle
	default:
		return InfoTextStyle
	}
}

// GetEventStyle returns the style of an event type in the log.
func GetEventStyle(t models.EventType) lipgloss.Style {
	switch t {
	case models.EventSuccess, models.EventPermissionGranted:
		return SuccessTextStyle
	case models.EventPermissionDenied:
		return WarningTextStyle
	case models.EventError, models.EventBackoffApplied:
		return ErrorTextStyle
	default:
		return HelpStyle
	}
}

// CenterBoth centers content both horizontally and vertically.
func CenterBoth(content string, width, height int) string {
	return lipgloss.NewStyle().
		Width(width).
		Height(height).
		Align(lipgloss.Center).
		AlignVertical(lipgloss.Center).
		Render(content)
}
