package app

import (
	"time"

	"github.com/j-veylop/llm-quota-governor/internal/config"
	"github.com/j-veylop/llm-quota-governor/internal/models"
)

// TickMsg is sent periodically to expire notifications.
type TickMsg struct {
	Time time.Time
}

// PollMsg asks the model to read the store again.
type PollMsg struct{}

// StartLoadingMsg signals that a resource is starting to load.
type StartLoadingMsg struct {
	Resource string
}

// StopLoadingMsg signals that a resource has finished loading.
type StopLoadingMsg struct {
	Resource string
}

// SnapshotsLoadedMsg carries the latest provider snapshots and event log
// read from the store.
type SnapshotsLoadedMsg struct {
	Err       error
	Snapshots []models.ProviderSnapshot
	Events    []models.RateLimitEvent
}

// AlertsChangedMsg reports alerts raised and resolved by the last evaluation.
type AlertsChangedMsg struct {
	Raised   []models.Alert
	Resolved []models.Alert
}

// DismissAlertMsg requests dismissal of an active alert.
type DismissAlertMsg struct {
	ID string
}

// LimitsReloadedMsg carries a reloaded limits file.
type LimitsReloadedMsg struct {
	Limits *config.Limits
}

// AddNotificationMsg requests adding a new notification.
type AddNotificationMsg struct {
	Type     NotificationType
	Message  string
	Duration time.Duration
}

// RemoveNotificationMsg requests removal of a notification.
type RemoveNotificationMsg struct {
	ID string
}

// ErrorMsg represents a general error.
type ErrorMsg struct {
	Error   error
	Context string
}

// TabSwitchMsg requests switching to a specific tab.
type TabSwitchMsg struct {
	Tab TabID
}

// ToggleHelpMsg toggles the help display.
type ToggleHelpMsg struct{}

// SelectedProviderChangedMsg signals that the selected provider changed.
type SelectedProviderChangedMsg struct {
	Index    int
	Provider string
}
