package app

import (
	"context"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/j-veylop/llm-quota-governor/internal/models"
)

const (
	// DefaultTickInterval is the default interval between ticks.
	DefaultTickInterval = 2 * time.Second

	// DefaultPollInterval is how often the store is read when no interval is set.
	DefaultPollInterval = 5 * time.Second

	// DefaultEventLimit is how many events the log keeps.
	DefaultEventLimit = 100

	// DefaultNotificationDuration is the default duration for notifications.
	DefaultNotificationDuration = 5 * time.Second

	// QuickNotificationDuration is for brief notifications.
	QuickNotificationDuration = 3 * time.Second

	// LongNotificationDuration is for important notifications.
	LongNotificationDuration = 10 * time.Second

	loadTimeout = 5 * time.Second
)

// Source is the read side of the history store.
type Source interface {
	LatestSnapshots(ctx context.Context) ([]models.ProviderSnapshot, error)
	SnapshotHistory(ctx context.Context, provider string, since time.Time, limit int) ([]models.ProviderSnapshot, error)
	RecentEvents(ctx context.Context, limit int) ([]models.RateLimitEvent, error)
	EventCounts(ctx context.Context, provider string, since time.Time) (map[models.EventType]int, error)
}

// tickCmd returns a command that sends a TickMsg after the specified interval.
func tickCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(t time.Time) tea.Msg {
		return TickMsg{Time: t}
	})
}

// defaultTickCmd returns a command that sends a TickMsg after the default interval.
func defaultTickCmd() tea.Cmd {
	return tickCmd(DefaultTickInterval)
}

// pollCmd schedules the next read of the store.
func pollCmd(interval time.Duration) tea.Cmd {
	return tea.Tick(interval, func(time.Time) tea.Msg {
		return PollMsg{}
	})
}

// loadSnapshotsCmd reads the latest snapshots and the event log.
func loadSnapshotsCmd(src Source, eventLimit int) tea.Cmd {
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), loadTimeout)
		defer cancel()

		snaps, err := src.LatestSnapshots(ctx)
		if err != nil {
			return SnapshotsLoadedMsg{Err: err}
		}
		evs, err := src.RecentEvents(ctx, eventLimit)
		if err != nil {
			return SnapshotsLoadedMsg{Err: err}
		}
		return SnapshotsLoadedMsg{Snapshots: snaps, Events: evs}
	}
}

// clearNotificationCmd returns a command that removes a notification after a delay.
func clearNotificationCmd(id string, delay time.Duration) tea.Cmd {
	return tea.Tick(delay, func(_ time.Time) tea.Msg {
		return RemoveNotificationMsg{ID: id}
	})
}

func notifyCmd(t NotificationType, message string, d time.Duration) tea.Cmd {
	return func() tea.Msg {
		return AddNotificationMsg{Type: t, Message: message, Duration: d}
	}
}

// notifySuccessCmd returns a command that adds a success notification.
func notifySuccessCmd(message string) tea.Cmd {
	return notifyCmd(NotificationSuccess, message, DefaultNotificationDuration)
}

// notifyErrorCmd returns a command that adds an error notification.
func notifyErrorCmd(message string) tea.Cmd {
	return notifyCmd(NotificationError, message, LongNotificationDuration)
}

// notifyWarningCmd returns a command that adds a warning notification.
func notifyWarningCmd(message string) tea.Cmd {
	return notifyCmd(NotificationWarning, message, DefaultNotificationDuration)
}

// notifyInfoCmd returns a command that adds an info notification.
func notifyInfoCmd(message string) tea.Cmd {
	return notifyCmd(NotificationInfo, message, QuickNotificationDuration)
}

// Commands exposes the command helpers to tabs.
type Commands struct {
	source     Source
	eventLimit int
}

// NewCommands creates a Commands instance reading from src.
func NewCommands(src Source, eventLimit int) *Commands {
	if eventLimit <= 0 {
		eventLimit = DefaultEventLimit
	}
	return &Commands{source: src, eventLimit: eventLimit}
}

// Reload returns a command that reads the store now.
func (c *Commands) Reload() tea.Cmd {
	if c.source == nil {
		return nil
	}
	return tea.Batch(
		func() tea.Msg { return StartLoadingMsg{Resource: "snapshots"} },
		loadSnapshotsCmd(c.source, c.eventLimit),
	)
}

// NotifySuccess returns a command that adds a success notification.
func (c *Commands) NotifySuccess(message string) tea.Cmd {
	return notifySuccessCmd(message)
}

// NotifyError returns a command that adds an error notification.
func (c *Commands) NotifyError(message string) tea.Cmd {
	return notifyErrorCmd(message)
}

// NotifyInfo returns a command that adds an info notification.
func (c *Commands) NotifyInfo(message string) tea.Cmd {
	return notifyInfoCmd(message)
}
