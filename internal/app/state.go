package app

import (
	"fmt"
	"sync"
	"time"

	"github.com/j-veylop/llm-quota-governor/internal/models"
)

// NotificationType defines the type of notification.
type NotificationType int

const (
	// NotificationSuccess represents a success notification.
	NotificationSuccess NotificationType = iota
	// NotificationError represents an error notification.
	NotificationError
	// NotificationWarning represents a warning notification.
	NotificationWarning
	// NotificationInfo represents an informational notification.
	NotificationInfo
	// NotificationLoading represents a loading notification with spinner.
	NotificationLoading
)

// LoadingNotificationID is the fixed ID for loading notifications.
const LoadingNotificationID = "__loading__"

const maxNotifications = 10

// String returns the string representation of a NotificationType.
func (n NotificationType) String() string {
	switch n {
	case NotificationSuccess:
		return "success"
	case NotificationError:
		return "error"
	case NotificationWarning:
		return "warning"
	case NotificationInfo:
		return "info"
	case NotificationLoading:
		return "loading"
	default:
		return "unknown"
	}
}

// Notification represents a user-facing toast.
type Notification struct {
	CreatedAt time.Time
	ID        string
	Message   string
	Type      NotificationType
	Duration  time.Duration
}

// IsExpired returns true if the notification has outlived its duration.
func (n *Notification) IsExpired() bool {
	if n.Duration <= 0 {
		return false
	}
	return time.Since(n.CreatedAt) > n.Duration
}

// State is the data shared by every tab: the latest provider snapshots read
// from the store, the alerts evaluated over them and the recent event log.
type State struct {
	mu sync.RWMutex

	snapshots     []models.ProviderSnapshot
	alerts        []models.Alert
	events        []models.RateLimitEvent
	selected      int
	initial       bool
	loading       map[string]bool
	lastUpdated   time.Time
	notifications []Notification
	seq           int
}

// NewState creates an empty state that is still in its initial load.
func NewState() *State {
	return &State{
		initial: true,
		loading: make(map[string]bool),
	}
}

// SetSnapshots replaces the provider snapshots and keeps the selection in range.
func (s *State) SetSnapshots(snaps []models.ProviderSnapshot) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.snapshots = snaps
	s.initial = false
	s.lastUpdated = time.Now()
	if s.selected >= len(snaps) {
		s.selected = max(len(snaps)-1, 0)
	}
}

// Snapshots returns a copy of the provider snapshots, ordered by provider.
func (s *State) Snapshots() []models.ProviderSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.ProviderSnapshot, len(s.snapshots))
	copy(out, s.snapshots)
	return out
}

// Selected returns the index of the selected provider.
func (s *State) Selected() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.selected
}

// SelectedProvider returns the name of the selected provider, or "" when
// there are none.
func (s *State) SelectedProvider() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.selected < 0 || s.selected >= len(s.snapshots) {
		return ""
	}
	return s.snapshots[s.selected].Status.Provider
}

// Select moves the selection, clamped to the known providers.
func (s *State) Select(idx int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.selected = min(max(idx, 0), max(len(s.snapshots)-1, 0))
}

// SetAlerts replaces the active alerts.
func (s *State) SetAlerts(active []models.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = active
}

// Alerts returns a copy of the active alerts.
func (s *State) Alerts() []models.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.Alert, len(s.alerts))
	copy(out, s.alerts)
	return out
}

// AlertsFor returns the active alerts of one provider.
func (s *State) AlertsFor(provider string) []models.Alert {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []models.Alert
	for _, a := range s.alerts {
		if a.Provider == provider {
			out = append(out, a)
		}
	}
	return out
}

// SetEvents replaces the recent event log, newest first.
func (s *State) SetEvents(evs []models.RateLimitEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = evs
}

// Events returns a copy of the recent event log.
func (s *State) Events() []models.RateLimitEvent {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]models.RateLimitEvent, len(s.events))
	copy(out, s.events)
	return out
}

// IsInitialLoading reports whether the store has not been read yet.
func (s *State) IsInitialLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.initial
}

// SetLoading marks a resource as loading or done.
func (s *State) SetLoading(resource string, loading bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if loading {
		s.loading[resource] = true
	} else {
		delete(s.loading, resource)
	}
}

// AnyLoading returns true if any resource is currently loading.
func (s *State) AnyLoading() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.loading) > 0
}

// LastUpdated returns when snapshots were last loaded.
func (s *State) LastUpdated() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastUpdated
}

// AddNotification adds a new notification and returns its ID.
func (s *State) AddNotification(notifType NotificationType, message string, duration time.Duration) string {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.seq++
	id := fmt.Sprintf("n%d", s.seq)

	s.notifications = append(s.notifications, Notification{
		ID:        id,
		Type:      notifType,
		Message:   message,
		CreatedAt: time.Now(),
		Duration:  duration,
	})

	if len(s.notifications) > maxNotifications {
		s.notifications = s.notifications[len(s.notifications)-maxNotifications:]
	}

	return id
}

// RemoveNotification removes a notification by ID.
func (s *State) RemoveNotification(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, n := range s.notifications {
		if n.ID == id {
			s.notifications = append(s.notifications[:i], s.notifications[i+1:]...)
			return
		}
	}
}

// ClearExpiredNotifications removes all expired notifications.
func (s *State) ClearExpiredNotifications() {
	s.mu.Lock()
	defer s.mu.Unlock()

	active := s.notifications[:0]
	for _, n := range s.notifications {
		if !n.IsExpired() {
			active = append(active, n)
		}
	}
	s.notifications = active
}

// Notifications returns a copy of the notifications that have not expired.
func (s *State) Notifications() []Notification {
	s.mu.RLock()
	defer s.mu.RUnlock()

	active := make([]Notification, 0, len(s.notifications))
	for _, n := range s.notifications {
		if !n.IsExpired() {
			active = append(active, n)
		}
	}
	return active
}

// SetLoadingNotification shows or updates the loading toast.
func (s *State) SetLoadingNotification(message string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, n := range s.notifications {
		if n.ID == LoadingNotificationID {
			s.notifications[i].Message = message
			return
		}
	}

	s.notifications = append(s.notifications, Notification{
		ID:        LoadingNotificationID,
		Type:      NotificationLoading,
		Message:   message,
		CreatedAt: time.Now(),
	})
}

// ClearLoadingNotification removes the loading toast.
func (s *State) ClearLoadingNotification() {
	s.RemoveNotification(LoadingNotificationID)
}
