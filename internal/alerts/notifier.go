package alerts

import (
	"fmt"

	"github.com/gen2brain/beeep"

	"github.com/j-veylop/llm-quota-governor/internal/models"
)

// Notifier delivers raised alerts to a human.
type Notifier interface {
	Notify(alert models.Alert) error
}

// NotifierFunc adapts a function to Notifier.
type NotifierFunc func(models.Alert) error

// Notify calls f.
func (f NotifierFunc) Notify(alert models.Alert) error {
	return f(alert)
}

// DesktopNotifier shows alerts as desktop notifications.
type DesktopNotifier struct {
	// MinType filters out lower severities. Empty means warning.
	MinType models.AlertType
}

// Notify sends a desktop notification when the alert is severe enough.
func (d DesktopNotifier) Notify(alert models.Alert) error {
	floor := d.MinType
	if floor == "" {
		floor = models.AlertWarning
	}
	if severity(alert.Type) < severity(floor) {
		return nil
	}

	title := fmt.Sprintf("%s quota alert: %s", titleCase(string(alert.Type)), alert.Provider)
	return beeep.Notify(title, alert.Message, "")
}

func severity(t models.AlertType) int {
	switch t {
	case models.AlertCritical:
		return 2
	case models.AlertWarning:
		return 1
	default:
		return 0
	}
}

func titleCase(s string) string {
	if s == "" {
		return s
	}
	return string(s[0]-'a'+'A') + s[1:]
}
