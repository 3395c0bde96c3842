package alerts

import (
	"slices"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/j-veylop/llm-quota-governor/internal/models"
)

// Set is the active alert set. At most one alert per (provider, rule) is active.
type Set struct {
	active map[string]models.Alert
	// muted holds keys dismissed while their condition still held. They are
	// not raised again until an evaluation no longer triggers them.
	muted map[string]bool
	newID func() string
	mu    sync.Mutex
}

// NewSet creates an empty set.
func NewSet() *Set {
	return &Set{
		active: make(map[string]models.Alert),
		muted:  make(map[string]bool),
		newID:  uuid.NewString,
	}
}

// Apply merges the alerts triggered for provider by the latest evaluation.
// New conditions are raised with a fresh ID, still-active ones keep their ID
// and get the latest value, and cleared auto-resolve alerts are removed.
// Alerts that do not auto-resolve stay until dismissed. A dismissed condition
// stays quiet until it clears once.
func (s *Set) Apply(provider string, triggered []models.Alert) (raised, resolved []models.Alert) {
	s.mu.Lock()
	defer s.mu.Unlock()

	seen := make(map[string]bool, len(triggered))
	for _, a := range triggered {
		key := a.Key()
		seen[key] = true
		if s.muted[key] {
			continue
		}

		if cur, ok := s.active[key]; ok {
			cur.CurrentValue = a.CurrentValue
			cur.Message = a.Message
			s.active[key] = cur
			continue
		}

		a.ID = s.newID()
		s.active[key] = a
		raised = append(raised, a)
	}

	for key, a := range s.active {
		if a.Provider != provider || seen[key] || !a.AutoResolve {
			continue
		}
		delete(s.active, key)
		resolved = append(resolved, a)
	}
	for key := range s.muted {
		if !seen[key] && strings.HasPrefix(key, provider+"/") {
			delete(s.muted, key)
		}
	}

	sortAlerts(raised)
	sortAlerts(resolved)
	return raised, resolved
}

// Dismiss removes an alert by ID and reports whether it was active.
func (s *Set) Dismiss(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, a := range s.active {
		if a.ID == id {
			delete(s.active, key)
			s.muted[key] = true
			return true
		}
	}
	return false
}

// Active returns all active alerts ordered by time, then provider and rule.
func (s *Set) Active() []models.Alert {
	s.mu.Lock()
	defer s.mu.Unlock()

	out := make([]models.Alert, 0, len(s.active))
	for _, a := range s.active {
		out = append(out, a)
	}
	sortAlerts(out)
	return out
}

func sortAlerts(list []models.Alert) {
	slices.SortFunc(list, func(a, b models.Alert) int {
		if c := a.Timestamp.Compare(b.Timestamp); c != 0 {
			return c
		}
		return strings.Compare(a.Key(), b.Key())
	})
}
