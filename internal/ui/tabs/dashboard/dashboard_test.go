package dashboard

import (
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/j-veylop/llm-quota-governor/internal/app"
	"github.com/j-veylop/llm-quota-governor/internal/models"
)

func snapshot(provider string, state models.State, now time.Time) models.ProviderSnapshot {
	return models.ProviderSnapshot{
		Timestamp: now,
		Requests: models.QuotaUsage{
			Provider: provider, Resource: models.ResourceRequests,
			Used: 30, Limit: 90, Window: time.Minute, WindowStart: now.Add(-20 * time.Second),
		},
		Tokens: models.QuotaUsage{
			Provider: provider, Resource: models.ResourceTokens,
			Used: 40_000, Limit: 90_000, Window: time.Minute, WindowStart: now.Add(-20 * time.Second),
		},
		Status: models.RateLimitStatus{
			Provider:          provider,
			State:             state,
			Strategy:          models.StrategyBalanced,
			RequestsRemaining: 60,
			TokensRemaining:   50_000,
			ResetTime:         now.Add(40 * time.Second),
		},
		Metrics: models.AdaptiveMetrics{
			SuccessRate: 0.9, ErrorRate: 0.1, Throughput: 30,
			AverageResponseTime: 250 * time.Millisecond, Samples: 30,
		},
		Prediction: models.UsagePrediction{
			RecommendedStrategy: models.StrategyBalanced,
			TimeToExhaustion:    2 * time.Minute,
			Confidence:          0.8,
			Exhausts:            true,
		},
	}
}

func keyPress(s string) tea.KeyMsg {
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func newLoadedModel(t *testing.T) (*Model, *app.State) {
	t.Helper()
	now := time.Now()
	state := app.NewState()
	state.SetSnapshots([]models.ProviderSnapshot{
		snapshot("gemini", models.StateNormal, now),
		snapshot("openai", models.StateBackoff, now),
	})
	m := New(state)
	m.SetSize(120, 80)
	return m, state
}

func TestNew(t *testing.T) {
	m := New(app.NewState())
	if m == nil {
		t.Fatal("New returned nil")
	}
	if m.Init() == nil {
		t.Error("Init should start the spinner")
	}
}

func TestModel_ViewBeforeSize(t *testing.T) {
	m := New(app.NewState())
	if got := m.View(); got != "Loading..." {
		t.Errorf("View() = %q, want Loading...", got)
	}
}

func TestModel_ViewInitialLoading(t *testing.T) {
	m := New(app.NewState())
	m.SetSize(80, 24)
	if view := m.View(); !strings.Contains(view, "Reading providers") {
		t.Errorf("loading view missing spinner label:\n%s", view)
	}
}

func TestModel_ViewEmpty(t *testing.T) {
	state := app.NewState()
	state.SetSnapshots(nil)
	m := New(state)
	m.SetSize(100, 40)

	view := m.View()
	if !strings.Contains(view, "No provider snapshots") {
		t.Errorf("empty view missing placeholder:\n%s", view)
	}
	if !strings.Contains(view, "No active alerts") {
		t.Errorf("empty view missing alerts card:\n%s", view)
	}
}

func TestModel_ViewProviders(t *testing.T) {
	m, _ := newLoadedModel(t)
	view := m.View()

	for _, want := range []string{"gemini", "openai", "NORMAL", "BACKOFF", "balanced", "Requests", "Tokens", "exhausts in"} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q", want)
		}
	}
}

func TestModel_ViewAlerts(t *testing.T) {
	m, state := newLoadedModel(t)
	state.SetAlerts([]models.Alert{{
		ID:        "openai:backoff",
		Provider:  "openai",
		Rule:      models.RuleBackoff,
		Type:      models.AlertCritical,
		Message:   "backing off for 45s",
		Timestamp: time.Now(),
	}})

	view := m.View()
	if !strings.Contains(view, "Alerts (1)") || !strings.Contains(view, "backing off for 45s") {
		t.Errorf("view missing alert:\n%s", view)
	}
}

func TestModel_Selection(t *testing.T) {
	m, state := newLoadedModel(t)

	_, cmd := m.Update(keyPress("j"))
	if cmd == nil {
		t.Fatal("moving the selection should emit a command")
	}
	msg, ok := cmd().(app.SelectedProviderChangedMsg)
	if !ok {
		t.Fatalf("expected SelectedProviderChangedMsg, got %T", cmd())
	}
	if msg.Index != 1 || msg.Provider != "openai" {
		t.Errorf("selection = %+v, want index 1 openai", msg)
	}
	if state.Selected() != 1 {
		t.Errorf("state.Selected() = %d, want 1", state.Selected())
	}

	if _, cmd := m.Update(keyPress("j")); cmd != nil {
		t.Error("selection past the last provider should not emit")
	}

	if _, cmd := m.Update(keyPress("g")); cmd == nil || state.Selected() != 0 {
		t.Errorf("g should jump to the first provider, selected %d", state.Selected())
	}
}

func TestModel_DismissAlert(t *testing.T) {
	m, state := newLoadedModel(t)

	if _, cmd := m.Update(keyPress("x")); cmd != nil {
		t.Error("dismiss without alerts should not emit")
	}

	state.SetAlerts([]models.Alert{
		{ID: "openai:backoff", Provider: "openai"},
		{ID: "gemini:requests_low", Provider: "gemini"},
	})

	_, cmd := m.Update(keyPress("x"))
	if cmd == nil {
		t.Fatal("dismiss should emit a command")
	}
	msg, ok := cmd().(app.DismissAlertMsg)
	if !ok || msg.ID != "gemini:requests_low" {
		t.Errorf("dismiss = %#v, want the selected provider's alert", cmd())
	}
}

func TestIsStale(t *testing.T) {
	now := time.Now()
	tests := []struct {
		name string
		age  time.Duration
		win  time.Duration
		want bool
	}{
		{"fresh", 10 * time.Second, time.Minute, false},
		{"older than window", 2 * time.Minute, time.Minute, true},
		{"no window", time.Hour, 0, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := snapshot("p", models.StateNormal, now.Add(-tt.age))
			snap.Requests.Window = tt.win
			if got := isStale(snap, now); got != tt.want {
				t.Errorf("isStale() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestModel_Help(t *testing.T) {
	m := New(app.NewState())
	if len(m.ShortHelp()) == 0 {
		t.Error("ShortHelp is empty")
	}
	if len(m.FullHelp()) == 0 {
		t.Error("FullHelp is empty")
	}
}
