package governor

import (
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/j-veylop/llm-quota-governor/internal/clock"
	"github.com/j-veylop/llm-quota-governor/internal/models"
	"github.com/j-veylop/llm-quota-governor/internal/quota"
)

var testStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

// testConfig configures gemini at 100 rpm, which the balanced strategy caps at 90.
func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Providers["gemini"] = ProviderConfig{
		Limits: quota.Limits{RequestsPerMinute: 100, TokensPerMinute: 100000},
	}
	return cfg
}

func newTestGovernor(t *testing.T, cfg Config, opts ...Option) (*Governor, *clock.Manual) {
	t.Helper()
	clk := clock.NewManual(testStart)
	opts = append([]Option{WithClock(clk), WithRand(func() float64 { return 0.5 })}, opts...)
	g, err := New(cfg, opts...)
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return g, clk
}

// recordEvents collects every published event.
func recordEvents(g *Governor) func() []models.RateLimitEvent {
	var (
		mu  sync.Mutex
		evs []models.RateLimitEvent
	)
	g.Subscribe(func(ev models.RateLimitEvent) {
		mu.Lock()
		evs = append(evs, ev)
		mu.Unlock()
	})
	return func() []models.RateLimitEvent {
		mu.Lock()
		defer mu.Unlock()
		return append([]models.RateLimitEvent(nil), evs...)
	}
}

func mustUsage(t *testing.T, g *Governor, resource models.ResourceType) models.QuotaUsage {
	t.Helper()
	u, err := g.Usage("gemini", resource)
	if err != nil {
		t.Fatalf("Usage() error = %v", err)
	}
	return u
}

func mustStatus(t *testing.T, g *Governor) models.RateLimitStatus {
	t.Helper()
	st, err := g.Status("gemini")
	if err != nil {
		t.Fatalf("Status() error = %v", err)
	}
	return st
}

func reportError(t *testing.T, g *Governor) {
	t.Helper()
	err := g.ReportOutcome(models.Outcome{
		Provider:   "gemini",
		Resource:   models.ResourceRequests,
		Result:     models.ResultError,
		ErrorType:  "server_error",
		ActualCost: 1,
	})
	if err != nil {
		t.Fatalf("ReportOutcome() error = %v", err)
	}
}

func TestGrantThenReport(t *testing.T) {
	g, _ := newTestGovernor(t, testConfig())
	events := recordEvents(g)

	if err := g.tracker.RecordUsage("gemini", models.ResourceRequests, 85); err != nil {
		t.Fatalf("RecordUsage() error = %v", err)
	}

	d := g.RequestPermission("gemini", models.ResourceRequests, 1)
	if !d.Granted || d.Delay != 0 {
		t.Fatalf("RequestPermission() = %+v, want granted", d)
	}

	// Granting alone does not charge usage.
	if u := mustUsage(t, g, models.ResourceRequests); u.Used != 85 {
		t.Errorf("Used after grant = %d, want 85", u.Used)
	}

	err := g.ReportOutcome(models.Outcome{
		Provider:   "gemini",
		Resource:   models.ResourceRequests,
		Result:     models.ResultSuccess,
		ActualCost: 1,
		Latency:    300 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("ReportOutcome() error = %v", err)
	}

	u := mustUsage(t, g, models.ResourceRequests)
	if u.Limit != 90 || u.Used != 86 || u.Remaining() != 4 {
		t.Errorf("usage = %d/%d remaining %d, want 86/90 remaining 4", u.Used, u.Limit, u.Remaining())
	}

	got := events()
	if len(got) != 2 {
		t.Fatalf("got %d events, want 2", len(got))
	}
	if got[0].Type != models.EventPermissionGranted || got[0].Tokens != 1 {
		t.Errorf("first event = %+v, want permission_granted with tokens 1", got[0])
	}
	if got[1].Type != models.EventSuccess || got[1].Latency != 300*time.Millisecond {
		t.Errorf("second event = %+v, want success with latency", got[1])
	}
}

func TestDenyWhenExhausted(t *testing.T) {
	g, clk := newTestGovernor(t, testConfig())
	events := recordEvents(g)

	_ = g.tracker.RecordUsage("gemini", models.ResourceRequests, 90)
	clk.Advance(15 * time.Second)

	d := g.RequestPermission("gemini", models.ResourceRequests, 1)
	if d.Granted {
		t.Fatal("exhausted quota should deny")
	}
	if d.Delay != 45*time.Second {
		t.Errorf("Delay = %s, want 45s until window reset", d.Delay)
	}
	if d.Reason != models.ReasonRequestsLimit {
		t.Errorf("Reason = %q, want %q", d.Reason, models.ReasonRequestsLimit)
	}

	ev := events()[0]
	if ev.Type != models.EventPermissionDenied || ev.Reason != models.ReasonRequestsLimit || ev.Delay != d.Delay {
		t.Errorf("event = %+v, want matching permission_denied", ev)
	}

	st := mustStatus(t, g)
	if st.State != models.StateThrottled || !st.IsRateLimited {
		t.Errorf("status = %+v, want throttled", st)
	}
	if !st.ResetTime.Equal(testStart.Add(time.Minute)) {
		t.Errorf("ResetTime = %v, want %v", st.ResetTime, testStart.Add(time.Minute))
	}

	clk.Advance(45 * time.Second)
	if d := g.RequestPermission("gemini", models.ResourceRequests, 1); !d.Granted {
		t.Errorf("request after window reset = %+v, want granted", d)
	}
}

func TestDenyTokensLimit(t *testing.T) {
	g, _ := newTestGovernor(t, testConfig())

	_ = g.tracker.RecordUsage("gemini", models.ResourceTokens, 89500)

	d := g.RequestPermission("gemini", models.ResourceTokens, 1000)
	if d.Granted || d.Reason != models.ReasonTokensLimit {
		t.Errorf("RequestPermission() = %+v, want tokens_limit denial", d)
	}
	if d := g.RequestPermission("gemini", models.ResourceTokens, 500); !d.Granted {
		t.Errorf("request fitting the remainder = %+v, want granted", d)
	}
}

func TestZeroCostGrantedAtExhaustion(t *testing.T) {
	g, _ := newTestGovernor(t, testConfig())
	_ = g.tracker.RecordUsage("gemini", models.ResourceRequests, 90)

	if d := g.RequestPermission("gemini", models.ResourceRequests, 0); !d.Granted {
		t.Errorf("zero-cost request = %+v, want granted", d)
	}
}

func TestBackoffAfterThreshold(t *testing.T) {
	tests := []struct {
		name string
		r    float64
		want time.Duration
	}{
		{"centre", 0.5, 8 * time.Second},
		{"low jitter", 0, 6800 * time.Millisecond},
		{"high jitter", 0.75, 8600 * time.Millisecond},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, _ := newTestGovernor(t, testConfig(), WithRand(func() float64 { return tt.r }))
			events := recordEvents(g)

			for range 3 {
				reportError(t, g)
			}

			st := mustStatus(t, g)
			if st.State != models.StateBackoff || st.ConsecutiveErrors != 3 {
				t.Fatalf("status = %+v, want backoff after 3 errors", st)
			}

			var applied []models.RateLimitEvent
			for _, ev := range events() {
				if ev.Type == models.EventBackoffApplied {
					applied = append(applied, ev)
				}
			}
			if len(applied) != 1 {
				t.Fatalf("got %d backoff_applied events, want 1", len(applied))
			}

			diff := applied[0].Delay - tt.want
			if diff < -time.Millisecond || diff > time.Millisecond {
				t.Errorf("backoff delay = %s, want %s", applied[0].Delay, tt.want)
			}
		})
	}
}

func TestBackoffDeniesThenProbes(t *testing.T) {
	g, clk := newTestGovernor(t, testConfig())
	for range 3 {
		reportError(t, g)
	}

	d := g.RequestPermission("gemini", models.ResourceRequests, 1)
	if d.Granted || d.Reason != models.ReasonBackoff || d.Delay != 8*time.Second {
		t.Fatalf("request during backoff = %+v, want backoff denial of 8s", d)
	}

	clk.Advance(3 * time.Second)
	if d := g.RequestPermission("gemini", models.ResourceRequests, 1); d.Delay != 5*time.Second {
		t.Errorf("remaining backoff = %s, want 5s", d.Delay)
	}

	clk.Advance(5 * time.Second)
	if d := g.RequestPermission("gemini", models.ResourceRequests, 1); !d.Granted {
		t.Fatalf("first request after backoff = %+v, want granted", d)
	}
	if d := g.RequestPermission("gemini", models.ResourceRequests, 1); d.Granted || d.Reason != models.ReasonBackoff {
		t.Errorf("second request while probing = %+v, want backoff denial", d)
	}
	if d := g.RequestPermission("gemini", models.ResourceTokens, 100); !d.Granted {
		t.Errorf("token request after backoff = %+v, want granted", d)
	}

	if st := mustStatus(t, g); st.State != models.StateBackoff || st.Backoff != 0 {
		t.Errorf("status while probing = %+v, want backoff with nothing left to wait", st)
	}
}

func TestBackoffMonotonic(t *testing.T) {
	cfg := testConfig()
	cfg.Providers["gemini"] = ProviderConfig{
		Limits:         quota.Limits{RequestsPerMinute: 100000},
		ErrorThreshold: 1,
		BaseBackoff:    100 * time.Millisecond,
		MaxBackoff:     30 * time.Second,
		Jitter:         MaxJitter,
	}
	var calls atomic.Int64
	g, _ := newTestGovernor(t, cfg, WithRand(func() float64 {
		if calls.Add(1)%2 == 0 {
			return 0
		}
		return 0.9999
	}))
	events := recordEvents(g)

	for range 25 {
		reportError(t, g)
	}

	var prev time.Duration
	n := 0
	for _, ev := range events() {
		if ev.Type != models.EventBackoffApplied {
			continue
		}
		n++
		if ev.Delay < prev {
			t.Errorf("backoff %d decreased: %s < %s", n, ev.Delay, prev)
		}
		if ev.Delay > 30*time.Second {
			t.Errorf("backoff %d = %s exceeds max", n, ev.Delay)
		}
		prev = ev.Delay
	}
	if n != 25 {
		t.Errorf("got %d backoff events, want 25", n)
	}
	if prev != 30*time.Second {
		t.Errorf("final backoff = %s, want the 30s cap", prev)
	}
}

func TestSingleSuccessRecovers(t *testing.T) {
	g, _ := newTestGovernor(t, testConfig())
	for range 7 {
		reportError(t, g)
	}

	err := g.ReportOutcome(models.Outcome{
		Provider:   "gemini",
		Resource:   models.ResourceRequests,
		Result:     models.ResultSuccess,
		ActualCost: 1,
	})
	if err != nil {
		t.Fatalf("ReportOutcome() error = %v", err)
	}

	st := mustStatus(t, g)
	if st.State != models.StateNormal || st.ConsecutiveErrors != 0 || st.Backoff != 0 || st.IsRateLimited {
		t.Errorf("status after success = %+v, want normal", st)
	}
	if d := g.RequestPermission("gemini", models.ResourceRequests, 1); !d.Granted {
		t.Errorf("request after recovery = %+v, want granted", d)
	}
}

func TestConcurrentRequestsExactGrants(t *testing.T) {
	g, _ := newTestGovernor(t, testConfig())
	_ = g.tracker.RecordUsage("gemini", models.ResourceRequests, 80)

	var (
		wg      sync.WaitGroup
		granted atomic.Int64
		denied  atomic.Int64
	)
	for range 100 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if g.RequestPermission("gemini", models.ResourceRequests, 1).Granted {
				granted.Add(1)
			} else {
				denied.Add(1)
			}
		}()
	}
	wg.Wait()

	if granted.Load() != 10 || denied.Load() != 90 {
		t.Errorf("granted %d denied %d, want 10 and 90", granted.Load(), denied.Load())
	}
	if st := mustStatus(t, g); st.InFlight != 10 {
		t.Errorf("InFlight = %d, want 10", st.InFlight)
	}
}

func TestProvidersDoNotShareState(t *testing.T) {
	cfg := testConfig()
	cfg.Providers["claude"] = ProviderConfig{Limits: quota.Limits{RequestsPerMinute: 10}}
	g, _ := newTestGovernor(t, cfg)

	for range 3 {
		reportError(t, g)
	}
	if d := g.RequestPermission("claude", models.ResourceRequests, 1); !d.Granted {
		t.Errorf("claude request = %+v, want granted while gemini backs off", d)
	}
}

func TestReservationExpires(t *testing.T) {
	cfg := testConfig()
	cfg.ReservationTTL = 10 * time.Second
	g, clk := newTestGovernor(t, cfg)
	_ = g.tracker.RecordUsage("gemini", models.ResourceRequests, 89)

	if d := g.RequestPermission("gemini", models.ResourceRequests, 1); !d.Granted {
		t.Fatalf("first request = %+v, want granted", d)
	}
	if d := g.RequestPermission("gemini", models.ResourceRequests, 1); d.Granted {
		t.Fatal("reserved quota was granted twice")
	}

	clk.Advance(10 * time.Second)
	if d := g.RequestPermission("gemini", models.ResourceRequests, 1); !d.Granted {
		t.Errorf("request after reservation expiry = %+v, want granted", d)
	}
}

func TestOutcomeReleasesItsOwnReservation(t *testing.T) {
	g, _ := newTestGovernor(t, testConfig())

	large := g.RequestPermission("gemini", models.ResourceTokens, 80000)
	small := g.RequestPermission("gemini", models.ResourceTokens, 10000)
	if !large.Granted || !small.Granted {
		t.Fatalf("grants = %+v, %+v; want both granted", large, small)
	}
	if large.Grant == "" || large.Grant == small.Grant {
		t.Fatalf("grant IDs = %q, %q; want distinct", large.Grant, small.Grant)
	}

	err := g.ReportOutcome(models.Outcome{
		Grant: small.Grant, Provider: "gemini", Resource: models.ResourceTokens,
		Result: models.ResultSuccess, ActualCost: 10000,
	})
	if err != nil {
		t.Fatalf("ReportOutcome() error = %v", err)
	}

	// The large call is still in flight and holds the rest of the window.
	if d := g.RequestPermission("gemini", models.ResourceTokens, 70000); d.Granted {
		t.Fatal("quota reserved by the large call was granted again")
	}

	// Repeating a settled grant must not free the large reservation either.
	_ = g.ReportOutcome(models.Outcome{
		Grant: small.Grant, Provider: "gemini", Resource: models.ResourceTokens, Result: models.ResultCanceled,
	})
	if d := g.RequestPermission("gemini", models.ResourceTokens, 1); d.Granted {
		t.Fatal("a repeated outcome released another call's reservation")
	}

	err = g.ReportOutcome(models.Outcome{
		Grant: large.Grant, Provider: "gemini", Resource: models.ResourceTokens,
		Result: models.ResultSuccess, ActualCost: 80000,
	})
	if err != nil {
		t.Fatalf("ReportOutcome() error = %v", err)
	}
	u := mustUsage(t, g, models.ResourceTokens)
	if u.Used > u.Limit {
		t.Errorf("Used = %d exceeds Limit = %d", u.Used, u.Limit)
	}
	if st := mustStatus(t, g); st.InFlight != 0 {
		t.Errorf("InFlight = %d, want 0", st.InFlight)
	}
}

func TestOutcomeWithoutGrantReleasesMatchingAmount(t *testing.T) {
	g, _ := newTestGovernor(t, testConfig())

	g.RequestPermission("gemini", models.ResourceTokens, 80000)
	g.RequestPermission("gemini", models.ResourceTokens, 10000)

	err := g.ReportOutcome(models.Outcome{
		Provider: "gemini", Resource: models.ResourceTokens, Result: models.ResultSuccess, ActualCost: 10000,
	})
	if err != nil {
		t.Fatalf("ReportOutcome() error = %v", err)
	}

	if st := mustStatus(t, g); st.InFlight != 1 {
		t.Errorf("InFlight = %d, want the large reservation kept", st.InFlight)
	}
	if d := g.RequestPermission("gemini", models.ResourceTokens, 1); d.Granted {
		t.Error("the large reservation was released by a smaller outcome")
	}
}

func TestCanceledOutcomeReleasesOnly(t *testing.T) {
	g, _ := newTestGovernor(t, testConfig())
	events := recordEvents(g)
	_ = g.tracker.RecordUsage("gemini", models.ResourceRequests, 89)

	d := g.RequestPermission("gemini", models.ResourceRequests, 1)
	err := g.ReportOutcome(models.Outcome{Grant: d.Grant, Provider: "gemini", Resource: models.ResourceRequests, Result: models.ResultCanceled})
	if err != nil {
		t.Fatalf("ReportOutcome() error = %v", err)
	}

	if u := mustUsage(t, g, models.ResourceRequests); u.Used != 89 {
		t.Errorf("Used = %d, want 89", u.Used)
	}
	if d := g.RequestPermission("gemini", models.ResourceRequests, 1); !d.Granted {
		t.Errorf("request after cancel = %+v, want granted", d)
	}
	if n := len(events()); n != 2 {
		t.Errorf("got %d events, want only the two grants", n)
	}
}

func TestFailSafeDenial(t *testing.T) {
	tests := []struct {
		name     string
		provider string
		resource models.ResourceType
		cost     int64
		setup    func(*Governor, *clock.Manual)
	}{
		{name: "unknown provider", provider: "mystery", resource: models.ResourceRequests, cost: 1},
		{name: "negative cost", provider: "gemini", resource: models.ResourceRequests, cost: -1},
		{name: "unknown resource", provider: "gemini", resource: "images", cost: 1},
		{
			name: "clock skew", provider: "gemini", resource: models.ResourceRequests, cost: 1,
			setup: func(g *Governor, clk *clock.Manual) {
				g.RequestPermission("gemini", models.ResourceRequests, 1)
				clk.Set(testStart.Add(-time.Hour))
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			g, clk := newTestGovernor(t, testConfig())
			if tt.setup != nil {
				tt.setup(g, clk)
			}
			events := recordEvents(g)

			d := g.RequestPermission(tt.provider, tt.resource, tt.cost)
			if d.Granted || d.Reason != models.ReasonInternal || d.Delay != InternalRetryDelay {
				t.Errorf("RequestPermission() = %+v, want internal denial", d)
			}

			got := events()
			if len(got) != 1 || got[0].Type != models.EventPermissionDenied || got[0].Reason != models.ReasonInternal {
				t.Errorf("events = %+v, want one internal permission_denied", got)
			}
		})
	}
}

func TestReportOutcomeErrors(t *testing.T) {
	g, _ := newTestGovernor(t, testConfig())

	tests := []struct {
		name    string
		outcome models.Outcome
		want    error
	}{
		{"unknown provider", models.Outcome{Provider: "mystery", Resource: models.ResourceRequests, Result: models.ResultSuccess}, quota.ErrUnknownProvider},
		{"negative cost", models.Outcome{Provider: "gemini", Resource: models.ResourceRequests, Result: models.ResultSuccess, ActualCost: -3}, ErrInvalidCost},
		{"unknown result", models.Outcome{Provider: "gemini", Resource: models.ResourceRequests, Result: "maybe"}, ErrInternalState},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if err := g.ReportOutcome(tt.outcome); !errors.Is(err, tt.want) {
				t.Errorf("ReportOutcome() error = %v, want %v", err, tt.want)
			}
		})
	}
}

func TestDefaultProviderLimits(t *testing.T) {
	cfg := testConfig()
	cfg.Default = ProviderConfig{Limits: quota.Limits{RequestsPerMinute: 20}}
	g, _ := newTestGovernor(t, cfg)

	if d := g.RequestPermission("openai", models.ResourceRequests, 1); !d.Granted {
		t.Fatalf("request for defaulted provider = %+v, want granted", d)
	}
	u, err := g.Usage("openai", models.ResourceRequests)
	if err != nil {
		t.Fatalf("Usage() error = %v", err)
	}
	if u.Limit != 18 {
		t.Errorf("Limit = %d, want 18", u.Limit)
	}
	if names := g.Providers(); len(names) != 2 || names[0] != "gemini" || names[1] != "openai" {
		t.Errorf("Providers() = %v, want [gemini openai]", names)
	}
}

func TestUpdateProvider(t *testing.T) {
	g, _ := newTestGovernor(t, testConfig())
	_ = g.tracker.RecordUsage("gemini", models.ResourceRequests, 30)

	err := g.UpdateProvider("gemini", ProviderConfig{
		Limits:         quota.Limits{RequestsPerMinute: 40, TokensPerMinute: 1000},
		ErrorThreshold: 1,
	})
	if err != nil {
		t.Fatalf("UpdateProvider() error = %v", err)
	}

	u := mustUsage(t, g, models.ResourceRequests)
	if u.Limit != 36 || u.Used != 30 {
		t.Errorf("usage = %d/%d, want 30/36", u.Used, u.Limit)
	}

	reportError(t, g)
	if st := mustStatus(t, g); st.State != models.StateBackoff {
		t.Errorf("State = %s, want backoff with threshold 1", st.State)
	}

	if err := g.UpdateProvider("gemini", ProviderConfig{}); !errors.Is(err, ErrConfiguration) {
		t.Errorf("UpdateProvider(no limits) error = %v, want ErrConfiguration", err)
	}
	if err := g.UpdateProvider("claude", ProviderConfig{Limits: quota.Limits{RequestsPerMinute: 5}}); err != nil {
		t.Errorf("UpdateProvider(new) error = %v", err)
	}
	if d := g.RequestPermission("claude", models.ResourceRequests, 1); !d.Granted {
		t.Errorf("request for added provider = %+v, want granted", d)
	}
}

func TestRestore(t *testing.T) {
	g, _ := newTestGovernor(t, testConfig())

	stored := models.QuotaUsage{
		Provider:    "gemini",
		Resource:    models.ResourceRequests,
		Used:        12,
		WindowStart: testStart,
		Window:      time.Minute,
	}
	if !g.Restore(stored) {
		t.Fatal("Restore() = false for the current window")
	}
	if u := mustUsage(t, g, models.ResourceRequests); u.Used != 12 {
		t.Errorf("Used = %d, want 12", u.Used)
	}

	stored.Provider = "mystery"
	if g.Restore(stored) {
		t.Error("Restore() applied to an unknown provider")
	}
}
