package clock

import (
	"testing"
	"time"
)

func TestManual(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	c := NewManual(start)

	if !c.Now().Equal(start) {
		t.Errorf("Now() = %v, want %v", c.Now(), start)
	}

	c.Advance(90 * time.Second)
	if got := c.Now().Sub(start); got != 90*time.Second {
		t.Errorf("after Advance elapsed = %v, want 90s", got)
	}

	c.Set(start.Add(-time.Minute))
	if !c.Now().Equal(start.Add(-time.Minute)) {
		t.Error("Set should allow moving backwards")
	}
}

func TestWindow_Align(t *testing.T) {
	origin := time.Date(2026, 1, 1, 12, 0, 30, 0, time.UTC)
	w := Window{Length: time.Minute}

	tests := []struct {
		name string
		now  time.Time
		want time.Time
	}{
		{"SameWindow", origin.Add(59 * time.Second), origin},
		{"ExactBoundary", origin.Add(time.Minute), origin.Add(time.Minute)},
		{"SeveralWindows", origin.Add(3*time.Minute + 10*time.Second), origin.Add(3 * time.Minute)},
		{"BeforeOrigin", origin.Add(-time.Second), origin},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := w.Align(origin, tt.now); !got.Equal(tt.want) {
				t.Errorf("Align() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestWindow_ExpiredAndUntil(t *testing.T) {
	start := time.Date(2026, 1, 1, 12, 0, 0, 0, time.UTC)
	w := Window{Length: time.Minute}

	if w.Expired(start, start.Add(59*time.Second)) {
		t.Error("window should not be expired before its end")
	}
	if !w.Expired(start, start.Add(time.Minute)) {
		t.Error("window should be expired at its end")
	}
	if got := w.Until(start, start.Add(45*time.Second)); got != 15*time.Second {
		t.Errorf("Until() = %v, want 15s", got)
	}
	if got := w.Until(start, start.Add(2*time.Minute)); got != 0 {
		t.Errorf("Until() past end = %v, want 0", got)
	}
}
