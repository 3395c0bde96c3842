// Package clock supplies time and quota window arithmetic.
package clock

import (
	"sync"
	"time"
)

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// System is the wall clock.
type System struct{}

// Now returns time.Now().
func (System) Now() time.Time {
	return time.Now()
}

// Manual is a clock that only moves when told to. It is safe for concurrent use.
type Manual struct {
	mu  sync.Mutex
	now time.Time
}

// NewManual creates a manual clock starting at start.
func NewManual(start time.Time) *Manual {
	return &Manual{now: start}
}

// Now returns the current manual time.
func (m *Manual) Now() time.Time {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.now
}

// Advance moves the clock forward by d.
func (m *Manual) Advance(d time.Duration) {
	m.mu.Lock()
	m.now = m.now.Add(d)
	m.mu.Unlock()
}

// Set jumps the clock to t, which may be in the past.
func (m *Manual) Set(t time.Time) {
	m.mu.Lock()
	m.now = t
	m.mu.Unlock()
}

// Window describes a fixed-length quota window.
type Window struct {
	Length time.Duration
}

// Align returns the start of the window containing now, counted from origin.
// Windows are laid end to end, so a start that is several windows old advances
// by whole multiples of the window length.
func (w Window) Align(origin, now time.Time) time.Time {
	if w.Length <= 0 || now.Before(origin) {
		return origin
	}
	elapsed := now.Sub(origin)
	return origin.Add(elapsed - elapsed%w.Length)
}

// Expired reports whether the window starting at start has ended at now.
func (w Window) Expired(start, now time.Time) bool {
	return !now.Before(w.End(start))
}

// End returns the instant the window starting at start closes.
func (w Window) End(start time.Time) time.Time {
	return start.Add(w.Length)
}

// Until returns the time left in the window starting at start, never negative.
func (w Window) Until(start, now time.Time) time.Duration {
	d := w.End(start).Sub(now)
	if d < 0 {
		return 0
	}
	return d
}
