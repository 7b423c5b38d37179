// Package clock abstracts wall-clock reads so attendance timestamps can be
// pinned in tests.
package clock

import (
	"sync"
	"time"
)

// Clock provides the current time.
type Clock interface {
	Now() time.Time
}

// Real reads the system clock in a location that can be swapped at runtime
// when the school changes its timezone setting.
type Real struct {
	mu  sync.RWMutex
	loc *time.Location
}

// NewReal returns a clock reporting times in loc (UTC when nil).
func NewReal(loc *time.Location) *Real {
	if loc == nil {
		loc = time.UTC
	}
	return &Real{loc: loc}
}

// Now returns the current time in the configured location.
func (r *Real) Now() time.Time {
	return time.Now().In(r.Location())
}

// Location returns the zone Now reports in.
func (r *Real) Location() *time.Location {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.loc
}

// SetLocation switches the zone used by Now. A nil loc is ignored.
func (r *Real) SetLocation(loc *time.Location) {
	if loc == nil {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.loc = loc
}

// Mock is a settable clock for tests.
type Mock struct {
	mu  sync.RWMutex
	now time.Time
}

// NewMock creates a mock clock fixed at t.
func NewMock(t time.Time) *Mock {
	return &Mock{now: t}
}

// Now returns the mocked time.
func (m *Mock) Now() time.Time {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.now
}

// Set moves the clock to t.
func (m *Mock) Set(t time.Time) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = t
}

// Advance moves the clock forward by d.
func (m *Mock) Advance(d time.Duration) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.now = m.now.Add(d)
}

// Date formats t as the YYYY-MM-DD calendar date used by attendance records.
func Date(t time.Time) string {
	return t.Format("2006-01-02")
}

// HourMinute formats t as the HH:mm wall-clock time used by attendance records.
func HourMinute(t time.Time) string {
	return t.Format("15:04")
}
