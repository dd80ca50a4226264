// Package schedule decides whether a monitor may be polled at a given instant.
package schedule

import (
	"time"

	"github.com/angeloszaimis/window-monitor/internal/monitor"
)

// IsActiveNow reports whether now falls inside m's polling window: now's
// weekday is one of m.Days and its HH:MM time of day lies within
// [m.StartTime, m.EndTime], both bounds inclusive. now is evaluated in its
// own location; callers convert it to the zone the window is expressed in.
func IsActiveNow(m monitor.Monitor, now time.Time) bool {
	if !m.Days.Has(now.Weekday()) {
		return false
	}
	tod := monitor.ClockTimeOf(now)
	return m.StartTime <= tod && tod <= m.EndTime
}

// Evaluator binds IsActiveNow to a location.
type Evaluator struct {
	location *time.Location
}

// NewEvaluator returns an evaluator for loc, or for time.Local when loc is nil.
func NewEvaluator(loc *time.Location) *Evaluator {
	if loc == nil {
		loc = time.Local
	}
	return &Evaluator{location: loc}
}

func (e *Evaluator) IsActiveNow(m monitor.Monitor, now time.Time) bool {
	return IsActiveNow(m, now.In(e.location))
}

func (e *Evaluator) Location() *time.Location {
	return e.location
}
