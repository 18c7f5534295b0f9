package session

import (
	"fmt"
	"time"

	"smc-enginev1/internal/model"
)

// Boundaries defines session windows in UTC minutes-of-day. A window may wrap
// midnight (ASIA does by default). Any minute not covered by the three
// configured windows is OFF_SESSION.
type Boundaries struct {
	AsiaStart   int
	AsiaEnd     int
	LondonStart int
	LondonEnd   int
	NYStart     int
	NYEnd       int
}

// DefaultBoundaries returns the standard forex session map:
// ASIA 23:00–07:00, LONDON 07:00–12:00, NY 12:00–21:00, remainder OFF_SESSION.
func DefaultBoundaries() Boundaries {
	return Boundaries{
		AsiaStart:   23 * 60,
		AsiaEnd:     7 * 60,
		LondonStart: 7 * 60,
		LondonEnd:   12 * 60,
		NYStart:     12 * 60,
		NYEnd:       21 * 60,
	}
}

// Classify returns the session type for a wall-clock instant. Pure function
// of the UTC minute-of-day.
func (b Boundaries) Classify(t time.Time) model.SessionType {
	m := t.UTC().Hour()*60 + t.UTC().Minute()
	switch {
	case inWindow(m, b.AsiaStart, b.AsiaEnd):
		return model.SessionAsia
	case inWindow(m, b.LondonStart, b.LondonEnd):
		return model.SessionLondon
	case inWindow(m, b.NYStart, b.NYEnd):
		return model.SessionNY
	default:
		return model.SessionOff
	}
}

// Validate rejects self-contradictory boundary configurations: out-of-range
// minutes, zero-length windows, or overlapping windows. Called once at config
// load; runtime classification assumes a valid map.
func (b Boundaries) Validate() error {
	windows := []struct {
		name       string
		start, end int
	}{
		{"ASIA", b.AsiaStart, b.AsiaEnd},
		{"LONDON", b.LondonStart, b.LondonEnd},
		{"NY", b.NYStart, b.NYEnd},
	}

	var covered [minutesPerDay]bool
	for _, w := range windows {
		if w.start < 0 || w.start >= minutesPerDay || w.end < 0 || w.end >= minutesPerDay {
			return fmt.Errorf("session %s: boundary minutes out of range [0,%d): start=%d end=%d",
				w.name, minutesPerDay, w.start, w.end)
		}
		if w.start == w.end {
			return fmt.Errorf("session %s: zero-length window at minute %d", w.name, w.start)
		}
		for m := w.start; m != w.end; m = (m + 1) % minutesPerDay {
			if covered[m] {
				return fmt.Errorf("session %s overlaps another window at minute %d", w.name, m)
			}
			covered[m] = true
		}
	}
	return nil
}

const minutesPerDay = 24 * 60

// inWindow tests minute-of-day membership in [start, end), wrapping midnight
// when start > end.
func inWindow(m, start, end int) bool {
	if start < end {
		return m >= start && m < end
	}
	return m >= start || m < end
}

// IsWeekend reports whether the forex market is in its weekend close
// (Friday 21:00 UTC through Sunday 21:00 UTC). Large candle gaps across this
// window are normal, never a data error.
func IsWeekend(t time.Time) bool {
	u := t.UTC()
	switch u.Weekday() {
	case time.Saturday:
		return true
	case time.Friday:
		return u.Hour() >= 21
	case time.Sunday:
		return u.Hour() < 21
	}
	return false
}
