package schedule

import (
	"time"
)

// Window is a daily local-time interval [Start,End) in whole hours during
// which actions are suppressed. Start may exceed End for windows wrapping
// midnight (22 -> 6).
type Window struct {
	Start int
	End   int
}

// Contains reports whether t's local hour falls inside the window.
// A zero-width window never matches.
func (w Window) Contains(t time.Time) bool {
	if w.Start == w.End {
		return false
	}
	h := t.Hour()
	if w.Start < w.End {
		return h >= w.Start && h < w.End
	}
	return h >= w.Start || h < w.End
}

// NextWake returns the earliest time at or after now outside the window.
func (w Window) NextWake(now time.Time) time.Time {
	if !w.Contains(now) {
		return now
	}
	end := time.Date(now.Year(), now.Month(), now.Day(), w.End, 0, 0, 0, now.Location())
	if !end.After(now) {
		end = end.Add(24 * time.Hour)
	}
	return end
}

// DayKey formats t as the calendar-date partition key for day-scoped
// counters. Day keys compare and sort correctly as strings.
func DayKey(t time.Time) string {
	return t.Format("2006-01-02")
}

// HourStart truncates t to the top of its clock hour, keeping the location.
func HourStart(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, t.Location())
}
