package usecase

import (
	"time"
)

// ComputeWindow returns the half-open 24h window [day-1@startHour,
// day@startHour) that most recently closed before now, in the given
// location.
func ComputeWindow(now time.Time, loc *time.Location, startHour int) (time.Time, time.Time) {
	local := now.In(loc)
	end := time.Date(local.Year(), local.Month(), local.Day(), startHour, 0, 0, 0, loc)
	if end.After(local) {
		end = end.AddDate(0, 0, -1)
	}
	start := end.AddDate(0, 0, -1)
	return start.UTC(), end.UTC()
}

// WindowForDate returns the window ending at startHour of the given
// calendar day.
func WindowForDate(year int, month time.Month, day int, loc *time.Location, startHour int) (time.Time, time.Time) {
	end := time.Date(year, month, day, startHour, 0, 0, 0, loc)
	start := end.AddDate(0, 0, -1)
	return start.UTC(), end.UTC()
}
