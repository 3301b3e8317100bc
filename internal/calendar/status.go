package calendar

import (
	"time"

	"github.com/llave-asesoria/fiscal/internal/obligations"
)

// Today converts an instant into the civil date it falls on in loc.
func Today(now time.Time, loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	y, m, d := now.In(loc).Date()
	return obligations.Date(y, m, d)
}

// IsOpen reports whether the submission window of p contains the date of now.
func IsOpen(p PeriodDefinition, now time.Time, loc *time.Location) bool {
	return StatusAt(p, now, loc) == StatusOpen
}

// StatusAt derives the status of p on the date of now. Inactive periods are closed.
func StatusAt(p PeriodDefinition, now time.Time, loc *time.Location) Status {
	today := Today(now, loc)
	switch {
	case !p.Active || today.After(p.SubmissionEnd):
		return StatusClosed
	case today.Before(p.SubmissionStart):
		return StatusUpcoming
	default:
		return StatusOpen
	}
}

// DaysToEnd returns the whole days left until the window closes; negative once closed.
func DaysToEnd(p PeriodDefinition, now time.Time, loc *time.Location) int {
	return daysBetween(Today(now, loc), p.SubmissionEnd)
}

// DaysToStart returns the whole days left until the window opens.
func DaysToStart(p PeriodDefinition, now time.Time, loc *time.Location) int {
	return daysBetween(Today(now, loc), p.SubmissionStart)
}

func daysBetween(from, to time.Time) int {
	return int(to.Sub(from).Hours() / 24)
}
