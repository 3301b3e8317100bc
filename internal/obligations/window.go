package obligations

import (
	"fmt"
	"time"
)

// WindowSpec describes a submission window relative to a fiscal year.
//
// Days > 0 yields a fixed-length window counted from the start date. Otherwise the
// window closes on EndDay of EndMonth, where EndDay 0 means the last day of that month.
type WindowSpec struct {
	YearOffset int `yaml:"year_offset"`
	StartMonth int `yaml:"start_month"`
	StartDay   int `yaml:"start_day"`
	EndMonth   int `yaml:"end_month"`
	EndDay     int `yaml:"end_day"`
	Days       int `yaml:"days"`
}

// Validate checks month and day ranges.
func (w WindowSpec) Validate() error {
	if w.StartMonth < 1 || w.StartMonth > 12 {
		return fmt.Errorf("%w: start month %d", ErrInvalidWindow, w.StartMonth)
	}
	if w.StartDay < 0 || w.StartDay > 31 {
		return fmt.Errorf("%w: start day %d", ErrInvalidWindow, w.StartDay)
	}
	if w.Days < 0 {
		return fmt.Errorf("%w: negative length", ErrInvalidWindow)
	}
	if w.Days > 0 {
		return nil
	}
	if w.EndMonth < 1 || w.EndMonth > 12 {
		return fmt.Errorf("%w: end month %d", ErrInvalidWindow, w.EndMonth)
	}
	if w.EndDay < 0 || w.EndDay > 31 {
		return fmt.Errorf("%w: end day %d", ErrInvalidWindow, w.EndDay)
	}
	start, end := w.Resolve(2001)
	if end.Before(start) {
		return fmt.Errorf("%w: window ends before it starts", ErrInvalidWindow)
	}
	return nil
}

// Resolve returns the first and last day of the window for fiscalYear as UTC midnights.
func (w WindowSpec) Resolve(fiscalYear int) (time.Time, time.Time) {
	year := fiscalYear + w.YearOffset
	startDay := w.StartDay
	if startDay == 0 {
		startDay = 1
	}
	start := Date(year, time.Month(w.StartMonth), startDay)
	if w.Days > 0 {
		return start, start.AddDate(0, 0, w.Days-1)
	}
	endDay := w.EndDay
	if endDay == 0 {
		endDay = DaysIn(year, time.Month(w.EndMonth))
	}
	return start, Date(year, time.Month(w.EndMonth), endDay)
}

// Date builds a civil date at UTC midnight, clamping day to the month length.
func Date(year int, month time.Month, day int) time.Time {
	if last := DaysIn(year, month); day > last {
		day = last
	}
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DaysIn returns the number of days in month.
func DaysIn(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}
