package calendar

import (
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/llave-asesoria/fiscal/internal/obligations"
)

// Status is the derived submission status of a period at a given date.
type Status string

const (
	StatusUpcoming Status = "UPCOMING"
	StatusOpen     Status = "OPEN"
	StatusClosed   Status = "CLOSED"
)

// WindowSource records where the stored submission window came from.
type WindowSource string

const (
	WindowGenerated WindowSource = "GENERATED"
	WindowImported  WindowSource = "IMPORTED"
	WindowLegacy    WindowSource = "LEGACY"
)

// Fiscal years accepted by generation and import.
const (
	MinFiscalYear = 2000
	MaxFiscalYear = 2100
)

// PeriodDefinition is one occurrence of an obligation within a fiscal year.
// Dates are civil dates stored as UTC midnights.
type PeriodDefinition struct {
	ID              uuid.UUID
	ObligationCode  string
	FiscalYear      int
	Kind            obligations.Periodicity
	Label           string
	Index           int
	AccrualStart    time.Time
	AccrualEnd      time.Time
	SubmissionStart time.Time
	SubmissionEnd   time.Time
	Active          bool
	Source          WindowSource
	// Locked periods reject later workbook imports.
	Locked          bool
}

// Key returns the natural key of the period.
func (p PeriodDefinition) Key() NaturalKey {
	return NaturalKey{ObligationCode: p.ObligationCode, FiscalYear: p.FiscalYear, Label: p.Label}
}

// NaturalKey identifies a period independently of its storage id.
type NaturalKey struct {
	ObligationCode string
	FiscalYear     int
	Label          string
}

func (k NaturalKey) String() string {
	return fmt.Sprintf("%s:%d:%s", k.ObligationCode, k.FiscalYear, k.Label)
}

// PeriodFilter narrows period listings. Zero values do not filter.
type PeriodFilter struct {
	Codes  []string
	Years  []int
	IDs    []uuid.UUID
	OpenOn *time.Time
}

var (
	// ErrNotFound indicates the period does not exist.
	ErrNotFound = errors.New("calendar: period not found")
	// ErrInvalidYear indicates a fiscal year outside the supported range.
	ErrInvalidYear = errors.New("calendar: fiscal year out of range")
	// ErrPeriodLocked indicates the period window was locked by an earlier import.
	ErrPeriodLocked = errors.New("calendar: period locked")
	// ErrPeriodNotFound is wrapped by PeriodNotFoundError.
	ErrPeriodNotFound = errors.New("calendar: period label unresolved")
)

// PeriodNotFoundError reports a label that cannot be resolved to a period definition.
type PeriodNotFoundError struct {
	ObligationCode string
	FiscalYear     int
	Label          string
}

func (e *PeriodNotFoundError) Error() string {
	return fmt.Sprintf("calendar: no period %q for obligation %s in %d", e.Label, e.ObligationCode, e.FiscalYear)
}

func (e *PeriodNotFoundError) Unwrap() error { return ErrPeriodNotFound }

func validateYear(year int) error {
	if year < MinFiscalYear || year > MaxFiscalYear {
		return fmt.Errorf("%w: %d", ErrInvalidYear, year)
	}
	return nil
}
