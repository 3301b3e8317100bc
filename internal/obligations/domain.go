package obligations

import (
	"errors"
	"fmt"
	"strings"
)

// Periodicity enumerates how often an obligation recurs within a fiscal year.
type Periodicity string

const (
	PeriodicityMonthly   Periodicity = "MONTHLY"
	PeriodicityQuarterly Periodicity = "QUARTERLY"
	PeriodicityAnnual    Periodicity = "ANNUAL"
	PeriodicitySpecial   Periodicity = "SPECIAL"
)

// Periodicities lists the supported values in generation order.
var Periodicities = []Periodicity{
	PeriodicityMonthly,
	PeriodicityQuarterly,
	PeriodicitySpecial,
	PeriodicityAnnual,
}

// Valid reports whether p is one of the supported periodicities.
func (p Periodicity) Valid() bool {
	switch p {
	case PeriodicityMonthly, PeriodicityQuarterly, PeriodicityAnnual, PeriodicitySpecial:
		return true
	}
	return false
}

// ParsePeriodicity accepts the canonical names and the legacy Spanish aliases.
func ParsePeriodicity(raw string) (Periodicity, error) {
	switch strings.ToUpper(strings.TrimSpace(raw)) {
	case "MONTHLY", "MENSUAL":
		return PeriodicityMonthly, nil
	case "QUARTERLY", "TRIMESTRAL":
		return PeriodicityQuarterly, nil
	case "ANNUAL", "ANUAL":
		return PeriodicityAnnual, nil
	case "SPECIAL", "ESPECIAL_FRACCIONADO":
		return PeriodicitySpecial, nil
	}
	return "", &UnknownPeriodicityError{Periodicity: raw}
}

// ObligationType is the reference record of a tax form.
type ObligationType struct {
	Code string
	Name string
}

var (
	// ErrUnknownObligation indicates the code is not part of the catalog.
	ErrUnknownObligation = errors.New("obligations: unknown obligation code")
	// ErrUnknownPeriodicity is wrapped by UnknownPeriodicityError.
	ErrUnknownPeriodicity = errors.New("obligations: unknown periodicity")
	// ErrPeriodicityNotAllowed indicates the rule does not recur with the requested periodicity.
	ErrPeriodicityNotAllowed = errors.New("obligations: periodicity not allowed for obligation")
	// ErrInvalidWindow indicates a malformed submission window specification.
	ErrInvalidWindow = errors.New("obligations: invalid submission window")
)

// UnknownPeriodicityError reports a periodicity rule that cannot be interpreted.
type UnknownPeriodicityError struct {
	Code        string
	Periodicity string
	Reason      string
}

func (e *UnknownPeriodicityError) Error() string {
	msg := fmt.Sprintf("obligations: unknown periodicity %q", e.Periodicity)
	if e.Code != "" {
		msg += fmt.Sprintf(" for obligation %s", e.Code)
	}
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

func (e *UnknownPeriodicityError) Unwrap() error { return ErrUnknownPeriodicity }
