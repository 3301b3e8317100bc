package obligations

import (
	"fmt"
	"strings"
)

// DefaultDueDay is the last day of the window for monthly and quarterly periods.
const DefaultDueDay = 20

// Installment describes one fractional payment of a SPECIAL obligation.
type Installment struct {
	Number      int        `yaml:"number"`
	CutoffMonth int        `yaml:"cutoff_month"`
	Window      WindowSpec `yaml:"window"`
}

// Rule is the periodicity and submission window configuration of an obligation.
type Rule struct {
	Code          string        `yaml:"code"`
	Name          string        `yaml:"name"`
	Periodicities []Periodicity `yaml:"periodicities"`
	// DueDay closes monthly and quarterly windows; 0 means DefaultDueDay.
	DueDay int `yaml:"due_day"`
	// YearEndDueDay overrides DueDay for the window that rolls into January.
	YearEndDueDay int           `yaml:"year_end_due_day"`
	Annual        *WindowSpec   `yaml:"annual,omitempty"`
	Installments  []Installment `yaml:"installments,omitempty"`
	// AllowedClientTypes restricts assignment; empty allows every type.
	AllowedClientTypes []ClientType `yaml:"allowed_client_types,omitempty"`
}

// Allows reports whether the obligation recurs with periodicity p.
func (r Rule) Allows(p Periodicity) bool {
	for _, allowed := range r.Periodicities {
		if allowed == p {
			return true
		}
	}
	return false
}

// AllowsClientType reports whether the obligation may be assigned to a client
// of type t. Unclassified clients are always accepted.
func (r Rule) AllowsClientType(t ClientType) bool {
	if t == "" || len(r.AllowedClientTypes) == 0 {
		return true
	}
	for _, allowed := range r.AllowedClientTypes {
		if allowed == t {
			return true
		}
	}
	return false
}

// AnnualOnly reports whether ANNUAL is the single allowed periodicity.
func (r Rule) AnnualOnly() bool {
	return len(r.Periodicities) == 1 && r.Periodicities[0] == PeriodicityAnnual
}

// EffectiveDueDay returns the closing day for a window opening in a month.
func (r Rule) EffectiveDueDay(rollsIntoNextYear bool) int {
	if rollsIntoNextYear && r.YearEndDueDay > 0 {
		return r.YearEndDueDay
	}
	if r.DueDay > 0 {
		return r.DueDay
	}
	return DefaultDueDay
}

// Type returns the reference record for the rule.
func (r Rule) Type() ObligationType {
	return ObligationType{Code: r.Code, Name: r.Name}
}

// Validate ensures the rule can be turned into a calendar.
func (r Rule) Validate() error {
	if strings.TrimSpace(r.Code) == "" {
		return fmt.Errorf("obligations: rule code required")
	}
	if len(r.Periodicities) == 0 {
		return &UnknownPeriodicityError{Code: r.Code, Reason: "no periodicity configured"}
	}
	for _, p := range r.Periodicities {
		if !p.Valid() {
			return &UnknownPeriodicityError{Code: r.Code, Periodicity: string(p)}
		}
	}
	for _, t := range r.AllowedClientTypes {
		if !t.Valid() {
			return fmt.Errorf("%w: %q for obligation %s", ErrUnknownClientType, t, r.Code)
		}
	}
	if r.DueDay < 0 || r.DueDay > 31 || r.YearEndDueDay < 0 || r.YearEndDueDay > 31 {
		return fmt.Errorf("%w: due day out of range for %s", ErrInvalidWindow, r.Code)
	}
	if r.Allows(PeriodicityAnnual) {
		if r.Annual == nil {
			return &UnknownPeriodicityError{Code: r.Code, Periodicity: string(PeriodicityAnnual), Reason: "annual window missing"}
		}
		if err := r.Annual.Validate(); err != nil {
			return fmt.Errorf("obligations: %s annual window: %w", r.Code, err)
		}
	}
	if r.Allows(PeriodicitySpecial) {
		if len(r.Installments) == 0 {
			return &UnknownPeriodicityError{Code: r.Code, Periodicity: string(PeriodicitySpecial), Reason: "installments missing"}
		}
		seen := make(map[int]struct{}, len(r.Installments))
		for _, inst := range r.Installments {
			if inst.Number < 1 || inst.Number > 9 {
				return fmt.Errorf("obligations: %s installment number %d out of range", r.Code, inst.Number)
			}
			if _, dup := seen[inst.Number]; dup {
				return fmt.Errorf("obligations: %s installment %d duplicated", r.Code, inst.Number)
			}
			seen[inst.Number] = struct{}{}
			if inst.CutoffMonth < 1 || inst.CutoffMonth > 12 {
				return fmt.Errorf("obligations: %s installment %d cutoff month %d", r.Code, inst.Number, inst.CutoffMonth)
			}
			if err := inst.Window.Validate(); err != nil {
				return fmt.Errorf("obligations: %s installment %d: %w", r.Code, inst.Number, err)
			}
		}
	}
	return nil
}
