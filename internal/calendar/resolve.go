package calendar

import "github.com/llave-asesoria/fiscal/internal/obligations"

type lookupKey struct {
	code  string
	year  int
	kind  obligations.Periodicity
	index int
}

// Lookup resolves parsed labels to stored period definitions.
type Lookup struct {
	periods map[lookupKey]PeriodDefinition
}

// NewLookup indexes periods by obligation, fiscal year, periodicity and index.
func NewLookup(periods []PeriodDefinition) *Lookup {
	l := &Lookup{periods: make(map[lookupKey]PeriodDefinition, len(periods))}
	for _, p := range periods {
		l.periods[lookupKey{code: p.ObligationCode, year: p.FiscalYear, kind: p.Kind, index: p.Index}] = p
	}
	return l
}

// Resolve finds the definition matching label for code and fiscalYear.
// Unrecognized labels and labels without a stored period yield a *PeriodNotFoundError.
func (l *Lookup) Resolve(code string, fiscalYear int, label PeriodLabel) (PeriodDefinition, error) {
	kind, ok := label.Periodicity()
	if !ok {
		return PeriodDefinition{}, &PeriodNotFoundError{ObligationCode: code, FiscalYear: fiscalYear, Label: label.Raw}
	}
	p, ok := l.periods[lookupKey{code: code, year: fiscalYear, kind: kind, index: label.Number}]
	if !ok {
		return PeriodDefinition{}, &PeriodNotFoundError{ObligationCode: code, FiscalYear: fiscalYear, Label: label.Raw}
	}
	return p, nil
}
