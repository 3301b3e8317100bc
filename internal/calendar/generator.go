package calendar

import (
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/llave-asesoria/fiscal/internal/obligations"
)

var periodNamespace = uuid.MustParse("6f1d8a52-3c0b-5e7a-9b44-2f61c3d0a7e9")

// PeriodID derives the stable identifier of a period from its natural key.
func PeriodID(code string, fiscalYear int, label string) uuid.UUID {
	key := NaturalKey{ObligationCode: code, FiscalYear: fiscalYear, Label: label}
	return uuid.NewSHA1(periodNamespace, []byte(key.String()))
}

// Generate returns the periods of rule for fiscalYear, grouped by periodicity in
// monthly, quarterly, special, annual order. It has no side effects.
func Generate(rule obligations.Rule, fiscalYear int) ([]PeriodDefinition, error) {
	if err := rule.Validate(); err != nil {
		return nil, err
	}
	if err := validateYear(fiscalYear); err != nil {
		return nil, err
	}

	var periods []PeriodDefinition
	for _, p := range obligations.Periodicities {
		if !rule.Allows(p) {
			continue
		}
		switch p {
		case obligations.PeriodicityMonthly:
			periods = append(periods, monthlyPeriods(rule, fiscalYear)...)
		case obligations.PeriodicityQuarterly:
			periods = append(periods, quarterlyPeriods(rule, fiscalYear)...)
		case obligations.PeriodicitySpecial:
			periods = append(periods, installmentPeriods(rule, fiscalYear)...)
		case obligations.PeriodicityAnnual:
			periods = append(periods, annualPeriod(rule, fiscalYear))
		}
	}
	return periods, nil
}

func newPeriod(rule obligations.Rule, year int, kind obligations.Periodicity, index int) PeriodDefinition {
	label := FormatLabel(kind, index)
	return PeriodDefinition{
		ID:             PeriodID(rule.Code, year, label),
		ObligationCode: rule.Code,
		FiscalYear:     year,
		Kind:           kind,
		Label:          label,
		Index:          index,
		Active:         true,
		Source:         WindowGenerated,
	}
}

// followingMonthWindow opens on the first of the month after lastMonth and closes on the due day.
func followingMonthWindow(rule obligations.Rule, year int, lastMonth time.Month) (time.Time, time.Time) {
	month, windowYear := lastMonth+1, year
	rolls := lastMonth == time.December
	if rolls {
		month, windowYear = time.January, year+1
	}
	return obligations.Date(windowYear, month, 1), obligations.Date(windowYear, month, rule.EffectiveDueDay(rolls))
}

// Accrual returns the period covered by the index-th monthly or quarterly period, or
// the whole year for annual ones.
func Accrual(kind obligations.Periodicity, index, year int) (time.Time, time.Time, bool) {
	switch kind {
	case obligations.PeriodicityMonthly:
		if index < 1 || index > 12 {
			return time.Time{}, time.Time{}, false
		}
		month := time.Month(index)
		return obligations.Date(year, month, 1), obligations.Date(year, month, obligations.DaysIn(year, month)), true
	case obligations.PeriodicityQuarterly:
		if index < 1 || index > 4 {
			return time.Time{}, time.Time{}, false
		}
		first, last := time.Month(3*index-2), time.Month(3*index)
		return obligations.Date(year, first, 1), obligations.Date(year, last, obligations.DaysIn(year, last)), true
	case obligations.PeriodicityAnnual:
		return obligations.Date(year, time.January, 1), obligations.Date(year, time.December, 31), true
	}
	return time.Time{}, time.Time{}, false
}

func monthlyPeriods(rule obligations.Rule, year int) []PeriodDefinition {
	out := make([]PeriodDefinition, 0, 12)
	for m := 1; m <= 12; m++ {
		p := newPeriod(rule, year, obligations.PeriodicityMonthly, m)
		p.AccrualStart, p.AccrualEnd, _ = Accrual(obligations.PeriodicityMonthly, m, year)
		p.SubmissionStart, p.SubmissionEnd = followingMonthWindow(rule, year, time.Month(m))
		out = append(out, p)
	}
	return out
}

func quarterlyPeriods(rule obligations.Rule, year int) []PeriodDefinition {
	out := make([]PeriodDefinition, 0, 4)
	for q := 1; q <= 4; q++ {
		p := newPeriod(rule, year, obligations.PeriodicityQuarterly, q)
		p.AccrualStart, p.AccrualEnd, _ = Accrual(obligations.PeriodicityQuarterly, q, year)
		p.SubmissionStart, p.SubmissionEnd = followingMonthWindow(rule, year, time.Month(3*q))
		out = append(out, p)
	}
	return out
}

func installmentPeriods(rule obligations.Rule, year int) []PeriodDefinition {
	installments := append([]obligations.Installment(nil), rule.Installments...)
	sort.Slice(installments, func(i, j int) bool { return installments[i].Number < installments[j].Number })

	out := make([]PeriodDefinition, 0, len(installments))
	for _, inst := range installments {
		cutoff := time.Month(inst.CutoffMonth)
		p := newPeriod(rule, year, obligations.PeriodicitySpecial, inst.Number)
		p.AccrualStart = obligations.Date(year, time.January, 1)
		p.AccrualEnd = obligations.Date(year, cutoff, obligations.DaysIn(year, cutoff))
		p.SubmissionStart, p.SubmissionEnd = inst.Window.Resolve(year)
		out = append(out, p)
	}
	return out
}

func annualPeriod(rule obligations.Rule, year int) PeriodDefinition {
	p := newPeriod(rule, year, obligations.PeriodicityAnnual, 0)
	p.AccrualStart, p.AccrualEnd, _ = Accrual(obligations.PeriodicityAnnual, 0, year)
	p.SubmissionStart, p.SubmissionEnd = rule.Annual.Resolve(year)
	return p
}
