package reconcile

import (
	"time"

	"github.com/google/uuid"

	"github.com/llave-asesoria/fiscal/internal/assignments"
	"github.com/llave-asesoria/fiscal/internal/calendar"
	"github.com/llave-asesoria/fiscal/internal/filings"
)

// ClientInput is everything the planner needs to reconcile one client.
type ClientInput struct {
	ClientID    string
	Today       time.Time
	Now         time.Time
	Assignments []assignments.Assignment
	Filings     []filings.Filing
	// OpenPeriods holds the open periods keyed by obligation code.
	OpenPeriods map[string][]calendar.PeriodDefinition
	Lookup      *calendar.Lookup
	// Periods holds the definitions of existing filings; only read when WindowAware is set.
	Periods     map[uuid.UUID]calendar.PeriodDefinition
	WindowAware bool
}

// ClientPlan is the set of changes that aligns one client's filings with its assignments.
type ClientPlan struct {
	ClientID  string
	Validated int
	Delete    []filings.Filing
	Create    []filings.Filing
	Warnings  []Warning
}

// Plan computes the reconciliation of one client. It performs no I/O.
//
// Phase A keeps an awaiting filing while some assignment flagged active exists for its
// obligation; the assignment window is only considered when WindowAware is set.
// Phase B creates a filing for every open period of every effectively active
// assignment whose periodicity matches and whose window covers the accrual period.
func Plan(in ClientInput) ClientPlan {
	plan := ClientPlan{ClientID: in.ClientID}

	byCode := make(map[string][]assignments.Assignment)
	for _, a := range in.Assignments {
		if a.IsActive {
			byCode[a.ObligationCode] = append(byCode[a.ObligationCode], a)
		}
	}

	existing := make(map[filings.Key]filings.Filing, len(in.Filings))
	deleted := make(map[filings.Key]filings.Filing)
	for _, f := range in.Filings {
		if f.State != filings.StateAwaitingSubmission {
			existing[f.Key()] = f
			continue
		}
		if keepFiling(in, f, byCode[f.ObligationCode]) {
			plan.Validated++
			existing[f.Key()] = f
			continue
		}
		deleted[f.Key()] = f
	}

	for _, dup := range assignments.FindDuplicates(in.Assignments, in.Today) {
		plan.Warnings = append(plan.Warnings, Warning{
			ClientID:       in.ClientID,
			ObligationCode: dup.ObligationCode,
			Err:            dup,
		})
	}

	lookup := in.Lookup
	if lookup == nil {
		var all []calendar.PeriodDefinition
		for _, list := range in.OpenPeriods {
			all = append(all, list...)
		}
		lookup = calendar.NewLookup(all)
	}

	planned := make(map[filings.Key]struct{})
	unresolved := make(map[calendar.NaturalKey]struct{})
	for _, a := range in.Assignments {
		if !a.EffectivelyActive(in.Today) {
			continue
		}
		for _, open := range in.OpenPeriods[a.ObligationCode] {
			def, err := lookup.Resolve(a.ObligationCode, open.FiscalYear, calendar.ParseLabel(open.Label))
			if err != nil {
				if _, seen := unresolved[open.Key()]; !seen {
					unresolved[open.Key()] = struct{}{}
					plan.Warnings = append(plan.Warnings, Warning{
						ClientID:       in.ClientID,
						ObligationCode: a.ObligationCode,
						Label:          open.Label,
						Err:            err,
					})
				}
				continue
			}
			if def.Kind != a.Periodicity || !a.CoversRange(def.AccrualStart, def.AccrualEnd) {
				continue
			}
			key := filings.Key{ClientID: in.ClientID, ObligationCode: a.ObligationCode, PeriodID: def.ID}
			if _, ok := existing[key]; ok {
				continue
			}
			if _, ok := planned[key]; ok {
				continue
			}
			planned[key] = struct{}{}
			if f, ok := deleted[key]; ok {
				delete(deleted, key)
				existing[key] = f
				plan.Validated++
				continue
			}
			plan.Create = append(plan.Create, filings.NewAwaiting(key, in.Now))
		}
	}

	for _, f := range in.Filings {
		if _, ok := deleted[f.Key()]; ok {
			plan.Delete = append(plan.Delete, f)
		}
	}
	return plan
}

func keepFiling(in ClientInput, f filings.Filing, active []assignments.Assignment) bool {
	if len(active) == 0 {
		return false
	}
	if !in.WindowAware {
		return true
	}
	period, ok := in.Periods[f.PeriodID]
	if !ok {
		return true
	}
	for _, a := range active {
		if a.CoversRange(period.AccrualStart, period.AccrualEnd) {
			return true
		}
	}
	return false
}

// Empty reports whether the plan changes nothing.
func (p ClientPlan) Empty() bool {
	return len(p.Delete) == 0 && len(p.Create) == 0
}

func filingIDs(list []filings.Filing) []uuid.UUID {
	ids := make([]uuid.UUID, len(list))
	for i, f := range list {
		ids[i] = f.ID
	}
	return ids
}
