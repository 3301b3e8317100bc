package reconcile

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/llave-asesoria/fiscal/internal/assignments"
	"github.com/llave-asesoria/fiscal/internal/calendar"
	"github.com/llave-asesoria/fiscal/internal/filings"
	"github.com/llave-asesoria/fiscal/internal/obligations"
)

func openByCode(cal *fakeCalendar, now time.Time) map[string][]calendar.PeriodDefinition {
	out := map[string][]calendar.PeriodDefinition{}
	for _, p := range cal.periods {
		if calendar.IsOpen(p, now, time.UTC) {
			out[p.ObligationCode] = append(out[p.ObligationCode], p)
		}
	}
	return out
}

func TestPlanSkipsPeriodsOfOtherPeriodicity(t *testing.T) {
	cal := newFakeCalendar(t, october10, "303")
	plan := Plan(ClientInput{
		ClientID:    "client-a",
		Today:       obligations.Date(2025, time.October, 10),
		Now:         october10,
		Assignments: []assignments.Assignment{assignment("client-a", "303", obligations.PeriodicityMonthly, obligations.Date(2025, time.January, 1))},
		OpenPeriods: openByCode(cal, october10),
		Lookup:      calendar.NewLookup(cal.periods),
	})
	require.Len(t, plan.Create, 1)
	assert.Equal(t, cal.period("303", 2025, "M09").ID, plan.Create[0].PeriodID)
	assert.Empty(t, plan.Warnings)
}

func TestPlanSkipsPeriodsBeforeActiveFrom(t *testing.T) {
	cal := newFakeCalendar(t, october10, "303")
	plan := Plan(ClientInput{
		ClientID:    "client-a",
		Today:       obligations.Date(2025, time.October, 10),
		Now:         october10,
		Assignments: []assignments.Assignment{assignment("client-a", "303", obligations.PeriodicityQuarterly, obligations.Date(2025, time.October, 1))},
		OpenPeriods: openByCode(cal, october10),
	})
	assert.Empty(t, plan.Create)
}

func TestPlanIgnoresAssignmentsNotYetActive(t *testing.T) {
	cal := newFakeCalendar(t, october10, "303")
	plan := Plan(ClientInput{
		ClientID:    "client-a",
		Today:       obligations.Date(2025, time.October, 10),
		Now:         october10,
		Assignments: []assignments.Assignment{assignment("client-a", "303", obligations.PeriodicityQuarterly, obligations.Date(2025, time.November, 1))},
		OpenPeriods: openByCode(cal, october10),
	})
	assert.Empty(t, plan.Create)
}

func TestPlanReportsDuplicateAssignments(t *testing.T) {
	cal := newFakeCalendar(t, october10, "303")
	plan := Plan(ClientInput{
		ClientID: "client-a",
		Today:    obligations.Date(2025, time.October, 10),
		Now:      october10,
		Assignments: []assignments.Assignment{
			assignment("client-a", "303", obligations.PeriodicityQuarterly, obligations.Date(2025, time.January, 1)),
			assignment("client-a", "303", obligations.PeriodicityQuarterly, obligations.Date(2025, time.March, 1)),
		},
		OpenPeriods: openByCode(cal, october10),
	})
	require.Len(t, plan.Create, 1)
	require.Len(t, plan.Warnings, 1)
	assert.ErrorIs(t, plan.Warnings[0].Err, assignments.ErrDuplicateAssignment)
}

func TestPlanDeletesOrphansOnly(t *testing.T) {
	cal := newFakeCalendar(t, october10, "303", "111")
	q2 := cal.period("303", 2025, "2T")
	m05 := cal.period("111", 2025, "M05")
	orphan := filings.NewAwaiting(filings.Key{ClientID: "client-a", ObligationCode: "111", PeriodID: m05.ID}, october10)
	kept := filings.NewAwaiting(filings.Key{ClientID: "client-a", ObligationCode: "303", PeriodID: q2.ID}, october10)

	plan := Plan(ClientInput{
		ClientID:    "client-a",
		Today:       obligations.Date(2025, time.October, 10),
		Now:         october10,
		Assignments: []assignments.Assignment{assignment("client-a", "303", obligations.PeriodicityQuarterly, obligations.Date(2025, time.January, 1))},
		Filings:     []filings.Filing{orphan, kept},
		OpenPeriods: openByCode(cal, october10),
	})
	require.Len(t, plan.Delete, 1)
	assert.Equal(t, orphan.ID, plan.Delete[0].ID)
	assert.Equal(t, 1, plan.Validated)
	assert.Len(t, plan.Create, 1)
}
