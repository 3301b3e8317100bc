package legacy

import (
	"bytes"
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/llave-asesoria/fiscal/internal/calendar"
	"github.com/llave-asesoria/fiscal/internal/filings"
	"github.com/llave-asesoria/fiscal/internal/obligations"
)

type memorySource struct {
	models  []Model
	periods []Period
	rows    []ClientTax
}

func (s *memorySource) Models(context.Context) ([]Model, error)          { return s.models, nil }
func (s *memorySource) Periods(context.Context) ([]Period, error)        { return s.periods, nil }
func (s *memorySource) ClientTaxes(context.Context) ([]ClientTax, error) { return s.rows, nil }

type memoryTarget struct {
	types       map[string]obligations.ObligationType
	periods     map[uuid.UUID]calendar.PeriodDefinition
	ledger      map[string]map[string]string
	assignments map[string]Record
	filings     map[filings.Key]filings.Filing
}

func newMemoryTarget() *memoryTarget {
	return &memoryTarget{
		types:       make(map[string]obligations.ObligationType),
		periods:     make(map[uuid.UUID]calendar.PeriodDefinition),
		ledger:      make(map[string]map[string]string),
		assignments: make(map[string]Record),
		filings:     make(map[filings.Key]filings.Filing),
	}
}

func (t *memoryTarget) SyncTypes(_ context.Context, types []obligations.ObligationType) error {
	for _, ot := range types {
		t.types[ot.Code] = ot
	}
	return nil
}

func (t *memoryTarget) UpsertPeriods(_ context.Context, periods []calendar.PeriodDefinition) ([]calendar.PeriodDefinition, error) {
	for _, p := range periods {
		t.periods[p.ID] = p
	}
	return periods, nil
}

func (t *memoryTarget) Ledger(_ context.Context, table string) (map[string]string, error) {
	out := make(map[string]string)
	for k, v := range t.ledger[table] {
		out[k] = v
	}
	return out, nil
}

func (t *memoryTarget) RecordLedger(_ context.Context, entries []LedgerEntry) error {
	for _, e := range entries {
		t.record(e, e.TargetID)
	}
	return nil
}

func (t *memoryTarget) record(e LedgerEntry, targetID string) {
	if t.ledger[e.Table] == nil {
		t.ledger[e.Table] = make(map[string]string)
	}
	if _, ok := t.ledger[e.Table][e.SourceID]; !ok {
		t.ledger[e.Table][e.SourceID] = targetID
	}
}

func (t *memoryTarget) ApplyFiling(_ context.Context, rec Record) (Outcome, error) {
	var out Outcome
	pair := rec.Filing.ClientID + "|" + rec.Filing.ObligationCode
	if _, ok := t.assignments[pair]; !ok {
		t.assignments[pair] = rec
		out.AssignmentCreated = true
	}
	key := rec.Filing.Key()
	existing, ok := t.filings[key]
	switch {
	case !ok:
		t.filings[key] = rec.Filing
		out.FilingCreated = true
	case rec.Filing.State == filings.StateSubmitted && existing.State == filings.StateAwaitingSubmission:
		next, err := filings.MarkSubmitted(existing, *rec.Filing.SubmittedAt, rec.Filing.AttachmentRefs, rec.Filing.UpdatedAt)
		if err != nil {
			return Outcome{}, err
		}
		t.filings[key] = next
		out.FilingUpgraded = true
	}
	t.record(rec.Ledger, t.filings[key].ID.String())
	return out, nil
}

func intp(n int) *int { return &n }

func day(y int, m time.Month, d int) time.Time { return time.Date(y, m, d, 0, 0, 0, 0, time.UTC) }

func legacyFixture() *memorySource {
	return &memorySource{
		models: []Model{
			{ID: "1", Name: "303", Description: "IVA"},
			{ID: "2", Name: " 100 ", Description: "IRPF"},
			{ID: "3", Name: ""},
		},
		periods: []Period{
			{ID: "p1", ModelID: "1", Year: 2024, Quarter: intp(3), SubmissionStart: day(2024, 10, 1), SubmissionEnd: day(2024, 10, 21)},
			{ID: "p2", ModelID: "2", Year: 2023, Quarter: intp(2), SubmissionStart: day(2024, 4, 2), SubmissionEnd: day(2024, 7, 1)},
			{ID: "p3", ModelID: "9", Year: 2024, Month: intp(1), SubmissionStart: day(2024, 2, 1), SubmissionEnd: day(2024, 2, 20)},
			{ID: "p4", ModelID: "1", Year: 2024, Month: intp(13), SubmissionStart: day(2024, 2, 1), SubmissionEnd: day(2024, 2, 20)},
		},
		rows: []ClientTax{
			{ID: "c1", ClientID: "A", PeriodID: "p1", State: "PENDIENTE", Files: []string{"a.pdf", " ", "a.pdf"}},
			{ID: "c2", ClientID: "A", PeriodID: "p2", State: "REALIZADO", Notes: " presentado ", UpdatedAt: time.Date(2024, 6, 15, 9, 30, 0, 0, time.UTC)},
			{ID: "c3", ClientID: "B", PeriodID: "p1", State: "calculado"},
			{ID: "c4", ClientID: "B", PeriodID: "p1", State: "RARO"},
			{ID: "c5", ClientID: "C", PeriodID: "p3", State: "PENDING"},
		},
	}
}

func newTestMigrator(src Source, target Target) *Migrator {
	now := time.Date(2025, 1, 10, 12, 0, 0, 0, time.UTC)
	return NewMigrator(src, target, obligations.DefaultCatalog(), slog.New(slog.NewTextHandler(new(bytes.Buffer), nil))).
		WithNow(func() time.Time { return now })
}

func TestRunMigratesLegacyRows(t *testing.T) {
	target := newMemoryTarget()
	report, err := newTestMigrator(legacyFixture(), target).Run(context.Background(), Options{})
	require.NoError(t, err)

	require.Equal(t, 2, report.ObligationTypes)
	require.Equal(t, 2, report.Periods)
	require.Equal(t, 3, report.Filings)
	require.Equal(t, 3, report.Assignments)
	require.Equal(t, map[string]int{ReasonObligation: 2, ReasonPeriod: 2, ReasonState: 1}, report.Missing)
	require.Empty(t, report.Failures)
	for _, err := range report.MappingErrors {
		require.ErrorIs(t, err, ErrMappingMissing)
	}

	annual, ok := target.periods[calendar.PeriodID("100", 2023, calendar.AnnualLabel)]
	require.True(t, ok)
	require.Equal(t, obligations.PeriodicityAnnual, annual.Kind)
	require.Equal(t, calendar.WindowLegacy, annual.Source)
	require.Equal(t, day(2024, 4, 2), annual.SubmissionStart)
	require.Equal(t, day(2024, 7, 1), annual.SubmissionEnd)
	require.Equal(t, "IRPF - Declaración de la Renta", target.types["100"].Name)

	quarterID := calendar.PeriodID("303", 2024, "3T")
	pending := target.filings[filings.Key{ClientID: "A", ObligationCode: "303", PeriodID: quarterID}]
	require.Equal(t, filings.StateAwaitingSubmission, pending.State)
	require.Equal(t, []string{"a.pdf"}, pending.AttachmentRefs)

	done := target.filings[filings.Key{ClientID: "A", ObligationCode: "100", PeriodID: annual.ID}]
	require.Equal(t, filings.StateSubmitted, done.State)
	require.NotNil(t, done.SubmittedAt)
	require.Equal(t, time.Date(2024, 6, 15, 9, 30, 0, 0, time.UTC), *done.SubmittedAt)
	require.Equal(t, "presentado", done.Notes)

	assignment := target.assignments["A|100"]
	require.Equal(t, obligations.PeriodicityAnnual, assignment.Periodicity)
	require.Equal(t, day(2023, 1, 1), assignment.ActiveFrom)

	b := filings.Key{ClientID: "B", ObligationCode: "303", PeriodID: quarterID}
	require.Equal(t, b.ID().String(), target.ledger[TableClientTax]["c3"])
	require.Equal(t, "303", target.ledger[TableModels]["1"])
	require.Equal(t, quarterID.String(), target.ledger[TablePeriods]["p1"])
}

func TestRunIsIdempotent(t *testing.T) {
	target := newMemoryTarget()
	m := newTestMigrator(legacyFixture(), target)
	_, err := m.Run(context.Background(), Options{})
	require.NoError(t, err)
	before := len(target.filings)

	report, err := m.Run(context.Background(), Options{})
	require.NoError(t, err)
	require.Equal(t, 0, report.Filings)
	require.Equal(t, 0, report.Assignments)
	require.Equal(t, 3, report.Skipped)
	require.Len(t, target.filings, before)
}

func TestRunDryRunWritesNothing(t *testing.T) {
	target := newMemoryTarget()
	report, err := newTestMigrator(legacyFixture(), target).Run(context.Background(), Options{DryRun: true})
	require.NoError(t, err)
	require.True(t, report.DryRun)
	require.Equal(t, 3, report.Filings)
	require.Equal(t, 3, report.Assignments)
	require.Empty(t, target.filings)
	require.Empty(t, target.periods)
	require.Empty(t, target.ledger)
}

func TestRunUpgradesAwaitingFiling(t *testing.T) {
	target := newMemoryTarget()
	annualID := calendar.PeriodID("100", 2023, calendar.AnnualLabel)
	key := filings.Key{ClientID: "A", ObligationCode: "100", PeriodID: annualID}
	target.filings[key] = filings.NewAwaiting(key, time.Date(2024, 1, 2, 0, 0, 0, 0, time.UTC))

	report, err := newTestMigrator(legacyFixture(), target).Run(context.Background(), Options{})
	require.NoError(t, err)
	require.Equal(t, 1, report.Upgraded)
	require.Equal(t, 2, report.Filings)
	require.Equal(t, filings.StateSubmitted, target.filings[key].State)
}

func TestMapLabel(t *testing.T) {
	catalog := obligations.DefaultCatalog()
	quarterly, err := catalog.Rule("303")
	require.NoError(t, err)
	annual, err := catalog.Rule("390")
	require.NoError(t, err)

	kind, n, err := MapLabel(Period{Month: intp(4)}, &quarterly)
	require.NoError(t, err)
	require.Equal(t, obligations.PeriodicityMonthly, kind)
	require.Equal(t, 4, n)

	kind, n, err = MapLabel(Period{Quarter: intp(2)}, &quarterly)
	require.NoError(t, err)
	require.Equal(t, obligations.PeriodicityQuarterly, kind)
	require.Equal(t, 2, n)

	kind, _, err = MapLabel(Period{Quarter: intp(4)}, &annual)
	require.NoError(t, err)
	require.Equal(t, obligations.PeriodicityAnnual, kind)

	kind, _, err = MapLabel(Period{}, nil)
	require.NoError(t, err)
	require.Equal(t, obligations.PeriodicityAnnual, kind)

	_, _, err = MapLabel(Period{Quarter: intp(5)}, nil)
	require.Error(t, err)
}

func TestMapState(t *testing.T) {
	for raw, want := range map[string]filings.State{
		"PENDIENTE":  filings.StateAwaitingSubmission,
		"pending":    filings.StateAwaitingSubmission,
		"CALCULADO":  filings.StateAwaitingSubmission,
		"CALCULATED": filings.StateAwaitingSubmission,
		"REALIZADO":  filings.StateSubmitted,
		" done ":     filings.StateSubmitted,
	} {
		got, ok := MapState(raw)
		require.True(t, ok, raw)
		require.Equal(t, want, got, raw)
	}
	_, ok := MapState("ARCHIVADO")
	require.False(t, ok)
}
