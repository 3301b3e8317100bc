package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/llave-asesoria/fiscal/internal/assignments"
	"github.com/llave-asesoria/fiscal/internal/calendar"
	"github.com/llave-asesoria/fiscal/internal/filings"
	"github.com/llave-asesoria/fiscal/internal/legacy"
	"github.com/llave-asesoria/fiscal/internal/obligations"
	"github.com/llave-asesoria/fiscal/internal/platform/cache"
	"github.com/llave-asesoria/fiscal/internal/reconcile"
)

var fixedNow = time.Date(2025, 10, 10, 9, 0, 0, 0, time.UTC)

type stubCalendar struct {
	years     []int
	generated []string
	err       error
	open      []calendar.PeriodDefinition
	loc       *time.Location
}

func (s *stubCalendar) GenerateCalendar(_ context.Context, code string, year int) ([]calendar.PeriodDefinition, error) {
	s.generated = append(s.generated, code)
	s.years = append(s.years, year)
	return make([]calendar.PeriodDefinition, 4), s.err
}

func (s *stubCalendar) GenerateAll(_ context.Context, year int) (calendar.GenerateResult, error) {
	s.years = append(s.years, year)
	if s.err != nil {
		return calendar.GenerateResult{}, s.err
	}
	return calendar.GenerateResult{FiscalYear: year, Periods: 40, Codes: []string{"303", "111"}, Failures: map[string]error{}}, nil
}

func (s *stubCalendar) OpenPeriodsFor(context.Context, []string, []int) ([]calendar.PeriodDefinition, error) {
	return s.open, nil
}

func (s *stubCalendar) ImportWorkbook(context.Context, io.Reader) (calendar.ImportResult, error) {
	return calendar.ImportResult{}, nil
}

func (s *stubCalendar) Today() time.Time { return calendar.Today(fixedNow, time.UTC) }

func (s *stubCalendar) Location() *time.Location {
	if s.loc != nil {
		return s.loc
	}
	return time.UTC
}

type stubReconciler struct {
	scope  reconcile.Scope
	report reconcile.Report
	err    error
}

func (s *stubReconciler) Reconcile(_ context.Context, scope reconcile.Scope) (reconcile.Report, error) {
	s.scope = scope
	s.report.Scope = scope
	return s.report, s.err
}

type lockedGuard struct{}

func (lockedGuard) Do(context.Context, string, func(context.Context) error) error {
	return cache.ErrLocked
}

func newCLI(cal CalendarService, rec Reconciler) (*OpsCLI, *bytes.Buffer, *bytes.Buffer) {
	stdout, stderr := new(bytes.Buffer), new(bytes.Buffer)
	c := &OpsCLI{Calendar: cal, Reconciler: rec, Stdout: stdout, Stderr: stderr}
	return c.WithClock(func() time.Time { return fixedNow }), stdout, stderr
}

func TestBatchGeneratesThenReconciles(t *testing.T) {
	cal := &stubCalendar{}
	rec := &stubReconciler{report: reconcile.Report{Clients: 2, Created: 3, FiscalYears: []int{2024, 2025}}}
	c, stdout, stderr := newCLI(cal, rec)

	require.Zero(t, c.BatchCommand(context.Background()))
	require.Empty(t, stderr.String())
	require.Equal(t, []int{2025, 2026}, cal.years)
	require.Equal(t, reconcile.AllClients(), rec.scope)
	require.Contains(t, stdout.String(), "Reconciled 2 client(s)")
}

func TestBatchPerClientFailuresDoNotFail(t *testing.T) {
	rec := &stubReconciler{report: reconcile.Report{
		Clients:  1,
		Failures: []reconcile.ClientFailure{{ClientID: "A", Err: errors.New("deadlock")}},
	}}
	c, stdout, _ := newCLI(&stubCalendar{}, rec)
	c.JSON = true

	require.Zero(t, c.BatchCommand(context.Background()))
	var summary batchSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.Equal(t, "deadlock", summary.Reconcile.Failures["A"])
	require.Len(t, summary.Calendars, 2)
}

func TestBatchFatalErrors(t *testing.T) {
	c, _, stderr := newCLI(&stubCalendar{err: errors.New("connection refused")}, &stubReconciler{})
	require.Equal(t, 1, c.BatchCommand(context.Background()))
	require.Contains(t, stderr.String(), "connection refused")

	c, _, _ = newCLI(&stubCalendar{}, &stubReconciler{err: errors.New("load clients")})
	require.Equal(t, 1, c.BatchCommand(context.Background()))
}

func TestBatchSkipsWhenLocked(t *testing.T) {
	cal := &stubCalendar{}
	c, _, stderr := newCLI(cal, &stubReconciler{})
	c.Guard = lockedGuard{}

	require.Zero(t, c.BatchCommand(context.Background()))
	require.Contains(t, stderr.String(), "another batch is running")
	require.Empty(t, cal.years)
}

func TestReconcileCommandScopesClient(t *testing.T) {
	rec := &stubReconciler{}
	c, stdout, _ := newCLI(nil, rec)
	c.JSON = true

	require.Zero(t, c.ReconcileCommand(context.Background(), ReconcileOptions{ClientID: "A"}))
	require.Equal(t, reconcile.SingleClient("A"), rec.scope)
	var summary reportSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &summary))
	require.Equal(t, "client:A", summary.Scope)
}

func TestGenerateCommandSingleObligation(t *testing.T) {
	cal := &stubCalendar{}
	c, stdout, _ := newCLI(cal, nil)
	require.Zero(t, c.GenerateCommand(context.Background(), GenerateOptions{Code: " 303 ", Years: []int{2025}}))
	require.Equal(t, []string{"303"}, cal.generated)
	require.Contains(t, stdout.String(), "2025")
}

func TestOpenCommandJSON(t *testing.T) {
	period := calendar.PeriodDefinition{
		ID: calendar.PeriodID("303", 2025, "3T"), ObligationCode: "303", FiscalYear: 2025, Label: "3T",
		Kind: obligations.PeriodicityQuarterly, Active: true,
		SubmissionStart: time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC),
		SubmissionEnd:   time.Date(2025, 10, 20, 0, 0, 0, 0, time.UTC),
	}
	c, stdout, _ := newCLI(&stubCalendar{open: []calendar.PeriodDefinition{period}}, nil)
	c.JSON = true

	require.Zero(t, c.OpenCommand(context.Background(), OpenOptions{}))
	var rows []periodSummary
	require.NoError(t, json.Unmarshal(stdout.Bytes(), &rows))
	require.Len(t, rows, 1)
	require.Equal(t, "OPEN", rows[0].Status)
	require.Equal(t, 10, rows[0].DaysLeft)
}

type stubFilings struct {
	at  time.Time
	err error
}

func (s *stubFilings) MarkSubmitted(_ context.Context, id uuid.UUID, at time.Time, refs []string) (filings.Filing, error) {
	s.at = at
	if s.err != nil {
		return filings.Filing{}, s.err
	}
	return filings.Filing{ID: id, State: filings.StateSubmitted, SubmittedAt: &at, AttachmentRefs: refs}, nil
}

func TestSubmitCommand(t *testing.T) {
	repo := &stubFilings{}
	c, stdout, stderr := newCLI(nil, nil)
	c.Filings = repo

	require.Equal(t, 1, c.SubmitCommand(context.Background(), SubmitOptions{FilingID: "nope"}))
	require.Contains(t, stderr.String(), "invalid filing id")

	id := uuid.New()
	require.Zero(t, c.SubmitCommand(context.Background(), SubmitOptions{FilingID: id.String(), Refs: []string{"doc-1", "doc-2"}}))
	require.Equal(t, fixedNow, repo.at)
	require.Contains(t, stdout.String(), "2 attachment(s)")

	require.Zero(t, c.SubmitCommand(context.Background(), SubmitOptions{FilingID: id.String(), SubmittedAt: "2025-10-01"}))
	require.Equal(t, time.Date(2025, 10, 1, 0, 0, 0, 0, time.UTC), repo.at)

	repo.err = &filings.InvalidTransitionError{FilingID: id, From: filings.StateSubmitted, To: filings.StateSubmitted}
	require.Equal(t, 1, c.SubmitCommand(context.Background(), SubmitOptions{FilingID: id.String()}))
}

// lifecycleFilings applies the real transition against a fixed clock.
type lifecycleFilings struct {
	now time.Time
}

func (l lifecycleFilings) MarkSubmitted(_ context.Context, id uuid.UUID, at time.Time, refs []string) (filings.Filing, error) {
	f := filings.NewAwaiting(filings.Key{ClientID: "A", ObligationCode: "303", PeriodID: uuid.New()}, l.now)
	f.ID = id
	return filings.MarkSubmitted(f, at, refs, l.now)
}

func TestSubmitCommandTodayJustAfterLocalMidnight(t *testing.T) {
	madrid, err := time.LoadLocation("Europe/Madrid")
	require.NoError(t, err)
	now := time.Date(2025, 10, 6, 1, 30, 0, 0, madrid)

	c, stdout, stderr := newCLI(&stubCalendar{loc: madrid}, nil)
	c.WithClock(func() time.Time { return now })
	c.Filings = lifecycleFilings{now: now}

	code := c.SubmitCommand(context.Background(), SubmitOptions{FilingID: uuid.NewString(), SubmittedAt: "2025-10-06"})
	require.Zero(t, code, stderr.String())
	require.Contains(t, stdout.String(), "2025-10-06T00:00:00+02:00")

	code = c.SubmitCommand(context.Background(), SubmitOptions{FilingID: uuid.NewString(), SubmittedAt: "2025-10-07"})
	require.Equal(t, 1, code)
	require.Contains(t, stderr.String(), "future")
}

type stubAssignments struct {
	created assignments.CreateInput
	err     error
}

func (s *stubAssignments) Create(_ context.Context, in assignments.CreateInput) (assignments.Assignment, error) {
	s.created = in
	if s.err != nil {
		return assignments.Assignment{}, s.err
	}
	return assignments.Assignment{ID: uuid.New(), ClientID: in.ClientID, ObligationCode: in.ObligationCode}, nil
}

func (s *stubAssignments) List(context.Context, assignments.ListFilter) ([]assignments.Assignment, error) {
	return []assignments.Assignment{{ID: uuid.New(), ClientID: "A", ObligationCode: "303",
		Periodicity: obligations.PeriodicityQuarterly, ActiveFrom: fixedNow, IsActive: true}}, nil
}

func (s *stubAssignments) Deactivate(_ context.Context, id uuid.UUID) (assignments.Assignment, error) {
	return assignments.Assignment{ID: id}, nil
}

func TestAssignCommand(t *testing.T) {
	svc := &stubAssignments{}
	c, stdout, stderr := newCLI(nil, nil)
	c.Assignments = svc

	require.Zero(t, c.AssignCommand(context.Background(), AssignOptions{
		ClientID: "A", Code: "303", Periodicity: "trimestral", From: "2025-01-01",
	}))
	require.Equal(t, obligations.PeriodicityQuarterly, svc.created.Periodicity)
	require.Equal(t, time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC), svc.created.ActiveFrom)
	require.Contains(t, stdout.String(), "created")

	svc.err = &assignments.DuplicateAssignmentError{ClientID: "A", ObligationCode: "303"}
	require.Equal(t, 1, c.AssignCommand(context.Background(), AssignOptions{ClientID: "A", Code: "303", Periodicity: "QUARTERLY"}))
	require.Contains(t, stderr.String(), "already has an active 303 assignment")

	require.Equal(t, 1, c.AssignCommand(context.Background(), AssignOptions{ClientID: "A", Code: "303", Periodicity: "weekly"}))

	stdout.Reset()
	require.Zero(t, c.AssignmentsListCommand(context.Background(), "A"))
	require.Contains(t, stdout.String(), "QUARTERLY")
}

type stubMigrator struct {
	opts legacy.Options
}

func (s *stubMigrator) Run(_ context.Context, opts legacy.Options) (legacy.MigrationReport, error) {
	s.opts = opts
	return legacy.MigrationReport{DryRun: opts.DryRun, Filings: 3, Missing: map[string]int{legacy.ReasonState: 1}}, nil
}

func TestMigrateLegacyCommand(t *testing.T) {
	c, stdout, stderr := newCLI(nil, nil)
	require.Equal(t, 1, c.MigrateLegacyCommand(context.Background(), false))
	require.Contains(t, stderr.String(), "LEGACY_PG_DSN")

	m := &stubMigrator{}
	c.Migrator = m
	require.Zero(t, c.MigrateLegacyCommand(context.Background(), true))
	require.True(t, m.opts.DryRun)
	require.Contains(t, stdout.String(), "Dry run")
	require.Contains(t, stdout.String(), "state")
}
