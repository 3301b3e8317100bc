package reconcile

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/llave-asesoria/fiscal/internal/assignments"
	"github.com/llave-asesoria/fiscal/internal/calendar"
	"github.com/llave-asesoria/fiscal/internal/filings"
)

// Store is the persistence the reconciler reads and writes.
type Store interface {
	ClientIDs(ctx context.Context) ([]string, error)
	Assignments(ctx context.Context, filter assignments.ListFilter) ([]assignments.Assignment, error)
	WithTx(ctx context.Context, fn func(context.Context, filings.TxRepository) error) error
}

// Calendar supplies open periods and label resolution.
type Calendar interface {
	OpenPeriodsFor(ctx context.Context, codes []string, years []int) ([]calendar.PeriodDefinition, error)
	Lookup(ctx context.Context, codes []string, years []int) (*calendar.Lookup, error)
	PeriodsByID(ctx context.Context, ids []uuid.UUID) ([]calendar.PeriodDefinition, error)
	Location() *time.Location
}

// Config tunes a reconciler.
type Config struct {
	Concurrency   int
	LookbackYears int
	WindowAware   bool
}

// Reconciler aligns filings with assignments and open periods.
type Reconciler struct {
	store    Store
	calendar Calendar
	cfg      Config
	now      func() time.Time
}

// NewReconciler wires a reconciler.
func NewReconciler(store Store, cal Calendar, cfg Config) *Reconciler {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 1
	}
	if cfg.LookbackYears < 0 {
		cfg.LookbackYears = 0
	}
	return &Reconciler{store: store, calendar: cal, cfg: cfg, now: time.Now}
}

// WithNow overrides the clock.
func (r *Reconciler) WithNow(fn func() time.Time) *Reconciler {
	if fn != nil {
		r.now = fn
	}
	return r
}

// snapshot is the read-only state shared by every client of a run.
type snapshot struct {
	now         time.Time
	today       time.Time
	assignments map[string][]assignments.Assignment
	open        map[string][]calendar.PeriodDefinition
	lookup      *calendar.Lookup
}

// Reconcile runs both phases for every client in scope. Loading errors abort the run;
// a client whose changes fail is rolled back and listed in the report.
func (r *Reconciler) Reconcile(ctx context.Context, scope Scope) (Report, error) {
	now := r.now()
	report := Report{Scope: scope, StartedAt: now}

	snap, clients, years, err := r.load(ctx, scope, now)
	if err != nil {
		return report, err
	}
	report.FiscalYears = years
	report.Clients = len(clients)

	var (
		mu    sync.Mutex
		group errgroup.Group
	)
	group.SetLimit(r.cfg.Concurrency)
	for _, clientID := range clients {
		group.Go(func() error {
			outcome, err := r.reconcileClient(ctx, clientID, snap)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				report.Failures = append(report.Failures, ClientFailure{ClientID: clientID, Err: err})
				return nil
			}
			report.Validated += outcome.Validated
			report.Created += outcome.created
			report.Deleted += outcome.deleted
			report.Warnings = append(report.Warnings, outcome.Warnings...)
			report.CreatedFilings = append(report.CreatedFilings, outcome.Create...)
			report.DeletedFilings = append(report.DeletedFilings, outcome.Delete...)
			return nil
		})
	}
	_ = group.Wait()

	sortReport(&report)
	report.FinishedAt = r.now()
	return report, nil
}

func (r *Reconciler) load(ctx context.Context, scope Scope, now time.Time) (snapshot, []string, []int, error) {
	loc := r.calendar.Location()
	today := calendar.Today(now, loc)
	snap := snapshot{now: now, today: today, assignments: map[string][]assignments.Assignment{}}

	var clients []string
	if scope.ClientID != "" {
		clients = []string{scope.ClientID}
	} else {
		ids, err := r.store.ClientIDs(ctx)
		if err != nil {
			return snap, nil, nil, fmt.Errorf("reconcile: load clients: %w", err)
		}
		clients = ids
	}

	filter := assignments.ListFilter{}
	if scope.ClientID != "" {
		filter.ClientIDs = clients
	}
	list, err := r.store.Assignments(ctx, filter)
	if err != nil {
		return snap, nil, nil, fmt.Errorf("reconcile: load assignments: %w", err)
	}
	codeSet := make(map[string]struct{})
	for _, a := range list {
		snap.assignments[a.ClientID] = append(snap.assignments[a.ClientID], a)
		if a.EffectivelyActive(today) {
			codeSet[a.ObligationCode] = struct{}{}
		}
	}

	years := make([]int, 0, r.cfg.LookbackYears+1)
	for y := today.Year() - r.cfg.LookbackYears; y <= today.Year(); y++ {
		years = append(years, y)
	}
	if len(codeSet) == 0 {
		snap.lookup = calendar.NewLookup(nil)
		return snap, clients, years, nil
	}
	codes := make([]string, 0, len(codeSet))
	for code := range codeSet {
		codes = append(codes, code)
	}
	sort.Strings(codes)

	open, err := r.calendar.OpenPeriodsFor(ctx, codes, years)
	if err != nil {
		return snap, nil, nil, fmt.Errorf("reconcile: load open periods: %w", err)
	}
	snap.open = make(map[string][]calendar.PeriodDefinition)
	for _, p := range open {
		snap.open[p.ObligationCode] = append(snap.open[p.ObligationCode], p)
	}
	if snap.lookup, err = r.calendar.Lookup(ctx, codes, years); err != nil {
		return snap, nil, nil, fmt.Errorf("reconcile: load periods: %w", err)
	}
	return snap, clients, years, nil
}

type clientOutcome struct {
	ClientPlan
	created int
	deleted int
}

func (r *Reconciler) reconcileClient(ctx context.Context, clientID string, snap snapshot) (clientOutcome, error) {
	var outcome clientOutcome
	err := r.store.WithTx(ctx, func(ctx context.Context, tx filings.TxRepository) error {
		existing, err := tx.ListByClient(ctx, clientID)
		if err != nil {
			return fmt.Errorf("list filings: %w", err)
		}
		in := ClientInput{
			ClientID:    clientID,
			Today:       snap.today,
			Now:         snap.now,
			Assignments: snap.assignments[clientID],
			Filings:     existing,
			OpenPeriods: snap.open,
			Lookup:      snap.lookup,
			WindowAware: r.cfg.WindowAware,
		}
		if r.cfg.WindowAware && len(existing) > 0 {
			if in.Periods, err = r.filingPeriods(ctx, existing); err != nil {
				return err
			}
		}

		plan := Plan(in)
		deleted, err := tx.DeleteAwaiting(ctx, filingIDs(plan.Delete))
		if err != nil {
			return fmt.Errorf("delete orphaned filings: %w", err)
		}
		created, err := tx.Insert(ctx, plan.Create)
		if err != nil {
			return fmt.Errorf("create filings: %w", err)
		}
		outcome = clientOutcome{ClientPlan: plan, created: int(created), deleted: int(deleted)}
		return nil
	})
	return outcome, err
}

func (r *Reconciler) filingPeriods(ctx context.Context, list []filings.Filing) (map[uuid.UUID]calendar.PeriodDefinition, error) {
	ids := make([]uuid.UUID, 0, len(list))
	for _, f := range list {
		ids = append(ids, f.PeriodID)
	}
	periods, err := r.calendar.PeriodsByID(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("load filing periods: %w", err)
	}
	out := make(map[uuid.UUID]calendar.PeriodDefinition, len(periods))
	for _, p := range periods {
		out[p.ID] = p
	}
	return out, nil
}

func sortReport(r *Report) {
	sort.SliceStable(r.Warnings, func(i, j int) bool { return r.Warnings[i].String() < r.Warnings[j].String() })
	sort.SliceStable(r.Failures, func(i, j int) bool { return r.Failures[i].ClientID < r.Failures[j].ClientID })
	byKey := func(list []filings.Filing) func(i, j int) bool {
		return func(i, j int) bool {
			a, b := list[i], list[j]
			if a.ClientID != b.ClientID {
				return a.ClientID < b.ClientID
			}
			if a.ObligationCode != b.ObligationCode {
				return a.ObligationCode < b.ObligationCode
			}
			return a.PeriodID.String() < b.PeriodID.String()
		}
	}
	sort.SliceStable(r.CreatedFilings, byKey(r.CreatedFilings))
	sort.SliceStable(r.DeletedFilings, byKey(r.DeletedFilings))
}
