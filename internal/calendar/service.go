package calendar

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/llave-asesoria/fiscal/internal/obligations"
)

// Store abstracts period persistence for the service.
type Store interface {
	SyncTypes(ctx context.Context, types []obligations.ObligationType) error
	UpsertPeriods(ctx context.Context, periods []PeriodDefinition) ([]PeriodDefinition, error)
	ListPeriods(ctx context.Context, filter PeriodFilter) ([]PeriodDefinition, error)
	GetPeriod(ctx context.Context, id uuid.UUID) (PeriodDefinition, error)
	UpdateWindow(ctx context.Context, update WindowUpdate) error
}

// WindowUpdate overrides the stored window of a period.
type WindowUpdate struct {
	ID              uuid.UUID
	SubmissionStart time.Time
	SubmissionEnd   time.Time
	Active          bool
	Source          WindowSource
	Locked          bool
}

// GenerateResult summarises a GenerateAll run.
type GenerateResult struct {
	FiscalYear int
	Periods    int
	Codes      []string
	Failures   map[string]error
}

// Service generates and queries the filing calendar.
type Service struct {
	store   Store
	catalog *obligations.Catalog
	loc     *time.Location
	now     func() time.Time
}

// NewService wires the calendar service.
func NewService(store Store, catalog *obligations.Catalog, loc *time.Location) *Service {
	if catalog == nil {
		catalog = obligations.DefaultCatalog()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{store: store, catalog: catalog, loc: loc, now: time.Now}
}

// WithNow overrides the clock, mainly for tests.
func (s *Service) WithNow(fn func() time.Time) *Service {
	if fn != nil {
		s.now = fn
	}
	return s
}

// Catalog exposes the obligation rules the service generates from.
func (s *Service) Catalog() *obligations.Catalog { return s.catalog }

// Location exposes the calendar timezone.
func (s *Service) Location() *time.Location { return s.loc }

// Today returns the current civil date in the calendar timezone.
func (s *Service) Today() time.Time { return Today(s.now(), s.loc) }

// GenerateCalendar generates the periods of code for fiscalYear and upserts them.
// Repeated calls leave the stored set unchanged.
func (s *Service) GenerateCalendar(ctx context.Context, code string, fiscalYear int) ([]PeriodDefinition, error) {
	rule, err := s.catalog.Rule(code)
	if err != nil {
		return nil, err
	}
	periods, err := Generate(rule, fiscalYear)
	if err != nil {
		return nil, err
	}
	if err := s.store.SyncTypes(ctx, []obligations.ObligationType{rule.Type()}); err != nil {
		return nil, fmt.Errorf("calendar: sync obligation %s: %w", rule.Code, err)
	}
	return s.store.UpsertPeriods(ctx, periods)
}

// GenerateAll generates every catalog obligation for fiscalYear. Rule defects are
// collected per code; storage errors abort the run.
func (s *Service) GenerateAll(ctx context.Context, fiscalYear int) (GenerateResult, error) {
	result := GenerateResult{FiscalYear: fiscalYear, Failures: map[string]error{}}
	if err := validateYear(fiscalYear); err != nil {
		return result, err
	}
	for _, code := range s.catalog.Codes() {
		periods, err := s.GenerateCalendar(ctx, code, fiscalYear)
		if err != nil {
			if isRuleDefect(err) {
				result.Failures[code] = err
				continue
			}
			return result, err
		}
		result.Periods += len(periods)
		result.Codes = append(result.Codes, code)
	}
	return result, nil
}

func isRuleDefect(err error) bool {
	return errors.Is(err, obligations.ErrUnknownPeriodicity) ||
		errors.Is(err, obligations.ErrInvalidWindow) ||
		errors.Is(err, obligations.ErrUnknownObligation)
}

// Periods lists every stored period of code for fiscalYear.
func (s *Service) Periods(ctx context.Context, code string, fiscalYear int) ([]PeriodDefinition, error) {
	return s.store.ListPeriods(ctx, PeriodFilter{Codes: []string{code}, Years: []int{fiscalYear}})
}

// OpenPeriods lists the periods of code for fiscalYear whose window contains today.
func (s *Service) OpenPeriods(ctx context.Context, code string, fiscalYear int) ([]PeriodDefinition, error) {
	return s.OpenPeriodsFor(ctx, []string{code}, []int{fiscalYear})
}

// OpenPeriodsFor lists open periods across several obligations and fiscal years.
func (s *Service) OpenPeriodsFor(ctx context.Context, codes []string, years []int) ([]PeriodDefinition, error) {
	now := s.now()
	today := Today(now, s.loc)
	periods, err := s.store.ListPeriods(ctx, PeriodFilter{Codes: codes, Years: years, OpenOn: &today})
	if err != nil {
		return nil, err
	}
	return filterOpen(periods, now, s.loc), nil
}

// ClosingWithin lists open periods whose window closes within days of now.
func (s *Service) ClosingWithin(ctx context.Context, now time.Time, days int) ([]PeriodDefinition, error) {
	today := Today(now, s.loc)
	periods, err := s.store.ListPeriods(ctx, PeriodFilter{OpenOn: &today})
	if err != nil {
		return nil, err
	}
	var out []PeriodDefinition
	for _, p := range filterOpen(periods, now, s.loc) {
		if DaysToEnd(p, now, s.loc) <= days {
			out = append(out, p)
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].SubmissionEnd.Before(out[j].SubmissionEnd) })
	return out, nil
}

// Lookup loads the periods of codes for years and indexes them for label resolution.
func (s *Service) Lookup(ctx context.Context, codes []string, years []int) (*Lookup, error) {
	periods, err := s.store.ListPeriods(ctx, PeriodFilter{Codes: codes, Years: years})
	if err != nil {
		return nil, err
	}
	return NewLookup(periods), nil
}

// PeriodsByID loads the periods with the given ids.
func (s *Service) PeriodsByID(ctx context.Context, ids []uuid.UUID) ([]PeriodDefinition, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	return s.store.ListPeriods(ctx, PeriodFilter{IDs: ids})
}

// Period loads a single period.
func (s *Service) Period(ctx context.Context, id uuid.UUID) (PeriodDefinition, error) {
	return s.store.GetPeriod(ctx, id)
}

func filterOpen(periods []PeriodDefinition, now time.Time, loc *time.Location) []PeriodDefinition {
	out := make([]PeriodDefinition, 0, len(periods))
	for _, p := range periods {
		if IsOpen(p, now, loc) {
			out = append(out, p)
		}
	}
	return out
}
