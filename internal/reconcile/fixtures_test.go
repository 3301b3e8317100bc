package reconcile

import (
	"context"
	"errors"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/llave-asesoria/fiscal/internal/assignments"
	"github.com/llave-asesoria/fiscal/internal/calendar"
	"github.com/llave-asesoria/fiscal/internal/filings"
	"github.com/llave-asesoria/fiscal/internal/obligations"
)

type fakeCalendar struct {
	now     time.Time
	periods []calendar.PeriodDefinition
	failing bool
}

func newFakeCalendar(t *testing.T, now time.Time, codes ...string) *fakeCalendar {
	t.Helper()
	c := &fakeCalendar{now: now}
	catalog := obligations.DefaultCatalog()
	for _, code := range codes {
		rule, err := catalog.Rule(code)
		require.NoError(t, err)
		for _, year := range []int{now.Year() - 1, now.Year()} {
			periods, err := calendar.Generate(rule, year)
			require.NoError(t, err)
			c.periods = append(c.periods, periods...)
		}
	}
	return c
}

func (c *fakeCalendar) Location() *time.Location { return time.UTC }

func (c *fakeCalendar) matching(codes []string, years []int) []calendar.PeriodDefinition {
	var out []calendar.PeriodDefinition
	for _, p := range c.periods {
		if containsString(codes, p.ObligationCode) && containsInt(years, p.FiscalYear) {
			out = append(out, p)
		}
	}
	return out
}

func (c *fakeCalendar) OpenPeriodsFor(ctx context.Context, codes []string, years []int) ([]calendar.PeriodDefinition, error) {
	if c.failing {
		return nil, errors.New("calendar unavailable")
	}
	var out []calendar.PeriodDefinition
	for _, p := range c.matching(codes, years) {
		if calendar.IsOpen(p, c.now, time.UTC) {
			out = append(out, p)
		}
	}
	return out, nil
}

func (c *fakeCalendar) Lookup(ctx context.Context, codes []string, years []int) (*calendar.Lookup, error) {
	return calendar.NewLookup(c.matching(codes, years)), nil
}

func (c *fakeCalendar) PeriodsByID(ctx context.Context, ids []uuid.UUID) ([]calendar.PeriodDefinition, error) {
	var out []calendar.PeriodDefinition
	for _, p := range c.periods {
		for _, id := range ids {
			if p.ID == id {
				out = append(out, p)
			}
		}
	}
	return out, nil
}

func (c *fakeCalendar) period(code string, year int, label string) calendar.PeriodDefinition {
	for _, p := range c.periods {
		if p.ObligationCode == code && p.FiscalYear == year && p.Label == label {
			return p
		}
	}
	panic("period not generated: " + label)
}

type memoryStore struct {
	mu          sync.Mutex
	assignments []assignments.Assignment
	filings     map[uuid.UUID]filings.Filing
	failClient  string
}

func newMemoryStore() *memoryStore {
	return &memoryStore{filings: make(map[uuid.UUID]filings.Filing)}
}

func (s *memoryStore) ClientIDs(ctx context.Context) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	set := map[string]struct{}{}
	for _, a := range s.assignments {
		set[a.ClientID] = struct{}{}
	}
	for _, f := range s.filings {
		set[f.ClientID] = struct{}{}
	}
	ids := make([]string, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, nil
}

func (s *memoryStore) Assignments(ctx context.Context, filter assignments.ListFilter) ([]assignments.Assignment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []assignments.Assignment
	for _, a := range s.assignments {
		if len(filter.ClientIDs) > 0 && !containsString(filter.ClientIDs, a.ClientID) {
			continue
		}
		out = append(out, a)
	}
	return out, nil
}

func (s *memoryStore) WithTx(ctx context.Context, fn func(context.Context, filings.TxRepository) error) error {
	s.mu.Lock()
	tx := &memoryTx{store: s, pending: make(map[uuid.UUID]filings.Filing, len(s.filings)), deleted: map[uuid.UUID]bool{}}
	for id, f := range s.filings {
		tx.pending[id] = f
	}
	s.mu.Unlock()

	if err := fn(ctx, tx); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for id := range tx.deleted {
		delete(s.filings, id)
	}
	for id, f := range tx.inserted() {
		s.filings[id] = f
	}
	return nil
}

func (s *memoryStore) add(list ...filings.Filing) {
	for _, f := range list {
		s.filings[f.ID] = f
	}
}

func (s *memoryStore) byClient(clientID string) []filings.Filing {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []filings.Filing
	for _, f := range s.filings {
		if f.ClientID == clientID {
			out = append(out, f)
		}
	}
	return out
}

type memoryTx struct {
	store   *memoryStore
	pending map[uuid.UUID]filings.Filing
	added   []filings.Filing
	deleted map[uuid.UUID]bool
}

func (t *memoryTx) inserted() map[uuid.UUID]filings.Filing {
	out := make(map[uuid.UUID]filings.Filing, len(t.added))
	for _, f := range t.added {
		out[f.ID] = f
	}
	return out
}

func (t *memoryTx) GetForUpdate(ctx context.Context, id uuid.UUID) (filings.Filing, error) {
	f, ok := t.pending[id]
	if !ok {
		return filings.Filing{}, filings.ErrNotFound
	}
	return f, nil
}

func (t *memoryTx) Save(ctx context.Context, f filings.Filing) error {
	t.pending[f.ID] = f
	return nil
}

func (t *memoryTx) ListByClient(ctx context.Context, clientID string) ([]filings.Filing, error) {
	if clientID == t.store.failClient {
		return nil, errors.New("connection reset")
	}
	var out []filings.Filing
	for _, f := range t.pending {
		if f.ClientID == clientID {
			out = append(out, f)
		}
	}
	return out, nil
}

func (t *memoryTx) Insert(ctx context.Context, list []filings.Filing) (int64, error) {
	var n int64
	for _, f := range list {
		if _, ok := t.pending[f.ID]; ok {
			continue
		}
		t.pending[f.ID] = f
		t.added = append(t.added, f)
		n++
	}
	return n, nil
}

func (t *memoryTx) DeleteAwaiting(ctx context.Context, ids []uuid.UUID) (int64, error) {
	var n int64
	for _, id := range ids {
		if f, ok := t.pending[id]; ok && f.State == filings.StateAwaitingSubmission {
			delete(t.pending, id)
			t.deleted[id] = true
			n++
		}
	}
	return n, nil
}

func containsString(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func containsInt(list []int, v int) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}

func assignment(client, code string, p obligations.Periodicity, from time.Time) assignments.Assignment {
	return assignments.Assignment{
		ID:             uuid.New(),
		ClientID:       client,
		ObligationCode: code,
		Periodicity:    p,
		ActiveFrom:     from,
		IsActive:       true,
	}
}
