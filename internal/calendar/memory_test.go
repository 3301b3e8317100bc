package calendar

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"github.com/llave-asesoria/fiscal/internal/obligations"
)

type memoryStore struct {
	mu      sync.Mutex
	types   map[string]obligations.ObligationType
	periods map[NaturalKey]PeriodDefinition
	upserts int
}

func newMemoryStore() *memoryStore {
	return &memoryStore{
		types:   make(map[string]obligations.ObligationType),
		periods: make(map[NaturalKey]PeriodDefinition),
	}
}

func (m *memoryStore) SyncTypes(ctx context.Context, types []obligations.ObligationType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range types {
		m.types[t.Code] = t
	}
	return nil
}

func (m *memoryStore) UpsertPeriods(ctx context.Context, periods []PeriodDefinition) ([]PeriodDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]PeriodDefinition, 0, len(periods))
	for _, p := range periods {
		m.upserts++
		if existing, ok := m.periods[p.Key()]; ok {
			p.ID = existing.ID
			p.Active = existing.Active
			p.Locked = existing.Locked
			if existing.Source != WindowGenerated {
				p.Source = existing.Source
				p.SubmissionStart, p.SubmissionEnd = existing.SubmissionStart, existing.SubmissionEnd
			}
		}
		m.periods[p.Key()] = p
		out = append(out, p)
	}
	return out, nil
}

func (m *memoryStore) ListPeriods(ctx context.Context, filter PeriodFilter) ([]PeriodDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []PeriodDefinition
	for _, p := range m.periods {
		if len(filter.Codes) > 0 && !containsString(filter.Codes, p.ObligationCode) {
			continue
		}
		if len(filter.Years) > 0 && !containsInt(filter.Years, p.FiscalYear) {
			continue
		}
		if filter.OpenOn != nil && (!p.Active || filter.OpenOn.Before(p.SubmissionStart) || filter.OpenOn.After(p.SubmissionEnd)) {
			continue
		}
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].ObligationCode != out[j].ObligationCode {
			return out[i].ObligationCode < out[j].ObligationCode
		}
		if out[i].FiscalYear != out[j].FiscalYear {
			return out[i].FiscalYear < out[j].FiscalYear
		}
		if out[i].Kind != out[j].Kind {
			return out[i].Kind < out[j].Kind
		}
		return out[i].Index < out[j].Index
	})
	return out, nil
}

func (m *memoryStore) GetPeriod(ctx context.Context, id uuid.UUID) (PeriodDefinition, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, p := range m.periods {
		if p.ID == id {
			return p, nil
		}
	}
	return PeriodDefinition{}, ErrNotFound
}

func (m *memoryStore) UpdateWindow(ctx context.Context, update WindowUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key, p := range m.periods {
		if p.ID == update.ID {
			p.SubmissionStart, p.SubmissionEnd = update.SubmissionStart, update.SubmissionEnd
			p.Active = update.Active
			p.Source = update.Source
			p.Locked = update.Locked
			m.periods[key] = p
			return nil
		}
	}
	return ErrNotFound
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
