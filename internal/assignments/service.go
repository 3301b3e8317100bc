package assignments

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"

	"github.com/llave-asesoria/fiscal/internal/obligations"
)

// Repository abstracts assignment persistence.
type Repository interface {
	Create(ctx context.Context, a Assignment) error
	Get(ctx context.Context, id uuid.UUID) (Assignment, error)
	Update(ctx context.Context, a Assignment) error
	Delete(ctx context.Context, id uuid.UUID) error
	List(ctx context.Context, filter ListFilter) ([]Assignment, error)
}

// ClientTypes resolves the stored type of a client. Unknown clients yield "".
type ClientTypes interface {
	ClientType(ctx context.Context, clientID string) (string, error)
}

// Service manages client obligation subscriptions.
type Service struct {
	repo      Repository
	catalog   *obligations.Catalog
	clients   ClientTypes
	validator *validator.Validate
	loc       *time.Location
	now       func() time.Time
}

// NewService constructs the registry service.
func NewService(repo Repository, catalog *obligations.Catalog, loc *time.Location) *Service {
	if catalog == nil {
		catalog = obligations.DefaultCatalog()
	}
	if loc == nil {
		loc = time.UTC
	}
	return &Service{repo: repo, catalog: catalog, validator: validator.New(), loc: loc, now: time.Now}
}

// WithNow overrides the clock.
func (s *Service) WithNow(fn func() time.Time) *Service {
	if fn != nil {
		s.now = fn
	}
	return s
}

// WithClientTypes enables the per-obligation client type restriction.
func (s *Service) WithClientTypes(clients ClientTypes) *Service {
	s.clients = clients
	return s
}

// Create validates and stores a new assignment.
func (s *Service) Create(ctx context.Context, in CreateInput) (Assignment, error) {
	in.ClientID = strings.TrimSpace(in.ClientID)
	in.ObligationCode = strings.ToUpper(strings.TrimSpace(in.ObligationCode))
	if err := s.validate(in); err != nil {
		return Assignment{}, err
	}
	if err := s.checkRule(in.ObligationCode, in.Periodicity, in.ActiveFrom, in.ActiveUntil); err != nil {
		return Assignment{}, err
	}
	if err := s.checkClientType(ctx, in.ClientID, in.ObligationCode); err != nil {
		return Assignment{}, err
	}

	now := s.now()
	a := Assignment{
		ID:             uuid.New(),
		ClientID:       in.ClientID,
		ObligationCode: in.ObligationCode,
		Periodicity:    in.Periodicity,
		ActiveFrom:     civil(in.ActiveFrom),
		ActiveUntil:    civilPtr(in.ActiveUntil),
		IsActive:       true,
		Notes:          in.Notes,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if err := s.ensureNoOverlap(ctx, a); err != nil {
		return Assignment{}, err
	}
	if err := s.repo.Create(ctx, a); err != nil {
		return Assignment{}, fmt.Errorf("assignments: create: %w", err)
	}
	return a, nil
}

// Get loads one assignment.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Assignment, error) {
	return s.repo.Get(ctx, id)
}

// Update replaces the editable fields of an assignment.
func (s *Service) Update(ctx context.Context, id uuid.UUID, in UpdateInput) (Assignment, error) {
	if err := s.validate(in); err != nil {
		return Assignment{}, err
	}
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return Assignment{}, err
	}
	if err := s.checkRule(a.ObligationCode, in.Periodicity, in.ActiveFrom, in.ActiveUntil); err != nil {
		return Assignment{}, err
	}
	if err := s.checkClientType(ctx, a.ClientID, a.ObligationCode); err != nil {
		return Assignment{}, err
	}
	a.Periodicity = in.Periodicity
	a.ActiveFrom = civil(in.ActiveFrom)
	a.ActiveUntil = civilPtr(in.ActiveUntil)
	a.IsActive = in.IsActive
	a.Notes = in.Notes
	a.UpdatedAt = s.now()
	if err := s.ensureNoOverlap(ctx, a); err != nil {
		return Assignment{}, err
	}
	if err := s.repo.Update(ctx, a); err != nil {
		return Assignment{}, fmt.Errorf("assignments: update: %w", err)
	}
	return a, nil
}

// Deactivate clears the active flag, keeping the record for history.
func (s *Service) Deactivate(ctx context.Context, id uuid.UUID) (Assignment, error) {
	a, err := s.repo.Get(ctx, id)
	if err != nil {
		return Assignment{}, err
	}
	if !a.IsActive {
		return a, nil
	}
	a.IsActive = false
	a.UpdatedAt = s.now()
	if err := s.repo.Update(ctx, a); err != nil {
		return Assignment{}, fmt.Errorf("assignments: deactivate: %w", err)
	}
	return a, nil
}

// Delete removes an assignment.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	return s.repo.Delete(ctx, id)
}

// List returns assignments matching filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Assignment, error) {
	return s.repo.List(ctx, filter)
}

// ActiveAssignments returns the assignments effectively active at now.
func (s *Service) ActiveAssignments(ctx context.Context, now time.Time) ([]Assignment, error) {
	y, m, d := now.In(s.loc).Date()
	today := obligations.Date(y, m, d)
	list, err := s.repo.List(ctx, ListFilter{ActiveOn: &today})
	if err != nil {
		return nil, err
	}
	out := make([]Assignment, 0, len(list))
	for _, a := range list {
		if a.EffectivelyActive(today) {
			out = append(out, a)
		}
	}
	return out, nil
}

func (s *Service) validate(in any) error {
	if err := s.validator.Struct(in); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			fields := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				fields = append(fields, fmt.Sprintf("%s (%s)", fe.Field(), fe.Tag()))
			}
			return fmt.Errorf("%w: %s", ErrInvalidInput, strings.Join(fields, ", "))
		}
		return fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}
	return nil
}

func (s *Service) checkRule(code string, p obligations.Periodicity, from time.Time, until *time.Time) error {
	if until != nil && until.Before(from) {
		return fmt.Errorf("%w: active until precedes active from", ErrInvalidInput)
	}
	return s.catalog.Allows(code, p)
}

func (s *Service) checkClientType(ctx context.Context, clientID, code string) error {
	if s.clients == nil {
		return nil
	}
	raw, err := s.clients.ClientType(ctx, clientID)
	if err != nil {
		return fmt.Errorf("assignments: client type: %w", err)
	}
	t, err := obligations.ParseClientType(raw)
	if err != nil {
		return fmt.Errorf("assignments: client %s: %w", clientID, err)
	}
	return s.catalog.AllowsClientType(code, t)
}

func (s *Service) ensureNoOverlap(ctx context.Context, a Assignment) error {
	if !a.IsActive {
		return nil
	}
	existing, err := s.repo.List(ctx, ListFilter{ClientIDs: []string{a.ClientID}, ObligationCode: a.ObligationCode})
	if err != nil {
		return err
	}
	for _, other := range existing {
		if a.Overlaps(other) {
			return &DuplicateAssignmentError{
				ClientID:       a.ClientID,
				ObligationCode: a.ObligationCode,
				AssignmentIDs:  []uuid.UUID{other.ID, a.ID},
			}
		}
	}
	return nil
}

func civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return obligations.Date(y, m, d)
}

func civilPtr(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := civil(*t)
	return &c
}
