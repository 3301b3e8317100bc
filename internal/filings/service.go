package filings

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repository abstracts filing persistence.
type Repository interface {
	WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error
	Get(ctx context.Context, id uuid.UUID) (Filing, error)
	List(ctx context.Context, filter ListFilter) ([]Filing, error)
}

// TxRepository exposes the operations that run inside a transaction.
type TxRepository interface {
	GetForUpdate(ctx context.Context, id uuid.UUID) (Filing, error)
	Save(ctx context.Context, f Filing) error
	ListByClient(ctx context.Context, clientID string) ([]Filing, error)
	Insert(ctx context.Context, list []Filing) (int64, error)
	DeleteAwaiting(ctx context.Context, ids []uuid.UUID) (int64, error)
}

// DocumentStore confirms that attachment references exist.
type DocumentStore interface {
	Exists(ctx context.Context, documentID string) (bool, error)
}

// Service drives the filing lifecycle.
type Service struct {
	repo Repository
	docs DocumentStore
	now  func() time.Time
}

// NewService constructs the lifecycle service. docs may be nil to skip existence checks.
func NewService(repo Repository, docs DocumentStore) *Service {
	return &Service{repo: repo, docs: docs, now: time.Now}
}

// WithNow overrides the clock.
func (s *Service) WithNow(fn func() time.Time) *Service {
	if fn != nil {
		s.now = fn
	}
	return s
}

// MarkSubmitted transitions the filing to SUBMITTED and records the attachment references.
func (s *Service) MarkSubmitted(ctx context.Context, id uuid.UUID, submittedAt time.Time, refs []string) (Filing, error) {
	var updated Filing
	err := s.repo.WithTx(ctx, func(ctx context.Context, tx TxRepository) error {
		current, err := tx.GetForUpdate(ctx, id)
		if err != nil {
			return err
		}
		next, err := MarkSubmitted(current, submittedAt, refs, s.now())
		if err != nil {
			return err
		}
		if err := s.checkDocuments(ctx, NewRefs(current.AttachmentRefs, refs)); err != nil {
			return err
		}
		if err := tx.Save(ctx, next); err != nil {
			return fmt.Errorf("filings: save %s: %w", id, err)
		}
		updated = next
		return nil
	})
	if err != nil {
		return Filing{}, err
	}
	return updated, nil
}

func (s *Service) checkDocuments(ctx context.Context, refs []string) error {
	if s.docs == nil {
		return nil
	}
	for _, ref := range refs {
		ok, err := s.docs.Exists(ctx, ref)
		if err != nil {
			return fmt.Errorf("filings: check document %s: %w", ref, err)
		}
		if !ok {
			return fmt.Errorf("%w: %s", ErrDocumentNotFound, ref)
		}
	}
	return nil
}

// Get loads one filing.
func (s *Service) Get(ctx context.Context, id uuid.UUID) (Filing, error) {
	return s.repo.Get(ctx, id)
}

// List returns filings matching filter.
func (s *Service) List(ctx context.Context, filter ListFilter) ([]Filing, error) {
	return s.repo.List(ctx, filter)
}
