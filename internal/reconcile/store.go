package reconcile

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/llave-asesoria/fiscal/internal/assignments"
	"github.com/llave-asesoria/fiscal/internal/filings"
)

// PGStore combines the assignment and filing repositories for a run.
type PGStore struct {
	pool        *pgxpool.Pool
	assignments *assignments.PGRepository
	filings     *filings.PGRepository
}

// NewStore constructs a PGStore.
func NewStore(pool *pgxpool.Pool) *PGStore {
	return &PGStore{
		pool:        pool,
		assignments: assignments.NewRepository(pool),
		filings:     filings.NewRepository(pool),
	}
}

// ClientIDs lists every client holding an assignment or a filing.
func (s *PGStore) ClientIDs(ctx context.Context) ([]string, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT client_id FROM obligation_assignments
		UNION
		SELECT client_id FROM filings
		ORDER BY client_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var ids []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		ids = append(ids, id)
	}
	return ids, rows.Err()
}

// Assignments lists assignments matching filter.
func (s *PGStore) Assignments(ctx context.Context, filter assignments.ListFilter) ([]assignments.Assignment, error) {
	return s.assignments.List(ctx, filter)
}

// WithTx runs fn in a filing transaction.
func (s *PGStore) WithTx(ctx context.Context, fn func(context.Context, filings.TxRepository) error) error {
	return s.filings.WithTx(ctx, fn)
}
