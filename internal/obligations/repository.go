package obligations

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Repository persists obligation reference data.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a Repository using the provided pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// SyncTypes upserts the reference record of every obligation type.
func (r *Repository) SyncTypes(ctx context.Context, types []ObligationType) error {
	if len(types) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, t := range types {
		batch.Queue(`
			INSERT INTO obligation_types (code, name)
			VALUES ($1, $2)
			ON CONFLICT (code) DO UPDATE SET name = EXCLUDED.name, updated_at = now()
			WHERE obligation_types.name IS DISTINCT FROM EXCLUDED.name`, t.Code, t.Name)
	}
	results := r.pool.SendBatch(ctx, batch)
	defer results.Close()
	for _, t := range types {
		if _, err := results.Exec(); err != nil {
			return fmt.Errorf("obligations: sync %s: %w", t.Code, err)
		}
	}
	return nil
}
