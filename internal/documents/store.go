package documents

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Store checks attachment references against the documents table.
type Store struct {
	pool *pgxpool.Pool
}

// NewStore constructs a Store.
func NewStore(pool *pgxpool.Pool) *Store {
	return &Store{pool: pool}
}

// Exists reports whether a document with id has been uploaded.
func (s *Store) Exists(ctx context.Context, id string) (bool, error) {
	var exists bool
	err := s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM documents WHERE id::text = $1)`, id).Scan(&exists)
	return exists, err
}
