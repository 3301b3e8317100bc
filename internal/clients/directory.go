package clients

import (
	"context"
	"errors"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Directory resolves client ids to display names and client types.
type Directory struct {
	pool *pgxpool.Pool
}

// NewDirectory constructs a Directory over the clients table.
func NewDirectory(pool *pgxpool.Pool) *Directory {
	return &Directory{pool: pool}
}

// DisplayNames returns the names of the given clients. Unknown ids are omitted.
func (d *Directory) DisplayNames(ctx context.Context, ids []string) (map[string]string, error) {
	names := make(map[string]string, len(ids))
	if len(ids) == 0 {
		return names, nil
	}
	rows, err := d.pool.Query(ctx, `SELECT id::text, razon_social FROM clients WHERE id::text = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	for rows.Next() {
		var id, name string
		if err := rows.Scan(&id, &name); err != nil {
			return nil, err
		}
		names[id] = strings.TrimSpace(name)
	}
	return names, rows.Err()
}

// ClientType returns the stored tipo of id. Unknown clients yield "".
func (d *Directory) ClientType(ctx context.Context, id string) (string, error) {
	var tipo string
	err := d.pool.QueryRow(ctx, `SELECT tipo FROM clients WHERE id::text = $1`, id).Scan(&tipo)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(tipo), nil
}

// Name returns the display name of id, falling back to the id itself.
func Name(names map[string]string, id string) string {
	if name, ok := names[id]; ok && name != "" {
		return name
	}
	return id
}
