package filings

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/llave-asesoria/fiscal/internal/platform/db"
)

// PGRepository stores filings in PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

type txRepo struct {
	tx pgx.Tx
}

// WithTx wraps fn in a repeatable-read transaction.
func (r *PGRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{tx: tx})
	})
}

const filingColumns = `id::text, client_id, obligation_code, period_id::text, state, submitted_at,
	attachment_refs, notes, created_at, updated_at`

// Get loads a filing by id.
func (r *PGRepository) Get(ctx context.Context, id uuid.UUID) (Filing, error) {
	return getFiling(ctx, r.pool, `SELECT `+filingColumns+` FROM filings WHERE id = $1`, id)
}

// List returns filings matching filter.
func (r *PGRepository) List(ctx context.Context, filter ListFilter) ([]Filing, error) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if filter.ClientID != "" {
		add("client_id = $%d", filter.ClientID)
	}
	if filter.ObligationCode != "" {
		add("obligation_code = $%d", filter.ObligationCode)
	}
	if filter.State != "" {
		add("state = $%d", string(filter.State))
	}
	if len(filter.PeriodIDs) > 0 {
		add("period_id = ANY($%d::uuid[])", uuidStrings(filter.PeriodIDs))
	}
	query := `SELECT ` + filingColumns + ` FROM filings`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY client_id, obligation_code, created_at`
	return listFilings(ctx, r.pool, query, args...)
}

func (t *txRepo) GetForUpdate(ctx context.Context, id uuid.UUID) (Filing, error) {
	return getFiling(ctx, t.tx, `SELECT `+filingColumns+` FROM filings WHERE id = $1 FOR UPDATE`, id)
}

func (t *txRepo) Save(ctx context.Context, f Filing) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE filings
		SET state = $2, submitted_at = $3, attachment_refs = $4, notes = $5, updated_at = $6
		WHERE id = $1`,
		f.ID.String(), string(f.State), f.SubmittedAt, refsOrEmpty(f.AttachmentRefs), f.Notes, f.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func (t *txRepo) ListByClient(ctx context.Context, clientID string) ([]Filing, error) {
	return listFilings(ctx, t.tx,
		`SELECT `+filingColumns+` FROM filings WHERE client_id = $1 ORDER BY obligation_code, created_at FOR UPDATE`, clientID)
}

// Insert adds filings, skipping those whose natural key already exists.
func (t *txRepo) Insert(ctx context.Context, list []Filing) (int64, error) {
	var inserted int64
	for _, f := range list {
		tag, err := t.tx.Exec(ctx, `
			INSERT INTO filings (id, client_id, obligation_code, period_id, state, submitted_at,
				attachment_refs, notes, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (client_id, obligation_code, period_id) DO NOTHING`,
			f.ID.String(), f.ClientID, f.ObligationCode, f.PeriodID.String(), string(f.State), f.SubmittedAt,
			refsOrEmpty(f.AttachmentRefs), f.Notes, f.CreatedAt, f.UpdatedAt)
		if err != nil {
			return inserted, fmt.Errorf("filings: insert %s/%s: %w", f.ClientID, f.ObligationCode, err)
		}
		inserted += tag.RowsAffected()
	}
	return inserted, nil
}

// DeleteAwaiting removes the given filings when they are still awaiting submission.
func (t *txRepo) DeleteAwaiting(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	tag, err := t.tx.Exec(ctx, `DELETE FROM filings WHERE id = ANY($1::uuid[]) AND state = $2`,
		uuidStrings(ids), string(StateAwaitingSubmission))
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

func getFiling(ctx context.Context, q querier, query string, id uuid.UUID) (Filing, error) {
	f, err := scanFiling(q.QueryRow(ctx, query, id.String()))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Filing{}, ErrNotFound
		}
		return Filing{}, err
	}
	return f, nil
}

func listFilings(ctx context.Context, q querier, query string, args ...any) ([]Filing, error) {
	rows, err := q.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Filing
	for rows.Next() {
		f, err := scanFiling(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, f)
	}
	return out, rows.Err()
}

func scanFiling(row pgx.Row) (Filing, error) {
	var (
		f        Filing
		id       string
		periodID string
		state    string
	)
	if err := row.Scan(&id, &f.ClientID, &f.ObligationCode, &periodID, &state, &f.SubmittedAt,
		&f.AttachmentRefs, &f.Notes, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return Filing{}, err
	}
	var err error
	if f.ID, err = uuid.Parse(id); err != nil {
		return Filing{}, fmt.Errorf("filings: id %q: %w", id, err)
	}
	if f.PeriodID, err = uuid.Parse(periodID); err != nil {
		return Filing{}, fmt.Errorf("filings: period id %q: %w", periodID, err)
	}
	if f.State, err = ParseState(state); err != nil {
		return Filing{}, err
	}
	return f, nil
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func refsOrEmpty(refs []string) []string {
	if refs == nil {
		return []string{}
	}
	return refs
}
