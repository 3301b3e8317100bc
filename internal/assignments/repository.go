package assignments

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/llave-asesoria/fiscal/internal/obligations"
	"github.com/llave-asesoria/fiscal/internal/platform/db"
)

// PGRepository stores assignments in PostgreSQL.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const assignmentColumns = `id::text, client_id, obligation_code, periodicity, active_from, active_until,
	is_active, notes, created_at, updated_at`

// Create inserts an assignment.
func (r *PGRepository) Create(ctx context.Context, a Assignment) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO obligation_assignments (id, client_id, obligation_code, periodicity, active_from,
			active_until, is_active, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)`,
		a.ID.String(), a.ClientID, a.ObligationCode, string(a.Periodicity), a.ActiveFrom,
		a.ActiveUntil, a.IsActive, a.Notes, a.CreatedAt, a.UpdatedAt)
	return conflict(a, err)
}

// conflict maps the open-ended uniqueness index onto DuplicateAssignmentError.
func conflict(a Assignment, err error) error {
	if db.IsUniqueViolation(err) {
		return &DuplicateAssignmentError{ClientID: a.ClientID, ObligationCode: a.ObligationCode, AssignmentIDs: []uuid.UUID{a.ID}}
	}
	return err
}

// Get loads an assignment by id.
func (r *PGRepository) Get(ctx context.Context, id uuid.UUID) (Assignment, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+assignmentColumns+` FROM obligation_assignments WHERE id = $1`, id.String())
	a, err := scanAssignment(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return Assignment{}, ErrNotFound
		}
		return Assignment{}, err
	}
	return a, nil
}

// Update persists the editable fields.
func (r *PGRepository) Update(ctx context.Context, a Assignment) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE obligation_assignments
		SET periodicity = $2, active_from = $3, active_until = $4, is_active = $5, notes = $6, updated_at = $7
		WHERE id = $1`,
		a.ID.String(), string(a.Periodicity), a.ActiveFrom, a.ActiveUntil, a.IsActive, a.Notes, a.UpdatedAt)
	if err != nil {
		return conflict(a, err)
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// Delete removes an assignment.
func (r *PGRepository) Delete(ctx context.Context, id uuid.UUID) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM obligation_assignments WHERE id = $1`, id.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

// List returns assignments matching filter ordered by client and obligation.
func (r *PGRepository) List(ctx context.Context, filter ListFilter) ([]Assignment, error) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if len(filter.ClientIDs) > 0 {
		add("client_id = ANY($%d)", filter.ClientIDs)
	}
	if filter.ObligationCode != "" {
		add("obligation_code = $%d", filter.ObligationCode)
	}
	if filter.ActiveOn != nil {
		add("is_active AND active_from <= $%[1]d AND (active_until IS NULL OR active_until >= $%[1]d)", *filter.ActiveOn)
	}
	query := `SELECT ` + assignmentColumns + ` FROM obligation_assignments`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY client_id, obligation_code, active_from`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Assignment
	for rows.Next() {
		a, err := scanAssignment(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func scanAssignment(row pgx.Row) (Assignment, error) {
	var (
		a           Assignment
		id          string
		periodicity string
	)
	if err := row.Scan(&id, &a.ClientID, &a.ObligationCode, &periodicity, &a.ActiveFrom, &a.ActiveUntil,
		&a.IsActive, &a.Notes, &a.CreatedAt, &a.UpdatedAt); err != nil {
		return Assignment{}, err
	}
	parsed, err := uuid.Parse(id)
	if err != nil {
		return Assignment{}, fmt.Errorf("assignments: id %q: %w", id, err)
	}
	if a.Periodicity, err = obligations.ParsePeriodicity(periodicity); err != nil {
		return Assignment{}, err
	}
	a.ID = parsed
	a.ActiveFrom = civil(a.ActiveFrom)
	a.ActiveUntil = civilPtr(a.ActiveUntil)
	return a, nil
}
