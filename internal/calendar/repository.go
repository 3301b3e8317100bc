package calendar

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/llave-asesoria/fiscal/internal/obligations"
	"github.com/llave-asesoria/fiscal/internal/platform/db"
)

// Repository persists period definitions in PostgreSQL.
type Repository struct {
	pool  *pgxpool.Pool
	types *obligations.Repository
}

// NewRepository constructs a Repository using the provided pool.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, types: obligations.NewRepository(pool)}
}

const periodColumns = `id::text, obligation_code, fiscal_year, kind, label, period_index,
	accrual_start, accrual_end, submission_start, submission_end, active, window_source, locked`

// SyncTypes stores the obligation types referenced by periods.
func (r *Repository) SyncTypes(ctx context.Context, types []obligations.ObligationType) error {
	return r.types.SyncTypes(ctx, types)
}

const upsertPeriodSQL = `
	INSERT INTO period_definitions (id, obligation_code, fiscal_year, kind, label, period_index,
		accrual_start, accrual_end, submission_start, submission_end, active, window_source)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)
	ON CONFLICT (obligation_code, fiscal_year, label) DO UPDATE SET
		kind = EXCLUDED.kind,
		period_index = EXCLUDED.period_index,
		accrual_start = EXCLUDED.accrual_start,
		accrual_end = EXCLUDED.accrual_end,
		submission_start = CASE WHEN period_definitions.window_source = 'GENERATED'
			THEN EXCLUDED.submission_start ELSE period_definitions.submission_start END,
		submission_end = CASE WHEN period_definitions.window_source = 'GENERATED'
			THEN EXCLUDED.submission_end ELSE period_definitions.submission_end END,
		window_source = CASE WHEN period_definitions.window_source = 'GENERATED'
			THEN EXCLUDED.window_source ELSE period_definitions.window_source END,
		updated_at = now()
	RETURNING ` + periodColumns

// UpsertPeriods inserts periods or refreshes them on the natural key. Only generated
// windows are replaced; imported or migrated ones are kept. The stored rows are returned.
func (r *Repository) UpsertPeriods(ctx context.Context, periods []PeriodDefinition) ([]PeriodDefinition, error) {
	if len(periods) == 0 {
		return nil, nil
	}
	stored := make([]PeriodDefinition, 0, len(periods))
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		for _, p := range periods {
			row := tx.QueryRow(ctx, upsertPeriodSQL,
				p.ID, p.ObligationCode, p.FiscalYear, string(p.Kind), p.Label, p.Index,
				p.AccrualStart, p.AccrualEnd, p.SubmissionStart, p.SubmissionEnd, p.Active, string(sourceOrDefault(p.Source)))
			saved, err := scanPeriod(row)
			if err != nil {
				return fmt.Errorf("calendar: upsert %s: %w", p.Key(), err)
			}
			stored = append(stored, saved)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// ListPeriods returns periods matching filter in generation order.
func (r *Repository) ListPeriods(ctx context.Context, filter PeriodFilter) ([]PeriodDefinition, error) {
	var (
		clauses []string
		args    []any
	)
	add := func(clause string, value any) {
		args = append(args, value)
		clauses = append(clauses, fmt.Sprintf(clause, len(args)))
	}
	if len(filter.Codes) > 0 {
		add("obligation_code = ANY($%d)", filter.Codes)
	}
	if len(filter.Years) > 0 {
		years := make([]int32, len(filter.Years))
		for i, y := range filter.Years {
			years[i] = int32(y)
		}
		add("fiscal_year = ANY($%d)", years)
	}
	if len(filter.IDs) > 0 {
		ids := make([]string, len(filter.IDs))
		for i, id := range filter.IDs {
			ids[i] = id.String()
		}
		add("id = ANY($%d::uuid[])", ids)
	}
	if filter.OpenOn != nil {
		add("active AND $%d::date BETWEEN submission_start AND submission_end", *filter.OpenOn)
	}

	query := `SELECT ` + periodColumns + ` FROM period_definitions`
	if len(clauses) > 0 {
		query += ` WHERE ` + strings.Join(clauses, " AND ")
	}
	query += ` ORDER BY obligation_code, fiscal_year,
		CASE kind WHEN 'MONTHLY' THEN 1 WHEN 'QUARTERLY' THEN 2 WHEN 'SPECIAL' THEN 3 ELSE 4 END,
		period_index`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []PeriodDefinition
	for rows.Next() {
		p, err := scanPeriod(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

// GetPeriod loads a period by id.
func (r *Repository) GetPeriod(ctx context.Context, id uuid.UUID) (PeriodDefinition, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+periodColumns+` FROM period_definitions WHERE id = $1`, id.String())
	p, err := scanPeriod(row)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return PeriodDefinition{}, ErrNotFound
		}
		return PeriodDefinition{}, err
	}
	return p, nil
}

// UpdateWindow overrides the submission window, active and locked flags of a period.
func (r *Repository) UpdateWindow(ctx context.Context, update WindowUpdate) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE period_definitions
		SET submission_start = $2, submission_end = $3, active = $4, window_source = $5, locked = $6, updated_at = now()
		WHERE id = $1`,
		update.ID.String(), update.SubmissionStart, update.SubmissionEnd, update.Active,
		string(sourceOrDefault(update.Source)), update.Locked)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return ErrNotFound
	}
	return nil
}

func scanPeriod(row pgx.Row) (PeriodDefinition, error) {
	var (
		p      PeriodDefinition
		id     string
		kind   string
		source string
		year   int32
		index  int32
	)
	if err := row.Scan(&id, &p.ObligationCode, &year, &kind, &p.Label, &index,
		&p.AccrualStart, &p.AccrualEnd, &p.SubmissionStart, &p.SubmissionEnd, &p.Active, &source, &p.Locked); err != nil {
		return PeriodDefinition{}, err
	}
	parsedID, err := uuid.Parse(id)
	if err != nil {
		return PeriodDefinition{}, fmt.Errorf("calendar: period id %q: %w", id, err)
	}
	if p.Kind, err = obligations.ParsePeriodicity(kind); err != nil {
		return PeriodDefinition{}, err
	}
	p.ID = parsedID
	p.FiscalYear = int(year)
	p.Index = int(index)
	p.Source = WindowSource(source)
	p.AccrualStart = civil(p.AccrualStart)
	p.AccrualEnd = civil(p.AccrualEnd)
	p.SubmissionStart = civil(p.SubmissionStart)
	p.SubmissionEnd = civil(p.SubmissionEnd)
	return p, nil
}

func civil(t time.Time) time.Time {
	y, m, d := t.Date()
	return obligations.Date(y, m, d)
}

func sourceOrDefault(s WindowSource) WindowSource {
	if s == "" {
		return WindowGenerated
	}
	return s
}
