package legacy

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/llave-asesoria/fiscal/internal/calendar"
	"github.com/llave-asesoria/fiscal/internal/filings"
	"github.com/llave-asesoria/fiscal/internal/obligations"
	"github.com/llave-asesoria/fiscal/internal/platform/db"
)

// PGTarget writes migrated rows into the engine database.
type PGTarget struct {
	pool     *pgxpool.Pool
	calendar *calendar.Repository
}

// NewTarget constructs a PGTarget.
func NewTarget(pool *pgxpool.Pool) *PGTarget {
	return &PGTarget{pool: pool, calendar: calendar.NewRepository(pool)}
}

// SyncTypes upserts obligation types.
func (t *PGTarget) SyncTypes(ctx context.Context, types []obligations.ObligationType) error {
	return t.calendar.SyncTypes(ctx, types)
}

// UpsertPeriods stores legacy periods on their natural key.
func (t *PGTarget) UpsertPeriods(ctx context.Context, periods []calendar.PeriodDefinition) ([]calendar.PeriodDefinition, error) {
	return t.calendar.UpsertPeriods(ctx, periods)
}

// Ledger returns the source to target id map already recorded for table.
func (t *PGTarget) Ledger(ctx context.Context, table string) (map[string]string, error) {
	rows, err := t.pool.Query(ctx, `SELECT source_id, target_id FROM legacy_migration_map WHERE source_table = $1`, table)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	out := make(map[string]string)
	for rows.Next() {
		var source, target string
		if err := rows.Scan(&source, &target); err != nil {
			return nil, err
		}
		out[source] = target
	}
	return out, rows.Err()
}

// RecordLedger stores ledger entries, keeping existing ones.
func (t *PGTarget) RecordLedger(ctx context.Context, entries []LedgerEntry) error {
	if len(entries) == 0 {
		return nil
	}
	batch := &pgx.Batch{}
	for _, e := range entries {
		batch.Queue(insertLedger, e.Table, e.SourceID, e.TargetID, e.SourceState)
	}
	return t.pool.SendBatch(ctx, batch).Close()
}

const insertLedger = `
	INSERT INTO legacy_migration_map (source_table, source_id, target_id, source_state)
	VALUES ($1, $2, $3, $4)
	ON CONFLICT (source_table, source_id) DO NOTHING`

// ApplyFiling ensures the assignment, inserts or upgrades the filing and records the
// ledger entry in one transaction.
func (t *PGTarget) ApplyFiling(ctx context.Context, rec Record) (Outcome, error) {
	var outcome Outcome
	err := db.WithTx(ctx, t.pool, func(tx pgx.Tx) error {
		outcome = Outcome{}
		created, err := ensureAssignment(ctx, tx, rec)
		if err != nil {
			return err
		}
		outcome.AssignmentCreated = created

		f := rec.Filing
		tag, err := tx.Exec(ctx, `
			INSERT INTO filings (id, client_id, obligation_code, period_id, state, submitted_at,
				attachment_refs, notes, created_at, updated_at)
			VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)
			ON CONFLICT (client_id, obligation_code, period_id) DO NOTHING`,
			f.ID.String(), f.ClientID, f.ObligationCode, f.PeriodID.String(), string(f.State), f.SubmittedAt,
			f.AttachmentRefs, f.Notes, f.CreatedAt, f.UpdatedAt)
		if err != nil {
			return fmt.Errorf("legacy: insert filing: %w", err)
		}
		targetID := f.ID.String()
		if tag.RowsAffected() == 1 {
			outcome.FilingCreated = true
		} else {
			upgraded, existingID, err := upgradeExisting(ctx, tx, f)
			if err != nil {
				return err
			}
			outcome.FilingUpgraded = upgraded
			targetID = existingID
		}

		_, err = tx.Exec(ctx, insertLedger, rec.Ledger.Table, rec.Ledger.SourceID, targetID, rec.Ledger.SourceState)
		return err
	})
	return outcome, err
}

func ensureAssignment(ctx context.Context, tx pgx.Tx, rec Record) (bool, error) {
	var id string
	err := tx.QueryRow(ctx, `
		SELECT id::text FROM obligation_assignments
		WHERE client_id = $1 AND obligation_code = $2
		LIMIT 1`, rec.Filing.ClientID, rec.Filing.ObligationCode).Scan(&id)
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, pgx.ErrNoRows) {
		return false, err
	}
	now := rec.Filing.CreatedAt
	_, err = tx.Exec(ctx, `
		INSERT INTO obligation_assignments (id, client_id, obligation_code, periodicity, active_from,
			active_until, is_active, notes, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, NULL, TRUE, $6, $7, $7)`,
		uuid.NewString(), rec.Filing.ClientID, rec.Filing.ObligationCode, string(rec.Periodicity),
		rec.ActiveFrom, migrationNotice, now)
	if err != nil {
		return false, fmt.Errorf("legacy: ensure assignment: %w", err)
	}
	return true, nil
}

// upgradeExisting marks an awaiting filing as submitted when the legacy row was
// already done. Submitted filings are left untouched.
func upgradeExisting(ctx context.Context, tx pgx.Tx, f filings.Filing) (bool, string, error) {
	var (
		id    string
		state string
		refs  []string
	)
	err := tx.QueryRow(ctx, `
		SELECT id::text, state, attachment_refs FROM filings
		WHERE client_id = $1 AND obligation_code = $2 AND period_id = $3
		FOR UPDATE`, f.ClientID, f.ObligationCode, f.PeriodID.String()).Scan(&id, &state, &refs)
	if err != nil {
		return false, "", fmt.Errorf("legacy: load existing filing: %w", err)
	}
	if f.State != filings.StateSubmitted || filings.State(state) != filings.StateAwaitingSubmission {
		return false, id, nil
	}
	existing := filings.Filing{State: filings.StateAwaitingSubmission, AttachmentRefs: refs}
	next, err := filings.MarkSubmitted(existing, *f.SubmittedAt, f.AttachmentRefs, f.UpdatedAt)
	if err != nil {
		return false, id, err
	}
	_, err = tx.Exec(ctx, `
		UPDATE filings SET state = $2, submitted_at = $3, attachment_refs = $4, updated_at = $5
		WHERE id = $1`, id, string(next.State), next.SubmittedAt, next.AttachmentRefs, next.UpdatedAt)
	if err != nil {
		return false, id, err
	}
	return true, id, nil
}
