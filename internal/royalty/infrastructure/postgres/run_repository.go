package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	royalty "royalty-engine/internal/royalty/domain"
)

// RunRepository persists royalty runs and owns the multi-entity transactions
// around calculation and rollback.
type RunRepository struct {
	db *sql.DB
}

// NewRunRepository constructs a repository.
func NewRunRepository(db *sql.DB) *RunRepository {
	return &RunRepository{db: db}
}

// Create inserts a new run.
func (r *RunRepository) Create(ctx context.Context, run *royalty.Run) error {
	if r == nil || r.db == nil {
		return errors.New("run repo: nil db")
	}
	if run == nil {
		return royalty.ErrNilRun
	}
	_, err := r.db.ExecContext(ctx, `
INSERT INTO royalty_runs (
	id, period_start, period_end, status, total_revenue_cents, total_royalties_cents,
	notes, created_by, created_at, updated_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)`,
		run.ID, run.PeriodStart, run.PeriodEnd, run.Status, run.TotalRevenueCents, run.TotalRoyaltiesCents,
		run.Notes, run.CreatedBy, run.CreatedAt, run.UpdatedAt,
	)
	return err
}

// GetByID fetches a run.
func (r *RunRepository) GetByID(ctx context.Context, id string) (*royalty.Run, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("run repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, period_start, period_end, status, total_revenue_cents, total_royalties_cents,
	notes, created_by, created_at, updated_at, locked_at, processed_at
FROM royalty_runs
WHERE id = $1
LIMIT 1`, id)
	return scanRun(row)
}

// List returns all runs, newest period first.
func (r *RunRepository) List(ctx context.Context) ([]royalty.Run, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("run repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, period_start, period_end, status, total_revenue_cents, total_royalties_cents,
	notes, created_by, created_at, updated_at, locked_at, processed_at
FROM royalty_runs
ORDER BY period_start DESC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []royalty.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		if run != nil {
			result = append(result, *run)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// FindOverlapping returns a non-terminal run whose period overlaps the given
// one, or nil.
func (r *RunRepository) FindOverlapping(ctx context.Context, period royalty.Period) (*royalty.Run, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("run repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, period_start, period_end, status, total_revenue_cents, total_royalties_cents,
	notes, created_by, created_at, updated_at, locked_at, processed_at
FROM royalty_runs
WHERE period_start < $2 AND period_end > $1
	AND status NOT IN ('COMPLETED','CANCELLED','FAILED')
LIMIT 1`, period.Start, period.End)
	return scanRun(row)
}

// UpdateStatus moves a run from -> to, guarded in storage so a stale reader
// cannot race the transition.
func (r *RunRepository) UpdateStatus(ctx context.Context, id string, from, to royalty.RunStatus, at time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("run repo: nil db")
	}
	query := `
UPDATE royalty_runs
SET status = $1, updated_at = $2
WHERE id = $3 AND status = $4`
	switch to {
	case royalty.RunStatusLocked:
		query = `
UPDATE royalty_runs
SET status = $1, updated_at = $2, locked_at = $2
WHERE id = $3 AND status = $4`
	case royalty.RunStatusCompleted:
		query = `
UPDATE royalty_runs
SET status = $1, updated_at = $2, processed_at = $2
WHERE id = $3 AND status = $4`
	}
	res, err := r.db.ExecContext(ctx, query, to, at, id, from)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return royalty.ErrInvalidTransition
	}
	return nil
}

// SaveCalculation persists one calculation pass atomically: the run's
// DRAFT -> CALCULATED transition, all statements with their lines, and the
// carryover balance updates.
func (r *RunRepository) SaveCalculation(ctx context.Context, result royalty.CalculationResult) error {
	if r == nil || r.db == nil {
		return errors.New("run repo: nil db")
	}
	if result.Run == nil {
		return royalty.ErrNilRun
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `
UPDATE royalty_runs
SET status = $1, total_revenue_cents = $2, total_royalties_cents = $3, updated_at = $4
WHERE id = $5 AND status = $6`,
		royalty.RunStatusCalculated, result.Run.TotalRevenueCents, result.Run.TotalRoyaltiesCents,
		result.Run.UpdatedAt, result.Run.ID, royalty.RunStatusDraft)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	if affected == 0 {
		_ = tx.Rollback()
		return royalty.ErrInvalidTransition
	}

	for _, item := range result.Statements {
		stmt := item.Statement
		_, err := tx.ExecContext(ctx, `
INSERT INTO royalty_statements (
	id, run_id, creator_id, total_cents, status, dispute_reason, payment_ref,
	correction_count, created_at, updated_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10
)`,
			stmt.ID, stmt.RunID, stmt.CreatorID, stmt.TotalCents, stmt.Status, stmt.DisputeReason,
			stmt.PaymentRef, stmt.CorrectionCount, stmt.CreatedAt, stmt.UpdatedAt)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
		for _, line := range item.Lines {
			if err := insertLine(ctx, tx, line); err != nil {
				_ = tx.Rollback()
				return err
			}
		}
	}

	for _, update := range result.Carryovers {
		if err := upsertCarryover(ctx, tx, update, result.Run.UpdatedAt); err != nil {
			_ = tx.Rollback()
			return err
		}
	}

	// Outbox rows commit with the calculation, so events survive a crash
	// between commit and dispatch.
	for _, event := range result.Outbox {
		_, err := tx.ExecContext(ctx, `
INSERT INTO event_outbox (id, event_id, event_type, payload, status, attempts)
VALUES ($1, $2, $3, $4, 'pending', 0)
ON CONFLICT (id) DO NOTHING`,
			event.OutboxID, event.EventID, event.EventType, event.Payload)
		if err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

// Rollback reverts a run to DRAFT atomically: archive row appended to the
// notes ledger, lines and statements deleted, totals reset, carryover
// balances restored.
func (r *RunRepository) Rollback(ctx context.Context, rollback royalty.RollbackResult) error {
	if r == nil || r.db == nil {
		return errors.New("run repo: nil db")
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `
UPDATE royalty_runs
SET status = $1,
	total_revenue_cents = 0,
	total_royalties_cents = 0,
	notes = CASE WHEN notes = '' THEN $2 ELSE notes || E'\n' || $2 END,
	locked_at = NULL,
	processed_at = NULL,
	updated_at = $3
WHERE id = $4 AND status IN ($5, $6)`,
		royalty.RunStatusDraft, rollback.ArchiveRow, rollback.At, rollback.RunID,
		royalty.RunStatusCalculated, royalty.RunStatusLocked)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	if affected == 0 {
		_ = tx.Rollback()
		return royalty.ErrInvalidTransition
	}

	_, err = tx.ExecContext(ctx, `
DELETE FROM royalty_statement_lines
WHERE statement_id IN (SELECT id FROM royalty_statements WHERE run_id = $1)`, rollback.RunID)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	_, err = tx.ExecContext(ctx, `
DELETE FROM royalty_statements WHERE run_id = $1`, rollback.RunID)
	if err != nil {
		_ = tx.Rollback()
		return err
	}

	for _, restore := range rollback.Restores {
		if err := upsertCarryover(ctx, tx, restore, rollback.At); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}

func insertLine(ctx context.Context, tx *sql.Tx, line royalty.Line) error {
	_, err := tx.ExecContext(ctx, `
INSERT INTO royalty_statement_lines (
	id, statement_id, kind, license_id, asset_id, revenue_cents, share_bps,
	royalty_cents, period_start, period_end, note, created_at
) VALUES (
	$1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12
)`,
		line.ID, line.StatementID, line.Kind, line.LicenseID, line.AssetID, line.RevenueCents,
		line.ShareBps, line.RoyaltyCents, line.PeriodStart, line.PeriodEnd, line.Note, line.CreatedAt)
	return err
}

func upsertCarryover(ctx context.Context, tx *sql.Tx, update royalty.CarryoverUpdate, at time.Time) error {
	_, err := tx.ExecContext(ctx, `
INSERT INTO royalty_carryovers (creator_id, balance_cents, updated_at)
VALUES ($1, $2, $3)
ON CONFLICT (creator_id)
DO UPDATE SET balance_cents = EXCLUDED.balance_cents, updated_at = EXCLUDED.updated_at`,
		update.CreatorID, update.BalanceCents, at)
	return err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*royalty.Run, error) {
	var run royalty.Run
	var status string
	var lockedAt sql.NullTime
	var processedAt sql.NullTime
	err := row.Scan(
		&run.ID,
		&run.PeriodStart,
		&run.PeriodEnd,
		&status,
		&run.TotalRevenueCents,
		&run.TotalRoyaltiesCents,
		&run.Notes,
		&run.CreatedBy,
		&run.CreatedAt,
		&run.UpdatedAt,
		&lockedAt,
		&processedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	run.Status = royalty.RunStatus(status)
	if lockedAt.Valid {
		run.LockedAt = lockedAt.Time.UTC()
	}
	if processedAt.Valid {
		run.ProcessedAt = processedAt.Time.UTC()
	}
	run.PeriodStart = run.PeriodStart.UTC()
	run.PeriodEnd = run.PeriodEnd.UTC()
	run.CreatedAt = run.CreatedAt.UTC()
	run.UpdatedAt = run.UpdatedAt.UTC()
	return &run, nil
}
