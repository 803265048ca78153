package postgres

import (
	"context"
	"database/sql"
	"errors"
	"time"

	royalty "royalty-engine/internal/royalty/domain"
)

// StatementRepository reads statements and applies the post-calculation hooks.
// Statement rows are created only inside SaveCalculation.
type StatementRepository struct {
	db *sql.DB
}

// NewStatementRepository constructs a repository.
func NewStatementRepository(db *sql.DB) *StatementRepository {
	return &StatementRepository{db: db}
}

// GetByID fetches a statement.
func (r *StatementRepository) GetByID(ctx context.Context, id string) (*royalty.Statement, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("statement repo: nil db")
	}
	row := r.db.QueryRowContext(ctx, `
SELECT id, run_id, creator_id, total_cents, status, reviewed_at, disputed_at,
	dispute_reason, payment_ref, correction_count, created_at, updated_at
FROM royalty_statements
WHERE id = $1
LIMIT 1`, id)
	return scanStatement(row)
}

// ListByRun returns a run's statements ordered by creator.
func (r *StatementRepository) ListByRun(ctx context.Context, runID string) ([]royalty.Statement, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("statement repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, run_id, creator_id, total_cents, status, reviewed_at, disputed_at,
	dispute_reason, payment_ref, correction_count, created_at, updated_at
FROM royalty_statements
WHERE run_id = $1
ORDER BY creator_id ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []royalty.Statement
	for rows.Next() {
		stmt, err := scanStatement(rows)
		if err != nil {
			return nil, err
		}
		if stmt != nil {
			result = append(result, *stmt)
		}
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

// ListLines returns a statement's lines.
func (r *StatementRepository) ListLines(ctx context.Context, statementID string) ([]royalty.Line, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("statement repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, statement_id, kind, license_id, asset_id, revenue_cents, share_bps,
	royalty_cents, period_start, period_end, note, created_at
FROM royalty_statement_lines
WHERE statement_id = $1
ORDER BY created_at ASC, id ASC`, statementID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLines(rows)
}

// ListLinesByRun returns every line under a run.
func (r *StatementRepository) ListLinesByRun(ctx context.Context, runID string) ([]royalty.Line, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("statement repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT l.id, l.statement_id, l.kind, l.license_id, l.asset_id, l.revenue_cents, l.share_bps,
	l.royalty_cents, l.period_start, l.period_end, l.note, l.created_at
FROM royalty_statement_lines l
JOIN royalty_statements s ON s.id = l.statement_id
WHERE s.run_id = $1
ORDER BY l.statement_id ASC, l.created_at ASC, l.id ASC`, runID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	return collectLines(rows)
}

// CountByRunAndStatus counts a run's statements in one status.
func (r *StatementRepository) CountByRunAndStatus(ctx context.Context, runID string, status royalty.StatementStatus) (int, error) {
	if r == nil || r.db == nil {
		return 0, errors.New("statement repo: nil db")
	}
	var count int
	err := r.db.QueryRowContext(ctx, `
SELECT COUNT(*)
FROM royalty_statements
WHERE run_id = $1 AND status = $2`, runID, status).Scan(&count)
	return count, err
}

// UpdateStatus moves a statement through its review cycle.
func (r *StatementRepository) UpdateStatus(ctx context.Context, id string, status royalty.StatementStatus, at time.Time, reason string) error {
	if r == nil || r.db == nil {
		return errors.New("statement repo: nil db")
	}
	var res sql.Result
	var err error
	switch status {
	case royalty.StatementStatusReviewed:
		res, err = r.db.ExecContext(ctx, `
UPDATE royalty_statements
SET status = $1, reviewed_at = $2, updated_at = $2
WHERE id = $3`, status, at, id)
	case royalty.StatementStatusDisputed:
		res, err = r.db.ExecContext(ctx, `
UPDATE royalty_statements
SET status = $1, disputed_at = $2, dispute_reason = $3, updated_at = $2
WHERE id = $4`, status, at, reason, id)
	default:
		res, err = r.db.ExecContext(ctx, `
UPDATE royalty_statements
SET status = $1, updated_at = $2
WHERE id = $3`, status, at, id)
	}
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return royalty.ErrStatementNotFound
	}
	return nil
}

// SetPaymentRef marks a statement PAID with its payment reference.
func (r *StatementRepository) SetPaymentRef(ctx context.Context, id, paymentRef string, at time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("statement repo: nil db")
	}
	res, err := r.db.ExecContext(ctx, `
UPDATE royalty_statements
SET status = $1, payment_ref = $2, updated_at = $3
WHERE id = $4`, royalty.StatementStatusPaid, paymentRef, at, id)
	if err != nil {
		return err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if affected == 0 {
		return royalty.ErrStatementNotFound
	}
	return nil
}

// AddCorrectionLine appends a correction line and adjusts the statement total
// in one transaction. Calculated lines are never edited in place.
func (r *StatementRepository) AddCorrectionLine(ctx context.Context, statementID string, line royalty.Line, at time.Time) error {
	if r == nil || r.db == nil {
		return errors.New("statement repo: nil db")
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	if err := insertLine(ctx, tx, line); err != nil {
		_ = tx.Rollback()
		return err
	}
	res, err := tx.ExecContext(ctx, `
UPDATE royalty_statements
SET total_cents = total_cents + $1,
	correction_count = correction_count + 1,
	updated_at = $2
WHERE id = $3`, line.RoyaltyCents, at, statementID)
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
		return royalty.ErrStatementNotFound
	}
	return tx.Commit()
}

func collectLines(rows *sql.Rows) ([]royalty.Line, error) {
	var result []royalty.Line
	for rows.Next() {
		var line royalty.Line
		var kind string
		if err := rows.Scan(
			&line.ID,
			&line.StatementID,
			&kind,
			&line.LicenseID,
			&line.AssetID,
			&line.RevenueCents,
			&line.ShareBps,
			&line.RoyaltyCents,
			&line.PeriodStart,
			&line.PeriodEnd,
			&line.Note,
			&line.CreatedAt,
		); err != nil {
			return nil, err
		}
		line.Kind = royalty.LineKind(kind)
		line.PeriodStart = line.PeriodStart.UTC()
		line.PeriodEnd = line.PeriodEnd.UTC()
		line.CreatedAt = line.CreatedAt.UTC()
		result = append(result, line)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}

func scanStatement(row rowScanner) (*royalty.Statement, error) {
	var stmt royalty.Statement
	var status string
	var reviewedAt sql.NullTime
	var disputedAt sql.NullTime
	var disputeReason sql.NullString
	var paymentRef sql.NullString
	err := row.Scan(
		&stmt.ID,
		&stmt.RunID,
		&stmt.CreatorID,
		&stmt.TotalCents,
		&status,
		&reviewedAt,
		&disputedAt,
		&disputeReason,
		&paymentRef,
		&stmt.CorrectionCount,
		&stmt.CreatedAt,
		&stmt.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	stmt.Status = royalty.StatementStatus(status)
	if reviewedAt.Valid {
		stmt.ReviewedAt = reviewedAt.Time.UTC()
	}
	if disputedAt.Valid {
		stmt.DisputedAt = disputedAt.Time.UTC()
	}
	if disputeReason.Valid {
		stmt.DisputeReason = disputeReason.String
	}
	if paymentRef.Valid {
		stmt.PaymentRef = paymentRef.String
	}
	stmt.CreatedAt = stmt.CreatedAt.UTC()
	stmt.UpdatedAt = stmt.UpdatedAt.UTC()
	return &stmt, nil
}
