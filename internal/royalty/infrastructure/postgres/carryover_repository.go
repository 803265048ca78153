package postgres

import (
	"context"
	"database/sql"
	"errors"

	royalty "royalty-engine/internal/royalty/domain"
)

// CarryoverRepository reads creators' unpaid balances. Writes happen inside
// the run repository's SaveCalculation and Rollback transactions.
type CarryoverRepository struct {
	db *sql.DB
}

// NewCarryoverRepository constructs a repository.
func NewCarryoverRepository(db *sql.DB) *CarryoverRepository {
	return &CarryoverRepository{db: db}
}

// Balance returns a creator's balance; missing creators hold zero.
func (r *CarryoverRepository) Balance(ctx context.Context, creatorID string) (int64, error) {
	if r == nil || r.db == nil {
		return 0, errors.New("carryover repo: nil db")
	}
	var balance int64
	err := r.db.QueryRowContext(ctx, `
SELECT balance_cents
FROM royalty_carryovers
WHERE creator_id = $1
LIMIT 1`, creatorID).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return balance, nil
}

// ListNonZero returns every creator holding a non-zero balance.
func (r *CarryoverRepository) ListNonZero(ctx context.Context) ([]royalty.CarryoverUpdate, error) {
	if r == nil || r.db == nil {
		return nil, errors.New("carryover repo: nil db")
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT creator_id, balance_cents
FROM royalty_carryovers
WHERE balance_cents <> 0
ORDER BY creator_id ASC`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var result []royalty.CarryoverUpdate
	for rows.Next() {
		var update royalty.CarryoverUpdate
		if err := rows.Scan(&update.CreatorID, &update.BalanceCents); err != nil {
			return nil, err
		}
		result = append(result, update)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
