package postgres

import (
	"context"
	"crypto/rand"
	"database/sql"
	"encoding/hex"
	"errors"
	"time"

	royalty "royalty-engine/internal/royalty/domain"
)

// RunLock is a lease-based named lock over a Postgres table. A lock row
// belongs to one holder until released or until its lease expires; expired
// leases are stolen by the next acquirer, so a crashed worker never wedges
// its run.
type RunLock struct {
	db *sql.DB
}

// NewRunLock constructs a lock.
func NewRunLock(db *sql.DB) *RunLock {
	return &RunLock{db: db}
}

// Acquire takes the lock for runID or returns ErrRunBusy when another holder
// has an unexpired lease.
func (l *RunLock) Acquire(ctx context.Context, runID string, lease time.Duration) (royalty.ReleaseFunc, error) {
	if l == nil || l.db == nil {
		return nil, errors.New("run lock: nil db")
	}
	if runID == "" {
		return nil, royalty.ErrRunNotFound
	}
	if lease <= 0 {
		lease = 5 * time.Minute
	}

	holder := newHolderToken()
	now := time.Now().UTC()
	res, err := l.db.ExecContext(ctx, `
INSERT INTO run_locks (run_id, holder, acquired_at, expires_at)
VALUES ($1, $2, $3, $4)
ON CONFLICT (run_id)
DO UPDATE SET holder = EXCLUDED.holder, acquired_at = EXCLUDED.acquired_at, expires_at = EXCLUDED.expires_at
WHERE run_locks.expires_at < EXCLUDED.acquired_at`,
		runID, holder, now, now.Add(lease))
	if err != nil {
		return nil, err
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return nil, err
	}
	if affected == 0 {
		return nil, royalty.ErrRunBusy
	}

	release := func(ctx context.Context) error {
		_, err := l.db.ExecContext(ctx, `
DELETE FROM run_locks
WHERE run_id = $1 AND holder = $2`, runID, holder)
		return err
	}
	return release, nil
}

func newHolderToken() string {
	var buf [16]byte
	_, _ = rand.Read(buf[:])
	return hex.EncodeToString(buf[:])
}
