package royalty

import (
	"context"
	"time"
)

// ReleaseFunc releases a held run lease.
type ReleaseFunc func(ctx context.Context) error

// RunLock is a lease-based named mutual-exclusion primitive keyed on run id.
// Exactly one calculation, lock transition, or rollback may hold a run's
// lease at a time. Acquire returns ErrRunBusy when the lease is held; callers
// retry after the lease naturally expires. The lease must exceed the guarded
// operation's worst-case duration, and the guarded operation must fail closed
// rather than continue past expiry.
type RunLock interface {
	Acquire(ctx context.Context, runID string, lease time.Duration) (ReleaseFunc, error)
}
