package memory

import (
	"context"
	"sync"
	"time"

	royalty "royalty-engine/internal/royalty/domain"
)

// RunLock is an in-memory lease lock, used in tests.
type RunLock struct {
	mu     sync.Mutex
	leases map[string]time.Time
}

// NewRunLock constructs a lock.
func NewRunLock() *RunLock {
	return &RunLock{leases: make(map[string]time.Time)}
}

// Acquire takes the lock for runID or returns ErrRunBusy while another
// holder's lease is unexpired.
func (l *RunLock) Acquire(ctx context.Context, runID string, lease time.Duration) (royalty.ReleaseFunc, error) {
	if lease <= 0 {
		lease = 5 * time.Minute
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	now := time.Now()
	if expiry, held := l.leases[runID]; held && expiry.After(now) {
		return nil, royalty.ErrRunBusy
	}
	l.leases[runID] = now.Add(lease)

	release := func(ctx context.Context) error {
		l.mu.Lock()
		defer l.mu.Unlock()
		delete(l.leases, runID)
		return nil
	}
	return release, nil
}
