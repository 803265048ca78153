package application

import (
	"context"
	"time"

	royalty "royalty-engine/internal/royalty/domain"
)

// Clock returns the current time.
type Clock interface {
	Now() time.Time
}

// SystemClock uses time.Now in UTC.
type SystemClock struct{}

// Now returns the current UTC time.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// EventPublisher emits domain events after state changes commit.
type EventPublisher interface {
	Publish(ctx context.Context, event any) error
}

// OutboxEncoder is implemented by publishers backed by a transactional
// outbox. Encoded rows ride inside the repository transaction that commits
// the state change, and DispatchOutbox pushes them to subscribers afterward.
type OutboxEncoder interface {
	EncodeOutbox(ctx context.Context, event any) (royalty.OutboxEvent, error)
	DispatchOutbox(ctx context.Context, limit int) error
}
