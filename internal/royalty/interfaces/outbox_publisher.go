package interfaces

import (
	"context"
	"errors"

	"royalty-engine/internal/eventing"
	royalty "royalty-engine/internal/royalty/domain"
)

// OutboxPublisher writes royalty events to the transactional outbox.
type OutboxPublisher struct {
	publisher *eventing.Publisher
}

// NewOutboxPublisher constructs an outbox publisher.
func NewOutboxPublisher(publisher *eventing.Publisher) *OutboxPublisher {
	return &OutboxPublisher{publisher: publisher}
}

// Publish writes the event to outbox.
func (p *OutboxPublisher) Publish(ctx context.Context, event any) error {
	if p == nil || p.publisher == nil {
		return nil
	}
	return p.publisher.Publish(ctx, event)
}

// EncodeOutbox renders the event as an outbox row so a repository can insert
// it inside the transaction that commits the state change.
func (p *OutboxPublisher) EncodeOutbox(ctx context.Context, event any) (royalty.OutboxEvent, error) {
	if p == nil || p.publisher == nil {
		return royalty.OutboxEvent{}, errors.New("outbox publisher: nil publisher")
	}
	row, err := p.publisher.Stage(ctx, event)
	if err != nil {
		return royalty.OutboxEvent{}, err
	}
	return royalty.OutboxEvent{
		OutboxID:  row.ID,
		EventID:   row.EventID,
		EventType: row.EventType,
		Payload:   row.Payload,
	}, nil
}

// DispatchOutbox pushes committed outbox rows to in-process subscribers.
// Rows that fail here stay pending for the background dispatch loop.
func (p *OutboxPublisher) DispatchOutbox(ctx context.Context, limit int) error {
	if p == nil || p.publisher == nil {
		return nil
	}
	return p.publisher.DispatchPending(ctx, limit)
}
