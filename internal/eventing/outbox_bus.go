package eventing

import (
	"context"
	"encoding/json"

	"royalty-engine/internal/eventing/eventbus"
)

// Publisher writes events to outbox and triggers dispatch.
type Publisher struct {
	outbox   OutboxWriter
	dispatch *Dispatcher
	sub      Subscriber
}

// OutboxWriter inserts outbox records.
type OutboxWriter interface {
	Insert(ctx context.Context, env Envelope) (string, error)
}

// Subscriber registers handlers.
type Subscriber interface {
	Subscribe(eventType string, handler eventbus.EventHandler)
}

// NewPublisher constructs a publisher.
func NewPublisher(outbox OutboxWriter, dispatch *Dispatcher, sub Subscriber) *Publisher {
	return &Publisher{outbox: outbox, dispatch: dispatch, sub: sub}
}

// OutboxRow is a pre-encoded outbox insert for callers that persist the row
// inside their own storage transaction instead of going through Publish.
type OutboxRow struct {
	ID        string
	EventID   string
	EventType string
	Payload   []byte
}

// Stage encodes the event as an outbox row without inserting it. The caller
// persists the row transactionally and triggers DispatchPending after commit.
func (p *Publisher) Stage(ctx context.Context, event any) (OutboxRow, error) {
	meta := MetaFromContext(ctx)
	env, err := BuildEnvelope(event, meta)
	if err != nil {
		return OutboxRow{}, err
	}
	payload, err := json.Marshal(env)
	if err != nil {
		return OutboxRow{}, err
	}
	return OutboxRow{
		ID:        NewEventID(),
		EventID:   env.EventID,
		EventType: env.EventType,
		Payload:   payload,
	}, nil
}

// DispatchPending pushes up to limit committed outbox rows to subscribers.
func (p *Publisher) DispatchPending(ctx context.Context, limit int) error {
	if p == nil || p.dispatch == nil {
		return nil
	}
	return p.dispatch.Dispatch(ctx, limit)
}

// Publish writes the event to outbox and triggers dispatch.
func (p *Publisher) Publish(ctx context.Context, event any) error {
	if p == nil || p.outbox == nil {
		return nil
	}
	meta := MetaFromContext(ctx)
	env, err := BuildEnvelope(event, meta)
	if err != nil {
		return err
	}
	if _, err := p.outbox.Insert(ctx, env); err != nil {
		return err
	}
	if p.dispatch != nil {
		_ = p.dispatch.Dispatch(ctx, 1)
	}
	return nil
}

// Subscribe delegates to the underlying subscriber when available.
func (p *Publisher) Subscribe(eventType string, handler eventbus.EventHandler) {
	if p == nil || p.sub == nil {
		return
	}
	p.sub.Subscribe(eventType, handler)
}
