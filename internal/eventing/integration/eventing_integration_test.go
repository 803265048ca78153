package integration_test

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"testing"
	"time"

	"royalty-engine/internal/eventing"
	"royalty-engine/internal/eventing/eventbus"
	eventingrepo "royalty-engine/internal/eventing/infrastructure/postgres"
	"royalty-engine/internal/royalty/application/events"

	_ "github.com/jackc/pgx/v5/stdlib"
)

func TestEventing_IdempotentConsumer(t *testing.T) {
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if !tableExists(db, "event_outbox") ||
		!tableExists(db, "processed_events") ||
		!tableExists(db, "dead_letter_events") {
		t.Skip("missing tables; run migrations")
	}

	ctx := context.Background()
	_, _ = db.ExecContext(ctx, "DELETE FROM processed_events")
	_, _ = db.ExecContext(ctx, "DELETE FROM dead_letter_events")
	_, _ = db.ExecContext(ctx, "DELETE FROM event_outbox")

	baseBus := eventbus.NewInMemoryBus()
	registry := eventing.NewRegistry()
	registry.Register(events.StatementReady{})

	outboxStore := eventingrepo.NewOutboxStore(db)
	processedStore := eventingrepo.NewProcessedStore(db)
	dlqStore := eventingrepo.NewDLQStore(db)
	dispatcher := eventing.NewDispatcher(baseBus, outboxStore, registry, dlqStore)
	publisher := eventing.NewPublisher(outboxStore, dispatcher, baseBus)

	count := 0
	eventing.Subscribe(baseBus, eventbus.EventTypeOf[events.StatementReady](), "consumer-a", func(ctx context.Context, event any) error {
		count++
		return nil
	}, processedStore)

	eventID := "evt-dup-001"
	ctx = eventing.WithEventID(ctx, eventID)
	ctx = eventing.WithRunID(ctx, "run-test")

	payload := events.StatementReady{
		RunID:       "run-test",
		StatementID: "stmt-abc",
		CreatorID:   "creator-1",
		TotalCents:  4200,
		Payable:     true,
		OccurredAt:  time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC),
	}

	if err := publisher.Publish(ctx, payload); err != nil {
		t.Fatalf("publish event: %v", err)
	}
	if err := publisher.Publish(ctx, payload); err != nil {
		t.Fatalf("publish duplicate: %v", err)
	}

	_ = dispatcher.Dispatch(ctx, 10)

	if count != 1 {
		t.Fatalf("expected handler once, got %d", count)
	}
}

func TestEventing_DLQOnFailure(t *testing.T) {
	dsn := os.Getenv("PG_DSN")
	if dsn == "" {
		t.Skip("PG_DSN not set")
	}

	db, err := sql.Open("pgx", dsn)
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	defer db.Close()

	if !tableExists(db, "event_outbox") ||
		!tableExists(db, "processed_events") ||
		!tableExists(db, "dead_letter_events") {
		t.Skip("missing tables; run migrations")
	}

	ctx := context.Background()
	_, _ = db.ExecContext(ctx, "DELETE FROM processed_events")
	_, _ = db.ExecContext(ctx, "DELETE FROM dead_letter_events")
	_, _ = db.ExecContext(ctx, "DELETE FROM event_outbox")

	baseBus := eventbus.NewInMemoryBus()
	registry := eventing.NewRegistry()
	registry.Register(events.StatementReady{})

	outboxStore := eventingrepo.NewOutboxStore(db)
	processedStore := eventingrepo.NewProcessedStore(db)
	dlqStore := eventingrepo.NewDLQStore(db)
	dispatcher := eventing.NewDispatcher(baseBus, outboxStore, registry, dlqStore)
	publisher := eventing.NewPublisher(outboxStore, dispatcher, baseBus)

	eventing.Subscribe(baseBus, eventbus.EventTypeOf[events.StatementReady](), "consumer-fail", func(ctx context.Context, event any) error {
		return errors.New("boom")
	}, processedStore)

	payload := events.StatementReady{
		RunID:       "run-fail",
		StatementID: "stmt-def",
		CreatorID:   "creator-2",
		TotalCents:  100,
		Payable:     false,
		OccurredAt:  time.Date(2026, time.February, 1, 0, 0, 0, 0, time.UTC),
	}

	if err := publisher.Publish(ctx, payload); err != nil {
		t.Fatalf("publish event: %v", err)
	}

	_ = dispatcher.Dispatch(ctx, 10)

	var dlqCount int
	if err := db.QueryRowContext(ctx, "SELECT COUNT(*) FROM dead_letter_events").Scan(&dlqCount); err != nil {
		t.Fatalf("count dlq: %v", err)
	}
	if dlqCount != 1 {
		t.Fatalf("expected 1 dlq record, got %d", dlqCount)
	}
}

func tableExists(db *sql.DB, table string) bool {
	var exists bool
	err := db.QueryRow(`
SELECT EXISTS (
	SELECT 1
	FROM information_schema.tables
	WHERE table_schema = 'public' AND table_name = $1
)`, table).Scan(&exists)
	if err != nil {
		return false
	}
	return exists
}
