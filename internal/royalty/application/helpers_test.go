package application

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"testing"
	"time"

	"royalty-engine/internal/auth"
	catalog "royalty-engine/internal/catalog/domain"
	catalogmem "royalty-engine/internal/catalog/infrastructure/memory"
	royalty "royalty-engine/internal/royalty/domain"
	"royalty-engine/internal/royalty/infrastructure/memory"
)

type fixedClock struct{ now time.Time }

func (c fixedClock) Now() time.Time { return c.now }

type capturePublisher struct {
	mu     sync.Mutex
	events []any
}

func (p *capturePublisher) Publish(ctx context.Context, event any) error {
	_ = ctx
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *capturePublisher) ofType(match func(any) bool) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	count := 0
	for _, event := range p.events {
		if match(event) {
			count++
		}
	}
	return count
}

// stagingPublisher encodes events as outbox rows so they ride inside the
// repository transaction, mirroring the outbox-backed publisher.
type stagingPublisher struct {
	mu         sync.Mutex
	published  []any
	staged     int
	dispatched int
}

func (p *stagingPublisher) Publish(ctx context.Context, event any) error {
	_ = ctx
	p.mu.Lock()
	defer p.mu.Unlock()
	p.published = append(p.published, event)
	return nil
}

func (p *stagingPublisher) EncodeOutbox(ctx context.Context, event any) (royalty.OutboxEvent, error) {
	_ = ctx
	payload, err := json.Marshal(event)
	if err != nil {
		return royalty.OutboxEvent{}, err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.staged++
	id := fmt.Sprintf("out-%03d", p.staged)
	return royalty.OutboxEvent{
		OutboxID:  id,
		EventID:   id,
		EventType: fmt.Sprintf("%T", event),
		Payload:   payload,
	}, nil
}

func (p *stagingPublisher) DispatchOutbox(ctx context.Context, limit int) error {
	_ = ctx
	p.mu.Lock()
	defer p.mu.Unlock()
	p.dispatched += limit
	return nil
}

type testEnv struct {
	store      *memory.Store
	catalog    *catalogmem.CatalogReader
	lock       *memory.RunLock
	publisher  *capturePublisher
	clock      fixedClock
	calculator *CalculationService
	validator  *ValidationService
	rollback   *RollbackService
	runs       *RunService
	statements *StatementService
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := memory.NewStore()
	cat := catalogmem.NewCatalogReader()
	lock := memory.NewRunLock()
	publisher := &capturePublisher{}
	clock := fixedClock{now: time.Date(2025, 2, 2, 12, 0, 0, 0, time.UTC)}

	calculator, err := NewCalculationService(store.Runs, store.Carryovers, cat, cat, cat, cat, lock, publisher, clock, time.Minute, 30*time.Second)
	if err != nil {
		t.Fatalf("NewCalculationService: %v", err)
	}
	validator, err := NewValidationService(store.Runs, store.Statements, cat, clock, 0)
	if err != nil {
		t.Fatalf("NewValidationService: %v", err)
	}
	rollback, err := NewRollbackService(store.Runs, store.Statements, lock, nil, publisher, clock, time.Minute, 0)
	if err != nil {
		t.Fatalf("NewRollbackService: %v", err)
	}
	runs, err := NewRunService(store.Runs, store.Statements, validator, rollback, lock, nil, publisher, clock, time.Minute)
	if err != nil {
		t.Fatalf("NewRunService: %v", err)
	}
	statements, err := NewStatementService(store.Runs, store.Statements, nil, clock)
	if err != nil {
		t.Fatalf("NewStatementService: %v", err)
	}

	return &testEnv{
		store:      store,
		catalog:    cat,
		lock:       lock,
		publisher:  publisher,
		clock:      clock,
		calculator: calculator,
		validator:  validator,
		rollback:   rollback,
		runs:       runs,
		statements: statements,
	}
}

func adminCtx() context.Context {
	return auth.WithIdentity(context.Background(), auth.RoleAdmin, "admin-1")
}

func operatorCtx() context.Context {
	return auth.WithIdentity(context.Background(), auth.RoleOperator, "operator-1")
}

func utcDay(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// seedJanuaryFee registers a flat-fee license covering January 2025 with a
// 60/40 ownership split and zero payout thresholds.
func (env *testEnv) seedJanuaryFee(feeCents int64) {
	env.catalog.AddLicense(catalog.License{
		ID:        "lic-jan",
		AssetID:   "asset-1",
		Kind:      catalog.LicenseKindFee,
		FeeCents:  feeCents,
		TermStart: utcDay(2025, 1, 1),
		TermEnd:   utcDay(2025, 2, 1),
		Active:    true,
	})
	env.catalog.AddShare(catalog.OwnershipShare{AssetID: "asset-1", CreatorID: "creator-a", ShareBps: 6000, Active: true})
	env.catalog.AddShare(catalog.OwnershipShare{AssetID: "asset-1", CreatorID: "creator-b", ShareBps: 4000, Active: true})
}

func (env *testEnv) openRun(t *testing.T, start, end time.Time) *royalty.Run {
	t.Helper()
	run, err := env.runs.OpenRun(operatorCtx(), start, end, "")
	if err != nil {
		t.Fatalf("OpenRun: %v", err)
	}
	return run
}

func (env *testEnv) calculatedRun(t *testing.T, start, end time.Time) *royalty.Run {
	t.Helper()
	run := env.openRun(t, start, end)
	calculated, err := env.calculator.Calculate(operatorCtx(), run.ID)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	return calculated
}

func statementFor(t *testing.T, statements []royalty.Statement, creatorID string) royalty.Statement {
	t.Helper()
	for _, stmt := range statements {
		if stmt.CreatorID == creatorID {
			return stmt
		}
	}
	t.Fatalf("no statement for %s", creatorID)
	return royalty.Statement{}
}
