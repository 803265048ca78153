package application

import (
	"context"
	"errors"
	"testing"
	"time"

	catalog "royalty-engine/internal/catalog/domain"
	"royalty-engine/internal/royalty/application/events"
	royalty "royalty-engine/internal/royalty/domain"
)

func TestCalculate_ExactFeeSplit(t *testing.T) {
	env := newTestEnv(t)
	env.seedJanuaryFee(10000)
	run := env.openRun(t, utcDay(2025, 1, 1), utcDay(2025, 2, 1))

	calculated, err := env.calculator.Calculate(operatorCtx(), run.ID)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if calculated.Status != royalty.RunStatusCalculated {
		t.Fatalf("status = %s, want CALCULATED", calculated.Status)
	}
	if calculated.TotalRevenueCents != 10000 || calculated.TotalRoyaltiesCents != 10000 {
		t.Fatalf("totals = %d/%d, want 10000/10000", calculated.TotalRevenueCents, calculated.TotalRoyaltiesCents)
	}

	statements, err := env.store.Statements.ListByRun(context.Background(), run.ID)
	if err != nil {
		t.Fatalf("ListByRun: %v", err)
	}
	if len(statements) != 2 {
		t.Fatalf("statements = %d, want 2", len(statements))
	}
	if got := statementFor(t, statements, "creator-a").TotalCents; got != 6000 {
		t.Fatalf("creator-a total = %d, want 6000", got)
	}
	if got := statementFor(t, statements, "creator-b").TotalCents; got != 4000 {
		t.Fatalf("creator-b total = %d, want 4000", got)
	}
	for _, stmt := range statements {
		if stmt.Status != royalty.StatementStatusPending {
			t.Fatalf("statement %s status = %s, want PENDING", stmt.ID, stmt.Status)
		}
	}
}

func TestCalculate_ProratedFee(t *testing.T) {
	env := newTestEnv(t)
	env.seedJanuaryFee(10000)
	// Ten of the license's 31 term days fall inside the run period.
	run := env.openRun(t, utcDay(2025, 1, 1), utcDay(2025, 1, 11))

	calculated, err := env.calculator.Calculate(operatorCtx(), run.ID)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if calculated.TotalRevenueCents != 3225 {
		t.Fatalf("revenue = %d, want 3225", calculated.TotalRevenueCents)
	}

	statements, _ := env.store.Statements.ListByRun(context.Background(), run.ID)
	if got := statementFor(t, statements, "creator-a").TotalCents; got != 1935 {
		t.Fatalf("creator-a total = %d, want 1935", got)
	}
	if got := statementFor(t, statements, "creator-b").TotalCents; got != 1290 {
		t.Fatalf("creator-b total = %d, want 1290", got)
	}
}

func TestCalculate_ShareLicenseSumsRevenueEvents(t *testing.T) {
	env := newTestEnv(t)
	env.catalog.AddLicense(catalog.License{
		ID:        "lic-share",
		AssetID:   "asset-2",
		Kind:      catalog.LicenseKindShare,
		TermStart: utcDay(2025, 1, 1),
		TermEnd:   utcDay(2026, 1, 1),
		Active:    true,
	})
	env.catalog.AddShare(catalog.OwnershipShare{AssetID: "asset-2", CreatorID: "creator-c", ShareBps: 10000, Active: true})
	env.catalog.AddRevenueEvent(catalog.RevenueEvent{LicenseID: "lic-share", AmountCents: 700, OccurredAt: utcDay(2025, 1, 5)})
	env.catalog.AddRevenueEvent(catalog.RevenueEvent{LicenseID: "lic-share", AmountCents: 300, OccurredAt: utcDay(2025, 1, 20)})
	// Outside the half-open window, must not count.
	env.catalog.AddRevenueEvent(catalog.RevenueEvent{LicenseID: "lic-share", AmountCents: 999, OccurredAt: utcDay(2025, 2, 1)})

	run := env.openRun(t, utcDay(2025, 1, 1), utcDay(2025, 2, 1))
	calculated, err := env.calculator.Calculate(operatorCtx(), run.ID)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if calculated.TotalRevenueCents != 1000 {
		t.Fatalf("revenue = %d, want 1000", calculated.TotalRevenueCents)
	}

	statements, _ := env.store.Statements.ListByRun(context.Background(), run.ID)
	if got := statementFor(t, statements, "creator-c").TotalCents; got != 1000 {
		t.Fatalf("creator-c total = %d, want 1000", got)
	}
}

func TestCalculate_ThresholdHoldsAndCarriesOver(t *testing.T) {
	env := newTestEnv(t)
	env.catalog.AddLicense(catalog.License{
		ID:        "lic-small",
		AssetID:   "asset-3",
		Kind:      catalog.LicenseKindFee,
		FeeCents:  600,
		TermStart: utcDay(2025, 1, 1),
		TermEnd:   utcDay(2025, 2, 1),
		Active:    true,
	})
	env.catalog.AddShare(catalog.OwnershipShare{AssetID: "asset-3", CreatorID: "creator-x", ShareBps: 10000, Active: true})
	env.catalog.SetTerms(catalog.CreatorTerms{CreatorID: "creator-x", MinPayoutCents: 1000})

	run := env.openRun(t, utcDay(2025, 1, 1), utcDay(2025, 2, 1))
	if _, err := env.calculator.Calculate(operatorCtx(), run.ID); err != nil {
		t.Fatalf("Calculate: %v", err)
	}

	statements, _ := env.store.Statements.ListByRun(context.Background(), run.ID)
	stmt := statementFor(t, statements, "creator-x")
	if stmt.Status != royalty.StatementStatusReviewed {
		t.Fatalf("held statement status = %s, want REVIEWED", stmt.Status)
	}
	if stmt.TotalCents != 600 {
		t.Fatalf("total = %d, want 600", stmt.TotalCents)
	}
	lines, _ := env.store.Statements.ListLines(context.Background(), stmt.ID)
	var sawThresholdNote bool
	for _, line := range lines {
		if line.Kind == royalty.LineKindThresholdNote {
			sawThresholdNote = true
		}
	}
	if !sawThresholdNote {
		t.Fatal("held statement should carry a threshold note line")
	}
	balance, _ := env.store.Carryovers.Balance(context.Background(), "creator-x")
	if balance != 600 {
		t.Fatalf("carryover = %d, want 600", balance)
	}
}

func TestCalculate_CarryoverAccumulatesAcrossRuns(t *testing.T) {
	env := newTestEnv(t)
	for _, month := range []time.Month{time.January, time.February} {
		env.catalog.AddLicense(catalog.License{
			ID:        "lic-" + month.String(),
			AssetID:   "asset-4",
			Kind:      catalog.LicenseKindFee,
			FeeCents:  600,
			TermStart: utcDay(2025, month, 1),
			TermEnd:   utcDay(2025, month+1, 1),
			Active:    true,
		})
	}
	env.catalog.AddShare(catalog.OwnershipShare{AssetID: "asset-4", CreatorID: "creator-x", ShareBps: 10000, Active: true})
	env.catalog.SetTerms(catalog.CreatorTerms{CreatorID: "creator-x", MinPayoutCents: 1000})

	first := env.calculatedRun(t, utcDay(2025, 1, 1), utcDay(2025, 2, 1))
	if _, err := env.runs.Transition(operatorCtx(), first.ID, royalty.RunStatusCancelled); err == nil {
		t.Fatal("CALCULATED -> CANCELLED must not be allowed")
	}
	// Close out the first run so the february period can open.
	if _, err := env.runs.Lock(operatorCtx(), first.ID, true, ""); err != nil {
		t.Fatalf("Lock: %v", err)
	}
	if _, err := env.runs.Transition(operatorCtx(), first.ID, royalty.RunStatusProcessing); err != nil {
		t.Fatalf("Transition to PROCESSING: %v", err)
	}
	if _, err := env.runs.Transition(operatorCtx(), first.ID, royalty.RunStatusCompleted); err != nil {
		t.Fatalf("Transition to COMPLETED: %v", err)
	}

	second := env.calculatedRun(t, utcDay(2025, 2, 1), utcDay(2025, 3, 1))
	statements, _ := env.store.Statements.ListByRun(context.Background(), second.ID)
	stmt := statementFor(t, statements, "creator-x")
	// 600 carried over plus 600 new crosses the 1000 threshold.
	if stmt.TotalCents != 1200 {
		t.Fatalf("total = %d, want 1200", stmt.TotalCents)
	}
	if stmt.Status != royalty.StatementStatusPending {
		t.Fatalf("payable statement status = %s, want PENDING", stmt.Status)
	}
	lines, _ := env.store.Statements.ListLines(context.Background(), stmt.ID)
	var carryoverCents int64
	for _, line := range lines {
		if line.Kind == royalty.LineKindCarryover {
			carryoverCents += line.RoyaltyCents
		}
	}
	if carryoverCents != 600 {
		t.Fatalf("carryover line = %d, want 600", carryoverCents)
	}
	balance, _ := env.store.Carryovers.Balance(context.Background(), "creator-x")
	if balance != 0 {
		t.Fatalf("carryover after payout = %d, want 0", balance)
	}
}

func TestCalculate_RequiresDraft(t *testing.T) {
	env := newTestEnv(t)
	env.seedJanuaryFee(10000)
	run := env.calculatedRun(t, utcDay(2025, 1, 1), utcDay(2025, 2, 1))

	_, err := env.calculator.Calculate(operatorCtx(), run.ID)
	if !errors.Is(err, royalty.ErrInvalidTransition) {
		t.Fatalf("err = %v, want ErrInvalidTransition", err)
	}
}

func TestCalculate_RunBusy(t *testing.T) {
	env := newTestEnv(t)
	env.seedJanuaryFee(10000)
	run := env.openRun(t, utcDay(2025, 1, 1), utcDay(2025, 2, 1))

	release, err := env.lock.Acquire(context.Background(), run.ID, time.Minute)
	if err != nil {
		t.Fatalf("Acquire: %v", err)
	}
	defer func() { _ = release(context.Background()) }()

	_, err = env.calculator.Calculate(operatorCtx(), run.ID)
	if !errors.Is(err, royalty.ErrRunBusy) {
		t.Fatalf("err = %v, want ErrRunBusy", err)
	}
}

func TestCalculate_BadSharesAbortWholeRun(t *testing.T) {
	env := newTestEnv(t)
	env.seedJanuaryFee(10000)
	env.catalog.AddLicense(catalog.License{
		ID:        "lic-broken",
		AssetID:   "asset-broken",
		Kind:      catalog.LicenseKindFee,
		FeeCents:  500,
		TermStart: utcDay(2025, 1, 1),
		TermEnd:   utcDay(2025, 2, 1),
		Active:    true,
	})
	env.catalog.AddShare(catalog.OwnershipShare{AssetID: "asset-broken", CreatorID: "creator-z", ShareBps: 9000, Active: true})

	run := env.openRun(t, utcDay(2025, 1, 1), utcDay(2025, 2, 1))
	_, err := env.calculator.Calculate(operatorCtx(), run.ID)
	if !errors.Is(err, royalty.ErrSharesNotTotal) {
		t.Fatalf("err = %v, want ErrSharesNotTotal", err)
	}

	// Nothing may persist from the failed pass.
	refreshed, _ := env.store.Runs.GetByID(context.Background(), run.ID)
	if refreshed.Status != royalty.RunStatusDraft {
		t.Fatalf("status = %s, want DRAFT", refreshed.Status)
	}
	statements, _ := env.store.Statements.ListByRun(context.Background(), run.ID)
	if len(statements) != 0 {
		t.Fatalf("statements = %d, want 0", len(statements))
	}
}

type failingPublisher struct{}

func (failingPublisher) Publish(ctx context.Context, event any) error {
	return errors.New("bus down")
}

func TestCalculate_PublishFailureDoesNotFailRun(t *testing.T) {
	env := newTestEnv(t)
	env.seedJanuaryFee(10000)
	calculator, err := NewCalculationService(env.store.Runs, env.store.Carryovers, env.catalog, env.catalog, env.catalog, env.catalog, env.lock, failingPublisher{}, env.clock, time.Minute, 30*time.Second)
	if err != nil {
		t.Fatalf("NewCalculationService: %v", err)
	}
	run := env.openRun(t, utcDay(2025, 1, 1), utcDay(2025, 2, 1))

	// The calculation is already committed when publishing fails; the
	// failure is logged and the run stays CALCULATED.
	calculated, err := calculator.Calculate(operatorCtx(), run.ID)
	if err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	if calculated.Status != royalty.RunStatusCalculated {
		t.Fatalf("status = %s, want CALCULATED", calculated.Status)
	}
}

func TestCalculate_StagesOutboxRowsWithCalculation(t *testing.T) {
	env := newTestEnv(t)
	env.seedJanuaryFee(10000)
	publisher := &stagingPublisher{}
	calculator, err := NewCalculationService(env.store.Runs, env.store.Carryovers, env.catalog, env.catalog, env.catalog, env.catalog, env.lock, publisher, env.clock, time.Minute, 30*time.Second)
	if err != nil {
		t.Fatalf("NewCalculationService: %v", err)
	}
	run := env.openRun(t, utcDay(2025, 1, 1), utcDay(2025, 2, 1))

	if _, err := calculator.Calculate(operatorCtx(), run.ID); err != nil {
		t.Fatalf("Calculate: %v", err)
	}

	// Events ride the same save as the run, statements and carryovers.
	rows := env.store.Runs.OutboxRows()
	if len(rows) != 3 {
		t.Fatalf("outbox rows = %d, want 3", len(rows))
	}
	byType := make(map[string]int)
	for _, row := range rows {
		if row.OutboxID == "" || row.EventID == "" || len(row.Payload) == 0 {
			t.Fatalf("incomplete outbox row: %+v", row)
		}
		byType[row.EventType]++
	}
	if byType["events.StatementReady"] != 2 {
		t.Fatalf("StatementReady rows = %d, want 2", byType["events.StatementReady"])
	}
	if byType["events.RunCacheInvalidated"] != 1 {
		t.Fatalf("RunCacheInvalidated rows = %d, want 1", byType["events.RunCacheInvalidated"])
	}

	// The staged path must not double-publish directly on the bus.
	if len(publisher.published) != 0 {
		t.Fatalf("direct publishes = %d, want 0", len(publisher.published))
	}
	if publisher.dispatched != 3 {
		t.Fatalf("dispatched = %d, want 3", publisher.dispatched)
	}
}

func TestCalculate_PublishesStatementReady(t *testing.T) {
	env := newTestEnv(t)
	env.seedJanuaryFee(10000)
	run := env.openRun(t, utcDay(2025, 1, 1), utcDay(2025, 2, 1))

	if _, err := env.calculator.Calculate(operatorCtx(), run.ID); err != nil {
		t.Fatalf("Calculate: %v", err)
	}
	ready := env.publisher.ofType(func(event any) bool {
		_, ok := event.(events.StatementReady)
		return ok
	})
	if ready != 2 {
		t.Fatalf("StatementReady events = %d, want 2", ready)
	}
	invalidated := env.publisher.ofType(func(event any) bool {
		_, ok := event.(events.RunCacheInvalidated)
		return ok
	})
	if invalidated == 0 {
		t.Fatal("expected a RunCacheInvalidated event")
	}
}
