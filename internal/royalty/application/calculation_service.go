package application

import (
	"context"
	"errors"
	"fmt"
	"log"
	"sort"
	"time"

	catalog "royalty-engine/internal/catalog/domain"
	"royalty-engine/internal/observability/metrics"
	"royalty-engine/internal/royalty/application/events"
	royalty "royalty-engine/internal/royalty/domain"
)

const (
	defaultLockLease = 5 * time.Minute
	defaultTxTimeout = 2 * time.Minute
)

// CalculationService runs the full calculation pass for a run: collect
// per-license revenue, distribute it across ownership splits, fold per-creator
// thresholds and carryover, and persist statements, lines and run totals in
// one transaction alongside the DRAFT -> CALCULATED transition.
type CalculationService struct {
	runs       royalty.RunRepository
	carryovers royalty.CarryoverRepository
	licenses   catalog.LicenseReader
	ownerships catalog.OwnershipReader
	terms      catalog.TermsReader
	revenue    catalog.RevenueReader
	lock       royalty.RunLock
	publisher  EventPublisher
	clock      Clock
	lockLease  time.Duration
	txTimeout  time.Duration
}

// NewCalculationService constructs the service.
func NewCalculationService(
	runs royalty.RunRepository,
	carryovers royalty.CarryoverRepository,
	licenses catalog.LicenseReader,
	ownerships catalog.OwnershipReader,
	terms catalog.TermsReader,
	revenue catalog.RevenueReader,
	lock royalty.RunLock,
	publisher EventPublisher,
	clock Clock,
	lockLease, txTimeout time.Duration,
) (*CalculationService, error) {
	if runs == nil {
		return nil, errors.New("calculation service: nil run repository")
	}
	if carryovers == nil {
		return nil, errors.New("calculation service: nil carryover repository")
	}
	if licenses == nil || ownerships == nil || terms == nil || revenue == nil {
		return nil, errors.New("calculation service: nil catalog reader")
	}
	if lock == nil {
		return nil, errors.New("calculation service: nil run lock")
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if lockLease <= 0 {
		lockLease = defaultLockLease
	}
	if txTimeout <= 0 {
		txTimeout = defaultTxTimeout
	}
	if txTimeout > lockLease {
		return nil, errors.New("calculation service: tx timeout exceeds lock lease")
	}
	return &CalculationService{
		runs:       runs,
		carryovers: carryovers,
		licenses:   licenses,
		ownerships: ownerships,
		terms:      terms,
		revenue:    revenue,
		lock:       lock,
		publisher:  publisher,
		clock:      clock,
		lockLease:  lockLease,
		txTimeout:  txTimeout,
	}, nil
}

type creatorAccumulator struct {
	creatorID      string
	allocatedCents int64
	lines          []royalty.Line
}

// Calculate executes the calculation pass for a DRAFT run.
func (s *CalculationService) Calculate(ctx context.Context, runID string) (*royalty.Run, error) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveCalculate(result, time.Since(start))
	}()

	run, err := s.calculate(ctx, runID)
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}
	return run, nil
}

func (s *CalculationService) calculate(ctx context.Context, runID string) (*royalty.Run, error) {
	if runID == "" {
		return nil, royalty.ErrRunNotFound
	}
	release, err := s.lock.Acquire(ctx, runID, s.lockLease)
	if err != nil {
		return nil, err
	}
	defer func() { _ = release(context.Background()) }()

	run, err := s.runs.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, royalty.ErrRunNotFound
	}
	if run.Status != royalty.RunStatusDraft {
		return nil, royalty.ErrInvalidTransition
	}

	// The transaction timeout is the cancellation mechanism: a pass that
	// cannot finish in time aborts and the run stays DRAFT.
	ctx, cancel := context.WithTimeout(ctx, s.txTimeout)
	defer cancel()

	period := run.Period()
	licenses, err := s.licenses.ListActiveInWindow(ctx, period.Start, period.End)
	if err != nil {
		return nil, err
	}

	accumulators := make(map[string]*creatorAccumulator)
	var totalRevenue int64
	for _, lic := range licenses {
		revenueCents, window, note, err := s.licenseRevenue(ctx, lic, period)
		if err != nil {
			return nil, err
		}
		if revenueCents == 0 {
			continue
		}

		shares, err := s.ownerships.ListActiveByAsset(ctx, lic.AssetID)
		if err != nil {
			return nil, err
		}
		owners := make([]royalty.OwnerShare, 0, len(shares))
		for _, share := range shares {
			owners = append(owners, royalty.OwnerShare{CreatorID: share.CreatorID, ShareBps: share.ShareBps})
		}
		allocations, err := royalty.DistributeRevenue(revenueCents, owners)
		if err != nil {
			return nil, fmt.Errorf("license %s asset %s: %w", lic.ID, lic.AssetID, err)
		}

		totalRevenue += revenueCents
		for _, alloc := range allocations {
			if alloc.AmountCents == 0 {
				continue
			}
			acc := accumulators[alloc.CreatorID]
			if acc == nil {
				acc = &creatorAccumulator{creatorID: alloc.CreatorID}
				accumulators[alloc.CreatorID] = acc
			}
			acc.allocatedCents += alloc.AmountCents
			acc.lines = append(acc.lines, royalty.Line{
				Kind:         royalty.LineKindUsage,
				LicenseID:    lic.ID,
				AssetID:      lic.AssetID,
				RevenueCents: revenueCents,
				ShareBps:     alloc.ShareBps,
				RoyaltyCents: alloc.AmountCents,
				PeriodStart:  window.Start,
				PeriodEnd:    window.End,
				Note:         note,
			})
		}
	}

	// Creators below threshold in prior runs keep their balance moving even
	// with zero new revenue.
	held, err := s.carryovers.ListNonZero(ctx)
	if err != nil {
		return nil, err
	}
	for _, balance := range held {
		if balance.BalanceCents == 0 {
			continue
		}
		if _, ok := accumulators[balance.CreatorID]; !ok {
			accumulators[balance.CreatorID] = &creatorAccumulator{creatorID: balance.CreatorID}
		}
	}

	creatorIDs := make([]string, 0, len(accumulators))
	for id := range accumulators {
		creatorIDs = append(creatorIDs, id)
	}
	sort.Strings(creatorIDs)

	now := s.clock.Now()
	var statements []royalty.StatementWithLines
	var carryoverUpdates []royalty.CarryoverUpdate
	var totalRoyalties int64
	for _, creatorID := range creatorIDs {
		acc := accumulators[creatorID]
		carryover, err := s.carryovers.Balance(ctx, creatorID)
		if err != nil {
			return nil, err
		}
		if acc.allocatedCents == 0 && carryover == 0 {
			continue
		}
		creatorTerms, err := s.terms.GetTerms(ctx, creatorID)
		if err != nil {
			return nil, err
		}
		threshold, err := royalty.ApplyThreshold(acc.allocatedCents, carryover, creatorTerms.MinPayoutCents)
		if err != nil {
			return nil, err
		}

		stmt := royalty.Statement{
			ID:         royalty.BuildStatementID(runID, creatorID),
			RunID:      runID,
			CreatorID:  creatorID,
			TotalCents: threshold.AccumulatedCents,
			Status:     royalty.StatementStatusPending,
			CreatedAt:  now,
			UpdatedAt:  now,
		}
		nextBalance := int64(0)
		if !threshold.Payable {
			stmt.Status = royalty.StatementStatusReviewed
			nextBalance = threshold.AccumulatedCents
		}

		lines := append([]royalty.Line(nil), acc.lines...)
		if carryover > 0 {
			lines = append(lines, royalty.Line{
				Kind:         royalty.LineKindCarryover,
				RoyaltyCents: carryover,
				PeriodStart:  period.Start,
				PeriodEnd:    period.End,
				Note:         "unpaid balance carried over from prior runs",
			})
		}
		if !threshold.Payable {
			lines = append(lines, royalty.Line{
				Kind:        royalty.LineKindThresholdNote,
				PeriodStart: period.Start,
				PeriodEnd:   period.End,
				Note: fmt.Sprintf("accumulated %d cents below minimum payout %d cents; balance carried forward",
					threshold.AccumulatedCents, creatorTerms.MinPayoutCents),
			})
		}
		for i := range lines {
			lines[i].ID = royalty.NewLineID()
			lines[i].StatementID = stmt.ID
			lines[i].CreatedAt = now
			if lines[i].RoyaltyCents < 0 || lines[i].RevenueCents < 0 {
				return nil, royalty.ErrNegativeAmount
			}
		}

		totalRoyalties += stmt.TotalCents
		statements = append(statements, royalty.StatementWithLines{Statement: stmt, Lines: lines})
		carryoverUpdates = append(carryoverUpdates, royalty.CarryoverUpdate{
			CreatorID:    creatorID,
			BalanceCents: nextBalance,
		})
	}

	updated := *run
	updated.TotalRevenueCents = totalRevenue
	updated.TotalRoyaltiesCents = totalRoyalties
	updated.Status = royalty.RunStatusCalculated
	updated.UpdatedAt = now

	result := royalty.CalculationResult{
		Run:        &updated,
		Statements: statements,
		Carryovers: carryoverUpdates,
	}

	// Outbox-backed publishers get their rows inside the calculation
	// transaction, so a crash after commit cannot drop events.
	domainEvents := calculatedEvents(&updated, statements, now)
	encoder, staged := s.publisher.(OutboxEncoder)
	if staged {
		for _, event := range domainEvents {
			row, err := encoder.EncodeOutbox(ctx, event)
			if err != nil {
				return nil, err
			}
			result.Outbox = append(result.Outbox, row)
		}
	}

	if err := s.runs.SaveCalculation(ctx, result); err != nil {
		return nil, err
	}

	if staged {
		if err := encoder.DispatchOutbox(context.Background(), len(result.Outbox)); err != nil {
			log.Printf("royalty: dispatch outbox for run %s: %v", updated.ID, err)
		}
	} else {
		s.publishCalculated(ctx, &updated, domainEvents)
	}
	return &updated, nil
}

func (s *CalculationService) licenseRevenue(ctx context.Context, lic catalog.License, period royalty.Period) (int64, royalty.Period, string, error) {
	term, err := royalty.NewPeriod(lic.TermStart, lic.TermEnd)
	if err != nil {
		return 0, royalty.Period{}, "", fmt.Errorf("license %s: %w", lic.ID, err)
	}
	switch lic.Kind {
	case catalog.LicenseKindFee:
		proration, err := royalty.ProratedRevenue(lic.FeeCents, term, period)
		if err != nil {
			return 0, royalty.Period{}, "", fmt.Errorf("license %s: %w", lic.ID, err)
		}
		if proration.OverlapDays == 0 {
			return 0, royalty.Period{}, "", nil
		}
		return proration.RevenueCents, proration.Overlap, "prorated fee: " + proration.Formula, nil
	case catalog.LicenseKindShare:
		sum, err := s.revenue.SumByLicense(ctx, lic.ID, period.Start, period.End)
		if err != nil {
			return 0, royalty.Period{}, "", err
		}
		if sum < 0 {
			return 0, royalty.Period{}, "", royalty.ErrNegativeAmount
		}
		return sum, period, "sum of revenue events in period", nil
	default:
		return 0, royalty.Period{}, "", fmt.Errorf("license %s: unknown kind %q", lic.ID, lic.Kind)
	}
}

// calculatedEvents builds the per-statement and run-level events for one
// committed calculation pass.
func calculatedEvents(run *royalty.Run, statements []royalty.StatementWithLines, at time.Time) []any {
	result := make([]any, 0, len(statements)+1)
	statementIDs := make([]string, 0, len(statements))
	for _, item := range statements {
		statementIDs = append(statementIDs, item.Statement.ID)
		result = append(result, events.StatementReady{
			RunID:       run.ID,
			StatementID: item.Statement.ID,
			CreatorID:   item.Statement.CreatorID,
			TotalCents:  item.Statement.TotalCents,
			Payable:     item.Statement.Status == royalty.StatementStatusPending,
			OccurredAt:  at,
		})
	}
	result = append(result, events.RunCacheInvalidated{
		RunID:        run.ID,
		StatementIDs: statementIDs,
		Transition:   string(royalty.RunStatusDraft) + "->" + string(royalty.RunStatusCalculated),
		OccurredAt:   at,
	})
	return result
}

func (s *CalculationService) publishCalculated(ctx context.Context, run *royalty.Run, domainEvents []any) {
	if s.publisher == nil {
		return
	}
	for _, event := range domainEvents {
		if err := s.publisher.Publish(ctx, event); err != nil {
			log.Printf("royalty: publish %T for run %s: %v", event, run.ID, err)
		}
	}
}
