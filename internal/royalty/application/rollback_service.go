package application

import (
	"context"
	"encoding/json"
	"errors"
	"log"
	"strings"
	"time"

	"royalty-engine/internal/audit"
	"royalty-engine/internal/auth"
	"royalty-engine/internal/observability/metrics"
	"royalty-engine/internal/royalty/application/events"
	royalty "royalty-engine/internal/royalty/domain"
)

const defaultMinReasonLength = 10

// RollbackService reverts a CALCULATED or LOCKED run to DRAFT. The run's
// statements and lines are archived into the run's notes ledger before
// deletion, and carryover balances are restored to their pre-calculation
// values so a repeated calculation reproduces the same result.
type RollbackService struct {
	runs       royalty.RunRepository
	statements royalty.StatementRepository
	lock       royalty.RunLock
	auditor    audit.Logger
	publisher  EventPublisher
	clock      Clock
	lockLease  time.Duration
	minReason  int
}

// NewRollbackService constructs the service. minReasonLength of zero means
// the default of 10 characters.
func NewRollbackService(
	runs royalty.RunRepository,
	statements royalty.StatementRepository,
	lock royalty.RunLock,
	auditor audit.Logger,
	publisher EventPublisher,
	clock Clock,
	lockLease time.Duration,
	minReasonLength int,
) (*RollbackService, error) {
	if runs == nil {
		return nil, errors.New("rollback service: nil run repository")
	}
	if statements == nil {
		return nil, errors.New("rollback service: nil statement repository")
	}
	if lock == nil {
		return nil, errors.New("rollback service: nil run lock")
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if lockLease <= 0 {
		lockLease = defaultLockLease
	}
	if minReasonLength <= 0 {
		minReasonLength = defaultMinReasonLength
	}
	return &RollbackService{
		runs:       runs,
		statements: statements,
		lock:       lock,
		auditor:    auditor,
		publisher:  publisher,
		clock:      clock,
		lockLease:  lockLease,
		minReason:  minReasonLength,
	}, nil
}

// Rollback reverts the run. The caller's context must carry an admin
// identity and the reason must meet the minimum length.
func (s *RollbackService) Rollback(ctx context.Context, runID, reason string) (*royalty.RollbackResult, error) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveRollback(result, time.Since(start))
	}()

	rollback, err := s.rollback(ctx, runID, reason)
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}
	return rollback, nil
}

func (s *RollbackService) rollback(ctx context.Context, runID, reason string) (*royalty.RollbackResult, error) {
	if auth.RoleFromContext(ctx) != auth.RoleAdmin {
		return nil, royalty.ErrAdminRequired
	}
	if len(strings.TrimSpace(reason)) < s.minReason {
		return nil, royalty.ErrReasonTooShort
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
	if run.Status != royalty.RunStatusCalculated && run.Status != royalty.RunStatusLocked {
		return nil, royalty.ErrInvalidTransition
	}

	paid, err := s.statements.CountByRunAndStatus(ctx, runID, royalty.StatementStatusPaid)
	if err != nil {
		return nil, err
	}
	if paid > 0 {
		return nil, royalty.ErrPaidStatements
	}

	statements, err := s.statements.ListByRun(ctx, runID)
	if err != nil {
		return nil, err
	}
	lines, err := s.statements.ListLinesByRun(ctx, runID)
	if err != nil {
		return nil, err
	}

	now := s.clock.Now()
	actor := auth.SubjectFromContext(ctx)
	record := buildArchiveRecord(run, statements, lines, reason, actor, now)
	row, err := record.Encode()
	if err != nil {
		return nil, err
	}

	rollback := royalty.RollbackResult{
		RunID:      runID,
		ArchiveRow: row,
		Restores:   carryoverRestores(statements, lines),
		At:         now,
	}
	if err := s.runs.Rollback(ctx, rollback); err != nil {
		return nil, err
	}

	s.recordAudit(ctx, run, reason, actor, len(statements), now)
	s.publishRolledBack(ctx, run, statements, now)
	return &rollback, nil
}

func buildArchiveRecord(run *royalty.Run, statements []royalty.Statement, lines []royalty.Line, reason, actor string, at time.Time) royalty.ArchiveRecord {
	linesByStatement := make(map[string][]royalty.Line, len(statements))
	for _, line := range lines {
		linesByStatement[line.StatementID] = append(linesByStatement[line.StatementID], line)
	}

	record := royalty.ArchiveRecord{
		SchemaVersion: royalty.ArchiveSchemaVersion,
		ArchivedAt:    at,
		Reason:        reason,
		Actor:         actor,
		Run: royalty.ArchivedRun{
			ID:                  run.ID,
			Status:              string(run.Status),
			PeriodStart:         run.PeriodStart,
			PeriodEnd:           run.PeriodEnd,
			TotalRevenueCents:   run.TotalRevenueCents,
			TotalRoyaltiesCents: run.TotalRoyaltiesCents,
			LockedAt:            run.LockedAt,
		},
	}
	for _, stmt := range statements {
		archived := royalty.ArchivedStatement{
			ID:         stmt.ID,
			CreatorID:  stmt.CreatorID,
			TotalCents: stmt.TotalCents,
			Status:     string(stmt.Status),
		}
		for _, line := range linesByStatement[stmt.ID] {
			archived.Lines = append(archived.Lines, royalty.ArchivedLine{
				Kind:         string(line.Kind),
				LicenseID:    line.LicenseID,
				AssetID:      line.AssetID,
				RevenueCents: line.RevenueCents,
				ShareBps:     line.ShareBps,
				RoyaltyCents: line.RoyaltyCents,
				PeriodStart:  line.PeriodStart,
				PeriodEnd:    line.PeriodEnd,
				Note:         line.Note,
			})
		}
		record.Statements = append(record.Statements, archived)
	}
	return record
}

// carryoverRestores rebuilds each creator's pre-calculation balance. The
// calculation recorded any prior balance as a carryover line on the creator's
// statement, so the restored balance is the sum of those lines.
func carryoverRestores(statements []royalty.Statement, lines []royalty.Line) []royalty.CarryoverUpdate {
	priorByStatement := make(map[string]int64)
	for _, line := range lines {
		if line.Kind == royalty.LineKindCarryover {
			priorByStatement[line.StatementID] += line.RoyaltyCents
		}
	}
	restores := make([]royalty.CarryoverUpdate, 0, len(statements))
	for _, stmt := range statements {
		restores = append(restores, royalty.CarryoverUpdate{
			CreatorID:    stmt.CreatorID,
			BalanceCents: priorByStatement[stmt.ID],
		})
	}
	return restores
}

func (s *RollbackService) recordAudit(ctx context.Context, run *royalty.Run, reason, actor string, statementCount int, at time.Time) {
	if s.auditor == nil {
		return
	}
	metadata, _ := json.Marshal(map[string]any{
		"reason":          reason,
		"from_status":     string(run.Status),
		"to_status":       string(royalty.RunStatusDraft),
		"statement_count": statementCount,
		"revenue_cents":   run.TotalRevenueCents,
		"royalties_cents": run.TotalRoyaltiesCents,
	})
	err := s.auditor.Log(ctx, audit.Entry{
		Actor:        actor,
		Role:         string(auth.RoleFromContext(ctx)),
		Action:       audit.ActionRunRolledBack,
		ResourceType: "run",
		ResourceID:   run.ID,
		RunID:        run.ID,
		Metadata:     metadata,
		CreatedAt:    at,
	})
	if err != nil {
		log.Printf("royalty: audit rollback for run %s: %v", run.ID, err)
	}
}

func (s *RollbackService) publishRolledBack(ctx context.Context, run *royalty.Run, statements []royalty.Statement, at time.Time) {
	if s.publisher == nil {
		return
	}
	statementIDs := make([]string, 0, len(statements))
	for _, stmt := range statements {
		statementIDs = append(statementIDs, stmt.ID)
	}
	err := s.publisher.Publish(ctx, events.RunCacheInvalidated{
		RunID:        run.ID,
		StatementIDs: statementIDs,
		Transition:   string(run.Status) + "->" + string(royalty.RunStatusDraft),
		OccurredAt:   at,
	})
	if err != nil {
		log.Printf("royalty: publish cache invalidation for run %s: %v", run.ID, err)
	}
}
