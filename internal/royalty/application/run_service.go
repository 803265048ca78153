package application

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"royalty-engine/internal/audit"
	"royalty-engine/internal/auth"
	"royalty-engine/internal/observability/metrics"
	"royalty-engine/internal/royalty/application/events"
	royalty "royalty-engine/internal/royalty/domain"
)

// RunService manages the run lifecycle outside the calculation pass: opening
// runs, guarded status transitions, and the lock approval gate.
type RunService struct {
	runs       royalty.RunRepository
	statements royalty.StatementRepository
	validator  *ValidationService
	rollback   *RollbackService
	lock       royalty.RunLock
	auditor    audit.Logger
	publisher  EventPublisher
	clock      Clock
	lockLease  time.Duration
}

// NewRunService constructs the service. The rollback collaborator handles the
// lock decline path and may not be nil.
func NewRunService(
	runs royalty.RunRepository,
	statements royalty.StatementRepository,
	validator *ValidationService,
	rollback *RollbackService,
	lock royalty.RunLock,
	auditor audit.Logger,
	publisher EventPublisher,
	clock Clock,
	lockLease time.Duration,
) (*RunService, error) {
	if runs == nil {
		return nil, errors.New("run service: nil run repository")
	}
	if statements == nil {
		return nil, errors.New("run service: nil statement repository")
	}
	if validator == nil {
		return nil, errors.New("run service: nil validator")
	}
	if rollback == nil {
		return nil, errors.New("run service: nil rollback service")
	}
	if lock == nil {
		return nil, errors.New("run service: nil run lock")
	}
	if clock == nil {
		clock = SystemClock{}
	}
	if lockLease <= 0 {
		lockLease = defaultLockLease
	}
	return &RunService{
		runs:       runs,
		statements: statements,
		validator:  validator,
		rollback:   rollback,
		lock:       lock,
		auditor:    auditor,
		publisher:  publisher,
		clock:      clock,
		lockLease:  lockLease,
	}, nil
}

// OpenRun creates a DRAFT run for the given period. At most one non-terminal
// run may cover any point in time, so an overlapping active run rejects the
// new one.
func (s *RunService) OpenRun(ctx context.Context, start, end time.Time, notes string) (*royalty.Run, error) {
	period, err := royalty.NewPeriod(start, end)
	if err != nil {
		return nil, err
	}
	existing, err := s.runs.FindOverlapping(ctx, period)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, fmt.Errorf("%w: run %s covers [%s, %s)", royalty.ErrPeriodOverlap,
			existing.ID, existing.PeriodStart.Format(time.RFC3339), existing.PeriodEnd.Format(time.RFC3339))
	}

	now := s.clock.Now()
	run := &royalty.Run{
		ID:          royalty.NewRunID(),
		PeriodStart: period.Start,
		PeriodEnd:   period.End,
		Status:      royalty.RunStatusDraft,
		Notes:       strings.TrimSpace(notes),
		CreatedBy:   auth.SubjectFromContext(ctx),
		CreatedAt:   now,
		UpdatedAt:   now,
	}
	if err := s.runs.Create(ctx, run); err != nil {
		return nil, err
	}

	s.recordAudit(ctx, run.ID, audit.ActionRunOpened, map[string]any{
		"period_start": period.Start,
		"period_end":   period.End,
	}, now)
	return run, nil
}

// Get returns one run.
func (s *RunService) Get(ctx context.Context, runID string) (*royalty.Run, error) {
	run, err := s.runs.GetByID(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run == nil {
		return nil, royalty.ErrRunNotFound
	}
	return run, nil
}

// List returns all runs.
func (s *RunService) List(ctx context.Context) ([]royalty.Run, error) {
	return s.runs.List(ctx)
}

// Transition moves a run along a plain state-machine edge. Calculation,
// locking and rollback have their own entry points; this covers the rest
// (cancel, start processing, complete, fail).
func (s *RunService) Transition(ctx context.Context, runID string, to royalty.RunStatus) (*royalty.Run, error) {
	run, err := s.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !royalty.CanTransition(run.Status, to) {
		return nil, fmt.Errorf("%w: %s -> %s", royalty.ErrInvalidTransition, run.Status, to)
	}

	now := s.clock.Now()
	if err := s.runs.UpdateStatus(ctx, runID, run.Status, to, now); err != nil {
		return nil, err
	}

	s.recordAudit(ctx, runID, audit.ActionRunTransition, map[string]any{
		"from_status": string(run.Status),
		"to_status":   string(to),
	}, now)
	s.publishInvalidation(ctx, runID, run.Status, to, now)
	return s.Get(ctx, runID)
}

// Lock is the approval gate for a CALCULATED run. Approving requires a clean
// validation report and zero disputed statements, then freezes the run.
// Declining rolls the run back to DRAFT with the notes as the reason.
func (s *RunService) Lock(ctx context.Context, runID string, approve bool, notes string) (*royalty.Run, error) {
	start := time.Now()
	result := metrics.ResultSuccess
	defer func() {
		metrics.ObserveLock(result, time.Since(start))
	}()

	run, err := s.lockRun(ctx, runID, approve, notes)
	if err != nil {
		result = metrics.ResultError
		return nil, err
	}
	return run, nil
}

func (s *RunService) lockRun(ctx context.Context, runID string, approve bool, notes string) (*royalty.Run, error) {
	if !approve {
		// The rollback service takes the run lease itself.
		if _, err := s.rollback.Rollback(ctx, runID, notes); err != nil {
			return nil, err
		}
		return s.Get(ctx, runID)
	}

	// The approval holds the run lease so it cannot interleave with an
	// in-flight recalculation or rollback on the same run.
	release, err := s.lock.Acquire(ctx, runID, s.lockLease)
	if err != nil {
		return nil, err
	}
	defer func() { _ = release(context.Background()) }()

	run, err := s.Get(ctx, runID)
	if err != nil {
		return nil, err
	}
	if run.Status != royalty.RunStatusCalculated {
		return nil, fmt.Errorf("%w: %s -> %s", royalty.ErrInvalidTransition, run.Status, royalty.RunStatusLocked)
	}

	disputed, err := s.statements.CountByRunAndStatus(ctx, runID, royalty.StatementStatusDisputed)
	if err != nil {
		return nil, err
	}
	if disputed > 0 {
		return nil, fmt.Errorf("%w: %d open disputes", royalty.ErrDisputedStatements, disputed)
	}

	report, err := s.validator.Report(ctx, runID)
	if err != nil {
		return nil, err
	}
	if !report.IsValid {
		return nil, fmt.Errorf("%w: %s", royalty.ErrValidationFailed, strings.Join(report.Errors, "; "))
	}

	now := s.clock.Now()
	if err := s.runs.UpdateStatus(ctx, runID, royalty.RunStatusCalculated, royalty.RunStatusLocked, now); err != nil {
		return nil, err
	}

	s.recordAudit(ctx, runID, audit.ActionRunLocked, map[string]any{
		"notes":           strings.TrimSpace(notes),
		"statement_count": report.Summary.StatementCount,
		"royalties_cents": report.Summary.TotalRoyaltiesCents,
	}, now)
	s.publishInvalidation(ctx, runID, royalty.RunStatusCalculated, royalty.RunStatusLocked, now)
	return s.Get(ctx, runID)
}

func (s *RunService) recordAudit(ctx context.Context, runID, action string, metadata map[string]any, at time.Time) {
	if s.auditor == nil {
		return
	}
	payload, _ := json.Marshal(metadata)
	err := s.auditor.Log(ctx, audit.Entry{
		Actor:        auth.SubjectFromContext(ctx),
		Role:         string(auth.RoleFromContext(ctx)),
		Action:       action,
		ResourceType: "run",
		ResourceID:   runID,
		RunID:        runID,
		Metadata:     payload,
		CreatedAt:    at,
	})
	if err != nil {
		log.Printf("royalty: audit %s for run %s: %v", action, runID, err)
	}
}

func (s *RunService) publishInvalidation(ctx context.Context, runID string, from, to royalty.RunStatus, at time.Time) {
	if s.publisher == nil {
		return
	}
	err := s.publisher.Publish(ctx, events.RunCacheInvalidated{
		RunID:      runID,
		Transition: string(from) + "->" + string(to),
		OccurredAt: at,
	})
	if err != nil {
		log.Printf("royalty: publish cache invalidation for run %s: %v", runID, err)
	}
}
