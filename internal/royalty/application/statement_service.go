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
	royalty "royalty-engine/internal/royalty/domain"
)

// StatementService applies the post-calculation statement hooks: review,
// dispute, resolve, payment marking, and admin corrections. Review-cycle
// hooks run only while the run is still CALCULATED; payment marking runs
// during PROCESSING; corrections are the one mutation allowed after LOCK.
type StatementService struct {
	runs       royalty.RunRepository
	statements royalty.StatementRepository
	auditor    audit.Logger
	clock      Clock
}

// NewStatementService constructs the service.
func NewStatementService(
	runs royalty.RunRepository,
	statements royalty.StatementRepository,
	auditor audit.Logger,
	clock Clock,
) (*StatementService, error) {
	if runs == nil {
		return nil, errors.New("statement service: nil run repository")
	}
	if statements == nil {
		return nil, errors.New("statement service: nil statement repository")
	}
	if clock == nil {
		clock = SystemClock{}
	}
	return &StatementService{
		runs:       runs,
		statements: statements,
		auditor:    auditor,
		clock:      clock,
	}, nil
}

// Get returns one statement with its lines.
func (s *StatementService) Get(ctx context.Context, statementID string) (*royalty.StatementWithLines, error) {
	stmt, err := s.statements.GetByID(ctx, statementID)
	if err != nil {
		return nil, err
	}
	if stmt == nil {
		return nil, royalty.ErrStatementNotFound
	}
	lines, err := s.statements.ListLines(ctx, statementID)
	if err != nil {
		return nil, err
	}
	return &royalty.StatementWithLines{Statement: *stmt, Lines: lines}, nil
}

// ListByRun returns a run's statements.
func (s *StatementService) ListByRun(ctx context.Context, runID string) ([]royalty.Statement, error) {
	return s.statements.ListByRun(ctx, runID)
}

// Review acknowledges a PENDING statement.
func (s *StatementService) Review(ctx context.Context, statementID string) (*royalty.Statement, error) {
	return s.reviewCycleHook(ctx, statementID, royalty.StatementStatusReviewed, "",
		royalty.StatementStatusPending)
}

// Dispute flags a statement. A dispute reason is required and an open
// dispute blocks the run from locking.
func (s *StatementService) Dispute(ctx context.Context, statementID, reason string) (*royalty.Statement, error) {
	if len(strings.TrimSpace(reason)) == 0 {
		return nil, royalty.ErrReasonTooShort
	}
	return s.reviewCycleHook(ctx, statementID, royalty.StatementStatusDisputed, reason,
		royalty.StatementStatusPending, royalty.StatementStatusReviewed)
}

// Resolve closes a dispute.
func (s *StatementService) Resolve(ctx context.Context, statementID string) (*royalty.Statement, error) {
	return s.reviewCycleHook(ctx, statementID, royalty.StatementStatusResolved, "",
		royalty.StatementStatusDisputed)
}

func (s *StatementService) reviewCycleHook(ctx context.Context, statementID string, to royalty.StatementStatus, reason string, from ...royalty.StatementStatus) (*royalty.Statement, error) {
	stmt, run, err := s.load(ctx, statementID)
	if err != nil {
		return nil, err
	}
	if run.Status != royalty.RunStatusCalculated {
		return nil, fmt.Errorf("%w: run is %s", royalty.ErrRunLocked, run.Status)
	}
	if !statusIn(stmt.Status, from) {
		return nil, fmt.Errorf("%w: statement is %s", royalty.ErrInvalidTransition, stmt.Status)
	}

	now := s.clock.Now()
	if err := s.statements.UpdateStatus(ctx, statementID, to, now, reason); err != nil {
		return nil, err
	}
	s.recordHook(ctx, stmt, string(stmt.Status), string(to), reason, now)
	return s.statements.GetByID(ctx, statementID)
}

// MarkPaid records a payment reference while the run is PROCESSING. A PAID
// statement permanently blocks rollback of its run.
func (s *StatementService) MarkPaid(ctx context.Context, statementID, paymentRef string) (*royalty.Statement, error) {
	if strings.TrimSpace(paymentRef) == "" {
		return nil, errors.New("statement service: empty payment reference")
	}
	stmt, run, err := s.load(ctx, statementID)
	if err != nil {
		return nil, err
	}
	if run.Status != royalty.RunStatusProcessing {
		return nil, fmt.Errorf("%w: run is %s", royalty.ErrInvalidTransition, run.Status)
	}
	if stmt.Status == royalty.StatementStatusDisputed || stmt.Status == royalty.StatementStatusPaid {
		return nil, fmt.Errorf("%w: statement is %s", royalty.ErrInvalidTransition, stmt.Status)
	}

	now := s.clock.Now()
	if err := s.statements.SetPaymentRef(ctx, statementID, strings.TrimSpace(paymentRef), now); err != nil {
		return nil, err
	}
	s.recordHook(ctx, stmt, string(stmt.Status), string(royalty.StatementStatusPaid), paymentRef, now)
	return s.statements.GetByID(ctx, statementID)
}

// AddCorrection appends an admin correction line after the run has locked.
// Corrections never edit calculated lines; they adjust the statement total by
// an explicit, separately audited delta.
func (s *StatementService) AddCorrection(ctx context.Context, statementID string, amountCents int64, note string) (*royalty.StatementWithLines, error) {
	if auth.RoleFromContext(ctx) != auth.RoleAdmin {
		return nil, royalty.ErrAdminRequired
	}
	if amountCents == 0 {
		return nil, errors.New("statement service: zero correction amount")
	}
	if strings.TrimSpace(note) == "" {
		return nil, royalty.ErrReasonTooShort
	}

	stmt, run, err := s.load(ctx, statementID)
	if err != nil {
		return nil, err
	}
	switch run.Status {
	case royalty.RunStatusLocked, royalty.RunStatusProcessing, royalty.RunStatusCompleted:
	default:
		return nil, fmt.Errorf("%w: run is %s", royalty.ErrInvalidTransition, run.Status)
	}
	if stmt.TotalCents+amountCents < 0 {
		return nil, royalty.ErrNegativeAmount
	}

	now := s.clock.Now()
	line := royalty.Line{
		ID:           royalty.NewLineID(),
		StatementID:  statementID,
		Kind:         royalty.LineKindCorrection,
		RoyaltyCents: amountCents,
		PeriodStart:  run.PeriodStart,
		PeriodEnd:    run.PeriodEnd,
		Note:         strings.TrimSpace(note),
		CreatedAt:    now,
	}
	if err := s.statements.AddCorrectionLine(ctx, statementID, line, now); err != nil {
		return nil, err
	}

	s.recordCorrection(ctx, stmt, amountCents, note, now)
	return s.Get(ctx, statementID)
}

func (s *StatementService) load(ctx context.Context, statementID string) (*royalty.Statement, *royalty.Run, error) {
	stmt, err := s.statements.GetByID(ctx, statementID)
	if err != nil {
		return nil, nil, err
	}
	if stmt == nil {
		return nil, nil, royalty.ErrStatementNotFound
	}
	run, err := s.runs.GetByID(ctx, stmt.RunID)
	if err != nil {
		return nil, nil, err
	}
	if run == nil {
		return nil, nil, royalty.ErrRunNotFound
	}
	return stmt, run, nil
}

func statusIn(status royalty.StatementStatus, set []royalty.StatementStatus) bool {
	for _, candidate := range set {
		if status == candidate {
			return true
		}
	}
	return false
}

func (s *StatementService) recordHook(ctx context.Context, stmt *royalty.Statement, from, to, detail string, at time.Time) {
	if s.auditor == nil {
		return
	}
	metadata, _ := json.Marshal(map[string]any{
		"from_status": from,
		"to_status":   to,
		"detail":      detail,
	})
	err := s.auditor.Log(ctx, audit.Entry{
		Actor:        auth.SubjectFromContext(ctx),
		Role:         string(auth.RoleFromContext(ctx)),
		Action:       audit.ActionStatementHook,
		ResourceType: "statement",
		ResourceID:   stmt.ID,
		RunID:        stmt.RunID,
		Metadata:     metadata,
		CreatedAt:    at,
	})
	if err != nil {
		log.Printf("royalty: audit hook for statement %s: %v", stmt.ID, err)
	}
}

func (s *StatementService) recordCorrection(ctx context.Context, stmt *royalty.Statement, amountCents int64, note string, at time.Time) {
	if s.auditor == nil {
		return
	}
	metadata, _ := json.Marshal(map[string]any{
		"amount_cents": amountCents,
		"note":         strings.TrimSpace(note),
	})
	err := s.auditor.Log(ctx, audit.Entry{
		Actor:        auth.SubjectFromContext(ctx),
		Role:         string(auth.RoleFromContext(ctx)),
		Action:       audit.ActionCorrection,
		ResourceType: "statement",
		ResourceID:   stmt.ID,
		RunID:        stmt.RunID,
		Metadata:     metadata,
		CreatedAt:    at,
	})
	if err != nil {
		log.Printf("royalty: audit correction for statement %s: %v", stmt.ID, err)
	}
}
