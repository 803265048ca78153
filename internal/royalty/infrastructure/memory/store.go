package memory

import (
	"context"
	"sort"
	"sync"
	"time"

	royalty "royalty-engine/internal/royalty/domain"
)

// state is the shared backing storage for the in-memory repositories.
type state struct {
	mu         sync.RWMutex
	runs       map[string]royalty.Run
	statements map[string]royalty.Statement
	lines      map[string][]royalty.Line
	carryovers map[string]int64
	outbox     []royalty.OutboxEvent
}

// Store bundles in-memory implementations of the run, statement and
// carryover repositories over one shared state, used in tests.
type Store struct {
	Runs       *RunStore
	Statements *StatementStore
	Carryovers *CarryoverStore
}

// NewStore constructs an empty store.
func NewStore() *Store {
	st := &state{
		runs:       make(map[string]royalty.Run),
		statements: make(map[string]royalty.Statement),
		lines:      make(map[string][]royalty.Line),
		carryovers: make(map[string]int64),
	}
	return &Store{
		Runs:       &RunStore{st: st},
		Statements: &StatementStore{st: st},
		Carryovers: &CarryoverStore{st: st},
	}
}

// RunStore is the in-memory run repository.
type RunStore struct {
	st *state
}

// Create inserts a new run.
func (s *RunStore) Create(ctx context.Context, run *royalty.Run) error {
	if run == nil {
		return royalty.ErrNilRun
	}
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	s.st.runs[run.ID] = *run
	return nil
}

// GetByID fetches a run.
func (s *RunStore) GetByID(ctx context.Context, id string) (*royalty.Run, error) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	run, ok := s.st.runs[id]
	if !ok {
		return nil, nil
	}
	copied := run
	return &copied, nil
}

// List returns all runs, newest period first.
func (s *RunStore) List(ctx context.Context) ([]royalty.Run, error) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	result := make([]royalty.Run, 0, len(s.st.runs))
	for _, run := range s.st.runs {
		result = append(result, run)
	}
	sort.Slice(result, func(i, j int) bool {
		return result[i].PeriodStart.After(result[j].PeriodStart)
	})
	return result, nil
}

// FindOverlapping returns a non-terminal run overlapping the period, or nil.
func (s *RunStore) FindOverlapping(ctx context.Context, period royalty.Period) (*royalty.Run, error) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	for _, run := range s.st.runs {
		if run.Status.Terminal() {
			continue
		}
		if _, ok := run.Period().Overlap(period); ok {
			copied := run
			return &copied, nil
		}
	}
	return nil, nil
}

// UpdateStatus moves a run from -> to, failing when the stored status differs.
func (s *RunStore) UpdateStatus(ctx context.Context, id string, from, to royalty.RunStatus, at time.Time) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	run, ok := s.st.runs[id]
	if !ok {
		return royalty.ErrRunNotFound
	}
	if run.Status != from {
		return royalty.ErrInvalidTransition
	}
	run.Status = to
	run.UpdatedAt = at
	switch to {
	case royalty.RunStatusLocked:
		run.LockedAt = at
	case royalty.RunStatusCompleted:
		run.ProcessedAt = at
	}
	s.st.runs[id] = run
	return nil
}

// SaveCalculation applies a calculation result atomically.
func (s *RunStore) SaveCalculation(ctx context.Context, result royalty.CalculationResult) error {
	if result.Run == nil {
		return royalty.ErrNilRun
	}
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	stored, ok := s.st.runs[result.Run.ID]
	if !ok {
		return royalty.ErrRunNotFound
	}
	if stored.Status != royalty.RunStatusDraft {
		return royalty.ErrInvalidTransition
	}
	s.st.runs[result.Run.ID] = *result.Run
	for _, item := range result.Statements {
		s.st.statements[item.Statement.ID] = item.Statement
		s.st.lines[item.Statement.ID] = append([]royalty.Line(nil), item.Lines...)
	}
	for _, update := range result.Carryovers {
		s.st.carryovers[update.CreatorID] = update.BalanceCents
	}
	s.st.outbox = append(s.st.outbox, result.Outbox...)
	return nil
}

// OutboxRows returns the outbox events written alongside calculations.
func (s *RunStore) OutboxRows() []royalty.OutboxEvent {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	return append([]royalty.OutboxEvent(nil), s.st.outbox...)
}

// Rollback reverts a run to DRAFT and restores carryover balances.
func (s *RunStore) Rollback(ctx context.Context, rollback royalty.RollbackResult) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	run, ok := s.st.runs[rollback.RunID]
	if !ok {
		return royalty.ErrRunNotFound
	}
	if run.Status != royalty.RunStatusCalculated && run.Status != royalty.RunStatusLocked {
		return royalty.ErrInvalidTransition
	}
	if run.Notes == "" {
		run.Notes = rollback.ArchiveRow
	} else {
		run.Notes += "\n" + rollback.ArchiveRow
	}
	run.Status = royalty.RunStatusDraft
	run.TotalRevenueCents = 0
	run.TotalRoyaltiesCents = 0
	run.LockedAt = time.Time{}
	run.ProcessedAt = time.Time{}
	run.UpdatedAt = rollback.At
	s.st.runs[rollback.RunID] = run

	for id, stmt := range s.st.statements {
		if stmt.RunID == rollback.RunID {
			delete(s.st.statements, id)
			delete(s.st.lines, id)
		}
	}
	for _, restore := range rollback.Restores {
		s.st.carryovers[restore.CreatorID] = restore.BalanceCents
	}
	return nil
}

// StatementStore is the in-memory statement repository.
type StatementStore struct {
	st *state
}

// GetByID fetches a statement.
func (s *StatementStore) GetByID(ctx context.Context, id string) (*royalty.Statement, error) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	stmt, ok := s.st.statements[id]
	if !ok {
		return nil, nil
	}
	copied := stmt
	return &copied, nil
}

// ListByRun returns a run's statements ordered by creator.
func (s *StatementStore) ListByRun(ctx context.Context, runID string) ([]royalty.Statement, error) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	return s.listByRunLocked(runID), nil
}

func (s *StatementStore) listByRunLocked(runID string) []royalty.Statement {
	var result []royalty.Statement
	for _, stmt := range s.st.statements {
		if stmt.RunID == runID {
			result = append(result, stmt)
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatorID < result[j].CreatorID })
	return result
}

// ListLines returns a statement's lines.
func (s *StatementStore) ListLines(ctx context.Context, statementID string) ([]royalty.Line, error) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	return append([]royalty.Line(nil), s.st.lines[statementID]...), nil
}

// ListLinesByRun returns every line under a run.
func (s *StatementStore) ListLinesByRun(ctx context.Context, runID string) ([]royalty.Line, error) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	var result []royalty.Line
	for _, stmt := range s.listByRunLocked(runID) {
		result = append(result, s.st.lines[stmt.ID]...)
	}
	return result, nil
}

// CountByRunAndStatus counts a run's statements in one status.
func (s *StatementStore) CountByRunAndStatus(ctx context.Context, runID string, status royalty.StatementStatus) (int, error) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	count := 0
	for _, stmt := range s.st.statements {
		if stmt.RunID == runID && stmt.Status == status {
			count++
		}
	}
	return count, nil
}

// UpdateStatus moves a statement through its review cycle.
func (s *StatementStore) UpdateStatus(ctx context.Context, id string, status royalty.StatementStatus, at time.Time, reason string) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	stmt, ok := s.st.statements[id]
	if !ok {
		return royalty.ErrStatementNotFound
	}
	stmt.Status = status
	stmt.UpdatedAt = at
	switch status {
	case royalty.StatementStatusReviewed:
		stmt.ReviewedAt = at
	case royalty.StatementStatusDisputed:
		stmt.DisputedAt = at
		stmt.DisputeReason = reason
	}
	s.st.statements[id] = stmt
	return nil
}

// SetPaymentRef marks a statement PAID.
func (s *StatementStore) SetPaymentRef(ctx context.Context, id, paymentRef string, at time.Time) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	stmt, ok := s.st.statements[id]
	if !ok {
		return royalty.ErrStatementNotFound
	}
	stmt.Status = royalty.StatementStatusPaid
	stmt.PaymentRef = paymentRef
	stmt.UpdatedAt = at
	s.st.statements[id] = stmt
	return nil
}

// AddCorrectionLine appends a correction line and adjusts the total.
func (s *StatementStore) AddCorrectionLine(ctx context.Context, statementID string, line royalty.Line, at time.Time) error {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	stmt, ok := s.st.statements[statementID]
	if !ok {
		return royalty.ErrStatementNotFound
	}
	s.st.lines[statementID] = append(s.st.lines[statementID], line)
	stmt.TotalCents += line.RoyaltyCents
	stmt.CorrectionCount++
	stmt.UpdatedAt = at
	s.st.statements[statementID] = stmt
	return nil
}

// CarryoverStore is the in-memory carryover repository.
type CarryoverStore struct {
	st *state
}

// Balance returns a creator's balance; missing creators hold zero.
func (s *CarryoverStore) Balance(ctx context.Context, creatorID string) (int64, error) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	return s.st.carryovers[creatorID], nil
}

// ListNonZero returns every creator holding a non-zero balance.
func (s *CarryoverStore) ListNonZero(ctx context.Context) ([]royalty.CarryoverUpdate, error) {
	s.st.mu.RLock()
	defer s.st.mu.RUnlock()
	var result []royalty.CarryoverUpdate
	for creatorID, balance := range s.st.carryovers {
		if balance != 0 {
			result = append(result, royalty.CarryoverUpdate{CreatorID: creatorID, BalanceCents: balance})
		}
	}
	sort.Slice(result, func(i, j int) bool { return result[i].CreatorID < result[j].CreatorID })
	return result, nil
}

// SetBalance seeds a carryover balance directly, for tests.
func (s *CarryoverStore) SetBalance(creatorID string, balanceCents int64) {
	s.st.mu.Lock()
	defer s.st.mu.Unlock()
	s.st.carryovers[creatorID] = balanceCents
}
