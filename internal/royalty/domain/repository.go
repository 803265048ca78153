package royalty

import (
	"context"
	"time"
)

// StatementWithLines pairs a statement with its lines for bulk persistence.
type StatementWithLines struct {
	Statement Statement
	Lines     []Line
}

// CarryoverUpdate sets one creator's carryover balance.
type CarryoverUpdate struct {
	CreatorID    string
	BalanceCents int64
}

// OutboxEvent is a pre-encoded outbox insert. Rows ride inside the same
// storage transaction as the state change that produced them, so a committed
// calculation can never lose its events.
type OutboxEvent struct {
	OutboxID  string
	EventID   string
	EventType string
	Payload   []byte
}

// CalculationResult is the full output of one calculation pass. Repositories
// persist it in a single transaction: either the whole CALCULATED result
// exists or none of it does and the run stays DRAFT.
type CalculationResult struct {
	Run        *Run
	Statements []StatementWithLines
	Carryovers []CarryoverUpdate
	Outbox     []OutboxEvent
}

// RollbackResult reverts a run to DRAFT. Repositories apply it in a single
// transaction: append the archive record to the notes ledger, delete lines
// then statements, reset totals and timestamps, restore carryover balances.
type RollbackResult struct {
	RunID      string
	ArchiveRow string
	Restores   []CarryoverUpdate
	At         time.Time
}

// RunRepository persists runs and owns the multi-entity transactions.
type RunRepository interface {
	Create(ctx context.Context, run *Run) error
	GetByID(ctx context.Context, id string) (*Run, error)
	List(ctx context.Context) ([]Run, error)
	// FindOverlapping returns a non-terminal run whose period overlaps the
	// given one, or nil.
	FindOverlapping(ctx context.Context, period Period) (*Run, error)
	// UpdateStatus moves a run from -> to, guarded in storage so a stale
	// reader cannot race the transition. Returns ErrInvalidTransition when
	// the stored status is not from.
	UpdateStatus(ctx context.Context, id string, from, to RunStatus, at time.Time) error
	SaveCalculation(ctx context.Context, result CalculationResult) error
	Rollback(ctx context.Context, rollback RollbackResult) error
}

// StatementRepository reads statements and applies the post-calculation hooks.
type StatementRepository interface {
	GetByID(ctx context.Context, id string) (*Statement, error)
	ListByRun(ctx context.Context, runID string) ([]Statement, error)
	ListLines(ctx context.Context, statementID string) ([]Line, error)
	ListLinesByRun(ctx context.Context, runID string) ([]Line, error)
	CountByRunAndStatus(ctx context.Context, runID string, status StatementStatus) (int, error)
	UpdateStatus(ctx context.Context, id string, status StatementStatus, at time.Time, reason string) error
	SetPaymentRef(ctx context.Context, id, paymentRef string, at time.Time) error
	// AddCorrectionLine appends an additive correction line, bumps the
	// statement's correction count and adjusts its total. Corrections never
	// edit existing lines in place.
	AddCorrectionLine(ctx context.Context, statementID string, line Line, at time.Time) error
}

// CarryoverRepository reads creators' unpaid balances from prior runs.
// Writes happen only inside SaveCalculation and Rollback transactions.
type CarryoverRepository interface {
	Balance(ctx context.Context, creatorID string) (int64, error)
	// ListNonZero returns every creator holding a non-zero balance, so
	// creators without new allocations still receive a statement.
	ListNonZero(ctx context.Context) ([]CarryoverUpdate, error)
}
