package royalty

import "errors"

// Validation errors: rejected before any mutation, safe to retry after correction.
var (
	// ErrInvalidPeriod is returned when a period is zero, inverted, or not UTC-representable.
	ErrInvalidPeriod = errors.New("royalty: invalid period")
	// ErrPeriodOverlap is returned when a new run period overlaps a non-terminal run.
	ErrPeriodOverlap = errors.New("royalty: period overlaps existing run")
	// ErrSharesNotTotal is returned when an asset's active shares do not sum to 10000 bps.
	ErrSharesNotTotal = errors.New("royalty: ownership shares do not sum to 10000 bps")
	// ErrNoOwnership is returned when an asset has no active ownership shares.
	ErrNoOwnership = errors.New("royalty: no ownership shares")
	// ErrZeroTermDays is returned when a fee license has a zero-length term.
	ErrZeroTermDays = errors.New("royalty: license term has zero days")
	// ErrReasonTooShort is returned when a rollback reason is below the configured minimum.
	ErrReasonTooShort = errors.New("royalty: rollback reason too short")
)

// State errors: rejected with no side effects.
var (
	// ErrInvalidTransition is returned when the run status forbids the requested transition.
	ErrInvalidTransition = errors.New("royalty: invalid run transition")
	// ErrRunLocked is returned when mutating an entity under a locked run.
	ErrRunLocked = errors.New("royalty: run is locked")
	// ErrDisputedStatements is returned when disputed statements block a lock.
	ErrDisputedStatements = errors.New("royalty: disputed statements present")
	// ErrPaidStatements is returned when paid statements block a rollback.
	ErrPaidStatements = errors.New("royalty: paid statements present")
	// ErrAdminRequired is returned when the caller lacks elevated privilege.
	ErrAdminRequired = errors.New("royalty: admin privilege required")
	// ErrValidationFailed is returned when a lock is requested against a failing report.
	ErrValidationFailed = errors.New("royalty: validation report has blocking errors")
	// ErrRunNotFound is returned when a run does not exist.
	ErrRunNotFound = errors.New("royalty: run not found")
	// ErrStatementNotFound is returned when a statement does not exist.
	ErrStatementNotFound = errors.New("royalty: statement not found")
)

// Consistency errors: abort the whole transaction, run remains DRAFT.
var (
	// ErrAllocationMismatch is returned when distributed cents do not sum to the revenue.
	ErrAllocationMismatch = errors.New("royalty: allocations do not sum to revenue")
	// ErrNegativeAmount is returned when a negative amount is produced or provided.
	ErrNegativeAmount = errors.New("royalty: negative amount")
)

// Infrastructure errors: retryable by the caller once the lease expires.
var (
	// ErrRunBusy is returned when the run lease lock is held elsewhere.
	ErrRunBusy = errors.New("royalty: run is busy")
)

var (
	// ErrNilRun is returned when persisting a nil run.
	ErrNilRun = errors.New("royalty: nil run")
)
