package royalty

import "time"

// RunStatus is the lifecycle state of a royalty run.
type RunStatus string

const (
	RunStatusDraft      RunStatus = "DRAFT"
	RunStatusCalculated RunStatus = "CALCULATED"
	RunStatusLocked     RunStatus = "LOCKED"
	RunStatusProcessing RunStatus = "PROCESSING"
	RunStatusCompleted  RunStatus = "COMPLETED"
	RunStatusCancelled  RunStatus = "CANCELLED"
	RunStatusFailed     RunStatus = "FAILED"
)

// Terminal reports whether the status ends the run's lifecycle.
// Terminal runs do not block new runs over the same period.
func (s RunStatus) Terminal() bool {
	switch s {
	case RunStatusCompleted, RunStatusCancelled, RunStatusFailed:
		return true
	default:
		return false
	}
}

// ParseRunStatus validates a status string.
func ParseRunStatus(value string) (RunStatus, bool) {
	switch RunStatus(value) {
	case RunStatusDraft, RunStatusCalculated, RunStatusLocked, RunStatusProcessing,
		RunStatusCompleted, RunStatusCancelled, RunStatusFailed:
		return RunStatus(value), true
	default:
		return "", false
	}
}

// CanTransition reports whether the edge from -> to is part of the state machine.
// DRAFT -> CALCULATED is reserved for the calculation pass and
// CALCULATED|LOCKED -> DRAFT for the rollback manager; both are still edges here
// so the guards live in one table.
func CanTransition(from, to RunStatus) bool {
	switch from {
	case RunStatusDraft:
		return to == RunStatusCalculated || to == RunStatusCancelled || to == RunStatusFailed
	case RunStatusCalculated:
		return to == RunStatusLocked || to == RunStatusDraft
	case RunStatusLocked:
		return to == RunStatusProcessing || to == RunStatusDraft
	case RunStatusProcessing:
		return to == RunStatusCompleted || to == RunStatusFailed
	default:
		return false
	}
}

// Run is one period-scoped royalty calculation cycle.
// Notes doubles as an append-only rollback audit ledger: every rollback
// appends one newline-delimited archive record (see ArchiveRecord).
type Run struct {
	ID                  string
	PeriodStart         time.Time
	PeriodEnd           time.Time
	Status              RunStatus
	TotalRevenueCents   int64
	TotalRoyaltiesCents int64
	Notes               string
	CreatedBy           string
	CreatedAt           time.Time
	UpdatedAt           time.Time
	LockedAt            time.Time
	ProcessedAt         time.Time
}

// Period returns the run's calculation window.
func (r *Run) Period() Period {
	return Period{Start: r.PeriodStart.UTC(), End: r.PeriodEnd.UTC()}
}

// Mutable reports whether entities under the run may still change.
// Once locked, only the rollback manager and correction lines may touch it.
func (r *Run) Mutable() bool {
	return r.Status == RunStatusDraft || r.Status == RunStatusCalculated
}
