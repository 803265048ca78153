package royalty

import "time"

// StatementStatus is the review state of a creator statement.
type StatementStatus string

const (
	StatementStatusPending  StatementStatus = "PENDING"
	StatementStatusReviewed StatementStatus = "REVIEWED"
	StatementStatusDisputed StatementStatus = "DISPUTED"
	StatementStatusResolved StatementStatus = "RESOLVED"
	StatementStatusPaid     StatementStatus = "PAID"
)

// ParseStatementStatus validates a status string.
func ParseStatementStatus(value string) (StatementStatus, bool) {
	switch StatementStatus(value) {
	case StatementStatusPending, StatementStatusReviewed, StatementStatusDisputed,
		StatementStatusResolved, StatementStatusPaid:
		return StatementStatus(value), true
	default:
		return "", false
	}
}

// Statement is one creator's aggregated result for one run.
// Exactly one statement exists per (run, creator) pair.
type Statement struct {
	ID              string
	RunID           string
	CreatorID       string
	TotalCents      int64
	Status          StatementStatus
	ReviewedAt      time.Time
	DisputedAt      time.Time
	DisputeReason   string
	PaymentRef      string
	CorrectionCount int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}
