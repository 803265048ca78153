package events

import "time"

// StatementReady is emitted per creator once a calculation commits, for the
// notification collaborator to consume asynchronously.
type StatementReady struct {
	RunID       string    `json:"run_id"`
	StatementID string    `json:"statement_id"`
	CreatorID   string    `json:"creator_id"`
	TotalCents  int64     `json:"total_cents"`
	Payable     bool      `json:"payable"`
	OccurredAt  time.Time `json:"occurred_at"`
}

// RunCacheInvalidated is emitted on every mutating run transition so caching
// layers in front of read queries can drop run- and statement-level entries.
type RunCacheInvalidated struct {
	RunID        string    `json:"run_id"`
	StatementIDs []string  `json:"statement_ids,omitempty"`
	Transition   string    `json:"transition"`
	OccurredAt   time.Time `json:"occurred_at"`
}
