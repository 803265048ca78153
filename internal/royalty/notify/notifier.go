package notify

import "context"

// StatementMessage represents a statement notification payload.
type StatementMessage struct {
	RunID       string `json:"run_id"`
	StatementID string `json:"statement_id"`
	CreatorID   string `json:"creator_id"`
	Total       string `json:"total"`
	Payable     bool   `json:"payable"`
}

// Notifier sends statement notifications.
type Notifier interface {
	Notify(ctx context.Context, msg StatementMessage) error
}
