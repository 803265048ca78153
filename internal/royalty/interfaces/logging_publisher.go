package interfaces

import (
	"context"
	"errors"
	"log"

	"royalty-engine/internal/royalty/application/events"
)

// LoggingPublisher logs royalty events instead of delivering them, for local
// runs without an outbox.
type LoggingPublisher struct {
	logger *log.Logger
}

// NewLoggingPublisher constructs a logging publisher.
func NewLoggingPublisher(logger *log.Logger) *LoggingPublisher {
	if logger == nil {
		logger = log.Default()
	}
	return &LoggingPublisher{logger: logger}
}

// Publish logs the event.
func (p *LoggingPublisher) Publish(ctx context.Context, event any) error {
	_ = ctx
	if p == nil {
		return errors.New("royalty publisher: nil publisher")
	}
	switch e := event.(type) {
	case events.StatementReady:
		p.logger.Printf("statement ready: run=%s statement=%s creator=%s total=%d payable=%t",
			e.RunID, e.StatementID, e.CreatorID, e.TotalCents, e.Payable)
	case events.RunCacheInvalidated:
		p.logger.Printf("run cache invalidated: run=%s transition=%s statements=%d",
			e.RunID, e.Transition, len(e.StatementIDs))
	default:
		p.logger.Printf("royalty event: %T", event)
	}
	return nil
}
