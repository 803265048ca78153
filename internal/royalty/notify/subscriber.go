package notify

import (
	"context"
	"fmt"
	"log"

	"royalty-engine/internal/eventing"
	"royalty-engine/internal/eventing/eventbus"
	"royalty-engine/internal/royalty/application/events"
)

const consumerName = "royalty-notify"

// RegisterSubscriber wires the notifier to statement-ready events on the bus.
// The processed store keeps redelivered events from notifying twice.
func RegisterSubscriber(bus eventbus.EventBus, notifier Notifier, store eventing.ProcessedStore, logger *log.Logger) {
	if logger == nil {
		logger = log.Default()
	}
	handler := func(ctx context.Context, event any) error {
		ready, ok := event.(events.StatementReady)
		if !ok {
			if p, okPtr := event.(*events.StatementReady); okPtr {
				ready = *p
			} else {
				return nil
			}
		}
		msg := StatementMessage{
			RunID:       ready.RunID,
			StatementID: ready.StatementID,
			CreatorID:   ready.CreatorID,
			Total:       formatCents(ready.TotalCents),
			Payable:     ready.Payable,
		}
		if err := notifier.Notify(ctx, msg); err != nil {
			logger.Printf("notify: statement %s: %v", ready.StatementID, err)
			return err
		}
		return nil
	}
	eventing.Subscribe(bus, eventbus.EventTypeOf[events.StatementReady](), consumerName, handler, store)
}

func formatCents(cents int64) string {
	sign := ""
	if cents < 0 {
		sign = "-"
		cents = -cents
	}
	return fmt.Sprintf("%s%d.%02d", sign, cents/100, cents%100)
}
