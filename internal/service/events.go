package service

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/festivo/ops-service/internal/events"
	"github.com/festivo/ops-service/internal/persistence"
)

// committed reports whether the surrounding unit of work has already
// committed. A service call that joined an outer transaction must not
// announce its write yet: the outer transaction can still roll it back, so
// the outermost caller publishes after its own commit instead.
func committed(ctx context.Context) bool {
	return persistence.TxFromContext(ctx) == nil
}

// publishEvent stamps and publishes a domain event. Dispatch is best-effort
// and never part of the originating unit of work, so errors are discarded.
func publishEvent(ctx context.Context, dispatcher events.Dispatcher, event events.Event) {
	if dispatcher == nil {
		return
	}
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	_ = dispatcher.Publish(ctx, event)
}
