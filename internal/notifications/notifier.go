package notifications

import (
	"context"
	"errors"

	"github.com/hello-adam-martin/offmarket-sub000/pkg/db/models"
	"github.com/hello-adam-martin/offmarket-sub000/pkg/logger"
)

// Notifier receives journal events from the outbox dispatcher. Implementations
// must be idempotent; the dispatcher delivers at least once.
type Notifier interface {
	Deliver(ctx context.Context, event models.OutboxEvent) error
}

// LogNotifier emits each domain event as a structured log line. It is the
// default sink until a downstream consumer exists.
type LogNotifier struct {
	logg *logger.Logger
}

// NewLogNotifier builds a log-backed notifier.
func NewLogNotifier(logg *logger.Logger) (*LogNotifier, error) {
	if logg == nil {
		return nil, errors.New("logger is required")
	}
	return &LogNotifier{logg: logg}, nil
}

func (n *LogNotifier) Deliver(ctx context.Context, event models.OutboxEvent) error {
	logCtx := n.logg.WithFields(ctx, map[string]any{
		"event_id":       event.ID.String(),
		"event_type":     event.EventType,
		"aggregate_type": event.AggregateType,
		"aggregate_id":   event.AggregateID.String(),
		"payload":        string(event.Payload),
	})
	n.logg.Info(logCtx, "domain event delivered")
	return nil
}
