package events

import (
	"context"

	"tradeEngine/internal/domain"
	"tradeEngine/internal/ports"
)

// LogPublisher writes core events to the structured log. It stands in for the
// external audit/notification layer; delivery never blocks the core and a
// failed write is invisible to callers.
type LogPublisher struct {
	logger ports.Logger
}

var _ ports.EventPublisher = (*LogPublisher)(nil)

// NewLogPublisher creates a logger-backed event publisher.
func NewLogPublisher(logger ports.Logger) *LogPublisher {
	return &LogPublisher{logger: logger}
}

// Publish records the event as one structured log line.
func (p *LogPublisher) Publish(ctx context.Context, event domain.Event) {
	fields := map[string]interface{}{
		"event":     string(event.Type),
		"accountID": event.AccountID,
		"botID":     event.BotID,
	}
	for k, v := range event.Fields {
		fields[k] = v
	}
	p.logger.Info(ctx, "Event published", fields)
}
