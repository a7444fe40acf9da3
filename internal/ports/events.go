package ports

import (
	"context"

	"tradeEngine/internal/domain"
)

// EventPublisher receives the structured events the core emits for the
// external audit/notification layer. The core never depends on delivery
// succeeding; implementations must not block.
type EventPublisher interface {
	Publish(ctx context.Context, event domain.Event)
}
