package ports

import (
	"context"

	"tradeEngine/internal/domain"
)

// Strategy produces trading signals for a bot. Implementations must be
// side-effect-free from the core's perspective: the runner calls NextSignal
// on every tick and acts only on the returned value.
type Strategy interface {
	// NextSignal returns the next signal for the bot, or nil when the strategy
	// has nothing to recommend for this tick.
	NextSignal(ctx context.Context, cfg domain.BotConfig, market *domain.MarketState) (*domain.Signal, error)
}
