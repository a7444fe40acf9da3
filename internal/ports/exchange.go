package ports

import (
	"context"

	"tradeEngine/internal/domain"
)

// ExchangeConnector is the per-exchange connectivity contract consumed by the
// order gateway. Implementations wrap one venue's API and translate its
// failures into the sentinel errors in this package.
type ExchangeConnector interface {
	// Name returns the exchange identifier used in venue preference lists.
	Name() string

	// SupportsSymbol reports whether the exchange lists the given symbol.
	SupportsSymbol(symbol string) bool

	// PlaceOrder submits the order and returns the resulting fill.
	// Transient faults must wrap ErrTimeout/ErrRateLimited/ErrConnectionFailed/
	// ErrExchangeUnavailable; definitive rejections must wrap ErrOrderRejected,
	// ErrInvalidSymbol or ErrInsufficientFunds.
	PlaceOrder(ctx context.Context, order *domain.TradeOrder) (*domain.Fill, error)

	// CancelOrder cancels an open order by its exchange-assigned id.
	CancelOrder(ctx context.Context, exchangeOrderID string) error

	// GetBalance returns the account's available balance in quote currency.
	GetBalance(ctx context.Context, accountID string) (float64, error)
}

// MarketFeed provides point-in-time market snapshots for strategies.
type MarketFeed interface {
	// Snapshot returns the latest known market state for the symbol.
	Snapshot(ctx context.Context, symbol string) (*domain.MarketState, error)
}
