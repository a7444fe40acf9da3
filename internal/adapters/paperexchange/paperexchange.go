package paperexchange

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"tradeEngine/internal/domain"
	"tradeEngine/internal/ports"
)

// Config holds configuration for the simulated exchange.
type Config struct {
	Name            string   // Exchange identifier used in venue preference lists
	Symbols         []string // Symbols the venue lists
	StartingBalance float64  // Quote-currency balance granted to every account
	Logger          ports.Logger
}

// Exchange is a deterministic in-process venue: market orders fill instantly
// at the current mark price (or the order's own price when set), stop and
// limit orders rest until cancelled. It implements both the connector and the
// market feed contracts so a full engine can run with no network at all.
type Exchange struct {
	cfg     Config
	symbols map[string]bool

	mu       sync.Mutex
	marks    map[string]float64 // symbol -> mark price
	balances map[string]float64 // accountID -> balance
	resting  map[string]*domain.TradeOrder
}

var (
	_ ports.ExchangeConnector = (*Exchange)(nil)
	_ ports.MarketFeed        = (*Exchange)(nil)
)

// New creates a simulated exchange.
func New(cfg Config) (*Exchange, error) {
	if cfg.Name == "" {
		return nil, fmt.Errorf("exchange name is required")
	}
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for paper exchange")
	}
	symbols := make(map[string]bool, len(cfg.Symbols))
	for _, s := range cfg.Symbols {
		symbols[s] = true
	}
	return &Exchange{
		cfg:      cfg,
		symbols:  symbols,
		marks:    make(map[string]float64),
		balances: make(map[string]float64),
		resting:  make(map[string]*domain.TradeOrder),
	}, nil
}

// Name returns the exchange identifier.
func (e *Exchange) Name() string { return e.cfg.Name }

// SupportsSymbol reports whether the venue lists the symbol.
func (e *Exchange) SupportsSymbol(symbol string) bool { return e.symbols[symbol] }

// SetMarkPrice moves the simulated market.
func (e *Exchange) SetMarkPrice(symbol string, price float64) {
	e.mu.Lock()
	e.marks[symbol] = price
	e.mu.Unlock()
}

// PlaceOrder fills market orders at the mark price and parks stop/limit
// orders until cancelled.
func (e *Exchange) PlaceOrder(ctx context.Context, order *domain.TradeOrder) (*domain.Fill, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("paper order aborted: %w", ports.ErrContextCanceled)
	}
	if !e.symbols[order.Symbol] {
		return nil, fmt.Errorf("symbol %q not listed on %s: %w", order.Symbol, e.cfg.Name, ports.ErrInvalidSymbol)
	}

	e.mu.Lock()
	defer e.mu.Unlock()

	id := uuid.NewString()
	if order.Kind != domain.KindMarket {
		e.resting[id] = order
		e.cfg.Logger.Debug(ctx, "Paper order resting", map[string]interface{}{
			"exchange":        e.cfg.Name,
			"exchangeOrderID": id,
			"kind":            string(order.Kind),
			"symbol":          order.Symbol,
		})
		return &domain.Fill{ExchangeOrderID: id, Timestamp: time.Now().UTC()}, nil
	}

	price := order.Price
	if price == 0 {
		price = e.marks[order.Symbol]
	}
	if price == 0 {
		return nil, fmt.Errorf("no mark price for %q: %w", order.Symbol, ports.ErrExchangeUnavailable)
	}
	e.cfg.Logger.Debug(ctx, "Paper order filled", map[string]interface{}{
		"exchange":        e.cfg.Name,
		"exchangeOrderID": id,
		"symbol":          order.Symbol,
		"price":           price,
		"quantity":        order.Quantity,
	})
	return &domain.Fill{
		ExchangeOrderID: id,
		Price:           price,
		Quantity:        order.Quantity,
		Timestamp:       time.Now().UTC(),
	}, nil
}

// CancelOrder removes a resting order.
func (e *Exchange) CancelOrder(ctx context.Context, exchangeOrderID string) error {
	e.mu.Lock()
	defer e.mu.Unlock()
	if _, ok := e.resting[exchangeOrderID]; !ok {
		return fmt.Errorf("cancel %s: %w", exchangeOrderID, ports.ErrOrderNotFound)
	}
	delete(e.resting, exchangeOrderID)
	return nil
}

// GetBalance returns the account's simulated balance, granting the starting
// balance on first use.
func (e *Exchange) GetBalance(ctx context.Context, accountID string) (float64, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	bal, ok := e.balances[accountID]
	if !ok {
		bal = e.cfg.StartingBalance
		e.balances[accountID] = bal
	}
	return bal, nil
}

// Snapshot implements ports.MarketFeed from the simulated mark prices.
func (e *Exchange) Snapshot(ctx context.Context, symbol string) (*domain.MarketState, error) {
	e.mu.Lock()
	price, ok := e.marks[symbol]
	e.mu.Unlock()
	if !ok {
		return nil, fmt.Errorf("no mark price for %q: %w", symbol, ports.ErrExchangeUnavailable)
	}
	return &domain.MarketState{Symbol: symbol, LastPrice: price, UpdatedAt: time.Now().UTC()}, nil
}

// RestingOrders returns the number of parked stop/limit orders, for tests and
// operator visibility.
func (e *Exchange) RestingOrders() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.resting)
}
