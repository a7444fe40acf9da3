package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"time"

	"tradeEngine/internal/domain"
	"tradeEngine/internal/ports"
)

const (
	defaultAttemptTimeout = 15 * time.Second
	defaultMaxRetries     = 3
	defaultRetryDelay     = time.Second
)

// Config holds configuration for the order gateway.
type Config struct {
	Connectors     []ports.ExchangeConnector
	AttemptTimeout time.Duration // Hard timeout per submission attempt
	MaxRetries     int           // Default retry budget for orders that set none
	RetryDelay     time.Duration // Default base backoff delay
	Logger         ports.Logger
	Events         ports.EventPublisher
}

// Gateway drives orders to exchange connectors with bounded retries.
// Transient failures are retried with linear backoff up to the order's
// budget; permanent failures surface immediately. A gateway-wide halt flag
// fails all queued and future submissions fast, including retry loops that
// are sleeping between attempts.
type Gateway struct {
	cfg        Config
	connectors map[string]ports.ExchangeConnector
	halted     atomic.Bool
	haltCh     atomic.Pointer[chan struct{}] // Closed on halt; wakes sleeping retry loops
}

// New creates an order gateway over the given connectors.
func New(cfg Config) (*Gateway, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for order gateway")
	}
	if len(cfg.Connectors) == 0 {
		return nil, fmt.Errorf("at least one exchange connector is required")
	}
	if cfg.AttemptTimeout <= 0 {
		cfg.AttemptTimeout = defaultAttemptTimeout
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.RetryDelay <= 0 {
		cfg.RetryDelay = defaultRetryDelay
	}
	conns := make(map[string]ports.ExchangeConnector, len(cfg.Connectors))
	for _, c := range cfg.Connectors {
		conns[c.Name()] = c
	}
	g := &Gateway{cfg: cfg, connectors: conns}
	ch := make(chan struct{})
	g.haltCh.Store(&ch)
	return g, nil
}

// Connector returns the connector registered for the exchange, if any.
func (g *Gateway) Connector(exchange string) (ports.ExchangeConnector, bool) {
	c, ok := g.connectors[exchange]
	return c, ok
}

// SelectVenue picks the execution venue for a symbol: the first entry of the
// preference list whose connector supports the symbol. Configuration order is
// the documented tie-break; nothing is optimized for latency or fees.
func (g *Gateway) SelectVenue(preference []string, symbol string) (string, bool) {
	for _, name := range preference {
		c, ok := g.connectors[name]
		if ok && c.SupportsSymbol(symbol) {
			return name, true
		}
	}
	return "", false
}

// Submit drives one order through its connector, consuming the order's retry
// budget on transient failures. The returned submission always carries the
// full attempt history; err is non-nil on any terminal failure.
func (g *Gateway) Submit(ctx context.Context, order *domain.TradeOrder) (*domain.Submission, error) {
	sub := &domain.Submission{Order: order}

	conn, ok := g.connectors[order.Exchange]
	if !ok {
		return sub, fmt.Errorf("no connector for exchange %q: %w", order.Exchange, ports.ErrInvalidSymbol)
	}

	maxAttempts := order.MaxRetries
	if maxAttempts <= 0 {
		maxAttempts = g.cfg.MaxRetries
	}
	retryDelay := order.RetryDelay
	if retryDelay <= 0 {
		retryDelay = g.cfg.RetryDelay
	}

	for attempt := 1; attempt <= maxAttempts; attempt++ {
		// The halt flag is consulted before every attempt so a halt issued
		// while a previous attempt was sleeping takes effect immediately.
		if g.halted.Load() {
			res := g.record(order, attempt, nil, domain.ErrClassHalted, ports.ErrHalted)
			sub.Attempts = append(sub.Attempts, res)
			return sub, ports.ErrHalted
		}
		if err := ctx.Err(); err != nil {
			res := g.record(order, attempt, nil, domain.ErrClassCancelled, ports.ErrContextCanceled)
			sub.Attempts = append(sub.Attempts, res)
			return sub, fmt.Errorf("submission aborted: %w", ports.ErrContextCanceled)
		}

		fill, err := g.attempt(ctx, conn, order)
		if err == nil {
			res := g.record(order, attempt, fill, domain.ErrClassNone, nil)
			sub.Attempts = append(sub.Attempts, res)
			return sub, nil
		}

		if !ports.IsTransient(err) {
			res := g.record(order, attempt, nil, domain.ErrClassPermanent, err)
			sub.Attempts = append(sub.Attempts, res)
			return sub, fmt.Errorf("order %s rejected: %w", order.ID, err)
		}

		res := g.record(order, attempt, nil, domain.ErrClassTransient, err)
		sub.Attempts = append(sub.Attempts, res)

		if attempt == maxAttempts {
			return sub, fmt.Errorf("order %s failed after %d attempts: %w", order.ID, attempt, err)
		}

		// Linear backoff: attempt n waits retryDelay * n before the next try.
		if err := g.sleep(ctx, retryDelay*time.Duration(attempt)); err != nil {
			return sub, err
		}
	}
	return sub, fmt.Errorf("order %s exhausted retry budget", order.ID)
}

// attempt runs one submission against the connector under the hard timeout.
// A timeout counts as a transient failure and consumes a retry attempt.
func (g *Gateway) attempt(ctx context.Context, conn ports.ExchangeConnector, order *domain.TradeOrder) (*domain.Fill, error) {
	attemptCtx, cancel := context.WithTimeout(ctx, g.cfg.AttemptTimeout)
	defer cancel()

	fill, err := conn.PlaceOrder(attemptCtx, order)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) || errors.Is(attemptCtx.Err(), context.DeadlineExceeded) {
			return nil, fmt.Errorf("attempt exceeded %s: %w", g.cfg.AttemptTimeout, ports.ErrTimeout)
		}
		return nil, err
	}
	return fill, nil
}

// sleep waits for the backoff delay, waking early on halt or cancellation.
func (g *Gateway) sleep(ctx context.Context, d time.Duration) error {
	haltCh := *g.haltCh.Load()
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-haltCh:
		// The next loop iteration observes the flag and records HALTED.
		return nil
	case <-ctx.Done():
		return fmt.Errorf("backoff interrupted: %w", ports.ErrContextCanceled)
	}
}

// record builds one attempt result and logs it.
func (g *Gateway) record(order *domain.TradeOrder, attempt int, fill *domain.Fill, class domain.ErrorClass, err error) *domain.OrderResult {
	res := &domain.OrderResult{
		OrderID:   order.ID,
		Attempt:   attempt,
		ErrClass:  class,
		Timestamp: time.Now().UTC(),
	}
	if fill != nil {
		res.Success = true
		res.ExchangeOrderID = fill.ExchangeOrderID
		res.FilledPrice = fill.Price
		res.FilledQuantity = fill.Quantity
		g.cfg.Logger.Info(context.Background(), "Order submitted", map[string]interface{}{
			"orderID":         order.ID,
			"exchange":        order.Exchange,
			"symbol":          order.Symbol,
			"attempt":         attempt,
			"exchangeOrderID": fill.ExchangeOrderID,
			"filledPrice":     fill.Price,
		})
		return res
	}
	res.ErrText = err.Error()
	g.cfg.Logger.Warn(context.Background(), "Order attempt failed", map[string]interface{}{
		"orderID":  order.ID,
		"exchange": order.Exchange,
		"attempt":  attempt,
		"class":    string(class),
		"error":    err.Error(),
	})
	return res
}

// Cancel cancels an open order on the given exchange.
func (g *Gateway) Cancel(ctx context.Context, exchange, exchangeOrderID string) error {
	conn, ok := g.connectors[exchange]
	if !ok {
		return fmt.Errorf("no connector for exchange %q", exchange)
	}
	cancelCtx, cancel := context.WithTimeout(ctx, g.cfg.AttemptTimeout)
	defer cancel()
	if err := conn.CancelOrder(cancelCtx, exchangeOrderID); err != nil {
		return fmt.Errorf("cancel of %s on %s failed: %w", exchangeOrderID, exchange, err)
	}
	return nil
}

// EmergencyHalt flips the gateway-wide halt flag. All in-flight and future
// submissions fail fast with ErrHalted; open positions and their protective
// orders are left untouched.
func (g *Gateway) EmergencyHalt(ctx context.Context) {
	if g.halted.Swap(true) {
		return // Already halted.
	}
	close(*g.haltCh.Load())
	g.cfg.Logger.Warn(ctx, "Order gateway halted; all submissions will fail fast")
	if g.cfg.Events != nil {
		g.cfg.Events.Publish(ctx, domain.Event{Type: domain.EventGatewayHalted, Time: time.Now().UTC()})
	}
}

// Resume clears the halt flag.
func (g *Gateway) Resume(ctx context.Context) {
	if !g.halted.Swap(false) {
		return
	}
	ch := make(chan struct{})
	g.haltCh.Store(&ch)
	g.cfg.Logger.Info(ctx, "Order gateway resumed")
	if g.cfg.Events != nil {
		g.cfg.Events.Publish(ctx, domain.Event{Type: domain.EventGatewayResumed, Time: time.Now().UTC()})
	}
}

// Halted reports whether the emergency halt is in effect.
func (g *Gateway) Halted() bool {
	return g.halted.Load()
}
