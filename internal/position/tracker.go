package position

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"tradeEngine/internal/domain"
	"tradeEngine/internal/ports"
)

// Tracker is the authoritative record of open positions per account. All
// mutations go through the tracker; closed positions are archived out of the
// open index and kept for querying realized results.
type Tracker struct {
	logger ports.Logger

	mu         sync.RWMutex
	open       map[string]*domain.Position // position id -> position
	bySymbol   map[string]string           // accountID+"/"+symbol -> position id
	archive    []*domain.Position
	maxArchive int
}

// NewTracker creates an empty position tracker.
func NewTracker(logger ports.Logger) (*Tracker, error) {
	if logger == nil {
		return nil, fmt.Errorf("logger is required for position tracker")
	}
	return &Tracker{
		logger:     logger,
		open:       make(map[string]*domain.Position),
		bySymbol:   make(map[string]string),
		maxArchive: 1000,
	}, nil
}

func symbolKey(accountID, symbol string) string {
	return accountID + "/" + symbol
}

// Open creates a new OPEN position from a confirmed entry fill.
func (t *Tracker) Open(ctx context.Context, order *domain.TradeOrder, fill *domain.Fill) (*domain.Position, error) {
	if order == nil || fill == nil {
		return nil, fmt.Errorf("order and fill are required to open a position")
	}
	pos := &domain.Position{
		ID:         uuid.NewString(),
		AccountID:  order.AccountID,
		BotID:      order.BotID,
		SignalID:   order.SignalID,
		Exchange:   order.Exchange,
		Symbol:     order.Symbol,
		Side:       order.Side,
		Quantity:   fill.Quantity,
		EntryPrice: fill.Price,
		OpenedAt:   fill.Timestamp,
		Status:     domain.StatusOpen,
	}
	if pos.Quantity == 0 {
		pos.Quantity = order.Quantity
	}
	if pos.OpenedAt.IsZero() {
		pos.OpenedAt = time.Now().UTC()
	}

	// The symbol slot is claimed under the same lock that checks it, so two
	// concurrent opens for one (account, symbol) cannot both succeed.
	key := symbolKey(pos.AccountID, pos.Symbol)
	t.mu.Lock()
	if _, occupied := t.bySymbol[key]; occupied {
		t.mu.Unlock()
		return nil, fmt.Errorf("open position for %s: %w", pos.Symbol, ports.ErrDuplicatePosition)
	}
	t.open[pos.ID] = pos
	t.bySymbol[key] = pos.ID
	t.mu.Unlock()

	t.logger.Info(ctx, "Position opened", map[string]interface{}{
		"positionID": pos.ID,
		"accountID":  pos.AccountID,
		"symbol":     pos.Symbol,
		"side":       string(pos.Side),
		"quantity":   pos.Quantity,
		"entryPrice": pos.EntryPrice,
	})
	return pos, nil
}

// AttachProtection links protective order ids to the position. Idempotent: a
// nil id leaves the existing link untouched, a non-nil id replaces the link
// of the same kind. Cancelling a replaced exchange order is the caller's
// responsibility via the gateway.
func (t *Tracker) AttachProtection(ctx context.Context, positionID string, stopOrderID, takeProfitOrderID *string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	pos, ok := t.open[positionID]
	if !ok {
		return fmt.Errorf("attach protection: %w", ports.ErrPositionNotFound)
	}
	if stopOrderID != nil {
		pos.StopLossOrderID = stopOrderID
	}
	if takeProfitOrderID != nil {
		pos.TakeProfitOrderID = takeProfitOrderID
	}
	t.logger.Debug(ctx, "Protective orders attached", map[string]interface{}{
		"positionID": positionID,
		"stopLoss":   strOrEmpty(pos.StopLossOrderID),
		"takeProfit": strOrEmpty(pos.TakeProfitOrderID),
	})
	return nil
}

// MarkClosing transitions the position to CLOSING while its exit order is in
// flight. Idempotent for positions already closing.
func (t *Tracker) MarkClosing(ctx context.Context, positionID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	pos, ok := t.open[positionID]
	if !ok {
		return fmt.Errorf("mark closing: %w", ports.ErrPositionNotFound)
	}
	pos.Status = domain.StatusClosing
	return nil
}

// RevertClosing returns a CLOSING position to OPEN after its exit order
// failed. The position keeps its protective orders.
func (t *Tracker) RevertClosing(ctx context.Context, positionID string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	pos, ok := t.open[positionID]
	if !ok {
		return fmt.Errorf("revert closing: %w", ports.ErrPositionNotFound)
	}
	pos.Status = domain.StatusOpen
	return nil
}

// Close finalizes the position from a confirmed exit fill and returns the
// realized P&L. The position moves to the archive and frees its symbol slot.
func (t *Tracker) Close(ctx context.Context, positionID string, closeFill *domain.Fill, reason domain.CloseReason) (float64, error) {
	if closeFill == nil {
		return 0, fmt.Errorf("close fill is required")
	}

	t.mu.Lock()
	pos, ok := t.open[positionID]
	if !ok {
		t.mu.Unlock()
		return 0, fmt.Errorf("close position: %w", ports.ErrPositionNotFound)
	}

	pnl := pos.RealizedPNL(closeFill.Price)
	pos.ExitPrice = closeFill.Price
	pos.ClosedAt = closeFill.Timestamp
	if pos.ClosedAt.IsZero() {
		pos.ClosedAt = time.Now().UTC()
	}
	pos.Status = domain.StatusClosed
	pos.PNL = pnl
	pos.CloseReason = reason

	delete(t.open, positionID)
	delete(t.bySymbol, symbolKey(pos.AccountID, pos.Symbol))
	t.archive = append(t.archive, pos)
	if len(t.archive) > t.maxArchive {
		t.archive = t.archive[len(t.archive)-t.maxArchive:]
	}
	t.mu.Unlock()

	t.logger.Info(ctx, "Position closed", map[string]interface{}{
		"positionID": positionID,
		"exitPrice":  closeFill.Price,
		"pnl":        pnl,
		"reason":     string(reason),
	})
	return pnl, nil
}

// FindOpenBySymbol returns the open position for (account, symbol), or nil.
// Used to enforce at most one open position per symbol per account.
func (t *Tracker) FindOpenBySymbol(accountID, symbol string) *domain.Position {
	t.mu.RLock()
	defer t.mu.RUnlock()
	id, ok := t.bySymbol[symbolKey(accountID, symbol)]
	if !ok {
		return nil
	}
	return t.open[id]
}

// FindByID returns an open or closing position by id, or nil.
func (t *Tracker) FindByID(positionID string) *domain.Position {
	t.mu.RLock()
	defer t.mu.RUnlock()
	return t.open[positionID]
}

// OpenCount returns the number of OPEN/CLOSING positions for the account.
// The risk ledger's openPositions counter must match this at all times.
func (t *Tracker) OpenCount(accountID string) int {
	t.mu.RLock()
	defer t.mu.RUnlock()
	n := 0
	for _, pos := range t.open {
		if pos.AccountID == accountID {
			n++
		}
	}
	return n
}

// OpenPositions returns a snapshot of all open positions for the account.
func (t *Tracker) OpenPositions(accountID string) []*domain.Position {
	t.mu.RLock()
	defer t.mu.RUnlock()
	out := make([]*domain.Position, 0)
	for _, pos := range t.open {
		if pos.AccountID == accountID {
			out = append(out, pos)
		}
	}
	return out
}

func strOrEmpty(s *string) string {
	if s == nil {
		return ""
	}
	return *s
}
