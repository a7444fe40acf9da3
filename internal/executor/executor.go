package executor

import (
	"context"
	"errors"
	"fmt"
	"math"
	"time"

	"tradeEngine/internal/domain"
	"tradeEngine/internal/ports"
	"tradeEngine/internal/position"
	"tradeEngine/internal/risk"
)

// RiskLedger is the slice of the risk ledger the executor consumes.
type RiskLedger interface {
	Reserve(ctx context.Context, accountID string, order *domain.TradeOrder, refPrice float64) risk.Decision
	ReleaseFailed(ctx context.Context, accountID string, notional float64)
	Release(ctx context.Context, accountID string, notional, realizedPNL float64)
}

// OrderGateway is the slice of the order gateway the executor consumes.
type OrderGateway interface {
	SelectVenue(preference []string, symbol string) (string, bool)
	Submit(ctx context.Context, order *domain.TradeOrder) (*domain.Submission, error)
	Cancel(ctx context.Context, exchange, exchangeOrderID string) error
	Connector(exchange string) (ports.ExchangeConnector, bool)
}

// Config holds the execution policy applied to every signal.
type Config struct {
	MinConfidence     float64       // Signals below this are rejected (default 70)
	RiskPerTrade      float64       // Fraction of account balance risked per trade
	MaxPositionSize   float64       // Hard cap on computed size
	MinPositionSize   float64       // Minimum viable unit; smaller sizes are rejected
	StopLossEnabled   bool          // Place a protective stop after entry
	TakeProfitEnabled bool          // Place a take-profit after entry
	MaxRetries        int           // Retry budget stamped on orders
	RetryDelay        time.Duration // Base backoff stamped on orders
	Exchanges         []string      // Fallback venue preference for signals that carry none
}

// Executor converts incoming signals into sized, risk-checked order plans and
// drives them through the gateway, keeping the position tracker and risk
// ledger reconciled on every outcome.
type Executor struct {
	cfg     Config
	logger  ports.Logger
	ledger  RiskLedger
	gateway OrderGateway
	tracker *position.Tracker
	trades  ports.TradeRecordRepository
	events  ports.EventPublisher
	now     func() time.Time
}

// New creates a signal executor.
func New(cfg Config, logger ports.Logger, ledger RiskLedger, gw OrderGateway, tracker *position.Tracker, trades ports.TradeRecordRepository, events ports.EventPublisher) (*Executor, error) {
	if logger == nil || ledger == nil || gw == nil || tracker == nil {
		return nil, fmt.Errorf("missing required dependencies for executor")
	}
	if cfg.MinConfidence <= 0 {
		cfg.MinConfidence = 70
	}
	if cfg.RiskPerTrade <= 0 || cfg.RiskPerTrade >= 1 {
		return nil, fmt.Errorf("RiskPerTrade must be between 0 and 1")
	}
	if cfg.MaxPositionSize <= 0 {
		return nil, fmt.Errorf("MaxPositionSize must be positive")
	}
	return &Executor{
		cfg:     cfg,
		logger:  logger,
		ledger:  ledger,
		gateway: gw,
		tracker: tracker,
		trades:  trades,
		events:  events,
		now:     time.Now,
	}, nil
}

// ExecuteSignal drives one signal to a terminal outcome. Every call produces
// exactly one SignalExecution record, success or failure; nothing fails
// silently.
func (e *Executor) ExecuteSignal(ctx context.Context, sig *domain.Signal) *domain.SignalExecution {
	op := "executeSignal"
	exec := &domain.SignalExecution{SignalID: sig.ID, Status: domain.ExecReceived}

	e.logger.Info(ctx, op+": Signal received", map[string]interface{}{
		"signalID":   sig.ID,
		"symbol":     sig.Symbol,
		"side":       string(sig.Side),
		"confidence": sig.Confidence,
	})

	// Validation failures are terminal and never retried.
	if sig.IsExpired(e.now()) {
		return e.fail(ctx, exec, sig, domain.ReasonSignalExpired)
	}
	if sig.Confidence < e.cfg.MinConfidence {
		return e.fail(ctx, exec, sig, domain.ReasonLowConfidence)
	}
	if existing := e.tracker.FindOpenBySymbol(sig.AccountID, sig.Symbol); existing != nil {
		return e.fail(ctx, exec, sig, domain.ReasonDuplicatePosition)
	}
	stopDistance := sig.StopDistance()
	if stopDistance == 0 {
		return e.fail(ctx, exec, sig, domain.ReasonInvalidStop)
	}

	// Venue selection is deterministic: first preferred exchange that
	// supports the symbol wins. Bot-sourced signals carry their bot's
	// preference list; external signals fall back to the configured default.
	// Needed up front for the balance lookup.
	prefs := sig.Exchanges
	if len(prefs) == 0 {
		prefs = e.cfg.Exchanges
	}
	venue, ok := e.gateway.SelectVenue(prefs, sig.Symbol)
	if !ok {
		return e.fail(ctx, exec, sig, domain.ReasonNoVenue)
	}
	exec.Exchange = venue
	conn, _ := e.gateway.Connector(venue)

	balance, err := conn.GetBalance(ctx, sig.AccountID)
	if err != nil {
		e.logger.Error(ctx, err, op+": Failed to fetch account balance", map[string]interface{}{"signalID": sig.ID})
		return e.fail(ctx, exec, sig, domain.ReasonOrderRejected)
	}

	size := e.positionSize(balance, stopDistance)
	if size < e.cfg.MinPositionSize {
		return e.fail(ctx, exec, sig, domain.ReasonSizeTooSmall)
	}
	exec.Size = size

	entry := &domain.TradeOrder{
		ID:          domain.NewOrderID(),
		AccountID:   sig.AccountID,
		BotID:       sig.BotID,
		SignalID:    sig.ID,
		Exchange:    venue,
		Symbol:      sig.Symbol,
		Side:        sig.Side,
		Kind:        domain.KindMarket,
		Quantity:    size,
		StrategyTag: sig.StrategyTag,
		MaxRetries:  e.cfg.MaxRetries,
		RetryDelay:  e.cfg.RetryDelay,
		CreatedAt:   e.now(),
	}
	exec.OrderID = entry.ID

	decision := e.ledger.Reserve(ctx, sig.AccountID, entry, sig.EntryPrice)
	if !decision.Accepted {
		return e.fail(ctx, exec, sig, decision.Reason)
	}
	exec.Status = domain.ExecRiskChecked
	notional := entry.Notional(sig.EntryPrice)

	exec.Status = domain.ExecSized
	e.logger.Info(ctx, op+": Order plan sized", map[string]interface{}{
		"signalID": sig.ID,
		"size":     size,
		"notional": notional,
		"venue":    venue,
	})

	exec.Status = domain.ExecSubmitted
	sub, err := e.gateway.Submit(ctx, entry)
	if err != nil {
		// Undo the provisional reservation; the entry never filled.
		e.ledger.ReleaseFailed(ctx, sig.AccountID, notional)
		return e.fail(ctx, exec, sig, submitFailureReason(sub, err))
	}
	fillRes := sub.Final()

	// Stale-result check: if the caller stopped while the submission was in
	// flight, the fill is not acted upon. The reservation is released and the
	// outcome surfaced for operators instead of mutating tracker state.
	if ctx.Err() != nil {
		e.ledger.ReleaseFailed(ctx, sig.AccountID, notional)
		exec.Status = domain.ExecCancelled
		exec.Reason = domain.ReasonStaleResult
		exec.FinishedAt = e.now()
		e.logger.Warn(ctx, op+": Fill arrived after cancellation, not acted upon", map[string]interface{}{
			"signalID":        sig.ID,
			"exchangeOrderID": fillRes.ExchangeOrderID,
		})
		e.publish(ctx, domain.EventTradeStale, sig, map[string]interface{}{
			"orderID":         entry.ID,
			"exchangeOrderID": fillRes.ExchangeOrderID,
		})
		return exec
	}

	fill := &domain.Fill{
		ExchangeOrderID: fillRes.ExchangeOrderID,
		Price:           fillRes.FilledPrice,
		Quantity:        fillRes.FilledQuantity,
		Timestamp:       fillRes.Timestamp,
	}
	pos, err := e.tracker.Open(ctx, entry, fill)
	if err != nil {
		e.ledger.ReleaseFailed(ctx, sig.AccountID, notional)
		e.logger.Error(ctx, err, op+": Failed to track filled position", map[string]interface{}{"signalID": sig.ID})
		if errors.Is(err, ports.ErrDuplicatePosition) {
			return e.fail(ctx, exec, sig, domain.ReasonDuplicatePosition)
		}
		return e.fail(ctx, exec, sig, domain.ReasonOrderRejected)
	}
	exec.PositionID = pos.ID

	// Protective orders are best-effort: a failure leaves the entry standing
	// and is surfaced as a degraded-position warning, never a rollback.
	e.placeProtection(ctx, sig, pos)

	exec.Status = domain.ExecExecuted
	exec.FinishedAt = e.now()
	e.saveRecord(ctx, &domain.TradeRecord{
		AccountID:  sig.AccountID,
		BotID:      sig.BotID,
		PositionID: pos.ID,
		Symbol:     sig.Symbol,
		Side:       sig.Side,
		Quantity:   pos.Quantity,
		EntryPrice: pos.EntryPrice,
		ExecutedAt: e.now(),
	})
	e.publish(ctx, domain.EventTradeExecuted, sig, map[string]interface{}{
		"orderID":    entry.ID,
		"positionID": pos.ID,
		"size":       pos.Quantity,
		"entryPrice": pos.EntryPrice,
		"venue":      venue,
	})
	e.logger.Info(ctx, op+": Signal executed", map[string]interface{}{
		"signalID":   sig.ID,
		"positionID": pos.ID,
	})
	return exec
}

// positionSize computes the risk-based size: the quantity whose loss at the
// stop equals balance * riskPerTrade, capped at the configured maximum.
func (e *Executor) positionSize(balance, stopDistance float64) float64 {
	riskAmount := balance * e.cfg.RiskPerTrade
	return math.Min(riskAmount/stopDistance, e.cfg.MaxPositionSize)
}

// placeProtection submits the stop-loss and take-profit orders for a freshly
// opened position.
func (e *Executor) placeProtection(ctx context.Context, sig *domain.Signal, pos *domain.Position) {
	op := "placeProtection"
	if e.cfg.StopLossEnabled && sig.StopPrice > 0 {
		stop := &domain.TradeOrder{
			ID:          domain.NewOrderID(),
			AccountID:   pos.AccountID,
			BotID:       pos.BotID,
			SignalID:    sig.ID,
			Exchange:    pos.Exchange,
			Symbol:      pos.Symbol,
			Side:        pos.Side.Opposite(),
			Kind:        domain.KindStop,
			Quantity:    pos.Quantity,
			StopPrice:   sig.StopPrice,
			StrategyTag: sig.StrategyTag,
			Reduce:      true,
			MaxRetries:  e.cfg.MaxRetries,
			RetryDelay:  e.cfg.RetryDelay,
			CreatedAt:   e.now(),
		}
		if sub, err := e.gateway.Submit(ctx, stop); err != nil {
			e.logger.Warn(ctx, op+": Stop loss placement failed, position is unprotected", map[string]interface{}{
				"positionID": pos.ID,
				"error":      err.Error(),
			})
			e.publish(ctx, domain.EventPositionUnprotected, sig, map[string]interface{}{
				"positionID": pos.ID,
				"kind":       "stop_loss",
			})
		} else {
			id := sub.Final().ExchangeOrderID
			_ = e.tracker.AttachProtection(ctx, pos.ID, &id, nil)
		}
	}
	if e.cfg.TakeProfitEnabled && sig.TargetPrice > 0 {
		tp := &domain.TradeOrder{
			ID:          domain.NewOrderID(),
			AccountID:   pos.AccountID,
			BotID:       pos.BotID,
			SignalID:    sig.ID,
			Exchange:    pos.Exchange,
			Symbol:      pos.Symbol,
			Side:        pos.Side.Opposite(),
			Kind:        domain.KindLimit,
			Quantity:    pos.Quantity,
			Price:       sig.TargetPrice,
			StrategyTag: sig.StrategyTag,
			Reduce:      true,
			MaxRetries:  e.cfg.MaxRetries,
			RetryDelay:  e.cfg.RetryDelay,
			CreatedAt:   e.now(),
		}
		if sub, err := e.gateway.Submit(ctx, tp); err != nil {
			e.logger.Warn(ctx, op+": Take profit placement failed", map[string]interface{}{
				"positionID": pos.ID,
				"error":      err.Error(),
			})
			e.publish(ctx, domain.EventPositionUnprotected, sig, map[string]interface{}{
				"positionID": pos.ID,
				"kind":       "take_profit",
			})
		} else {
			id := sub.Final().ExchangeOrderID
			_ = e.tracker.AttachProtection(ctx, pos.ID, nil, &id)
		}
	}
}

// ClosePosition flattens an open position with an opposite-side market order,
// reconciles the tracker and the risk ledger, and cancels any protective
// orders left on the exchange.
func (e *Executor) ClosePosition(ctx context.Context, positionID string, reason domain.CloseReason) (float64, error) {
	op := "closePosition"
	pos := e.tracker.FindByID(positionID)
	if pos == nil {
		return 0, fmt.Errorf("%s: %w", op, ports.ErrPositionNotFound)
	}
	if !pos.IsOpen() {
		return 0, fmt.Errorf("%s: %w", op, ports.ErrPositionNotOpen)
	}

	if err := e.tracker.MarkClosing(ctx, positionID); err != nil {
		return 0, err
	}

	exit := &domain.TradeOrder{
		ID:         domain.NewOrderID(),
		AccountID:  pos.AccountID,
		BotID:      pos.BotID,
		SignalID:   pos.SignalID,
		Exchange:   pos.Exchange,
		Symbol:     pos.Symbol,
		Side:       pos.Side.Opposite(),
		Kind:       domain.KindMarket,
		Quantity:   pos.Quantity,
		Reduce:     true,
		MaxRetries: e.cfg.MaxRetries,
		RetryDelay: e.cfg.RetryDelay,
		CreatedAt:  e.now(),
	}

	sub, err := e.gateway.Submit(ctx, exit)
	if err != nil {
		// The position remains open; protective orders stay armed.
		if revertErr := e.tracker.RevertClosing(ctx, positionID); revertErr != nil {
			e.logger.Error(ctx, revertErr, op+": Failed to revert closing state", map[string]interface{}{"positionID": positionID})
		}
		return 0, fmt.Errorf("%s: exit order failed: %w", op, err)
	}
	fillRes := sub.Final()

	// Orphaned protective orders are cancelled so no stop fires against a
	// position that no longer exists.
	e.cancelProtectionWarn(ctx, pos)

	pnl, err := e.tracker.Close(ctx, positionID, &domain.Fill{
		ExchangeOrderID: fillRes.ExchangeOrderID,
		Price:           fillRes.FilledPrice,
		Quantity:        fillRes.FilledQuantity,
		Timestamp:       fillRes.Timestamp,
	}, reason)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}

	e.ledger.Release(ctx, pos.AccountID, pos.Quantity*pos.EntryPrice, pnl)
	e.saveRecord(ctx, &domain.TradeRecord{
		AccountID:   pos.AccountID,
		BotID:       pos.BotID,
		PositionID:  pos.ID,
		Symbol:      pos.Symbol,
		Side:        pos.Side,
		Quantity:    pos.Quantity,
		EntryPrice:  pos.EntryPrice,
		ExitPrice:   fillRes.FilledPrice,
		PNL:         pnl,
		CloseReason: reason,
		ExecutedAt:  e.now(),
	})
	e.publish(ctx, domain.EventTradeClosed, &domain.Signal{ID: pos.SignalID, AccountID: pos.AccountID, BotID: pos.BotID}, map[string]interface{}{
		"positionID": pos.ID,
		"pnl":        pnl,
		"reason":     string(reason),
	})
	return pnl, nil
}

// cancelProtectionWarn cancels linked protective orders, logging warnings
// instead of failing the close.
func (e *Executor) cancelProtectionWarn(ctx context.Context, pos *domain.Position) {
	for kind, id := range map[string]*string{"SL": pos.StopLossOrderID, "TP": pos.TakeProfitOrderID} {
		if id == nil {
			continue
		}
		if err := e.gateway.Cancel(ctx, pos.Exchange, *id); err != nil {
			if errors.Is(err, ports.ErrOrderNotFound) {
				continue // Already filled or cancelled.
			}
			e.logger.Warn(ctx, "Failed to cancel protective order", map[string]interface{}{
				"positionID": pos.ID,
				"kind":       kind,
				"orderID":    *id,
				"error":      err.Error(),
			})
		}
	}
}

// fail finalizes a terminal failure with its enumerated reason.
func (e *Executor) fail(ctx context.Context, exec *domain.SignalExecution, sig *domain.Signal, reason domain.Reason) *domain.SignalExecution {
	exec.Status = domain.ExecFailed
	exec.Reason = reason
	exec.FinishedAt = e.now()
	e.logger.Warn(ctx, "Signal execution failed", map[string]interface{}{
		"signalID": sig.ID,
		"symbol":   sig.Symbol,
		"reason":   string(reason),
	})
	e.publish(ctx, domain.EventTradeFailed, sig, map[string]interface{}{
		"reason":  string(reason),
		"orderID": exec.OrderID,
	})
	return exec
}

// submitFailureReason maps a gateway error to the enumerated failure reason.
func submitFailureReason(sub *domain.Submission, err error) domain.Reason {
	if errors.Is(err, ports.ErrHalted) {
		return domain.ReasonHalted
	}
	if final := sub.Final(); final != nil && final.ErrClass == domain.ErrClassTransient {
		return domain.ReasonRetriesExhausted
	}
	return domain.ReasonOrderRejected
}

func (e *Executor) saveRecord(ctx context.Context, rec *domain.TradeRecord) {
	if e.trades == nil {
		return
	}
	if _, err := e.trades.SaveTradeRecord(ctx, rec); err != nil {
		// Persistence is fire-and-forget; execution already succeeded.
		e.logger.Error(ctx, err, "Failed to persist trade record", map[string]interface{}{
			"positionID": rec.PositionID,
		})
	}
}

func (e *Executor) publish(ctx context.Context, typ domain.EventType, sig *domain.Signal, fields map[string]interface{}) {
	if e.events == nil {
		return
	}
	fields["signalID"] = sig.ID
	e.events.Publish(ctx, domain.Event{
		Type:      typ,
		AccountID: sig.AccountID,
		BotID:     sig.BotID,
		Time:      e.now(),
		Fields:    fields,
	})
}
