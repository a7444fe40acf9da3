package risk

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tradeEngine/internal/domain"
	"tradeEngine/internal/ports"
)

// Limits holds the per-account risk ceilings enforced by the ledger.
type Limits struct {
	MaxDailyLoss           float64 // Maximum realized loss per day (positive number)
	MaxConcurrentPositions int     // Maximum simultaneously open positions
	MaxOrderValue          float64 // Maximum notional value of a single order
}

// Config holds configuration for the risk ledger.
type Config struct {
	Limits   Limits
	ResetUTC bool           // Reset daily counters at UTC midnight instead of local midnight
	Location *time.Location // Account-local timezone; defaults to time.Local
	Logger   ports.Logger
	Events   ports.EventPublisher
	Now      func() time.Time // Injectable clock for tests; defaults to time.Now
}

// Decision is the outcome of a reservation request.
type Decision struct {
	Accepted bool
	Reason   domain.Reason // Set when rejected
}

// accountState carries one account's mutable risk counters. The mutex
// serializes reserve/release pairs so the check-then-act on openPositions is
// atomic per account.
type accountState struct {
	mu            sync.Mutex
	dailyLoss     float64
	openPositions int
	notional      float64
	lastReset     time.Time
}

// Ledger tracks per-account risk budgets and accepts or rejects proposed
// trades. State is keyed by account id; accounts never share counters.
type Ledger struct {
	cfg Config

	mu       sync.Mutex
	accounts map[string]*accountState
}

// NewLedger creates a new risk ledger.
func NewLedger(cfg Config) (*Ledger, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for risk ledger")
	}
	if cfg.Limits.MaxDailyLoss <= 0 {
		return nil, fmt.Errorf("MaxDailyLoss must be positive")
	}
	if cfg.Limits.MaxConcurrentPositions <= 0 {
		return nil, fmt.Errorf("MaxConcurrentPositions must be positive")
	}
	if cfg.Limits.MaxOrderValue <= 0 {
		return nil, fmt.Errorf("MaxOrderValue must be positive")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	if cfg.Location == nil {
		cfg.Location = time.Local
	}
	return &Ledger{
		cfg:      cfg,
		accounts: make(map[string]*accountState),
	}, nil
}

// account returns the state for an account, creating it on first use.
func (l *Ledger) account(accountID string) *accountState {
	l.mu.Lock()
	defer l.mu.Unlock()
	st, ok := l.accounts[accountID]
	if !ok {
		st = &accountState{lastReset: l.cfg.Now()}
		l.accounts[accountID] = st
	}
	return st
}

// dayStart returns the start of the configured trading day for t.
func (l *Ledger) dayStart(t time.Time) time.Time {
	loc := l.cfg.Location
	if l.cfg.ResetUTC {
		loc = time.UTC
	}
	t = t.In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc)
}

// rollDayLocked zeroes the daily loss if a daily boundary has passed.
// Caller must hold st.mu.
func (l *Ledger) rollDayLocked(st *accountState) {
	now := l.cfg.Now()
	if st.lastReset.Before(l.dayStart(now)) {
		st.dailyLoss = 0
		st.lastReset = now
	}
}

// Reserve checks the proposed order against the account's risk budget and, on
// acceptance, provisionally counts the position as open. The caller must undo
// the reservation with ReleaseFailed if the order never fills.
// The checks and the increment happen under one per-account lock so two
// concurrent signals cannot both pass the openPositions check.
func (l *Ledger) Reserve(ctx context.Context, accountID string, order *domain.TradeOrder, refPrice float64) Decision {
	st := l.account(accountID)
	st.mu.Lock()
	defer st.mu.Unlock()

	l.rollDayLocked(st)

	notional := order.Notional(refPrice)
	if notional > l.cfg.Limits.MaxOrderValue {
		return l.reject(ctx, accountID, order, domain.ReasonOrderTooLarge, notional)
	}
	if st.openPositions >= l.cfg.Limits.MaxConcurrentPositions {
		return l.reject(ctx, accountID, order, domain.ReasonMaxPositionsExceeded, notional)
	}
	if st.dailyLoss >= l.cfg.Limits.MaxDailyLoss {
		return l.reject(ctx, accountID, order, domain.ReasonDailyLossExceeded, notional)
	}

	st.openPositions++
	st.notional += notional
	l.cfg.Logger.Debug(ctx, "Risk reservation accepted", map[string]interface{}{
		"accountID":     accountID,
		"orderID":       order.ID,
		"notional":      notional,
		"openPositions": st.openPositions,
	})
	return Decision{Accepted: true}
}

// reject logs and publishes a rejection. Caller must hold st.mu.
func (l *Ledger) reject(ctx context.Context, accountID string, order *domain.TradeOrder, reason domain.Reason, notional float64) Decision {
	l.cfg.Logger.Warn(ctx, "Risk reservation rejected", map[string]interface{}{
		"accountID": accountID,
		"orderID":   order.ID,
		"reason":    string(reason),
		"notional":  notional,
	})
	if l.cfg.Events != nil {
		l.cfg.Events.Publish(ctx, domain.Event{
			Type:      domain.EventRiskRejected,
			AccountID: accountID,
			BotID:     order.BotID,
			Time:      l.cfg.Now(),
			Fields: map[string]interface{}{
				"orderID": order.ID,
				"symbol":  order.Symbol,
				"reason":  string(reason),
			},
		})
	}
	return Decision{Accepted: false, Reason: reason}
}

// ReleaseFailed undoes a provisional reservation after a failed execution.
// No P&L is booked.
func (l *Ledger) ReleaseFailed(ctx context.Context, accountID string, notional float64) {
	st := l.account(accountID)
	st.mu.Lock()
	defer st.mu.Unlock()

	if st.openPositions > 0 {
		st.openPositions--
	}
	st.notional -= notional
	if st.notional < 0 {
		st.notional = 0
	}
	l.cfg.Logger.Debug(ctx, "Risk reservation released after failure", map[string]interface{}{
		"accountID":     accountID,
		"openPositions": st.openPositions,
	})
}

// Release frees the budget held by a closed position and books its realized
// P&L. Losses count against the daily loss ceiling; profits do not reduce it.
func (l *Ledger) Release(ctx context.Context, accountID string, notional, realizedPNL float64) {
	st := l.account(accountID)
	st.mu.Lock()
	defer st.mu.Unlock()

	l.rollDayLocked(st)

	if st.openPositions > 0 {
		st.openPositions--
	}
	st.notional -= notional
	if st.notional < 0 {
		st.notional = 0
	}
	if realizedPNL < 0 {
		st.dailyLoss += -realizedPNL
	}
	l.cfg.Logger.Info(ctx, "Risk budget released", map[string]interface{}{
		"accountID":     accountID,
		"realizedPNL":   realizedPNL,
		"dailyLoss":     st.dailyLoss,
		"openPositions": st.openPositions,
	})
}

// ResetDaily zeroes the account's daily loss counter. Idempotent: calling it
// repeatedly within the same day has no further effect.
func (l *Ledger) ResetDaily(ctx context.Context, accountID string) {
	st := l.account(accountID)
	st.mu.Lock()
	defer st.mu.Unlock()

	st.dailyLoss = 0
	st.lastReset = l.cfg.Now()
	l.cfg.Logger.Info(ctx, "Daily risk counters reset", map[string]interface{}{"accountID": accountID})
}

// OpenPositions returns the current open-position count for an account.
func (l *Ledger) OpenPositions(accountID string) int {
	st := l.account(accountID)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.openPositions
}

// DailyLoss returns the realized loss booked against today's budget.
func (l *Ledger) DailyLoss(accountID string) float64 {
	st := l.account(accountID)
	st.mu.Lock()
	defer st.mu.Unlock()
	return st.dailyLoss
}
