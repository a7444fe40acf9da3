package domain

import "time"

// Signal is a directional trade recommendation produced by a strategy or an
// external signal source. It is a read-only input to the executor and is
// never persisted by the core.
type Signal struct {
	ID          string    // UUID, assigned by the producer
	AccountID   string    // Account the signal trades on
	BotID       string    // Originating bot, empty for shared/public signals
	StrategyTag string    // Producing strategy
	Symbol      string    // Trading symbol
	Exchanges   []string  // Venue preference; empty uses the executor's default list
	Side        OrderSide // BUY or SELL
	Confidence  float64   // 0-100
	EntryPrice  float64
	StopPrice   float64
	TargetPrice float64 // 0 when no take-profit is requested
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

// IsExpired reports whether the signal may no longer be acted upon.
func (s *Signal) IsExpired(now time.Time) bool {
	return !s.ExpiresAt.IsZero() && now.After(s.ExpiresAt)
}

// StopDistance is the absolute distance between entry and stop price.
func (s *Signal) StopDistance() float64 {
	d := s.EntryPrice - s.StopPrice
	if d < 0 {
		return -d
	}
	return d
}

// SignalExecution is the terminal record of one signal driven through the
// executor. Every signal produces exactly one, success or failure.
type SignalExecution struct {
	SignalID   string
	Status     ExecutionStatus
	Reason     Reason // Set on FAILED/CANCELLED outcomes
	OrderID    string // Entry order id, set once an order was built
	PositionID string // Set on EXECUTED entries
	Size       float64
	Exchange   string
	FinishedAt time.Time
}

// MarketState is a point-in-time market snapshot handed to strategies.
type MarketState struct {
	Symbol    string
	LastPrice float64
	UpdatedAt time.Time
}
