package domain

import "time"

// Position represents an open, tracked exposure resulting from an executed
// entry order. Positions are owned exclusively by the position tracker:
// created on a confirmed entry fill, mutated only by close operations,
// archived once closed.
type Position struct {
	ID          string    // Internal position id (UUID)
	AccountID   string    // Owning account
	BotID       string    // Bot that opened the position, empty for external signals
	SignalID    string    // Signal that produced the entry
	Exchange    string    // Exchange the position lives on
	Symbol      string    // Trading symbol
	Side        OrderSide // Direction of the exposure
	Quantity    float64   // Size of the position
	EntryPrice  float64   // Average entry fill price
	ExitPrice   float64   // Average exit fill price (0 while open)
	OpenedAt    time.Time
	ClosedAt    time.Time // Zero value while open
	Status      PositionStatus
	PNL         float64 // Realized P&L, computed on close
	CloseReason CloseReason

	// At most one active protective order of each kind at a time.
	StopLossOrderID   *string
	TakeProfitOrderID *string
}

// IsOpen reports whether the position still carries exposure.
func (p *Position) IsOpen() bool {
	return p.Status == StatusOpen || p.Status == StatusClosing
}

// RealizedPNL computes the realized profit for a close at the given price:
// (close - entry) * quantity, negated for short positions.
func (p *Position) RealizedPNL(closePrice float64) float64 {
	return (closePrice - p.EntryPrice) * p.Quantity * p.Side.Sign()
}
