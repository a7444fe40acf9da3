package domain

import "time"

// BotConfig is the static configuration of one trading bot.
type BotConfig struct {
	BotID      string
	AccountID  string
	StrategyID string        // Key into the strategy registry
	Symbol     string        // Symbol the bot trades
	Exchanges  []string      // Venue preference list, first supporting match wins
	Interval   time.Duration // Tick interval; 0 means the strategy-category default
}

// BotMetrics is a snapshot of a runner's activity counters.
type BotMetrics struct {
	TradeCount  int       // Executed entries since start
	FailedCount int       // Terminal failures since start
	LastTradeAt time.Time // Zero value until the first executed trade
	LastTickAt  time.Time
}

// TradeRecord is the persisted record of one executed entry or close.
// Persistence is fire-and-forget from the core's perspective.
type TradeRecord struct {
	ID          int64
	AccountID   string
	BotID       string
	PositionID  string
	Symbol      string
	Side        OrderSide
	Quantity    float64
	EntryPrice  float64
	ExitPrice   float64 // 0 for entry records
	PNL         float64 // 0 until close
	CloseReason CloseReason
	ExecutedAt  time.Time
}
