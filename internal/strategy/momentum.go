package strategy

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"tradeEngine/internal/domain"
	"tradeEngine/internal/ports"
)

// MomentumConfig tunes the built-in momentum strategy.
type MomentumConfig struct {
	EntryThreshold float64       // Fractional move between ticks that triggers an entry, e.g. 0.002
	StopPercent    float64       // Stop distance below entry, e.g. 0.01
	TargetPercent  float64       // Take-profit distance above entry, e.g. 0.02
	SignalTTL      time.Duration // Expiry stamped on produced signals
}

// Momentum is a minimal built-in strategy: it buys when the price moved up by
// more than the threshold since the previous tick. It exists so the engine
// runs end-to-end against the paper venue; production deployments plug richer
// strategies into the registry.
type Momentum struct {
	cfg MomentumConfig

	mu   sync.Mutex
	last map[string]float64 // symbol -> previous tick price
}

var _ ports.Strategy = (*Momentum)(nil)

// NewMomentum creates the momentum strategy with sane defaults for zero values.
func NewMomentum(cfg MomentumConfig) *Momentum {
	if cfg.EntryThreshold <= 0 {
		cfg.EntryThreshold = 0.002
	}
	if cfg.StopPercent <= 0 {
		cfg.StopPercent = 0.01
	}
	if cfg.TargetPercent <= 0 {
		cfg.TargetPercent = 0.02
	}
	if cfg.SignalTTL <= 0 {
		cfg.SignalTTL = time.Minute
	}
	return &Momentum{cfg: cfg, last: make(map[string]float64)}
}

// NextSignal returns a BUY signal when the upward move between ticks exceeds
// the threshold, nil otherwise.
func (m *Momentum) NextSignal(ctx context.Context, cfg domain.BotConfig, market *domain.MarketState) (*domain.Signal, error) {
	if market == nil || market.LastPrice <= 0 {
		return nil, nil
	}

	m.mu.Lock()
	prev, seen := m.last[market.Symbol]
	m.last[market.Symbol] = market.LastPrice
	m.mu.Unlock()

	if !seen || prev <= 0 {
		return nil, nil
	}
	move := (market.LastPrice - prev) / prev
	if move < m.cfg.EntryThreshold {
		return nil, nil
	}

	// Confidence starts at 70 for a move right at the threshold and grows
	// with the overshoot, reaching the cap at five times the threshold.
	confidence := 70 + (move/m.cfg.EntryThreshold-1)*7.5
	if confidence > 100 {
		confidence = 100
	}

	now := time.Now().UTC()
	return &domain.Signal{
		ID:          uuid.NewString(),
		AccountID:   cfg.AccountID,
		BotID:       cfg.BotID,
		StrategyTag: cfg.StrategyID,
		Symbol:      market.Symbol,
		Side:        domain.Buy,
		Confidence:  confidence,
		EntryPrice:  market.LastPrice,
		StopPrice:   market.LastPrice * (1 - m.cfg.StopPercent),
		TargetPrice: market.LastPrice * (1 + m.cfg.TargetPercent),
		ExpiresAt:   now.Add(m.cfg.SignalTTL),
		CreatedAt:   now,
	}, nil
}
