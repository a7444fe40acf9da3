package strategy

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeEngine/internal/domain"
)

func TestRegistry(t *testing.T) {
	reg := NewRegistry()
	mom := NewMomentum(MomentumConfig{})

	require.NoError(t, reg.Register("scalping", mom))
	assert.Error(t, reg.Register("", mom))
	assert.Error(t, reg.Register("x", nil))

	got, err := reg.Get("scalping")
	require.NoError(t, err)
	assert.Same(t, mom, got.(*Momentum))

	_, err = reg.Get("nonesuch")
	assert.Error(t, err)

	assert.ElementsMatch(t, []string{"scalping"}, reg.IDs())
}

func TestRegistry_Intervals(t *testing.T) {
	reg := NewRegistry()

	assert.Equal(t, 30*time.Second, reg.Interval("scalping"))
	assert.Equal(t, 5*time.Minute, reg.Interval("grid"))
	assert.Equal(t, 15*time.Minute, reg.Interval("swing"))
	assert.Equal(t, time.Hour, reg.Interval("dca"))
	assert.Equal(t, time.Minute, reg.Interval("custom"), "unknown ids fall back to one minute")

	reg.SetInterval("scalping", 5*time.Second)
	assert.Equal(t, 5*time.Second, reg.Interval("scalping"))
}

func TestMomentum_NextSignal(t *testing.T) {
	ctx := context.Background()
	cfg := domain.BotConfig{BotID: "bot-1", AccountID: "acct-1", StrategyID: "scalping"}

	market := func(price float64) *domain.MarketState {
		return &domain.MarketState{Symbol: "ETHUSDT", LastPrice: price, UpdatedAt: time.Now().UTC()}
	}

	t.Run("no signal on first observation", func(t *testing.T) {
		m := NewMomentum(MomentumConfig{})
		sig, err := m.NextSignal(ctx, cfg, market(100))
		require.NoError(t, err)
		assert.Nil(t, sig)
	})

	t.Run("no signal below threshold", func(t *testing.T) {
		m := NewMomentum(MomentumConfig{EntryThreshold: 0.002})
		_, err := m.NextSignal(ctx, cfg, market(100))
		require.NoError(t, err)
		sig, err := m.NextSignal(ctx, cfg, market(100.1)) // +0.1%, under 0.2%
		require.NoError(t, err)
		assert.Nil(t, sig)
	})

	t.Run("buy signal above threshold", func(t *testing.T) {
		m := NewMomentum(MomentumConfig{EntryThreshold: 0.002, StopPercent: 0.01, TargetPercent: 0.02})
		_, err := m.NextSignal(ctx, cfg, market(100))
		require.NoError(t, err)
		sig, err := m.NextSignal(ctx, cfg, market(101)) // +1%
		require.NoError(t, err)
		require.NotNil(t, sig)

		assert.Equal(t, domain.Buy, sig.Side)
		assert.Equal(t, "bot-1", sig.BotID)
		assert.Equal(t, "acct-1", sig.AccountID)
		assert.Equal(t, "scalping", sig.StrategyTag)
		assert.Equal(t, 101.0, sig.EntryPrice)
		assert.InDelta(t, 101*0.99, sig.StopPrice, 1e-9)
		assert.InDelta(t, 101*1.02, sig.TargetPrice, 1e-9)
		assert.Equal(t, 100.0, sig.Confidence, "a 5x-threshold move caps confidence")
		assert.True(t, sig.ExpiresAt.After(time.Now()))
	})

	t.Run("confidence grows with the overshoot", func(t *testing.T) {
		m := NewMomentum(MomentumConfig{EntryThreshold: 0.002, StopPercent: 0.01, TargetPercent: 0.02})
		_, err := m.NextSignal(ctx, cfg, market(100))
		require.NoError(t, err)
		sig, err := m.NextSignal(ctx, cfg, market(100.6)) // +0.6%, 3x threshold
		require.NoError(t, err)
		require.NotNil(t, sig)
		assert.InDelta(t, 85.0, sig.Confidence, 1e-9)
	})

	t.Run("no signal on falling price", func(t *testing.T) {
		m := NewMomentum(MomentumConfig{})
		_, err := m.NextSignal(ctx, cfg, market(100))
		require.NoError(t, err)
		sig, err := m.NextSignal(ctx, cfg, market(95))
		require.NoError(t, err)
		assert.Nil(t, sig)
	})

	t.Run("nil market is ignored", func(t *testing.T) {
		m := NewMomentum(MomentumConfig{})
		sig, err := m.NextSignal(ctx, cfg, nil)
		require.NoError(t, err)
		assert.Nil(t, sig)
	})
}
