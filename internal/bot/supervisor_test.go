package bot

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"tradeEngine/internal/domain"
	"tradeEngine/internal/ports"
	"tradeEngine/internal/strategy"
)

type nopLogger struct{}

func (nopLogger) Debug(ctx context.Context, msg string, fields ...map[string]interface{}) {}
func (nopLogger) Info(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (nopLogger) Warn(ctx context.Context, msg string, fields ...map[string]interface{})  {}
func (nopLogger) Error(ctx context.Context, err error, msg string, fields ...map[string]interface{}) {
}

// strategyFunc adapts a function to the Strategy port.
type strategyFunc func(ctx context.Context, cfg domain.BotConfig, market *domain.MarketState) (*domain.Signal, error)

func (f strategyFunc) NextSignal(ctx context.Context, cfg domain.BotConfig, market *domain.MarketState) (*domain.Signal, error) {
	return f(ctx, cfg, market)
}

// mockExecutor counts executions and records the last signal it received.
type mockExecutor struct {
	mu     sync.Mutex
	calls  int
	last   *domain.Signal
	status domain.ExecutionStatus
	notify chan struct{}
}

func newMockExecutor() *mockExecutor {
	return &mockExecutor{status: domain.ExecExecuted, notify: make(chan struct{}, 64)}
}

func (m *mockExecutor) ExecuteSignal(ctx context.Context, sig *domain.Signal) *domain.SignalExecution {
	m.mu.Lock()
	m.calls++
	m.last = sig
	status := m.status
	m.mu.Unlock()
	select {
	case m.notify <- struct{}{}:
	default:
	}
	return &domain.SignalExecution{SignalID: sig.ID, Status: status}
}

func (m *mockExecutor) callCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.calls
}

func (m *mockExecutor) lastSignal() *domain.Signal {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.last
}

type mockFeed struct {
	err error
}

func (m *mockFeed) Snapshot(ctx context.Context, symbol string) (*domain.MarketState, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &domain.MarketState{Symbol: symbol, LastPrice: 100, UpdatedAt: time.Now().UTC()}, nil
}

type mockMetricsRepo struct {
	mu      sync.Mutex
	updates int
	last    domain.BotMetrics
}

func (m *mockMetricsRepo) UpdateBotMetrics(ctx context.Context, botID string, metrics domain.BotMetrics) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.updates++
	m.last = metrics
	return nil
}

func alwaysSignal() ports.Strategy {
	return strategyFunc(func(ctx context.Context, cfg domain.BotConfig, market *domain.MarketState) (*domain.Signal, error) {
		return &domain.Signal{
			ID:         domain.NewOrderID(),
			Symbol:     cfg.Symbol,
			Side:       domain.Buy,
			Confidence: 80,
			EntryPrice: market.LastPrice,
			StopPrice:  market.LastPrice * 0.99,
		}, nil
	})
}

func neverSignal() ports.Strategy {
	return strategyFunc(func(ctx context.Context, cfg domain.BotConfig, market *domain.MarketState) (*domain.Signal, error) {
		return nil, nil
	})
}

type supFixture struct {
	sup      *Supervisor
	exec     *mockExecutor
	feed     *mockFeed
	metrics  *mockMetricsRepo
	registry *strategy.Registry
}

func newSupFixture(t *testing.T, strat ports.Strategy) *supFixture {
	t.Helper()
	reg := strategy.NewRegistry()
	require.NoError(t, reg.Register("test", strat))
	exec := newMockExecutor()
	feed := &mockFeed{}
	metrics := &mockMetricsRepo{}
	sup, err := NewSupervisor(Config{
		Strategies: reg,
		Executor:   exec,
		Feed:       feed,
		Metrics:    metrics,
		Logger:     nopLogger{},
	})
	require.NoError(t, err)
	return &supFixture{sup: sup, exec: exec, feed: feed, metrics: metrics, registry: reg}
}

func testBotConfig() domain.BotConfig {
	return domain.BotConfig{
		BotID:      "bot-1",
		AccountID:  "acct-1",
		StrategyID: "test",
		Symbol:     "ETHUSDT",
		Exchanges:  []string{"venue-b"},
		Interval:   5 * time.Millisecond,
	}
}

func waitForExecution(t *testing.T, exec *mockExecutor) {
	t.Helper()
	select {
	case <-exec.notify:
	case <-time.After(2 * time.Second):
		t.Fatal("no signal was executed in time")
	}
}

func TestSupervisor_StartAndTick(t *testing.T) {
	f := newSupFixture(t, alwaysSignal())
	ctx := context.Background()
	cfg := testBotConfig()

	require.NoError(t, f.sup.Start(ctx, cfg))
	defer f.sup.StopAll(ctx)

	assert.Equal(t, domain.RunnerRunning, f.sup.Status("bot-1"))
	waitForExecution(t, f.exec)

	// The runner stamps its identity and venue preference onto anonymous
	// signals so execution honors the bot's configuration.
	sig := f.exec.lastSignal()
	require.NotNil(t, sig)
	assert.Equal(t, "bot-1", sig.BotID)
	assert.Equal(t, "acct-1", sig.AccountID)
	assert.Equal(t, "ETHUSDT", sig.Symbol)
	assert.Equal(t, []string{"venue-b"}, sig.Exchanges)
}

func TestSupervisor_StartValidation(t *testing.T) {
	f := newSupFixture(t, alwaysSignal())
	ctx := context.Background()

	cfg := testBotConfig()
	cfg.BotID = ""
	assert.Error(t, f.sup.Start(ctx, cfg))

	cfg = testBotConfig()
	cfg.StrategyID = "nonesuch"
	assert.Error(t, f.sup.Start(ctx, cfg))

	assert.Empty(t, f.sup.ListActive())
}

func TestSupervisor_DoubleStart(t *testing.T) {
	f := newSupFixture(t, neverSignal())
	ctx := context.Background()
	cfg := testBotConfig()

	require.NoError(t, f.sup.Start(ctx, cfg))
	defer f.sup.StopAll(ctx)

	err := f.sup.Start(ctx, cfg)
	require.Error(t, err)
	assert.ErrorIs(t, err, ports.ErrAlreadyRunning)
	assert.Len(t, f.sup.ListActive(), 1, "the existing runner must be left untouched")
	assert.Equal(t, domain.RunnerRunning, f.sup.Status("bot-1"))
}

func TestSupervisor_PauseAndResume(t *testing.T) {
	f := newSupFixture(t, alwaysSignal())
	ctx := context.Background()

	require.NoError(t, f.sup.Start(ctx, testBotConfig()))
	defer f.sup.StopAll(ctx)
	waitForExecution(t, f.exec)

	require.NoError(t, f.sup.Pause("bot-1"))
	assert.Equal(t, domain.RunnerPaused, f.sup.Status("bot-1"))

	// Let any tick that raced the pause finish, drain its notification, then
	// verify further ticks are no-ops.
	time.Sleep(20 * time.Millisecond)
	for {
		select {
		case <-f.exec.notify:
			continue
		default:
		}
		break
	}
	before := f.exec.callCount()
	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, before, f.exec.callCount(), "a paused bot must not execute signals")

	require.NoError(t, f.sup.Resume("bot-1"))
	assert.Equal(t, domain.RunnerRunning, f.sup.Status("bot-1"))
	waitForExecution(t, f.exec)

	// Invalid transitions.
	assert.Error(t, f.sup.Resume("bot-1"), "resume of a running bot")
	require.NoError(t, f.sup.Pause("bot-1"))
	assert.Error(t, f.sup.Pause("bot-1"), "pause of a paused bot")

	assert.ErrorIs(t, f.sup.Pause("nonesuch"), ports.ErrBotNotFound)
	assert.ErrorIs(t, f.sup.Resume("nonesuch"), ports.ErrBotNotFound)
}

func TestSupervisor_StopRemovesRunner(t *testing.T) {
	f := newSupFixture(t, neverSignal())
	ctx := context.Background()

	require.NoError(t, f.sup.Start(ctx, testBotConfig()))
	require.NoError(t, f.sup.Stop(ctx, "bot-1"))

	assert.Equal(t, domain.RunnerUnknown, f.sup.Status("bot-1"))
	assert.Empty(t, f.sup.ListActive())
	assert.ErrorIs(t, f.sup.Stop(ctx, "bot-1"), ports.ErrBotNotFound)

	// The id is free for a fresh start.
	require.NoError(t, f.sup.Start(ctx, testBotConfig()))
	f.sup.StopAll(ctx)
}

func TestSupervisor_TickPanicDoesNotKillRunner(t *testing.T) {
	var ticks atomic.Int32
	strat := strategyFunc(func(ctx context.Context, cfg domain.BotConfig, market *domain.MarketState) (*domain.Signal, error) {
		if ticks.Add(1) == 1 {
			panic("strategy blew up")
		}
		return nil, nil
	})
	f := newSupFixture(t, strat)
	ctx := context.Background()

	require.NoError(t, f.sup.Start(ctx, testBotConfig()))
	defer f.sup.StopAll(ctx)

	require.Eventually(t, func() bool { return ticks.Load() >= 3 }, 2*time.Second, 5*time.Millisecond,
		"the runner must keep ticking after a panic")
	assert.Equal(t, domain.RunnerRunning, f.sup.Status("bot-1"))
}

func TestSupervisor_FeedErrorSkipsTick(t *testing.T) {
	var strategyCalls atomic.Int32
	strat := strategyFunc(func(ctx context.Context, cfg domain.BotConfig, market *domain.MarketState) (*domain.Signal, error) {
		strategyCalls.Add(1)
		return nil, nil
	})
	f := newSupFixture(t, strat)
	f.feed.err = fmt.Errorf("feed down: %w", ports.ErrConnectionFailed)
	ctx := context.Background()

	require.NoError(t, f.sup.Start(ctx, testBotConfig()))
	defer f.sup.StopAll(ctx)

	time.Sleep(50 * time.Millisecond)
	assert.Equal(t, int32(0), strategyCalls.Load(), "no market data means no strategy evaluation")
	assert.Equal(t, 0, f.exec.callCount())
}

func TestSupervisor_MetricsTrackOutcomes(t *testing.T) {
	f := newSupFixture(t, alwaysSignal())
	ctx := context.Background()

	require.NoError(t, f.sup.Start(ctx, testBotConfig()))
	defer f.sup.StopAll(ctx)
	waitForExecution(t, f.exec)

	require.Eventually(t, func() bool {
		for _, st := range f.sup.ListActive() {
			if st.BotID == "bot-1" && st.Metrics.TradeCount >= 1 {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)

	// Failed executions land in the failure counter instead.
	f.exec.mu.Lock()
	f.exec.status = domain.ExecFailed
	f.exec.mu.Unlock()
	waitForExecution(t, f.exec)

	require.Eventually(t, func() bool {
		for _, st := range f.sup.ListActive() {
			if st.BotID == "bot-1" && st.Metrics.FailedCount >= 1 {
				return true
			}
		}
		return false
	}, 2*time.Second, 5*time.Millisecond)

	f.metrics.mu.Lock()
	updates := f.metrics.updates
	f.metrics.mu.Unlock()
	assert.GreaterOrEqual(t, updates, 1, "metrics snapshots are persisted after executions")
}

func TestSupervisor_ListActiveSorted(t *testing.T) {
	f := newSupFixture(t, neverSignal())
	ctx := context.Background()

	for _, id := range []string{"charlie", "alpha", "bravo"} {
		cfg := testBotConfig()
		cfg.BotID = id
		require.NoError(t, f.sup.Start(ctx, cfg))
	}
	defer f.sup.StopAll(ctx)

	list := f.sup.ListActive()
	require.Len(t, list, 3)
	assert.Equal(t, "alpha", list[0].BotID)
	assert.Equal(t, "bravo", list[1].BotID)
	assert.Equal(t, "charlie", list[2].BotID)
}

func TestSupervisor_StopAll(t *testing.T) {
	f := newSupFixture(t, neverSignal())
	ctx := context.Background()

	for _, id := range []string{"bot-1", "bot-2", "bot-3"} {
		cfg := testBotConfig()
		cfg.BotID = id
		require.NoError(t, f.sup.Start(ctx, cfg))
	}
	require.Len(t, f.sup.ListActive(), 3)

	f.sup.StopAll(ctx)
	assert.Empty(t, f.sup.ListActive())
	for _, id := range []string{"bot-1", "bot-2", "bot-3"} {
		assert.Equal(t, domain.RunnerUnknown, f.sup.Status(id))
	}
}

func TestSupervisor_IndependentRunners(t *testing.T) {
	// One bot's pause must not affect its siblings.
	f := newSupFixture(t, alwaysSignal())
	ctx := context.Background()

	a := testBotConfig()
	a.BotID = "bot-a"
	b := testBotConfig()
	b.BotID = "bot-b"
	require.NoError(t, f.sup.Start(ctx, a))
	require.NoError(t, f.sup.Start(ctx, b))
	defer f.sup.StopAll(ctx)

	require.NoError(t, f.sup.Pause("bot-a"))
	assert.Equal(t, domain.RunnerPaused, f.sup.Status("bot-a"))
	assert.Equal(t, domain.RunnerRunning, f.sup.Status("bot-b"))

	waitForExecution(t, f.exec)
	sig := f.exec.lastSignal()
	require.NotNil(t, sig)
	assert.Equal(t, "bot-b", sig.BotID, "only the running sibling executes")
}
