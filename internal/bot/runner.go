package bot

import (
	"context"
	"fmt"
	"sync"
	"time"

	"tradeEngine/internal/domain"
	"tradeEngine/internal/ports"
)

// SignalExecutor is the slice of the executor a runner consumes.
type SignalExecutor interface {
	ExecuteSignal(ctx context.Context, sig *domain.Signal) *domain.SignalExecution
}

// Runner owns one running bot's lifecycle and drives its periodic tick.
// Lifecycle: STOPPED -> STARTING -> RUNNING <-> PAUSED -> STOPPING -> STOPPED.
// Pause and resume only toggle execution; the ticker keeps firing and ticks
// while PAUSED are no-ops. Each runner executes independently of every other.
type Runner struct {
	cfg      domain.BotConfig
	interval time.Duration
	strategy ports.Strategy
	executor SignalExecutor
	feed     ports.MarketFeed
	metrics  ports.BotMetricsRepository
	events   ports.EventPublisher
	logger   ports.Logger

	mu     sync.Mutex
	state  domain.RunnerState
	stats  domain.BotMetrics
	cancel context.CancelFunc
	done   chan struct{}
}

func newRunner(cfg domain.BotConfig, interval time.Duration, strat ports.Strategy, exec SignalExecutor, feed ports.MarketFeed, metrics ports.BotMetricsRepository, events ports.EventPublisher, logger ports.Logger) *Runner {
	return &Runner{
		cfg:      cfg,
		interval: interval,
		strategy: strat,
		executor: exec,
		feed:     feed,
		metrics:  metrics,
		events:   events,
		logger:   logger,
		state:    domain.RunnerStopped,
	}
}

// start transitions the runner to RUNNING and launches its tick loop.
func (r *Runner) start(parent context.Context) error {
	r.mu.Lock()
	if r.state != domain.RunnerStopped {
		r.mu.Unlock()
		return fmt.Errorf("runner %s is %s, cannot start", r.cfg.BotID, r.state)
	}
	r.state = domain.RunnerStarting

	ctx, cancel := context.WithCancel(parent)
	r.cancel = cancel
	r.done = make(chan struct{})
	r.state = domain.RunnerRunning
	r.mu.Unlock()

	go r.run(ctx)

	r.logger.Info(ctx, "Bot runner started", map[string]interface{}{
		"botID":    r.cfg.BotID,
		"symbol":   r.cfg.Symbol,
		"strategy": r.cfg.StrategyID,
		"interval": r.interval.String(),
	})
	if r.events != nil {
		r.events.Publish(ctx, domain.Event{
			Type:      domain.EventBotStarted,
			AccountID: r.cfg.AccountID,
			BotID:     r.cfg.BotID,
			Time:      time.Now().UTC(),
			Fields:    map[string]interface{}{"symbol": r.cfg.Symbol, "strategy": r.cfg.StrategyID},
		})
	}
	return nil
}

// run is the tick loop. It exits only when the runner's context is cancelled.
func (r *Runner) run(ctx context.Context) {
	defer close(r.done)
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.tick(ctx)
		}
	}
}

// tick runs one execution cycle. A panicking tick is caught and logged; one
// bad tick must not kill the bot or its siblings.
func (r *Runner) tick(ctx context.Context) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error(ctx, fmt.Errorf("tick panic: %v", rec), "Bot tick panicked", map[string]interface{}{
				"botID": r.cfg.BotID,
			})
		}
	}()

	r.mu.Lock()
	if r.state != domain.RunnerRunning {
		r.mu.Unlock()
		return
	}
	r.stats.LastTickAt = time.Now().UTC()
	r.mu.Unlock()

	var market *domain.MarketState
	if r.feed != nil {
		snapshot, err := r.feed.Snapshot(ctx, r.cfg.Symbol)
		if err != nil {
			r.logger.Warn(ctx, "Market snapshot unavailable, skipping tick", map[string]interface{}{
				"botID": r.cfg.BotID,
				"error": err.Error(),
			})
			return
		}
		market = snapshot
	}

	sig, err := r.strategy.NextSignal(ctx, r.cfg, market)
	if err != nil {
		r.logger.Error(ctx, err, "Strategy failed to produce a signal", map[string]interface{}{"botID": r.cfg.BotID})
		return
	}
	if sig == nil {
		return // Nothing to do this tick.
	}
	if sig.BotID == "" {
		sig.BotID = r.cfg.BotID
	}
	if sig.AccountID == "" {
		sig.AccountID = r.cfg.AccountID
	}
	if len(sig.Exchanges) == 0 {
		sig.Exchanges = r.cfg.Exchanges
	}

	exec := r.executor.ExecuteSignal(ctx, sig)

	r.mu.Lock()
	switch exec.Status {
	case domain.ExecExecuted:
		r.stats.TradeCount++
		r.stats.LastTradeAt = time.Now().UTC()
	case domain.ExecFailed:
		r.stats.FailedCount++
	}
	stats := r.stats
	r.mu.Unlock()

	if r.metrics != nil {
		// Metrics persistence is fire-and-forget.
		if err := r.metrics.UpdateBotMetrics(ctx, r.cfg.BotID, stats); err != nil {
			r.logger.Warn(ctx, "Failed to persist bot metrics", map[string]interface{}{
				"botID": r.cfg.BotID,
				"error": err.Error(),
			})
		}
	}
}

// pause toggles RUNNING -> PAUSED. Ticks while paused are no-ops.
func (r *Runner) pause() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != domain.RunnerRunning {
		return fmt.Errorf("runner %s is %s, cannot pause", r.cfg.BotID, r.state)
	}
	r.state = domain.RunnerPaused
	return nil
}

// resume toggles PAUSED -> RUNNING.
func (r *Runner) resume() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.state != domain.RunnerPaused {
		return fmt.Errorf("runner %s is %s, cannot resume", r.cfg.BotID, r.state)
	}
	r.state = domain.RunnerRunning
	return nil
}

// stop cancels the tick loop and waits for it to exit. In-flight submissions
// finish on their own; their results are not acted upon (the executor's
// stale-result check). Open positions are not closed here.
func (r *Runner) stop(ctx context.Context) {
	r.mu.Lock()
	if r.state == domain.RunnerStopped || r.state == domain.RunnerStopping {
		r.mu.Unlock()
		return
	}
	r.state = domain.RunnerStopping
	cancel := r.cancel
	done := r.done
	r.mu.Unlock()

	cancel()
	<-done

	r.mu.Lock()
	r.state = domain.RunnerStopped
	r.mu.Unlock()

	r.logger.Info(ctx, "Bot runner stopped", map[string]interface{}{"botID": r.cfg.BotID})
	if r.events != nil {
		r.events.Publish(ctx, domain.Event{
			Type:      domain.EventBotStopped,
			AccountID: r.cfg.AccountID,
			BotID:     r.cfg.BotID,
			Time:      time.Now().UTC(),
		})
	}
}

// State returns the runner's current lifecycle state.
func (r *Runner) State() domain.RunnerState {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Metrics returns a snapshot of the runner's activity counters.
func (r *Runner) Metrics() domain.BotMetrics {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.stats
}
