package bot

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"tradeEngine/internal/domain"
	"tradeEngine/internal/ports"
	"tradeEngine/internal/strategy"
)

// Config holds the supervisor's shared dependencies.
type Config struct {
	Strategies *strategy.Registry
	Executor   SignalExecutor
	Feed       ports.MarketFeed
	Metrics    ports.BotMetricsRepository
	Events     ports.EventPublisher
	Logger     ports.Logger
}

// Supervisor is the process-wide registry of bot runners. It is constructed
// explicitly by the composition root and passed by reference; there is no
// process-wide singleton. At most one runner exists per bot id.
type Supervisor struct {
	cfg Config

	mu      sync.RWMutex
	runners map[string]*Runner
}

// BotStatus is a read-only snapshot of one registered runner.
type BotStatus struct {
	BotID    string
	Symbol   string
	Strategy string
	State    domain.RunnerState
	Metrics  domain.BotMetrics
}

// NewSupervisor creates an empty supervisor.
func NewSupervisor(cfg Config) (*Supervisor, error) {
	if cfg.Logger == nil || cfg.Executor == nil || cfg.Strategies == nil {
		return nil, fmt.Errorf("missing required dependencies for supervisor")
	}
	return &Supervisor{
		cfg:     cfg,
		runners: make(map[string]*Runner),
	}, nil
}

// Start registers and starts a runner for the bot. Returns ErrAlreadyRunning
// if a runner for the bot id already exists; the existing runner is left
// untouched.
func (s *Supervisor) Start(ctx context.Context, botCfg domain.BotConfig) error {
	if botCfg.BotID == "" {
		return fmt.Errorf("bot id is required")
	}
	strat, err := s.cfg.Strategies.Get(botCfg.StrategyID)
	if err != nil {
		return fmt.Errorf("start bot %s: %w", botCfg.BotID, err)
	}
	interval := botCfg.Interval
	if interval <= 0 {
		interval = s.cfg.Strategies.Interval(botCfg.StrategyID)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.runners[botCfg.BotID]; exists {
		return fmt.Errorf("bot %s: %w", botCfg.BotID, ports.ErrAlreadyRunning)
	}

	r := newRunner(botCfg, interval, strat, s.cfg.Executor, s.cfg.Feed, s.cfg.Metrics, s.cfg.Events, s.cfg.Logger)
	if err := r.start(ctx); err != nil {
		return err
	}
	s.runners[botCfg.BotID] = r
	return nil
}

// Stop stops the bot's runner and removes it from the registry. Open
// positions are not closed; closing them is a distinct, explicit operation.
func (s *Supervisor) Stop(ctx context.Context, botID string) error {
	s.mu.Lock()
	r, ok := s.runners[botID]
	if ok {
		delete(s.runners, botID)
	}
	s.mu.Unlock()

	if !ok {
		return fmt.Errorf("stop bot %s: %w", botID, ports.ErrBotNotFound)
	}
	r.stop(ctx)
	return nil
}

// Pause suspends the bot's ticks without cancelling its timer.
func (s *Supervisor) Pause(botID string) error {
	r, ok := s.runner(botID)
	if !ok {
		return fmt.Errorf("pause bot %s: %w", botID, ports.ErrBotNotFound)
	}
	return r.pause()
}

// Resume re-enables a paused bot.
func (s *Supervisor) Resume(botID string) error {
	r, ok := s.runner(botID)
	if !ok {
		return fmt.Errorf("resume bot %s: %w", botID, ports.ErrBotNotFound)
	}
	return r.resume()
}

// Status returns the bot's lifecycle state, or UNKNOWN for unregistered ids.
// Safe to call concurrently with Start/Stop.
func (s *Supervisor) Status(botID string) domain.RunnerState {
	r, ok := s.runner(botID)
	if !ok {
		return domain.RunnerUnknown
	}
	return r.State()
}

// ListActive returns a snapshot of all registered runners, sorted by bot id.
func (s *Supervisor) ListActive() []BotStatus {
	s.mu.RLock()
	out := make([]BotStatus, 0, len(s.runners))
	for _, r := range s.runners {
		out = append(out, BotStatus{
			BotID:    r.cfg.BotID,
			Symbol:   r.cfg.Symbol,
			Strategy: r.cfg.StrategyID,
			State:    r.State(),
			Metrics:  r.Metrics(),
		})
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool { return out[i].BotID < out[j].BotID })
	return out
}

// StopAll stops every registered runner, used during graceful shutdown.
func (s *Supervisor) StopAll(ctx context.Context) {
	s.mu.Lock()
	runners := make([]*Runner, 0, len(s.runners))
	for id, r := range s.runners {
		runners = append(runners, r)
		delete(s.runners, id)
	}
	s.mu.Unlock()

	var wg sync.WaitGroup
	for _, r := range runners {
		wg.Add(1)
		go func(r *Runner) {
			defer wg.Done()
			r.stop(ctx)
		}(r)
	}

	doneCh := make(chan struct{})
	go func() {
		wg.Wait()
		close(doneCh)
	}()
	select {
	case <-doneCh:
	case <-time.After(30 * time.Second):
		s.cfg.Logger.Warn(ctx, "Timeout waiting for runners to stop")
	}
}

func (s *Supervisor) runner(botID string) (*Runner, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.runners[botID]
	return r, ok
}
