package main

import (
	"context"
	"log" // Standard log only for fatal errors before the logger is set up
	"math/rand"
	"os"
	"os/signal"
	"syscall"
	"time"

	"tradeEngine/config"
	"tradeEngine/internal/adapters/events"
	"tradeEngine/internal/adapters/paperexchange"
	"tradeEngine/internal/adapters/sqlite"
	"tradeEngine/internal/adapters/zaplogger"
	"tradeEngine/internal/bot"
	"tradeEngine/internal/domain"
	"tradeEngine/internal/executor"
	"tradeEngine/internal/gateway"
	"tradeEngine/internal/ports"
	"tradeEngine/internal/position"
	"tradeEngine/internal/risk"
	"tradeEngine/internal/strategy"
)

func main() {
	// 1. Load configuration
	cfg, err := config.LoadConfig()
	if err != nil {
		log.Fatalf("FATAL: Failed to load configuration: %v", err)
	}

	// 2. Initialize logger
	appLogger := zaplogger.New(zaplogger.Config{
		Level:      cfg.LogLevel,
		Output:     cfg.LogOutput,
		File:       cfg.LogFile,
		MaxSizeMB:  cfg.LogMaxSizeMB,
		MaxBackups: cfg.LogMaxBackups,
		MaxAgeDays: cfg.LogMaxAgeDays,
		Compress:   cfg.LogCompress,
	})
	defer appLogger.Sync()
	ctx := context.Background()
	appLogger.Info(ctx, "Logger initialized", map[string]interface{}{"level": cfg.LogLevel})

	// 3. Initialize repository
	repo, err := sqlite.NewRepository(sqlite.Config{DBPath: cfg.DBPath, Logger: appLogger})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize database repository")
		log.Fatalf("FATAL: Failed to initialize database repository: %v", err)
	}
	defer func() {
		if err := repo.Close(); err != nil {
			appLogger.Error(ctx, err, "Error closing database repository")
		}
	}()

	// 4. Event publisher for the external audit/notification layer
	publisher := events.NewLogPublisher(appLogger)

	// 5. Exchange venue (paper venue; real connectors plug in here)
	venue, err := paperexchange.New(paperexchange.Config{
		Name:            cfg.PaperExchangeName,
		Symbols:         cfg.PaperSymbols,
		StartingBalance: cfg.PaperBalance,
		Logger:          appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize paper exchange")
		log.Fatalf("FATAL: Failed to initialize paper exchange: %v", err)
	}

	// 6. Core components
	ledger, err := risk.NewLedger(risk.Config{
		Limits: risk.Limits{
			MaxDailyLoss:           cfg.MaxDailyLoss,
			MaxConcurrentPositions: cfg.MaxConcurrentPositions,
			MaxOrderValue:          cfg.MaxOrderValue,
		},
		ResetUTC: cfg.RiskResetUTC,
		Logger:   appLogger,
		Events:   publisher,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize risk ledger")
		log.Fatalf("FATAL: Failed to initialize risk ledger: %v", err)
	}

	gw, err := gateway.New(gateway.Config{
		Connectors:     []ports.ExchangeConnector{venue},
		AttemptTimeout: cfg.AttemptTimeout,
		MaxRetries:     cfg.MaxRetries,
		RetryDelay:     cfg.RetryDelay,
		Logger:         appLogger,
		Events:         publisher,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize order gateway")
		log.Fatalf("FATAL: Failed to initialize order gateway: %v", err)
	}

	tracker, err := position.NewTracker(appLogger)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize position tracker")
		log.Fatalf("FATAL: Failed to initialize position tracker: %v", err)
	}

	exec, err := executor.New(executor.Config{
		MinConfidence:     cfg.MinConfidence,
		RiskPerTrade:      cfg.RiskPerTrade,
		MaxPositionSize:   cfg.MaxPositionSize,
		MinPositionSize:   cfg.MinPositionSize,
		StopLossEnabled:   cfg.StopLossEnabled,
		TakeProfitEnabled: cfg.TakeProfitEnabled,
		MaxRetries:        cfg.MaxRetries,
		RetryDelay:        cfg.RetryDelay,
		Exchanges:         cfg.Exchanges,
	}, appLogger, ledger, gw, tracker, repo, publisher)
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize signal executor")
		log.Fatalf("FATAL: Failed to initialize signal executor: %v", err)
	}

	// 7. Strategy registry; strategies are selected by id at configuration
	// time, never re-dispatched per tick.
	registry := strategy.NewRegistry()
	if err := registry.Register(cfg.StrategyID, strategy.NewMomentum(strategy.MomentumConfig{})); err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to register strategy")
		log.Fatalf("FATAL: Failed to register strategy: %v", err)
	}

	// 8. Supervisor, owned here by the composition root
	supervisor, err := bot.NewSupervisor(bot.Config{
		Strategies: registry,
		Executor:   exec,
		Feed:       venue,
		Metrics:    repo,
		Events:     publisher,
		Logger:     appLogger,
	})
	if err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to initialize bot supervisor")
		log.Fatalf("FATAL: Failed to initialize bot supervisor: %v", err)
	}

	// 9. Drive the paper venue's mark price so strategies have a market.
	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()
	go driveMarket(runCtx, venue, cfg.Symbol)

	// 10. Start the configured bot
	if err := supervisor.Start(runCtx, domain.BotConfig{
		BotID:      cfg.BotID,
		AccountID:  cfg.AccountID,
		StrategyID: cfg.StrategyID,
		Symbol:     cfg.Symbol,
		Exchanges:  cfg.Exchanges,
		Interval:   cfg.Interval,
	}); err != nil {
		appLogger.Error(ctx, err, "FATAL: Failed to start bot")
		log.Fatalf("FATAL: Failed to start bot: %v", err)
	}

	// 11. Wait for shutdown signal, then stop all runners gracefully.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	appLogger.Info(ctx, "Received shutdown signal", map[string]interface{}{"signal": sig.String()})

	cancel()
	supervisor.StopAll(ctx)
	appLogger.Info(ctx, "All bots stopped, shutting down")
}

// driveMarket feeds the paper venue a small random walk around a base price.
func driveMarket(ctx context.Context, venue *paperexchange.Exchange, symbol string) {
	price := 2000.0
	venue.SetMarkPrice(symbol, price)
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			price *= 1 + (rand.Float64()-0.5)*0.01
			venue.SetMarkPrice(symbol, price)
		}
	}
}
