package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds all application configuration.
type Config struct {
	// Account
	AccountID string

	// Risk limits
	MaxDailyLoss           float64 // Maximum realized loss per day (quote currency)
	MaxConcurrentPositions int
	MaxOrderValue          float64 // Maximum notional value of a single order
	RiskResetUTC           bool    // Reset daily counters at UTC midnight

	// Execution policy
	MinConfidence     float64 // Signals below this confidence are rejected
	RiskPerTrade      float64 // Fraction of account balance risked per trade
	MaxPositionSize   float64
	MinPositionSize   float64
	StopLossEnabled   bool
	TakeProfitEnabled bool

	// Gateway
	MaxRetries     int
	RetryDelay     time.Duration
	AttemptTimeout time.Duration

	// Default bot
	BotID      string
	StrategyID string
	Symbol     string
	Exchanges  []string // Venue preference list, configuration order wins
	Interval   time.Duration

	// Paper venue
	PaperExchangeName string
	PaperSymbols      []string
	PaperBalance      float64

	// Database
	DBPath string

	// Logging
	LogLevel      string
	LogOutput     string // console, file or both
	LogFile       string
	LogMaxSizeMB  int
	LogMaxBackups int
	LogMaxAgeDays int
	LogCompress   bool
}

// LoadConfig loads configuration from environment variables (.env file).
func LoadConfig() (*Config, error) {
	// Load .env file, but don't fail if it doesn't exist (allow pure env vars).
	_ = godotenv.Load()

	cfg := &Config{}
	var errs []string

	cfg.AccountID = getEnv("ACCOUNT_ID", "default")
	if cfg.AccountID == "" {
		errs = append(errs, "ACCOUNT_ID must be set")
	}

	// Risk limits
	cfg.MaxDailyLoss = getEnvAsFloat("MAX_DAILY_LOSS", 500.0)
	if cfg.MaxDailyLoss <= 0 {
		errs = append(errs, "MAX_DAILY_LOSS must be positive")
	}
	cfg.MaxConcurrentPositions = getEnvAsInt("MAX_CONCURRENT_POSITIONS", 3)
	if cfg.MaxConcurrentPositions <= 0 {
		errs = append(errs, "MAX_CONCURRENT_POSITIONS must be positive")
	}
	cfg.MaxOrderValue = getEnvAsFloat("MAX_ORDER_VALUE", 10000.0)
	if cfg.MaxOrderValue <= 0 {
		errs = append(errs, "MAX_ORDER_VALUE must be positive")
	}
	cfg.RiskResetUTC = getEnvAsBool("RISK_RESET_UTC", true)

	// Execution policy
	cfg.MinConfidence = getEnvAsFloat("MIN_CONFIDENCE", 70.0)
	if cfg.MinConfidence < 0 || cfg.MinConfidence > 100 {
		errs = append(errs, "MIN_CONFIDENCE must be between 0 and 100")
	}
	cfg.RiskPerTrade = getEnvAsFloat("RISK_PER_TRADE", 0.01)
	if cfg.RiskPerTrade <= 0 || cfg.RiskPerTrade >= 1 {
		errs = append(errs, "RISK_PER_TRADE must be between 0.0 and 1.0 (exclusive)")
	}
	cfg.MaxPositionSize = getEnvAsFloat("MAX_POSITION_SIZE", 100.0)
	if cfg.MaxPositionSize <= 0 {
		errs = append(errs, "MAX_POSITION_SIZE must be positive")
	}
	cfg.MinPositionSize = getEnvAsFloat("MIN_POSITION_SIZE", 0.001)
	if cfg.MinPositionSize < 0 {
		errs = append(errs, "MIN_POSITION_SIZE cannot be negative")
	}
	cfg.StopLossEnabled = getEnvAsBool("STOP_LOSS_ENABLED", true)
	cfg.TakeProfitEnabled = getEnvAsBool("TAKE_PROFIT_ENABLED", true)

	// Gateway
	cfg.MaxRetries = getEnvAsInt("GATEWAY_MAX_RETRIES", 3)
	if cfg.MaxRetries <= 0 {
		errs = append(errs, "GATEWAY_MAX_RETRIES must be positive")
	}
	retryDelaySeconds := getEnvAsFloat("GATEWAY_RETRY_DELAY_SECONDS", 1.0)
	if retryDelaySeconds <= 0 {
		errs = append(errs, "GATEWAY_RETRY_DELAY_SECONDS must be positive")
	}
	cfg.RetryDelay = time.Duration(retryDelaySeconds * float64(time.Second))
	attemptTimeoutSeconds := getEnvAsInt("GATEWAY_ATTEMPT_TIMEOUT_SECONDS", 15)
	if attemptTimeoutSeconds <= 0 {
		errs = append(errs, "GATEWAY_ATTEMPT_TIMEOUT_SECONDS must be positive")
	}
	cfg.AttemptTimeout = time.Duration(attemptTimeoutSeconds) * time.Second

	// Default bot
	cfg.BotID = getEnv("BOT_ID", "bot-1")
	cfg.StrategyID = getEnv("STRATEGY_ID", "scalping")
	cfg.Symbol = getEnv("SYMBOL", "ETHUSDT")
	if cfg.Symbol == "" {
		errs = append(errs, "SYMBOL must be set")
	}
	cfg.Exchanges = getEnvAsList("EXCHANGE_PREFERENCE", []string{"paper"})
	if len(cfg.Exchanges) == 0 {
		errs = append(errs, "EXCHANGE_PREFERENCE must list at least one exchange")
	}
	intervalSeconds := getEnvAsInt("TICK_INTERVAL_SECONDS", 0)
	if intervalSeconds < 0 {
		errs = append(errs, "TICK_INTERVAL_SECONDS cannot be negative")
	}
	cfg.Interval = time.Duration(intervalSeconds) * time.Second

	// Paper venue
	cfg.PaperExchangeName = getEnv("PAPER_EXCHANGE_NAME", "paper")
	cfg.PaperSymbols = getEnvAsList("PAPER_SYMBOLS", []string{cfg.Symbol})
	cfg.PaperBalance = getEnvAsFloat("PAPER_BALANCE", 10000.0)
	if cfg.PaperBalance <= 0 {
		errs = append(errs, "PAPER_BALANCE must be positive")
	}

	// Database
	cfg.DBPath = getEnv("DB_PATH", "./data/trade_engine.db")
	if cfg.DBPath == "" {
		errs = append(errs, "DB_PATH must be set")
	}

	// Logging
	cfg.LogLevel = getEnv("LOG_LEVEL", "info")
	cfg.LogOutput = getEnv("LOG_OUTPUT", "console")
	cfg.LogFile = getEnv("LOG_FILE", "./logs/trade_engine.log")
	cfg.LogMaxSizeMB = getEnvAsInt("LOG_MAX_SIZE_MB", 50)
	cfg.LogMaxBackups = getEnvAsInt("LOG_MAX_BACKUPS", 5)
	cfg.LogMaxAgeDays = getEnvAsInt("LOG_MAX_AGE_DAYS", 14)
	cfg.LogCompress = getEnvAsBool("LOG_COMPRESS", true)

	if len(errs) > 0 {
		return nil, fmt.Errorf("configuration validation failed: %s", strings.Join(errs, "; "))
	}
	return cfg, nil
}

// --- Env Var Helpers ---

func getEnv(key, defaultValue string) string {
	value := os.Getenv(key)
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvAsInt(key string, defaultValue int) int {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.Atoi(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsFloat(key string, defaultValue float64) float64 {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseFloat(valueStr, 64)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	value, err := strconv.ParseBool(valueStr)
	if err != nil {
		return defaultValue
	}
	return value
}

func getEnvAsList(key string, defaultValue []string) []string {
	valueStr := os.Getenv(key)
	if valueStr == "" {
		return defaultValue
	}
	parts := strings.Split(valueStr, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	if len(out) == 0 {
		return defaultValue
	}
	return out
}
