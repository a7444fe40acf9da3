package sqlite

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"tradeEngine/internal/domain"
	"tradeEngine/internal/ports"

	_ "github.com/mattn/go-sqlite3" // SQLite driver
)

// Repository implements ports.TradeRecordRepository and
// ports.BotMetricsRepository using SQLite. Writes are fire-and-forget from
// the core's perspective; callers log failures and continue trading.
type Repository struct {
	db     *sql.DB
	logger ports.Logger
}

var (
	_ ports.TradeRecordRepository = (*Repository)(nil)
	_ ports.BotMetricsRepository  = (*Repository)(nil)
)

// Config holds configuration for the SQLite repository.
type Config struct {
	DBPath string
	Logger ports.Logger
}

// NewRepository creates a new SQLite repository instance.
func NewRepository(cfg Config) (*Repository, error) {
	if cfg.Logger == nil {
		return nil, fmt.Errorf("logger is required for SQLite repository")
	}
	dbPath := cfg.DBPath
	if dbPath == "" {
		dbPath = "./data/trade_engine.db"
	}

	if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
		err = fmt.Errorf("failed to create data directory '%s': %w", filepath.Dir(dbPath), err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	// WAL mode for better concurrency across many bots writing records.
	db, err := sql.Open("sqlite3", dbPath+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		err = fmt.Errorf("failed to open database at '%s': %w", dbPath, err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	if err := db.Ping(); err != nil {
		db.Close()
		err = fmt.Errorf("failed to ping database at '%s': %w", dbPath, ports.ErrDBConnection)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}

	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	repo := &Repository{db: db, logger: cfg.Logger}
	if err := repo.initializeSchema(context.Background()); err != nil {
		db.Close()
		err = fmt.Errorf("failed to initialize database schema: %w", err)
		cfg.Logger.Error(context.Background(), err, "SQLite repository initialization failed")
		return nil, err
	}
	cfg.Logger.Info(context.Background(), "SQLite repository ready", map[string]interface{}{"path": dbPath})
	return repo, nil
}

// initializeSchema creates tables if they don't exist.
func (r *Repository) initializeSchema(ctx context.Context) error {
	const schema = `
	CREATE TABLE IF NOT EXISTS trade_records (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		account_id TEXT NOT NULL,
		bot_id TEXT NOT NULL,
		position_id TEXT NOT NULL,
		symbol TEXT NOT NULL,
		side TEXT NOT NULL,
		quantity REAL NOT NULL,
		entry_price REAL NOT NULL,
		exit_price REAL DEFAULT 0,
		pnl REAL DEFAULT 0,
		close_reason TEXT DEFAULT '',
		executed_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS bot_metrics (
		bot_id TEXT PRIMARY KEY,
		trade_count INTEGER NOT NULL,
		failed_count INTEGER NOT NULL,
		last_trade_at TIMESTAMP NULL,
		last_tick_at TIMESTAMP NULL,
		updated_at TIMESTAMP NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_trade_records_account_executed ON trade_records (account_id, executed_at);
	CREATE INDEX IF NOT EXISTS idx_trade_records_bot ON trade_records (bot_id);
	`
	if _, err := r.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("%w: %v", ports.ErrQueryFailed, err)
	}
	return nil
}

// SaveTradeRecord stores one executed entry or close.
func (r *Repository) SaveTradeRecord(ctx context.Context, rec *domain.TradeRecord) (int64, error) {
	const q = `
	INSERT INTO trade_records
		(account_id, bot_id, position_id, symbol, side, quantity, entry_price, exit_price, pnl, close_reason, executed_at)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`
	res, err := r.db.ExecContext(ctx, q,
		rec.AccountID, rec.BotID, rec.PositionID, rec.Symbol, string(rec.Side),
		rec.Quantity, rec.EntryPrice, rec.ExitPrice, rec.PNL, string(rec.CloseReason), rec.ExecutedAt)
	if err != nil {
		return 0, fmt.Errorf("insert trade record: %w: %v", ports.ErrQueryFailed, err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return 0, fmt.Errorf("trade record id: %w: %v", ports.ErrQueryFailed, err)
	}
	rec.ID = id
	return id, nil
}

// FindByAccount retrieves the most recent records for an account.
func (r *Repository) FindByAccount(ctx context.Context, accountID string, limit int) ([]*domain.TradeRecord, error) {
	const q = `
	SELECT id, account_id, bot_id, position_id, symbol, side, quantity, entry_price, exit_price, pnl, close_reason, executed_at
	FROM trade_records WHERE account_id = ? ORDER BY executed_at DESC LIMIT ?`
	rows, err := r.db.QueryContext(ctx, q, accountID, limit)
	if err != nil {
		return nil, fmt.Errorf("query trade records: %w: %v", ports.ErrQueryFailed, err)
	}
	defer rows.Close()

	var out []*domain.TradeRecord
	for rows.Next() {
		rec := &domain.TradeRecord{}
		var side, closeReason string
		if err := rows.Scan(&rec.ID, &rec.AccountID, &rec.BotID, &rec.PositionID, &rec.Symbol, &side,
			&rec.Quantity, &rec.EntryPrice, &rec.ExitPrice, &rec.PNL, &closeReason, &rec.ExecutedAt); err != nil {
			return nil, fmt.Errorf("scan trade record: %w: %v", ports.ErrQueryFailed, err)
		}
		rec.Side = domain.OrderSide(side)
		rec.CloseReason = domain.CloseReason(closeReason)
		out = append(out, rec)
	}
	return out, rows.Err()
}

// UpdateBotMetrics upserts the metrics snapshot for a bot.
func (r *Repository) UpdateBotMetrics(ctx context.Context, botID string, m domain.BotMetrics) error {
	const q = `
	INSERT INTO bot_metrics (bot_id, trade_count, failed_count, last_trade_at, last_tick_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(bot_id) DO UPDATE SET
		trade_count = excluded.trade_count,
		failed_count = excluded.failed_count,
		last_trade_at = excluded.last_trade_at,
		last_tick_at = excluded.last_tick_at,
		updated_at = excluded.updated_at`
	var lastTrade, lastTick interface{}
	if !m.LastTradeAt.IsZero() {
		lastTrade = m.LastTradeAt
	}
	if !m.LastTickAt.IsZero() {
		lastTick = m.LastTickAt
	}
	if _, err := r.db.ExecContext(ctx, q, botID, m.TradeCount, m.FailedCount, lastTrade, lastTick, time.Now().UTC()); err != nil {
		return fmt.Errorf("upsert bot metrics: %w: %v", ports.ErrQueryFailed, err)
	}
	return nil
}

// GetBotMetrics reads back the persisted snapshot for a bot.
// Returns nil, nil when the bot has no row yet.
func (r *Repository) GetBotMetrics(ctx context.Context, botID string) (*domain.BotMetrics, error) {
	const q = `SELECT trade_count, failed_count, last_trade_at, last_tick_at FROM bot_metrics WHERE bot_id = ?`
	m := &domain.BotMetrics{}
	var lastTrade, lastTick sql.NullTime
	err := r.db.QueryRowContext(ctx, q, botID).Scan(&m.TradeCount, &m.FailedCount, &lastTrade, &lastTick)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query bot metrics: %w: %v", ports.ErrQueryFailed, err)
	}
	if lastTrade.Valid {
		m.LastTradeAt = lastTrade.Time
	}
	if lastTick.Valid {
		m.LastTickAt = lastTick.Time
	}
	return m, nil
}

// Close closes the underlying database handle.
func (r *Repository) Close() error {
	return r.db.Close()
}
