package ports

import (
	"context"

	"tradeEngine/internal/domain"
)

// TradeRecordRepository persists executed trades for reporting.
// Persistence is fire-and-forget: callers log failures and continue.
type TradeRecordRepository interface {
	// SaveTradeRecord stores one executed entry or close and returns its id.
	SaveTradeRecord(ctx context.Context, rec *domain.TradeRecord) (int64, error)
	// FindByAccount retrieves the most recent records for an account, up to a limit.
	FindByAccount(ctx context.Context, accountID string, limit int) ([]*domain.TradeRecord, error)
}

// BotMetricsRepository persists per-bot activity counters.
type BotMetricsRepository interface {
	// UpdateBotMetrics upserts the metrics snapshot for a bot.
	UpdateBotMetrics(ctx context.Context, botID string, m domain.BotMetrics) error
}
