package domain

import "time"

// EventType identifies a structured event emitted by the core for the
// external audit/notification layer. Delivery is fire-and-forget.
type EventType string

const (
	EventTradeExecuted       EventType = "bot.trade.executed"
	EventTradeFailed         EventType = "bot.trade.failed"
	EventTradeStale          EventType = "bot.trade.stale"
	EventTradeClosed         EventType = "bot.trade.closed"
	EventRiskRejected        EventType = "risk.rejected"
	EventGatewayHalted       EventType = "gateway.halted"
	EventGatewayResumed      EventType = "gateway.resumed"
	EventPositionUnprotected EventType = "position.unprotected"
	EventBotStarted          EventType = "bot.started"
	EventBotStopped          EventType = "bot.stopped"
)

// Event is one structured audit record.
type Event struct {
	Type      EventType
	AccountID string
	BotID     string
	Time      time.Time
	Fields    map[string]interface{}
}
