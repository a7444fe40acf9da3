package domain

import (
	"time"

	"github.com/google/uuid"
)

// TradeOrder is the intent to trade on an exchange. It is immutable once
// submitted; retries and corrections always create a new order.
type TradeOrder struct {
	ID          string    // Internal order id (UUID)
	AccountID   string    // Owning account
	BotID       string    // Originating bot, empty for externally sourced signals
	SignalID    string    // Signal that produced this order
	Exchange    string    // Target exchange name
	Symbol      string    // Trading symbol (e.g. "ETHUSDT")
	Side        OrderSide // BUY or SELL
	Kind        OrderKind // MARKET, LIMIT or STOP
	Quantity    float64   // Size of the order
	Price       float64   // Limit price (0 for market orders)
	StopPrice   float64   // Trigger price for STOP orders (0 otherwise)
	StrategyTag string    // Strategy that requested the order
	Reduce      bool      // True when the order flattens an existing position

	// Retry budget consumed by the gateway.
	MaxRetries int           // Maximum submission attempts
	RetryDelay time.Duration // Base delay; attempt n waits RetryDelay * n

	CreatedAt time.Time
}

// NewOrderID returns a fresh internal order identifier.
func NewOrderID() string {
	return uuid.NewString()
}

// Notional returns the order's notional value at the given reference price.
// Limit and stop orders use their own price when set.
func (o *TradeOrder) Notional(refPrice float64) float64 {
	price := refPrice
	if o.Price > 0 {
		price = o.Price
	}
	return o.Quantity * price
}

// ErrorClass buckets a failed submission attempt for retry decisions.
type ErrorClass string

const (
	ErrClassNone      ErrorClass = ""          // Successful attempt
	ErrClassTransient ErrorClass = "TRANSIENT" // Timeout, rate limit, connectivity; retryable
	ErrClassPermanent ErrorClass = "PERMANENT" // Exchange rejection, bad symbol; never retried
	ErrClassHalted    ErrorClass = "HALTED"    // Gateway emergency halt in effect
	ErrClassCancelled ErrorClass = "CANCELLED" // Caller context cancelled; never retried
)

// OrderResult records the outcome of a single submission attempt.
// Results are never mutated; each attempt appends a new one.
type OrderResult struct {
	OrderID         string     // Internal order id
	Attempt         int        // 1-based attempt number
	Success         bool       // Whether the exchange accepted and filled the order
	ExchangeOrderID string     // Exchange-assigned id, empty on failure
	FilledPrice     float64    // Average fill price
	FilledQuantity  float64    // Filled quantity
	ErrClass        ErrorClass // Failure classification, ErrClassNone on success
	ErrText         string     // Underlying error text for diagnostics
	Timestamp       time.Time
}

// Submission is the full history of one order driven through the gateway.
type Submission struct {
	Order    *TradeOrder
	Attempts []*OrderResult
}

// Final returns the last attempt's result, or nil when nothing was attempted.
func (s *Submission) Final() *OrderResult {
	if len(s.Attempts) == 0 {
		return nil
	}
	return s.Attempts[len(s.Attempts)-1]
}

// Fill is the raw fill report returned by an exchange connector.
type Fill struct {
	ExchangeOrderID string
	Price           float64
	Quantity        float64
	Timestamp       time.Time
}
