package domain

// OrderSide represents the side of an order (BUY or SELL).
type OrderSide string

const (
	Buy  OrderSide = "BUY"
	Sell OrderSide = "SELL"
)

// Opposite returns the side used to flatten exposure opened with s.
func (s OrderSide) Opposite() OrderSide {
	if s == Buy {
		return Sell
	}
	return Buy
}

// Sign returns +1 for long exposure and -1 for short exposure, used in P&L math.
func (s OrderSide) Sign() float64 {
	if s == Buy {
		return 1
	}
	return -1
}

// OrderKind represents the execution type of an order.
type OrderKind string

const (
	KindMarket OrderKind = "MARKET"
	KindLimit  OrderKind = "LIMIT"
	KindStop   OrderKind = "STOP"
)

// PositionStatus represents the lifecycle status of a tracked position.
type PositionStatus string

const (
	StatusOpen    PositionStatus = "open"
	StatusClosing PositionStatus = "closing"
	StatusClosed  PositionStatus = "closed"
)

// ExecutionStatus is the state of one signal as it moves through the executor.
type ExecutionStatus string

const (
	ExecReceived    ExecutionStatus = "RECEIVED"
	ExecRiskChecked ExecutionStatus = "RISK_CHECKED"
	ExecSized       ExecutionStatus = "SIZED"
	ExecSubmitted   ExecutionStatus = "SUBMITTED"
	ExecExecuted    ExecutionStatus = "EXECUTED"
	ExecFailed      ExecutionStatus = "FAILED"
	ExecCancelled   ExecutionStatus = "CANCELLED"
)

// RunnerState is the lifecycle state of a single bot runner.
type RunnerState string

const (
	RunnerStopped  RunnerState = "STOPPED"
	RunnerStarting RunnerState = "STARTING"
	RunnerRunning  RunnerState = "RUNNING"
	RunnerPaused   RunnerState = "PAUSED"
	RunnerStopping RunnerState = "STOPPING"
	RunnerUnknown  RunnerState = "UNKNOWN"
)

// Reason is an enumerated, machine-readable cause for a terminal outcome.
// Free-text reasons are never surfaced so operators and tests can match on these.
type Reason string

const (
	// Risk ledger rejections.
	ReasonDailyLossExceeded    Reason = "DAILY_LOSS_EXCEEDED"
	ReasonMaxPositionsExceeded Reason = "MAX_POSITIONS_EXCEEDED"
	ReasonOrderTooLarge        Reason = "ORDER_TOO_LARGE"

	// Signal validation failures.
	ReasonSignalExpired     Reason = "SIGNAL_EXPIRED"
	ReasonLowConfidence     Reason = "LOW_CONFIDENCE"
	ReasonDuplicatePosition Reason = "DUPLICATE_POSITION"
	ReasonInvalidStop       Reason = "INVALID_STOP"
	ReasonSizeTooSmall      Reason = "SIZE_TOO_SMALL"
	ReasonNoVenue           Reason = "NO_VENUE"

	// Gateway outcomes.
	ReasonHalted           Reason = "HALTED"
	ReasonRetriesExhausted Reason = "RETRIES_EXHAUSTED"
	ReasonOrderRejected    Reason = "ORDER_REJECTED"

	// Runner outcomes.
	ReasonStaleResult Reason = "STALE_RESULT"
)

// CloseReason indicates why a position was closed.
type CloseReason string

const (
	CloseReasonStopLoss   CloseReason = "SL"
	CloseReasonTakeProfit CloseReason = "TP"
	CloseReasonSignal     CloseReason = "SIGNAL"
	CloseReasonManual     CloseReason = "MANUAL"
)
