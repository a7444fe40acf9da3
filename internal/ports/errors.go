package ports

import "errors"

// Standard application-level errors.
// Adapters wrap underlying infrastructure errors with these standard errors so
// the gateway can classify failures with errors.Is.
var (
	// General errors.
	ErrTimeout            = errors.New("operation timed out")
	ErrContextCanceled    = errors.New("operation canceled via context")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Transient exchange errors (retryable).
	ErrExchangeUnavailable = errors.New("exchange API is unavailable")
	ErrConnectionFailed    = errors.New("failed to connect to the exchange")
	ErrRateLimited         = errors.New("API rate limit exceeded")

	// Permanent exchange errors (never retried).
	ErrOrderRejected     = errors.New("order rejected by the exchange")
	ErrInvalidSymbol     = errors.New("symbol not supported by the exchange")
	ErrInsufficientFunds = errors.New("insufficient funds for operation")
	ErrOrderNotFound     = errors.New("order not found on the exchange")

	// Gateway state.
	ErrHalted = errors.New("order gateway is halted")

	// Supervisor errors.
	ErrAlreadyRunning = errors.New("a runner for this bot is already registered")
	ErrBotNotFound    = errors.New("no runner registered for this bot")

	// Position tracker errors.
	ErrPositionNotFound  = errors.New("position not found")
	ErrPositionNotOpen   = errors.New("position is not open")
	ErrDuplicatePosition = errors.New("an open position for this symbol already exists")

	// Database errors.
	ErrDBConnection = errors.New("database connection error")
	ErrQueryFailed  = errors.New("database query failed")
)

// IsTransient reports whether the error is a retryable infrastructure fault.
func IsTransient(err error) bool {
	return errors.Is(err, ErrTimeout) ||
		errors.Is(err, ErrRateLimited) ||
		errors.Is(err, ErrConnectionFailed) ||
		errors.Is(err, ErrExchangeUnavailable)
}
