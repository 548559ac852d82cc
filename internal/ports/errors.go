package ports

import "errors"

// Standard application-level errors.
// Adapters wrap underlying infrastructure errors with these sentinels so the
// core can branch with errors.Is without importing adapter packages.
var (
	// General errors
	ErrUnknown          = errors.New("unknown error occurred")
	ErrInvalidRequest   = errors.New("invalid request parameters or format")
	ErrNotFound         = errors.New("resource not found")
	ErrTimeout          = errors.New("operation timed out")
	ErrContextCanceled  = errors.New("operation canceled via context")
	ErrConfiguration    = errors.New("invalid or missing configuration")
	ErrInvalidTimeRange = errors.New("invalid time range")

	// Candle store errors
	ErrDataUnavailable = errors.New("candle store cannot answer the query")

	// Exchange errors
	ErrExchangeUnavailable  = errors.New("exchange API is unavailable")
	ErrConnectionFailed     = errors.New("failed to connect to the exchange")
	ErrRateLimited          = errors.New("API rate limit exceeded")
	ErrAuthenticationFailed = errors.New("exchange authentication failed (check API keys)")
	ErrInsufficientFunds    = errors.New("insufficient funds for operation")
	ErrOrderPlacementFailed = errors.New("failed to place order")

	// Ledger errors
	ErrDBConnection = errors.New("database connection error")
	ErrQueryFailed  = errors.New("database query failed")
	ErrUpdateFailed = errors.New("database update failed")
)
