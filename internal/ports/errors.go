package ports

import "errors"

// Standard application-level errors.
// Adapters should wrap underlying infrastructure errors with these standard errors.
var (
	// General Errors
	ErrUnknown            = errors.New("unknown error occurred")
	ErrInvalidRequest     = errors.New("invalid request parameters or format")
	ErrNotFound           = errors.New("resource not found")
	ErrTimeout            = errors.New("operation timed out")
	ErrConfigurationError = errors.New("invalid or missing configuration")

	// Precondition Errors (fatal, the batch aborts)
	ErrNoTrades       = errors.New("no trades present, seed the ledger first")
	ErrNoPrices       = errors.New("no historical prices present, seed the ledger first")
	ErrNoCachedPrices = errors.New("no cached live prices present, seed the cache first")

	// Data Inconsistency Errors (fatal for the affected date; a corrupted
	// snapshot must never be emitted)
	ErrMissingPrice = errors.New("no close price for an open position")
	ErrZeroCost     = errors.New("zero cost basis for an open position")

	// Price Source Errors
	// ErrMalformedResponse marks the recognized "upstream returned an
	// unexpected payload shape" condition; the live price cache recovers
	// from it by serving stale values. Anything else propagates.
	ErrMalformedResponse    = errors.New("malformed response from price source")
	ErrSourceUnavailable    = errors.New("price source is unavailable")
	ErrRateLimited          = errors.New("API rate limit exceeded")
	ErrAuthenticationFailed = errors.New("price source authentication failed (check API keys)")

	// Database Specific Errors
	ErrDuplicateEntry = errors.New("database record already exists")
	ErrDBConnection   = errors.New("database connection error")
	ErrQueryFailed    = errors.New("database query failed")
	ErrUpdateFailed   = errors.New("database update failed")
)
