package usecase

import "errors"

var (
	// ErrStoreUnavailable is returned when the candle store itself fails.
	// It is the only error class that aborts a whole ingestion batch.
	ErrStoreUnavailable = errors.New("candle store unavailable")

	// ErrSourceFailure is returned when the batch source cannot be read.
	ErrSourceFailure = errors.New("batch source failure")

	// ErrInvalidQuery is returned when query parameters cannot be satisfied.
	ErrInvalidQuery = errors.New("invalid candle query")
)
