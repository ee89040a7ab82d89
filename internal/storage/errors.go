package storage

import "errors"

// Storage errors for the append-only audit ledger.
var (
	// ErrNotFound is returned when a requested record does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicateKey is returned when a record for the cycle already
	// exists. The ledger is append-only; existing rows are never updated.
	ErrDuplicateKey = errors.New("duplicate key: cycle already recorded")

	// ErrInvalidInput is returned when input validation fails.
	ErrInvalidInput = errors.New("invalid input")
)
