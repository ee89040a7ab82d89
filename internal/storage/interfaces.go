// Package storage defines persistence interfaces for the lottery.
package storage

import (
	"context"

	"fee-lottery/internal/domain"
)

// WinnerStore is the append-only per-cycle audit ledger.
//
// InsertIfAbsent is the idempotency gate: the store enforces uniqueness
// on cycle_id and a duplicate-key result is the authoritative
// already-processed signal, not the preliminary read.
type WinnerStore interface {
	// InsertIfAbsent appends the record. Returns ErrDuplicateKey when a
	// record for the cycle already exists; the stored record is untouched.
	InsertIfAbsent(ctx context.Context, record *domain.WinnerRecord) error

	// GetByCycle retrieves the record for a cycle id.
	// Returns ErrNotFound if absent.
	GetByCycle(ctx context.Context, cycleID int64) (*domain.WinnerRecord, error)

	// ListRecent returns up to n records, most recent cycle first.
	ListRecent(ctx context.Context, n int) ([]*domain.WinnerRecord, error)
}

// CycleEventSink receives analytics rows for terminal cycle outcomes.
type CycleEventSink interface {
	InsertCycleEvent(ctx context.Context, event *domain.CycleEvent) error
}
