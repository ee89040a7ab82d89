package clickhouse

import (
	"context"
	"fmt"
	"time"

	"fee-lottery/internal/domain"
	"fee-lottery/internal/storage"
)

// CycleEventStore writes terminal cycle outcomes to ClickHouse for analytics.
// The table is append-only; the winners ledger in PostgreSQL stays the source
// of truth and this sink is never read back by the service.
type CycleEventStore struct {
	conn *Conn
}

// NewCycleEventStore creates a new CycleEventStore.
func NewCycleEventStore(conn *Conn) *CycleEventStore {
	return &CycleEventStore{conn: conn}
}

// Compile-time interface check.
var _ storage.CycleEventSink = (*CycleEventStore)(nil)

// InsertCycleEvent appends one analytics row.
func (s *CycleEventStore) InsertCycleEvent(ctx context.Context, e *domain.CycleEvent) error {
	if e == nil || e.Status == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO cycle_events (
			cycle_id, status, claimed_lamports, distributed_lamports,
			eligible_holders, event_time
		) VALUES (?, ?, ?, ?, ?, ?)
	`

	err := s.conn.Exec(ctx, query,
		e.CycleID,
		string(e.Status),
		e.ClaimedLamports,
		e.DistributedLamports,
		e.EligibleHolders,
		time.UnixMilli(e.TimestampMs).UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert cycle event: %w", err)
	}
	return nil
}
