package postgres

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"fee-lottery/internal/domain"
	"fee-lottery/internal/storage"
)

// WinnerStore implements storage.WinnerStore using PostgreSQL.
// The winners table carries a UNIQUE constraint on cycle_id, so the
// insert itself is the idempotency gate for concurrent triggers.
type WinnerStore struct {
	pool *Pool
}

// NewWinnerStore creates a new WinnerStore.
func NewWinnerStore(pool *Pool) *WinnerStore {
	return &WinnerStore{pool: pool}
}

// Compile-time interface check.
var _ storage.WinnerStore = (*WinnerStore)(nil)

// InsertIfAbsent appends the record. Returns ErrDuplicateKey if a record
// for the cycle already exists; the stored row is never updated.
func (s *WinnerStore) InsertIfAbsent(ctx context.Context, r *domain.WinnerRecord) error {
	if r == nil || r.Status == "" {
		return storage.ErrInvalidInput
	}

	query := `
		INSERT INTO winners (
			cycle_id, status, wallet, amount_sol, signature,
			vrf_seed, vrf_tx, vrf_randomness, vrf_random_value, vrf_error,
			jackpot_address, jackpot_amount_sol, jackpot_signature,
			created_at
		) VALUES (
			$1, $2, $3, $4, $5,
			$6, $7, $8, $9, $10,
			$11, $12, $13,
			$14
		)
	`

	_, err := s.pool.Exec(ctx, query,
		r.CycleID, string(r.Status), r.Wallet, r.AmountSOL, r.Signature,
		r.VRFSeed, r.VRFTx, r.VRFRandomness, r.VRFRandomValue, r.VRFError,
		r.JackpotAddress, r.JackpotAmountSOL, r.JackpotSignature,
		r.CreatedAt,
	)
	if err != nil {
		if isDuplicateKeyError(err) {
			return storage.ErrDuplicateKey
		}
		return fmt.Errorf("insert winner record: %w", err)
	}
	return nil
}

// GetByCycle retrieves the record for a cycle id. Returns ErrNotFound if absent.
func (s *WinnerStore) GetByCycle(ctx context.Context, cycleID int64) (*domain.WinnerRecord, error) {
	query := `
		SELECT
			cycle_id, status, wallet, amount_sol, signature,
			vrf_seed, vrf_tx, vrf_randomness, vrf_random_value, vrf_error,
			jackpot_address, jackpot_amount_sol, jackpot_signature,
			created_at
		FROM winners
		WHERE cycle_id = $1
	`

	row := s.pool.QueryRow(ctx, query, cycleID)
	r, err := scanWinnerRecord(row)
	if err != nil {
		if isNotFoundError(err) {
			return nil, storage.ErrNotFound
		}
		return nil, fmt.Errorf("get winner record by cycle: %w", err)
	}
	return r, nil
}

// ListRecent returns up to n records, most recent cycle first.
func (s *WinnerStore) ListRecent(ctx context.Context, n int) ([]*domain.WinnerRecord, error) {
	if n <= 0 {
		return nil, storage.ErrInvalidInput
	}

	query := `
		SELECT
			cycle_id, status, wallet, amount_sol, signature,
			vrf_seed, vrf_tx, vrf_randomness, vrf_random_value, vrf_error,
			jackpot_address, jackpot_amount_sol, jackpot_signature,
			created_at
		FROM winners
		ORDER BY cycle_id DESC
		LIMIT $1
	`

	rows, err := s.pool.Query(ctx, query, n)
	if err != nil {
		return nil, fmt.Errorf("list recent winner records: %w", err)
	}
	defer rows.Close()

	var records []*domain.WinnerRecord
	for rows.Next() {
		r, err := scanWinnerRecord(rows)
		if err != nil {
			return nil, fmt.Errorf("scan winner record row: %w", err)
		}
		records = append(records, r)
	}

	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate winner record rows: %w", err)
	}

	return records, nil
}

// scanWinnerRecord scans a single row into a WinnerRecord.
func scanWinnerRecord(row pgx.Row) (*domain.WinnerRecord, error) {
	var r domain.WinnerRecord
	var status string

	err := row.Scan(
		&r.CycleID, &status, &r.Wallet, &r.AmountSOL, &r.Signature,
		&r.VRFSeed, &r.VRFTx, &r.VRFRandomness, &r.VRFRandomValue, &r.VRFError,
		&r.JackpotAddress, &r.JackpotAmountSOL, &r.JackpotSignature,
		&r.CreatedAt,
	)
	if err != nil {
		return nil, err
	}

	r.Status = domain.DistributionStatus(status)
	return &r, nil
}
