package memory

import (
	"context"
	"sort"
	"sync"

	"fee-lottery/internal/domain"
	"fee-lottery/internal/storage"
)

// WinnerStore is an in-memory implementation of storage.WinnerStore.
// Intended for tests and local runs without PostgreSQL.
type WinnerStore struct {
	mu   sync.RWMutex
	data map[int64]*domain.WinnerRecord // keyed by cycle_id
}

// NewWinnerStore creates a new in-memory winner store.
func NewWinnerStore() *WinnerStore {
	return &WinnerStore{
		data: make(map[int64]*domain.WinnerRecord),
	}
}

// InsertIfAbsent appends the record. Returns ErrDuplicateKey if a record
// for the cycle already exists; the stored record is left untouched.
func (s *WinnerStore) InsertIfAbsent(_ context.Context, record *domain.WinnerRecord) error {
	if record == nil || record.Status == "" {
		return storage.ErrInvalidInput
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.data[record.CycleID]; exists {
		return storage.ErrDuplicateKey
	}

	copy := cloneRecord(record)
	s.data[record.CycleID] = copy
	return nil
}

// GetByCycle retrieves the record for a cycle id. Returns ErrNotFound if absent.
func (s *WinnerStore) GetByCycle(_ context.Context, cycleID int64) (*domain.WinnerRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, exists := s.data[cycleID]
	if !exists {
		return nil, storage.ErrNotFound
	}

	return cloneRecord(r), nil
}

// ListRecent returns up to n records, most recent cycle first.
func (s *WinnerStore) ListRecent(_ context.Context, n int) ([]*domain.WinnerRecord, error) {
	if n <= 0 {
		return nil, storage.ErrInvalidInput
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]*domain.WinnerRecord, 0, len(s.data))
	for _, r := range s.data {
		result = append(result, cloneRecord(r))
	}

	sort.Slice(result, func(i, j int) bool {
		return result[i].CycleID > result[j].CycleID
	})

	if len(result) > n {
		result = result[:n]
	}
	return result, nil
}

// cloneRecord deep-copies a record so callers cannot mutate stored state.
func cloneRecord(r *domain.WinnerRecord) *domain.WinnerRecord {
	copy := *r
	if r.VRFRandomness != nil {
		copy.VRFRandomness = append([]byte(nil), r.VRFRandomness...)
	}
	return &copy
}

var _ storage.WinnerStore = (*WinnerStore)(nil)
