package memory

import (
	"context"
	"sync"
	"time"

	"siteRelay/internal/model"
	"siteRelay/internal/storage"
)

// Store is a mutex-guarded in-memory event store used by tests and
// local runs.
type Store struct {
	mu        sync.RWMutex
	records   []model.EventRecord
	connected bool
}

func NewStore() *Store {
	return &Store{connected: true}
}

// SetConnected flips the simulated connectivity state.
func (s *Store) SetConnected(connected bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.connected = connected
}

func (s *Store) Append(ctx context.Context, record model.EventRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.connected {
		return storage.ErrUnavailable
	}
	if record.PersistedAt.IsZero() {
		record.PersistedAt = time.Now().UTC()
	}
	s.records = append(s.records, record)
	return nil
}

func (s *Store) FindByTxHash(ctx context.Context, txHash string) (*model.EventRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if !s.connected {
		return nil, storage.ErrUnavailable
	}
	// Newest first, matching the Postgres store's ordering.
	for i := len(s.records) - 1; i >= 0; i-- {
		if s.records[i].TxHash == txHash {
			record := s.records[i]
			return &record, nil
		}
	}
	return nil, nil
}

func (s *Store) Connected(ctx context.Context) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.connected
}

// Len returns the number of stored records.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
