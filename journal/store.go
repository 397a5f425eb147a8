package journal

import (
	"context"
	"errors"
	"fmt"
	"sync"
)

// ErrSeqConflict reports an append whose sequence number is not the next one.
var ErrSeqConflict = errors.New("journal sequence conflict")

// Store persists encoded journal entries.
type Store interface {
	// Append adds rec; rec.Seq must equal the number of records already stored.
	Append(ctx context.Context, rec Record) error
	// Load returns every record in sequence order.
	Load(ctx context.Context) ([]Record, error)
	Close() error
}

// MemoryStore keeps records in memory. Used in tests and when no journal path is set.
type MemoryStore struct {
	mu      sync.RWMutex
	records []Record
}

// NewMemoryStore returns an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

func (s *MemoryStore) Append(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rec.Seq != uint64(len(s.records)) {
		return fmt.Errorf("%w: got %d, want %d", ErrSeqConflict, rec.Seq, len(s.records))
	}
	rec.Body = append([]byte(nil), rec.Body...)
	rec.Hash = append([]byte(nil), rec.Hash...)
	s.records = append(s.records, rec)
	return nil
}

func (s *MemoryStore) Load(_ context.Context) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return append([]Record(nil), s.records...), nil
}

func (s *MemoryStore) Close() error { return nil }
