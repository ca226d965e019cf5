package store

import (
	"sync"
	"time"
)

// InMemoryStore is a non-durable DedupStore used by tests and as a fallback
// when no store location is configured.
type InMemoryStore struct {
	mu      sync.Mutex
	records map[string]time.Time
}

// Compile-time check that InMemoryStore implements DedupStore.
var _ DedupStore = (*InMemoryStore)(nil)

// NewInMemoryStore creates an empty in-memory store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]time.Time)}
}

func (s *InMemoryStore) Has(eventID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	_, ok := s.records[eventID]
	return ok, nil
}

func (s *InMemoryStore) Record(eventID string, seenAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[eventID] = seenAt
	return nil
}

func (s *InMemoryStore) Prune(maxAge time.Duration) (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	cutoff := time.Now().Add(-maxAge)
	pruned := 0
	for id, seen := range s.records {
		if seen.Before(cutoff) {
			delete(s.records, id)
			pruned++
		}
	}
	return pruned, nil
}

func (s *InMemoryStore) Count() (int, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records), nil
}

func (s *InMemoryStore) Close() error { return nil }
