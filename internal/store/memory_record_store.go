package store

import (
	"context"
	"sort"
	"sync"

	"relentless-relay/internal/models"
)

// MemoryRecordStore keeps records in process. Used for dry runs and tests.
type MemoryRecordStore struct {
	mu      sync.Mutex
	records map[string]models.Record
	writes  int
}

func NewMemoryRecordStore() *MemoryRecordStore {
	return &MemoryRecordStore{records: make(map[string]models.Record)}
}

// Put upserts rec by key, keeping the first FetchedAt.
func (s *MemoryRecordStore) Put(_ context.Context, rec models.Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.records[rec.Key]; ok && !prev.FetchedAt.IsZero() {
		rec.FetchedAt = prev.FetchedAt
	}
	s.records[rec.Key] = rec
	s.writes++
	return nil
}

// Get returns the record stored under key.
func (s *MemoryRecordStore) Get(key string) (models.Record, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[key]
	return rec, ok
}

// Keys returns the stored keys in sorted order.
func (s *MemoryRecordStore) Keys() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	keys := make([]string, 0, len(s.records))
	for k := range s.records {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Len is the number of distinct keys.
func (s *MemoryRecordStore) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.records)
}

// Writes counts Put calls, including overwrites.
func (s *MemoryRecordStore) Writes() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writes
}
