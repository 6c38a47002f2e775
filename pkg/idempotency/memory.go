package idempotency

import (
	"context"
	"sync"
	"time"
)

// MemoryStore keeps idempotency records in process memory. Suitable for
// tests and single-node deployments; records do not survive restarts.
type MemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
	ttl     time.Duration
}

// NewMemoryStore creates an in-memory store. A ttl of zero keeps records
// forever; a positive ttl expires them and starts a background sweeper.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	s := &MemoryStore{
		records: make(map[string]Record),
		ttl:     ttl,
	}
	if ttl > 0 {
		go s.cleanup()
	}
	return s
}

// cleanup periodically removes expired records.
func (s *MemoryStore) cleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for range ticker.C {
		s.mu.Lock()
		now := time.Now()
		for k, rec := range s.records {
			if now.Sub(rec.CreatedAt) > s.ttl {
				delete(s.records, k)
			}
		}
		s.mu.Unlock()
	}
}

func (s *MemoryStore) expired(rec Record) bool {
	return s.ttl > 0 && time.Since(rec.CreatedAt) > s.ttl
}

// Get returns the record for key if present and not expired.
func (s *MemoryStore) Get(_ context.Context, key string) (Record, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[key]
	if !ok || s.expired(rec) {
		return Record{}, false, nil
	}
	return rec, true, nil
}

// PutIfAbsent inserts rec unless a live record already holds the key.
func (s *MemoryStore) PutIfAbsent(_ context.Context, rec Record) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.records[rec.Key]; ok && !s.expired(existing) {
		return false, nil
	}
	s.records[rec.Key] = rec
	return true, nil
}

// Len reports the number of records currently held, expired or not.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
