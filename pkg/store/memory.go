package store

import (
	"context"
	"sync"
)

// MemoryScanStore keeps scan records in process memory. Suitable for tests
// and single-node deployments; records do not survive restarts.
type MemoryScanStore struct {
	mu      sync.RWMutex
	records map[string]ScanRecord
}

// NewMemoryScanStore creates an empty in-memory scan store.
func NewMemoryScanStore() *MemoryScanStore {
	return &MemoryScanStore{records: make(map[string]ScanRecord)}
}

// Get returns the record for scanID, or ErrNotFound.
func (s *MemoryScanStore) Get(_ context.Context, scanID string) (ScanRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.records[scanID]
	if !ok {
		return ScanRecord{}, ErrNotFound
	}
	return rec, nil
}

// Put stores rec, keeping any record already under its ID.
func (s *MemoryScanStore) Put(_ context.Context, rec ScanRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.records[rec.ScanID]; ok {
		return nil
	}
	s.records[rec.ScanID] = rec
	return nil
}

// Len reports the number of records currently held.
func (s *MemoryScanStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.records)
}
