package ledger

import (
	"context"
	"sync"
)

type businessKey struct {
	scanID        string
	postingIntent string
}

// MemoryLedger keeps commit records in process memory. Suitable for tests
// and single-node deployments; records do not survive restarts.
type MemoryLedger struct {
	mu      sync.RWMutex
	records map[businessKey]CommitRecord
}

// NewMemoryLedger creates an empty in-memory ledger.
func NewMemoryLedger() *MemoryLedger {
	return &MemoryLedger{records: make(map[businessKey]CommitRecord)}
}

// Find returns the record for the business key, or ErrNotFound.
func (l *MemoryLedger) Find(_ context.Context, scanID, postingIntent string) (CommitRecord, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	rec, ok := l.records[businessKey{scanID, postingIntent}]
	if !ok {
		return CommitRecord{}, ErrNotFound
	}
	return rec, nil
}

// Insert stores rec unless its business key is already taken.
func (l *MemoryLedger) Insert(_ context.Context, rec CommitRecord) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	key := businessKey{rec.ScanID, rec.PostingIntent}
	if _, ok := l.records[key]; ok {
		return false, nil
	}
	l.records[key] = rec
	return true, nil
}
