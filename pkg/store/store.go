// Package store persists scan records: the raw and normalized payloads
// plus the segments and decision produced when a scan was evaluated. The
// commit workflow reads these records to enforce its "scan must exist"
// precondition.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// ErrNotFound is returned when no scan record exists for an ID.
var ErrNotFound = errors.New("scan record not found")

// ScanRecord is one evaluated scan.
type ScanRecord struct {
	ScanID     string          `json:"scan_id"`
	Raw        string          `json:"raw"`
	Normalized string          `json:"normalized"`
	Segments   json.RawMessage `json:"segments"`
	Decision   json.RawMessage `json:"decision"`
	CreatedAt  time.Time       `json:"created_at"`
}

// ScanStore is the durable interface for scan records. Put is idempotent:
// replaying the same record is a no-op, and under a write race the first
// writer's record survives.
type ScanStore interface {
	// Get returns the record for scanID, or ErrNotFound.
	Get(ctx context.Context, scanID string) (ScanRecord, error)

	// Put stores rec, keeping any record already under its ID.
	Put(ctx context.Context, rec ScanRecord) error
}

// DeterministicScanID derives a stable UUID from the canonical request
// hash, so retried and raced evaluations of the same payload converge on
// one scan record instead of minting duplicates.
func DeterministicScanID(requestHash string) string {
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(requestHash)).String()
}
