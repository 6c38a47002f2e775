// Package ledger is the commit dedup ledger: at most one accepted posting
// per (scan_id, posting_intent) business key, enforced independently of any
// client-supplied idempotency key. Only accepted postings are recorded; a
// rejected commit leaves the business key free so a corrected retry can
// still post.
package ledger

import (
	"context"
	"errors"
	"time"
)

// ErrNotFound is returned when no commit record exists for a business key.
var ErrNotFound = errors.New("commit record not found")

// Status is the outcome recorded for a posting.
type Status string

const (
	StatusAccepted Status = "accepted"
	StatusRejected Status = "rejected"
)

// Posting intents used by the receiving workflow. The ledger treats the
// intent as an opaque string; these are the two the warehouse flows post.
const (
	IntentReceive  = "RECEIVE"
	IntentTransfer = "TRANSFER"
)

// CommitRecord is one accepted posting pinned under its business key.
type CommitRecord struct {
	ScanID         string    `json:"scan_id"`
	PostingIntent  string    `json:"posting_intent"`
	IdempotencyKey string    `json:"idempotency_key"`
	RequestHash    string    `json:"request_hash"`
	Status         Status    `json:"status"`
	Response       []byte    `json:"response"`
	CreatedAt      time.Time `json:"created_at"`
}

// Ledger is the durable interface for commit records. Insert must be
// atomic: when two writers race on the same business key, exactly one
// observes inserted=true and the other reads the winner back via Find.
type Ledger interface {
	// Find returns the record for the business key, or ErrNotFound.
	Find(ctx context.Context, scanID, postingIntent string) (CommitRecord, error)

	// Insert stores rec under its unique business key, reporting whether
	// the insert happened. false means another record already holds the key.
	Insert(ctx context.Context, rec CommitRecord) (bool, error)
}
