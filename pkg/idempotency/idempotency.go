// Package idempotency provides exactly-once write semantics for scan
// commits. A caller supplies an idempotency key and a hash of the request
// payload; the first evaluation computes and stores the response, and every
// subsequent evaluation with the same key and hash replays the stored bytes
// without re-running the computation. The same key with a different payload
// hash is a conflict and is rejected.
package idempotency

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// ErrConflict is returned when an idempotency key is reused with a request
// payload that differs from the one originally recorded under that key.
var ErrConflict = errors.New("idempotency key reused with different payload")

// ConflictError carries the stored and offending hashes for diagnostics.
// errors.Is(err, ErrConflict) matches it.
type ConflictError struct {
	Key         string
	StoredHash  string
	RequestHash string
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("idempotency key %q reused: stored payload hash %s, got %s", e.Key, e.StoredHash, e.RequestHash)
}

func (e *ConflictError) Is(target error) bool { return target == ErrConflict }

// Record is one completed evaluation pinned under an idempotency key.
type Record struct {
	Key         string    `json:"key"`
	RequestHash string    `json:"request_hash"`
	Response    []byte    `json:"response"`
	CreatedAt   time.Time `json:"created_at"`
}

// Store persists idempotency records. PutIfAbsent must be atomic: when two
// writers race on the same key, exactly one observes inserted=true and the
// other reads back the winner's record.
type Store interface {
	// Get returns the record for key, reporting whether one exists.
	Get(ctx context.Context, key string) (Record, bool, error)
	// PutIfAbsent stores rec unless a record already exists for rec.Key.
	// It reports whether the insert happened.
	PutIfAbsent(ctx context.Context, rec Record) (bool, error)
}

// Outcome reports how a response was produced.
type Outcome string

const (
	// OutcomeComputed means compute ran and its response was recorded.
	OutcomeComputed Outcome = "computed"
	// OutcomeReplayed means a prior record matched and compute did not run.
	OutcomeReplayed Outcome = "replayed"
	// OutcomeRaced means compute ran but lost an insert race; the returned
	// response is the concurrent winner's.
	OutcomeRaced Outcome = "raced"
)

// Evaluate runs compute at most once per (key, requestHash) pair.
//
// A hit on a record with a matching hash replays the stored response
// byte-for-byte. A hit with a different hash returns a ConflictError. On a
// miss, compute runs and its response is inserted; if a concurrent writer
// beat us to the key, the winner's record is read back and returned instead,
// so every caller observing the same key and hash sees identical bytes.
// compute errors are returned as-is and nothing is recorded, leaving the key
// free for a retry.
func Evaluate(ctx context.Context, store Store, key, requestHash string, compute func(context.Context) ([]byte, error)) ([]byte, Outcome, error) {
	if key == "" {
		return nil, "", errors.New("idempotency key must not be empty")
	}

	rec, ok, err := store.Get(ctx, key)
	if err != nil {
		return nil, "", fmt.Errorf("idempotency lookup: %w", err)
	}
	if ok {
		if rec.RequestHash != requestHash {
			return nil, "", &ConflictError{Key: key, StoredHash: rec.RequestHash, RequestHash: requestHash}
		}
		return rec.Response, OutcomeReplayed, nil
	}

	response, err := compute(ctx)
	if err != nil {
		return nil, "", err
	}

	inserted, err := store.PutIfAbsent(ctx, Record{
		Key:         key,
		RequestHash: requestHash,
		Response:    response,
		CreatedAt:   time.Now().UTC(),
	})
	if err != nil {
		return nil, "", fmt.Errorf("idempotency record: %w", err)
	}
	if inserted {
		return response, OutcomeComputed, nil
	}

	// Lost the insert race. The store is authoritative: discard our result
	// and surface whatever the winner recorded.
	winner, ok, err := store.Get(ctx, key)
	if err != nil {
		return nil, "", fmt.Errorf("idempotency read-back: %w", err)
	}
	if !ok {
		return nil, "", fmt.Errorf("idempotency record for key %q vanished after insert race", key)
	}
	if winner.RequestHash != requestHash {
		return nil, "", &ConflictError{Key: key, StoredHash: winner.RequestHash, RequestHash: requestHash}
	}
	return winner.Response, OutcomeRaced, nil
}
