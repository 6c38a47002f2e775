package idempotency

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// idempotencySchema works on both Postgres and SQLite. The primary key on
// key is what makes PutIfAbsent atomic under concurrent writers.
const idempotencySchema = `
CREATE TABLE IF NOT EXISTS idempotency_records (
	key          TEXT PRIMARY KEY,
	request_hash TEXT NOT NULL,
	response     TEXT NOT NULL,
	created_at   TIMESTAMP NOT NULL
);`

// SQLStore persists idempotency records in a relational database. It
// supports both Postgres and SQLite via standard drivers.
type SQLStore struct {
	db *sql.DB
}

// NewSQLStore wraps an open database handle.
func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{db: db}
}

// Init creates the idempotency table if it does not exist.
func (s *SQLStore) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, idempotencySchema); err != nil {
		return fmt.Errorf("init idempotency schema: %w", err)
	}
	return nil
}

// Get returns the record for key, reporting whether one exists.
func (s *SQLStore) Get(ctx context.Context, key string) (Record, bool, error) {
	var (
		rec       Record
		response  []byte
		createdAt time.Time
	)
	err := s.db.QueryRowContext(ctx,
		`SELECT key, request_hash, response, created_at FROM idempotency_records WHERE key = $1`,
		key,
	).Scan(&rec.Key, &rec.RequestHash, &response, &createdAt)
	if errors.Is(err, sql.ErrNoRows) {
		return Record{}, false, nil
	}
	if err != nil {
		return Record{}, false, fmt.Errorf("query idempotency record: %w", err)
	}
	rec.Response = response
	rec.CreatedAt = createdAt.UTC()
	return rec, true, nil
}

// PutIfAbsent inserts rec unless the key is already taken. ON CONFLICT DO
// NOTHING keeps the first writer's record; losers see inserted=false and
// read the winner back.
func (s *SQLStore) PutIfAbsent(ctx context.Context, rec Record) (bool, error) {
	res, err := s.db.ExecContext(ctx,
		`INSERT INTO idempotency_records (key, request_hash, response, created_at)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (key) DO NOTHING`,
		rec.Key, rec.RequestHash, string(rec.Response), rec.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert idempotency record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert idempotency record: %w", err)
	}
	return n > 0, nil
}

// Cleanup removes records created before the cutoff. Callers that want a
// TTL run this on their own schedule.
func (s *SQLStore) Cleanup(ctx context.Context, olderThan time.Time) (int64, error) {
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM idempotency_records WHERE created_at < $1`, olderThan,
	)
	if err != nil {
		return 0, fmt.Errorf("cleanup idempotency records: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cleanup idempotency records: %w", err)
	}
	return n, nil
}
