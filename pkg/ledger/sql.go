package ledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

// The composite primary key enforces the business-key uniqueness the dedup
// semantics depend on.
const ledgerSchema = `
CREATE TABLE IF NOT EXISTS commit_records (
	scan_id         TEXT NOT NULL,
	posting_intent  TEXT NOT NULL,
	idempotency_key TEXT NOT NULL,
	request_hash    TEXT NOT NULL,
	status          TEXT NOT NULL,
	response        TEXT NOT NULL,
	created_at      TIMESTAMP NOT NULL,
	PRIMARY KEY (scan_id, posting_intent)
);`

// SQLLedger implements Ledger using database/sql.
// It supports both Postgres and SQLite via standard drivers.
type SQLLedger struct {
	db *sql.DB
}

// NewSQLLedger wraps an open database handle.
func NewSQLLedger(db *sql.DB) *SQLLedger {
	return &SQLLedger{db: db}
}

// Init creates the commit_records table if it does not exist.
func (l *SQLLedger) Init(ctx context.Context) error {
	if _, err := l.db.ExecContext(ctx, ledgerSchema); err != nil {
		return fmt.Errorf("init ledger schema: %w", err)
	}
	return nil
}

// Find returns the record for the business key, or ErrNotFound.
func (l *SQLLedger) Find(ctx context.Context, scanID, postingIntent string) (CommitRecord, error) {
	query := `SELECT scan_id, posting_intent, idempotency_key, request_hash, status, response, created_at
		FROM commit_records WHERE scan_id = $1 AND posting_intent = $2`

	var (
		rec       CommitRecord
		response  []byte
		createdAt time.Time
	)
	err := l.db.QueryRowContext(ctx, query, scanID, postingIntent).Scan(
		&rec.ScanID, &rec.PostingIntent, &rec.IdempotencyKey, &rec.RequestHash,
		&rec.Status, &response, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return CommitRecord{}, ErrNotFound
	}
	if err != nil {
		return CommitRecord{}, fmt.Errorf("query commit record: %w", err)
	}
	rec.Response = response
	rec.CreatedAt = createdAt.UTC()
	return rec, nil
}

// Insert stores rec unless its business key is already taken. ON CONFLICT
// DO NOTHING keeps the first writer's record; losers see inserted=false.
func (l *SQLLedger) Insert(ctx context.Context, rec CommitRecord) (bool, error) {
	query := `INSERT INTO commit_records (scan_id, posting_intent, idempotency_key, request_hash, status, response, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		ON CONFLICT (scan_id, posting_intent) DO NOTHING`

	res, err := l.db.ExecContext(ctx, query,
		rec.ScanID, rec.PostingIntent, rec.IdempotencyKey, rec.RequestHash,
		rec.Status, string(rec.Response), rec.CreatedAt,
	)
	if err != nil {
		return false, fmt.Errorf("insert commit record: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("insert commit record: %w", err)
	}
	return n > 0, nil
}
