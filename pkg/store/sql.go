package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"
)

const scanSchema = `
CREATE TABLE IF NOT EXISTS scan_records (
	scan_id    TEXT PRIMARY KEY,
	raw        TEXT NOT NULL,
	normalized TEXT NOT NULL,
	segments   TEXT NOT NULL,
	decision   TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);`

// SQLScanStore implements ScanStore using database/sql.
// It supports both Postgres and SQLite via standard drivers.
type SQLScanStore struct {
	db *sql.DB
}

// NewSQLScanStore wraps an open database handle.
func NewSQLScanStore(db *sql.DB) *SQLScanStore {
	return &SQLScanStore{db: db}
}

// Init creates the scan_records table if it does not exist.
func (s *SQLScanStore) Init(ctx context.Context) error {
	if _, err := s.db.ExecContext(ctx, scanSchema); err != nil {
		return fmt.Errorf("init scan schema: %w", err)
	}
	return nil
}

// Get returns the record for scanID, or ErrNotFound.
func (s *SQLScanStore) Get(ctx context.Context, scanID string) (ScanRecord, error) {
	query := `SELECT scan_id, raw, normalized, segments, decision, created_at
		FROM scan_records WHERE scan_id = $1`

	var (
		rec       ScanRecord
		segments  []byte
		decision  []byte
		createdAt time.Time
	)
	err := s.db.QueryRowContext(ctx, query, scanID).Scan(
		&rec.ScanID, &rec.Raw, &rec.Normalized, &segments, &decision, &createdAt,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return ScanRecord{}, ErrNotFound
	}
	if err != nil {
		return ScanRecord{}, fmt.Errorf("query scan record: %w", err)
	}
	rec.Segments = segments
	rec.Decision = decision
	rec.CreatedAt = createdAt.UTC()
	return rec, nil
}

// Put stores rec. Deterministic scan IDs mean a replayed record carries the
// same content, so ON CONFLICT DO NOTHING keeps the first writer's row.
func (s *SQLScanStore) Put(ctx context.Context, rec ScanRecord) error {
	query := `INSERT INTO scan_records (scan_id, raw, normalized, segments, decision, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)
		ON CONFLICT (scan_id) DO NOTHING`

	_, err := s.db.ExecContext(ctx, query,
		rec.ScanID, rec.Raw, rec.Normalized, string(rec.Segments), string(rec.Decision), rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert scan record: %w", err)
	}
	return nil
}
