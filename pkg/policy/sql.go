package policy

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// ErrNoActivePolicy is returned by SQLProvider.ActiveVersion when the table
// holds no active row. ActivePolicy itself falls back to Default() instead.
var ErrNoActivePolicy = errors.New("policy: no active version")

// SQLProvider stores policy versions in a relational table using database/sql.
// It supports both Postgres and SQLite via standard drivers. Each version is
// an immutable JSON document; activation flips the single active flag inside
// a transaction.
type SQLProvider struct {
	db *sql.DB
}

func NewSQLProvider(db *sql.DB) *SQLProvider {
	return &SQLProvider{db: db}
}

const policySchema = `
CREATE TABLE IF NOT EXISTS policy_versions (
	version INTEGER PRIMARY KEY,
	active BOOLEAN NOT NULL,
	document TEXT NOT NULL,
	created_at TIMESTAMP NOT NULL
);
`

// Init creates the backing table if it does not exist.
func (s *SQLProvider) Init(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, policySchema)
	return err
}

// ActivePolicy returns the active version's policy, or Default() when no
// version has been activated yet.
func (s *SQLProvider) ActivePolicy(ctx context.Context) (Policy, error) {
	v, err := s.ActiveVersion(ctx)
	if errors.Is(err, ErrNoActivePolicy) {
		return Default(), nil
	}
	if err != nil {
		return Policy{}, err
	}
	return v.Policy, nil
}

// ActiveVersion returns the active version row.
func (s *SQLProvider) ActiveVersion(ctx context.Context) (Version, error) {
	query := `SELECT version, document, created_at FROM policy_versions WHERE active = TRUE ORDER BY version DESC LIMIT 1`
	row := s.db.QueryRowContext(ctx, query)

	var v Version
	var doc string
	if err := row.Scan(&v.Version, &doc, &v.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Version{}, ErrNoActivePolicy
		}
		return Version{}, err
	}
	if err := json.Unmarshal([]byte(doc), &v.Policy); err != nil {
		return Version{}, fmt.Errorf("policy: decode version %d: %w", v.Version, err)
	}
	v.Active = true
	return v, nil
}

// Activate appends p as a new version and makes it the active one. The old
// active row is deactivated and the new row inserted with version = max+1 in
// a single transaction; prior versions are never modified otherwise.
func (s *SQLProvider) Activate(ctx context.Context, p Policy) (int, error) {
	if err := p.Validate(); err != nil {
		return 0, err
	}
	doc, err := json.Marshal(p)
	if err != nil {
		return 0, fmt.Errorf("policy: encode document: %w", err)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return 0, err
	}
	defer func() { _ = tx.Rollback() }()

	var next int
	row := tx.QueryRowContext(ctx, `SELECT COALESCE(MAX(version), 0) + 1 FROM policy_versions`)
	if err := row.Scan(&next); err != nil {
		return 0, err
	}

	if _, err := tx.ExecContext(ctx, `UPDATE policy_versions SET active = FALSE WHERE active = TRUE`); err != nil {
		return 0, err
	}

	insert := `INSERT INTO policy_versions (version, active, document, created_at) VALUES ($1, TRUE, $2, $3)`
	if _, err := tx.ExecContext(ctx, insert, next, string(doc), time.Now().UTC()); err != nil {
		return 0, err
	}

	if err := tx.Commit(); err != nil {
		return 0, err
	}
	return next, nil
}

// Versions returns the full activation history, oldest first.
func (s *SQLProvider) Versions(ctx context.Context) ([]Version, error) {
	query := `SELECT version, active, document, created_at FROM policy_versions ORDER BY version ASC`
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, err
	}
	defer func() { _ = rows.Close() }()

	result := make([]Version, 0)
	for rows.Next() {
		var v Version
		var doc string
		if err := rows.Scan(&v.Version, &v.Active, &doc, &v.CreatedAt); err != nil {
			return nil, err
		}
		if err := json.Unmarshal([]byte(doc), &v.Policy); err != nil {
			return nil, fmt.Errorf("policy: decode version %d: %w", v.Version, err)
		}
		result = append(result, v)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return result, nil
}
