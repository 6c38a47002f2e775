package store

import (
	"context"
	"errors"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDeterministicScanID(t *testing.T) {
	a := DeterministicScanID("sha256:abc")
	b := DeterministicScanID("sha256:abc")
	c := DeterministicScanID("sha256:def")

	assert.Equal(t, a, b, "same hash must yield the same scan ID")
	assert.NotEqual(t, a, c, "different hashes must yield different scan IDs")
	assert.Len(t, a, 36, "scan IDs are canonical UUID strings")
}

func TestMemoryScanStore_GetMiss(t *testing.T) {
	s := NewMemoryScanStore()

	_, err := s.Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
}

func TestMemoryScanStore_PutIsIdempotent(t *testing.T) {
	s := NewMemoryScanStore()
	ctx := context.Background()

	first := ScanRecord{
		ScanID:     "scan-1",
		Raw:        "]C10100012345678905",
		Normalized: "0100012345678905",
		Segments:   []byte(`[{"ai":"01","value":"00012345678905"}]`),
		Decision:   []byte(`{"decision":"PASS"}`),
		CreatedAt:  time.Now().UTC(),
	}
	require.NoError(t, s.Put(ctx, first))

	// A replay with diverging content must not clobber the original.
	replay := first
	replay.Decision = []byte(`{"decision":"WARN"}`)
	require.NoError(t, s.Put(ctx, replay))

	got, err := s.Get(ctx, "scan-1")
	require.NoError(t, err)
	assert.Equal(t, first, got)
	assert.Equal(t, 1, s.Len())
}

func TestSQLScanStore_Init(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS scan_records").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, NewSQLScanStore(db).Init(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLScanStore_RoundTrip(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	created := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	rec := ScanRecord{
		ScanID:     "scan-1",
		Raw:        "0100012345678905",
		Normalized: "0100012345678905",
		Segments:   []byte(`[]`),
		Decision:   []byte(`{}`),
		CreatedAt:  created,
	}

	mock.ExpectExec("INSERT INTO scan_records").
		WithArgs("scan-1", rec.Raw, rec.Normalized, "[]", "{}", created).
		WillReturnResult(sqlmock.NewResult(0, 1))

	store := NewSQLScanStore(db)
	require.NoError(t, store.Put(context.Background(), rec))

	rows := sqlmock.NewRows([]string{"scan_id", "raw", "normalized", "segments", "decision", "created_at"}).
		AddRow("scan-1", rec.Raw, rec.Normalized, []byte(`[]`), []byte(`{}`), created)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT scan_id, raw, normalized, segments, decision, created_at")).
		WithArgs("scan-1").
		WillReturnRows(rows)

	got, err := store.Get(context.Background(), "scan-1")
	require.NoError(t, err)
	assert.Equal(t, rec, got)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLScanStore_GetMiss(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery("SELECT .* FROM scan_records").
		WithArgs("missing").
		WillReturnRows(sqlmock.NewRows([]string{"scan_id", "raw", "normalized", "segments", "decision", "created_at"}))

	_, err = NewSQLScanStore(db).Get(context.Background(), "missing")
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.NoError(t, mock.ExpectationsWereMet())
}
