package policy

import (
	"context"
	"encoding/json"
	"regexp"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSQLProvider_Init(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("an error '%s' was not expected when opening a stub database connection", err)
	}
	defer func() { _ = db.Close() }()

	mock.ExpectExec("CREATE TABLE IF NOT EXISTS policy_versions").
		WillReturnResult(sqlmock.NewResult(0, 0))

	require.NoError(t, NewSQLProvider(db).Init(context.Background()))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLProvider_ActivePolicy_DefaultWhenEmpty(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectQuery(regexp.QuoteMeta("SELECT version, document, created_at FROM policy_versions WHERE active = TRUE")).
		WillReturnRows(sqlmock.NewRows([]string{"version", "document", "created_at"}))

	p, err := NewSQLProvider(db).ActivePolicy(context.Background())
	require.NoError(t, err)
	assert.Equal(t, Default(), p, "no active row means the built-in default applies")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLProvider_ActiveVersion(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	pol := Default()
	pol.TrackingPolicy = TrackingLotAndSerial
	doc, err := json.Marshal(pol)
	require.NoError(t, err)

	created := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("WHERE active = TRUE ORDER BY version DESC LIMIT 1")).
		WillReturnRows(sqlmock.NewRows([]string{"version", "document", "created_at"}).
			AddRow(3, string(doc), created))

	v, err := NewSQLProvider(db).ActiveVersion(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 3, v.Version)
	assert.True(t, v.Active)
	assert.Equal(t, pol, v.Policy)
	assert.Equal(t, created, v.CreatedAt)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLProvider_Activate(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	mock.ExpectBegin()
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COALESCE(MAX(version), 0) + 1 FROM policy_versions")).
		WillReturnRows(sqlmock.NewRows([]string{"next"}).AddRow(4))
	mock.ExpectExec(regexp.QuoteMeta("UPDATE policy_versions SET active = FALSE WHERE active = TRUE")).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectExec("INSERT INTO policy_versions").
		WithArgs(4, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))
	mock.ExpectCommit()

	v, err := NewSQLProvider(db).Activate(context.Background(), Default())
	require.NoError(t, err)
	assert.Equal(t, 4, v)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestSQLProvider_ActivateRejectsInvalidBeforeTouchingDB(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	bad := Default()
	bad.NearExpirySeverity = "FATAL"
	_, err = NewSQLProvider(db).Activate(context.Background(), bad)
	require.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet(), "validation failures must not open a transaction")
}

func TestSQLProvider_Versions(t *testing.T) {
	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	defer func() { _ = db.Close() }()

	docA, _ := json.Marshal(Default())
	polB := Default()
	polB.NoBlock = true
	docB, _ := json.Marshal(polB)

	created := time.Date(2026, 2, 10, 9, 0, 0, 0, time.UTC)
	mock.ExpectQuery(regexp.QuoteMeta("ORDER BY version ASC")).
		WillReturnRows(sqlmock.NewRows([]string{"version", "active", "document", "created_at"}).
			AddRow(1, false, string(docA), created).
			AddRow(2, true, string(docB), created.Add(time.Hour)))

	versions, err := NewSQLProvider(db).Versions(context.Background())
	require.NoError(t, err)
	require.Len(t, versions, 2)
	assert.False(t, versions[0].Active)
	assert.True(t, versions[1].Active)
	assert.True(t, versions[1].Policy.NoBlock)
	assert.NoError(t, mock.ExpectationsWereMet())
}
