package policy

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParse_FullDocument(t *testing.T) {
	doc, err := Parse([]byte(`
engine: ">=1.0.0 <2.0.0"
name: strict-receiving
expiry_required: true
tracking_policy: LOT_AND_SERIAL
missing_gs_behavior: LOOKAHEAD
accept_numeric_as_gtin: false
enforce_gtin_checkdigit: true
near_expiry_threshold_days: 30
near_expiry_severity: BLOCK
allow_commit_on_warn: false
no_block: true
`))
	require.NoError(t, err)

	assert.Equal(t, "strict-receiving", doc.Name)
	assert.Equal(t, TrackingLotAndSerial, doc.TrackingPolicy)
	assert.Equal(t, MissingGSLookahead, doc.MissingGSBehavior)
	assert.False(t, doc.AcceptNumericAsGTIN)
	assert.Equal(t, 30, doc.NearExpiryThresholdDays)
	assert.Equal(t, SeverityBlock, doc.NearExpirySeverity)
	assert.False(t, doc.AllowCommitOnWarn)
	assert.True(t, doc.NoBlock)
}

func TestParse_PartialDocumentInheritsDefaults(t *testing.T) {
	doc, err := Parse([]byte("tracking_policy: SERIAL_ONLY\n"))
	require.NoError(t, err)

	assert.Equal(t, TrackingSerialOnly, doc.TrackingPolicy)

	// Everything else keeps the built-in default.
	def := Default()
	assert.Equal(t, def.ExpiryRequired, doc.ExpiryRequired)
	assert.Equal(t, def.MissingGSBehavior, doc.MissingGSBehavior)
	assert.Equal(t, def.NearExpiryThresholdDays, doc.NearExpiryThresholdDays)
	assert.Equal(t, def.AllowCommitOnWarn, doc.AllowCommitOnWarn)
}

func TestParse_UnknownKeyRejected(t *testing.T) {
	_, err := Parse([]byte("tracking_polcy: LOT_ONLY\n"))
	require.Error(t, err, "misspelled keys must not be silently ignored")
}

func TestParse_BadEnumRejected(t *testing.T) {
	_, err := Parse([]byte("missing_gs_behavior: RETRY\n"))
	require.Error(t, err)
}

func TestParse_NegativeThresholdRejected(t *testing.T) {
	_, err := Parse([]byte("near_expiry_threshold_days: -5\n"))
	require.Error(t, err)
}

func TestParse_EngineConstraint(t *testing.T) {
	_, err := Parse([]byte("engine: \">=1.0.0 <2.0.0\"\n"))
	assert.NoError(t, err)

	_, err = Parse([]byte("engine: \">=2.0.0\"\n"))
	assert.Error(t, err, "a policy written for a future engine must be refused")

	_, err = Parse([]byte("engine: \"one-point-oh\"\n"))
	assert.Error(t, err)
}

func TestParse_EmptyDocumentRejected(t *testing.T) {
	_, err := Parse([]byte("   \n"))
	require.Error(t, err)
}

func TestParse_MalformedYAML(t *testing.T) {
	_, err := Parse([]byte("tracking_policy: [unterminated"))
	require.Error(t, err)
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")
	require.NoError(t, os.WriteFile(path, []byte("near_expiry_threshold_days: 14\n"), 0o600))

	doc, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, 14, doc.NearExpiryThresholdDays)

	_, err = LoadFile(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
