package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRecord_WritesPrefixedJSONLine(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithWriter(&buf)

	err := l.Record(context.Background(), EventCommit, "scanner-7", "commit_scan", "scan-1", map[string]any{
		"posting_intent": "RECEIVE",
		"status":         "accepted",
	})
	require.NoError(t, err)

	line := buf.String()
	require.True(t, strings.HasPrefix(line, "AUDIT: "), "line must carry the AUDIT prefix: %q", line)
	require.True(t, strings.HasSuffix(line, "\n"))

	var event Event
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(line), "AUDIT: ")), &event))
	assert.NotEmpty(t, event.ID)
	assert.Equal(t, "scanner-7", event.Actor)
	assert.Equal(t, EventCommit, event.Type)
	assert.Equal(t, "commit_scan", event.Action)
	assert.Equal(t, "scan-1", event.Resource)
	assert.Equal(t, "RECEIVE", event.Metadata["posting_intent"])
	assert.False(t, event.Timestamp.IsZero())
}

func TestRecord_DefaultsActorToSystem(t *testing.T) {
	var buf bytes.Buffer
	l := NewLoggerWithWriter(&buf)

	require.NoError(t, l.Record(context.Background(), EventPolicy, "", "activate_policy", "version-3", nil))

	var event Event
	require.NoError(t, json.Unmarshal([]byte(strings.TrimPrefix(strings.TrimSpace(buf.String()), "AUDIT: ")), &event))
	assert.Equal(t, "system", event.Actor)
}

func TestNewLoggerWithWriter_NilFallsBackToStdout(t *testing.T) {
	assert.NotNil(t, NewLoggerWithWriter(nil))
}
