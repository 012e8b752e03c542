package logging

import (
	"bufio"
	"encoding/json"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAuditLogsTripletInserted(t *testing.T) {
	resetGlobals(t)
	dir := t.TempDir()
	require.NoError(t, Initialize(dir))
	ApplyConfig(SessionConfig{DebugMode: true, Level: "debug"})

	require.NoError(t, InitAudit())
	defer CloseAudit()

	AuditWithSession("sess-1").TripletInserted("t-1", "src-1")

	date := filepath.Base(auditFile.Name())
	path := filepath.Join(logsDir, date)
	f, err := os.Open(path)
	require.NoError(t, err)
	defer f.Close()

	scanner := bufio.NewScanner(f)
	require.True(t, scanner.Scan())

	var ev AuditEvent
	require.NoError(t, json.Unmarshal(scanner.Bytes(), &ev))
	assert.Equal(t, AuditTripletInserted, ev.EventType)
	assert.Equal(t, "t-1", ev.Target)
	assert.Equal(t, "sess-1", ev.SessionID)
}

func TestAuditNoOpWhenDebugDisabled(t *testing.T) {
	resetGlobals(t)
	dir := t.TempDir()
	require.NoError(t, Initialize(dir))

	require.NoError(t, InitAudit())
	defer CloseAudit()

	Audit().SessionStart("sess-2")
	assert.Nil(t, auditFile)
}
