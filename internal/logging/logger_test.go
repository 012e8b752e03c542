package logging

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func resetGlobals(t *testing.T) {
	t.Helper()
	CloseAll()
	workspace = ""
	logsDir = ""
	config = SessionConfig{}
	configLoaded = false
}

func TestInitializeWithoutConfigFileDisablesLogging(t *testing.T) {
	resetGlobals(t)
	dir := t.TempDir()
	require.NoError(t, Initialize(dir))
	assert.False(t, IsDebugMode())

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	assert.Empty(t, entries, "no logs directory should be created when debug mode is off")
}

func TestApplyConfigEnablesCategory(t *testing.T) {
	resetGlobals(t)
	dir := t.TempDir()
	require.NoError(t, Initialize(dir))

	ApplyConfig(SessionConfig{DebugMode: true, Level: "debug"})
	assert.True(t, IsDebugMode())
	assert.True(t, IsCategoryEnabled(CategoryStore))
}

func TestApplyConfigCategoryToggleOff(t *testing.T) {
	resetGlobals(t)
	dir := t.TempDir()
	require.NoError(t, Initialize(dir))

	ApplyConfig(SessionConfig{
		DebugMode:  true,
		Categories: map[string]bool{string(CategoryStore): false},
	})
	assert.False(t, IsCategoryEnabled(CategoryStore))
	assert.True(t, IsCategoryEnabled(CategoryMCTS))
}

func TestGetWritesLogFile(t *testing.T) {
	resetGlobals(t)
	dir := t.TempDir()
	require.NoError(t, os.MkdirAll(dir, 0755))
	workspace = dir
	logsDir = filepath.Join(dir, "logs")
	require.NoError(t, os.MkdirAll(logsDir, 0755))
	ApplyConfig(SessionConfig{DebugMode: true, Level: "debug"})

	log := Get(CategoryBudget)
	log.Info("budget allocated: %d", 2000)
	CloseAll()

	entries, err := os.ReadDir(logsDir)
	require.NoError(t, err)
	require.NotEmpty(t, entries)
}

func TestTimerStopReturnsElapsed(t *testing.T) {
	resetGlobals(t)
	timer := StartTimer(CategoryMCTS, "select")
	elapsed := timer.Stop()
	assert.GreaterOrEqual(t, elapsed.Nanoseconds(), int64(0))
}
