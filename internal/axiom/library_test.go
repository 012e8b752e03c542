package axiom

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func writeAxiomFile(t *testing.T, dir, name, content string) {
	t.Helper()
	require.NoError(t, os.WriteFile(filepath.Join(dir, name), []byte(content), 0644))
}

func TestLoadDirParsesSingleAndArrayFiles(t *testing.T) {
	dir := t.TempDir()
	writeAxiomFile(t, dir, "single.json", `{"axiom_id":"a1","application":"scorer","enabled":true,"weight_modifier":{"if_x > 1":0.5}}`)
	writeAxiomFile(t, dir, "array.json", `[{"axiom_id":"a2","application":"filter","enabled":true,"weight_modifier":{"if_y < 0":-1}}]`)

	lib := NewLibrary()
	require.NoError(t, lib.LoadDir(dir))
	assert.Equal(t, 2, lib.Count())

	a1, ok := lib.Get("a1")
	require.True(t, ok)
	assert.Equal(t, ApplicationScorer, a1.Application)
}

func TestLoadDirMissingDirIsNotAnError(t *testing.T) {
	lib := NewLibrary()
	assert.NoError(t, lib.LoadDir("/nonexistent/path/xyz"))
	assert.Equal(t, 0, lib.Count())
}

func TestScoreAllSumsAcrossAxioms(t *testing.T) {
	dir := t.TempDir()
	writeAxiomFile(t, dir, "a.json", `[
		{"axiom_id":"a1","application":"scorer","enabled":true,"weight_modifier":{"if_confidence >= 0.5":0.3}},
		{"axiom_id":"a2","application":"scorer","enabled":true,"weight_modifier":{"if_sources >= 2":0.2}}
	]`)
	lib := NewLibrary()
	require.NoError(t, lib.LoadDir(dir))

	score := lib.ScoreAll(Subject{"confidence": 0.9, "sources": 3.0})
	assert.InDelta(t, 0.5, score, 1e-9)
}

func TestPassesAllFailsIfAnyFilterRejects(t *testing.T) {
	dir := t.TempDir()
	writeAxiomFile(t, dir, "a.json", `[{"axiom_id":"f1","application":"filter","enabled":true,"weight_modifier":{"if_confidence < 0.2":-1}}]`)
	lib := NewLibrary()
	require.NoError(t, lib.LoadDir(dir))

	assert.False(t, lib.PassesAll(Subject{"confidence": 0.1}))
	assert.True(t, lib.PassesAll(Subject{"confidence": 0.9}))
}

func TestStartWatchReloadsOnFileChange(t *testing.T) {
	dir := t.TempDir()
	writeAxiomFile(t, dir, "a.json", `[{"axiom_id":"a1","application":"scorer","enabled":true,"weight_modifier":{"if_x > 1":0.5}}]`)

	lib := NewLibrary()
	require.NoError(t, lib.LoadDir(dir))
	require.NoError(t, lib.StartWatch())
	defer lib.StopWatch()

	writeAxiomFile(t, dir, "b.json", `[{"axiom_id":"a2","application":"scorer","enabled":true,"weight_modifier":{"if_y > 1":0.5}}]`)

	require.Eventually(t, func() bool {
		return lib.Count() == 2
	}, 2*time.Second, 50*time.Millisecond)
}
