package store

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m,
		goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"),
	)
}

func newTestStore(t *testing.T) *Store {
	t.Helper()
	dir := t.TempDir()
	s, err := Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func sampleTriplet() *Triplet {
	return &Triplet{
		Subject:   "mitochondria",
		Predicate: "produces",
		Object:    "atp",
		Confidence: 0.8,
		Provenance: Provenance{
			SourceID:         "doc-1",
			ExtractionMethod: ExtractionLLMStructured,
			ModelID:          "gemini-2.5-flash",
		},
	}
}

func TestInsertAssignsIDAndTimestamps(t *testing.T) {
	s := newTestStore(t)
	tr := sampleTriplet()
	require.NoError(t, s.Insert(tr))
	assert.NotEmpty(t, tr.ID)
	assert.False(t, tr.CreatedAt.IsZero())
	assert.Equal(t, TierBronze, tr.Tier)
}

func TestInsertRejectsDuplicateID(t *testing.T) {
	s := newTestStore(t)
	tr := sampleTriplet()
	require.NoError(t, s.Insert(tr))

	dup := sampleTriplet()
	dup.ID = tr.ID
	err := s.Insert(dup)
	assert.ErrorIs(t, err, ErrDuplicateID)
}

func TestInsertRejectsInvalidTriplet(t *testing.T) {
	s := newTestStore(t)
	tr := sampleTriplet()
	tr.Object = tr.Subject
	err := s.Insert(tr)
	assert.Error(t, err)
}

func TestGetReturnsNotFoundForMissingID(t *testing.T) {
	s := newTestStore(t)
	_, err := s.Get("does-not-exist")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestGetRoundTripsProvenance(t *testing.T) {
	s := newTestStore(t)
	tr := sampleTriplet()
	require.NoError(t, s.Insert(tr))

	got, err := s.Get(tr.ID)
	require.NoError(t, err)
	assert.Equal(t, tr.Subject, got.Subject)
	assert.Equal(t, tr.Provenance.SourceID, got.Provenance.SourceID)
	assert.Equal(t, ExtractionLLMStructured, got.Provenance.ExtractionMethod)

	// Provenance must round-trip through its JSON blob column untouched,
	// aside from timestamps the store stamps on insert.
	if diff := cmp.Diff(tr.Provenance, got.Provenance, cmpopts.EquateApproxTime(time.Second)); diff != "" {
		t.Errorf("provenance round-trip mismatch (-want +got):\n%s", diff)
	}
}

func TestQueryFiltersByTierAndConfidence(t *testing.T) {
	s := newTestStore(t)
	low := sampleTriplet()
	low.Confidence = 0.3
	require.NoError(t, s.Insert(low))

	high := sampleTriplet()
	high.Subject = "ribosome"
	high.Confidence = 0.9
	require.NoError(t, s.Insert(high))

	results, err := s.QueryTriplets(Query{MinConfidence: 0.5, Limit: 10})
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "ribosome", results[0].Subject)
}

func TestSearchFindsBySubjectText(t *testing.T) {
	s := newTestStore(t)
	tr := sampleTriplet()
	require.NoError(t, s.Insert(tr))

	results, err := s.Search("mitochondria", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, tr.ID, results[0].ID)
}

func TestSearchExcludesDeletedTriplet(t *testing.T) {
	s := newTestStore(t)
	tr := sampleTriplet()
	require.NoError(t, s.Insert(tr))
	require.NoError(t, s.Delete(tr.ID))

	results, err := s.Search("mitochondria", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestUpdateTierRejectsUnknownTier(t *testing.T) {
	s := newTestStore(t)
	tr := sampleTriplet()
	require.NoError(t, s.Insert(tr))

	err := s.UpdateTier(tr.ID, Tier("platinum"))
	assert.Error(t, err)
}

func TestUpdateTierPersists(t *testing.T) {
	s := newTestStore(t)
	tr := sampleTriplet()
	require.NoError(t, s.Insert(tr))

	require.NoError(t, s.UpdateTier(tr.ID, TierGold))
	got, err := s.Get(tr.ID)
	require.NoError(t, err)
	assert.Equal(t, TierGold, got.Tier)
}

func TestUpdateProvenanceAccumulatesSources(t *testing.T) {
	s := newTestStore(t)
	tr := sampleTriplet()
	require.NoError(t, s.Insert(tr))

	require.NoError(t, s.UpdateProvenance(tr.ID, true, "doc-2"))
	got, err := s.Get(tr.ID)
	require.NoError(t, err)
	assert.True(t, got.Provenance.Verified)
	assert.Equal(t, 2, got.Provenance.EffectiveSourceCount())

	// Re-adding the same source must not double count.
	require.NoError(t, s.UpdateProvenance(tr.ID, true, "doc-2"))
	got2, err := s.Get(tr.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, got2.Provenance.EffectiveSourceCount())
}

func TestDeleteRemovesTriplet(t *testing.T) {
	s := newTestStore(t)
	tr := sampleTriplet()
	require.NoError(t, s.Insert(tr))
	require.NoError(t, s.Delete(tr.ID))

	_, err := s.Get(tr.ID)
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestDeleteMissingReturnsNotFound(t *testing.T) {
	s := newTestStore(t)
	err := s.Delete("nope")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestComputeStatsCountsByTier(t *testing.T) {
	s := newTestStore(t)
	bronze := sampleTriplet()
	require.NoError(t, s.Insert(bronze))

	silver := sampleTriplet()
	silver.Subject = "ribosome"
	silver.Tier = TierSilver
	require.NoError(t, s.Insert(silver))

	stats, err := s.ComputeStats()
	require.NoError(t, err)
	assert.Equal(t, int64(1), stats.Bronze)
	assert.Equal(t, int64(1), stats.Silver)
	assert.Equal(t, int64(2), stats.Total)
}

func TestQueryBySourceReturnsMatchingTriplets(t *testing.T) {
	s := newTestStore(t)
	tr := sampleTriplet()
	require.NoError(t, s.Insert(tr))

	other := sampleTriplet()
	other.Subject = "ribosome"
	other.Provenance.SourceID = "doc-9"
	require.NoError(t, s.Insert(other))

	results, err := s.QueryBySource("doc-1")
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, tr.ID, results[0].ID)
}
