package genai

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

type fakeGenerator struct {
	available bool
	caps      map[Capability]map[Quality]bool
	result    Result
	err       error
	calls     int
}

func (f *fakeGenerator) Capabilities() map[Capability]map[Quality]bool { return f.caps }
func (f *fakeGenerator) IsAvailable() bool                             { return f.available }
func (f *fakeGenerator) ResourceUsage() ResourceUsage                  { return ResourceUsage{TotalRequests: int64(f.calls)} }
func (f *fakeGenerator) Generate(ctx context.Context, prompt string, capability Capability, quality Quality, params Params) (Result, error) {
	f.calls++
	return f.result, f.err
}

func allQualities() map[Quality]bool {
	return map[Quality]bool{QualityFast: true, QualityBalanced: true, QualityQuality: true}
}

func TestRouterFallsBackOnError(t *testing.T) {
	failing := &fakeGenerator{
		available: true,
		caps:      map[Capability]map[Quality]bool{CapabilityExtraction: allQualities()},
		err:       errors.New("quota exceeded"),
	}
	working := &fakeGenerator{
		available: true,
		caps:      map[Capability]map[Quality]bool{CapabilityExtraction: allQualities()},
		result:    Result{Content: "ok", ModelID: "backup"},
	}

	r := NewRouter()
	r.Register("primary", failing)
	r.Register("backup", working)

	res, err := r.Generate(context.Background(), "prompt", CapabilityExtraction, QualityFast, Params{})
	require.NoError(t, err)
	assert.Equal(t, "ok", res.Content)
	assert.Equal(t, 1, failing.calls)
	assert.Equal(t, 1, working.calls)
}

func TestRouterSkipsUnavailableProvider(t *testing.T) {
	down := &fakeGenerator{available: false, caps: map[Capability]map[Quality]bool{CapabilityReasoning: allQualities()}}
	up := &fakeGenerator{
		available: true,
		caps:      map[Capability]map[Quality]bool{CapabilityReasoning: allQualities()},
		result:    Result{Content: "fine"},
	}
	r := NewRouter()
	r.Register("down", down)
	r.Register("up", up)

	res, err := r.Generate(context.Background(), "p", CapabilityReasoning, QualityBalanced, Params{})
	require.NoError(t, err)
	assert.Equal(t, "fine", res.Content)
	assert.Equal(t, 0, down.calls)
}

func TestRouterReturnsUnsupportedWhenNoneMatch(t *testing.T) {
	g := &fakeGenerator{available: true, caps: map[Capability]map[Quality]bool{CapabilitySynthesis: allQualities()}}
	r := NewRouter()
	r.Register("only", g)

	_, err := r.Generate(context.Background(), "p", CapabilityValidation, QualityFast, Params{})
	require.Error(t, err)
	var unsupported *ErrUnsupportedCapability
	assert.ErrorAs(t, err, &unsupported)
}

func TestRouterReturnsErrorWhenAllFail(t *testing.T) {
	g1 := &fakeGenerator{available: true, caps: map[Capability]map[Quality]bool{CapabilityExtraction: allQualities()}, err: errors.New("down")}
	g2 := &fakeGenerator{available: true, caps: map[Capability]map[Quality]bool{CapabilityExtraction: allQualities()}, err: errors.New("also down")}
	r := NewRouter()
	r.Register("a", g1)
	r.Register("b", g2)

	_, err := r.Generate(context.Background(), "p", CapabilityExtraction, QualityFast, Params{})
	assert.Error(t, err)
}

func TestSupportsHelper(t *testing.T) {
	caps := map[Capability]map[Quality]bool{CapabilityReasoning: {QualityFast: true}}
	assert.True(t, Supports(caps, CapabilityReasoning, QualityFast))
	assert.False(t, Supports(caps, CapabilityReasoning, QualityQuality))
	assert.False(t, Supports(caps, CapabilityExtraction, QualityFast))
}
