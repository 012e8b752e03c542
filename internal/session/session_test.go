package session

import (
	"context"
	"database/sql"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"sovereign-research-orchestrator/internal/axiom"
	"sovereign-research-orchestrator/internal/budget"
	"sovereign-research-orchestrator/internal/conflict"
	"sovereign-research-orchestrator/internal/config"
	"sovereign-research-orchestrator/internal/coverage"
	"sovereign-research-orchestrator/internal/entitygraph"
	"sovereign-research-orchestrator/internal/extract"
	"sovereign-research-orchestrator/internal/genai"
	"sovereign-research-orchestrator/internal/mcts"
	"sovereign-research-orchestrator/internal/orchestrate"
	"sovereign-research-orchestrator/internal/promote"
	"sovereign-research-orchestrator/internal/quality"
	"sovereign-research-orchestrator/internal/store"
	"sovereign-research-orchestrator/internal/tree"
	"sovereign-research-orchestrator/internal/verify"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"))
}

func testConfig(t *testing.T) *config.Config {
	t.Helper()
	cfg := config.DefaultConfig()
	cfg.DatabasePath = filepath.Join(t.TempDir(), "sro.db")
	cfg.AxiomsPath = ""
	cfg.GenAI.APIKey = ""
	return cfg
}

func TestNewWithoutAPIKeyConstructsSessionWithNilGenerator(t *testing.T) {
	cfg := testConfig(t)
	s, err := New(context.Background(), cfg, t.TempDir())
	require.NoError(t, err)
	require.NotNil(t, s)
	defer s.Close()

	assert.Nil(t, s.Generator)
	assert.NotNil(t, s.Store)
	assert.NotNil(t, s.Graph)
	assert.NotNil(t, s.Tree)
	assert.NotNil(t, s.Orchestrator)
	assert.NotNil(t, s.MCTS)

	stats, err := s.Stats()
	require.NoError(t, err)
	assert.Equal(t, int64(0), stats.Tiers.Total)
}

// stubGenerator answers every reasoning call with a fixed, well-formed
// research answer and every extraction call with one derived triplet,
// letting a Run loop actually grow and evaluate a tree without a live
// generator dependency.
type stubGenerator struct{}

func (s *stubGenerator) Capabilities() map[genai.Capability]map[genai.Quality]bool {
	all := map[genai.Quality]bool{genai.QualityFast: true, genai.QualityBalanced: true, genai.QualityQuality: true}
	return map[genai.Capability]map[genai.Quality]bool{
		genai.CapabilityReasoning:  all,
		genai.CapabilityExtraction: all,
	}
}
func (s *stubGenerator) IsAvailable() bool                  { return true }
func (s *stubGenerator) ResourceUsage() genai.ResourceUsage { return genai.ResourceUsage{} }
func (s *stubGenerator) Generate(ctx context.Context, prompt string, capability genai.Capability, qual genai.Quality, params genai.Params) (genai.Result, error) {
	if capability == genai.CapabilityExtraction {
		return genai.Result{Content: `[{"subject": "testsubject", "predicate": "relatesto", "object": "testobject", "confidence": 0.8}]`, ModelID: "stub"}, nil
	}
	return genai.Result{Content: "a well-supported direct answer to the research question.", ModelID: "stub"}, nil
}

// newManualSession wires every component by hand with a stub generator,
// mirroring New's wiring but bypassing its API-key-gated provider
// construction so tests can exercise a full Run without network access.
func newManualSession(t *testing.T) *Session {
	t.Helper()

	st, err := store.Open(filepath.Join(t.TempDir(), "sro.db"))
	require.NoError(t, err)
	t.Cleanup(func() { st.Close() })

	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	graph, err := entitygraph.Open(db)
	require.NoError(t, err)

	lib := axiom.NewLibrary()
	gen := &stubGenerator{}

	promotionCfg := config.PromotionConfig{MinSourcesSilver: 2, MinSourcesGold: 3, ConfidenceSilver: 0.7, ConfidenceGold: 0.85}
	extractor := extract.New(gen, extract.DefaultOptions())
	verifier := verify.New(st, promotionCfg)
	resolver := conflict.New(st, 0.6)
	promoter := promote.New(st, nil, lib, promotionCfg)
	qualityEval := quality.New(st, 0)

	tr := tree.New(0)
	coverageAnalyzer := coverage.New(tr, graph, lib, 8)
	governor := budget.New(config.TokenBudgetConfig{Total: 1_000_000, DefaultNode: 2000, MinNode: 500, MaxNode: 20000})

	engine := mcts.New(mcts.Options{
		Tree: tr, Governor: governor, Gen: gen,
		QualityEvaluator: qualityEval, CoverageAnalyzer: coverageAnalyzer,
		SimulationStrategy: "axiom",
	})

	orch := orchestrate.New(orchestrate.Options{
		Tree: tr, Gen: gen, Store: st, Graph: graph, Extractor: extractor,
		Verifier: verifier, Resolver: resolver, Promoter: promoter, Quality: qualityEval, Axioms: lib,
		BranchingFactor: 2, MaxDepth: 3,
	})

	return &Session{
		Store: st, Graph: graph, Axioms: lib, Generator: gen,
		Extractor: extractor, Verifier: verifier, Resolver: resolver,
		Promoter: promoter, Quality: qualityEval, Tree: tr,
		Coverage: coverageAnalyzer, Budget: governor, MCTS: engine, Orchestrator: orch,
	}
}

func TestSessionRunGrowsTreeAndEvaluatesRoot(t *testing.T) {
	s := newManualSession(t)

	err := s.Run(context.Background(), "what causes climate change?", 3)
	require.NoError(t, err)

	root, err := s.Tree.GetNode(s.Tree.RootID())
	require.NoError(t, err)
	assert.Equal(t, tree.StatusEvaluated, root.Status)
	assert.NotEmpty(t, root.Answer)

	stats, err := s.Stats()
	require.NoError(t, err)
	assert.GreaterOrEqual(t, stats.NodesByStatus[tree.StatusEvaluated], 1)
}

func TestSessionRunStopsOnCancelledContext(t *testing.T) {
	s := newManualSession(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := s.Run(ctx, "what causes climate change?", 5)
	assert.Error(t, err)
}
