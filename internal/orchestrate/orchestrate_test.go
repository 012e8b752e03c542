package orchestrate

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"sovereign-research-orchestrator/internal/axiom"
	"sovereign-research-orchestrator/internal/conflict"
	"sovereign-research-orchestrator/internal/config"
	"sovereign-research-orchestrator/internal/entitygraph"
	"sovereign-research-orchestrator/internal/extract"
	"sovereign-research-orchestrator/internal/genai"
	"sovereign-research-orchestrator/internal/promote"
	"sovereign-research-orchestrator/internal/quality"
	"sovereign-research-orchestrator/internal/store"
	"sovereign-research-orchestrator/internal/tree"
	"sovereign-research-orchestrator/internal/verify"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m, goleak.IgnoreTopFunction("database/sql.(*DB).connectionOpener"))
}

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	dir := t.TempDir()
	s, err := store.Open(filepath.Join(dir, "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func newTestGraph(t *testing.T) *entitygraph.Graph {
	t.Helper()
	db, err := sql.Open("sqlite3", ":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	g, err := entitygraph.Open(db)
	require.NoError(t, err)
	return g
}

func testPromotion() config.PromotionConfig {
	return config.PromotionConfig{MinSourcesSilver: 2, MinSourcesGold: 3, ConfidenceSilver: 0.7, ConfidenceGold: 0.85}
}

type stubGenerator struct {
	decomposeResponse string
	answerResponse    string
	extractResponse   string
	err               error
}

func (s *stubGenerator) Capabilities() map[genai.Capability]map[genai.Quality]bool {
	all := map[genai.Quality]bool{genai.QualityFast: true, genai.QualityBalanced: true, genai.QualityQuality: true}
	return map[genai.Capability]map[genai.Quality]bool{
		genai.CapabilityReasoning:  all,
		genai.CapabilityExtraction: all,
	}
}
func (s *stubGenerator) IsAvailable() bool                  { return true }
func (s *stubGenerator) ResourceUsage() genai.ResourceUsage { return genai.ResourceUsage{} }
func (s *stubGenerator) Generate(ctx context.Context, prompt string, capability genai.Capability, quality genai.Quality, params genai.Params) (genai.Result, error) {
	if s.err != nil {
		return genai.Result{}, s.err
	}
	switch capability {
	case genai.CapabilityExtraction:
		return genai.Result{Content: s.extractResponse, ModelID: "stub"}, nil
	default:
		if s.decomposeResponseLooksRequested(prompt) {
			return genai.Result{Content: s.decomposeResponse, ModelID: "stub"}, nil
		}
		return genai.Result{Content: s.answerResponse, ModelID: "stub"}, nil
	}
}

// decomposeResponseLooksRequested picks the decompose response whenever the
// prompt is asking for sub-questions, distinguishing it from an expand call
// sharing the same reasoning capability.
func (s *stubGenerator) decomposeResponseLooksRequested(prompt string) bool {
	return s.decomposeResponse != "" && containsSubstring(prompt, "sub-question")
}

func containsSubstring(haystack, needle string) bool {
	for i := 0; i+len(needle) <= len(haystack); i++ {
		if haystack[i:i+len(needle)] == needle {
			return true
		}
	}
	return false
}

func TestDecomposeCreatesChildrenFromNumberedList(t *testing.T) {
	tr := tree.New(0)
	root := tr.CreateRoot("What drives climate change?")
	gen := &stubGenerator{decomposeResponse: "1. What role does CO2 play?\n2. What role does methane play?\n3. How do oceans absorb heat?"}

	o := New(Options{Tree: tr, Gen: gen, BranchingFactor: 3, MaxDepth: 8})
	children, err := o.Decompose(context.Background(), root.ID)
	require.NoError(t, err)
	require.Len(t, children, 3)

	updatedRoot, _ := tr.GetNode(root.ID)
	assert.Equal(t, tree.StatusEvaluated, updatedRoot.Status)
	for _, c := range children {
		assert.Equal(t, 1, c.Depth)
	}
}

func TestDecomposeAtMaxDepthReturnsNoChildren(t *testing.T) {
	tr := tree.New(0)
	root := tr.CreateRoot("root")
	gen := &stubGenerator{decomposeResponse: "1. child question one\n2. child question two"}

	o := New(Options{Tree: tr, Gen: gen, BranchingFactor: 2, MaxDepth: 0})
	children, err := o.Decompose(context.Background(), root.ID)
	require.NoError(t, err)
	assert.Nil(t, children)
}

func TestDecomposeGeneratorErrorLeavesNodeEvaluated(t *testing.T) {
	tr := tree.New(0)
	root := tr.CreateRoot("root")
	gen := &stubGenerator{err: assertError("boom")}

	o := New(Options{Tree: tr, Gen: gen, BranchingFactor: 2, MaxDepth: 8})
	children, err := o.Decompose(context.Background(), root.ID)
	require.NoError(t, err)
	assert.Nil(t, children)

	n, _ := tr.GetNode(root.ID)
	assert.Equal(t, tree.StatusEvaluated, n.Status)
}

type assertError string

func (e assertError) Error() string { return string(e) }

func TestExpandStoresAnswerEntitiesAndFacts(t *testing.T) {
	tr := tree.New(0)
	root := tr.CreateRoot("What does Mitochondria do?")
	st := newTestStore(t)
	graph := newTestGraph(t)
	extractor := extract.New(&stubGenerator{extractResponse: `[{"subject": "Mitochondria", "predicate": "produces", "object": "ATP", "confidence": 0.9}]`}, extract.DefaultOptions())

	gen := &stubGenerator{answerResponse: "Mitochondria produces ATP for the cell, acting as the Powerhouse of the cell."}

	o := New(Options{
		Tree: tr, Gen: gen, Store: st, Graph: graph, Extractor: extractor,
		BranchingFactor: 4, MaxDepth: 8, SimilarityThreshold: 0.85,
	})

	err := o.Expand(context.Background(), root.ID, genai.QualityBalanced)
	require.NoError(t, err)

	n, _ := tr.GetNode(root.ID)
	assert.Equal(t, tree.StatusEvaluated, n.Status)
	assert.NotEmpty(t, n.Answer)
	assert.Contains(t, n.Entities, "mitochondria")

	triplets, err := st.QueryBySource(root.ID)
	require.NoError(t, err)
	require.Len(t, triplets, 1)
	assert.Equal(t, "Mitochondria", triplets[0].Subject)
}

func TestExpandFailsWhenGeneratorErrors(t *testing.T) {
	tr := tree.New(0)
	root := tr.CreateRoot("root")
	st := newTestStore(t)
	gen := &stubGenerator{err: assertError("down")}

	o := New(Options{Tree: tr, Gen: gen, Store: st})
	err := o.Expand(context.Background(), root.ID, genai.QualityBalanced)
	require.Error(t, err)

	n, _ := tr.GetNode(root.ID)
	assert.Equal(t, tree.StatusEvaluated, n.Status)
}

func TestExpandRunsIntelligencePipelineAcrossSimilarFacts(t *testing.T) {
	tr := tree.New(0)
	n1 := tr.CreateRoot("Tell me about solar panels")
	n2, _ := tr.AddChild(n1.ID, "Tell me more about solar panels")

	st := newTestStore(t)
	graph := newTestGraph(t)
	verifier := verify.New(st, testPromotion())
	promoter := promote.New(st, nil, nil, testPromotion())
	qualityEval := quality.New(st, 0)

	gen1 := &stubGenerator{
		answerResponse:  "Solar panels reduce carbon emissions significantly.",
		extractResponse: `[{"subject": "solar panels", "predicate": "reduces", "object": "carbon emissions", "confidence": 0.8}]`,
	}
	o1 := New(Options{
		Tree: tr, Gen: gen1, Store: st, Graph: graph, Extractor: extract.New(gen1, extract.DefaultOptions()),
		Verifier: verifier, Promoter: promoter, Quality: qualityEval, SimilarityThreshold: 0.5,
	})
	require.NoError(t, o1.Expand(context.Background(), n1.ID, genai.QualityBalanced))

	gen2 := &stubGenerator{
		answerResponse:  "Solar panels reduce carbon emissions across the grid.",
		extractResponse: `[{"subject": "solar panels", "predicate": "reduces", "object": "carbon emissions", "confidence": 0.85}]`,
	}
	o2 := New(Options{
		Tree: tr, Gen: gen2, Store: st, Graph: graph, Extractor: extract.New(gen2, extract.DefaultOptions()),
		Verifier: verifier, Promoter: promoter, Quality: qualityEval, SimilarityThreshold: 0.5,
	})
	require.NoError(t, o2.Expand(context.Background(), n2.ID, genai.QualityBalanced))

	firstBatch, err := st.QueryBySource(n1.ID)
	require.NoError(t, err)
	require.Len(t, firstBatch, 1)

	reloaded, err := st.Get(firstBatch[0].ID)
	require.NoError(t, err)
	assert.GreaterOrEqual(t, reloaded.Provenance.EffectiveSourceCount(), 2)
}

func TestBuildContextRendersParentEgoSubgraph(t *testing.T) {
	tr := tree.New(0)
	root := tr.CreateRoot("root")
	require.NoError(t, tr.SetEntities(root.ID, []string{"panels"}))
	child, _ := tr.AddChild(root.ID, "child question")

	graph := newTestGraph(t)
	require.NoError(t, graph.StoreLink("panels", "reduce", "emissions", 0.9, nil))

	o := New(Options{Tree: tr, Graph: graph})
	childNode, _ := tr.GetNode(child.ID)
	ctxBlock := o.buildContext(childNode)
	assert.Contains(t, ctxBlock, "panels reduce emissions")
}

func TestBuildContextEmptyWithoutParentEntities(t *testing.T) {
	tr := tree.New(0)
	root := tr.CreateRoot("root")
	child, _ := tr.AddChild(root.ID, "child")

	graph := newTestGraph(t)
	o := New(Options{Tree: tr, Graph: graph})
	childNode, _ := tr.GetNode(child.ID)
	assert.Equal(t, "", o.buildContext(childNode))
}

func TestCheckAxiomIncompatibleFlagsLowScoringNode(t *testing.T) {
	tr := tree.New(0)
	root := tr.CreateRoot("root")
	st := newTestStore(t)

	triplet := &store.Triplet{
		Subject: "xx", Predicate: "yy", Object: "zz", Confidence: 0.1, Tier: store.TierBronze,
		Provenance: store.Provenance{SourceID: root.ID, ExtractionMethod: store.ExtractionLLMStructured},
	}
	require.NoError(t, st.Insert(triplet))

	lib := newIncompatibleTestLibrary(t)
	o := New(Options{Tree: tr, Store: st, Axioms: lib, AxiomHardRejectThreshold: 0.5})
	o.checkAxiomIncompatible(root.ID, []string{triplet.ID})

	n, _ := tr.GetNode(root.ID)
	assert.True(t, n.AxiomIncompatible)
}

func TestExpandGeneratorErrorIncrementsFallbackCounter(t *testing.T) {
	tr := tree.New(0)
	root := tr.CreateRoot("root")
	st := newTestStore(t)
	gen := &stubGenerator{err: assertError("down")}

	o := New(Options{Tree: tr, Gen: gen, Store: st})
	_ = o.Expand(context.Background(), root.ID, genai.QualityBalanced)
	assert.Equal(t, 1, o.Stats().GeneratorFallbacks)
}

func TestExpandTracksFactsExtracted(t *testing.T) {
	tr := tree.New(0)
	root := tr.CreateRoot("root")
	st := newTestStore(t)
	extractGen := &stubGenerator{extractResponse: `[{"subject": "Mitochondria", "predicate": "produces", "object": "ATP", "confidence": 0.9}]`}
	gen := &stubGenerator{answerResponse: "Mitochondria produces ATP."}

	o := New(Options{Tree: tr, Gen: gen, Store: st, Extractor: extract.New(extractGen, extract.DefaultOptions())})
	require.NoError(t, o.Expand(context.Background(), root.ID, genai.QualityBalanced))
	assert.Equal(t, 1, o.Stats().FactsExtracted)
}

func TestConflictStrategyDefaultsToTier(t *testing.T) {
	o := New(Options{})
	assert.Equal(t, conflict.StrategyTier, o.conflictStrategy)
}

func newIncompatibleTestLibrary(t *testing.T) *axiom.Library {
	t.Helper()
	dir := t.TempDir()
	content := `[{"axiom_id":"min_confidence","application":"scorer","enabled":true,"weight_modifier":{"if_confidence > 0.5":1.0}}]`
	require.NoError(t, os.WriteFile(filepath.Join(dir, "axioms.json"), []byte(content), 0644))

	lib := axiom.NewLibrary()
	require.NoError(t, lib.LoadDir(dir))
	return lib
}
