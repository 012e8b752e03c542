// Package session wires C1-C15 into one session object: a single Fact
// Store file, a single Tree Store, and every intelligence-layer component
// bound to them, matching spec.md §5's single-threaded-cooperative-event-
// loop-per-session model. A Session is not safe for concurrent use.
package session

import (
	"context"
	"fmt"
	"os"

	"sovereign-research-orchestrator/internal/axiom"
	"sovereign-research-orchestrator/internal/budget"
	"sovereign-research-orchestrator/internal/config"
	"sovereign-research-orchestrator/internal/conflict"
	"sovereign-research-orchestrator/internal/coverage"
	"sovereign-research-orchestrator/internal/entitygraph"
	"sovereign-research-orchestrator/internal/extract"
	"sovereign-research-orchestrator/internal/genai"
	"sovereign-research-orchestrator/internal/judge"
	"sovereign-research-orchestrator/internal/logging"
	"sovereign-research-orchestrator/internal/mcts"
	"sovereign-research-orchestrator/internal/orchestrate"
	"sovereign-research-orchestrator/internal/promote"
	"sovereign-research-orchestrator/internal/quality"
	"sovereign-research-orchestrator/internal/store"
	"sovereign-research-orchestrator/internal/tree"
	"sovereign-research-orchestrator/internal/verify"
	"sovereign-research-orchestrator/internal/xot"
)

// Session owns one Fact Store file and one Tree Store, and every
// intelligence-layer component bound to them.
type Session struct {
	cfg *config.Config

	Store        *store.Store
	Graph        *entitygraph.Graph
	Axioms       *axiom.Library
	Generator    genai.Generator
	Extractor    *extract.Extractor
	Verifier     *verify.Verifier
	Resolver     *conflict.Resolver
	Judge        *judge.Judge
	Promoter     *promote.Promoter
	Quality      *quality.Evaluator
	Tree         *tree.Tree
	XoT          *xot.Simulator
	Coverage     *coverage.Analyzer
	Budget       *budget.Governor
	MCTS         *mcts.Engine
	Orchestrator *orchestrate.Orchestrator
}

// New boots a full session from configuration: opens the fact store and
// entity graph sharing its connection, loads axioms, constructs a
// generator provider if an API key is configured, and wires every
// component in the C1-C15 chain together. Logging initialization failures
// are non-fatal, matching the teacher's boot sequence.
func New(ctx context.Context, cfg *config.Config, workspaceDir string) (*Session, error) {
	if workspaceDir == "" {
		workspaceDir, _ = os.Getwd()
	}
	if err := logging.Initialize(workspaceDir); err != nil {
		fmt.Fprintf(os.Stderr, "warning: failed to initialize logging: %v\n", err)
	}

	st, err := store.Open(cfg.DatabasePath)
	if err != nil {
		return nil, fmt.Errorf("open fact store: %w", err)
	}

	graph, err := entitygraph.Open(st.DB())
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("open entity graph: %w", err)
	}

	lib := axiom.NewLibrary()
	if cfg.AxiomsPath != "" {
		if err := lib.LoadDir(cfg.AxiomsPath); err != nil {
			logging.Get(logging.CategoryBoot).Warn("axiom load failed: %v", err)
		}
		if err := lib.StartWatch(); err != nil {
			logging.Get(logging.CategoryBoot).Warn("axiom hot-reload watch failed: %v", err)
		}
	}

	var gen genai.Generator
	if cfg.GenAI.APIKey != "" {
		models := genai.ModelSet{Fast: cfg.GenAI.Model, Balanced: cfg.GenAI.Model, Quality: cfg.GenAI.Model}
		provider, err := genai.NewGeminiProvider(ctx, cfg.GenAI.APIKey, models, cfg.GenAI.Gemini.EnableThinking, cfg.GenAI.Gemini.ThinkingLevel)
		if err != nil {
			logging.Get(logging.CategoryBoot).Warn("generator construction failed, running without one: %v", err)
		} else {
			gen = provider
		}
	} else {
		logging.Get(logging.CategoryBoot).Info("no API key configured, running without a generator")
	}

	extractor := extract.New(gen, extract.DefaultOptions())
	verifier := verify.New(st, cfg.Promotion)
	resolver := conflict.New(st, cfg.ConflictThreshold)

	var j *judge.Judge
	if gen != nil {
		j = judge.New(gen, cfg.AxiomJudge.PassThreshold, genai.Quality(cfg.AxiomJudge.Quality))
	}
	promoter := promote.New(st, j, lib, cfg.Promotion)
	qualityEval := quality.New(st, 0)

	maxNodes := cfg.MaxTreeNodes
	if maxNodes <= 0 {
		maxNodes = cfg.Limits.MaxTreeNodes
	}
	tr := tree.New(maxNodes)

	xotSim := xot.New(gen, cfg.XoTDepth, cfg.XoTFallbackScore)
	coverageAnalyzer := coverage.New(tr, graph, lib, cfg.MaxDepth)
	governor := budget.New(cfg.TokenBudget)

	mctsOpts := mcts.FromConfig(cfg)
	mctsOpts.Tree = tr
	mctsOpts.Governor = governor
	mctsOpts.Gen = gen
	mctsOpts.QualityEvaluator = qualityEval
	mctsOpts.CoverageAnalyzer = coverageAnalyzer
	mctsOpts.XoTSimulator = xotSim
	engine := mcts.New(mctsOpts)

	orch := orchestrate.New(orchestrate.Options{
		Tree: tr, Gen: gen, Store: st, Graph: graph, Extractor: extractor,
		Verifier: verifier, Resolver: resolver, Promoter: promoter, Quality: qualityEval, Axioms: lib,
		BranchingFactor: cfg.BranchingFactor, MaxDepth: cfg.MaxDepth,
		SimilarityThreshold: 0.85, ConflictStrategy: conflict.StrategyTier,
	})

	return &Session{
		cfg: cfg, Store: st, Graph: graph, Axioms: lib, Generator: gen,
		Extractor: extractor, Verifier: verifier, Resolver: resolver, Judge: j,
		Promoter: promoter, Quality: qualityEval, Tree: tr, XoT: xotSim,
		Coverage: coverageAnalyzer, Budget: governor, MCTS: engine, Orchestrator: orch,
	}, nil
}

// Stats is the session-level statistics contract: fallback, prune, and
// manual-review-conflict counts plus tier distribution, always available
// regardless of how far a run got.
type Stats struct {
	GeneratorFallbacks    int
	FactsExtracted        int
	ManualReviewConflicts int
	NodesByStatus         map[tree.Status]int
	Tiers                 store.Stats
}

// Stats aggregates the orchestrator's counters, the tree's status tally,
// and the fact store's tier distribution into one snapshot.
func (s *Session) Stats() (Stats, error) {
	orchStats := s.Orchestrator.Stats()
	tierStats, err := s.Store.ComputeStats()
	if err != nil {
		return Stats{}, fmt.Errorf("compute tier stats: %w", err)
	}
	return Stats{
		GeneratorFallbacks:    orchStats.GeneratorFallbacks,
		FactsExtracted:        orchStats.FactsExtracted,
		ManualReviewConflicts: orchStats.ManualReviewConflicts,
		NodesByStatus:         s.Tree.CountByStatus(),
		Tiers:                 tierStats,
	}, nil
}

// Run seeds a root node for question (if the tree has none yet), expands
// and decomposes it, then alternates MCTS selection/simulation with
// expand-and-decompose of any newly created pending leaves for up to
// maxIterations steps. It returns at the next iteration boundary if ctx is
// cancelled or the session's token budget is exhausted, per the
// single-threaded cooperative event loop model: no iteration is ever
// interrupted mid-step, only between steps.
func (s *Session) Run(ctx context.Context, question string, maxIterations int) error {
	if s.Tree.RootID() == "" {
		root := s.Tree.CreateRoot(question)
		if err := s.Orchestrator.Expand(ctx, root.ID, genai.QualityBalanced); err != nil {
			return fmt.Errorf("expand root: %w", err)
		}
		if _, err := s.Orchestrator.Decompose(ctx, root.ID); err != nil {
			logging.Get(logging.CategoryBoot).Warn("decompose root failed: %v", err)
		}
	}

	for i := 0; i < maxIterations; i++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		default:
		}
		if s.Budget.TotalExceeded() {
			break
		}
		if s.MCTS.Iterate(ctx, 1) == 0 {
			break
		}
		s.growFrontier(ctx)
	}
	return nil
}

// growFrontier expands and decomposes every still-pending leaf, growing
// the tree ahead of the next selection step. Expansion is idempotent per
// node: once a leaf moves out of pending status, it is left alone.
func (s *Session) growFrontier(ctx context.Context) {
	log := logging.Get(logging.CategoryBoot)
	for _, leaf := range s.Tree.Leaves() {
		if leaf.Status != tree.StatusPending {
			continue
		}
		if err := s.Orchestrator.Expand(ctx, leaf.ID, genai.QualityBalanced); err != nil {
			log.Warn("expand %s failed: %v", leaf.ID, err)
			continue
		}
		if _, err := s.Orchestrator.Decompose(ctx, leaf.ID); err != nil {
			log.Warn("decompose %s failed: %v", leaf.ID, err)
		}
	}
}

// Close releases the session's fact store connection and stops the axiom
// library's hot-reload watcher.
func (s *Session) Close() error {
	s.Axioms.StopWatch()
	return s.Store.Close()
}
