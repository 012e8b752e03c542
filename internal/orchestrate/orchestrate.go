// Package orchestrate implements the tree expansion orchestrator (C15): the
// glue that turns one tree node into children (decompose) or into an
// answered, fact-backed node (expand), wiring the extractor, entity graph,
// and the verify/conflict/promote/quality intelligence layer together.
package orchestrate

import (
	"sync"

	"sovereign-research-orchestrator/internal/axiom"
	"sovereign-research-orchestrator/internal/conflict"
	"sovereign-research-orchestrator/internal/entitygraph"
	"sovereign-research-orchestrator/internal/extract"
	"sovereign-research-orchestrator/internal/genai"
	"sovereign-research-orchestrator/internal/promote"
	"sovereign-research-orchestrator/internal/quality"
	"sovereign-research-orchestrator/internal/store"
	"sovereign-research-orchestrator/internal/tree"
	"sovereign-research-orchestrator/internal/verify"
)

// Stats accumulates the counters spec.md §7 requires to be user-visible:
// generator fallbacks and manual-review conflicts surfaced by this
// orchestrator. Prune counts and tier distribution come from the tree and
// fact store respectively.
type Stats struct {
	GeneratorFallbacks    int
	FactsExtracted        int
	ManualReviewConflicts int
}

// Options wires an Orchestrator's dependencies. Everything but Tree, Gen,
// and Store may be nil; a nil collaborator simply disables the pipeline
// step it would have performed.
type Options struct {
	Tree      *tree.Tree
	Gen       genai.Generator
	Store     *store.Store
	Graph     *entitygraph.Graph
	Extractor *extract.Extractor
	Verifier  *verify.Verifier
	Resolver  *conflict.Resolver
	Promoter  *promote.Promoter
	Quality   *quality.Evaluator
	Axioms    *axiom.Library

	BranchingFactor          int
	MaxDepth                 int
	SimilarityThreshold      float64
	ConflictStrategy         conflict.Strategy
	AxiomHardRejectThreshold float64
}

// Orchestrator drives node decomposition and expansion for one session.
type Orchestrator struct {
	tr        *tree.Tree
	gen       genai.Generator
	st        *store.Store
	graph     *entitygraph.Graph
	extractor *extract.Extractor
	verifier  *verify.Verifier
	resolver  *conflict.Resolver
	promoter  *promote.Promoter
	qualityEval *quality.Evaluator
	lib       *axiom.Library

	branchingFactor          int
	maxDepth                 int
	similarityThreshold      float64
	conflictStrategy         conflict.Strategy
	axiomHardRejectThreshold float64

	mu    sync.Mutex
	stats Stats
}

// Stats returns a snapshot of this orchestrator's accumulated counters.
func (o *Orchestrator) Stats() Stats {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.stats
}

func (o *Orchestrator) recordFallback() {
	o.mu.Lock()
	o.stats.GeneratorFallbacks++
	o.mu.Unlock()
}

func (o *Orchestrator) recordManualReview() {
	o.mu.Lock()
	o.stats.ManualReviewConflicts++
	o.mu.Unlock()
}

// New creates an Orchestrator, applying spec defaults for any zero-valued
// tuning field.
func New(opts Options) *Orchestrator {
	if opts.BranchingFactor <= 0 {
		opts.BranchingFactor = 4
	}
	if opts.MaxDepth <= 0 {
		opts.MaxDepth = 8
	}
	if opts.SimilarityThreshold <= 0 {
		opts.SimilarityThreshold = 0.85
	}
	if opts.ConflictStrategy == "" {
		opts.ConflictStrategy = conflict.StrategyTier
	}
	if opts.AxiomHardRejectThreshold <= 0 {
		opts.AxiomHardRejectThreshold = 0.2
	}
	return &Orchestrator{
		tr: opts.Tree, gen: opts.Gen, st: opts.Store, graph: opts.Graph,
		extractor: opts.Extractor, verifier: opts.Verifier, resolver: opts.Resolver,
		promoter: opts.Promoter, qualityEval: opts.Quality, lib: opts.Axioms,
		branchingFactor: opts.BranchingFactor, maxDepth: opts.MaxDepth,
		similarityThreshold: opts.SimilarityThreshold, conflictStrategy: opts.ConflictStrategy,
		axiomHardRejectThreshold: opts.AxiomHardRejectThreshold,
	}
}
