// Package mcts implements the tree search engine (C14): UCB1 selection
// extended with fact-quality, coverage, and XoT-prior bonuses, simulation
// under a configurable strategy, and backpropagation.
package mcts

import (
	"context"
	"math"
	"math/rand"
	"regexp"
	"sort"
	"strconv"

	"sovereign-research-orchestrator/internal/budget"
	"sovereign-research-orchestrator/internal/config"
	"sovereign-research-orchestrator/internal/coverage"
	"sovereign-research-orchestrator/internal/genai"
	"sovereign-research-orchestrator/internal/logging"
	"sovereign-research-orchestrator/internal/quality"
	"sovereign-research-orchestrator/internal/tree"
	"sovereign-research-orchestrator/internal/xot"
)

// Engine drives MCTS iterations over a tree, wired to the optional bonus
// sources: fact-quality evaluator, coverage analyzer, XoT prior. Any of
// these may be nil, which disables the corresponding bonus.
type Engine struct {
	tr       *tree.Tree
	governor *budget.Governor
	gen      genai.Generator

	qualityEval *quality.Evaluator
	coverageAnalyzer *coverage.Analyzer
	xotSim      *xot.Simulator

	explorationConstant float64
	factQualityWeight   float64
	coverageWeight      float64
	coverageAdaptive    bool
	xotWeight           float64
	strategy            string
}

// Options configures an Engine's wiring and weights.
type Options struct {
	Tree     *tree.Tree
	Governor *budget.Governor
	Gen      genai.Generator

	QualityEvaluator *quality.Evaluator
	CoverageAnalyzer *coverage.Analyzer
	XoTSimulator     *xot.Simulator

	ExplorationConstant float64
	FactQualityWeight   float64
	CoverageWeight      float64
	CoverageAdaptive    bool
	XoTWeight           float64
	SimulationStrategy  string
}

// New creates an Engine from explicit options.
func New(opts Options) *Engine {
	ec := opts.ExplorationConstant
	if ec <= 0 {
		ec = math.Sqrt2
	}
	strategy := opts.SimulationStrategy
	if strategy == "" {
		strategy = "axiom"
	}
	return &Engine{
		tr: opts.Tree, governor: opts.Governor, gen: opts.Gen,
		qualityEval: opts.QualityEvaluator, coverageAnalyzer: opts.CoverageAnalyzer, xotSim: opts.XoTSimulator,
		explorationConstant: ec, factQualityWeight: opts.FactQualityWeight, coverageWeight: opts.CoverageWeight,
		coverageAdaptive: opts.CoverageAdaptive, xotWeight: opts.XoTWeight, strategy: strategy,
	}
}

// FromConfig builds Options' weight fields from a session Config, leaving
// wiring (Tree/Governor/Gen/evaluators) for the caller to set.
func FromConfig(cfg *config.Config) Options {
	return Options{
		ExplorationConstant: cfg.ExplorationConstant,
		FactQualityWeight:   cfg.FactQualityWeight,
		CoverageWeight:      cfg.CoverageWeight,
		CoverageAdaptive:    cfg.CoverageAdaptive,
		XoTWeight:           cfg.XoTWeight,
		SimulationStrategy:  cfg.SimulationStrategy,
	}
}

// Iterate runs up to n selection/simulation/backpropagation steps, stopping
// early if the session token budget is exhausted.
func (e *Engine) Iterate(ctx context.Context, n int) int {
	timer := logging.StartTimer(logging.CategoryMCTS, "Iterate")
	defer timer.Stop()

	completed := 0
	for i := 0; i < n; i++ {
		if e.governor != nil && e.governor.TotalExceeded() {
			break
		}
		if !e.step(ctx) {
			break
		}
		completed++
	}
	return completed
}

func (e *Engine) step(ctx context.Context) bool {
	rootID := e.tr.RootID()
	if rootID == "" {
		return false
	}

	leafID, lastScore := e.selectLeaf(rootID)

	if e.governor != nil && !e.governor.Check(leafID) {
		_ = e.tr.PruneSubtree(leafID, "token_budget_exceeded")
		return true
	}

	if e.governor != nil {
		e.governor.Allocate(leafID, lastScore)
	}

	value := e.simulate(ctx, leafID)

	_ = e.tr.Backpropagate(leafID, value)
	return true
}

// selectLeaf walks from root choosing, at each level, the non-pruned child
// maximizing the extended UCB1 score, until it reaches a node with no
// non-pruned children. Returns the leaf id and the UCB1 score that selected
// it (0 for the root itself).
func (e *Engine) selectLeaf(rootID string) (string, float64) {
	current := rootID
	var lastScore float64

	for {
		children, err := e.tr.ChildrenOf(current)
		if err != nil {
			return current, lastScore
		}
		var candidates []*tree.Node
		for _, c := range children {
			if c.Status != tree.StatusPruned {
				candidates = append(candidates, c)
			}
		}
		if len(candidates) == 0 {
			return current, lastScore
		}

		parent, _ := e.tr.GetNode(current)

		best := candidates[0]
		bestScore := e.ucb1(parent, best)
		for _, c := range candidates[1:] {
			s := e.ucb1(parent, c)
			if s > bestScore {
				best = c
				bestScore = s
			}
		}
		current = best.ID
		lastScore = bestScore
		_ = e.tr.SetLastUCBScore(current, bestScore)
	}
}

func (e *Engine) ucb1(parent, node *tree.Node) float64 {
	if node.Visits == 0 {
		return math.Inf(1)
	}

	exploitation := node.Value / float64(node.Visits)
	exploration := e.explorationConstant * math.Sqrt(math.Log(float64(parent.Visits))/float64(node.Visits))
	score := exploitation + exploration

	if e.qualityEval != nil && e.factQualityWeight != 0 {
		fq, err := e.qualityEval.Evaluate(node.ID)
		if err == nil {
			score += e.factQualityWeight * fq
		}
	}

	if e.coverageAnalyzer != nil {
		cov, err := e.coverageAnalyzer.Analyze(node.ID)
		if err == nil {
			w := e.coverageWeight
			if e.coverageAdaptive {
				w = e.adaptiveCoverageWeight()
			}
			score += (1 - cov.Overall) * w
		}
	}

	if e.xotSim != nil && e.xotWeight != 0 {
		prior := e.xotSim.SimulateQuick(context.Background(), xot.PathNode{Question: node.Question}, nil)
		score += e.xotWeight * prior
	}

	return score
}

// adaptiveCoverageWeight returns 0.7 below 0.4 session-overall-coverage,
// 0.5 below 0.7, else 0.3, computed across every live node in the tree.
func (e *Engine) adaptiveCoverageWeight() float64 {
	if e.coverageAnalyzer == nil {
		return e.coverageWeight
	}
	all := e.tr.All()
	if len(all) == 0 {
		return 0.7
	}
	var sum float64
	var count int
	for _, n := range all {
		if n.Status == tree.StatusPruned {
			continue
		}
		cov, err := e.coverageAnalyzer.Analyze(n.ID)
		if err != nil {
			continue
		}
		sum += cov.Overall
		count++
	}
	if count == 0 {
		return 0.7
	}
	overall := sum / float64(count)
	switch {
	case overall < 0.4:
		return 0.7
	case overall < 0.7:
		return 0.5
	default:
		return 0.3
	}
}

func (e *Engine) simulate(ctx context.Context, nodeID string) float64 {
	node, err := e.tr.GetNode(nodeID)
	if err != nil {
		return 0
	}

	switch e.strategy {
	case "random":
		return rand.Float64()

	case "llm":
		if e.gen == nil {
			return 0.5
		}
		result, err := e.gen.Generate(ctx, simulationPrompt(node), genai.CapabilityReasoning, genai.QualityFast, genai.Params{Temperature: 0.3, MaxTokens: 20})
		if err != nil {
			return 0.5
		}
		if e.governor != nil {
			e.governor.Track(nodeID, 1000)
		}
		f, ok := parseSimulationFloat(result.Content)
		if !ok {
			return 0.5
		}
		return f

	default: // axiom
		if len(node.AxiomScores) == 0 {
			return node.Confidence
		}
		var sum float64
		for _, v := range node.AxiomScores {
			sum += v
		}
		return sum / float64(len(node.AxiomScores))
	}
}

func simulationPrompt(node *tree.Node) string {
	return "On a scale of 0.0 to 1.0, how well-supported and conclusive is this research node? " +
		"Question: " + node.Question + " Answer: " + node.Answer + "\nRespond with a single number."
}

// BestPath returns the root-to-leaf path of greatest average value among
// non-pruned leaves.
func (e *Engine) BestPath() []*tree.Node {
	return e.pathByLeafScore(func(n *tree.Node) float64 {
		if n.Visits == 0 {
			return 0
		}
		return n.Value / float64(n.Visits)
	})
}

// MostVisitedPath returns the root-to-leaf path of greatest visit count
// among non-pruned leaves.
func (e *Engine) MostVisitedPath() []*tree.Node {
	return e.pathByLeafScore(func(n *tree.Node) float64 { return float64(n.Visits) })
}

func (e *Engine) pathByLeafScore(score func(*tree.Node) float64) []*tree.Node {
	var best *tree.Node
	var bestScore float64
	for _, leaf := range e.tr.Leaves() {
		if leaf.Status == tree.StatusPruned {
			continue
		}
		s := score(leaf)
		if best == nil || s > bestScore {
			best = leaf
			bestScore = s
		}
	}
	if best == nil {
		return nil
	}

	path, err := e.tr.PathToRoot(best.ID)
	if err != nil {
		return nil
	}
	// Reverse to root-first order.
	reversed := make([]*tree.Node, len(path))
	for i, n := range path {
		reversed[len(path)-1-i] = n
	}
	return reversed
}

// CoverageSuggestions surfaces the top-k gap nodes from the coverage
// analyzer, if one is wired.
func (e *Engine) CoverageSuggestions(k int) []coverage.Gap {
	if e.coverageAnalyzer == nil {
		return nil
	}
	all := e.tr.All()
	ids := make([]string, 0, len(all))
	for _, n := range all {
		ids = append(ids, n.ID)
	}
	gaps, err := e.coverageAnalyzer.IdentifyGaps(ids, 1.0)
	if err != nil {
		return nil
	}
	sort.Slice(gaps, func(i, j int) bool { return gaps[i].Priority > gaps[j].Priority })
	if k > 0 && len(gaps) > k {
		gaps = gaps[:k]
	}
	return gaps
}

var simulationFloatRe = regexp.MustCompile(`([01](\.\d+)?|0?\.\d+)`)

func parseSimulationFloat(raw string) (float64, bool) {
	m := simulationFloatRe.FindStringSubmatch(raw)
	if m == nil {
		return 0, false
	}
	f, err := strconv.ParseFloat(m[1], 64)
	if err != nil {
		return 0, false
	}
	if f < 0 {
		f = 0
	}
	if f > 1 {
		f = 1
	}
	return f, true
}
