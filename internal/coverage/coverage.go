// Package coverage implements the coverage analyzer (C12): scoring how
// thoroughly a tree-of-thoughts node's neighborhood has been explored, to
// surface gaps MCTS should prioritize digging into.
package coverage

import (
	"fmt"
	"sort"

	"sovereign-research-orchestrator/internal/axiom"
	"sovereign-research-orchestrator/internal/entitygraph"
	"sovereign-research-orchestrator/internal/logging"
	"sovereign-research-orchestrator/internal/tree"
)

// Scores holds the per-dimension coverage breakdown for one node.
type Scores struct {
	EntityDensity    float64
	ExplorationDepth float64
	AxiomCoverage    float64
	NeighborCoverage float64
	Overall          float64
}

// Gap is an under-covered node surfaced by identify-gaps.
type Gap struct {
	NodeID   string
	Question string
	Depth    int
	Scores   Scores
	Priority float64 // 1 - overall
	Reason   string
}

// Analyzer scores node coverage against the tree and entity graph.
type Analyzer struct {
	tr       *tree.Tree
	graph    *entitygraph.Graph
	lib      *axiom.Library
	maxDepth int
}

// New creates an Analyzer. graph and lib may be nil; in that case
// neighbor-coverage is 0 and axiom-coverage is 1 respectively.
func New(tr *tree.Tree, graph *entitygraph.Graph, lib *axiom.Library, maxDepth int) *Analyzer {
	if maxDepth <= 0 {
		maxDepth = 3
	}
	return &Analyzer{tr: tr, graph: graph, lib: lib, maxDepth: maxDepth}
}

// Analyze computes the full coverage breakdown for a node.
func (a *Analyzer) Analyze(nodeID string) (Scores, error) {
	timer := logging.StartTimer(logging.CategoryCoverage, "Analyze")
	defer timer.Stop()

	node, err := a.tr.GetNode(nodeID)
	if err != nil {
		return Scores{}, err
	}

	entityDensity, err := a.entityDensity(node)
	if err != nil {
		return Scores{}, err
	}
	explorationDepth, err := a.explorationDepth(node)
	if err != nil {
		return Scores{}, err
	}
	axiomCoverage := a.axiomCoverage(node)
	neighborCoverage, err := a.neighborCoverage(node)
	if err != nil {
		return Scores{}, err
	}

	overall := entityDensity*0.3 + explorationDepth*0.2 + axiomCoverage*0.3 + neighborCoverage*0.2

	return Scores{
		EntityDensity:    entityDensity,
		ExplorationDepth: explorationDepth,
		AxiomCoverage:    axiomCoverage,
		NeighborCoverage: neighborCoverage,
		Overall:          overall,
	}, nil
}

func (a *Analyzer) entityDensity(node *tree.Node) (float64, error) {
	if len(node.Entities) == 0 {
		return 0, nil
	}
	if a.graph == nil {
		return 0.3, nil
	}

	subgraphNodes := make(map[string]bool)
	for _, e := range node.Entities {
		subgraphNodes[e] = true
		neighbors, err := a.graph.Neighbors(e)
		if err != nil {
			continue
		}
		for _, n := range neighbors {
			subgraphNodes[n] = true
		}
	}
	if len(subgraphNodes) < 2 {
		return 0.3, nil
	}

	actualEdges := 0
	seenPairs := make(map[string]bool)
	for n := range subgraphNodes {
		links, err := a.graph.QueryLinks(n, entitygraph.DirectionOutgoing)
		if err != nil {
			continue
		}
		for _, l := range links {
			if !subgraphNodes[l.EntityB] {
				continue
			}
			key := pairKey(n, l.EntityB)
			if !seenPairs[key] {
				seenPairs[key] = true
				actualEdges++
			}
		}
	}

	n := len(subgraphNodes)
	possibleEdges := float64(n*(n-1)) / 2
	if possibleEdges == 0 {
		return 0.3, nil
	}
	density := float64(actualEdges) / possibleEdges
	if density > 1 {
		density = 1
	}
	return 0.3 + density*0.7, nil
}

func pairKey(a, b string) string {
	if a < b {
		return a + "|" + b
	}
	return b + "|" + a
}

func (a *Analyzer) explorationDepth(node *tree.Node) (float64, error) {
	if node.Depth == 0 {
		return 0, nil
	}
	depthScore := float64(node.Depth) / float64(a.maxDepth)
	if depthScore > 1 {
		depthScore = 1
	}

	children, err := a.tr.ChildrenOf(node.ID)
	if err != nil {
		return 0, err
	}
	childrenRatio := 0.0
	if len(children) > 0 {
		evaluated := 0
		for _, c := range children {
			if c.Status == tree.StatusEvaluated {
				evaluated++
			}
		}
		childrenRatio = float64(evaluated) / float64(len(children))
	}

	return depthScore*0.6 + childrenRatio*0.4, nil
}

func (a *Analyzer) axiomCoverage(node *tree.Node) float64 {
	if a.lib == nil {
		return 1.0
	}
	var scorers []string
	for _, ax := range a.lib.All() {
		if ax.Application == axiom.ApplicationScorer && ax.Enabled {
			scorers = append(scorers, ax.AxiomID)
		}
	}
	if len(scorers) == 0 {
		return 1.0
	}

	tested := len(node.AxiomScores)
	basic := float64(tested) / float64(len(scorers))

	bonus := 0.0
	if len(node.AxiomScores) > 0 {
		var sum float64
		for _, v := range node.AxiomScores {
			sum += v
		}
		avg := sum / float64(len(node.AxiomScores))
		bonus = avg * 0.3
	}

	score := basic + bonus
	if score > 1 {
		score = 1
	}
	return score
}

func (a *Analyzer) neighborCoverage(node *tree.Node) (float64, error) {
	if len(node.Entities) == 0 || a.graph == nil {
		return 0, nil
	}

	neighborSet := make(map[string]bool)
	for _, e := range node.Entities {
		neighbors, err := a.graph.Neighbors(e)
		if err != nil {
			continue
		}
		for _, n := range neighbors {
			neighborSet[n] = true
		}
	}
	if len(neighborSet) == 0 {
		return 0, nil
	}

	allNodes := a.tr.All()

	covered := 0
	for neighbor := range neighborSet {
		found := false
		for _, other := range allNodes {
			if other.ID == node.ID {
				continue
			}
			for _, e := range other.Entities {
				if e == neighbor {
					found = true
					break
				}
			}
			if found {
				break
			}
		}
		if found {
			covered++
		}
	}

	return float64(covered) / float64(len(neighborSet)), nil
}

// IdentifyGaps returns nodes (excluding pruned ones) with overall coverage
// below threshold, sorted by priority (lowest coverage first).
func (a *Analyzer) IdentifyGaps(nodeIDs []string, threshold float64) ([]Gap, error) {
	var gaps []Gap
	for _, id := range nodeIDs {
		node, err := a.tr.GetNode(id)
		if err != nil {
			continue
		}
		if node.Status == tree.StatusPruned {
			continue
		}
		scores, err := a.Analyze(id)
		if err != nil {
			return nil, err
		}
		if scores.Overall < threshold {
			gaps = append(gaps, Gap{
				NodeID:   id,
				Question: node.Question,
				Depth:    node.Depth,
				Scores:   scores,
				Priority: 1 - scores.Overall,
				Reason:   gapReason(scores),
			})
		}
	}

	sort.Slice(gaps, func(i, j int) bool { return gaps[i].Priority > gaps[j].Priority })
	return gaps, nil
}

func gapReason(s Scores) string {
	if s.EntityDensity < 0.3 {
		return "low entity density: this branch has extracted few or no grounded entities"
	}
	if s.ExplorationDepth < 0.3 {
		return "shallow exploration: this branch has not been decomposed or evaluated deeply"
	}
	if s.AxiomCoverage < 0.5 {
		return "low axiom coverage: few active axioms have been scored against this branch"
	}
	if s.NeighborCoverage < 0.3 {
		return "isolated neighborhood: this branch's entity neighbors are largely unexplored elsewhere"
	}
	return fmt.Sprintf("overall coverage %.2f is below threshold", s.Overall)
}
