// Package budget implements the token budget governor (C13): per-node and
// per-session token allocation and tracking, so MCTS can react to exhaustion
// without the governor itself making pruning decisions.
package budget

import (
	"math"
	"sync"

	"sovereign-research-orchestrator/internal/config"
	"sovereign-research-orchestrator/internal/logging"
)

// nodeLedger tracks one node's allocation and consumption.
type nodeLedger struct {
	allocated int
	used      int
	exhausted bool
}

// Governor tracks token consumption against a session-wide and per-node
// budget.
type Governor struct {
	mu      sync.Mutex
	cfg     config.TokenBudgetConfig
	nodes   map[string]*nodeLedger
	sessionUsed int
}

// New creates a Governor from a token budget configuration.
func New(cfg config.TokenBudgetConfig) *Governor {
	return &Governor{cfg: cfg, nodes: make(map[string]*nodeLedger)}
}

// Allocate computes node-id's budget as clamp(default*(1+ucb1), min, max),
// shrinking to whatever remains of the session budget if it would otherwise
// be exceeded. An infinite ucb1 maps to the max budget.
func (g *Governor) Allocate(nodeID string, ucb1 float64) int {
	timer := logging.StartTimer(logging.CategoryBudget, "Allocate")
	defer timer.Stop()

	g.mu.Lock()
	defer g.mu.Unlock()

	var budget int
	if math.IsInf(ucb1, 1) {
		budget = g.cfg.MaxNode
	} else {
		budget = int(float64(g.cfg.DefaultNode) * (1 + ucb1))
		if budget < g.cfg.MinNode {
			budget = g.cfg.MinNode
		}
		if budget > g.cfg.MaxNode {
			budget = g.cfg.MaxNode
		}
	}

	remaining := g.cfg.Total - g.sessionUsed
	if remaining < 0 {
		remaining = 0
	}
	if budget > remaining {
		budget = remaining
	}

	ledger, ok := g.nodes[nodeID]
	if !ok {
		ledger = &nodeLedger{}
		g.nodes[nodeID] = ledger
	}
	ledger.allocated = budget
	ledger.exhausted = ledger.used >= ledger.allocated
	return budget
}

// Track increments node-id's and the session's consumption counters,
// flipping the node's exhausted flag when it crosses its allocation.
func (g *Governor) Track(nodeID string, tokens int) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ledger, ok := g.nodes[nodeID]
	if !ok {
		ledger = &nodeLedger{}
		g.nodes[nodeID] = ledger
	}
	ledger.used += tokens
	ledger.exhausted = ledger.used >= ledger.allocated
	g.sessionUsed += tokens
}

// Check reports whether nodeID has not yet been allocated, or still has
// remaining budget.
func (g *Governor) Check(nodeID string) bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	ledger, ok := g.nodes[nodeID]
	if !ok {
		return true
	}
	return !ledger.exhausted
}

// Remaining returns the unused portion of node-id's allocation.
func (g *Governor) Remaining(nodeID string) int {
	g.mu.Lock()
	defer g.mu.Unlock()
	ledger, ok := g.nodes[nodeID]
	if !ok {
		return 0
	}
	remaining := ledger.allocated - ledger.used
	if remaining < 0 {
		return 0
	}
	return remaining
}

// SessionRemaining returns the unused portion of the total session budget.
func (g *Governor) SessionRemaining() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	remaining := g.cfg.Total - g.sessionUsed
	if remaining < 0 {
		return 0
	}
	return remaining
}

// TotalExceeded reports whether session consumption has reached the
// session-wide budget.
func (g *Governor) TotalExceeded() bool {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.sessionUsed >= g.cfg.Total
}
