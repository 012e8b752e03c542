// Package xot implements the XoT prior (C11): a fast heuristic call used to
// give MCTS selection an early, cheap signal on a node's promise before a
// full simulation runs.
package xot

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"sovereign-research-orchestrator/internal/genai"
	"sovereign-research-orchestrator/internal/logging"
)

// PathNode is the minimal ancestor-chain shape the prior needs; callers
// project their tree nodes into this to avoid a dependency on internal/tree.
type PathNode struct {
	Question string
}

// Stats tracks running XoT call statistics.
type Stats struct {
	Calls       int
	Successes   int
	TotalLatency time.Duration
	TotalScore  float64
}

// SuccessRate returns the fraction of calls that parsed cleanly.
func (s Stats) SuccessRate() float64 {
	if s.Calls == 0 {
		return 0
	}
	return float64(s.Successes) / float64(s.Calls)
}

// AverageLatency returns the mean call latency.
func (s Stats) AverageLatency() time.Duration {
	if s.Calls == 0 {
		return 0
	}
	return s.TotalLatency / time.Duration(s.Calls)
}

// AverageScore returns the mean prior value returned (including fallbacks).
func (s Stats) AverageScore() float64 {
	if s.Calls == 0 {
		return 0
	}
	return s.TotalScore / float64(s.Calls)
}

// Simulator runs the quick XoT heuristic.
type Simulator struct {
	gen      genai.Generator
	depth    int
	fallback float64

	mu    sync.Mutex
	stats Stats
}

// New creates a Simulator. depth defaults to 3, fallback defaults to 0.5.
func New(gen genai.Generator, depth int, fallback float64) *Simulator {
	if depth <= 0 {
		depth = 3
	}
	if fallback <= 0 {
		fallback = 0.5
	}
	return &Simulator{gen: gen, depth: depth, fallback: fallback}
}

// Stats returns a snapshot of running call statistics.
func (s *Simulator) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// SimulateQuick assembles a path summary (node plus up to depth ancestors),
// asks the generator for a single float prior, and parses the response
// through a cascade of patterns, falling back to a configured default.
func (s *Simulator) SimulateQuick(ctx context.Context, node PathNode, ancestors []PathNode) float64 {
	timer := logging.StartTimer(logging.CategoryXoT, "SimulateQuick")
	defer timer.Stop()

	start := time.Now()

	prompt := buildPrompt(node, ancestors, s.depth)

	if s.gen == nil {
		return s.record(start, s.fallback, false)
	}

	result, err := s.gen.Generate(ctx, prompt, genai.CapabilityReasoning, genai.QualityFast, genai.Params{Temperature: 0.0, MaxTokens: 20})
	if err != nil {
		logging.Get(logging.CategoryXoT).Warn("xot generator call failed: %v", err)
		return s.record(start, s.fallback, false)
	}

	score, ok := parsePrior(result.Content)
	if !ok {
		return s.record(start, s.fallback, false)
	}
	return s.record(start, score, true)
}

func (s *Simulator) record(start time.Time, score float64, success bool) float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stats.Calls++
	if success {
		s.stats.Successes++
	}
	s.stats.TotalLatency += time.Since(start)
	s.stats.TotalScore += score
	return score
}

func buildPrompt(node PathNode, ancestors []PathNode, depth int) string {
	var b strings.Builder
	b.WriteString("Rate how promising this research path is on a scale of 0.0 to 1.0.\n\n")
	if len(ancestors) > 0 {
		b.WriteString("Path so far:\n")
		limit := depth
		if limit > len(ancestors) {
			limit = len(ancestors)
		}
		for i := 0; i < limit; i++ {
			b.WriteString(fmt.Sprintf("- %s\n", ancestors[i].Question))
		}
	}
	b.WriteString(fmt.Sprintf("\nCurrent question: %s\n\n", node.Question))
	b.WriteString("Respond with a single number between 0.0 and 1.0, nothing else.")
	return b.String()
}

var (
	bareFloatRe    = regexp.MustCompile(`^\s*([01](\.\d+)?|0?\.\d+)\s*$`)
	labeledFloatRe = regexp.MustCompile(`(?i)(?:score|prior|rating)\s*[:=]\s*([01](\.\d+)?|0?\.\d+)`)
	anyFloatRe     = regexp.MustCompile(`([01](\.\d+)?|0?\.\d+)`)
)

// parsePrior runs the bare-float / labeled-float / any-float / first-line
// cascade described in spec §4.9.
func parsePrior(raw string) (float64, bool) {
	trimmed := strings.TrimSpace(raw)

	if m := bareFloatRe.FindStringSubmatch(trimmed); m != nil {
		if f, err := strconv.ParseFloat(m[1], 64); err == nil {
			return clamp(f), true
		}
	}

	if m := labeledFloatRe.FindStringSubmatch(trimmed); m != nil {
		if f, err := strconv.ParseFloat(m[1], 64); err == nil {
			return clamp(f), true
		}
	}

	if m := anyFloatRe.FindStringSubmatch(trimmed); m != nil {
		if f, err := strconv.ParseFloat(m[1], 64); err == nil {
			return clamp(f), true
		}
	}

	firstLine := trimmed
	if idx := strings.Index(trimmed, "\n"); idx >= 0 {
		firstLine = trimmed[:idx]
	}
	if m := anyFloatRe.FindStringSubmatch(firstLine); m != nil {
		if f, err := strconv.ParseFloat(m[1], 64); err == nil {
			return clamp(f), true
		}
	}

	return 0, false
}

func clamp(f float64) float64 {
	if f < 0 {
		return 0
	}
	if f > 1 {
		return 1
	}
	return f
}
