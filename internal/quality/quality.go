// Package quality implements the fact-quality evaluator (C9): a weighted
// tier-mix score per tree node, cached with a short TTL and coalesced with
// singleflight so concurrent evaluate(node-id) calls for the same node only
// run one store scan.
package quality

import (
	"sync"
	"time"

	"golang.org/x/sync/singleflight"

	"sovereign-research-orchestrator/internal/logging"
	"sovereign-research-orchestrator/internal/store"
)

const (
	weightGold   = 1.0
	weightSilver = 0.6
	weightBronze = 0.3
)

// Breakdown is the detailed per-tier composition behind a score.
type Breakdown struct {
	Gold, Silver, Bronze, Total int
	WeightedSum                 float64
	Score                       float64
}

type cacheEntry struct {
	breakdown Breakdown
	expiresAt time.Time
}

// Evaluator computes and caches fact-quality scores per node.
type Evaluator struct {
	st  *store.Store
	ttl time.Duration

	mu    sync.Mutex
	cache map[string]cacheEntry

	group singleflight.Group
}

// New creates an Evaluator. ttl defaults to 60s when zero.
func New(st *store.Store, ttl time.Duration) *Evaluator {
	if ttl <= 0 {
		ttl = 60 * time.Second
	}
	return &Evaluator{st: st, ttl: ttl, cache: make(map[string]cacheEntry)}
}

// Invalidate drops any cached entry for nodeID. Called on tier promotion,
// new extraction attached to the node, and verification adding the node as
// a source.
func (e *Evaluator) Invalidate(nodeID string) {
	e.mu.Lock()
	delete(e.cache, nodeID)
	e.mu.Unlock()
}

// Evaluate returns the fact-quality score in [0,1] for nodeID.
func (e *Evaluator) Evaluate(nodeID string) (float64, error) {
	b, err := e.EvaluateDetailed(nodeID)
	if err != nil {
		return 0, err
	}
	return b.Score, nil
}

// EvaluateDetailed returns the full breakdown behind a node's score.
func (e *Evaluator) EvaluateDetailed(nodeID string) (Breakdown, error) {
	timer := logging.StartTimer(logging.CategoryQuality, "EvaluateDetailed")
	defer timer.Stop()

	e.mu.Lock()
	if entry, ok := e.cache[nodeID]; ok && time.Now().Before(entry.expiresAt) {
		e.mu.Unlock()
		return entry.breakdown, nil
	}
	e.mu.Unlock()

	v, err, _ := e.group.Do(nodeID, func() (interface{}, error) {
		b, err := e.compute(nodeID)
		if err != nil {
			return Breakdown{}, err
		}
		e.mu.Lock()
		e.cache[nodeID] = cacheEntry{breakdown: b, expiresAt: time.Now().Add(e.ttl)}
		e.mu.Unlock()
		return b, nil
	})
	if err != nil {
		return Breakdown{}, err
	}
	return v.(Breakdown), nil
}

func (e *Evaluator) compute(nodeID string) (Breakdown, error) {
	triplets, err := e.triplesForNode(nodeID)
	if err != nil {
		return Breakdown{}, err
	}

	var b Breakdown
	for _, t := range triplets {
		switch t.Tier {
		case store.TierGold:
			b.Gold++
		case store.TierSilver:
			b.Silver++
		default:
			b.Bronze++
		}
	}
	b.Total = len(triplets)
	if b.Total == 0 {
		return b, nil
	}

	b.WeightedSum = float64(b.Gold)*weightGold + float64(b.Silver)*weightSilver + float64(b.Bronze)*weightBronze
	b.Score = b.WeightedSum / (float64(b.Total) * weightGold)
	return b, nil
}

func (e *Evaluator) triplesForNode(nodeID string) ([]*store.Triplet, error) {
	bySource, err := e.st.QueryBySource(nodeID)
	if err != nil {
		return nil, err
	}

	all, err := e.st.QueryTriplets(store.Query{Limit: 100000})
	if err != nil {
		return nil, err
	}

	seen := make(map[string]bool, len(bySource))
	result := make([]*store.Triplet, 0, len(bySource))
	for _, t := range bySource {
		if !seen[t.ID] {
			seen[t.ID] = true
			result = append(result, t)
		}
	}
	for _, t := range all {
		if seen[t.ID] {
			continue
		}
		for _, s := range t.Provenance.VerificationSources {
			if s == nodeID {
				seen[t.ID] = true
				result = append(result, t)
				break
			}
		}
	}
	return result, nil
}

// EvaluateBatch evaluates every id in ids, returning a mapping.
func (e *Evaluator) EvaluateBatch(ids []string) (map[string]float64, error) {
	out := make(map[string]float64, len(ids))
	for _, id := range ids {
		score, err := e.Evaluate(id)
		if err != nil {
			return nil, err
		}
		out[id] = score
	}
	return out, nil
}

// Summary is the global tier distribution across the whole store.
type Summary struct {
	Gold, Silver, Bronze, Total int
	GoldPct, SilverPct, BronzePct float64
}

// GlobalSummary computes tier counts and percentage distribution store-wide.
func (e *Evaluator) GlobalSummary() (Summary, error) {
	stats, err := e.st.ComputeStats()
	if err != nil {
		return Summary{}, err
	}

	s := Summary{Gold: int(stats.Gold), Silver: int(stats.Silver), Bronze: int(stats.Bronze), Total: int(stats.Total)}
	if s.Total > 0 {
		s.GoldPct = float64(s.Gold) / float64(s.Total) * 100
		s.SilverPct = float64(s.Silver) / float64(s.Total) * 100
		s.BronzePct = float64(s.Bronze) / float64(s.Total) * 100
	}
	return s, nil
}
