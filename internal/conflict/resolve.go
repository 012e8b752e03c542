package conflict

import (
	"sovereign-research-orchestrator/internal/logging"
	"sovereign-research-orchestrator/internal/store"
)

// Strategy picks which triplet of a conflicting pair survives.
type Strategy string

const (
	StrategyConfidence Strategy = "confidence"
	StrategySources    Strategy = "sources"
	StrategyRecency    Strategy = "recency"
	StrategyTier       Strategy = "tier"
	StrategyManual     Strategy = "manual"
)

// Resolution is the outcome of resolving one conflicting pair.
type Resolution struct {
	Conflict     *Conflict
	Keep         *store.Triplet
	Loser        *store.Triplet
	ManualReview bool
}

func tierRank(t store.Tier) int {
	switch t {
	case store.TierGold:
		return 2
	case store.TierSilver:
		return 1
	default:
		return 0
	}
}

// Resolve applies strategy to a detected conflict, returning which triplet
// to keep. Falls back to confidence on a tie per the strategy table, except
// recency and manual which have no fallback.
func Resolve(c *Conflict, strategy Strategy) Resolution {
	switch strategy {
	case StrategySources:
		sa, sb := c.A.Provenance.EffectiveSourceCount(), c.B.Provenance.EffectiveSourceCount()
		if sa != sb {
			return keep(c, sa > sb)
		}
		return resolveByConfidence(c, true)

	case StrategyRecency:
		return keep(c, c.A.CreatedAt.After(c.B.CreatedAt))

	case StrategyTier:
		ta, tb := tierRank(c.A.Tier), tierRank(c.B.Tier)
		if ta != tb {
			return keep(c, ta > tb)
		}
		return resolveByConfidence(c, true)

	case StrategyManual:
		return Resolution{Conflict: c, Keep: c.A, Loser: c.B, ManualReview: true}

	default: // StrategyConfidence
		return resolveByConfidence(c, false)
	}
}

func resolveByConfidence(c *Conflict, fallingBack bool) Resolution {
	if c.A.Confidence == c.B.Confidence {
		return Resolution{Conflict: c, Keep: c.A, Loser: c.B, ManualReview: true}
	}
	r := keep(c, c.A.Confidence > c.B.Confidence)
	r.ManualReview = false
	return r
}

func keep(c *Conflict, aWins bool) Resolution {
	if aWins {
		return Resolution{Conflict: c, Keep: c.A, Loser: c.B}
	}
	return Resolution{Conflict: c, Keep: c.B, Loser: c.A}
}

// Resolver detects and resolves conflicts across the whole fact store.
type Resolver struct {
	st        *store.Store
	threshold float64
}

// New creates a Resolver with the given minimum reportable severity.
func New(st *store.Store, threshold float64) *Resolver {
	if threshold <= 0 {
		threshold = 0.7
	}
	return &Resolver{st: st, threshold: threshold}
}

// DetectAll scans the entire store for unique conflicting pairs at or above
// the resolver's severity threshold, each pair reported once regardless of
// detection order.
func (r *Resolver) DetectAll() ([]*Conflict, error) {
	timer := logging.StartTimer(logging.CategoryConflict, "DetectAll")
	defer timer.Stop()

	all, err := r.st.QueryTriplets(store.Query{Limit: 100000})
	if err != nil {
		return nil, err
	}

	var conflicts []*Conflict
	for i := 0; i < len(all); i++ {
		for j := i + 1; j < len(all); j++ {
			c := Detect(all[i], all[j])
			if c != nil && c.Severity >= r.threshold {
				conflicts = append(conflicts, c)
			}
		}
	}
	return conflicts, nil
}

// BatchStats summarizes an auto-resolve-all run.
type BatchStats struct {
	TotalConflicts int
	Resolved       int
	ManualReview   int
	Deleted        int
}

// AutoResolveAll detects every conflicting pair, applies strategy to each,
// and optionally deletes losers via the fact store.
func (r *Resolver) AutoResolveAll(strategy Strategy, deleteLosers bool) ([]Resolution, BatchStats, error) {
	timer := logging.StartTimer(logging.CategoryConflict, "AutoResolveAll")
	defer timer.Stop()

	conflicts, err := r.DetectAll()
	if err != nil {
		return nil, BatchStats{}, err
	}

	stats := BatchStats{TotalConflicts: len(conflicts)}
	resolutions := make([]Resolution, 0, len(conflicts))

	for _, c := range conflicts {
		res := Resolve(c, strategy)
		resolutions = append(resolutions, res)
		stats.Resolved++
		if res.ManualReview {
			stats.ManualReview++
		}
		if deleteLosers && !res.ManualReview {
			if err := r.st.Delete(res.Loser.ID); err == nil {
				stats.Deleted++
			}
		}
	}

	return resolutions, stats, nil
}
