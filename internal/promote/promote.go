// Package promote implements the tier promoter (C8): the sole writer of
// tier transitions in the fact store, gated on source counts, confidence,
// and (for Gold) an axiom judge.
package promote

import (
	"context"
	"sync"
	"time"

	"sovereign-research-orchestrator/internal/axiom"
	"sovereign-research-orchestrator/internal/config"
	"sovereign-research-orchestrator/internal/judge"
	"sovereign-research-orchestrator/internal/logging"
	"sovereign-research-orchestrator/internal/store"
)

// Result is the outcome of one promotion attempt.
type Result struct {
	TripletID string
	FromTier  store.Tier
	ToTier    store.Tier
	Promoted  bool
	Reason    string
	At        time.Time
}

// Promoter is the sole writer of tier changes.
type Promoter struct {
	st     *store.Store
	judge  *judge.Judge
	lib    *axiom.Library
	cfg    config.PromotionConfig

	mu      sync.Mutex
	history []Result
}

// New creates a Promoter. judge and lib may be nil; if so, Silver->Gold
// promotions are deferred with an explanatory reason unless force is set.
func New(st *store.Store, j *judge.Judge, lib *axiom.Library, cfg config.PromotionConfig) *Promoter {
	return &Promoter{st: st, judge: j, lib: lib, cfg: cfg}
}

// History returns every promotion attempt recorded so far, success or not.
func (p *Promoter) History() []Result {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]Result, len(p.history))
	copy(out, p.history)
	return out
}

func (p *Promoter) record(r Result) Result {
	p.mu.Lock()
	p.history = append(p.history, r)
	p.mu.Unlock()
	return r
}

// PromoteIfEligible evaluates and, if eligible, applies the next tier
// transition for id. force skips confidence and axiom-judge checks but
// never the source-count check.
func (p *Promoter) PromoteIfEligible(ctx context.Context, id string, force bool) (Result, error) {
	timer := logging.StartTimer(logging.CategoryPromote, "PromoteIfEligible")
	defer timer.Stop()

	t, err := p.st.Get(id)
	if err != nil {
		return Result{}, err
	}

	switch t.Tier {
	case store.TierBronze:
		return p.tryPromote(ctx, t, store.TierSilver, force)
	case store.TierSilver:
		return p.tryPromote(ctx, t, store.TierGold, force)
	default:
		return p.record(Result{TripletID: id, FromTier: t.Tier, ToTier: t.Tier, Promoted: false,
			Reason: "already at top tier", At: time.Now()}), nil
	}
}

func (p *Promoter) tryPromote(ctx context.Context, t *store.Triplet, target store.Tier, force bool) (Result, error) {
	sources := t.Provenance.EffectiveSourceCount()

	var minSources int
	var minConfidence float64
	if target == store.TierSilver {
		minSources = p.cfg.MinSourcesSilver
		minConfidence = p.cfg.ConfidenceSilver
	} else {
		minSources = p.cfg.MinSourcesGold
		minConfidence = p.cfg.ConfidenceGold
	}

	if sources < minSources {
		return p.record(Result{TripletID: t.ID, FromTier: t.Tier, ToTier: target, Promoted: false,
			Reason: "insufficient effective source count", At: time.Now()}), nil
	}

	if !force {
		if t.Confidence < minConfidence {
			return p.record(Result{TripletID: t.ID, FromTier: t.Tier, ToTier: target, Promoted: false,
				Reason: "confidence below threshold", At: time.Now()}), nil
		}

		if target == store.TierGold {
			if p.judge == nil || p.lib == nil {
				return p.record(Result{TripletID: t.ID, FromTier: t.Tier, ToTier: target, Promoted: false,
					Reason: "no axiom judge wired, promotion deferred", At: time.Now()}), nil
			}
			judgment, err := p.judge.Evaluate(ctx, t, p.lib.All())
			if err != nil {
				return Result{}, err
			}
			if !judgment.Pass {
				return p.record(Result{TripletID: t.ID, FromTier: t.Tier, ToTier: target, Promoted: false,
					Reason: "axiom judge did not pass: " + judgment.Reasoning, At: time.Now()}), nil
			}
		}
	}

	if err := p.st.UpdateTier(t.ID, target); err != nil {
		return Result{}, err
	}

	return p.record(Result{TripletID: t.ID, FromTier: t.Tier, ToTier: target, Promoted: true,
		Reason: "eligible", At: time.Now()}), nil
}

// BatchCounts aggregates an auto-promote-batch run.
type BatchCounts struct {
	Attempted int
	Promoted  int
	Deferred  int
}

// AutoPromoteBatch applies PromoteIfEligible to each id in order.
func (p *Promoter) AutoPromoteBatch(ctx context.Context, ids []string, force bool) ([]Result, BatchCounts, error) {
	results := make([]Result, 0, len(ids))
	counts := BatchCounts{}
	for _, id := range ids {
		res, err := p.PromoteIfEligible(ctx, id, force)
		if err != nil {
			return results, counts, err
		}
		counts.Attempted++
		if res.Promoted {
			counts.Promoted++
		} else {
			counts.Deferred++
		}
		results = append(results, res)
	}
	return results, counts, nil
}

// GetPromotionCandidates scans for currently eligible triplets for
// targetTier without mutating them.
func (p *Promoter) GetPromotionCandidates(targetTier store.Tier) ([]*store.Triplet, error) {
	var fromTier store.Tier
	var minSources int
	var minConfidence float64

	switch targetTier {
	case store.TierSilver:
		fromTier = store.TierBronze
		minSources = p.cfg.MinSourcesSilver
		minConfidence = p.cfg.ConfidenceSilver
	case store.TierGold:
		fromTier = store.TierSilver
		minSources = p.cfg.MinSourcesGold
		minConfidence = p.cfg.ConfidenceGold
	default:
		return nil, nil
	}

	candidates, err := p.st.QueryTriplets(store.Query{Tier: fromTier, MinConfidence: minConfidence, Limit: 100000})
	if err != nil {
		return nil, err
	}

	var eligible []*store.Triplet
	for _, c := range candidates {
		if c.Provenance.EffectiveSourceCount() >= minSources {
			eligible = append(eligible, c)
		}
	}
	return eligible, nil
}
