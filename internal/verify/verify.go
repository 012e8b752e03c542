package verify

import (
	"sort"

	"sovereign-research-orchestrator/internal/config"
	"sovereign-research-orchestrator/internal/logging"
	"sovereign-research-orchestrator/internal/store"
)

// Result is the outcome of attaching a source to a triplet.
type Result struct {
	Triplet        *store.Triplet
	AlreadyPresent bool
	ShouldPromote  bool
}

// Match pairs a similar triplet with its score, for find-similar results.
type Match struct {
	Triplet    *store.Triplet
	Similarity float64
}

// Verifier attaches corroborating sources to triplets and finds similar facts.
type Verifier struct {
	st   *store.Store
	prom config.PromotionConfig
}

// New creates a Verifier bound to a fact store and the promotion thresholds
// used to decide should-promote.
func New(st *store.Store, prom config.PromotionConfig) *Verifier {
	return &Verifier{st: st, prom: prom}
}

// Verify idempotently attaches newSource to triplet id's provenance and
// reports whether the triplet is now promotion-eligible for its next tier.
func (v *Verifier) Verify(id, newSource string) (*Result, error) {
	timer := logging.StartTimer(logging.CategoryVerify, "Verify")
	defer timer.Stop()

	t, err := v.st.Get(id)
	if err != nil {
		return nil, err
	}

	if t.Provenance.HasSource(newSource) {
		return &Result{Triplet: t, AlreadyPresent: true, ShouldPromote: v.eligible(t)}, nil
	}

	if err := v.st.UpdateProvenance(id, t.Provenance.Verified, newSource); err != nil {
		return nil, err
	}

	updated, err := v.st.Get(id)
	if err != nil {
		return nil, err
	}

	return &Result{Triplet: updated, AlreadyPresent: false, ShouldPromote: v.eligible(updated)}, nil
}

// eligible reports whether t's current tier's next-level source requirement
// is satisfied (confidence is evaluated separately by the promoter; this only
// answers the source-count half of should-promote, per §4.3's "current
// tier's next-level source requirement is reached").
func (v *Verifier) eligible(t *store.Triplet) bool {
	sources := t.Provenance.EffectiveSourceCount()
	switch t.Tier {
	case store.TierBronze:
		return sources >= v.prom.MinSourcesSilver
	case store.TierSilver:
		return sources >= v.prom.MinSourcesGold
	default:
		return false
	}
}

// FindSimilar returns triplets other than t with similarity >= threshold,
// sorted descending by score.
func (v *Verifier) FindSimilar(t *store.Triplet, threshold float64) ([]Match, error) {
	timer := logging.StartTimer(logging.CategoryVerify, "FindSimilar")
	defer timer.Stop()

	candidates, err := v.st.QueryTriplets(store.Query{Limit: 5000})
	if err != nil {
		return nil, err
	}

	var matches []Match
	for _, c := range candidates {
		if c.ID == t.ID {
			continue
		}
		score := Similarity(t.Subject, t.Predicate, t.Object, c.Subject, c.Predicate, c.Object)
		if score >= threshold {
			matches = append(matches, Match{Triplet: c, Similarity: score})
		}
	}

	sort.Slice(matches, func(i, j int) bool {
		return matches[i].Similarity > matches[j].Similarity
	})

	return matches, nil
}
