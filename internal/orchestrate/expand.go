package orchestrate

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"sovereign-research-orchestrator/internal/axiom"
	"sovereign-research-orchestrator/internal/conflict"
	"sovereign-research-orchestrator/internal/entitygraph"
	"sovereign-research-orchestrator/internal/extract"
	"sovereign-research-orchestrator/internal/genai"
	"sovereign-research-orchestrator/internal/logging"
	"sovereign-research-orchestrator/internal/store"
	"sovereign-research-orchestrator/internal/tree"
)

const expandPromptTemplate = `Answer the following research question as thoroughly and precisely as you can.

Question: %s
%s
Give a direct, well-supported answer.`

const maxContextLinks = 15
const egoRadius = 1

// Expand answers a node, extracts its entities and facts, and runs the
// intelligence pipeline (cross-verification, tier promotion, conflict
// resolution, quality cache invalidation) over whatever facts it derived.
// A failure to generate the primary answer fails expansion outright; every
// later step logs and proceeds on error so one bad fact never blocks the
// rest of the pipeline.
func (o *Orchestrator) Expand(ctx context.Context, nodeID string, quality genai.Quality) error {
	timer := logging.StartTimer(logging.CategoryOrchestrate, "Expand")
	defer timer.Stop()

	node, err := o.tr.GetNode(nodeID)
	if err != nil {
		return err
	}
	if err := o.tr.SetStatus(nodeID, tree.StatusExploring); err != nil {
		return err
	}

	if o.gen == nil {
		_ = o.tr.SetStatus(nodeID, tree.StatusEvaluated)
		return fmt.Errorf("expand: no generator wired")
	}

	contextBlock := o.buildContext(node)
	prompt := fmt.Sprintf(expandPromptTemplate, node.Question, contextBlock)

	result, err := o.gen.Generate(ctx, prompt, genai.CapabilityReasoning, quality, genai.Params{Temperature: 0.3, MaxTokens: 1200})
	if err != nil {
		_ = o.tr.SetStatus(nodeID, tree.StatusEvaluated)
		o.recordFallback()
		return fmt.Errorf("expand: answer generation failed: %w", err)
	}

	answer := strings.TrimSpace(result.Content)
	if err := o.tr.SetAnswer(nodeID, answer, 0.8); err != nil {
		return err
	}

	entities := extractEntities(answer)
	if err := o.tr.SetEntities(nodeID, entities); err != nil {
		logging.Get(logging.CategoryOrchestrate).Warn("set entities failed for %s: %v", nodeID, err)
	}

	var ids []string
	if o.extractor != nil {
		facts, err := o.extractor.Extract(ctx, answer, extract.Context{SourceID: nodeID, NodeID: nodeID}, quality)
		if err != nil {
			logging.Get(logging.CategoryOrchestrate).Warn("fact derivation failed for %s: %v", nodeID, err)
		}
		for _, f := range facts {
			if err := o.st.Insert(f); err != nil {
				logging.Get(logging.CategoryOrchestrate).Warn("fact insert failed for %s: %v", nodeID, err)
				continue
			}
			ids = append(ids, f.ID)
			o.linkEntities(f)
		}
		o.mu.Lock()
		o.stats.FactsExtracted += len(ids)
		o.mu.Unlock()
		if len(ids) > 0 {
			if err := o.tr.SetTripletIDs(nodeID, ids); err != nil {
				logging.Get(logging.CategoryOrchestrate).Warn("set triplet ids failed for %s: %v", nodeID, err)
			}
		}
	}

	o.runIntelligencePipeline(ctx, nodeID, ids)
	o.checkAxiomIncompatible(nodeID, ids)

	return o.tr.SetStatus(nodeID, tree.StatusEvaluated)
}

// buildContext renders a short markdown summary of the parent node's most
// central known facts, pulled as an ego-subgraph around its extracted
// entities. Returns "" when there is no parent context to offer.
func (o *Orchestrator) buildContext(node *tree.Node) string {
	if node.ParentID == "" || o.graph == nil {
		return ""
	}
	parent, err := o.tr.GetNode(node.ParentID)
	if err != nil || len(parent.Entities) == 0 {
		return ""
	}

	seen := make(map[string]bool)
	var links []entitygraph.Link
	for _, e := range parent.Entities {
		ls, err := o.graph.EgoSubgraph(e, egoRadius)
		if err != nil {
			continue
		}
		for _, l := range ls {
			key := l.EntityA + "|" + l.Relation + "|" + l.EntityB
			if seen[key] {
				continue
			}
			seen[key] = true
			links = append(links, l)
		}
	}
	if len(links) == 0 {
		return ""
	}

	sort.Slice(links, func(i, j int) bool { return links[i].Weight > links[j].Weight })
	if len(links) > maxContextLinks {
		links = links[:maxContextLinks]
	}

	var b strings.Builder
	b.WriteString("Known related facts:\n")
	for _, l := range links {
		fmt.Fprintf(&b, "- %s %s %s\n", l.EntityA, l.Relation, l.EntityB)
	}
	return b.String()
}

// linkEntities records a co-occurrence edge in the entity graph for a
// derived fact, weighted by its confidence.
func (o *Orchestrator) linkEntities(t *store.Triplet) {
	if o.graph == nil {
		return
	}
	if err := o.graph.StoreLink(t.Subject, t.Predicate, t.Object, t.Confidence, nil); err != nil {
		logging.Get(logging.CategoryOrchestrate).Warn("entity link store failed: %v", err)
	}
}

// runIntelligencePipeline applies §4.13c over every fact derived from a
// node: find similar existing facts, cross-verify sources in both
// directions, promote-if-eligible, detect and resolve conflicts, and
// invalidate the node's quality cache entry. Every step here logs and
// continues rather than aborting the pipeline.
func (o *Orchestrator) runIntelligencePipeline(ctx context.Context, nodeID string, ids []string) {
	log := logging.Get(logging.CategoryOrchestrate)

	for _, id := range ids {
		t, err := o.st.Get(id)
		if err != nil {
			continue
		}

		if o.verifier != nil {
			matches, err := o.verifier.FindSimilar(t, o.similarityThreshold)
			if err != nil {
				log.Warn("find similar failed for %s: %v", id, err)
			}
			for _, m := range matches {
				if _, err := o.verifier.Verify(m.Triplet.ID, nodeID); err != nil {
					log.Warn("verify %s with new source failed: %v", m.Triplet.ID, err)
				}
				if _, err := o.verifier.Verify(id, m.Triplet.Provenance.SourceID); err != nil {
					log.Warn("verify %s with matched source failed: %v", id, err)
				}

				if o.promoter != nil {
					if _, err := o.promoter.PromoteIfEligible(ctx, id, false); err != nil {
						log.Warn("promote %s failed: %v", id, err)
					}
					if _, err := o.promoter.PromoteIfEligible(ctx, m.Triplet.ID, false); err != nil {
						log.Warn("promote %s failed: %v", m.Triplet.ID, err)
					}
				}

				if o.resolver != nil {
					if current, err := o.st.Get(id); err == nil {
						if c := conflict.Detect(current, m.Triplet); c != nil {
							res := conflict.Resolve(c, o.conflictStrategy)
							if res.ManualReview {
								o.recordManualReview()
								log.Info("conflict between %s and %s flagged for manual review", c.A.ID, c.B.ID)
							} else if res.Loser != nil {
								if err := o.st.Delete(res.Loser.ID); err != nil {
									log.Warn("delete conflict loser %s failed: %v", res.Loser.ID, err)
								} else {
									log.Info("conflict resolved: keeping %s over %s", res.Keep.ID, res.Loser.ID)
								}
								if res.Loser.ID == id {
									break
								}
							}
						}
					}
				}
			}
		} else if o.promoter != nil {
			if _, err := o.promoter.PromoteIfEligible(ctx, id, false); err != nil {
				log.Warn("promote %s failed: %v", id, err)
			}
		}

		if o.qualityEval != nil {
			o.qualityEval.Invalidate(nodeID)
		}
	}
}

// checkAxiomIncompatible flags the node as axiom-incompatible if any fact it
// produced scores below the configured hard-reject threshold against the
// loaded axiom library.
func (o *Orchestrator) checkAxiomIncompatible(nodeID string, ids []string) {
	if o.lib == nil || o.lib.Count() == 0 {
		return
	}
	for _, id := range ids {
		t, err := o.st.Get(id)
		if err != nil {
			continue
		}
		subj := axiom.Subject{"confidence": t.Confidence, "sources": float64(t.Provenance.EffectiveSourceCount())}
		if o.lib.ScoreAll(subj) < o.axiomHardRejectThreshold {
			if err := o.tr.SetAxiomIncompatible(nodeID, true); err != nil {
				logging.Get(logging.CategoryOrchestrate).Warn("set axiom incompatible failed for %s: %v", nodeID, err)
			}
			return
		}
	}
}
