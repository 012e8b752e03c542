// Package judge implements the axiom judge (C7): an LLM-mediated evaluator
// that checks a triplet's alignment against a set of axioms before it can be
// promoted to Gold tier.
package judge

import (
	"context"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"sovereign-research-orchestrator/internal/axiom"
	"sovereign-research-orchestrator/internal/genai"
	"sovereign-research-orchestrator/internal/logging"
	"sovereign-research-orchestrator/internal/store"
)

// Judgment is the outcome of evaluating a triplet against a set of axioms.
type Judgment struct {
	Pass        bool
	Score       float64
	AxiomScores map[string]float64
	Reasoning   string
	EvaluatedAt time.Time
}

// Judge evaluates triplets against axioms via a generator.
type Judge struct {
	gen       genai.Generator
	threshold float64
	quality   genai.Quality
}

// New creates a Judge. threshold defaults to 0.7 when zero.
func New(gen genai.Generator, threshold float64, quality genai.Quality) *Judge {
	if threshold <= 0 {
		threshold = 0.7
	}
	if quality == "" {
		quality = genai.QualityBalanced
	}
	return &Judge{gen: gen, threshold: threshold, quality: quality}
}

// Evaluate judges t against axioms (or, if nil, has no axioms to check and
// passes trivially with overall-score 1). On generator failure it defaults
// to pass with overall-score 0.5, conservative so promotion is never stalled
// by a transient model outage.
func (j *Judge) Evaluate(ctx context.Context, t *store.Triplet, axioms []*axiom.Axiom) (*Judgment, error) {
	timer := logging.StartTimer(logging.CategoryJudge, "Evaluate")
	defer timer.Stop()

	if len(axioms) == 0 {
		return &Judgment{Pass: true, Score: 1, AxiomScores: map[string]float64{}, EvaluatedAt: time.Now()}, nil
	}

	if j.gen == nil {
		logging.Get(logging.CategoryJudge).Warn("no generator wired, deferring judgment with conservative pass")
		return &Judgment{Pass: true, Score: 0.5, AxiomScores: map[string]float64{}, Reasoning: "no generator wired", EvaluatedAt: time.Now()}, nil
	}

	prompt := buildPrompt(t, axioms)
	result, err := j.gen.Generate(ctx, prompt, genai.CapabilityValidation, j.quality, genai.Params{Temperature: 0.1, MaxTokens: 300})
	if err != nil {
		logging.Get(logging.CategoryJudge).Error("axiom judge generator call failed: %v", err)
		return &Judgment{Pass: true, Score: 0.5, AxiomScores: map[string]float64{}, Reasoning: "generator error: " + err.Error(), EvaluatedAt: time.Now()}, nil
	}

	score, reasoning := parseJudgment(result.Content)

	perAxiom := make(map[string]float64, len(axioms))
	for _, a := range axioms {
		perAxiom[a.AxiomID] = score
	}

	return &Judgment{
		Pass:        score >= j.threshold,
		Score:       score,
		AxiomScores: perAxiom,
		Reasoning:   reasoning,
		EvaluatedAt: time.Now(),
	}, nil
}

func buildPrompt(t *store.Triplet, axioms []*axiom.Axiom) string {
	var b strings.Builder
	b.WriteString("You are checking a candidate fact against a set of guiding axioms.\n\n")
	b.WriteString("Axioms:\n")
	for _, a := range axioms {
		b.WriteString(fmt.Sprintf("- %s: %s\n", a.AxiomID, a.Statement))
	}
	b.WriteString(fmt.Sprintf("\nFact:\nSubject: %s\nPredicate: %s\nObject: %s\nConfidence: %.2f\n\n",
		t.Subject, t.Predicate, t.Object, t.Confidence))
	b.WriteString("Answer in exactly this three-line format:\n")
	b.WriteString("ALIGNMENT: YES|NO\nSCORE: <float between 0 and 1>\nREASONING: <short text>\n")
	return b.String()
}

var (
	alignmentRe = regexp.MustCompile(`(?i)ALIGNMENT:\s*(YES|NO)`)
	scoreRe     = regexp.MustCompile(`(?i)SCORE:\s*([0-9]*\.?[0-9]+)`)
	reasoningRe = regexp.MustCompile(`(?i)REASONING:\s*(.+)`)
)

// parseJudgment extracts the three-line ALIGNMENT/SCORE/REASONING response.
// If SCORE can't be parsed, the score is inferred from ALIGNMENT (0.8 for
// YES, 0.3 for NO); the result is always clamped to [0,1].
func parseJudgment(raw string) (float64, string) {
	alignment := ""
	if m := alignmentRe.FindStringSubmatch(raw); m != nil {
		alignment = strings.ToUpper(m[1])
	}

	var score float64
	var haveScore bool
	if m := scoreRe.FindStringSubmatch(raw); m != nil {
		if f, err := strconv.ParseFloat(m[1], 64); err == nil {
			score = f
			haveScore = true
		}
	}
	if !haveScore {
		if alignment == "YES" {
			score = 0.8
		} else {
			score = 0.3
		}
	}
	if score < 0 {
		score = 0
	}
	if score > 1 {
		score = 1
	}

	reasoning := ""
	if m := reasoningRe.FindStringSubmatch(raw); m != nil {
		reasoning = strings.TrimSpace(m[1])
	}

	return score, reasoning
}
