// Package conflict implements the conflict resolver (C6): detecting
// contradictory triplets sharing a subject, and resolving them by a
// caller-chosen strategy.
package conflict

import (
	"regexp"
	"strconv"
	"strings"

	"sovereign-research-orchestrator/internal/store"
)

// negationPairs is the fixed positive/negative predicate polarity table.
var negationPairs = [][2]string{
	{"is", "is_not"},
	{"has", "lacks"},
	{"supports", "opposes"},
	{"causes", "prevents"},
	{"increases", "decreases"},
	{"enables", "disables"},
	{"includes", "excludes"},
}

// oppositePairs is the fixed semantic-opposite object table.
var oppositePairs = [][2]string{
	{"high", "low"},
	{"yes", "no"},
	{"true", "false"},
	{"positive", "negative"},
	{"increasing", "decreasing"},
	{"stable", "unstable"},
	{"safe", "dangerous"},
}

// Kind identifies a conflict's detection rule.
type Kind string

const (
	KindNegation         Kind = "negation"
	KindSemanticOpposite Kind = "semantic_opposite"
	KindValueConflict    Kind = "value_conflict"
)

// Conflict is a detected contradiction between two triplets.
type Conflict struct {
	A, B     *store.Triplet
	Kind     Kind
	Severity float64
}

func norm(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func subjectsMatch(a, b string) bool {
	na, nb := norm(a), norm(b)
	if na == nb {
		return true
	}
	return strings.Contains(na, nb) || strings.Contains(nb, na)
}

func findPair(table [][2]string, a, b string) bool {
	na, nb := norm(a), norm(b)
	for _, p := range table {
		if (p[0] == na && p[1] == nb) || (p[1] == na && p[0] == nb) {
			return true
		}
	}
	return false
}

var numberRe = regexp.MustCompile(`-?\d+(\.\d+)?`)

func firstNumber(s string) (float64, bool) {
	m := numberRe.FindString(s)
	if m == "" {
		return 0, false
	}
	f, err := strconv.ParseFloat(m, 64)
	if err != nil {
		return 0, false
	}
	return f, true
}

func valueConflict(a, b string) bool {
	na, ok1 := firstNumber(a)
	nb, ok2 := firstNumber(b)
	if !ok1 || !ok2 {
		return false
	}
	if na == 0 && nb == 0 {
		return false
	}
	denom := (na + nb) / 2
	if denom < 0 {
		denom = -denom
	}
	if denom == 0 {
		return false
	}
	diff := na - nb
	if diff < 0 {
		diff = -diff
	}
	return diff/denom > 0.2
}

// Detect checks a single pair for a conflict per the fixed detection tables,
// returning the highest-severity rule that matches, or nil if none do.
func Detect(a, b *store.Triplet) *Conflict {
	if !subjectsMatch(a.Subject, b.Subject) {
		return nil
	}

	if findPair(negationPairs, a.Predicate, b.Predicate) {
		return &Conflict{A: a, B: b, Kind: KindNegation, Severity: 1.0}
	}

	if norm(a.Predicate) == norm(b.Predicate) {
		if findPair(oppositePairs, a.Object, b.Object) {
			return &Conflict{A: a, B: b, Kind: KindSemanticOpposite, Severity: 0.9}
		}
		if valueConflict(a.Object, b.Object) {
			return &Conflict{A: a, B: b, Kind: KindValueConflict, Severity: 0.75}
		}
	}

	return nil
}
