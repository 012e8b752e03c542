// Package verify implements the cross-branch verifier (C5): attaching new
// sources to existing triplets and scoring similarity between triplets so
// independently-derived facts can corroborate one another.
package verify

import "strings"

// synonymGroups is the fixed rule-based predicate synonym table.
var synonymGroups = [][]string{
	{"has", "contains", "includes", "possesses"},
	{"reduces", "decreases", "lowers", "cuts"},
	{"increases", "raises", "boosts", "improves"},
	{"causes", "leads to", "results in", "produces"},
	{"prevents", "blocks", "inhibits", "stops"},
	{"requires", "needs", "depends on", "demands"},
	{"supports", "enables", "facilitates", "aids"},
}

func sameSynonymGroup(a, b string) bool {
	a, b = strings.ToLower(strings.TrimSpace(a)), strings.ToLower(strings.TrimSpace(b))
	for _, group := range synonymGroups {
		inA, inB := false, false
		for _, g := range group {
			if g == a {
				inA = true
			}
			if g == b {
				inB = true
			}
		}
		if inA && inB {
			return true
		}
	}
	return false
}

func tokenize(s string) map[string]bool {
	fields := strings.Fields(strings.ToLower(s))
	set := make(map[string]bool, len(fields))
	for _, f := range fields {
		set[f] = true
	}
	return set
}

// jaccard computes token-set Jaccard similarity between two strings.
func jaccard(a, b string) float64 {
	ta, tb := tokenize(a), tokenize(b)
	if len(ta) == 0 && len(tb) == 0 {
		return 0
	}
	intersection := 0
	for t := range ta {
		if tb[t] {
			intersection++
		}
	}
	union := len(ta) + len(tb) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

func fuzzyMatch(a, b string) bool {
	al, bl := strings.ToLower(strings.TrimSpace(a)), strings.ToLower(strings.TrimSpace(b))
	if strings.Contains(al, bl) || strings.Contains(bl, al) {
		return true
	}
	return jaccard(al, bl) > 0.7
}

func equalFold(a, b string) bool {
	return strings.EqualFold(strings.TrimSpace(a), strings.TrimSpace(b))
}

// Similarity scores two (subject, predicate, object) triples per spec §4.3,
// summing up to three weighted components and clamping the total to 1.
func Similarity(subjA, predA, objA, subjB, predB, objB string) float64 {
	var score float64

	switch {
	case equalFold(subjA, subjB):
		score += 0.4
	case fuzzyMatch(subjA, subjB):
		score += 0.2
	}

	switch {
	case equalFold(predA, predB):
		score += 0.3
	case sameSynonymGroup(predA, predB):
		score += 0.15
	}

	switch {
	case equalFold(objA, objB):
		score += 0.3
	case fuzzyMatch(objA, objB):
		score += 0.15
	}

	if score > 1 {
		score = 1
	}
	return score
}
