// Package axiom implements the axiom library (C2): a set of hand-authored
// rules expressed as simple attribute comparisons, applied either as scorers
// (weighted contributions) or filters (pass/fail gates) against candidate
// facts and tree nodes. Axiom files are JSON on disk and hot-reload when
// edited between or during sessions.
package axiom

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
)

// Application determines how an axiom's weight_modifier is used.
type Application string

const (
	ApplicationScorer Application = "scorer"
	ApplicationFilter Application = "filter"
)

// Axiom is one rule: a named condition table with per-condition weights.
type Axiom struct {
	AxiomID        string             `json:"axiom_id"`
	Category       string             `json:"category"`
	Priority       int                `json:"priority"`
	Application    Application        `json:"application"`
	Statement      string             `json:"statement"`
	WeightModifier map[string]float64 `json:"weight_modifier"`
	Enabled        bool               `json:"enabled"`
}

// Subject is anything an axiom can be evaluated against: a flat attribute
// map. Facts and tree nodes are projected into this shape by their owning
// packages before evaluation.
type Subject map[string]interface{}

// condition is a parsed `if_<attribute> <op> <value>` expression.
type condition struct {
	attribute string
	op        string
	value     float64
	isPercent bool
	raw       string
}

// parseCondition parses a condition key like "if_confidence >= 0.7" or
// "if_source_count > 2". Unknown shapes return an error; callers treat
// invalid expressions as never-matching rather than propagating the error.
func parseCondition(expr string) (*condition, error) {
	expr = strings.TrimSpace(expr)
	if !strings.HasPrefix(expr, "if_") {
		return nil, fmt.Errorf("condition must start with if_: %q", expr)
	}
	expr = strings.TrimPrefix(expr, "if_")

	var op string
	for _, candidate := range []string{">=", "<=", "==", "!=", ">", "<"} {
		if idx := strings.Index(expr, candidate); idx >= 0 {
			op = candidate
			attribute := strings.TrimSpace(expr[:idx])
			valueStr := strings.TrimSpace(expr[idx+len(candidate):])
			isPercent := strings.HasSuffix(valueStr, "%")
			valueStr = strings.TrimSuffix(valueStr, "%")
			value, err := strconv.ParseFloat(valueStr, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid condition value %q: %w", valueStr, err)
			}
			if isPercent {
				value /= 100.0
			}
			return &condition{attribute: attribute, op: op, value: value, isPercent: isPercent, raw: expr}, nil
		}
	}
	return nil, fmt.Errorf("no comparison operator found in condition: %q", expr)
}

// evaluate checks a condition against a subject's attribute. Unknown
// attributes evaluate to false rather than erroring.
func (c *condition) evaluate(subj Subject) bool {
	raw, ok := subj[c.attribute]
	if !ok {
		return false
	}
	var actual float64
	switch v := raw.(type) {
	case float64:
		actual = v
	case int:
		actual = float64(v)
	case bool:
		if v {
			actual = 1
		}
	default:
		return false
	}

	switch c.op {
	case ">=":
		return actual >= c.value
	case "<=":
		return actual <= c.value
	case ">":
		return actual > c.value
	case "<":
		return actual < c.value
	case "==":
		return actual == c.value
	case "!=":
		return actual != c.value
	default:
		return false
	}
}

// Score evaluates every condition in the axiom's weight_modifier table
// against subject and sums the weights of matching conditions. Invalid
// expressions are skipped silently.
func (a *Axiom) Score(subj Subject) float64 {
	if !a.Enabled {
		return 0
	}
	var total float64
	for expr, weight := range a.WeightModifier {
		cond, err := parseCondition(expr)
		if err != nil {
			continue
		}
		if cond.evaluate(subj) {
			total += weight
		}
	}
	return total
}

// Passes reports whether a filter-application axiom accepts subj: true
// unless at least one matching condition carries a negative weight (the
// convention for "reject" conditions in a filter axiom).
func (a *Axiom) Passes(subj Subject) bool {
	if !a.Enabled || a.Application != ApplicationFilter {
		return true
	}
	for expr, weight := range a.WeightModifier {
		cond, err := parseCondition(expr)
		if err != nil {
			continue
		}
		if cond.evaluate(subj) && weight < 0 {
			return false
		}
	}
	return true
}

// UnmarshalAxiomFile parses a single JSON axiom object.
func UnmarshalAxiomFile(data []byte) (*Axiom, error) {
	var a Axiom
	if err := json.Unmarshal(data, &a); err != nil {
		return nil, fmt.Errorf("invalid axiom file: %w", err)
	}
	return &a, nil
}

// UnmarshalAxiomArray parses a JSON array of axiom objects (one file holding
// multiple axioms).
func UnmarshalAxiomArray(data []byte) ([]*Axiom, error) {
	var axioms []*Axiom
	if err := json.Unmarshal(data, &axioms); err != nil {
		return nil, fmt.Errorf("invalid axiom array: %w", err)
	}
	return axioms, nil
}
