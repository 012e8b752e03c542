package conflict

import (
	"testing"

	"sovereign-research-orchestrator/internal/store"
)

func triplet(subject, predicate, object string) *store.Triplet {
	return &store.Triplet{Subject: subject, Predicate: predicate, Object: object}
}

func TestDetectNegation(t *testing.T) {
	a := triplet("water", "supports", "life")
	b := triplet("water", "opposes", "life")
	c := Detect(a, b)
	if c == nil || c.Kind != KindNegation || c.Severity != 1.0 {
		t.Fatalf("expected negation conflict, got %+v", c)
	}
}

func TestDetectSemanticOpposite(t *testing.T) {
	a := triplet("demand", "is", "high")
	b := triplet("demand", "is", "low")
	c := Detect(a, b)
	if c == nil || c.Kind != KindSemanticOpposite || c.Severity != 0.9 {
		t.Fatalf("expected semantic opposite conflict, got %+v", c)
	}
}

func TestDetectValueConflict(t *testing.T) {
	a := triplet("gdp", "grew by", "10 percent")
	b := triplet("gdp", "grew by", "50 percent")
	c := Detect(a, b)
	if c == nil || c.Kind != KindValueConflict || c.Severity != 0.75 {
		t.Fatalf("expected value conflict, got %+v", c)
	}
}

func TestDetectValueConflictIgnoresSmallDifference(t *testing.T) {
	a := triplet("gdp", "grew by", "10 percent")
	b := triplet("gdp", "grew by", "11 percent")
	c := Detect(a, b)
	if c != nil {
		t.Fatalf("expected no conflict for small relative difference, got %+v", c)
	}
}

func TestDetectValueConflictAtThresholdBoundary(t *testing.T) {
	// Relative difference is computed against the average of the two
	// values, not the larger one: (125-100)/((125+100)/2) = 25/112.5 ≈
	// 0.222, just over the 20% line.
	a := triplet("revenue", "is", "100 million")
	b := triplet("revenue", "is", "125 million")
	c := Detect(a, b)
	if c == nil || c.Kind != KindValueConflict {
		t.Fatalf("expected value conflict at the 20%% boundary, got %+v", c)
	}
}

func TestDetectValueConflictJustUnderThresholdBoundary(t *testing.T) {
	// 22/111 ≈ 0.198, just under 20%, so this must not conflict.
	a := triplet("revenue", "is", "100 million")
	b := triplet("revenue", "is", "122 million")
	c := Detect(a, b)
	if c != nil {
		t.Fatalf("expected no conflict just under the 20%% boundary, got %+v", c)
	}
}

func TestDetectRequiresMatchingSubject(t *testing.T) {
	a := triplet("water", "supports", "life")
	b := triplet("fire", "opposes", "life")
	if Detect(a, b) != nil {
		t.Fatal("expected no conflict when subjects differ")
	}
}

func TestDetectToleratesSubjectContainment(t *testing.T) {
	a := triplet("the solar array", "is", "high")
	b := triplet("solar array", "is", "low")
	if Detect(a, b) == nil {
		t.Fatal("expected conflict detected via subject containment")
	}
}

func TestDetectNoConflictForUnrelatedPredicates(t *testing.T) {
	a := triplet("water", "boils at", "100c")
	b := triplet("water", "freezes at", "0c")
	if Detect(a, b) != nil {
		t.Fatal("expected no conflict for unrelated predicates")
	}
}
