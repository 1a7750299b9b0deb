package scorer

import "testing"

func TestScoreEmptyLogitsReturnsZero(t *testing.T) {
	got := Score(Input{Logits: nil, Class: "SYNTAX", History: DefaultHistory()})
	if got != (Components{}) {
		t.Fatalf("expected zero components for empty logits, got %+v", got)
	}
}

func TestScoreBounded(t *testing.T) {
	in := Input{
		Logits:  []float64{2.1, 0.4, -1.0, 3.3},
		Class:   "LOGIC",
		History: DefaultHistory(),
		RiskScore: 0.7,
	}
	got := Score(in)
	for name, v := range map[string]float64{
		"syntax": got.Syntax, "logic": got.Logic, "risk": got.Risk, "overall": got.Overall,
	} {
		if v < 0 || v > 1 {
			t.Fatalf("component %s out of [0,1]: %v", name, v)
		}
	}
}

func TestScoreDeterministic(t *testing.T) {
	in := Input{Logits: []float64{1, 2, 3}, Class: "SYNTAX", History: DefaultHistory()}
	a := Score(in)
	b := Score(in)
	if a != b {
		t.Fatalf("expected identical outputs for identical inputs, got %+v vs %+v", a, b)
	}
}

func TestComplexityPenaltyMonotone(t *testing.T) {
	low := 0.1
	high := 0.9
	pLow := complexityPenalty(&low, 1.0)
	pHigh := complexityPenalty(&high, 1.0)
	if !(pHigh <= pLow) {
		t.Fatalf("expected penalty to be non-increasing in taxonomy difficulty: low=%v high=%v", pLow, pHigh)
	}
	if pHigh < 0.1 || pLow > 1.0 {
		t.Fatalf("penalty escaped [0.1,1.0]: low=%v high=%v", pLow, pHigh)
	}
}

func TestComplexityPenaltyDefaultsToOne(t *testing.T) {
	if p := complexityPenalty(nil, 0); p != 1.0 {
		t.Fatalf("expected default penalty 1.0, got %v", p)
	}
}
