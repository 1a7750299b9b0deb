package breaker

import (
	"testing"

	"github.com/shaunpalmer/code-heals-itself-sub000/internal/errclass"
)

func TestGraceWindowAlwaysAllows(t *testing.T) {
	b := New(DefaultPolicy())
	b.RecordAttempt(errclass.Syntax, false, 50, 0, 0.2, 100)
	allowed, _ := b.CanAttempt(errclass.Syntax)
	if !allowed {
		t.Fatalf("expected attempt 1 to be allowed during grace window")
	}
	b.RecordAttempt(errclass.Syntax, false, 60, 0, 0.1, 100)
	allowed, _ = b.CanAttempt(errclass.Syntax)
	if !allowed {
		t.Fatalf("expected attempt 2 to be allowed during grace window")
	}
}

func TestScenarioAConvergence(t *testing.T) {
	b := New(DefaultPolicy())
	detected := []int{34, 12, 3}
	conf := []float64{0.55, 0.70, 0.91}
	success := []bool{false, false, true} // attempt 3 is the declared promotion point
	var last Summary
	for i := range detected {
		resolved := 0
		if i > 0 {
			resolved = detected[i-1] - detected[i]
			if resolved < 0 {
				resolved = 0
			}
		}
		b.RecordAttempt(errclass.Logic, success[i], detected[i], resolved, conf[i], 100)
		last = b.GetStateSummary(errclass.Logic, success[i], conf[i], 0.6)
	}
	if last.RecommendedAction != RecPromote {
		t.Fatalf("expected promote on converging final attempt, got %v", last.RecommendedAction)
	}
	if !last.IsImproving {
		t.Fatalf("expected final attempt to show improvement")
	}
}

func TestScenarioBRegressionRollback(t *testing.T) {
	// Extends spec.md Scenario B (errors_detected=[8,12,15], worsening trend)
	// with further post-grace worsening attempts until the error density
	// breaches the logic budget with no improvement signal, which is the
	// only path to a rollback recommendation under the budget-breach rule
	// (spec §4.2 "rollback if state is *_OPEN after budget breach").
	b := New(DefaultPolicy())
	detected := []int{8, 12, 15, 25, 30}
	conf := []float64{0.60, 0.45, 0.30, 0.25, 0.20}
	for i := range detected {
		b.RecordAttempt(errclass.Logic, false, detected[i], 0, conf[i], 100)
	}
	summary := b.GetStateSummary(errclass.Logic, false, conf[len(conf)-1], 0.6)
	if summary.RecommendedAction != RecRollback {
		t.Fatalf("expected rollback after budget breach with worsening trend, got %v (state=%s)", summary.RecommendedAction, summary.State)
	}
}

func TestScenarioCPlateauPromotesNotRollback(t *testing.T) {
	b := New(DefaultPolicy())
	detected := []int{5, 5, 0}
	conf := []float64{0.7, 0.8, 0.95}
	for i := range detected {
		success := detected[i] == 0
		b.RecordAttempt(errclass.Logic, success, detected[i], 0, conf[i], 100)
	}
	summary := b.GetStateSummary(errclass.Logic, true, 0.95, 0.6)
	if summary.RecommendedAction == RecRollback {
		t.Fatalf("plateau at quality=1.0 must never recommend rollback, got %v", summary.RecommendedAction)
	}
}

func TestFailureStreakCutoff(t *testing.T) {
	b := New(DefaultPolicy())
	for i := 0; i < 6; i++ {
		b.RecordAttempt(errclass.Logic, false, 10, 0, 0.5, 100)
	}
	summary := b.GetStateSummary(errclass.Logic, false, 0.5, 0.6)
	if summary.ShouldContinue {
		t.Fatalf("expected should_continue=false after 5 consecutive non-improving attempts")
	}
}

func TestOscillatingConfidenceRecommendsStrategyChange(t *testing.T) {
	b := New(DefaultPolicy())
	conf := []float64{0.6, 0.4, 0.65, 0.35}
	for _, c := range conf {
		b.RecordAttempt(errclass.Logic, false, 10, 0, c, 100)
	}
	summary := b.GetStateSummary(errclass.Logic, false, 0.35, 0.6)
	if summary.RecommendedAction == RecPromote || summary.RecommendedAction == RecRollback {
		t.Fatalf("expected try_different_strategy or continue for oscillation, got %v", summary.RecommendedAction)
	}
}

func TestCanAttemptDeniedAfterBudgetBreach(t *testing.T) {
	b := New(DefaultPolicy())
	// Three attempts beyond grace, high error density, no improvement.
	for i := 0; i < 5; i++ {
		b.RecordAttempt(errclass.Syntax, false, 40, 0, 0.3, 100)
	}
	allowed, reason := b.CanAttempt(errclass.Syntax)
	if allowed {
		t.Fatalf("expected syntax budget breach to deny further attempts")
	}
	if reason == "" {
		t.Fatalf("expected a human-readable denial reason")
	}
}
