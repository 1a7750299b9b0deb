// Package breaker implements the trend-aware dual circuit breaker (spec
// §4.2): per-class attempt budgets, error-count gradients, and confidence
// trend detection drive a continue/promote/rollback/try-different-strategy
// recommendation instead of a binary failure count.
//
// Grounded on the teacher's phase/state-machine style in
// internal/core/api_scheduler.go (closed-const states with a String()
// method) generalized to the two-class, trend-aware policy this spec
// requires. The ring buffer itself has no pack analog; it is sized and
// bounded exactly as spec.md §9 "Breaker window" prescribes.
package breaker

import (
	"fmt"

	"github.com/shaunpalmer/code-heals-itself-sub000/internal/errclass"
)

const windowSize = 10

// Entry is one rolling-window observation.
type Entry struct {
	ErrorsDetected int
	ErrorsResolved int
	Confidence     float64
}

// ClassState tracks the per-class rolling window and cumulative counters.
type ClassState struct {
	Attempts                int
	ConsecutiveFailures     int
	Window                  []Entry // bounded to windowSize, oldest first
	TotalResolvedCumulative int
	OpenedAt                int // attempt number at which the class opened, 0 if never
	Current                 errclass.State
}

func newClassState() *ClassState {
	return &ClassState{Current: errclass.StateClosed}
}

func (s *ClassState) push(e Entry) {
	s.Window = append(s.Window, e)
	if len(s.Window) > windowSize {
		s.Window = s.Window[len(s.Window)-windowSize:]
	}
}

// Policy carries the budget-related configuration knobs from spec §6.
type Policy struct {
	GraceAttempts       int
	FailureStreakCutoff int
	SyntaxErrorBudget   float64
	LogicErrorBudget    float64
	SyntaxConfFloor     float64
	LogicConfFloor      float64
}

// DefaultPolicy mirrors the "mid_tier" preset defaults named in spec §6.
func DefaultPolicy() Policy {
	return Policy{
		GraceAttempts:       2,
		FailureStreakCutoff: 5,
		SyntaxErrorBudget:   0.10,
		LogicErrorBudget:    0.20,
		SyntaxConfFloor:     0.6,
		LogicConfFloor:      0.6,
	}
}

// Breaker holds independent state per budget group (SYNTAX vs everything
// else — see errclass.Class.BudgetGroup).
type Breaker struct {
	policy  Policy
	classes map[errclass.Class]*ClassState
}

func New(policy Policy) *Breaker {
	return &Breaker{
		policy: policy,
		classes: map[errclass.Class]*ClassState{
			errclass.Syntax: newClassState(),
			errclass.Logic:  newClassState(),
		},
	}
}

func (b *Breaker) stateFor(class errclass.Class) *ClassState {
	return b.classes[class.BudgetGroup()]
}

// CanAttempt reports whether the given class is allowed to attempt again.
func (b *Breaker) CanAttempt(class errclass.Class) (allowed bool, reason string) {
	s := b.stateFor(class)
	switch s.Current {
	case errclass.StateSyntaxOpen:
		return false, "syntax error budget exhausted without improvement"
	case errclass.StateLogicOpen:
		return false, "logic error budget exhausted without improvement"
	case errclass.StatePermanentlyOpen:
		return false, "breaker permanently open; unrecoverable"
	default:
		return true, "breaker closed"
	}
}

// RecordAttempt appends one observation to the class's rolling window,
// updates cumulative counters, and re-evaluates budget/streak state.
func (b *Breaker) RecordAttempt(class errclass.Class, success bool, errorsDetected, errorsResolved int, confidence float64, linesOfCode int) {
	group := class.BudgetGroup()
	s := b.stateFor(class)
	s.Attempts++
	s.TotalResolvedCumulative += errorsResolved

	improving := false
	if len(s.Window) > 0 {
		prev := s.Window[len(s.Window)-1]
		improving = errorsDetected < prev.ErrorsDetected
	}
	if improving || success {
		s.ConsecutiveFailures = 0
	} else {
		s.ConsecutiveFailures++
	}

	s.push(Entry{ErrorsDetected: errorsDetected, ErrorsResolved: errorsResolved, Confidence: confidence})

	b.evaluateBudget(group, s, linesOfCode)
}

func (b *Breaker) evaluateBudget(group errclass.Class, s *ClassState, linesOfCode int) {
	if s.Attempts <= b.policy.GraceAttempts {
		return // grace window: never transitions to *_OPEN
	}

	budget := b.policy.LogicErrorBudget
	if group == errclass.Syntax {
		budget = b.policy.SyntaxErrorBudget
	}

	density := b.density(s, linesOfCode)
	improving := b.isImproving(s)

	if density > budget && !improving {
		if group == errclass.Syntax {
			s.Current = errclass.StateSyntaxOpen
		} else {
			s.Current = errclass.StateLogicOpen
		}
		if s.OpenedAt == 0 {
			s.OpenedAt = s.Attempts
		}
	}
}

func (b *Breaker) density(s *ClassState, linesOfCode int) float64 {
	if len(s.Window) == 0 {
		return 0
	}
	last := s.Window[len(s.Window)-1]
	denom := linesOfCode
	if denom < 1 {
		denom = 1
	}
	return float64(last.ErrorsDetected) / float64(denom)
}

// isImproving requires the most recent error count to be strictly less
// than the prior entry (spec §4.2 "Improvement detection"). Resolved-count
// alone never qualifies.
func (b *Breaker) isImproving(s *ClassState) bool {
	if len(s.Window) < 2 {
		return false
	}
	last := s.Window[len(s.Window)-1]
	prev := s.Window[len(s.Window)-2]
	return last.ErrorsDetected < prev.ErrorsDetected
}

// shouldContinue implements the "Net-positive progress" rule: strictly
// decreasing error counts over >=2 recent entries, OR a positive confidence
// slope with non-increasing error count.
func (b *Breaker) shouldContinue(s *ClassState) bool {
	if s.ConsecutiveFailures >= b.policy.FailureStreakCutoff {
		return false
	}
	if len(s.Window) < 2 {
		return true // nothing to contradict continuation yet
	}

	decreasing := true
	for i := 1; i < len(s.Window); i++ {
		if s.Window[i].ErrorsDetected >= s.Window[i-1].ErrorsDetected {
			decreasing = false
			break
		}
	}
	if decreasing {
		return true
	}

	slope := confidenceSlope(s.Window)
	nonIncreasingErrors := s.Window[len(s.Window)-1].ErrorsDetected <= s.Window[len(s.Window)-2].ErrorsDetected
	return slope > 0 && nonIncreasingErrors
}

// confidenceSlope is an ordinary-least-squares slope of confidence against
// attempt index within the window.
func confidenceSlope(window []Entry) float64 {
	n := float64(len(window))
	if n < 2 {
		return 0
	}
	var sumX, sumY, sumXY, sumXX float64
	for i, e := range window {
		x := float64(i)
		sumX += x
		sumY += e.Confidence
		sumXY += x * e.Confidence
		sumXX += x * x
	}
	denom := n*sumXX - sumX*sumX
	if denom == 0 {
		return 0
	}
	return (n*sumXY - sumX*sumY) / denom
}

// oscillating detects confidence bouncing +/-0.2 across >=3 attempts
// without error-count progress (spec §4.2 try_different_strategy trigger).
func oscillating(window []Entry) bool {
	if len(window) < 3 {
		return false
	}
	recent := window
	if len(recent) > 4 {
		recent = recent[len(recent)-4:]
	}
	bounced := false
	for i := 1; i < len(recent); i++ {
		if diff := recent[i].Confidence - recent[i-1].Confidence; diff >= 0.2 || diff <= -0.2 {
			bounced = true
			break
		}
	}
	if !bounced {
		return false
	}
	firstErr := recent[0].ErrorsDetected
	for _, e := range recent[1:] {
		if e.ErrorsDetected != firstErr {
			return false // error count did move, this is not a no-progress oscillation
		}
	}
	return true
}

// Recommendation is the closed set the breaker can recommend.
type Recommendation string

const (
	RecPromote             Recommendation = "promote"
	RecRollback            Recommendation = "rollback"
	RecTryDifferentStrategy Recommendation = "try_different_strategy"
	RecContinue            Recommendation = "continue"
)

// Summary is returned by GetStateSummary (spec §4.2 get_state_summary).
type Summary struct {
	State                string
	FailureCount         int
	IsImproving          bool
	ConfidenceImproving  bool
	ShouldContinue       bool
	RecommendedAction    Recommendation
	ImprovementVelocity  float64
	Paused               bool
	PauseRemainingMs     int64
}

// GetStateSummary evaluates the class's current trend and budget state and
// issues a recommendation per spec §4.2's decision table.
func (b *Breaker) GetStateSummary(class errclass.Class, success bool, overallConfidence, confFloor float64) Summary {
	s := b.stateFor(class)

	improving := b.isImproving(s)
	confImproving := confidenceSlope(s.Window) > 0
	continueOK := b.shouldContinue(s)

	// Plateau at quality=1.0: never rollback when the window's error count
	// has already bottomed out at zero (spec §4.2 "Plateau at quality=1.0").
	plateaued := len(s.Window) > 0 && s.Window[len(s.Window)-1].ErrorsDetected == 0

	var rec Recommendation
	switch {
	case success && overallConfidence >= confFloor && s.Current == errclass.StateClosed:
		rec = RecPromote
	case plateaued:
		if success {
			rec = RecPromote
		} else {
			rec = RecContinue
		}
	case s.Current != errclass.StateClosed:
		rec = RecRollback
	case oscillating(s.Window):
		rec = RecTryDifferentStrategy
	default:
		rec = RecContinue
	}

	return Summary{
		State:               s.Current.Normalize(),
		FailureCount:        s.ConsecutiveFailures,
		IsImproving:         improving,
		ConfidenceImproving: confImproving,
		ShouldContinue:      continueOK,
		RecommendedAction:   rec,
		ImprovementVelocity: confidenceSlope(s.Window),
	}
}

// ErrInvalidClass is returned by callers (orchestrator) that validate class
// membership before touching the breaker.
var ErrInvalidClass = fmt.Errorf("breaker: invalid error class")
