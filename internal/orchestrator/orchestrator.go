// Package orchestrator fuses every leaf component into the two entry
// points spec.md §4.9 names: process_error (one attempt through every
// gate, observer, and the sandbox/re-banker round trip) and
// attempt_with_backoff (the outer retry driver with jittered backoff and
// LLM consult).
//
// Grounded on the teacher's internal/verification.VerifyWithRetry loop
// shape (numbered-step attempt loop, store-on-failure, reselect-and-continue
// between attempts) and internal/core/self_healing.go's
// HandleValidationFailure strategy switch, fused per spec.md §4.9.
package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/shaunpalmer/code-heals-itself-sub000/internal/breaker"
	"github.com/shaunpalmer/code-heals-itself-sub000/internal/cascade"
	"github.com/shaunpalmer/code-heals-itself-sub000/internal/chatadapter"
	"github.com/shaunpalmer/code-heals-itself-sub000/internal/config"
	"github.com/shaunpalmer/code-heals-itself-sub000/internal/envelope"
	"github.com/shaunpalmer/code-heals-itself-sub000/internal/errclass"
	"github.com/shaunpalmer/code-heals-itself-sub000/internal/llmadapter"
	"github.com/shaunpalmer/code-heals-itself-sub000/internal/logging"
	"github.com/shaunpalmer/code-heals-itself-sub000/internal/memory"
	"github.com/shaunpalmer/code-heals-itself-sub000/internal/observer"
	"github.com/shaunpalmer/code-heals-itself-sub000/internal/ratelimit"
	"github.com/shaunpalmer/code-heals-itself-sub000/internal/rebanker"
	"github.com/shaunpalmer/code-heals-itself-sub000/internal/sandbox"
	"github.com/shaunpalmer/code-heals-itself-sub000/internal/scorer"
)

// Action is the closed set process_error and attempt_with_backoff may
// return (spec §7 "user-visible failure behavior").
type Action string

const (
	ActionPromote        Action = "PROMOTE"
	ActionRetry          Action = "RETRY"
	ActionRollback       Action = "ROLLBACK"
	ActionStop           Action = "STOP"
	ActionPauseAndBackoff Action = "PAUSE_AND_BACKOFF"
	ActionHumanReview    Action = "HUMAN_REVIEW"
	ActionStrategyChange Action = "STRATEGY_CHANGE"
)

// ErrSchemaValidation is raised to the caller on envelope construction
// failure; it is never a retry candidate (spec §7).
var ErrSchemaValidation = fmt.Errorf("orchestrator: schema validation failure on envelope construction")

// Input is what the caller supplies for one process_error invocation.
type Input struct {
	ErrorClass     errclass.Class
	Message        string
	CandidatePatch string
	OriginalCode   string
	Language       string
	Logits         []float64
	AttemptNumber  int
	TaxonomyDifficulty *float64
}

// Extras carries the non-envelope detail a caller may want for logging or
// debugging, without bloating the envelope itself.
type Extras struct {
	Observers       observer.DispatchResult
	SandboxResult   sandbox.Result
	BreakerSummary  breaker.Summary
	CascadeStop     bool
	CascadeReason   string
	ErrorsDetected  int
	ErrorsResolved  int
}

// Session bundles every leaf component for one in-flight repair chain. A
// Session is not safe for concurrent use by more than one goroutine at a
// time (spec §5 "single cooperative task per session"). Memory and Limiter
// may be shared across sessions and are internally synchronized.
// ScorerHistory is a plain per-session value: it is not shared between
// sessions and has no locking of its own.
type Session struct {
	ID             string
	Policy         config.Policy
	Breaker        *breaker.Breaker
	Cascade        *cascade.Handler
	Memory         *memory.Buffer
	Limiter        *ratelimit.Limiter
	Sandbox        sandbox.Executor
	Rebanker       *rebanker.Adapter
	LLMAdapter     llmadapter.Adapter
	ChatAdapter    chatadapter.Adapter
	ScorerHistory  scorer.History

	env                      *envelope.Envelope
	prevErrorsDetected       int
	consecutiveWatchdogFlags int
}

// NewSession constructs a Session wired from a policy, ready to run
// process_error for a fresh patch.
func NewSession(policy config.Policy, br *breaker.Breaker, cs *cascade.Handler, mem *memory.Buffer, lim *ratelimit.Limiter, sb sandbox.Executor, rb *rebanker.Adapter) *Session {
	return &Session{
		ID:            uuid.NewString(),
		Policy:        policy,
		Breaker:       br,
		Cascade:       cs,
		Memory:        mem,
		Limiter:       lim,
		Sandbox:       sb,
		Rebanker:      rb,
		ScorerHistory: scorer.DefaultHistory(),
	}
}

// ProcessError runs one attempt through every gate named in spec.md §4.9's
// process_error sequence and returns the decision alongside the envelope
// snapshot.
func (s *Session) ProcessError(ctx context.Context, in Input) (Action, *envelope.Envelope, Extras, error) {
	var extras Extras
	log := logging.Get(logging.CategoryOrchestrator)

	// 1. Rate-limit check.
	if s.Limiter != nil {
		if allowed, err := s.Limiter.Allow(); !allowed {
			return "", nil, extras, err
		}
	}

	// 2. Wrap patch -> envelope; freeze policy_snapshot. Only done once,
	// at the first attempt; subsequent attempts reuse the same envelope.
	if s.env == nil {
		env, err := envelope.WrapPatch(map[string]string{
			"candidate_patch": in.CandidatePatch,
			"original_code":   in.OriginalCode,
			"language":        in.Language,
		}, s.Policy.Snapshot())
		if err != nil {
			return "", nil, extras, fmt.Errorf("%w: %v", ErrSchemaValidation, err)
		}
		s.env = env
	}
	env := s.env

	floor := s.Policy.SyntaxConfFloor
	if in.ErrorClass.BudgetGroup() == errclass.Logic {
		floor = s.Policy.LogicConfFloor
	}

	// 3/4. Risk + path observers (concurrent inside Dispatch). Sandbox
	// timing is not known yet, so the watchdog leg of this first dispatch
	// is a throwaway zero-elapsed evaluation; its real evaluation happens
	// after the sandbox runs, below.
	obsCtx := observer.Context{
		AttemptNumber:    in.AttemptNumber,
		ConsecutiveFlags: s.consecutiveWatchdogFlags,
		CandidatePatch:   in.CandidatePatch,
		WorkspaceRoot:    "",
		RiskyKeywords:    riskyKeywordsByCategory(s.Policy.RiskyKeywords),
		MaxLinesChanged:  0,
		DisallowKeywords: nil,
	}
	dispatch, err := observer.Dispatch(ctx, obsCtx, observer.HangWatchdog{}, observer.RiskyEdit{}, observer.PathResolution{}, observer.Sanitizer{})
	if err != nil {
		return "", nil, extras, err
	}
	env.SetRiskFlags(toEnvelopeRiskFlags(dispatch.Risk.RiskFlags))
	env.SetMissingPaths(dispatch.Path.Missing)
	extras.Observers = dispatch

	// 5. Confidence scorer.
	components := scorer.Score(scorer.Input{
		Logits:             in.Logits,
		Class:              string(in.ErrorClass),
		History:            s.ScorerHistory,
		TaxonomyDifficulty: in.TaxonomyDifficulty,
		RiskScore:          riskScoreFromFlags(dispatch.Risk.RiskFlags),
	})
	env.MergeConfidence(envelope.ConfidenceComponents{Syntax: components.Syntax, Logic: components.Logic, Risk: components.Risk})

	// 6. Breaker summary -> breaker_state.
	summary := s.Breaker.GetStateSummary(in.ErrorClass, false, components.Overall, floor)
	env.SetBreakerState(summary.State)
	extras.BreakerSummary = summary

	// 7. Cascade depth + resource usage merge (resource usage merged after
	// sandbox runs, below; depth is known now).
	env.SetCascadeDepth(s.Cascade.Depth())

	// 8. Strategy selection (heuristic). Recorded in the timeline's
	// action_tag at finalize time; no separate state needed here beyond
	// what the breaker/cascade already track.

	// 9. Gate: risky + policy requires human.
	if s.Policy.RequireHumanOnRisky && len(dispatch.Risk.RiskFlags) > 0 {
		env.ApplyDeveloperFlag(true, "risky edit detected and policy requires human review")
		return s.finalize(ActionHumanReview, env, extras), env, extras, nil
	}

	// 10. Gate: breaker denies attempt.
	if allowed, reason := s.Breaker.CanAttempt(in.ErrorClass); !allowed {
		log.Warn("breaker denied attempt %d for class %s: %s", in.AttemptNumber, in.ErrorClass, reason)
		return s.finalize(ActionRollback, env, extras), env, extras, nil
	}

	// 11. Gate: cascade stop OR confidence below floor.
	cascadeStop, cascadeReason := s.Cascade.ShouldStop()
	extras.CascadeStop = cascadeStop
	extras.CascadeReason = cascadeReason
	if cascadeStop {
		return s.finalize(ActionStop, env, extras), env, extras, nil
	}
	if components.Overall < floor {
		return s.finalize(ActionStop, env, extras), env, extras, nil
	}

	// 12/13. Hang watchdog timer + sandbox execute.
	start := time.Now()
	caps := sandbox.ResourceCaps{MaxExecutionTime: 30 * time.Second}
	result := s.Sandbox.Execute(ctx, sandbox.Request{
		PatchID:      env.PatchID,
		Language:     in.Language,
		PatchedCode:  in.CandidatePatch,
		OriginalCode: in.OriginalCode,
		Caps:         caps,
	})
	elapsed := time.Since(start)
	extras.SandboxResult = result

	watchdogEvent, err := observer.HangWatchdog{}.Evaluate(ctx, observer.Context{
		AttemptNumber:     in.AttemptNumber,
		ConsecutiveFlags:  s.consecutiveWatchdogFlags,
		ElapsedMs:         elapsed.Milliseconds(),
		TimeoutMs:         caps.MaxExecutionTime.Milliseconds(),
		ResourceLimitHits: result.LimitsHit,
	})
	if err != nil {
		return "", nil, extras, err
	}
	if watchdogEvent.Suspicion != observer.SuspicionNone {
		s.consecutiveWatchdogFlags++
	} else {
		s.consecutiveWatchdogFlags = 0
	}
	extras.Observers.Watchdog = watchdogEvent

	env.MergeResourceUsage(envelope.ResourceUsage{
		ExecutionTimeMs: result.ResourceUsage.ExecutionTimeMs,
		MemoryUsedMb:    result.ResourceUsage.MemoryUsedMb,
		CPUUsedPercent:  result.ResourceUsage.CPUUsedPercent,
	})

	// 14. Re-banker invoke; verify any prior sealed diagnostic first.
	if err := env.VerifyRebankerRaw(); err != nil {
		env.ApplyDeveloperFlag(true, "rebanker diagnostic hash mismatch: tampering suspected")
		return s.finalize(ActionHumanReview, env, extras), env, extras, err
	}
	diag, err := s.Rebanker.Invoke(ctx, rebanker.ModeRuntime, in.Message)
	if err != nil {
		return "", nil, extras, err
	}
	if env.Metadata.RebankerRaw == nil && !rebanker.IsEmpty(diag) {
		if err := env.SetRebankerRaw(diag); err != nil {
			return "", nil, extras, err
		}
	}

	// 15. errors_detected / errors_resolved / lines_of_code.
	errorsDetected := 0
	if !rebanker.IsEmpty(diag) {
		errorsDetected = 1
	}
	errorsResolved := 0
	if s.prevErrorsDetected > errorsDetected {
		errorsResolved = s.prevErrorsDetected - errorsDetected
	}
	linesOfCode := strings.Count(in.CandidatePatch, "\n") + 1
	extras.ErrorsDetected = errorsDetected
	extras.ErrorsResolved = errorsResolved

	success := result.Success && errorsDetected == 0

	// 16. Record attempt in breaker; get recommendation.
	s.Breaker.RecordAttempt(in.ErrorClass, success, errorsDetected, errorsResolved, components.Overall, linesOfCode)
	summary = s.Breaker.GetStateSummary(in.ErrorClass, success, components.Overall, floor)
	env.SetBreakerState(summary.State)
	extras.BreakerSummary = summary

	// 17. Persist patch_result to memory.
	if s.Memory != nil {
		patchResult := map[string]interface{}{
			"kind":            "patch_result",
			"patch_id":        env.PatchID,
			"success":         success,
			"errors_resolved": errorsResolved,
			"error_delta":     errorsDetected - s.prevErrorsDetected,
			"message":         in.Message,
		}
		if data, err := json.Marshal(patchResult); err == nil {
			s.Memory.SafeAddOutcome(string(data), func(err error) {
				log.Warn("memory persistence failure: %v", err)
			})
		}
	}

	// 18. Update envelope trend_metadata.
	trend := envelope.TrendMetadata{
		ErrorsDetected:      errorsDetected,
		ErrorsResolved:      errorsResolved,
		QualityScore:        components.Overall,
		ImprovementVelocity: summary.ImprovementVelocity,
		StagnationRisk:      stagnationRisk(summary),
		ErrorTrend:          errorTrend(s.prevErrorsDetected, errorsDetected),
	}
	env.UpdateTrend(trend)

	// 19. Feed confidence outcome back to scorer history.
	s.ScorerHistory = updateHistory(s.ScorerHistory, in.ErrorClass, success)

	// 20. If failure -> add to cascade chain.
	if !success {
		s.Cascade.Add(cascade.Entry{
			Class:      string(in.ErrorClass),
			Message:    in.Message,
			Confidence: components.Overall,
			Severity:   cascadeSeverity(errorsDetected, s.prevErrorsDetected),
		})
	}
	s.prevErrorsDetected = errorsDetected

	// 21. Map (success, recommendation, watchdog) -> action.
	action := mapAction(summary.RecommendedAction, success, watchdogEvent, in.AttemptNumber)

	env.MarkSuccess(success)
	env.UpdateCounters(string(in.ErrorClass.BudgetGroup()), errorsResolved)
	env.AddTimelineEntry(envelope.TimelineEntry{
		AttemptIndex:      in.AttemptNumber,
		ErrorsDetected:    errorsDetected,
		ErrorsResolved:    errorsResolved,
		OverallConfidence: components.Overall,
		BreakerState:      env.BreakerState,
		ActionTag:         string(action),
	})
	env.AppendAttempt(envelope.Attempt{
		Success:      success,
		Note:         in.Message,
		BreakerState: env.BreakerState,
		FailureCount: summary.FailureCount,
	})

	// 22. Finalize.
	finalAction := s.finalize(action, env, extras)
	if finalAction == ActionPromote && components.Overall >= 0.95 && errorsDetected == 0 && s.Policy.EnableFinalPolish {
		log.Debug("final-polish observer would run here for patch %s", env.PatchID)
	}

	return finalAction, env, extras, nil
}

// finalize stamps timestamp + hash and returns the action unchanged; it
// exists so every return path (gates included) shares one finalization
// step (spec §4.9 step 22).
func (s *Session) finalize(action Action, env *envelope.Envelope, _ Extras) Action {
	env.SetEnvelopeTimestamp()
	if err := env.SetEnvelopeHash(); err != nil {
		logging.Get(logging.CategoryOrchestrator).Error("failed to compute envelope hash: %v", err)
	}
	return action
}

// RunOptions configures attempt_with_backoff.
type RunOptions struct {
	MinWaitMs   int64
	MaxWaitMs   int64
	MaxAttempts int
}

// Result is the outcome of one full attempt_with_backoff run.
type Result struct {
	FinalAction Action
	Envelope    *envelope.Envelope
	Attempts    int
}

var terminalActions = map[Action]bool{
	ActionPromote:     true,
	ActionRollback:    true,
	ActionStop:        true,
	ActionHumanReview: true,
}

// AttemptWithBackoff drives process_error across successive attempts,
// consulting the LLM adapter (if configured) between rounds, applying
// jittered backoff, and sanitizing or falling back to a minimal tweak
// before the next round (spec §4.9 steps 1-5).
func (s *Session) AttemptWithBackoff(ctx context.Context, in Input, opts RunOptions) (Result, error) {
	if opts.MaxAttempts <= 0 {
		opts.MaxAttempts = 10
	}
	if opts.MinWaitMs <= 0 {
		opts.MinWaitMs = 250
	}
	if opts.MaxWaitMs <= 0 {
		opts.MaxWaitMs = 8000
	}
	rng := rand.New(rand.NewSource(time.Now().UnixNano() ^ int64(len(s.ID))))

	log := logging.Get(logging.CategoryOrchestrator)
	attempt := in
	lastHangFlags := 0

	for attempt.AttemptNumber = 1; attempt.AttemptNumber <= opts.MaxAttempts; attempt.AttemptNumber++ {
		select {
		case <-ctx.Done():
			return Result{FinalAction: ActionStop, Envelope: s.env, Attempts: attempt.AttemptNumber - 1}, ctx.Err()
		default:
		}

		action, env, extras, err := s.ProcessError(ctx, attempt)
		if err != nil {
			log.Warn("process_error failed on attempt %d: %v", attempt.AttemptNumber, err)
			if action == "" {
				return Result{Envelope: env, Attempts: attempt.AttemptNumber}, err
			}
		}

		if terminalActions[action] {
			return Result{FinalAction: action, Envelope: env, Attempts: attempt.AttemptNumber}, err
		}

		// Trend-aware watchdog override: repeated hang flags with no
		// improvement forces a rollback even if process_error itself kept
		// recommending RETRY (spec §4.9 step 4).
		if extras.Observers.Watchdog.Suspicion != observer.SuspicionNone {
			lastHangFlags++
		} else {
			lastHangFlags = 0
		}
		if lastHangFlags >= 2 && !extras.BreakerSummary.IsImproving {
			return Result{FinalAction: ActionRollback, Envelope: env, Attempts: attempt.AttemptNumber}, nil
		}

		if action == ActionStrategyChange {
			attempt.CandidatePatch = llmadapter.MinimalTweak(attempt.CandidatePatch, attempt.Message)
			continue
		}

		wait := computeWait(extras.BreakerSummary, opts.MinWaitMs, opts.MaxWaitMs, oscillatingFromSummary(extras.BreakerSummary), rng)
		select {
		case <-ctx.Done():
			return Result{FinalAction: ActionStop, Envelope: env, Attempts: attempt.AttemptNumber}, ctx.Err()
		case <-time.After(wait):
		}

		nextPatch, err := s.consultLLM(ctx, attempt, env, extras)
		if err != nil {
			log.Warn("llm adapter failed on attempt %d, falling back to minimal tweak: %v", attempt.AttemptNumber, err)
			nextPatch = llmadapter.MinimalTweak(attempt.CandidatePatch, attempt.Message)
		}
		attempt.CandidatePatch = nextPatch
	}

	return Result{FinalAction: ActionStop, Envelope: s.env, Attempts: opts.MaxAttempts}, nil
}

// consultLLM builds the jitter-consult context, calls the LLM adapter (if
// configured), sanitizes the proposal, and mirrors both to memory and the
// chat adapter. Any adapter failure is swallowed per spec §7's error table
// and the caller falls back to MinimalTweak.
func (s *Session) consultLLM(ctx context.Context, attempt Input, env *envelope.Envelope, extras Extras) (string, error) {
	if s.LLMAdapter == nil {
		return llmadapter.MinimalTweak(attempt.CandidatePatch, attempt.Message), nil
	}

	var similar []memory.Similar
	if s.Memory != nil {
		similar = s.Memory.GetSimilarOutcomes(memory.Query{Message: attempt.Message, Code: attempt.CandidatePatch}, 0.2, 3)
	}

	prompt := buildConsultPrompt(attempt, env, extras, similar)
	reply, err := s.LLMAdapter.Complete(ctx, prompt, consultSystemPrompt)
	if s.Memory != nil {
		if data, merr := json.Marshal(map[string]interface{}{
			"kind": "llm_consult", "prompt": prompt, "reply": reply.Text, "error": errString(err),
		}); merr == nil {
			s.Memory.SafeAddOutcome(string(data), func(e error) {
				logging.Get(logging.CategoryOrchestrator).Warn("memory persistence failure: %v", e)
			})
		}
	}
	if s.ChatAdapter != nil {
		s.ChatAdapter.AddMessage(ctx, chatadapter.RoleUser, prompt, map[string]interface{}{"attempt": attempt.AttemptNumber})
		s.ChatAdapter.AddMessage(ctx, chatadapter.RoleAI, reply.Text, map[string]interface{}{"attempt": attempt.AttemptNumber})
	}
	if err != nil {
		return "", err
	}

	patch, ok := llmadapter.ExtractPatch(reply.Text)
	if !ok {
		return llmadapter.MinimalTweak(attempt.CandidatePatch, attempt.Message), nil
	}

	sanitized, err := observer.Sanitizer{}.Evaluate(ctx, observer.Context{
		CandidatePatch:   patch,
		MaxLinesChanged:  0,
		DisallowKeywords: s.Policy.RiskyKeywords,
	})
	if err != nil {
		return "", err
	}
	if sanitized.Rejected {
		logging.Get(logging.CategoryOrchestrator).Warn("sanitizer rejected LLM proposal on attempt %d: %s", attempt.AttemptNumber, sanitized.Reason)
		return llmadapter.MinimalTweak(attempt.CandidatePatch, attempt.Message), nil
	}
	return patch, nil
}

const consultSystemPrompt = "You are a patch-repair assistant. Given the error, the original code, the last candidate patch, and prior similar outcomes, propose a corrected patch. Respond with a single fenced code block containing only the corrected code."

func buildConsultPrompt(attempt Input, env *envelope.Envelope, extras Extras, similar []memory.Similar) string {
	var b strings.Builder
	fmt.Fprintf(&b, "language: %s\n", attempt.Language)
	fmt.Fprintf(&b, "error: %s\n", attempt.Message)
	fmt.Fprintf(&b, "original_code:\n%s\n", attempt.OriginalCode)
	fmt.Fprintf(&b, "last_patch:\n%s\n", attempt.CandidatePatch)
	if env != nil {
		fmt.Fprintf(&b, "breaker_state: %s\n", env.BreakerState)
	}
	fmt.Fprintf(&b, "breaker_recommendation: %s\n", extras.BreakerSummary.RecommendedAction)
	fmt.Fprintf(&b, "last_attempt_status: %s\n", lastAttemptStatus(env))
	for i, sim := range similar {
		fmt.Fprintf(&b, "similar_outcome_%d: %s\n", i+1, sim.Record.Serialized)
	}
	return b.String()
}

func lastAttemptStatus(env *envelope.Envelope) string {
	if env == nil || len(env.Attempts) == 0 {
		return "unknown"
	}
	last := env.Attempts[len(env.Attempts)-1]
	if last.Success {
		return "success"
	}
	return "failure"
}

func oscillatingFromSummary(s breaker.Summary) bool {
	return !s.IsImproving && s.ConfidenceImproving
}

func errString(err error) string {
	if err == nil {
		return ""
	}
	return err.Error()
}

func mapAction(rec breaker.Recommendation, success bool, watchdog observer.Event, attemptNumber int) Action {
	var action Action
	switch rec {
	case breaker.RecPromote:
		action = ActionPromote
	case breaker.RecRollback:
		action = ActionRollback
	case breaker.RecTryDifferentStrategy:
		action = ActionStrategyChange
	default:
		if success {
			action = ActionPromote
		} else {
			action = ActionRetry
		}
	}

	// Watchdog overrides: high severity from attempt 2+ forces ROLLBACK;
	// any trigger on attempt 1 forces PAUSE_AND_BACKOFF and forbids
	// PROMOTE (spec §4.9 step 21, Scenario E).
	switch {
	case watchdog.Severity == observer.SeverityHigh && attemptNumber >= 2:
		action = ActionRollback
	case watchdog.Suspicion != observer.SuspicionNone && attemptNumber <= 1:
		action = ActionPauseAndBackoff
	}

	return action
}

func toEnvelopeRiskFlags(flags []observer.RiskFlag) []envelope.RiskFlag {
	out := make([]envelope.RiskFlag, 0, len(flags))
	for _, f := range flags {
		out = append(out, envelope.RiskFlag{Category: f.Category, Severity: string(f.Severity), Match: f.Match})
	}
	return out
}

func riskScoreFromFlags(flags []observer.RiskFlag) float64 {
	if len(flags) == 0 {
		return 0
	}
	high := 0
	for _, f := range flags {
		if f.Severity == observer.SeverityHigh {
			high++
		}
	}
	if high > 0 {
		return 1.0
	}
	return 0.5
}

func riskyKeywordsByCategory(keywords []string) map[string][]string {
	if len(keywords) == 0 {
		return nil
	}
	out := make(map[string][]string, len(keywords))
	for _, kw := range keywords {
		category := categorizeKeyword(kw)
		out[category] = append(out[category], kw)
	}
	return out
}

func categorizeKeyword(kw string) string {
	lower := strings.ToLower(kw)
	switch {
	case strings.Contains(lower, "drop table"), strings.Contains(lower, "select * from"):
		return "sql_injection"
	case strings.Contains(lower, "rm -rf"), strings.Contains(lower, "os.system"), strings.Contains(lower, "eval("):
		return "code_exec"
	default:
		return "other"
	}
}

func stagnationRisk(s breaker.Summary) float64 {
	if s.ShouldContinue {
		return 0
	}
	return 1
}

func errorTrend(prev, current int) string {
	switch {
	case current < prev:
		return "improving"
	case current > prev:
		return "worsening"
	default:
		return "stable"
	}
}

func cascadeSeverity(current, prev int) cascade.Severity {
	if current > prev {
		return cascade.SeverityHigh
	}
	if current == prev && current > 0 {
		return cascade.SeverityMedium
	}
	return cascade.SeverityLow
}

func updateHistory(h scorer.History, class errclass.Class, success bool) scorer.History {
	delta := -0.05
	if success {
		delta = 0.05
	}
	if class.BudgetGroup() == errclass.Syntax {
		h.SyntaxHistoryFactor = clamp(h.SyntaxHistoryFactor+delta, 0.5, 1.5)
	} else {
		h.LogicHistoryFactor = clamp(h.LogicHistoryFactor+delta, 0.5, 1.5)
	}
	return h
}

func clamp(v, lo, hi float64) float64 {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

// jitterRatio returns the jitter fraction to apply to the base wait,
// widened under oscillation per spec §4.9 step 4 "Under oscillation,
// widen jitter ratio".
func jitterRatio(oscillating bool) float64 {
	if oscillating {
		return 0.4
	}
	return 0.2
}

// computeWait derives the backoff duration from the breaker summary's
// failure count (short/medium/long tiers), adds symmetric jitter, and
// clamps to [minWaitMs, maxWaitMs].
func computeWait(summary breaker.Summary, minWaitMs, maxWaitMs int64, oscillating bool, rng *rand.Rand) time.Duration {
	var baseMs int64
	switch {
	case summary.FailureCount <= 1:
		baseMs = minWaitMs
	case summary.FailureCount <= 3:
		baseMs = (minWaitMs + maxWaitMs) / 2
	default:
		baseMs = maxWaitMs
	}

	ratio := jitterRatio(oscillating)
	jitter := 1.0 + (rng.Float64()*2-1)*ratio
	waitMs := float64(baseMs) * jitter

	if waitMs < float64(minWaitMs) {
		waitMs = float64(minWaitMs)
	}
	if waitMs > float64(maxWaitMs) {
		waitMs = float64(maxWaitMs)
	}
	return time.Duration(waitMs) * time.Millisecond
}
