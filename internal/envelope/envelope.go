// Package envelope implements the patch envelope (spec §4.4): an
// append-only, hash-stable audit record that accumulates attempt history,
// confidence components, observer flags, and breaker state across an
// entire retry chain.
//
// Grounded on the teacher's append-only audit style in
// internal/logging/audit.go and the "never retroactively mutate history"
// discipline spec.md §9 calls for; the immutable-diagnostic sealing is
// novel to this domain (the teacher has no direct analog) but follows the
// same "frozen flag checked before every mutation, violation raises" shape
// spec.md §9 prescribes.
package envelope

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"time"
)

// ErrFrozenField is returned by SetRebankerRaw when a caller attempts to
// overwrite the sealed rebanker_raw/rebanker_hash with a different value.
// patch_id and attempts entries have no setter, so no method returns it
// for them.
var ErrFrozenField = errors.New("envelope: attempted to mutate a frozen field")

// ErrHashMismatch signals that a re-verified rebanker diagnostic hash no
// longer matches its sealed value — a tampering signal per spec §4.7.
var ErrHashMismatch = errors.New("envelope: rebanker diagnostic hash mismatch, tampering suspected")

// Attempt is one append-only entry in Envelope.Attempts.
type Attempt struct {
	Timestamp    string `json:"timestamp"`
	Success      bool   `json:"success"`
	Note         string `json:"note"`
	BreakerState string `json:"breaker_state"`
	FailureCount int    `json:"failure_count"`
}

// TimelineEntry is one append-only entry in Envelope.Timeline.
type TimelineEntry struct {
	AttemptIndex      int     `json:"attempt_index"`
	ErrorsDetected    int     `json:"errors_detected"`
	ErrorsResolved    int     `json:"errors_resolved"`
	OverallConfidence float64 `json:"overall_confidence"`
	BreakerState      string  `json:"breaker_state"`
	ActionTag         string  `json:"action_tag"`
}

// ConfidenceComponents mirrors scorer.Components at the envelope surface.
type ConfidenceComponents struct {
	Syntax float64 `json:"syntax"`
	Logic  float64 `json:"logic"`
	Risk   float64 `json:"risk"`
}

// TrendMetadata is the trend-tracking block spec.md §3 requires.
type TrendMetadata struct {
	ErrorsDetected      int     `json:"errors_detected"`
	ErrorsResolved      int     `json:"errors_resolved"`
	QualityScore        float64 `json:"quality_score"`
	ImprovementVelocity float64 `json:"improvement_velocity"`
	StagnationRisk      float64 `json:"stagnation_risk"`
	ErrorTrend          string  `json:"error_trend"`
}

// Counters tracks cumulative resolution counts across the whole chain.
type Counters struct {
	SyntaxErrorsResolved int `json:"syntax_errors_resolved"`
	LogicErrorsResolved  int `json:"logic_errors_resolved"`
	OtherErrorsResolved  int `json:"other_errors_resolved"`
	TotalAttempts        int `json:"total_attempts"`
}

// ResourceUsage mirrors the sandbox executor's resource_usage block.
type ResourceUsage struct {
	ExecutionTimeMs int64   `json:"execution_time_ms"`
	MemoryUsedMb    float64 `json:"memory_used_mb"`
	CPUUsedPercent  float64 `json:"cpu_used_percent"`
}

// DeveloperFlag marks an envelope for human review.
type DeveloperFlag struct {
	Flagged bool   `json:"flagged"`
	Message string `json:"message"`
}

// Diagnostic is the re-banker's 5-field output plus optional taxonomy
// enrichment (spec §3 "Re-banker diagnostic packet").
type Diagnostic struct {
	File       string   `json:"file"`
	Line       *int     `json:"line"`
	Column     *int     `json:"column"`
	Message    string   `json:"message"`
	Code       string   `json:"code"`
	Severity   string   `json:"severity"`
	Family     string   `json:"family,omitempty"`
	Difficulty *float64 `json:"difficulty,omitempty"`
	ClusterID  string   `json:"cluster_id,omitempty"`
	Hint       string   `json:"hint,omitempty"`
}

// PolicySnapshot freezes the policy thresholds in effect at wrap_patch
// time (spec §9 "Policy snapshot"). Built by internal/config; kept as a
// plain struct here so envelope never needs to import config.
type PolicySnapshot struct {
	SyntaxConfFloor     float64  `json:"syntax_conf_floor"`
	LogicConfFloor      float64  `json:"logic_conf_floor"`
	MaxSyntaxAttempts   int      `json:"max_syntax_attempts"`
	MaxLogicAttempts    int      `json:"max_logic_attempts"`
	SyntaxErrorBudget   float64  `json:"syntax_error_budget"`
	LogicErrorBudget    float64  `json:"logic_error_budget"`
	RateLimitPerMin     int      `json:"rate_limit_per_min"`
	SandboxIsolation    string   `json:"sandbox_isolation"`
	RequireHumanOnRisky bool     `json:"require_human_on_risky"`
	RiskyKeywords       []string `json:"risky_keywords"`
	GraceAttempts       int      `json:"grace_attempts"`
	FailureStreakCutoff int      `json:"failure_streak_cutoff"`
	CascadeMaxDepth     int      `json:"cascade_max_depth"`
}

// Metadata bundles the mutable and immutable out-of-band fields attached
// across the retry chain.
type Metadata struct {
	RebankerRaw         *Diagnostic `json:"rebanker_raw,omitempty"`
	RebankerHash        string      `json:"rebanker_hash,omitempty"`
	RebankerInterpreted string      `json:"rebanker_interpreted,omitempty"`
	RiskFlags           []RiskFlag  `json:"risk_flags,omitempty"`
	MissingPaths        []string    `json:"missing_paths,omitempty"`
}

// RiskFlag is one match from the risky-edit observer.
type RiskFlag struct {
	Category string `json:"category"`
	Severity string `json:"severity"`
	Match    string `json:"match"`
}

// Envelope is the canonical artifact threading through one repair session.
// The orchestrator exclusively owns it during a run (spec §3 "Ownership");
// all mutation happens through the methods below, never direct field
// assignment from outside this package's constructor.
type Envelope struct {
	PatchID               string                `json:"patch_id"`
	Attempts              []Attempt             `json:"attempts"`
	Timeline              []TimelineEntry       `json:"timeline"`
	Counters              Counters              `json:"counters"`
	BreakerState          string                `json:"breaker_state"`
	Success               bool                  `json:"success"`
	ConfidenceComponents  ConfidenceComponents  `json:"confidence_components"`
	TrendMetadata         TrendMetadata         `json:"trend_metadata"`
	Metadata              Metadata              `json:"metadata"`
	PolicySnapshot        PolicySnapshot        `json:"policy_snapshot"`
	CascadeDepth          int                   `json:"cascade_depth"`
	ResourceUsage         ResourceUsage         `json:"resource_usage"`
	DeveloperFlag         DeveloperFlag         `json:"developer_flag"`
	Timestamp             string                `json:"timestamp"`
	EnvelopeHash          string                `json:"envelope_hash"`
}

// WrapPatch constructs a new envelope from the initial patch payload.
// patch_id is derived from a stable hash of the canonical serialization of
// patchData, never from memory address or insertion order (spec §4.4).
func WrapPatch(patchData interface{}, snapshot PolicySnapshot) (*Envelope, error) {
	canon, err := canonicalize(patchData)
	if err != nil {
		return nil, fmt.Errorf("envelope: canonicalizing patch data: %w", err)
	}
	sum := sha256.Sum256(canon)
	id := hex.EncodeToString(sum[:])[:16]

	return &Envelope{
		PatchID:        id,
		Attempts:       []Attempt{},
		Timeline:       []TimelineEntry{},
		BreakerState:   "CLOSED",
		PolicySnapshot: snapshot,
	}, nil
}

// AppendAttempt appends to Attempts. Once appended, an entry is never
// mutated again (append-only per spec §4.4).
func (e *Envelope) AppendAttempt(record Attempt) {
	e.Attempts = append(e.Attempts, record)
}

// MergeConfidence sets confidence_components for the current attempt.
func (e *Envelope) MergeConfidence(c ConfidenceComponents) {
	e.ConfidenceComponents = c
}

// UpdateTrend sets trend_metadata.
func (e *Envelope) UpdateTrend(t TrendMetadata) {
	e.TrendMetadata = t
}

// SetBreakerState stores an already-normalized breaker state at the
// envelope surface (CLOSED | OPEN | HALF_OPEN); the value is not checked.
func (e *Envelope) SetBreakerState(normalized string) {
	e.BreakerState = normalized
}

// SetCascadeDepth records the cascade handler's current chain depth.
func (e *Envelope) SetCascadeDepth(n int) {
	e.CascadeDepth = n
}

// MergeResourceUsage records the sandbox's resource usage for the current
// attempt.
func (e *Envelope) MergeResourceUsage(u ResourceUsage) {
	e.ResourceUsage = u
}

// ApplyDeveloperFlag marks the envelope for human-review escalation.
func (e *Envelope) ApplyDeveloperFlag(flagged bool, message string) {
	e.DeveloperFlag = DeveloperFlag{Flagged: flagged, Message: message}
}

// MarkSuccess is the only way success is ever set; it is never inferred
// (spec §3).
func (e *Envelope) MarkSuccess(success bool) {
	e.Success = success
}

// UpdateCounters increments the named cumulative resolution counter.
func (e *Envelope) UpdateCounters(kind string, resolved int) {
	e.Counters.TotalAttempts++
	switch kind {
	case "SYNTAX":
		e.Counters.SyntaxErrorsResolved += resolved
	case "LOGIC", "RUNTIME":
		e.Counters.LogicErrorsResolved += resolved
	default:
		e.Counters.OtherErrorsResolved += resolved
	}
}

// AddTimelineEntry appends to Timeline (append-only per spec §4.4).
func (e *Envelope) AddTimelineEntry(entry TimelineEntry) {
	e.Timeline = append(e.Timeline, entry)
}

// SetEnvelopeTimestamp stamps the current UTC time in ISO-8601 form.
func (e *Envelope) SetEnvelopeTimestamp() {
	e.Timestamp = time.Now().UTC().Format(time.RFC3339)
}

// SetEnvelopeHash computes envelope_hash over the canonical serialization
// with timestamp and envelope_hash excluded, so cosmetic re-emissions
// (re-stamping the timestamp) never change the hash (spec §3, §8 property 3).
func (e *Envelope) SetEnvelopeHash() error {
	canon, err := canonicalizeExcluding(e, "timestamp", "envelope_hash")
	if err != nil {
		return fmt.Errorf("envelope: canonicalizing for hash: %w", err)
	}
	sum := sha256.Sum256(canon)
	e.EnvelopeHash = hex.EncodeToString(sum[:])
	return nil
}

// SetRebankerRaw seals the immutable diagnostic packet on first write.
// Attempting to overwrite an already-sealed diagnostic with a different
// value raises ErrFrozenField (spec §4.4 invariant).
func (e *Envelope) SetRebankerRaw(diag Diagnostic) error {
	if e.Metadata.RebankerHash != "" {
		canon, err := canonicalize(diag)
		if err != nil {
			return fmt.Errorf("envelope: canonicalizing rebanker diagnostic: %w", err)
		}
		sum := sha256.Sum256(canon)
		if hex.EncodeToString(sum[:]) != e.Metadata.RebankerHash {
			return ErrFrozenField
		}
		return nil // identical value re-written, a no-op
	}
	canon, err := canonicalize(diag)
	if err != nil {
		return fmt.Errorf("envelope: canonicalizing rebanker diagnostic: %w", err)
	}
	sum := sha256.Sum256(canon)
	e.Metadata.RebankerRaw = &diag
	e.Metadata.RebankerHash = hex.EncodeToString(sum[:])
	return nil
}

// VerifyRebankerRaw re-verifies the sealed diagnostic's hash. Every read of
// rebanker_raw across the retry chain must call this first (spec §4.7
// "Truth-flow contract"); a mismatch is a tampering signal and must abort
// the entire chain.
func (e *Envelope) VerifyRebankerRaw() error {
	if e.Metadata.RebankerRaw == nil {
		return nil // nothing sealed yet, nothing to verify
	}
	canon, err := canonicalize(*e.Metadata.RebankerRaw)
	if err != nil {
		return fmt.Errorf("envelope: canonicalizing rebanker diagnostic: %w", err)
	}
	sum := sha256.Sum256(canon)
	if hex.EncodeToString(sum[:]) != e.Metadata.RebankerHash {
		return ErrHashMismatch
	}
	return nil
}

// SetRebankerInterpreted sets the mutable LLM-summary field; it does not
// participate in the immutable diagnostic's hash.
func (e *Envelope) SetRebankerInterpreted(summary string) {
	e.Metadata.RebankerInterpreted = summary
}

// SetRiskFlags attaches the risky-edit observer's findings.
func (e *Envelope) SetRiskFlags(flags []RiskFlag) {
	e.Metadata.RiskFlags = flags
}

// SetMissingPaths attaches the path-resolution observer's findings.
func (e *Envelope) SetMissingPaths(paths []string) {
	e.Metadata.MissingPaths = paths
}

// CanonicalJSON returns the envelope's canonical serialization (sorted
// keys, no exclusions) — used for round-trip/idempotence tests and for
// persisting snapshots to the memory buffer.
func (e *Envelope) CanonicalJSON() ([]byte, error) {
	return canonicalize(e)
}
