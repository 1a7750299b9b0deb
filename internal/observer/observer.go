// Package observer implements the observer layer (spec §4.8): hang
// watchdog with suspicion escalation, risky-edit keyword scanner,
// path-resolution checker, and patch sanitizer.
//
// Grounded on the teacher's SelfHealer strategy-dispatch switch
// (internal/core/self_healing.go) generalized into a tagged-interface
// dispatch per spec.md §9 "Observer dispatch", and on
// internal/autopoiesis/persistence.go's regexp pattern-table style for the
// risky-keyword scanner.
package observer

import (
	"context"
	"path/filepath"
	"regexp"
	"strings"

	"golang.org/x/sync/errgroup"
)

// Suspicion is the closed escalation ladder (spec §3).
type Suspicion string

const (
	SuspicionNone       Suspicion = "none"
	SuspicionSuspicious Suspicion = "suspicious"
	SuspicionDanger     Suspicion = "danger"
	SuspicionExtreme    Suspicion = "extreme"
)

// Severity mirrors the watchdog's low/medium/high scale.
type Severity string

const (
	SeverityLow    Severity = "low"
	SeverityMedium Severity = "medium"
	SeverityHigh   Severity = "high"
)

// Event is the common shape every observer returns (spec §9 "Observer
// dispatch" — a tagged variant with one evaluate(context) -> Event shape).
type Event struct {
	Kind      string // "watchdog" | "risk" | "path" | "sanitizer"
	Reason    string
	Severity  Severity
	Suspicion Suspicion
	RiskFlags []RiskFlag
	Missing   []string
	Rejected  bool
	Observed  map[string]interface{}
}

// RiskFlag is one risky-keyword match.
type RiskFlag struct {
	Category string
	Severity Severity
	Match    string
}

// Context is the read-only view observers receive.
type Context struct {
	AttemptNumber     int
	ConsecutiveFlags  int
	ElapsedMs         int64
	TimeoutMs         int64
	ResourceLimitHits []string
	CandidatePatch    string
	ImportPaths       []string // import/require paths referenced by the patch
	WorkspaceRoot     string
	ExistingFiles     map[string]bool // precomputed existence check, keyed by resolved path
	RiskyKeywords     map[string][]string // category -> keywords, from policy
	MaxLinesChanged   int
	DisallowKeywords  []string
}

// Observer is the common interface every concrete observer implements.
type Observer interface {
	Evaluate(ctx context.Context, c Context) (Event, error)
}

// HangWatchdog enforces a per-attempt timer and escalates suspicion by a
// fixed ladder as flags persist across attempts (spec §4.8).
type HangWatchdog struct{}

func (HangWatchdog) Evaluate(_ context.Context, c Context) (Event, error) {
	expired := c.ElapsedMs >= c.TimeoutMs && c.TimeoutMs > 0
	limitBreach := len(c.ResourceLimitHits) > 0
	if !expired && !limitBreach {
		return Event{Kind: "watchdog", Suspicion: SuspicionNone}, nil
	}

	suspicion := SuspicionSuspicious
	switch {
	case c.AttemptNumber >= 4 || c.ConsecutiveFlags >= 3:
		suspicion = SuspicionExtreme
	case c.AttemptNumber >= 3 || c.ConsecutiveFlags >= 2:
		suspicion = SuspicionDanger
	}

	severity := SeverityMedium
	if limitBreach {
		severity = SeverityHigh
	}

	reason := "watchdog timer expired"
	if limitBreach {
		reason = "resource limit breached"
	}

	return Event{
		Kind:      "watchdog",
		Reason:    reason,
		Severity:  severity,
		Suspicion: suspicion,
		Observed:  map[string]interface{}{"elapsed_ms": c.ElapsedMs, "limits_hit": c.ResourceLimitHits},
	}, nil
}

// RiskyEdit scans the candidate patch for policy-defined keywords,
// categorizing matches with severity levels.
type RiskyEdit struct{}

func (RiskyEdit) Evaluate(_ context.Context, c Context) (Event, error) {
	if len(c.RiskyKeywords) == 0 {
		return Event{Kind: "risk"}, nil
	}
	lower := strings.ToLower(c.CandidatePatch)
	var flags []RiskFlag
	for category, keywords := range c.RiskyKeywords {
		for _, kw := range keywords {
			if kw == "" {
				continue
			}
			if strings.Contains(lower, strings.ToLower(kw)) {
				flags = append(flags, RiskFlag{Category: category, Severity: severityForCategory(category), Match: kw})
			}
		}
	}
	return Event{Kind: "risk", RiskFlags: flags}, nil
}

func severityForCategory(category string) Severity {
	switch category {
	case "sql_injection", "auth_bypass", "code_exec":
		return SeverityHigh
	default:
		return SeverityMedium
	}
}

// PathResolution best-effort checks import/require paths against the
// workspace for non-existent files.
type PathResolution struct{}

var importLikeRe = regexp.MustCompile(`(?m)(?:import|require)\s*\(?\s*["']([^"']+)["']`)

func (PathResolution) Evaluate(_ context.Context, c Context) (Event, error) {
	paths := c.ImportPaths
	if len(paths) == 0 {
		for _, m := range importLikeRe.FindAllStringSubmatch(c.CandidatePatch, -1) {
			paths = append(paths, m[1])
		}
	}

	var missing []string
	for _, p := range paths {
		if !looksRelative(p) {
			continue // only resolvable relative/local paths are checkable
		}
		resolved := filepath.Join(c.WorkspaceRoot, p)
		if c.ExistingFiles != nil {
			if !c.ExistingFiles[resolved] {
				missing = append(missing, p)
			}
		}
	}
	return Event{Kind: "path", Missing: missing}, nil
}

func looksRelative(p string) bool {
	return strings.HasPrefix(p, "./") || strings.HasPrefix(p, "../") || strings.HasPrefix(p, "/")
}

// Sanitizer enforces max_lines_changed / disallow_keywords before any
// LLM-proposed patch is applied (spec §4.8). Rejection falls back to a
// conservative minimal tweak at the orchestrator layer; here we only
// report the rejection.
type Sanitizer struct{}

func (Sanitizer) Evaluate(_ context.Context, c Context) (Event, error) {
	linesChanged := strings.Count(c.CandidatePatch, "\n") + 1
	if c.MaxLinesChanged > 0 && linesChanged > c.MaxLinesChanged {
		return Event{Kind: "sanitizer", Rejected: true, Reason: "patch exceeds max_lines_changed"}, nil
	}
	lower := strings.ToLower(c.CandidatePatch)
	for _, kw := range c.DisallowKeywords {
		if kw != "" && strings.Contains(lower, strings.ToLower(kw)) {
			return Event{Kind: "sanitizer", Rejected: true, Reason: "patch contains a disallowed keyword: " + kw}, nil
		}
	}
	return Event{Kind: "sanitizer", Rejected: false}, nil
}

// DispatchResult bundles every observer's event for one attempt.
type DispatchResult struct {
	Watchdog  Event
	Risk      Event
	Path      Event
	Sanitizer Event
}

// Dispatch runs the risk and path observers concurrently (they are
// read-only and independent), while the watchdog and sanitizer stay
// sequential — the watchdog gates on sandbox timing that must already be
// known, and the sanitizer gates on the exact patch about to be applied
// (spec §9 "Observer dispatch").
func Dispatch(ctx context.Context, c Context, watchdog HangWatchdog, risky RiskyEdit, path PathResolution, sanitizer Sanitizer) (DispatchResult, error) {
	var result DispatchResult

	wEvent, err := watchdog.Evaluate(ctx, c)
	if err != nil {
		return result, err
	}
	result.Watchdog = wEvent

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		e, err := risky.Evaluate(gctx, c)
		result.Risk = e
		return err
	})
	g.Go(func() error {
		e, err := path.Evaluate(gctx, c)
		result.Path = e
		return err
	})
	if err := g.Wait(); err != nil {
		return result, err
	}

	sEvent, err := sanitizer.Evaluate(ctx, c)
	if err != nil {
		return result, err
	}
	result.Sanitizer = sEvent

	return result, nil
}
