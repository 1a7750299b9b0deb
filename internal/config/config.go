// Package config implements the policy configuration (spec §6): YAML-backed
// thresholds, the three named presets, and a hot-reload watcher.
//
// Grounded on the teacher's internal/config/config.go (a nested YAML-tagged
// struct with a Default*Config constructor, loaded via gopkg.in/yaml.v3,
// saved back with the same library); the policy knob set itself replaces
// codeNERD's broader agent configuration with the fixed set spec.md §6
// names.
package config

import (
	"fmt"
	"os"
	"path/filepath"

	"gopkg.in/yaml.v3"

	"github.com/shaunpalmer/code-heals-itself-sub000/internal/breaker"
	"github.com/shaunpalmer/code-heals-itself-sub000/internal/envelope"
)

// Policy holds every recognized configuration key from spec §6, all
// optional with documented defaults.
type Policy struct {
	SyntaxConfFloor     float64  `yaml:"syntax_conf_floor"`
	LogicConfFloor      float64  `yaml:"logic_conf_floor"`
	MaxSyntaxAttempts   int      `yaml:"max_syntax_attempts"`
	MaxLogicAttempts    int      `yaml:"max_logic_attempts"`
	SyntaxErrorBudget   float64  `yaml:"syntax_error_budget"`
	LogicErrorBudget    float64  `yaml:"logic_error_budget"`
	RateLimitPerMin     int      `yaml:"rate_limit_per_min"`
	SandboxIsolation    string   `yaml:"sandbox_isolation"` // full | partial | none
	RequireHumanOnRisky bool     `yaml:"require_human_on_risky"`
	RiskyKeywords       []string `yaml:"risky_keywords"`
	GraceAttempts       int      `yaml:"grace_attempts"`
	FailureStreakCutoff int      `yaml:"failure_streak_cutoff"`
	CascadeMaxDepth     int      `yaml:"cascade_max_depth"`

	// EnableFinalPolish is the final-polish feature flag (spec §9 "Open
	// questions"), default false. When it is set, a PROMOTE with overall
	// confidence >= 0.95 and no detected errors only writes a debug log
	// line; no polish or formatting step is run on the patch.
	EnableFinalPolish bool `yaml:"enable_final_polish"`
}

// MidTier is the default preset: balanced floors and attempt counts.
func MidTier() Policy {
	return Policy{
		SyntaxConfFloor:     0.6,
		LogicConfFloor:      0.6,
		MaxSyntaxAttempts:   5,
		MaxLogicAttempts:    5,
		SyntaxErrorBudget:   0.10,
		LogicErrorBudget:    0.20,
		RateLimitPerMin:     30,
		SandboxIsolation:    "full",
		RequireHumanOnRisky: true,
		RiskyKeywords:       []string{"DROP TABLE", "rm -rf", "eval(", "os.system", "SELECT * FROM"},
		GraceAttempts:       2,
		FailureStreakCutoff: 5,
		CascadeMaxDepth:     10,
	}
}

// SOTA is the tight preset: a strong model is trusted to need fewer
// attempts and clears higher confidence floors.
func SOTA() Policy {
	p := MidTier()
	p.SyntaxConfFloor = 0.8
	p.LogicConfFloor = 0.8
	p.MaxSyntaxAttempts = 3
	p.MaxLogicAttempts = 3
	p.SyntaxErrorBudget = 0.05
	p.LogicErrorBudget = 0.10
	return p
}

// LocalSmall is the loose preset for a weaker locally-hosted model: more
// attempts, lower floors, wider budgets.
func LocalSmall() Policy {
	p := MidTier()
	p.SyntaxConfFloor = 0.4
	p.LogicConfFloor = 0.4
	p.MaxSyntaxAttempts = 10
	p.MaxLogicAttempts = 10
	p.SyntaxErrorBudget = 0.25
	p.LogicErrorBudget = 0.35
	p.GraceAttempts = 3
	return p
}

// Preset resolves a named bundle, defaulting to MidTier for unknown names.
func Preset(name string) Policy {
	switch name {
	case "sota":
		return SOTA()
	case "local_small":
		return LocalSmall()
	default:
		return MidTier()
	}
}

// Load reads a YAML policy file from disk, merging over the mid_tier
// defaults so a partial file only overrides the keys it sets. A missing
// file is not an error: it returns the mid_tier defaults, matching the
// teacher's "return defaults if config file doesn't exist" behavior.
func Load(path string) (Policy, error) {
	p := MidTier()
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return p, nil
		}
		return p, fmt.Errorf("config: reading policy file: %w", err)
	}
	if err := yaml.Unmarshal(data, &p); err != nil {
		return p, fmt.Errorf("config: parsing policy YAML: %w", err)
	}
	return p, nil
}

// Save writes the policy back to disk as YAML, creating the parent
// directory if needed.
func (p Policy) Save(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("config: creating policy directory: %w", err)
		}
	}
	data, err := yaml.Marshal(p)
	if err != nil {
		return fmt.Errorf("config: marshaling policy: %w", err)
	}
	return os.WriteFile(path, data, 0o644)
}

// Snapshot deep-copies the policy into an envelope.PolicySnapshot, frozen
// at wrap_patch time so a later hot-reload never retroactively alters
// envelopes already wrapped (spec §9 "Policy snapshot").
func (p Policy) Snapshot() envelope.PolicySnapshot {
	keywords := make([]string, len(p.RiskyKeywords))
	copy(keywords, p.RiskyKeywords)
	return envelope.PolicySnapshot{
		SyntaxConfFloor:     p.SyntaxConfFloor,
		LogicConfFloor:      p.LogicConfFloor,
		MaxSyntaxAttempts:   p.MaxSyntaxAttempts,
		MaxLogicAttempts:    p.MaxLogicAttempts,
		SyntaxErrorBudget:   p.SyntaxErrorBudget,
		LogicErrorBudget:    p.LogicErrorBudget,
		RateLimitPerMin:     p.RateLimitPerMin,
		SandboxIsolation:    p.SandboxIsolation,
		RequireHumanOnRisky: p.RequireHumanOnRisky,
		RiskyKeywords:       keywords,
		GraceAttempts:       p.GraceAttempts,
		FailureStreakCutoff: p.FailureStreakCutoff,
		CascadeMaxDepth:     p.CascadeMaxDepth,
	}
}

// BreakerPolicy maps the budget-related knobs onto breaker.Policy so the
// circuit breaker is driven by whichever preset (or loaded YAML file) was
// actually selected, rather than breaker.DefaultPolicy()'s hardcoded
// mid_tier numbers.
func (p Policy) BreakerPolicy() breaker.Policy {
	return breaker.Policy{
		GraceAttempts:       p.GraceAttempts,
		FailureStreakCutoff: p.FailureStreakCutoff,
		SyntaxErrorBudget:   p.SyntaxErrorBudget,
		LogicErrorBudget:    p.LogicErrorBudget,
		SyntaxConfFloor:     p.SyntaxConfFloor,
		LogicConfFloor:      p.LogicConfFloor,
	}
}
