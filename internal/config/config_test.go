package config

import (
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/shaunpalmer/code-heals-itself-sub000/internal/breaker"
)

func TestPresetsDiffer(t *testing.T) {
	sota := SOTA()
	local := LocalSmall()
	require.Greater(t, sota.SyntaxConfFloor, local.SyntaxConfFloor)
	require.Less(t, sota.MaxSyntaxAttempts, local.MaxSyntaxAttempts)
}

func TestLoadMissingFileReturnsDefaults(t *testing.T) {
	p, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	require.Equal(t, MidTier(), p)
}

func TestSaveLoadRoundTrip(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "policy.yaml")

	want := SOTA()
	require.NoError(t, want.Save(path))

	got, err := Load(path)
	require.NoError(t, err)
	require.Equal(t, want, got)
}

func TestSnapshotDeepCopiesKeywords(t *testing.T) {
	p := MidTier()
	snap := p.Snapshot()
	snap.RiskyKeywords[0] = "mutated"
	require.NotEqual(t, p.RiskyKeywords[0], snap.RiskyKeywords[0])
}

func TestBreakerPolicyMapsBudgetKnobs(t *testing.T) {
	p := LocalSmall()
	want := breaker.Policy{
		GraceAttempts:       p.GraceAttempts,
		FailureStreakCutoff: p.FailureStreakCutoff,
		SyntaxErrorBudget:   p.SyntaxErrorBudget,
		LogicErrorBudget:    p.LogicErrorBudget,
		SyntaxConfFloor:     p.SyntaxConfFloor,
		LogicConfFloor:      p.LogicConfFloor,
	}
	require.Equal(t, want, p.BreakerPolicy())
}
