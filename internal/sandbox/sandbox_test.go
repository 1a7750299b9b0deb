package sandbox

import (
	"context"
	"testing"
	"time"
)

func TestExecuteRejectsDisallowedBinary(t *testing.T) {
	e := NewLocalExecutor([]string{"go"}, func(lang string) []string { return []string{"rm", "-rf", "/"} })
	res := e.Execute(context.Background(), Request{Language: "go"})
	if res.Success {
		t.Fatalf("expected disallowed binary to fail")
	}
}

func TestExecuteSucceeds(t *testing.T) {
	e := NewLocalExecutor([]string{"echo"}, func(lang string) []string { return []string{"echo", "ok"} })
	res := e.Execute(context.Background(), Request{Language: "go"})
	if !res.Success {
		t.Fatalf("expected success, got error=%q", res.ErrorMessage)
	}
}

func TestExecuteTimeoutReportsLimitHit(t *testing.T) {
	e := NewLocalExecutor([]string{"sleep"}, func(lang string) []string { return []string{"sleep", "5"} })
	res := e.Execute(context.Background(), Request{Language: "go", Caps: ResourceCaps{MaxExecutionTime: 20 * time.Millisecond}})
	if res.Success {
		t.Fatalf("expected timeout to fail")
	}
	found := false
	for _, l := range res.LimitsHit {
		if l == "execution_time" {
			found = true
		}
	}
	if !found {
		t.Fatalf("expected execution_time in limits_hit, got %v", res.LimitsHit)
	}
}

func TestExecuteUnknownLanguage(t *testing.T) {
	e := NewLocalExecutor([]string{"go"}, func(lang string) []string { return nil })
	res := e.Execute(context.Background(), Request{Language: "cobol"})
	if res.Success {
		t.Fatalf("expected failure for unconfigured language")
	}
}
