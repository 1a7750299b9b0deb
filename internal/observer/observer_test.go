package observer

import (
	"context"
	"testing"
)

func TestHangWatchdogEscalatesBySuspicionLadder(t *testing.T) {
	w := HangWatchdog{}
	evt, err := w.Evaluate(context.Background(), Context{AttemptNumber: 4, ConsecutiveFlags: 3, ElapsedMs: 6000, TimeoutMs: 5000})
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if evt.Suspicion != SuspicionExtreme {
		t.Fatalf("expected extreme suspicion at attempt>=4, got %v", evt.Suspicion)
	}
}

func TestHangWatchdogNoneWhenHealthy(t *testing.T) {
	w := HangWatchdog{}
	evt, _ := w.Evaluate(context.Background(), Context{AttemptNumber: 1, ElapsedMs: 100, TimeoutMs: 5000})
	if evt.Suspicion != SuspicionNone {
		t.Fatalf("expected none suspicion, got %v", evt.Suspicion)
	}
}

func TestRiskyEditFlagsKeyword(t *testing.T) {
	r := RiskyEdit{}
	evt, _ := r.Evaluate(context.Background(), Context{
		CandidatePatch: "db.Exec(\"SELECT * FROM users WHERE id = \" + userInput)",
		RiskyKeywords:  map[string][]string{"sql_injection": {"SELECT * FROM"}},
	})
	if len(evt.RiskFlags) != 1 {
		t.Fatalf("expected 1 risk flag, got %d", len(evt.RiskFlags))
	}
	if evt.RiskFlags[0].Severity != SeverityHigh {
		t.Fatalf("expected sql_injection to be high severity")
	}
}

func TestPathResolutionFlagsMissingImport(t *testing.T) {
	p := PathResolution{}
	evt, _ := p.Evaluate(context.Background(), Context{
		CandidatePatch: `import "./helpers/util.go"`,
		WorkspaceRoot:  "/ws",
		ExistingFiles:  map[string]bool{},
	})
	if len(evt.Missing) != 1 {
		t.Fatalf("expected 1 missing path, got %v", evt.Missing)
	}
}

func TestSanitizerRejectsOversizedPatch(t *testing.T) {
	s := Sanitizer{}
	evt, _ := s.Evaluate(context.Background(), Context{
		CandidatePatch:  "line1\nline2\nline3\nline4",
		MaxLinesChanged: 2,
	})
	if !evt.Rejected {
		t.Fatalf("expected rejection for oversized patch")
	}
}

func TestSanitizerRejectsDisallowedKeyword(t *testing.T) {
	s := Sanitizer{}
	evt, _ := s.Evaluate(context.Background(), Context{
		CandidatePatch:   "os.RemoveAll(\"/\")",
		DisallowKeywords: []string{"RemoveAll"},
	})
	if !evt.Rejected {
		t.Fatalf("expected rejection for disallowed keyword")
	}
}

func TestDispatchRunsAllObservers(t *testing.T) {
	result, err := Dispatch(context.Background(), Context{
		CandidatePatch: "fmt.Println(\"ok\")",
	}, HangWatchdog{}, RiskyEdit{}, PathResolution{}, Sanitizer{})
	if err != nil {
		t.Fatalf("Dispatch: %v", err)
	}
	if result.Watchdog.Kind != "watchdog" || result.Risk.Kind != "risk" || result.Path.Kind != "path" || result.Sanitizer.Kind != "sanitizer" {
		t.Fatalf("expected all four observer kinds populated, got %+v", result)
	}
}
