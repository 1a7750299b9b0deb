package cascade

import "testing"

func TestRepeatingIdenticalMessageTriggersStop(t *testing.T) {
	h := New(10)
	for i := 0; i < 3; i++ {
		h.Add(Entry{Class: "SYNTAX", Message: "unexpected token '}'", Confidence: 0.4, Severity: SeverityLow})
	}
	stop, reason := h.ShouldStop()
	if !stop {
		t.Fatalf("expected stop after 3 identical messages")
	}
	if reason == "" {
		t.Fatalf("expected a non-empty reason")
	}
}

func TestSameClassDifferentMessageDoesNotTrigger(t *testing.T) {
	h := New(10)
	h.Add(Entry{Class: "SYNTAX", Message: "missing semicolon", Severity: SeverityLow})
	h.Add(Entry{Class: "SYNTAX", Message: "unbalanced brace", Severity: SeverityLow})
	h.Add(Entry{Class: "SYNTAX", Message: "unexpected EOF", Severity: SeverityLow})
	stop, _ := h.ShouldStop()
	if stop {
		t.Fatalf("same class with distinct messages must not count as repeating")
	}
}

func TestEscalatingSeverityTriggersStop(t *testing.T) {
	h := New(10)
	h.Add(Entry{Message: "a", Severity: SeverityLow})
	h.Add(Entry{Message: "b", Severity: SeverityMedium})
	h.Add(Entry{Message: "c", Severity: SeverityHigh})
	stop, _ := h.ShouldStop()
	if !stop {
		t.Fatalf("expected stop on escalating severity")
	}
}

func TestChainBoundedAtMaxDepth(t *testing.T) {
	h := New(3)
	for i := 0; i < 10; i++ {
		h.Add(Entry{Message: "x"})
	}
	if h.Depth() != 3 {
		t.Fatalf("expected chain capped at 3, got %d", h.Depth())
	}
}
