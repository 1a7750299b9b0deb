package rebanker

import (
	"context"
	"testing"
	"time"
)

func TestInvokeCleanExitProducesNoDiagnostic(t *testing.T) {
	a := New("true")
	diag, err := a.Invoke(context.Background(), ModeRuntime, "")
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if !IsEmpty(diag) {
		t.Fatalf("expected empty diagnostic for a clean exit, got %+v", diag)
	}
}

func TestInvokeUnparsableOutputSynthesizesUnparsed(t *testing.T) {
	a := New("echo", "not json at all")
	diag, err := a.Invoke(context.Background(), ModeRuntime, "")
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if diag.Code != "UNPARSED" {
		t.Fatalf("expected UNPARSED synthetic diagnostic, got %+v", diag)
	}
}

func TestInvokeTimeoutSynthesizesUnparsed(t *testing.T) {
	// "exec" keeps sleep as the killed process, so no child holds the
	// output pipe open after the deadline.
	a := New("sh", "-c", "exec sleep 10")
	ctx, cancel := context.WithTimeout(context.Background(), 100*time.Millisecond)
	defer cancel()
	diag, err := a.Invoke(ctx, ModeRuntime, "")
	if err != nil {
		t.Fatalf("Invoke: %v", err)
	}
	if diag.Code != "UNPARSED" {
		t.Fatalf("expected UNPARSED diagnostic on timeout, got %+v", diag)
	}
}
