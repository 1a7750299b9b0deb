package llmadapter

import "testing"

func TestExtractPatchFromFencedBlock(t *testing.T) {
	reply := "Here is the fix:\n```go\nfunc f() {}\n```\nDone."
	code, ok := ExtractPatch(reply)
	if !ok {
		t.Fatalf("expected extraction to succeed")
	}
	if code != "func f() {}" {
		t.Fatalf("unexpected extracted code: %q", code)
	}
}

func TestExtractPatchFromJSON(t *testing.T) {
	reply := `{"patched_code": "func g() {}"}`
	code, ok := ExtractPatch(reply)
	if !ok || code != "func g() {}" {
		t.Fatalf("expected JSON extraction, got %q ok=%v", code, ok)
	}
}

func TestExtractPatchFallsBackWhenNonPatch(t *testing.T) {
	_, ok := ExtractPatch("I am not sure how to fix this.")
	if ok {
		t.Fatalf("expected non-patch reply to report ok=false")
	}
}

func TestMinimalTweakBalancesBrackets(t *testing.T) {
	out := MinimalTweak("func f() {\n  if true {\n", "")
	opens, closes := 0, 0
	for _, r := range out {
		if r == '{' {
			opens++
		}
		if r == '}' {
			closes++
		}
	}
	if opens != closes {
		t.Fatalf("expected balanced braces, got %d open vs %d close in %q", opens, closes, out)
	}
}

func TestMinimalTweakNeverRewritesUnrelatedLogic(t *testing.T) {
	in := "x := compute(a, b, c)"
	out := MinimalTweak(in, "missing semicolon")
	if out == in {
		t.Fatalf("expected a semicolon to be appended")
	}
	if out[:len(in)] != in {
		t.Fatalf("minimal tweak must not alter the original content, only append: got %q", out)
	}
}
