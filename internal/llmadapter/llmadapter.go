// Package llmadapter defines the LLM adapter contract (spec §6) and the
// deterministic minimal-tweak fallback used when a reply carries nothing
// usable.
//
// Grounded on the teacher's internal/perception.LLMClient interface
// (Complete/CompleteWithSystem) adapted to this spec's (prompt, system) ->
// {text} shape, and on internal/autopoiesis/persistence.go's extractJSON
// helper style for fenced-code/JSON extraction.
package llmadapter

import (
	"context"
	"encoding/json"
	"regexp"
	"strings"
)

// Reply is the adapter's response contract.
type Reply struct {
	Text string
}

// Adapter is the external LLM transport contract. Only the request/reply
// shape is in scope; the transport itself is out of scope (spec §1).
type Adapter interface {
	Complete(ctx context.Context, prompt string, systemPrompt string) (Reply, error)
}

var fencedBlockRe = regexp.MustCompile("(?s)```[a-zA-Z0-9_+-]*\\n(.*?)```")

type patchPayload struct {
	PatchedCode string `json:"patched_code"`
}

// ExtractPatch pulls the proposed patch out of a free-form reply via (1) a
// fenced code block, (2) a {"patched_code": "..."} JSON object, else
// reports ok=false so the caller falls back to MinimalTweak (spec §6).
func ExtractPatch(reply string) (code string, ok bool) {
	if m := fencedBlockRe.FindStringSubmatch(reply); m != nil {
		return strings.TrimRight(m[1], "\n"), true
	}

	var payload patchPayload
	if err := json.Unmarshal([]byte(strings.TrimSpace(reply)), &payload); err == nil && payload.PatchedCode != "" {
		return payload.PatchedCode, true
	}

	// Reply may embed the JSON object within surrounding prose.
	if start := strings.Index(reply, "{"); start >= 0 {
		if end := strings.LastIndex(reply, "}"); end > start {
			candidate := reply[start : end+1]
			if err := json.Unmarshal([]byte(candidate), &payload); err == nil && payload.PatchedCode != "" {
				return payload.PatchedCode, true
			}
		}
	}

	return "", false
}

// MinimalTweak is the deterministic, conservative fallback transform
// applied when the LLM returns nothing usable (spec §4.9, glossary
// "Minimal tweak"). It never rewrites logic: it only balances brackets,
// inserts an obviously missing trailing comma/semicolon, and leaves
// everything else untouched.
func MinimalTweak(currentPatch string, errorMessage string) string {
	out := currentPatch
	out = balanceBrackets(out)
	out = fixTrailingCommaOrSemicolon(out, errorMessage)
	return out
}

// balanceBrackets appends whatever closing punctuation is needed to bring
// parens/braces/brackets back into balance, counting open vs close.
func balanceBrackets(s string) string {
	pairs := []struct{ open, close byte }{{'(', ')'}, {'{', '}'}, {'[', ']'}}
	var suffix []byte
	for _, p := range pairs {
		depth := 0
		for i := 0; i < len(s); i++ {
			switch s[i] {
			case p.open:
				depth++
			case p.close:
				depth--
			}
		}
		for depth > 0 {
			suffix = append(suffix, p.close)
			depth--
		}
	}
	if len(suffix) == 0 {
		return s
	}
	return s + string(suffix)
}

// fixTrailingCommaOrSemicolon handles the two most common "obvious"
// punctuation gaps a syntax checker's message hints at: a missing comma
// between object-literal entries, or a missing trailing semicolon on a
// simple declaration line.
func fixTrailingCommaOrSemicolon(s string, errorMessage string) string {
	lower := strings.ToLower(errorMessage)
	switch {
	case strings.Contains(lower, "comma"):
		lines := strings.Split(s, "\n")
		for i := 0; i < len(lines)-1; i++ {
			trimmed := strings.TrimRight(lines[i], " \t")
			if trimmed == "" {
				continue
			}
			last := trimmed[len(trimmed)-1]
			next := strings.TrimSpace(lines[i+1])
			if (last == '"' || last == '\'' || (last >= '0' && last <= '9')) && next != "" && next[0] != '}' && next[0] != ']' && last != ',' {
				lines[i] = trimmed + ","
			}
		}
		return strings.Join(lines, "\n")
	case strings.Contains(lower, "semicolon"):
		if !strings.HasSuffix(strings.TrimRight(s, " \t\n"), ";") && !strings.HasSuffix(strings.TrimRight(s, " \t\n"), "}") {
			return strings.TrimRight(s, " \t\n") + ";\n"
		}
	}
	return s
}
