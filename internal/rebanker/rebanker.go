// Package rebanker implements the re-banker adapter (spec §4.7): invokes a
// language-specific syntax checker as an external subprocess and normalizes
// its output to the envelope's immutable diagnostic schema.
//
// Grounded on internal/regression/battery.go's runShell/exec.CommandContext
// pattern for subprocess invocation with a hard timeout, generalized from a
// fixed shell command to an arbitrary checker binary with stdin/file modes.
package rebanker

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/shaunpalmer/code-heals-itself-sub000/internal/envelope"
)

const hardTimeout = 5 * time.Second

// Mode selects how the checker receives its input (spec §4.7).
type Mode int

const (
	ModeRuntime Mode = iota // feed runtime error text on stdin
	ModeStatic              // pass a temp file path
)

// Adapter invokes one configured checker binary.
type Adapter struct {
	Binary string
	Args   []string // additional static args, e.g. "--quiet"
}

// New constructs an Adapter for the given checker binary.
func New(binary string, args ...string) *Adapter {
	return &Adapter{Binary: binary, Args: args}
}

// Invoke runs the checker under a 5s hard cap. On parse failure it
// synthesizes an UNPARSED diagnostic rather than crashing the core (spec
// §4.7, §7).
func (a *Adapter) Invoke(ctx context.Context, mode Mode, input string) (envelope.Diagnostic, error) {
	runCtx, cancel := context.WithTimeout(ctx, hardTimeout)
	defer cancel()

	var cmd *exec.Cmd
	var tmpPath string

	switch mode {
	case ModeRuntime:
		args := append(append([]string{}, a.Args...), "--stdin")
		cmd = exec.CommandContext(runCtx, a.Binary, args...)
		cmd.Stdin = strings.NewReader(input)
	case ModeStatic:
		f, err := os.CreateTemp("", "rebanker-*.tmp")
		if err != nil {
			return synthesizeUnparsed(fmt.Sprintf("rebanker: failed to create temp file: %v", err)), nil
		}
		tmpPath = f.Name()
		defer os.Remove(tmpPath)
		if _, err := f.WriteString(input); err != nil {
			f.Close()
			return synthesizeUnparsed(fmt.Sprintf("rebanker: failed to write temp file: %v", err)), nil
		}
		f.Close()
		args := append(append([]string{}, a.Args...), tmpPath, "--quiet")
		cmd = exec.CommandContext(runCtx, a.Binary, args...)
	}

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()

	if runCtx.Err() == context.DeadlineExceeded {
		return synthesizeUnparsed("rebanker: subprocess exceeded 5s timeout"), nil
	}

	out := strings.TrimSpace(stdout.String())
	if out == "" {
		if err != nil {
			// Internal error: stderr text becomes a synthetic diagnostic,
			// never a crash (spec §4.7).
			return synthesizeUnparsed(strings.TrimSpace(stderr.String())), nil
		}
		// Clean: no diagnostic (static mode success, or runtime mode no match).
		return envelope.Diagnostic{}, nil
	}

	var diag envelope.Diagnostic
	if jsonErr := json.Unmarshal([]byte(out), &diag); jsonErr != nil {
		return synthesizeUnparsed(out), nil
	}
	if diag.Severity == "" {
		diag.Severity = "error"
	}
	return diag, nil
}

// synthesizeUnparsed builds the synthetic UNPARSED diagnostic spec §4.7
// calls for on any parse failure.
func synthesizeUnparsed(rawText string) envelope.Diagnostic {
	return envelope.Diagnostic{
		Message:  rawText,
		Code:     "UNPARSED",
		Severity: "error",
	}
}

// IsEmpty reports whether d represents "no diagnostic" (a clean check).
func IsEmpty(d envelope.Diagnostic) bool {
	return d.Code == "" && d.Message == ""
}
