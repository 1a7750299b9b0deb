package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shaunpalmer/code-heals-itself-sub000/internal/breaker"
	"github.com/shaunpalmer/code-heals-itself-sub000/internal/cascade"
	"github.com/shaunpalmer/code-heals-itself-sub000/internal/config"
	"github.com/shaunpalmer/code-heals-itself-sub000/internal/errclass"
	"github.com/shaunpalmer/code-heals-itself-sub000/internal/memory"
	"github.com/shaunpalmer/code-heals-itself-sub000/internal/orchestrator"
	"github.com/shaunpalmer/code-heals-itself-sub000/internal/ratelimit"
	"github.com/shaunpalmer/code-heals-itself-sub000/internal/rebanker"
	"github.com/shaunpalmer/code-heals-itself-sub000/internal/sandbox"
)

var (
	runLanguage    string
	runErrorClass  string
	runRebankerBin string
	runTestCmd     string
	runMaxAttempts int
	runMemoryPath  string
)

// runCmd wires a single stdin-fed error+patch pair through one retry
// chain and prints the final envelope as canonical JSON. Equivalent in
// shape to the teacher's runDirectAction (cmd/nerd/cmd_direct_actions.go):
// one verb, one call into the underlying engine, result written to stdout.
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "run one patch through the retry chain, reading a JSON request from stdin",
	Long: `run reads a JSON request of the form

  {
    "error_class": "SYNTAX",
    "message": "unexpected token",
    "candidate_patch": "...",
    "original_code": "...",
    "logits": [2.1, 0.4, 0.2]
  }

from stdin, drives it through process_error/attempt_with_backoff, and
prints the final patch envelope as canonical JSON to stdout.`,
	RunE: runRun,
}

func init() {
	runCmd.Flags().StringVar(&runLanguage, "language", "go", "language of the candidate patch")
	runCmd.Flags().StringVar(&runErrorClass, "class", "", "override the request's error_class")
	runCmd.Flags().StringVar(&runRebankerBin, "rebanker-bin", "true", "re-banker checker binary to invoke")
	runCmd.Flags().StringVar(&runTestCmd, "test-cmd", "", "test runner command template (language-keyed; default: go test ./...)")
	runCmd.Flags().IntVar(&runMaxAttempts, "max-attempts", 0, "maximum retry attempts before forcing STOP (default: the selected policy's max_syntax_attempts/max_logic_attempts for the request's error class)")
	runCmd.Flags().StringVar(&runMemoryPath, "memory-file", "", "path to persist the memory buffer across invocations")
}

// request is the stdin payload's JSON shape.
type request struct {
	ErrorClass     string    `json:"error_class"`
	Message        string    `json:"message"`
	CandidatePatch string    `json:"candidate_patch"`
	OriginalCode   string    `json:"original_code"`
	Language       string    `json:"language"`
	Logits         []float64 `json:"logits"`
}

func runRun(cmd *cobra.Command, args []string) error {
	raw, err := io.ReadAll(os.Stdin)
	if err != nil {
		return fmt.Errorf("read stdin: %w", err)
	}
	var req request
	if err := json.Unmarshal(raw, &req); err != nil {
		return fmt.Errorf("parse request: %w", err)
	}

	class := errclass.Class(req.ErrorClass)
	if runErrorClass != "" {
		class = errclass.Class(runErrorClass)
	}
	if !class.Valid() {
		return fmt.Errorf("unrecognized error_class %q", req.ErrorClass)
	}
	language := req.Language
	if runLanguage != "" {
		language = runLanguage
	}

	policy, err := loadPolicy()
	if err != nil {
		return fmt.Errorf("load policy: %w", err)
	}

	session, err := buildSession(policy)
	if err != nil {
		return fmt.Errorf("build session: %w", err)
	}
	if runMemoryPath != "" {
		if err := session.Memory.Load(runMemoryPath); err != nil {
			fmt.Fprintf(os.Stderr, "warning: failed to load memory buffer: %v\n", err)
		}
		defer func() {
			if err := session.Memory.Save(runMemoryPath); err != nil {
				fmt.Fprintf(os.Stderr, "warning: failed to persist memory buffer: %v\n", err)
			}
		}()
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	in := orchestrator.Input{
		ErrorClass:     class,
		Message:        req.Message,
		CandidatePatch: req.CandidatePatch,
		OriginalCode:   req.OriginalCode,
		Language:       language,
		Logits:         req.Logits,
	}

	maxAttempts := runMaxAttempts
	if !cmd.Flags().Changed("max-attempts") {
		maxAttempts = maxAttemptsForClass(policy, class)
	}

	result, err := session.AttemptWithBackoff(ctx, in, orchestrator.RunOptions{MaxAttempts: maxAttempts})
	if err != nil && result.Envelope == nil {
		return fmt.Errorf("attempt_with_backoff: %w", err)
	}

	out, marshalErr := result.Envelope.CanonicalJSON()
	if marshalErr != nil {
		return fmt.Errorf("canonicalize envelope: %w", marshalErr)
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%s\n", out)

	if err != nil {
		fmt.Fprintf(os.Stderr, "final action %s reached with error: %v\n", result.FinalAction, err)
	}
	return nil
}

func loadPolicy() (config.Policy, error) {
	if policyPath != "" {
		return config.Load(policyPath)
	}
	return config.Preset(policyPreset), nil
}

// maxAttemptsForClass picks the per-class attempt budget (spec §6
// max_syntax_attempts / max_logic_attempts) the selected preset actually
// governs, so sota's tighter budget and local_small's looser one take
// effect instead of a fixed flag default.
func maxAttemptsForClass(policy config.Policy, class errclass.Class) int {
	if class.BudgetGroup() == errclass.Syntax {
		return policy.MaxSyntaxAttempts
	}
	return policy.MaxLogicAttempts
}

func buildSession(policy config.Policy) (*orchestrator.Session, error) {
	br := breaker.New(policy.BreakerPolicy())
	cs := cascade.New(policy.CascadeMaxDepth)
	mem := memory.New(memory.DefaultCapacity, memory.DefaultTTL)
	lim := ratelimit.New(policy.RateLimitPerMin)
	rb := rebanker.New(runRebankerBin)
	sb := sandbox.NewLocalExecutor([]string{"go", "npm", "pytest"}, testCommandFor)

	return orchestrator.NewSession(policy, br, cs, mem, lim, sb, rb), nil
}

// testCommandFor builds the test-runner argv for a language; overridden
// wholesale by --test-cmd when supplied (split on spaces).
func testCommandFor(language string) []string {
	if runTestCmd != "" {
		return splitCommand(runTestCmd)
	}
	switch language {
	case "go":
		return []string{"go", "test", "./..."}
	case "js", "javascript", "typescript":
		return []string{"npm", "test"}
	case "python":
		return []string{"pytest"}
	default:
		return nil
	}
}

func splitCommand(s string) []string {
	var out []string
	var cur []byte
	for i := 0; i < len(s); i++ {
		if s[i] == ' ' {
			if len(cur) > 0 {
				out = append(out, string(cur))
				cur = cur[:0]
			}
			continue
		}
		cur = append(cur, s[i])
	}
	if len(cur) > 0 {
		out = append(out, string(cur))
	}
	return out
}
