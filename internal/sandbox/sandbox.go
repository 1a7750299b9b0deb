// Package sandbox defines the sandbox executor contract (spec §4.6) and a
// local direct-execution implementation. The sandbox is explicitly an
// opaque external interface in scope terms; the core only depends on the
// Executor interface, never a concrete implementation's internals.
//
// Grounded on the teacher's internal/tactile/types.go
// (Command/ExecutionResult/ResourceUsage shapes, renamed to this domain)
// and internal/tactile/executor.go's exec.CommandContext + context-timeout
// pattern for the local implementation.
package sandbox

import (
	"bytes"
	"context"
	"os/exec"
	"time"
)

// ResourceCaps are policy-driven limits the executor enforces.
type ResourceCaps struct {
	MaxExecutionTime time.Duration
	MaxMemoryMb      float64
	MaxCPUPercent    float64
}

// Request is the input contract: given a candidate patch, run it and
// report back.
type Request struct {
	PatchID      string
	Language     string
	PatchedCode  string
	OriginalCode string
	Caps         ResourceCaps
}

// ResourceUsage mirrors envelope.ResourceUsage; duplicated here so this
// package has no dependency on envelope (the orchestrator copies between
// the two leaf shapes).
type ResourceUsage struct {
	ExecutionTimeMs int64
	MemoryUsedMb    float64
	CPUUsedPercent  float64
}

// Result is the sandbox's synchronous or asynchronous response (spec
// §4.6). Any executor throw or timeout must be translated by the caller
// (or, for the local executor, internally) into Success=false with a
// synthetic ErrorMessage — never propagated as a Go error across this
// boundary.
type Result struct {
	Success       bool
	ErrorMessage  string
	TestResults   []string
	ResourceUsage ResourceUsage
	LimitsHit     []string
}

// Executor is the opaque contract the orchestrator depends on.
type Executor interface {
	Execute(ctx context.Context, req Request) Result
}

// LocalExecutor runs the candidate through an external command (e.g. a
// test runner) on the host, honoring an allowlist exactly like the
// teacher's SafeExecutor (internal/tactile/executor.go).
type LocalExecutor struct {
	AllowedBinaries map[string]bool
	Command         func(language string) []string // builds the test-runner argv for a language
}

// NewLocalExecutor constructs a LocalExecutor with the given allowlist and
// per-language command builder.
func NewLocalExecutor(allowed []string, command func(language string) []string) *LocalExecutor {
	m := make(map[string]bool, len(allowed))
	for _, b := range allowed {
		m[b] = true
	}
	return &LocalExecutor{AllowedBinaries: m, Command: command}
}

// Execute runs the configured command under a context timeout derived
// from req.Caps.MaxExecutionTime, translating any failure mode into a
// Result rather than an error (spec §4.6 "any throw or timeout → success=false").
func (e *LocalExecutor) Execute(ctx context.Context, req Request) Result {
	start := time.Now()

	argv := e.Command(req.Language)
	if len(argv) == 0 {
		return Result{Success: false, ErrorMessage: "sandbox: no command configured for language " + req.Language}
	}
	if !e.AllowedBinaries[argv[0]] {
		return Result{Success: false, ErrorMessage: "sandbox: binary not in allowlist: " + argv[0]}
	}

	timeout := req.Caps.MaxExecutionTime
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	runCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(runCtx, argv[0], argv[1:]...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	runErr := cmd.Run()
	elapsed := time.Since(start)

	usage := ResourceUsage{ExecutionTimeMs: elapsed.Milliseconds()}

	var limitsHit []string
	if runCtx.Err() == context.DeadlineExceeded {
		limitsHit = append(limitsHit, "execution_time")
		return Result{
			Success:       false,
			ErrorMessage:  "sandbox: execution exceeded time cap",
			ResourceUsage: usage,
			LimitsHit:     limitsHit,
		}
	}

	if runErr != nil {
		return Result{
			Success:       false,
			ErrorMessage:  stderr.String(),
			ResourceUsage: usage,
		}
	}

	return Result{
		Success:       true,
		TestResults:   []string{stdout.String()},
		ResourceUsage: usage,
	}
}
