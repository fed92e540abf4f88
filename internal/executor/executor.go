package executor

import (
	"context"
	"errors"
	"fmt"
)

// Executor runs untrusted code against a problem's test cases. The judge
// treats it as a collaborator: any error it returns is mapped to a terminal
// verdict, never propagated to the submitter.
type Executor interface {
	Execute(ctx context.Context, req Request) (*Result, error)
}

// Request describes one execution: the code, the cases to run it against,
// and the resource budget per case.
type Request struct {
	Language       string
	Code           string
	TestCases      []TestCase
	RuntimeLimitMs int
	MemoryLimitKB  int
}

// TestCase is an input and the output the code is expected to produce
type TestCase struct {
	Input          string
	ExpectedOutput string
}

// Result holds the per-case outcomes plus the totals the judge persists
type Result struct {
	Cases     []CaseOutcome
	RuntimeMs int // slowest case
	MemoryKB  int // peak across cases
}

// CaseOutcome is the verdict for a single test case
type CaseOutcome struct {
	Passed         bool
	ActualOutput   string
	Stderr         string
	RuntimeMs      int
	MemoryKB       int
	TimedOut       bool
	MemoryExceeded bool
	Crashed        bool
}

// Phase tags where an execution error happened, so the judge can tell a
// compilation failure from a runtime fault.
type Phase string

const (
	PhaseCompile Phase = "compile"
	PhaseRun     Phase = "run"
)

// PhaseError wraps an execution error with the phase it occurred in
type PhaseError struct {
	Phase Phase
	Err   error
}

func (e *PhaseError) Error() string {
	return fmt.Sprintf("%s: %v", e.Phase, e.Err)
}

func (e *PhaseError) Unwrap() error {
	return e.Err
}

// CompileError wraps err as a compile-phase failure
func CompileError(err error) error {
	return &PhaseError{Phase: PhaseCompile, Err: err}
}

// RunError wraps err as a run-phase failure
func RunError(err error) error {
	return &PhaseError{Phase: PhaseRun, Err: err}
}

// ErrorPhase extracts the phase from an execution error. The second return
// is false when the error carries no phase (a system fault).
func ErrorPhase(err error) (Phase, bool) {
	var pe *PhaseError
	if errors.As(err, &pe) {
		return pe.Phase, true
	}
	return "", false
}
