package judge

import (
	"errors"
	"testing"

	"github.com/codedrill/codedrill/internal/domain"
	"github.com/codedrill/codedrill/internal/executor"
)

func TestClassify(t *testing.T) {
	tests := []struct {
		name       string
		cases      []executor.CaseOutcome
		wantStatus domain.SubmissionStatus
		wantPassed int
	}{
		{
			name: "all passed",
			cases: []executor.CaseOutcome{
				{Passed: true}, {Passed: true}, {Passed: true},
			},
			wantStatus: domain.StatusAccepted,
			wantPassed: 3,
		},
		{
			name:       "no cases",
			cases:      nil,
			wantStatus: domain.StatusAccepted,
			wantPassed: 0,
		},
		{
			name: "wrong answer",
			cases: []executor.CaseOutcome{
				{Passed: true}, {Passed: false, ActualOutput: "41\n"},
			},
			wantStatus: domain.StatusWrongAnswer,
			wantPassed: 1,
		},
		{
			name: "timeout",
			cases: []executor.CaseOutcome{
				{Passed: false, TimedOut: true},
			},
			wantStatus: domain.StatusTimeLimitExceeded,
			wantPassed: 0,
		},
		{
			name: "memory exceeded",
			cases: []executor.CaseOutcome{
				{Passed: true}, {Passed: false, MemoryExceeded: true},
			},
			wantStatus: domain.StatusMemoryLimitExceeded,
			wantPassed: 1,
		},
		{
			name: "crash",
			cases: []executor.CaseOutcome{
				{Passed: false, Crashed: true, Stderr: "panic"},
			},
			wantStatus: domain.StatusRuntimeError,
			wantPassed: 0,
		},
		{
			name: "first failure wins over later failures",
			cases: []executor.CaseOutcome{
				{Passed: false, ActualOutput: "wrong"},
				{Passed: false, TimedOut: true},
				{Passed: true},
			},
			wantStatus: domain.StatusWrongAnswer,
			wantPassed: 1,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, passed := Classify(&executor.Result{Cases: tt.cases})
			if status != tt.wantStatus {
				t.Errorf("status = %s, want %s", status, tt.wantStatus)
			}
			if passed != tt.wantPassed {
				t.Errorf("passed = %d, want %d", passed, tt.wantPassed)
			}
		})
	}
}

func TestClassifyError(t *testing.T) {
	status, ok := ClassifyError(executor.CompileError(errors.New("syntax error")))
	if !ok || status != domain.StatusCompilationError {
		t.Errorf("compile error -> (%s, %v), want (compilation_error, true)", status, ok)
	}

	status, ok = ClassifyError(executor.RunError(errors.New("exec failed")))
	if !ok || status != domain.StatusRuntimeError {
		t.Errorf("run error -> (%s, %v), want (runtime_error, true)", status, ok)
	}

	if _, ok := ClassifyError(errors.New("docker daemon unreachable")); ok {
		t.Error("system fault must not classify to a verdict")
	}
}
