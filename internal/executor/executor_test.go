package executor

import (
	"context"
	"errors"
	"testing"
)

func TestErrorPhase(t *testing.T) {
	tests := []struct {
		name      string
		err       error
		wantPhase Phase
		wantOK    bool
	}{
		{"compile error", CompileError(errors.New("syntax error")), PhaseCompile, true},
		{"run error", RunError(errors.New("segfault")), PhaseRun, true},
		{"wrapped compile error", errors.Join(errors.New("outer"), CompileError(errors.New("inner"))), PhaseCompile, true},
		{"plain error", errors.New("docker gone"), "", false},
		{"nil", nil, "", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			phase, ok := ErrorPhase(tt.err)
			if ok != tt.wantOK || phase != tt.wantPhase {
				t.Errorf("ErrorPhase() = (%q, %v), want (%q, %v)", phase, ok, tt.wantPhase, tt.wantOK)
			}
		})
	}
}

func TestNormalizeOutput(t *testing.T) {
	tests := []struct {
		name string
		a    string
		b    string
		same bool
	}{
		{"identical", "42\n", "42\n", true},
		{"trailing newline", "42", "42\n", true},
		{"trailing spaces per line", "1 2  \n3 4", "1 2\n3 4\n", true},
		{"crlf", "1\r\n2\r\n", "1\n2\n", true},
		{"different values", "42", "43", false},
		{"leading whitespace matters", " 42", "42", false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := normalizeOutput(tt.a) == normalizeOutput(tt.b); got != tt.same {
				t.Errorf("normalized equality = %v, want %v", got, tt.same)
			}
		})
	}
}

func TestDemuxOutput(t *testing.T) {
	// stdout frame: "ok\n", stderr frame: "bad"
	frame := func(streamType byte, payload string) []byte {
		header := []byte{streamType, 0, 0, 0, 0, 0, 0, byte(len(payload))}
		return append(header, payload...)
	}

	data := append(frame(1, "ok\n"), frame(2, "bad")...)
	stdout, stderr := demuxOutput(data)

	if stdout != "ok\n" {
		t.Errorf("stdout = %q, want %q", stdout, "ok\n")
	}
	if stderr != "bad" {
		t.Errorf("stderr = %q, want %q", stderr, "bad")
	}
}

func TestIsSystemFault(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"compile error is a verdict", CompileError(errors.New("bad code")), false},
		{"run error is a verdict", RunError(errors.New("crash")), false},
		{"deadline is a verdict", context.DeadlineExceeded, false},
		{"cancellation is not retryable", context.Canceled, false},
		{"daemon error is a fault", errors.New("connection refused"), true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := isSystemFault(tt.err); got != tt.want {
				t.Errorf("isSystemFault() = %v, want %v", got, tt.want)
			}
		})
	}
}

// stubExecutor returns canned results, used to exercise the wrapper.
type stubExecutor struct {
	result *Result
	err    error
	calls  int
}

func (s *stubExecutor) Execute(ctx context.Context, req Request) (*Result, error) {
	s.calls++
	return s.result, s.err
}

func TestResilientExecutor_PassesThrough(t *testing.T) {
	stub := &stubExecutor{result: &Result{RuntimeMs: 12}}
	re := NewResilientExecutor(stub, ResilientConfig{MaxConcurrent: 1})

	res, err := re.Execute(context.Background(), Request{Language: "python"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if res.RuntimeMs != 12 {
		t.Errorf("RuntimeMs = %d, want 12", res.RuntimeMs)
	}
	if stub.calls != 1 {
		t.Errorf("calls = %d, want 1", stub.calls)
	}
}

func TestResilientExecutor_NoRetryOnVerdict(t *testing.T) {
	stub := &stubExecutor{err: CompileError(errors.New("syntax error"))}
	re := NewResilientExecutor(stub, ResilientConfig{MaxConcurrent: 1})

	_, err := re.Execute(context.Background(), Request{Language: "python"})
	if err == nil {
		t.Fatal("expected error")
	}
	if phase, ok := ErrorPhase(err); !ok || phase != PhaseCompile {
		t.Errorf("phase = (%q, %v), want compile", phase, ok)
	}
	if stub.calls != 1 {
		t.Errorf("calls = %d, want 1 (verdicts must not be retried)", stub.calls)
	}
}
