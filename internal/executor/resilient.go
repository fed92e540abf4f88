package executor

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/fortify/bulkhead"
	"github.com/felixgeelhaar/fortify/retry"
)

// ResilientExecutor wraps an Executor with resilience patterns from fortify:
// a bulkhead bounds sandbox concurrency, and system faults (docker daemon
// hiccups, not user-code failures) are retried.
type ResilientExecutor struct {
	inner    Executor
	bulkhead bulkhead.Bulkhead[*Result]
	retrier  retry.Retry[*Result]
	logger   *slog.Logger
}

// ResilientConfig holds configuration for the resilient wrapper
type ResilientConfig struct {
	// MaxConcurrent bounds parallel sandbox executions (default: 4)
	MaxConcurrent int

	// QueueTimeout is how long a job may wait for a sandbox slot
	QueueTimeout time.Duration

	// Logger for resilience events
	Logger *slog.Logger
}

// NewResilientExecutor wraps inner with a bulkhead and retry
func NewResilientExecutor(inner Executor, cfg ResilientConfig) *ResilientExecutor {
	maxConcurrent := cfg.MaxConcurrent
	if maxConcurrent <= 0 {
		maxConcurrent = 4
	}
	queueTimeout := cfg.QueueTimeout
	if queueTimeout <= 0 {
		queueTimeout = 30 * time.Second
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return &ResilientExecutor{
		inner: inner,
		bulkhead: bulkhead.New[*Result](bulkhead.Config{
			MaxConcurrent: maxConcurrent,
			MaxQueue:      maxConcurrent * 4,
			QueueTimeout:  queueTimeout,
		}),
		retrier: retry.New[*Result](retry.Config{
			MaxAttempts:   2,
			InitialDelay:  500 * time.Millisecond,
			MaxDelay:      5 * time.Second,
			Multiplier:    2.0,
			BackoffPolicy: retry.BackoffExponential,
			Jitter:        true,
			IsRetryable:   isSystemFault,
		}),
		logger: logger,
	}
}

// Execute runs the request through the bulkhead, retrying system faults
func (e *ResilientExecutor) Execute(ctx context.Context, req Request) (*Result, error) {
	return e.retrier.Do(ctx, func(ctx context.Context) (*Result, error) {
		return e.bulkhead.Execute(ctx, func(ctx context.Context) (*Result, error) {
			return e.inner.Execute(ctx, req)
		})
	})
}

// isSystemFault reports whether the error came from the execution machinery
// rather than from the submitted code. Phase-tagged errors and context
// expiry are verdicts, not faults, and must not be retried.
func isSystemFault(err error) bool {
	if err == nil {
		return false
	}
	if _, tagged := ErrorPhase(err); tagged {
		return false
	}
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return false
	}
	return true
}
