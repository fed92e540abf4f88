package judge

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/codedrill/codedrill/internal/domain"
	"github.com/codedrill/codedrill/internal/executor"
	"github.com/codedrill/codedrill/internal/metrics"
)

// SubmissionStore is the persistence surface the judge needs for submissions
type SubmissionStore interface {
	CreateWithTask(ctx context.Context, sub *domain.Submission) (int64, error)
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Submission, error)
	Finalize(ctx context.Context, sub *domain.Submission) (bool, error)
}

// ProblemStore loads problems with their test cases
type ProblemStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.Problem, error)
}

// UserStore checks that the submitting user exists
type UserStore interface {
	GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error)
}

// TaskStore closes out judge tasks once their submission is terminal
type TaskStore interface {
	CompleteBySubmission(ctx context.Context, submissionID uuid.UUID) error
}

// StatsApplier folds a terminal submission into the denormalized statistics
type StatsApplier interface {
	Apply(ctx context.Context, sub *domain.Submission, problem *domain.Problem) error
}

// Service is the single entry point for submitting and judging code.
// Everything that moves a submission out of pending goes through Judge,
// whether the trigger was a queue delivery or a repair re-dispatch.
type Service struct {
	submissions SubmissionStore
	problems    ProblemStore
	users       UserStore
	tasks       TaskStore
	stats       StatsApplier
	executor    executor.Executor
	logger      *slog.Logger
}

// NewService creates a judge service
func NewService(
	submissions SubmissionStore,
	problems ProblemStore,
	users UserStore,
	tasks TaskStore,
	stats StatsApplier,
	exec executor.Executor,
	logger *slog.Logger,
) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		submissions: submissions,
		problems:    problems,
		users:       users,
		tasks:       tasks,
		stats:       stats,
		executor:    exec,
		logger:      logger,
	}
}

// Submit validates and persists a new submission in the pending state.
// The judge task is created in the same transaction, so the submission is
// guaranteed to be picked up even if this process dies immediately after.
func (s *Service) Submit(ctx context.Context, userID, problemID uuid.UUID, language, code string) (*domain.Submission, error) {
	if strings.TrimSpace(code) == "" {
		return nil, fmt.Errorf("%w: code is empty", domain.ErrInvalidInput)
	}
	if len(code) > domain.MaxCodeSize {
		return nil, fmt.Errorf("%w: code exceeds %d bytes", domain.ErrInvalidInput, domain.MaxCodeSize)
	}
	if _, err := executor.ParseLanguage(language); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	if _, err := s.users.GetByID(ctx, userID); err != nil {
		return nil, err
	}

	problem, err := s.problems.GetByID(ctx, problemID)
	if err != nil {
		return nil, err
	}
	if !problem.IsActive {
		return nil, domain.ErrProblemInactive
	}

	sub := &domain.Submission{
		ID:             uuid.New(),
		UserID:         userID,
		ProblemID:      problemID,
		Language:       language,
		Code:           code,
		Status:         domain.StatusPending,
		TotalTestCases: len(problem.TestCases),
		SubmittedAt:    time.Now().UTC(),
	}

	taskID, err := s.submissions.CreateWithTask(ctx, sub)
	if err != nil {
		return nil, err
	}

	metrics.SubmissionReceived(language)
	s.logger.Info("submission received",
		"submission_id", sub.ID,
		"task_id", taskID,
		"user_id", userID,
		"problem_id", problemID,
		"language", language,
	)
	return sub, nil
}

// Judge executes a pending submission and finalizes its verdict. It is
// safe to call any number of times for the same submission: once a verdict
// has landed, every later call is a no-op. Statistics are only applied by
// the call that actually moved the submission to terminal.
func (s *Service) Judge(ctx context.Context, submissionID uuid.UUID) error {
	start := time.Now()

	sub, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		return err
	}
	if sub.IsTerminal() {
		s.logger.Info("submission already judged, skipping",
			"submission_id", submissionID, "status", sub.Status)
		return s.tasks.CompleteBySubmission(ctx, submissionID)
	}

	problem, err := s.problems.GetByID(ctx, sub.ProblemID)
	if err != nil {
		return err
	}

	status, passedCount, runtimeMs, memoryKB, execErr := s.execute(ctx, sub, problem)
	if execErr != nil {
		// System fault: leave the submission pending for the repair loop
		return fmt.Errorf("execute submission %s: %w", sub.ID, execErr)
	}

	judgedAt := time.Now().UTC()
	sub.Status = status
	sub.TestCasesPassed = passedCount
	sub.TotalTestCases = len(problem.TestCases)
	sub.JudgedAt = &judgedAt
	if runtimeMs >= 0 {
		sub.RuntimeMs = &runtimeMs
	}
	if memoryKB >= 0 {
		sub.MemoryKB = &memoryKB
	}
	if status == domain.StatusAccepted {
		sub.Points = problem.Difficulty.Points()
	}

	newlyTerminal, err := s.submissions.Finalize(ctx, sub)
	if err != nil {
		return fmt.Errorf("finalize submission %s: %w", sub.ID, err)
	}

	if newlyTerminal {
		metrics.VerdictRecorded(status.String())
		metrics.JudgeCompleted(time.Since(start).Seconds())

		if err := s.stats.Apply(ctx, sub, problem); err != nil {
			// The verdict is already durable; stats are a rebuildable
			// cache, so log and move on rather than fail the delivery.
			s.logger.Error("failed to apply statistics",
				"submission_id", sub.ID, "error", err)
		}

		s.logger.Info("submission judged",
			"submission_id", sub.ID,
			"status", status,
			"passed", passedCount,
			"total", sub.TotalTestCases,
			"duration", time.Since(start),
		)
	} else {
		s.logger.Info("verdict already recorded by another judge",
			"submission_id", sub.ID)
	}

	return s.tasks.CompleteBySubmission(ctx, submissionID)
}

// FailPending records a runtime_error verdict for a submission whose judge
// task has exhausted its delivery budget. Without this a sandbox that
// faults on every attempt would leave the submission pending forever.
func (s *Service) FailPending(ctx context.Context, submissionID uuid.UUID, reason string) error {
	sub, err := s.submissions.GetByID(ctx, submissionID)
	if err != nil {
		return err
	}
	if sub.IsTerminal() {
		return s.tasks.CompleteBySubmission(ctx, submissionID)
	}

	problem, err := s.problems.GetByID(ctx, sub.ProblemID)
	if err != nil {
		return err
	}

	judgedAt := time.Now().UTC()
	sub.Status = domain.StatusRuntimeError
	sub.JudgedAt = &judgedAt

	newlyTerminal, err := s.submissions.Finalize(ctx, sub)
	if err != nil {
		return fmt.Errorf("finalize submission %s: %w", sub.ID, err)
	}

	if newlyTerminal {
		metrics.VerdictRecorded(sub.Status.String())
		if err := s.stats.Apply(ctx, sub, problem); err != nil {
			s.logger.Error("failed to apply statistics",
				"submission_id", sub.ID, "error", err)
		}
		s.logger.Warn("submission failed after repeated judge faults",
			"submission_id", sub.ID, "reason", reason)
	}

	return s.tasks.CompleteBySubmission(ctx, submissionID)
}

// RunOutcome is the result of a dry run against the sample test cases
type RunOutcome struct {
	Status          domain.SubmissionStatus
	TestCasesPassed int
	TotalTestCases  int
	RuntimeMs       int
	MemoryKB        int
	Cases           []RunCase
}

// RunCase is one sample case outcome, with actual output exposed
type RunCase struct {
	Input          string
	ExpectedOutput string
	ActualOutput   string
	Stderr         string
	Passed         bool
}

// Run executes code against a problem's visible sample cases without
// persisting anything. Hidden cases are never run here.
func (s *Service) Run(ctx context.Context, problemID uuid.UUID, language, code string) (*RunOutcome, error) {
	if strings.TrimSpace(code) == "" {
		return nil, fmt.Errorf("%w: code is empty", domain.ErrInvalidInput)
	}
	if _, err := executor.ParseLanguage(language); err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrInvalidInput, err)
	}

	problem, err := s.problems.GetByID(ctx, problemID)
	if err != nil {
		return nil, err
	}
	if !problem.IsActive {
		return nil, domain.ErrProblemInactive
	}

	samples := problem.SampleTestCases()
	req := executor.Request{
		Language:       language,
		Code:           code,
		TestCases:      toExecutorCases(samples),
		RuntimeLimitMs: problem.RuntimeLimitMs,
		MemoryLimitKB:  problem.MemoryLimitKB,
	}

	execCtx, cancel := context.WithTimeout(ctx, executionBudget(problem, len(samples)))
	defer cancel()

	result, err := s.executor.Execute(execCtx, req)
	if err != nil {
		if status, ok := ClassifyError(err); ok {
			return &RunOutcome{
				Status:         status,
				TotalTestCases: len(samples),
			}, nil
		}
		return nil, err
	}

	status, passed := Classify(result)
	outcome := &RunOutcome{
		Status:          status,
		TestCasesPassed: passed,
		TotalTestCases:  len(samples),
		RuntimeMs:       result.RuntimeMs,
		MemoryKB:        result.MemoryKB,
	}
	for i, c := range result.Cases {
		rc := RunCase{
			ActualOutput: c.ActualOutput,
			Stderr:       c.Stderr,
			Passed:       c.Passed,
		}
		if i < len(samples) {
			rc.Input = samples[i].Input
			rc.ExpectedOutput = samples[i].ExpectedOutput
		}
		outcome.Cases = append(outcome.Cases, rc)
	}
	return outcome, nil
}

// execute runs all test cases and classifies the result. The returned
// error is non-nil only for system faults; verdicts never error.
func (s *Service) execute(ctx context.Context, sub *domain.Submission, problem *domain.Problem) (domain.SubmissionStatus, int, int, int, error) {
	req := executor.Request{
		Language:       sub.Language,
		Code:           sub.Code,
		TestCases:      toExecutorCases(problem.TestCases),
		RuntimeLimitMs: problem.RuntimeLimitMs,
		MemoryLimitKB:  problem.MemoryLimitKB,
	}

	execCtx, cancel := context.WithTimeout(ctx, executionBudget(problem, len(problem.TestCases)))
	defer cancel()

	result, err := s.executor.Execute(execCtx, req)
	if err != nil {
		if status, ok := ClassifyError(err); ok {
			return status, 0, -1, -1, nil
		}
		return "", 0, -1, -1, err
	}

	status, passed := Classify(result)
	return status, passed, result.RuntimeMs, result.MemoryKB, nil
}

// executionBudget bounds a whole execution: per-case limit for every case
// plus slack for container setup and compilation.
func executionBudget(problem *domain.Problem, cases int) time.Duration {
	if cases < 1 {
		cases = 1
	}
	perCase := time.Duration(problem.RuntimeLimitMs) * time.Millisecond
	return perCase*time.Duration(cases) + 30*time.Second
}

func toExecutorCases(cases []domain.TestCase) []executor.TestCase {
	out := make([]executor.TestCase, len(cases))
	for i, tc := range cases {
		out[i] = executor.TestCase{
			Input:          tc.Input,
			ExpectedOutput: tc.ExpectedOutput,
		}
	}
	return out
}
