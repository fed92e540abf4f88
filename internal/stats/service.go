package stats

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/felixgeelhaar/fortify/retry"
	"github.com/google/uuid"

	"github.com/codedrill/codedrill/internal/domain"
)

// UserStore applies one judged submission to a user's statistics and
// reports whether it was the user's first accepted solve of the problem.
type UserStore interface {
	ApplyJudgedSubmission(ctx context.Context, userID, problemID uuid.UUID, accepted bool, difficulty domain.Difficulty, judgedAt time.Time) (bool, error)
}

// ProblemStore applies one judged submission to a problem's aggregates.
type ProblemStore interface {
	ApplySubmissionStats(ctx context.Context, problemID uuid.UUID, accepted, firstSolve bool, runtimeMs, memoryKB int) error
}

// Service updates the denormalized user and problem statistics after a
// submission reaches a terminal state. The caller guarantees it invokes
// Apply at most once per submission (the guarded finalize provides that),
// so every counter here moves exactly once per verdict.
type Service struct {
	users    UserStore
	problems ProblemStore
	retrier  retry.Retry[struct{}]
	logger   *slog.Logger
}

// NewService creates a stats service
func NewService(users UserStore, problems ProblemStore, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		users:    users,
		problems: problems,
		retrier: retry.New[struct{}](retry.Config{
			MaxAttempts:   3,
			InitialDelay:  100 * time.Millisecond,
			MaxDelay:      2 * time.Second,
			Multiplier:    2.0,
			BackoffPolicy: retry.BackoffExponential,
			Jitter:        true,
		}),
		logger: logger,
	}
}

// Apply folds a terminal submission into the user's and the problem's
// statistics. The user side runs first because it decides first-solve,
// which the problem side needs for its solved-by counter. Each side is a
// short transaction of its own: a partial failure leaves numbers that the
// recompute path can repair, never a wrong verdict.
func (s *Service) Apply(ctx context.Context, sub *domain.Submission, problem *domain.Problem) error {
	if !sub.Status.IsTerminal() {
		return fmt.Errorf("apply stats for non-terminal submission %s", sub.ID)
	}

	runtimeMs := 0
	if sub.RuntimeMs != nil {
		runtimeMs = *sub.RuntimeMs
	}
	memoryKB := 0
	if sub.MemoryKB != nil {
		memoryKB = *sub.MemoryKB
	}
	judgedAt := time.Now()
	if sub.JudgedAt != nil {
		judgedAt = *sub.JudgedAt
	}

	var firstSolve bool
	_, err := s.retrier.Do(ctx, func(ctx context.Context) (struct{}, error) {
		var err error
		firstSolve, err = s.users.ApplyJudgedSubmission(ctx, sub.UserID, sub.ProblemID,
			sub.Accepted(), problem.Difficulty, judgedAt)
		return struct{}{}, err
	})
	if err != nil {
		return fmt.Errorf("apply user stats: %w", err)
	}

	_, err = s.retrier.Do(ctx, func(ctx context.Context) (struct{}, error) {
		return struct{}{}, s.problems.ApplySubmissionStats(ctx, sub.ProblemID,
			sub.Accepted(), firstSolve, runtimeMs, memoryKB)
	})
	if err != nil {
		return fmt.Errorf("apply problem stats: %w", err)
	}

	s.logger.Info("statistics updated",
		"submission_id", sub.ID,
		"user_id", sub.UserID,
		"problem_id", sub.ProblemID,
		"status", sub.Status,
		"first_solve", firstSolve,
	)
	return nil
}
