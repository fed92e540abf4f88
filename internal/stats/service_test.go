package stats

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/codedrill/codedrill/internal/domain"
)

type fakeUserStore struct {
	firstSolve bool
	err        error

	calls     int
	lastUser  uuid.UUID
	lastProb  uuid.UUID
	lastAccep bool
}

func (f *fakeUserStore) ApplyJudgedSubmission(ctx context.Context, userID, problemID uuid.UUID, accepted bool, difficulty domain.Difficulty, judgedAt time.Time) (bool, error) {
	f.calls++
	f.lastUser = userID
	f.lastProb = problemID
	f.lastAccep = accepted
	return f.firstSolve, f.err
}

type fakeProblemStore struct {
	err error

	calls          int
	lastAccepted   bool
	lastFirstSolve bool
	lastRuntime    int
	lastMemory     int
}

func (f *fakeProblemStore) ApplySubmissionStats(ctx context.Context, problemID uuid.UUID, accepted, firstSolve bool, runtimeMs, memoryKB int) error {
	f.calls++
	f.lastAccepted = accepted
	f.lastFirstSolve = firstSolve
	f.lastRuntime = runtimeMs
	f.lastMemory = memoryKB
	return f.err
}

func terminalSubmission(status domain.SubmissionStatus) *domain.Submission {
	runtime := 120
	memory := 4096
	judgedAt := time.Now()
	return &domain.Submission{
		ID:        uuid.New(),
		UserID:    uuid.New(),
		ProblemID: uuid.New(),
		Status:    status,
		RuntimeMs: &runtime,
		MemoryKB:  &memory,
		JudgedAt:  &judgedAt,
	}
}

func TestApply_FirstSolveFlowsToProblemSide(t *testing.T) {
	users := &fakeUserStore{firstSolve: true}
	problems := &fakeProblemStore{}
	svc := NewService(users, problems, nil)

	sub := terminalSubmission(domain.StatusAccepted)
	problem := &domain.Problem{ID: sub.ProblemID, Difficulty: domain.DifficultyHard}

	if err := svc.Apply(context.Background(), sub, problem); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if users.calls != 1 {
		t.Errorf("user store calls = %d, want 1", users.calls)
	}
	if problems.calls != 1 {
		t.Errorf("problem store calls = %d, want 1", problems.calls)
	}
	if !problems.lastFirstSolve {
		t.Error("first solve signal did not reach the problem side")
	}
	if !problems.lastAccepted {
		t.Error("accepted flag did not reach the problem side")
	}
	if problems.lastRuntime != 120 || problems.lastMemory != 4096 {
		t.Errorf("metrics = (%d, %d), want (120, 4096)",
			problems.lastRuntime, problems.lastMemory)
	}
}

func TestApply_RejectedSubmissionStillCounts(t *testing.T) {
	users := &fakeUserStore{firstSolve: false}
	problems := &fakeProblemStore{}
	svc := NewService(users, problems, nil)

	sub := terminalSubmission(domain.StatusWrongAnswer)
	problem := &domain.Problem{ID: sub.ProblemID, Difficulty: domain.DifficultyEasy}

	if err := svc.Apply(context.Background(), sub, problem); err != nil {
		t.Fatalf("Apply() error = %v", err)
	}

	if users.lastAccep {
		t.Error("wrong answer reported as accepted")
	}
	if problems.lastFirstSolve {
		t.Error("wrong answer reported as first solve")
	}
	if problems.calls != 1 {
		t.Errorf("problem store calls = %d, want 1", problems.calls)
	}
}

func TestApply_PendingSubmissionRejected(t *testing.T) {
	svc := NewService(&fakeUserStore{}, &fakeProblemStore{}, nil)

	sub := &domain.Submission{ID: uuid.New(), Status: domain.StatusPending}
	problem := &domain.Problem{Difficulty: domain.DifficultyEasy}

	if err := svc.Apply(context.Background(), sub, problem); err == nil {
		t.Fatal("expected error for pending submission")
	}
}

func TestApply_UserSideFailureStopsProblemSide(t *testing.T) {
	users := &fakeUserStore{err: errors.New("connection reset")}
	problems := &fakeProblemStore{}
	svc := NewService(users, problems, nil)

	sub := terminalSubmission(domain.StatusAccepted)
	problem := &domain.Problem{ID: sub.ProblemID, Difficulty: domain.DifficultyMedium}

	if err := svc.Apply(context.Background(), sub, problem); err == nil {
		t.Fatal("expected error when user side fails")
	}
	if problems.calls != 0 {
		t.Errorf("problem store calls = %d, want 0 after user-side failure", problems.calls)
	}
	if users.calls < 2 {
		t.Errorf("user store calls = %d, want retries on transient failure", users.calls)
	}
}
