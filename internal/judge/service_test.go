package judge

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/google/uuid"

	"github.com/codedrill/codedrill/internal/domain"
	"github.com/codedrill/codedrill/internal/executor"
	"github.com/codedrill/codedrill/internal/queue"
)

type fakeSubmissionStore struct {
	subs map[uuid.UUID]*domain.Submission

	createErr    error
	finalizeErr  error
	finalizedIDs []uuid.UUID
}

func newFakeSubmissionStore() *fakeSubmissionStore {
	return &fakeSubmissionStore{subs: make(map[uuid.UUID]*domain.Submission)}
}

func (f *fakeSubmissionStore) CreateWithTask(ctx context.Context, sub *domain.Submission) (int64, error) {
	if f.createErr != nil {
		return 0, f.createErr
	}
	copied := *sub
	f.subs[sub.ID] = &copied
	return int64(len(f.subs)), nil
}

func (f *fakeSubmissionStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Submission, error) {
	sub, ok := f.subs[id]
	if !ok {
		return nil, domain.ErrSubmissionNotFound
	}
	copied := *sub
	return &copied, nil
}

func (f *fakeSubmissionStore) Finalize(ctx context.Context, sub *domain.Submission) (bool, error) {
	if f.finalizeErr != nil {
		return false, f.finalizeErr
	}
	stored, ok := f.subs[sub.ID]
	if !ok {
		return false, domain.ErrSubmissionNotFound
	}
	if stored.Status != domain.StatusPending {
		return false, nil
	}
	copied := *sub
	f.subs[sub.ID] = &copied
	f.finalizedIDs = append(f.finalizedIDs, sub.ID)
	return true, nil
}

type fakeProblemStore struct {
	problems map[uuid.UUID]*domain.Problem
}

func (f *fakeProblemStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.Problem, error) {
	p, ok := f.problems[id]
	if !ok {
		return nil, domain.ErrProblemNotFound
	}
	return p, nil
}

type fakeUserStore struct {
	users map[uuid.UUID]*domain.User
}

func (f *fakeUserStore) GetByID(ctx context.Context, id uuid.UUID) (*domain.User, error) {
	u, ok := f.users[id]
	if !ok {
		return nil, domain.ErrUserNotFound
	}
	return u, nil
}

type fakeTaskStore struct {
	completed []uuid.UUID
	requeued  []int64
}

func (f *fakeTaskStore) CompleteBySubmission(ctx context.Context, submissionID uuid.UUID) error {
	f.completed = append(f.completed, submissionID)
	return nil
}

func (f *fakeTaskStore) Requeue(ctx context.Context, taskID int64, lastError string) error {
	f.requeued = append(f.requeued, taskID)
	return nil
}

type fakeStats struct {
	applied []uuid.UUID
	err     error
}

func (f *fakeStats) Apply(ctx context.Context, sub *domain.Submission, problem *domain.Problem) error {
	f.applied = append(f.applied, sub.ID)
	return f.err
}

type stubExecutor struct {
	result *executor.Result
	err    error
	calls  int
}

func (s *stubExecutor) Execute(ctx context.Context, req executor.Request) (*executor.Result, error) {
	s.calls++
	return s.result, s.err
}

type fixture struct {
	svc      *Service
	subs     *fakeSubmissionStore
	problems *fakeProblemStore
	users    *fakeUserStore
	tasks    *fakeTaskStore
	stats    *fakeStats
	exec     *stubExecutor

	user    *domain.User
	problem *domain.Problem
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	user := &domain.User{ID: uuid.New(), Username: "gopher"}
	problem := &domain.Problem{
		ID:             uuid.New(),
		Difficulty:     domain.DifficultyMedium,
		IsActive:       true,
		RuntimeLimitMs: 1000,
		MemoryLimitKB:  64 * 1024,
		TestCases: []domain.TestCase{
			{Input: "1 2\n", ExpectedOutput: "3\n", Hidden: false},
			{Input: "5 7\n", ExpectedOutput: "12\n", Hidden: true},
		},
	}

	f := &fixture{
		subs:     newFakeSubmissionStore(),
		problems: &fakeProblemStore{problems: map[uuid.UUID]*domain.Problem{problem.ID: problem}},
		users:    &fakeUserStore{users: map[uuid.UUID]*domain.User{user.ID: user}},
		tasks:    &fakeTaskStore{},
		stats:    &fakeStats{},
		exec:     &stubExecutor{},
		user:     user,
		problem:  problem,
	}
	f.svc = NewService(f.subs, f.problems, f.users, f.tasks, f.stats, f.exec, nil)
	return f
}

func (f *fixture) submit(t *testing.T) *domain.Submission {
	t.Helper()
	sub, err := f.svc.Submit(context.Background(), f.user.ID, f.problem.ID, "python", "print(3)")
	if err != nil {
		t.Fatalf("Submit() error = %v", err)
	}
	return sub
}

func TestSubmit_CreatesPendingSubmission(t *testing.T) {
	f := newFixture(t)

	sub := f.submit(t)

	if sub.Status != domain.StatusPending {
		t.Errorf("status = %s, want pending", sub.Status)
	}
	if sub.TotalTestCases != 2 {
		t.Errorf("total test cases = %d, want 2", sub.TotalTestCases)
	}
	if _, err := f.subs.GetByID(context.Background(), sub.ID); err != nil {
		t.Errorf("submission not persisted: %v", err)
	}
}

func TestSubmit_Validation(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	tests := []struct {
		name      string
		userID    uuid.UUID
		problemID uuid.UUID
		language  string
		code      string
		wantErr   error
	}{
		{"empty code", f.user.ID, f.problem.ID, "python", "   ", domain.ErrInvalidInput},
		{"oversized code", f.user.ID, f.problem.ID, "python", strings.Repeat("x", domain.MaxCodeSize+1), domain.ErrInvalidInput},
		{"unknown language", f.user.ID, f.problem.ID, "cobol", "print(3)", domain.ErrInvalidInput},
		{"unknown user", uuid.New(), f.problem.ID, "python", "print(3)", domain.ErrUserNotFound},
		{"unknown problem", f.user.ID, uuid.New(), "python", "print(3)", domain.ErrProblemNotFound},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := f.svc.Submit(ctx, tt.userID, tt.problemID, tt.language, tt.code)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("Submit() error = %v, want %v", err, tt.wantErr)
			}
		})
	}
}

func TestSubmit_InactiveProblemRejected(t *testing.T) {
	f := newFixture(t)
	f.problem.IsActive = false

	_, err := f.svc.Submit(context.Background(), f.user.ID, f.problem.ID, "python", "print(3)")
	if !errors.Is(err, domain.ErrProblemInactive) {
		t.Errorf("Submit() error = %v, want ErrProblemInactive", err)
	}
}

func TestJudge_AcceptedAwardsPoints(t *testing.T) {
	f := newFixture(t)
	sub := f.submit(t)

	f.exec.result = &executor.Result{
		Cases:     []executor.CaseOutcome{{Passed: true}, {Passed: true}},
		RuntimeMs: 42,
		MemoryKB:  8192,
	}

	if err := f.svc.Judge(context.Background(), sub.ID); err != nil {
		t.Fatalf("Judge() error = %v", err)
	}

	judged, _ := f.subs.GetByID(context.Background(), sub.ID)
	if judged.Status != domain.StatusAccepted {
		t.Errorf("status = %s, want accepted", judged.Status)
	}
	if judged.Points != domain.DifficultyMedium.Points() {
		t.Errorf("points = %d, want %d", judged.Points, domain.DifficultyMedium.Points())
	}
	if judged.TestCasesPassed != 2 {
		t.Errorf("passed = %d, want 2", judged.TestCasesPassed)
	}
	if judged.RuntimeMs == nil || *judged.RuntimeMs != 42 {
		t.Errorf("runtime = %v, want 42", judged.RuntimeMs)
	}
	if judged.JudgedAt == nil {
		t.Error("judged_at not set")
	}
	if len(f.stats.applied) != 1 {
		t.Errorf("stats applied %d times, want 1", len(f.stats.applied))
	}
	if len(f.tasks.completed) != 1 {
		t.Errorf("task completed %d times, want 1", len(f.tasks.completed))
	}
}

func TestJudge_WrongAnswerAwardsNothing(t *testing.T) {
	f := newFixture(t)
	sub := f.submit(t)

	f.exec.result = &executor.Result{
		Cases: []executor.CaseOutcome{{Passed: true}, {Passed: false, ActualOutput: "13\n"}},
	}

	if err := f.svc.Judge(context.Background(), sub.ID); err != nil {
		t.Fatalf("Judge() error = %v", err)
	}

	judged, _ := f.subs.GetByID(context.Background(), sub.ID)
	if judged.Status != domain.StatusWrongAnswer {
		t.Errorf("status = %s, want wrong_answer", judged.Status)
	}
	if judged.Points != 0 {
		t.Errorf("points = %d, want 0", judged.Points)
	}
	if len(f.stats.applied) != 1 {
		t.Errorf("stats applied %d times, want 1", len(f.stats.applied))
	}
}

func TestJudge_CompileErrorIsVerdict(t *testing.T) {
	f := newFixture(t)
	sub := f.submit(t)

	f.exec.err = executor.CompileError(errors.New("SyntaxError: invalid syntax"))

	if err := f.svc.Judge(context.Background(), sub.ID); err != nil {
		t.Fatalf("Judge() error = %v", err)
	}

	judged, _ := f.subs.GetByID(context.Background(), sub.ID)
	if judged.Status != domain.StatusCompilationError {
		t.Errorf("status = %s, want compilation_error", judged.Status)
	}
	if judged.TestCasesPassed != 0 {
		t.Errorf("passed = %d, want 0", judged.TestCasesPassed)
	}
}

func TestJudge_SystemFaultLeavesPending(t *testing.T) {
	f := newFixture(t)
	sub := f.submit(t)

	f.exec.err = errors.New("docker daemon unreachable")

	if err := f.svc.Judge(context.Background(), sub.ID); err == nil {
		t.Fatal("expected error for system fault")
	}

	judged, _ := f.subs.GetByID(context.Background(), sub.ID)
	if judged.Status != domain.StatusPending {
		t.Errorf("status = %s, want pending after system fault", judged.Status)
	}
	if len(f.stats.applied) != 0 {
		t.Error("stats must not be applied after a failed judge")
	}
	if len(f.tasks.completed) != 0 {
		t.Error("task must not be completed after a failed judge")
	}
}

func TestJudge_SecondDeliveryIsNoOp(t *testing.T) {
	f := newFixture(t)
	sub := f.submit(t)

	f.exec.result = &executor.Result{
		Cases: []executor.CaseOutcome{{Passed: true}, {Passed: true}},
	}

	if err := f.svc.Judge(context.Background(), sub.ID); err != nil {
		t.Fatalf("first Judge() error = %v", err)
	}
	if err := f.svc.Judge(context.Background(), sub.ID); err != nil {
		t.Fatalf("second Judge() error = %v", err)
	}

	if f.exec.calls != 1 {
		t.Errorf("executor ran %d times, want 1", f.exec.calls)
	}
	if len(f.stats.applied) != 1 {
		t.Errorf("stats applied %d times, want exactly 1", len(f.stats.applied))
	}
	if len(f.subs.finalizedIDs) != 1 {
		t.Errorf("finalized %d times, want exactly 1", len(f.subs.finalizedIDs))
	}
}

func TestJudge_StatsFailureDoesNotFailDelivery(t *testing.T) {
	f := newFixture(t)
	sub := f.submit(t)

	f.exec.result = &executor.Result{Cases: []executor.CaseOutcome{{Passed: true}, {Passed: true}}}
	f.stats.err = errors.New("database unavailable")

	if err := f.svc.Judge(context.Background(), sub.ID); err != nil {
		t.Fatalf("Judge() error = %v, verdict durability must win over stats", err)
	}

	judged, _ := f.subs.GetByID(context.Background(), sub.ID)
	if judged.Status != domain.StatusAccepted {
		t.Errorf("status = %s, want accepted", judged.Status)
	}
}

func TestRun_OnlySampleCases(t *testing.T) {
	f := newFixture(t)

	f.exec.result = &executor.Result{
		Cases:     []executor.CaseOutcome{{Passed: true, ActualOutput: "3\n"}},
		RuntimeMs: 5,
	}

	outcome, err := f.svc.Run(context.Background(), f.problem.ID, "python", "print(3)")
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// One of the two cases is hidden
	if outcome.TotalTestCases != 1 {
		t.Errorf("total = %d, want 1 (hidden cases excluded)", outcome.TotalTestCases)
	}
	if outcome.Status != domain.StatusAccepted {
		t.Errorf("status = %s, want accepted", outcome.Status)
	}
	if len(outcome.Cases) != 1 || outcome.Cases[0].ActualOutput != "3\n" {
		t.Errorf("cases = %+v, want actual output exposed", outcome.Cases)
	}

	// Nothing persisted
	if len(f.subs.subs) != 0 {
		t.Error("dry run must not persist a submission")
	}
}

func TestQueueHandler(t *testing.T) {
	f := newFixture(t)
	sub := f.submit(t)
	f.exec.err = errors.New("docker daemon unreachable")

	handler := QueueHandler(f.svc, f.tasks)
	job := &queue.JudgeJob{TaskID: 9, SubmissionID: sub.ID, Attempt: 1}

	if err := handler(context.Background(), job); err == nil {
		t.Fatal("expected handler error on system fault")
	}
	if len(f.tasks.requeued) != 1 || f.tasks.requeued[0] != 9 {
		t.Errorf("requeued = %v, want [9]", f.tasks.requeued)
	}

	// Successful judge completes without requeue
	f.exec.err = nil
	f.exec.result = &executor.Result{Cases: []executor.CaseOutcome{{Passed: true}, {Passed: true}}}
	if err := handler(context.Background(), job); err != nil {
		t.Fatalf("handler error = %v", err)
	}
	if len(f.tasks.requeued) != 1 {
		t.Errorf("requeued = %v, success must not requeue", f.tasks.requeued)
	}
}

func TestQueueHandler_LastAttemptFailsSubmission(t *testing.T) {
	f := newFixture(t)
	sub := f.submit(t)
	f.exec.err = errors.New("docker daemon unreachable")

	handler := QueueHandler(f.svc, f.tasks)
	job := &queue.JudgeJob{TaskID: 9, SubmissionID: sub.ID, Attempt: domain.MaxTaskAttempts}

	if err := handler(context.Background(), job); err != nil {
		t.Fatalf("handler error = %v, exhausted attempts must not error", err)
	}
	if len(f.tasks.requeued) != 0 {
		t.Errorf("requeued = %v, exhausted attempts must not requeue", f.tasks.requeued)
	}

	got := f.subs.subs[sub.ID]
	if got.Status != domain.StatusRuntimeError {
		t.Errorf("status = %s, want runtime_error", got.Status)
	}
	if got.JudgedAt == nil {
		t.Error("judged_at not set")
	}
	if len(f.tasks.completed) != 1 {
		t.Errorf("completed tasks = %d, want 1", len(f.tasks.completed))
	}
	if len(f.stats.applied) != 1 {
		t.Errorf("stats applied %d times, want 1", len(f.stats.applied))
	}
}
