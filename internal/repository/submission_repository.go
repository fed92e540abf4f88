package repository

import (
	"context"
	"errors"
	"fmt"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/codedrill/codedrill/internal/domain"
)

// SubmissionRepository persists submissions and their judge tasks
type SubmissionRepository struct {
	pool *pgxpool.Pool
}

// NewSubmissionRepository creates a new PostgreSQL submission repository
func NewSubmissionRepository(pool *pgxpool.Pool) *SubmissionRepository {
	return &SubmissionRepository{pool: pool}
}

// CreateWithTask inserts the submission and its judge task in one
// transaction. Either both rows exist or neither does: a crash after
// intake can never leave a pending submission without a task backing it.
func (r *SubmissionRepository) CreateWithTask(ctx context.Context, sub *domain.Submission) (int64, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return 0, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	_, err = tx.Exec(ctx, `
		INSERT INTO submissions (id, user_id, problem_id, language, code, status,
			total_test_cases, submitted_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
	`, sub.ID, sub.UserID, sub.ProblemID, sub.Language, sub.Code,
		sub.Status, sub.TotalTestCases, sub.SubmittedAt)
	if err != nil {
		return 0, err
	}

	var taskID int64
	err = tx.QueryRow(ctx, `
		INSERT INTO judge_tasks (submission_id) VALUES ($1)
		RETURNING id
	`, sub.ID).Scan(&taskID)
	if err != nil {
		return 0, err
	}

	return taskID, tx.Commit(ctx)
}

// GetByID retrieves a submission
func (r *SubmissionRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Submission, error) {
	query := selectSubmission + ` WHERE id = $1`
	return scanSubmission(r.pool.QueryRow(ctx, query, id))
}

// ListByUser retrieves a user's submissions, most recent first
func (r *SubmissionRepository) ListByUser(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*domain.Submission, error) {
	query := selectSubmission + `
		WHERE user_id = $1
		ORDER BY submitted_at DESC
		LIMIT $2 OFFSET $3
	`
	return r.list(ctx, query, userID, limit, offset)
}

// ListByProblem retrieves a problem's submissions, most recent first
func (r *SubmissionRepository) ListByProblem(ctx context.Context, problemID uuid.UUID, limit, offset int) ([]*domain.Submission, error) {
	query := selectSubmission + `
		WHERE problem_id = $1
		ORDER BY submitted_at DESC
		LIMIT $2 OFFSET $3
	`
	return r.list(ctx, query, problemID, limit, offset)
}

// Finalize moves a pending submission to its terminal state. The status
// guard makes the transition idempotent: only the first judge to land
// writes a verdict, every later attempt sees zero rows affected and
// reports false.
func (r *SubmissionRepository) Finalize(ctx context.Context, sub *domain.Submission) (bool, error) {
	if !sub.Status.IsTerminal() {
		return false, fmt.Errorf("finalize with non-terminal status %q", sub.Status)
	}

	result, err := r.pool.Exec(ctx, `
		UPDATE submissions SET
			status            = $2,
			test_cases_passed = $3,
			total_test_cases  = $4,
			runtime_ms        = $5,
			memory_kb         = $6,
			points            = $7,
			judged_at         = $8
		WHERE id = $1 AND status = 'pending'
	`, sub.ID, sub.Status, sub.TestCasesPassed, sub.TotalTestCases,
		sub.RuntimeMs, sub.MemoryKB, sub.Points, sub.JudgedAt)
	if err != nil {
		return false, err
	}
	return result.RowsAffected() > 0, nil
}

func (r *SubmissionRepository) list(ctx context.Context, query string, args ...any) ([]*domain.Submission, error) {
	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var subs []*domain.Submission
	for rows.Next() {
		sub, err := scanSubmission(rows)
		if err != nil {
			return nil, err
		}
		subs = append(subs, sub)
	}
	return subs, rows.Err()
}

const selectSubmission = `
	SELECT id, user_id, problem_id, language, code, status,
		test_cases_passed, total_test_cases, runtime_ms, memory_kb,
		points, submitted_at, judged_at
	FROM submissions
`

func scanSubmission(row pgx.Row) (*domain.Submission, error) {
	var s domain.Submission
	err := row.Scan(
		&s.ID, &s.UserID, &s.ProblemID, &s.Language, &s.Code, &s.Status,
		&s.TestCasesPassed, &s.TotalTestCases, &s.RuntimeMs, &s.MemoryKB,
		&s.Points, &s.SubmittedAt, &s.JudgedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrSubmissionNotFound
		}
		return nil, err
	}
	return &s, nil
}
