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

// ProblemRepository persists problems and their denormalized statistics
type ProblemRepository struct {
	pool *pgxpool.Pool
}

// NewProblemRepository creates a new PostgreSQL problem repository
func NewProblemRepository(pool *pgxpool.Pool) *ProblemRepository {
	return &ProblemRepository{pool: pool}
}

// Create inserts a problem together with its test cases
func (r *ProblemRepository) Create(ctx context.Context, problem *domain.Problem) error {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	query := `
		INSERT INTO problems (id, slug, title, statement, difficulty, category,
			runtime_limit_ms, memory_limit_kb, is_active, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)
	`
	_, err = tx.Exec(ctx, query,
		problem.ID, problem.Slug, problem.Title, problem.Statement,
		problem.Difficulty, problem.Category,
		problem.RuntimeLimitMs, problem.MemoryLimitKB, problem.IsActive,
		problem.CreatedAt, problem.UpdatedAt,
	)
	if err != nil {
		if isUniqueViolation(err) {
			return domain.ErrConflict
		}
		return err
	}

	for _, tc := range problem.TestCases {
		_, err = tx.Exec(ctx, `
			INSERT INTO problem_test_cases (id, problem_id, input, expected_output, hidden, weight, sort_order)
			VALUES ($1, $2, $3, $4, $5, $6, $7)
		`, tc.ID, problem.ID, tc.Input, tc.ExpectedOutput, tc.Hidden, tc.Weight, tc.SortOrder)
		if err != nil {
			return err
		}
	}

	return tx.Commit(ctx)
}

// GetByID retrieves a problem with its test cases
func (r *ProblemRepository) GetByID(ctx context.Context, id uuid.UUID) (*domain.Problem, error) {
	query := `
		SELECT id, slug, title, statement, difficulty, category,
			runtime_limit_ms, memory_limit_kb, is_active,
			total_submissions, accepted_submissions, acceptance_rate, solved_by,
			avg_runtime_ms, avg_memory_kb, created_at, updated_at
		FROM problems WHERE id = $1
	`
	problem, err := r.scanProblem(r.pool.QueryRow(ctx, query, id))
	if err != nil {
		return nil, err
	}

	if err := r.loadTestCases(ctx, problem); err != nil {
		return nil, err
	}
	return problem, nil
}

// List retrieves active problems, newest first
func (r *ProblemRepository) List(ctx context.Context, limit, offset int) ([]*domain.Problem, error) {
	query := `
		SELECT id, slug, title, statement, difficulty, category,
			runtime_limit_ms, memory_limit_kb, is_active,
			total_submissions, accepted_submissions, acceptance_rate, solved_by,
			avg_runtime_ms, avg_memory_kb, created_at, updated_at
		FROM problems WHERE is_active
		ORDER BY created_at DESC
		LIMIT $1 OFFSET $2
	`
	rows, err := r.pool.Query(ctx, query, limit, offset)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var problems []*domain.Problem
	for rows.Next() {
		problem, err := r.scanProblem(rows)
		if err != nil {
			return nil, err
		}
		problems = append(problems, problem)
	}
	return problems, rows.Err()
}

// Deactivate hides a problem from listings and blocks new submissions
func (r *ProblemRepository) Deactivate(ctx context.Context, id uuid.UUID) error {
	result, err := r.pool.Exec(ctx,
		`UPDATE problems SET is_active = FALSE, updated_at = now() WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrProblemNotFound
	}
	return nil
}

// ApplySubmissionStats folds one judged submission into a problem's
// aggregates in a single atomic statement. Concurrent judges for the same
// problem serialize on the row lock the UPDATE takes, so the counters and
// running means never see a torn read.
func (r *ProblemRepository) ApplySubmissionStats(ctx context.Context, problemID uuid.UUID, accepted, firstSolve bool, runtimeMs, memoryKB int) error {
	query := `
		UPDATE problems SET
			total_submissions    = total_submissions + 1,
			accepted_submissions = accepted_submissions + CASE WHEN $2 THEN 1 ELSE 0 END,
			solved_by            = solved_by + CASE WHEN $3 THEN 1 ELSE 0 END,
			acceptance_rate      = ROUND(((accepted_submissions + CASE WHEN $2 THEN 1 ELSE 0 END) * 100.0
			                         / (total_submissions + 1))::numeric),
			avg_runtime_ms       = (avg_runtime_ms * total_submissions + $4) / (total_submissions + 1),
			avg_memory_kb        = (avg_memory_kb * total_submissions + $5) / (total_submissions + 1),
			updated_at           = now()
		WHERE id = $1
	`
	result, err := r.pool.Exec(ctx, query, problemID, accepted, firstSolve, runtimeMs, memoryKB)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrProblemNotFound
	}
	return nil
}

// RecomputeStats rebuilds a problem's aggregates from the submissions
// table. The denormalized columns are a cache; this is the repair path.
func (r *ProblemRepository) RecomputeStats(ctx context.Context, problemID uuid.UUID) error {
	query := `
		UPDATE problems p SET
			total_submissions    = s.total,
			accepted_submissions = s.accepted,
			acceptance_rate      = CASE WHEN s.total = 0 THEN 0
			                       ELSE ROUND((s.accepted * 100.0 / s.total)::numeric) END,
			solved_by            = (SELECT COUNT(*) FROM user_solved_problems WHERE problem_id = p.id),
			avg_runtime_ms       = s.avg_runtime,
			avg_memory_kb        = s.avg_memory,
			updated_at           = now()
		FROM (
			SELECT COUNT(*) AS total,
				COUNT(*) FILTER (WHERE status = 'accepted') AS accepted,
				COALESCE(AVG(COALESCE(runtime_ms, 0)), 0) AS avg_runtime,
				COALESCE(AVG(COALESCE(memory_kb, 0)), 0) AS avg_memory
			FROM submissions
			WHERE problem_id = $1 AND status <> 'pending'
		) s
		WHERE p.id = $1
	`
	result, err := r.pool.Exec(ctx, query, problemID)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrProblemNotFound
	}
	return nil
}

func (r *ProblemRepository) loadTestCases(ctx context.Context, problem *domain.Problem) error {
	rows, err := r.pool.Query(ctx, `
		SELECT id, problem_id, input, expected_output, hidden, weight, sort_order
		FROM problem_test_cases
		WHERE problem_id = $1
		ORDER BY sort_order
	`, problem.ID)
	if err != nil {
		return err
	}
	defer rows.Close()

	for rows.Next() {
		var tc domain.TestCase
		if err := rows.Scan(&tc.ID, &tc.ProblemID, &tc.Input, &tc.ExpectedOutput,
			&tc.Hidden, &tc.Weight, &tc.SortOrder); err != nil {
			return err
		}
		problem.TestCases = append(problem.TestCases, tc)
	}
	return rows.Err()
}

func (r *ProblemRepository) scanProblem(row pgx.Row) (*domain.Problem, error) {
	var p domain.Problem
	err := row.Scan(
		&p.ID, &p.Slug, &p.Title, &p.Statement, &p.Difficulty, &p.Category,
		&p.RuntimeLimitMs, &p.MemoryLimitKB, &p.IsActive,
		&p.Stats.TotalSubmissions, &p.Stats.AcceptedSubmissions,
		&p.Stats.AcceptanceRate, &p.Stats.SolvedBy,
		&p.Stats.AvgRuntimeMs, &p.Stats.AvgMemoryKB,
		&p.CreatedAt, &p.UpdatedAt,
	)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, domain.ErrProblemNotFound
		}
		return nil, err
	}
	return &p, nil
}
