package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/codedrill/codedrill/internal/domain"
)

// TaskRepository persists judge tasks. The judge_tasks table is the
// durable source of truth for delivery: the broker only carries hints,
// and every state transition here survives a process crash.
type TaskRepository struct {
	pool *pgxpool.Pool
}

// NewTaskRepository creates a new PostgreSQL task repository
func NewTaskRepository(pool *pgxpool.Pool) *TaskRepository {
	return &TaskRepository{pool: pool}
}

// ClaimQueued atomically claims up to limit due tasks for dispatch.
// FOR UPDATE SKIP LOCKED lets several dispatcher replicas claim disjoint
// batches without blocking each other. Claimed tasks move to dispatched
// with their attempt counter bumped; if publishing later fails, the
// repair loop returns them to queued.
func (r *TaskRepository) ClaimQueued(ctx context.Context, limit int) ([]*domain.JudgeTask, error) {
	tx, err := r.pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback(ctx)

	rows, err := tx.Query(ctx, `
		SELECT id, submission_id, status, attempts, last_error,
			next_attempt_at, dispatched_at, created_at, updated_at
		FROM judge_tasks
		WHERE status = 'queued' AND next_attempt_at <= now()
		ORDER BY id
		LIMIT $1
		FOR UPDATE SKIP LOCKED
	`, limit)
	if err != nil {
		return nil, err
	}

	var tasks []*domain.JudgeTask
	for rows.Next() {
		var t domain.JudgeTask
		if err := rows.Scan(&t.ID, &t.SubmissionID, &t.Status, &t.Attempts,
			&t.LastError, &t.NextAttemptAt, &t.DispatchedAt, &t.CreatedAt, &t.UpdatedAt); err != nil {
			rows.Close()
			return nil, err
		}
		tasks = append(tasks, &t)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	if len(tasks) == 0 {
		return nil, tx.Commit(ctx)
	}

	ids := make([]int64, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}

	_, err = tx.Exec(ctx, `
		UPDATE judge_tasks SET
			status        = 'dispatched',
			attempts      = attempts + 1,
			dispatched_at = now(),
			updated_at    = now()
		WHERE id = ANY($1)
	`, ids)
	if err != nil {
		return nil, err
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, err
	}

	now := time.Now()
	for _, t := range tasks {
		t.Status = domain.TaskStatusDispatched
		t.Attempts++
		t.DispatchedAt = &now
	}
	return tasks, nil
}

// Requeue returns a dispatched task to queued after a failed delivery or
// judge attempt. The next attempt is delayed by an exponential backoff on
// the attempt count, capped at five minutes. Once the attempt budget is
// spent the task goes to failed instead.
func (r *TaskRepository) Requeue(ctx context.Context, taskID int64, lastError string) error {
	result, err := r.pool.Exec(ctx, `
		UPDATE judge_tasks SET
			status          = CASE WHEN attempts >= $3 THEN 'failed' ELSE 'queued' END,
			last_error      = $2,
			next_attempt_at = now() + make_interval(secs => LEAST(POWER(2, attempts), 300)),
			updated_at      = now()
		WHERE id = $1 AND status = 'dispatched'
	`, taskID, lastError, domain.MaxTaskAttempts)
	if err != nil {
		return err
	}
	if result.RowsAffected() == 0 {
		return domain.ErrTaskNotFound
	}
	return nil
}

// CompleteBySubmission marks the task for a submission done. Workers know
// the submission they judged even when the task id in the message is
// stale, so this is keyed on submission_id.
func (r *TaskRepository) CompleteBySubmission(ctx context.Context, submissionID uuid.UUID) error {
	_, err := r.pool.Exec(ctx, `
		UPDATE judge_tasks SET status = 'done', updated_at = now()
		WHERE submission_id = $1 AND status <> 'done'
	`, submissionID)
	return err
}

// ReturnStale is the repair pass. Dispatched tasks whose submission is
// already terminal are closed out; dispatched tasks whose submission is
// still pending after the visibility timeout are assumed lost and go back
// to queued (or failed, once out of attempts). Returns how many tasks
// were returned to the queue.
func (r *TaskRepository) ReturnStale(ctx context.Context, visibilityTimeout time.Duration) (int, error) {
	// Close tasks whose work actually finished
	_, err := r.pool.Exec(ctx, `
		UPDATE judge_tasks t SET status = 'done', updated_at = now()
		FROM submissions s
		WHERE s.id = t.submission_id
		  AND t.status = 'dispatched'
		  AND s.status <> 'pending'
	`)
	if err != nil {
		return 0, err
	}

	result, err := r.pool.Exec(ctx, `
		UPDATE judge_tasks t SET
			status          = CASE WHEN t.attempts >= $2 THEN 'failed' ELSE 'queued' END,
			last_error      = COALESCE(t.last_error, 'dispatch lost'),
			next_attempt_at = now() + make_interval(secs => LEAST(POWER(2, t.attempts), 300)),
			updated_at      = now()
		FROM submissions s
		WHERE s.id = t.submission_id
		  AND t.status = 'dispatched'
		  AND t.dispatched_at < now() - make_interval(secs => $1)
		  AND s.status = 'pending'
	`, visibilityTimeout.Seconds(), domain.MaxTaskAttempts)
	if err != nil {
		return 0, err
	}
	return int(result.RowsAffected()), nil
}

// CountPending returns how many tasks are awaiting dispatch or delivery
func (r *TaskRepository) CountPending(ctx context.Context) (int, error) {
	var n int
	err := r.pool.QueryRow(ctx, `
		SELECT COUNT(*) FROM judge_tasks WHERE status IN ('queued', 'dispatched')
	`).Scan(&n)
	return n, err
}
