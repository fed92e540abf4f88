package queue

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Producer publishes judge jobs to the queue
type Producer struct {
	conn *Connection
}

// NewProducer creates a new queue producer
func NewProducer(conn *Connection) *Producer {
	return &Producer{conn: conn}
}

// PublishJudgeJob publishes a judge job to the queue
func (p *Producer) PublishJudgeJob(ctx context.Context, job *JudgeJob) error {
	if job.EnqueuedAt.IsZero() {
		job.EnqueuedAt = time.Now()
	}

	if err := p.conn.PublishJSON(ctx, JudgeQueueName, job); err != nil {
		return fmt.Errorf("failed to publish judge job: %w", err)
	}

	slog.Info("published judge job",
		"task_id", job.TaskID,
		"submission_id", job.SubmissionID,
		"attempt", job.Attempt,
	)

	return nil
}
