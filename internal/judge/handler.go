package judge

import (
	"context"

	"github.com/codedrill/codedrill/internal/domain"
	"github.com/codedrill/codedrill/internal/queue"
)

// TaskFailer requeues a task after a failed judge attempt
type TaskFailer interface {
	Requeue(ctx context.Context, taskID int64, lastError string) error
}

// QueueHandler adapts the judge service to the queue consumer. A judge
// error requeues the task with backoff; the broker delivery itself is
// always acked by the consumer. Once the delivery budget is spent the
// submission is finalized as a runtime error instead of being retried.
func QueueHandler(svc *Service, tasks TaskFailer) queue.JobHandler {
	return func(ctx context.Context, job *queue.JudgeJob) error {
		err := svc.Judge(ctx, job.SubmissionID)
		if err != nil {
			if job.Attempt >= domain.MaxTaskAttempts {
				return svc.FailPending(ctx, job.SubmissionID, err.Error())
			}
			if rqErr := tasks.Requeue(ctx, job.TaskID, err.Error()); rqErr != nil {
				svc.logger.Error("failed to requeue task after judge error",
					"task_id", job.TaskID, "error", rqErr)
			}
			return err
		}
		return nil
	}
}
