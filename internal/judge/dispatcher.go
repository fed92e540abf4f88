package judge

import (
	"context"
	"log/slog"
	"time"

	"github.com/codedrill/codedrill/internal/domain"
	"github.com/codedrill/codedrill/internal/metrics"
	"github.com/codedrill/codedrill/internal/queue"
)

// DispatchStore is the task-table surface the dispatcher and repair loop use
type DispatchStore interface {
	ClaimQueued(ctx context.Context, limit int) ([]*domain.JudgeTask, error)
	Requeue(ctx context.Context, taskID int64, lastError string) error
	ReturnStale(ctx context.Context, visibilityTimeout time.Duration) (int, error)
	CountPending(ctx context.Context) (int, error)
}

// JobPublisher publishes judge jobs to the broker
type JobPublisher interface {
	PublishJudgeJob(ctx context.Context, job *queue.JudgeJob) error
}

// DispatcherConfig tunes the dispatch and repair loops
type DispatcherConfig struct {
	// Interval between dispatch polls (default: 1s)
	Interval time.Duration

	// BatchSize bounds tasks claimed per poll (default: 32)
	BatchSize int

	// RepairInterval between repair passes (default: 30s)
	RepairInterval time.Duration

	// VisibilityTimeout after which a dispatched task with a still-pending
	// submission is assumed lost (default: 2m)
	VisibilityTimeout time.Duration
}

func (c *DispatcherConfig) applyDefaults() {
	if c.Interval <= 0 {
		c.Interval = time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 32
	}
	if c.RepairInterval <= 0 {
		c.RepairInterval = 30 * time.Second
	}
	if c.VisibilityTimeout <= 0 {
		c.VisibilityTimeout = 2 * time.Minute
	}
}

// Dispatcher moves queued judge tasks from the database to the broker.
// The task row is the source of truth: a message that never arrives is
// recovered by the repair loop, and a message that arrives twice is
// neutralized by the idempotent judge.
type Dispatcher struct {
	tasks     DispatchStore
	publisher JobPublisher
	cfg       DispatcherConfig
	logger    *slog.Logger
}

// NewDispatcher creates a dispatcher
func NewDispatcher(tasks DispatchStore, publisher JobPublisher, cfg DispatcherConfig, logger *slog.Logger) *Dispatcher {
	cfg.applyDefaults()
	if logger == nil {
		logger = slog.Default()
	}
	return &Dispatcher{
		tasks:     tasks,
		publisher: publisher,
		cfg:       cfg,
		logger:    logger,
	}
}

// Run polls for queued tasks and publishes them until ctx is cancelled
func (d *Dispatcher) Run(ctx context.Context) {
	d.logger.Info("dispatcher started",
		"interval", d.cfg.Interval, "batch_size", d.cfg.BatchSize)

	ticker := time.NewTicker(d.cfg.Interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("dispatcher stopped")
			return
		case <-ticker.C:
			d.dispatchBatch(ctx)
		}
	}
}

func (d *Dispatcher) dispatchBatch(ctx context.Context) {
	tasks, err := d.tasks.ClaimQueued(ctx, d.cfg.BatchSize)
	if err != nil {
		d.logger.Error("failed to claim tasks", "error", err)
		return
	}

	for _, task := range tasks {
		job := &queue.JudgeJob{
			TaskID:       task.ID,
			SubmissionID: task.SubmissionID,
			Attempt:      task.Attempts,
		}
		if err := d.publisher.PublishJudgeJob(ctx, job); err != nil {
			d.logger.Error("failed to publish judge job",
				"task_id", task.ID, "submission_id", task.SubmissionID, "error", err)
			metrics.DispatchRecorded("failed")
			if rqErr := d.tasks.Requeue(ctx, task.ID, err.Error()); rqErr != nil {
				d.logger.Error("failed to requeue task",
					"task_id", task.ID, "error", rqErr)
			}
			continue
		}
		metrics.DispatchRecorded("published")
	}
}

// RunRepair periodically returns lost dispatches to the queue and updates
// the pending-task gauge. Run it alongside Run in its own goroutine.
func (d *Dispatcher) RunRepair(ctx context.Context) {
	d.logger.Info("repair loop started",
		"interval", d.cfg.RepairInterval, "visibility_timeout", d.cfg.VisibilityTimeout)

	ticker := time.NewTicker(d.cfg.RepairInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			d.logger.Info("repair loop stopped")
			return
		case <-ticker.C:
			d.repair(ctx)
		}
	}
}

func (d *Dispatcher) repair(ctx context.Context) {
	returned, err := d.tasks.ReturnStale(ctx, d.cfg.VisibilityTimeout)
	if err != nil {
		d.logger.Error("repair pass failed", "error", err)
		return
	}
	if returned > 0 {
		metrics.TasksReturned(returned)
		d.logger.Warn("returned stale tasks to queue", "count", returned)
	}

	pending, err := d.tasks.CountPending(ctx)
	if err != nil {
		d.logger.Error("failed to count pending tasks", "error", err)
		return
	}
	metrics.SetPendingTasks(pending)
}
