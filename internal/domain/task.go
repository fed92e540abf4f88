package domain

import (
	"time"

	"github.com/google/uuid"
)

// JudgeTask is the durable counterpart of one submission's judging work.
// A row is inserted in the same transaction as the submission, so a crash
// between intake and judging can never strand a submission in pending.
type JudgeTask struct {
	ID            int64
	SubmissionID  uuid.UUID
	Status        TaskStatus
	Attempts      int
	LastError     *string
	NextAttemptAt time.Time
	DispatchedAt  *time.Time
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// TaskStatus represents the delivery state of a judge task
type TaskStatus string

const (
	TaskStatusQueued     TaskStatus = "queued"
	TaskStatusDispatched TaskStatus = "dispatched"
	TaskStatusDone       TaskStatus = "done"
	TaskStatusFailed     TaskStatus = "failed"
)

// MaxTaskAttempts is the delivery budget before a task is marked failed.
const MaxTaskAttempts = 5
