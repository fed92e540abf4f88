package domain

import (
	"time"

	"github.com/google/uuid"
)

// Submission is one judged attempt at a problem. It is created in the
// pending state and finalized exactly once by the judge pipeline; a
// terminal submission is never mutated again.
type Submission struct {
	ID              uuid.UUID
	UserID          uuid.UUID
	ProblemID       uuid.UUID
	Language        string
	Code            string
	Status          SubmissionStatus
	TestCasesPassed int
	TotalTestCases  int
	RuntimeMs       *int
	MemoryKB        *int
	Points          int
	SubmittedAt     time.Time
	JudgedAt        *time.Time
}

// SubmissionStatus represents the current state of a submission
type SubmissionStatus string

const (
	StatusPending             SubmissionStatus = "pending"
	StatusAccepted            SubmissionStatus = "accepted"
	StatusWrongAnswer         SubmissionStatus = "wrong_answer"
	StatusTimeLimitExceeded   SubmissionStatus = "time_limit_exceeded"
	StatusMemoryLimitExceeded SubmissionStatus = "memory_limit_exceeded"
	StatusRuntimeError        SubmissionStatus = "runtime_error"
	StatusCompilationError    SubmissionStatus = "compilation_error"
)

// String returns the status as a string
func (s SubmissionStatus) String() string {
	return string(s)
}

// IsTerminal returns true for every status except pending
func (s SubmissionStatus) IsTerminal() bool {
	switch s {
	case StatusAccepted, StatusWrongAnswer, StatusTimeLimitExceeded,
		StatusMemoryLimitExceeded, StatusRuntimeError, StatusCompilationError:
		return true
	default:
		return false
	}
}

// IsValid checks if the status is a known value
func (s SubmissionStatus) IsValid() bool {
	return s == StatusPending || s.IsTerminal()
}

// IsTerminal returns true if the submission has been judged
func (s *Submission) IsTerminal() bool {
	return s.Status.IsTerminal()
}

// Accepted returns true if the submission passed every test case
func (s *Submission) Accepted() bool {
	return s.Status == StatusAccepted
}

// MaxCodeSize bounds the accepted source size at intake.
const MaxCodeSize = 64 * 1024
