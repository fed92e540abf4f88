package domain

import (
	"time"

	"github.com/google/uuid"
)

// User is an account plus the cumulative statistics the judge pipeline
// maintains for it. Only the pipeline mutates Stats.
type User struct {
	ID        uuid.UUID
	Username  string
	Email     string
	Stats     UserStats
	CreatedAt time.Time
	UpdatedAt time.Time
}

// UserStats tracks a user's cumulative progress. Solved/attempted problem
// sets live in their own tables; the counters here mirror their sizes.
type UserStats struct {
	TotalSubmissions    int
	AcceptedSubmissions int
	Accuracy            int // round(accepted/total*100)
	SolvedCount         int
	SolvedEasy          int
	SolvedMedium        int
	SolvedHard          int
	AttemptedCount      int
	Points              int
	Streak              Streak
}

// Level is derived from points: 1000 points per level, starting at 1
func (s *UserStats) Level() int {
	return s.Points/1000 + 1
}

// Accuracy computes round(accepted/total*100); zero when no submissions
func Accuracy(accepted, total int) int {
	return AcceptanceRate(accepted, total)
}

// Streak tracks consecutive days with at least one solved problem
type Streak struct {
	Current        int
	Longest        int
	LastActiveDate *time.Time
}

// Advance applies one qualifying activity at the given time. Consecutive
// days extend the streak, a gap resets it, same-day activity is a no-op
// for the counter. Longest never decreases.
func (s *Streak) Advance(now time.Time) {
	switch {
	case s.LastActiveDate == nil:
		s.Current = 1
	default:
		switch gap := daysBetween(*s.LastActiveDate, now); {
		case gap == 1:
			s.Current++
		case gap > 1:
			s.Current = 1
		}
	}
	if s.Current > s.Longest {
		s.Longest = s.Current
	}
	day := truncateToDay(now)
	s.LastActiveDate = &day
}

func truncateToDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func daysBetween(from, to time.Time) int {
	return int(truncateToDay(to).Sub(truncateToDay(from)).Hours() / 24)
}
