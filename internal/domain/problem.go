package domain

import (
	"math"
	"time"

	"github.com/google/uuid"
)

// Difficulty buckets problems and drives how many points a first solve awards
type Difficulty string

const (
	DifficultyEasy   Difficulty = "easy"
	DifficultyMedium Difficulty = "medium"
	DifficultyHard   Difficulty = "hard"
)

// IsValid checks if the difficulty is a known value
func (d Difficulty) IsValid() bool {
	return d == DifficultyEasy || d == DifficultyMedium || d == DifficultyHard
}

// Points returns the score awarded for the first accepted solve
func (d Difficulty) Points() int {
	switch d {
	case DifficultyEasy:
		return 100
	case DifficultyMedium:
		return 200
	case DifficultyHard:
		return 300
	default:
		return 0
	}
}

// Problem is a coding exercise with its test cases and denormalized
// aggregate statistics. Problems are never deleted, only deactivated.
type Problem struct {
	ID             uuid.UUID
	Slug           string
	Title          string
	Statement      string
	Difficulty     Difficulty
	Category       string
	IsActive       bool
	RuntimeLimitMs int
	MemoryLimitKB  int
	TestCases      []TestCase
	Stats          ProblemStats
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// TestCase is a single input/expected-output pair. Hidden cases are used
// for judging only; visible ones double as samples for dry runs.
type TestCase struct {
	ID             uuid.UUID
	ProblemID      uuid.UUID
	Input          string
	ExpectedOutput string
	Hidden         bool
	Weight         int
	SortOrder      int
}

// SampleTestCases returns the non-hidden cases, in order
func (p *Problem) SampleTestCases() []TestCase {
	samples := make([]TestCase, 0, len(p.TestCases))
	for _, tc := range p.TestCases {
		if !tc.Hidden {
			samples = append(samples, tc)
		}
	}
	return samples
}

// ProblemStats holds a problem's aggregates. These are a cache derived
// from the submissions table, not a source of truth.
type ProblemStats struct {
	TotalSubmissions    int
	AcceptedSubmissions int
	AcceptanceRate      int // round(accepted/total*100)
	SolvedBy            int
	AvgRuntimeMs        float64
	AvgMemoryKB         float64
}

// Record folds one judged submission into the aggregates. The acceptance
// rate is always recomputed from the counters, never adjusted directly.
func (s *ProblemStats) Record(accepted, firstSolve bool, runtimeMs, memoryKB int) {
	s.TotalSubmissions++
	if accepted {
		s.AcceptedSubmissions++
	}
	if firstSolve {
		s.SolvedBy++
	}
	s.AcceptanceRate = AcceptanceRate(s.AcceptedSubmissions, s.TotalSubmissions)
	s.AvgRuntimeMs = IncrementalMean(s.AvgRuntimeMs, s.TotalSubmissions, float64(runtimeMs))
	s.AvgMemoryKB = IncrementalMean(s.AvgMemoryKB, s.TotalSubmissions, float64(memoryKB))
}

// AcceptanceRate computes round(accepted/total*100); zero when no submissions
func AcceptanceRate(accepted, total int) int {
	if total == 0 {
		return 0
	}
	return int(math.Round(float64(accepted) / float64(total) * 100))
}

// IncrementalMean computes the running mean after the n-th sample:
// newAvg = (oldAvg*(n-1) + sample) / n
func IncrementalMean(oldAvg float64, n int, sample float64) float64 {
	if n <= 0 {
		return 0
	}
	return (oldAvg*float64(n-1) + sample) / float64(n)
}
