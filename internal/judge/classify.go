package judge

import (
	"github.com/codedrill/codedrill/internal/domain"
	"github.com/codedrill/codedrill/internal/executor"
)

// Classify maps an execution result to a terminal submission status and
// the number of passed cases. The first failing case decides the verdict;
// later cases only affect the passed count.
func Classify(result *executor.Result) (domain.SubmissionStatus, int) {
	passed := 0
	status := domain.StatusAccepted
	decided := false

	for _, c := range result.Cases {
		if c.Passed {
			passed++
			continue
		}
		if !decided {
			status = caseVerdict(c)
			decided = true
		}
	}

	return status, passed
}

func caseVerdict(c executor.CaseOutcome) domain.SubmissionStatus {
	switch {
	case c.TimedOut:
		return domain.StatusTimeLimitExceeded
	case c.MemoryExceeded:
		return domain.StatusMemoryLimitExceeded
	case c.Crashed:
		return domain.StatusRuntimeError
	default:
		return domain.StatusWrongAnswer
	}
}

// ClassifyError maps an execution error to a verdict where one applies.
// Compile failures are a verdict on the code; anything else is a system
// fault the caller must retry rather than pin on the submitter.
func ClassifyError(err error) (domain.SubmissionStatus, bool) {
	phase, tagged := executor.ErrorPhase(err)
	if !tagged {
		return "", false
	}
	switch phase {
	case executor.PhaseCompile:
		return domain.StatusCompilationError, true
	default:
		return domain.StatusRuntimeError, true
	}
}
