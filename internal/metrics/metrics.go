package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
)

var (
	submissionsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codedrill_submissions_total",
			Help: "Submissions accepted at intake, by language",
		},
		[]string{"language"},
	)

	verdictsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codedrill_verdicts_total",
			Help: "Judged submissions by terminal status",
		},
		[]string{"status"},
	)

	judgeDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "codedrill_judge_duration_seconds",
			Help:    "End-to-end judge duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
	)

	dispatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "codedrill_dispatches_total",
			Help: "Judge task dispatch outcomes",
		},
		[]string{"outcome"},
	)

	tasksReturned = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "codedrill_tasks_returned_total",
			Help: "Stale dispatched tasks returned to the queue by the repair loop",
		},
	)

	tasksPending = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "codedrill_tasks_pending",
			Help: "Judge tasks awaiting dispatch or delivery",
		},
	)
)

func init() {
	prometheus.MustRegister(submissionsTotal)
	prometheus.MustRegister(verdictsTotal)
	prometheus.MustRegister(judgeDuration)
	prometheus.MustRegister(dispatchesTotal)
	prometheus.MustRegister(tasksReturned)
	prometheus.MustRegister(tasksPending)
}

// SubmissionReceived counts one submission accepted at intake
func SubmissionReceived(language string) {
	submissionsTotal.WithLabelValues(language).Inc()
}

// VerdictRecorded counts one finalized submission
func VerdictRecorded(status string) {
	verdictsTotal.WithLabelValues(status).Inc()
}

// JudgeCompleted records the wall-clock duration of one judge pass
func JudgeCompleted(seconds float64) {
	judgeDuration.Observe(seconds)
}

// DispatchRecorded counts one dispatch attempt outcome ("published" or "failed")
func DispatchRecorded(outcome string) {
	dispatchesTotal.WithLabelValues(outcome).Inc()
}

// TasksReturned counts tasks the repair loop put back on the queue
func TasksReturned(n int) {
	tasksReturned.Add(float64(n))
}

// SetPendingTasks records the current queue depth
func SetPendingTasks(n int) {
	tasksPending.Set(float64(n))
}
