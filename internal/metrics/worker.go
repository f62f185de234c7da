package metrics

import "time"

// JobCompleted records a successful job completion
func JobCompleted(jobType string, duration time.Duration) {
	JobsTotal.WithLabelValues(jobType, "completed").Inc()
	JobDuration.WithLabelValues(jobType).Observe(duration.Seconds())
}

// JobFailed records a job failure
func JobFailed(jobType string) {
	JobsTotal.WithLabelValues(jobType, "failed").Inc()
}

// SetQueueDepth publishes the per-status job counts.
func SetQueueDepth(counts map[string]int) {
	for status, n := range counts {
		QueueDepth.WithLabelValues(status).Set(float64(n))
	}
}
