package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(jobsSubmittedTotal, jobsProcessedTotal, jobDurationSeconds) }

var jobsSubmittedTotal = prometheus.NewCounter(
	prometheus.CounterOpts{
		Name: "plan_jobs_submitted_total",
		Help: "Total number of accepted plan generation submissions.",
	},
)

var jobsProcessedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "plan_jobs_processed_total",
		Help: "Total number of plan jobs driven to a terminal status, labeled by status and failure class.",
	},
	[]string{"status", "class"}, // class is "" for completed jobs
)

var jobDurationSeconds = prometheus.NewHistogram(
	prometheus.HistogramOpts{
		Name:    "plan_job_duration_seconds",
		Help:    "Wall time from execution start to terminal status.",
		Buckets: []float64{1, 5, 15, 30, 60, 90, 120, 180, 240},
	},
)

func IncJobSubmitted() { jobsSubmittedTotal.Inc() }

func IncJobProcessed(status, class string) {
	jobsProcessedTotal.WithLabelValues(norm(status), norm(class)).Inc()
}

func ObserveJobDuration(seconds float64) { jobDurationSeconds.Observe(seconds) }
