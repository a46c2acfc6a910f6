package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(scheduleDegradedTotal) }

var scheduleDegradedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "schedule_context_degraded_total",
		Help: "Times a schedule context call failed and the prompt fell back to a default.",
	},
	[]string{"call"}, // 'current_period', 'free_slots'
)

func IncScheduleDegraded(call string) {
	scheduleDegradedTotal.WithLabelValues(norm(call)).Inc()
}
