package metrics

import "github.com/prometheus/client_golang/prometheus"

func init() { register(pollSessionsActive, pollSessionsFinishedTotal) }

var pollSessionsActive = prometheus.NewGauge(
	prometheus.GaugeOpts{
		Name: "poll_sessions_active",
		Help: "Number of requester sessions currently polling for a result.",
	},
)

var pollSessionsFinishedTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "poll_sessions_finished_total",
		Help: "Poll sessions destroyed, labeled by outcome.",
	},
	[]string{"outcome"}, // 'delivered', 'cancelled', 'expired'
)

func IncPollSession() { pollSessionsActive.Inc() }
func DecPollSession() { pollSessionsActive.Dec() }

func IncPollFinished(outcome string) {
	pollSessionsFinishedTotal.WithLabelValues(norm(outcome)).Inc()
}
