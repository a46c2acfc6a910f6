package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
)

func init() { register(generatorCallsTotal, generatorCallLatencyMs) }

var generatorCallsTotal = prometheus.NewCounterVec(
	prometheus.CounterOpts{
		Name: "generator_calls_total",
		Help: "Upstream generator calls by provider and success.",
	},
	[]string{"provider", "success"},
)

var generatorCallLatencyMs = prometheus.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "generator_call_latency_ms",
		Help:    "Generator call latency distribution in milliseconds.",
		Buckets: []float64{100, 250, 500, 1000, 2500, 5000, 10000, 30000, 60000, 90000},
	},
	[]string{"provider"},
)

func ObserveGeneratorCall(provider string, latencyMs float64, success bool) {
	generatorCallsTotal.WithLabelValues(norm(provider), strconv.FormatBool(success)).Inc()
	generatorCallLatencyMs.WithLabelValues(norm(provider)).Observe(latencyMs)
}
