package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTPResponses counts responses by route and status code.
	HTTPResponses = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "macagent",
			Subsystem: "http",
			Name:      "responses_total",
			Help:      "HTTP responses by route and status code",
		},
		[]string{"route", "code"},
	)

	// HTTPLatency is dominated by script runtime on execute_script.
	HTTPLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "macagent",
			Subsystem: "http",
			Name:      "latency_seconds",
			Help:      "HTTP request latency by route",
			Buckets:   []float64{.01, .1, .5, 1, 5, 15, 60, 120, 300, 600},
		},
		[]string{"route"},
	)

	// HTTPInFlight tracks requests still being served.
	HTTPInFlight = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "macagent",
			Subsystem: "http",
			Name:      "in_flight",
			Help:      "HTTP requests currently being served",
		},
	)
)
