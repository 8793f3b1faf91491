package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Registered with the default registry through promauto.
var (
	// ScriptRunsTotal counts finished script runs by outcome.
	ScriptRunsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "macagent",
			Subsystem: "scripts",
			Name:      "runs_total",
			Help:      "Total number of script runs by status",
		},
		[]string{"status"},
	)

	// ScriptRunDuration tracks wall-clock time of each script run.
	ScriptRunDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "macagent",
			Subsystem: "scripts",
			Name:      "run_duration_seconds",
			Help:      "Duration of script runs in seconds",
			Buckets:   prometheus.ExponentialBuckets(0.05, 2, 14), // 50ms to ~7m
		},
		[]string{"status"},
	)

	// ScriptsRunning tracks interpreter processes currently alive.
	ScriptsRunning = promauto.NewGauge(
		prometheus.GaugeOpts{
			Namespace: "macagent",
			Subsystem: "scripts",
			Name:      "running",
			Help:      "Number of interpreter processes currently running",
		},
	)

	// ProcessesKilled counts processes signalled during timeout termination.
	ProcessesKilled = promauto.NewCounter(
		prometheus.CounterOpts{
			Namespace: "macagent",
			Subsystem: "scripts",
			Name:      "processes_killed_total",
			Help:      "Total number of processes killed after a script timed out",
		},
	)

	// BlocksPerRequest observes the number of unique blocks extracted per request.
	BlocksPerRequest = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "macagent",
			Subsystem: "requests",
			Name:      "script_blocks",
			Help:      "Number of unique script blocks per execute_script request",
			Buckets:   []float64{0, 1, 2, 3, 5, 8, 13},
		},
	)

	// RequestsTotal counts handled request points.
	RequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "macagent",
			Subsystem: "requests",
			Name:      "points_total",
			Help:      "Total number of handled requests by point and outcome",
		},
		[]string{"point", "outcome"},
	)
)

// RecordRun records metrics for a finished script run.
func RecordRun(status string, durationSeconds float64) {
	ScriptRunsTotal.WithLabelValues(status).Inc()
	ScriptRunDuration.WithLabelValues(status).Observe(durationSeconds)
}

// RecordPoint records one handled request point.
func RecordPoint(point, outcome string) {
	RequestsTotal.WithLabelValues(point, outcome).Inc()
}
