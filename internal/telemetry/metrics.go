// Package telemetry exposes the agent's operational metrics and health over
// HTTP. Metrics use a private Prometheus registry so the agent never leaks
// collectors registered by linked-in libraries.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
)

// Queue label values for task metrics.
const (
	QueueObservations = "observations"
	QueueHighPriority = "high_priority"
	QueueJobs         = "jobs"
)

// Status label values.
const (
	StatusOK    = "ok"
	StatusError = "error"
)

// Metrics holds all Prometheus instruments the agent records.
type Metrics struct {
	registry *prometheus.Registry

	TasksTotal        *prometheus.CounterVec
	TaskDuration      *prometheus.HistogramVec
	RowsScrubbed      prometheus.Counter
	DiscoveryRuns     *prometheus.CounterVec
	DiscoveryTables   prometheus.Counter
	DiscoveryDuration prometheus.Histogram
}

// NewMetrics creates and registers all agent metrics on a fresh registry.
func NewMetrics() *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		TasksTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tsight",
			Name:      "tasks_total",
			Help:      "Tasks processed, by queue and outcome.",
		}, []string{"queue", "status"}),
		TaskDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "tsight",
			Name:      "task_duration_seconds",
			Help:      "Wall time spent executing one task end to end.",
			Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
		}, []string{"queue"}),
		RowsScrubbed: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tsight",
			Name:      "rows_scrubbed_total",
			Help:      "Job result rows dropped by the filter policy.",
		}),
		DiscoveryRuns: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "tsight",
			Name:      "discovery_runs_total",
			Help:      "Schema discovery runs per datasource, by outcome.",
		}, []string{"status"}),
		DiscoveryTables: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "tsight",
			Name:      "discovery_tables_total",
			Help:      "Table schemas submitted to the server.",
		}),
		DiscoveryDuration: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "tsight",
			Name:      "discovery_duration_seconds",
			Help:      "Wall time of one full discovery run.",
			Buckets:   prometheus.ExponentialBuckets(0.1, 2, 10),
		}),
	}

	registry.MustRegister(
		m.TasksTotal,
		m.TaskDuration,
		m.RowsScrubbed,
		m.DiscoveryRuns,
		m.DiscoveryTables,
		m.DiscoveryDuration,
	)
	return m
}
