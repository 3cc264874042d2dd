// Package metrics holds the Prometheus collectors exported by metrosim.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const namespace = "metrosim"

var (
	// JobsTotal counts finished jobs.
	// Labels: kind (generate, clear_agents, write_input, ingest), status (succeeded, failed)
	JobsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "jobs",
		Name:      "total",
		Help:      "Finished jobs by kind and final status",
	}, []string{"kind", "status"})

	// JobsRejected counts submissions refused because a job for the same
	// target was already running.
	// Labels: kind
	JobsRejected = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "jobs",
		Name:      "rejected_total",
		Help:      "Jobs rejected because the target was busy",
	}, []string{"kind"})

	// JobDuration measures wall time per job.
	// Labels: kind
	JobDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "jobs",
		Name:      "duration_seconds",
		Help:      "Job wall time in seconds",
		Buckets:   []float64{0.01, 0.05, 0.1, 0.5, 1, 5, 15, 60, 300, 900},
	}, []string{"kind"})

	// JobsInFlight tracks running jobs.
	JobsInFlight = promauto.NewGauge(prometheus.GaugeOpts{
		Namespace: namespace,
		Subsystem: "jobs",
		Name:      "in_flight",
		Help:      "Jobs currently running",
	})

	// AgentsSynthesized counts agents written by population synthesis.
	AgentsSynthesized = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "synthesis",
		Name:      "agents_total",
		Help:      "Agents produced by population synthesis",
	})

	// AgentsSkipped counts agents emitted with no modes because their zones
	// do not resolve to graph nodes.
	AgentsSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "document",
		Name:      "agents_skipped_total",
		Help:      "Agents written without modes during input assembly",
	})

	// ResultsIngested counts records written by output ingestion.
	// Labels: record (agent, path_segment, edge)
	ResultsIngested = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "ingest",
		Name:      "records_total",
		Help:      "Result records written by output ingestion",
	}, []string{"record"})
)

// ObserveJob records a finished job.
func ObserveJob(kind, status string, elapsed time.Duration) {
	JobsTotal.WithLabelValues(kind, status).Inc()
	JobDuration.WithLabelValues(kind).Observe(elapsed.Seconds())
}
