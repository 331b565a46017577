package observability

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

var (
	entitiesProcessed = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streak_service",
		Subsystem: "job",
		Name:      "entities_processed_total",
		Help:      "Entities evaluated by the daily streak job, labeled by entity type.",
	}, []string{"entity"})

	entityFailures = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streak_service",
		Subsystem: "job",
		Name:      "entity_failures_total",
		Help:      "Entities skipped after a read or write error, labeled by entity type.",
	}, []string{"entity"})

	runsCompleted = prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace: "streak_service",
		Subsystem: "job",
		Name:      "runs_total",
		Help:      "Completed job runs, labeled by outcome (clean or degraded).",
	}, []string{"outcome"})

	runDuration = prometheus.NewHistogram(prometheus.HistogramOpts{
		Namespace: "streak_service",
		Subsystem: "job",
		Name:      "run_duration_seconds",
		Help:      "Wall time of full job runs.",
		Buckets:   prometheus.ExponentialBuckets(0.1, 2, 12),
	})

	lastRunGauge = prometheus.NewGauge(prometheus.GaugeOpts{
		Namespace: "streak_service",
		Subsystem: "job",
		Name:      "last_run_timestamp_seconds",
		Help:      "Unix timestamp of the most recent completed job run.",
	})
)

func init() {
	prometheus.MustRegister(entitiesProcessed, entityFailures, runsCompleted, runDuration, lastRunGauge)
}

// RecordEntityProcessed counts one successfully evaluated entity.
func RecordEntityProcessed(entity string) {
	entitiesProcessed.WithLabelValues(entity).Inc()
}

// RecordEntityFailure counts one entity skipped after an error.
func RecordEntityFailure(entity string) {
	entityFailures.WithLabelValues(entity).Inc()
}

// RecordRun records the outcome and duration of a completed run.
func RecordRun(clean bool, started time.Time, duration time.Duration) {
	outcome := "clean"
	if !clean {
		outcome = "degraded"
	}
	runsCompleted.WithLabelValues(outcome).Inc()
	runDuration.Observe(duration.Seconds())
	lastRunGauge.Set(float64(started.Unix()))
}
