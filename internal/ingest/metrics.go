package ingest

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

const (
	metricsNamespace = "fieldops"
	metricsSubsystem = "ingest"
)

var (
	filesProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "files_total",
		Help:      "Imported files by strategy and outcome status.",
	}, []string{"strategy", "status"})

	rowsProcessed = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "rows_total",
		Help:      "Imported rows by strategy and result.",
	}, []string{"strategy", "result"})

	fileDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "file_duration_seconds",
		Help:      "Time to read, normalize and reconcile one file.",
		Buckets:   prometheus.ExponentialBuckets(0.01, 2, 12),
	}, []string{"strategy"})

	ghostsDetected = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "ghosts_detected_total",
		Help:      "Open tickets missing from a main-feed import.",
	})

	ghostsResolved = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: metricsNamespace,
		Subsystem: metricsSubsystem,
		Name:      "ghosts_resolved_total",
		Help:      "Ghost tickets moved to the reassigned status.",
	})
)

func recordRows(strategy Strategy, counts ResultCounts) {
	s := string(strategy)
	rowsProcessed.WithLabelValues(s, ResultCreated).Add(float64(counts.Created))
	rowsProcessed.WithLabelValues(s, ResultUpdated).Add(float64(counts.Updated))
	rowsProcessed.WithLabelValues(s, ResultSkipped).Add(float64(counts.Skipped))
	rowsProcessed.WithLabelValues(s, ResultError).Add(float64(counts.Error))
}
