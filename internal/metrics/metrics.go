// Package metrics registers the Prometheus collectors for ingestion runs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	RecordsNew = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "city_ingest_records_new_total",
		Help: "Records inserted for the first time, by source.",
	}, []string{"source"})

	RecordsUpdated = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "city_ingest_records_updated_total",
		Help: "Existing records that actually changed during merge, by source.",
	}, []string{"source"})

	IngestErrors = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "city_ingest_errors_total",
		Help: "Errors recorded during ingestion, by source and kind.",
	}, []string{"source", "kind"})

	RunDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "city_ingest_run_duration_seconds",
		Help:    "Wall time of one orchestrator invocation.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 10),
	})
)
