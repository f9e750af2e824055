// Package metrics holds the Prometheus collectors of the recompute service.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsTotal counts change events by outcome: done, rejected, ignored, failed.
	EventsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "virtual_sensors_events_total",
		Help: "Sensor change events processed, by result",
	}, []string{"result"})

	// BucketsTotal counts recomputed day buckets by status.
	BucketsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "virtual_sensors_buckets_total",
		Help: "Day buckets recomputed, by status",
	}, []string{"status"})

	BucketDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "virtual_sensors_bucket_duration_seconds",
		Help:    "Time spent fetching, evaluating and emitting one day bucket",
		Buckets: prometheus.ExponentialBuckets(0.005, 2, 12),
	})

	ReadingsEmitted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "virtual_sensors_readings_emitted_total",
		Help: "Virtual readings published to the readings exchange",
	})

	AggregatesWritten = promauto.NewCounter(prometheus.CounterOpts{
		Name: "virtual_sensors_aggregates_written_total",
		Help: "Virtual sensor day aggregates upserted",
	})

	EvaluationSkipped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "virtual_sensors_evaluation_skipped_total",
		Help: "Timestamps skipped because the formula could not be evaluated",
	})

	PublishRetries = promauto.NewCounter(prometheus.CounterOpts{
		Name: "virtual_sensors_publish_retries_total",
		Help: "Publish attempts that failed and were retried",
	})

	// ImportedRows counts raw readings merged by the CSV import.
	ImportedRows = promauto.NewCounter(prometheus.CounterOpts{
		Name: "virtual_sensors_imported_rows_total",
		Help: "Raw reading rows imported from CSV files",
	})
)
