package pipeline

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	intakeTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "warden_intake_total",
		Help: "Message events accepted into a worker queue.",
	})

	intakeDropped = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_intake_dropped_total",
		Help: "Message events shed because a worker queue was full.",
	}, []string{"worker"})

	retractionSkips = promauto.NewCounter(prometheus.CounterOpts{
		Name: "warden_retraction_skips_total",
		Help: "Queued events skipped because the message was deleted upstream.",
	})

	partitionPanics = promauto.NewCounter(prometheus.CounterOpts{
		Name: "warden_partition_panics_total",
		Help: "Per-message panics contained by a worker.",
	})

	configFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Name: "warden_config_fallbacks_total",
		Help: "Guild policy resolutions that degraded to defaults.",
	})

	processingSeconds = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "warden_processing_seconds",
		Help:    "End-to-end handling time per message event.",
		Buckets: prometheus.ExponentialBuckets(0.0005, 2, 12),
	})
)
