package executor

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	actionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_actions_total",
		Help: "Executed enforcement actions by outcome.",
	}, []string{"action", "outcome"})

	retryWait = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "warden_retry_wait_seconds",
		Help:    "Backoff waits before API retries.",
		Buckets: prometheus.ExponentialBuckets(0.5, 2, 8),
	}, []string{"route"})

	breakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "warden_breaker_state",
		Help: "Circuit breaker state per route (0 closed, 1 open, 2 half-open).",
	}, []string{"route"})

	breakerRejections = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_breaker_rejections_total",
		Help: "Requests rejected by an open circuit breaker.",
	}, []string{"route"})
)
