package audit

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	auditWrites = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_audit_writes_total",
		Help: "Durable audit entries by action.",
	}, []string{"action"})

	auditWriteFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "warden_audit_write_failures_total",
		Help: "Audit entries that could not be persisted.",
	})
)
