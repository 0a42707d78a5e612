package decision

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	decisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "warden_decisions_total",
		Help: "Decisions by resulting action.",
	}, []string{"action"})

	escalationFailures = promauto.NewCounter(prometheus.CounterOpts{
		Name: "warden_escalation_failures_total",
		Help: "Offense escalation writes that failed and fell back to the base mute.",
	})
)
