package rules

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var signalsFired = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_rule_signals_total",
	Help: "Rule signals fired, by rule.",
}, []string{"rule"})

var evaluatorErrors = promauto.NewCounterVec(prometheus.CounterOpts{
	Name: "warden_evaluator_errors_total",
	Help: "Evaluator failures absorbed to no-signal, by rule.",
}, []string{"rule"})
