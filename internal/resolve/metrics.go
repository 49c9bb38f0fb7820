package resolve

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// orgDecisionsTotal counts organization resolution outcomes.
	// Labels: outcome (matched, review, conflict, error), method
	orgDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "alma",
		Subsystem: "linker",
		Name:      "organization_decisions_total",
		Help:      "Organization resolution outcomes by outcome and method",
	}, []string{"outcome", "method"})

	// linkDecisionsTotal counts intervention resolution outcomes.
	// Labels: outcome (linked, review, conflict, error), method
	linkDecisionsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "alma",
		Subsystem: "linker",
		Name:      "link_decisions_total",
		Help:      "Intervention link outcomes by outcome and method",
	}, []string{"outcome", "method"})

	// runsTotal counts linker runs by status.
	runsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "alma",
		Subsystem: "linker",
		Name:      "runs_total",
		Help:      "Linker runs by status",
	}, []string{"status"})
)
