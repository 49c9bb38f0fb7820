package governance

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// operationsTotal counts governance calls by operation and result.
	// Labels: operation (create, update, submit, approve, publish, ...),
	// result (ok, noop, or the error kind)
	operationsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "alma",
		Subsystem: "governance",
		Name:      "operations_total",
		Help:      "Governance operations by operation and result",
	}, []string{"operation", "result"})

	// sideEffectFailuresTotal counts best-effort writes that failed after
	// the primary write succeeded.
	// Labels: effect (signals, usage, ledger)
	sideEffectFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "alma",
		Subsystem: "governance",
		Name:      "side_effect_failures_total",
		Help:      "Failed best-effort side effects by kind",
	}, []string{"effect"})
)

func observe(operation string, err error) {
	result := "ok"
	if err != nil {
		if k := KindOf(err); k != "" {
			result = string(k)
		} else {
			result = "error"
		}
	}
	operationsTotal.WithLabelValues(operation, result).Inc()
}
