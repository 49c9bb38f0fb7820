package api

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// requestsTotal counts API requests.
// Labels: method, route (chi pattern), status (2xx, 4xx, 5xx)
var requestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
	Namespace: "alma",
	Subsystem: "api",
	Name:      "requests_total",
	Help:      "Governance API requests by method, route and status class",
}, []string{"method", "route", "status"})

func statusClass(code int) string {
	return strconv.Itoa(code/100) + "xx"
}
