package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Dispatch metrics, exposed on /metrics.

var (
	// CallbacksTotal counts callback deliveries by final handler disposition.
	CallbacksTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dispatch",
		Name:      "callbacks_total",
		Help:      "Voice provider callback deliveries by disposition",
	}, []string{"disposition"})

	// OutboundCallsTotal counts call placements against the voice provider.
	OutboundCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dispatch",
		Name:      "outbound_calls_total",
		Help:      "Outbound voice calls by result (placed or failed)",
	}, []string{"result"})

	// AssignmentsTotal counts terminal booking resolutions.
	AssignmentsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "dispatch",
		Name:      "assignments_total",
		Help:      "Booking resolutions by action (assigned or exhausted)",
	}, []string{"action"})
)
