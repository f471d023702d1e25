// Package notify – Prometheus instrumentation for the event pipeline.
//
// These collectors complement the HTTP-level metrics in the middleware
// package: they count pipeline decisions (accepted/duplicate/unroutable/
// malformed), delivery outcomes, retries, and the dispatcher queue depth.
// Label cardinality is bounded: backend kind and a small closed result set.
package notify

import "github.com/prometheus/client_golang/prometheus"

var (
	// eventsTotal counts inbound webhook events by backend and pipeline result.
	eventsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_events_total",
			Help: "Total number of webhook events by backend and pipeline result.",
		},
		[]string{"backend", "result"},
	)

	// deliveriesTotal counts delivery intents by terminal outcome.
	deliveriesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "deliveries_total",
			Help: "Total number of delivery intents by terminal outcome.",
		},
		[]string{"outcome"},
	)

	// retriesTotal counts scheduled delivery retries.
	retriesTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "delivery_retries_total",
			Help: "Total number of delivery retries scheduled after transient failures.",
		},
	)

	// queueDepth gauges the number of intents waiting in the dispatcher queue.
	queueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "delivery_queue_depth",
			Help: "Current number of delivery intents queued for dispatch.",
		},
	)
)

func init() {
	prometheus.MustRegister(eventsTotal, deliveriesTotal, retriesTotal, queueDepth)
}

// Pipeline result label values for eventsTotal.
const (
	resultAccepted   = "accepted"
	resultDuplicate  = "duplicate"
	resultUnroutable = "unroutable"
	resultMalformed  = "malformed"
)

// Delivery outcome label values for deliveriesTotal.
const (
	outcomeDelivered        = "delivered"
	outcomeDroppedTransient = "dropped_transient"
	outcomeDroppedPermanent = "dropped_permanent"
	outcomeDroppedQueueFull = "dropped_queue_full"
	outcomeDroppedShutdown  = "dropped_shutdown"
)

// backendLabel collapses unrecognized backend kinds onto a single value.
// The :backend path segment is caller-controlled, so labeling it raw would
// let arbitrary URLs mint new time series.
func backendLabel(backend string) string {
	switch backend {
	case BackendRadarr, BackendSonarr:
		return backend
	}
	return "unknown"
}

// ObserveMalformed records a payload rejected at the normalization boundary.
// Exposed for the HTTP handler, which owns the 400 response path.
func ObserveMalformed(backend string) {
	eventsTotal.WithLabelValues(backendLabel(backend), resultMalformed).Inc()
}
