// Package metrics provides Prometheus metrics instrumentation.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// GatewayRequestDuration tracks outbound backend call duration.
	GatewayRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatsync_gateway_request_duration_seconds",
			Help:    "Backend request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "route", "status"},
	)

	// GatewayRequestsTotal tracks total outbound backend calls.
	GatewayRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_gateway_requests_total",
			Help: "Total backend requests",
		},
		[]string{"method", "route", "status"},
	)

	// GenerationDuration tracks LLM completion duration.
	GenerationDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatsync_generation_duration_seconds",
			Help:    "LLM completion duration",
			Buckets: []float64{.25, .5, 1, 2, 5, 10, 20, 30, 60, 120},
		},
		[]string{"provider", "model", "status"},
	)

	// GenerationTokensTotal tracks LLM tokens processed.
	GenerationTokensTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_generation_tokens_total",
			Help: "Total LLM tokens processed",
		},
		[]string{"model", "direction"},
	)

	// RealtimeEventsTotal tracks realtime events by outcome.
	RealtimeEventsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_realtime_events_total",
			Help: "Realtime events received, by type and outcome",
		},
		[]string{"type", "outcome"},
	)

	// RoomsJoined tracks currently joined realtime rooms.
	RoomsJoined = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "chatsync_realtime_rooms_joined",
			Help: "Number of joined realtime rooms",
		},
	)

	// StoreErrorsTotal tracks errors surfaced by store operations.
	StoreErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_store_errors_total",
			Help: "Errors recorded by store operations",
		},
		[]string{"store", "op", "kind"},
	)

	// StaleResponsesTotal tracks responses discarded after a chat switch.
	StaleResponsesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_stale_responses_total",
			Help: "Responses discarded or rerouted because the selection changed",
		},
		[]string{"op", "action"},
	)

	// ServerRequestDuration tracks dev backend HTTP request duration.
	ServerRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "chatsync_server_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: []float64{.005, .01, .025, .05, .1, .25, .5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	// ServerRequestsTotal tracks total dev backend HTTP requests.
	ServerRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_server_requests_total",
			Help: "Total HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	// EventsPublishedTotal tracks realtime events published by the dev backend.
	EventsPublishedTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "chatsync_events_published_total",
			Help: "Realtime events published",
		},
		[]string{"type"},
	)
)

// RecordGatewayRequest records metrics for an outbound backend call.
func RecordGatewayRequest(method, route, status string, duration float64) {
	GatewayRequestDuration.WithLabelValues(method, route, status).Observe(duration)
	GatewayRequestsTotal.WithLabelValues(method, route, status).Inc()
}

// RecordGeneration records metrics for an LLM completion.
func RecordGeneration(provider, model, status string, duration float64, tokensIn, tokensOut int) {
	GenerationDuration.WithLabelValues(provider, model, status).Observe(duration)
	GenerationTokensTotal.WithLabelValues(model, "in").Add(float64(tokensIn))
	GenerationTokensTotal.WithLabelValues(model, "out").Add(float64(tokensOut))
}

// RecordRealtimeEvent records the outcome of applying a realtime event.
func RecordRealtimeEvent(eventType, outcome string) {
	RealtimeEventsTotal.WithLabelValues(eventType, outcome).Inc()
}

// RecordStoreError records an error surfaced by a store operation.
func RecordStoreError(store, op, kind string) {
	StoreErrorsTotal.WithLabelValues(store, op, kind).Inc()
}

// RecordStale records a response that arrived after the selection moved on.
func RecordStale(op, action string) {
	StaleResponsesTotal.WithLabelValues(op, action).Inc()
}

// RecordServerRequest records metrics for a dev backend HTTP request.
func RecordServerRequest(method, path, status string, duration float64) {
	ServerRequestDuration.WithLabelValues(method, path, status).Observe(duration)
	ServerRequestsTotal.WithLabelValues(method, path, status).Inc()
}
