// Package telemetry holds the process-wide Prometheus collectors and the
// OpenTelemetry tracer setup.
package telemetry

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	GatewayCalls = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "litmap",
		Name:      "gateway_calls_total",
		Help:      "Text generation calls by model, operation and outcome.",
	}, []string{"model", "operation", "outcome"})

	GatewayLatency = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: "litmap",
		Name:      "gateway_call_duration_seconds",
		Help:      "Latency of text generation calls.",
		Buckets:   []float64{0.25, 0.5, 1, 2, 5, 10, 30, 60, 120},
	}, []string{"model", "operation"})

	ClassifyChunks = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "litmap",
		Name:      "classify_chunks_total",
		Help:      "Assignment chunks by outcome (ok, failed).",
	}, []string{"outcome"})

	ClassifyFallbacks = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "litmap",
		Name:      "classify_fallback_trees_total",
		Help:      "Classification runs that fell back to the default taxonomy.",
	})

	Mutations = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: "litmap",
		Name:      "chat_mutations_total",
		Help:      "Chat mutation actions by kind and outcome (applied, rejected).",
	}, []string{"action", "outcome"})

	SaveFailures = promauto.NewCounter(prometheus.CounterOpts{
		Namespace: "litmap",
		Name:      "store_save_failures_total",
		Help:      "Failed persistence writes.",
	})
)
