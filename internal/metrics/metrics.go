// Package metrics exposes the pipeline's prometheus instrumentation.
// Metrics are best effort and never block or fail event processing.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// EventsProcessed counts handled events by terminal outcome
	// (ack, retry, dead_letter, duplicate).
	EventsProcessed = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amlguard_events_processed_total",
			Help: "Inbound events by terminal outcome",
		},
		[]string{"outcome"},
	)

	// DecisionsByTier counts finished decisions per risk tier.
	DecisionsByTier = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amlguard_decisions_total",
			Help: "Risk decisions by tier",
		},
		[]string{"tier"},
	)

	// TriggersFired counts rule triggers across all decisions.
	TriggersFired = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "amlguard_triggers_total",
			Help: "Triggered rules across decisions",
		},
		[]string{"trigger"},
	)

	// ScreeningLatency observes per-source screening lookup duration.
	ScreeningLatency = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "amlguard_screening_duration_seconds",
			Help:    "Screening provider lookup latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"source"},
	)

	// PipelineLatency observes end-to-end handle duration.
	PipelineLatency = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "amlguard_pipeline_duration_seconds",
			Help:    "End-to-end event handling latency",
			Buckets: prometheus.DefBuckets,
		},
	)

	// BreakerState reports each circuit breaker's state
	// (0 closed, 1 half-open, 2 open).
	BreakerState = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "amlguard_breaker_state",
			Help: "Circuit breaker state per dependency (0 closed, 1 half-open, 2 open)",
		},
		[]string{"dependency"},
	)

	// CasesOpen tracks currently open alert cases.
	CasesOpen = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "amlguard_cases_open",
			Help: "Alert cases not yet in a terminal status",
		},
	)
)
