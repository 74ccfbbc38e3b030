// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var circuitStates = []string{"closed", "open", "half-open"}

var (
	circuitBreakerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "livereader_circuit_breaker_state",
		Help: "Circuit breaker state (1 for the active state)",
	}, []string{"breaker", "state"})

	circuitBreakerTrips = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livereader_circuit_breaker_trips_total",
		Help: "Total circuit breaker trips by reason",
	}, []string{"breaker", "reason"})

	// TTSRequestsTotal tracks text-to-speech requests by outcome.
	TTSRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livereader_tts_requests_total",
		Help: "Total text-to-speech requests",
	}, []string{"outcome"})

	// TTSRequestDuration tracks text-to-speech request latency.
	TTSRequestDuration = promauto.NewHistogram(prometheus.HistogramOpts{
		Name:    "livereader_tts_request_duration_seconds",
		Help:    "Text-to-speech request latency",
		Buckets: prometheus.DefBuckets,
	})
)

// SetCircuitBreakerState marks state as the active state of breaker.
func SetCircuitBreakerState(breaker, state string) {
	for _, s := range circuitStates {
		v := 0.0
		if s == state {
			v = 1
		}
		circuitBreakerState.WithLabelValues(breaker, s).Set(v)
	}
}

// RecordCircuitBreakerTrip counts a transition into the open state.
func RecordCircuitBreakerTrip(breaker, reason string) {
	circuitBreakerTrips.WithLabelValues(breaker, reason).Inc()
}
