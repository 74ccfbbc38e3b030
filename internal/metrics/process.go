// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	procTerminateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livereader_proc_terminate_total",
		Help: "Signals sent to encoder process groups by result",
	}, []string{"signal", "result"})

	procWaitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livereader_proc_wait_total",
		Help: "Encoder process reaps by outcome",
	}, []string{"outcome"})
)

// IncProcTerminate records a termination signal delivery.
func IncProcTerminate(signal, result string) {
	procTerminateTotal.WithLabelValues(signal, result).Inc()
}

// IncProcWait records how a terminated process was reaped.
func IncProcWait(outcome string) {
	procWaitTotal.WithLabelValues(outcome).Inc()
}
