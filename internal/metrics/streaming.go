// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package metrics holds the Prometheus collectors of a livereader session.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// FifoOpenTotal tracks named-pipe open attempts by direction and result.
	FifoOpenTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livereader_fifo_open_total",
		Help: "Total named pipe open attempts",
	}, []string{"direction", "result"})

	// StageSpawnTotal tracks encoder process starts by stage and result.
	StageSpawnTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livereader_stage_spawn_total",
		Help: "Total encoder process spawn attempts",
	}, []string{"stage", "result"})

	// StageExitTotal tracks encoder process exits by stage and reason.
	StageExitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livereader_stage_exit_total",
		Help: "Total encoder process exits",
	}, []string{"stage", "reason"})

	// ForwardBytesTotal tracks bytes copied between process pipes.
	ForwardBytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livereader_forward_bytes_total",
		Help: "Total bytes forwarded between pipes",
	}, []string{"link"})

	// SinkWritesTotal tracks writes into the media FIFOs.
	SinkWritesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livereader_sink_writes_total",
		Help: "Total buffer writes into media pipes",
	}, []string{"medium", "kind"})

	// SinkBytesTotal tracks bytes written into the media FIFOs.
	SinkBytesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livereader_sink_bytes_total",
		Help: "Total bytes written into media pipes",
	}, []string{"medium"})

	// SinkSkippedTotal tracks flushes that were skipped (empty or malformed buffers).
	SinkSkippedTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livereader_sink_skipped_total",
		Help: "Total skipped flushes by reason",
	}, []string{"medium", "reason"})

	// LoopTicksTotal tracks coordination loop periods.
	LoopTicksTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "livereader_loop_ticks_total",
		Help: "Total coordination loop periods",
	})

	// LoopOverrunTotal tracks periods whose work took longer than the period itself.
	LoopOverrunTotal = promauto.NewCounter(prometheus.CounterOpts{
		Name: "livereader_loop_overrun_total",
		Help: "Total coordination loop periods that overran",
	})

	// MailboxDropsTotal tracks values overwritten before the consumer read them.
	MailboxDropsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livereader_mailbox_drops_total",
		Help: "Total mailbox values overwritten before delivery",
	}, []string{"medium"})

	// ProducerErrorsTotal tracks failed produce attempts.
	ProducerErrorsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "livereader_producer_errors_total",
		Help: "Total failed produce attempts",
	}, []string{"medium"})
)

// IncSinkWrite records one successful write of n bytes.
func IncSinkWrite(medium, kind string, n int) {
	SinkWritesTotal.WithLabelValues(medium, kind).Inc()
	SinkBytesTotal.WithLabelValues(medium).Add(float64(n))
}

// IncSinkSkipped records one skipped flush.
func IncSinkSkipped(medium, reason string) {
	SinkSkippedTotal.WithLabelValues(medium, reason).Inc()
}
