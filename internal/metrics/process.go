// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package metrics provides Prometheus metrics for striploop.
// Labels are bounded enums only: no paths, job IDs or PIDs.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ProcStartTotal counts supervised process launches by component and result.
	ProcStartTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "striploop_process_start_total",
		Help: "Total number of supervised process launches, by component and result.",
	}, []string{"component", "result"})

	// ProcExitTotal counts supervised process exits by component and reason.
	ProcExitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "striploop_process_exit_total",
		Help: "Total number of supervised process exits, by component and reason (requested/unexpected).",
	}, []string{"component", "reason"})

	procTerminateTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "striploop_process_terminate_signal_total",
		Help: "Termination signals sent to process groups, by signal and result.",
	}, []string{"signal", "result"})

	procWaitTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "striploop_process_terminate_outcome_total",
		Help: "Outcome of process group termination (graceful/forced/stuck).",
	}, []string{"outcome"})

	// ProcAlive tracks live supervised processes by component.
	ProcAlive = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "striploop_process_alive",
		Help: "Current number of live supervised processes, by component.",
	}, []string{"component"})
)

// IncProcTerminate records a termination signal delivery attempt.
func IncProcTerminate(signal, result string) {
	procTerminateTotal.WithLabelValues(signal, result).Inc()
}

// IncProcWait records how a termination ended.
func IncProcWait(outcome string) {
	procWaitTotal.WithLabelValues(outcome).Inc()
}
