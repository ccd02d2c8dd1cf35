// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// ModeSwitchTotal counts switch requests by target and result.
	ModeSwitchTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "striploop_mode_switch_total",
		Help: "Total number of mode switch requests, by target and result (switched/noop/start_failed/persist_failed).",
	}, []string{"target", "result"})

	// ActiveMode is 1 for the mode whose supervisor currently runs.
	ActiveMode = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "striploop_active_mode",
		Help: "Currently active playback mode (1 = active).",
	}, []string{"mode"})
)

// RecordModeSwitch increments the switch counter.
func RecordModeSwitch(target, result string) {
	ModeSwitchTotal.WithLabelValues(target, result).Inc()
}

// SetActiveMode marks mode as active and every other known mode inactive.
func SetActiveMode(modes []string, active string) {
	for _, m := range modes {
		v := 0.0
		if m == active {
			v = 1
		}
		ActiveMode.WithLabelValues(m).Set(v)
	}
}
