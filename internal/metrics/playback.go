// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// PassTotal counts playback passes by player and outcome.
	PassTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "striploop_playback_pass_total",
		Help: "Total number of playback passes, by player and outcome (completed/degraded/stopped/launch_failed).",
	}, []string{"player", "outcome"})

	// PlayerState exposes the current player state as a one-hot gauge.
	PlayerState = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "striploop_player_state",
		Help: "Current player state (1 for the active state), by player and state.",
	}, []string{"player", "state"})

	// EmptyScanTotal counts scans that found no recognized media.
	EmptyScanTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Name: "striploop_playlist_empty_scan_total",
		Help: "Total number of playlist scans that found no recognized media, by player.",
	}, []string{"player"})

	// PlaylistItems tracks the size of the most recent playlist.
	PlaylistItems = promauto.NewGaugeVec(prometheus.GaugeOpts{
		Name: "striploop_playlist_items",
		Help: "Number of items in the most recently built playlist, by player.",
	}, []string{"player"})
)

// SetPlayerState marks state as the single active state for player.
func SetPlayerState(player string, states []string, active string) {
	for _, s := range states {
		v := 0.0
		if s == active {
			v = 1
		}
		PlayerState.WithLabelValues(player, s).Set(v)
	}
}
