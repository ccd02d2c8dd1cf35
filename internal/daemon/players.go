// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"slices"
	"strings"
	"time"

	"github.com/ManuGH/striploop/internal/config"
	xglog "github.com/ManuGH/striploop/internal/log"
	"github.com/ManuGH/striploop/internal/player"
	"github.com/ManuGH/striploop/internal/playlist"
	"github.com/ManuGH/striploop/internal/supervisor"
)

// Supervisor component names, also the diagnostic file names under log.dir.
const (
	ComponentPlayer = "player"
	ComponentAudio  = "audio"
	ComponentIngest = "ingest"
)

// renderEnv returns the X11 render environment with DISPLAY set to display.
func renderEnv(display string) []string {
	env := slices.Clone(player.DefaultRenderEnv)
	if display == "" {
		return env
	}
	for i, kv := range env {
		if strings.HasPrefix(kv, "DISPLAY=") {
			env[i] = "DISPLAY=" + display
		}
	}
	return env
}

// VideoOverrides are per-invocation settings layered over the config, used by
// the play command.
type VideoOverrides struct {
	Dir          string
	Order        playlist.Order
	Backend      string // audio only
	PassDelay    time.Duration
	EmptyTimeout time.Duration
}

// NewVideoPlayer builds the two-stage player from cfg.
func NewVideoPlayer(cfg config.PlayerConfig, sink *xglog.DiagnosticSink, ov VideoOverrides) (*player.ConcatPlayer, error) {
	order, err := playlist.ParseOrder(cfg.Order)
	if err != nil {
		return nil, err
	}
	opts := player.ConcatOptions{
		Dir:   cfg.Dir,
		Order: order,
		Stages: player.FFmpegStages{
			FFmpeg: cfg.FFmpegBin,
			FFplay: cfg.FFplayBin,
			Filter: cfg.Filter,
			Env:    renderEnv(cfg.Display),
		},
		ManifestRepeat: cfg.ManifestRepeat,
		PollInterval:   cfg.PollInterval,
		EmptyRetry:     cfg.EmptyRetry,
		EmptyTimeout:   ov.EmptyTimeout,
		Cooldown:       cfg.Cooldown,
		DrainTimeout:   cfg.DrainTimeout,
		StopGrace:      cfg.StopGrace,
		PassDelay:      cfg.PassDelay,
		RestartBurst:   cfg.RestartBurst,
		RestartWindow:  cfg.RestartWindow,
	}
	if ov.Dir != "" {
		opts.Dir = ov.Dir
	}
	if ov.Order != "" {
		opts.Order = ov.Order
	}
	if ov.PassDelay > 0 {
		opts.PassDelay = ov.PassDelay
	}
	return player.NewConcat(opts, supervisor.New(ComponentPlayer, sink)), nil
}

// NewAudioPlayer builds the per-track audio player from cfg.
func NewAudioPlayer(cfg config.AudioConfig, sink *xglog.DiagnosticSink, ov VideoOverrides) (*player.AudioPlayer, error) {
	order, err := playlist.ParseOrder(cfg.Order)
	if err != nil {
		return nil, err
	}
	opts := player.AudioOptions{
		Dir:          cfg.Dir,
		Order:        order,
		Backend:      strings.ToLower(cfg.Backend),
		Bins: player.TrackBins{
			MPV:    cfg.MPVBin,
			VLC:    cfg.VLCBin,
			FFplay: cfg.FFplayBin,
			Aplay:  cfg.AplayBin,
		},
		TrackDelay:   cfg.TrackDelay,
		EmptyRetry:   cfg.EmptyRetry,
		EmptyTimeout: ov.EmptyTimeout,
		StopGrace:    cfg.StopGrace,
	}
	if ov.Dir != "" {
		opts.Dir = ov.Dir
	}
	if ov.Order != "" {
		opts.Order = ov.Order
	}
	if ov.PassDelay > 0 {
		opts.TrackDelay = ov.PassDelay
	}
	if ov.Backend != "" {
		opts.Backend = ov.Backend
	}
	return player.NewAudio(opts, supervisor.New(ComponentAudio, sink)), nil
}
