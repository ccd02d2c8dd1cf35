// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package player

import (
	"context"
	"errors"
	"fmt"
	"time"

	xglog "github.com/ManuGH/striploop/internal/log"
	"github.com/ManuGH/striploop/internal/metrics"
	"github.com/ManuGH/striploop/internal/playlist"
	"github.com/ManuGH/striploop/internal/supervisor"
)

const audioPlayer = "audio"

// AudioOptions configures an AudioPlayer. Zero durations take defaults.
type AudioOptions struct {
	Dir          string
	Order        playlist.Order
	Command      TrackCommand // fixed command; when nil Start selects one from Backend
	Backend      string       // BackendAuto when empty
	Bins         TrackBins
	TrackDelay   time.Duration // pause between tracks
	EmptyRetry   time.Duration // 5s
	EmptyTimeout time.Duration
	StopGrace    time.Duration // 5s
}

// AudioPlayer plays the audio directory one track at a time. A track whose
// player exits non-zero is logged and skipped.
type AudioPlayer struct {
	lifecycle

	opts    AudioOptions
	sup     *supervisor.Supervisor
	scanner playlist.Scanner
	command TrackCommand // set by Start before the loop runs
}

// NewAudio creates an audio-mode player.
func NewAudio(opts AudioOptions, sup *supervisor.Supervisor) *AudioPlayer {
	if opts.Order == "" {
		opts.Order = playlist.OrderSequential
	}
	if opts.Backend == "" {
		opts.Backend = BackendAuto
	}
	if opts.EmptyRetry <= 0 {
		opts.EmptyRetry = 5 * time.Second
	}
	if opts.StopGrace <= 0 {
		opts.StopGrace = 5 * time.Second
	}
	p := &AudioPlayer{
		opts:    opts,
		sup:     sup,
		scanner: playlist.Scanner{Kind: playlist.KindAudio, Order: opts.Order},
	}
	p.init(audioPlayer, xglog.WithComponent("player").With().
		Str("player", audioPlayer).
		Str(xglog.FieldDir, opts.Dir).
		Logger())
	return p
}

// Start picks the track player and begins playback.
func (p *AudioPlayer) Start(ctx context.Context) error {
	if p.Active() {
		return ErrAlreadyRunning
	}
	cmd, backend, err := p.selectCommand()
	if err != nil {
		p.mu.Lock()
		p.err = err
		p.mu.Unlock()
		p.setState(StateStopped)
		metrics.PassTotal.WithLabelValues(audioPlayer, "launch_failed").Inc()
		p.logger.Error().Err(err).Str("event", "player.launch_failed").Msg("player cannot start")
		return err
	}
	p.command = cmd
	p.logger.Info().Str("backend", backend).Str("binary", cmd.Binary()).Msg("audio backend selected")
	return p.launch(ctx, p.run)
}

func (p *AudioPlayer) selectCommand() (TrackCommand, string, error) {
	if cmd := p.opts.Command; cmd != nil {
		if _, err := p.sup.Resolve("track", cmd.Binary()); err != nil {
			return nil, "", err
		}
		return cmd, "custom", nil
	}
	return SelectTrackCommand(p.sup, p.opts.Backend, p.opts.Bins)
}

func (p *AudioPlayer) run(ctx context.Context) error {
	start := time.Now()
	sawMedia := false

	for pass := 1; ; pass++ {
		p.setState(StateStarting)
		pl, err := p.scanner.Scan(p.opts.Dir)
		if err != nil {
			if errors.Is(err, playlist.ErrEmptyDirectory) {
				metrics.EmptyScanTotal.WithLabelValues(audioPlayer).Inc()
			} else {
				p.logger.Warn().Err(err).Msg("audio scan failed, retrying")
			}
			if !sawMedia && p.opts.EmptyTimeout > 0 && time.Since(start) >= p.opts.EmptyTimeout {
				return fmt.Errorf("%s after %s: %w", p.opts.Dir, p.opts.EmptyTimeout, ErrNoMedia)
			}
			if !sleepCtx(ctx, p.opts.EmptyRetry) {
				return ctx.Err()
			}
			pass--
			continue
		}
		sawMedia = true
		metrics.PlaylistItems.WithLabelValues(audioPlayer).Set(float64(pl.Len()))
		p.setState(StateRunning)
		p.logger.Info().Str("event", "player.pass_start").Int(xglog.FieldPass, pass).Int(xglog.FieldItems, pl.Len()).Msg("audio pass started")

		first, played := true, 0
		for {
			item, ok := pl.Next()
			if !ok {
				break
			}
			if !first && !sleepCtx(ctx, p.opts.TrackDelay) {
				return ctx.Err()
			}
			first = false
			ok, err := p.playTrack(ctx, item)
			if err != nil {
				return err
			}
			if ok {
				played++
			}
			if ctx.Err() != nil {
				return ctx.Err()
			}
		}
		if played == 0 {
			// Every track failed; back off instead of spinning on broken files.
			metrics.PassTotal.WithLabelValues(audioPlayer, "degraded").Inc()
			p.setState(StateDegraded)
			if !sleepCtx(ctx, p.opts.EmptyRetry) {
				return ctx.Err()
			}
			continue
		}
		metrics.PassTotal.WithLabelValues(audioPlayer, "completed").Inc()
	}
}

func (p *AudioPlayer) playTrack(ctx context.Context, item playlist.MediaItem) (bool, error) {
	h, err := p.sup.Start(ctx, p.command.Track(item.Path))
	if err != nil {
		metrics.PassTotal.WithLabelValues(audioPlayer, "launch_failed").Inc()
		return false, err
	}
	select {
	case <-h.Done():
	case <-ctx.Done():
		_ = h.Stop(p.opts.StopGrace)
		metrics.PassTotal.WithLabelValues(audioPlayer, "stopped").Inc()
		return false, ctx.Err()
	}
	if code := h.ExitCode(); code != 0 {
		p.logger.Warn().
			Str("event", "player.track_failed").
			Str(xglog.FieldPath, item.Path).
			Int(xglog.FieldExitCode, code).
			Strs("stderr", h.Diagnostics(5)).
			Msg("track player failed, skipping")
		return false, nil
	}
	p.logger.Debug().Str(xglog.FieldPath, item.Path).Msg("track finished")
	return true, nil
}
