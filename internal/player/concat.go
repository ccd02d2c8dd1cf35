// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package player

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	xglog "github.com/ManuGH/striploop/internal/log"
	"github.com/ManuGH/striploop/internal/metrics"
	"github.com/ManuGH/striploop/internal/playlist"
	"github.com/ManuGH/striploop/internal/supervisor"
)

const videoPlayer = "video"

// ConcatOptions configures a ConcatPlayer. Zero durations take the defaults below.
type ConcatOptions struct {
	Dir            string
	Order          playlist.Order
	Stages         Stages
	ManifestDir    string // defaults to os.TempDir()
	ManifestRepeat int

	PollInterval time.Duration // 2s
	EmptyRetry   time.Duration // 5s
	EmptyTimeout time.Duration // 0 waits forever
	Cooldown     time.Duration // 3s
	DrainTimeout time.Duration // 10s
	StopGrace    time.Duration // 5s
	PassDelay    time.Duration

	RestartBurst  int           // 5
	RestartWindow time.Duration // 1m
}

func (o *ConcatOptions) applyDefaults() {
	if o.Order == "" {
		o.Order = playlist.OrderSequential
	}
	if o.Stages == nil {
		o.Stages = FFmpegStages{}
	}
	if o.ManifestDir == "" {
		o.ManifestDir = os.TempDir()
	}
	if o.PollInterval <= 0 {
		o.PollInterval = 2 * time.Second
	}
	if o.EmptyRetry <= 0 {
		o.EmptyRetry = 5 * time.Second
	}
	if o.Cooldown <= 0 {
		o.Cooldown = 3 * time.Second
	}
	if o.DrainTimeout <= 0 {
		o.DrainTimeout = 10 * time.Second
	}
	if o.StopGrace <= 0 {
		o.StopGrace = 5 * time.Second
	}
	if o.RestartBurst <= 0 {
		o.RestartBurst = 5
	}
	if o.RestartWindow <= 0 {
		o.RestartWindow = time.Minute
	}
}

type passOutcome int

const (
	passCompleted passOutcome = iota
	passDegraded
	passStopped
)

// ConcatPlayer plays every file of a directory as one gapless pass: a decode
// stage concatenates the playlist into a single stream piped into a render stage.
// Passes repeat until Stop; a failed pass is torn down and restarted from the top.
type ConcatPlayer struct {
	lifecycle

	opts    ConcatOptions
	sup     *supervisor.Supervisor
	scanner playlist.Scanner
	limiter *rate.Limiter

	passes   atomic.Int64
	restarts atomic.Int64
}

// NewConcat creates a video player. sup launches the decode and render stages.
func NewConcat(opts ConcatOptions, sup *supervisor.Supervisor) *ConcatPlayer {
	opts.applyDefaults()
	p := &ConcatPlayer{
		opts:    opts,
		sup:     sup,
		scanner: playlist.Scanner{Kind: playlist.KindVideo, Order: opts.Order},
		limiter: rate.NewLimiter(rate.Every(opts.RestartWindow/time.Duration(opts.RestartBurst)), opts.RestartBurst),
	}
	p.init(videoPlayer, xglog.WithComponent("player").With().
		Str("player", videoPlayer).
		Str(xglog.FieldDir, opts.Dir).
		Logger())
	return p
}

// Passes returns the number of passes started so far.
func (p *ConcatPlayer) Passes() int64 { return p.passes.Load() }

// Restarts returns the number of degraded passes so far.
func (p *ConcatPlayer) Restarts() int64 { return p.restarts.Load() }

// Start checks that both stage binaries exist and begins the playback loop.
// A missing binary is returned as a *supervisor.LaunchError and leaves the
// player Stopped.
func (p *ConcatPlayer) Start(ctx context.Context) error {
	for _, spec := range []supervisor.Spec{p.opts.Stages.Decode(""), p.opts.Stages.Render()} {
		if _, err := p.sup.Resolve(spec.Name, spec.Path); err != nil {
			p.fail(err)
			metrics.PassTotal.WithLabelValues(videoPlayer, "launch_failed").Inc()
			return err
		}
	}
	return p.launch(ctx, p.run)
}

func (p *ConcatPlayer) fail(err error) {
	p.mu.Lock()
	p.err = err
	p.mu.Unlock()
	p.setState(StateStopped)
	p.logger.Error().Err(err).Str("event", "player.launch_failed").Msg("player cannot start")
}

func (p *ConcatPlayer) run(ctx context.Context) error {
	start := time.Now()
	sawMedia := false

	for {
		p.setState(StateStarting)

		pl, err := p.awaitPlaylist(ctx, start, &sawMedia)
		if err != nil {
			return err
		}

		pass := int(p.passes.Add(1))
		outcome, err := p.runPass(ctx, pass, pl)
		if err != nil {
			return err
		}

		switch outcome {
		case passStopped:
			return ctx.Err()
		case passCompleted:
			if !sleepCtx(ctx, p.opts.PassDelay) {
				return ctx.Err()
			}
		case passDegraded:
			p.restarts.Add(1)
			p.setState(StateDegraded)
			if !sleepCtx(ctx, p.opts.Cooldown) {
				return ctx.Err()
			}
			if err := p.limiter.Wait(ctx); err != nil {
				return ctx.Err()
			}
		}
	}
}

// awaitPlaylist scans until the directory holds media. The empty timeout only
// applies while no media has ever been seen.
func (p *ConcatPlayer) awaitPlaylist(ctx context.Context, start time.Time, sawMedia *bool) (*playlist.Playlist, error) {
	for {
		pl, err := p.scanner.Scan(p.opts.Dir)
		if err == nil {
			*sawMedia = true
			metrics.PlaylistItems.WithLabelValues(videoPlayer).Set(float64(pl.Len()))
			return pl, nil
		}
		if errors.Is(err, playlist.ErrEmptyDirectory) {
			metrics.EmptyScanTotal.WithLabelValues(videoPlayer).Inc()
			p.logger.Debug().Str("event", "player.empty").Msg("no media yet, retrying")
		} else {
			p.logger.Warn().Err(err).Str("event", "player.scan_failed").Msg("playlist scan failed, retrying")
		}

		if !*sawMedia && p.opts.EmptyTimeout > 0 && time.Since(start) >= p.opts.EmptyTimeout {
			return nil, fmt.Errorf("%s after %s: %w", p.opts.Dir, p.opts.EmptyTimeout, ErrNoMedia)
		}
		if !sleepCtx(ctx, p.opts.EmptyRetry) {
			return nil, ctx.Err()
		}
	}
}

func (p *ConcatPlayer) runPass(ctx context.Context, pass int, pl *playlist.Playlist) (passOutcome, error) {
	logger := p.logger.With().
		Str(xglog.FieldSessionID, uuid.NewString()).
		Int(xglog.FieldPass, pass).
		Int(xglog.FieldItems, pl.Len()).
		Str(xglog.FieldOrder, string(pl.Order)).
		Logger()

	manifest, err := p.writeManifest(pl)
	if err != nil {
		logger.Error().Err(err).Str("event", "player.manifest_failed").Msg("cannot write concat manifest")
		metrics.PassTotal.WithLabelValues(videoPlayer, "degraded").Inc()
		return passDegraded, nil
	}
	defer func() { _ = os.Remove(manifest) }()

	pr, pw, err := os.Pipe()
	if err != nil {
		logger.Error().Err(err).Msg("cannot create stage pipe")
		metrics.PassTotal.WithLabelValues(videoPlayer, "degraded").Inc()
		return passDegraded, nil
	}
	closePipe := func() {
		_ = pr.Close()
		_ = pw.Close()
	}

	decodeSpec := p.opts.Stages.Decode(manifest)
	decodeSpec.Stdout = pw
	renderSpec := p.opts.Stages.Render()
	renderSpec.Stdin = pr

	decode, err := p.sup.Start(ctx, decodeSpec)
	if err != nil {
		closePipe()
		return p.startFailed(err)
	}
	render, err := p.sup.Start(ctx, renderSpec)
	if err != nil {
		closePipe()
		_ = decode.Stop(p.opts.StopGrace)
		return p.startFailed(err)
	}
	// Both children hold their own copies now.
	closePipe()

	p.setState(StateRunning)
	logger.Info().Str("event", "player.pass_start").Msg("pass started")

	ticker := time.NewTicker(p.opts.PollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			p.teardown(decode, render)
			metrics.PassTotal.WithLabelValues(videoPlayer, "stopped").Inc()
			logger.Info().Str("event", "player.pass_stopped").Msg("pass stopped")
			return passStopped, nil
		case <-ticker.C:
		}

		decodeAlive, renderAlive := decode.Alive(), render.Alive()
		if decodeAlive && renderAlive {
			continue
		}

		switch {
		case !decodeAlive && decode.ExitCode() == 0 && (renderAlive || render.ExitCode() == 0):
			if renderAlive && !p.drain(ctx, render, logger) {
				p.teardown(decode, render)
				metrics.PassTotal.WithLabelValues(videoPlayer, "stopped").Inc()
				return passStopped, nil
			}
			metrics.PassTotal.WithLabelValues(videoPlayer, "completed").Inc()
			logger.Info().
				Str("event", "player.pass_done").
				Int("render_exit", render.ExitCode()).
				Msg("pass completed")
			return passCompleted, nil

		case !decodeAlive:
			first := exitedFirst(decode, render)
			if render.Alive() {
				_ = render.Stop(p.opts.StopGrace)
			}
			p.degraded(logger, first, decode, render)
			return passDegraded, nil

		default:
			first := exitedFirst(decode, render)
			_ = decode.Stop(p.opts.StopGrace)
			p.degraded(logger, first, decode, render)
			return passDegraded, nil
		}
	}
}

// drain waits for the render stage to play out buffered input after decode
// finished. It returns false if the player was stopped meanwhile.
func (p *ConcatPlayer) drain(ctx context.Context, render *supervisor.Handle, logger zerolog.Logger) bool {
	timer := time.NewTimer(p.opts.DrainTimeout)
	defer timer.Stop()
	select {
	case <-render.Done():
		return true
	case <-timer.C:
		logger.Warn().Dur("drain_timeout", p.opts.DrainTimeout).Msg("render did not finish after decode, stopping it")
		_ = render.Stop(p.opts.StopGrace)
		return true
	case <-ctx.Done():
		return false
	}
}

// exitedFirst names the stage that ended first. Call it before stopping the
// survivor; a stage still alive cannot have exited first.
func exitedFirst(decode, render *supervisor.Handle) string {
	switch {
	case render.Alive():
		return "decode"
	case decode.Alive():
		return "render"
	}
	d, r := decode.ExitedAt(), render.ExitedAt()
	switch {
	case r.Before(d):
		return "render"
	case d.Before(r):
		return "decode"
	default:
		return "both"
	}
}

func (p *ConcatPlayer) degraded(logger zerolog.Logger, first string, decode, render *supervisor.Handle) {
	metrics.PassTotal.WithLabelValues(videoPlayer, "degraded").Inc()
	logger.Warn().
		Str("event", "player.degraded").
		Str("exited_first", first).
		Int("decode_exit", decode.ExitCode()).
		Int("render_exit", render.ExitCode()).
		Strs("decode_stderr", decode.Diagnostics(5)).
		Strs("render_stderr", render.Diagnostics(5)).
		Msg("stage exited unexpectedly, restarting pass")
}

func (p *ConcatPlayer) startFailed(err error) (passOutcome, error) {
	if errors.Is(err, supervisor.ErrLaunch) {
		metrics.PassTotal.WithLabelValues(videoPlayer, "launch_failed").Inc()
		return passStopped, err
	}
	p.logger.Error().Err(err).Msg("stage start failed")
	metrics.PassTotal.WithLabelValues(videoPlayer, "degraded").Inc()
	return passDegraded, nil
}

func (p *ConcatPlayer) teardown(handles ...*supervisor.Handle) {
	for _, h := range handles {
		if h != nil {
			_ = h.Stop(p.opts.StopGrace)
		}
	}
}

func (p *ConcatPlayer) writeManifest(pl *playlist.Playlist) (string, error) {
	f, err := os.CreateTemp(p.opts.ManifestDir, ".striploop-*.ffconcat")
	if err != nil {
		return "", err
	}
	if err := playlist.WriteConcatManifest(f, pl.Items, p.opts.ManifestRepeat); err != nil {
		_ = f.Close()
		_ = os.Remove(f.Name())
		return "", err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(f.Name())
		return "", err
	}
	return f.Name(), nil
}

func sleepCtx(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return ctx.Err() == nil
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
