// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ManuGH/striploop/internal/config"
	"github.com/ManuGH/striploop/internal/daemon"
	xglog "github.com/ManuGH/striploop/internal/log"
	"github.com/ManuGH/striploop/internal/player"
	"github.com/ManuGH/striploop/internal/playlist"
	"github.com/ManuGH/striploop/internal/supervisor"
	"github.com/ManuGH/striploop/internal/version"
)

type playOptions struct {
	shuffle      bool
	delay        float64
	audio        bool
	backend      string
	emptyTimeout time.Duration
	logDir       string
}

// playback is the part of both players the play command drives.
type playback interface {
	Start(ctx context.Context) error
	Stop() error
	Done() <-chan struct{}
	Err() error
}

func newPlayCmd(root *rootOptions) *cobra.Command {
	opts := &playOptions{}
	cmd := &cobra.Command{
		Use:   "play <dir>",
		Short: "Loop the media in one directory in the foreground",
		Long: "Play every recognized file in <dir> forever, rescanning between passes.\n" +
			"Exit codes: 0 stopped by signal, 2 no media within --empty-timeout, 3 player binary cannot launch, 1 other errors.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runPlay(cmd.Context(), root, opts, args[0])
		},
	}
	f := cmd.Flags()
	f.BoolVar(&opts.shuffle, "shuffle", false, "shuffle each pass instead of playing in name order")
	f.Float64Var(&opts.delay, "delay", 0, "seconds to pause between passes (between tracks with --audio)")
	f.BoolVar(&opts.audio, "audio", false, "play audio tracks one by one instead of concatenated video")
	f.StringVar(&opts.backend, "backend", "", "audio track player: auto, mpv, vlc, ffplay or aplay (default from config)")
	f.DurationVar(&opts.emptyTimeout, "empty-timeout", 0, "give up when no media appears within this long (0 waits forever)")
	f.StringVar(&opts.logDir, "log-dir", "", "append process diagnostics to <log-dir>/<component>.log")
	return cmd
}

func runPlay(ctx context.Context, root *rootOptions, opts *playOptions, dir string) error {
	if opts.delay < 0 {
		return fmt.Errorf("--delay must not be negative, got %v", opts.delay)
	}
	cfg, err := config.NewLoader(root.configPath, version.Version).LoadPlayback()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	configureLogging(root, cfg)
	logger := xglog.WithComponent("play")

	sink := xglog.NewDiagnosticSink(opts.logDir, cfg.Log.Buffer)
	go sink.Run(context.WithoutCancel(ctx))
	defer func() {
		sink.Close()
		sink.Wait()
	}()

	ov := daemon.VideoOverrides{
		Dir:          dir,
		PassDelay:    time.Duration(opts.delay * float64(time.Second)),
		EmptyTimeout: opts.emptyTimeout,
	}
	if opts.shuffle {
		ov.Order = playlist.OrderShuffle
	}
	if opts.backend != "" {
		b := strings.ToLower(opts.backend)
		if b != player.BackendAuto && !slices.Contains(player.AudioBackends, b) {
			return fmt.Errorf("--backend must be one of auto, %s, got %q", strings.Join(player.AudioBackends, ", "), opts.backend)
		}
		ov.Backend = b
	}

	var p playback
	if opts.audio {
		p, err = daemon.NewAudioPlayer(cfg.Audio, sink, ov)
	} else {
		p, err = daemon.NewVideoPlayer(cfg.Player, sink, ov)
	}
	if err != nil {
		return err
	}

	if err := p.Start(ctx); err != nil {
		return classifyPlayError(err)
	}
	logger.Info().Str("dir", dir).Bool("audio", opts.audio).Bool("shuffle", opts.shuffle).Msg("playing")

	select {
	case <-ctx.Done():
		_ = p.Stop()
		logger.Info().Msg("stopped")
		return nil
	case <-p.Done():
	}
	if err := p.Err(); err != nil {
		return classifyPlayError(err)
	}
	return errors.New("player stopped unexpectedly")
}

func classifyPlayError(err error) error {
	switch {
	case errors.Is(err, player.ErrNoMedia):
		return &exitError{code: exitNoMedia, err: err}
	case errors.Is(err, supervisor.ErrLaunch):
		return &exitError{code: exitLaunch, err: err}
	default:
		return &exitError{code: exitFailure, err: err}
	}
}
