// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package daemon

import (
	"context"
	"errors"
	"fmt"

	"github.com/ManuGH/striploop/internal/api"
	"github.com/ManuGH/striploop/internal/config"
	"github.com/ManuGH/striploop/internal/health"
	"github.com/ManuGH/striploop/internal/ingest"
	xglog "github.com/ManuGH/striploop/internal/log"
	"github.com/ManuGH/striploop/internal/mode"
	"github.com/ManuGH/striploop/internal/player"
	"github.com/ManuGH/striploop/internal/supervisor"
	"github.com/ManuGH/striploop/internal/telemetry"
)

// App is a fully wired daemon.
type App struct {
	Config   config.Config
	Manager  *Manager
	Modes    *mode.Controller
	Pipeline *ingest.Pipeline
	Video    *player.ConcatPlayer
	Audio    *player.AudioPlayer

	sink *xglog.DiagnosticSink
}

// Build wires every subsystem from cfg. Nothing runs until Run.
func Build(ctx context.Context, cfg config.Config) (app *App, err error) {
	var cleanups []func()
	defer func() {
		if err != nil {
			for i := len(cleanups) - 1; i >= 0; i-- {
				cleanups[i]()
			}
		}
	}()

	tp, err := telemetry.NewProvider(ctx, telemetry.Config{
		Enabled:        cfg.Telemetry.Enabled,
		ServiceName:    cfg.Telemetry.ServiceName,
		ServiceVersion: cfg.Version,
		DeviceID:       cfg.Telemetry.DeviceID,
		ExporterType:   cfg.Telemetry.Exporter,
		Endpoint:       cfg.Telemetry.Endpoint,
		SamplingRate:   cfg.Telemetry.SamplingRate,
	})
	if err != nil {
		return nil, fmt.Errorf("telemetry: %w", err)
	}
	cleanups = append(cleanups, func() { _ = tp.Shutdown(context.Background()) })

	sink := xglog.NewDiagnosticSink(cfg.Log.Dir, cfg.Log.Buffer)

	video, err := NewVideoPlayer(cfg.Player, sink, VideoOverrides{})
	if err != nil {
		return nil, err
	}
	audio, err := NewAudioPlayer(cfg.Audio, sink, VideoOverrides{})
	if err != nil {
		return nil, err
	}

	modes, err := mode.New(mode.FileStore{Path: cfg.ModeFile}, map[mode.Mode]mode.Service{
		mode.Video: video,
		mode.Audio: audio,
	})
	if err != nil {
		return nil, err
	}

	journal, err := ingest.OpenSQLiteJournal(ctx, cfg.Ingest.JournalPath)
	if err != nil {
		return nil, err
	}
	cleanups = append(cleanups, func() { _ = journal.Close() })

	ingestSup := supervisor.New(ComponentIngest, sink)
	pipeline, err := ingest.New(ingest.Options{
		RawDir:       cfg.Ingest.RawDir,
		ProcessedDir: cfg.Player.Dir,
		Prefix:       cfg.Ingest.Prefix,
		Width:        cfg.Ingest.Width,
		Height:       cfg.Ingest.Height,
		QueueSize:    cfg.Ingest.QueueSize,
		Prober: ingest.FFprobe{
			Bin:     cfg.Ingest.FFprobeBin,
			Sup:     ingestSup,
			Timeout: cfg.Ingest.ProbeTimeout,
		},
		Transformer: ingest.FFmpegTransformer{
			Bin:     cfg.Ingest.FFmpegBin,
			Sup:     ingestSup,
			Preset:  cfg.Ingest.Preset,
			CRF:     cfg.Ingest.CRF,
			MaxRate: cfg.Ingest.MaxRate,
			BufSize: cfg.Ingest.BufSize,
			Timeout: cfg.Ingest.TransformTimeout,
		},
		Journal: journal,
	})
	if err != nil {
		return nil, err
	}

	checks := health.NewManager(cfg.Version)
	checks.RegisterChecker(health.NewPlaybackChecker(modes))
	checks.RegisterChecker(health.NewDirChecker("processed_dir", cfg.Player.Dir))
	checks.RegisterChecker(health.NewDirChecker("raw_dir", cfg.Ingest.RawDir))
	checks.RegisterChecker(health.NewPingChecker("ingest_journal", journal))

	tracing := ""
	if cfg.Telemetry.Enabled {
		tracing = cfg.Telemetry.ServiceName
	}
	srv := api.New(api.Config{
		MaxUploadBytes: cfg.API.MaxUploadBytes,
		RateLimit:      cfg.API.RateLimit,
		TracingService: tracing,
		Version:        cfg.Version,
		Health:         checks,
	}, pipeline, modes)

	mgr, err := NewManager(ServerConfig{
		ListenAddr:      cfg.API.Listen,
		ShutdownTimeout: cfg.API.ShutdownTimeout,
	}, srv.Handler())
	if err != nil {
		return nil, err
	}

	mgr.AddWorker("ingest", pipeline.Run)
	if cfg.Ingest.WatchRaw {
		mgr.AddWorker("raw-watcher", ingest.NewWatcher(cfg.Ingest.RawDir, pipeline, cfg.Ingest.WatchSettle).Run)
	}

	// LIFO: players stop first, the sink flushes their last lines, telemetry last.
	mgr.RegisterShutdownHook("telemetry", tp.Shutdown)
	mgr.RegisterShutdownHook("journal", func(context.Context) error { return journal.Close() })
	mgr.RegisterShutdownHook("diagnostics", func(context.Context) error {
		sink.Close()
		sink.Wait()
		return nil
	})
	mgr.RegisterShutdownHook("ingest", func(context.Context) error {
		pipeline.Close()
		return nil
	})
	mgr.RegisterShutdownHook("playback", modes.Shutdown)

	return &App{
		Config:   cfg,
		Manager:  mgr,
		Modes:    modes,
		Pipeline: pipeline,
		Video:    video,
		Audio:    audio,
		sink:     sink,
	}, nil
}

// Run starts diagnostics, the persisted playback mode, then the manager, and
// blocks until ctx ends or a subsystem fails. A mode that cannot start is
// fatal: it is returned after everything already running is torn down.
func (a *App) Run(ctx context.Context) error {
	logger := xglog.WithComponent("daemon")
	go a.sink.Run(context.WithoutCancel(ctx))

	if err := a.Modes.Startup(ctx); err != nil {
		logger.Error().Err(err).Str("event", "mode.startup_failed").Msg("no playback supervisor could be started")
		return errors.Join(err, a.Manager.Shutdown(ctx))
	}
	logger.Info().
		Str(xglog.FieldMode, string(a.Modes.Current())).
		Str("listen", a.Config.API.Listen).
		Msg("striploop running")
	return a.Manager.Start(ctx)
}
