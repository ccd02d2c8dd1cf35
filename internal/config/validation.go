// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"strings"
	"time"

	"github.com/ManuGH/striploop/internal/validate"
)

var (
	orders    = []string{"sequential", "shuffle", "shuffled", "random"}
	backends  = []string{"auto", "mpv", "vlc", "ffplay", "aplay"}
	exporters = []string{"grpc", "http"}
)

// Validate checks a merged Config. Directories are created when missing.
func Validate(cfg Config) error {
	v := validate.New()

	v.Directory("data_dir", cfg.DataDir, false)
	v.Directory("player.dir", cfg.Player.Dir, false)
	v.Directory("audio.dir", cfg.Audio.Dir, false)
	v.Directory("ingest.raw_dir", cfg.Ingest.RawDir, false)
	v.Directory("log.dir", cfg.Log.Dir, false)
	v.Distinct(map[string]string{
		"player.dir":     cfg.Player.Dir,
		"audio.dir":      cfg.Audio.Dir,
		"ingest.raw_dir": cfg.Ingest.RawDir,
		"log.dir":        cfg.Log.Dir,
	})
	v.NotEmpty("mode_file", cfg.ModeFile)

	v.LogLevel("log.level", cfg.Log.Level)
	v.Positive("log.buffer", cfg.Log.Buffer)

	validatePlayback(v, cfg)

	in := cfg.Ingest
	v.Range("ingest.width", in.Width, 1, 16384)
	v.Range("ingest.height", in.Height, 1, 16384)
	v.NotEmpty("ingest.prefix", in.Prefix)
	if strings.ContainsAny(in.Prefix, `/\`) {
		v.AddError("ingest.prefix", "must not contain path separators", in.Prefix)
	}
	v.Range("ingest.queue_size", in.QueueSize, 1, 10000)
	v.Command("ingest.ffmpeg_bin", in.FFmpegBin)
	v.Command("ingest.ffprobe_bin", in.FFprobeBin)
	v.NotEmpty("ingest.preset", in.Preset)
	v.Range("ingest.crf", in.CRF, 0, 51)
	v.MinDuration("ingest.probe_timeout", in.ProbeTimeout, time.Second)
	v.MinDuration("ingest.transform_timeout", in.TransformTimeout, time.Second)
	v.MinDuration("ingest.watch_settle", in.WatchSettle, 0)
	v.NotEmpty("ingest.journal_path", in.JournalPath)

	v.ListenAddr("api.listen", cfg.API.Listen)
	if cfg.API.MaxUploadBytes <= 0 {
		v.AddError("api.max_upload_bytes", "value must be positive", cfg.API.MaxUploadBytes)
	}
	v.NonNegative("api.rate_limit", cfg.API.RateLimit)
	v.MinDuration("api.shutdown_timeout", cfg.API.ShutdownTimeout, time.Second)

	if cfg.Telemetry.Enabled {
		v.OneOf("telemetry.exporter", cfg.Telemetry.Exporter, exporters)
		v.NotEmpty("telemetry.endpoint", cfg.Telemetry.Endpoint)
		v.FloatRange("telemetry.sampling_rate", cfg.Telemetry.SamplingRate, 0, 1)
	}

	return v.Err()
}

// ValidatePlayback checks only the player and audio sections. It touches no
// directories, so a standalone player can run without the daemon's layout.
func ValidatePlayback(cfg Config) error {
	v := validate.New()
	v.LogLevel("log.level", cfg.Log.Level)
	validatePlayback(v, cfg)
	return v.Err()
}

func validatePlayback(v *validate.Validator, cfg Config) {
	pl := cfg.Player
	v.OneOf("player.order", strings.ToLower(pl.Order), orders)
	v.Command("player.ffmpeg_bin", pl.FFmpegBin)
	v.Command("player.ffplay_bin", pl.FFplayBin)
	v.Range("player.manifest_repeat", pl.ManifestRepeat, 1, 1000)
	v.MinDuration("player.poll_interval", pl.PollInterval, 100*time.Millisecond)
	v.MinDuration("player.empty_retry", pl.EmptyRetry, 100*time.Millisecond)
	v.MinDuration("player.cooldown", pl.Cooldown, 0)
	v.MinDuration("player.drain_timeout", pl.DrainTimeout, time.Second)
	v.MinDuration("player.stop_grace", pl.StopGrace, 100*time.Millisecond)
	v.MinDuration("player.pass_delay", pl.PassDelay, 0)
	v.Positive("player.restart_burst", pl.RestartBurst)
	v.MinDuration("player.restart_window", pl.RestartWindow, time.Second)

	au := cfg.Audio
	v.OneOf("audio.order", strings.ToLower(au.Order), orders)
	v.OneOf("audio.backend", strings.ToLower(au.Backend), backends)
	v.Command("audio.ffplay_bin", au.FFplayBin)
	v.Command("audio.mpv_bin", au.MPVBin)
	v.Command("audio.vlc_bin", au.VLCBin)
	v.Command("audio.aplay_bin", au.AplayBin)
	v.MinDuration("audio.track_delay", au.TrackDelay, 0)
	v.MinDuration("audio.empty_retry", au.EmptyRetry, 100*time.Millisecond)
	v.MinDuration("audio.stop_grace", au.StopGrace, 100*time.Millisecond)
}
