// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"path/filepath"
	"time"
)

// DefaultDataDir is used when neither file nor env name one.
const DefaultDataDir = "/var/lib/striploop"

// Defaults returns the built-in configuration. Directory fields stay empty and are
// derived from DataDir after file and env have been applied.
func Defaults() Config {
	return Config{
		DataDir: DefaultDataDir,
		Log: LogConfig{
			Level:  "info",
			Buffer: 1024,
		},
		Player: PlayerConfig{
			Order:          "sequential",
			FFmpegBin:      "ffmpeg",
			FFplayBin:      "ffplay",
			Display:        ":0",
			ManifestRepeat: 1,
			PollInterval:   2 * time.Second,
			EmptyRetry:     5 * time.Second,
			Cooldown:       3 * time.Second,
			DrainTimeout:   10 * time.Second,
			StopGrace:      5 * time.Second,
			RestartBurst:   5,
			RestartWindow:  time.Minute,
		},
		Audio: AudioConfig{
			Order:      "sequential",
			Backend:    "auto",
			FFplayBin:  "ffplay",
			MPVBin:     "mpv",
			VLCBin:     "cvlc",
			AplayBin:   "aplay",
			TrackDelay: 2 * time.Second,
			EmptyRetry: 5 * time.Second,
			StopGrace:  5 * time.Second,
		},
		Ingest: IngestConfig{
			Width:            3072,
			Height:           64,
			Prefix:           "strip_",
			QueueSize:        64,
			FFmpegBin:        "ffmpeg",
			Preset:           "veryfast",
			CRF:              23,
			MaxRate:          "2M",
			BufSize:          "4M",
			ProbeTimeout:     10 * time.Second,
			TransformTimeout: time.Hour,
			WatchSettle:      2 * time.Second,
		},
		API: APIConfig{
			Listen:          ":8080",
			MaxUploadBytes:  5 << 30,
			RateLimit:       120,
			ShutdownTimeout: 10 * time.Second,
		},
		Telemetry: TelemetryConfig{
			ServiceName:  "striploop",
			Exporter:     "grpc",
			Endpoint:     "localhost:4317",
			SamplingRate: 1.0,
		},
	}
}

// deriveDirs fills every empty path from DataDir.
func deriveDirs(cfg *Config) {
	derive := func(dst *string, name string) {
		if *dst == "" {
			*dst = filepath.Join(cfg.DataDir, name)
		}
	}
	derive(&cfg.Player.Dir, "processed")
	derive(&cfg.Audio.Dir, "audio")
	derive(&cfg.Ingest.RawDir, "raw")
	derive(&cfg.ModeFile, "mode")
	derive(&cfg.Log.Dir, "logs")
	derive(&cfg.Ingest.JournalPath, "ingest.db")
}
