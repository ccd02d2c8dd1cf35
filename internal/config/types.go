// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import "time"

// Config is the effective application configuration.
type Config struct {
	// DataDir is the root for every directory not configured explicitly.
	DataDir  string `yaml:"data_dir"`
	ModeFile string `yaml:"mode_file"`

	Log       LogConfig       `yaml:"log"`
	Player    PlayerConfig    `yaml:"player"`
	Audio     AudioConfig     `yaml:"audio"`
	Ingest    IngestConfig    `yaml:"ingest"`
	API       APIConfig       `yaml:"api"`
	Telemetry TelemetryConfig `yaml:"telemetry"`

	// Version is stamped from the binary, never read from file or env.
	Version string `yaml:"-"`
}

// LogConfig controls the application log and the per-process diagnostic files.
type LogConfig struct {
	Level string `yaml:"level"`
	// Dir receives <component>.log files with supervised process stderr.
	Dir string `yaml:"dir"`
	// Buffer is the diagnostic line queue length; lines beyond it are dropped.
	Buffer int `yaml:"buffer"`
}

// PlayerConfig configures the two-stage video player.
type PlayerConfig struct {
	// Dir is the processed store the player scans; ingest promotes into it.
	Dir            string        `yaml:"dir"`
	Order          string        `yaml:"order"`
	FFmpegBin      string        `yaml:"ffmpeg_bin"`
	FFplayBin      string        `yaml:"ffplay_bin"`
	Filter         string        `yaml:"filter"`
	Display        string        `yaml:"display"`
	ManifestRepeat int           `yaml:"manifest_repeat"`
	PollInterval   time.Duration `yaml:"poll_interval"`
	EmptyRetry     time.Duration `yaml:"empty_retry"`
	Cooldown       time.Duration `yaml:"cooldown"`
	DrainTimeout   time.Duration `yaml:"drain_timeout"`
	StopGrace      time.Duration `yaml:"stop_grace"`
	PassDelay      time.Duration `yaml:"pass_delay"`
	RestartBurst   int           `yaml:"restart_burst"`
	RestartWindow  time.Duration `yaml:"restart_window"`
}

// AudioConfig configures the per-track audio player.
type AudioConfig struct {
	Dir        string        `yaml:"dir"`
	Order      string        `yaml:"order"`
	Backend    string        `yaml:"backend"` // auto, mpv, vlc, ffplay or aplay
	FFplayBin  string        `yaml:"ffplay_bin"`
	MPVBin     string        `yaml:"mpv_bin"`
	VLCBin     string        `yaml:"vlc_bin"`
	AplayBin   string        `yaml:"aplay_bin"`
	TrackDelay time.Duration `yaml:"track_delay"`
	EmptyRetry time.Duration `yaml:"empty_retry"`
	StopGrace  time.Duration `yaml:"stop_grace"`
}

// IngestConfig configures validation and transformation of uploads.
type IngestConfig struct {
	RawDir           string        `yaml:"raw_dir"`
	Width            int           `yaml:"width"`
	Height           int           `yaml:"height"`
	Prefix           string        `yaml:"prefix"`
	QueueSize        int           `yaml:"queue_size"`
	FFmpegBin        string        `yaml:"ffmpeg_bin"`
	FFprobeBin       string        `yaml:"ffprobe_bin"`
	Preset           string        `yaml:"preset"`
	CRF              int           `yaml:"crf"`
	MaxRate          string        `yaml:"maxrate"`
	BufSize          string        `yaml:"bufsize"`
	ProbeTimeout     time.Duration `yaml:"probe_timeout"`
	TransformTimeout time.Duration `yaml:"transform_timeout"`
	WatchRaw         bool          `yaml:"watch_raw"`
	WatchSettle      time.Duration `yaml:"watch_settle"`
	// JournalPath is the SQLite job history. MemoryJournal keeps it in process.
	JournalPath string `yaml:"journal_path"`
}

// APIConfig configures the control HTTP surface.
type APIConfig struct {
	Listen          string        `yaml:"listen"`
	MaxUploadBytes  int64         `yaml:"max_upload_bytes"`
	RateLimit       int           `yaml:"rate_limit"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// TelemetryConfig configures OTLP trace export.
type TelemetryConfig struct {
	Enabled      bool    `yaml:"enabled"`
	ServiceName  string  `yaml:"service_name"`
	DeviceID     string  `yaml:"device_id"`
	Exporter     string  `yaml:"exporter"`
	Endpoint     string  `yaml:"endpoint"`
	SamplingRate float64 `yaml:"sampling_rate"`
}
