// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Loader handles configuration loading with precedence
type Loader struct {
	configPath      string
	version         string
	ConsumedEnvKeys map[string]struct{} // Mechanical tracking of consumed keys
}

// NewLoader creates a new configuration loader. configPath may be empty.
func NewLoader(configPath, version string) *Loader {
	return &Loader{
		configPath:      configPath,
		version:         version,
		ConsumedEnvKeys: make(map[string]struct{}),
	}
}

// Wrapper methods for mechanical connection tracking

func (l *Loader) envString(key, defaultVal string) string {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseString(key, defaultVal)
}

func (l *Loader) envBool(key string, defaultVal bool) bool {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseBool(key, defaultVal)
}

func (l *Loader) envInt(key string, defaultVal int) int {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt(key, defaultVal)
}

func (l *Loader) envInt64(key string, defaultVal int64) int64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseInt64(key, defaultVal)
}

func (l *Loader) envFloat(key string, defaultVal float64) float64 {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseFloat(key, defaultVal)
}

func (l *Loader) envDuration(key string, defaultVal time.Duration) time.Duration {
	l.ConsumedEnvKeys[key] = struct{}{}
	return ParseDuration(key, defaultVal)
}

// Load loads configuration with precedence: ENV > File > Defaults
// It enforces Strict Validated Order: Parse File (Strict) -> Apply Env -> Validate
func (l *Loader) Load() (Config, error) {
	cfg, err := l.merge()
	if err != nil {
		return cfg, err
	}
	if err := Validate(cfg); err != nil {
		return cfg, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return cfg, nil
}

// LoadPlayback merges like Load but validates only what a standalone player needs.
func (l *Loader) LoadPlayback() (Config, error) {
	cfg, err := l.merge()
	if err != nil {
		return cfg, err
	}
	if err := ValidatePlayback(cfg); err != nil {
		return cfg, fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	return cfg, nil
}

func (l *Loader) merge() (Config, error) {
	// 1. Defaults
	cfg := Defaults()

	// 2. File (optional)
	if l.configPath != "" {
		if err := l.loadFile(l.configPath, &cfg); err != nil {
			return cfg, fmt.Errorf("load config file: %w", err)
		}
	}

	// 3. Environment (highest priority)
	l.mergeEnv(&cfg)

	if abs, err := filepath.Abs(cfg.DataDir); err == nil {
		cfg.DataDir = abs
	}
	deriveDirs(&cfg)
	cfg.Ingest.FFprobeBin = ResolveSibling(cfg.Ingest.FFprobeBin, cfg.Ingest.FFmpegBin, "ffprobe")
	cfg.Version = l.version
	return cfg, nil
}

// UnknownEnvKeys lists STRIPLOOP_* variables in the environment that Load did not
// consume, sorted. Typos in override names show up here.
func (l *Loader) UnknownEnvKeys() []string {
	var unknown []string
	for _, kv := range os.Environ() {
		key, _, _ := strings.Cut(kv, "=")
		if !strings.HasPrefix(key, EnvPrefix) {
			continue
		}
		if _, ok := l.ConsumedEnvKeys[key]; !ok {
			unknown = append(unknown, key)
		}
	}
	slices.Sort(unknown)
	return unknown
}

// loadFile decodes a YAML file over cfg with STRICT parsing.
// Unknown fields will cause a fatal error to prevent misconfiguration.
func (l *Loader) loadFile(path string, cfg *Config) error {
	path = filepath.Clean(path)

	ext := strings.ToLower(filepath.Ext(path))
	if ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("unsupported config format: %s (only YAML supported)", ext)
	}

	// #nosec G304 -- configuration file paths are provided by the operator via CLI/ENV
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read file: %w", err)
	}

	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true) // Reject unknown fields

	if err := dec.Decode(cfg); err != nil {
		if errors.Is(err, io.EOF) {
			return nil
		}
		if strings.Contains(err.Error(), "field") && strings.Contains(err.Error(), "not found") {
			return fmt.Errorf("%w: strict config parse error: %w", ErrUnknownConfigField, err)
		}
		return fmt.Errorf("strict config parse error: %w", err)
	}

	// Strict: Ensure no multiple documents or trailing content
	if err := dec.Decode(&struct{}{}); !errors.Is(err, io.EOF) {
		return fmt.Errorf("config file contains multiple documents or trailing content")
	}
	return nil
}

func (l *Loader) mergeEnv(cfg *Config) {
	const p = EnvPrefix

	cfg.DataDir = l.envString(p+"DATA_DIR", cfg.DataDir)
	cfg.ModeFile = l.envString(p+"MODE_FILE", cfg.ModeFile)

	cfg.Log.Level = l.envString(p+"LOG_LEVEL", cfg.Log.Level)
	cfg.Log.Dir = l.envString(p+"LOG_DIR", cfg.Log.Dir)
	cfg.Log.Buffer = l.envInt(p+"LOG_BUFFER", cfg.Log.Buffer)

	pl := &cfg.Player
	pl.Dir = l.envString(p+"PLAYER_DIR", pl.Dir)
	pl.Order = l.envString(p+"PLAYER_ORDER", pl.Order)
	pl.FFmpegBin = l.envString(p+"PLAYER_FFMPEG_BIN", pl.FFmpegBin)
	pl.FFplayBin = l.envString(p+"PLAYER_FFPLAY_BIN", pl.FFplayBin)
	pl.Filter = l.envString(p+"PLAYER_FILTER", pl.Filter)
	pl.Display = l.envString(p+"PLAYER_DISPLAY", pl.Display)
	pl.ManifestRepeat = l.envInt(p+"PLAYER_MANIFEST_REPEAT", pl.ManifestRepeat)
	pl.PollInterval = l.envDuration(p+"PLAYER_POLL_INTERVAL", pl.PollInterval)
	pl.EmptyRetry = l.envDuration(p+"PLAYER_EMPTY_RETRY", pl.EmptyRetry)
	pl.Cooldown = l.envDuration(p+"PLAYER_COOLDOWN", pl.Cooldown)
	pl.DrainTimeout = l.envDuration(p+"PLAYER_DRAIN_TIMEOUT", pl.DrainTimeout)
	pl.StopGrace = l.envDuration(p+"PLAYER_STOP_GRACE", pl.StopGrace)
	pl.PassDelay = l.envDuration(p+"PLAYER_PASS_DELAY", pl.PassDelay)
	pl.RestartBurst = l.envInt(p+"PLAYER_RESTART_BURST", pl.RestartBurst)
	pl.RestartWindow = l.envDuration(p+"PLAYER_RESTART_WINDOW", pl.RestartWindow)

	au := &cfg.Audio
	au.Dir = l.envString(p+"AUDIO_DIR", au.Dir)
	au.Order = l.envString(p+"AUDIO_ORDER", au.Order)
	au.Backend = l.envString(p+"AUDIO_BACKEND", au.Backend)
	au.FFplayBin = l.envString(p+"AUDIO_FFPLAY_BIN", au.FFplayBin)
	au.MPVBin = l.envString(p+"AUDIO_MPV_BIN", au.MPVBin)
	au.VLCBin = l.envString(p+"AUDIO_VLC_BIN", au.VLCBin)
	au.AplayBin = l.envString(p+"AUDIO_APLAY_BIN", au.AplayBin)
	au.TrackDelay = l.envDuration(p+"AUDIO_TRACK_DELAY", au.TrackDelay)
	au.EmptyRetry = l.envDuration(p+"AUDIO_EMPTY_RETRY", au.EmptyRetry)
	au.StopGrace = l.envDuration(p+"AUDIO_STOP_GRACE", au.StopGrace)

	in := &cfg.Ingest
	in.RawDir = l.envString(p+"INGEST_RAW_DIR", in.RawDir)
	in.Width = l.envInt(p+"INGEST_WIDTH", in.Width)
	in.Height = l.envInt(p+"INGEST_HEIGHT", in.Height)
	in.Prefix = l.envString(p+"INGEST_PREFIX", in.Prefix)
	in.QueueSize = l.envInt(p+"INGEST_QUEUE_SIZE", in.QueueSize)
	in.FFmpegBin = l.envString(p+"INGEST_FFMPEG_BIN", in.FFmpegBin)
	in.FFprobeBin = l.envString(p+"INGEST_FFPROBE_BIN", in.FFprobeBin)
	in.Preset = l.envString(p+"INGEST_PRESET", in.Preset)
	in.CRF = l.envInt(p+"INGEST_CRF", in.CRF)
	in.MaxRate = l.envString(p+"INGEST_MAXRATE", in.MaxRate)
	in.BufSize = l.envString(p+"INGEST_BUFSIZE", in.BufSize)
	in.ProbeTimeout = l.envDuration(p+"INGEST_PROBE_TIMEOUT", in.ProbeTimeout)
	in.TransformTimeout = l.envDuration(p+"INGEST_TRANSFORM_TIMEOUT", in.TransformTimeout)
	in.WatchRaw = l.envBool(p+"INGEST_WATCH_RAW", in.WatchRaw)
	in.WatchSettle = l.envDuration(p+"INGEST_WATCH_SETTLE", in.WatchSettle)
	in.JournalPath = l.envString(p+"INGEST_JOURNAL_PATH", in.JournalPath)

	cfg.API.Listen = l.envString(p+"API_LISTEN", cfg.API.Listen)
	cfg.API.MaxUploadBytes = l.envInt64(p+"API_MAX_UPLOAD_BYTES", cfg.API.MaxUploadBytes)
	cfg.API.RateLimit = l.envInt(p+"API_RATE_LIMIT", cfg.API.RateLimit)
	cfg.API.ShutdownTimeout = l.envDuration(p+"API_SHUTDOWN_TIMEOUT", cfg.API.ShutdownTimeout)

	tl := &cfg.Telemetry
	tl.Enabled = l.envBool(p+"TELEMETRY_ENABLED", tl.Enabled)
	tl.ServiceName = l.envString(p+"TELEMETRY_SERVICE_NAME", tl.ServiceName)
	tl.DeviceID = l.envString(p+"TELEMETRY_DEVICE_ID", tl.DeviceID)
	tl.Exporter = l.envString(p+"TELEMETRY_EXPORTER", tl.Exporter)
	tl.Endpoint = l.envString(p+"TELEMETRY_ENDPOINT", tl.Endpoint)
	tl.SamplingRate = l.envFloat(p+"TELEMETRY_SAMPLING_RATE", tl.SamplingRate)
}
