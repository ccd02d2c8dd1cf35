// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package player

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	xglog "github.com/ManuGH/striploop/internal/log"
	"github.com/ManuGH/striploop/internal/supervisor"
)

// ErrNoAudioBackend means none of the audio track players is installed.
var ErrNoAudioBackend = errors.New("no audio player backend installed")

// DefaultRenderEnv places a borderless fullscreen window on the local X display
// without a mouse cursor.
var DefaultRenderEnv = []string{
	"DISPLAY=:0",
	"SDL_VIDEODRIVER=x11",
	"SDL_VIDEO_WINDOW_POS=0,0",
	"SDL_NOMOUSE=1",
}

// Stages builds the two process specs of a video pass.
type Stages interface {
	// Decode reads the concat manifest and writes one container stream to stdout.
	Decode(manifest string) supervisor.Spec
	// Render consumes that stream on stdin.
	Render() supervisor.Spec
}

// FFmpegStages decodes with ffmpeg's concat demuxer and renders with ffplay.
type FFmpegStages struct {
	FFmpeg string
	FFplay string
	// Filter is an optional -filter_complex graph. When set the decode stage
	// re-encodes with a low-latency x264 preset; otherwise streams are copied.
	Filter string
	Env    []string
}

func (s FFmpegStages) Decode(manifest string) supervisor.Spec {
	bin := s.FFmpeg
	if bin == "" {
		bin = "ffmpeg"
	}
	args := []string{
		"-hide_banner", "-nostdin", "-loglevel", "error",
		"-f", "concat", "-safe", "0", "-i", manifest,
	}
	if s.Filter != "" {
		args = append(args,
			"-filter_complex", s.Filter,
			"-c:v", "libx264", "-preset", "ultrafast", "-tune", "zerolatency",
		)
	} else {
		args = append(args, "-c", "copy")
	}
	args = append(args, "-f", "matroska", "-")
	return supervisor.Spec{Name: "decode", Path: bin, Args: args}
}

func (s FFmpegStages) Render() supervisor.Spec {
	bin := s.FFplay
	if bin == "" {
		bin = "ffplay"
	}
	env := s.Env
	if env == nil {
		env = DefaultRenderEnv
	}
	return supervisor.Spec{
		Name: "render",
		Path: bin,
		Args: []string{
			"-hide_banner", "-loglevel", "error",
			"-fs", "-noborder", "-left", "0", "-top", "0",
			"-autoexit", "-",
		},
		Env: env,
	}
}

// TrackCommand builds the process spec for one audio track.
type TrackCommand interface {
	// Binary is the executable that must exist before playback starts.
	Binary() string
	Track(path string) supervisor.Spec
}

func orDefault(bin, def string) string {
	if bin == "" {
		return def
	}
	return bin
}

// FFplayTrack plays a single file without a window.
type FFplayTrack struct {
	FFplay string
	Env    []string
}

func (t FFplayTrack) Binary() string { return orDefault(t.FFplay, "ffplay") }

func (t FFplayTrack) Track(path string) supervisor.Spec {
	return supervisor.Spec{
		Name: "track",
		Path: t.Binary(),
		Args: []string{"-hide_banner", "-nodisp", "-autoexit", "-loglevel", "error", path},
		Env:  t.Env,
	}
}

// MPVTrack plays a single file with mpv, video disabled.
type MPVTrack struct {
	MPV string
	Env []string
}

func (t MPVTrack) Binary() string { return orDefault(t.MPV, "mpv") }

func (t MPVTrack) Track(path string) supervisor.Spec {
	return supervisor.Spec{
		Name: "track",
		Path: t.Binary(),
		Args: []string{"--no-video", "--really-quiet", "--", path},
		Env:  t.Env,
	}
}

// VLCTrack plays a single file with the console VLC front end.
type VLCTrack struct {
	VLC string
	Env []string
}

func (t VLCTrack) Binary() string { return orDefault(t.VLC, "cvlc") }

func (t VLCTrack) Track(path string) supervisor.Spec {
	return supervisor.Spec{
		Name: "track",
		Path: t.Binary(),
		Args: []string{"--play-and-exit", "--no-video", "--quiet", path},
		Env:  t.Env,
	}
}

// AplayTrack plays WAV files with aplay. aplay cannot decode anything else, so
// other formats go through ffplay.
type AplayTrack struct {
	Aplay  string
	FFplay string
	Env    []string
}

func (t AplayTrack) Binary() string { return orDefault(t.Aplay, "aplay") }

func (t AplayTrack) Track(path string) supervisor.Spec {
	if !strings.EqualFold(filepath.Ext(path), ".wav") {
		return FFplayTrack{FFplay: t.FFplay, Env: t.Env}.Track(path)
	}
	return supervisor.Spec{
		Name: "track",
		Path: t.Binary(),
		Args: []string{"-q", path},
		Env:  t.Env,
	}
}

// Audio track backends. BackendAuto picks the first installed one in
// AudioBackends order.
const (
	BackendAuto   = "auto"
	BackendMPV    = "mpv"
	BackendVLC    = "vlc"
	BackendFFplay = "ffplay"
	BackendAplay  = "aplay"
)

// AudioBackends is the auto-detection priority order.
var AudioBackends = []string{BackendMPV, BackendVLC, BackendFFplay, BackendAplay}

// TrackBins overrides the executable of each backend. Empty fields use the
// binary name on PATH.
type TrackBins struct {
	MPV    string
	VLC    string
	FFplay string
	Aplay  string
}

// NewTrackCommand returns the command for a named backend.
func NewTrackCommand(backend string, bins TrackBins) (TrackCommand, error) {
	switch backend {
	case BackendMPV:
		return MPVTrack{MPV: bins.MPV}, nil
	case BackendVLC:
		return VLCTrack{VLC: bins.VLC}, nil
	case BackendFFplay:
		return FFplayTrack{FFplay: bins.FFplay}, nil
	case BackendAplay:
		return AplayTrack{Aplay: bins.Aplay, FFplay: bins.FFplay}, nil
	default:
		return nil, fmt.Errorf("unknown audio backend %q", backend)
	}
}

// SelectTrackCommand resolves backend against the installed binaries. A named
// backend that is missing falls back to auto-detection, as does BackendAuto or
// an empty name. It fails with a *supervisor.LaunchError when nothing is installed.
func SelectTrackCommand(sup *supervisor.Supervisor, backend string, bins TrackBins) (TrackCommand, string, error) {
	logger := xglog.WithComponent("player")
	if backend != "" && backend != BackendAuto {
		cmd, err := NewTrackCommand(backend, bins)
		if err != nil {
			return nil, "", err
		}
		if _, err := sup.Resolve("track", cmd.Binary()); err == nil {
			return cmd, backend, nil
		}
		logger.Warn().Str("backend", backend).Str("binary", cmd.Binary()).Msg("audio backend not found, trying auto-detection")
	}

	tried := make([]string, 0, len(AudioBackends))
	for _, b := range AudioBackends {
		cmd, _ := NewTrackCommand(b, bins)
		if _, err := sup.Resolve("track", cmd.Binary()); err == nil {
			return cmd, b, nil
		}
		tried = append(tried, cmd.Binary())
	}
	return nil, "", &supervisor.LaunchError{
		Name: "track",
		Path: strings.Join(tried, ","),
		Err:  ErrNoAudioBackend,
	}
}
