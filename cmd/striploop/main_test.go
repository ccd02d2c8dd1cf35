// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ManuGH/striploop/internal/player"
	"github.com/ManuGH/striploop/internal/supervisor"
	"github.com/ManuGH/striploop/internal/version"
)

func run(ctx context.Context, t *testing.T, args ...string) (int, string, string) {
	t.Helper()
	var stdout, stderr bytes.Buffer
	code := execute(ctx, args, &stdout, &stderr)
	return code, stdout.String(), stderr.String()
}

// fakeTools points both players at shell doubles and keeps the data dir private.
func fakeTools(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
	bin := t.TempDir()
	for _, name := range []string{"ffmpeg", "ffplay"} {
		path := filepath.Join(bin, name)
		require.NoError(t, os.WriteFile(path, []byte("#!/bin/sh\nexec sleep 60\n"), 0o755))
	}
	t.Setenv("STRIPLOOP_DATA_DIR", t.TempDir())
	t.Setenv("STRIPLOOP_PLAYER_FFMPEG_BIN", filepath.Join(bin, "ffmpeg"))
	t.Setenv("STRIPLOOP_PLAYER_FFPLAY_BIN", filepath.Join(bin, "ffplay"))
	t.Setenv("STRIPLOOP_AUDIO_FFPLAY_BIN", filepath.Join(bin, "ffplay"))
	t.Setenv("STRIPLOOP_AUDIO_BACKEND", "ffplay")
	t.Setenv("STRIPLOOP_PLAYER_EMPTY_RETRY", "100ms")
	t.Setenv("STRIPLOOP_AUDIO_EMPTY_RETRY", "100ms")
}

func TestVersionCommand(t *testing.T) {
	code, out, _ := run(context.Background(), t, "version")
	assert.Equal(t, exitOK, code)
	assert.Contains(t, out, version.Version)
}

func TestUnknownCommandFails(t *testing.T) {
	code, _, errOut := run(context.Background(), t, "rewind")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, errOut, "unknown command")
}

func TestPlay_NoMediaExitsTwo(t *testing.T) {
	fakeTools(t)
	for _, audio := range []bool{false, true} {
		t.Run(fmt.Sprintf("audio=%v", audio), func(t *testing.T) {
			args := []string{"play", t.TempDir(), "--empty-timeout", "250ms"}
			if audio {
				args = append(args, "--audio")
			}
			code, _, errOut := run(context.Background(), t, args...)
			assert.Equal(t, exitNoMedia, code, errOut)
		})
	}
}

func TestPlay_MissingBinaryExitsThree(t *testing.T) {
	fakeTools(t)
	t.Setenv("STRIPLOOP_PLAYER_FFPLAY_BIN", filepath.Join(t.TempDir(), "no-such-ffplay"))

	code, _, errOut := run(context.Background(), t, "play", t.TempDir())
	assert.Equal(t, exitLaunch, code)
	assert.Contains(t, errOut, "no-such-ffplay")
}

func TestPlay_NoAudioBackendExitsThree(t *testing.T) {
	fakeTools(t)
	missing := t.TempDir()
	for _, key := range []string{"MPV", "VLC", "FFPLAY", "APLAY"} {
		t.Setenv("STRIPLOOP_AUDIO_"+key+"_BIN", filepath.Join(missing, strings.ToLower(key)))
	}

	code, _, errOut := run(context.Background(), t, "play", t.TempDir(), "--audio", "--backend", "mpv")
	assert.Equal(t, exitLaunch, code)
	assert.Contains(t, errOut, "no audio player backend")
}

func TestPlay_RejectsUnknownBackend(t *testing.T) {
	fakeTools(t)
	code, _, errOut := run(context.Background(), t, "play", t.TempDir(), "--audio", "--backend", "winamp")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, errOut, "--backend")
}

func TestPlay_SignalStopExitsZero(t *testing.T) {
	fakeTools(t)
	ctx, cancel := context.WithCancel(context.Background())
	time.AfterFunc(300*time.Millisecond, cancel)

	code, _, errOut := run(ctx, t, "play", t.TempDir(), "--shuffle", "--delay", "1")
	assert.Equal(t, exitOK, code, errOut)
}

func TestPlay_RejectsNegativeDelay(t *testing.T) {
	fakeTools(t)
	code, _, errOut := run(context.Background(), t, "play", t.TempDir(), "--delay", "-1")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, errOut, "--delay")
}

func TestPlay_RequiresDirectory(t *testing.T) {
	code, _, _ := run(context.Background(), t, "play")
	assert.Equal(t, exitFailure, code)
}

func TestClassifyPlayError(t *testing.T) {
	launch := &supervisor.LaunchError{Name: "render", Path: "ffplay", Err: exec.ErrNotFound}
	tests := []struct {
		err  error
		code int
	}{
		{fmt.Errorf("wrapped: %w", player.ErrNoMedia), exitNoMedia},
		{launch, exitLaunch},
		{errors.New("restart burst exceeded"), exitFailure},
	}
	for _, tc := range tests {
		var ee *exitError
		require.ErrorAs(t, classifyPlayError(tc.err), &ee)
		assert.Equal(t, tc.code, ee.code, tc.err.Error())
		assert.ErrorIs(t, ee, tc.err)
	}
}

func TestModeOffline_WriteThenRead(t *testing.T) {
	t.Setenv("STRIPLOOP_DATA_DIR", t.TempDir())
	ctx := context.Background()

	code, out, _ := run(ctx, t, "mode", "--offline")
	require.Equal(t, exitOK, code)
	assert.Contains(t, out, "video (default")

	code, out, _ = run(ctx, t, "mode", "--offline", "AUDIO")
	require.Equal(t, exitOK, code)
	assert.Contains(t, out, "audio")

	code, out, _ = run(ctx, t, "mode", "--offline")
	require.Equal(t, exitOK, code)
	assert.Equal(t, "audio\n", out)

	code, _, errOut := run(ctx, t, "mode", "--offline", "radio")
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, errOut, "radio")
}

func TestModeRemote(t *testing.T) {
	var gotBody map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/mode", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		switch r.Method {
		case http.MethodGet:
			_, _ = w.Write([]byte(`{"mode":"video","active":true,"switching":false}`))
		case http.MethodPut:
			if !assert.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody)) {
				return
			}
			if gotBody["mode"] == "audio" {
				_, _ = w.Write([]byte(`{"mode":"audio","active":true,"switching":false,"changed":true}`))
				return
			}
			w.WriteHeader(http.StatusBadGateway)
			_, _ = w.Write([]byte(`{"error":"mode_start_failed","detail":"ffplay missing"}`))
		}
	}))
	defer srv.Close()
	ctx := context.Background()

	code, out, _ := run(ctx, t, "mode", "--api", srv.URL)
	require.Equal(t, exitOK, code)
	assert.Equal(t, "video (active)\n", out)

	code, out, _ = run(ctx, t, "mode", "--api", srv.URL+"/", "audio")
	require.Equal(t, exitOK, code)
	assert.Equal(t, "switched to audio (active)\n", out)
	assert.Equal(t, "audio", gotBody["mode"])

	code, _, errOut := run(ctx, t, "mode", "--api", srv.URL, "video")
	assert.Equal(t, exitFailure, code)
	assert.True(t, strings.Contains(errOut, "mode_start_failed"), errOut)
}

func TestServe_BadConfigExitsOne(t *testing.T) {
	path := filepath.Join(t.TempDir(), "striploop.yaml")
	require.NoError(t, os.WriteFile(path, []byte("player:\n  odrer: shuffle\n"), 0o600))

	code, _, errOut := run(context.Background(), t, "serve", "--config", path)
	assert.Equal(t, exitFailure, code)
	assert.Contains(t, errOut, "load config")
}
