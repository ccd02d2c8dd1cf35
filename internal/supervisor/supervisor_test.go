// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package supervisor

import (
	"context"
	"errors"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	xglog "github.com/ManuGH/striploop/internal/log"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

func requireSh(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func waitDone(t *testing.T, h *Handle) {
	t.Helper()
	select {
	case <-h.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("process did not exit")
	}
	<-h.Captured()
}

func TestStart_MissingBinaryIsLaunchError(t *testing.T) {
	s := New("player", nil)
	h, err := s.Start(context.Background(), Spec{Name: "decode", Path: "striploop-definitely-missing-binary"})
	require.Error(t, err)
	assert.Nil(t, h)
	assert.True(t, errors.Is(err, ErrLaunch))

	var lerr *LaunchError
	require.ErrorAs(t, err, &lerr)
	assert.Equal(t, "decode", lerr.Name)
}

func TestResolve_NotExecutable(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "tool")
	require.NoError(t, os.WriteFile(p, []byte("#!/bin/sh\n"), 0o600))

	_, err := New("ingest", nil).Resolve("probe", p)
	assert.ErrorIs(t, err, ErrLaunch)
}

func TestStart_ExitCodeAndLiveness(t *testing.T) {
	requireSh(t)
	s := New("player", nil)

	before := time.Now()
	h, err := s.Start(context.Background(), Spec{Name: "decode", Path: "sh", Args: []string{"-c", "exit 7"}})
	require.NoError(t, err)
	assert.Greater(t, h.PID(), 0)

	waitDone(t, h)
	assert.False(t, h.Alive())
	assert.False(t, h.ExitedAt().Before(before))
	assert.False(t, h.ExitedAt().After(time.Now()))
	assert.Equal(t, 7, h.ExitCode())
	assert.Error(t, h.Err())
	assert.False(t, h.StopRequested())
}

func TestStart_ZeroExit(t *testing.T) {
	requireSh(t)
	h, err := New("player", nil).Start(context.Background(), Spec{Name: "decode", Path: "sh", Args: []string{"-c", "true"}})
	require.NoError(t, err)
	waitDone(t, h)
	assert.Equal(t, 0, h.ExitCode())
	assert.NoError(t, h.Err())
}

func TestStart_ExtraEnvironment(t *testing.T) {
	requireSh(t)
	h, err := New("player", nil).Start(context.Background(), Spec{
		Name: "render",
		Path: "sh",
		Args: []string{"-c", `echo "pos=$SDL_VIDEO_WINDOW_POS" >&2`},
		Env:  []string{"SDL_VIDEO_WINDOW_POS=0,0"},
	})
	require.NoError(t, err)
	waitDone(t, h)
	assert.Equal(t, []string{"pos=0,0"}, h.Diagnostics(5))
}

func TestStop_Graceful(t *testing.T) {
	requireSh(t)
	h, err := New("player", nil).Start(context.Background(), Spec{Name: "render", Path: "sh", Args: []string{"-c", "sleep 30"}})
	require.NoError(t, err)
	assert.True(t, h.Alive())

	start := time.Now()
	require.NoError(t, h.Stop(2*time.Second))
	assert.Less(t, time.Since(start), 2*time.Second)
	assert.False(t, h.Alive())
	assert.True(t, h.StopRequested())
	<-h.Captured()
}

func TestStop_EscalatesToKill(t *testing.T) {
	requireSh(t)
	h, err := New("player", nil).Start(context.Background(), Spec{
		Name: "render",
		Path: "sh",
		Args: []string{"-c", "trap '' TERM; echo ready >&2; while :; do sleep 0.1; done"},
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		return len(h.Diagnostics(1)) == 1
	}, 2*time.Second, 10*time.Millisecond)

	start := time.Now()
	require.NoError(t, h.Stop(200*time.Millisecond))
	elapsed := time.Since(start)
	assert.GreaterOrEqual(t, elapsed, 200*time.Millisecond)
	assert.Less(t, elapsed, 3*time.Second)
	assert.False(t, h.Alive())
	assert.Equal(t, -1, h.ExitCode())
	<-h.Captured()
}

func TestStop_AfterExitIsNoop(t *testing.T) {
	requireSh(t)
	h, err := New("player", nil).Start(context.Background(), Spec{Name: "decode", Path: "sh", Args: []string{"-c", "true"}})
	require.NoError(t, err)
	waitDone(t, h)
	assert.NoError(t, h.Stop(time.Second))
	assert.NoError(t, h.Stop(time.Second))
}

func TestDiagnostics_ReachSink(t *testing.T) {
	requireSh(t)
	dir := t.TempDir()
	sink := xglog.NewDiagnosticSink(dir, 16)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go sink.Run(ctx)

	s := New("player", sink)
	h, err := s.Start(ctx, Spec{Name: "decode", Path: "sh", Args: []string{"-c", "echo one >&2; echo two >&2"}})
	require.NoError(t, err)
	waitDone(t, h)

	sink.Close()
	sink.Wait()

	data, err := os.ReadFile(filepath.Join(dir, "player.log"))
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "decode[")
	assert.True(t, strings.Index(text, "one") < strings.Index(text, "two"))
	assert.Equal(t, []string{"one", "two"}, h.Diagnostics(10))
}

func TestStart_StdoutPipe(t *testing.T) {
	requireSh(t)
	var out strings.Builder
	h, err := New("player", nil).Start(context.Background(), Spec{
		Name:   "decode",
		Path:   "sh",
		Args:   []string{"-c", "cat"},
		Stdin:  strings.NewReader("payload"),
		Stdout: &out,
	})
	require.NoError(t, err)
	waitDone(t, h)
	assert.Equal(t, "payload", out.String())
}
