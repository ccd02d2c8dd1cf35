// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package player

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"syscall"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/ManuGH/striploop/internal/playlist"
	"github.com/ManuGH/striploop/internal/supervisor"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// scriptStages runs both stages as sh scripts; the decode script receives the
// manifest path as $1.
type scriptStages struct {
	decode string
	render string
	bin    string
}

func (s scriptStages) Decode(manifest string) supervisor.Spec {
	return supervisor.Spec{Name: "decode", Path: s.shell(), Args: []string{"-c", s.decode, "decode", manifest}}
}

func (s scriptStages) Render() supervisor.Spec {
	return supervisor.Spec{Name: "render", Path: s.shell(), Args: []string{"-c", s.render}}
}

func (s scriptStages) shell() string {
	if s.bin != "" {
		return s.bin
	}
	return "sh"
}

type transitionLog struct {
	mu     sync.Mutex
	states []State
}

func (l *transitionLog) record(_, to State) {
	l.mu.Lock()
	l.states = append(l.states, to)
	l.mu.Unlock()
}

func (l *transitionLog) seen(s State) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	for _, x := range l.states {
		if x == s {
			return true
		}
	}
	return false
}

func requireSh(t *testing.T) {
	t.Helper()
	if _, err := exec.LookPath("sh"); err != nil {
		t.Skip("sh not available")
	}
}

func fastOptions(dir string, stages Stages, tmp string) ConcatOptions {
	return ConcatOptions{
		Dir:           dir,
		Stages:        stages,
		ManifestDir:   tmp,
		PollInterval:  20 * time.Millisecond,
		EmptyRetry:    20 * time.Millisecond,
		Cooldown:      20 * time.Millisecond,
		DrainTimeout:  time.Second,
		StopGrace:     500 * time.Millisecond,
		RestartBurst:  1000,
		RestartWindow: time.Second,
	}
}

func writeMedia(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("x"), 0o600))
	}
}

// readPasses is called from Eventually's goroutine, so it must not use require.
func readPasses(logPath string) [][]string {
	data, err := os.ReadFile(logPath)
	if err != nil {
		return nil
	}
	var passes [][]string
	for _, chunk := range strings.Split(string(data), "---\n") {
		if strings.TrimSpace(chunk) == "" {
			continue
		}
		paths, err := playlist.ParseConcatManifest(chunk)
		if err != nil {
			continue
		}
		var names []string
		for _, p := range paths {
			names = append(names, filepath.Base(p))
		}
		passes = append(passes, names)
	}
	return passes
}

func TestConcat_NewMediaJoinsNextPassOnly(t *testing.T) {
	requireSh(t)
	media, work := t.TempDir(), t.TempDir()
	writeMedia(t, media, "a.mp4", "b.mp4")
	logPath := filepath.Join(work, "passes.log")

	stages := scriptStages{
		decode: `cat "$1" >> '` + logPath + `'; echo --- >> '` + logPath + `'; sleep 0.2`,
		render: `cat > /dev/null`,
	}
	p := NewConcat(fastOptions(media, stages, work), supervisor.New("player", nil))
	var tl transitionLog
	p.OnTransition(tl.record)

	require.NoError(t, p.Start(context.Background()))

	require.Eventually(t, func() bool { return len(readPasses(logPath)) >= 1 }, 5*time.Second, 10*time.Millisecond)
	// Pass 1 is in flight; promote a new file.
	writeMedia(t, media, "c.mp4")
	require.Eventually(t, func() bool { return len(readPasses(logPath)) >= 2 }, 5*time.Second, 10*time.Millisecond)

	require.NoError(t, p.Stop())
	assert.Equal(t, StateStopped, p.State())
	assert.NoError(t, p.Err())

	passes := readPasses(logPath)
	assert.Equal(t, []string{"a.mp4", "b.mp4"}, passes[0])
	assert.Equal(t, []string{"a.mp4", "b.mp4", "c.mp4"}, passes[1])
	assert.False(t, tl.seen(StateDegraded))
	assert.Zero(t, p.Restarts())
	assert.GreaterOrEqual(t, p.Passes(), int64(2))

	// Manifests are removed after each pass.
	left, err := filepath.Glob(filepath.Join(work, ".striploop-*"))
	require.NoError(t, err)
	assert.Empty(t, left)
}

func pidsAlive(t *testing.T, pidFile string) []int {
	t.Helper()
	data, err := os.ReadFile(pidFile)
	require.NoError(t, err)
	var alive []int
	for _, f := range strings.Fields(string(data)) {
		pid, err := strconv.Atoi(f)
		require.NoError(t, err)
		if syscall.Kill(pid, 0) == nil {
			alive = append(alive, pid)
		}
	}
	return alive
}

func TestConcat_DecodeFailureStopsRender(t *testing.T) {
	requireSh(t)
	media, work := t.TempDir(), t.TempDir()
	writeMedia(t, media, "a.mp4")
	pidFile := filepath.Join(work, "render.pids")

	stages := scriptStages{
		decode: `sleep 0.1; exit 1`,
		render: `echo $$ >> '` + pidFile + `'; exec sleep 30`,
	}
	opts := fastOptions(media, stages, work)
	opts.Cooldown = time.Second
	p := NewConcat(opts, supervisor.New("player", nil))
	var tl transitionLog
	p.OnTransition(tl.record)

	require.NoError(t, p.Start(context.Background()))
	require.Eventually(t, func() bool { return tl.seen(StateDegraded) }, 3*time.Second, 10*time.Millisecond)

	// Degraded is entered only after the render stage is gone.
	assert.Empty(t, pidsAlive(t, pidFile))
	assert.Equal(t, StateDegraded, p.State())
	assert.GreaterOrEqual(t, p.Restarts(), int64(1))

	require.NoError(t, p.Stop())
	assert.Equal(t, StateStopped, p.State())
	assert.Empty(t, pidsAlive(t, pidFile))
}

func TestConcat_RenderExitStopsDecode(t *testing.T) {
	requireSh(t)
	media, work := t.TempDir(), t.TempDir()
	writeMedia(t, media, "a.mp4")
	pidFile := filepath.Join(work, "decode.pids")

	stages := scriptStages{
		decode: `echo $$ >> '` + pidFile + `'; exec sleep 30`,
		render: `sleep 0.1; exit 3`,
	}
	opts := fastOptions(media, stages, work)
	opts.Cooldown = time.Second
	p := NewConcat(opts, supervisor.New("player", nil))
	var tl transitionLog
	p.OnTransition(tl.record)

	require.NoError(t, p.Start(context.Background()))
	require.Eventually(t, func() bool { return tl.seen(StateDegraded) }, 3*time.Second, 10*time.Millisecond)
	assert.Empty(t, pidsAlive(t, pidFile))

	require.NoError(t, p.Stop())
}

func TestConcat_BothStagesDeadLogsTrueExitOrder(t *testing.T) {
	requireSh(t)
	media, work := t.TempDir(), t.TempDir()
	writeMedia(t, media, "a.mp4")

	// Render dies at once; decode follows well inside the same poll interval.
	stages := scriptStages{decode: `sleep 0.05; exit 1`, render: `exit 3`}
	opts := fastOptions(media, stages, work)
	opts.PollInterval = 500 * time.Millisecond
	opts.Cooldown = time.Second
	p := NewConcat(opts, supervisor.New("player", nil))
	var buf syncBuffer
	p.logger = zerolog.New(&buf)

	require.NoError(t, p.Start(context.Background()))
	require.Eventually(t, func() bool {
		return strings.Contains(buf.String(), `"event":"player.degraded"`)
	}, 5*time.Second, 10*time.Millisecond)
	require.NoError(t, p.Stop())

	var line string
	for _, l := range strings.Split(buf.String(), "\n") {
		if strings.Contains(l, `"event":"player.degraded"`) {
			line = l
			break
		}
	}
	assert.Contains(t, line, `"exited_first":"render"`)
	assert.Contains(t, line, `"decode_exit":1`)
	assert.Contains(t, line, `"render_exit":3`)
}

func TestExitedFirst(t *testing.T) {
	requireSh(t)
	sup := supervisor.New("player", nil)
	start := func(script string) *supervisor.Handle {
		h, err := sup.Start(context.Background(), supervisor.Spec{Name: "stage", Path: "sh", Args: []string{"-c", script}})
		require.NoError(t, err)
		return h
	}

	early := start("exit 1")
	<-early.Done()
	late := start("exit 2")
	<-late.Done()
	assert.Equal(t, "render", exitedFirst(late, early))
	assert.Equal(t, "decode", exitedFirst(early, late))

	running := start("exec sleep 30")
	assert.Equal(t, "decode", exitedFirst(early, running))
	assert.Equal(t, "render", exitedFirst(running, early))
	require.NoError(t, running.Stop(time.Second))
}

type syncBuffer struct {
	mu  sync.Mutex
	buf strings.Builder
}

func (b *syncBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *syncBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}

func TestConcat_LaunchErrorIsFatal(t *testing.T) {
	media, work := t.TempDir(), t.TempDir()
	writeMedia(t, media, "a.mp4")

	stages := scriptStages{bin: "striploop-missing-decoder"}
	p := NewConcat(fastOptions(media, stages, work), supervisor.New("player", nil))

	err := p.Start(context.Background())
	require.ErrorIs(t, err, supervisor.ErrLaunch)
	assert.Equal(t, StateStopped, p.State())
	assert.ErrorIs(t, p.Err(), supervisor.ErrLaunch)
	assert.False(t, p.Active())
}

func TestConcat_EmptyTimeout(t *testing.T) {
	requireSh(t)
	media, work := t.TempDir(), t.TempDir()
	opts := fastOptions(media, scriptStages{decode: "true", render: "true"}, work)
	opts.EmptyTimeout = 100 * time.Millisecond
	p := NewConcat(opts, supervisor.New("player", nil))

	require.NoError(t, p.Start(context.Background()))
	select {
	case <-p.Done():
	case <-time.After(5 * time.Second):
		t.Fatal("player did not give up on empty directory")
	}
	assert.ErrorIs(t, p.Err(), ErrNoMedia)
	assert.Equal(t, StateStopped, p.State())
	assert.Zero(t, p.Passes())
}

func TestConcat_EmptyDirectoryKeepsStarting(t *testing.T) {
	requireSh(t)
	media, work := t.TempDir(), t.TempDir()
	p := NewConcat(fastOptions(media, scriptStages{decode: "sleep 5", render: "cat >/dev/null"}, work), supervisor.New("player", nil))

	require.NoError(t, p.Start(context.Background()))
	time.Sleep(100 * time.Millisecond)
	assert.Equal(t, StateStarting, p.State())
	assert.Zero(t, p.Passes())

	writeMedia(t, media, "late.mkv")
	require.Eventually(t, func() bool { return p.State() == StateRunning }, 3*time.Second, 10*time.Millisecond)
	require.NoError(t, p.Stop())
}

func TestConcat_StopIsIdempotent(t *testing.T) {
	requireSh(t)
	media, work := t.TempDir(), t.TempDir()
	writeMedia(t, media, "a.mp4")
	p := NewConcat(fastOptions(media, scriptStages{decode: "exec sleep 30", render: "exec sleep 30"}, work), supervisor.New("player", nil))

	assert.Equal(t, StateIdle, p.State())
	require.NoError(t, p.Start(context.Background()))
	assert.ErrorIs(t, p.Start(context.Background()), ErrAlreadyRunning)
	require.Eventually(t, func() bool { return p.State() == StateRunning }, 3*time.Second, 10*time.Millisecond)
	assert.True(t, p.Active())

	start := time.Now()
	require.NoError(t, p.Stop())
	require.NoError(t, p.Stop())
	assert.Less(t, time.Since(start), 3*time.Second)
	assert.Equal(t, StateStopped, p.State())
	assert.False(t, p.Active())

	// A stopped player can be started again.
	require.NoError(t, p.Start(context.Background()))
	require.Eventually(t, func() bool { return p.State() == StateRunning }, 3*time.Second, 10*time.Millisecond)
	require.NoError(t, p.Stop())
}

func TestConcat_StopBeforeStart(t *testing.T) {
	p := NewConcat(ConcatOptions{Dir: t.TempDir()}, supervisor.New("player", nil))
	require.NoError(t, p.Stop())
	assert.Equal(t, StateStopped, p.State())
}

func TestConcat_StartOutlivesCallerContext(t *testing.T) {
	requireSh(t)
	media, work := t.TempDir(), t.TempDir()
	writeMedia(t, media, "a.mp4")
	p := NewConcat(fastOptions(media, scriptStages{decode: "exec sleep 30", render: "exec sleep 30"}, work), supervisor.New("player", nil))

	ctx, cancel := context.WithCancel(context.Background())
	require.NoError(t, p.Start(ctx))
	cancel()
	require.Eventually(t, func() bool { return p.State() == StateRunning }, 3*time.Second, 10*time.Millisecond)
	time.Sleep(60 * time.Millisecond)
	assert.Equal(t, StateRunning, p.State())
	require.NoError(t, p.Stop())
}
