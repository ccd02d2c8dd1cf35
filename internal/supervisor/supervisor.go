// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package supervisor owns the lifecycle of single external processes: launch,
// diagnostic capture, liveness and graceful-then-forceful termination.
package supervisor

import (
	"bufio"
	"context"
	"errors"
	"io"
	"os"
	"os/exec"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/striploop/internal/log"
	"github.com/ManuGH/striploop/internal/metrics"
	"github.com/ManuGH/striploop/internal/procgroup"
)

const (
	defaultKillTimeout = 5 * time.Second
	defaultRingSize    = 64
	maxLineBytes       = 1 << 20
)

// Spec describes one external process.
type Spec struct {
	Name   string   // role used in logs, e.g. "decode", "render", "transform"
	Path   string   // binary name or path; resolved via PATH
	Args   []string // arguments without argv[0]
	Env    []string // extra KEY=VALUE pairs appended to the parent environment
	Dir    string
	Stdin  io.Reader
	Stdout io.Writer
}

// Supervisor launches processes for one component and routes their stderr to a
// shared DiagnosticSink.
type Supervisor struct {
	component   string
	sink        *xglog.DiagnosticSink
	logger      zerolog.Logger
	KillTimeout time.Duration // bound on the wait after SIGKILL
	RingSize    int           // stderr lines retained per handle
}

// New creates a supervisor for component. sink may be nil, in which case process
// output only reaches the structured logger.
func New(component string, sink *xglog.DiagnosticSink) *Supervisor {
	return &Supervisor{
		component:   component,
		sink:        sink,
		logger:      xglog.WithComponent(component),
		KillTimeout: defaultKillTimeout,
		RingSize:    defaultRingSize,
	}
}

// Component returns the component name used for logs and diagnostics.
func (s *Supervisor) Component() string { return s.component }

// Resolve checks that the binary for name exists and is executable.
func (s *Supervisor) Resolve(name, path string) (string, error) {
	bin, err := exec.LookPath(path)
	if err != nil {
		return "", &LaunchError{Name: name, Path: path, Err: err}
	}
	return bin, nil
}

// Start launches spec as a process-group leader and begins capturing its stderr.
func (s *Supervisor) Start(ctx context.Context, spec Spec) (*Handle, error) {
	logger := xglog.WithContext(ctx, s.logger).With().Str(xglog.FieldProcess, spec.Name).Logger()

	bin, err := s.Resolve(spec.Name, spec.Path)
	if err != nil {
		metrics.ProcStartTotal.WithLabelValues(s.component, "not_found").Inc()
		logger.Error().Err(err).Str("event", "process.launch_failed").Msg("binary not found")
		return nil, err
	}

	// #nosec G204 -- binaries and arguments come from operator configuration
	cmd := exec.Command(bin, spec.Args...)
	procgroup.Set(cmd)
	cmd.Dir = spec.Dir
	cmd.Stdin = spec.Stdin
	cmd.Stdout = spec.Stdout
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}

	// A dedicated pipe keeps stderr capture independent of cmd.Wait.
	stderrR, stderrW, err := os.Pipe()
	if err != nil {
		return nil, &LaunchError{Name: spec.Name, Path: bin, Err: err}
	}
	cmd.Stderr = stderrW

	if s.sink != nil {
		s.sink.Send(xglog.Line{Component: s.component, Reopen: true})
	}

	if err := cmd.Start(); err != nil {
		_ = stderrR.Close()
		_ = stderrW.Close()
		metrics.ProcStartTotal.WithLabelValues(s.component, "exec_failed").Inc()
		lerr := &LaunchError{Name: spec.Name, Path: bin, Err: err}
		logger.Error().Err(lerr).Str("event", "process.launch_failed").Msg("process start failed")
		return nil, lerr
	}
	_ = stderrW.Close()

	h := &Handle{
		name:        spec.Name,
		component:   s.component,
		cmd:         cmd,
		pid:         cmd.Process.Pid,
		started:     time.Now(),
		done:        make(chan struct{}),
		captured:    make(chan struct{}),
		exitCode:    -1,
		ring:        NewLineRing(s.RingSize),
		sink:        s.sink,
		killTimeout: s.KillTimeout,
	}
	h.logger = logger.With().Int(xglog.FieldPID, h.pid).Logger()

	metrics.ProcStartTotal.WithLabelValues(s.component, "ok").Inc()
	metrics.ProcAlive.WithLabelValues(s.component).Inc()
	h.logger.Info().
		Str("event", "process.started").
		Str("command", cmd.String()).
		Msg("process started")

	go h.capture(stderrR)
	go h.wait()

	return h, nil
}

// Handle is one running (or finished) supervised process.
type Handle struct {
	name        string
	component   string
	cmd         *exec.Cmd
	pid         int
	started     time.Time
	killTimeout time.Duration

	done     chan struct{}
	captured chan struct{}
	exitCode int
	exitedAt time.Time
	waitErr  error

	stopRequested atomic.Bool

	ring   *LineRing
	sink   *xglog.DiagnosticSink
	logger zerolog.Logger
}

// Name returns the process role.
func (h *Handle) Name() string { return h.name }

// PID returns the process ID.
func (h *Handle) PID() int { return h.pid }

// Alive reports whether the process is still running. It never blocks.
func (h *Handle) Alive() bool {
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// Done is closed once the process has exited and been reaped.
func (h *Handle) Done() <-chan struct{} { return h.done }

// Captured is closed once every stderr line has been read.
func (h *Handle) Captured() <-chan struct{} { return h.captured }

// ExitCode returns the exit code, or -1 while running or when killed by a signal.
func (h *Handle) ExitCode() int {
	select {
	case <-h.done:
		return h.exitCode
	default:
		return -1
	}
}

// ExitedAt returns when the process was reaped, or the zero time while it runs.
func (h *Handle) ExitedAt() time.Time {
	select {
	case <-h.done:
		return h.exitedAt
	default:
		return time.Time{}
	}
}

// Err returns the error from Wait once the process has exited.
func (h *Handle) Err() error {
	select {
	case <-h.done:
		return h.waitErr
	default:
		return nil
	}
}

// StopRequested reports whether Stop has been called.
func (h *Handle) StopRequested() bool { return h.stopRequested.Load() }

// Diagnostics returns the last n captured stderr lines.
func (h *Handle) Diagnostics(n int) []string { return h.ring.LastN(n) }

// Stop sends SIGTERM to the process group, waits up to grace, then escalates to
// SIGKILL. It returns once the process has been reaped or the kill timeout expired.
func (h *Handle) Stop(grace time.Duration) error {
	h.stopRequested.Store(true)
	if !h.Alive() {
		return nil
	}

	start := time.Now()
	err := procgroup.Terminate(h.cmd, h.done, grace, h.killTimeout)
	if err != nil {
		h.logger.Error().Err(err).
			Str("event", "process.stop_failed").
			Dur("elapsed", time.Since(start)).
			Msg("process did not exit after SIGKILL")
		return err
	}
	h.logger.Info().
		Str("event", "process.stopped").
		Int(xglog.FieldExitCode, h.exitCode).
		Dur("elapsed", time.Since(start)).
		Msg("process stopped")
	return nil
}

func (h *Handle) wait() {
	err := h.cmd.Wait()

	code := -1
	if h.cmd.ProcessState != nil {
		code = h.cmd.ProcessState.ExitCode()
	}
	h.exitCode = code
	h.exitedAt = time.Now()
	h.waitErr = err
	close(h.done)

	metrics.ProcAlive.WithLabelValues(h.component).Dec()

	uptime := time.Since(h.started)
	switch {
	case h.stopRequested.Load():
		metrics.ProcExitTotal.WithLabelValues(h.component, "requested").Inc()
		h.logger.Debug().Int(xglog.FieldExitCode, code).Dur("uptime", uptime).Msg("process exited after stop request")
	case code == 0:
		metrics.ProcExitTotal.WithLabelValues(h.component, "exited").Inc()
		h.logger.Info().
			Str("event", "process.exited").
			Int(xglog.FieldExitCode, code).
			Dur("uptime", uptime).
			Msg("process exited")
	default:
		metrics.ProcExitTotal.WithLabelValues(h.component, "unexpected").Inc()
		h.logger.Warn().
			Str("event", "process.exited_unexpectedly").
			Int(xglog.FieldExitCode, code).
			Dur("uptime", uptime).
			Msg("process exited unexpectedly")
	}
}

func (h *Handle) capture(r *os.File) {
	defer close(h.captured)
	defer func() { _ = r.Close() }()

	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	for scanner.Scan() {
		h.emit(scanner.Text())
	}
	if err := scanner.Err(); err != nil && !errors.Is(err, os.ErrClosed) {
		h.logger.Warn().Err(err).Msg("stderr capture aborted, discarding remaining output")
		// Keep draining so the process never blocks on a full pipe.
		_, _ = io.Copy(io.Discard, r)
	}
}

func (h *Handle) emit(text string) {
	h.ring.Add(text)
	if h.sink == nil {
		h.logger.Debug().Str("line", text).Msg("process output")
		return
	}
	h.sink.Send(xglog.Line{
		Component: h.component,
		Process:   h.name,
		PID:       h.pid,
		Text:      text,
		At:        time.Now(),
	})
}
