// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Line is one line of diagnostic output captured from a supervised process.
// A Line with Reopen set carries no text; it tells the writer to reopen the
// component's log file so externally rotated files are picked up.
type Line struct {
	Component string
	Process   string
	PID       int
	Text      string
	At        time.Time
	Reopen    bool
}

// DiagnosticSink is the single writer for process diagnostics. Readers send lines
// over a channel; Run owns every file handle, so no locking is needed around writes.
type DiagnosticSink struct {
	dir    string
	lines  chan Line
	quit   chan struct{}
	done   chan struct{}
	logger zerolog.Logger

	openFile func(component string) (io.WriteCloser, error)
	files    map[string]io.WriteCloser

	closeOnce sync.Once
}

// NewDiagnosticSink creates a sink appending to <dir>/<component>.log.
// An empty dir disables file output; lines still reach the structured logger.
func NewDiagnosticSink(dir string, buffer int) *DiagnosticSink {
	if buffer < 1 {
		buffer = 256
	}
	s := &DiagnosticSink{
		dir:    dir,
		lines:  make(chan Line, buffer),
		quit:   make(chan struct{}),
		done:   make(chan struct{}),
		logger: WithComponent("diagnostics"),
		files:  make(map[string]io.WriteCloser),
	}
	s.openFile = s.openAppend
	return s
}

// Send hands a line to the writer. It returns false if the sink has been closed.
func (s *DiagnosticSink) Send(l Line) bool {
	select {
	case <-s.quit:
		return false
	default:
	}
	select {
	case s.lines <- l:
		return true
	case <-s.quit:
		return false
	}
}

// Run writes lines until ctx is cancelled or Close is called, then drains
// whatever is still buffered and closes all files.
func (s *DiagnosticSink) Run(ctx context.Context) {
	defer close(s.done)
	defer s.closeAll()

	for {
		select {
		case <-ctx.Done():
			s.drain()
			return
		case <-s.quit:
			s.drain()
			return
		case l := <-s.lines:
			s.write(l)
		}
	}
}

// Close stops the writer and waits for it to flush. Safe to call more than once.
func (s *DiagnosticSink) Close() {
	s.closeOnce.Do(func() { close(s.quit) })
}

// Wait blocks until Run has returned.
func (s *DiagnosticSink) Wait() {
	<-s.done
}

func (s *DiagnosticSink) drain() {
	for {
		select {
		case l := <-s.lines:
			s.write(l)
		default:
			return
		}
	}
}

func (s *DiagnosticSink) write(l Line) {
	if l.Reopen {
		if f, ok := s.files[l.Component]; ok {
			_ = f.Close()
			delete(s.files, l.Component)
		}
		return
	}

	s.logger.Debug().
		Str(FieldProcess, l.Process).
		Int(FieldPID, l.PID).
		Str("source_component", l.Component).
		Str("line", l.Text).
		Msg("process output")

	if s.dir == "" {
		return
	}
	f, ok := s.files[l.Component]
	if !ok {
		var err error
		f, err = s.openFile(l.Component)
		if err != nil {
			s.logger.Warn().Err(err).Str(FieldComponent, l.Component).Msg("open diagnostic log failed")
			return
		}
		s.files[l.Component] = f
	}
	at := l.At
	if at.IsZero() {
		at = time.Now()
	}
	if _, err := fmt.Fprintf(f, "%s %s[%d]: %s\n", at.Format(time.RFC3339), l.Process, l.PID, l.Text); err != nil {
		s.logger.Warn().Err(err).Str(FieldComponent, l.Component).Msg("write diagnostic log failed")
	}
}

func (s *DiagnosticSink) openAppend(component string) (io.WriteCloser, error) {
	if err := os.MkdirAll(s.dir, 0o750); err != nil {
		return nil, err
	}
	path := filepath.Join(s.dir, component+".log")
	// #nosec G304 -- component names are fixed by the caller
	return os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o640)
}

func (s *DiagnosticSink) closeAll() {
	for name, f := range s.files {
		_ = f.Close()
		delete(s.files, name)
	}
}
