// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ingest

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/ManuGH/striploop/internal/supervisor"
)

// Geometry is a frame size in pixels.
type Geometry struct {
	Width  int `json:"width"`
	Height int `json:"height"`
}

func (g Geometry) String() string { return fmt.Sprintf("%dx%d", g.Width, g.Height) }

// Prober reads the frame geometry of the first video stream.
type Prober interface {
	Probe(ctx context.Context, path string) (Geometry, error)
}

// FFprobe implements Prober with ffprobe.
type FFprobe struct {
	Bin     string
	Sup     *supervisor.Supervisor
	Timeout time.Duration // default 10s
}

// Probe returns the geometry of the first video stream. Every failure wraps
// ErrProbeFailed.
func (p FFprobe) Probe(ctx context.Context, path string) (Geometry, error) {
	bin := p.Bin
	if bin == "" {
		bin = "ffprobe"
	}
	timeout := p.Timeout
	if timeout <= 0 {
		timeout = 10 * time.Second
	}

	var out bytes.Buffer
	h, err := p.Sup.Start(ctx, supervisor.Spec{
		Name: "probe",
		Path: bin,
		Args: []string{
			"-v", "error",
			"-select_streams", "v:0",
			"-show_entries", "stream=width,height",
			"-of", "json",
			path,
		},
		Stdout: &out,
	})
	if err != nil {
		return Geometry{}, fmt.Errorf("%w: %w", ErrProbeFailed, err)
	}

	timer := time.NewTimer(timeout)
	defer timer.Stop()
	select {
	case <-h.Done():
	case <-timer.C:
		_ = h.Stop(time.Second)
		return Geometry{}, fmt.Errorf("%w: timed out after %s", ErrProbeFailed, timeout)
	case <-ctx.Done():
		_ = h.Stop(time.Second)
		return Geometry{}, ctx.Err()
	}
	<-h.Captured()

	if code := h.ExitCode(); code != 0 {
		return Geometry{}, fmt.Errorf("%w: ffprobe exit %d: %s", ErrProbeFailed, code, strings.Join(h.Diagnostics(3), " | "))
	}
	return parseProbe(out.Bytes())
}

type probeOutput struct {
	Streams []Geometry `json:"streams"`
}

func parseProbe(data []byte) (Geometry, error) {
	var po probeOutput
	if err := json.Unmarshal(data, &po); err != nil {
		return Geometry{}, fmt.Errorf("%w: decode ffprobe json: %w", ErrProbeFailed, err)
	}
	if len(po.Streams) == 0 {
		return Geometry{}, fmt.Errorf("%w: no video stream found", ErrProbeFailed)
	}
	g := po.Streams[0]
	if g.Width <= 0 || g.Height <= 0 {
		return Geometry{}, fmt.Errorf("%w: stream reports %s", ErrProbeFailed, g)
	}
	return g, nil
}
