// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ingest

import (
	"context"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/ManuGH/striploop/internal/supervisor"
)

// StripFilter cuts a 3072x64 strip into a 1920x64 top and a 1152x64 bottom half
// and stacks them into one frame for the two-panel display.
const StripFilter = "[0:v]crop=1920:64:0:0[top];[0:v]crop=1152:64:1920:0[bottom];[top][bottom]vstack"

// Transformer converts a validated raw file into a player-ready file at dst.
type Transformer interface {
	Transform(ctx context.Context, src, dst string) error
}

// FFmpegTransformer runs the fixed strip transform with ffmpeg.
type FFmpegTransformer struct {
	Bin       string
	Sup       *supervisor.Supervisor
	Filter    string // defaults to StripFilter
	Preset    string // x264 preset, default "veryfast"
	CRF       int    // default 23
	MaxRate   string // default "2M"
	BufSize   string // default "4M"
	Timeout   time.Duration
	StopGrace time.Duration // default 5s
}

// Args returns the ffmpeg command line for src -> dst. The output format is
// forced because dst is a temp name without a media extension.
func (t FFmpegTransformer) Args(src, dst string) []string {
	filter := t.Filter
	if filter == "" {
		filter = StripFilter
	}
	preset := t.Preset
	if preset == "" {
		preset = "veryfast"
	}
	crf := t.CRF
	if crf <= 0 {
		crf = 23
	}
	maxRate := t.MaxRate
	if maxRate == "" {
		maxRate = "2M"
	}
	bufSize := t.BufSize
	if bufSize == "" {
		bufSize = "4M"
	}
	return []string{
		"-hide_banner", "-nostdin", "-loglevel", "error", "-y",
		"-i", src,
		"-filter_complex", filter,
		"-c:v", "libx264", "-preset", preset, "-crf", strconv.Itoa(crf),
		"-maxrate", maxRate, "-bufsize", bufSize,
		"-pix_fmt", "yuv420p", "-an",
		"-movflags", "+faststart",
		"-f", "mp4", dst,
	}
}

// Transform runs ffmpeg and waits for it. Failures wrap ErrTransformFailed.
func (t FFmpegTransformer) Transform(ctx context.Context, src, dst string) error {
	bin := t.Bin
	if bin == "" {
		bin = "ffmpeg"
	}
	grace := t.StopGrace
	if grace <= 0 {
		grace = 5 * time.Second
	}
	if t.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, t.Timeout)
		defer cancel()
	}

	h, err := t.Sup.Start(ctx, supervisor.Spec{Name: "transform", Path: bin, Args: t.Args(src, dst)})
	if err != nil {
		return fmt.Errorf("%w: %w", ErrTransformFailed, err)
	}
	select {
	case <-h.Done():
	case <-ctx.Done():
		_ = h.Stop(grace)
		return fmt.Errorf("%w: %w", ErrTransformFailed, ctx.Err())
	}
	<-h.Captured()

	if code := h.ExitCode(); code != 0 {
		return fmt.Errorf("%w: ffmpeg exit %d: %s", ErrTransformFailed, code, strings.Join(h.Diagnostics(3), " | "))
	}
	return nil
}
