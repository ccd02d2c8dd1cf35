// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package ingest validates uploaded raw videos, transforms them into the strip
// layout and promotes the result atomically into the processed store.
//
// Jobs run one at a time in enqueue order so a transform never competes with
// another transform for CPU.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/google/renameio/v2"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	xglog "github.com/ManuGH/striploop/internal/log"
	"github.com/ManuGH/striploop/internal/metrics"
	"github.com/ManuGH/striploop/internal/playlist"
	"github.com/ManuGH/striploop/internal/telemetry"
)

// Required strip geometry of every upload.
const (
	RequiredWidth  = 3072
	RequiredHeight = 64
)

// Options configures a Pipeline.
type Options struct {
	RawDir       string
	ProcessedDir string
	Prefix       string // final name prefix, default "strip_"
	Width        int    // default RequiredWidth
	Height       int    // default RequiredHeight
	QueueSize    int    // default 64

	Prober      Prober
	Transformer Transformer
	Journal     Journal // default in-memory

	Now func() time.Time

	// beforePromote runs with the finished temp file just before the rename.
	beforePromote func(tempPath string) error
}

// Pipeline is the single-worker ingest queue.
type Pipeline struct {
	opts   Options
	queue  chan *Job
	logger zerolog.Logger
	tracer trace.Tracer

	mu     sync.Mutex
	active map[string]*Job   // queued or in flight, by ID
	seen   map[string]string // fingerprint -> job ID for this process lifetime
	order  []string          // active IDs in enqueue order
	closed bool
}

// New validates opts and creates both store directories.
func New(opts Options) (*Pipeline, error) {
	if opts.RawDir == "" || opts.ProcessedDir == "" {
		return nil, errors.New("ingest: raw and processed dirs are required")
	}
	if filepath.Clean(opts.RawDir) == filepath.Clean(opts.ProcessedDir) {
		return nil, errors.New("ingest: raw and processed dirs must differ")
	}
	if opts.Prober == nil || opts.Transformer == nil {
		return nil, errors.New("ingest: prober and transformer are required")
	}
	if opts.Prefix == "" {
		opts.Prefix = "strip_"
	}
	if opts.Width <= 0 {
		opts.Width = RequiredWidth
	}
	if opts.Height <= 0 {
		opts.Height = RequiredHeight
	}
	if opts.QueueSize <= 0 {
		opts.QueueSize = 64
	}
	if opts.Journal == nil {
		opts.Journal = NewMemoryJournal(0)
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	for _, dir := range []string{opts.RawDir, opts.ProcessedDir} {
		if err := os.MkdirAll(dir, 0o750); err != nil {
			return nil, fmt.Errorf("ingest: create %s: %w", dir, err)
		}
	}

	return &Pipeline{
		opts:   opts,
		queue:  make(chan *Job, opts.QueueSize),
		logger: xglog.WithComponent("ingest"),
		tracer: telemetry.Tracer("striploop/ingest"),
		active: make(map[string]*Job),
		seen:   make(map[string]string),
	}, nil
}

// RawDir returns the raw upload directory.
func (p *Pipeline) RawDir() string { return p.opts.RawDir }

// ProcessedDir returns the processed store directory.
func (p *Pipeline) ProcessedDir() string { return p.opts.ProcessedDir }

// Destination returns the final processed path for a raw file. An ".mp4"
// upload keeps its stem; any other source extension is folded into the stem
// ("a.mov" becomes "strip_a_mov.mp4") so distinct raw names never share an
// output. A ".mp4" stem that already ends in "_<video ext>" is folded too,
// which keeps the mapping one-to-one.
func (p *Pipeline) Destination(rawPath string) string {
	base := filepath.Base(rawPath)
	ext := filepath.Ext(base)
	stem := strings.TrimSuffix(base, ext)
	if ext != ".mp4" || hasVideoSuffix(stem) {
		stem += "_" + strings.TrimPrefix(ext, ".")
	}
	return filepath.Join(p.opts.ProcessedDir, p.opts.Prefix+stem+".mp4")
}

func hasVideoSuffix(stem string) bool {
	i := strings.LastIndexByte(stem, '_')
	return i >= 0 && playlist.IsVideo("x."+stem[i+1:])
}

// Enqueue adds rawPath to the queue and returns the job ID. Enqueuing the same
// unchanged file again while it is known returns the existing job ID.
func (p *Pipeline) Enqueue(ctx context.Context, rawPath string) (string, error) {
	return p.enqueue(ctx, rawPath, "")
}

func (p *Pipeline) enqueue(ctx context.Context, rawPath, retryOf string) (string, error) {
	abs, err := filepath.Abs(rawPath)
	if err != nil {
		return "", fmt.Errorf("ingest: resolve %s: %w", rawPath, err)
	}
	info, err := os.Stat(abs)
	if err != nil {
		return "", fmt.Errorf("ingest: stat raw file: %w", err)
	}
	fp := fmt.Sprintf("%s|%d|%d", abs, info.Size(), info.ModTime().UnixNano())

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return "", ErrClosed
	}
	if id, ok := p.seen[fp]; ok && retryOf == "" {
		return id, nil
	}

	job := &Job{
		ID:         uuid.NewString(),
		Source:     abs,
		Dest:       p.Destination(abs),
		Status:     StatusQueued,
		RetryOf:    retryOf,
		EnqueuedAt: p.opts.Now(),
	}
	select {
	case p.queue <- job:
	default:
		return "", ErrQueueFull
	}
	p.active[job.ID] = job
	p.order = append(p.order, job.ID)
	if len(p.seen) > 4096 {
		p.seen = make(map[string]string)
	}
	p.seen[fp] = job.ID
	metrics.IngestQueueDepth.Set(float64(len(p.active)))

	logger := xglog.WithContext(ctx, p.logger)
	logger.Info().
		Str("event", "ingest.job_queued").
		Str(xglog.FieldJobID, job.ID).
		Str(xglog.FieldRawPath, abs).
		Msg("ingest job queued")
	return job.ID, nil
}

// Retry re-enqueues the source of a failed job. The raw file is always kept,
// so a failed job can be re-run once its cause is fixed.
func (p *Pipeline) Retry(ctx context.Context, id string) (string, error) {
	j, err := p.opts.Journal.Get(ctx, id)
	if err != nil {
		return "", err
	}
	if j.Status != StatusFailed {
		return "", ErrNotRetryable
	}
	return p.enqueue(ctx, j.Source, j.ID)
}

// Close rejects further enqueues. Run still drains queued jobs as failed when
// its context ends.
func (p *Pipeline) Close() {
	p.mu.Lock()
	p.closed = true
	p.mu.Unlock()
}

// Job returns the current snapshot of a job, active or finished.
func (p *Pipeline) Job(ctx context.Context, id string) (Job, error) {
	p.mu.Lock()
	if j, ok := p.active[id]; ok {
		snap := *j
		p.mu.Unlock()
		return snap, nil
	}
	p.mu.Unlock()
	return p.opts.Journal.Get(ctx, id)
}

// Jobs returns active jobs in queue order followed by up to limit finished ones.
func (p *Pipeline) Jobs(ctx context.Context, limit int) ([]Job, error) {
	p.mu.Lock()
	out := make([]Job, 0, len(p.order))
	for _, id := range p.order {
		out = append(out, *p.active[id])
	}
	p.mu.Unlock()

	done, err := p.opts.Journal.Recent(ctx, limit)
	if err != nil {
		return out, err
	}
	return append(out, done...), nil
}

// Run is the worker loop. It processes one job at a time until ctx ends, then
// marks whatever is still queued as failed so it can be retried.
func (p *Pipeline) Run(ctx context.Context) error {
	p.logger.Info().Str(xglog.FieldDir, p.opts.RawDir).Msg("ingest worker started")
	for {
		select {
		case <-ctx.Done():
			p.drain(ctx.Err())
			p.logger.Info().Msg("ingest worker stopped")
			return nil
		case job := <-p.queue:
			p.process(ctx, job)
		}
	}
}

func (p *Pipeline) drain(cause error) {
	for {
		select {
		case job := <-p.queue:
			ctx := xglog.ContextWithJobID(context.Background(), job.ID)
			p.finish(ctx, job, &JobError{JobID: job.ID, Stage: StageValidate, Err: cause})
		default:
			return
		}
	}
}

func (p *Pipeline) process(ctx context.Context, job *Job) {
	ctx, span := p.tracer.Start(ctx, "ingest.job", trace.WithAttributes(telemetry.JobAttributes(job.ID, job.Source, "")...))
	defer span.End()
	ctx = xglog.ContextWithJobID(ctx, job.ID)

	p.setStatus(job, StatusValidating)
	if err := p.validate(ctx, job); err != nil {
		p.finish(ctx, job, &JobError{JobID: job.ID, Stage: StageValidate, Err: err})
		telemetry.RecordError(span, err, Reason(err))
		return
	}

	p.setStatus(job, StatusTransforming)
	if stage, err := p.transformAndPromote(ctx, job); err != nil {
		p.finish(ctx, job, &JobError{JobID: job.ID, Stage: stage, Err: err})
		telemetry.RecordError(span, err, Reason(err))
		return
	}
	p.finish(ctx, job, nil)
	span.SetAttributes(attribute.String(telemetry.JobStatusKey, string(StatusDone)))
}

func (p *Pipeline) validate(ctx context.Context, job *Job) error {
	if !playlist.IsVideo(job.Source) {
		return fmt.Errorf("%w: %s", ErrUnsupportedFormat, filepath.Ext(job.Source))
	}
	g, err := p.opts.Prober.Probe(ctx, job.Source)
	if err != nil {
		if errors.Is(err, ErrProbeFailed) || ctx.Err() != nil {
			return err
		}
		return fmt.Errorf("%w: %w", ErrProbeFailed, err)
	}
	if g.Width != p.opts.Width || g.Height != p.opts.Height {
		return fmt.Errorf("%w: got %s, required %dx%d", ErrGeometryMismatch, g, p.opts.Width, p.opts.Height)
	}
	logger := xglog.WithContext(ctx, p.logger)
	logger.Debug().Str(xglog.FieldResolution, g.String()).Msg("geometry ok")
	return nil
}

// transformAndPromote writes into a dot-prefixed temp file inside the processed
// store and renames it over the final name only once it is complete and synced.
func (p *Pipeline) transformAndPromote(ctx context.Context, job *Job) (Stage, error) {
	pending, err := renameio.NewPendingFile(job.Dest,
		renameio.WithTempDir(p.opts.ProcessedDir),
		renameio.WithPermissions(0o644),
	)
	if err != nil {
		return StageTransform, fmt.Errorf("%w: create temp output: %w", ErrTransformFailed, err)
	}
	defer func() { _ = pending.Cleanup() }()

	start := time.Now()
	err = p.opts.Transformer.Transform(ctx, job.Source, pending.Name())
	metrics.IngestTransformSeconds.Observe(time.Since(start).Seconds())
	if err != nil {
		if !errors.Is(err, ErrTransformFailed) {
			err = fmt.Errorf("%w: %w", ErrTransformFailed, err)
		}
		return StageTransform, err
	}

	if p.opts.beforePromote != nil {
		if err := p.opts.beforePromote(pending.Name()); err != nil {
			return StagePromote, fmt.Errorf("%w: %w", ErrPromoteFailed, err)
		}
	}
	if err := pending.CloseAtomicallyReplace(); err != nil {
		return StagePromote, fmt.Errorf("%w: %w", ErrPromoteFailed, err)
	}
	return "", nil
}

func (p *Pipeline) setStatus(job *Job, s Status) {
	p.mu.Lock()
	job.Status = s
	if s == StatusValidating {
		job.StartedAt = p.opts.Now()
	}
	p.mu.Unlock()
}

func (p *Pipeline) finish(ctx context.Context, job *Job, jerr error) {
	p.mu.Lock()
	job.FinishedAt = p.opts.Now()
	if jerr == nil {
		job.Status = StatusDone
	} else {
		job.Status = StatusFailed
		job.Reason = Reason(jerr)
		job.Detail = jerr.Error()
	}
	delete(p.active, job.ID)
	for i, id := range p.order {
		if id == job.ID {
			p.order = append(p.order[:i], p.order[i+1:]...)
			break
		}
	}
	if jerr != nil {
		// A failed file may be retried or re-uploaded unchanged.
		for fp, id := range p.seen {
			if id == job.ID {
				delete(p.seen, fp)
			}
		}
	}
	snap := *job
	metrics.IngestQueueDepth.Set(float64(len(p.active)))
	p.mu.Unlock()

	logger := xglog.WithContext(ctx, p.logger).With().
		Str(xglog.FieldRawPath, snap.Source).
		Dur("duration", snap.FinishedAt.Sub(snap.StartedAt)).
		Logger()
	if jerr == nil {
		metrics.IngestJobsTotal.WithLabelValues("done", "").Inc()
		logger.Info().Str("event", "ingest.job_done").Str(xglog.FieldFinalPath, snap.Dest).Msg("ingest job done")
	} else {
		metrics.IngestJobsTotal.WithLabelValues("failed", snap.Reason).Inc()
		logger.Warn().Err(jerr).Str("event", "ingest.job_failed").Str("reason", snap.Reason).Msg("ingest job failed, raw file kept")
	}

	if err := p.opts.Journal.Record(context.WithoutCancel(ctx), snap); err != nil {
		logger.Error().Err(err).Msg("journal write failed")
	}
}
