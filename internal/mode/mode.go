// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package mode arbitrates between the video and audio playback supervisors.
// Exactly one may run; switches are serialized and persisted.
package mode

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	xglog "github.com/ManuGH/striploop/internal/log"
	"github.com/ManuGH/striploop/internal/metrics"
	"github.com/ManuGH/striploop/internal/telemetry"
)

// Mode is a playback mode.
type Mode string

const (
	Video Mode = "video"
	Audio Mode = "audio"
)

var allModes = []string{string(Video), string(Audio)}

// ErrUnknownMode is returned for tokens other than video or audio.
var ErrUnknownMode = errors.New("unknown mode")

// Parse accepts "video" or "audio", case-insensitively.
func Parse(s string) (Mode, error) {
	switch Mode(strings.ToLower(strings.TrimSpace(s))) {
	case Video:
		return Video, nil
	case Audio:
		return Audio, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownMode, s)
	}
}

// Service is a playback supervisor the controller can start and stop.
type Service interface {
	Start(ctx context.Context) error
	Stop() error
	Active() bool
}

// ErrModeStartFailed classifies every ModeStartError.
var ErrModeStartFailed = errors.New("mode start failed")

// ModeStartError reports that the target supervisor could not be started. The
// previous supervisor has already been stopped and is not restarted.
type ModeStartError struct {
	Target Mode
	Err    error
}

func (e *ModeStartError) Error() string {
	return fmt.Sprintf("start %s mode: %v", e.Target, e.Err)
}

func (e *ModeStartError) Unwrap() []error { return []error{ErrModeStartFailed, e.Err} }

// Status is a point-in-time view of the controller.
type Status struct {
	Mode      Mode `json:"mode"`
	Active    bool `json:"active"`
	Switching bool `json:"switching"`
}

// Controller owns the mode record and the two supervisors.
type Controller struct {
	store    Store
	services map[Mode]Service
	logger   zerolog.Logger
	tracer   trace.Tracer

	// sem serializes switches; a one-slot channel so waiting honors ctx.
	sem chan struct{}

	mu      sync.Mutex
	current Mode
}

// New creates a controller. services must hold an entry for every mode.
func New(store Store, services map[Mode]Service) (*Controller, error) {
	for _, m := range []Mode{Video, Audio} {
		if services[m] == nil {
			return nil, fmt.Errorf("mode: no service for %s", m)
		}
	}
	return &Controller{
		store:    store,
		services: services,
		logger:   xglog.WithComponent("mode"),
		tracer:   telemetry.Tracer("striploop/mode"),
		sem:      make(chan struct{}, 1),
	}, nil
}

func (c *Controller) acquire(ctx context.Context) error {
	select {
	case c.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) release() { <-c.sem }

// Current returns the mode the controller believes is selected.
func (c *Controller) Current() Mode {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.current
}

// Status reports the current mode, whether its supervisor runs, and whether a
// switch is in flight.
func (c *Controller) Status() Status {
	cur := c.Current()
	st := Status{Mode: cur, Switching: len(c.sem) > 0}
	if svc := c.services[cur]; svc != nil {
		st.Active = svc.Active()
	}
	return st
}

// Startup reads the persisted mode (Video when absent or corrupt) and starts
// exactly that supervisor.
func (c *Controller) Startup(ctx context.Context) error {
	if err := c.acquire(ctx); err != nil {
		return err
	}
	defer c.release()

	m, err := c.store.Read(ctx)
	persist := false
	if err != nil {
		level := c.logger.Warn()
		if errors.Is(err, ErrNoRecord) {
			level = c.logger.Info()
		}
		level.Err(err).Str(xglog.FieldMode, string(Video)).Msg("no usable mode record, defaulting")
		m, persist = Video, true
	}

	c.mu.Lock()
	c.current = m
	c.mu.Unlock()

	if err := c.services[m].Start(ctx); err != nil {
		metrics.RecordModeSwitch(string(m), "start_failed")
		metrics.SetActiveMode(allModes, "")
		return &ModeStartError{Target: m, Err: err}
	}
	metrics.SetActiveMode(allModes, string(m))

	if persist {
		if err := c.store.WriteDurable(ctx, m); err != nil {
			c.logger.Warn().Err(err).Msg("could not persist default mode")
		}
	}
	c.logger.Info().Str("event", "mode.startup").Str(xglog.FieldMode, string(m)).Msg("playback mode started")
	return nil
}

// SwitchTo makes target the active mode. It returns changed=false with a nil
// error when target is already current and its supervisor is running.
//
// The old supervisor is stopped before the new one starts, so the two never
// overlap. The record is persisted only after the new supervisor started. If the
// start fails the old supervisor stays stopped and the record is unchanged.
func (c *Controller) SwitchTo(ctx context.Context, target Mode) (changed bool, err error) {
	if _, ok := c.services[target]; !ok {
		return false, fmt.Errorf("%w: %q", ErrUnknownMode, target)
	}
	if err := c.acquire(ctx); err != nil {
		return false, err
	}
	defer c.release()

	from := c.Current()
	logger := c.logger.With().Str("from", string(from)).Str("target", string(target)).Logger()

	if from == target && c.services[target].Active() {
		metrics.RecordModeSwitch(string(target), "noop")
		logger.Debug().Msg("already in target mode")
		return false, nil
	}

	ctx, span := c.tracer.Start(ctx, "mode.switch", trace.WithAttributes(telemetry.ModeAttributes(string(from), string(target))...))
	defer span.End()
	start := time.Now()

	if svc := c.services[from]; svc != nil {
		if err := svc.Stop(); err != nil {
			metrics.RecordModeSwitch(string(target), "stop_failed")
			telemetry.RecordError(span, err, "stop_failed")
			logger.Error().Err(err).Msg("could not stop current supervisor, switch aborted")
			return false, fmt.Errorf("stop %s mode: %w", from, err)
		}
	}
	metrics.SetActiveMode(allModes, "")

	if err := c.services[target].Start(ctx); err != nil {
		serr := &ModeStartError{Target: target, Err: err}
		metrics.RecordModeSwitch(string(target), "start_failed")
		telemetry.RecordError(span, serr, "start_failed")
		logger.Error().Err(err).Str("event", "mode.start_failed").Msg("target supervisor failed to start; no mode is running")
		return false, serr
	}

	if err := c.store.WriteDurable(ctx, target); err != nil {
		// Never leave a running supervisor that disagrees with the record.
		_ = c.services[target].Stop()
		metrics.RecordModeSwitch(string(target), "persist_failed")
		telemetry.RecordError(span, err, "persist_failed")
		logger.Error().Err(err).Str("event", "mode.persist_failed").Msg("mode record not durable; target stopped")
		return false, fmt.Errorf("persist %s mode: %w", target, err)
	}

	c.mu.Lock()
	c.current = target
	c.mu.Unlock()

	metrics.RecordModeSwitch(string(target), "switched")
	metrics.SetActiveMode(allModes, string(target))
	span.SetAttributes(attribute.String(telemetry.ModeResultKey, "switched"))
	logger.Info().
		Str("event", "mode.switched").
		Dur("elapsed", time.Since(start)).
		Msg("playback mode switched")
	return true, nil
}

// Shutdown stops whichever supervisor runs. Used on process exit; the record is
// left untouched so the same mode comes back on the next start.
func (c *Controller) Shutdown(ctx context.Context) error {
	if err := c.acquire(ctx); err != nil {
		return err
	}
	defer c.release()

	var errs []error
	for _, m := range []Mode{Video, Audio} {
		if err := c.services[m].Stop(); err != nil {
			errs = append(errs, fmt.Errorf("stop %s: %w", m, err))
		}
	}
	metrics.SetActiveMode(allModes, "")
	return errors.Join(errs...)
}
