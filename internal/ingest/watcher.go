// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ingest

import (
	"context"
	"fmt"
	"path/filepath"
	"strings"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/rs/zerolog"

	xglog "github.com/ManuGH/striploop/internal/log"
	"github.com/ManuGH/striploop/internal/playlist"
)

// Enqueuer accepts raw files.
type Enqueuer interface {
	Enqueue(ctx context.Context, rawPath string) (string, error)
}

// Watcher enqueues video files that appear in the raw directory out of band,
// e.g. copied over SSH. A file is enqueued once it has been quiet for Settle.
type Watcher struct {
	Dir    string
	Target Enqueuer
	Settle time.Duration // default 2s

	logger zerolog.Logger
}

// NewWatcher creates a watcher for dir.
func NewWatcher(dir string, target Enqueuer, settle time.Duration) *Watcher {
	if settle <= 0 {
		settle = 2 * time.Second
	}
	return &Watcher{
		Dir:    dir,
		Target: target,
		Settle: settle,
		logger: xglog.WithComponent("ingest").With().Str("source", "watcher").Logger(),
	}
}

// Run watches until ctx ends.
func (w *Watcher) Run(ctx context.Context) error {
	fw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("create watcher: %w", err)
	}
	defer func() { _ = fw.Close() }()

	if err := fw.Add(w.Dir); err != nil {
		return fmt.Errorf("watch %s: %w", w.Dir, err)
	}
	w.logger.Info().Str(xglog.FieldDir, w.Dir).Msg("watching raw directory")

	pending := make(map[string]time.Time)
	tick := time.NewTicker(w.Settle / 2)
	defer tick.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil

		case ev, ok := <-fw.Events:
			if !ok {
				return nil
			}
			if !ev.Has(fsnotify.Create) && !ev.Has(fsnotify.Write) {
				if ev.Has(fsnotify.Remove) || ev.Has(fsnotify.Rename) {
					delete(pending, ev.Name)
				}
				continue
			}
			if !w.candidate(ev.Name) {
				continue
			}
			pending[ev.Name] = time.Now()

		case err, ok := <-fw.Errors:
			if !ok {
				return nil
			}
			w.logger.Warn().Err(err).Msg("watcher error")

		case now := <-tick.C:
			for path, last := range pending {
				if now.Sub(last) < w.Settle {
					continue
				}
				delete(pending, path)
				id, err := w.Target.Enqueue(ctx, path)
				if err != nil {
					w.logger.Warn().Err(err).Str(xglog.FieldRawPath, path).Msg("auto-enqueue failed")
					continue
				}
				w.logger.Info().Str(xglog.FieldJobID, id).Str(xglog.FieldRawPath, path).Msg("auto-enqueued raw file")
			}
		}
	}
}

func (w *Watcher) candidate(path string) bool {
	name := filepath.Base(path)
	return !strings.HasPrefix(name, ".") && playlist.IsVideo(name)
}
