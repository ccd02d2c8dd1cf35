// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ingest

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	xglog "github.com/ManuGH/striploop/internal/log"
	"github.com/ManuGH/striploop/internal/persistence/sqlite"
)

// Journal keeps the history of finished jobs. Active jobs live only in the
// pipeline; the journal sees each job once it is terminal.
type Journal interface {
	Record(ctx context.Context, job Job) error
	Get(ctx context.Context, id string) (Job, error)
	Recent(ctx context.Context, limit int) ([]Job, error)
	Close() error
}

// MemoryJournal keeps the most recent finished jobs in memory.
type MemoryJournal struct {
	mu   sync.Mutex
	max  int
	jobs map[string]Job
}

// NewMemoryJournal keeps up to max jobs (default 256).
func NewMemoryJournal(max int) *MemoryJournal {
	if max <= 0 {
		max = 256
	}
	return &MemoryJournal{max: max, jobs: make(map[string]Job)}
}

func (m *MemoryJournal) Record(_ context.Context, job Job) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.jobs[job.ID] = job
	if len(m.jobs) > m.max {
		var oldest string
		var at time.Time
		for id, j := range m.jobs {
			if oldest == "" || j.FinishedAt.Before(at) {
				oldest, at = id, j.FinishedAt
			}
		}
		delete(m.jobs, oldest)
	}
	return nil
}

func (m *MemoryJournal) Get(_ context.Context, id string) (Job, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	j, ok := m.jobs[id]
	if !ok {
		return Job{}, ErrJobNotFound
	}
	return j, nil
}

func (m *MemoryJournal) Recent(_ context.Context, limit int) ([]Job, error) {
	m.mu.Lock()
	out := make([]Job, 0, len(m.jobs))
	for _, j := range m.jobs {
		out = append(out, j)
	}
	m.mu.Unlock()
	sort.Slice(out, func(i, k int) bool { return out[i].FinishedAt.After(out[k].FinishedAt) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryJournal) Close() error { return nil }

var journalSchema = []string{
	`CREATE TABLE IF NOT EXISTS ingest_jobs (
		id          TEXT PRIMARY KEY,
		source      TEXT NOT NULL,
		dest        TEXT NOT NULL,
		status      TEXT NOT NULL,
		reason      TEXT NOT NULL DEFAULT '',
		detail      TEXT NOT NULL DEFAULT '',
		retry_of    TEXT NOT NULL DEFAULT '',
		enqueued_at INTEGER NOT NULL,
		started_at  INTEGER NOT NULL DEFAULT 0,
		finished_at INTEGER NOT NULL DEFAULT 0
	)`,
	`CREATE INDEX IF NOT EXISTS ingest_jobs_finished ON ingest_jobs (finished_at DESC)`,
}

// SQLiteJournal persists finished jobs so failures can be inspected and
// retried across restarts.
type SQLiteJournal struct {
	db *sql.DB
}

// OpenSQLiteJournal opens (or creates) the journal at path. A corrupt database
// is quarantined and replaced by an empty one.
func OpenSQLiteJournal(ctx context.Context, path string) (*SQLiteJournal, error) {
	if err := sqlite.CheckOrQuarantine(ctx, path); err != nil {
		if !errors.Is(err, sqlite.ErrCorrupt) {
			return nil, err
		}
		logger := xglog.WithComponent("ingest")
		logger.Warn().Err(err).Str(xglog.FieldPath, path).Msg("ingest journal quarantined, starting empty")
	}
	db, err := sqlite.Open(ctx, path, sqlite.DefaultConfig(), journalSchema...)
	if err != nil {
		return nil, fmt.Errorf("open ingest journal: %w", err)
	}
	return &SQLiteJournal{db: db}, nil
}

func (s *SQLiteJournal) Record(ctx context.Context, job Job) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO ingest_jobs (id, source, dest, status, reason, detail, retry_of, enqueued_at, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			status = excluded.status, reason = excluded.reason, detail = excluded.detail,
			started_at = excluded.started_at, finished_at = excluded.finished_at`,
		job.ID, job.Source, job.Dest, string(job.Status), job.Reason, job.Detail, job.RetryOf,
		unixNano(job.EnqueuedAt), unixNano(job.StartedAt), unixNano(job.FinishedAt),
	)
	if err != nil {
		return fmt.Errorf("record ingest job %s: %w", job.ID, err)
	}
	return nil
}

const selectJob = `SELECT id, source, dest, status, reason, detail, retry_of, enqueued_at, started_at, finished_at FROM ingest_jobs`

func (s *SQLiteJournal) Get(ctx context.Context, id string) (Job, error) {
	row := s.db.QueryRowContext(ctx, selectJob+` WHERE id = ?`, id)
	j, err := scanJob(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Job{}, ErrJobNotFound
	}
	return j, err
}

func (s *SQLiteJournal) Recent(ctx context.Context, limit int) ([]Job, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.db.QueryContext(ctx, selectJob+` ORDER BY finished_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list ingest jobs: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []Job
	for rows.Next() {
		j, err := scanJob(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, j)
	}
	return out, rows.Err()
}

func (s *SQLiteJournal) Close() error { return s.db.Close() }

// Ping checks the database is still reachable.
func (s *SQLiteJournal) Ping(ctx context.Context) error { return s.db.PingContext(ctx) }

type rowScanner interface {
	Scan(dest ...any) error
}

func scanJob(r rowScanner) (Job, error) {
	var (
		j                  Job
		status             string
		enq, start, finish int64
	)
	if err := r.Scan(&j.ID, &j.Source, &j.Dest, &status, &j.Reason, &j.Detail, &j.RetryOf, &enq, &start, &finish); err != nil {
		return Job{}, err
	}
	j.Status = Status(status)
	j.EnqueuedAt = fromUnixNano(enq)
	j.StartedAt = fromUnixNano(start)
	j.FinishedAt = fromUnixNano(finish)
	return j, nil
}

func unixNano(t time.Time) int64 {
	if t.IsZero() {
		return 0
	}
	return t.UnixNano()
}

func fromUnixNano(n int64) time.Time {
	if n == 0 {
		return time.Time{}
	}
	return time.Unix(0, n).UTC()
}
