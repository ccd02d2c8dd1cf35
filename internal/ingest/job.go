// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ingest

import "time"

// Status is the lifecycle position of a job.
type Status string

const (
	StatusQueued       Status = "queued"
	StatusValidating   Status = "validating"
	StatusTransforming Status = "transforming"
	StatusDone         Status = "done"
	StatusFailed       Status = "failed"
)

// Terminal reports whether s is Done or Failed.
func (s Status) Terminal() bool { return s == StatusDone || s == StatusFailed }

// Job is a snapshot of one ingest job.
type Job struct {
	ID         string    `json:"id"`
	Source     string    `json:"source"`
	Dest       string    `json:"dest"`
	Status     Status    `json:"status"`
	Reason     string    `json:"reason,omitempty"`
	Detail     string    `json:"detail,omitempty"`
	RetryOf    string    `json:"retry_of,omitempty"`
	EnqueuedAt time.Time `json:"enqueued_at"`
	StartedAt  time.Time `json:"started_at,omitzero"`
	FinishedAt time.Time `json:"finished_at,omitzero"`
}
