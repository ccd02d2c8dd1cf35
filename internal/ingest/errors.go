// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package ingest

import (
	"context"
	"errors"
	"fmt"
)

var (
	ErrUnsupportedFormat = errors.New("unsupported format")
	ErrGeometryMismatch  = errors.New("geometry mismatch")
	ErrProbeFailed       = errors.New("could not read video metadata")
	ErrTransformFailed   = errors.New("transform failed")
	ErrPromoteFailed     = errors.New("promote failed")

	ErrQueueFull    = errors.New("ingest queue full")
	ErrClosed       = errors.New("ingest pipeline closed")
	ErrJobNotFound  = errors.New("ingest job not found")
	ErrNotRetryable = errors.New("only failed jobs can be retried")
	ErrInvalidName  = errors.New("invalid file name")
	ErrTooLarge     = errors.New("upload exceeds size limit")
)

// Stage names the worker step a job failed in.
type Stage string

const (
	StageValidate  Stage = "validate"
	StageTransform Stage = "transform"
	StagePromote   Stage = "promote"
)

// JobError is the failure recorded on a job.
type JobError struct {
	JobID string
	Stage Stage
	Err   error
}

func (e *JobError) Error() string {
	return fmt.Sprintf("ingest job %s: %s: %v", e.JobID, e.Stage, e.Err)
}

func (e *JobError) Unwrap() error { return e.Err }

// Reason maps an error to a bounded reason code for metrics and the API.
func Reason(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.Canceled):
		return "canceled"
	case errors.Is(err, ErrUnsupportedFormat):
		return "unsupported_format"
	case errors.Is(err, ErrGeometryMismatch):
		return "geometry_mismatch"
	case errors.Is(err, ErrProbeFailed):
		return "probe_failed"
	case errors.Is(err, ErrTransformFailed):
		return "transform_failed"
	case errors.Is(err, ErrPromoteFailed):
		return "promote_failed"
	default:
		return "internal"
	}
}
