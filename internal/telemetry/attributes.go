// SPDX-License-Identifier: MIT

package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

type attributeKV = attribute.KeyValue

// Span attribute keys.
const (
	JobIDKey     = "ingest.job_id"
	JobStatusKey = "ingest.status"
	JobReasonKey = "ingest.reason"
	JobSourceKey = "ingest.source"

	ModeFromKey   = "mode.from"
	ModeTargetKey = "mode.target"
	ModeResultKey = "mode.result"

	ProcessNameKey = "process.name"
	ExitCodeKey    = "process.exit_code"

	ErrorTypeKey = "error.type"
)

// JobAttributes describes an ingest job.
func JobAttributes(id, source, status string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{attribute.String(JobIDKey, id)}
	if source != "" {
		attrs = append(attrs, attribute.String(JobSourceKey, source))
	}
	if status != "" {
		attrs = append(attrs, attribute.String(JobStatusKey, status))
	}
	return attrs
}

// ModeAttributes describes a mode switch.
func ModeAttributes(from, target string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(ModeFromKey, from),
		attribute.String(ModeTargetKey, target),
	}
}

// RecordError marks span failed with a bounded error class.
func RecordError(span trace.Span, err error, errorType string) {
	if err == nil {
		return
	}
	span.RecordError(err)
	span.SetAttributes(attribute.String(ErrorTypeKey, errorType))
	span.SetStatus(codes.Error, errorType)
}
