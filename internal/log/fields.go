// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package log

// Canonical field name constants for structured logging.
const (
	// Identity fields
	FieldJobID     = "job_id"
	FieldSessionID = "session_id"
	FieldPass      = "pass"

	// Process fields
	FieldEvent     = "event"
	FieldComponent = "component"
	FieldProcess   = "process"
	FieldPID       = "pid"
	FieldExitCode  = "exit_code"

	// Media fields
	FieldResolution = "resolution"
	FieldItems      = "items"
	FieldOrder      = "order"

	// State fields
	FieldOldState = "old_state"
	FieldNewState = "new_state"
	FieldMode     = "mode"

	// Path fields
	FieldPath      = "path"
	FieldRawPath   = "raw_path"
	FieldFinalPath = "final_path"
	FieldDir       = "dir"
)
