// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package supervisor

import (
	"errors"
	"fmt"
)

// ErrLaunch classifies every LaunchError; use errors.Is(err, ErrLaunch).
var ErrLaunch = errors.New("process launch failed")

// LaunchError reports that an external binary is missing or could not be executed.
// It is fatal for the supervisor that hit it.
type LaunchError struct {
	Name string // process role, e.g. "decode"
	Path string
	Err  error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("launch %s (%s): %v", e.Name, e.Path, e.Err)
}

func (e *LaunchError) Unwrap() []error {
	return []error{ErrLaunch, e.Err}
}
