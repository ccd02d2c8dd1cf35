// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

package health

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/ManuGH/striploop/internal/mode"
)

// DirChecker verifies a directory exists and accepts new files.
type DirChecker struct {
	name string
	path string
}

// NewDirChecker creates a writable-directory checker.
func NewDirChecker(name, path string) *DirChecker {
	return &DirChecker{name: name, path: path}
}

func (c *DirChecker) Name() string { return c.name }

func (c *DirChecker) Check(_ context.Context) CheckResult {
	info, err := os.Stat(c.path)
	if err != nil {
		if os.IsNotExist(err) {
			return CheckResult{Status: StatusUnhealthy, Error: "directory not found", Message: c.path}
		}
		return CheckResult{Status: StatusUnhealthy, Error: err.Error()}
	}
	if !info.IsDir() {
		return CheckResult{Status: StatusUnhealthy, Error: "not a directory", Message: c.path}
	}

	probe := filepath.Join(c.path, ".write_test")
	if err := os.WriteFile(probe, []byte("ok"), 0o600); err != nil {
		return CheckResult{Status: StatusUnhealthy, Error: fmt.Sprintf("not writable: %v", err), Message: c.path}
	}
	_ = os.Remove(probe)
	return CheckResult{Status: StatusHealthy, Message: c.path}
}

// PlaybackStatus is satisfied by the mode controller.
type PlaybackStatus interface {
	Status() mode.Status
}

// PlaybackChecker is unhealthy when the current mode's supervisor is not
// running. A switch in progress is reported as degraded.
type PlaybackChecker struct {
	modes PlaybackStatus
}

func NewPlaybackChecker(modes PlaybackStatus) *PlaybackChecker {
	return &PlaybackChecker{modes: modes}
}

func (c *PlaybackChecker) Name() string { return "playback" }

func (c *PlaybackChecker) Check(_ context.Context) CheckResult {
	st := c.modes.Status()
	switch {
	case st.Switching:
		return CheckResult{Status: StatusDegraded, Message: "switching from " + string(st.Mode)}
	case !st.Active:
		return CheckResult{Status: StatusUnhealthy, Error: "supervisor not running", Message: string(st.Mode)}
	default:
		return CheckResult{Status: StatusHealthy, Message: string(st.Mode)}
	}
}

// Pinger is anything with a cheap round-trip, such as the ingest journal.
type Pinger interface {
	Ping(ctx context.Context) error
}

// PingChecker reports a failed ping as degraded: uploads still play, only the
// job history is affected.
type PingChecker struct {
	name string
	p    Pinger
}

func NewPingChecker(name string, p Pinger) *PingChecker {
	return &PingChecker{name: name, p: p}
}

func (c *PingChecker) Name() string { return c.name }

func (c *PingChecker) Check(ctx context.Context) CheckResult {
	if err := c.p.Ping(ctx); err != nil {
		return CheckResult{Status: StatusDegraded, Error: err.Error()}
	}
	return CheckResult{Status: StatusHealthy}
}
