// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build unix

package procgroup

import (
	"os/exec"
	"syscall"
	"time"

	"github.com/ManuGH/striploop/internal/metrics"
)

// Terminate stops a process group: SIGTERM, wait up to grace for done to close,
// then SIGKILL and wait up to killTimeout more. done must be closed by whoever owns
// cmd.Wait. It is safe to call on nil or already exited commands.
func Terminate(cmd *exec.Cmd, done <-chan struct{}, grace, killTimeout time.Duration) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}

	select {
	case <-done:
		return nil
	default:
	}

	if err := Signal(cmd, syscall.SIGTERM); err != nil {
		metrics.IncProcTerminate("SIGTERM", "error")
	} else {
		metrics.IncProcTerminate("SIGTERM", "sent")
	}

	select {
	case <-done:
		metrics.IncProcWait("graceful")
		return nil
	case <-time.After(grace):
	}

	if err := Signal(cmd, syscall.SIGKILL); err != nil {
		metrics.IncProcTerminate("SIGKILL", "error")
	} else {
		metrics.IncProcTerminate("SIGKILL", "sent")
	}

	select {
	case <-done:
		metrics.IncProcWait("forced")
		return nil
	case <-time.After(killTimeout):
		metrics.IncProcWait("stuck")
		return ErrKillTimeout
	}
}
