// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

//go:build unix

// Package procgroup spawns external tools as process-group leaders and tears the
// whole group down with SIGTERM, a bounded grace period, then SIGKILL.
package procgroup

import (
	"errors"
	"os/exec"
	"syscall"
)

// ErrKillTimeout means the group was still alive killTimeout after SIGKILL.
var ErrKillTimeout = errors.New("process group survived SIGKILL")

// Set makes cmd the leader of a new process group. Signal and Terminate only
// reach grandchildren (ffmpeg filter helpers, sh wrappers) when this was called
// before Start.
func Set(cmd *exec.Cmd) {
	if cmd.SysProcAttr == nil {
		cmd.SysProcAttr = &syscall.SysProcAttr{}
	}
	cmd.SysProcAttr.Setpgid = true
}

// Signal delivers sig to every process in cmd's group. A command that never
// started or whose group is gone is not an error.
func Signal(cmd *exec.Cmd, sig syscall.Signal) error {
	if cmd == nil || cmd.Process == nil {
		return nil
	}
	pgid, err := syscall.Getpgid(cmd.Process.Pid)
	if err == nil {
		err = syscall.Kill(-pgid, sig)
	}
	if errors.Is(err, syscall.ESRCH) {
		return nil
	}
	return err
}
