//go:build !windows

package launcher

import (
	"os/exec"
	"syscall"
)

// setSysProcAttr puts the worker in its own process group so signals aimed
// at it never reach the host process, and vice versa.
func setSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setpgid: true}
}

// signalTerm sends SIGTERM to the worker's process group.
func signalTerm(cmd *exec.Cmd) error {
	return syscall.Kill(-cmd.Process.Pid, syscall.SIGTERM)
}

// kill sends SIGKILL to the worker's process group.
func kill(cmd *exec.Cmd) error {
	return syscall.Kill(-cmd.Process.Pid, syscall.SIGKILL)
}
