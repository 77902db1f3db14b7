//go:build windows

package launcher

import (
	"os/exec"
	"syscall"
)

const createNoWindow = 0x08000000

// setSysProcAttr suppresses the console window the child would otherwise
// open when the host runs from a terminal-less context.
func setSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		HideWindow:    true,
		CreationFlags: createNoWindow,
	}
}

// signalTerm has no graceful equivalent on Windows; terminate outright.
func signalTerm(cmd *exec.Cmd) error {
	return cmd.Process.Kill()
}

func kill(cmd *exec.Cmd) error {
	return cmd.Process.Kill()
}
