//go:build !windows

package lifecycle

import (
	"os/exec"
	"syscall"
)

// configureSysProcAttr starts the emulator in its own session so signals
// aimed at the controller do not reach it.
func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{Setsid: true}
}
