//go:build windows

package lifecycle

import (
	"os/exec"
	"syscall"

	"golang.org/x/sys/windows"
)

// configureSysProcAttr gives each emulator its own console window and
// process group, the way a shell launch would.
func configureSysProcAttr(cmd *exec.Cmd) {
	cmd.SysProcAttr = &syscall.SysProcAttr{
		CreationFlags: windows.CREATE_NEW_CONSOLE | windows.CREATE_NEW_PROCESS_GROUP,
	}
}
