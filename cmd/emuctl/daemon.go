package main

import (
	"fmt"
	"io"
	"os"
	"os/exec"
	"strconv"
	"strings"
)

// daemonize re-executes the current command in the background without the
// --daemonize flag and returns once the child has started.
func daemonize(flags ServeFlags, out io.Writer) error {
	executable, err := os.Executable()
	if err != nil {
		return fmt.Errorf("failed to get executable path: %w", err)
	}
	// #nosec G204 -- re-exec of our own binary
	cmd := exec.Command(executable, childArgs(os.Args[1:])...)
	configureDaemonAttrs(cmd)
	cmd.Stdin = nil
	cmd.Stdout = nil
	cmd.Stderr = nil
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("failed to start daemon process: %w", err)
	}
	_, _ = fmt.Fprintf(out, "emuctl started in background with PID %d\n", cmd.Process.Pid)
	if flags.LogFile == "" {
		_, _ = fmt.Fprintln(out, "console output is discarded; set --logfile or log.file to keep logs")
	}
	return cmd.Process.Release()
}

// childArgs drops --daemonize in both its bare and --daemonize=value forms.
func childArgs(args []string) []string {
	out := make([]string, 0, len(args))
	for _, a := range args {
		if a == "--daemonize" || strings.HasPrefix(a, "--daemonize=") {
			continue
		}
		out = append(out, a)
	}
	return out
}

// writePidFile writes the service PID to a file
func writePidFile(pidFile string, pid int) error {
	return os.WriteFile(pidFile, []byte(strconv.Itoa(pid)), 0o644)
}

func removePidFile(pidFile string) error {
	if pidFile == "" {
		return nil
	}
	return os.Remove(pidFile)
}
