package lifecycle

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os/exec"
	"path/filepath"
	"strings"
)

// Launcher starts an executable with dir as its working directory and
// returns the new process id. The started process must outlive ctx.
type Launcher interface {
	Launch(ctx context.Context, exe, dir string) (int, error)
}

// OutputFunc returns writers receiving a launched emulator's stdout and
// stderr. Nil writers leave the stream unattached.
type OutputFunc func(name string) (stdout, stderr io.WriteCloser, err error)

// ExecLauncher launches emulators with os/exec, detached from the
// controller so they keep running when it exits.
type ExecLauncher struct {
	Logger *slog.Logger
	Output OutputFunc
}

func (l ExecLauncher) Launch(_ context.Context, exe, dir string) (int, error) {
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}
	// #nosec G204 -- exe comes from the operator's catalog
	cmd := exec.Command(exe)
	cmd.Dir = dir
	configureSysProcAttr(cmd)

	var closers []io.Closer
	if l.Output != nil {
		out, errW, err := l.Output(outputName(exe))
		if err != nil {
			return 0, fmt.Errorf("emulator output for %s: %w", exe, err)
		}
		if out != nil {
			cmd.Stdout = out
			closers = append(closers, out)
		}
		if errW != nil {
			cmd.Stderr = errW
			closers = append(closers, errW)
		}
	}
	closeAll := func() {
		for _, c := range closers {
			_ = c.Close()
		}
	}

	if err := cmd.Start(); err != nil {
		closeAll()
		return 0, fmt.Errorf("launch %s: %w", exe, err)
	}
	pid := cmd.Process.Pid
	// reap the child so it does not linger as a zombie after exit
	go func() {
		err := cmd.Wait()
		closeAll()
		logger.Debug("emulator process exited", "exe", exe, "pid", pid, "error", err)
	}()
	return pid, nil
}

func outputName(exe string) string {
	base := filepath.Base(exe)
	return strings.TrimSuffix(base, filepath.Ext(base))
}
