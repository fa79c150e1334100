package livenesstest

import (
	"context"
	"path/filepath"
	"strings"
	"sync"
)

// Launcher registers launched executables in a Table instead of starting
// real processes. The process name is the exe base name without extension.
type Launcher struct {
	Table *Table

	mu    sync.Mutex
	calls []string
}

func (l *Launcher) Launch(_ context.Context, exe, dir string) (int, error) {
	base := filepath.Base(exe)
	l.mu.Lock()
	l.calls = append(l.calls, base)
	l.mu.Unlock()
	p := l.Table.Add(strings.TrimSuffix(base, filepath.Ext(base)), filepath.Join(dir, base))
	return int(p.Pid), nil
}

// Launched returns the exe base names passed to Launch, in call order.
func (l *Launcher) Launched() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.calls...)
}
