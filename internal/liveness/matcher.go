package liveness

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"
)

// Record is a point-in-time view of a matched process.
// PID, MemoryBytes and StartTime are only meaningful when Running is true.
type Record struct {
	ProcessName string
	Running     bool
	PID         int32
	MemoryBytes uint64
	StartTime   time.Time
}

// Matcher decides whether a configured emulator is running by matching the
// OS process name and the directory of its executable.
type Matcher struct {
	table  Table
	logger *slog.Logger
}

func NewMatcher(table Table, logger *slog.Logger) *Matcher {
	if table == nil {
		table = SystemTable{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Matcher{table: table, logger: logger}
}

// FindAll returns every process named name whose executable lives in dir.
// Candidates whose name or path cannot be read are skipped. The error is
// non-nil only when the process table itself could not be read.
func (m *Matcher) FindAll(ctx context.Context, name, dir string) ([]Proc, error) {
	procs, err := m.table.Processes(ctx)
	if err != nil {
		return nil, err
	}
	var out []Proc
	for _, p := range procs {
		if m.matches(ctx, p, name, dir) {
			out = append(out, p)
		}
	}
	return out, nil
}

// IsRunning reports whether a matching process exists. Enumeration failures
// are treated as not running.
func (m *Matcher) IsRunning(ctx context.Context, name, dir string) bool {
	_, ok, err := m.first(ctx, name, dir)
	if err != nil {
		m.logger.Debug("liveness check failed", "process", name, "dir", dir, "error", err)
		return false
	}
	return ok
}

// FindRunning returns a record for the first matching process. A process
// that is not running yields Running=false and a nil error. If the process
// table cannot be read, or the process is found but its details cannot be,
// the partial record is returned together with the error.
func (m *Matcher) FindRunning(ctx context.Context, name, dir string) (Record, error) {
	rec := Record{ProcessName: name}
	p, ok, err := m.first(ctx, name, dir)
	if err != nil {
		return rec, err
	}
	if !ok {
		return rec, nil
	}
	rec.Running = true
	rec.PID = p.PID()
	rss, err := p.RSS(ctx)
	if err != nil {
		return rec, fmt.Errorf("memory info for pid %d: %w", rec.PID, err)
	}
	rec.MemoryBytes = rss
	started, err := p.CreateTime(ctx)
	if err != nil {
		return rec, fmt.Errorf("start time for pid %d: %w", rec.PID, err)
	}
	rec.StartTime = started
	return rec, nil
}

func (m *Matcher) first(ctx context.Context, name, dir string) (Proc, bool, error) {
	procs, err := m.table.Processes(ctx)
	if err != nil {
		return nil, false, err
	}
	for _, p := range procs {
		if m.matches(ctx, p, name, dir) {
			return p, true, nil
		}
	}
	return nil, false, nil
}

func (m *Matcher) matches(ctx context.Context, p Proc, name, dir string) bool {
	n, err := p.Name(ctx)
	if err != nil || n != name {
		return false
	}
	exe, err := p.Exe(ctx)
	if err != nil || exe == "" {
		// exited or access denied
		return false
	}
	return SameDir(filepath.Dir(exe), dir)
}

// SameDir compares two directories case-insensitively after cleaning.
func SameDir(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.EqualFold(filepath.Clean(a), filepath.Clean(b))
}
