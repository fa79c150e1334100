// Package livenesstest provides an in-memory process table for tests.
package livenesstest

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/loykin/emuctl/internal/liveness"
)

// ErrExited is returned by a Proc whose process has already gone away.
var ErrExited = errors.New("process exited")

// Table is a concurrency-safe fake of the OS process table.
type Table struct {
	mu      sync.Mutex
	procs   []*Proc
	nextPID int32
	// Err, when set, is returned by Processes.
	Err error
}

func NewTable() *Table { return &Table{nextPID: 1000} }

// Add registers a running process and returns it for further tweaking.
func (t *Table) Add(name, exe string) *Proc {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.nextPID++
	p := &Proc{
		table:     t,
		Pid:       t.nextPID,
		ProcName:  name,
		ExePath:   exe,
		RSSBytes:  64 << 20,
		StartedAt: time.Now(),
	}
	t.procs = append(t.procs, p)
	return p
}

// Len returns the number of processes that have not been killed.
func (t *Table) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.procs)
}

func (t *Table) Processes(context.Context) ([]liveness.Proc, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.Err != nil {
		return nil, t.Err
	}
	out := make([]liveness.Proc, 0, len(t.procs))
	for _, p := range t.procs {
		out = append(out, p)
	}
	return out, nil
}

func (t *Table) remove(p *Proc) {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, q := range t.procs {
		if q == p {
			t.procs = append(t.procs[:i], t.procs[i+1:]...)
			return
		}
	}
}

// Proc is a fake process. Setting one of the *Err fields makes the
// corresponding accessor fail.
type Proc struct {
	table *Table

	Pid       int32
	ProcName  string
	ExePath   string
	RSSBytes  uint64
	StartedAt time.Time

	ExeErr  error
	RSSErr  error
	KillErr error
	// Linger keeps the process alive after a successful Kill.
	Linger bool

	mu     sync.Mutex
	killed int
	exited bool
}

func (p *Proc) PID() int32                             { return p.Pid }
func (p *Proc) Name(context.Context) (string, error)   { return p.ProcName, nil }
func (p *Proc) CreateTime(context.Context) (time.Time, error) {
	return p.StartedAt, nil
}

func (p *Proc) Exe(context.Context) (string, error) {
	if p.ExeErr != nil {
		return "", p.ExeErr
	}
	return p.ExePath, nil
}

func (p *Proc) RSS(context.Context) (uint64, error) {
	if p.RSSErr != nil {
		return 0, p.RSSErr
	}
	return p.RSSBytes, nil
}

func (p *Proc) Kill(context.Context) error {
	p.mu.Lock()
	p.killed++
	if p.KillErr != nil {
		p.mu.Unlock()
		return p.KillErr
	}
	if p.Linger {
		p.mu.Unlock()
		return nil
	}
	p.exited = true
	p.mu.Unlock()
	p.table.remove(p)
	return nil
}

func (p *Proc) Running(context.Context) (bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return !p.exited, nil
}

// Kills returns how many times Kill was called.
func (p *Proc) Kills() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.killed
}
