package liveness

import (
	"context"
	"fmt"
	"time"

	gopsproc "github.com/shirou/gopsutil/v4/process"
)

// SystemTable reads the live OS process table through gopsutil.
type SystemTable struct{}

func (SystemTable) Processes(ctx context.Context) ([]Proc, error) {
	ps, err := gopsproc.ProcessesWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("enumerate processes: %w", err)
	}
	out := make([]Proc, 0, len(ps))
	for _, p := range ps {
		out = append(out, sysProc{p: p})
	}
	return out, nil
}

type sysProc struct{ p *gopsproc.Process }

func (s sysProc) PID() int32 { return s.p.Pid }

func (s sysProc) Name(ctx context.Context) (string, error) {
	n, err := s.p.NameWithContext(ctx)
	if err != nil {
		return "", err
	}
	return normalizeName(n), nil
}

func (s sysProc) Exe(ctx context.Context) (string, error) { return s.p.ExeWithContext(ctx) }

func (s sysProc) RSS(ctx context.Context) (uint64, error) {
	mi, err := s.p.MemoryInfoWithContext(ctx)
	if err != nil {
		return 0, err
	}
	return mi.RSS, nil
}

func (s sysProc) CreateTime(ctx context.Context) (time.Time, error) {
	ms, err := s.p.CreateTimeWithContext(ctx)
	if err != nil {
		return time.Time{}, err
	}
	return time.UnixMilli(ms), nil
}

func (s sysProc) Kill(ctx context.Context) error { return s.p.KillWithContext(ctx) }

func (s sysProc) Running(ctx context.Context) (bool, error) { return s.p.IsRunningWithContext(ctx) }
