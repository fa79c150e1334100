package liveness

import (
	"context"
	"time"
)

// Proc is the view of one OS process the matcher works with.
type Proc interface {
	PID() int32
	Name(ctx context.Context) (string, error)
	Exe(ctx context.Context) (string, error)
	RSS(ctx context.Context) (uint64, error)
	CreateTime(ctx context.Context) (time.Time, error)
	Kill(ctx context.Context) error
	Running(ctx context.Context) (bool, error)
}

// Table enumerates the processes currently known to the OS.
// Implementations must be safe for concurrent use.
type Table interface {
	Processes(ctx context.Context) ([]Proc, error)
}
