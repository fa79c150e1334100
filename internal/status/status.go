package status

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/loykin/emuctl/internal/catalog"
	"github.com/loykin/emuctl/internal/lifecycle"
	"github.com/loykin/emuctl/internal/liveness"
	"github.com/loykin/emuctl/internal/metrics"
)

// Emulator is the reported state of one configured emulator.
// PID, MemoryMB and StartTime are present only while it runs.
type Emulator struct {
	Name      string     `json:"name"`
	Process   string     `json:"process"`
	IsRunning bool       `json:"isRunning"`
	PID       *int32     `json:"pid,omitempty"`
	MemoryMB  *float64   `json:"memoryMB,omitempty"`
	StartTime *time.Time `json:"startTime,omitempty"`
	Error     string     `json:"error,omitempty"`
	Path      string     `json:"path"`
}

// Server groups the emulators of one profile.
type Server struct {
	ID        string     `json:"serverId"`
	Name      string     `json:"serverName"`
	Path      string     `json:"serverPath"`
	Enabled   bool       `json:"enabled"`
	Emulators []Emulator `json:"emulators"`
}

// Snapshot is a point-in-time report. Nothing in it is cached.
type Snapshot struct {
	Timestamp time.Time `json:"timestamp"`
	Servers   []Server  `json:"servers"`
}

type Reporter struct {
	catalog *catalog.Catalog
	matcher *liveness.Matcher
	now     func() time.Time
}

func NewReporter(cat *catalog.Catalog, matcher *liveness.Matcher) *Reporter {
	if matcher == nil {
		matcher = liveness.NewMatcher(nil, nil)
	}
	return &Reporter{catalog: cat, matcher: matcher, now: time.Now}
}

// Snapshot reports every profile when id is empty, disabled ones included,
// or a single profile otherwise.
func (r *Reporter) Snapshot(ctx context.Context, id string) (Snapshot, error) {
	var profiles []catalog.Profile
	if id == "" {
		profiles = r.catalog.Profiles()
	} else {
		p, ok := r.catalog.Lookup(id)
		if !ok {
			return Snapshot{}, fmt.Errorf("%w: '%s'", lifecycle.ErrNotFound, id)
		}
		profiles = []catalog.Profile{p}
	}
	snap := Snapshot{Timestamp: r.now(), Servers: make([]Server, 0, len(profiles))}
	for _, p := range profiles {
		snap.Servers = append(snap.Servers, r.server(ctx, p))
	}
	return snap, nil
}

func (r *Reporter) server(ctx context.Context, p catalog.Profile) Server {
	s := Server{ID: p.ID, Name: p.Name, Path: p.Path, Enabled: p.Enabled, Emulators: make([]Emulator, 0, len(p.Processes))}
	for _, proc := range p.Processes {
		e := r.emulator(ctx, p, proc)
		var mem float64
		if e.MemoryMB != nil {
			mem = *e.MemoryMB
		}
		metrics.SetEmulator(p.ID, proc.Name, e.IsRunning, mem)
		s.Emulators = append(s.Emulators, e)
	}
	return s
}

func (r *Reporter) emulator(ctx context.Context, p catalog.Profile, proc catalog.Process) (e Emulator) {
	e = Emulator{Name: proc.Name, Process: proc.ProcessName, Path: p.Path}
	defer func() {
		if rec := recover(); rec != nil {
			e = Emulator{Name: proc.Name, Process: proc.ProcessName, Path: p.Path, Error: fmt.Sprint(rec)}
		}
	}()

	rec, err := r.matcher.FindRunning(ctx, proc.ProcessName, p.Path)
	if err != nil {
		e.Error = err.Error()
	}
	if !rec.Running {
		return e
	}
	e.IsRunning = true
	pid := rec.PID
	e.PID = &pid
	if err != nil {
		return e
	}
	mb := MegaBytes(rec.MemoryBytes)
	started := rec.StartTime
	e.MemoryMB = &mb
	e.StartTime = &started
	return e
}

// MegaBytes converts bytes to MiB rounded to one decimal place.
func MegaBytes(b uint64) float64 {
	return math.Round(float64(b)/(1024*1024)*10) / 10
}
