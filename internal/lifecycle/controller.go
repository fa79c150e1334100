package lifecycle

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/loykin/emuctl/internal/catalog"
	"github.com/loykin/emuctl/internal/liveness"
	"github.com/loykin/emuctl/internal/metrics"
)

const (
	// StopGrace bounds the wait for one killed process to exit.
	StopGrace = 5 * time.Second
	// exitPoll is how often exit is checked during StopGrace.
	exitPoll = 100 * time.Millisecond
)

// Controller runs ordered start and stop sequences over catalog profiles.
//
// Steps within one sequence run strictly in order. Overlapping calls on the
// same profile are not serialized.
type Controller struct {
	catalog  *catalog.Catalog
	matcher  *liveness.Matcher
	launcher Launcher
	sleep    func(time.Duration)
	logger   *slog.Logger
	grace    time.Duration
	poll     time.Duration
}

type Option func(*Controller)

func WithLauncher(l Launcher) Option { return func(c *Controller) { c.launcher = l } }

// WithSleeper replaces time.Sleep for post-start delays.
func WithSleeper(f func(time.Duration)) Option { return func(c *Controller) { c.sleep = f } }

func WithLogger(l *slog.Logger) Option { return func(c *Controller) { c.logger = l } }

// WithStopGrace overrides StopGrace and the exit poll interval.
func WithStopGrace(grace, poll time.Duration) Option {
	return func(c *Controller) {
		c.grace = grace
		c.poll = poll
	}
}

func New(cat *catalog.Catalog, matcher *liveness.Matcher, opts ...Option) *Controller {
	c := &Controller{
		catalog: cat,
		matcher: matcher,
		sleep:   time.Sleep,
		logger:  slog.Default(),
		grace:   StopGrace,
		poll:    exitPoll,
	}
	for _, o := range opts {
		o(c)
	}
	if c.launcher == nil {
		c.launcher = ExecLauncher{Logger: c.logger}
	}
	if c.matcher == nil {
		c.matcher = liveness.NewMatcher(nil, c.logger)
	}
	if c.poll <= 0 {
		c.poll = exitPoll
	}
	return c
}

// Start starts one server by id, or every enabled server for "all".
// An empty id selects "all", or the only server in single mode.
func (c *Controller) Start(ctx context.Context, id string) ([]Outcome, error) {
	if isAll(id) {
		return c.StartAll(ctx), nil
	}
	p, ok := c.catalog.Lookup(id)
	if !ok {
		return nil, notFound(id)
	}
	if !p.Enabled {
		return nil, disabled(p.ID)
	}
	return c.StartProfile(ctx, p), nil
}

// Stop stops one server by id, or every enabled server for "all".
// Disabled servers may be stopped explicitly.
func (c *Controller) Stop(ctx context.Context, id string) ([]Outcome, error) {
	if isAll(id) {
		return c.StopAll(ctx), nil
	}
	p, ok := c.catalog.Lookup(id)
	if !ok {
		return nil, notFound(id)
	}
	return c.StopProfile(ctx, p), nil
}

// StartAll starts enabled servers one after another in catalog order.
func (c *Controller) StartAll(ctx context.Context) []Outcome {
	var out []Outcome
	for _, p := range c.catalog.Enabled() {
		out = append(out, c.StartProfile(ctx, p)...)
	}
	return out
}

// StopAll stops enabled servers one after another in catalog order.
func (c *Controller) StopAll(ctx context.Context) []Outcome {
	var out []Outcome
	for _, p := range c.catalog.Enabled() {
		out = append(out, c.StopProfile(ctx, p)...)
	}
	return out
}

// StartProfile launches the profile's emulators in catalog order. Emulators
// already running are left alone, missing executables are reported, and a
// failed launch does not stop the sequence. After each successful launch the
// emulator's Delay is waited out before moving on.
func (c *Controller) StartProfile(ctx context.Context, p catalog.Profile) []Outcome {
	began := time.Now()
	defer func() { metrics.ObserveOperation("start", time.Since(began)) }()

	out := make([]Outcome, 0, len(p.Processes))
	for _, proc := range p.Processes {
		o, launched := c.startOne(ctx, p, proc)
		c.record(o)
		out = append(out, o)
		if launched && proc.Delay > 0 {
			c.logger.Info("waiting before next emulator", "server", p.ID, "emulator", proc.Name, "delay", proc.Delay)
			c.sleep(proc.Delay)
		}
	}
	return out
}

// StopProfile stops the profile's emulators in reverse catalog order.
func (c *Controller) StopProfile(ctx context.Context, p catalog.Profile) []Outcome {
	began := time.Now()
	defer func() { metrics.ObserveOperation("stop", time.Since(began)) }()

	rev := p.Reversed()
	out := make([]Outcome, 0, len(rev))
	for _, proc := range rev {
		o := c.stopOne(ctx, p, proc)
		c.record(o)
		out = append(out, o)
	}
	return out
}

func (c *Controller) startOne(ctx context.Context, p catalog.Profile, proc catalog.Process) (o Outcome, launched bool) {
	o = Outcome{Server: p.ID, Emulator: proc.Name}
	defer func() {
		if r := recover(); r != nil {
			o.Status, o.Message, launched = StatusError, fmt.Sprint(r), false
		}
	}()

	if c.matcher.IsRunning(ctx, proc.ProcessName, p.Path) {
		o.Status = StatusAlreadyRunning
		return o, false
	}
	exe := p.ExePath(proc)
	if !fileExists(exe) {
		c.logger.Warn("emulator executable not found", "server", p.ID, "emulator", proc.Name, "path", exe)
		o.Status, o.Path = StatusFileNotFound, exe
		return o, false
	}
	pid, err := c.launcher.Launch(ctx, exe, p.Path)
	if err != nil {
		c.logger.Error("failed to start emulator", "server", p.ID, "emulator", proc.Name, "error", err)
		o.Status, o.Message = StatusError, err.Error()
		return o, false
	}
	c.logger.Info("emulator started", "server", p.ID, "emulator", proc.Name, "pid", pid)
	o.Status = StatusStarted
	return o, true
}

func (c *Controller) stopOne(ctx context.Context, p catalog.Profile, proc catalog.Process) (o Outcome) {
	o = Outcome{Server: p.ID, Emulator: proc.Name}
	defer func() {
		if r := recover(); r != nil {
			o.Status, o.Message = StatusError, fmt.Sprint(r)
		}
	}()

	procs, err := c.matcher.FindAll(ctx, proc.ProcessName, p.Path)
	if err != nil {
		c.logger.Error("failed to stop emulator", "server", p.ID, "emulator", proc.Name, "error", err)
		o.Status, o.Message = StatusError, err.Error()
		return o
	}
	if len(procs) == 0 {
		c.logger.Warn("emulator was not running", "server", p.ID, "emulator", proc.Name)
		o.Status = StatusNotRunning
		return o
	}
	for _, h := range procs {
		c.terminate(ctx, p, proc, h)
	}
	o.Status = StatusStopped
	return o
}

// terminate kills one process and waits up to the grace period for it to
// exit. Failures are logged and otherwise ignored.
func (c *Controller) terminate(ctx context.Context, p catalog.Profile, proc catalog.Process, h liveness.Proc) {
	pid := h.PID()
	if err := h.Kill(ctx); err != nil {
		c.logger.Warn("kill failed", "server", p.ID, "emulator", proc.Name, "pid", pid, "error", err)
		return
	}
	deadline := time.Now().Add(c.grace)
	for {
		alive, err := h.Running(ctx)
		if err != nil || !alive {
			c.logger.Info("emulator stopped", "server", p.ID, "emulator", proc.Name, "pid", pid)
			return
		}
		if !time.Now().Before(deadline) {
			c.logger.Warn("emulator did not exit within grace period", "server", p.ID, "emulator", proc.Name, "pid", pid, "grace", c.grace)
			return
		}
		time.Sleep(c.poll)
	}
}

func (c *Controller) record(o Outcome) {
	metrics.IncOutcome(o.Server, o.Emulator, string(o.Status))
}

func isAll(id string) bool {
	id = strings.TrimSpace(id)
	return id == "" || strings.EqualFold(id, catalog.AllProfiles)
}

func fileExists(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && !fi.IsDir()
}
