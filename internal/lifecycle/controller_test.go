package lifecycle

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/loykin/emuctl/internal/catalog"
	"github.com/loykin/emuctl/internal/liveness"
	"github.com/loykin/emuctl/internal/liveness/livenesstest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeLauncher "starts" executables by adding them to the fake table.
type fakeLauncher struct {
	mu    sync.Mutex
	table *livenesstest.Table
	calls []string
	fail  map[string]error
	// procName maps an exe base name to the OS process name to register
	procName map[string]string
}

func (f *fakeLauncher) Launch(_ context.Context, exe, dir string) (int, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	base := filepath.Base(exe)
	f.calls = append(f.calls, base)
	if err := f.fail[base]; err != nil {
		return 0, err
	}
	name := base
	if n, ok := f.procName[base]; ok {
		name = n
	}
	p := f.table.Add(name, filepath.Join(dir, base))
	return int(p.Pid), nil
}

func (f *fakeLauncher) launched() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

type sleepRecorder struct {
	mu    sync.Mutex
	waits []time.Duration
}

func (s *sleepRecorder) sleep(d time.Duration) {
	s.mu.Lock()
	s.waits = append(s.waits, d)
	s.mu.Unlock()
}

func (s *sleepRecorder) total() time.Duration {
	s.mu.Lock()
	defer s.mu.Unlock()
	var sum time.Duration
	for _, d := range s.waits {
		sum += d
	}
	return sum
}

type harness struct {
	table    *livenesstest.Table
	launcher *fakeLauncher
	sleeper  *sleepRecorder
	ctl      *Controller
	cat      *catalog.Catalog
}

// touch creates empty executables named after each emulator in dir.
func touch(t *testing.T, dir string, names ...string) {
	t.Helper()
	for _, n := range names {
		require.NoError(t, os.WriteFile(filepath.Join(dir, n), []byte("#!/bin/sh\n"), 0o755))
	}
}

func procs(names ...string) []catalog.Process {
	out := make([]catalog.Process, 0, len(names))
	for _, n := range names {
		out = append(out, catalog.Process{Name: n, Exe: n, ProcessName: n})
	}
	return out
}

func newHarness(t *testing.T, profiles []catalog.Profile) *harness {
	t.Helper()
	cat, err := catalog.New(profiles)
	require.NoError(t, err)
	tbl := livenesstest.NewTable()
	fl := &fakeLauncher{table: tbl, fail: map[string]error{}, procName: map[string]string{}}
	sr := &sleepRecorder{}
	ctl := New(cat, liveness.NewMatcher(tbl, nil),
		WithLauncher(fl),
		WithSleeper(sr.sleep),
		WithStopGrace(50*time.Millisecond, 5*time.Millisecond),
	)
	return &harness{table: tbl, launcher: fl, sleeper: sr, ctl: ctl, cat: cat}
}

func statuses(outs []Outcome) []Status {
	s := make([]Status, 0, len(outs))
	for _, o := range outs {
		s = append(s, o.Status)
	}
	return s
}

func emulators(outs []Outcome) []string {
	s := make([]string, 0, len(outs))
	for _, o := range outs {
		s = append(s, o.Emulator)
	}
	return s
}

func TestStartTwiceIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "Center", "Road")
	h := newHarness(t, []catalog.Profile{{ID: "s1", Path: dir, Enabled: true, Processes: procs("Center", "Road")}})
	ctx := context.Background()

	first, err := h.ctl.Start(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []Status{StatusStarted, StatusStarted}, statuses(first))

	second, err := h.ctl.Start(ctx, "s1")
	require.NoError(t, err)
	assert.Equal(t, []Status{StatusAlreadyRunning, StatusAlreadyRunning}, statuses(second))
	assert.Equal(t, []string{"Center", "Road"}, h.launcher.launched())
}

func TestStartUsesCatalogOrderAndDelays(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "A", "B", "C")
	ps := procs("A", "B", "C")
	ps[0].Delay = 3 * time.Second
	ps[2].Delay = time.Second
	h := newHarness(t, []catalog.Profile{{ID: "s1", Path: dir, Enabled: true, Processes: ps}})

	outs := h.ctl.StartProfile(context.Background(), mustLookup(t, h.cat, "s1"))
	assert.Equal(t, []string{"A", "B", "C"}, emulators(outs))
	assert.Equal(t, []string{"A", "B", "C"}, h.launcher.launched())
	assert.Equal(t, []time.Duration{3 * time.Second, time.Second}, h.sleeper.waits)
}

func TestAlreadyRunningSkipsDelay(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "Center")
	ps := procs("Center")
	ps[0].Delay = 3 * time.Second
	h := newHarness(t, []catalog.Profile{{ID: "s1", Path: dir, Enabled: true, Processes: ps}})
	h.table.Add("Center", filepath.Join(dir, "Center"))

	outs, err := h.ctl.Start(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, []Status{StatusAlreadyRunning}, statuses(outs))
	assert.Empty(t, h.launcher.launched())
	assert.Zero(t, h.sleeper.total())
}

func TestFileNotFoundNeverLaunchesOrWaits(t *testing.T) {
	dir := t.TempDir()
	ps := []catalog.Process{
		{Name: "Center", Exe: "Center.exe", ProcessName: "Center", Delay: 3000 * time.Millisecond},
		{Name: "Road", Exe: "Road.exe", ProcessName: "Road"},
	}
	h := newHarness(t, []catalog.Profile{{ID: "s1", Path: dir, Enabled: true, Processes: ps}})

	began := time.Now()
	outs, err := h.ctl.Start(context.Background(), "s1")
	require.NoError(t, err)

	require.Len(t, outs, 2)
	assert.Equal(t, Outcome{Server: "s1", Emulator: "Center", Status: StatusFileNotFound, Path: filepath.Join(dir, "Center.exe")}, outs[0])
	assert.Equal(t, Outcome{Server: "s1", Emulator: "Road", Status: StatusFileNotFound, Path: filepath.Join(dir, "Road.exe")}, outs[1])
	assert.Empty(t, h.launcher.launched())
	assert.Zero(t, h.sleeper.total())
	assert.Less(t, time.Since(began), time.Second)
}

func TestDirectoryIsNotAnExecutable(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.Mkdir(filepath.Join(dir, "Center"), 0o755))
	h := newHarness(t, []catalog.Profile{{ID: "s1", Path: dir, Enabled: true, Processes: procs("Center")}})

	outs, err := h.ctl.Start(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, []Status{StatusFileNotFound}, statuses(outs))
}

func TestLaunchFailureContinues(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "A", "B", "C")
	ps := procs("A", "B", "C")
	ps[1].Delay = 2 * time.Second
	h := newHarness(t, []catalog.Profile{{ID: "s1", Path: dir, Enabled: true, Processes: ps}})
	h.launcher.fail["B"] = errors.New("access is denied")

	outs, err := h.ctl.Start(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, []Status{StatusStarted, StatusError, StatusStarted}, statuses(outs))
	assert.Contains(t, outs[1].Message, "access is denied")
	assert.Zero(t, h.sleeper.total(), "failed launch must not wait")
}

func TestStopUsesReverseOrder(t *testing.T) {
	dir := t.TempDir()
	h := newHarness(t, []catalog.Profile{{ID: "s1", Path: dir, Enabled: true, Processes: procs("A", "B", "C")}})
	for _, n := range []string{"A", "B", "C"} {
		h.table.Add(n, filepath.Join(dir, n))
	}

	outs, err := h.ctl.Stop(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, []string{"C", "B", "A"}, emulators(outs))
	assert.Equal(t, []Status{StatusStopped, StatusStopped, StatusStopped}, statuses(outs))
	assert.Zero(t, h.table.Len())
}

func TestStopNotRunning(t *testing.T) {
	dir := t.TempDir()
	h := newHarness(t, []catalog.Profile{{ID: "s1", Path: dir, Enabled: true, Processes: procs("A", "B")}})
	h.table.Add("B", filepath.Join(dir, "B"))
	h.table.Add("A", filepath.Join(t.TempDir(), "A"))

	outs, err := h.ctl.Stop(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, []Status{StatusStopped, StatusNotRunning}, statuses(outs))
	assert.Equal(t, 1, h.table.Len(), "process in another directory must survive")
}

func TestStopKillsEveryInstanceAndSwallowsFailures(t *testing.T) {
	dir := t.TempDir()
	h := newHarness(t, []catalog.Profile{{ID: "s1", Path: dir, Enabled: true, Processes: procs("Game")}})
	stuck := h.table.Add("Game", filepath.Join(dir, "Game"))
	stuck.KillErr = errors.New("access denied")
	other := h.table.Add("Game", filepath.Join(dir, "Game"))

	outs, err := h.ctl.Stop(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, []Status{StatusStopped}, statuses(outs))
	assert.Equal(t, 1, stuck.Kills())
	assert.Equal(t, 1, other.Kills())
	assert.Equal(t, 1, h.table.Len())
}

func TestStopWaitsAtMostGrace(t *testing.T) {
	dir := t.TempDir()
	h := newHarness(t, []catalog.Profile{{ID: "s1", Path: dir, Enabled: true, Processes: procs("Game")}})
	p := h.table.Add("Game", filepath.Join(dir, "Game"))
	p.Linger = true

	began := time.Now()
	outs, err := h.ctl.Stop(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, []Status{StatusStopped}, statuses(outs))
	elapsed := time.Since(began)
	assert.GreaterOrEqual(t, elapsed, 50*time.Millisecond)
	assert.Less(t, elapsed, 2*time.Second)
}

func TestStopEnumerationFailureIsError(t *testing.T) {
	dir := t.TempDir()
	h := newHarness(t, []catalog.Profile{{ID: "s1", Path: dir, Enabled: true, Processes: procs("A", "B")}})
	h.table.Err = errors.New("process table unavailable")

	outs, err := h.ctl.Stop(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, []Status{StatusError, StatusError}, statuses(outs))
	assert.Equal(t, "process table unavailable", outs[0].Message)
}

func TestStartAllSkipsDisabled(t *testing.T) {
	d1, d2 := t.TempDir(), t.TempDir()
	touch(t, d1, "A")
	touch(t, d2, "A")
	h := newHarness(t, []catalog.Profile{
		{ID: "s1", Path: d1, Enabled: true, Processes: procs("A")},
		{ID: "s2", Path: d2, Enabled: false, Processes: procs("A")},
	})

	outs, err := h.ctl.Start(context.Background(), "all")
	require.NoError(t, err)
	require.Len(t, outs, 1)
	assert.Equal(t, "s1", outs[0].Server)

	outs, err = h.ctl.Stop(context.Background(), "ALL")
	require.NoError(t, err)
	require.Len(t, outs, 1)
	assert.Equal(t, "s1", outs[0].Server)
}

func TestStartAllIsSequentialAcrossProfiles(t *testing.T) {
	d1, d2 := t.TempDir(), t.TempDir()
	touch(t, d1, "A", "B")
	touch(t, d2, "C")
	h := newHarness(t, []catalog.Profile{
		{ID: "s1", Path: d1, Enabled: true, Processes: procs("A", "B")},
		{ID: "s2", Path: d2, Enabled: true, Processes: procs("C")},
	})

	outs := h.ctl.StartAll(context.Background())
	assert.Equal(t, []string{"A", "B", "C"}, emulators(outs))
	assert.Equal(t, []string{"A", "B", "C"}, h.launcher.launched())
}

func TestProfileResolution(t *testing.T) {
	dir := t.TempDir()
	h := newHarness(t, []catalog.Profile{
		{ID: "s1", Path: dir, Enabled: true, Processes: procs("A")},
		{ID: "s2", Path: dir, Enabled: false, Processes: procs("A")},
	})
	ctx := context.Background()

	_, err := h.ctl.Start(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = h.ctl.Stop(ctx, "nope")
	assert.ErrorIs(t, err, ErrNotFound)

	_, err = h.ctl.Start(ctx, "s2")
	assert.ErrorIs(t, err, ErrDisabled)
	assert.Empty(t, h.launcher.launched())

	outs, err := h.ctl.Stop(ctx, "s2")
	require.NoError(t, err, "stop is allowed on a disabled server")
	assert.Equal(t, []Status{StatusNotRunning}, statuses(outs))

	outs, err = h.ctl.Stop(ctx, "S1")
	require.NoError(t, err)
	assert.Len(t, outs, 1)
}

func TestPanicInStepBecomesErrorOutcome(t *testing.T) {
	dir := t.TempDir()
	touch(t, dir, "A", "B")
	h := newHarness(t, []catalog.Profile{{ID: "s1", Path: dir, Enabled: true, Processes: procs("A", "B")}})
	h.ctl.launcher = panicLauncher{next: h.launcher, target: "A"}

	outs, err := h.ctl.Start(context.Background(), "s1")
	require.NoError(t, err)
	assert.Equal(t, []Status{StatusError, StatusStarted}, statuses(outs))
	assert.Equal(t, "launcher exploded", outs[0].Message)
}

type panicLauncher struct {
	next   Launcher
	target string
}

func (p panicLauncher) Launch(ctx context.Context, exe, dir string) (int, error) {
	if filepath.Base(exe) == p.target {
		panic("launcher exploded")
	}
	return p.next.Launch(ctx, exe, dir)
}

func TestCount(t *testing.T) {
	m := Count([]Outcome{{Status: StatusStarted}, {Status: StatusStarted}, {Status: StatusError}})
	assert.Equal(t, 2, m[StatusStarted])
	assert.Equal(t, 1, m[StatusError])
}

func mustLookup(t *testing.T, c *catalog.Catalog, id string) catalog.Profile {
	t.Helper()
	p, ok := c.Lookup(id)
	require.True(t, ok)
	return p
}
