package logger

import (
	"bytes"
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLevel(t *testing.T) {
	cases := map[string]slog.Level{"": slog.LevelInfo, "DEBUG": slog.LevelDebug, "warning": slog.LevelWarn, "error": slog.LevelError}
	for in, want := range cases {
		got, err := ParseLevel(in)
		require.NoError(t, err, in)
		assert.Equal(t, want, got, in)
	}
	_, err := ParseLevel("loud")
	assert.Error(t, err)
}

func TestNewConsoleColor(t *testing.T) {
	var buf bytes.Buffer
	l, closer, err := New(Config{Level: "debug", Color: true}, &buf)
	require.NoError(t, err)
	defer func() { _ = closer.Close() }()

	l.Warn("emulator was not running", "server", "s1")
	out := buf.String()
	assert.True(t, strings.HasPrefix(out, "\033[33mWARN\033[0m  "), out)
	assert.Contains(t, out, `msg="emulator was not running"`)
	assert.Contains(t, out, "server=s1")
	assert.NotContains(t, out, "level=")
	assert.NotContains(t, out, "time=")
}

func TestColorHandlerKeepsAttrsAndGroups(t *testing.T) {
	var buf bytes.Buffer
	l := slog.New(NewColorTextHandler(&buf, nil, true)).With("component", "server").WithGroup("req")
	l.Info("handled", "path", "/status")
	out := buf.String()
	assert.Contains(t, out, "component=server")
	assert.Contains(t, out, "req.path=/status")
	assert.Contains(t, out, "time=")
}

func TestNewFileWritesJSON(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "emuctl.log")
	l, closer, err := New(Config{File: path}, nil)
	require.NoError(t, err)

	l.Info("emulator started", "pid", 42)
	l.Debug("hidden")
	require.NoError(t, closer.Close())

	b, err := os.ReadFile(path)
	require.NoError(t, err)
	lines := strings.Split(strings.TrimSpace(string(b)), "\n")
	require.Len(t, lines, 1)
	var rec map[string]any
	require.NoError(t, json.Unmarshal([]byte(lines[0]), &rec))
	assert.Equal(t, "emulator started", rec["msg"])
	assert.EqualValues(t, 42, rec["pid"])
}

func TestOutputWriters(t *testing.T) {
	out, errW, err := Config{}.OutputWriters("s1.Center")
	require.NoError(t, err)
	assert.Nil(t, out)
	assert.Nil(t, errW)

	dir := t.TempDir()
	out, errW, err = Config{EmulatorDir: dir}.OutputWriters("s1.Center")
	require.NoError(t, err)
	_, _ = out.Write([]byte("hello-out\n"))
	_, _ = errW.Write([]byte("hello-err\n"))
	_ = out.Close()
	_ = errW.Close()

	for _, name := range []string{"s1.Center.stdout.log", "s1.Center.stderr.log"} {
		_, err := os.Stat(filepath.Join(dir, name))
		assert.NoError(t, err, name)
	}
}

func TestValOr(t *testing.T) {
	assert.Equal(t, 5, valOr(0, 5))
	assert.Equal(t, 7, valOr(7, 5))
}
