package main

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/loykin/emuctl/internal/config"
)

func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = l.Close() }()
	return l.Addr().(*net.TCPAddr).Port
}

func writeConfig(t *testing.T, port int) string {
	t.Helper()
	dir := t.TempDir()
	data := fmt.Sprintf(`{
  "port": %d,
  "listen": "127.0.0.1",
  "require_admin": false,
  "log": {"level": "debug", "color": false},
  "servers": [
    {"id": "s1", "name": "Server 1", "path": %q, "enabled": true,
     "emulators": [{"name": "Center", "exe": "Center.exe", "process": "Center"}]},
    {"id": "s2", "name": "Server 2", "path": "/definitely/missing", "enabled": true,
     "emulators": [{"name": "Center", "exe": "Center.exe", "process": "Center"}]}
  ]
}`, port, filepath.ToSlash(dir))
	p := filepath.Join(dir, "emulators.json")
	require.NoError(t, os.WriteFile(p, []byte(data), 0o644))
	return p
}

func TestServeUntilCanceled(t *testing.T) {
	port := freePort(t)
	cfg, err := config.Load(writeConfig(t, port))
	require.NoError(t, err)

	var logs bytes.Buffer
	log := slog.New(slog.NewTextHandler(&syncWriter{w: &logs}, &slog.HandlerOptions{Level: slog.LevelDebug}))
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- serve(ctx, cfg, log) }()

	url := fmt.Sprintf("http://127.0.0.1:%d/", port)
	require.Eventually(t, func() bool {
		resp, err := http.Get(url)
		if err != nil {
			return false
		}
		_ = resp.Body.Close()
		return resp.StatusCode == http.StatusOK
	}, 5*time.Second, 20*time.Millisecond)

	resp, err := http.Get(url + "status/S1")
	require.NoError(t, err)
	body, _ := io.ReadAll(resp.Body)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Contains(t, string(body), `"serverId":"s1"`)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("serve did not return after cancel")
	}
	out := logs.String()
	assert.Contains(t, out, "server configured")
	assert.Contains(t, out, "server directory not found")
	assert.Contains(t, out, "shutting down")
}

func TestServePortInUse(t *testing.T) {
	l, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	defer func() { _ = l.Close() }()
	cfg, err := config.Load(writeConfig(t, l.Addr().(*net.TCPAddr).Port))
	require.NoError(t, err)

	err = serve(context.Background(), cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	assert.Error(t, err)
}

func TestRunServeMissingConfig(t *testing.T) {
	err := runServe(context.Background(), ServeFlags{ConfigPath: filepath.Join(t.TempDir(), "nope.json")}, io.Discard)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "error loading config")
}

func TestChildArgsAndPidFile(t *testing.T) {
	assert.Equal(t, []string{"serve", "--pidfile", "x.pid"}, childArgs([]string{"serve", "--daemonize", "--pidfile", "x.pid", "--daemonize=true"}))

	p := filepath.Join(t.TempDir(), "emuctl.pid")
	require.NoError(t, writePidFile(p, 1234))
	b, err := os.ReadFile(p)
	require.NoError(t, err)
	assert.Equal(t, "1234", string(b))
	require.NoError(t, removePidFile(p))
	assert.NoFileExists(t, p)
	assert.NoError(t, removePidFile(""))
}
