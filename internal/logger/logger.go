package logger

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	lj "gopkg.in/natefinch/lumberjack.v2"
)

// Default rotation settings for log files.
const (
	DefaultMaxSizeMB  = 10 // MB
	DefaultMaxBackups = 3  // number of backup files
	DefaultMaxAgeDays = 7  // days
)

// Rotation holds lumberjack rotation parameters shared by the service log
// and captured emulator output.
type Rotation struct {
	MaxSizeMB  int  `mapstructure:"max_size_mb"`
	MaxBackups int  `mapstructure:"max_backups"`
	MaxAgeDays int  `mapstructure:"max_age_days"`
	Compress   bool `mapstructure:"compress"`
}

func (r Rotation) writer(path string) *lj.Logger {
	return &lj.Logger{
		Filename:   path,
		MaxSize:    valOr(r.MaxSizeMB, DefaultMaxSizeMB),
		MaxBackups: valOr(r.MaxBackups, DefaultMaxBackups),
		MaxAge:     valOr(r.MaxAgeDays, DefaultMaxAgeDays),
		Compress:   r.Compress,
	}
}

// Config describes the service log.
// When File is set, records go to that rotated file as JSON instead of the
// console.
type Config struct {
	Level    string `mapstructure:"level"`
	Color    bool   `mapstructure:"color"`
	ShowTime bool   `mapstructure:"show_time"`
	File     string `mapstructure:"file"`
	Rotation `mapstructure:",squash"`
	// EmulatorDir captures emulator stdout/stderr into rotated files.
	EmulatorDir string `mapstructure:"emulator_dir"`
}

// New builds the service logger. The returned closer releases the log file
// and is never nil.
func New(cfg Config, console io.Writer) (*slog.Logger, io.Closer, error) {
	level, err := ParseLevel(cfg.Level)
	if err != nil {
		return nil, nil, err
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.File != "" {
		if dir := filepath.Dir(cfg.File); dir != "" {
			if err := os.MkdirAll(dir, 0o750); err != nil {
				return nil, nil, fmt.Errorf("create log dir: %w", err)
			}
		}
		w := cfg.writer(cfg.File)
		return slog.New(slog.NewJSONHandler(w, opts)), w, nil
	}
	if console == nil {
		console = os.Stdout
	}
	var h slog.Handler
	if cfg.Color {
		h = NewColorTextHandler(console, opts, cfg.ShowTime)
	} else {
		h = slog.NewTextHandler(console, opts)
	}
	return slog.New(h), io.NopCloser(nil), nil
}

// ParseLevel maps debug|info|warn|error to a slog level; empty means info.
func ParseLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q", s)
	}
}

// OutputWriters returns rotated writers for an emulator's stdout and stderr,
// named Dir/<name>.stdout.log and Dir/<name>.stderr.log. Both are nil when
// EmulatorDir is empty.
func (c Config) OutputWriters(name string) (io.WriteCloser, io.WriteCloser, error) {
	if c.EmulatorDir == "" {
		return nil, nil, nil
	}
	if err := os.MkdirAll(c.EmulatorDir, 0o750); err != nil {
		return nil, nil, fmt.Errorf("create emulator log dir: %w", err)
	}
	out := c.writer(filepath.Join(c.EmulatorDir, name+".stdout.log"))
	errW := c.writer(filepath.Join(c.EmulatorDir, name+".stderr.log"))
	return out, errW, nil
}

func valOr(v int, def int) int {
	if v <= 0 {
		return def
	}
	return v
}
