package logger

import (
	"context"
	"io"
	"log/slog"
	"sync"
)

// ColorTextHandler wraps slog.TextHandler and prefixes each line with a
// colored level tag, for operators watching the console.
type ColorTextHandler struct {
	*slog.TextHandler
	w  io.Writer
	mu *sync.Mutex
}

// NewColorTextHandler creates a ColorTextHandler. The level attribute is
// folded into the colored prefix; the time attribute is kept only when
// showTime is set.
func NewColorTextHandler(w io.Writer, opts *slog.HandlerOptions, showTime bool) *ColorTextHandler {
	o := slog.HandlerOptions{}
	if opts != nil {
		o = *opts
	}
	next := o.ReplaceAttr
	o.ReplaceAttr = func(groups []string, a slog.Attr) slog.Attr {
		if len(groups) == 0 {
			switch a.Key {
			case slog.LevelKey:
				return slog.Attr{}
			case slog.TimeKey:
				if !showTime {
					return slog.Attr{}
				}
				a.Value = slog.StringValue(a.Value.Time().Format("15:04:05"))
			}
		}
		if next != nil {
			return next(groups, a)
		}
		return a
	}
	return &ColorTextHandler{TextHandler: slog.NewTextHandler(w, &o), w: w, mu: &sync.Mutex{}}
}

func (h *ColorTextHandler) Handle(ctx context.Context, r slog.Record) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	if _, err := io.WriteString(h.w, levelColor(r.Level)+r.Level.String()+"\033[0m  "); err != nil {
		return err
	}
	return h.TextHandler.Handle(ctx, r)
}

func (h *ColorTextHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return &ColorTextHandler{TextHandler: h.TextHandler.WithAttrs(attrs).(*slog.TextHandler), w: h.w, mu: h.mu}
}

func (h *ColorTextHandler) WithGroup(name string) slog.Handler {
	return &ColorTextHandler{TextHandler: h.TextHandler.WithGroup(name).(*slog.TextHandler), w: h.w, mu: h.mu}
}

func levelColor(l slog.Level) string {
	switch {
	case l >= slog.LevelError:
		return "\033[31m" // red
	case l >= slog.LevelWarn:
		return "\033[33m" // yellow
	case l >= slog.LevelInfo:
		return "\033[32m" // green
	default:
		return "\033[36m" // cyan
	}
}
