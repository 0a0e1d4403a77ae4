package main

import (
	"context"
	"io"
	"log/slog"
)

// levelSplitHandler sends warnings and errors to one handler and
// everything below to another, so operator failures land on stderr.
type levelSplitHandler struct {
	low  slog.Handler
	high slog.Handler
}

func (h levelSplitHandler) pick(level slog.Level) slog.Handler {
	if level >= slog.LevelWarn {
		return h.high
	}
	return h.low
}

func (h levelSplitHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.pick(level).Enabled(ctx, level)
}

func (h levelSplitHandler) Handle(ctx context.Context, r slog.Record) error {
	return h.pick(r.Level).Handle(ctx, r)
}

func (h levelSplitHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	return levelSplitHandler{low: h.low.WithAttrs(attrs), high: h.high.WithAttrs(attrs)}
}

func (h levelSplitHandler) WithGroup(name string) slog.Handler {
	return levelSplitHandler{low: h.low.WithGroup(name), high: h.high.WithGroup(name)}
}

// newLogger builds the process logger. debug lowers the level to Debug.
func newLogger(stdout, stderr io.Writer, debug bool) *slog.Logger {
	logLevel := slog.LevelInfo
	if debug {
		logLevel = slog.LevelDebug
	}
	opts := &slog.HandlerOptions{Level: logLevel}
	return slog.New(levelSplitHandler{
		low:  slog.NewTextHandler(stdout, opts),
		high: slog.NewTextHandler(stderr, opts),
	})
}
