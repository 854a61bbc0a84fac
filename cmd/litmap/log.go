package main

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"os"
	"sync"
)

// ringBuffer keeps the last cap log lines for /api/logs. It is an
// io.Writer so a slog.TextHandler can format into it.
type ringBuffer struct {
	mu    sync.RWMutex
	lines []string
	cap   int
	count int // lines ever written; clients poll with it
}

func newRingBuffer(cap int) *ringBuffer {
	return &ringBuffer{lines: make([]string, 0, cap), cap: cap}
}

// Write stores each complete line of p.
func (b *ringBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for _, line := range bytes.Split(bytes.TrimRight(p, "\n"), []byte("\n")) {
		if len(b.lines) < b.cap {
			b.lines = append(b.lines, string(line))
		} else {
			b.lines = append(b.lines[1:], string(line))
		}
		b.count++
	}
	return len(p), nil
}

func (b *ringBuffer) Lines() []string {
	b.mu.RLock()
	defer b.mu.RUnlock()
	out := make([]string, len(b.lines))
	copy(out, b.lines)
	return out
}

func (b *ringBuffer) Count() int {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.count
}

// Since returns the lines written after the first n, as far as the buffer
// still holds them, and the new total.
func (b *ringBuffer) Since(n int) ([]string, int) {
	b.mu.RLock()
	defer b.mu.RUnlock()
	fresh := b.count - n
	if fresh < 0 || fresh > len(b.lines) {
		fresh = len(b.lines)
	}
	out := make([]string, fresh)
	copy(out, b.lines[len(b.lines)-fresh:])
	return out, b.count
}

// fanoutHandler sends each record to every handler that accepts its level.
type fanoutHandler []slog.Handler

func (f fanoutHandler) Enabled(ctx context.Context, level slog.Level) bool {
	for _, h := range f {
		if h.Enabled(ctx, level) {
			return true
		}
	}
	return false
}

func (f fanoutHandler) Handle(ctx context.Context, r slog.Record) error {
	var errs []error
	for _, h := range f {
		if h.Enabled(ctx, r.Level) {
			errs = append(errs, h.Handle(ctx, r.Clone()))
		}
	}
	return errors.Join(errs...)
}

func (f fanoutHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	out := make(fanoutHandler, len(f))
	for i, h := range f {
		out[i] = h.WithAttrs(attrs)
	}
	return out
}

func (f fanoutHandler) WithGroup(name string) slog.Handler {
	out := make(fanoutHandler, len(f))
	for i, h := range f {
		out[i] = h.WithGroup(name)
	}
	return out
}

func logLevel(debug bool) slog.Level {
	if debug {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

func setupLogger(debug bool) {
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(debug),
	})))
}

// setupRingLogger logs to stderr and to buf. The ring always keeps debug
// records so the dashboard can show them.
func setupRingLogger(buf *ringBuffer, debug bool) {
	slog.SetDefault(slog.New(fanoutHandler{
		slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: logLevel(debug)}),
		slog.NewTextHandler(buf, &slog.HandlerOptions{Level: slog.LevelDebug}),
	}))
}
