package main

import (
	"context"
	"log/slog"
	"strings"
	"testing"
)

func TestRingBufferKeepsTail(t *testing.T) {
	buf := newRingBuffer(3)
	for _, l := range []string{"a\n", "b\n", "c\nd\n"} {
		buf.Write([]byte(l))
	}

	if got := strings.Join(buf.Lines(), ","); got != "b,c,d" {
		t.Errorf("Lines = %s, want b,c,d", got)
	}
	if buf.Count() != 4 {
		t.Errorf("Count = %d, want 4", buf.Count())
	}
}

func TestRingBufferSince(t *testing.T) {
	buf := newRingBuffer(3)
	buf.Write([]byte("a\nb\n"))

	tests := []struct {
		after     int
		want      string
		wantTotal int
	}{
		{0, "a,b", 2},
		{1, "b", 2},
		{2, "", 2},
		{5, "a,b", 2}, // client ahead of a restarted daemon gets everything
	}
	for _, tt := range tests {
		lines, total := buf.Since(tt.after)
		if strings.Join(lines, ",") != tt.want || total != tt.wantTotal {
			t.Errorf("Since(%d) = %v, %d; want %s, %d", tt.after, lines, total, tt.want, tt.wantTotal)
		}
	}

	buf.Write([]byte("c\nd\ne\n"))
	lines, total := buf.Since(0)
	if strings.Join(lines, ",") != "c,d,e" || total != 5 {
		t.Errorf("Since(0) after wrap = %v, %d", lines, total)
	}
}

func TestFanoutHandlerLevels(t *testing.T) {
	info := newRingBuffer(10)
	debug := newRingBuffer(10)
	logger := slog.New(fanoutHandler{
		slog.NewTextHandler(info, &slog.HandlerOptions{Level: slog.LevelInfo}),
		slog.NewTextHandler(debug, &slog.HandlerOptions{Level: slog.LevelDebug}),
	}).With("project", "p")

	logger.Debug("session: saved", "key", "doc/p")
	logger.Info("session: opened")

	if info.Count() != 1 {
		t.Errorf("info handler got %d lines, want 1", info.Count())
	}
	if debug.Count() != 2 {
		t.Errorf("debug handler got %d lines, want 2", debug.Count())
	}
	for _, l := range debug.Lines() {
		if !strings.HasPrefix(l, "time=") || !strings.Contains(l, "project=p") {
			t.Errorf("unexpected line %q", l)
		}
	}
	if !logger.Handler().Enabled(context.Background(), slog.LevelDebug) {
		t.Error("fanout should be enabled when any handler is")
	}
}
