package main

import (
	"bytes"
	"strings"
	"testing"
)

func TestHighlightSlog(t *testing.T) {
	tests := []struct {
		name  string
		input string
		keep  []string
	}{
		{
			name:  "info level",
			input: `time=2026-02-07T10:00:00.000Z level=INFO msg="session: opened" project=thesis nodes=12`,
			keep:  []string{"INFO", "session: opened", "project=", "thesis", "nodes="},
		},
		{
			name:  "debug level",
			input: `time=2026-02-07T10:00:00.000Z level=DEBUG msg="gateway: call finished"`,
			keep:  []string{"DEBUG", "gateway: call finished"},
		},
		{
			name:  "warn with quoted error",
			input: `time=2026-02-07T10:00:00.000Z level=WARN msg="session: save failed" error="disk \"full\""`,
			keep:  []string{"WARN", `"disk \"full\""`},
		},
		{
			name:  "error level",
			input: `time=2026-02-07T10:00:00.000Z level=ERROR msg=boom`,
			keep:  []string{"ERROR", "boom"},
		},
		{
			name:  "dotted keys",
			input: `time=2026-02-07T10:00:00.000Z level=INFO msg=x actions.applied=2`,
			keep:  []string{"actions.applied=", "2"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := highlightSlog(tt.input, "")
			for _, k := range tt.keep {
				if !strings.Contains(got, k) {
					t.Errorf("%q missing from %q", k, got)
				}
			}
		})
	}
}

func TestHighlightSlogPlainText(t *testing.T) {
	if got := highlightSlog("not a log line", ""); got != "not a log line" {
		t.Errorf("plain text changed: %q", got)
	}
}

func TestHighlightFilter(t *testing.T) {
	tests := []struct {
		line, filter string
	}{
		{"hello world", "world"},
		{"Hello World", "world"},
		{"abcabc", "abc"},
		{"no match here", "zzz"},
	}
	for _, tt := range tests {
		got := highlightFilter(tt.line, tt.filter)
		for _, w := range strings.Fields(tt.line) {
			if !strings.Contains(got, w) {
				t.Errorf("highlightFilter(%q, %q) lost %q: %q", tt.line, tt.filter, w, got)
			}
		}
	}
	if got := highlightFilter("same", ""); got != "same" {
		t.Errorf("empty filter changed line: %q", got)
	}
}

func TestValueEnd(t *testing.T) {
	tests := []struct {
		in   string
		want int
	}{
		{`abc def`, 3},
		{`abc`, 3},
		{`"a b" c`, 5},
		{`"a \" b" c`, 8},
		{`"unterminated`, 13},
	}
	for _, tt := range tests {
		if got := valueEnd(tt.in); got != tt.want {
			t.Errorf("valueEnd(%q) = %d, want %d", tt.in, got, tt.want)
		}
	}
}

func TestWriteLogLinesFilters(t *testing.T) {
	var buf bytes.Buffer
	lines := []string{
		`time=t level=INFO msg="session: opened"`,
		`time=t level=WARN msg="session: save failed"`,
		`time=t level=INFO msg="serve: listening"`,
	}
	writeLogLines(&buf, lines, "SESSION", false)

	got := strings.Split(strings.TrimSpace(buf.String()), "\n")
	if len(got) != 2 || got[0] != lines[0] || got[1] != lines[1] {
		t.Errorf("filtered = %q", got)
	}
}
