package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"regexp"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

// LogsCmd prints the daemon's buffered log lines, optionally following
// new ones.
type LogsCmd struct {
	Port   int    `short:"p" help:"Daemon port (default serve.port)."`
	Filter string `short:"f" help:"Only show lines containing this text (case-insensitive)."`
	Follow bool   `short:"F" help:"Keep polling for new lines."`
}

// Styles for slog syntax highlighting (Tokyo Night palette)
var (
	logTimeStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#565f89"))
	logDebugStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#7aa2f7"))
	logInfoStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#a6e3a1"))
	logWarnStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("#f9e2af"))
	logErrorStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("#f7768e"))
	logMsgStyle   = lipgloss.NewStyle().Bold(true)
	logKeyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#565f89"))
	logMatchStyle = lipgloss.NewStyle().Underline(true)
)

var (
	slogTimeRe  = regexp.MustCompile(`^time=\S+`)
	slogLevelRe = regexp.MustCompile(`^(level=)(DEBUG|INFO|WARN|ERROR)\b`)
	slogMsgRe   = regexp.MustCompile(`^(msg=)("(?:[^"\\]|\\.)*"|\S+)`)
	slogKeyRe   = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_.]*=`)
)

var levelStyles = map[string]lipgloss.Style{
	"DEBUG": logDebugStyle,
	"INFO":  logInfoStyle,
	"WARN":  logWarnStyle,
	"ERROR": logErrorStyle,
}

func (cmd *LogsCmd) Run(app *App) error {
	port := cmd.Port
	if port == 0 {
		port = app.Config.Serve.Port
	}
	base := fmt.Sprintf("http://127.0.0.1:%d", port)
	color := term.IsTerminal(int(os.Stdout.Fd()))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	client := &http.Client{Timeout: 5 * time.Second}
	after := 0
	for {
		res, err := fetchLogs(ctx, client, base, after)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("is the daemon running on port %d? %w", port, err)
		}
		writeLogLines(os.Stdout, res.Lines, cmd.Filter, color)
		after = res.Count
		if !cmd.Follow {
			return nil
		}
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(time.Second):
		}
	}
}

func fetchLogs(ctx context.Context, client *http.Client, base string, after int) (logsResponse, error) {
	var res logsResponse
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, fmt.Sprintf("%s/api/logs?after=%d", base, after), nil)
	if err != nil {
		return res, err
	}
	resp, err := client.Do(req)
	if err != nil {
		return res, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		return res, fmt.Errorf("daemon returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}
	if err := json.NewDecoder(resp.Body).Decode(&res); err != nil {
		return res, fmt.Errorf("decode logs: %w", err)
	}
	return res, nil
}

// writeLogLines prints the lines matching filter, highlighted when color
// is set.
func writeLogLines(w io.Writer, lines []string, filter string, color bool) {
	lower := strings.ToLower(filter)
	for _, l := range lines {
		if filter != "" && !strings.Contains(strings.ToLower(l), lower) {
			continue
		}
		if color {
			l = highlightSlog(l, filter)
		}
		fmt.Fprintln(w, l)
	}
}

// highlightSlog colours a line in slog text format. Lines in any other
// format only get filter matches marked.
func highlightSlog(line, filter string) string {
	if !strings.HasPrefix(line, "time=") {
		return highlightFilter(line, filter)
	}

	var out strings.Builder
	rest := line
	if loc := slogTimeRe.FindStringIndex(rest); loc != nil {
		out.WriteString(logTimeStyle.Render(rest[:loc[1]]))
		rest = rest[loc[1]:]
	}

	for len(rest) > 0 {
		if rest[0] == ' ' {
			out.WriteByte(' ')
			rest = rest[1:]
			continue
		}
		if m := slogLevelRe.FindStringSubmatch(rest); m != nil {
			out.WriteString(logKeyStyle.Render(m[1]))
			out.WriteString(levelStyles[m[2]].Render(m[2]))
			rest = rest[len(m[0]):]
			continue
		}
		if m := slogMsgRe.FindStringSubmatch(rest); m != nil {
			out.WriteString(logKeyStyle.Render(m[1]))
			out.WriteString(logMsgStyle.Render(m[2]))
			rest = rest[len(m[0]):]
			continue
		}
		if key := slogKeyRe.FindString(rest); key != "" {
			out.WriteString(logKeyStyle.Render(key))
			rest = rest[len(key):]
			n := valueEnd(rest)
			out.WriteString(rest[:n])
			rest = rest[n:]
			continue
		}
		out.WriteByte(rest[0])
		rest = rest[1:]
	}
	return highlightFilter(out.String(), filter)
}

// valueEnd returns the length of the value at the start of s: a quoted
// string with escapes, or everything up to the next space.
func valueEnd(s string) int {
	if strings.HasPrefix(s, `"`) {
		for i := 1; i < len(s); i++ {
			switch s[i] {
			case '\\':
				i++
			case '"':
				return i + 1
			}
		}
		return len(s)
	}
	if i := strings.IndexByte(s, ' '); i >= 0 {
		return i
	}
	return len(s)
}

// highlightFilter underlines case-insensitive matches of filter.
func highlightFilter(line, filter string) string {
	if filter == "" {
		return line
	}
	lower := strings.ToLower(line)
	needle := strings.ToLower(filter)

	var out strings.Builder
	last := 0
	for {
		i := strings.Index(lower[last:], needle)
		if i < 0 {
			out.WriteString(line[last:])
			return out.String()
		}
		start := last + i
		end := start + len(needle)
		out.WriteString(line[last:start])
		out.WriteString(logMatchStyle.Render(line[start:end]))
		last = end
	}
}
