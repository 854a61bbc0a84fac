package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/lthms/litmap/internal/graph"
	"github.com/lthms/litmap/internal/search"
	"github.com/lthms/litmap/internal/session"
	"github.com/lthms/litmap/internal/store"
	"github.com/lthms/litmap/internal/telemetry"
)

// ServeCmd runs the daemon: MCP tools over SSE, the JSON API used by the
// graph view, Prometheus metrics and a status dashboard, on one port.
type ServeCmd struct {
	Port  int  `short:"p" help:"Port for the HTTP server (default serve.port)."`
	Trace bool `help:"Write OpenTelemetry spans to stderr."`
}

// daemon is the state shared by HTTP handlers and MCP tools.
type daemon struct {
	session  *session.Session
	store    *store.Store
	searcher search.Searcher // nil without a document source
	logs     *ringBuffer
	started  time.Time
}

func (cmd *ServeCmd) Run(app *App) error {
	logs := newRingBuffer(1000)
	setupRingLogger(logs, app.Debug)

	if cmd.Trace {
		shutdown, err := telemetry.InitTracing(os.Stderr, version)
		if err != nil {
			return err
		}
		defer shutdown(context.Background())
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := app.open(ctx, false)
	if err != nil {
		return err
	}
	d := &daemon{session: rt.session, store: rt.store, searcher: rt.searcher, logs: logs, started: time.Now()}

	port := cmd.Port
	if port == 0 {
		port = app.Config.Serve.Port
	}
	srv, err := startHTTPServer(d, port, app.Config.Serve.Keepalive)
	if err != nil {
		rt.Close()
		return err
	}

	<-ctx.Done()
	slog.Info("serve: shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Warn("serve: http shutdown", "error", err)
	}
	return rt.Close()
}

// startHTTPServer listens on 127.0.0.1:port and serves in the background.
func startHTTPServer(d *daemon, port int, keepalive time.Duration) (*http.Server, error) {
	addr := fmt.Sprintf("127.0.0.1:%d", port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", addr, err)
	}

	srv := &http.Server{Handler: d.mux(keepalive)}
	go func() {
		slog.Info("serve: listening", "addr", addr, "project", d.session.Project())
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			slog.Error("serve: http server failed", "error", err)
		}
	}()
	return srv, nil
}

func (d *daemon) mux(keepalive time.Duration) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/sse", sseWithKeepalive(d.mcpHandler(), keepalive))
	mux.Handle("GET /metrics", promhttp.Handler())
	mux.HandleFunc("GET /api/graph", d.handleGraph)
	mux.HandleFunc("GET /api/state", d.handleState)
	mux.HandleFunc("GET /api/logs", d.handleLogs)
	mux.HandleFunc("GET /api/chats/{node}", d.handleChat)
	mux.HandleFunc("POST /api/chats/{node}", d.handleSend)
	mux.HandleFunc("GET /{$}", handleDashboard)
	return mux
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]string{"error": err.Error()})
}

func (d *daemon) handleGraph(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, d.session.Document())
}

func (d *daemon) handleState(w http.ResponseWriter, r *http.Request) {
	calls, err := d.store.RecentCalls(20)
	if err != nil {
		slog.Warn("serve: reading gateway audit", "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"session":       d.session.State(),
		"gateway_calls": calls,
		"uptime":        time.Since(d.started).Round(time.Second).String(),
	})
}

// handleLogs returns the buffered log lines written after ?after=N.
func (d *daemon) handleLogs(w http.ResponseWriter, r *http.Request) {
	after := 0
	if v := r.URL.Query().Get("after"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeError(w, http.StatusBadRequest, fmt.Errorf("invalid after %q", v))
			return
		}
		after = n
	}
	lines, count := d.logs.Since(after)
	writeJSON(w, http.StatusOK, logsResponse{Lines: lines, Count: count})
}

type logsResponse struct {
	Lines []string `json:"lines"`
	Count int      `json:"count"`
}

func (d *daemon) handleChat(w http.ResponseWriter, r *http.Request) {
	chat, err := d.session.OpenChat(r.PathValue("node"))
	if err != nil {
		writeError(w, http.StatusNotFound, err)
		return
	}
	writeJSON(w, http.StatusOK, chat)
}

func (d *daemon) handleSend(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Message string `json:"message"`
	}
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || body.Message == "" {
		writeError(w, http.StatusBadRequest, errors.New("body must be {\"message\": \"...\"}"))
		return
	}
	reply, err := d.session.Send(r.Context(), r.PathValue("node"), body.Message)
	if err != nil {
		if r.Context().Err() != nil {
			return
		}
		writeError(w, sendStatus(err), err)
		return
	}
	writeJSON(w, http.StatusOK, reply)
}

// sendStatus maps a chat turn error to an HTTP status.
func sendStatus(err error) int {
	switch {
	case errors.Is(err, graph.ErrNodeNotFound):
		return http.StatusNotFound
	case errors.Is(err, session.ErrNoGateway):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func handleDashboard(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	w.Write([]byte(dashboardHTML))
}

const dashboardHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<meta name="viewport" content="width=device-width, initial-scale=1">
<title>litmap</title>
<style>
  :root {
    --bg: #1a1b26; --fg: #a9b1d6; --accent: #7aa2f7;
    --card-bg: #24283b; --border: #414868; --dim: #565f89;
    --green: #9ece6a; --yellow: #e0af68; --red: #f7768e;
  }
  * { box-sizing: border-box; margin: 0; padding: 0; }
  body {
    font-family: "Berkeley Mono", "JetBrains Mono", monospace;
    background: var(--bg); color: var(--fg); padding: 2rem;
  }
  h1 { color: var(--accent); font-size: 1.4rem; margin-bottom: 1.5rem; }
  h2 { font-size: 0.85rem; color: var(--dim); text-transform: uppercase; letter-spacing: 0.1em; margin: 1.5rem 0 0.5rem; }
  .cards { display: flex; gap: 1rem; flex-wrap: wrap; }
  .card {
    background: var(--card-bg); border: 1px solid var(--border);
    border-radius: 8px; padding: 1rem 1.5rem; min-width: 9rem;
  }
  .card .label { font-size: 0.75rem; color: var(--dim); }
  .card .value { font-size: 1.6rem; margin-top: 0.3rem; }
  .ok { color: var(--green); } .warn { color: var(--yellow); } .err { color: var(--red); }
  table { border-collapse: collapse; width: 100%; font-size: 0.85rem; }
  td { padding: 0.2rem 0.8rem 0.2rem 0; border-bottom: 1px solid var(--border); }
  pre {
    background: var(--card-bg); border: 1px solid var(--border); border-radius: 8px;
    padding: 1rem; font-size: 0.75rem; max-height: 24rem; overflow: auto; white-space: pre-wrap;
  }
</style>
</head>
<body>
<h1>litmap <span id="project" style="color: var(--dim)"></span></h1>
<div class="cards">
  <div class="card"><div class="label">nodes</div><div class="value" id="nodes">-</div></div>
  <div class="card"><div class="label">edges</div><div class="value" id="edges">-</div></div>
  <div class="card"><div class="label">chats</div><div class="value" id="chats">-</div></div>
  <div class="card"><div class="label">selected</div><div class="value" id="selected">-</div></div>
  <div class="card"><div class="label">saved</div><div class="value" id="saved">-</div></div>
</div>
<h2>Recent model calls</h2>
<table id="calls"></table>
<h2>Logs</h2>
<pre id="logs"></pre>
<script>
let after = 0;
const logs = document.getElementById("logs");

function esc(s) {
  return String(s).replace(/[&<>]/g, c => ({"&": "&amp;", "<": "&lt;", ">": "&gt;"}[c]));
}

async function refresh() {
  try {
    const st = await (await fetch("/api/state")).json();
    const s = st.session;
    document.getElementById("project").textContent = s.project + " - up " + st.uptime;
    for (const k of ["nodes", "edges", "chats", "selected"]) {
      document.getElementById(k).textContent = s[k];
    }
    const saved = document.getElementById("saved");
    if (s.last_save_error) {
      saved.textContent = "failed"; saved.className = "value err"; saved.title = s.last_save_error;
    } else if (s.pending_save) {
      saved.textContent = "pending"; saved.className = "value warn"; saved.title = "";
    } else {
      saved.textContent = "yes"; saved.className = "value ok"; saved.title = s.last_saved;
    }
    document.getElementById("calls").innerHTML = (st.gateway_calls || []).map(c =>
      "<tr><td>" + esc(c.created_at) + "</td><td>" + esc(c.model) + "</td><td>" + esc(c.operation) +
      "</td><td class=\"" + (c.outcome === "ok" ? "ok" : "err") + "\">" + esc(c.outcome) +
      "</td><td>" + c.duration_ms + " ms</td></tr>").join("");

    const l = await (await fetch("/api/logs?after=" + after)).json();
    if (l.lines.length) {
      logs.textContent += l.lines.join("\n") + "\n";
      logs.scrollTop = logs.scrollHeight;
    }
    after = l.count;
  } catch (e) {
    document.getElementById("project").textContent = "(daemon unreachable)";
  }
}

refresh();
setInterval(refresh, 2000);
</script>
</body>
</html>
`
