package main

import (
	"context"
	"log/slog"
	"net/http"
	"sync"
	"time"
)

const defaultKeepalive = 30 * time.Second

var keepaliveComment = []byte(": keepalive\n\n")

// keepaliveWriter serialises writes from the MCP SSE handler with periodic
// comment lines, so an idle stream is never dropped by a proxy or client.
type keepaliveWriter struct {
	http.ResponseWriter
	mu sync.Mutex
}

func (w *keepaliveWriter) Write(p []byte) (int, error) {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.ResponseWriter.Write(p)
}

func (w *keepaliveWriter) Flush() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.flush()
}

func (w *keepaliveWriter) flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}

func (w *keepaliveWriter) ping() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if _, err := w.ResponseWriter.Write(keepaliveComment); err != nil {
		return err
	}
	w.flush()
	return nil
}

// run pings every interval until ctx ends or a write fails.
func (w *keepaliveWriter) run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := w.ping(); err != nil {
				slog.Debug("serve: sse keepalive stopped", "error", err)
				return
			}
		}
	}
}

// sseWithKeepalive wraps the SSE endpoint. GET opens a stream and gets
// keepalive comments; POST carries client messages and passes through.
func sseWithKeepalive(next http.Handler, interval time.Duration) http.Handler {
	if interval <= 0 {
		interval = defaultKeepalive
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			next.ServeHTTP(w, r)
			return
		}
		ctx, cancel := context.WithCancel(r.Context())
		kw := &keepaliveWriter{ResponseWriter: w}
		stopped := make(chan struct{})
		go func() {
			defer close(stopped)
			kw.run(ctx, interval)
		}()

		next.ServeHTTP(kw, r)
		// The writer must not be touched once the handler has returned.
		cancel()
		<-stopped
	})
}
