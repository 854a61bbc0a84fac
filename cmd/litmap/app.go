package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/lthms/litmap/internal/gateway"
	"github.com/lthms/litmap/internal/search"
	"github.com/lthms/litmap/internal/session"
	"github.com/lthms/litmap/internal/store"
	"github.com/lthms/litmap/internal/taxonomy"
)

// App carries what every command needs: the loaded config and the
// project selected on the command line.
type App struct {
	Config  *UserConfig
	Project string
	Debug   bool
}

func (a *App) project() string {
	if a.Project != "" {
		return a.Project
	}
	return a.Config.Session.Project
}

// runtime holds the opened collaborators of one command invocation.
type runtime struct {
	store    *store.Store
	session  *session.Session
	searcher search.Searcher
}

// Close flushes the session and closes the store.
func (r *runtime) Close() error {
	return errors.Join(r.session.Close(), r.store.Close())
}

// open wires the store, gateway and searcher into a session for the
// selected project. Commands that never generate text pass offline to
// skip gateway setup.
func (a *App) open(ctx context.Context, offline bool) (*runtime, error) {
	st, err := store.Open(store.Config{DBPath: a.Config.Store.Path})
	if err != nil {
		return nil, fmt.Errorf("open store: %w", err)
	}

	cfg := session.Config{
		Project:      a.project(),
		Store:        st,
		Debounce:     a.Config.Session.Debounce,
		ChatDebounce: a.Config.Session.ChatDebounce,
	}

	if !offline {
		gw, err := newGateway(ctx, a.Config.Gateway, st)
		if err != nil {
			st.Close()
			return nil, err
		}
		cfg.Gateway = gw
		cfg.Classifier = taxonomy.New(gw, taxonomy.Config{
			ChunkSize:    a.Config.Classify.ChunkSize,
			ChunkRetries: a.Config.Classify.Retries,
			Concurrency:  a.Config.Classify.Concurrency,
		})
	}

	searcher, err := newSearcher(a.Config.Search)
	if err != nil {
		st.Close()
		return nil, err
	}
	cfg.Searcher = searcher
	cfg.PlanSearch = a.Config.Search.Plan

	sess, err := session.Open(cfg)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("open session: %w", err)
	}
	return &runtime{store: st, session: sess, searcher: searcher}, nil
}

func newGateway(ctx context.Context, cfg GatewayConfig, rec gateway.Recorder) (gateway.Gateway, error) {
	local := !strings.HasPrefix(cfg.Model, "claude:") && !strings.HasPrefix(cfg.Model, "openai:")
	if cfg.Pull && local {
		o := &gateway.Ollama{URL: cfg.URL, Model: cfg.Model}
		if err := o.EnsureModel(ctx); err != nil {
			return nil, fmt.Errorf("ensure ollama model: %w", err)
		}
	}
	gw, err := gateway.New(gateway.Config{
		Model:     cfg.Model,
		URL:       cfg.URL,
		BaseURL:   cfg.BaseURL,
		APIKey:    cfg.APIKey,
		Timeout:   cfg.Timeout,
		RateLimit: cfg.Rate,
		Burst:     cfg.Burst,
		Recorder:  rec,
	})
	if err != nil {
		return nil, err
	}
	slog.Debug("gateway: configured", "model", cfg.Model)
	return gw, nil
}

// newSearcher picks the document source: a local file when configured,
// otherwise Scopus when keys are set. No source yields nil.
func newSearcher(cfg SearchConfig) (search.Searcher, error) {
	switch {
	case cfg.File != "":
		src, err := search.LoadFile(cfg.File)
		if err != nil {
			return nil, fmt.Errorf("open document file: %w", err)
		}
		return src, nil
	case len(cfg.Keys) > 0:
		return search.NewScopus(cfg.URL, cfg.Keys, cfg.InstToken), nil
	default:
		return nil, nil
	}
}
