// Package session owns one project's graph document and chat sessions,
// runs classification and chat turns against them, and persists changes
// with a debounce.
package session

import (
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/lthms/litmap/internal/compose"
	"github.com/lthms/litmap/internal/gateway"
	"github.com/lthms/litmap/internal/graph"
	"github.com/lthms/litmap/internal/layout"
	"github.com/lthms/litmap/internal/mutation"
	"github.com/lthms/litmap/internal/search"
	"github.com/lthms/litmap/internal/store"
	"github.com/lthms/litmap/internal/taxonomy"
	"github.com/lthms/litmap/internal/telemetry"
)

var (
	// ErrNoGateway is returned by operations that need text generation
	// when the session was opened without a gateway.
	ErrNoGateway = errors.New("no gateway configured")
	// ErrNoSearcher is returned by SearchAndClassify without a document
	// source.
	ErrNoSearcher = errors.New("no document source configured")
)

// Config holds session parameters. Zero durations take the defaults.
type Config struct {
	Project    string
	Store      Persister // nil keeps everything in memory
	Gateway    gateway.Gateway
	Searcher   search.Searcher
	Classifier *taxonomy.Classifier // nil builds one on Gateway with defaults
	Layout     layout.Config
	Clearance  float64 // gap between batches (0 = compose.DefaultClearance)

	Debounce     time.Duration // document save delay (0 = default 2s)
	ChatDebounce time.Duration // chat save delay (0 = default 3s)

	// PlanSearch has the gateway turn a search request into several
	// queries before SearchAndClassify searches.
	PlanSearch bool

	Mutation mutation.Options
	NewID    func() string // ids of nodes added by edits (nil = uuid)
}

// Session serialises every change to one document. Gateway and search calls
// run outside the lock, so a chat turn applies to the document as it is
// when the reply arrives.
type Session struct {
	cfg      Config
	prefixer *compose.Prefixer

	mu    sync.Mutex
	doc   *graph.Document
	chats map[string]*Chat

	saveMu    sync.Mutex
	lastSaved time.Time
	saveErr   error

	docSaver  *debouncer
	chatSaver *debouncer
}

// Open loads the project's document and chats from the store, once.
func Open(cfg Config) (*Session, error) {
	if cfg.Project == "" {
		cfg.Project = "default"
	}
	if cfg.Debounce <= 0 {
		cfg.Debounce = 2 * time.Second
	}
	if cfg.ChatDebounce <= 0 {
		cfg.ChatDebounce = 3 * time.Second
	}
	if cfg.NewID == nil {
		cfg.NewID = uuid.NewString
	}
	if cfg.Classifier == nil && cfg.Gateway != nil {
		cfg.Classifier = taxonomy.New(cfg.Gateway, taxonomy.Config{})
	}

	s := &Session{
		cfg:      cfg,
		prefixer: compose.NewPrefixer(),
		doc:      graph.New(),
		chats:    make(map[string]*Chat),
	}
	if cfg.Store != nil {
		if _, err := cfg.Store.Load(store.DocumentKey(cfg.Project), s.doc); err != nil {
			return nil, fmt.Errorf("load document: %w", err)
		}
		if _, err := cfg.Store.Load(store.ChatsKey(cfg.Project), &s.chats); err != nil {
			return nil, fmt.Errorf("load chats: %w", err)
		}
		if s.chats == nil {
			s.chats = make(map[string]*Chat)
		}
	}
	s.docSaver = newDebouncer(cfg.Debounce, func() { s.saveDocument() })
	s.chatSaver = newDebouncer(cfg.ChatDebounce, func() { s.saveChats() })

	slog.Info("session: opened", "project", cfg.Project, "nodes", s.doc.Len(), "edges", s.doc.EdgeLen(), "chats", len(s.chats))
	return s, nil
}

// Close stops the save timers and writes the document and chats
// regardless of pending timers.
func (s *Session) Close() error {
	s.docSaver.Stop()
	s.chatSaver.Stop()
	return errors.Join(s.saveDocument(), s.saveChats())
}

// Document returns a snapshot of the current document.
func (s *Session) Document() *graph.Document {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.doc.Clone()
}

func (s *Session) Project() string { return s.cfg.Project }

func (s *Session) saveDocument() error {
	s.mu.Lock()
	snap := s.doc.Clone()
	s.mu.Unlock()
	return s.save(store.DocumentKey(s.cfg.Project), snap)
}

func (s *Session) saveChats() error {
	s.mu.Lock()
	snap := make(map[string]*Chat, len(s.chats))
	for id, c := range s.chats {
		snap[id] = c.clone()
	}
	s.mu.Unlock()
	return s.save(store.ChatsKey(s.cfg.Project), snap)
}

// save writes v. A failure is recorded for State and logged; the
// in-memory state stays authoritative.
func (s *Session) save(key string, v any) error {
	if s.cfg.Store == nil {
		return nil
	}
	err := s.cfg.Store.Save(key, v)

	s.saveMu.Lock()
	defer s.saveMu.Unlock()
	if err != nil {
		telemetry.SaveFailures.Inc()
		slog.Warn("session: save failed", "key", key, "error", err)
		s.saveErr = err
		return err
	}
	s.lastSaved = time.Now()
	s.saveErr = nil
	slog.Debug("session: saved", "key", key)
	return nil
}

// State summarises the session for the presentation layer.
type State struct {
	Project       string    `json:"project"`
	Nodes         int       `json:"nodes"`
	Edges         int       `json:"edges"`
	Chats         int       `json:"chats"`
	Selected      int       `json:"selected"`
	PendingSave   bool      `json:"pending_save"`
	LastSaved     time.Time `json:"last_saved"`
	LastSaveError string    `json:"last_save_error,omitempty"`
}

func (s *Session) State() State {
	s.mu.Lock()
	st := State{
		Project:  s.cfg.Project,
		Nodes:    s.doc.Len(),
		Edges:    s.doc.EdgeLen(),
		Chats:    len(s.chats),
		Selected: len(s.doc.SelectedNodes()) + len(s.doc.SelectedEdges()),
	}
	s.mu.Unlock()

	st.PendingSave = s.docSaver.Pending() || s.chatSaver.Pending()
	s.saveMu.Lock()
	st.LastSaved = s.lastSaved
	if s.saveErr != nil {
		st.LastSaveError = s.saveErr.Error()
	}
	s.saveMu.Unlock()
	return st
}
