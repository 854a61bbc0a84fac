package session

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/lthms/litmap/internal/compose"
	"github.com/lthms/litmap/internal/graph"
	"github.com/lthms/litmap/internal/search"
)

// Status reports a classification run.
type Status struct {
	RootID       string `json:"rootId"`       // namespaced root of the new batch
	Categories   int    `json:"categories"`   // categories discovered, root excluded
	Placed       int    `json:"placed"`       // documents placed in the graph
	Documents    int    `json:"documents"`    // documents submitted
	FailedChunks int    `json:"failedChunks"` // assignment chunks that produced nothing
	Fallback     bool   `json:"fallback"`     // the default taxonomy was used

	Queries []string `json:"queries,omitempty"` // searches run by SearchAndClassify
}

// Classify builds a taxonomy of docs and merges it into the document as a
// new tree beside the existing content. On cancellation nothing is merged.
func (s *Session) Classify(ctx context.Context, docs []search.Document, criteria string) (Status, error) {
	if s.cfg.Classifier == nil {
		return Status{}, fmt.Errorf("classify: %w", ErrNoGateway)
	}
	if len(docs) == 0 {
		return Status{}, errors.New("classify: no documents")
	}

	res, err := s.cfg.Classifier.Classify(ctx, docs, criteria)
	if err != nil {
		return Status{}, fmt.Errorf("classify: %w", err)
	}

	nodes := compose.Build(res.Tree, res.Assignments, docs)
	batch := compose.Layout(nodes, s.cfg.Layout)
	prefix := s.prefixer.Next()

	s.mu.Lock()
	ch, err := compose.Merge(s.doc, batch, prefix, s.cfg.Clearance)
	s.mu.Unlock()
	if err != nil {
		return Status{}, fmt.Errorf("classify: %w", err)
	}
	s.docSaver.Trigger()

	placed := 0
	for _, n := range nodes {
		if n.Kind == graph.KindReference {
			placed++
		}
	}
	st := Status{
		RootID:       prefix + res.Tree.ID,
		Categories:   len(res.Categories) - 1,
		Placed:       placed,
		Documents:    len(docs),
		FailedChunks: res.FailedChunks,
		Fallback:     res.UsedFallbackTree,
	}
	slog.Info("session: batch merged", "prefix", prefix, "nodes", len(ch.NodesAdded), "edges", len(ch.EdgesAdded),
		"categories", st.Categories, "placed", st.Placed)
	return st, nil
}

// SearchAndClassify retrieves documents for q and classifies them. With
// PlanSearch set, the gateway first turns q.Text into several queries whose
// results are merged.
func (s *Session) SearchAndClassify(ctx context.Context, q search.Query, criteria string) (Status, error) {
	if s.cfg.Searcher == nil {
		return Status{}, fmt.Errorf("search: %w", ErrNoSearcher)
	}

	queries := []string{q.Text}
	var (
		docs []search.Document
		err  error
	)
	if s.cfg.PlanSearch && s.cfg.Gateway != nil {
		queries, err = search.Plan(ctx, s.cfg.Gateway, q.Text)
		if err != nil {
			return Status{}, err
		}
		docs, err = search.Gather(ctx, s.cfg.Searcher, queries, q)
	} else {
		docs, err = s.cfg.Searcher.Search(ctx, q)
	}
	if err != nil {
		return Status{}, fmt.Errorf("search: %w", err)
	}
	if len(docs) == 0 {
		return Status{}, fmt.Errorf("search %q: no documents found", q.Text)
	}

	st, err := s.Classify(ctx, docs, criteria)
	st.Queries = queries
	return st, err
}
