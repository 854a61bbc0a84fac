package taxonomy

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.opentelemetry.io/otel/attribute"
	"golang.org/x/sync/errgroup"

	"github.com/lthms/litmap/internal/gateway"
	"github.com/lthms/litmap/internal/search"
	"github.com/lthms/litmap/internal/telemetry"
)

// DefaultCriteria is used when the caller gives no classification criteria.
const DefaultCriteria = "primary research theme and methodology"

// Config tunes the classifier. Zero fields take the defaults.
type Config struct {
	ChunkSize       int           // documents per assignment call (0 = default 15)
	ContextBudget   int           // characters of title/abstract text sent for induction (0 = default 100000)
	AbstractSnippet int           // abstract runes shown per document during assignment (0 = default 100)
	MaxDepth        int           // deepest category level kept below the root (0 = default 3)
	Concurrency     int           // parallel assignment calls (0 = unlimited)
	ChunkRetries    int           // extra attempts for a failed chunk (0 = none)
	RetryBackoff    time.Duration // initial retry interval (0 = default 1s)
}

func (c Config) withDefaults() Config {
	if c.ChunkSize <= 0 {
		c.ChunkSize = 15
	}
	if c.ContextBudget <= 0 {
		c.ContextBudget = 100000
	}
	if c.AbstractSnippet <= 0 {
		c.AbstractSnippet = 100
	}
	if c.MaxDepth <= 0 {
		c.MaxDepth = 3
	}
	if c.RetryBackoff <= 0 {
		c.RetryBackoff = time.Second
	}
	return c
}

// Assignment places one document under one category.
type Assignment struct {
	DocumentIndex int    `json:"documentIndex"`
	CategoryID    string `json:"categoryId"`
}

// Result is the outcome of a classification run.
type Result struct {
	Tree             *Tree
	Categories       []Category
	Assignments      []Assignment // ordered by document index
	Chunks           int
	FailedChunks     int
	UsedFallbackTree bool
}

// Classifier runs the two-round classification against a gateway.
type Classifier struct {
	gw  gateway.Gateway
	cfg Config
}

func New(gw gateway.Gateway, cfg Config) *Classifier {
	return &Classifier{gw: gw, cfg: cfg.withDefaults()}
}

// Classify induces a taxonomy for docs and assigns each document to a
// category. Gateway and parse failures degrade the result instead of
// failing it; the only error is the context's, in which case the partial
// result is discarded.
func (c *Classifier) Classify(ctx context.Context, docs []search.Document, criteria string) (*Result, error) {
	if strings.TrimSpace(criteria) == "" {
		criteria = DefaultCriteria
	}
	ctx, span := telemetry.Tracer("taxonomy").Start(ctx, "taxonomy.classify")
	span.SetAttributes(attribute.Int("documents", len(docs)), attribute.String("criteria", criteria))
	defer span.End()

	tree, fallback := c.Induce(ctx, docs, criteria)
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	cats := tree.Flatten()

	assignments, chunks, failed := c.Assign(ctx, docs, cats, criteria)
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	span.SetAttributes(
		attribute.Int("categories", len(cats)),
		attribute.Int("assignments", len(assignments)),
		attribute.Int("failed_chunks", failed),
		attribute.Bool("fallback_tree", fallback),
	)
	slog.Info("taxonomy: classification finished",
		"documents", len(docs), "categories", len(cats), "assigned", len(assignments),
		"chunks", chunks, "failed_chunks", failed, "fallback_tree", fallback)

	return &Result{
		Tree:             tree,
		Categories:       cats,
		Assignments:      assignments,
		Chunks:           chunks,
		FailedChunks:     failed,
		UsedFallbackTree: fallback,
	}, nil
}

// Induce asks the gateway for a taxonomy of docs. It returns DefaultTree
// and true when the call or the parse fails.
func (c *Classifier) Induce(ctx context.Context, docs []search.Document, criteria string) (*Tree, bool) {
	ctx, span := telemetry.Tracer("taxonomy").Start(ctx, "taxonomy.induce")
	defer span.End()

	prompt := inducePrompt(docs, criteria, c.cfg.ContextBudget)
	reply, err := gateway.Call(gateway.WithOperation(ctx, "classify.induce"), c.gw, gateway.Request{Instructions: prompt})
	if err != nil {
		if ctx.Err() == nil {
			slog.Warn("taxonomy: tree induction failed, using default tree", "error", err)
			telemetry.ClassifyFallbacks.Inc()
		}
		return DefaultTree(), true
	}
	tree, err := ParseTree(reply, c.cfg.MaxDepth)
	if err != nil {
		slog.Warn("taxonomy: unparseable tree, using default tree", "error", err)
		telemetry.ClassifyFallbacks.Inc()
		return DefaultTree(), true
	}
	return tree, false
}

// Assign classifies docs into cats in parallel chunks. A chunk whose call
// or reply fails contributes no assignments. Unknown category ids are
// coerced to the root.
func (c *Classifier) Assign(ctx context.Context, docs []search.Document, cats []Category, criteria string) (assignments []Assignment, chunks, failed int) {
	known := make(map[string]bool, len(cats))
	for _, cat := range cats {
		known[cat.ID] = true
	}

	size := c.cfg.ChunkSize
	chunks = (len(docs) + size - 1) / size
	perChunk := make([][]Assignment, chunks)

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)
	if c.cfg.Concurrency > 0 {
		g.SetLimit(c.cfg.Concurrency)
	}
	for i := 0; i < chunks; i++ {
		lo := i * size
		hi := min(lo+size, len(docs))
		g.Go(func() error {
			got, err := c.assignChunk(gctx, docs[lo:hi], lo, cats, criteria)
			if err != nil {
				if gctx.Err() == nil {
					slog.Warn("taxonomy: assignment chunk failed", "chunk", i, "documents", hi-lo, "error", err)
				}
				telemetry.ClassifyChunks.WithLabelValues("failed").Inc()
				mu.Lock()
				failed++
				mu.Unlock()
				return nil // non-fatal
			}
			telemetry.ClassifyChunks.WithLabelValues("ok").Inc()
			perChunk[i] = got
			return nil
		})
	}
	g.Wait()

	for _, got := range perChunk {
		for _, a := range got {
			if !known[a.CategoryID] {
				a.CategoryID = RootID
			}
			assignments = append(assignments, a)
		}
	}
	slices.SortFunc(assignments, func(a, b Assignment) int {
		return cmp.Compare(a.DocumentIndex, b.DocumentIndex)
	})
	return assignments, chunks, failed
}

// docIndex accepts both 3 and "3".
type docIndex int

func (d *docIndex) UnmarshalJSON(b []byte) error {
	n, err := strconv.Atoi(strings.Trim(string(b), `"`))
	if err != nil {
		return fmt.Errorf("document index %s: %w", b, err)
	}
	*d = docIndex(n)
	return nil
}

type chunkReply struct {
	ID           *docIndex `json:"id"`
	TargetNodeID string    `json:"targetNodeId"`
}

// assignChunk classifies docs, whose first element has global index
// offset. Indices outside the chunk and repeated indices are discarded.
func (c *Classifier) assignChunk(ctx context.Context, docs []search.Document, offset int, cats []Category, criteria string) ([]Assignment, error) {
	prompt := assignPrompt(docs, offset, cats, criteria, c.cfg.AbstractSnippet)
	ctx = gateway.WithOperation(ctx, "classify.assign")

	var replies []chunkReply
	attempt := func() error {
		reply, err := gateway.Call(ctx, c.gw, gateway.Request{Instructions: prompt})
		if err != nil {
			if ctx.Err() != nil {
				return backoff.Permanent(err)
			}
			return err
		}
		replies = nil
		if err := gateway.DecodeStrictJSON(reply, &replies); err != nil {
			return fmt.Errorf("decode assignments: %w", err)
		}
		return nil
	}

	var err error
	if c.cfg.ChunkRetries > 0 {
		b := backoff.NewExponentialBackOff()
		b.InitialInterval = c.cfg.RetryBackoff
		err = backoff.Retry(attempt, backoff.WithContext(backoff.WithMaxRetries(b, uint64(c.cfg.ChunkRetries)), ctx))
	} else {
		err = attempt()
	}
	if err != nil {
		return nil, err
	}

	seen := make(map[int]bool, len(docs))
	var out []Assignment
	for _, r := range replies {
		if r.ID == nil {
			continue
		}
		idx := int(*r.ID)
		if idx < offset || idx >= offset+len(docs) || seen[idx] {
			continue
		}
		seen[idx] = true
		target := strings.TrimSpace(r.TargetNodeID)
		if target == "" {
			target = RootID
		}
		out = append(out, Assignment{DocumentIndex: idx, CategoryID: target})
	}
	return out, nil
}
