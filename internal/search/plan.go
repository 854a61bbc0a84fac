package search

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/lthms/litmap/internal/gateway"
)

// MaxPlannedQueries caps the number of queries a plan may hold.
const MaxPlannedQueries = 5

func planPrompt(request string) string {
	return fmt.Sprintf(`Turn this request into academic database searches (Scopus, Google Scholar).
Extract 3-5 distinct, high-quality search keywords or keyword phrases. If the request asks for many
papers (more than 15), write several distinct Boolean queries instead, each covering a different
facet of the topic (e.g. Q1: market, Q2: pricing).

Return ONLY a JSON array of strings.

Request: %q`, request)
}

// planReply is the object form some models answer with instead of a bare
// array.
type planReply struct {
	Keywords string   `json:"keywords"`
	Queries  []string `json:"queries"`
}

// Plan asks gw for the search queries that cover request. A failed call or
// a reply without usable queries plans the request text alone. The only
// error is the context's.
func Plan(ctx context.Context, gw gateway.Gateway, request string) ([]string, error) {
	request = strings.TrimSpace(request)
	fallback := []string{request}

	reply, err := gateway.Call(gateway.WithOperation(ctx, "search.plan"), gw, gateway.Request{Instructions: planPrompt(request)})
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	if err != nil {
		slog.Warn("search: planning failed, using the request as query", "error", err)
		return fallback, nil
	}

	var raw json.RawMessage
	if err := gateway.DecodeJSON(reply, &raw); err != nil {
		slog.Warn("search: unusable plan, using the request as query", "error", err)
		return fallback, nil
	}
	var list []string
	if err := json.Unmarshal(raw, &list); err != nil {
		var obj planReply
		if err := json.Unmarshal(raw, &obj); err != nil {
			slog.Warn("search: unusable plan, using the request as query", "error", err)
			return fallback, nil
		}
		list = obj.Queries
		if len(list) == 0 && obj.Keywords != "" {
			list = []string{obj.Keywords}
		}
	}

	queries := make([]string, 0, len(list))
	seen := make(map[string]bool)
	for _, q := range list {
		q = strings.TrimSpace(q)
		if q == "" || seen[strings.ToLower(q)] {
			continue
		}
		seen[strings.ToLower(q)] = true
		queries = append(queries, q)
		if len(queries) == MaxPlannedQueries {
			break
		}
	}
	if len(queries) == 0 {
		return fallback, nil
	}
	slog.Debug("search: planned", "queries", queries)
	return queries, nil
}

// Gather runs q once per query text, in parallel, and merges the results
// in query order. The requested count is split between the queries.
// Documents are deduplicated by DOI, or by title when they have none. A
// failing query is logged and skipped; Gather fails only when all do.
func Gather(ctx context.Context, s Searcher, queries []string, q Query) ([]Document, error) {
	if len(queries) == 0 {
		return nil, errors.New("gather: no queries")
	}
	total := q.count()
	per := (total + len(queries) - 1) / len(queries)

	results := make([][]Document, len(queries))
	errs := make([]error, len(queries))
	var g errgroup.Group
	for i, text := range queries {
		sub := q
		sub.Text = text
		sub.Count = per
		g.Go(func() error {
			results[i], errs[i] = s.Search(ctx, sub)
			return nil
		})
	}
	g.Wait()
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var (
		out    []Document
		failed int
		seen   = make(map[string]bool)
	)
	for i, docs := range results {
		if errs[i] != nil {
			failed++
			slog.Warn("search: query failed", "query", queries[i], "error", errs[i])
			continue
		}
		for _, d := range docs {
			key := strings.ToLower(strings.TrimSpace(d.DOI))
			if key == "" {
				key = "title:" + strings.ToLower(strings.TrimSpace(d.Title))
			}
			if seen[key] {
				continue
			}
			seen[key] = true
			out = append(out, d)
		}
	}
	if failed == len(queries) {
		return nil, fmt.Errorf("gather: every query failed: %w", errors.Join(errs...))
	}
	if len(out) > total {
		out = out[:total]
	}
	return out, nil
}
