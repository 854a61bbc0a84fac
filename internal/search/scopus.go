package search

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"time"
)

const DefaultScopusURL = "https://api.elsevier.com/content/search/scopus"

// Scopus searches the Elsevier Scopus API. Requests rotate round-robin over
// the configured API keys; a key that is rate limited (429), rejected (400)
// or hits a network error hands the request to the next key.
type Scopus struct {
	URL       string
	Keys      []string
	InstToken string
	Client    *http.Client

	mu   sync.Mutex
	next int
}

// NewScopus creates a client. An empty baseURL uses DefaultScopusURL.
func NewScopus(baseURL string, keys []string, instToken string) *Scopus {
	if baseURL == "" {
		baseURL = DefaultScopusURL
	}
	return &Scopus{
		URL:       baseURL,
		Keys:      keys,
		InstToken: instToken,
		Client:    &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *Scopus) nextKey() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	k := s.Keys[s.next%len(s.Keys)]
	s.next = (s.next + 1) % len(s.Keys)
	return k
}

// scopusQuery renders the Scopus advanced-search expression for q.
func scopusQuery(q Query) string {
	expr := "TITLE-ABS-KEY(" + q.Text + ")"
	if q.YearFrom > 0 {
		expr += fmt.Sprintf(" AND PUBYEAR > %d", q.YearFrom-1)
	}
	if q.YearTo > 0 {
		expr += fmt.Sprintf(" AND PUBYEAR < %d", q.YearTo+1)
	}
	return expr
}

func (s *Scopus) Search(ctx context.Context, q Query) ([]Document, error) {
	if err := q.Validate(); err != nil {
		return nil, err
	}
	if len(s.Keys) == 0 {
		return nil, fmt.Errorf("scopus: no API key configured")
	}

	params := url.Values{}
	params.Set("query", scopusQuery(q))
	params.Set("count", strconv.Itoa(q.count()))
	params.Set("start", strconv.Itoa(q.Offset))
	params.Set("sort", "relevancy")
	params.Set("httpAccept", "application/json")
	params.Set("view", "STANDARD")
	endpoint := s.URL + "?" + params.Encode()

	var lastErr error
	for attempt := 0; attempt < len(s.Keys); attempt++ {
		key := s.nextKey()
		docs, retry, err := s.do(ctx, endpoint, key)
		if err == nil {
			return docs, nil
		}
		if !retry || ctx.Err() != nil {
			return nil, err
		}
		slog.Warn("scopus: key failed, trying next", "attempt", attempt+1, "keys", len(s.Keys), "error", err)
		lastErr = err
	}
	return nil, fmt.Errorf("scopus: all API keys rate limited or failed: %w", lastErr)
}

// do issues one request. retry reports whether another key may succeed.
func (s *Scopus) do(ctx context.Context, endpoint, key string) (docs []Document, retry bool, err error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, false, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("X-ELS-APIKey", key)
	req.Header.Set("Accept", "application/json")
	if s.InstToken != "" {
		req.Header.Set("X-ELS-Insttoken", s.InstToken)
	}

	client := s.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, true, fmt.Errorf("scopus request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, true, fmt.Errorf("read scopus response: %w", err)
	}
	switch {
	case resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode == http.StatusBadRequest:
		return nil, true, fmt.Errorf("scopus returned %d: %s", resp.StatusCode, truncate(string(body), 200))
	case resp.StatusCode != http.StatusOK:
		return nil, false, fmt.Errorf("scopus returned %d: %s", resp.StatusCode, truncate(string(body), 200))
	}

	docs, err = parseScopus(body)
	return docs, false, err
}

type scopusEntry struct {
	Identifier  string `json:"dc:identifier"`
	Title       string `json:"dc:title"`
	Creator     string `json:"dc:creator"`
	Description string `json:"dc:description"`
	DOI         string `json:"prism:doi"`
	Publication string `json:"prism:publicationName"`
	CoverDate   string `json:"prism:coverDate"`
	Error       string `json:"error"`
}

func parseScopus(body []byte) ([]Document, error) {
	var payload struct {
		Results struct {
			Entry []scopusEntry `json:"entry"`
		} `json:"search-results"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return nil, fmt.Errorf("parse scopus response: %w", err)
	}

	var docs []Document
	for _, e := range payload.Results.Entry {
		// An empty result set comes back as a single error entry.
		if e.Error != "" || e.Title == "" {
			continue
		}
		id := e.Identifier
		if _, after, ok := strings.Cut(id, ":"); ok {
			id = after
		}
		year := e.CoverDate
		if len(year) > 4 {
			year = year[:4]
		}
		docs = append(docs, Document{
			ID:       id,
			Title:    e.Title,
			Abstract: e.Description,
			DOI:      e.DOI,
			Authors:  e.Creator,
			Source:   e.Publication,
			Year:     year,
		})
	}
	return docs, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
