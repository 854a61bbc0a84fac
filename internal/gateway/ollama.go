package gateway

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

// Ollama generates text through the Ollama chat API.
type Ollama struct {
	URL     string
	Model   string
	Timeout time.Duration // per call (0 = default 2m)
	Client  *http.Client  // nil = http.DefaultClient
}

type ollamaMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func ollamaRole(r Role) string {
	switch r {
	case RoleModel:
		return "assistant"
	case RoleSystem:
		return "system"
	default:
		return "user"
	}
}

// Generate sends the instructions as the system message followed by the
// prior turns. Uses a 2-minute timeout unless configured otherwise.
func (o *Ollama) Generate(ctx context.Context, req Request) (Response, error) {
	msgs := make([]ollamaMessage, 0, len(req.PriorTurns)+1)
	if req.Instructions != "" {
		msgs = append(msgs, ollamaMessage{Role: "system", Content: req.Instructions})
	}
	for _, t := range req.PriorTurns {
		msgs = append(msgs, ollamaMessage{Role: ollamaRole(t.Role), Content: t.Text})
	}
	// Ollama needs at least one user message to answer.
	if len(req.PriorTurns) == 0 && len(msgs) > 0 {
		msgs[len(msgs)-1].Role = "user"
	}

	reqBody, err := json.Marshal(map[string]any{
		"model":    o.Model,
		"messages": msgs,
		"stream":   false,
	})
	if err != nil {
		return Response{}, fmt.Errorf("marshal request: %w", err)
	}

	timeout := o.Timeout
	if timeout == 0 {
		timeout = 2 * time.Minute
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(o.URL, "/")+"/api/chat", bytes.NewReader(reqBody))
	if err != nil {
		return Response{}, fmt.Errorf("create request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := o.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("ollama request: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return Response{}, fmt.Errorf("read ollama response: %w", err)
	}

	var result struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
		Error string `json:"error"`
	}
	if resp.StatusCode != http.StatusOK {
		if json.Unmarshal(body, &result) == nil && result.Error != "" {
			return Response{Error: result.Error}, nil
		}
		return Response{}, fmt.Errorf("ollama returned %d: %s", resp.StatusCode, string(body))
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return Response{}, fmt.Errorf("parse ollama response: %w", err)
	}
	if result.Error != "" {
		return Response{Error: result.Error}, nil
	}
	return Response{Text: strings.TrimSpace(result.Message.Content)}, nil
}

// EnsureModel makes sure the model is available locally, pulling it when
// Ollama does not know it.
func (o *Ollama) EnsureModel(ctx context.Context) error {
	base := strings.TrimRight(o.URL, "/")
	reqBody, err := json.Marshal(map[string]string{"name": o.Model})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	resp, err := o.post(ctx, base+"/api/show", reqBody)
	if err != nil {
		return fmt.Errorf("ollama unreachable: %w", err)
	}
	io.Copy(io.Discard, resp.Body)
	resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
		return nil
	case http.StatusNotFound:
		slog.Info("gateway: ollama model not found locally, pulling", "model", o.Model)
		return o.pull(ctx, base)
	default:
		return fmt.Errorf("ollama /api/show returned %d for %s", resp.StatusCode, o.Model)
	}
}

func (o *Ollama) pull(ctx context.Context, base string) error {
	reqBody, err := json.Marshal(map[string]any{
		"name":   o.Model,
		"stream": false,
	})
	if err != nil {
		return fmt.Errorf("marshal request: %w", err)
	}

	resp, err := o.post(ctx, base+"/api/pull", reqBody)
	if err != nil {
		return fmt.Errorf("ollama pull: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("read pull response: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("ollama pull returned %d: %s", resp.StatusCode, string(body))
	}
	slog.Info("gateway: ollama model pulled", "model", o.Model)
	return nil
}

func (o *Ollama) post(ctx context.Context, url string, body []byte) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	client := o.Client
	if client == nil {
		client = http.DefaultClient
	}
	return client.Do(req)
}
