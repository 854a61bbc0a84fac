package gateway

import (
	"fmt"
	"strings"
	"time"
)

// Config selects and tunes a backend.
type Config struct {
	Model     string        // "claude:<model>", "openai:<model>" or an Ollama model name
	URL       string        // Ollama URL
	BaseURL   string        // OpenAI-compatible base URL ("" = public API)
	APIKey    string        // OpenAI API key
	Timeout   time.Duration // per call
	RateLimit float64       // calls per second (0 = unlimited)
	Burst     int
	Recorder  Recorder
}

// New builds the gateway described by cfg, wrapped with throttling and
// observation.
func New(cfg Config) (Gateway, error) {
	if cfg.Model == "" {
		return nil, fmt.Errorf("gateway: model must not be empty")
	}
	var g Gateway
	switch {
	case strings.HasPrefix(cfg.Model, "claude:"):
		g = &ClaudeCLI{Model: strings.TrimPrefix(cfg.Model, "claude:"), Timeout: cfg.Timeout}
	case strings.HasPrefix(cfg.Model, "openai:"):
		if cfg.APIKey == "" {
			return nil, fmt.Errorf("gateway: %s requires an API key", cfg.Model)
		}
		g = NewOpenAI(cfg.APIKey, cfg.BaseURL, strings.TrimPrefix(cfg.Model, "openai:"))
	default:
		g = &Ollama{URL: cfg.URL, Model: cfg.Model, Timeout: cfg.Timeout}
	}
	g = NewObserved(g, cfg.Model, cfg.Recorder)
	return NewLimited(g, cfg.RateLimit, cfg.Burst), nil
}
