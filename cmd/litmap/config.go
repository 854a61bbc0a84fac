package main

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/go-git/gcfg/v2"
	"github.com/go-playground/validator/v10"
)

// UserConfig is the hydrated form of ~/.config/litmap/config.
type UserConfig struct {
	Gateway  GatewayConfig
	Search   SearchConfig
	Classify ClassifyConfig
	Store    StoreConfig
	Session  SessionConfig
	Serve    ServeConfig
}

type GatewayConfig struct {
	Model   string        `validate:"required"`
	URL     string        `validate:"omitempty,url"`
	BaseURL string        `validate:"omitempty,url"`
	APIKey  string
	Rate    float64       `validate:"gte=0"`
	Burst   int           `validate:"gte=0"`
	Timeout time.Duration `validate:"gte=0"`

	// Pull fetches a missing Ollama model before the first call.
	Pull bool
}

type SearchConfig struct {
	URL       string   `validate:"omitempty,url"`
	Keys      []string `validate:"dive,required"`
	InstToken string

	// File serves documents from a YAML/JSON file instead of Scopus.
	File string
	// Plan turns a classify request into several search queries with the
	// gateway before searching.
	Plan bool
}

type ClassifyConfig struct {
	ChunkSize   int `validate:"gte=1,lte=200"`
	Retries     int `validate:"gte=0,lte=10"`
	Concurrency int `validate:"gte=0"`
	Criteria    string
}

type StoreConfig struct {
	Path string `validate:"required"`
}

type SessionConfig struct {
	Project      string        `validate:"required,max=128"`
	Debounce     time.Duration `validate:"gte=0"`
	ChatDebounce time.Duration `validate:"gte=0"`
}

type ServeConfig struct {
	Port      int           `validate:"gte=1,lte=65535"`
	Keepalive time.Duration `validate:"gte=0"`
}

var validate = validator.New()

func validateConfig(cfg *UserConfig) error {
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// configPath returns the default location of the user config file.
func configPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("config dir: %w", err)
	}
	return filepath.Join(dir, "litmap", "config"), nil
}

// loadUserConfig reads and validates the config at path. A missing file
// yields the defaults.
func loadUserConfig(path string) (*UserConfig, error) {
	if path == "" {
		p, err := configPath()
		if err != nil {
			return nil, err
		}
		path = p
	}

	m, err := parseConfig(path, nil)
	if errors.Is(err, fs.ErrNotExist) {
		slog.Debug("config: no config file, using defaults", "path", path)
		m = nil
	} else if err != nil {
		return nil, fmt.Errorf("read config %s: %w", path, err)
	}

	cfg := hydrateUserConfig(m)
	if cfg.Store.Path == "" {
		dir, err := stateDir()
		if err != nil {
			return nil, err
		}
		cfg.Store.Path = filepath.Join(dir, "litmap.db")
	}
	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parseConfig reads a git-config style file into section.key -> values, in
// file order. [include] path entries are expanded in place, relative to the
// including file. An include that cannot be read is skipped.
func parseConfig(path string, seen map[string]bool) (map[string][]string, error) {
	abs, err := filepath.Abs(expandHome(path))
	if err != nil {
		return nil, err
	}
	if seen == nil {
		seen = make(map[string]bool)
	}
	if seen[abs] {
		return nil, fmt.Errorf("include cycle through %s", abs)
	}
	seen[abs] = true
	defer delete(seen, abs)

	data, err := os.ReadFile(abs)
	if err != nil {
		return nil, err
	}

	m := make(map[string][]string)
	err = gcfg.ReadWithCallback(bytes.NewReader(data), func(section, subsection, key, value string, blank bool) error {
		if key == "" {
			return nil
		}
		section, key = strings.ToLower(section), strings.ToLower(key)

		if section == "include" && subsection == "" && key == "path" {
			inc := expandHome(value)
			if !filepath.IsAbs(inc) {
				inc = filepath.Join(filepath.Dir(abs), inc)
			}
			sub, err := parseConfig(inc, seen)
			if err != nil {
				slog.Debug("config: include skipped", "path", inc, "error", err)
				return nil
			}
			for k, vs := range sub {
				m[k] = append(m[k], vs...)
			}
			return nil
		}

		name := section + "." + key
		if subsection != "" {
			name = section + "." + subsection + "." + key
		}
		if blank {
			value = "true"
		}
		m[name] = append(m[name], value)
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("parse %s: %w", abs, err)
	}
	return m, nil
}

// lastValue returns the last value set for key, or "".
func lastValue(m map[string][]string, key string) string {
	vs := m[key]
	if len(vs) == 0 {
		return ""
	}
	return vs[len(vs)-1]
}

// hydrateUserConfig applies defaults, then the values in m. Unparseable
// values are logged and leave the default in place.
func hydrateUserConfig(m map[string][]string) *UserConfig {
	cfg := &UserConfig{
		Gateway: GatewayConfig{
			Model:   "claude:haiku",
			URL:     "http://localhost:11434",
			Timeout: 2 * time.Minute,
		},
		Search:   SearchConfig{Plan: true},
		Classify: ClassifyConfig{ChunkSize: 15},
		Session: SessionConfig{
			Project:      "default",
			Debounce:     2 * time.Second,
			ChatDebounce: 3 * time.Second,
		},
		Serve: ServeConfig{Port: 2710, Keepalive: defaultKeepalive},
	}

	setString(m, "gateway.model", &cfg.Gateway.Model)
	setString(m, "gateway.url", &cfg.Gateway.URL)
	setString(m, "gateway.baseurl", &cfg.Gateway.BaseURL)
	setString(m, "gateway.apikey", &cfg.Gateway.APIKey)
	setFloat(m, "gateway.rate", &cfg.Gateway.Rate)
	setInt(m, "gateway.burst", &cfg.Gateway.Burst)
	setDuration(m, "gateway.timeout", &cfg.Gateway.Timeout)
	setBool(m, "gateway.pull", &cfg.Gateway.Pull)

	setString(m, "search.url", &cfg.Search.URL)
	cfg.Search.Keys = append(cfg.Search.Keys, m["search.key"]...)
	setString(m, "search.insttoken", &cfg.Search.InstToken)
	setString(m, "search.file", &cfg.Search.File)
	setBool(m, "search.plan", &cfg.Search.Plan)
	if cfg.Search.File != "" {
		cfg.Search.File = expandHome(cfg.Search.File)
	}

	setInt(m, "classify.chunksize", &cfg.Classify.ChunkSize)
	setInt(m, "classify.retries", &cfg.Classify.Retries)
	setInt(m, "classify.concurrency", &cfg.Classify.Concurrency)
	setString(m, "classify.criteria", &cfg.Classify.Criteria)

	setString(m, "store.path", &cfg.Store.Path)
	if cfg.Store.Path != "" {
		cfg.Store.Path = expandHome(cfg.Store.Path)
	}

	setString(m, "session.project", &cfg.Session.Project)
	setDuration(m, "session.debounce", &cfg.Session.Debounce)
	setDuration(m, "session.chatdebounce", &cfg.Session.ChatDebounce)

	setInt(m, "serve.port", &cfg.Serve.Port)
	setDuration(m, "serve.keepalive", &cfg.Serve.Keepalive)
	return cfg
}

func setString(m map[string][]string, key string, dst *string) {
	if v := lastValue(m, key); v != "" {
		*dst = v
	}
}

func setInt(m map[string][]string, key string, dst *int) {
	v := lastValue(m, key)
	if v == "" {
		return
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		slog.Warn("config: ignoring invalid integer", "key", key, "value", v)
		return
	}
	*dst = n
}

func setFloat(m map[string][]string, key string, dst *float64) {
	v := lastValue(m, key)
	if v == "" {
		return
	}
	f, err := strconv.ParseFloat(v, 64)
	if err != nil {
		slog.Warn("config: ignoring invalid number", "key", key, "value", v)
		return
	}
	*dst = f
}

func setDuration(m map[string][]string, key string, dst *time.Duration) {
	v := lastValue(m, key)
	if v == "" {
		return
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		slog.Warn("config: ignoring invalid duration", "key", key, "value", v)
		return
	}
	*dst = d
}

func setBool(m map[string][]string, key string, dst *bool) {
	v := lastValue(m, key)
	if v == "" {
		return
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		slog.Warn("config: ignoring invalid boolean", "key", key, "value", v)
		return
	}
	*dst = b
}

func expandHome(p string) string {
	if p != "~" && !strings.HasPrefix(p, "~/") {
		return p
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return p
	}
	return filepath.Join(home, strings.TrimPrefix(p, "~"))
}

func stateDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("home dir: %w", err)
	}
	dir := filepath.Join(home, ".local", "state", "litmap")
	if err := os.MkdirAll(dir, 0700); err != nil {
		return "", fmt.Errorf("create state dir: %w", err)
	}
	return dir, nil
}
