// Package config resolves Muninn's data directory, loads its JSON/YAML
// configuration, and provides access to provider API keys without ever
// logging their raw values.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"
)

// LoggingConfig controls the categorized file logger in internal/logging.
type LoggingConfig struct {
	DebugMode  bool            `json:"debug_mode" yaml:"debug_mode"`
	Categories map[string]bool `json:"categories" yaml:"categories"`
	Level      string          `json:"level" yaml:"level"`
	JSONFormat bool            `json:"json_format" yaml:"json_format"`
}

// EmbeddingConfig selects and configures the embedding provider.
type EmbeddingConfig struct {
	Provider   string `json:"provider" yaml:"provider"` // "ollama" | "remote"
	Endpoint   string `json:"endpoint" yaml:"endpoint"`
	Model      string `json:"model" yaml:"model"`
	TimeoutSec int    `json:"timeout_sec" yaml:"timeout_sec"`
}

// Config is Muninn's process-wide configuration, loaded once from
// $MUNINN_HOME/config.json and optionally overridden by a project-local
// .muninn/config.yaml.
type Config struct {
	Home            string          `json:"-" yaml:"-"`
	RequireVec      bool            `json:"require_vec" yaml:"require_vec"`
	WorkerCooldown  int             `json:"worker_cooldown_sec" yaml:"worker_cooldown_sec"`
	Logging         LoggingConfig   `json:"logging" yaml:"logging"`
	Embedding       EmbeddingConfig `json:"embedding" yaml:"embedding"`
	APIKeys         map[string]string `json:"api_keys" yaml:"api_keys"`
}

var (
	mu      sync.RWMutex
	current *Config
)

// ResolveHome returns the Muninn data directory: $MUNINN_HOME if set,
// else ~/.muninn, falling back to the legacy ~/.claude layout if that is
// the only one that exists.
func ResolveHome() string {
	if h := os.Getenv("MUNINN_HOME"); h != "" {
		return h
	}
	homeDir, err := os.UserHomeDir()
	if err != nil {
		return ".muninn"
	}
	muninnHome := filepath.Join(homeDir, ".muninn")
	if _, err := os.Stat(muninnHome); err == nil {
		return muninnHome
	}
	legacy := filepath.Join(homeDir, ".claude")
	if _, err := os.Stat(filepath.Join(legacy, "memory.db")); err == nil {
		return legacy
	}
	return muninnHome
}

// DBPath returns the path of the primary memory database under home,
// honoring the legacy ~/.claude/memory.db fallback.
func DBPath(home string) string {
	return filepath.Join(home, "memory.db")
}

// ProjectDBPath returns the optional per-project override database path.
func ProjectDBPath(projectRoot string) string {
	return filepath.Join(projectRoot, ".muninn", "memory.db")
}

// Default returns a Config with conservative defaults.
func Default() *Config {
	return &Config{
		Home:           ResolveHome(),
		RequireVec:     os.Getenv("MUNINN_REQUIRE_VEC") == "1",
		WorkerCooldown: 300,
		Logging: LoggingConfig{
			DebugMode: false,
			Level:     "info",
		},
		Embedding: EmbeddingConfig{
			Provider:   "ollama",
			Endpoint:   "http://localhost:11434",
			Model:      "embeddinggemma",
			TimeoutSec: 30,
		},
		APIKeys: map[string]string{},
	}
}

// Load reads $MUNINN_HOME/config.json, then merges a project-local
// .muninn/config.yaml override if projectRoot is non-empty and the file
// exists. The result is cached process-wide via Current.
func Load(projectRoot string) (*Config, error) {
	cfg := Default()

	jsonPath := filepath.Join(cfg.Home, "config.json")
	if data, err := os.ReadFile(jsonPath); err == nil {
		if err := json.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parse %s: %w", jsonPath, err)
		}
	} else if !os.IsNotExist(err) {
		return nil, fmt.Errorf("read %s: %w", jsonPath, err)
	}

	if projectRoot != "" {
		yamlPath := filepath.Join(projectRoot, ".muninn", "config.yaml")
		if data, err := os.ReadFile(yamlPath); err == nil {
			if err := yaml.Unmarshal(data, cfg); err != nil {
				return nil, fmt.Errorf("parse %s: %w", yamlPath, err)
			}
		} else if !os.IsNotExist(err) {
			return nil, fmt.Errorf("read %s: %w", yamlPath, err)
		}
	}

	mu.Lock()
	current = cfg
	mu.Unlock()
	return cfg, nil
}

// Current returns the last config loaded via Load, or a freshly
// constructed default if none has been loaded yet.
func Current() *Config {
	mu.RLock()
	defer mu.RUnlock()
	if current == nil {
		return Default()
	}
	return current
}

// GetApiKey resolves a provider's API key: first the config file's
// api_keys map, then an uppercased <PROVIDER>_API_KEY environment variable.
// It never logs the returned value.
func GetApiKey(provider string) (string, bool) {
	cfg := Current()
	if v, ok := cfg.APIKeys[provider]; ok && v != "" {
		return v, true
	}
	envName := strings.ToUpper(provider) + "_API_KEY"
	if v := os.Getenv(envName); v != "" {
		return v, true
	}
	return "", false
}

var keyLikePattern = regexp.MustCompile(`(?i)(sk-[a-z0-9\-]{10,}|[a-z0-9]{32,})`)

// RedactApiKeys strips key-shaped substrings from a string before it
// reaches a log line or a CLI-rendered error message.
func RedactApiKeys(s string) string {
	return keyLikePattern.ReplaceAllString(s, "[REDACTED]")
}
