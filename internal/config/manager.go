// Package config handles the persistent relay configuration file.
package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/xeipuuv/gojsonschema"
)

// Config holds the user's persistent preferences. Durations are
// expressed in milliseconds in the file.
type Config struct {
	Provider string `json:"provider,omitempty"` // openai, anthropic, deepseek, groq, ollama
	APIKey   string `json:"api_key,omitempty"`
	Model    string `json:"model,omitempty"`
	BaseURL  string `json:"base_url,omitempty"`

	MaxRetries          *int   `json:"max_retries,omitempty"`
	BackoffStrategy     string `json:"backoff_strategy,omitempty"`
	BaseDelayMs         int    `json:"base_delay_ms,omitempty"`
	MaxDelayMs          int    `json:"max_delay_ms,omitempty"`
	OverallTimeoutMs    int    `json:"overall_timeout_ms,omitempty"`
	FirstChunkTimeoutMs int    `json:"first_chunk_timeout_ms,omitempty"`
	InterChunkTimeoutMs int    `json:"inter_chunk_timeout_ms,omitempty"`
}

// configSchema rejects malformed files before their values reach the
// stream settings. Unknown keys are allowed so old binaries tolerate
// new fields.
const configSchema = `{
	"type": "object",
	"properties": {
		"provider": {"type": "string", "enum": ["openai", "anthropic", "deepseek", "groq", "ollama"]},
		"api_key": {"type": "string"},
		"model": {"type": "string"},
		"base_url": {"type": "string"},
		"max_retries": {"type": "integer", "minimum": 0},
		"backoff_strategy": {"type": "string", "enum": ["fixed", "linear", "exponential", "exponential_jitter", "decorrelated_jitter", "adaptive"]},
		"base_delay_ms": {"type": "integer", "minimum": 0},
		"max_delay_ms": {"type": "integer", "minimum": 0},
		"overall_timeout_ms": {"type": "integer", "minimum": 0},
		"first_chunk_timeout_ms": {"type": "integer", "minimum": 0},
		"inter_chunk_timeout_ms": {"type": "integer", "minimum": 0}
	}
}`

func msDuration(ms int) time.Duration { return time.Duration(ms) * time.Millisecond }

// BaseDelay returns the configured base delay, 0 if unset.
func (c *Config) BaseDelay() time.Duration { return msDuration(c.BaseDelayMs) }

// MaxDelay returns the configured delay clamp, 0 if unset.
func (c *Config) MaxDelay() time.Duration { return msDuration(c.MaxDelayMs) }

// OverallTimeout returns the configured overall window, 0 if unset.
func (c *Config) OverallTimeout() time.Duration { return msDuration(c.OverallTimeoutMs) }

// FirstChunkTimeout returns the configured first-chunk window, 0 if unset.
func (c *Config) FirstChunkTimeout() time.Duration { return msDuration(c.FirstChunkTimeoutMs) }

// InterChunkTimeout returns the configured inter-chunk window, 0 if unset.
func (c *Config) InterChunkTimeout() time.Duration { return msDuration(c.InterChunkTimeoutMs) }

// Manager handles loading, validating and saving the configuration.
type Manager struct {
	configDir string
}

// NewManager creates a configuration manager rooted in the user config
// directory.
func NewManager() (*Manager, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return nil, fmt.Errorf("failed to get user config dir: %w", err)
	}
	return &Manager{configDir: filepath.Join(configDir, "relay")}, nil
}

// NewManagerAt creates a manager rooted at an explicit directory.
func NewManagerAt(dir string) *Manager {
	return &Manager{configDir: dir}
}

// Path returns the absolute path to the config.json file.
func (m *Manager) Path() string {
	return filepath.Join(m.configDir, "config.json")
}

// DataDir returns the directory holding relay's local state (archive
// database, search index).
func (m *Manager) DataDir() string {
	return m.configDir
}

// Load reads and validates the configuration. A missing file returns
// an empty Config and no error.
func (m *Manager) Load() (*Config, error) {
	path := m.Path()

	if _, err := os.Stat(path); os.IsNotExist(err) {
		return &Config{}, nil
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	if err := validate(data); err != nil {
		return nil, err
	}

	var cfg Config
	if err := json.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config json: %w", err)
	}
	return &cfg, nil
}

// Save writes the configuration with owner-only permissions; the file
// can hold an API key.
func (m *Manager) Save(cfg *Config) error {
	if err := os.MkdirAll(m.configDir, 0755); err != nil {
		return fmt.Errorf("failed to create config dir: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}
	if err := os.WriteFile(m.Path(), data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// Exists checks whether the configuration file has been created.
func (m *Manager) Exists() bool {
	_, err := os.Stat(m.Path())
	return !os.IsNotExist(err)
}

// validate checks raw config bytes against the embedded schema.
func validate(data []byte) error {
	result, err := gojsonschema.Validate(
		gojsonschema.NewStringLoader(configSchema),
		gojsonschema.NewBytesLoader(data),
	)
	if err != nil {
		return fmt.Errorf("failed to validate config: %w", err)
	}
	if !result.Valid() {
		var msgs []string
		for _, e := range result.Errors() {
			msgs = append(msgs, e.String())
		}
		return fmt.Errorf("invalid config: %s", strings.Join(msgs, "; "))
	}
	return nil
}
