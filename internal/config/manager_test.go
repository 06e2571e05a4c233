package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"
)

func TestManagerLoadMissingFile(t *testing.T) {
	m := NewManagerAt(t.TempDir())
	if m.Exists() {
		t.Error("Exists should be false before Save")
	}
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider != "" || cfg.MaxRetries != nil {
		t.Errorf("missing file should load as empty config, got %+v", cfg)
	}
}

func TestManagerSaveLoadRoundtrip(t *testing.T) {
	m := NewManagerAt(t.TempDir())

	retries := 5
	in := &Config{
		Provider:            "anthropic",
		APIKey:              "sk-ant-test",
		Model:               "claude-3-5-sonnet-20241022",
		MaxRetries:          &retries,
		BackoffStrategy:     "decorrelated_jitter",
		BaseDelayMs:         500,
		MaxDelayMs:          30000,
		OverallTimeoutMs:    90000,
		FirstChunkTimeoutMs: 20000,
		InterChunkTimeoutMs: 10000,
	}
	if err := m.Save(in); err != nil {
		t.Fatalf("Save: %v", err)
	}
	if !m.Exists() {
		t.Error("Exists should be true after Save")
	}

	out, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if out.Provider != "anthropic" || out.APIKey != "sk-ant-test" {
		t.Errorf("provider/key = %q/%q", out.Provider, out.APIKey)
	}
	if out.MaxRetries == nil || *out.MaxRetries != 5 {
		t.Errorf("max retries = %v", out.MaxRetries)
	}
	if out.BackoffStrategy != "decorrelated_jitter" {
		t.Errorf("strategy = %q", out.BackoffStrategy)
	}
	if out.BaseDelay() != 500*time.Millisecond {
		t.Errorf("base delay = %s", out.BaseDelay())
	}
	if out.OverallTimeout() != 90*time.Second {
		t.Errorf("overall timeout = %s", out.OverallTimeout())
	}
}

func TestManagerSaveRestrictsPermissions(t *testing.T) {
	m := NewManagerAt(t.TempDir())
	if err := m.Save(&Config{APIKey: "secret"}); err != nil {
		t.Fatalf("Save: %v", err)
	}
	info, err := os.Stat(m.Path())
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	if perm := info.Mode().Perm(); perm != 0600 {
		t.Errorf("config file mode = %o, want 600", perm)
	}
}

func TestManagerRejectsInvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		data string
	}{
		{"bad provider", `{"provider": "smoke-signals"}`},
		{"bad strategy", `{"backoff_strategy": "quadratic"}`},
		{"negative retries", `{"max_retries": -1}`},
		{"wrong type", `{"base_delay_ms": "soon"}`},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			dir := t.TempDir()
			m := NewManagerAt(dir)
			if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(tt.data), 0600); err != nil {
				t.Fatal(err)
			}
			if _, err := m.Load(); err == nil {
				t.Errorf("Load accepted %s", tt.data)
			}
		})
	}
}

func TestManagerAllowsUnknownKeys(t *testing.T) {
	dir := t.TempDir()
	m := NewManagerAt(dir)
	data := `{"provider": "openai", "future_knob": true}`
	if err := os.WriteFile(filepath.Join(dir, "config.json"), []byte(data), 0600); err != nil {
		t.Fatal(err)
	}
	cfg, err := m.Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Provider != "openai" {
		t.Errorf("provider = %q", cfg.Provider)
	}
}
