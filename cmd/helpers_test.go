package cmd

import (
	"testing"
	"time"

	"github.com/yacinebz/relay/internal/config"
	"github.com/yacinebz/relay/internal/stream"
)

func TestStreamConfigDefaults(t *testing.T) {
	sc := streamConfig(&config.Config{})
	def := stream.DefaultConfig()
	if sc != def {
		t.Errorf("empty config should yield defaults: %+v", sc)
	}
}

func TestStreamConfigMergesFileSettings(t *testing.T) {
	retries := 1
	sc := streamConfig(&config.Config{
		MaxRetries:          &retries,
		BackoffStrategy:     "linear",
		BaseDelayMs:         250,
		OverallTimeoutMs:    45000,
		InterChunkTimeoutMs: 5000,
	})

	if sc.MaxRetries != 1 {
		t.Errorf("max retries = %d", sc.MaxRetries)
	}
	if sc.Strategy != stream.StrategyLinear {
		t.Errorf("strategy = %s", sc.Strategy)
	}
	if sc.BaseDelay != 250*time.Millisecond {
		t.Errorf("base delay = %s", sc.BaseDelay)
	}
	if sc.Timeouts.Overall != 45*time.Second {
		t.Errorf("overall = %s", sc.Timeouts.Overall)
	}
	if sc.Timeouts.InterChunk != 5*time.Second {
		t.Errorf("inter-chunk = %s", sc.Timeouts.InterChunk)
	}
	// Unset fields keep their defaults.
	def := stream.DefaultConfig()
	if sc.MaxDelay != def.MaxDelay || sc.Timeouts.FirstChunk != def.Timeouts.FirstChunk {
		t.Errorf("unset fields changed: %+v", sc)
	}
}

func TestStreamConfigIgnoresInvalidStrategy(t *testing.T) {
	sc := streamConfig(&config.Config{BackoffStrategy: "quadratic"})
	if sc.Strategy != stream.DefaultConfig().Strategy {
		t.Errorf("strategy = %s, want the default", sc.Strategy)
	}
}

func TestBuildSourceRequiresKey(t *testing.T) {
	if _, _, err := buildSource(&config.Config{Provider: "openai"}); err == nil {
		t.Error("openai without api_key should fail")
	}
	if _, _, err := buildSource(&config.Config{Provider: "ollama"}); err != nil {
		t.Errorf("ollama needs no key, got %v", err)
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("short", 10); got != "short" {
		t.Errorf("got %q", got)
	}
	if got := truncate("a very long prompt that keeps going", 12); got != "a very lo..." {
		t.Errorf("got %q", got)
	}
	if got := truncate("line\nbreaks\nhere", 40); got != "line breaks here" {
		t.Errorf("got %q", got)
	}
}

func TestShortID(t *testing.T) {
	if got := shortID("123456789abcdef"); got != "12345678" {
		t.Errorf("got %q", got)
	}
	if got := shortID("abc"); got != "abc" {
		t.Errorf("got %q", got)
	}
}
