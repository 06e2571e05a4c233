package source

import (
	"strings"
	"testing"
)

func TestFromEnv(t *testing.T) {
	t.Run("missing key fails", func(t *testing.T) {
		t.Setenv("RELAY_PROVIDER", "openai")
		t.Setenv("OPENAI_API_KEY", "")
		if _, _, err := FromEnv(); err == nil {
			t.Fatal("expected an error without OPENAI_API_KEY")
		}
	})

	t.Run("openai defaults", func(t *testing.T) {
		t.Setenv("RELAY_PROVIDER", "openai")
		t.Setenv("OPENAI_API_KEY", "sk-test")
		t.Setenv("OPENAI_MODEL", "")
		src, model, err := FromEnv()
		if err != nil {
			t.Fatalf("FromEnv: %v", err)
		}
		if src == nil {
			t.Fatal("nil source")
		}
		if model != "gpt-4o-mini" {
			t.Errorf("model = %q", model)
		}
	})

	t.Run("anthropic", func(t *testing.T) {
		t.Setenv("RELAY_PROVIDER", "anthropic")
		t.Setenv("ANTHROPIC_API_KEY", "sk-ant-test")
		t.Setenv("ANTHROPIC_MODEL", "claude-3-5-haiku-20241022")
		src, model, err := FromEnv()
		if err != nil {
			t.Fatalf("FromEnv: %v", err)
		}
		if _, ok := src.(*Anthropic); !ok {
			t.Errorf("source = %T, want *Anthropic", src)
		}
		if model != "claude-3-5-haiku-20241022" {
			t.Errorf("model = %q", model)
		}
	})

	t.Run("ollama needs no key", func(t *testing.T) {
		t.Setenv("RELAY_PROVIDER", "ollama")
		src, model, err := FromEnv()
		if err != nil {
			t.Fatalf("FromEnv: %v", err)
		}
		if src == nil || model != "llama3.1" {
			t.Errorf("src = %v, model = %q", src, model)
		}
	})

	t.Run("unknown provider", func(t *testing.T) {
		t.Setenv("RELAY_PROVIDER", "carrier-pigeon")
		_, _, err := FromEnv()
		if err == nil || !strings.Contains(err.Error(), "carrier-pigeon") {
			t.Errorf("err = %v, want the provider named", err)
		}
	})
}
