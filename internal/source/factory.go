package source

import (
	"fmt"
	"os"
)

// FromEnv builds a Source from environment variables. RELAY_PROVIDER
// selects the backend; each backend reads its own key/model/base-URL
// variables, falling back to cfg-style defaults.
func FromEnv() (Source, string, error) {
	provider := os.Getenv("RELAY_PROVIDER")
	if provider == "" {
		provider = "openai"
	}

	switch provider {
	case "openai":
		apiKey := os.Getenv("OPENAI_API_KEY")
		if apiKey == "" {
			return nil, "", fmt.Errorf("OPENAI_API_KEY not set")
		}
		model := os.Getenv("OPENAI_MODEL")
		if model == "" {
			model = "gpt-4o-mini"
		}
		return NewOpenAI(apiKey, model, os.Getenv("OPENAI_BASE_URL")), model, nil

	case "anthropic":
		apiKey := os.Getenv("ANTHROPIC_API_KEY")
		if apiKey == "" {
			return nil, "", fmt.Errorf("ANTHROPIC_API_KEY not set")
		}
		model := os.Getenv("ANTHROPIC_MODEL")
		if model == "" {
			model = "claude-3-5-sonnet-20241022"
		}
		return NewAnthropic(apiKey, model), model, nil

	case "deepseek":
		apiKey := os.Getenv("DEEPSEEK_API_KEY")
		if apiKey == "" {
			return nil, "", fmt.Errorf("DEEPSEEK_API_KEY not set")
		}
		model := os.Getenv("DEEPSEEK_MODEL")
		if model == "" {
			model = "deepseek-chat"
		}
		return NewOpenAI(apiKey, model, "https://api.deepseek.com/v1"), model, nil

	case "groq":
		apiKey := os.Getenv("GROQ_API_KEY")
		if apiKey == "" {
			return nil, "", fmt.Errorf("GROQ_API_KEY not set")
		}
		model := os.Getenv("GROQ_MODEL")
		if model == "" {
			model = "llama-3.1-70b-versatile"
		}
		return NewOpenAI(apiKey, model, "https://api.groq.com/openai/v1"), model, nil

	case "ollama":
		baseURL := os.Getenv("OLLAMA_BASE_URL")
		if baseURL == "" {
			baseURL = "http://localhost:11434/v1"
		}
		model := os.Getenv("OLLAMA_MODEL")
		if model == "" {
			model = "llama3.1"
		}
		apiKey := os.Getenv("OLLAMA_API_KEY")
		if apiKey == "" {
			apiKey = "ollama"
		}
		return NewOpenAI(apiKey, model, baseURL), model, nil

	default:
		return nil, "", fmt.Errorf("unknown RELAY_PROVIDER: %s (supported: openai, anthropic, deepseek, groq, ollama)", provider)
	}
}
