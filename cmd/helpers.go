package cmd

import (
	"context"
	"fmt"
	"os"
	"path/filepath"

	"github.com/yacinebz/relay/internal/archive"
	"github.com/yacinebz/relay/internal/config"
	"github.com/yacinebz/relay/internal/source"
	"github.com/yacinebz/relay/internal/stream"
)

// loadConfig opens the config manager and the persisted config.
func loadConfig() (*config.Manager, *config.Config, error) {
	mgr, err := config.NewManager()
	if err != nil {
		return nil, nil, err
	}
	cfg, err := mgr.Load()
	if err != nil {
		return nil, nil, err
	}
	return mgr, cfg, nil
}

// buildSource constructs the stream source. A provider in the config
// file wins; otherwise the environment decides.
func buildSource(cfg *config.Config) (source.Source, string, error) {
	if cfg.Provider == "" {
		return source.FromEnv()
	}
	if cfg.APIKey == "" && cfg.Provider != "ollama" {
		return nil, "", fmt.Errorf("config selects provider %q but api_key is empty", cfg.Provider)
	}

	switch cfg.Provider {
	case "anthropic":
		model := cfg.Model
		if model == "" {
			model = "claude-3-5-sonnet-20241022"
		}
		return source.NewAnthropic(cfg.APIKey, model), model, nil
	case "openai", "deepseek", "groq", "ollama":
		model := cfg.Model
		if model == "" {
			model = "gpt-4o-mini"
		}
		return source.NewOpenAI(cfg.APIKey, model, cfg.BaseURL), model, nil
	default:
		return nil, "", fmt.Errorf("unknown provider in config: %s", cfg.Provider)
	}
}

// streamConfig merges file settings over the built-in defaults.
func streamConfig(cfg *config.Config) stream.Config {
	sc := stream.DefaultConfig()
	if cfg.MaxRetries != nil {
		sc.MaxRetries = *cfg.MaxRetries
	}
	if s := stream.Strategy(cfg.BackoffStrategy); s.Valid() {
		sc.Strategy = s
	}
	if d := cfg.BaseDelay(); d > 0 {
		sc.BaseDelay = d
	}
	if d := cfg.MaxDelay(); d > 0 {
		sc.MaxDelay = d
	}
	if d := cfg.OverallTimeout(); d > 0 {
		sc.Timeouts.Overall = d
	}
	if d := cfg.FirstChunkTimeout(); d > 0 {
		sc.Timeouts.FirstChunk = d
	}
	if d := cfg.InterChunkTimeout(); d > 0 {
		sc.Timeouts.InterChunk = d
	}
	return sc
}

// openArchive opens the session store and search index under the
// config data dir.
func openArchive(ctx context.Context, mgr *config.Manager) (*archive.Store, *archive.SearchIndex, error) {
	if err := os.MkdirAll(mgr.DataDir(), 0755); err != nil {
		return nil, nil, err
	}
	store, err := archive.NewStore(ctx, filepath.Join(mgr.DataDir(), "archive.db"))
	if err != nil {
		return nil, nil, err
	}
	index, err := archive.OpenSearchIndex(filepath.Join(mgr.DataDir(), "archive.bleve"))
	if err != nil {
		store.Close()
		return nil, nil, err
	}
	return store, index, nil
}
