package cmd

import (
	"fmt"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/yacinebz/relay/internal/config"
)

var configWatch bool

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Show the resolved configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, cfg, err := loadConfig()
		if err != nil {
			return err
		}

		dim := color.New(color.FgHiBlack)
		bold := color.New(color.Bold)

		bold.Println("relay configuration")
		dim.Printf("  file: %s", mgr.Path())
		if !mgr.Exists() {
			dim.Print(" (not created yet, using defaults)")
		}
		fmt.Println()

		sc := streamConfig(cfg)
		provider := cfg.Provider
		if provider == "" {
			provider = "(from environment)"
		}
		dim.Printf("  provider:            %s\n", provider)
		dim.Printf("  max retries:         %d\n", sc.MaxRetries)
		dim.Printf("  backoff strategy:    %s\n", sc.Strategy)
		dim.Printf("  base delay:          %s\n", sc.BaseDelay)
		dim.Printf("  max delay:           %s\n", sc.MaxDelay)
		dim.Printf("  overall timeout:     %s\n", sc.Timeouts.Overall)
		dim.Printf("  first-chunk timeout: %s\n", sc.Timeouts.FirstChunk)
		dim.Printf("  inter-chunk timeout: %s\n", sc.Timeouts.InterChunk)

		if configWatch {
			logger := newLogger()
			logger.Info("watching config for changes; Ctrl+C to stop", "path", mgr.Path())
			return mgr.Watch(cmd.Context(), logger, func(newCfg *config.Config) {
				nc := streamConfig(newCfg)
				logger.Info("settings now in effect",
					"max_retries", nc.MaxRetries, "strategy", nc.Strategy,
					"base_delay", nc.BaseDelay, "overall_timeout", nc.Timeouts.Overall)
			})
		}
		return nil
	},
}

func init() {
	configCmd.Flags().BoolVar(&configWatch, "watch", false, "Keep running and report config changes as they are saved")
}
