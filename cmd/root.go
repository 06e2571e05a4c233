// Package cmd implements the relay CLI.
package cmd

import (
	"log/slog"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"
)

var verbose bool

var rootCmd = &cobra.Command{
	Use:   "relay",
	Short: "A resilient streaming client for LLM completions",
	Long: `relay streams completions from an LLM provider and survives the
failures streaming is prone to: stalled streams, dropped connections,
rate limits and server errors. Interrupted responses are retried with
backoff and resumed without losing or duplicating the output already
received.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func init() {
	cobra.OnInitialize(func() {
		// .env is optional; real env vars win.
		_ = godotenv.Load()
	})

	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Show retry and timeout diagnostics")

	rootCmd.AddCommand(chatCmd)
	rootCmd.AddCommand(historyCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(searchCmd)
	rootCmd.AddCommand(configCmd)
}

// SetVersion records the build version for `relay --version`.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute is the entry point called from main.
func Execute() error {
	return rootCmd.Execute()
}

// newLogger builds the CLI logger. Diagnostics go to stderr so they
// never interleave with streamed output on stdout.
func newLogger() *slog.Logger {
	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	return slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      level,
		TimeFormat: time.Kitchen,
	}))
}
