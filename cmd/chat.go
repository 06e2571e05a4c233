package cmd

import (
	"bufio"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/briandowns/spinner"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/yacinebz/relay/internal/config"
	"github.com/yacinebz/relay/internal/stream"
)

var chatCmd = &cobra.Command{
	Use:   "chat",
	Short: "Start an interactive streaming session",
	Long: `Start an interactive session. Each prompt is streamed back token by
token; interrupted streams are retried automatically and resumed from
the content already received. Finished sessions are archived.

Type 'exit' or 'quit' to end the session. Ctrl+C cancels the response
currently streaming.`,
	RunE: runChat,
}

// autoExtend grants one extra overall-timeout budget when a response
// ran out of time with partial output, instead of giving up on it.
var autoExtend time.Duration

func init() {
	chatCmd.Flags().DurationVar(&autoExtend, "auto-extend", 0,
		"Extend the overall timeout once by this much when a long response runs out of time (e.g. 30s)")
}

func runChat(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	mgr, cfg, err := loadConfig()
	if err != nil {
		return fmt.Errorf("configuration error: %w", err)
	}

	src, model, err := buildSource(cfg)
	if err != nil {
		return err
	}

	store, index, err := openArchive(cmd.Context(), mgr)
	if err != nil {
		return fmt.Errorf("failed to open archive: %w", err)
	}
	defer store.Close()
	defer index.Close()

	cyan := color.New(color.FgCyan, color.Bold)
	dim := color.New(color.FgHiBlack)
	green := color.New(color.FgGreen)
	yellow := color.New(color.FgYellow)
	red := color.New(color.FgRed)

	fmt.Fprintln(os.Stderr)
	cyan.Fprintln(os.Stderr, "  relay chat")
	dim.Fprintf(os.Stderr, "  model: %s\n", model)
	dim.Fprintf(os.Stderr, "  Type 'exit' to quit, Ctrl+C to cancel a response.\n\n")

	// streaming flips to 1 once the first token of the current
	// response is printed, so the spinner only runs before that.
	var streaming atomic.Bool
	sp := spinner.New(spinner.CharSets[14], 80*time.Millisecond, spinner.WithWriter(os.Stderr))
	sp.Color("cyan")

	coord := stream.New(streamConfig(cfg), src,
		stream.WithLogger(logger),
		stream.WithDeltaFunc(func(delta string) {
			if streaming.CompareAndSwap(false, true) {
				sp.Stop()
			}
			fmt.Print(delta)
		}),
	)
	sub := coord.Subscribe()

	// Config edits apply to subsequent sessions without a restart.
	go func() {
		_ = mgr.Watch(cmd.Context(), logger, func(newCfg *config.Config) {
			coord.SetConfig(streamConfig(newCfg))
		})
	}()

	// Ctrl+C cancels the in-flight session instead of killing the REPL.
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		for range sigCh {
			coord.Cancel()
		}
	}()

	scanner := bufio.NewScanner(os.Stdin)
	for {
		green.Fprint(os.Stderr, "  you → ")
		if !scanner.Scan() {
			break
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if input == "exit" || input == "quit" {
			break
		}

		streaming.Store(false)
		sp.Suffix = "  waiting for first token..."
		sp.Start()

		if _, err := coord.Start(cmd.Context(), input); err != nil {
			sp.Stop()
			red.Fprintf(os.Stderr, "  error: %v\n", err)
			continue
		}

		var final stream.Snapshot
		extendedOnce := false
		maxAttempts := streamConfig(cfg).MaxRetries + 1
		for snap := range sub {
			switch {
			case snap.Status.Terminal():
				final = snap
			case snap.Status == stream.StatusPartialFailure || snap.Status == stream.StatusPending:
				if snap.LastError == nil {
					break
				}
				outOfTime := snap.LastError.Expiry == stream.ExpiryOverall && snap.AttemptCount >= maxAttempts
				if outOfTime {
					// Retries are exhausted; either grant more time or
					// let the partial output stand.
					if autoExtend > 0 && !extendedOnce {
						extendedOnce = true
						yellow.Fprintf(os.Stderr, "\n  out of time; extending by %s...\n", autoExtend)
						if err := coord.Extend(autoExtend); err == nil {
							streaming.Store(false)
							sp.Suffix = "  resuming..."
							sp.Start()
							break
						}
					}
					coord.Cancel()
					break
				}
				streaming.Store(false)
				fmt.Println()
				yellow.Fprintf(os.Stderr, "  stream interrupted (%s); retrying...\n", snap.LastError.Kind)
				sp.Suffix = "  retrying..."
				sp.Start()
			}
			if final.Status.Terminal() {
				break
			}
		}
		sp.Stop()
		fmt.Println()

		switch final.Status {
		case stream.StatusSucceeded:
			dim.Fprintf(os.Stderr, "  done (%d attempt(s))\n\n", final.AttemptCount)
		case stream.StatusCancelled:
			yellow.Fprintf(os.Stderr, "  cancelled\n\n")
		default:
			msg := "stream failed"
			if final.LastError != nil {
				msg = final.LastError.Message
			}
			red.Fprintf(os.Stderr, "  failed after %d attempt(s): %s\n", final.AttemptCount, msg)
			if final.AccumulatedContent != "" {
				dim.Fprintf(os.Stderr, "  partial output above was preserved\n")
			}
			fmt.Fprintln(os.Stderr)
		}

		if err := store.Save(cmd.Context(), final, model); err != nil {
			logger.Warn("failed to archive session", "error", err)
		} else if err := index.Index(final); err != nil {
			logger.Warn("failed to index session", "error", err)
		}
	}

	return nil
}
