package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	units "github.com/docker/go-units"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/yacinebz/relay/internal/archive"
)

var showCmd = &cobra.Command{
	Use:   "show <session-id>",
	Short: "Show one archived session with its retry history",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		mgr, _, err := loadConfig()
		if err != nil {
			return err
		}
		store, index, err := openArchive(cmd.Context(), mgr)
		if err != nil {
			return err
		}
		defer store.Close()
		defer index.Close()

		id, err := resolveID(cmd.Context(), store, args[0])
		if err != nil {
			return err
		}
		rec, attempts, err := store.Get(cmd.Context(), id)
		if err != nil {
			return err
		}

		bold := color.New(color.Bold)
		dim := color.New(color.FgHiBlack)

		bold.Printf("session %s\n", rec.ID)
		dim.Printf("  status:   %s\n", rec.Status)
		dim.Printf("  model:    %s\n", rec.Model)
		dim.Printf("  started:  %s (%s ago)\n", rec.StartedAt.Format(time.RFC3339), units.HumanDuration(time.Since(rec.StartedAt)))
		dim.Printf("  attempts: %d\n", rec.AttemptCount)
		if rec.ErrorKind != "" {
			dim.Printf("  error:    %s: %s\n", rec.ErrorKind, rec.ErrorMessage)
		}

		if len(attempts) > 0 {
			fmt.Println()
			bold.Println("retry history")
			for _, a := range attempts {
				marker := ""
				if a.Extended {
					marker = " (extended)"
				}
				dim.Printf("  #%d%s  delay=%s  outcome=%s\n", a.Attempt, marker, a.Delay, a.Outcome)
			}
		}

		fmt.Println()
		bold.Println("prompt")
		fmt.Println(rec.Prompt)
		fmt.Println()
		bold.Println("content")
		fmt.Println(rec.Content)
		return nil
	},
}

// resolveID expands a short ID prefix to a full session ID.
func resolveID(ctx context.Context, store *archive.Store, prefix string) (string, error) {
	if len(prefix) >= 36 {
		return prefix, nil
	}
	records, err := store.List(ctx, 1000)
	if err != nil {
		return "", err
	}
	var match string
	for _, rec := range records {
		if strings.HasPrefix(rec.ID, prefix) {
			if match != "" {
				return "", fmt.Errorf("session prefix %q is ambiguous", prefix)
			}
			match = rec.ID
		}
	}
	if match == "" {
		return "", fmt.Errorf("no session matches %q", prefix)
	}
	return match, nil
}
