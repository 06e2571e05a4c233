package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	units "github.com/docker/go-units"
	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var historyLimit int

var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "List archived sessions",
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

		records, err := store.List(cmd.Context(), historyLimit)
		if err != nil {
			return err
		}
		if len(records) == 0 {
			color.New(color.FgHiBlack).Fprintln(os.Stderr, "no archived sessions yet")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
		fmt.Fprintln(w, "ID\tAGE\tSTATUS\tATTEMPTS\tSIZE\tPROMPT")
		for _, rec := range records {
			fmt.Fprintf(w, "%s\t%s ago\t%s\t%d\t%s\t%s\n",
				shortID(rec.ID),
				units.HumanDuration(time.Since(rec.StartedAt)),
				rec.Status,
				rec.AttemptCount,
				units.HumanSize(float64(len(rec.Content))),
				truncate(rec.Prompt, 48),
			)
		}
		return w.Flush()
	},
}

func init() {
	historyCmd.Flags().IntVarP(&historyLimit, "limit", "n", 20, "Maximum number of sessions to list")
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}

func truncate(s string, n int) string {
	s = strings.ReplaceAll(s, "\n", " ")
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}
