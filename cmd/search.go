package cmd

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

var searchLimit int

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Full-text search over archived sessions",
	Args:  cobra.MinimumNArgs(1),
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

		results, err := index.Search(strings.Join(args, " "), searchLimit)
		if err != nil {
			return err
		}
		if len(results) == 0 {
			color.New(color.FgHiBlack).Fprintln(os.Stderr, "no matches")
			return nil
		}

		bold := color.New(color.Bold)
		dim := color.New(color.FgHiBlack)
		for _, r := range results {
			rec, _, err := store.Get(cmd.Context(), r.SessionID)
			if err != nil {
				continue
			}
			bold.Printf("%s", shortID(r.SessionID))
			dim.Printf("  score=%.2f  %s\n", r.Score, truncate(rec.Prompt, 60))
			if r.Fragment != "" {
				fmt.Printf("  %s\n", r.Fragment)
			}
		}
		return nil
	},
}

func init() {
	searchCmd.Flags().IntVarP(&searchLimit, "limit", "n", 10, "Maximum number of results")
}
