package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/handiism/photo-mirror/internal/history"
)

func newHistoryCommand(global *globalFlags) *cobra.Command {
	var (
		account string
		album   string
		limit   int
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show recent sync runs",
		Example: `  photo-mirror history
  photo-mirror history --account 1 --album profile --limit 5`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			settings, _, err := global.load()
			if err != nil {
				return err
			}
			if settings.History.Path == "" {
				return fmt.Errorf("run history is disabled (history.path is empty)")
			}

			store, err := history.Open(settings.History.Path, settings.History.Keep)
			if err != nil {
				return err
			}
			defer store.Close()

			runs, err := store.List(account, album, limit)
			if err != nil {
				return err
			}
			printHistory(runs)
			return nil
		},
	}

	cmd.Flags().StringVarP(&account, "account", "a", "", "Only runs of this account id")
	cmd.Flags().StringVar(&album, "album", "", "Only runs of this album (needs --account)")
	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "How many runs to show; 0 shows all")
	return cmd
}

func printHistory(runs []history.Entry) {
	if len(runs) == 0 {
		fmt.Fprintln(stdout, "No runs recorded.")
		return
	}

	tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "STARTED\tACCOUNT\tALBUM\tTRANSFERRED\tPRESENT\tFAILED\tVERIFIED\tSTATUS")
	for _, r := range runs {
		t := r.Tally
		fmt.Fprintf(tw, "%s\t%s\t%s\t%d\t%d\t%d\t%d/%d\t%s\n",
			r.Started.Local().Format(time.DateTime),
			r.Account, r.Album,
			t.Transferred, t.AlreadyPresent, t.Failed,
			t.Verified, t.Attempted,
			runStatus(r))
	}
	_ = tw.Flush()
}

func runStatus(r history.Entry) string {
	switch {
	case r.Fatal != "":
		return "error: " + r.Fatal
	case r.Cancelled:
		return "cancelled"
	case r.DryRun:
		return "dry run"
	case r.Tally.Verified < r.Tally.Attempted:
		return "incomplete"
	default:
		return "ok"
	}
}
