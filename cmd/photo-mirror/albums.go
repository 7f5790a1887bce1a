package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/handiism/photo-mirror/internal/mirror"
)

func newAlbumsCommand(global *globalFlags) *cobra.Command {
	return &cobra.Command{
		Use:     "albums <account>",
		Short:   "List the albums of an account",
		Example: "  photo-mirror albums durov",
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			settings, log, err := global.load()
			if err != nil {
				return err
			}

			manager, err := mirror.NewManager(settings, log, nil)
			if err != nil {
				return err
			}
			defer manager.Close()

			albums, err := manager.Albums(context.Background(), args[0])
			if err != nil {
				return err
			}

			tw := tabwriter.NewWriter(stdout, 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "ID\tPHOTOS\tTITLE")
			for _, a := range albums {
				title := a.Title
				if a.System {
					title += " (system)"
				}
				fmt.Fprintf(tw, "%s\t%d\t%s\n", a.ID, a.Size, title)
			}
			return tw.Flush()
		},
	}
}
