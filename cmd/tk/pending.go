package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/timekeep/internal/queue"
	"github.com/mschirtzinger/timekeep/internal/ui"
)

var pendingCmd = &cobra.Command{
	Use:     "pending",
	GroupID: "tracking",
	Short:   "List worklogs waiting to sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		s, _, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		entries, err := queue.New(s).ListPending(ctx)
		if err != nil {
			return err
		}

		if done, err := printStructured(entries); done {
			return err
		}

		if len(entries) == 0 {
			fmt.Printf("%s Update queue is empty\n", ui.RenderMuted("·"))
			return nil
		}

		fmt.Printf("%s pending worklogs\n%s\n", ui.RenderAccent(fmt.Sprint(len(entries))), ui.Rule())
		for _, e := range entries {
			kind := "new"
			if e.RemoteID != "" {
				kind = "update of " + e.RemoteID
			}
			fmt.Printf("  %s  %s  %s  %s\n",
				ui.RenderAccent(e.IssueKey),
				formatDuration(e.End.Sub(e.Start)),
				e.Start.Format("Mon Jan 2 15:04"),
				ui.RenderMuted(kind))
		}
		return nil
	},
}

var dropCmd = &cobra.Command{
	Use:     "drop TEMP_ID",
	GroupID: "tracking",
	Short:   "Remove a queued worklog before it syncs",
	Args:    cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		s, _, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		if err := queue.New(s).Remove(ctx, args[0]); err != nil {
			return err
		}
		fmt.Printf("%s Dropped %s\n", ui.RenderPass("✓"), args[0])
		return nil
	},
}

func init() {
	rootCmd.AddCommand(pendingCmd)
	rootCmd.AddCommand(dropCmd)
}
