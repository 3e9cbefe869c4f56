package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/timekeep/internal/bus"
	"github.com/mschirtzinger/timekeep/internal/flush"
	"github.com/mschirtzinger/timekeep/internal/remote"
	"github.com/mschirtzinger/timekeep/internal/ui"
)

var syncCmd = &cobra.Command{
	Use:     "sync",
	GroupID: "sync",
	Short:   "Flush queued worklogs to the remote tracker",
	Long: `Flush every pending worklog in the update queue.

When the daemon is running the flush is delegated to it over the bus so
all contexts observe one consistent sync. Without a daemon the flush
runs in this process instead.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		if err := syncViaDaemon(ctx); err == nil {
			fmt.Printf("%s Sync complete (via daemon)\n", ui.RenderPass("✓"))
			return nil
		} else if _, isDial := err.(dialError); !isDial {
			return err
		}

		return syncInProcess(ctx)
	},
}

// dialError wraps a failure to reach the daemon so the caller can fall
// back to an in-process flush.
type dialError struct{ err error }

func (e dialError) Error() string { return e.err.Error() }
func (e dialError) Unwrap() error { return e.err }

func syncViaDaemon(ctx context.Context) error {
	dialCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()

	client, err := bus.Dial(dialCtx, busAddr(), newLogger("[bus] "))
	if err != nil {
		return dialError{err}
	}
	defer client.Close()

	return client.TriggerBackgroundAction(ctx, bus.ActionFlush)
}

func syncInProcess(ctx context.Context) error {
	s, opts, err := openStore(ctx)
	if err != nil {
		return err
	}
	defer s.Close()

	if !opts.Valid() {
		return fmt.Errorf("remote access is not configured; run 'tk setup' or enable offline mode")
	}

	identities := remote.NewIdentityCache(10 * time.Minute)
	report, err := flush.New(s, identities, newLogger("[sync] ")).Flush(ctx)
	if err != nil {
		return err
	}

	printFlushReport(report)
	if report.AuthFailure {
		return fmt.Errorf("authentication failed; check your token with 'tk setup'")
	}
	if !report.Clean() {
		return fmt.Errorf("%d of %d worklogs failed to sync", len(report.Failed), report.Attempted)
	}
	return nil
}

func printFlushReport(report flush.Report) {
	if report.Attempted == 0 {
		fmt.Printf("%s Nothing to sync\n", ui.RenderMuted("·"))
		return
	}
	fmt.Printf("%s Synced %d of %d worklogs\n",
		ui.RenderPass("✓"), len(report.Synced), report.Attempted)
	for tempID, err := range report.Failed {
		fmt.Printf("  %s %s: %v\n", ui.RenderFail("✗"), tempID, err)
	}
}

func init() {
	rootCmd.AddCommand(syncCmd)
}
