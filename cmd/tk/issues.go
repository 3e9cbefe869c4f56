package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/timekeep/internal/cache"
	"github.com/mschirtzinger/timekeep/internal/config"
	"github.com/mschirtzinger/timekeep/internal/remote"
	"github.com/mschirtzinger/timekeep/internal/store"
	"github.com/mschirtzinger/timekeep/internal/ui"
)

var (
	issuesRefresh bool
	issuesQuery   string
	issuesLimit   int
)

var issuesCmd = &cobra.Command{
	Use:     "issues",
	GroupID: "tracking",
	Short:   "List issues available for tracking",
	Long: `List the issues worklogs can be booked against.

Fetched issues are cached with a TTL; stale reads refetch, and locally
pinned issues from the configuration overlay the fetched list. Use
--refresh to bypass the cache.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		s, opts, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		fetch := func(ctx context.Context) (any, error) {
			return remote.Select(opts).FetchIssues(ctx, opts, issuesQuery, issuesLimit)
		}

		c := cache.New(s)
		ttl := time.Duration(opts.CacheTTLMinutes) * time.Minute

		var result cache.Result
		if issuesRefresh {
			result, err = c.ForceFetch(ctx, store.TableIssueCache, ttl, fetch, []config.Issue{})
		} else {
			result, err = c.Read(ctx, store.TableIssueCache, ttl, fetch, []config.Issue{})
		}
		if err != nil {
			return err
		}
		if result.FetchErr != nil {
			fmt.Printf("%s Refresh failed, showing cached issues: %v\n",
				ui.RenderWarn("⚠"), result.FetchErr)
		}

		var fetched []config.Issue
		if err := result.Decode(&fetched); err != nil {
			return err
		}
		issues := opts.MergeIssues(fetched)

		if done, err := printStructured(issues); done {
			return err
		}

		if len(issues) == 0 {
			fmt.Printf("%s No issues found\n", ui.RenderMuted("·"))
			return nil
		}
		for _, issue := range issues {
			line := fmt.Sprintf("  %s  %s", ui.RenderAccent(issue.Key), issue.Name)
			if issue.Alias != "" {
				line += ui.RenderMuted("  (" + issue.Alias + ")")
			}
			if _, pinned := opts.Issues[issue.Key]; pinned {
				line += "  " + ui.RenderMuted("pinned")
			}
			fmt.Println(line)
		}
		return nil
	},
}

var issuesSearchCmd = &cobra.Command{
	Use:   "search TEXT",
	Short: "Search issues by free text on the remote tracker",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		s, opts, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		keys, err := remote.Select(opts).SearchIssues(ctx, opts, args[0])
		if err != nil {
			return err
		}

		if done, err := printStructured(keys); done {
			return err
		}
		for _, key := range keys {
			fmt.Printf("  %s\n", ui.RenderAccent(key))
		}
		return nil
	},
}

func init() {
	issuesCmd.Flags().BoolVar(&issuesRefresh, "refresh", false, "bypass the cache")
	issuesCmd.Flags().StringVar(&issuesQuery, "query", "", "filter expression sent to the tracker")
	issuesCmd.Flags().IntVar(&issuesLimit, "limit", 50, "maximum issues to fetch")
	issuesCmd.AddCommand(issuesSearchCmd)
	rootCmd.AddCommand(issuesCmd)
}
