package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sort"
	"time"

	"github.com/spf13/cobra"

	"github.com/mschirtzinger/timekeep/internal/cache"
	"github.com/mschirtzinger/timekeep/internal/config"
	"github.com/mschirtzinger/timekeep/internal/queue"
	"github.com/mschirtzinger/timekeep/internal/remote"
	"github.com/mschirtzinger/timekeep/internal/store"
	"github.com/mschirtzinger/timekeep/internal/ui"
)

// dayTotals maps a day (2006-01-02) to logged minutes.
type dayTotals map[string]int

type statusReport struct {
	Backend       string    `json:"backend" yaml:"backend"`
	Configured    bool      `json:"configured" yaml:"configured"`
	DaemonRunning bool      `json:"daemonRunning" yaml:"daemonRunning"`
	Pending       int       `json:"pending" yaml:"pending"`
	IssuesStale   bool      `json:"issuesStale" yaml:"issuesStale"`
	Week          dayTotals `json:"week" yaml:"week"`
	WeekStale     bool      `json:"weekStale" yaml:"weekStale"`
	WeekError     string    `json:"weekError,omitempty" yaml:"weekError,omitempty"`
}

var statusCmd = &cobra.Command{
	Use:     "status",
	GroupID: "tracking",
	Short:   "Show configuration, queue, and weekly totals",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()

		s, opts, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		report, err := buildStatusReport(ctx, s, opts)
		if err != nil {
			return err
		}
		report.DaemonRunning = daemonAlive(ctx)

		if done, err := printStructured(report); done {
			return err
		}
		printStatus(report, opts)
		return nil
	},
}

// buildStatusReport gathers everything except the daemon probe. A
// failed weekly-totals read is reported in the result, not dropped.
func buildStatusReport(ctx context.Context, s *store.Store, opts config.Options) (statusReport, error) {
	report := statusReport{
		Backend:    remote.Select(opts).Name(),
		Configured: opts.Valid(),
		Week:       dayTotals{},
	}

	var err error
	report.Pending, err = queue.New(s).Len(ctx)
	if err != nil {
		return report, err
	}

	c := cache.New(s)
	report.IssuesStale, err = c.IsStale(ctx, store.TableIssueCache)
	if err != nil {
		return report, err
	}

	if opts.Valid() {
		totals, stale, err := weekTotals(ctx, c, opts)
		if totals != nil {
			report.Week = totals
		}
		report.WeekStale = stale || err != nil
		if err != nil {
			report.WeekError = err.Error()
		}
	}
	return report, nil
}

// weekTotals aggregates logged minutes per day over the last 7 days,
// served through the statistics cache.
func weekTotals(ctx context.Context, c *cache.Cache, opts config.Options) (dayTotals, bool, error) {
	ttl := time.Duration(opts.CacheTTLMinutes) * time.Minute

	result, err := c.Read(ctx, store.TableStatsCache, ttl, func(ctx context.Context) (any, error) {
		end := time.Now()
		start := end.AddDate(0, 0, -7)
		worklogs, err := remote.Select(opts).FetchWorklogs(ctx, opts, start, end)
		if err != nil {
			return nil, err
		}
		totals := dayTotals{}
		for _, w := range worklogs {
			day := w.Start.Format("2006-01-02")
			totals[day] += int(w.Duration().Minutes())
		}
		return totals, nil
	}, dayTotals{})
	if err != nil {
		return nil, true, err
	}

	var totals dayTotals
	if err := result.Decode(&totals); err != nil {
		return nil, true, err
	}
	if result.FetchErr != nil {
		return totals, result.Stale, result.FetchErr
	}
	return totals, result.Stale, nil
}

// daemonAlive probes the bus health endpoint.
func daemonAlive(ctx context.Context) bool {
	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+busAddr()+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	var body struct {
		Status string `json:"status"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return false
	}
	return body.Status == "ok"
}

func printStatus(report statusReport, opts config.Options) {
	fmt.Printf("\nBackend:  %s\n", ui.RenderAccent(report.Backend))

	if report.Configured {
		fmt.Printf("Config:   %s", ui.RenderPass("ok"))
		if !opts.OfflineMode {
			fmt.Printf(" %s", ui.RenderMuted("("+opts.Domain+")"))
		}
		fmt.Println()
	} else {
		fmt.Printf("Config:   %s %s\n", ui.RenderWarn("incomplete"), ui.RenderMuted("(run 'tk setup')"))
	}

	if report.DaemonRunning {
		fmt.Printf("Daemon:   %s\n", ui.RenderPass("running"))
	} else {
		fmt.Printf("Daemon:   %s\n", ui.RenderMuted("not running"))
	}

	if report.Pending > 0 {
		fmt.Printf("Pending:  %s worklogs\n", ui.RenderWarn(fmt.Sprint(report.Pending)))
	} else {
		fmt.Printf("Pending:  %s\n", ui.RenderMuted("none"))
	}

	if report.WeekError != "" {
		fmt.Printf("\n%s Weekly totals unavailable: %s\n",
			ui.RenderWarn("⚠"), report.WeekError)
	}

	if len(report.Week) > 0 {
		fmt.Printf("\nLast 7 days")
		if report.WeekStale {
			fmt.Printf(" %s", ui.RenderWarn("(stale)"))
		}
		fmt.Printf("\n%s\n", ui.Rule())

		days := make([]string, 0, len(report.Week))
		for day := range report.Week {
			days = append(days, day)
		}
		sort.Strings(days)
		for _, day := range days {
			minutes := report.Week[day]
			fmt.Printf("  %s  %s\n", day,
				formatDuration(time.Duration(minutes)*time.Minute))
		}
	}
	fmt.Println()
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
