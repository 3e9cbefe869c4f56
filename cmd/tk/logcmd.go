package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/olebedev/when"
	"github.com/olebedev/when/rules/common"
	"github.com/olebedev/when/rules/en"
	"github.com/spf13/cobra"

	"github.com/mschirtzinger/timekeep/internal/queue"
	"github.com/mschirtzinger/timekeep/internal/ui"
)

var (
	logFrom     string
	logTo       string
	logDuration time.Duration
	logComment  string
	logPush     bool
)

var logCmd = &cobra.Command{
	Use:     "log ISSUE",
	GroupID: "tracking",
	Short:   "Queue a worklog against an issue",
	Long: `Queue a time entry against a tracker issue.

Start and end accept natural language ("9am", "half an hour ago",
"yesterday 14:00") as well as RFC 3339 timestamps. The entry lands in
the local update queue and syncs on the next flush.

Examples:
  tk log PROJ-42 --from 9am --to 11:30am --comment "code review"
  tk log PROJ-42 --from "2 hours ago" --duration 90m
  tk log PROJ-42 --duration 1h --push`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		issueKey := strings.ToUpper(args[0])

		start, end, err := resolveSpan(time.Now())
		if err != nil {
			return err
		}

		s, opts, err := openStore(ctx)
		if err != nil {
			return err
		}
		defer s.Close()

		// Resolve aliases pinned in the options.
		for key, issue := range opts.Issues {
			if strings.EqualFold(issue.Alias, args[0]) {
				issueKey = key
				break
			}
		}

		entry := queue.TemporaryWorklog{
			TempID:   queue.NewTempID(),
			IssueKey: issueKey,
			Start:    start,
			End:      end,
			Comment:  logComment,
		}
		if err := queue.New(s).Enqueue(ctx, entry); err != nil {
			return err
		}

		fmt.Printf("%s Queued %s on %s (%s)\n",
			ui.RenderPass("✓"),
			formatDuration(entry.End.Sub(entry.Start)),
			ui.RenderAccent(issueKey),
			ui.RenderMuted(entry.Start.Format("Mon 15:04")+"–"+entry.End.Format("15:04")))

		if logPush {
			return syncCmd.RunE(cmd, nil)
		}
		return nil
	},
}

// resolveSpan turns the --from/--to/--duration flags into a concrete
// interval ending no later than now by default.
func resolveSpan(now time.Time) (time.Time, time.Time, error) {
	var start, end time.Time
	var err error

	if logFrom != "" {
		if start, err = parseMoment(logFrom, now); err != nil {
			return start, end, fmt.Errorf("bad --from value: %w", err)
		}
	}
	if logTo != "" {
		if end, err = parseMoment(logTo, now); err != nil {
			return start, end, fmt.Errorf("bad --to value: %w", err)
		}
	}

	switch {
	case logDuration > 0 && !start.IsZero() && !end.IsZero():
		return start, end, fmt.Errorf("--duration cannot combine with both --from and --to")
	case logDuration > 0 && !start.IsZero():
		end = start.Add(logDuration)
	case logDuration > 0 && !end.IsZero():
		start = end.Add(-logDuration)
	case logDuration > 0:
		end = now
		start = end.Add(-logDuration)
	case !start.IsZero() && end.IsZero():
		end = now
	case start.IsZero():
		return start, end, fmt.Errorf("provide --from, --duration, or both")
	}

	if !end.After(start) {
		return start, end, fmt.Errorf("end %s is not after start %s",
			end.Format(time.Kitchen), start.Format(time.Kitchen))
	}
	return start, end, nil
}

// parseMoment accepts RFC 3339, plain clock times, and natural language.
func parseMoment(text string, now time.Time) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339, text); err == nil {
		return t, nil
	}
	if t, err := time.ParseInLocation("15:04", text, now.Location()); err == nil {
		return time.Date(now.Year(), now.Month(), now.Day(),
			t.Hour(), t.Minute(), 0, 0, now.Location()), nil
	}

	w := when.New(nil)
	w.Add(en.All...)
	w.Add(common.All...)

	result, err := w.Parse(text, now)
	if err != nil {
		return time.Time{}, err
	}
	if result == nil {
		return time.Time{}, fmt.Errorf("could not understand %q", text)
	}
	return result.Time, nil
}

func formatDuration(d time.Duration) string {
	d = d.Round(time.Minute)
	h := d / time.Hour
	m := (d % time.Hour) / time.Minute
	if h == 0 {
		return fmt.Sprintf("%dm", m)
	}
	if m == 0 {
		return fmt.Sprintf("%dh", h)
	}
	return fmt.Sprintf("%dh %dm", h, m)
}

func init() {
	logCmd.Flags().StringVar(&logFrom, "from", "", "start of the entry (natural language ok)")
	logCmd.Flags().StringVar(&logTo, "to", "", "end of the entry (natural language ok)")
	logCmd.Flags().DurationVar(&logDuration, "duration", 0, "length of the entry, e.g. 1h30m")
	logCmd.Flags().StringVarP(&logComment, "comment", "m", "", "worklog comment")
	logCmd.Flags().BoolVar(&logPush, "push", false, "sync immediately after queueing")
	rootCmd.AddCommand(logCmd)
}
