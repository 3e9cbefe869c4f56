package main

import (
	"context"
	"io"
	"log"
	"testing"
	"time"

	"github.com/mschirtzinger/timekeep/internal/config"
	"github.com/mschirtzinger/timekeep/internal/queue"
	"github.com/mschirtzinger/timekeep/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()

	s, err := store.Open(t.TempDir(), log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("failed to open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func TestBuildStatusReportOffline(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	opts := config.Normalize(config.Options{OfflineMode: true})

	entry := queue.TemporaryWorklog{
		TempID:   queue.NewTempID(),
		IssueKey: "TK-1",
		Start:    time.Now().Add(-time.Hour),
		End:      time.Now(),
	}
	if err := queue.New(s).Enqueue(ctx, entry); err != nil {
		t.Fatalf("failed to enqueue: %v", err)
	}

	report, err := buildStatusReport(ctx, s, opts)
	if err != nil {
		t.Fatalf("buildStatusReport failed: %v", err)
	}
	if report.Backend != "offline" {
		t.Errorf("backend = %q, want offline", report.Backend)
	}
	if !report.Configured {
		t.Error("offline mode should count as configured")
	}
	if report.Pending != 1 {
		t.Errorf("pending = %d, want 1", report.Pending)
	}
	if report.WeekError != "" {
		t.Errorf("unexpected week error: %s", report.WeekError)
	}
}

func TestBuildStatusReportSurfacesWeekFailure(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	// A valid datacenter config pointing nowhere: the stats fetch must
	// fail, and the failure must be visible in the report.
	opts := config.Normalize(config.Options{
		Instance: config.InstanceDatacenter,
		Domain:   "127.0.0.1:1",
		Token:    "secret",
	})

	report, err := buildStatusReport(ctx, s, opts)
	if err != nil {
		t.Fatalf("buildStatusReport failed: %v", err)
	}
	if report.WeekError == "" {
		t.Error("week fetch failure was not reported")
	}
	if !report.WeekStale {
		t.Error("week data should be marked stale after a failed fetch")
	}
}

func TestBuildStatusReportUnconfigured(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	report, err := buildStatusReport(ctx, s, config.Normalize(config.Options{}))
	if err != nil {
		t.Fatalf("buildStatusReport failed: %v", err)
	}
	if report.Configured {
		t.Error("empty options should not count as configured")
	}
	if report.WeekError != "" {
		t.Errorf("no fetch should be attempted when unconfigured, got error %s", report.WeekError)
	}
}
