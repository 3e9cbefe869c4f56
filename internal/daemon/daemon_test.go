package daemon

import (
	"context"
	"io"
	"log"
	"strings"
	"testing"
	"time"

	"github.com/mschirtzinger/timekeep/internal/bus"
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

func startTestDaemon(t *testing.T, s *store.Store, cfg *Config) *Daemon {
	t.Helper()

	if cfg == nil {
		cfg = DefaultConfig()
	}
	cfg.Addr = "127.0.0.1:0"
	cfg.Logger = log.New(io.Discard, "", 0)

	d, err := New(s, cfg)
	if err != nil {
		t.Fatalf("failed to create daemon: %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- d.Start(ctx) }()

	t.Cleanup(func() {
		cancel()
		select {
		case err := <-done:
			if err != nil {
				t.Errorf("daemon exited with error: %v", err)
			}
		case <-time.After(5 * time.Second):
			t.Error("daemon did not stop in time")
		}
	})

	// The hub binds asynchronously; wait for a real port.
	deadline := time.Now().Add(5 * time.Second)
	for strings.HasSuffix(d.Addr(), ":0") {
		if time.Now().After(deadline) {
			t.Fatal("daemon never bound its listener")
		}
		time.Sleep(10 * time.Millisecond)
	}
	return d
}

func dialTestClient(t *testing.T, d *Daemon) *bus.Client {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := bus.Dial(ctx, d.Addr(), log.New(io.Discard, "", 0))
	if err != nil {
		t.Fatalf("failed to dial daemon: %v", err)
	}
	t.Cleanup(func() { _ = client.Close() })
	return client
}

func setOfflineMode(t *testing.T, s *store.Store) {
	t.Helper()

	ctx := context.Background()
	mgr := config.NewManager(s)
	if err := mgr.Merge(ctx, func(o *config.Options) {
		o.OfflineMode = true
	}); err != nil {
		t.Fatalf("failed to set options: %v", err)
	}
}

func enqueueWorklog(t *testing.T, s *store.Store) string {
	t.Helper()

	ctx := context.Background()
	q := queue.New(s)
	entry := queue.TemporaryWorklog{
		TempID:   queue.NewTempID(),
		IssueKey: "TK-1",
		Start:    time.Now().Add(-time.Hour),
		End:      time.Now(),
		Comment:  "daemon test",
	}
	if err := q.Enqueue(ctx, entry); err != nil {
		t.Fatalf("failed to enqueue worklog: %v", err)
	}
	return entry.TempID
}

func TestFlushActionDrainsQueue(t *testing.T) {
	s := newTestStore(t)
	setOfflineMode(t, s)
	enqueueWorklog(t, s)

	d := startTestDaemon(t, s, nil)
	client := dialTestClient(t, d)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.TriggerBackgroundAction(ctx, bus.ActionFlush); err != nil {
		t.Fatalf("flush action failed: %v", err)
	}

	n, err := queue.New(s).Len(ctx)
	if err != nil {
		t.Fatalf("failed to read queue: %v", err)
	}
	if n != 0 {
		t.Errorf("queue has %d entries after flush, want 0", n)
	}
}

func TestFlushBroadcastsDataChanged(t *testing.T) {
	s := newTestStore(t)
	setOfflineMode(t, s)
	enqueueWorklog(t, s)

	d := startTestDaemon(t, s, nil)
	actor := dialTestClient(t, d)
	observer := dialTestClient(t, d)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := actor.TriggerBackgroundAction(ctx, bus.ActionFlush); err != nil {
		t.Fatalf("flush action failed: %v", err)
	}

	deadline := time.After(5 * time.Second)
	for {
		select {
		case frame := <-observer.Events():
			if frame.Event == bus.EventDataChanged {
				return
			}
		case <-deadline:
			t.Fatal("observer never received data changed event")
		}
	}
}

func TestUnknownActionRejected(t *testing.T) {
	s := newTestStore(t)
	d := startTestDaemon(t, s, nil)
	client := dialTestClient(t, d)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.TriggerBackgroundAction(ctx, "reticulate splines"); err == nil {
		t.Fatal("expected error for unknown action")
	}
}

func TestTableChangeBroadcast(t *testing.T) {
	s := newTestStore(t)
	d := startTestDaemon(t, s, nil)
	client := dialTestClient(t, d)

	// Registration must complete before the write triggers the event.
	deadline := time.Now().Add(5 * time.Second)
	for d.hub.ClientCount() < 1 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(10 * time.Millisecond)
	}

	setOfflineMode(t, s)

	waitEvent := time.After(5 * time.Second)
	for {
		select {
		case frame := <-client.Events():
			if frame.Event == bus.EventTableChanged && frame.Table == store.TableOptions {
				return
			}
		case <-waitEvent:
			t.Fatal("client never received table changed event")
		}
	}
}

func TestAutosyncIntervalFollowsOptions(t *testing.T) {
	s := newTestStore(t)
	setOfflineMode(t, s)

	d := startTestDaemon(t, s, nil)

	// Defaults resolve to 15 minutes; wait for the loop to record it.
	deadline := time.Now().Add(5 * time.Second)
	for time.Duration(d.interval.Load()) != 15*time.Minute {
		if time.Now().After(deadline) {
			t.Fatalf("initial interval = %v, want 15m", time.Duration(d.interval.Load()))
		}
		time.Sleep(10 * time.Millisecond)
	}

	ctx := context.Background()
	mgr := config.NewManager(s)
	if err := mgr.Merge(ctx, func(o *config.Options) {
		o.AutosyncMinutes = 45
	}); err != nil {
		t.Fatalf("failed to update options: %v", err)
	}

	deadline = time.Now().Add(5 * time.Second)
	for time.Duration(d.interval.Load()) != 45*time.Minute {
		if time.Now().After(deadline) {
			t.Fatalf("interval never followed options change, still %v",
				time.Duration(d.interval.Load()))
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestAutosyncFlushesPending(t *testing.T) {
	s := newTestStore(t)
	setOfflineMode(t, s)
	enqueueWorklog(t, s)

	startTestDaemon(t, s, &Config{AutosyncOverride: 50 * time.Millisecond})

	ctx := context.Background()
	q := queue.New(s)
	deadline := time.Now().Add(5 * time.Second)
	for {
		n, err := q.Len(ctx)
		if err != nil {
			t.Fatalf("failed to read queue: %v", err)
		}
		if n == 0 {
			return
		}
		if time.Now().After(deadline) {
			t.Fatalf("queue still has %d entries, autosync never flushed", n)
		}
		time.Sleep(20 * time.Millisecond)
	}
}
