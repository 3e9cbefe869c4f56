package store

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"
)

// setupTestStore creates a temporary store for testing.
func setupTestStore(t *testing.T) *Store {
	t.Helper()

	st, err := Open(t.TempDir(), nil)
	if err != nil {
		t.Fatalf("failed to open test store: %v", err)
	}
	t.Cleanup(func() {
		if err := st.Close(); err != nil {
			t.Errorf("failed to close store: %v", err)
		}
	})
	return st
}

func TestPutThenGet(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	want := payload{Name: "alpha", Count: 3}
	if err := st.Put(ctx, TableOptions, want); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	got, ok, err := GetAs[payload](ctx, st, TableOptions)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if !ok {
		t.Fatal("expected value, got none")
	}
	if got != want {
		t.Errorf("got %+v, want %+v", got, want)
	}
}

func TestGetAbsentTable(t *testing.T) {
	st := setupTestStore(t)

	_, ok, err := st.Get(context.Background(), "nosuchtable")
	if err != nil {
		t.Fatalf("Get of absent table returned error: %v", err)
	}
	if ok {
		t.Error("expected ok=false for absent table")
	}
}

func TestSubscribeNotifiedPerPut(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	var mu sync.Mutex
	var seen []string
	unsub := st.Subscribe(TableUpdateQueue, func(v json.RawMessage) {
		mu.Lock()
		seen = append(seen, string(v))
		mu.Unlock()
	})
	defer unsub()

	for _, v := range []string{"a", "b", "c"} {
		if err := st.Put(ctx, TableUpdateQueue, v); err != nil {
			t.Fatalf("Put failed: %v", err)
		}
	}

	mu.Lock()
	defer mu.Unlock()
	if len(seen) != 3 {
		t.Fatalf("expected 3 notifications, got %d", len(seen))
	}
	for i, want := range []string{`"a"`, `"b"`, `"c"`} {
		if seen[i] != want {
			t.Errorf("notification %d: got %s, want %s", i, seen[i], want)
		}
	}
}

func TestSubscribeOtherTableNotNotified(t *testing.T) {
	st := setupTestStore(t)

	called := false
	unsub := st.Subscribe(TableOptions, func(json.RawMessage) { called = true })
	defer unsub()

	if err := st.Put(context.Background(), TableIssueCache, "x"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if called {
		t.Error("subscriber for another table was notified")
	}
}

func TestUnsubscribeStopsNotifications(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	count := 0
	unsub := st.Subscribe(TableOptions, func(json.RawMessage) { count++ })

	if err := st.Put(ctx, TableOptions, 1); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	unsub()
	if err := st.Put(ctx, TableOptions, 2); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	if count != 1 {
		t.Errorf("expected 1 notification, got %d", count)
	}
}

func TestDeleteNotifiesNil(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	if err := st.Put(ctx, TableStatsCache, "x"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	var got json.RawMessage = json.RawMessage("sentinel")
	unsub := st.Subscribe(TableStatsCache, func(v json.RawMessage) { got = v })
	defer unsub()

	if err := st.Delete(ctx, TableStatsCache); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}
	if got != nil {
		t.Errorf("expected nil notification after delete, got %s", got)
	}

	_, ok, err := st.Get(ctx, TableStatsCache)
	if err != nil {
		t.Fatalf("Get failed: %v", err)
	}
	if ok {
		t.Error("expected table absent after delete")
	}
}

func TestSubscriberMayWriteToStore(t *testing.T) {
	st := setupTestStore(t)
	ctx := context.Background()

	// A listener that reacts to one table by writing another must not
	// deadlock, and the second table's subscribers must still fire.
	var echoed json.RawMessage
	unsubEcho := st.Subscribe(TableStatsCache, func(v json.RawMessage) { echoed = v })
	defer unsubEcho()

	unsub := st.Subscribe(TableUpdateQueue, func(json.RawMessage) {
		if err := st.Put(ctx, TableStatsCache, "derived"); err != nil {
			t.Errorf("nested Put failed: %v", err)
		}
	})
	defer unsub()

	done := make(chan struct{})
	go func() {
		defer close(done)
		if err := st.Put(ctx, TableUpdateQueue, "trigger"); err != nil {
			t.Errorf("Put failed: %v", err)
		}
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Put from inside a subscriber deadlocked")
	}
	if string(echoed) != `"derived"` {
		t.Errorf("nested put notification = %s, want %q", echoed, `"derived"`)
	}
}

func TestWatchCrossProcessNotification(t *testing.T) {
	dir := t.TempDir()

	// Two store handles on the same directory stand in for two processes.
	reader, err := Open(dir, nil)
	if err != nil {
		t.Fatalf("failed to open reader store: %v", err)
	}
	defer reader.Close()

	writer, err := Open(dir, nil)
	if err != nil {
		t.Fatalf("failed to open writer store: %v", err)
	}
	defer writer.Close()

	if err := reader.Watch(context.Background()); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	notified := make(chan json.RawMessage, 1)
	unsub := reader.Subscribe(TableOptions, func(v json.RawMessage) {
		select {
		case notified <- v:
		default:
		}
	})
	defer unsub()

	if err := writer.Put(context.Background(), TableOptions, "external"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}

	select {
	case v := <-notified:
		if string(v) != `"external"` {
			t.Errorf("got notification %s, want %q", v, `"external"`)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for cross-process notification")
	}
}

func TestWatchCrossProcessDelete(t *testing.T) {
	dir := t.TempDir()

	reader, err := Open(dir, nil)
	if err != nil {
		t.Fatalf("failed to open reader store: %v", err)
	}
	defer reader.Close()

	writer, err := Open(dir, nil)
	if err != nil {
		t.Fatalf("failed to open writer store: %v", err)
	}
	defer writer.Close()

	if err := writer.Put(context.Background(), TableOptions, "doomed"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	if err := reader.Watch(context.Background()); err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	notified := make(chan json.RawMessage, 4)
	unsub := reader.Subscribe(TableOptions, func(v json.RawMessage) {
		notified <- v
	})
	defer unsub()

	if err := writer.Delete(context.Background(), TableOptions); err != nil {
		t.Fatalf("Delete failed: %v", err)
	}

	select {
	case v := <-notified:
		if v != nil {
			t.Errorf("expected nil notification for external delete, got %s", v)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for cross-process delete notification")
	}

	// Re-creation restarts the version at 1; the watcher must still
	// notify because the dispatched version was forgotten on delete.
	if err := writer.Put(context.Background(), TableOptions, "reborn"); err != nil {
		t.Fatalf("Put failed: %v", err)
	}
	deadline := time.After(5 * time.Second)
	for {
		select {
		case v := <-notified:
			if string(v) == `"reborn"` {
				return
			}
		case <-deadline:
			t.Fatal("timed out waiting for notification after re-creation")
		}
	}
}
