package queue

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mschirtzinger/timekeep/internal/store"
)

func setupQueue(t *testing.T) *Queue {
	t.Helper()

	st, err := store.Open(t.TempDir(), nil)
	require.NoError(t, err)
	t.Cleanup(func() { _ = st.Close() })
	return New(st)
}

func testWorklog(tempID, issue string) TemporaryWorklog {
	start := time.Date(2026, 8, 24, 9, 0, 0, 0, time.UTC)
	return TemporaryWorklog{
		TempID:   tempID,
		IssueKey: issue,
		Start:    start,
		End:      start.Add(time.Hour),
	}
}

func TestEnqueueThenListPending(t *testing.T) {
	q := setupQueue(t)
	ctx := context.Background()

	w := testWorklog("abc", "TK-1")
	require.NoError(t, q.Enqueue(ctx, w))

	pending, err := q.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "abc", pending[0].TempID)
	assert.False(t, pending[0].Synced)
}

func TestEnqueuePreservesInsertionOrder(t *testing.T) {
	q := setupQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, testWorklog("a", "TK-1")))
	require.NoError(t, q.Enqueue(ctx, testWorklog("b", "TK-2"), testWorklog("c", "TK-3")))

	pending, err := q.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 3)
	for i, want := range []string{"a", "b", "c"} {
		assert.Equal(t, want, pending[i].TempID)
	}
}

func TestEnqueueRejectsDuplicateTempID(t *testing.T) {
	q := setupQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, testWorklog("abc", "TK-1")))

	err := q.Enqueue(ctx, testWorklog("abc", "TK-2"))
	assert.ErrorIs(t, err, ErrDuplicateTempID)

	// Duplicate within a single batch is rejected too.
	err = q.Enqueue(ctx, testWorklog("x", "TK-1"), testWorklog("x", "TK-2"))
	assert.ErrorIs(t, err, ErrDuplicateTempID)
}

func TestEnqueueRequiresTempID(t *testing.T) {
	q := setupQueue(t)
	err := q.Enqueue(context.Background(), TemporaryWorklog{IssueKey: "TK-1"})
	assert.Error(t, err)
}

func TestEnqueueForcesUnsynced(t *testing.T) {
	q := setupQueue(t)
	ctx := context.Background()

	w := testWorklog("abc", "TK-1")
	w.Synced = true
	require.NoError(t, q.Enqueue(ctx, w))

	pending, err := q.ListPending(ctx)
	require.NoError(t, err)
	assert.False(t, pending[0].Synced)
}

func TestMarkSyncedRemovesEntry(t *testing.T) {
	q := setupQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, testWorklog("a", "TK-1"), testWorklog("b", "TK-2")))
	require.NoError(t, q.MarkSynced(ctx, "a"))

	pending, err := q.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, "b", pending[0].TempID)

	assert.ErrorIs(t, q.MarkSynced(ctx, "a"), ErrNotQueued)
}

func TestUpdateEditsInPlace(t *testing.T) {
	q := setupQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, testWorklog("a", "TK-1"), testWorklog("b", "TK-2")))

	edited := testWorklog("a", "TK-1")
	edited.Comment = "standup"
	edited.End = edited.End.Add(30 * time.Minute)
	require.NoError(t, q.Update(ctx, edited))

	pending, err := q.ListPending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, "a", pending[0].TempID, "update must preserve queue position")
	assert.Equal(t, "standup", pending[0].Comment)

	assert.ErrorIs(t, q.Update(ctx, testWorklog("ghost", "TK-9")), ErrNotQueued)
}

func TestRemoveDiscardsEntry(t *testing.T) {
	q := setupQueue(t)
	ctx := context.Background()

	require.NoError(t, q.Enqueue(ctx, testWorklog("a", "TK-1")))
	require.NoError(t, q.Remove(ctx, "a"))

	n, err := q.Len(ctx)
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestNewTempIDUnique(t *testing.T) {
	seen := make(map[string]bool)
	for i := 0; i < 100; i++ {
		id := NewTempID()
		require.NotEmpty(t, id)
		require.False(t, seen[id], "tempId reused")
		seen[id] = true
	}
}
