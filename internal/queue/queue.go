// Package queue holds locally-created worklogs that have not been
// confirmed against the remote service.
package queue

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/mschirtzinger/timekeep/internal/store"
)

// ErrDuplicateTempID is returned when an enqueued worklog reuses a
// tempId already present in the queue. TempIds are never reused;
// hitting this is a programming error in the caller.
var ErrDuplicateTempID = errors.New("duplicate tempId in update queue")

// ErrNotQueued is returned when an operation names a tempId that is not
// in the queue.
var ErrNotQueued = errors.New("worklog not in update queue")

// TemporaryWorklog is a locally-originated time entry. TempID is its
// stable identity from creation until the entry leaves the queue; it
// never changes and is never reused.
type TemporaryWorklog struct {
	TempID   string    `json:"tempId"`
	IssueKey string    `json:"issue"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Synced   bool      `json:"synced"`
	RemoteID string    `json:"remoteId,omitempty"`
	Comment  string    `json:"comment,omitempty"`
}

// NewTempID generates a fresh tempId.
func NewTempID() string {
	return uuid.NewString()
}

// Queue is the update queue over the store's updatequeue table. At rest
// the table contains only unsynced entries, oldest first.
type Queue struct {
	store *store.Store
}

// New creates a queue over the given store.
func New(s *store.Store) *Queue {
	return &Queue{store: s}
}

func (q *Queue) load(ctx context.Context) ([]TemporaryWorklog, error) {
	entries, _, err := store.GetAs[[]TemporaryWorklog](ctx, q.store, store.TableUpdateQueue)
	if err != nil {
		return nil, fmt.Errorf("failed to load update queue: %w", err)
	}
	return entries, nil
}

func (q *Queue) save(ctx context.Context, entries []TemporaryWorklog) error {
	if entries == nil {
		entries = []TemporaryWorklog{}
	}
	if err := q.store.Put(ctx, store.TableUpdateQueue, entries); err != nil {
		return fmt.Errorf("failed to store update queue: %w", err)
	}
	return nil
}

// Enqueue appends worklogs to the queue. Each must carry a tempId not
// already present; entries are forced unsynced on the way in.
func (q *Queue) Enqueue(ctx context.Context, worklogs ...TemporaryWorklog) error {
	entries, err := q.load(ctx)
	if err != nil {
		return err
	}

	present := make(map[string]bool, len(entries))
	for _, e := range entries {
		present[e.TempID] = true
	}

	for _, w := range worklogs {
		if w.TempID == "" {
			return fmt.Errorf("worklog for %s has no tempId", w.IssueKey)
		}
		if present[w.TempID] {
			return fmt.Errorf("tempId %s: %w", w.TempID, ErrDuplicateTempID)
		}
		present[w.TempID] = true
		w.Synced = false
		entries = append(entries, w)
	}

	return q.save(ctx, entries)
}

// ListPending returns the unsynced entries in insertion order, oldest
// first. Flushes must process them in this order so an update never
// precedes its create.
func (q *Queue) ListPending(ctx context.Context) ([]TemporaryWorklog, error) {
	return q.load(ctx)
}

// Get returns the queued entry with the given tempId.
func (q *Queue) Get(ctx context.Context, tempID string) (TemporaryWorklog, bool, error) {
	entries, err := q.load(ctx)
	if err != nil {
		return TemporaryWorklog{}, false, err
	}
	for _, e := range entries {
		if e.TempID == tempID {
			return e, true, nil
		}
	}
	return TemporaryWorklog{}, false, nil
}

// Update replaces a queued entry in place, keyed by its tempId. Used
// for pre-sync edits; position in the queue is preserved.
func (q *Queue) Update(ctx context.Context, w TemporaryWorklog) error {
	entries, err := q.load(ctx)
	if err != nil {
		return err
	}
	for i, e := range entries {
		if e.TempID == w.TempID {
			w.Synced = false
			entries[i] = w
			return q.save(ctx, entries)
		}
	}
	return fmt.Errorf("tempId %s: %w", w.TempID, ErrNotQueued)
}

// Remove drops a queued entry without syncing it (user discard).
func (q *Queue) Remove(ctx context.Context, tempID string) error {
	entries, err := q.load(ctx)
	if err != nil {
		return err
	}
	for i, e := range entries {
		if e.TempID == tempID {
			return q.save(ctx, append(entries[:i], entries[i+1:]...))
		}
	}
	return fmt.Errorf("tempId %s: %w", tempID, ErrNotQueued)
}

// MarkSynced records remote confirmation for the entry with the given
// tempId. The entry leaves the queue in a single write, so it is never
// observable half-updated and half-queued; a worklog with synced=true
// never remains in the table at rest.
func (q *Queue) MarkSynced(ctx context.Context, tempID string) error {
	entries, err := q.load(ctx)
	if err != nil {
		return err
	}
	for i, e := range entries {
		if e.TempID == tempID {
			return q.save(ctx, append(entries[:i], entries[i+1:]...))
		}
	}
	return fmt.Errorf("tempId %s: %w", tempID, ErrNotQueued)
}

// Len returns the number of queued entries.
func (q *Queue) Len(ctx context.Context) (int, error) {
	entries, err := q.load(ctx)
	if err != nil {
		return 0, err
	}
	return len(entries), nil
}
