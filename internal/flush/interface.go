// Package flush drives the protocol that reconciles queued worklogs
// with the remote service.
package flush

import "context"

// Flusher pushes queued worklogs to the remote backend.
//
// The flusher is designed to be resilient: one entry's failure does not
// abort the batch. Failed entries simply stay queued and are retried on
// the next triggered flush; the flusher never schedules retries itself.
type Flusher interface {
	// Flush snapshots the pending queue and attempts each entry in
	// insertion order: a create for entries without a remote identity,
	// an update for entries with one. Successes leave the queue;
	// failures remain queued and are reported per entry.
	//
	// When at least one entry succeeded, the issue and statistics
	// caches are invalidated and a data-changed notification emitted
	// so every open context re-reads fresh state.
	//
	// Flush returns an error only when the queue or store itself
	// cannot be read or written; per-entry remote failures live in
	// the report.
	Flush(ctx context.Context) (Report, error)
}

// Report is the outcome of one flush cycle.
type Report struct {
	// Attempted is the number of queue entries in the snapshot.
	Attempted int

	// Synced lists the tempIds confirmed and removed, in order.
	Synced []string

	// Failed maps tempIds of entries still queued to their errors.
	Failed map[string]error

	// AuthFailure is true when at least one entry failed with an
	// authentication error. Callers surface this distinctly so the
	// user can re-authenticate; the entries stay queued.
	AuthFailure bool
}

// Clean reports whether every attempted entry synced.
func (r Report) Clean() bool {
	return len(r.Failed) == 0
}
