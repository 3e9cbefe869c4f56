package flush

import (
	"context"
	"fmt"
	"log"
	"os"
	"sync"

	"github.com/mschirtzinger/timekeep/internal/cache"
	"github.com/mschirtzinger/timekeep/internal/config"
	"github.com/mschirtzinger/timekeep/internal/queue"
	"github.com/mschirtzinger/timekeep/internal/remote"
	"github.com/mschirtzinger/timekeep/internal/store"
)

// Orchestrator implements the Flusher interface.
type Orchestrator struct {
	queue      *queue.Queue
	cache      *cache.Cache
	options    *config.Manager
	identities *remote.IdentityCache
	logger     *log.Logger

	// selectBackend is remote.Select unless overridden for tests.
	selectBackend func(config.Options) remote.Backend

	// onDataChanged, when set, is invoked after a flush that synced at
	// least one entry. The daemon hooks this to broadcast to other
	// contexts.
	onDataChanged func(Report)

	// mu serializes flush cycles; overlapping triggers coalesce into
	// sequential runs.
	mu sync.Mutex
}

// Option configures an Orchestrator.
type Option func(*Orchestrator)

// WithBackendSelector overrides how the backend is chosen per flush.
func WithBackendSelector(fn func(config.Options) remote.Backend) Option {
	return func(o *Orchestrator) { o.selectBackend = fn }
}

// WithDataChangedHook registers a callback fired after any flush that
// synced at least one entry.
func WithDataChangedHook(fn func(Report)) Option {
	return func(o *Orchestrator) { o.onDataChanged = fn }
}

// New creates an Orchestrator over the shared store.
//
// The identity cache must be provided by the caller; it is deliberately
// injected rather than package-level so its lifetime is scoped to the
// orchestrating component.
//
// If logger is nil, a default logger writing to stderr is used.
func New(s *store.Store, identities *remote.IdentityCache, logger *log.Logger, opts ...Option) *Orchestrator {
	if logger == nil {
		logger = log.New(os.Stderr, "[flush] ", log.LstdFlags)
	}
	o := &Orchestrator{
		queue:         queue.New(s),
		cache:         cache.New(s),
		options:       config.NewManager(s),
		identities:    identities,
		logger:        logger,
		selectBackend: remote.Select,
	}
	for _, opt := range opts {
		opt(o)
	}
	return o
}

// Flush implements Flusher.Flush.
func (o *Orchestrator) Flush(ctx context.Context) (Report, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	opts, err := o.options.Load(ctx)
	if err != nil {
		return Report{}, err
	}
	if !opts.Valid() {
		return Report{}, fmt.Errorf("flush: %w", remote.ErrMissingConfig)
	}

	pending, err := o.queue.ListPending(ctx)
	if err != nil {
		return Report{}, err
	}

	report := Report{
		Attempted: len(pending),
		Failed:    make(map[string]error),
	}
	if len(pending) == 0 {
		return report, nil
	}

	backend := o.selectBackend(opts)
	o.logger.Printf("Flushing %d queued worklogs via %s backend", len(pending), backend.Name())

	for _, entry := range pending {
		if err := o.flushOne(ctx, backend, opts, entry); err != nil {
			report.Failed[entry.TempID] = err
			if remote.IsAuth(err) {
				report.AuthFailure = true
				o.identities.Invalidate(opts)
			}
			o.logger.Printf("WARNING: failed to sync worklog %s (%s): %v",
				entry.TempID, entry.IssueKey, err)
			continue
		}
		report.Synced = append(report.Synced, entry.TempID)
	}

	if len(report.Synced) > 0 {
		o.invalidateCaches(ctx)
		if o.onDataChanged != nil {
			o.onDataChanged(report)
		}
	}

	o.logger.Printf("Flush complete: synced=%d failed=%d", len(report.Synced), len(report.Failed))
	return report, nil
}

// flushOne pushes a single entry: create when it has no remote identity
// yet, update when it does. Success removes it from the queue.
func (o *Orchestrator) flushOne(ctx context.Context, backend remote.Backend, opts config.Options, entry queue.TemporaryWorklog) error {
	w := remote.Worklog{
		ID:       entry.RemoteID,
		IssueKey: entry.IssueKey,
		Start:    entry.Start,
		End:      entry.End,
		Comment:  entry.Comment,
	}

	var err error
	if entry.RemoteID == "" {
		_, err = backend.WriteWorklog(ctx, opts, w)
	} else {
		_, err = backend.UpdateWorklog(ctx, opts, w)
	}
	if err != nil {
		return err
	}

	if err := o.queue.MarkSynced(ctx, entry.TempID); err != nil {
		return fmt.Errorf("failed to mark %s synced: %w", entry.TempID, err)
	}
	return nil
}

// invalidateCaches marks the issue and statistics caches stale so
// subsequent reads observe the synced state. Invalidation failures are
// logged, not returned: the sync itself already succeeded.
func (o *Orchestrator) invalidateCaches(ctx context.Context) {
	for _, table := range []string{store.TableIssueCache, store.TableStatsCache} {
		if err := o.cache.Invalidate(ctx, table); err != nil {
			o.logger.Printf("WARNING: failed to invalidate %s: %v", table, err)
		}
	}
}

// Queue exposes the orchestrator's queue for enqueue/list callers that
// share its store.
func (o *Orchestrator) Queue() *queue.Queue {
	return o.queue
}

// Cache exposes the orchestrator's cache layer.
func (o *Orchestrator) Cache() *cache.Cache {
	return o.cache
}
