// Package cache layers time-to-live read-through semantics over single
// store tables.
//
// Each cached table holds an envelope {validUntil, data}. Data is stale
// iff now is past validUntil; a missing envelope is always stale. Reads
// serve cached data without fetching while fresh, fetch through on
// staleness, and keep last-known-good data when a fetch fails.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/mschirtzinger/timekeep/internal/store"
)

// Envelope wraps cached data with its staleness horizon.
type Envelope struct {
	ValidUntil time.Time       `json:"validUntil"`
	Data       json.RawMessage `json:"data"`
}

// Fresh reports whether the envelope's data is still valid at t.
func (e Envelope) Fresh(t time.Time) bool {
	return t.Before(e.ValidUntil)
}

// FetchFunc produces a fresh value for a cached table. The result is
// marshaled to JSON and persisted in a new envelope.
type FetchFunc func(ctx context.Context) (any, error)

// Result is the outcome of a cache read.
type Result struct {
	// Data is the served value: freshly fetched, cached, or the
	// caller's initial value when nothing else exists.
	Data json.RawMessage

	// Stale is true when Data predates the staleness horizon, i.e. a
	// needed fetch failed or was never attempted.
	Stale bool

	// FetchErr is set when a fetch failed but cached data was served
	// in its place.
	FetchErr error
}

// Decode unmarshals the served data into out.
func (r Result) Decode(out any) error {
	if r.Data == nil {
		return fmt.Errorf("no cached data")
	}
	if err := json.Unmarshal(r.Data, out); err != nil {
		return fmt.Errorf("failed to decode cached data: %w", err)
	}
	return nil
}

// Cache provides TTL reads over store tables. It owns no durable state
// of its own; envelopes live in the store so other contexts observe
// refreshes.
type Cache struct {
	store *store.Store
	now   func() time.Time

	mu     sync.Mutex
	tables map[string]*sync.Mutex
}

// New creates a cache over the given store.
func New(s *store.Store) *Cache {
	return &Cache{
		store:  s,
		now:    time.Now,
		tables: make(map[string]*sync.Mutex),
	}
}

// tableLock serializes reads of one table so overlapping stale reads
// fetch at most once.
func (c *Cache) tableLock(table string) *sync.Mutex {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.tables[table] == nil {
		c.tables[table] = &sync.Mutex{}
	}
	return c.tables[table]
}

func (c *Cache) envelope(ctx context.Context, table string) (Envelope, bool, error) {
	return store.GetAs[Envelope](ctx, c.store, table)
}

// Read returns the table's data, fetching through fetch when the
// envelope is absent or stale. A fetch failure with cached data present
// serves the cached data and reports the error in Result.FetchErr; with
// no cached data at all, initial is served and the error returned.
func (c *Cache) Read(ctx context.Context, table string, ttl time.Duration, fetch FetchFunc, initial any) (Result, error) {
	lock := c.tableLock(table)
	lock.Lock()
	defer lock.Unlock()

	env, ok, err := c.envelope(ctx, table)
	if err != nil {
		return Result{}, err
	}
	if ok && env.Fresh(c.now()) {
		return Result{Data: env.Data}, nil
	}
	return c.fetchLocked(ctx, table, ttl, fetch, initial, env, ok)
}

// ForceFetch bypasses the staleness check: fetch always runs and the
// envelope is always rewritten on success. Failure behaves like Read's.
func (c *Cache) ForceFetch(ctx context.Context, table string, ttl time.Duration, fetch FetchFunc, initial any) (Result, error) {
	lock := c.tableLock(table)
	lock.Lock()
	defer lock.Unlock()

	env, ok, err := c.envelope(ctx, table)
	if err != nil {
		return Result{}, err
	}
	return c.fetchLocked(ctx, table, ttl, fetch, initial, env, ok)
}

func (c *Cache) fetchLocked(ctx context.Context, table string, ttl time.Duration, fetch FetchFunc, initial any, env Envelope, cached bool) (Result, error) {
	value, err := fetch(ctx)
	if err != nil {
		if cached {
			// Keep the existing envelope untouched; serve what we have.
			return Result{Data: env.Data, Stale: true, FetchErr: err}, nil
		}
		data, merr := json.Marshal(initial)
		if merr != nil {
			return Result{}, fmt.Errorf("failed to marshal initial value: %w", merr)
		}
		return Result{Data: data, Stale: true, FetchErr: err}, err
	}

	data, err := json.Marshal(value)
	if err != nil {
		return Result{}, fmt.Errorf("failed to marshal fetched value: %w", err)
	}
	fresh := Envelope{ValidUntil: c.now().Add(ttl), Data: data}
	if err := c.store.Put(ctx, table, fresh); err != nil {
		return Result{}, err
	}
	return Result{Data: data}, nil
}

// IsStale reports whether the table's data is past its horizon. A
// missing envelope is always stale.
func (c *Cache) IsStale(ctx context.Context, table string) (bool, error) {
	env, ok, err := c.envelope(ctx, table)
	if err != nil {
		return false, err
	}
	return !ok || !env.Fresh(c.now()), nil
}

// Invalidate marks the table stale without discarding its data, so the
// next Read fetches while readers in the meantime still see the old
// value.
func (c *Cache) Invalidate(ctx context.Context, table string) error {
	env, ok, err := c.envelope(ctx, table)
	if err != nil || !ok {
		return err
	}
	env.ValidUntil = time.Time{}
	return c.store.Put(ctx, table, env)
}

// Update replaces the cached data in place without touching the
// staleness horizon. A missing envelope is created already-stale so the
// next read still fetches.
func (c *Cache) Update(ctx context.Context, table string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}

	env, _, err := c.envelope(ctx, table)
	if err != nil {
		return err
	}
	env.Data = data
	return c.store.Put(ctx, table, env)
}
