package remote

import (
	"context"
	"sync"
	"time"

	"github.com/mschirtzinger/timekeep/internal/config"
)

// IdentityCache memoizes FetchSelf results per domain+token with a
// manual expiry. It is an explicit, injected object rather than
// module-level state so it can be scoped and tested in isolation.
type IdentityCache struct {
	mu      sync.Mutex
	ttl     time.Duration
	entries map[string]identityEntry
	now     func() time.Time
}

type identityEntry struct {
	expiry   time.Time
	identity Identity
}

// NewIdentityCache creates a cache with the given entry lifetime.
func NewIdentityCache(ttl time.Duration) *IdentityCache {
	return &IdentityCache{
		ttl:     ttl,
		entries: make(map[string]identityEntry),
		now:     time.Now,
	}
}

func identityKey(opts config.Options) string {
	return opts.Domain + "\x00" + opts.Token
}

// SelfFetcher is the slice of the Backend contract the identity cache
// needs.
type SelfFetcher interface {
	FetchSelf(ctx context.Context, opts config.Options) (Identity, error)
}

// FetchSelf returns the cached identity for the options' credentials,
// fetching through the backend when absent or expired. Fetch errors are
// not cached.
func (c *IdentityCache) FetchSelf(ctx context.Context, b SelfFetcher, opts config.Options) (Identity, error) {
	key := identityKey(opts)

	c.mu.Lock()
	entry, ok := c.entries[key]
	if ok && c.now().Before(entry.expiry) {
		c.mu.Unlock()
		return entry.identity, nil
	}
	c.mu.Unlock()

	identity, err := b.FetchSelf(ctx, opts)
	if err != nil {
		return Identity{}, err
	}

	c.mu.Lock()
	c.entries[key] = identityEntry{
		expiry:   c.now().Add(c.ttl),
		identity: identity,
	}
	c.mu.Unlock()

	return identity, nil
}

// Invalidate drops the cached identity for the options' credentials,
// forcing the next FetchSelf through the backend. Used after an
// authentication failure.
func (c *IdentityCache) Invalidate(opts config.Options) {
	c.mu.Lock()
	delete(c.entries, identityKey(opts))
	c.mu.Unlock()
}
