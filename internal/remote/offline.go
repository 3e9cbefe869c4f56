package remote

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/mschirtzinger/timekeep/internal/config"
)

// offlineBackend satisfies the full contract without touching the
// network. Writes resolve against process-local memory, permission
// checks always succeed, and fetches return whatever was written in
// this process.
type offlineBackend struct {
	mu       sync.Mutex
	nextID   int
	worklogs map[string]Worklog
}

var sharedOffline = sync.OnceValue(func() *offlineBackend {
	return newOfflineBackend()
})

// SharedOffline returns the process-wide offline stub so repeated
// selections observe the same locally-resolved worklogs.
func SharedOffline() Backend {
	return sharedOffline()
}

func newOfflineBackend() *offlineBackend {
	return &offlineBackend{worklogs: make(map[string]Worklog)}
}

func (b *offlineBackend) Name() string { return "offline" }

func (b *offlineBackend) CheckPermissions(ctx context.Context, opts config.Options) bool {
	return true
}

func (b *offlineBackend) FetchSelf(ctx context.Context, opts config.Options) (Identity, error) {
	user := opts.User
	if user == "" {
		user = "offline"
	}
	return Identity{User: user, DisplayName: user}, nil
}

func (b *offlineBackend) FetchIssues(ctx context.Context, opts config.Options, query string, limit int) ([]config.Issue, error) {
	return nil, nil
}

func (b *offlineBackend) SearchIssues(ctx context.Context, opts config.Options, text string) ([]string, error) {
	return nil, nil
}

func (b *offlineBackend) FetchWorklogs(ctx context.Context, opts config.Options, start, end time.Time) ([]Worklog, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	var out []Worklog
	for _, w := range b.worklogs {
		if w.Start.Before(start) || w.Start.After(end) {
			continue
		}
		out = append(out, w)
	}
	return out, nil
}

func (b *offlineBackend) WriteWorklog(ctx context.Context, opts config.Options, w Worklog) (Worklog, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.nextID++
	w.ID = fmt.Sprintf("off-%d", b.nextID)
	b.worklogs[w.ID] = w
	return w, nil
}

func (b *offlineBackend) UpdateWorklog(ctx context.Context, opts config.Options, w Worklog) (Worklog, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	if w.ID == "" {
		return Worklog{}, fmt.Errorf("update of worklog without remote id")
	}
	b.worklogs[w.ID] = w
	return w, nil
}

func (b *offlineBackend) DeleteWorklog(ctx context.Context, opts config.Options, id string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.worklogs, id)
	return nil
}

func (b *offlineBackend) Domains(opts config.Options) []string {
	return nil
}
