package store

import (
	"context"
	"fmt"
	"sync"

	"github.com/fsnotify/fsnotify"
)

// journalWatcher watches the store's journal marker file and dispatches
// change notifications for tables whose version advanced outside this
// process. It uses fsnotify for cross-platform file event monitoring.
type journalWatcher struct {
	store   *Store
	watcher *fsnotify.Watcher
	done    chan struct{}
	wg      sync.WaitGroup

	mu      sync.Mutex
	running bool
}

// Watch starts observing puts committed by other processes. After Watch
// returns, subscriptions registered on this store also fire for writes
// that originate elsewhere. Watch may be called at most once per store;
// Close stops the watcher.
func (s *Store) Watch(ctx context.Context) error {
	if s.watcher != nil {
		return fmt.Errorf("store already watching")
	}

	// Seed the dispatched-version map so only future changes notify.
	versions, err := s.scanVersions(ctx)
	if err != nil {
		return err
	}
	s.versionsMu.Lock()
	for name, version := range versions {
		if s.versions[name] < version {
			s.versions[name] = version
		}
	}
	s.versionsMu.Unlock()

	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("failed to create fsnotify watcher: %w", err)
	}

	// Watch the directory, not the journal file itself: the journal may
	// not exist yet, and editors/atomic writes replace inodes.
	if err := fsw.Add(s.dir); err != nil {
		_ = fsw.Close()
		return fmt.Errorf("failed to watch store directory %s: %w", s.dir, err)
	}

	jw := &journalWatcher{
		store:   s,
		watcher: fsw,
		done:    make(chan struct{}),
		running: true,
	}
	s.watcher = jw

	jw.wg.Add(1)
	go jw.processEvents()

	return nil
}

// processEvents is the watcher's event loop. Journal writes trigger a
// version re-scan and notification of externally-changed tables.
func (w *journalWatcher) processEvents() {
	defer w.wg.Done()

	for {
		select {
		case <-w.done:
			return

		case event, ok := <-w.watcher.Events:
			if !ok {
				return
			}
			if event.Name != w.store.journal {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) {
				continue
			}
			w.dispatchExternal()

		case err, ok := <-w.watcher.Errors:
			if !ok {
				return
			}
			w.store.logger.Printf("Watcher error: %v", err)
		}
	}
}

// dispatchExternal compares stored versions against the last dispatched
// ones and notifies subscribers for every table that moved. A table
// whose version row vanished was deleted elsewhere; its subscribers are
// notified with nil, matching local Delete, and its dispatched version
// is forgotten so a later re-creation (version restarting at 1)
// notifies again.
func (w *journalWatcher) dispatchExternal() {
	ctx := context.Background()

	versions, err := w.store.scanVersions(ctx)
	if err != nil {
		w.store.logger.Printf("Error scanning versions: %v", err)
		return
	}

	var changed, deleted []string
	w.store.versionsMu.Lock()
	for name, version := range versions {
		if version > w.store.versions[name] {
			w.store.versions[name] = version
			changed = append(changed, name)
		}
	}
	for name := range w.store.versions {
		if _, ok := versions[name]; !ok {
			delete(w.store.versions, name)
			deleted = append(deleted, name)
		}
	}
	w.store.versionsMu.Unlock()

	for _, table := range changed {
		value, ok, err := w.store.Get(ctx, table)
		if err != nil {
			w.store.logger.Printf("Error reading changed table %s: %v", table, err)
			continue
		}
		if !ok {
			continue
		}
		w.store.notify(table, value)
	}
	for _, table := range deleted {
		w.store.notify(table, nil)
	}
}

// stop shuts the watcher down and waits for the event loop to exit.
func (w *journalWatcher) stop() error {
	w.mu.Lock()
	if !w.running {
		w.mu.Unlock()
		return nil
	}
	w.running = false
	w.mu.Unlock()

	close(w.done)
	if err := w.watcher.Close(); err != nil {
		return fmt.Errorf("failed to close watcher: %w", err)
	}
	w.wg.Wait()
	return nil
}
