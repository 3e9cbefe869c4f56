package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sync"
	"time"

	_ "github.com/ncruces/go-sqlite3/driver"
	_ "github.com/ncruces/go-sqlite3/embed"
)

// Table names observed by the sync core.
const (
	// TableOptions holds the user configuration object.
	TableOptions = "options"

	// TableIssueCache holds the TTL-cached issue list envelope.
	TableIssueCache = "issuecache"

	// TableStatsCache holds the TTL-cached statistics envelope.
	TableStatsCache = "statscache"

	// TableUpdateQueue holds worklogs not yet confirmed remotely.
	TableUpdateQueue = "updatequeue"
)

// Store is a durable key-value store of named tables, each holding one
// JSON value. It is safe for concurrent use.
type Store struct {
	conn    *sql.DB
	dir     string
	journal string
	logger  *log.Logger

	subsMu  sync.Mutex
	subs    map[string]map[int]func(json.RawMessage)
	nextSub int

	// notifyMu guards the dispatch queue. Dispatch is serialized so
	// listeners observe puts in commit order; a put made from inside a
	// listener enqueues its notification instead of dispatching
	// recursively.
	notifyMu      sync.Mutex
	notifyQueue   []notification
	notifyRunning bool

	versionsMu sync.Mutex
	versions   map[string]int64 // last version dispatched per table

	watcher *journalWatcher
}

// Open opens (creating if needed) the store rooted at dir.
//
// The database is opened in embedded mode with WAL for concurrent reads.
// If logger is nil, a default logger writing to stderr is used.
//
// The caller MUST call Close() when done to ensure proper cleanup.
func Open(dir string, logger *log.Logger) (*Store, error) {
	if logger == nil {
		logger = log.New(os.Stderr, "[store] ", log.LstdFlags)
	}

	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	path := filepath.Join(dir, "timekeep.db")
	conn, err := sql.Open("sqlite3", "file:"+path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := conn.Ping(); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	conn.SetMaxOpenConns(10)
	conn.SetMaxIdleConns(2)
	conn.SetConnMaxLifetime(5 * time.Minute)

	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
	} {
		if _, err := conn.Exec(pragma); err != nil {
			_ = conn.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}

	schema := `
	CREATE TABLE IF NOT EXISTS tables (
		name       TEXT PRIMARY KEY,
		value      TEXT NOT NULL,
		version    INTEGER NOT NULL DEFAULT 1,
		updated_at TEXT NOT NULL
	);
	`
	if _, err := conn.Exec(schema); err != nil {
		_ = conn.Close()
		return nil, fmt.Errorf("failed to initialize schema: %w", err)
	}

	return &Store{
		conn:     conn,
		dir:      dir,
		journal:  filepath.Join(dir, "journal"),
		logger:   logger,
		subs:     make(map[string]map[int]func(json.RawMessage)),
		versions: make(map[string]int64),
	}, nil
}

// Close closes the store and stops the journal watcher if running.
func (s *Store) Close() error {
	if s.watcher != nil {
		if err := s.watcher.stop(); err != nil {
			s.logger.Printf("Error stopping journal watcher: %v", err)
		}
		s.watcher = nil
	}

	if s.conn == nil {
		return nil
	}
	if _, err := s.conn.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		s.logger.Printf("Warning: failed to checkpoint WAL: %v", err)
	}
	if err := s.conn.Close(); err != nil {
		return fmt.Errorf("failed to close database: %w", err)
	}
	s.conn = nil
	return nil
}

// Dir returns the directory the store is rooted at.
func (s *Store) Dir() string {
	return s.dir
}

// Get returns the current value of the table. Absence of a value is not
// an error: ok is false and the returned value is nil.
func (s *Store) Get(ctx context.Context, table string) (json.RawMessage, bool, error) {
	var value string
	err := s.conn.QueryRowContext(ctx,
		"SELECT value FROM tables WHERE name = ?", table).Scan(&value)
	if err == sql.ErrNoRows {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read table %s: %w", table, err)
	}
	return json.RawMessage(value), true, nil
}

// Put replaces the table's value. The value is marshaled to JSON. On
// success the change is journaled for other processes and all local
// subscribers to the table are notified, in commit order.
func (s *Store) Put(ctx context.Context, table string, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value for table %s: %w", table, err)
	}

	query := `
	INSERT INTO tables (name, value, version, updated_at)
	VALUES (?, ?, 1, ?)
	ON CONFLICT(name) DO UPDATE SET
		value = excluded.value,
		version = tables.version + 1,
		updated_at = excluded.updated_at
	RETURNING version
	`

	var version int64
	err = s.conn.QueryRowContext(ctx, query,
		table, string(data), time.Now().UTC().Format(time.RFC3339)).Scan(&version)
	if err != nil {
		return fmt.Errorf("failed to write table %s: %w", table, err)
	}

	s.versionsMu.Lock()
	s.versions[table] = version
	s.versionsMu.Unlock()

	s.touchJournal(table, version)
	s.notify(table, json.RawMessage(data))
	return nil
}

// Delete removes the table's value entirely. Deleting an absent table is
// a no-op. Subscribers are notified with a nil value.
func (s *Store) Delete(ctx context.Context, table string) error {
	res, err := s.conn.ExecContext(ctx, "DELETE FROM tables WHERE name = ?", table)
	if err != nil {
		return fmt.Errorf("failed to delete table %s: %w", table, err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		s.versionsMu.Lock()
		delete(s.versions, table)
		s.versionsMu.Unlock()

		s.touchJournal(table, 0)
		s.notify(table, nil)
	}
	return nil
}

// Subscribe registers a listener for puts to the table. The listener is
// invoked once per committed put with the new value, in commit order.
// Delivery is at-least-once: a listener may see a value it already has
// when puts from another process race with local ones. A listener may
// itself write to the store; the resulting notifications are delivered
// after the in-flight one completes. The returned function removes the
// subscription.
func (s *Store) Subscribe(table string, fn func(json.RawMessage)) func() {
	s.subsMu.Lock()
	defer s.subsMu.Unlock()

	id := s.nextSub
	s.nextSub++

	if s.subs[table] == nil {
		s.subs[table] = make(map[int]func(json.RawMessage))
	}
	s.subs[table][id] = fn

	return func() {
		s.subsMu.Lock()
		defer s.subsMu.Unlock()
		delete(s.subs[table], id)
	}
}

// notification is a queued change event awaiting dispatch.
type notification struct {
	table string
	value json.RawMessage
}

// notify dispatches a change notification to all subscribers of the
// table. Dispatch is serialized so listeners observe changes in commit
// order. When called from inside a listener, the notification is
// enqueued and drained by the dispatch loop already on the stack, so
// listeners can write to the store without deadlocking.
func (s *Store) notify(table string, value json.RawMessage) {
	s.notifyMu.Lock()
	s.notifyQueue = append(s.notifyQueue, notification{table, value})
	if s.notifyRunning {
		s.notifyMu.Unlock()
		return
	}
	s.notifyRunning = true

	for len(s.notifyQueue) > 0 {
		next := s.notifyQueue[0]
		s.notifyQueue = s.notifyQueue[1:]
		s.notifyMu.Unlock()

		s.subsMu.Lock()
		listeners := make([]func(json.RawMessage), 0, len(s.subs[next.table]))
		for _, fn := range s.subs[next.table] {
			listeners = append(listeners, fn)
		}
		s.subsMu.Unlock()

		for _, fn := range listeners {
			fn(next.value)
		}

		s.notifyMu.Lock()
	}
	s.notifyRunning = false
	s.notifyMu.Unlock()
}

// touchJournal records the latest committed put in the journal marker
// file so watchers in other processes pick it up. Journal failures are
// logged, not returned: the local write already committed.
func (s *Store) touchJournal(table string, version int64) {
	line := fmt.Sprintf("%s %d %d\n", table, version, time.Now().UnixNano())
	if err := os.WriteFile(s.journal, []byte(line), 0644); err != nil {
		s.logger.Printf("Warning: failed to write journal: %v", err)
	}
}

// scanVersions reads the current version of every table.
func (s *Store) scanVersions(ctx context.Context) (map[string]int64, error) {
	rows, err := s.conn.QueryContext(ctx, "SELECT name, version FROM tables")
	if err != nil {
		return nil, fmt.Errorf("failed to scan table versions: %w", err)
	}
	defer rows.Close()

	versions := make(map[string]int64)
	for rows.Next() {
		var name string
		var version int64
		if err := rows.Scan(&name, &version); err != nil {
			return nil, fmt.Errorf("failed to scan version row: %w", err)
		}
		versions[name] = version
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating versions: %w", err)
	}
	return versions, nil
}

// GetAs reads the table's value and unmarshals it into T. ok is false
// when the table has no value; zero is returned in that case.
func GetAs[T any](ctx context.Context, s *Store, table string) (T, bool, error) {
	var out T
	raw, ok, err := s.Get(ctx, table)
	if err != nil || !ok {
		return out, false, err
	}
	if err := json.Unmarshal(raw, &out); err != nil {
		return out, false, fmt.Errorf("failed to unmarshal table %s: %w", table, err)
	}
	return out, true, nil
}
