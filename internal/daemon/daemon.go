// Package daemon provides the long-running background process that
// keeps every timekeep context consistent.
//
// The daemon:
//  1. Hosts the bus hub other contexts connect to
//  2. Executes "flush updates" actions through the sync orchestrator
//  3. Runs the autosync ticker that triggers periodic flushes
//  4. Watches the store journal and rebroadcasts table changes
//  5. Handles graceful shutdown
package daemon

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"os"
	"sync"
	"sync/atomic"
	"time"

	"github.com/mschirtzinger/timekeep/internal/bus"
	"github.com/mschirtzinger/timekeep/internal/config"
	"github.com/mschirtzinger/timekeep/internal/flush"
	"github.com/mschirtzinger/timekeep/internal/remote"
	"github.com/mschirtzinger/timekeep/internal/store"
)

// Config holds configuration for the daemon.
type Config struct {
	// Addr is the bus hub's listen address.
	Addr string

	// AutosyncOverride fixes the flush interval regardless of the
	// stored options. Zero means follow Options.AutosyncMinutes.
	AutosyncOverride time.Duration

	// Logger for daemon activity.
	Logger *log.Logger
}

// DefaultConfig returns sensible defaults.
func DefaultConfig() *Config {
	return &Config{
		Addr:   "127.0.0.1:8991",
		Logger: log.New(os.Stderr, "[daemon] ", log.LstdFlags),
	}
}

// Daemon orchestrates the bus hub, the autosync timer, and store
// change fan-out.
type Daemon struct {
	store   *store.Store
	options *config.Manager
	flusher *flush.Orchestrator
	hub     *bus.Hub
	config  *Config

	// interval is the autosync loop's current period in nanoseconds,
	// kept observable for the loop's own bookkeeping and tests.
	interval atomic.Int64

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New creates a daemon over the shared store. Use Start() to begin.
func New(s *store.Store, cfg *Config) (*Daemon, error) {
	if s == nil {
		return nil, fmt.Errorf("store cannot be nil")
	}
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.Logger == nil {
		cfg.Logger = DefaultConfig().Logger
	}

	ctx, cancel := context.WithCancel(context.Background())

	d := &Daemon{
		store:   s,
		options: config.NewManager(s),
		config:  cfg,
		ctx:     ctx,
		cancel:  cancel,
	}

	d.hub = bus.NewHub(&bus.HubConfig{
		Addr:    cfg.Addr,
		Handler: d.handleAction,
		Logger:  cfg.Logger,
	})

	identities := remote.NewIdentityCache(10 * time.Minute)
	d.flusher = flush.New(s, identities, cfg.Logger,
		flush.WithDataChangedHook(d.onDataChanged))

	return d, nil
}

// Start begins the daemon's operation: it watches the store journal,
// starts the hub, and runs the autosync loop. This blocks until ctx is
// cancelled or the daemon is stopped.
func (d *Daemon) Start(ctx context.Context) error {
	d.config.Logger.Println("Starting daemon")

	if err := d.store.Watch(ctx); err != nil {
		return fmt.Errorf("failed to watch store: %w", err)
	}

	if err := d.hub.Start(); err != nil {
		return fmt.Errorf("failed to start bus hub: %w", err)
	}
	d.config.Logger.Printf("Bus hub on %s", d.hub.Addr())

	// Rebroadcast every table change so connected contexts can re-read
	// without polling.
	for _, table := range []string{
		store.TableOptions,
		store.TableIssueCache,
		store.TableStatsCache,
		store.TableUpdateQueue,
	} {
		table := table
		unsub := d.store.Subscribe(table, func(json.RawMessage) {
			d.hub.Broadcast(bus.Frame{
				Kind:  bus.KindEvent,
				Event: bus.EventTableChanged,
				Table: table,
			})
		})
		defer unsub()
	}

	d.wg.Add(1)
	go d.autosyncLoop()

	select {
	case <-ctx.Done():
		d.config.Logger.Println("Shutdown signal received")
		return d.Stop()
	case <-d.ctx.Done():
		return nil
	}
}

// Stop gracefully shuts the daemon down.
func (d *Daemon) Stop() error {
	d.config.Logger.Println("Stopping daemon")

	d.cancel()
	if err := d.hub.Stop(); err != nil {
		d.config.Logger.Printf("Error stopping hub: %v", err)
	}
	d.wg.Wait()

	d.config.Logger.Println("Daemon stopped")
	return nil
}

// Addr returns the bus hub's listening address.
func (d *Daemon) Addr() string {
	return d.hub.Addr()
}

// handleAction executes bus actions on behalf of other contexts.
func (d *Daemon) handleAction(ctx context.Context, action string) error {
	switch action {
	case bus.ActionFlush:
		report, err := d.flusher.Flush(ctx)
		if err != nil {
			return err
		}
		if report.AuthFailure {
			return fmt.Errorf("authentication failed; re-run setup")
		}
		if !report.Clean() {
			return fmt.Errorf("%d of %d worklogs failed to sync", len(report.Failed), report.Attempted)
		}
		return nil
	default:
		return fmt.Errorf("unknown action %q", action)
	}
}

// onDataChanged broadcasts flush completions to every context.
func (d *Daemon) onDataChanged(report flush.Report) {
	data, err := json.Marshal(map[string]int{
		"synced": len(report.Synced),
		"failed": len(report.Failed),
	})
	if err != nil {
		data = nil
	}
	d.hub.Broadcast(bus.Frame{
		Kind:  bus.KindEvent,
		Event: bus.EventDataChanged,
		Data:  data,
	})
}

// autosyncLoop triggers periodic flushes. Failed entries are not
// retried with backoff; they wait for the next tick or explicit
// trigger. Options changes reset the ticker, so a new autosync
// interval takes effect without a daemon restart.
func (d *Daemon) autosyncLoop() {
	defer d.wg.Done()

	interval := d.autosyncInterval()

	changed := make(chan time.Duration, 1)
	unsub := d.options.Subscribe(func(opts config.Options) {
		next := d.resolveInterval(opts)
		select {
		case <-changed:
		default:
		}
		changed <- next
	})
	defer unsub()

	// Published after the subscription so observers of the interval see
	// a loop that already reacts to options changes.
	d.interval.Store(int64(interval))

	var ticker *time.Ticker
	var tick <-chan time.Time
	if interval > 0 {
		ticker = time.NewTicker(interval)
		tick = ticker.C
	} else {
		d.config.Logger.Println("Autosync disabled")
	}
	defer func() {
		if ticker != nil {
			ticker.Stop()
		}
	}()

	for {
		select {
		case <-d.ctx.Done():
			return

		case next := <-changed:
			if next == interval {
				continue
			}
			interval = next
			d.interval.Store(int64(interval))
			if ticker != nil {
				ticker.Stop()
				ticker, tick = nil, nil
			}
			if interval > 0 {
				ticker = time.NewTicker(interval)
				tick = ticker.C
				d.config.Logger.Printf("Autosync interval now %s", interval)
			} else {
				d.config.Logger.Println("Autosync disabled")
			}

		case <-tick:
			opts, err := d.options.Load(d.ctx)
			if err != nil {
				d.config.Logger.Printf("Error loading options: %v", err)
				continue
			}
			if !opts.Valid() {
				continue
			}
			if n, err := d.flusher.Queue().Len(d.ctx); err != nil || n == 0 {
				continue
			}
			if _, err := d.flusher.Flush(d.ctx); err != nil {
				d.config.Logger.Printf("Autosync flush error: %v", err)
			}
		}
	}
}

// resolveInterval maps options to the autosync period; a fixed
// override in the daemon config wins.
func (d *Daemon) resolveInterval(opts config.Options) time.Duration {
	if d.config.AutosyncOverride > 0 {
		return d.config.AutosyncOverride
	}
	return time.Duration(opts.AutosyncMinutes) * time.Minute
}

func (d *Daemon) autosyncInterval() time.Duration {
	opts, err := d.options.Load(d.ctx)
	if err != nil {
		d.config.Logger.Printf("Error loading options: %v", err)
		opts = config.Normalize(config.Options{})
	}
	return d.resolveInterval(opts)
}
