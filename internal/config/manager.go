package config

import (
	"context"
	"encoding/json"
	"fmt"
	"io"

	"github.com/BurntSushi/toml"

	"github.com/mschirtzinger/timekeep/internal/store"
)

// Manager reads and writes Options through the store so every context
// observes updates.
type Manager struct {
	store *store.Store
}

// NewManager creates a Manager over the given store.
func NewManager(s *store.Store) *Manager {
	return &Manager{store: s}
}

// Load returns the current normalized options. An absent options table
// yields pure defaults, not an error.
func (m *Manager) Load(ctx context.Context) (Options, error) {
	opts, _, err := store.GetAs[Options](ctx, m.store, store.TableOptions)
	if err != nil {
		return Options{}, fmt.Errorf("failed to load options: %w", err)
	}
	return Normalize(opts), nil
}

// Set replaces the stored options with the normalized value.
func (m *Manager) Set(ctx context.Context, opts Options) error {
	if err := m.store.Put(ctx, store.TableOptions, Normalize(opts)); err != nil {
		return fmt.Errorf("failed to store options: %w", err)
	}
	return nil
}

// Merge loads the current options, applies fn to them, and stores the
// result. The whole value is replaced; there is no partial patch at the
// store layer.
func (m *Manager) Merge(ctx context.Context, fn func(*Options)) error {
	opts, err := m.Load(ctx)
	if err != nil {
		return err
	}
	fn(&opts)
	return m.Set(ctx, opts)
}

// Reset restores pure defaults.
func (m *Manager) Reset(ctx context.Context) error {
	return m.Set(ctx, Options{})
}

// Subscribe registers a listener invoked with the normalized options on
// every options change, including changes from other processes once the
// store is watching. The returned function removes the subscription.
func (m *Manager) Subscribe(fn func(Options)) func() {
	return m.store.Subscribe(store.TableOptions, func(raw json.RawMessage) {
		var opts Options
		if raw != nil {
			if err := json.Unmarshal(raw, &opts); err != nil {
				return
			}
		}
		fn(Normalize(opts))
	})
}

// ExportTOML writes the options as TOML.
func ExportTOML(w io.Writer, opts Options) error {
	if err := toml.NewEncoder(w).Encode(Normalize(opts)); err != nil {
		return fmt.Errorf("failed to encode options: %w", err)
	}
	return nil
}

// ImportTOML parses options from TOML and normalizes them.
func ImportTOML(r io.Reader) (Options, error) {
	var opts Options
	if _, err := toml.NewDecoder(r).Decode(&opts); err != nil {
		return Options{}, fmt.Errorf("failed to decode options: %w", err)
	}
	return Normalize(opts), nil
}
