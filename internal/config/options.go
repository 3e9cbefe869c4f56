// Package config defines the user-facing options for timekeep and their
// store-backed lifecycle.
//
// Options live in the store's options table so every context (CLI,
// daemon) observes updates. All mutation goes through Manager, never
// through in-memory copies.
package config

import (
	"sort"
)

// Instance names accepted by Options.Instance.
const (
	InstanceCloud      = "cloud"
	InstanceDatacenter = "datacenter"
)

// DefaultTheme is the theme resolved when none is configured.
const DefaultTheme = "default"

// Issue identifies a tracker issue worklogs are booked against. Local
// issues configured in Options.Issues take precedence over remote search
// results sharing the same key.
type Issue struct {
	ID    string `json:"id" toml:"id"`
	Key   string `json:"key" toml:"key"`
	Name  string `json:"name" toml:"name"`
	Alias string `json:"alias,omitempty" toml:"alias,omitempty"`
	Color string `json:"color,omitempty" toml:"color,omitempty"`
}

// Options is the process-wide configuration. Load it through Manager;
// Normalize fills every missing field so consumers never see zero holes.
type Options struct {
	// Instance selects the remote deployment flavor: "cloud" or
	// "datacenter". Anything other than "cloud" is treated as
	// datacenter by the backend selector.
	Instance string `json:"instance" toml:"instance"`

	// Domain is the tracker host, e.g. "tracker.example.com".
	Domain string `json:"domain" toml:"domain"`

	// User is the account identifier used for worklog attribution.
	User string `json:"user" toml:"user"`

	// Token authenticates remote calls.
	Token string `json:"token" toml:"token"`

	// OfflineMode forces the offline stub backend; no network calls
	// are made while set.
	OfflineMode bool `json:"offlineMode" toml:"offline_mode"`

	// AutosyncMinutes is the daemon's flush interval. Zero disables
	// the autosync ticker.
	AutosyncMinutes int `json:"autosyncMinutes" toml:"autosync_minutes"`

	// CacheTTLMinutes is the staleness horizon for the issue and
	// statistics caches.
	CacheTTLMinutes int `json:"cacheTtlMinutes" toml:"cache_ttl_minutes"`

	// Days are the tracked weekdays (time.Weekday values).
	Days []int `json:"days" toml:"days"`

	// Theme names the UI theme.
	Theme string `json:"theme" toml:"theme"`

	// Issues are locally-pinned issues keyed by issue key.
	Issues map[string]Issue `json:"issues" toml:"issues"`
}

// Normalize returns o with every missing field filled with its default.
// It is idempotent: Normalize(Normalize(o)) equals Normalize(o).
func Normalize(o Options) Options {
	if o.Instance == "" {
		o.Instance = InstanceDatacenter
	}
	if o.AutosyncMinutes <= 0 {
		o.AutosyncMinutes = 15
	}
	if o.CacheTTLMinutes <= 0 {
		o.CacheTTLMinutes = 1
	}
	if o.Days == nil {
		o.Days = []int{1, 2, 3, 4, 5}
	}
	if o.Theme == "" {
		o.Theme = DefaultTheme
	}
	if o.Issues == nil {
		o.Issues = map[string]Issue{}
	}
	return o
}

// Valid reports whether the options carry the configuration required for
// network-touching remote calls. Offline mode is always valid.
func (o Options) Valid() bool {
	if o.OfflineMode {
		return true
	}
	return o.Domain != "" && o.Token != ""
}

// SortedIssueKeys returns the keys of o.Issues in stable order.
func (o Options) SortedIssueKeys() []string {
	keys := make([]string, 0, len(o.Issues))
	for k := range o.Issues {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// MergeIssues overlays locally-pinned issues onto a fetched list. Local
// entries win for colliding keys and are appended when absent.
func (o Options) MergeIssues(fetched []Issue) []Issue {
	merged := make([]Issue, 0, len(fetched)+len(o.Issues))
	seen := make(map[string]bool, len(fetched))

	for _, issue := range fetched {
		if local, ok := o.Issues[issue.Key]; ok {
			merged = append(merged, local)
		} else {
			merged = append(merged, issue)
		}
		seen[issue.Key] = true
	}
	for _, key := range o.SortedIssueKeys() {
		if !seen[key] {
			merged = append(merged, o.Issues[key])
		}
	}
	return merged
}
