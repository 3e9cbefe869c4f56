// Package remote defines the uniform contract against the remote worklog
// service and its three implementations: cloud, datacenter (self-hosted),
// and an offline stub.
//
// Backends are selected per call from the current options:
//
//  1. OfflineMode set        → offline stub (no network)
//  2. Instance == "cloud"    → cloud backend
//  3. otherwise              → datacenter backend
//
// All network-touching methods fail with ErrMissingConfig when the
// required configuration (domain, token) is absent. Callers should check
// Options.Valid() first; a call made with invalid configuration is a
// programming error, not a transient failure.
package remote

import (
	"context"
	"time"

	"github.com/mschirtzinger/timekeep/internal/config"
)

// Worklog is a time entry as known to the remote service. ID is empty
// for entries that only exist locally.
type Worklog struct {
	ID       string    `json:"id,omitempty"`
	IssueKey string    `json:"issue"`
	Start    time.Time `json:"start"`
	End      time.Time `json:"end"`
	Comment  string    `json:"comment,omitempty"`
}

// Duration returns the logged span.
func (w Worklog) Duration() time.Duration {
	return w.End.Sub(w.Start)
}

// Identity describes the authenticated account.
type Identity struct {
	User         string `json:"user"`
	DisplayName  string `json:"displayName"`
	EmailAddress string `json:"emailAddress"`
}

// Backend is the uniform contract every deployment flavor implements.
//
// CheckPermissions never returns an error; any failure is reported as
// false. FetchSelf fails with an *AuthError when credentials are invalid
// or expired so callers can distinguish "retry token" from generic
// failure.
type Backend interface {
	// Name identifies the backend flavor: "cloud", "datacenter", "offline".
	Name() string

	CheckPermissions(ctx context.Context, opts config.Options) bool
	FetchSelf(ctx context.Context, opts config.Options) (Identity, error)

	FetchIssues(ctx context.Context, opts config.Options, query string, limit int) ([]config.Issue, error)
	SearchIssues(ctx context.Context, opts config.Options, text string) ([]string, error)

	FetchWorklogs(ctx context.Context, opts config.Options, start, end time.Time) ([]Worklog, error)
	WriteWorklog(ctx context.Context, opts config.Options, w Worklog) (Worklog, error)
	UpdateWorklog(ctx context.Context, opts config.Options, w Worklog) (Worklog, error)
	DeleteWorklog(ctx context.Context, opts config.Options, id string) error

	// Domains returns the origins the backend needs access to. This is
	// not a network call.
	Domains(opts config.Options) []string
}

// Select returns the backend for the given options. The precedence is
// fixed: offline mode wins, then the cloud instance, then datacenter.
func Select(opts config.Options) Backend {
	switch {
	case opts.OfflineMode:
		return SharedOffline()
	case opts.Instance == config.InstanceCloud:
		return newCloudBackend()
	default:
		return newDatacenterBackend()
	}
}
