package remote

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/hashicorp/go-retryablehttp"

	"github.com/mschirtzinger/timekeep/internal/config"
)

// errConflict marks a 409 response; callers wrap it with the issue key.
type errConflict struct{}

func (errConflict) Error() string { return "conflict" }

// httpAPI implements the Backend contract over a minimal JSON REST
// surface. The cloud and datacenter backends differ only in base URL
// and name; the wire handling is shared here.
type httpAPI struct {
	name string
	base func(opts config.Options) string

	// client overrides the retrying HTTP client in tests; nil means
	// newRetryClient().
	client *retryablehttp.Client
}

// newRetryClient builds the production HTTP client. Transient failures
// (connection errors, 5xx, 429) are retried in-call with backoff; 4xx
// responses come back on the first attempt so the auth and conflict
// mappings below are unaffected.
func newRetryClient() *retryablehttp.Client {
	c := retryablehttp.NewClient()
	c.RetryMax = 2
	c.RetryWaitMin = 250 * time.Millisecond
	c.RetryWaitMax = 2 * time.Second
	c.HTTPClient.Timeout = 30 * time.Second
	c.Logger = nil
	return c
}

func (a *httpAPI) httpClient() *retryablehttp.Client {
	if a.client != nil {
		return a.client
	}
	return newRetryClient()
}

// do performs one JSON request. Missing configuration fails fast with
// ErrMissingConfig. 401/403 map to *AuthError, 409 to errConflict.
func (a *httpAPI) do(ctx context.Context, opts config.Options, method, path string, query url.Values, body, out any) error {
	if opts.Domain == "" || opts.Token == "" {
		return fmt.Errorf("%s %s: %w", method, path, ErrMissingConfig)
	}

	u := a.base(opts) + path
	if len(query) > 0 {
		u += "?" + query.Encode()
	}

	var payload []byte
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		payload = data
	}

	req, err := retryablehttp.NewRequestWithContext(ctx, method, u, payload)
	if err != nil {
		return fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+opts.Token)
	req.Header.Set("Accept", "application/json")
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.httpClient().Do(req)
	if err != nil {
		return fmt.Errorf("request %s %s failed: %w", method, path, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &AuthError{Status: resp.StatusCode}
	case resp.StatusCode == http.StatusConflict:
		return errConflict{}
	case resp.StatusCode >= 400:
		return fmt.Errorf("%s %s: unexpected status %d", method, path, resp.StatusCode)
	}

	if out == nil {
		return nil
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (a *httpAPI) Name() string {
	return a.name
}

func (a *httpAPI) CheckPermissions(ctx context.Context, opts config.Options) bool {
	var result struct {
		WriteWorklogs bool `json:"writeWorklogs"`
	}
	if err := a.do(ctx, opts, http.MethodGet, "/permissions", nil, nil, &result); err != nil {
		return false
	}
	return result.WriteWorklogs
}

func (a *httpAPI) FetchSelf(ctx context.Context, opts config.Options) (Identity, error) {
	var id Identity
	if err := a.do(ctx, opts, http.MethodGet, "/self", nil, nil, &id); err != nil {
		return Identity{}, err
	}
	return id, nil
}

func (a *httpAPI) FetchIssues(ctx context.Context, opts config.Options, query string, limit int) ([]config.Issue, error) {
	q := url.Values{}
	if query != "" {
		q.Set("query", query)
	}
	if limit > 0 {
		q.Set("limit", fmt.Sprint(limit))
	}
	var issues []config.Issue
	if err := a.do(ctx, opts, http.MethodGet, "/issues", q, nil, &issues); err != nil {
		return nil, err
	}
	return issues, nil
}

func (a *httpAPI) SearchIssues(ctx context.Context, opts config.Options, text string) ([]string, error) {
	q := url.Values{"text": {text}}
	var result struct {
		Keys []string `json:"keys"`
	}
	if err := a.do(ctx, opts, http.MethodGet, "/issues/picker", q, nil, &result); err != nil {
		return nil, err
	}
	return result.Keys, nil
}

func (a *httpAPI) FetchWorklogs(ctx context.Context, opts config.Options, start, end time.Time) ([]Worklog, error) {
	q := url.Values{
		"from": {start.Format(time.RFC3339)},
		"to":   {end.Format(time.RFC3339)},
	}
	var worklogs []Worklog
	if err := a.do(ctx, opts, http.MethodGet, "/worklogs", q, nil, &worklogs); err != nil {
		return nil, err
	}
	return worklogs, nil
}

func (a *httpAPI) WriteWorklog(ctx context.Context, opts config.Options, w Worklog) (Worklog, error) {
	var created Worklog
	if err := a.do(ctx, opts, http.MethodPost, "/worklogs", nil, w, &created); err != nil {
		if _, ok := err.(errConflict); ok {
			return Worklog{}, &ConflictError{IssueKey: w.IssueKey}
		}
		return Worklog{}, err
	}
	return created, nil
}

func (a *httpAPI) UpdateWorklog(ctx context.Context, opts config.Options, w Worklog) (Worklog, error) {
	if w.ID == "" {
		return Worklog{}, fmt.Errorf("update of worklog without remote id")
	}
	var updated Worklog
	if err := a.do(ctx, opts, http.MethodPut, "/worklogs/"+url.PathEscape(w.ID), nil, w, &updated); err != nil {
		if _, ok := err.(errConflict); ok {
			return Worklog{}, &ConflictError{IssueKey: w.IssueKey}
		}
		return Worklog{}, err
	}
	return updated, nil
}

func (a *httpAPI) DeleteWorklog(ctx context.Context, opts config.Options, id string) error {
	return a.do(ctx, opts, http.MethodDelete, "/worklogs/"+url.PathEscape(id), nil, nil, nil)
}
