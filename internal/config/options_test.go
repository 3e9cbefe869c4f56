package config

import (
	"bytes"
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mschirtzinger/timekeep/internal/store"
)

func TestNormalizeDefaults(t *testing.T) {
	opts := Normalize(Options{})

	assert.Equal(t, InstanceDatacenter, opts.Instance)
	assert.Equal(t, []int{1, 2, 3, 4, 5}, opts.Days)
	assert.Equal(t, DefaultTheme, opts.Theme)
	assert.NotNil(t, opts.Issues)
	assert.Empty(t, opts.Issues)
	assert.Equal(t, 15, opts.AutosyncMinutes)
	assert.Equal(t, 1, opts.CacheTTLMinutes)
}

func TestNormalizeIdempotent(t *testing.T) {
	cases := []Options{
		{},
		{Instance: InstanceCloud, Domain: "x.example.com", Token: "t"},
		{Days: []int{6, 0}, Theme: "dark", Issues: map[string]Issue{"TK-1": {Key: "TK-1"}}},
	}
	for _, c := range cases {
		once := Normalize(c)
		twice := Normalize(once)
		assert.Equal(t, once, twice)
	}
}

func TestNormalizePreservesExplicitValues(t *testing.T) {
	opts := Normalize(Options{Days: []int{0, 6}, Theme: "dark", AutosyncMinutes: 5})

	assert.Equal(t, []int{0, 6}, opts.Days)
	assert.Equal(t, "dark", opts.Theme)
	assert.Equal(t, 5, opts.AutosyncMinutes)
}

func TestValid(t *testing.T) {
	assert.False(t, Options{}.Valid())
	assert.False(t, Options{Domain: "x"}.Valid())
	assert.True(t, Options{Domain: "x", Token: "t"}.Valid())
	assert.True(t, Options{OfflineMode: true}.Valid())
}

func TestMergeIssuesLocalWins(t *testing.T) {
	opts := Normalize(Options{Issues: map[string]Issue{
		"TK-1": {Key: "TK-1", Name: "Local name", Alias: "ops"},
		"TK-9": {Key: "TK-9", Name: "Pinned only"},
	}})

	fetched := []Issue{
		{Key: "TK-1", Name: "Remote name"},
		{Key: "TK-2", Name: "Remote two"},
	}

	merged := opts.MergeIssues(fetched)
	require.Len(t, merged, 3)
	assert.Equal(t, "Local name", merged[0].Name)
	assert.Equal(t, "Remote two", merged[1].Name)
	assert.Equal(t, "TK-9", merged[2].Key)
}

func TestManagerLifecycle(t *testing.T) {
	st, err := store.Open(t.TempDir(), nil)
	require.NoError(t, err)
	defer st.Close()

	ctx := context.Background()
	m := NewManager(st)

	// Load before any Set returns pure defaults.
	opts, err := m.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, Normalize(Options{}), opts)

	require.NoError(t, m.Merge(ctx, func(o *Options) {
		o.Domain = "tracker.example.com"
		o.Token = "secret"
	}))

	opts, err = m.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, "tracker.example.com", opts.Domain)
	assert.Equal(t, DefaultTheme, opts.Theme)

	require.NoError(t, m.Reset(ctx))
	opts, err = m.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, opts.Domain)
}

func TestManagerSubscribe(t *testing.T) {
	st, err := store.Open(t.TempDir(), nil)
	require.NoError(t, err)
	defer st.Close()

	m := NewManager(st)

	var got Options
	unsub := m.Subscribe(func(o Options) { got = o })
	defer unsub()

	require.NoError(t, m.Set(context.Background(), Options{Domain: "d.example.com"}))
	assert.Equal(t, "d.example.com", got.Domain)
	assert.Equal(t, DefaultTheme, got.Theme)
}

func TestTOMLRoundTrip(t *testing.T) {
	opts := Normalize(Options{
		Instance: InstanceCloud,
		Domain:   "tracker.example.com",
		User:     "dev",
		Token:    "secret",
		Issues: map[string]Issue{
			"TK-1": {ID: "1", Key: "TK-1", Name: "Internal", Color: "#336699"},
		},
	})

	var buf bytes.Buffer
	require.NoError(t, ExportTOML(&buf, opts))

	got, err := ImportTOML(&buf)
	require.NoError(t, err)
	assert.Equal(t, opts, got)
}
