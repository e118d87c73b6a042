package commands

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/leapstack-labs/querymap/internal/cli/config"
	"github.com/leapstack-labs/querymap/internal/testutil"
)

func ordersManifest(t *testing.T) string {
	t.Helper()
	path, err := filepath.Abs(filepath.Join("..", "..", "manifest", "testdata", "orders.yaml"))
	require.NoError(t, err)
	return path
}

// copyManifest copies the orders manifest into a temp dir so tests can
// edit it.
func copyManifest(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(ordersManifest(t))
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "queries.yaml")
	require.NoError(t, os.WriteFile(path, data, 0600))
	return path
}

// newTestContext returns a command context writing to a buffer that is safe
// to read while a watch loop writes to it.
func newTestContext(t *testing.T, manifest string, format string) (*CommandContext, *testutil.LogBuffer) {
	t.Helper()
	out := &testutil.LogBuffer{}
	return &CommandContext{
		Cfg: &config.Config{
			Manifest:     manifest,
			StatePath:    filepath.Join(t.TempDir(), "state.db"),
			Scope:        "test",
			OutputFormat: format,
			Workers:      2,
		},
		Logger: testutil.NewTestLogger(t),
		Out:    out,
		ErrOut: out,
	}, out
}

func TestCommandMetadata(t *testing.T) {
	tests := []struct {
		name  string
		use   string
		build func() (use, short string, lookup func(string) bool)
		flags []string
	}{
		{
			name: "parse",
			use:  "parse [sql]",
			build: func() (string, string, func(string) bool) {
				c := NewParseCommand()
				return c.Use, c.Short, func(f string) bool { return c.Flags().Lookup(f) != nil }
			},
			flags: []string{"callable", "raw"},
		},
		{
			name: "check",
			use:  "check",
			build: func() (string, string, func(string) bool) {
				c := NewCheckCommand()
				return c.Use, c.Short, func(f string) bool { return c.Flags().Lookup(f) != nil }
			},
			flags: []string{"watch", "no-history"},
		},
		{
			name: "history",
			use:  "history",
			build: func() (string, string, func(string) bool) {
				c := NewHistoryCommand()
				return c.Use, c.Short, func(f string) bool { return c.Flags().Lookup(f) != nil }
			},
			flags: []string{"limit"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			use, short, lookup := tt.build()
			assert.Equal(t, tt.use, use)
			assert.NotEmpty(t, short)
			for _, flag := range tt.flags {
				assert.True(t, lookup(flag), "flag %q should exist", flag)
			}
		})
	}
}

func TestGetConfig_Defaults(t *testing.T) {
	config.ResetConfig()
	cfg := getConfig()
	assert.Equal(t, config.DefaultManifest, cfg.Manifest)
	assert.Equal(t, config.DefaultScope, cfg.Scope)
	assert.Equal(t, config.OutputText, cfg.OutputFormat)
	assert.Equal(t, config.DefaultWorkers, cfg.Workers)
}
