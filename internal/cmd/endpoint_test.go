package cmd

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supamigrate/supamigrate/internal/config"
)

func withTestConfig(t *testing.T, cfg *config.Config) {
	t.Helper()
	orig := cliConfig
	cliConfig = cfg
	t.Cleanup(func() { cliConfig = orig })
}

func TestCreateStore_Dir(t *testing.T) {
	withTestConfig(t, &config.Config{Projects: map[string]config.Project{}})

	root := t.TempDir()
	store, err := createStore(context.Background(), dirScheme+root)
	require.NoError(t, err)
	defer func() { _ = store.Close() }()

	buckets, err := store.ListBuckets(context.Background())
	require.NoError(t, err)
	assert.Empty(t, buckets)
}

func TestCreateStore_SupabaseAlias(t *testing.T) {
	withTestConfig(t, &config.Config{
		Defaults: config.Defaults{PageSize: 100},
		Projects: map[string]config.Project{
			"prod": {ProjectRef: "abcdefghijklmnop", ServiceKey: "service-key"},
		},
	})

	store, err := createStore(context.Background(), "prod")
	require.NoError(t, err)
	assert.NoError(t, store.Close())
}

func TestCreateStore_SupabaseMissingKey(t *testing.T) {
	withTestConfig(t, &config.Config{
		Projects: map[string]config.Project{
			"prod": {ProjectRef: "abcdefghijklmnop"},
		},
	})

	_, err := createStore(context.Background(), "prod")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "service key")
}

func TestCreateStore_UnknownProvider(t *testing.T) {
	withTestConfig(t, &config.Config{
		Projects: map[string]config.Project{
			"weird": {ProjectRef: "abcdefghijklmnop", Provider: "ftp"},
		},
	})

	_, err := createStore(context.Background(), "weird")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown provider")
}
