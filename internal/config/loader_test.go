package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleConfig = `
defaults:
  on_exists: skip
  log_level: debug
projects:
  prod:
    project_ref: abcdefghijklmnop
    service_key: prod-key
  staging:
    project_ref: qrstuvwxyz123456
  selfhosted:
    api_url: https://storage.internal.example.com/storage/v1
    service_key: internal-key
  archive:
    provider: s3
    s3:
      endpoint: https://minio.example.com
      region: us-east-1
      access_key_id: minio
      secret_access_key: minio-secret
      force_path_style: true
`

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "supamigrate.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoad_Defaults(t *testing.T) {
	// No config file anywhere near the temp working dir.
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)

	assert.Equal(t, "fail", cfg.Defaults.OnExists)
	assert.Equal(t, "stdout", cfg.Defaults.Output)
	assert.Equal(t, "info", cfg.Defaults.LogLevel)
	assert.Equal(t, 100, cfg.Defaults.PageSize)
	assert.Empty(t, cfg.Projects)
}

func TestLoad_File(t *testing.T) {
	path := writeConfig(t, sampleConfig)

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "skip", cfg.Defaults.OnExists)
	assert.Equal(t, "debug", cfg.Defaults.LogLevel)

	require.Contains(t, cfg.Projects, "prod")
	assert.Equal(t, "abcdefghijklmnop", cfg.Projects["prod"].ProjectRef)
	assert.Equal(t, "prod-key", cfg.Projects["prod"].ServiceKey)

	require.Contains(t, cfg.Projects, "archive")
	assert.Equal(t, "s3", cfg.Projects["archive"].Provider)
	assert.Equal(t, "https://minio.example.com", cfg.Projects["archive"].S3.Endpoint)
	assert.True(t, cfg.Projects["archive"].S3.ForcePathStyle)
}

func TestLoad_ExplicitFileMissing(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}

func TestLoad_EnvOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SUPAMIGRATE_DEFAULTS_ON_EXISTS", "overwrite")

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "overwrite", cfg.Defaults.OnExists)
}

func TestLoad_DotEnv(t *testing.T) {
	t.Chdir(t.TempDir())
	require.NoError(t, os.WriteFile(".env", []byte("SUPAMIGRATE_DEFAULTS_PAGE_SIZE=42\n"), 0o600))
	t.Cleanup(func() { _ = os.Unsetenv("SUPAMIGRATE_DEFAULTS_PAGE_SIZE") })

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, 42, cfg.Defaults.PageSize)
}

func TestLoad_DotEnvDoesNotOverride(t *testing.T) {
	t.Chdir(t.TempDir())
	t.Setenv("SUPAMIGRATE_DEFAULTS_ON_EXISTS", "overwrite")
	require.NoError(t, os.WriteFile(".env", []byte("SUPAMIGRATE_DEFAULTS_ON_EXISTS=skip\n"), 0o600))

	cfg, err := Load("")
	require.NoError(t, err)
	assert.Equal(t, "overwrite", cfg.Defaults.OnExists)
}

func TestResolve_Alias(t *testing.T) {
	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	p, err := cfg.Resolve("prod")
	require.NoError(t, err)
	assert.Equal(t, "abcdefghijklmnop", p.ProjectRef)
	assert.Equal(t, "prod-key", p.ServiceKey)
}

func TestResolve_AliasKeyFromEnv(t *testing.T) {
	t.Setenv("SUPAMIGRATE_STAGING_SERVICE_KEY", "env-key")

	cfg, err := Load(writeConfig(t, sampleConfig))
	require.NoError(t, err)

	p, err := cfg.Resolve("staging")
	require.NoError(t, err)
	assert.Equal(t, "qrstuvwxyz123456", p.ProjectRef)
	assert.Equal(t, "env-key", p.ServiceKey)
}

func TestResolve_BareRef(t *testing.T) {
	t.Setenv("SUPABASE_SERVICE_KEY", "fallback-key")

	cfg := &Config{Projects: map[string]Project{}}
	p, err := cfg.Resolve("zyxwvutsrqponmlk")
	require.NoError(t, err)
	assert.Equal(t, "zyxwvutsrqponmlk", p.ProjectRef)
	assert.Equal(t, "fallback-key", p.ServiceKey)
	assert.Equal(t, "supabase", p.Provider)
}

func TestResolve_Empty(t *testing.T) {
	cfg := &Config{Projects: map[string]Project{}}
	_, err := cfg.Resolve("")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestEnvToken(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"prod", "PROD"},
		{"my-project", "MY_PROJECT"},
		{"a.b c", "A_B_C"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, envToken(tt.in))
	}
}

func TestSaveAndLoadFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nested", "supamigrate.yaml")

	cfg := &Config{
		Defaults: Defaults{OnExists: "skip"},
		Projects: map[string]Project{
			"prod": {ProjectRef: "abcdefghijklmnop", ServiceKey: "secret"},
		},
	}
	require.NoError(t, Save(path, cfg))

	info, err := os.Stat(path)
	require.NoError(t, err)
	assert.Equal(t, os.FileMode(0o600), info.Mode().Perm())

	loaded, err := LoadFile(path)
	require.NoError(t, err)
	assert.Equal(t, cfg.Defaults.OnExists, loaded.Defaults.OnExists)
	assert.Equal(t, cfg.Projects["prod"], loaded.Projects["prod"])
}

func TestLoadFile_Missing(t *testing.T) {
	cfg, err := LoadFile(filepath.Join(t.TempDir(), "absent.yaml"))
	require.NoError(t, err)
	assert.Empty(t, cfg.Projects)
}
