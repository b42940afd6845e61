// Package config loads CLI configuration: named project aliases and run
// defaults.
//
// Configuration is resolved in order: built-in defaults, then a YAML config
// file, then SUPAMIGRATE_* environment variables. The config file is looked
// up in the working directory and under the user config directory.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-viper/mapstructure/v2"
	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

const (
	// EnvPrefix is the prefix for environment variable overrides.
	EnvPrefix = "SUPAMIGRATE"

	// FileName is the config file base name (supamigrate.yaml).
	FileName = "supamigrate"
)

// Project describes one storage endpoint, referenced by alias.
type Project struct {
	// ProjectRef is the hosted project reference (the subdomain part of
	// the project URL).
	ProjectRef string `mapstructure:"project_ref" yaml:"project_ref,omitempty"`

	// ServiceKey is the service role key. Usually left out of the config
	// file and supplied via environment.
	ServiceKey string `mapstructure:"service_key" yaml:"service_key,omitempty"`

	// APIURL overrides the derived storage endpoint. Useful for
	// self-hosted deployments.
	APIURL string `mapstructure:"api_url" yaml:"api_url,omitempty"`

	// Provider selects the access path: supabase (storage API, default)
	// or s3 (S3-compatible endpoint).
	Provider string `mapstructure:"provider" yaml:"provider,omitempty"`

	S3 S3Settings `mapstructure:"s3" yaml:"s3,omitempty"`
}

// S3Settings configures S3-compatible access for a project.
type S3Settings struct {
	Endpoint        string `mapstructure:"endpoint" yaml:"endpoint,omitempty"`
	Region          string `mapstructure:"region" yaml:"region,omitempty"`
	AccessKeyID     string `mapstructure:"access_key_id" yaml:"access_key_id,omitempty"`
	SecretAccessKey string `mapstructure:"secret_access_key" yaml:"secret_access_key,omitempty"`
	ForcePathStyle  bool   `mapstructure:"force_path_style" yaml:"force_path_style,omitempty"`
}

// Defaults holds run defaults applied when flags are not set.
type Defaults struct {
	OnExists   string `mapstructure:"on_exists" yaml:"on_exists,omitempty"`
	ScratchDir string `mapstructure:"scratch_dir" yaml:"scratch_dir,omitempty"`
	Output     string `mapstructure:"output" yaml:"output,omitempty"`
	LogLevel   string `mapstructure:"log_level" yaml:"log_level,omitempty"`
	PageSize   int    `mapstructure:"page_size" yaml:"page_size,omitempty"`
}

// Config is the full CLI configuration.
type Config struct {
	Defaults Defaults           `mapstructure:"defaults" yaml:"defaults,omitempty"`
	Projects map[string]Project `mapstructure:"projects" yaml:"projects,omitempty"`
}

// ErrNotFound is returned by Resolve for an unknown alias.
var ErrNotFound = errors.New("project alias not found")

// Load reads configuration from the given file path, or from the standard
// search locations when path is empty. A missing config file is not an
// error: defaults and environment variables still apply.
func Load(path string) (*Config, error) {
	// A .env in the working directory seeds missing environment variables.
	// Existing variables always win.
	if _, err := os.Stat(".env"); err == nil {
		_ = gotenv.Load(".env")
	}

	v := viper.New()
	v.SetConfigType("yaml")

	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName(FileName)
		v.AddConfigPath(".")
		if dir, err := os.UserConfigDir(); err == nil {
			v.AddConfigPath(filepath.Join(dir, "supamigrate"))
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)

	// An absent config file is tolerated for the implicit search, but an
	// explicitly requested file must exist.
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) || path != "" {
			return nil, fmt.Errorf("read config: %w", err)
		}
	}

	var cfg Config
	decodeHook := viper.DecodeHook(mapstructure.ComposeDecodeHookFunc(
		mapstructure.StringToTimeDurationHookFunc(),
		mapstructure.StringToSliceHookFunc(","),
	))
	if err := v.Unmarshal(&cfg, decodeHook); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}

	if cfg.Projects == nil {
		cfg.Projects = map[string]Project{}
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("defaults.on_exists", "fail")
	v.SetDefault("defaults.output", "stdout")
	v.SetDefault("defaults.log_level", "info")
	v.SetDefault("defaults.page_size", 100)
}

// Resolve returns the project for an alias. When the name is not a known
// alias it is treated as a bare project ref, with the service key taken
// from the environment.
func (c *Config) Resolve(name string) (Project, error) {
	if p, ok := c.Projects[name]; ok {
		if p.ServiceKey == "" {
			p.ServiceKey = serviceKeyFromEnv(name)
		}
		if p.ProjectRef == "" && p.APIURL == "" {
			p.ProjectRef = name
		}
		return p, nil
	}

	if name == "" {
		return Project{}, ErrNotFound
	}

	// Bare project ref.
	return Project{
		ProjectRef: name,
		ServiceKey: serviceKeyFromEnv(name),
		Provider:   "supabase",
	}, nil
}

// serviceKeyFromEnv looks up a service key for an alias, preferring the
// alias-scoped variable.
func serviceKeyFromEnv(alias string) string {
	scoped := EnvPrefix + "_" + envToken(alias) + "_SERVICE_KEY"
	if v := os.Getenv(scoped); v != "" {
		return v
	}
	return os.Getenv("SUPABASE_SERVICE_KEY")
}

// envToken uppercases an alias and flattens characters that cannot appear
// in environment variable names.
func envToken(alias string) string {
	var b strings.Builder
	for _, r := range strings.ToUpper(alias) {
		switch {
		case r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			b.WriteRune(r)
		default:
			b.WriteByte('_')
		}
	}
	return b.String()
}
