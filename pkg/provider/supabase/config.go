// Package supabase implements the store interface for the Supabase Storage API.
package supabase

import "fmt"

// Config configures a Supabase storage store.
//
// Authentication uses the project service role key. The storage endpoint is
// derived from the project ref unless an explicit URL override is given
// (useful for self-hosted stacks and local dev via the Supabase CLI).
type Config struct {
	// ProjectRef is the hosted project reference, e.g. "abcdefghijklmnop".
	// It addresses https://<ref>.supabase.co/storage/v1.
	// Required unless URL is set.
	ProjectRef string

	// ServiceKey is the service role key authorizing privileged storage
	// operations (required).
	ServiceKey string

	// URL overrides the derived storage endpoint.
	// Example: http://localhost:54321/storage/v1
	URL string

	// PageSize is the directory listing page size.
	// Zero uses the store default.
	PageSize int
}

// DefaultPageSize is the default directory listing page size.
const DefaultPageSize = 100

// Validate checks that required configuration is present.
func (c *Config) Validate() error {
	if c.ProjectRef == "" && c.URL == "" {
		return &ConfigError{Field: "ProjectRef", Message: "project ref or URL is required"}
	}
	if c.ServiceKey == "" {
		return &ConfigError{Field: "ServiceKey", Message: "service key is required"}
	}
	return nil
}

// Endpoint returns the storage API base URL for this configuration.
func (c *Config) Endpoint() string {
	if c.URL != "" {
		return c.URL
	}
	return fmt.Sprintf("https://%s.supabase.co/storage/v1", c.ProjectRef)
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "supabase config: " + e.Field + ": " + e.Message
}
