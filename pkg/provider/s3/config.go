// Package s3 implements the store interface for AWS S3 and S3-compatible storage.
//
// Supabase projects expose an S3-compatible endpoint at
// https://<ref>.supabase.co/storage/v1/s3; this store also covers plain AWS
// S3 and stores like MinIO or Wasabi.
package s3

// Config configures an S3 store.
//
// Authentication priority (AWS SDK v2 default chain):
//  1. Explicit AccessKeyID/SecretAccessKey (if provided)
//  2. Environment variables (AWS_ACCESS_KEY_ID, AWS_SECRET_ACCESS_KEY)
//  3. Shared credentials file (~/.aws/credentials)
//  4. Shared config file (~/.aws/config) with profile
//  5. EC2 instance metadata / ECS task role / EKS IRSA
//
// For S3-compatible stores, set Endpoint and typically ForcePathStyle.
type Config struct {
	// Region is the AWS region.
	// For AWS S3: defaults to us-east-1 if not specified via config or environment.
	// For S3-compatible (when Endpoint is set): no default applied.
	Region string

	// Endpoint is a custom endpoint URL for S3-compatible stores.
	// Leave empty for AWS S3.
	// Example: https://abcdefghijklmnop.supabase.co/storage/v1/s3
	Endpoint string

	// Profile is the AWS profile name to use from shared config.
	// Leave empty to use the default profile or environment credentials.
	Profile string

	// AccessKeyID is an explicit access key. If set, SecretAccessKey must also be set.
	// This takes precedence over the default credential chain.
	AccessKeyID string

	// SecretAccessKey is an explicit secret key. Required if AccessKeyID is set.
	SecretAccessKey string

	// ForcePathStyle forces path-style URLs (bucket in path, not subdomain).
	// Required for most S3-compatible stores.
	ForcePathStyle bool

	// MaxKeys is the default page size for ListObjects operations.
	// Zero uses the store default (1000). Values over 1000 are clamped.
	MaxKeys int
}

// DefaultMaxKeys is the default page size for ListObjects operations.
const DefaultMaxKeys = 1000

// MaxAllowedKeys is the maximum page size allowed by S3.
const MaxAllowedKeys = 1000

// DefaultAWSRegion is the fallback region for AWS S3 when not specified.
const DefaultAWSRegion = "us-east-1"

// Validate checks that the configuration is consistent.
func (c *Config) Validate() error {
	// If one explicit credential is set, both must be set
	if (c.AccessKeyID != "") != (c.SecretAccessKey != "") {
		return &ConfigError{
			Field:   "AccessKeyID/SecretAccessKey",
			Message: "both access key ID and secret access key must be provided together",
		}
	}
	return nil
}

// ConfigError represents a configuration validation error.
type ConfigError struct {
	Field   string
	Message string
}

// Error implements the error interface.
func (e *ConfigError) Error() string {
	return "s3 config: " + e.Field + ": " + e.Message
}
