package provider

import (
	"errors"
	"fmt"
)

// Sentinel errors for store operations.
var (
	// ErrNotFound indicates the requested object does not exist.
	ErrNotFound = errors.New("object not found")

	// ErrBucketNotFound indicates the bucket does not exist.
	ErrBucketNotFound = errors.New("bucket not found")

	// ErrBucketExists indicates a bucket with that name is already present.
	ErrBucketExists = errors.New("bucket already exists")

	// ErrObjectExists indicates an object with that key is already present.
	ErrObjectExists = errors.New("object already exists")

	// ErrAccessDenied indicates insufficient permissions.
	ErrAccessDenied = errors.New("access denied")

	// ErrInvalidCredentials indicates authentication failed.
	ErrInvalidCredentials = errors.New("invalid credentials")

	// ErrStoreUnavailable indicates the backend service is unavailable or
	// unreachable (transient network failure included).
	ErrStoreUnavailable = errors.New("store unavailable")
)

// StoreError wraps backend-specific errors with context.
type StoreError struct {
	// Op is the operation that failed (e.g., "ListBuckets", "PutObject").
	Op string

	// Store is the backend type (e.g., "supabase", "s3").
	Store StoreType

	// Bucket is the bucket name, if applicable.
	Bucket string

	// Key is the object key, if applicable.
	Key string

	// Err is the underlying error.
	Err error
}

// Error implements the error interface.
func (e *StoreError) Error() string {
	if e.Key != "" {
		return fmt.Sprintf("%s %s: %s/%s: %v", e.Store, e.Op, e.Bucket, e.Key, e.Err)
	}
	if e.Bucket != "" {
		return fmt.Sprintf("%s %s: %s: %v", e.Store, e.Op, e.Bucket, e.Err)
	}
	return fmt.Sprintf("%s %s: %v", e.Store, e.Op, e.Err)
}

// Unwrap returns the underlying error for errors.Is/As support.
func (e *StoreError) Unwrap() error {
	return e.Err
}

// IsNotFound returns true if the error indicates an object was not found.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsBucketNotFound returns true if the error indicates the bucket does not exist.
func IsBucketNotFound(err error) bool {
	return errors.Is(err, ErrBucketNotFound)
}

// IsBucketExists returns true if the error indicates the bucket is already present.
func IsBucketExists(err error) bool {
	return errors.Is(err, ErrBucketExists)
}

// IsObjectExists returns true if the error indicates the object key is taken.
func IsObjectExists(err error) bool {
	return errors.Is(err, ErrObjectExists)
}

// IsAccessDenied returns true if the error indicates insufficient permissions.
func IsAccessDenied(err error) bool {
	return errors.Is(err, ErrAccessDenied)
}

// IsInvalidCredentials returns true if the error indicates authentication failed.
func IsInvalidCredentials(err error) bool {
	return errors.Is(err, ErrInvalidCredentials)
}

// IsStoreUnavailable returns true if the error indicates the backend is unreachable.
func IsStoreUnavailable(err error) bool {
	return errors.Is(err, ErrStoreUnavailable)
}
