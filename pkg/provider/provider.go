// Package provider defines abstractions for hosted storage backends.
//
// A Store exposes the bucket/object surface a migration needs: bucket
// enumeration and creation plus paged object listing. Authentication is the
// SDK's concern - stores should not implement custom auth logic.
package provider

import (
	"context"
	"io"
	"time"
)

// Store abstracts a storage backend holding named buckets of objects.
//
// Implementations should:
//   - Delegate wire protocol and auth to their SDK
//   - Support pagination via continuation tokens
//   - Be safe for concurrent use
type Store interface {
	// ListBuckets returns all buckets in the project. Ordering is
	// unspecified.
	ListBuckets(ctx context.Context) ([]BucketInfo, error)

	// CreateBucket creates a bucket with the given visibility.
	// Returns ErrBucketExists if a bucket with that name is already present.
	CreateBucket(ctx context.Context, name string, public bool) error

	// ListObjects returns a page of objects in the bucket.
	// Use Token from ListResult for subsequent pages.
	// Returns ErrBucketNotFound if the bucket does not exist.
	ListObjects(ctx context.Context, bucket string, opts ListOptions) (*ListResult, error)

	// Close releases any resources held by the store.
	Close() error
}

// Optional store capability interfaces, detected via type assertions. The
// core Store interface stays intentionally small.

// ObjectGetter can download objects as a stream.
type ObjectGetter interface {
	GetObject(ctx context.Context, bucket, key string) (body io.ReadCloser, contentLength int64, err error)
}

// ObjectPutter can create objects.
//
// Implementations must return ErrObjectExists when the key is already
// present and overwriting was not requested via PutOptions.Overwrite.
type ObjectPutter interface {
	PutObject(ctx context.Context, bucket, key string, body io.Reader, contentLength int64, opts PutOptions) error
}

// ObjectDeleter can delete objects.
type ObjectDeleter interface {
	DeleteObject(ctx context.Context, bucket, key string) error
}

// ObjectStatter can report whether a single object exists.
type ObjectStatter interface {
	// StatObject returns metadata for a single object.
	// Returns ErrNotFound if the object does not exist.
	StatObject(ctx context.Context, bucket, key string) (*ObjectInfo, error)
}

// BucketInfo describes a bucket within a project.
type BucketInfo struct {
	// Name is the bucket name, unique within the project.
	Name string

	// Public reports the bucket's visibility flag.
	Public bool

	// CreatedAt is when the bucket was created, if the backend reports it.
	CreatedAt time.Time
}

// ObjectInfo describes an object within a bucket.
type ObjectInfo struct {
	// Key is the full object path within the bucket.
	Key string

	// Size is the object size in bytes. Negative when unknown.
	Size int64

	// ContentType is the MIME type, if the backend reports it.
	ContentType string

	// LastModified is when the object was last modified.
	LastModified time.Time
}

// ListOptions configures a ListObjects operation.
type ListOptions struct {
	// Prefix filters results to keys starting with this value.
	Prefix string

	// Token resumes listing from a previous ListResult.
	// Empty string starts from the beginning.
	Token string

	// MaxKeys limits the number of objects returned per page.
	// Zero uses the store default.
	MaxKeys int
}

// ListResult contains a page of objects from a ListObjects operation.
type ListResult struct {
	// Objects contains the object descriptors for this page.
	Objects []ObjectInfo

	// Token is used to retrieve the next page.
	// Empty string indicates no more pages.
	Token string

	// IsTruncated indicates whether more results are available.
	IsTruncated bool
}

// PutOptions configures a PutObject operation.
type PutOptions struct {
	// ContentType is the MIME type to record for the object.
	ContentType string

	// Overwrite allows replacing an existing object.
	// When false, PutObject fails with ErrObjectExists on a key collision.
	Overwrite bool
}

// StoreType identifies a storage backend.
type StoreType string

const (
	// StoreSupabase represents the native Supabase Storage API.
	StoreSupabase StoreType = "supabase"

	// StoreS3 represents AWS S3 or an S3-compatible endpoint.
	StoreS3 StoreType = "s3"

	// StoreDir represents a local directory tree.
	StoreDir StoreType = "dir"
)

// String returns the string representation of the store type.
func (s StoreType) String() string {
	return string(s)
}
