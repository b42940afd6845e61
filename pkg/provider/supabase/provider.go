package supabase

import (
	"bytes"
	"context"
	"io"
	"path"
	"strings"
	"time"

	storage "github.com/supabase-community/storage-go"

	"github.com/supamigrate/supamigrate/pkg/provider"
)

// Store implements provider.Store against the Supabase Storage API.
//
// The storage-go SDK carries the wire protocol; this type maps its surface
// onto the store contract and normalizes its errors to provider sentinels.
type Store struct {
	client   *storage.Client
	pageSize int
}

// Ensure Store implements the store capability interfaces.
var (
	_ provider.Store         = (*Store)(nil)
	_ provider.ObjectGetter  = (*Store)(nil)
	_ provider.ObjectPutter  = (*Store)(nil)
	_ provider.ObjectDeleter = (*Store)(nil)
	_ provider.ObjectStatter = (*Store)(nil)
)

// New creates a Supabase storage store bound to one project.
func New(cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	pageSize := cfg.PageSize
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	return &Store{
		client:   storage.NewClient(cfg.Endpoint(), cfg.ServiceKey, nil),
		pageSize: pageSize,
	}, nil
}

// Close releases any resources held by the store.
// The storage client doesn't require explicit cleanup, but this satisfies the interface.
func (s *Store) Close() error {
	return nil
}

// ListBuckets returns all buckets in the project.
func (s *Store) ListBuckets(ctx context.Context) ([]provider.BucketInfo, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	buckets, err := s.client.ListBuckets()
	if err != nil {
		return nil, s.wrapError("ListBuckets", "", "", err)
	}

	infos := make([]provider.BucketInfo, 0, len(buckets))
	for _, b := range buckets {
		infos = append(infos, provider.BucketInfo{
			Name:      b.Name,
			Public:    b.Public,
			CreatedAt: parseTimestamp(b.CreatedAt),
		})
	}
	return infos, nil
}

// CreateBucket creates a bucket with the given visibility.
func (s *Store) CreateBucket(ctx context.Context, name string, public bool) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	_, err := s.client.CreateBucket(name, storage.BucketOptions{Public: public})
	if err != nil {
		return s.wrapError("CreateBucket", name, "", err)
	}
	return nil
}

// ListObjects returns the objects in a bucket.
//
// The storage API lists one directory level at a time, so this walks the
// bucket depth-first (each directory paged internally) and returns the full
// listing as a single page. Token is ignored and IsTruncated is never set.
func (s *Store) ListObjects(ctx context.Context, bucket string, opts provider.ListOptions) (*provider.ListResult, error) {
	var objects []provider.ObjectInfo
	if err := s.walkDir(ctx, bucket, strings.Trim(opts.Prefix, "/"), &objects); err != nil {
		return nil, err
	}
	return &provider.ListResult{Objects: objects}, nil
}

// walkDir appends all objects under dir, descending into sub-directories.
// Directory placeholder entries carry no object ID.
func (s *Store) walkDir(ctx context.Context, bucket, dir string, out *[]provider.ObjectInfo) error {
	offset := 0
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		entries, err := s.client.ListFiles(bucket, dir, storage.FileSearchOptions{
			Limit:  s.pageSize,
			Offset: offset,
		})
		if err != nil {
			return s.wrapError("ListObjects", bucket, dir, err)
		}

		for _, e := range entries {
			full := path.Join(dir, e.Name)
			if e.Id == "" {
				if err := s.walkDir(ctx, bucket, full, out); err != nil {
					return err
				}
				continue
			}
			*out = append(*out, provider.ObjectInfo{
				Key:          full,
				Size:         metadataSize(e.Metadata),
				ContentType:  metadataString(e.Metadata, "mimetype"),
				LastModified: parseTimestamp(e.UpdatedAt),
			})
		}

		if len(entries) < s.pageSize {
			return nil
		}
		offset += len(entries)
	}
}

// GetObject downloads an object.
//
// The SDK buffers the object in memory; callers receive a reader over that
// buffer with its exact length.
func (s *Store) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, int64, error) {
	if err := ctx.Err(); err != nil {
		return nil, 0, err
	}

	data, err := s.client.DownloadFile(bucket, key)
	if err != nil {
		return nil, 0, s.wrapError("GetObject", bucket, key, err)
	}
	return io.NopCloser(bytes.NewReader(data)), int64(len(data)), nil
}

// PutObject uploads an object.
func (s *Store) PutObject(ctx context.Context, bucket, key string, body io.Reader, contentLength int64, opts provider.PutOptions) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	_ = contentLength

	fileOpts := storage.FileOptions{}
	if opts.ContentType != "" {
		ct := opts.ContentType
		fileOpts.ContentType = &ct
	}
	if opts.Overwrite {
		upsert := true
		fileOpts.Upsert = &upsert
	}

	if _, err := s.client.UploadFile(bucket, key, body, fileOpts); err != nil {
		return s.wrapError("PutObject", bucket, key, err)
	}
	return nil
}

// DeleteObject deletes an object.
func (s *Store) DeleteObject(ctx context.Context, bucket, key string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	if _, err := s.client.RemoveFile(bucket, []string{key}); err != nil {
		return s.wrapError("DeleteObject", bucket, key, err)
	}
	return nil
}

// StatObject reports metadata for a single object.
//
// The storage API has no head endpoint, so this lists the parent directory
// and scans for the key's base name.
func (s *Store) StatObject(ctx context.Context, bucket, key string) (*provider.ObjectInfo, error) {
	key = strings.Trim(key, "/")
	dir := path.Dir(key)
	if dir == "." {
		dir = ""
	}
	base := path.Base(key)

	offset := 0
	for {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		entries, err := s.client.ListFiles(bucket, dir, storage.FileSearchOptions{
			Limit:  s.pageSize,
			Offset: offset,
		})
		if err != nil {
			return nil, s.wrapError("StatObject", bucket, key, err)
		}

		for _, e := range entries {
			if e.Name == base && e.Id != "" {
				return &provider.ObjectInfo{
					Key:          key,
					Size:         metadataSize(e.Metadata),
					ContentType:  metadataString(e.Metadata, "mimetype"),
					LastModified: parseTimestamp(e.UpdatedAt),
				}, nil
			}
		}

		if len(entries) < s.pageSize {
			return nil, &provider.StoreError{
				Op:     "StatObject",
				Store:  provider.StoreSupabase,
				Bucket: bucket,
				Key:    key,
				Err:    provider.ErrNotFound,
			}
		}
		offset += len(entries)
	}
}

// wrapError converts storage API errors to store errors with appropriate
// sentinels. The SDK surfaces backend failures as message strings, so the
// mapping matches on the stable parts of those messages.
func (s *Store) wrapError(op, bucket, key string, err error) error {
	wrapped := &provider.StoreError{
		Op:     op,
		Store:  provider.StoreSupabase,
		Bucket: bucket,
		Key:    key,
		Err:    err,
	}

	msg := err.Error()
	switch {
	case containsAny(msg, "Duplicate", "already exists", "409"):
		// The storage API reports key and bucket collisions identically;
		// the operation disambiguates them.
		if op == "CreateBucket" {
			wrapped.Err = provider.ErrBucketExists
		} else {
			wrapped.Err = provider.ErrObjectExists
		}
	case containsAny(msg, "Bucket not found", "bucket not found"):
		wrapped.Err = provider.ErrBucketNotFound
	case containsAny(msg, "Object not found", "not_found", "not found", "404"):
		wrapped.Err = provider.ErrNotFound
	case containsAny(msg, "invalid signature", "Invalid JWT", "jwt", "401", "Unauthorized"):
		wrapped.Err = provider.ErrInvalidCredentials
	case containsAny(msg, "Forbidden", "access denied", "403", "security policy"):
		wrapped.Err = provider.ErrAccessDenied
	case containsAny(msg, "503", "Service Unavailable", "connection refused", "no such host",
		"timeout", "deadline exceeded", "EOF"):
		wrapped.Err = provider.ErrStoreUnavailable
	}

	return wrapped
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// metadataSize extracts the object size from a listing entry's metadata.
// Returns -1 when the backend did not report one.
func metadataSize(md interface{}) int64 {
	fields, ok := md.(map[string]interface{})
	if !ok {
		return -1
	}
	switch n := fields["size"].(type) {
	case float64:
		return int64(n)
	case int64:
		return n
	case int:
		return int64(n)
	default:
		return -1
	}
}

// metadataString extracts a string field from a listing entry's metadata.
func metadataString(md interface{}, field string) string {
	fields, ok := md.(map[string]interface{})
	if !ok {
		return ""
	}
	if v, ok := fields[field].(string); ok {
		return v
	}
	return ""
}

// parseTimestamp parses the API's RFC3339 timestamps, tolerating absent values.
func parseTimestamp(ts string) time.Time {
	if ts == "" {
		return time.Time{}
	}
	for _, layout := range []string{time.RFC3339Nano, time.RFC3339, "2006-01-02T15:04:05.999999"} {
		if t, err := time.Parse(layout, ts); err == nil {
			return t
		}
	}
	return time.Time{}
}
