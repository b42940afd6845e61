// Package dir implements the store interface for a local directory tree.
//
// Buckets are first-level directories under the root; objects are files below
// them with slash-separated keys. Bucket visibility is persisted in a
// .bucket.json marker so round-trips through a local mirror keep the flag.
//
// This store backs storage download/upload workflows and offline tests.
package dir

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/supamigrate/supamigrate/pkg/provider"
)

// MarkerFile is the per-bucket metadata file name.
const MarkerFile = ".bucket.json"

// Store implements provider.Store for a local directory tree.
type Store struct {
	root string
}

// Ensure Store implements the store capability interfaces.
var (
	_ provider.Store         = (*Store)(nil)
	_ provider.ObjectGetter  = (*Store)(nil)
	_ provider.ObjectPutter  = (*Store)(nil)
	_ provider.ObjectDeleter = (*Store)(nil)
	_ provider.ObjectStatter = (*Store)(nil)
)

// Config configures a dir store.
type Config struct {
	// Root is the directory holding one sub-directory per bucket (required).
	// It is created on first CreateBucket if absent.
	Root string
}

// Validate checks that required configuration is present.
func (c Config) Validate() error {
	if strings.TrimSpace(c.Root) == "" {
		return fmt.Errorf("root dir is required")
	}
	return nil
}

// New creates a dir store rooted at cfg.Root.
func New(cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Store{root: filepath.Clean(cfg.Root)}, nil
}

// Close releases any resources held by the store.
func (s *Store) Close() error { return nil }

// bucketMarker is the persisted bucket metadata.
type bucketMarker struct {
	Name   string `json:"name"`
	Public bool   `json:"public"`
}

// ListBuckets returns one bucket per first-level directory.
func (s *Store) ListBuckets(ctx context.Context) ([]provider.BucketInfo, error) {
	_ = ctx
	entries, err := os.ReadDir(s.root)
	if err != nil {
		if os.IsNotExist(err) {
			return []provider.BucketInfo{}, nil
		}
		return nil, s.wrapError("ListBuckets", "", "", err)
	}

	infos := make([]provider.BucketInfo, 0, len(entries))
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		info := provider.BucketInfo{Name: e.Name()}
		if st, err := os.Stat(filepath.Join(s.root, e.Name())); err == nil {
			info.CreatedAt = st.ModTime()
		}
		if marker, err := s.readMarker(e.Name()); err == nil {
			info.Public = marker.Public
		}
		infos = append(infos, info)
	}
	return infos, nil
}

// CreateBucket creates a bucket directory with its marker file.
func (s *Store) CreateBucket(ctx context.Context, name string, public bool) error {
	_ = ctx
	if err := validBucketName(name); err != nil {
		return s.wrapError("CreateBucket", name, "", err)
	}

	dir := filepath.Join(s.root, name)
	if _, err := os.Stat(dir); err == nil {
		return &provider.StoreError{Op: "CreateBucket", Store: provider.StoreDir, Bucket: name, Err: provider.ErrBucketExists}
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return s.wrapError("CreateBucket", name, "", err)
	}

	data, err := json.Marshal(bucketMarker{Name: name, Public: public})
	if err != nil {
		return s.wrapError("CreateBucket", name, "", err)
	}
	if err := os.WriteFile(filepath.Join(dir, MarkerFile), data, 0o644); err != nil {
		return s.wrapError("CreateBucket", name, "", err)
	}
	return nil
}

// ListObjects returns a page of objects within a bucket.
func (s *Store) ListObjects(ctx context.Context, bucket string, opts provider.ListOptions) (*provider.ListResult, error) {
	_ = ctx
	maxKeys := opts.MaxKeys
	if maxKeys <= 0 {
		maxKeys = 1000
	}

	if _, err := os.Stat(filepath.Join(s.root, bucket)); err != nil {
		if os.IsNotExist(err) {
			return nil, &provider.StoreError{Op: "ListObjects", Store: provider.StoreDir, Bucket: bucket, Err: provider.ErrBucketNotFound}
		}
		return nil, s.wrapError("ListObjects", bucket, "", err)
	}

	keys, err := s.collectKeys(bucket, strings.TrimPrefix(opts.Prefix, "/"))
	if err != nil {
		return nil, s.wrapError("ListObjects", bucket, opts.Prefix, err)
	}
	sort.Strings(keys)

	start := 0
	if opts.Token != "" {
		// Start strictly after the last returned key.
		idx := sort.SearchStrings(keys, opts.Token)
		for idx < len(keys) && keys[idx] <= opts.Token {
			idx++
		}
		start = idx
	}

	end := start + maxKeys
	if end > len(keys) {
		end = len(keys)
	}

	objects := make([]provider.ObjectInfo, 0, end-start)
	for _, k := range keys[start:end] {
		full, err := s.fullPath(bucket, k)
		if err != nil {
			continue
		}
		st, err := os.Stat(full)
		if err != nil || st.IsDir() {
			continue
		}
		objects = append(objects, provider.ObjectInfo{Key: k, Size: st.Size(), LastModified: st.ModTime()})
	}

	res := &provider.ListResult{Objects: objects}
	if end < len(keys) {
		res.IsTruncated = true
		res.Token = keys[end-1]
	}
	return res, nil
}

// StatObject returns metadata for a single object.
func (s *Store) StatObject(ctx context.Context, bucket, key string) (*provider.ObjectInfo, error) {
	_ = ctx
	full, err := s.fullPath(bucket, key)
	if err != nil {
		return nil, s.wrapError("StatObject", bucket, key, err)
	}
	st, err := os.Stat(full)
	if err != nil || st.IsDir() {
		return nil, &provider.StoreError{Op: "StatObject", Store: provider.StoreDir, Bucket: bucket, Key: key, Err: provider.ErrNotFound}
	}

	return &provider.ObjectInfo{
		Key:          strings.TrimPrefix(key, "/"),
		Size:         st.Size(),
		LastModified: st.ModTime(),
	}, nil
}

// GetObject opens an object for reading.
func (s *Store) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, int64, error) {
	_ = ctx
	full, err := s.fullPath(bucket, key)
	if err != nil {
		return nil, 0, s.wrapError("GetObject", bucket, key, err)
	}
	f, err := os.Open(full)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, 0, &provider.StoreError{Op: "GetObject", Store: provider.StoreDir, Bucket: bucket, Key: key, Err: provider.ErrNotFound}
		}
		return nil, 0, s.wrapError("GetObject", bucket, key, err)
	}
	st, err := f.Stat()
	if err != nil {
		_ = f.Close()
		return nil, 0, s.wrapError("GetObject", bucket, key, err)
	}
	return f, st.Size(), nil
}

// PutObject writes an object via a temp file and rename.
func (s *Store) PutObject(ctx context.Context, bucket, key string, body io.Reader, contentLength int64, opts provider.PutOptions) error {
	_ = ctx
	_ = contentLength

	full, err := s.fullPath(bucket, key)
	if err != nil {
		return s.wrapError("PutObject", bucket, key, err)
	}

	if !opts.Overwrite {
		if _, err := os.Stat(full); err == nil {
			return &provider.StoreError{Op: "PutObject", Store: provider.StoreDir, Bucket: bucket, Key: key, Err: provider.ErrObjectExists}
		}
	}

	if err := os.MkdirAll(filepath.Dir(full), 0o755); err != nil {
		return s.wrapError("PutObject", bucket, key, err)
	}

	tmp, err := os.CreateTemp(filepath.Dir(full), "supamigrate-put-*")
	if err != nil {
		return s.wrapError("PutObject", bucket, key, err)
	}
	tmpName := tmp.Name()
	defer func() {
		_ = tmp.Close()
		_ = os.Remove(tmpName)
	}()

	if _, err := io.Copy(tmp, body); err != nil {
		return s.wrapError("PutObject", bucket, key, err)
	}
	if err := tmp.Close(); err != nil {
		return s.wrapError("PutObject", bucket, key, err)
	}

	if err := os.Rename(tmpName, full); err != nil {
		return s.wrapError("PutObject", bucket, key, err)
	}
	return nil
}

// DeleteObject deletes an object. Missing objects are not an error.
func (s *Store) DeleteObject(ctx context.Context, bucket, key string) error {
	_ = ctx
	full, err := s.fullPath(bucket, key)
	if err != nil {
		return s.wrapError("DeleteObject", bucket, key, err)
	}
	if err := os.Remove(full); err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return s.wrapError("DeleteObject", bucket, key, err)
	}
	return nil
}

// readMarker loads a bucket's marker file.
func (s *Store) readMarker(bucket string) (*bucketMarker, error) {
	data, err := os.ReadFile(filepath.Join(s.root, bucket, MarkerFile))
	if err != nil {
		return nil, err
	}
	var m bucketMarker
	if err := json.Unmarshal(data, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

// fullPath resolves a key inside a bucket, rejecting traversal.
func (s *Store) fullPath(bucket, key string) (string, error) {
	if err := validBucketName(bucket); err != nil {
		return "", err
	}
	key = strings.TrimSpace(key)
	key = strings.TrimPrefix(key, "/")
	// Prevent path traversal.
	clean := filepath.Clean("/" + key)
	clean = strings.TrimPrefix(clean, "/")
	if clean == ".." || strings.HasPrefix(clean, "../") {
		return "", fmt.Errorf("invalid key path")
	}
	return filepath.Join(s.root, bucket, filepath.FromSlash(clean)), nil
}

// collectKeys walks a bucket directory and returns slash-separated keys.
// Marker files are storage metadata, not objects.
func (s *Store) collectKeys(bucket, prefix string) ([]string, error) {
	bucketDir := filepath.Join(s.root, bucket)

	var keys []string
	err := filepath.WalkDir(bucketDir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if d.Name() == MarkerFile {
			return nil
		}
		rel, err := filepath.Rel(bucketDir, path)
		if err != nil {
			return nil
		}
		rel = filepath.ToSlash(rel)
		if prefix != "" && !strings.HasPrefix(rel, prefix) {
			return nil
		}
		keys = append(keys, rel)
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

func validBucketName(name string) error {
	if name == "" || name == "." || name == ".." ||
		strings.ContainsAny(name, `/\`) {
		return fmt.Errorf("invalid bucket name %q", name)
	}
	return nil
}

// wrapError normalizes filesystem errors to store sentinels.
func (s *Store) wrapError(op, bucket, key string, err error) error {
	wrapped := &provider.StoreError{Op: op, Store: provider.StoreDir, Bucket: bucket, Key: key, Err: err}
	if err == nil {
		wrapped.Err = fmt.Errorf("unknown error")
	}
	if os.IsNotExist(err) {
		wrapped.Err = provider.ErrNotFound
	}
	if os.IsPermission(err) {
		wrapped.Err = provider.ErrAccessDenied
	}
	return wrapped
}
