package dir

import (
	"bytes"
	"context"
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supamigrate/supamigrate/pkg/provider"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(Config{Root: t.TempDir()})
	require.NoError(t, err)
	return s
}

func putObject(t *testing.T, s *Store, bucket, key, content string) {
	t.Helper()
	err := s.PutObject(context.Background(), bucket, key, strings.NewReader(content), int64(len(content)), provider.PutOptions{})
	require.NoError(t, err)
}

func TestNew_RequiresRoot(t *testing.T) {
	_, err := New(Config{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "root dir is required")
}

func TestCreateBucket(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	require.NoError(t, s.CreateBucket(ctx, "photos", true))

	buckets, err := s.ListBuckets(ctx)
	require.NoError(t, err)
	require.Len(t, buckets, 1)
	assert.Equal(t, "photos", buckets[0].Name)
	assert.True(t, buckets[0].Public)

	// Duplicate creation fails with the bucket-exists sentinel.
	err = s.CreateBucket(ctx, "photos", true)
	assert.True(t, provider.IsBucketExists(err))
}

func TestCreateBucket_InvalidName(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	for _, name := range []string{"", ".", "..", "a/b", `a\b`} {
		err := s.CreateBucket(ctx, name, false)
		assert.Error(t, err, "name %q", name)
	}
}

func TestListBuckets_EmptyRoot(t *testing.T) {
	s, err := New(Config{Root: filepath.Join(t.TempDir(), "missing")})
	require.NoError(t, err)

	buckets, err := s.ListBuckets(context.Background())
	require.NoError(t, err)
	assert.Empty(t, buckets)
}

func TestPutGetRoundTrip(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.CreateBucket(ctx, "docs", false))

	putObject(t, s, "docs", "nested/dir/report.txt", "hello world")

	body, size, err := s.GetObject(ctx, "docs", "nested/dir/report.txt")
	require.NoError(t, err)
	defer func() { _ = body.Close() }()

	data, err := io.ReadAll(body)
	require.NoError(t, err)
	assert.Equal(t, "hello world", string(data))
	assert.Equal(t, int64(len("hello world")), size)
}

func TestPutObject_NoOverwrite(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.CreateBucket(ctx, "docs", false))
	putObject(t, s, "docs", "a.txt", "one")

	err := s.PutObject(ctx, "docs", "a.txt", strings.NewReader("two"), 3, provider.PutOptions{})
	assert.True(t, provider.IsObjectExists(err))

	// Overwrite replaces content.
	err = s.PutObject(ctx, "docs", "a.txt", bytes.NewReader([]byte("two")), 3, provider.PutOptions{Overwrite: true})
	require.NoError(t, err)

	body, _, err := s.GetObject(ctx, "docs", "a.txt")
	require.NoError(t, err)
	data, _ := io.ReadAll(body)
	_ = body.Close()
	assert.Equal(t, "two", string(data))
}

func TestGetObject_NotFound(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.CreateBucket(ctx, "docs", false))

	_, _, err := s.GetObject(ctx, "docs", "missing.txt")
	assert.True(t, provider.IsNotFound(err))
}

func TestListObjects(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.CreateBucket(ctx, "docs", false))

	putObject(t, s, "docs", "a.txt", "a")
	putObject(t, s, "docs", "b/c.txt", "c")
	putObject(t, s, "docs", "b/d.txt", "d")

	res, err := s.ListObjects(ctx, "docs", provider.ListOptions{})
	require.NoError(t, err)

	keys := make([]string, 0, len(res.Objects))
	for _, o := range res.Objects {
		keys = append(keys, o.Key)
	}
	assert.Equal(t, []string{"a.txt", "b/c.txt", "b/d.txt"}, keys)
	assert.False(t, res.IsTruncated)

	// Marker file never appears as an object.
	for _, k := range keys {
		assert.NotEqual(t, MarkerFile, filepath.Base(k))
	}
}

func TestListObjects_Pagination(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.CreateBucket(ctx, "docs", false))

	putObject(t, s, "docs", "a.txt", "a")
	putObject(t, s, "docs", "b.txt", "b")
	putObject(t, s, "docs", "c.txt", "c")

	var keys []string
	token := ""
	for {
		res, err := s.ListObjects(ctx, "docs", provider.ListOptions{MaxKeys: 2, Token: token})
		require.NoError(t, err)
		for _, o := range res.Objects {
			keys = append(keys, o.Key)
		}
		if !res.IsTruncated {
			break
		}
		token = res.Token
	}
	assert.Equal(t, []string{"a.txt", "b.txt", "c.txt"}, keys)
}

func TestListObjects_Prefix(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.CreateBucket(ctx, "docs", false))

	putObject(t, s, "docs", "img/a.png", "a")
	putObject(t, s, "docs", "txt/b.txt", "b")

	res, err := s.ListObjects(ctx, "docs", provider.ListOptions{Prefix: "img/"})
	require.NoError(t, err)
	require.Len(t, res.Objects, 1)
	assert.Equal(t, "img/a.png", res.Objects[0].Key)
}

func TestListObjects_BucketNotFound(t *testing.T) {
	s := newTestStore(t)
	_, err := s.ListObjects(context.Background(), "missing", provider.ListOptions{})
	assert.True(t, provider.IsBucketNotFound(err))
}

func TestStatObject(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.CreateBucket(ctx, "docs", false))
	putObject(t, s, "docs", "a.txt", "abc")

	info, err := s.StatObject(ctx, "docs", "a.txt")
	require.NoError(t, err)
	assert.Equal(t, int64(3), info.Size)

	_, err = s.StatObject(ctx, "docs", "missing.txt")
	assert.True(t, provider.IsNotFound(err))
}

func TestDeleteObject(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	require.NoError(t, s.CreateBucket(ctx, "docs", false))
	putObject(t, s, "docs", "a.txt", "a")

	require.NoError(t, s.DeleteObject(ctx, "docs", "a.txt"))
	_, err := s.StatObject(ctx, "docs", "a.txt")
	assert.True(t, provider.IsNotFound(err))

	// Deleting a missing object is not an error.
	require.NoError(t, s.DeleteObject(ctx, "docs", "a.txt"))
}

func TestFullPath_RejectsTraversal(t *testing.T) {
	s := newTestStore(t)

	_, err := s.fullPath("docs", "../escape.txt")
	assert.Error(t, err)

	// Traversal inside the key collapses but must not escape the bucket.
	p, err := s.fullPath("docs", "a/../b.txt")
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(p, filepath.Join(s.root, "docs")))

	_ = os.RemoveAll(s.root)
}
