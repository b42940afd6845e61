package migrate

import (
	"context"
	"errors"
	"io"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/supamigrate/supamigrate/pkg/match"
	"github.com/supamigrate/supamigrate/pkg/output"
	"github.com/supamigrate/supamigrate/pkg/provider"
	"github.com/supamigrate/supamigrate/pkg/provider/dir"
)

// recordingWriter captures output records for assertions.
type recordingWriter struct {
	buckets   []output.BucketRecord
	transfers []output.TransferRecord
	skips     []output.SkipRecord
	errs      []output.ErrorRecord
	summaries []output.SummaryRecord
}

func (w *recordingWriter) WriteBucket(rec output.BucketRecord) error {
	w.buckets = append(w.buckets, rec)
	return nil
}

func (w *recordingWriter) WriteTransfer(rec output.TransferRecord) error {
	w.transfers = append(w.transfers, rec)
	return nil
}

func (w *recordingWriter) WriteSkip(rec output.SkipRecord) error {
	w.skips = append(w.skips, rec)
	return nil
}

func (w *recordingWriter) WriteError(rec output.ErrorRecord) error {
	w.errs = append(w.errs, rec)
	return nil
}

func (w *recordingWriter) WriteSummary(rec output.SummaryRecord) error {
	w.summaries = append(w.summaries, rec)
	return nil
}

func (w *recordingWriter) Close() error { return nil }

func newDirStore(t *testing.T) *dir.Store {
	t.Helper()
	s, err := dir.New(dir.Config{Root: t.TempDir()})
	require.NoError(t, err)
	return s
}

func seedObject(t *testing.T, s *dir.Store, bucket, key, content string) {
	t.Helper()
	ctx := context.Background()
	if err := s.CreateBucket(ctx, bucket, false); err != nil {
		require.True(t, provider.IsBucketExists(err))
	}
	err := s.PutObject(ctx, bucket, key, strings.NewReader(content), int64(len(content)), provider.PutOptions{Overwrite: true})
	require.NoError(t, err)
}

func readObject(t *testing.T, s *dir.Store, bucket, key string) string {
	t.Helper()
	body, _, err := s.GetObject(context.Background(), bucket, key)
	require.NoError(t, err)
	defer func() { _ = body.Close() }()
	data, err := io.ReadAll(body)
	require.NoError(t, err)
	return string(data)
}

func scratchEntries(t *testing.T, dir string) []os.DirEntry {
	t.Helper()
	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	return entries
}

func TestNew_InvalidOnExists(t *testing.T) {
	src := newDirStore(t)
	dst := newDirStore(t)

	_, err := New(src, dst, nil, nil, nil, Config{OnExists: "panic"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "on-exists")
}

func TestRun_MigratesBucketsAndObjects(t *testing.T) {
	src := newDirStore(t)
	dst := newDirStore(t)
	require.NoError(t, src.CreateBucket(context.Background(), "photos", true))
	seedObject(t, src, "photos", "vacation/beach.jpg", "jpeg-bytes")
	seedObject(t, src, "photos", "vacation/sunset.jpg", "more-jpeg-bytes")
	seedObject(t, src, "docs", "readme.md", "# hello")

	w := &recordingWriter{}
	scratch := t.TempDir()
	m, err := New(src, dst, nil, w, nil, Config{ScratchDir: scratch})
	require.NoError(t, err)

	sum, err := m.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(2), sum.BucketsListed)
	assert.Equal(t, int64(2), sum.BucketsCreated)
	assert.Equal(t, int64(3), sum.ObjectsListed)
	assert.Equal(t, int64(3), sum.ObjectsTransferred)
	assert.Equal(t, int64(0), sum.Errors)
	assert.Positive(t, sum.BytesTransferred)

	assert.Equal(t, "jpeg-bytes", readObject(t, dst, "photos", "vacation/beach.jpg"))
	assert.Equal(t, "more-jpeg-bytes", readObject(t, dst, "photos", "vacation/sunset.jpg"))
	assert.Equal(t, "# hello", readObject(t, dst, "docs", "readme.md"))

	// Public flag carries over.
	buckets, err := dst.ListBuckets(context.Background())
	require.NoError(t, err)
	for _, b := range buckets {
		if b.Name == "photos" {
			assert.True(t, b.Public)
		}
	}

	// All scratch files were removed after successful uploads.
	assert.Empty(t, scratchEntries(t, scratch))

	require.Len(t, w.summaries, 1)
	assert.Equal(t, int64(3), w.summaries[0].ObjectsTransferred)
}

// failingGetter fails every GetObject call before any bytes are produced.
type failingGetter struct {
	*dir.Store
}

func (f *failingGetter) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, int64, error) {
	return nil, 0, &provider.StoreError{
		Op: "GetObject", Store: provider.StoreDir, Bucket: bucket, Key: key,
		Err: provider.ErrStoreUnavailable,
	}
}

func TestRun_DownloadFailureLeavesNoScratchFile(t *testing.T) {
	src := newDirStore(t)
	dst := newDirStore(t)
	seedObject(t, src, "photos", "beach.jpg", "jpeg-bytes")

	w := &recordingWriter{}
	scratch := t.TempDir()
	m, err := New(&failingGetter{src}, dst, nil, w, nil, Config{ScratchDir: scratch})
	require.NoError(t, err)

	sum, err := m.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(1), sum.Errors)
	assert.Equal(t, int64(0), sum.ObjectsTransferred)

	// No scratch file survives and no upload was attempted.
	assert.Empty(t, scratchEntries(t, scratch))
	_, statErr := dst.StatObject(context.Background(), "photos", "beach.jpg")
	assert.True(t, provider.IsNotFound(statErr) || provider.IsBucketNotFound(statErr))

	require.Len(t, w.errs, 1)
	assert.Equal(t, output.ErrCodeNetwork, w.errs[0].Code)
	assert.Equal(t, "download", w.errs[0].Op)
	assert.Equal(t, "beach.jpg", w.errs[0].Key)
}

// brokenBody yields some bytes then fails, exercising partial downloads.
type brokenBody struct {
	r io.Reader
}

func (b *brokenBody) Read(p []byte) (int, error) {
	n, err := b.r.Read(p)
	if errors.Is(err, io.EOF) {
		return n, errors.New("connection reset by peer")
	}
	return n, err
}

func (b *brokenBody) Close() error { return nil }

type midStreamGetter struct {
	*dir.Store
}

func (g *midStreamGetter) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, int64, error) {
	return &brokenBody{r: strings.NewReader("partial")}, -1, nil
}

func TestRun_DownloadStreamFailureRemovesPartialFile(t *testing.T) {
	src := newDirStore(t)
	dst := newDirStore(t)
	seedObject(t, src, "photos", "beach.jpg", "jpeg-bytes")

	w := &recordingWriter{}
	scratch := t.TempDir()
	m, err := New(&midStreamGetter{src}, dst, nil, w, nil, Config{ScratchDir: scratch})
	require.NoError(t, err)

	sum, err := m.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(1), sum.Errors)
	assert.Empty(t, scratchEntries(t, scratch))
	require.Len(t, w.errs, 1)
	assert.Equal(t, "download", w.errs[0].Op)
}

// failingPutter rejects every PutObject call.
type failingPutter struct {
	*dir.Store
}

func (f *failingPutter) PutObject(ctx context.Context, bucket, key string, body io.Reader, contentLength int64, opts provider.PutOptions) error {
	return &provider.StoreError{
		Op: "PutObject", Store: provider.StoreDir, Bucket: bucket, Key: key,
		Err: provider.ErrStoreUnavailable,
	}
}

func TestRun_UploadFailureKeepsScratchFile(t *testing.T) {
	src := newDirStore(t)
	dst := newDirStore(t)
	seedObject(t, src, "photos", "beach.jpg", "jpeg-bytes")

	w := &recordingWriter{}
	scratch := t.TempDir()
	m, err := New(src, &failingPutter{dst}, nil, w, nil, Config{ScratchDir: scratch})
	require.NoError(t, err)

	sum, err := m.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(1), sum.Errors)
	assert.Equal(t, int64(0), sum.ObjectsTransferred)

	// The downloaded payload stays on disk for inspection.
	entries := scratchEntries(t, scratch)
	require.Len(t, entries, 1)
	data, err := os.ReadFile(scratch + "/" + entries[0].Name())
	require.NoError(t, err)
	assert.Equal(t, "jpeg-bytes", string(data))

	require.Len(t, w.errs, 1)
	assert.Equal(t, output.ErrCodeNetwork, w.errs[0].Code)
	assert.Equal(t, "upload", w.errs[0].Op)
}

// keyFailingPutter rejects PutObject for a single key and delegates the rest.
type keyFailingPutter struct {
	*dir.Store
	failKey string
}

func (f *keyFailingPutter) PutObject(ctx context.Context, bucket, key string, body io.Reader, contentLength int64, opts provider.PutOptions) error {
	if key == f.failKey {
		return &provider.StoreError{
			Op: "PutObject", Store: provider.StoreDir, Bucket: bucket, Key: key,
			Err: provider.ErrStoreUnavailable,
		}
	}
	return f.Store.PutObject(ctx, bucket, key, body, contentLength, opts)
}

func TestRun_UploadFailureScratchSurvivesCollidingKey(t *testing.T) {
	src := newDirStore(t)
	dst := newDirStore(t)
	// Both keys flatten to the same readable name; the kept file for the
	// failed upload must not be clobbered when the second object stages.
	seedObject(t, src, "photos", "a/b.txt", "kept-payload")
	seedObject(t, src, "photos", "a_b.txt", "other-payload")

	w := &recordingWriter{}
	scratch := t.TempDir()
	m, err := New(src, &keyFailingPutter{Store: dst, failKey: "a/b.txt"}, nil, w, nil, Config{ScratchDir: scratch})
	require.NoError(t, err)

	sum, err := m.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(1), sum.Errors)
	assert.Equal(t, int64(1), sum.ObjectsTransferred)
	assert.Equal(t, "other-payload", readObject(t, dst, "photos", "a_b.txt"))

	entries := scratchEntries(t, scratch)
	require.Len(t, entries, 1)
	data, err := os.ReadFile(scratch + "/" + entries[0].Name())
	require.NoError(t, err)
	assert.Equal(t, "kept-payload", string(data))
}

func TestRun_BucketExistsObjectsStillCopied(t *testing.T) {
	src := newDirStore(t)
	dst := newDirStore(t)
	seedObject(t, src, "photos", "beach.jpg", "jpeg-bytes")
	require.NoError(t, dst.CreateBucket(context.Background(), "photos", false))

	w := &recordingWriter{}
	m, err := New(src, dst, nil, w, nil, Config{ScratchDir: t.TempDir()})
	require.NoError(t, err)

	sum, err := m.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(0), sum.BucketsCreated)
	assert.Equal(t, int64(0), sum.Errors)
	assert.Equal(t, int64(1), sum.ObjectsTransferred)
	assert.Equal(t, "jpeg-bytes", readObject(t, dst, "photos", "beach.jpg"))

	require.Len(t, w.buckets, 1)
	assert.False(t, w.buckets[0].Created)
}

// failingCreator reports a permission failure on CreateBucket while the
// bucket itself is usable.
type failingCreator struct {
	*dir.Store
}

func (f *failingCreator) CreateBucket(ctx context.Context, name string, public bool) error {
	return &provider.StoreError{
		Op: "CreateBucket", Store: provider.StoreDir, Bucket: name,
		Err: provider.ErrAccessDenied,
	}
}

func TestRun_BucketCreateFailureObjectsStillCopied(t *testing.T) {
	src := newDirStore(t)
	dst := newDirStore(t)
	seedObject(t, src, "photos", "beach.jpg", "jpeg-bytes")
	require.NoError(t, dst.CreateBucket(context.Background(), "photos", false))

	w := &recordingWriter{}
	m, err := New(src, &failingCreator{dst}, nil, w, nil, Config{ScratchDir: t.TempDir()})
	require.NoError(t, err)

	sum, err := m.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(1), sum.Errors)
	assert.Equal(t, int64(1), sum.ObjectsTransferred)
	assert.Equal(t, "jpeg-bytes", readObject(t, dst, "photos", "beach.jpg"))

	require.Len(t, w.errs, 1)
	assert.Equal(t, "create_bucket", w.errs[0].Op)
	assert.Equal(t, output.ErrCodeAccessDenied, w.errs[0].Code)
}

func TestRun_OnExistsSkip(t *testing.T) {
	src := newDirStore(t)
	dst := newDirStore(t)
	seedObject(t, src, "photos", "beach.jpg", "new-bytes")
	seedObject(t, src, "photos", "fresh.jpg", "fresh-bytes")
	seedObject(t, dst, "photos", "beach.jpg", "old-bytes")

	w := &recordingWriter{}
	m, err := New(src, dst, nil, w, nil, Config{OnExists: OnExistsSkip, ScratchDir: t.TempDir()})
	require.NoError(t, err)

	sum, err := m.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(1), sum.ObjectsSkipped)
	assert.Equal(t, int64(1), sum.ObjectsTransferred)
	assert.Equal(t, "old-bytes", readObject(t, dst, "photos", "beach.jpg"))
	assert.Equal(t, "fresh-bytes", readObject(t, dst, "photos", "fresh.jpg"))

	require.Len(t, w.skips, 1)
	assert.Equal(t, "on_exists.skip", w.skips[0].Reason)
}

func TestRun_OnExistsOverwrite(t *testing.T) {
	src := newDirStore(t)
	dst := newDirStore(t)
	seedObject(t, src, "photos", "beach.jpg", "new-bytes")
	seedObject(t, dst, "photos", "beach.jpg", "old-bytes")

	m, err := New(src, dst, nil, nil, nil, Config{OnExists: OnExistsOverwrite, ScratchDir: t.TempDir()})
	require.NoError(t, err)

	sum, err := m.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(1), sum.ObjectsTransferred)
	assert.Equal(t, "new-bytes", readObject(t, dst, "photos", "beach.jpg"))
}

func TestRun_OnExistsFailRecordsError(t *testing.T) {
	src := newDirStore(t)
	dst := newDirStore(t)
	seedObject(t, src, "photos", "beach.jpg", "new-bytes")
	seedObject(t, dst, "photos", "beach.jpg", "old-bytes")

	w := &recordingWriter{}
	scratch := t.TempDir()
	m, err := New(src, dst, nil, w, nil, Config{ScratchDir: scratch})
	require.NoError(t, err)

	sum, err := m.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(1), sum.Errors)
	assert.Equal(t, "old-bytes", readObject(t, dst, "photos", "beach.jpg"))

	require.Len(t, w.errs, 1)
	assert.Equal(t, output.ErrCodeObjectExists, w.errs[0].Code)

	// Failed upload keeps the scratch file.
	assert.Len(t, scratchEntries(t, scratch), 1)
}

func TestRun_DryRun(t *testing.T) {
	src := newDirStore(t)
	dst := newDirStore(t)
	seedObject(t, src, "photos", "beach.jpg", "jpeg-bytes")

	w := &recordingWriter{}
	m, err := New(src, dst, nil, w, nil, Config{DryRun: true})
	require.NoError(t, err)

	sum, err := m.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(0), sum.ObjectsTransferred)
	assert.Equal(t, int64(1), sum.ObjectsSkipped)

	buckets, err := dst.ListBuckets(context.Background())
	require.NoError(t, err)
	assert.Empty(t, buckets)

	require.Len(t, w.skips, 1)
	assert.Equal(t, "dry_run", w.skips[0].Reason)
}

// failingLister fails ListBuckets outright.
type failingLister struct {
	*dir.Store
}

func (f *failingLister) ListBuckets(ctx context.Context) ([]provider.BucketInfo, error) {
	return nil, &provider.StoreError{
		Op: "ListBuckets", Store: provider.StoreDir,
		Err: provider.ErrInvalidCredentials,
	}
}

func TestRun_ListBucketsFailureIsFatal(t *testing.T) {
	src := newDirStore(t)
	dst := newDirStore(t)

	m, err := New(&failingLister{src}, dst, nil, nil, nil, Config{ScratchDir: t.TempDir()})
	require.NoError(t, err)

	_, err = m.Run(context.Background())
	require.Error(t, err)
	assert.True(t, provider.IsInvalidCredentials(err))
}

func TestRun_BucketFilter(t *testing.T) {
	src := newDirStore(t)
	dst := newDirStore(t)
	seedObject(t, src, "photos", "beach.jpg", "jpeg-bytes")
	seedObject(t, src, "docs", "readme.md", "# hello")

	m, err := New(src, dst, nil, nil, nil, Config{Buckets: []string{"photos"}, ScratchDir: t.TempDir()})
	require.NoError(t, err)

	sum, err := m.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(1), sum.BucketsListed)
	assert.Equal(t, int64(1), sum.ObjectsTransferred)
	_, statErr := dst.StatObject(context.Background(), "docs", "readme.md")
	assert.Error(t, statErr)
}

func TestRun_MatcherFilters(t *testing.T) {
	src := newDirStore(t)
	dst := newDirStore(t)
	seedObject(t, src, "photos", "beach.jpg", "jpeg-bytes")
	seedObject(t, src, "photos", "notes.txt", "text")

	matcher, err := match.New(match.Config{Includes: []string{"**/*.jpg", "*.jpg"}})
	require.NoError(t, err)

	m, err := New(src, dst, matcher, nil, nil, Config{ScratchDir: t.TempDir()})
	require.NoError(t, err)

	sum, err := m.Run(context.Background())
	require.NoError(t, err)

	assert.Equal(t, int64(1), sum.ObjectsTransferred)
	assert.Equal(t, "jpeg-bytes", readObject(t, dst, "photos", "beach.jpg"))
	_, statErr := dst.StatObject(context.Background(), "photos", "notes.txt")
	assert.Error(t, statErr)
}

func TestRun_ContextCancellation(t *testing.T) {
	src := newDirStore(t)
	dst := newDirStore(t)
	seedObject(t, src, "photos", "beach.jpg", "jpeg-bytes")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	m, err := New(src, dst, nil, nil, nil, Config{ScratchDir: t.TempDir()})
	require.NoError(t, err)

	_, err = m.Run(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
