// Package migrate implements bucket-to-bucket migration between storage
// backends.
//
// A migration run lists the buckets of a source store, recreates them in
// the target store, then copies every object one at a time. Each object is
// staged through a local scratch file: downloaded in full, then uploaded
// from disk. A failed download leaves no scratch file behind; a failed
// upload keeps the scratch file so the payload is not lost.
package migrate

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/supamigrate/supamigrate/pkg/match"
	"github.com/supamigrate/supamigrate/pkg/output"
	"github.com/supamigrate/supamigrate/pkg/provider"
)

// OnExists policies for objects already present in the target.
const (
	OnExistsFail      = "fail"
	OnExistsSkip      = "skip"
	OnExistsOverwrite = "overwrite"
)

type Config struct {
	// Buckets restricts the run to the named buckets. Empty means all
	// source buckets.
	Buckets []string

	// OnExists controls behavior when a target object already exists:
	// fail | skip | overwrite.
	OnExists string

	// DryRun lists and matches objects without transferring anything.
	DryRun bool

	// ScratchDir is the local staging directory. Empty means a fresh
	// temp directory.
	ScratchDir string
}

func DefaultConfig() Config {
	return Config{
		OnExists: OnExistsFail,
	}
}

type Summary struct {
	BucketsListed      int64
	BucketsCreated     int64
	ObjectsListed      int64
	ObjectsTransferred int64
	ObjectsSkipped     int64
	BytesTransferred   int64
	Errors             int64
	Duration           time.Duration
}

// Migrator copies buckets and objects from a source store to a target
// store. Transfers run strictly one object at a time.
type Migrator struct {
	src     provider.Store
	dst     provider.Store
	matcher *match.Matcher
	writer  output.Writer
	log     *zap.Logger
	cfg     Config

	getter  provider.ObjectGetter
	putter  provider.ObjectPutter
	scratch *Scratch

	sum Summary
}

func New(src, dst provider.Store, matcher *match.Matcher, writer output.Writer, log *zap.Logger, cfg Config) (*Migrator, error) {
	if cfg.OnExists == "" {
		cfg.OnExists = DefaultConfig().OnExists
	}
	switch cfg.OnExists {
	case OnExistsFail, OnExistsSkip, OnExistsOverwrite:
	default:
		return nil, fmt.Errorf("invalid on-exists policy: %q", cfg.OnExists)
	}

	getter, ok := src.(provider.ObjectGetter)
	if !ok {
		return nil, errors.New("source store does not support GetObject")
	}
	putter, ok := dst.(provider.ObjectPutter)
	if !ok {
		return nil, errors.New("target store does not support PutObject")
	}

	if matcher == nil {
		matcher = match.MatchAll()
	}
	if writer == nil {
		writer = output.NewDiscard()
	}
	if log == nil {
		log = zap.NewNop()
	}

	return &Migrator{
		src:     src,
		dst:     dst,
		matcher: matcher,
		writer:  writer,
		log:     log,
		cfg:     cfg,
		getter:  getter,
		putter:  putter,
	}, nil
}

// Run executes the migration. Bucket listing failures on the source are
// fatal. Per-bucket and per-object failures are recorded and the run
// continues with the remaining work.
func (m *Migrator) Run(ctx context.Context) (*Summary, error) {
	start := time.Now()

	if !m.cfg.DryRun {
		scratch, err := NewScratch(m.cfg.ScratchDir)
		if err != nil {
			return m.summary(time.Since(start)), err
		}
		m.scratch = scratch
		defer func() { _ = m.scratch.Cleanup() }()
	}

	buckets, err := m.src.ListBuckets(ctx)
	if err != nil {
		return m.summary(time.Since(start)), fmt.Errorf("list source buckets: %w", err)
	}

	for _, bucket := range buckets {
		if !m.wantBucket(bucket.Name) {
			continue
		}
		m.sum.BucketsListed++

		if err := ctx.Err(); err != nil {
			return m.summary(time.Since(start)), err
		}

		// A bucket that cannot be created (typically because it already
		// exists) does not stop the run: its objects are still copied.
		m.ensureBucket(ctx, bucket)

		if err := m.migrateBucket(ctx, bucket.Name); err != nil {
			return m.summary(time.Since(start)), err
		}
	}

	if err := m.writeSummary(time.Since(start)); err != nil {
		m.log.Warn("write summary record", zap.Error(err))
	}

	return m.summary(time.Since(start)), nil
}

func (m *Migrator) wantBucket(name string) bool {
	if len(m.cfg.Buckets) == 0 {
		return true
	}
	for _, b := range m.cfg.Buckets {
		if b == name {
			return true
		}
	}
	return false
}

func (m *Migrator) ensureBucket(ctx context.Context, bucket provider.BucketInfo) {
	if m.cfg.DryRun {
		_ = m.writer.WriteBucket(output.BucketRecord{Name: bucket.Name, Public: bucket.Public})
		return
	}

	err := m.dst.CreateBucket(ctx, bucket.Name, bucket.Public)
	if err == nil {
		m.sum.BucketsCreated++
		m.log.Info("created bucket", zap.String("bucket", bucket.Name), zap.Bool("public", bucket.Public))
		_ = m.writer.WriteBucket(output.BucketRecord{Name: bucket.Name, Public: bucket.Public, Created: true})
		return
	}

	if provider.IsBucketExists(err) {
		m.log.Info("bucket exists in target", zap.String("bucket", bucket.Name))
		_ = m.writer.WriteBucket(output.BucketRecord{Name: bucket.Name, Public: bucket.Public})
		return
	}

	m.sum.Errors++
	m.log.Warn("create bucket failed, copying objects anyway",
		zap.String("bucket", bucket.Name), zap.Error(err))
	_ = m.writer.WriteError(output.ErrorRecord{
		Code:    errorCode(err),
		Op:      "create_bucket",
		Message: err.Error(),
		Bucket:  bucket.Name,
	})
}

func (m *Migrator) migrateBucket(ctx context.Context, bucket string) error {
	var token string
	for {
		res, err := m.src.ListObjects(ctx, bucket, provider.ListOptions{Token: token})
		if err != nil {
			m.sum.Errors++
			m.log.Warn("list objects failed", zap.String("bucket", bucket), zap.Error(err))
			_ = m.writer.WriteError(output.ErrorRecord{
				Code:    errorCode(err),
				Op:      "list_objects",
				Message: err.Error(),
				Bucket:  bucket,
			})
			return nil
		}

		for _, obj := range res.Objects {
			if err := ctx.Err(); err != nil {
				return err
			}
			if !m.matcher.Match(obj.Key) {
				continue
			}
			m.sum.ObjectsListed++

			if err := m.migrateObject(ctx, bucket, obj); err != nil {
				return err
			}
		}

		if !res.IsTruncated || res.Token == "" {
			return nil
		}
		token = res.Token
	}
}

func (m *Migrator) migrateObject(ctx context.Context, bucket string, obj provider.ObjectInfo) error {
	log := m.log.With(zap.String("bucket", bucket), zap.String("key", obj.Key))

	if m.cfg.DryRun {
		m.sum.ObjectsSkipped++
		_ = m.writer.WriteSkip(output.SkipRecord{Bucket: bucket, Key: obj.Key, Reason: "dry_run"})
		return nil
	}

	if m.cfg.OnExists == OnExistsSkip {
		if statter, ok := m.dst.(provider.ObjectStatter); ok {
			_, err := statter.StatObject(ctx, bucket, obj.Key)
			if err == nil {
				m.sum.ObjectsSkipped++
				log.Debug("target object exists, skipping")
				_ = m.writer.WriteSkip(output.SkipRecord{Bucket: bucket, Key: obj.Key, Reason: "on_exists.skip"})
				return nil
			}
			if !provider.IsNotFound(err) && !provider.IsBucketNotFound(err) {
				m.recordError(err, "stat", bucket, obj.Key)
				return nil
			}
		}
	}

	path := m.scratch.Path(bucket, obj.Key)

	size, err := m.download(ctx, bucket, obj.Key, path)
	if err != nil {
		// No scratch file survives a failed download, and the upload is
		// never attempted.
		m.recordError(err, "download", bucket, obj.Key)
		log.Warn("download failed", zap.Error(err))
		return nil
	}

	if err := m.upload(ctx, bucket, obj, path, size); err != nil {
		if errors.Is(err, errSkipHandled) {
			return nil
		}
		// The scratch file is kept on upload failure.
		m.recordError(err, "upload", bucket, obj.Key)
		log.Warn("upload failed, keeping scratch file",
			zap.String("scratch", path), zap.Error(err))
		return nil
	}

	if err := os.Remove(path); err != nil {
		m.recordError(err, "remove_scratch", bucket, obj.Key)
		log.Warn("remove scratch file failed", zap.String("scratch", path), zap.Error(err))
		return nil
	}

	m.sum.ObjectsTransferred++
	m.sum.BytesTransferred += size
	log.Info("transferred object", zap.Int64("bytes", size))
	_ = m.writer.WriteTransfer(output.TransferRecord{Bucket: bucket, Key: obj.Key, Bytes: size})
	return nil
}

// download fetches the object into path. On any failure the partial file
// is removed before returning.
func (m *Migrator) download(ctx context.Context, bucket, key, path string) (int64, error) {
	body, _, err := m.getter.GetObject(ctx, bucket, key)
	if err != nil {
		return 0, err
	}
	defer func() { _ = body.Close() }()

	f, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o600)
	if err != nil {
		return 0, err
	}

	n, err := io.Copy(f, body)
	if err != nil {
		_ = f.Close()
		_ = os.Remove(path)
		return 0, err
	}
	if err := f.Close(); err != nil {
		_ = os.Remove(path)
		return 0, err
	}
	return n, nil
}

func (m *Migrator) upload(ctx context.Context, bucket string, obj provider.ObjectInfo, path string, size int64) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer func() { _ = f.Close() }()

	opts := provider.PutOptions{
		ContentType: obj.ContentType,
		Overwrite:   m.cfg.OnExists == OnExistsOverwrite,
	}
	if err := m.putter.PutObject(ctx, bucket, obj.Key, f, size, opts); err != nil {
		if m.cfg.OnExists == OnExistsSkip && provider.IsObjectExists(err) {
			// Lost the stat race or the target store has no Stat support.
			m.sum.ObjectsSkipped++
			if rmErr := os.Remove(path); rmErr == nil {
				_ = m.writer.WriteSkip(output.SkipRecord{Bucket: bucket, Key: obj.Key, Reason: "on_exists.skip"})
				return errSkipHandled
			}
		}
		return err
	}
	return nil
}

// errSkipHandled signals that upload already accounted for the object as
// skipped.
var errSkipHandled = errors.New("skip handled")

func (m *Migrator) recordError(err error, op, bucket, key string) {
	m.sum.Errors++
	_ = m.writer.WriteError(output.ErrorRecord{
		Code:    errorCode(err),
		Op:      op,
		Message: err.Error(),
		Bucket:  bucket,
		Key:     key,
	})
}

func (m *Migrator) writeSummary(d time.Duration) error {
	s := m.summary(d)
	return m.writer.WriteSummary(output.SummaryRecord{
		BucketsListed:      s.BucketsListed,
		BucketsCreated:     s.BucketsCreated,
		ObjectsListed:      s.ObjectsListed,
		ObjectsTransferred: s.ObjectsTransferred,
		ObjectsSkipped:     s.ObjectsSkipped,
		BytesTransferred:   s.BytesTransferred,
		Errors:             s.Errors,
		Duration:           d,
		DurationHuman:      d.Round(time.Millisecond).String(),
	})
}

func (m *Migrator) summary(d time.Duration) *Summary {
	s := m.sum
	s.Duration = d
	return &s
}

// errorCode maps store errors onto output error codes.
func errorCode(err error) string {
	switch {
	case provider.IsBucketExists(err):
		return output.ErrCodeBucketExists
	case provider.IsObjectExists(err):
		return output.ErrCodeObjectExists
	case provider.IsNotFound(err), provider.IsBucketNotFound(err):
		return output.ErrCodeNotFound
	case provider.IsAccessDenied(err), provider.IsInvalidCredentials(err):
		return output.ErrCodeAccessDenied
	case provider.IsStoreUnavailable(err):
		return output.ErrCodeNetwork
	}
	var pathErr *os.PathError
	if errors.As(err, &pathErr) {
		return output.ErrCodeIO
	}
	return output.ErrCodeInternal
}
