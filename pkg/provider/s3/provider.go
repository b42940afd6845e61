package s3

import (
	"context"
	"errors"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"

	"github.com/supamigrate/supamigrate/pkg/provider"
)

// Store implements provider.Store for AWS S3 and S3-compatible storage.
//
// Unlike a single-bucket client, a Store spans a whole project: bucket
// enumeration and creation are part of the contract.
type Store struct {
	client  *s3.Client
	maxKeys int
}

// Ensure Store implements the store capability interfaces.
var (
	_ provider.Store         = (*Store)(nil)
	_ provider.ObjectGetter  = (*Store)(nil)
	_ provider.ObjectPutter  = (*Store)(nil)
	_ provider.ObjectDeleter = (*Store)(nil)
	_ provider.ObjectStatter = (*Store)(nil)
)

// New creates a new S3 store with the given configuration.
//
// The store uses AWS SDK v2's default credential chain unless explicit
// credentials are provided in the config.
func New(ctx context.Context, cfg Config) (*Store, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	awsCfg, err := loadAWSConfig(ctx, cfg)
	if err != nil {
		return nil, &provider.StoreError{
			Op:    "New",
			Store: provider.StoreS3,
			Err:   err,
		}
	}

	s3Opts := []func(*s3.Options){
		func(o *s3.Options) {
			if cfg.ForcePathStyle {
				o.UsePathStyle = true
			}
		},
	}

	// Custom endpoint for S3-compatible stores
	if cfg.Endpoint != "" {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		})
	}

	client := s3.NewFromConfig(awsCfg, s3Opts...)

	maxKeys := cfg.MaxKeys
	if maxKeys <= 0 {
		maxKeys = DefaultMaxKeys
	}

	return &Store{
		client:  client,
		maxKeys: maxKeys,
	}, nil
}

// loadAWSConfig builds the AWS configuration with appropriate credentials.
func loadAWSConfig(ctx context.Context, cfg Config) (aws.Config, error) {
	var opts []func(*config.LoadOptions) error

	// Only apply explicit region if user set one in config.
	// Let SDK resolve from env/profile first.
	if cfg.Region != "" {
		opts = append(opts, config.WithRegion(cfg.Region))
	}

	if cfg.Profile != "" {
		opts = append(opts, config.WithSharedConfigProfile(cfg.Profile))
	}

	// Use explicit credentials if provided
	if cfg.AccessKeyID != "" && cfg.SecretAccessKey != "" {
		staticCreds := credentials.NewStaticCredentialsProvider(
			cfg.AccessKeyID,
			cfg.SecretAccessKey,
			"", // session token (empty for long-term credentials)
		)
		opts = append(opts, config.WithCredentialsProvider(staticCreds))
	}

	awsCfg, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return aws.Config{}, err
	}

	awsCfg.Region = resolveRegion(cfg.Region, cfg.Endpoint, awsCfg.Region)

	return awsCfg, nil
}

// ListBuckets returns all buckets visible to the credentials.
//
// S3 does not expose a per-bucket visibility flag through ListBuckets;
// buckets are reported as private.
func (s *Store) ListBuckets(ctx context.Context) ([]provider.BucketInfo, error) {
	output, err := s.client.ListBuckets(ctx, &s3.ListBucketsInput{})
	if err != nil {
		return nil, s.wrapError("ListBuckets", "", "", err)
	}

	infos := make([]provider.BucketInfo, 0, len(output.Buckets))
	for _, b := range output.Buckets {
		infos = append(infos, provider.BucketInfo{
			Name:      aws.ToString(b.Name),
			CreatedAt: aws.ToTime(b.CreationDate),
		})
	}
	return infos, nil
}

// CreateBucket creates a bucket.
//
// The public flag maps to the public-read canned ACL; stores with ACLs
// disabled reject it, so it is only sent when requested.
func (s *Store) CreateBucket(ctx context.Context, name string, public bool) error {
	input := &s3.CreateBucketInput{
		Bucket: aws.String(name),
	}
	if public {
		input.ACL = types.BucketCannedACLPublicRead
	}

	if _, err := s.client.CreateBucket(ctx, input); err != nil {
		return s.wrapError("CreateBucket", name, "", err)
	}
	return nil
}

// ListObjects returns a page of objects in the bucket.
func (s *Store) ListObjects(ctx context.Context, bucket string, opts provider.ListOptions) (*provider.ListResult, error) {
	maxKeys := clampMaxKeys(opts.MaxKeys, s.maxKeys)

	input := &s3.ListObjectsV2Input{
		Bucket:  aws.String(bucket),
		MaxKeys: aws.Int32(int32(maxKeys)),
	}

	if opts.Prefix != "" {
		input.Prefix = aws.String(opts.Prefix)
	}

	if opts.Token != "" {
		input.ContinuationToken = aws.String(opts.Token)
	}

	output, err := s.client.ListObjectsV2(ctx, input)
	if err != nil {
		return nil, s.wrapError("ListObjects", bucket, "", err)
	}

	objects := make([]provider.ObjectInfo, 0, len(output.Contents))
	for _, obj := range output.Contents {
		objects = append(objects, provider.ObjectInfo{
			Key:          aws.ToString(obj.Key),
			Size:         aws.ToInt64(obj.Size),
			LastModified: aws.ToTime(obj.LastModified),
		})
	}

	result := &provider.ListResult{
		Objects:     objects,
		IsTruncated: aws.ToBool(output.IsTruncated),
	}

	if output.NextContinuationToken != nil {
		result.Token = *output.NextContinuationToken
	}

	return result, nil
}

// StatObject returns metadata for a single object.
func (s *Store) StatObject(ctx context.Context, bucket, key string) (*provider.ObjectInfo, error) {
	output, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, s.wrapError("StatObject", bucket, key, err)
	}

	return &provider.ObjectInfo{
		Key:          key,
		Size:         aws.ToInt64(output.ContentLength),
		ContentType:  aws.ToString(output.ContentType),
		LastModified: aws.ToTime(output.LastModified),
	}, nil
}

// GetObject downloads an object as a stream.
func (s *Store) GetObject(ctx context.Context, bucket, key string) (io.ReadCloser, int64, error) {
	output, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, 0, s.wrapError("GetObject", bucket, key, err)
	}
	return output.Body, aws.ToInt64(output.ContentLength), nil
}

// PutObject uploads an object.
//
// S3 PUT overwrites by default, so the no-overwrite contract is enforced
// with a preceding head check.
func (s *Store) PutObject(ctx context.Context, bucket, key string, body io.Reader, contentLength int64, opts provider.PutOptions) error {
	if !opts.Overwrite {
		if _, err := s.StatObject(ctx, bucket, key); err == nil {
			return &provider.StoreError{
				Op:     "PutObject",
				Store:  provider.StoreS3,
				Bucket: bucket,
				Key:    key,
				Err:    provider.ErrObjectExists,
			}
		} else if !provider.IsNotFound(err) {
			return err
		}
	}

	input := &s3.PutObjectInput{
		Bucket:        aws.String(bucket),
		Key:           aws.String(key),
		Body:          body,
		ContentLength: &contentLength,
	}
	if opts.ContentType != "" {
		input.ContentType = aws.String(opts.ContentType)
	}

	if _, err := s.client.PutObject(ctx, input); err != nil {
		return s.wrapError("PutObject", bucket, key, err)
	}
	return nil
}

// DeleteObject deletes an object.
func (s *Store) DeleteObject(ctx context.Context, bucket, key string) error {
	_, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return s.wrapError("DeleteObject", bucket, key, err)
	}
	return nil
}

// Close releases any resources held by the store.
// The S3 client doesn't require explicit cleanup, but this satisfies the interface.
func (s *Store) Close() error {
	return nil
}

// wrapError converts S3 errors to store errors with appropriate sentinel errors.
func (s *Store) wrapError(op, bucket, key string, err error) error {
	wrapped := &provider.StoreError{
		Op:     op,
		Store:  provider.StoreS3,
		Bucket: bucket,
		Key:    key,
		Err:    err,
	}

	// Check for specific S3 error types first
	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	var noSuchBucket *types.NoSuchBucket
	var bucketExists *types.BucketAlreadyExists
	var bucketOwned *types.BucketAlreadyOwnedByYou

	switch {
	case errors.As(err, &notFound), errors.As(err, &noSuchKey):
		wrapped.Err = provider.ErrNotFound
		return wrapped
	case errors.As(err, &noSuchBucket):
		wrapped.Err = provider.ErrBucketNotFound
		return wrapped
	case errors.As(err, &bucketExists), errors.As(err, &bucketOwned):
		wrapped.Err = provider.ErrBucketExists
		return wrapped
	}

	// Check smithy API errors for error codes
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		code := apiErr.ErrorCode()
		switch code {
		case "NoSuchKey", "NotFound":
			wrapped.Err = provider.ErrNotFound
		case "NoSuchBucket":
			wrapped.Err = provider.ErrBucketNotFound
		case "BucketAlreadyExists", "BucketAlreadyOwnedByYou":
			wrapped.Err = provider.ErrBucketExists
		case "AccessDenied", "Forbidden":
			wrapped.Err = provider.ErrAccessDenied
		case "InvalidAccessKeyId", "SignatureDoesNotMatch":
			wrapped.Err = provider.ErrInvalidCredentials
		case "ServiceUnavailable", "InternalError", "SlowDown":
			wrapped.Err = provider.ErrStoreUnavailable
		}
		return wrapped
	}

	// Fallback: check error message for common cases
	errMsg := err.Error()
	switch {
	case strings.Contains(errMsg, "NoSuchKey") || strings.Contains(errMsg, "NotFound") || strings.Contains(errMsg, "404"):
		wrapped.Err = provider.ErrNotFound
	case strings.Contains(errMsg, "NoSuchBucket"):
		wrapped.Err = provider.ErrBucketNotFound
	case strings.Contains(errMsg, "BucketAlready"):
		wrapped.Err = provider.ErrBucketExists
	case strings.Contains(errMsg, "AccessDenied") || strings.Contains(errMsg, "Forbidden") || strings.Contains(errMsg, "403"):
		wrapped.Err = provider.ErrAccessDenied
	case strings.Contains(errMsg, "InvalidAccessKeyId") || strings.Contains(errMsg, "SignatureDoesNotMatch"):
		wrapped.Err = provider.ErrInvalidCredentials
	case strings.Contains(errMsg, "ServiceUnavailable") || strings.Contains(errMsg, "503") || strings.Contains(errMsg, "connection refused"):
		wrapped.Err = provider.ErrStoreUnavailable
	}

	return wrapped
}

// clampMaxKeys applies defaults and limits to maxKeys values.
// If requested is <= 0, uses storeDefault. Result is clamped to MaxAllowedKeys.
func clampMaxKeys(requested, storeDefault int) int {
	if requested <= 0 {
		requested = storeDefault
	}
	if requested > MaxAllowedKeys {
		return MaxAllowedKeys
	}
	return requested
}

// resolveRegion determines the final region to use after SDK config loading.
//
// The sdkRegion parameter is the region after SDK loading, which already
// incorporates explicit cfgRegion (if set) or env/profile resolution. This
// function only applies the fallback default:
//   - If sdkRegion is still empty AND no custom endpoint, default to us-east-1
//   - For S3-compatible stores (endpoint set), no defaulting occurs
func resolveRegion(cfgRegion, endpoint, sdkRegion string) string {
	_ = cfgRegion

	// SDK already resolved region (from explicit config, env, or profile)
	if sdkRegion != "" {
		return sdkRegion
	}

	// Only default for AWS S3 (no custom endpoint)
	if endpoint == "" {
		return DefaultAWSRegion
	}

	// S3-compatible: no default, endpoint may not need region
	return ""
}
