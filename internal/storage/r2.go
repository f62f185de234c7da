package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// R2Storage keeps artifacts in a Cloudflare R2 bucket. R2 speaks the S3
// API, so the AWS SDK is pointed at the account endpoint.
type R2Storage struct {
	client *s3.Client
	bucket string
	logger *slog.Logger
}

// NewR2Storage builds an R2 client for cfg. The endpoint is
// https://{account_id}.r2.cloudflarestorage.com.
func NewR2Storage(cfg R2Config, logger *slog.Logger) (*R2Storage, error) {
	region := cfg.Region
	if region == "" {
		region = "auto"
	}
	endpoint := fmt.Sprintf("https://%s.r2.cloudflarestorage.com", cfg.AccountID)

	client := s3.NewFromConfig(aws.Config{
		Region:      region,
		Credentials: credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
	}, func(o *s3.Options) {
		o.BaseEndpoint = aws.String(endpoint)
	})

	logger.Info("initialized R2 storage", "bucket", cfg.BucketName, "endpoint", endpoint)

	return &R2Storage{client: client, bucket: cfg.BucketName, logger: logger}, nil
}

func (s *R2Storage) fail(op, key string, err error) *StorageError {
	return &StorageError{Op: op, Key: key, Err: err}
}

// Put uploads data under key. Without opts.Overwrite a HeadObject check
// rejects existing keys; the check is not atomic against a concurrent
// upload, which is acceptable since keys embed a fresh UUID.
func (s *R2Storage) Put(ctx context.Context, key string, data io.Reader, opts PutOptions) error {
	if err := validateR2Key(key); err != nil {
		return s.fail("Put", key, err)
	}

	if !opts.Overwrite {
		exists, err := s.Exists(ctx, key)
		if err != nil {
			return s.fail("Put", key, fmt.Errorf("check existence: %w", err))
		}
		if exists {
			return s.fail("Put", key, ErrKeyExists)
		}
	}

	out, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        data,
		ContentType: aws.String(opts.ContentType),
	})
	if err != nil {
		return s.fail("Put", key, classifyS3Error(err))
	}

	s.logger.Debug("stored artifact in R2",
		"key", key,
		"etag", aws.ToString(out.ETag),
		"content_type", opts.ContentType,
	)
	return nil
}

// Get streams the object at key. The caller owns the returned reader.
func (s *R2Storage) Get(ctx context.Context, key string) (io.ReadCloser, ObjectInfo, error) {
	if err := validateR2Key(key); err != nil {
		return nil, ObjectInfo{}, s.fail("Get", key, err)
	}

	out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, ObjectInfo{}, s.fail("Get", key, classifyS3Error(err))
	}

	return out.Body, ObjectInfo{
		Key:          key,
		Size:         aws.ToInt64(out.ContentLength),
		ContentType:  aws.ToString(out.ContentType),
		LastModified: aws.ToTime(out.LastModified),
		ETag:         aws.ToString(out.ETag),
	}, nil
}

// Delete removes the object at key. S3 deletes are idempotent.
func (s *R2Storage) Delete(ctx context.Context, key string) error {
	if err := validateR2Key(key); err != nil {
		return s.fail("Delete", key, err)
	}

	if _, err := s.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}); err != nil {
		return s.fail("Delete", key, classifyS3Error(err))
	}
	return nil
}

// Exists checks for the object with HeadObject.
func (s *R2Storage) Exists(ctx context.Context, key string) (bool, error) {
	if err := validateR2Key(key); err != nil {
		return false, s.fail("Exists", key, err)
	}

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		if errors.Is(classifyS3Error(err), ErrNotFound) {
			return false, nil
		}
		return false, s.fail("Exists", key, classifyS3Error(err))
	}
	return true, nil
}

func validateR2Key(key string) error {
	if key == "" || strings.Contains(key, "..") {
		return ErrInvalidKey
	}
	return nil
}

// classifyS3Error maps SDK errors onto the package sentinels so callers
// can branch without knowing the SDK's error taxonomy.
func classifyS3Error(err error) error {
	if err == nil {
		return nil
	}

	var notFound *types.NotFound
	var noSuchKey *types.NoSuchKey
	if errors.As(err, &notFound) || errors.As(err, &noSuchKey) {
		return ErrNotFound
	}

	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		switch apiErr.ErrorCode() {
		case "NotFound", "NoSuchKey":
			return ErrNotFound
		case "AccessDenied", "Forbidden":
			return ErrAccessDenied
		}
	}

	if httpErr, ok := err.(interface{ HTTPStatusCode() int }); ok {
		switch httpErr.HTTPStatusCode() {
		case http.StatusNotFound:
			return ErrNotFound
		case http.StatusForbidden:
			return ErrAccessDenied
		}
	}

	return fmt.Errorf("R2 operation failed: %w", err)
}
