// Package blob uploads generated images to S3-compatible object storage.
// Storage is best effort: when no bucket or credentials are configured the
// uploader runs disabled and callers fall back to inline data URLs.
package blob

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"promptcanvas/internal/config"
)

// ErrDisabled is returned when uploads are attempted without a configured
// bucket.
var ErrDisabled = errors.New("blob: storage is not configured")

// Uploader is the minimal blob interface the HTTP layer depends on.
type Uploader interface {
	Enabled() bool
	Upload(ctx context.Context, key string, data []byte, contentType string) (url string, err error)
	DownloadURL(ctx context.Context, key string, expires time.Duration) (string, error)
	Delete(ctx context.Context, key string) error
}

// S3Uploader stores image blobs in an S3 bucket.
type S3Uploader struct {
	bucket    string
	urlPrefix string
	client    *s3.Client
	logger    *slog.Logger
	disabled  bool
}

// NewS3Uploader creates an uploader from the S3 configuration. Missing
// bucket or credentials yield a disabled uploader rather than an error, so
// the service can run without object storage.
func NewS3Uploader(ctx context.Context, cfg config.S3Config, logger *slog.Logger) (*S3Uploader, error) {
	log := logger.With("component", "blob")
	u := &S3Uploader{
		bucket:    strings.TrimSpace(cfg.Bucket),
		urlPrefix: strings.TrimSuffix(cfg.PublicURLPrefix, "/"),
		logger:    log,
	}

	if u.bucket == "" || cfg.AccessKeyID == "" || cfg.SecretAccessKey == "" {
		log.Warn("S3 bucket or credentials not set; image uploads are disabled and responses will use data URLs")
		u.disabled = true
		return u, nil
	}

	region := cfg.Region
	if region == "" {
		region = "us-east-1"
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, "")),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to load aws config: %w", err)
	}

	u.client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
		}
		o.UsePathStyle = cfg.UsePathStyle
	})

	if u.urlPrefix == "" {
		u.urlPrefix = fmt.Sprintf("https://%s.s3.%s.amazonaws.com", u.bucket, region)
	}
	return u, nil
}

// Enabled reports whether uploads will be attempted.
func (u *S3Uploader) Enabled() bool {
	return !u.disabled
}

// Upload stores data under key and returns its public URL.
func (u *S3Uploader) Upload(ctx context.Context, key string, data []byte, contentType string) (string, error) {
	if u.disabled {
		return "", ErrDisabled
	}

	_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(u.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String(contentType),
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s: %w", key, err)
	}

	u.logger.Info("Blob uploaded", "key", key, "bytes", len(data))
	return u.urlPrefix + "/" + key, nil
}

// DownloadURL returns a presigned GET URL for the blob stored under key,
// valid for the given duration.
func (u *S3Uploader) DownloadURL(ctx context.Context, key string, expires time.Duration) (string, error) {
	if u.disabled {
		return "", ErrDisabled
	}

	presigner := s3.NewPresignClient(u.client)
	req, err := presigner.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(expires))
	if err != nil {
		return "", fmt.Errorf("failed to presign %s: %w", key, err)
	}
	return req.URL, nil
}

// Delete removes the blob stored under key. Missing objects are not an
// error.
func (u *S3Uploader) Delete(ctx context.Context, key string) error {
	if u.disabled {
		return ErrDisabled
	}

	_, err := u.client.DeleteObject(ctx, &s3.DeleteObjectInput{
		Bucket: aws.String(u.bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return fmt.Errorf("failed to delete %s: %w", key, err)
	}

	u.logger.Info("Blob deleted", "key", key)
	return nil
}
