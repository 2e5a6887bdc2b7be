// Package photos stores report photos and marker icons in an S3 compatible
// bucket.
package photos

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/url"
	"path"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	"go.uber.org/zap"
)

var (
	ErrNotConfigured = errors.New("photo storage not configured")
	ErrNotFound      = errors.New("object not found")
)

// Config holds the bucket connection settings.
type Config struct {
	Endpoint  string
	AccessKey string
	SecretKey string
	Bucket    string
	UseSSL    bool
	URLTTL    time.Duration
}

type objectClient interface {
	BucketExists(ctx context.Context, bucket string) (bool, error)
	MakeBucket(ctx context.Context, bucket string, opts minio.MakeBucketOptions) error
	PutObject(ctx context.Context, bucket, key string, r io.Reader, size int64, opts minio.PutObjectOptions) (minio.UploadInfo, error)
	StatObject(ctx context.Context, bucket, key string, opts minio.StatObjectOptions) (minio.ObjectInfo, error)
	PresignedGetObject(ctx context.Context, bucket, key string, expiry time.Duration, params url.Values) (*url.URL, error)
	RemoveObject(ctx context.Context, bucket, key string, opts minio.RemoveObjectOptions) error
}

// Storage is the report photo bucket. A nil *Storage answers
// ErrNotConfigured.
type Storage struct {
	client objectClient
	bucket string
	urlTTL time.Duration
	logger *zap.Logger
}

// New connects to the bucket and creates it when missing.
func New(ctx context.Context, cfg Config, logger *zap.Logger) (*Storage, error) {
	if strings.TrimSpace(cfg.Endpoint) == "" {
		return nil, ErrNotConfigured
	}
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("create minio client: %w", err)
	}
	s := newWithClient(client, cfg, logger)
	if err := s.ensureBucket(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func newWithClient(client objectClient, cfg Config, logger *zap.Logger) *Storage {
	if logger == nil {
		logger = zap.NewNop()
	}
	ttl := cfg.URLTTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	bucket := cfg.Bucket
	if bucket == "" {
		bucket = "kampus-reports"
	}
	return &Storage{client: client, bucket: bucket, urlTTL: ttl, logger: logger}
}

func (s *Storage) ensureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.bucket)
	if err != nil {
		return fmt.Errorf("check bucket %s: %w", s.bucket, err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.bucket, minio.MakeBucketOptions{}); err != nil {
		return fmt.Errorf("create bucket %s: %w", s.bucket, err)
	}
	s.logger.Info("created photo bucket", zap.String("bucket", s.bucket))
	return nil
}

// PhotoKey is where the photo of a report lives.
func PhotoKey(reportID, contentType string) string {
	ext := ".jpg"
	switch contentType {
	case "image/png":
		ext = ".png"
	case "image/webp":
		ext = ".webp"
	}
	return path.Join("reports", reportID+ext)
}

// Put uploads a report photo and returns its object key.
func (s *Storage) Put(ctx context.Context, reportID, contentType string, r io.Reader, size int64) (string, error) {
	if s == nil {
		return "", ErrNotConfigured
	}
	if contentType == "" {
		contentType = "image/jpeg"
	}
	key := PhotoKey(reportID, contentType)
	_, err := s.client.PutObject(ctx, s.bucket, key, r, size, minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("upload photo %s: %w", key, err)
	}
	return key, nil
}

// URL returns a presigned download link for key.
func (s *Storage) URL(ctx context.Context, key string) (string, error) {
	if s == nil {
		return "", ErrNotConfigured
	}
	u, err := s.client.PresignedGetObject(ctx, s.bucket, key, s.urlTTL, nil)
	if err != nil {
		return "", fmt.Errorf("presign %s: %w", key, err)
	}
	return u.String(), nil
}

// Exists reports whether key is present.
func (s *Storage) Exists(ctx context.Context, key string) error {
	if s == nil {
		return ErrNotConfigured
	}
	_, err := s.client.StatObject(ctx, s.bucket, key, minio.StatObjectOptions{})
	if err == nil {
		return nil
	}
	if minio.ToErrorResponse(err).Code == "NoSuchKey" {
		return ErrNotFound
	}
	return fmt.Errorf("stat %s: %w", key, err)
}

// Delete removes key. Missing objects are not an error.
func (s *Storage) Delete(ctx context.Context, key string) error {
	if s == nil {
		return ErrNotConfigured
	}
	if key == "" {
		return nil
	}
	if err := s.client.RemoveObject(ctx, s.bucket, key, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("delete %s: %w", key, err)
	}
	return nil
}
