// Package storage keeps generated documents in a MinIO bucket.
package storage

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"

	"submission-workflow/internal/common/config"
	"submission-workflow/internal/common/logger"
	"submission-workflow/internal/core/documents"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// MinioStorage uploads documents into a single bucket and hands back the
// URL recorded on the document.
type MinioStorage struct {
	client *minio.Client
	cfg    config.MinioConfig
	logger logger.Logger
}

var _ documents.ObjectStorage = (*MinioStorage)(nil)

// NewMinioStorage initializes the client. It does not contact the server;
// call EnsureBucket during startup.
func NewMinioStorage(cfg config.MinioConfig, log logger.Logger) (*MinioStorage, error) {
	endpoint := strings.TrimPrefix(cfg.Endpoint, "http://")
	endpoint = strings.TrimPrefix(endpoint, "https://")

	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.Secure,
		Region: cfg.Region,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize MinIO client: %w", err)
	}
	return &MinioStorage{client: client, cfg: cfg, logger: log}, nil
}

// EnsureBucket creates the document bucket if it doesn't exist.
func (s *MinioStorage) EnsureBucket(ctx context.Context) error {
	exists, err := s.client.BucketExists(ctx, s.cfg.Bucket)
	if err != nil {
		return fmt.Errorf("error checking bucket existence: %w", err)
	}
	if exists {
		return nil
	}
	if err := s.client.MakeBucket(ctx, s.cfg.Bucket, minio.MakeBucketOptions{Region: s.cfg.Region}); err != nil {
		return fmt.Errorf("error creating bucket %s: %w", s.cfg.Bucket, err)
	}
	s.logger.Info("created document bucket", map[string]interface{}{"bucket": s.cfg.Bucket})
	return nil
}

func (s *MinioStorage) Upload(ctx context.Context, name, contentType string, data []byte) (string, error) {
	_, err := s.client.PutObject(ctx, s.cfg.Bucket, name, bytes.NewReader(data), int64(len(data)),
		minio.PutObjectOptions{ContentType: contentType})
	if err != nil {
		return "", fmt.Errorf("failed to upload %s to bucket %s: %w", name, s.cfg.Bucket, err)
	}
	s.logger.Debug("document uploaded", map[string]interface{}{
		"bucket": s.cfg.Bucket,
		"object": name,
		"bytes":  len(data),
	})
	return s.ObjectURL(name), nil
}

// ObjectURL is the public address of an object: PublicBaseURL when set,
// otherwise the bucket path on the MinIO endpoint.
func (s *MinioStorage) ObjectURL(name string) string {
	base := strings.TrimSuffix(s.cfg.PublicBaseURL, "/")
	if base == "" {
		base = s.client.EndpointURL().String()
	}
	return base + "/" + s.cfg.Bucket + "/" + escapePath(name)
}

func escapePath(name string) string {
	parts := strings.Split(name, "/")
	for i, p := range parts {
		parts[i] = url.PathEscape(p)
	}
	return strings.Join(parts, "/")
}
