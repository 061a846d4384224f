package s3

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/patidost/listing-service/internal/listing/domain"
	"github.com/patidost/listing-service/internal/platform/logger"
)

// ErrObjectExists is returned by a non-upsert upload onto an existing key.
var ErrObjectExists = errors.New("object already exists")

// S3Storage keeps one bucket on a MinIO or S3 endpoint. Objects are served
// from PublicBaseURL, or from the endpoint itself when it is empty.
type S3Storage struct {
	client  *minio.Client
	bucket  string
	baseURL string
	logger  *logger.Logger
}

func NewClient(endpoint, accessKey, secretKey string, useSSL bool) (*minio.Client, error) {
	client, err := minio.New(endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(accessKey, secretKey, ""),
		Secure: useSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client for endpoint %s: %w", endpoint, err)
	}
	return client, nil
}

// NewS3Storage makes sure bucketName exists.
func NewS3Storage(ctx context.Context, client *minio.Client, bucketName, publicBaseURL string, log *logger.Logger) (*S3Storage, error) {
	log = log.Named("S3Storage")
	exists, err := client.BucketExists(ctx, bucketName)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket %s: %w", bucketName, classify(err))
	}
	if !exists {
		if err := client.MakeBucket(ctx, bucketName, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to make bucket %s: %w", bucketName, classify(err))
		}
		log.Info("S3Storage: bucket created", "bucket", bucketName)
	}

	base := strings.TrimRight(publicBaseURL, "/")
	if base == "" {
		base = client.EndpointURL().String()
	}
	return &S3Storage{
		client:  client,
		bucket:  bucketName,
		baseURL: base + "/" + bucketName + "/",
		logger:  log,
	}, nil
}

func (s *S3Storage) Upload(ctx context.Context, path string, data []byte, contentType string, upsert bool) (string, error) {
	if !upsert {
		_, err := s.client.StatObject(ctx, s.bucket, path, minio.StatObjectOptions{})
		if err == nil {
			return "", fmt.Errorf("%w: %s", ErrObjectExists, path)
		}
		if minio.ToErrorResponse(err).Code != "NoSuchKey" {
			return "", classify(err)
		}
	}

	info, err := s.client.PutObject(ctx, s.bucket, path, bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: contentType,
	})
	if err != nil {
		s.logger.Error("S3Storage.Upload: PutObject failed", "bucket", s.bucket, "key", path, "error", err)
		return "", fmt.Errorf("failed to upload object %s: %w", path, classify(err))
	}
	s.logger.Debug("S3Storage.Upload: uploaded", "key", info.Key, "size", info.Size)
	return s.PublicURL(path), nil
}

func (s *S3Storage) Remove(ctx context.Context, path string) error {
	if err := s.client.RemoveObject(ctx, s.bucket, path, minio.RemoveObjectOptions{}); err != nil {
		return fmt.Errorf("failed to remove object %s: %w", path, classify(err))
	}
	return nil
}

func (s *S3Storage) PublicURL(path string) string {
	return s.baseURL + (&url.URL{Path: path}).EscapedPath()
}

// PathFromURL reverses PublicURL. URLs of other buckets or hosts are
// rejected.
func (s *S3Storage) PathFromURL(publicURL string) (string, bool) {
	return pathFromURL(s.baseURL, publicURL)
}

func pathFromURL(baseURL, publicURL string) (string, bool) {
	if !strings.HasPrefix(publicURL, baseURL) {
		return "", false
	}
	rest := strings.TrimPrefix(publicURL, baseURL)
	if i := strings.IndexAny(rest, "?#"); i >= 0 {
		rest = rest[:i]
	}
	path, err := url.PathUnescape(rest)
	if err != nil || path == "" {
		return "", false
	}
	return path, true
}

func classify(err error) error {
	resp := minio.ToErrorResponse(err)
	switch {
	case resp.StatusCode == 401 || resp.StatusCode == 403:
		return fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
	case resp.StatusCode == 0 || resp.StatusCode >= 500:
		return fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	}
	return err
}
