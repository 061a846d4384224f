// Package gcs stores listing images and avatars in a Google Cloud Storage
// bucket.
package gcs

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"cloud.google.com/go/storage"
	"google.golang.org/api/googleapi"

	"github.com/patidost/listing-service/internal/listing/domain"
	"github.com/patidost/listing-service/internal/platform/logger"
)

const DefaultPublicBaseURL = "https://storage.googleapis.com"

var ErrObjectExists = errors.New("object already exists")

type Storage struct {
	client  *storage.Client
	bucket  string
	baseURL string
	logger  *logger.Logger
}

// New does not check the bucket; credentials come from the environment of
// client.
func New(client *storage.Client, bucket, publicBaseURL string, log *logger.Logger) *Storage {
	base := strings.TrimRight(publicBaseURL, "/")
	if base == "" {
		base = DefaultPublicBaseURL
	}
	return &Storage{
		client:  client,
		bucket:  bucket,
		baseURL: base + "/" + bucket + "/",
		logger:  log.Named("GCSStorage"),
	}
}

func (s *Storage) Upload(ctx context.Context, path string, data []byte, contentType string, upsert bool) (string, error) {
	obj := s.client.Bucket(s.bucket).Object(path)
	if !upsert {
		obj = obj.If(storage.Conditions{DoesNotExist: true})
	}
	w := obj.NewWriter(ctx)
	w.ContentType = contentType
	if _, err := w.Write(data); err != nil {
		if closeErr := w.Close(); closeErr != nil {
			s.logger.Warn("GCSStorage.Upload: failed to close writer after error", "error", closeErr)
		}
		return "", fmt.Errorf("write to storage: %w", classify(err))
	}
	if err := w.Close(); err != nil {
		var apiErr *googleapi.Error
		if errors.As(err, &apiErr) && apiErr.Code == http.StatusPreconditionFailed {
			return "", fmt.Errorf("%w: %s", ErrObjectExists, path)
		}
		s.logger.Error("GCSStorage.Upload: upload failed", "bucket", s.bucket, "key", path, "error", err)
		return "", fmt.Errorf("close storage writer: %w", classify(err))
	}
	return s.PublicURL(path), nil
}

// Remove treats a missing object as removed.
func (s *Storage) Remove(ctx context.Context, path string) error {
	err := s.client.Bucket(s.bucket).Object(path).Delete(ctx)
	if err != nil && !errors.Is(err, storage.ErrObjectNotExist) {
		return fmt.Errorf("delete from storage: %w", classify(err))
	}
	return nil
}

func (s *Storage) PublicURL(path string) string {
	return s.baseURL + (&url.URL{Path: path}).EscapedPath()
}

func (s *Storage) PathFromURL(publicURL string) (string, bool) {
	if !strings.HasPrefix(publicURL, s.baseURL) {
		return "", false
	}
	rest := strings.TrimPrefix(publicURL, s.baseURL)
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
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) {
		switch {
		case apiErr.Code == http.StatusUnauthorized || apiErr.Code == http.StatusForbidden:
			return fmt.Errorf("%w: %v", domain.ErrUnauthorized, err)
		case apiErr.Code >= 500 || apiErr.Code == http.StatusTooManyRequests:
			return fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
		}
		return err
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", domain.ErrUnavailable, err)
	}
	return err
}
