package usecase

import (
	"context"
	"fmt"

	"github.com/patidost/listing-service/internal/listing/domain"
	"github.com/patidost/listing-service/internal/platform/logger"
	"github.com/patidost/listing-service/internal/platform/metrics"
)

// Progress is told how many of total images are stored after each upload.
type Progress func(done, total int)

// PhotoUsecase moves listing images in and out of the pet-images bucket.
type PhotoUsecase struct {
	storage domain.ObjectStorage
	metrics *metrics.Metrics
	logger  *logger.Logger
}

func NewPhotoUsecase(storage domain.ObjectStorage, m *metrics.Metrics, log *logger.Logger) *PhotoUsecase {
	return &PhotoUsecase{storage: storage, metrics: m, logger: log.Named("PhotoUsecase")}
}

// UploadAll stores images one after another under ownerID and returns their
// public URLs in upload order. On failure the images already stored are
// removed on a best-effort basis.
func (uc *PhotoUsecase) UploadAll(ctx context.Context, ownerID string, images []domain.Image, progress Progress) ([]string, error) {
	urls := make([]string, 0, len(images))
	for i, img := range images {
		url, err := uc.Upload(ctx, ownerID, img, false)
		if err != nil {
			uc.RemoveAll(ctx, urls, "upload_rollback")
			return nil, fmt.Errorf("failed to upload image %d of %d: %w", i+1, len(images), err)
		}
		urls = append(urls, url)
		if progress != nil {
			progress(i+1, len(images))
		}
	}
	return urls, nil
}

func (uc *PhotoUsecase) Upload(ctx context.Context, ownerID string, img domain.Image, upsert bool) (string, error) {
	path := domain.ObjectPath(ownerID, img)
	url, err := uc.storage.Upload(ctx, path, img.Data, domain.ContentTypeOf(img), upsert)
	uc.metrics.ImageUpload(err)
	if err != nil {
		uc.logger.Error("PhotoUsecase.Upload: upload failed", "path", path, "error", err)
		return "", err
	}
	uc.logger.Debug("PhotoUsecase.Upload: stored image", "path", path, "bytes", len(img.Data))
	return url, nil
}

// RemoveAll deletes the objects behind urls. Failures are logged and
// counted under kind, never returned.
func (uc *PhotoUsecase) RemoveAll(ctx context.Context, urls []string, kind string) {
	for _, url := range urls {
		path, ok := uc.storage.PathFromURL(url)
		if !ok {
			uc.logger.Warn("PhotoUsecase.RemoveAll: URL outside the bucket, skipping", "url", url)
			continue
		}
		if err := uc.storage.Remove(ctx, path); err != nil {
			uc.metrics.CleanupFailed(kind)
			uc.logger.Warn("PhotoUsecase.RemoveAll: object not removed", "path", path, "kind", kind, "error", err)
		}
	}
}
