package usecase

import (
	"context"
	"errors"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/patidost/listing-service/internal/listing/domain"
	"github.com/patidost/listing-service/internal/platform/logger"
	"github.com/patidost/listing-service/internal/platform/metrics"
	"github.com/patidost/listing-service/internal/session"
)

// IdentityProvider is implemented by *session.Manager.
type IdentityProvider interface {
	Current() *session.Identity
}

// Notifier tells an owner their listing was published.
type Notifier interface {
	SendListingCreatedEmail(toEmail, listingName string) error
}

// ListingUsecase performs writes against the remote store for the signed-in
// user. It never touches the listing cache; the change feed brings the
// result back.
type ListingUsecase struct {
	repo     domain.ListingRepository
	photos   *PhotoUsecase
	identity IdentityProvider
	notifier Notifier
	metrics  *metrics.Metrics
	logger   *logger.Logger
	tracer   trace.Tracer
}

func NewListingUsecase(repo domain.ListingRepository, photos *PhotoUsecase, identity IdentityProvider, notifier Notifier, m *metrics.Metrics, log *logger.Logger) *ListingUsecase {
	return &ListingUsecase{
		repo:     repo,
		photos:   photos,
		identity: identity,
		notifier: notifier,
		metrics:  m,
		logger:   log.Named("ListingUsecase"),
		tracer:   otel.Tracer("listing-usecase"),
	}
}

// Create validates draft, uploads its images in order and inserts one row
// whose primary image is the first upload.
func (uc *ListingUsecase) Create(ctx context.Context, draft domain.Draft, progress Progress) (listing *domain.Listing, err error) {
	identity := uc.identity.Current()
	if identity == nil {
		return nil, domain.ErrUnauthorized
	}
	if err := draft.Validate(); err != nil {
		uc.logger.Info("ListingUsecase.Create: rejected draft", "user_id", identity.UserID, "error", err)
		return nil, err
	}

	ctx, span := uc.tracer.Start(ctx, "ListingUsecase.Create", trace.WithAttributes(
		attribute.String("user.id", identity.UserID),
		attribute.Int("images.count", len(draft.Images)),
	))
	defer func() { uc.finish(span, "create", err) }()

	uc.logger.Info("ListingUsecase.Create: creating listing", "user_id", identity.UserID, "name", draft.Name, "images", len(draft.Images))

	urls, err := uc.photos.UploadAll(ctx, identity.UserID, draft.Images, progress)
	if err != nil {
		return nil, err
	}

	listing = &domain.Listing{
		OwnerID:     identity.UserID,
		Name:        draft.Name,
		Species:     draft.Species,
		Breed:       draft.Breed,
		Age:         *draft.Age,
		Purpose:     draft.Purpose,
		Description: draft.Description,
		Location:    draft.Location,
		ImageURL:    urls[0],
		Gallery:     urls,
	}
	if err = uc.repo.Insert(ctx, identity.UserID, listing); err != nil {
		uc.logger.Error("ListingUsecase.Create: failed to insert listing", "user_id", identity.UserID, "error", err)
		uc.photos.RemoveAll(ctx, urls, "insert_rollback")
		return nil, err
	}
	listing.OwnerName = identity.Profile.DisplayName
	listing.OwnerPhotoURL = identity.Profile.PhotoURL

	uc.logger.Info("ListingUsecase.Create: listing created", "listing_id", listing.ID, "user_id", identity.UserID)
	uc.notifyCreated(identity, listing)
	return listing, nil
}

// Update writes the patched fields of listing id. A replacement image is
// uploaded before the row is written; the previous primary object is then
// removed on a best-effort basis. Ownership is left to the store's policy.
func (uc *ListingUsecase) Update(ctx context.Context, id int64, patch domain.Patch) (err error) {
	identity := uc.identity.Current()
	if identity == nil {
		return domain.ErrUnauthorized
	}
	if err := patch.Validate(); err != nil {
		return err
	}

	ctx, span := uc.tracer.Start(ctx, "ListingUsecase.Update", trace.WithAttributes(
		attribute.Int64("listing.id", id),
		attribute.Bool("image.replaced", patch.Image != nil),
	))
	defer func() { uc.finish(span, "update", err) }()

	uc.logger.Info("ListingUsecase.Update: updating listing", "listing_id", id, "user_id", identity.UserID)

	var oldURL, newURL string
	if patch.Image != nil {
		current, err := uc.repo.FindByID(ctx, id)
		if err != nil {
			uc.logger.Error("ListingUsecase.Update: failed to find listing", "listing_id", id, "error", err)
			return err
		}
		oldURL = current.ImageURL

		newURL, err = uc.photos.Upload(ctx, identity.UserID, *patch.Image, true)
		if err != nil {
			return err
		}
		patch.ImageURL = &newURL
		patch.Gallery = replaceURL(current.Gallery, oldURL, newURL)
		patch.Image = nil
	}

	if err = uc.repo.Update(ctx, identity.UserID, id, patch); err != nil {
		uc.logger.Error("ListingUsecase.Update: failed to update listing", "listing_id", id, "error", err)
		if newURL != "" {
			uc.photos.RemoveAll(ctx, []string{newURL}, "update_rollback")
		}
		return err
	}

	if oldURL != "" && oldURL != newURL {
		uc.photos.RemoveAll(ctx, []string{oldURL}, "old_image")
	}
	uc.logger.Info("ListingUsecase.Update: listing updated", "listing_id", id)
	return nil
}

// Delete removes the row and afterwards every image it referenced. Once the
// row is gone the operation succeeds whatever happens to the images.
func (uc *ListingUsecase) Delete(ctx context.Context, listing *domain.Listing) (err error) {
	identity := uc.identity.Current()
	if identity == nil {
		return domain.ErrUnauthorized
	}
	if listing == nil {
		return domain.ErrListingNotFound
	}

	ctx, span := uc.tracer.Start(ctx, "ListingUsecase.Delete", trace.WithAttributes(
		attribute.Int64("listing.id", listing.ID),
	))
	defer func() { uc.finish(span, "delete", err) }()

	uc.logger.Info("ListingUsecase.Delete: deleting listing", "listing_id", listing.ID, "user_id", identity.UserID)

	if err = uc.repo.Delete(ctx, identity.UserID, listing.ID); err != nil {
		uc.logger.Error("ListingUsecase.Delete: failed to delete listing", "listing_id", listing.ID, "error", err)
		return err
	}

	uc.photos.RemoveAll(ctx, listing.MediaURLs(), "deleted_listing_media")
	uc.logger.Info("ListingUsecase.Delete: listing deleted", "listing_id", listing.ID)
	return nil
}

func (uc *ListingUsecase) GetListingByID(ctx context.Context, id int64) (*domain.Listing, error) {
	listing, err := uc.repo.FindByID(ctx, id)
	if err != nil {
		if !errors.Is(err, domain.ErrListingNotFound) {
			uc.logger.Warn("ListingUsecase.GetListingByID: failed to find listing", "listing_id", id, "error", err)
		}
		return nil, err
	}
	return listing, nil
}

func (uc *ListingUsecase) notifyCreated(identity *session.Identity, listing *domain.Listing) {
	if uc.notifier == nil || identity.Email == "" {
		return
	}
	if err := uc.notifier.SendListingCreatedEmail(identity.Email, listing.Name); err != nil {
		uc.metrics.NotificationFailed()
		uc.logger.Warn("ListingUsecase.Create: notification not sent", "listing_id", listing.ID, "error", err)
	}
}

func (uc *ListingUsecase) finish(span trace.Span, op string, err error) {
	uc.metrics.Mutation(op, err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func replaceURL(urls []string, old, replacement string) []string {
	out := make([]string, 0, len(urls)+1)
	replaced := false
	for _, u := range urls {
		if u == old && old != "" {
			if !replaced {
				out = append(out, replacement)
				replaced = true
			}
			continue
		}
		out = append(out, u)
	}
	if !replaced {
		out = append([]string{replacement}, out...)
	}
	return out
}
