package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/patidost/listing-service/internal/listing/domain"
	"github.com/patidost/listing-service/internal/platform/logger"
)

const selectListings = `
SELECT p.id, p.owner_id::text, p.name, p.species, p.breed, p.age, p.purpose,
       p.description, p.location, p.image_url, p.gallery, p.created_at,
       COALESCE(o.display_name, ''), COALESCE(o.photo_url, '')
FROM pets p
LEFT JOIN profiles o ON o.id = p.owner_id`

type ListingRepository struct {
	pool   *pgxpool.Pool
	logger *logger.Logger
}

func NewListingRepository(pool *pgxpool.Pool, log *logger.Logger) *ListingRepository {
	return &ListingRepository{pool: pool, logger: log.Named("ListingRepository")}
}

// List reads every listing with its owner's profile joined in, newest first.
func (r *ListingRepository) List(ctx context.Context) ([]*domain.Listing, error) {
	rows, err := r.pool.Query(ctx, selectListings+" ORDER BY p.created_at DESC, p.id DESC")
	if err != nil {
		r.logger.Error("ListingRepository.List: query failed", "error", err)
		return nil, classify(err)
	}
	listings, err := pgx.CollectRows(rows, scanListing)
	if err != nil {
		r.logger.Error("ListingRepository.List: scan failed", "error", err)
		return nil, classify(err)
	}
	r.logger.Debug("ListingRepository.List: fetched listings", "count", len(listings))
	return listings, nil
}

func (r *ListingRepository) FindByID(ctx context.Context, id int64) (*domain.Listing, error) {
	rows, err := r.pool.Query(ctx, selectListings+" WHERE p.id = $1", id)
	if err != nil {
		return nil, classify(err)
	}
	listing, err := pgx.CollectExactlyOneRow(rows, scanListing)
	if err != nil {
		return nil, classify(err)
	}
	return listing, nil
}

// Insert stores listing owned by actorID and fills in its ID and CreatedAt.
func (r *ListingRepository) Insert(ctx context.Context, actorID string, listing *domain.Listing) error {
	gallery := listing.Gallery
	if gallery == nil {
		gallery = []string{}
	}
	err := runAs(ctx, r.pool, actorID, func(tx pgx.Tx) error {
		return tx.QueryRow(ctx, `
INSERT INTO pets (owner_id, name, species, breed, age, purpose, description, location, image_url, gallery)
VALUES ($1::uuid, $2, $3, $4, $5, $6, $7, $8, $9, $10)
RETURNING id, created_at`,
			actorID, listing.Name, string(listing.Species), listing.Breed, listing.Age, string(listing.Purpose),
			listing.Description, listing.Location, listing.ImageURL, gallery,
		).Scan(&listing.ID, &listing.CreatedAt)
	})
	if err != nil {
		r.logger.Error("ListingRepository.Insert: insert failed", "owner_id", actorID, "error", err)
		return err
	}
	listing.OwnerID = actorID
	r.logger.Info("ListingRepository.Insert: listing stored", "listing_id", listing.ID, "owner_id", actorID)
	return nil
}

// Update writes the set fields of patch. Zero affected rows means either the
// row is gone or the access policy refused the write.
func (r *ListingRepository) Update(ctx context.Context, actorID string, id int64, patch domain.Patch) error {
	set, args := patchColumns(patch)
	if len(set) == 0 {
		return &domain.ValidationError{Fields: []string{"patch"}}
	}
	args = append(args, id, actorID)
	query := fmt.Sprintf("UPDATE pets SET %s WHERE id = $%d AND owner_id::text = $%d",
		strings.Join(set, ", "), len(args)-1, len(args))

	err := runAs(ctx, r.pool, actorID, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, query, args...)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return missingOrForbidden(ctx, tx, id)
		}
		return nil
	})
	if err != nil {
		r.logger.Warn("ListingRepository.Update: update failed", "listing_id", id, "actor_id", actorID, "error", err)
	}
	return err
}

func (r *ListingRepository) Delete(ctx context.Context, actorID string, id int64) error {
	err := runAs(ctx, r.pool, actorID, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, "DELETE FROM pets WHERE id = $1 AND owner_id::text = $2", id, actorID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return missingOrForbidden(ctx, tx, id)
		}
		return nil
	})
	if err != nil {
		r.logger.Warn("ListingRepository.Delete: delete failed", "listing_id", id, "actor_id", actorID, "error", err)
		return err
	}
	r.logger.Info("ListingRepository.Delete: listing deleted", "listing_id", id)
	return nil
}

// missingOrForbidden tells a deleted row from one the actor may not touch.
// Reads are open to everyone, so a row the actor cannot see does not exist.
func missingOrForbidden(ctx context.Context, tx pgx.Tx, id int64) error {
	var exists bool
	if err := tx.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM pets WHERE id = $1)", id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return domain.ErrListingNotFound
	}
	return domain.ErrUnauthorized
}

func scanListing(row pgx.CollectableRow) (*domain.Listing, error) {
	var (
		l                domain.Listing
		species, purpose string
	)
	err := row.Scan(&l.ID, &l.OwnerID, &l.Name, &species, &l.Breed, &l.Age, &purpose,
		&l.Description, &l.Location, &l.ImageURL, &l.Gallery, &l.CreatedAt,
		&l.OwnerName, &l.OwnerPhotoURL)
	if err != nil {
		return nil, err
	}
	l.Species = domain.Species(species)
	l.Purpose = domain.Purpose(purpose)
	return &l, nil
}

// patchColumns returns the SET assignments and their positional arguments.
func patchColumns(p domain.Patch) ([]string, []any) {
	var (
		set  []string
		args []any
	)
	add := func(column string, value any) {
		args = append(args, value)
		set = append(set, fmt.Sprintf("%s = $%d", column, len(args)))
	}
	if p.Name != nil {
		add("name", *p.Name)
	}
	if p.Species != nil {
		add("species", string(*p.Species))
	}
	if p.Breed != nil {
		add("breed", *p.Breed)
	}
	if p.Age != nil {
		add("age", *p.Age)
	}
	if p.Purpose != nil {
		add("purpose", string(*p.Purpose))
	}
	if p.Description != nil {
		add("description", *p.Description)
	}
	if p.Location != nil {
		add("location", *p.Location)
	}
	if p.ImageURL != nil {
		add("image_url", *p.ImageURL)
	}
	if p.Gallery != nil {
		add("gallery", p.Gallery)
	}
	return set, args
}
