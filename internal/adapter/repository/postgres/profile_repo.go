package postgres

import (
	"context"
	"errors"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/patidost/listing-service/internal/listing/domain"
	"github.com/patidost/listing-service/internal/platform/logger"
	"github.com/patidost/listing-service/internal/session"
)

type ProfileRepository struct {
	pool   *pgxpool.Pool
	logger *logger.Logger
}

func NewProfileRepository(pool *pgxpool.Pool, log *logger.Logger) *ProfileRepository {
	return &ProfileRepository{pool: pool, logger: log.Named("ProfileRepository")}
}

func (r *ProfileRepository) FindByID(ctx context.Context, id string) (*session.Profile, error) {
	var p session.Profile
	err := r.pool.QueryRow(ctx,
		"SELECT id::text, display_name, photo_url, city FROM profiles WHERE id::text = $1", id,
	).Scan(&p.ID, &p.DisplayName, &p.PhotoURL, &p.City)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, session.ErrProfileNotFound
	}
	if err != nil {
		return nil, classify(err)
	}
	return &p, nil
}

func (r *ProfileRepository) Create(ctx context.Context, actorID string, profile *session.Profile) error {
	err := runAs(ctx, r.pool, actorID, func(tx pgx.Tx) error {
		_, err := tx.Exec(ctx, `
INSERT INTO profiles (id, display_name, photo_url, city)
VALUES ($1::uuid, $2, $3, $4)
ON CONFLICT (id) DO UPDATE SET display_name = EXCLUDED.display_name`,
			actorID, profile.DisplayName, profile.PhotoURL, profile.City)
		return err
	})
	if err != nil {
		r.logger.Error("ProfileRepository.Create: insert failed", "user_id", actorID, "error", err)
		return err
	}
	profile.ID = actorID
	return nil
}

func (r *ProfileRepository) Update(ctx context.Context, actorID string, profile *session.Profile) error {
	err := runAs(ctx, r.pool, actorID, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx,
			"UPDATE profiles SET display_name = $1, photo_url = $2, city = $3 WHERE id::text = $4",
			profile.DisplayName, profile.PhotoURL, profile.City, actorID)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return domain.ErrUnauthorized
		}
		return nil
	})
	if err != nil {
		r.logger.Error("ProfileRepository.Update: update failed", "user_id", actorID, "error", err)
	}
	return err
}
