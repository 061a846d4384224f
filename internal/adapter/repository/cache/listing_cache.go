// Package cache persists the listing cache's last-known-good snapshot in
// Redis so a restarted process has something to show before the first fetch.
package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/patidost/listing-service/internal/listing/domain"
	"github.com/patidost/listing-service/internal/platform/logger"
)

const keyPrefix = "listings:snapshot:"

type snapshotEntry struct {
	ID            int64     `json:"id"`
	OwnerID       string    `json:"owner_id"`
	Name          string    `json:"name"`
	Species       string    `json:"species"`
	Breed         string    `json:"breed"`
	Age           int       `json:"age"`
	Purpose       string    `json:"purpose"`
	Description   string    `json:"description"`
	Location      string    `json:"location"`
	ImageURL      string    `json:"image_url"`
	Gallery       []string  `json:"gallery,omitempty"`
	CreatedAt     time.Time `json:"created_at"`
	OwnerName     string    `json:"owner_name,omitempty"`
	OwnerPhotoURL string    `json:"owner_photo_url,omitempty"`
}

type ListingCache struct {
	client *redis.Client
	ttl    time.Duration
	logger *logger.Logger
}

// NewListingCache connects to addr and pings it once.
func NewListingCache(ctx context.Context, addr, password string, db int, ttl time.Duration, log *logger.Logger) (*ListingCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("failed to reach redis at %s: %w", addr, err)
	}
	return NewListingCacheWithClient(client, ttl, log), nil
}

func NewListingCacheWithClient(client *redis.Client, ttl time.Duration, log *logger.Logger) *ListingCache {
	return &ListingCache{client: client, ttl: ttl, logger: log.Named("SnapshotStore")}
}

// Load returns the persisted snapshot of userID, or nil when none is stored.
func (c *ListingCache) Load(ctx context.Context, userID string) ([]*domain.Listing, error) {
	data, err := c.client.Get(ctx, keyPrefix+userID).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var entries []snapshotEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		c.logger.Warn("SnapshotStore.Load: discarding unreadable snapshot", "user_id", userID, "error", err)
		return nil, nil
	}
	listings := make([]*domain.Listing, 0, len(entries))
	for _, e := range entries {
		listings = append(listings, fromEntry(e))
	}
	return listings, nil
}

func (c *ListingCache) Save(ctx context.Context, userID string, listings []*domain.Listing) error {
	entries := make([]snapshotEntry, 0, len(listings))
	for _, l := range listings {
		entries = append(entries, toEntry(l))
	}
	data, err := json.Marshal(entries)
	if err != nil {
		return err
	}
	return c.client.Set(ctx, keyPrefix+userID, data, c.ttl).Err()
}

func (c *ListingCache) Delete(ctx context.Context, userID string) error {
	return c.client.Del(ctx, keyPrefix+userID).Err()
}

func (c *ListingCache) Close() error {
	return c.client.Close()
}

func toEntry(l *domain.Listing) snapshotEntry {
	return snapshotEntry{
		ID: l.ID, OwnerID: l.OwnerID, Name: l.Name, Species: string(l.Species), Breed: l.Breed,
		Age: l.Age, Purpose: string(l.Purpose), Description: l.Description, Location: l.Location,
		ImageURL: l.ImageURL, Gallery: l.Gallery, CreatedAt: l.CreatedAt,
		OwnerName: l.OwnerName, OwnerPhotoURL: l.OwnerPhotoURL,
	}
}

func fromEntry(e snapshotEntry) *domain.Listing {
	return &domain.Listing{
		ID: e.ID, OwnerID: e.OwnerID, Name: e.Name, Species: domain.Species(e.Species), Breed: e.Breed,
		Age: e.Age, Purpose: domain.Purpose(e.Purpose), Description: e.Description, Location: e.Location,
		ImageURL: e.ImageURL, Gallery: e.Gallery, CreatedAt: e.CreatedAt,
		OwnerName: e.OwnerName, OwnerPhotoURL: e.OwnerPhotoURL,
	}
}
