package domain

import "context"

// ListingRepository is the row-level view of the remote pets table. Writes
// carry the acting user so the store's access policy can decide ownership.
type ListingRepository interface {
	List(ctx context.Context) ([]*Listing, error)
	FindByID(ctx context.Context, id int64) (*Listing, error)
	Insert(ctx context.Context, actorID string, listing *Listing) error
	Update(ctx context.Context, actorID string, id int64, patch Patch) error
	Delete(ctx context.Context, actorID string, id int64) error
}

// ObjectStorage stores listing images and avatars.
type ObjectStorage interface {
	Upload(ctx context.Context, path string, data []byte, contentType string, upsert bool) (string, error)
	Remove(ctx context.Context, path string) error
	PathFromURL(publicURL string) (string, bool)
}
