package cache

import (
	"strings"

	"github.com/patidost/listing-service/internal/listing/domain"
)

// Filter narrows a snapshot the way the browse screens do. Zero fields match
// everything.
type Filter struct {
	Species domain.Species
	Purpose domain.Purpose
	// Query is matched case-insensitively against name and breed.
	Query   string
	OwnerID string
}

func (f Filter) Match(l *domain.Listing) bool {
	if f.Species != "" && l.Species != f.Species {
		return false
	}
	if f.Purpose != "" && l.Purpose != f.Purpose {
		return false
	}
	if f.OwnerID != "" && l.OwnerID != f.OwnerID {
		return false
	}
	q := strings.ToLower(strings.TrimSpace(f.Query))
	if q == "" {
		return true
	}
	return strings.Contains(strings.ToLower(l.Name), q) ||
		strings.Contains(strings.ToLower(l.Breed), q)
}

// Select keeps the order of listings.
func (f Filter) Select(listings []*domain.Listing) []*domain.Listing {
	out := make([]*domain.Listing, 0, len(listings))
	for _, l := range listings {
		if f.Match(l) {
			out = append(out, l)
		}
	}
	return out
}

// Select reads the snapshot through f.
func (c *Cache) Select(f Filter) []*domain.Listing {
	return f.Select(c.Read())
}
