package domain

import (
	"sort"
	"strings"
	"time"
)

type Species string

const (
	SpeciesCat Species = "cat"
	SpeciesDog Species = "dog"
)

func (s Species) Valid() bool {
	return s == SpeciesCat || s == SpeciesDog
}

type Purpose string

const (
	PurposeAdoption Purpose = "adoption"
	PurposeBreeding Purpose = "breeding"
)

func (p Purpose) Valid() bool {
	return p == PurposeAdoption || p == PurposeBreeding
}

// UnknownOwnerName is shown when the owner's profile could not be joined.
const UnknownOwnerName = "Unknown"

// Listing is one adoption or breeding advertisement as read from the store.
// OwnerName and OwnerPhotoURL are filled by the read-time join with profiles
// and are never written back.
type Listing struct {
	ID          int64
	OwnerID     string
	Name        string
	Species     Species
	Breed       string
	Age         int
	Purpose     Purpose
	Description string
	Location    string
	ImageURL    string
	Gallery     []string
	CreatedAt   time.Time

	OwnerName     string
	OwnerPhotoURL string
}

// DisplayOwner returns the joined owner name or UnknownOwnerName.
func (l *Listing) DisplayOwner() string {
	if strings.TrimSpace(l.OwnerName) == "" {
		return UnknownOwnerName
	}
	return l.OwnerName
}

// MediaURLs returns the primary image and gallery URLs without duplicates.
func (l *Listing) MediaURLs() []string {
	seen := make(map[string]struct{}, len(l.Gallery)+1)
	urls := make([]string, 0, len(l.Gallery)+1)
	for _, u := range append([]string{l.ImageURL}, l.Gallery...) {
		if u == "" {
			continue
		}
		if _, ok := seen[u]; ok {
			continue
		}
		seen[u] = struct{}{}
		urls = append(urls, u)
	}
	return urls
}

func (l *Listing) Clone() *Listing {
	if l == nil {
		return nil
	}
	c := *l
	if l.Gallery != nil {
		c.Gallery = append([]string(nil), l.Gallery...)
	}
	return &c
}

// Image is a pending local image waiting to be uploaded.
type Image struct {
	Name        string
	ContentType string
	Data        []byte
}

// Draft is the input of a create. Age is a pointer so that a missing age can
// be told apart from a zero-year-old pet.
type Draft struct {
	Name        string
	Species     Species
	Breed       string
	Age         *int
	Purpose     Purpose
	Description string
	Location    string
	Images      []Image
}

// Patch carries the fields of an update; nil fields are left untouched.
type Patch struct {
	Name        *string
	Species     *Species
	Breed       *string
	Age         *int
	Purpose     *Purpose
	Description *string
	Location    *string
	Image       *Image

	// set by the mutation layer after a replacement image is uploaded
	ImageURL *string
	Gallery  []string
}

// HasFieldChanges reports whether the patch touches any column.
func (p Patch) HasFieldChanges() bool {
	return p.Name != nil || p.Species != nil || p.Breed != nil || p.Age != nil ||
		p.Purpose != nil || p.Description != nil || p.Location != nil ||
		p.ImageURL != nil || p.Gallery != nil
}

// Apply copies the patched fields onto l.
func (p Patch) Apply(l *Listing) {
	if p.Name != nil {
		l.Name = *p.Name
	}
	if p.Species != nil {
		l.Species = *p.Species
	}
	if p.Breed != nil {
		l.Breed = *p.Breed
	}
	if p.Age != nil {
		l.Age = *p.Age
	}
	if p.Purpose != nil {
		l.Purpose = *p.Purpose
	}
	if p.Description != nil {
		l.Description = *p.Description
	}
	if p.Location != nil {
		l.Location = *p.Location
	}
	if p.ImageURL != nil {
		l.ImageURL = *p.ImageURL
	}
	if p.Gallery != nil {
		l.Gallery = append([]string(nil), p.Gallery...)
	}
}

// SortListings orders newest first; equal timestamps fall back to the
// identifier, highest first, so repeated reads never reorder.
func SortListings(listings []*Listing) {
	sort.SliceStable(listings, func(i, j int) bool {
		a, b := listings[i], listings[j]
		if !a.CreatedAt.Equal(b.CreatedAt) {
			return a.CreatedAt.After(b.CreatedAt)
		}
		return a.ID > b.ID
	})
}
