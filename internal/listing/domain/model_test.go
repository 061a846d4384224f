package domain

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSortListings_TieBreakByIDDescending(t *testing.T) {
	at := time.Date(2024, 3, 1, 9, 0, 0, 0, time.UTC)
	listings := []*Listing{
		{ID: 1, CreatedAt: at},
		{ID: 5, CreatedAt: at.Add(-time.Minute)},
		{ID: 3, CreatedAt: at},
		{ID: 2, CreatedAt: at.Add(time.Minute)},
	}

	SortListings(listings)

	got := make([]int64, len(listings))
	for i, l := range listings {
		got[i] = l.ID
	}
	assert.Equal(t, []int64{2, 3, 1, 5}, got)
}

func TestListing_DisplayOwner(t *testing.T) {
	assert.Equal(t, UnknownOwnerName, (&Listing{}).DisplayOwner())
	assert.Equal(t, UnknownOwnerName, (&Listing{OwnerName: "  "}).DisplayOwner())
	assert.Equal(t, "Ayse", (&Listing{OwnerName: "Ayse"}).DisplayOwner())
}

func TestListing_MediaURLs(t *testing.T) {
	l := &Listing{ImageURL: "a", Gallery: []string{"a", "b", "", "b", "c"}}

	assert.Equal(t, []string{"a", "b", "c"}, l.MediaURLs())
	assert.Empty(t, (&Listing{}).MediaURLs())
}

func TestListing_CloneDoesNotShareGallery(t *testing.T) {
	l := &Listing{ID: 1, Gallery: []string{"a"}}

	c := l.Clone()
	c.Gallery[0] = "b"

	assert.Equal(t, "a", l.Gallery[0])
	assert.Nil(t, (*Listing)(nil).Clone())
}

func TestPatch_ApplyTouchesOnlySetFields(t *testing.T) {
	l := &Listing{ID: 1, Name: "Luna", Breed: "Van", Age: 2, Location: "Izmir"}
	age := 3

	Patch{Age: &age}.Apply(l)

	assert.Equal(t, &Listing{ID: 1, Name: "Luna", Breed: "Van", Age: 3, Location: "Izmir"}, l)
}

func TestDraft_Validate(t *testing.T) {
	age := 0
	valid := Draft{
		Name: "Luna", Species: SpeciesCat, Breed: "Van", Age: &age, Purpose: PurposeBreeding,
		Description: "d", Location: "l", Images: []Image{{Data: []byte{1}}},
	}
	require.NoError(t, valid.Validate())

	err := Draft{Images: []Image{{Name: "empty.jpg"}}}.Validate()
	var verr *ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"name", "species", "breed", "age", "purpose", "description", "location", "images"}, verr.Fields)
	assert.ErrorIs(t, err, ErrValidation)
	assert.True(t, strings.HasPrefix(err.Error(), ErrValidation.Error()))
}

func TestPatch_Validate(t *testing.T) {
	blank := " "
	negative := -1
	species := Species("bird")
	name := "Pamuk"

	tests := []struct {
		name   string
		patch  Patch
		fields []string
	}{
		{"empty", Patch{}, []string{"patch"}},
		{"blank name", Patch{Name: &blank}, []string{"name"}},
		{"negative age", Patch{Age: &negative}, []string{"age"}},
		{"unknown species", Patch{Species: &species}, []string{"species"}},
		{"empty image", Patch{Image: &Image{}}, []string{"image"}},
		{"valid", Patch{Name: &name}, nil},
		{"image only", Patch{Image: &Image{Data: []byte{1}}}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.patch.Validate()
			if tt.fields == nil {
				assert.NoError(t, err)
				return
			}
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, tt.fields, verr.Fields)
		})
	}
}

func TestObjectPath(t *testing.T) {
	p := ObjectPath("user-1", Image{Name: "Photo.PNG"})
	assert.True(t, strings.HasPrefix(p, "user-1/"))
	assert.True(t, strings.HasSuffix(p, ".png"))
	assert.NotEqual(t, p, ObjectPath("user-1", Image{Name: "Photo.PNG"}))

	assert.True(t, strings.HasSuffix(ObjectPath("u", Image{ContentType: "image/webp"}), ".webp"))
	assert.Equal(t, "image/png", ContentTypeOf(Image{Name: "a.png"}))
	assert.Equal(t, "image/jpeg", ContentTypeOf(Image{Name: "a"}))
}
