package usecase

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/patidost/listing-service/internal/listing/domain"
	"github.com/patidost/listing-service/internal/platform/logger"
	"github.com/patidost/listing-service/internal/platform/metrics"
	"github.com/patidost/listing-service/internal/session"
)

type MockListingRepository struct{ mock.Mock }

func (m *MockListingRepository) List(ctx context.Context) ([]*domain.Listing, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]*domain.Listing), args.Error(1)
}
func (m *MockListingRepository) FindByID(ctx context.Context, id int64) (*domain.Listing, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Listing), args.Error(1)
}
func (m *MockListingRepository) Insert(ctx context.Context, actorID string, listing *domain.Listing) error {
	args := m.Called(ctx, actorID, listing)
	return args.Error(0)
}
func (m *MockListingRepository) Update(ctx context.Context, actorID string, id int64, patch domain.Patch) error {
	args := m.Called(ctx, actorID, id, patch)
	return args.Error(0)
}
func (m *MockListingRepository) Delete(ctx context.Context, actorID string, id int64) error {
	args := m.Called(ctx, actorID, id)
	return args.Error(0)
}

type MockObjectStorage struct{ mock.Mock }

func (m *MockObjectStorage) Upload(ctx context.Context, path string, data []byte, contentType string, upsert bool) (string, error) {
	args := m.Called(ctx, path, data, contentType, upsert)
	return args.String(0), args.Error(1)
}
func (m *MockObjectStorage) Remove(ctx context.Context, path string) error {
	args := m.Called(ctx, path)
	return args.Error(0)
}
func (m *MockObjectStorage) PathFromURL(publicURL string) (string, bool) {
	const prefix = "https://cdn.test/pet-images/"
	if !strings.HasPrefix(publicURL, prefix) {
		return "", false
	}
	return strings.TrimPrefix(publicURL, prefix), true
}

type MockNotifier struct{ mock.Mock }

func (m *MockNotifier) SendListingCreatedEmail(toEmail, listingName string) error {
	args := m.Called(toEmail, listingName)
	return args.Error(0)
}

type staticIdentity struct{ identity *session.Identity }

func (s staticIdentity) Current() *session.Identity { return s.identity }

var testIdentity = &session.Identity{
	UserID:  "user-1",
	Email:   "owner@example.com",
	Profile: session.Profile{ID: "user-1", DisplayName: "Ayse"},
}

func newTestUsecase(identity *session.Identity) (*ListingUsecase, *MockListingRepository, *MockObjectStorage, *MockNotifier) {
	repo := new(MockListingRepository)
	storage := new(MockObjectStorage)
	notifier := new(MockNotifier)
	log := logger.NewNop()
	photos := NewPhotoUsecase(storage, nil, log)
	uc := NewListingUsecase(repo, photos, staticIdentity{identity}, notifier, nil, log)
	return uc, repo, storage, notifier
}

func intPtr(v int) *int { return &v }

func validDraft() domain.Draft {
	return domain.Draft{
		Name:        "Luna",
		Species:     domain.SpeciesCat,
		Breed:       "Van",
		Age:         intPtr(2),
		Purpose:     domain.PurposeAdoption,
		Description: "calm and friendly",
		Location:    "Izmir",
		Images: []domain.Image{
			{Name: "first.jpg", ContentType: "image/jpeg", Data: []byte("one")},
			{Name: "second.png", ContentType: "image/png", Data: []byte("two")},
		},
	}
}

func TestCreate_NoSession(t *testing.T) {
	uc, repo, storage, _ := newTestUsecase(nil)

	_, err := uc.Create(context.Background(), validDraft(), nil)

	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	repo.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything, mock.Anything)
	storage.AssertNotCalled(t, "Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything, mock.Anything)
}

func TestCreate_MissingFieldMakesNoNetworkCall(t *testing.T) {
	tests := []struct {
		name  string
		edit  func(d *domain.Draft)
		field string
	}{
		{"name", func(d *domain.Draft) { d.Name = "  " }, "name"},
		{"species", func(d *domain.Draft) { d.Species = "" }, "species"},
		{"breed", func(d *domain.Draft) { d.Breed = "" }, "breed"},
		{"age", func(d *domain.Draft) { d.Age = nil }, "age"},
		{"purpose", func(d *domain.Draft) { d.Purpose = "sale" }, "purpose"},
		{"description", func(d *domain.Draft) { d.Description = "" }, "description"},
		{"location", func(d *domain.Draft) { d.Location = "" }, "location"},
		{"images", func(d *domain.Draft) { d.Images = nil }, "images"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			uc, repo, storage, _ := newTestUsecase(testIdentity)
			draft := validDraft()
			tt.edit(&draft)

			_, err := uc.Create(context.Background(), draft, nil)

			require.ErrorIs(t, err, domain.ErrValidation)
			var verr *domain.ValidationError
			require.True(t, errors.As(err, &verr))
			assert.Contains(t, verr.Fields, tt.field)
			assert.Empty(t, repo.Calls)
			assert.Empty(t, storage.Calls)
		})
	}
}

func TestCreate_TwoImages(t *testing.T) {
	uc, repo, storage, notifier := newTestUsecase(testIdentity)
	ctx := context.Background()

	storage.On("Upload", mock.Anything, mock.MatchedBy(func(p string) bool {
		return strings.HasPrefix(p, "user-1/") && strings.HasSuffix(p, ".jpg")
	}), []byte("one"), "image/jpeg", false).Return("https://cdn.test/pet-images/user-1/a.jpg", nil).Once()
	storage.On("Upload", mock.Anything, mock.MatchedBy(func(p string) bool {
		return strings.HasPrefix(p, "user-1/") && strings.HasSuffix(p, ".png")
	}), []byte("two"), "image/png", false).Return("https://cdn.test/pet-images/user-1/b.png", nil).Once()
	repo.On("Insert", mock.Anything, "user-1", mock.AnythingOfType("*domain.Listing")).
		Run(func(args mock.Arguments) { args.Get(2).(*domain.Listing).ID = 42 }).
		Return(nil).Once()
	notifier.On("SendListingCreatedEmail", "owner@example.com", "Luna").Return(nil).Once()

	var progress [][2]int
	listing, err := uc.Create(ctx, validDraft(), func(done, total int) {
		progress = append(progress, [2]int{done, total})
	})

	require.NoError(t, err)
	assert.Equal(t, int64(42), listing.ID)
	assert.Equal(t, "https://cdn.test/pet-images/user-1/a.jpg", listing.ImageURL)
	assert.Equal(t, []string{
		"https://cdn.test/pet-images/user-1/a.jpg",
		"https://cdn.test/pet-images/user-1/b.png",
	}, listing.Gallery)
	assert.Equal(t, "user-1", listing.OwnerID)
	assert.Equal(t, [][2]int{{1, 2}, {2, 2}}, progress)
	repo.AssertExpectations(t)
	storage.AssertExpectations(t)
	notifier.AssertExpectations(t)
}

func TestCreate_UploadFailureRemovesEarlierUploads(t *testing.T) {
	uc, repo, storage, _ := newTestUsecase(testIdentity)

	storage.On("Upload", mock.Anything, mock.Anything, []byte("one"), mock.Anything, false).
		Return("https://cdn.test/pet-images/user-1/a.jpg", nil).Once()
	storage.On("Upload", mock.Anything, mock.Anything, []byte("two"), mock.Anything, false).
		Return("", domain.ErrUnavailable).Once()
	storage.On("Remove", mock.Anything, "user-1/a.jpg").Return(nil).Once()

	_, err := uc.Create(context.Background(), validDraft(), nil)

	assert.ErrorIs(t, err, domain.ErrUnavailable)
	repo.AssertNotCalled(t, "Insert", mock.Anything, mock.Anything, mock.Anything)
	storage.AssertExpectations(t)
}

func TestCreate_NotificationFailureIsIgnored(t *testing.T) {
	repo := new(MockListingRepository)
	storage := new(MockObjectStorage)
	notifier := new(MockNotifier)
	m := metrics.New("test")
	log := logger.NewNop()
	uc := NewListingUsecase(repo, NewPhotoUsecase(storage, m, log), staticIdentity{testIdentity}, notifier, m, log)
	draft := validDraft()
	draft.Images = draft.Images[:1]

	storage.On("Upload", mock.Anything, mock.Anything, mock.Anything, mock.Anything, false).
		Return("https://cdn.test/pet-images/user-1/a.jpg", nil)
	repo.On("Insert", mock.Anything, "user-1", mock.Anything).Return(nil)
	notifier.On("SendListingCreatedEmail", mock.Anything, mock.Anything).Return(errors.New("smtp down"))

	_, err := uc.Create(context.Background(), draft, nil)

	assert.NoError(t, err)
	assert.Equal(t, 1.0, testutil.ToFloat64(m.NotificationFailures))
	assert.Equal(t, 0, testutil.CollectAndCount(m.CleanupFailuresTotal))
}

func TestUpdate_AgeOnlyNoUpload(t *testing.T) {
	uc, repo, storage, _ := newTestUsecase(testIdentity)
	patch := domain.Patch{Age: intPtr(5)}

	repo.On("Update", mock.Anything, "user-1", int64(7), patch).Return(nil).Once()

	err := uc.Update(context.Background(), 7, patch)

	require.NoError(t, err)
	repo.AssertExpectations(t)
	repo.AssertNotCalled(t, "FindByID", mock.Anything, mock.Anything)
	assert.Empty(t, storage.Calls)
}

func TestUpdate_ReplacesImage(t *testing.T) {
	uc, repo, storage, _ := newTestUsecase(testIdentity)
	oldURL := "https://cdn.test/pet-images/user-1/old.jpg"
	newURL := "https://cdn.test/pet-images/user-1/new.jpg"

	repo.On("FindByID", mock.Anything, int64(7)).Return(&domain.Listing{
		ID:       7,
		ImageURL: oldURL,
		Gallery:  []string{oldURL, "https://cdn.test/pet-images/user-1/other.jpg"},
	}, nil).Once()
	storage.On("Upload", mock.Anything, mock.Anything, []byte("img"), "image/jpeg", true).Return(newURL, nil).Once()
	repo.On("Update", mock.Anything, "user-1", int64(7), mock.MatchedBy(func(p domain.Patch) bool {
		return p.ImageURL != nil && *p.ImageURL == newURL &&
			p.Image == nil &&
			len(p.Gallery) == 2 && p.Gallery[0] == newURL
	})).Return(nil).Once()
	storage.On("Remove", mock.Anything, "user-1/old.jpg").Return(errors.New("storage down")).Once()

	err := uc.Update(context.Background(), 7, domain.Patch{Image: &domain.Image{Name: "new.jpg", Data: []byte("img")}})

	require.NoError(t, err)
	repo.AssertExpectations(t)
	storage.AssertExpectations(t)
}

func TestUpdate_PolicyRejection(t *testing.T) {
	uc, repo, _, _ := newTestUsecase(testIdentity)
	name := "Karabas"

	repo.On("Update", mock.Anything, "user-1", int64(7), mock.Anything).Return(domain.ErrUnauthorized)

	err := uc.Update(context.Background(), 7, domain.Patch{Name: &name})

	assert.ErrorIs(t, err, domain.ErrUnauthorized)
	assert.False(t, domain.IsRetryable(err))
}

func TestUpdate_EmptyPatch(t *testing.T) {
	uc, repo, _, _ := newTestUsecase(testIdentity)

	err := uc.Update(context.Background(), 7, domain.Patch{})

	assert.ErrorIs(t, err, domain.ErrValidation)
	assert.Empty(t, repo.Calls)
}

func TestDelete_StorageFailureStillSucceeds(t *testing.T) {
	uc, repo, storage, _ := newTestUsecase(testIdentity)
	listing := &domain.Listing{
		ID:       9,
		OwnerID:  "user-1",
		ImageURL: "https://cdn.test/pet-images/user-1/a.jpg",
		Gallery:  []string{"https://cdn.test/pet-images/user-1/a.jpg", "https://cdn.test/pet-images/user-1/b.jpg"},
	}

	repo.On("Delete", mock.Anything, "user-1", int64(9)).Return(nil).Once()
	storage.On("Remove", mock.Anything, "user-1/a.jpg").Return(errors.New("timeout")).Once()
	storage.On("Remove", mock.Anything, "user-1/b.jpg").Return(errors.New("timeout")).Once()

	err := uc.Delete(context.Background(), listing)

	assert.NoError(t, err)
	repo.AssertExpectations(t)
	storage.AssertExpectations(t)
}

func TestDelete_RowFailureKeepsMedia(t *testing.T) {
	uc, repo, storage, _ := newTestUsecase(testIdentity)
	listing := &domain.Listing{ID: 9, ImageURL: "https://cdn.test/pet-images/user-1/a.jpg"}

	repo.On("Delete", mock.Anything, "user-1", int64(9)).Return(domain.ErrUnavailable)

	err := uc.Delete(context.Background(), listing)

	assert.ErrorIs(t, err, domain.ErrUnavailable)
	assert.True(t, domain.IsRetryable(err))
	storage.AssertNotCalled(t, "Remove", mock.Anything, mock.Anything)
}

func TestReplaceURL(t *testing.T) {
	assert.Equal(t, []string{"n", "b"}, replaceURL([]string{"o", "b"}, "o", "n"))
	assert.Equal(t, []string{"n", "b"}, replaceURL([]string{"b"}, "o", "n"))
	assert.Equal(t, []string{"n"}, replaceURL(nil, "", "n"))
}
