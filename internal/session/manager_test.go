package session

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"github.com/patidost/listing-service/internal/listing/domain"
	"github.com/patidost/listing-service/internal/platform/logger"
)

const testSecret = "super-secret-jwt-token-with-at-least-32-characters"

type MockAuthenticator struct{ mock.Mock }

func (m *MockAuthenticator) SignIn(ctx context.Context, email, password string) (*Tokens, error) {
	args := m.Called(ctx, email, password)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Tokens), args.Error(1)
}
func (m *MockAuthenticator) SignUp(ctx context.Context, email, password, displayName string) (*Tokens, error) {
	args := m.Called(ctx, email, password, displayName)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Tokens), args.Error(1)
}
func (m *MockAuthenticator) SignOut(ctx context.Context, accessToken string) error {
	args := m.Called(ctx, accessToken)
	return args.Error(0)
}

type MockProfileRepository struct{ mock.Mock }

func (m *MockProfileRepository) FindByID(ctx context.Context, id string) (*Profile, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*Profile), args.Error(1)
}
func (m *MockProfileRepository) Create(ctx context.Context, actorID string, profile *Profile) error {
	args := m.Called(ctx, actorID, profile)
	return args.Error(0)
}
func (m *MockProfileRepository) Update(ctx context.Context, actorID string, profile *Profile) error {
	args := m.Called(ctx, actorID, profile)
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
	args := m.Called(publicURL)
	return args.String(0), args.Bool(1)
}

func signToken(t *testing.T, secret, subject, email string, ttl time.Duration) string {
	t.Helper()
	claims := Claims{
		Email: email,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   subject,
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(ttl)),
		},
	}
	raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString([]byte(secret))
	require.NoError(t, err)
	return raw
}

func newTestManager() (*Manager, *MockAuthenticator, *MockProfileRepository, *MockObjectStorage) {
	auth := new(MockAuthenticator)
	profiles := new(MockProfileRepository)
	avatars := new(MockObjectStorage)
	m := NewManager(auth, profiles, avatars, NewTokenVerifier(testSecret), logger.NewNop())
	return m, auth, profiles, avatars
}

func signedIn(t *testing.T) (*Manager, *MockAuthenticator, *MockProfileRepository, *MockObjectStorage) {
	t.Helper()
	m, auth, profiles, avatars := newTestManager()
	token := signToken(t, testSecret, "user-1", "ayse@example.com", time.Hour)
	auth.On("SignIn", mock.Anything, "ayse@example.com", "pw").Return(&Tokens{AccessToken: token}, nil).Once()
	profiles.On("FindByID", mock.Anything, "user-1").
		Return(&Profile{ID: "user-1", DisplayName: "Ayse", PhotoURL: "https://cdn.test/avatars/user-1/old.jpg"}, nil).Once()
	_, err := m.SignIn(context.Background(), "ayse@example.com", "pw")
	require.NoError(t, err)
	return m, auth, profiles, avatars
}

func TestSignIn_EstablishesIdentity(t *testing.T) {
	m, _, _, _ := signedIn(t)

	current := m.Current()
	require.NotNil(t, current)
	assert.Equal(t, "user-1", current.UserID)
	assert.Equal(t, "ayse@example.com", current.Email)
	assert.Equal(t, "Ayse", current.Profile.DisplayName)
	assert.False(t, current.Expired(time.Now()))
}

func TestSignIn_RejectedByBackend(t *testing.T) {
	m, auth, _, _ := newTestManager()
	auth.On("SignIn", mock.Anything, "a@b.c", "bad").Return(nil, ErrInvalidCredentials)

	_, err := m.SignIn(context.Background(), "a@b.c", "bad")

	assert.ErrorIs(t, err, ErrInvalidCredentials)
	assert.Nil(t, m.Current())
}

func TestSignIn_MissingCredentialsNoBackendCall(t *testing.T) {
	m, auth, _, _ := newTestManager()

	_, err := m.SignIn(context.Background(), " ", "")

	var verr *domain.ValidationError
	require.ErrorAs(t, err, &verr)
	assert.Equal(t, []string{"email", "password"}, verr.Fields)
	assert.Empty(t, auth.Calls)
}

func TestSignIn_TokenSignedWithOtherSecret(t *testing.T) {
	m, auth, _, _ := newTestManager()
	token := signToken(t, "another-secret-another-secret-another", "user-1", "", time.Hour)
	auth.On("SignIn", mock.Anything, mock.Anything, mock.Anything).Return(&Tokens{AccessToken: token}, nil)

	_, err := m.SignIn(context.Background(), "a@b.c", "pw")

	assert.ErrorIs(t, err, ErrInvalidToken)
	assert.Nil(t, m.Current())
}

func TestSignIn_WithoutProfileRow(t *testing.T) {
	m, auth, profiles, _ := newTestManager()
	token := signToken(t, testSecret, "user-2", "", time.Hour)
	auth.On("SignIn", mock.Anything, mock.Anything, mock.Anything).Return(&Tokens{AccessToken: token}, nil)
	profiles.On("FindByID", mock.Anything, "user-2").Return(nil, ErrProfileNotFound)

	identity, err := m.SignIn(context.Background(), "a@b.c", "pw")

	require.NoError(t, err)
	assert.Equal(t, "user-2", identity.Profile.ID)
	assert.Empty(t, identity.Profile.DisplayName)
}

func TestSignUp_CreatesProfile(t *testing.T) {
	m, auth, profiles, _ := newTestManager()
	token := signToken(t, testSecret, "user-3", "new@example.com", time.Hour)
	auth.On("SignUp", mock.Anything, "new@example.com", "pw", "Mehmet").Return(&Tokens{AccessToken: token}, nil)
	profiles.On("Create", mock.Anything, "user-3", &Profile{ID: "user-3", DisplayName: "Mehmet"}).Return(nil).Once()

	identity, err := m.SignUp(context.Background(), "new@example.com", "pw", " Mehmet ")

	require.NoError(t, err)
	assert.Equal(t, "Mehmet", identity.Profile.DisplayName)
	assert.Equal(t, "user-3", m.Current().UserID)
	profiles.AssertExpectations(t)
}

func TestSignUp_ConfirmationRequired(t *testing.T) {
	m, auth, profiles, _ := newTestManager()
	auth.On("SignUp", mock.Anything, mock.Anything, mock.Anything, mock.Anything).Return(&Tokens{}, nil)

	_, err := m.SignUp(context.Background(), "new@example.com", "pw", "Mehmet")

	assert.ErrorIs(t, err, ErrConfirmationRequired)
	assert.Empty(t, profiles.Calls)
	assert.Nil(t, m.Current())
}

func TestSignOut_ClearsEvenWhenBackendFails(t *testing.T) {
	m, auth, _, _ := signedIn(t)
	auth.On("SignOut", mock.Anything, mock.Anything).Return(errors.New("network down"))

	require.NoError(t, m.SignOut(context.Background()))

	assert.Nil(t, m.Current())
}

func TestOnAuthStateChanged(t *testing.T) {
	m, auth, profiles, _ := newTestManager()
	var seen []string
	record := func(identity *Identity) {
		if identity == nil {
			seen = append(seen, "nil")
			return
		}
		seen = append(seen, identity.UserID)
	}

	unsubscribe := m.OnAuthStateChanged(record)

	token := signToken(t, testSecret, "user-1", "", time.Hour)
	auth.On("SignIn", mock.Anything, mock.Anything, mock.Anything).Return(&Tokens{AccessToken: token}, nil)
	auth.On("SignOut", mock.Anything, token).Return(nil)
	profiles.On("FindByID", mock.Anything, "user-1").Return(&Profile{ID: "user-1"}, nil)

	_, err := m.SignIn(context.Background(), "a@b.c", "pw")
	require.NoError(t, err)
	require.NoError(t, m.SignOut(context.Background()))
	unsubscribe()
	_, err = m.SignIn(context.Background(), "a@b.c", "pw")
	require.NoError(t, err)

	assert.Equal(t, []string{"nil", "user-1", "nil"}, seen)
}

func TestUpdateProfile_ReplacesAvatar(t *testing.T) {
	m, _, profiles, avatars := signedIn(t)
	newURL := "https://cdn.test/avatars/user-1/new.png"

	avatars.On("Upload", mock.Anything, mock.AnythingOfType("string"), []byte("png"), "image/png", true).Return(newURL, nil).Once()
	profiles.On("Update", mock.Anything, "user-1", &Profile{ID: "user-1", DisplayName: "Ayse K", City: "Ankara", PhotoURL: newURL}).Return(nil).Once()
	avatars.On("PathFromURL", "https://cdn.test/avatars/user-1/old.jpg").Return("user-1/old.jpg", true)
	avatars.On("Remove", mock.Anything, "user-1/old.jpg").Return(errors.New("not found")).Once()

	identity, err := m.UpdateProfile(context.Background(), "Ayse K", "Ankara", &domain.Image{Name: "me.png", Data: []byte("png")})

	require.NoError(t, err)
	assert.Equal(t, newURL, identity.Profile.PhotoURL)
	assert.Equal(t, "Ankara", m.Current().Profile.City)
	profiles.AssertExpectations(t)
	avatars.AssertExpectations(t)
}

func TestUpdateProfile_BlankDisplayName(t *testing.T) {
	m, _, profiles, avatars := signedIn(t)

	_, err := m.UpdateProfile(context.Background(), "  ", "Ankara", nil)

	assert.ErrorIs(t, err, domain.ErrValidation)
	profiles.AssertNotCalled(t, "Update", mock.Anything, mock.Anything, mock.Anything)
	assert.Empty(t, avatars.Calls)
}

func TestUpdateProfile_NoSession(t *testing.T) {
	m, _, _, _ := newTestManager()

	_, err := m.UpdateProfile(context.Background(), "Ayse", "", nil)

	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestTokenVerifier_RejectsMissingSubjectAndExpiry(t *testing.T) {
	v := NewTokenVerifier(testSecret)

	_, err := v.Parse(signToken(t, testSecret, "", "", time.Hour))
	assert.ErrorIs(t, err, ErrInvalidToken)

	_, err = v.Parse(signToken(t, testSecret, "user-1", "", -time.Minute))
	assert.ErrorIs(t, err, ErrInvalidToken)

	claims, err := v.Parse(signToken(t, testSecret, "user-1", "x@y.z", time.Hour))
	require.NoError(t, err)
	assert.Equal(t, "x@y.z", claims.Email)
}
