package session

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidCredentials   = errors.New("invalid email or password")
	ErrEmailTaken           = errors.New("email address already registered")
	ErrWeakPassword         = errors.New("password too weak")
	ErrConfirmationRequired = errors.New("sign-up requires email confirmation before sign-in")
	ErrProfileNotFound      = errors.New("profile not found")
	ErrInvalidToken         = errors.New("invalid access token")
)

// Profile is the public part of a user, joined onto listings as owner data.
type Profile struct {
	ID          string
	DisplayName string
	PhotoURL    string
	City        string
}

// Identity is the authenticated user of this process plus their profile.
type Identity struct {
	UserID      string
	Email       string
	AccessToken string
	ExpiresAt   time.Time
	Profile     Profile
}

func (i *Identity) Expired(now time.Time) bool {
	return !i.ExpiresAt.IsZero() && now.After(i.ExpiresAt)
}

type Tokens struct {
	AccessToken  string
	RefreshToken string
	ExpiresIn    time.Duration
}

// Authenticator is the backend auth service; no credential handling happens
// in this process.
type Authenticator interface {
	SignIn(ctx context.Context, email, password string) (*Tokens, error)
	SignUp(ctx context.Context, email, password, displayName string) (*Tokens, error)
	SignOut(ctx context.Context, accessToken string) error
}

type ProfileRepository interface {
	FindByID(ctx context.Context, id string) (*Profile, error)
	Create(ctx context.Context, actorID string, profile *Profile) error
	Update(ctx context.Context, actorID string, profile *Profile) error
}
