// Package session tracks the authenticated identity of this process and
// tells interested components when it appears, changes or goes away.
package session

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	"github.com/patidost/listing-service/internal/listing/domain"
	"github.com/patidost/listing-service/internal/platform/logger"
)

// Listener receives every identity transition; nil means signed out.
type Listener func(identity *Identity)

type Manager struct {
	auth     Authenticator
	profiles ProfileRepository
	avatars  domain.ObjectStorage
	verifier *TokenVerifier
	logger   *logger.Logger

	// transition serializes sign-in/out and listener delivery so listeners
	// observe transitions in the order they happened.
	transition sync.Mutex

	mu      sync.RWMutex
	current *Identity

	lmu       sync.Mutex
	listeners []listenerEntry
	nextID    int
}

type listenerEntry struct {
	id int
	fn Listener
}

func NewManager(auth Authenticator, profiles ProfileRepository, avatars domain.ObjectStorage, verifier *TokenVerifier, log *logger.Logger) *Manager {
	return &Manager{
		auth:     auth,
		profiles: profiles,
		avatars:  avatars,
		verifier: verifier,
		logger:   log.Named("SessionManager"),
	}
}

// Current returns a copy of the signed-in identity, or nil.
func (m *Manager) Current() *Identity {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.current == nil {
		return nil
	}
	c := *m.current
	return &c
}

// OnAuthStateChanged registers fn and immediately calls it with the current
// identity. The returned func removes the listener.
func (m *Manager) OnAuthStateChanged(fn Listener) (unsubscribe func()) {
	m.transition.Lock()
	defer m.transition.Unlock()

	m.lmu.Lock()
	m.nextID++
	id := m.nextID
	m.listeners = append(m.listeners, listenerEntry{id: id, fn: fn})
	m.lmu.Unlock()

	fn(m.Current())

	return func() {
		m.lmu.Lock()
		defer m.lmu.Unlock()
		for i, l := range m.listeners {
			if l.id == id {
				m.listeners = append(m.listeners[:i], m.listeners[i+1:]...)
				return
			}
		}
	}
}

func (m *Manager) SignIn(ctx context.Context, email, password string) (*Identity, error) {
	email = strings.TrimSpace(email)
	if email == "" || password == "" {
		return nil, &domain.ValidationError{Fields: missingCredentials(email, password)}
	}
	m.logger.Info("SessionManager.SignIn: signing in", "email", email)

	tokens, err := m.auth.SignIn(ctx, email, password)
	if err != nil {
		m.logger.Warn("SessionManager.SignIn: backend rejected sign-in", "email", email, "error", err)
		return nil, err
	}
	return m.establish(ctx, tokens)
}

func (m *Manager) SignUp(ctx context.Context, email, password, displayName string) (*Identity, error) {
	email = strings.TrimSpace(email)
	displayName = strings.TrimSpace(displayName)
	missing := missingCredentials(email, password)
	if displayName == "" {
		missing = append(missing, "display_name")
	}
	if len(missing) > 0 {
		return nil, &domain.ValidationError{Fields: missing}
	}
	m.logger.Info("SessionManager.SignUp: registering", "email", email)

	tokens, err := m.auth.SignUp(ctx, email, password, displayName)
	if err != nil {
		m.logger.Warn("SessionManager.SignUp: backend rejected sign-up", "email", email, "error", err)
		return nil, err
	}
	if tokens == nil || tokens.AccessToken == "" {
		return nil, ErrConfirmationRequired
	}

	identity, err := m.verifier.identityFromToken(tokens.AccessToken)
	if err != nil {
		return nil, err
	}
	profile := &Profile{ID: identity.UserID, DisplayName: displayName}
	if err := m.profiles.Create(ctx, identity.UserID, profile); err != nil {
		m.logger.Error("SessionManager.SignUp: failed to create profile", "user_id", identity.UserID, "error", err)
		return nil, fmt.Errorf("failed to create profile: %w", err)
	}
	identity.Profile = *profile

	m.publish(identity)
	m.logger.Info("SessionManager.SignUp: registered and signed in", "user_id", identity.UserID)
	return identity, nil
}

// SignOut clears the local session even if the backend call fails.
func (m *Manager) SignOut(ctx context.Context) error {
	current := m.Current()
	if current == nil {
		return nil
	}
	if err := m.auth.SignOut(ctx, current.AccessToken); err != nil {
		m.logger.Warn("SessionManager.SignOut: backend sign-out failed, clearing local session anyway", "user_id", current.UserID, "error", err)
	}
	m.publish(nil)
	m.logger.Info("SessionManager.SignOut: signed out", "user_id", current.UserID)
	return nil
}

// RefreshProfile re-reads the profile of the current user.
func (m *Manager) RefreshProfile(ctx context.Context) (*Identity, error) {
	current := m.Current()
	if current == nil {
		return nil, domain.ErrUnauthorized
	}
	profile, err := m.profiles.FindByID(ctx, current.UserID)
	if err != nil {
		return nil, err
	}
	current.Profile = *profile
	m.publish(current)
	return current, nil
}

// UpdateProfile changes display name, city and optionally the avatar. The
// old avatar object is removed on a best-effort basis.
func (m *Manager) UpdateProfile(ctx context.Context, displayName, city string, avatar *domain.Image) (*Identity, error) {
	current := m.Current()
	if current == nil {
		return nil, domain.ErrUnauthorized
	}
	displayName = strings.TrimSpace(displayName)
	if displayName == "" {
		return nil, &domain.ValidationError{Fields: []string{"display_name"}}
	}
	if avatar != nil && len(avatar.Data) == 0 {
		return nil, &domain.ValidationError{Fields: []string{"avatar"}}
	}

	updated := current.Profile
	updated.ID = current.UserID
	updated.DisplayName = displayName
	updated.City = strings.TrimSpace(city)

	oldPhoto := current.Profile.PhotoURL
	if avatar != nil {
		url, err := m.avatars.Upload(ctx, domain.ObjectPath(current.UserID, *avatar), avatar.Data, domain.ContentTypeOf(*avatar), true)
		if err != nil {
			m.logger.Error("SessionManager.UpdateProfile: avatar upload failed", "user_id", current.UserID, "error", err)
			return nil, err
		}
		updated.PhotoURL = url
	}

	if err := m.profiles.Update(ctx, current.UserID, &updated); err != nil {
		m.logger.Error("SessionManager.UpdateProfile: failed to update profile", "user_id", current.UserID, "error", err)
		return nil, err
	}

	if avatar != nil && oldPhoto != "" && oldPhoto != updated.PhotoURL {
		if path, ok := m.avatars.PathFromURL(oldPhoto); ok {
			if err := m.avatars.Remove(ctx, path); err != nil {
				m.logger.Warn("SessionManager.UpdateProfile: old avatar not removed", "path", path, "error", err)
			}
		}
	}

	current.Profile = updated
	m.publish(current)
	return current, nil
}

func (m *Manager) establish(ctx context.Context, tokens *Tokens) (*Identity, error) {
	if tokens == nil || tokens.AccessToken == "" {
		return nil, ErrInvalidToken
	}
	identity, err := m.verifier.identityFromToken(tokens.AccessToken)
	if err != nil {
		return nil, err
	}

	profile, err := m.profiles.FindByID(ctx, identity.UserID)
	switch {
	case err == nil:
		identity.Profile = *profile
	case errors.Is(err, ErrProfileNotFound):
		m.logger.Warn("SessionManager: signed in without a profile row", "user_id", identity.UserID)
		identity.Profile = Profile{ID: identity.UserID}
	default:
		return nil, fmt.Errorf("failed to load profile: %w", err)
	}

	m.publish(identity)
	m.logger.Info("SessionManager: session established", "user_id", identity.UserID)
	return identity, nil
}

func (m *Manager) publish(identity *Identity) {
	m.transition.Lock()
	defer m.transition.Unlock()

	m.mu.Lock()
	if identity == nil {
		m.current = nil
	} else {
		c := *identity
		m.current = &c
	}
	m.mu.Unlock()

	m.lmu.Lock()
	listeners := make([]listenerEntry, len(m.listeners))
	copy(listeners, m.listeners)
	m.lmu.Unlock()

	for _, l := range listeners {
		l.fn(m.Current())
	}
}

func missingCredentials(email, password string) []string {
	var missing []string
	if email == "" {
		missing = append(missing, "email")
	}
	if password == "" {
		missing = append(missing, "password")
	}
	return missing
}
