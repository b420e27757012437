package auth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

const (
	minPasswordLength = 6

	defaultRefreshTTL       = 30 * 24 * time.Hour
	defaultRevokedRetention = 7 * 24 * time.Hour
)

// UserStore is the credential store contract the facade depends on. The
// postgres Repository implements it; tests inject a fake.
type UserStore interface {
	GetByEmail(ctx context.Context, email string) (User, error)
	GetByID(ctx context.Context, id string) (User, error)
	Create(ctx context.Context, user User) error
	UpdateLastLogin(ctx context.Context, id string, at time.Time) error
}

// Service orchestrates credential checks and the token lifecycle. It is the
// only entry point the HTTP layer calls.
type Service struct {
	users  UserStore
	store  SessionStore
	issuer *Issuer

	refreshTTL       time.Duration
	revokedRetention time.Duration
}

func NewService(users UserStore, store SessionStore, issuer *Issuer) *Service {
	return &Service{
		users:            users,
		store:            store,
		issuer:           issuer,
		refreshTTL:       defaultRefreshTTL,
		revokedRetention: defaultRevokedRetention,
	}
}

func (s *Service) WithTokenTTLs(refreshTTL, revokedRetention time.Duration) {
	if refreshTTL > 0 {
		s.refreshTTL = refreshTTL
	}
	if revokedRetention > 0 {
		s.revokedRetention = revokedRetention
	}
}

func (s *Service) Register(ctx context.Context, email, password, firstName, lastName string) (Session, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	password = strings.TrimSpace(password)
	firstName = strings.TrimSpace(firstName)
	lastName = strings.TrimSpace(lastName)

	if email == "" || password == "" || firstName == "" || lastName == "" {
		return Session{}, ValidationError("all fields are required")
	}
	if len(password) < minPasswordLength {
		return Session{}, ValidationError(fmt.Sprintf("password must be at least %d characters", minPasswordLength))
	}

	_, err := s.users.GetByEmail(ctx, email)
	switch {
	case err == nil:
		return Session{}, ErrEmailTaken
	case !errors.Is(err, ErrUserNotFound):
		return Session{}, err
	}

	hash, err := HashPassword(password)
	if err != nil {
		return Session{}, err
	}

	id, err := uuid.NewV7()
	if err != nil {
		return Session{}, fmt.Errorf("generate user id: %w", err)
	}

	user := User{
		ID:           id.String(),
		Email:        email,
		PasswordHash: hash,
		FirstName:    firstName,
		LastName:     lastName,
		CreatedAt:    time.Now().UTC(),
	}
	if err := s.users.Create(ctx, user); err != nil {
		return Session{}, err
	}

	return s.issueSession(ctx, user)
}

// Login deliberately returns the same ErrInvalidCredentials for an unknown
// email and a wrong password.
func (s *Service) Login(ctx context.Context, email, password string) (Session, error) {
	email = strings.TrimSpace(strings.ToLower(email))
	password = strings.TrimSpace(password)

	if email == "" || password == "" {
		return Session{}, ErrInvalidCredentials
	}

	user, err := s.users.GetByEmail(ctx, email)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return Session{}, ErrInvalidCredentials
		}
		return Session{}, err
	}

	if !VerifyPassword(password, user.PasswordHash) {
		return Session{}, ErrInvalidCredentials
	}

	now := time.Now().UTC()
	if err := s.users.UpdateLastLogin(ctx, user.ID, now); err != nil {
		return Session{}, err
	}
	user.LastLoginAt = &now

	return s.issueSession(ctx, user)
}

func (s *Service) Refresh(ctx context.Context, refreshToken string) (Session, error) {
	refreshToken = strings.TrimSpace(refreshToken)
	if refreshToken == "" {
		return Session{}, ErrInvalidRefreshToken
	}

	newRefresh, err := NewRefreshToken()
	if err != nil {
		return Session{}, err
	}

	expiresAt := time.Now().UTC().Add(s.refreshTTL)
	userID, err := s.store.RotateRefresh(ctx, refreshToken, newRefresh, expiresAt)
	if err != nil {
		return Session{}, err
	}

	user, err := s.users.GetByID(ctx, userID)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return Session{}, ErrInvalidRefreshToken
		}
		return Session{}, err
	}

	access, err := s.issuer.IssueAccess(user)
	if err != nil {
		return Session{}, err
	}

	return Session{User: user, AccessToken: access, RefreshToken: newRefresh}, nil
}

// Logout revokes the access token and drops the refresh token registry entry
// when one is supplied. Empty tokens are a no-op success.
func (s *Service) Logout(ctx context.Context, accessToken, refreshToken string) error {
	accessToken = strings.TrimSpace(accessToken)
	refreshToken = strings.TrimSpace(refreshToken)

	if accessToken != "" {
		purgeAt := time.Now().UTC().Add(s.revokedRetention)
		if err := s.store.RevokeAccess(ctx, accessToken, purgeAt); err != nil {
			return err
		}
	}

	if refreshToken != "" {
		if err := s.store.DeleteRefresh(ctx, refreshToken); err != nil {
			return err
		}
	}

	return nil
}

// IsAccessRevoked is the integration point the auth middleware calls after
// verifying a token signature.
func (s *Service) IsAccessRevoked(ctx context.Context, accessToken string) (bool, error) {
	return s.store.IsAccessRevoked(ctx, accessToken)
}

func (s *Service) issueSession(ctx context.Context, user User) (Session, error) {
	access, err := s.issuer.IssueAccess(user)
	if err != nil {
		return Session{}, err
	}

	refresh, err := NewRefreshToken()
	if err != nil {
		return Session{}, err
	}

	expiresAt := time.Now().UTC().Add(s.refreshTTL)
	if err := s.store.RegisterRefresh(ctx, refresh, user.ID, expiresAt); err != nil {
		return Session{}, err
	}

	return Session{User: user, AccessToken: access, RefreshToken: refresh}, nil
}
