// Package auth issues and verifies credentials: account registration, login,
// access-token refresh and logout.
package auth

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/mail"
	"strings"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/socialnet/backend/internal/apperr"
	"github.com/socialnet/backend/internal/logging"
	"github.com/socialnet/backend/internal/models"
	"github.com/socialnet/backend/internal/repositories"
)

// UserStore is the subset of the account store the Auth Service needs.
type UserStore interface {
	Create(ctx context.Context, user models.User) (models.User, error)
	FindByUsername(ctx context.Context, username string) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
}

// RevocationStore records logged-out refresh tokens.
type RevocationStore interface {
	Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// RegisterInput carries the fields of a new account. Roles is only honoured for
// trusted callers such as the seed command; it defaults to {User}.
type RegisterInput struct {
	Username  string
	Firstname string
	Lastname  string
	Email     string
	Password  string
	Gender    string
	Roles     []string
}

// Service implements the account and session operations.
type Service struct {
	users       UserStore
	tokens      *TokenManager
	revocations RevocationStore
	hashCost    int
	dummyHash   []byte
}

// Option customises a Service.
type Option func(*Service)

// WithRevocation enables refresh-token revocation on logout.
func WithRevocation(store RevocationStore) Option {
	return func(s *Service) { s.revocations = store }
}

// WithHashCost overrides the bcrypt cost. Tests use bcrypt.MinCost.
func WithHashCost(cost int) Option {
	return func(s *Service) { s.hashCost = cost }
}

// NewService constructs the Auth Service.
func NewService(users UserStore, tokens *TokenManager, opts ...Option) (*Service, error) {
	s := &Service{
		users:    users,
		tokens:   tokens,
		hashCost: bcrypt.DefaultCost,
	}
	for _, opt := range opts {
		opt(s)
	}

	// Unknown usernames are compared against this hash so both login failures
	// take comparable time.
	dummy, err := bcrypt.GenerateFromPassword([]byte("socialnet-unknown-user"), s.hashCost)
	if err != nil {
		return nil, fmt.Errorf("prepare dummy hash: %w", err)
	}
	s.dummyHash = dummy
	return s, nil
}

// Tokens exposes the token manager so the HTTP gate can verify access tokens.
func (s *Service) Tokens() *TokenManager {
	return s.tokens
}

// Register creates an account and returns it without its credential.
func (s *Service) Register(ctx context.Context, in RegisterInput) (models.User, error) {
	in.Username = strings.TrimSpace(in.Username)
	in.Firstname = strings.TrimSpace(in.Firstname)
	in.Lastname = strings.TrimSpace(in.Lastname)
	in.Email = strings.TrimSpace(in.Email)
	in.Gender = strings.TrimSpace(in.Gender)

	if in.Username == "" || in.Firstname == "" || in.Lastname == "" || in.Email == "" || in.Password == "" || in.Gender == "" {
		return models.User{}, apperr.Validation("username, firstname, lastname, email, password and gender are required")
	}
	if addr, err := mail.ParseAddress(in.Email); err != nil || addr.Address != in.Email {
		return models.User{}, apperr.Validation("email address is invalid")
	}

	if _, err := s.users.FindByUsername(ctx, in.Username); err == nil {
		return models.User{}, apperr.Conflict("username already exists")
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return models.User{}, apperr.Server("failed to check username", err)
	}
	if _, err := s.users.FindByEmail(ctx, in.Email); err == nil {
		return models.User{}, apperr.Conflict("email already exists")
	} else if !errors.Is(err, repositories.ErrNotFound) {
		return models.User{}, apperr.Server("failed to check email", err)
	}

	hashed, err := bcrypt.GenerateFromPassword([]byte(in.Password), s.hashCost)
	if err != nil {
		if errors.Is(err, bcrypt.ErrPasswordTooLong) {
			return models.User{}, apperr.Validation("password is too long")
		}
		return models.User{}, apperr.Server("failed to hash password", err)
	}

	roles := in.Roles
	if len(roles) == 0 {
		roles = []string{models.RoleUser}
	}

	user, err := s.users.Create(ctx, models.User{
		Username:     in.Username,
		Firstname:    in.Firstname,
		Lastname:     in.Lastname,
		Email:        in.Email,
		Gender:       in.Gender,
		PasswordHash: string(hashed),
		Roles:        roles,
	})
	if err != nil {
		if errors.Is(err, repositories.ErrConflict) {
			// Lost a race with a concurrent registration.
			return models.User{}, apperr.Conflict("username or email already exists")
		}
		return models.User{}, apperr.Server("failed to create user", err)
	}

	logging.FromContext(ctx).Info("account registered", slog.String("user_id", user.ID))

	user.PasswordHash = ""
	return user, nil
}

// Login verifies credentials and issues a token pair. Unknown usernames and
// wrong passwords fail identically.
func (s *Service) Login(ctx context.Context, username, password string) (models.SessionTokens, error) {
	username = strings.TrimSpace(username)
	if username == "" || password == "" {
		return models.SessionTokens{}, apperr.Validation("username and password are required")
	}

	invalid := apperr.Unauthorized("invalid username or password")

	user, err := s.users.FindByUsername(ctx, username)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			_ = bcrypt.CompareHashAndPassword(s.dummyHash, []byte(password))
			return models.SessionTokens{}, invalid
		}
		return models.SessionTokens{}, apperr.Server("failed to authenticate", err)
	}

	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash), []byte(password)); err != nil {
		return models.SessionTokens{}, invalid
	}

	tokens, err := s.tokens.Issue(user)
	if err != nil {
		return models.SessionTokens{}, apperr.Server("failed to issue tokens", err)
	}

	logging.FromContext(ctx).Info("login succeeded", slog.String("user_id", user.ID))
	return tokens, nil
}

// Refresh mints a new access token from a refresh token. Roles are re-read
// from the store so role changes apply on the next refresh.
func (s *Service) Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, error) {
	if refreshToken == "" {
		return models.SessionTokens{}, apperr.Unauthorized("refresh token is required")
	}

	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil {
		return models.SessionTokens{}, apperr.Forbidden("refresh token is invalid or expired")
	}

	if s.revocations != nil && claims.ID != "" {
		revoked, err := s.revocations.IsRevoked(ctx, claims.ID)
		if err != nil {
			return models.SessionTokens{}, apperr.Server("failed to check refresh token", err)
		}
		if revoked {
			return models.SessionTokens{}, apperr.Forbidden("refresh token is invalid or expired")
		}
	}

	user, err := s.users.FindByUsername(ctx, claims.Username)
	if err != nil {
		if errors.Is(err, repositories.ErrNotFound) {
			return models.SessionTokens{}, apperr.Unauthorized("account no longer exists")
		}
		return models.SessionTokens{}, apperr.Server("failed to load account", err)
	}

	accessToken, expiresAt, err := s.tokens.IssueAccess(user)
	if err != nil {
		return models.SessionTokens{}, apperr.Server("failed to issue access token", err)
	}

	return models.SessionTokens{AccessToken: accessToken, AccessExpiresAt: expiresAt}, nil
}

// Logout reports whether there was a session to end. When revocation is
// enabled the refresh token's id is recorded until it would expire; otherwise
// nothing server-side changes.
func (s *Service) Logout(ctx context.Context, refreshToken string) (bool, error) {
	if refreshToken == "" {
		return false, nil
	}
	if s.revocations == nil {
		return true, nil
	}

	claims, err := s.tokens.VerifyRefresh(refreshToken)
	if err != nil || claims.ID == "" || claims.ExpiresAt == nil {
		// Nothing usable to revoke; clearing the cookie is enough.
		return true, nil
	}

	if err := s.revocations.Revoke(ctx, claims.ID, claims.ExpiresAt.Time); err != nil {
		return true, apperr.Server("failed to revoke refresh token", err)
	}
	return true, nil
}
