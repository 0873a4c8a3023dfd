package handlers

import (
	"context"

	"github.com/socialnet/backend/internal/auth"
	"github.com/socialnet/backend/internal/models"
)

// AuthService covers registration and the session lifecycle.
type AuthService interface {
	Register(ctx context.Context, in auth.RegisterInput) (models.User, error)
	Login(ctx context.Context, username, password string) (models.SessionTokens, error)
	Refresh(ctx context.Context, refreshToken string) (models.SessionTokens, error)
	Logout(ctx context.Context, refreshToken string) (bool, error)
}

// RelationshipManager performs friend-request transitions and account deletion.
type RelationshipManager interface {
	SendRequest(ctx context.Context, principal models.Principal, userID, friendID string) error
	CancelRequest(ctx context.Context, principal models.Principal, userID, friendID string) error
	AcceptRequest(ctx context.Context, principal models.Principal, userID, friendID string) error
	RejectRequest(ctx context.Context, principal models.Principal, userID, friendID string) error
	Unfriend(ctx context.Context, principal models.Principal, userID, friendID string) error
	DeleteAccount(ctx context.Context, principal models.Principal, userID string) (models.User, error)
}

// UserDirectory reads accounts and records uploaded pictures.
type UserDirectory interface {
	List(ctx context.Context) ([]models.User, error)
	FindByID(ctx context.Context, id string) (models.User, error)
	UpdatePicture(ctx context.Context, id string, kind models.PictureKind, location string) (models.User, error)
}

// Authorizer decides whether a principal may act on an account.
type Authorizer interface {
	Require(ctx context.Context, principal models.Principal, ownerID string, requiredRoles ...string) error
}

// Pinger reports whether a backing service is reachable.
type Pinger interface {
	Ping(ctx context.Context) error
}
