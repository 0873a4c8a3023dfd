package repositories

import (
	"context"
	"time"

	"github.com/socialnet/backend/internal/models"
)

// UserRepository defines the data access contract for accounts.
type UserRepository interface {
	// Create stores a new user and returns it with its assigned id and timestamps.
	Create(ctx context.Context, user models.User) (models.User, error)
	FindByID(ctx context.Context, id string) (models.User, error)
	FindByUsername(ctx context.Context, username string) (models.User, error)
	FindByEmail(ctx context.Context, email string) (models.User, error)
	List(ctx context.Context) ([]models.User, error)
	UpdatePicture(ctx context.Context, id string, kind models.PictureKind, location string) (models.User, error)
	// Delete removes the user and strips its id from every other user's
	// relationship sets in the same transaction.
	Delete(ctx context.Context, id string) error
}

// RelationshipRepository applies relationship transitions atomically.
type RelationshipRepository interface {
	// ApplyRelations loads both users under a write lock, asks plan for the
	// changes and writes all of them or none. A missing user yields ErrNotFound;
	// an error returned by plan is passed through unchanged.
	ApplyRelations(ctx context.Context, userID, otherID string, plan models.RelationPlan) error
}

// RevocationRepository records refresh tokens that were explicitly logged out.
type RevocationRepository interface {
	Revoke(ctx context.Context, tokenID string, expiresAt time.Time) error
	IsRevoked(ctx context.Context, tokenID string) (bool, error)
}

// Store bundles the repositories a single backend provides.
type Store interface {
	UserRepository
	RelationshipRepository
	RevocationRepository
	// Ping reports whether the backing database is reachable.
	Ping(ctx context.Context) error
	Close(ctx context.Context) error
}

func validField(field models.RelationField) bool {
	for _, f := range models.RelationFields {
		if f == field {
			return true
		}
	}
	return false
}
