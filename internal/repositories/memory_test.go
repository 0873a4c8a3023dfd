package repositories

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/socialnet/backend/internal/models"
)

func TestMemoryStoreCreateRejectsDuplicates(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()

	alice, err := store.Create(ctx, models.User{Username: "alice", Email: "alice@example.com"})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if alice.ID == "" || alice.CreatedAt.IsZero() {
		t.Fatalf("expected id and timestamps to be assigned, got %+v", alice)
	}

	if _, err := store.Create(ctx, models.User{Username: "alice", Email: "other@example.com"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict on duplicate username, got %v", err)
	}
	if _, err := store.Create(ctx, models.User{Username: "bob", Email: "alice@example.com"}); !errors.Is(err, ErrConflict) {
		t.Fatalf("expected conflict on duplicate email, got %v", err)
	}
	if _, err := store.Create(ctx, models.User{Username: "Alice", Email: "Alice@example.com"}); err != nil {
		t.Fatalf("expected case-different username and email to be accepted, got %v", err)
	}
}

func TestMemoryStoreApplyRelationsIsAllOrNothing(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	a := mustCreate(t, store, "a")
	b := mustCreate(t, store, "b")

	planErr := errors.New("refused")
	err := store.ApplyRelations(ctx, a.ID, b.ID, func(_, _ models.Relations) ([]models.RelationChange, error) {
		return nil, planErr
	})
	if !errors.Is(err, planErr) {
		t.Fatalf("expected plan error to pass through, got %v", err)
	}

	err = store.ApplyRelations(ctx, a.ID, b.ID, func(_, _ models.Relations) ([]models.RelationChange, error) {
		return []models.RelationChange{
			{UserID: a.ID, Field: models.FieldFriends, Target: b.ID},
			{UserID: b.ID, Field: "bogus", Target: a.ID},
		}, nil
	})
	if !errors.Is(err, ErrUnknownField) {
		t.Fatalf("expected unknown field error, got %v", err)
	}

	got, _ := store.FindByID(ctx, a.ID)
	if len(got.Friends) != 0 {
		t.Fatalf("expected no partial write, got friends %v", got.Friends)
	}

	if err := store.ApplyRelations(ctx, a.ID, "missing", nil); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found for missing user, got %v", err)
	}
}

func TestMemoryStoreDeleteCascades(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	a := mustCreate(t, store, "a")
	b := mustCreate(t, store, "b")
	c := mustCreate(t, store, "c")

	err := store.ApplyRelations(ctx, b.ID, a.ID, func(_, _ models.Relations) ([]models.RelationChange, error) {
		return []models.RelationChange{
			{UserID: b.ID, Field: models.FieldFriends, Target: a.ID},
			{UserID: b.ID, Field: models.FieldFollowing, Target: a.ID},
			{UserID: b.ID, Field: models.FieldFriendRequestsIn, Target: a.ID},
			{UserID: b.ID, Field: models.FieldFriends, Target: c.ID},
		}, nil
	})
	if err != nil {
		t.Fatalf("apply: %v", err)
	}

	if err := store.Delete(ctx, a.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := store.FindByID(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected deleted user to be gone, got %v", err)
	}

	got, _ := store.FindByID(ctx, b.ID)
	for _, field := range models.RelationFields {
		if got.Has(field, a.ID) {
			t.Fatalf("expected %s to no longer reference deleted user", field)
		}
	}
	if !got.Has(models.FieldFriends, c.ID) {
		t.Fatalf("expected unrelated friendship kept, got %v", got.Friends)
	}

	if err := store.Delete(ctx, a.ID); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected not found deleting twice, got %v", err)
	}
}

func TestMemoryStoreRevocationExpires(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	now := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	store.now = func() time.Time { return now }

	if err := store.Revoke(ctx, "jti-1", now.Add(time.Hour)); err != nil {
		t.Fatalf("revoke: %v", err)
	}
	if revoked, _ := store.IsRevoked(ctx, "jti-1"); !revoked {
		t.Fatal("expected token to be revoked")
	}
	if revoked, _ := store.IsRevoked(ctx, "jti-2"); revoked {
		t.Fatal("did not expect unknown token to be revoked")
	}

	now = now.Add(2 * time.Hour)
	if revoked, _ := store.IsRevoked(ctx, "jti-1"); revoked {
		t.Fatal("expected revocation to lapse after expiry")
	}
}

func TestMemoryStoreReturnsCopies(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	a := mustCreate(t, store, "a")

	a.Friends = append(a.Friends, "intruder")
	got, _ := store.FindByID(ctx, a.ID)
	if len(got.Friends) != 0 {
		t.Fatalf("caller mutation leaked into store: %v", got.Friends)
	}
}

func mustCreate(t *testing.T, store *MemoryStore, username string) models.User {
	t.Helper()
	user, err := store.Create(context.Background(), models.User{
		Username: username,
		Email:    username + "@example.com",
		Roles:    []string{models.RoleUser},
	})
	if err != nil {
		t.Fatalf("create %s: %v", username, err)
	}
	return user
}
