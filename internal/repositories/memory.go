package repositories

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/socialnet/backend/internal/models"
)

// MemoryStore keeps every account in process memory. It is intended for tests
// and single-instance development runs.
type MemoryStore struct {
	mu      sync.Mutex
	users   map[string]models.User
	revoked map[string]time.Time
	now     func() time.Time
}

// NewMemoryStore constructs an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		users:   make(map[string]models.User),
		revoked: make(map[string]time.Time),
		now:     func() time.Time { return time.Now().UTC() },
	}
}

// Create stores a new user, rejecting duplicate usernames or emails.
func (s *MemoryStore) Create(_ context.Context, user models.User) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, existing := range s.users {
		if existing.Username == user.Username || existing.Email == user.Email {
			return models.User{}, ErrConflict
		}
	}

	if user.ID == "" {
		user.ID = uuid.NewString()
	} else if _, ok := s.users[user.ID]; ok {
		return models.User{}, ErrConflict
	}

	now := s.now()
	user.CreatedAt = now
	user.UpdatedAt = now
	user.Relations = models.Relations{}.Normalized()
	s.users[user.ID] = cloneUser(user)
	return cloneUser(user), nil
}

// FindByID fetches a user by id.
func (s *MemoryStore) FindByID(_ context.Context, id string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return models.User{}, ErrNotFound
	}
	return cloneUser(user), nil
}

// FindByUsername fetches a user by username.
func (s *MemoryStore) FindByUsername(_ context.Context, username string) (models.User, error) {
	return s.findFirst(func(u models.User) bool { return u.Username == username })
}

// FindByEmail fetches a user by email.
func (s *MemoryStore) FindByEmail(_ context.Context, email string) (models.User, error) {
	return s.findFirst(func(u models.User) bool { return u.Email == email })
}

func (s *MemoryStore) findFirst(match func(models.User) bool) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, user := range s.users {
		if match(user) {
			return cloneUser(user), nil
		}
	}
	return models.User{}, ErrNotFound
}

// List returns every user ordered by creation time.
func (s *MemoryStore) List(_ context.Context) ([]models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	users := make([]models.User, 0, len(s.users))
	for _, user := range s.users {
		users = append(users, cloneUser(user))
	}
	sort.Slice(users, func(i, j int) bool {
		if users[i].CreatedAt.Equal(users[j].CreatedAt) {
			return users[i].ID < users[j].ID
		}
		return users[i].CreatedAt.Before(users[j].CreatedAt)
	})
	return users, nil
}

// UpdatePicture records the location of a newly uploaded picture.
func (s *MemoryStore) UpdatePicture(_ context.Context, id string, kind models.PictureKind, location string) (models.User, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[id]
	if !ok {
		return models.User{}, ErrNotFound
	}
	switch kind {
	case models.PictureProfile:
		user.ProfilePicture = location
	case models.PictureCover:
		user.CoverPicture = location
	default:
		return models.User{}, ErrUnknownField
	}
	user.UpdatedAt = s.now()
	s.users[id] = user
	return cloneUser(user), nil
}

// Delete removes the user and every reference to it held by other users.
func (s *MemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.users[id]; !ok {
		return ErrNotFound
	}
	delete(s.users, id)

	for otherID, other := range s.users {
		pruned := other.Relations.Without(id)
		for _, field := range models.RelationFields {
			if len(pruned.Set(field)) != len(other.Relations.Set(field)) {
				other.Relations = pruned.Normalized()
				other.UpdatedAt = s.now()
				s.users[otherID] = other
				break
			}
		}
	}
	return nil
}

// ApplyRelations runs plan against both users while holding the store lock.
func (s *MemoryStore) ApplyRelations(_ context.Context, userID, otherID string, plan models.RelationPlan) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	user, ok := s.users[userID]
	if !ok {
		return ErrNotFound
	}
	other, ok := s.users[otherID]
	if !ok {
		return ErrNotFound
	}

	changes, err := plan(cloneRelations(user.Relations), cloneRelations(other.Relations))
	if err != nil {
		return err
	}

	staged := map[string]models.User{
		userID:  cloneUser(user),
		otherID: cloneUser(other),
	}
	for _, change := range changes {
		if !validField(change.Field) {
			return ErrUnknownField
		}
		target, ok := staged[change.UserID]
		if !ok {
			return ErrNotFound
		}
		target.Relations.Apply(change)
		target.UpdatedAt = s.now()
		staged[change.UserID] = target
	}

	for id, updated := range staged {
		s.users[id] = updated
	}
	return nil
}

// Revoke marks a refresh token id as unusable until it would have expired anyway.
func (s *MemoryStore) Revoke(_ context.Context, tokenID string, expiresAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.revoked[tokenID] = expiresAt.UTC()
	return nil
}

// IsRevoked reports whether a refresh token id was revoked and has not expired.
func (s *MemoryStore) IsRevoked(_ context.Context, tokenID string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	expiresAt, ok := s.revoked[tokenID]
	if !ok {
		return false, nil
	}
	if !s.now().Before(expiresAt) {
		delete(s.revoked, tokenID)
		return false, nil
	}
	return true, nil
}

// Ping always succeeds.
func (s *MemoryStore) Ping(context.Context) error {
	return nil
}

// Close is a no-op.
func (s *MemoryStore) Close(context.Context) error {
	return nil
}

func cloneUser(user models.User) models.User {
	user.Roles = slices.Clone(user.Roles)
	user.Relations = cloneRelations(user.Relations)
	return user
}

func cloneRelations(r models.Relations) models.Relations {
	return models.Relations{
		FriendRequestsOut: slices.Clone(r.FriendRequestsOut),
		FriendRequestsIn:  slices.Clone(r.FriendRequestsIn),
		Friends:           slices.Clone(r.Friends),
		Followers:         slices.Clone(r.Followers),
		Following:         slices.Clone(r.Following),
	}.Normalized()
}

var _ Store = (*MemoryStore)(nil)
