package models

import (
	"slices"
	"time"
)

// Role tags recognised by the authorization policy.
const (
	RoleUser    = "User"
	RoleAdmin   = "Admin"
	RoleManager = "Manager"
)

// ElevatedRoles may act on behalf of any account.
var ElevatedRoles = []string{RoleAdmin, RoleManager}

// User represents an account within the social network.
type User struct {
	ID             string    `json:"id"`
	Username       string    `json:"username"`
	Firstname      string    `json:"firstname"`
	Lastname       string    `json:"lastname"`
	Email          string    `json:"email"`
	Gender         string    `json:"gender"`
	PasswordHash   string    `json:"-"`
	Roles          []string  `json:"roles"`
	ProfilePicture string    `json:"profilePicture"`
	CoverPicture   string    `json:"coverPicture"`
	Bio            string    `json:"bio"`
	Relations
	CreatedAt time.Time `json:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt"`
}

// Relations holds the per-user relationship sets. They are only ever changed
// through a RelationPlan applied by a store.
type Relations struct {
	FriendRequestsOut []string `json:"friendRequestsOut"`
	FriendRequestsIn  []string `json:"friendRequestsIn"`
	Friends           []string `json:"friends"`
	Followers         []string `json:"followers"`
	Following         []string `json:"following"`
}

// RelationField names one of the relationship sets.
type RelationField string

const (
	FieldFriendRequestsOut RelationField = "friend_requests_out"
	FieldFriendRequestsIn  RelationField = "friend_requests_in"
	FieldFriends           RelationField = "friends"
	FieldFollowers         RelationField = "followers"
	FieldFollowing         RelationField = "following"
)

// RelationFields lists every relationship set, in a stable order.
var RelationFields = []RelationField{
	FieldFriendRequestsOut,
	FieldFriendRequestsIn,
	FieldFriends,
	FieldFollowers,
	FieldFollowing,
}

// Set returns the ids stored in the named field.
func (r Relations) Set(field RelationField) []string {
	switch field {
	case FieldFriendRequestsOut:
		return r.FriendRequestsOut
	case FieldFriendRequestsIn:
		return r.FriendRequestsIn
	case FieldFriends:
		return r.Friends
	case FieldFollowers:
		return r.Followers
	case FieldFollowing:
		return r.Following
	default:
		return nil
	}
}

// Has reports whether id is a member of the named field.
func (r Relations) Has(field RelationField, id string) bool {
	return slices.Contains(r.Set(field), id)
}

// Apply performs a single set operation on the named field. Adding an existing
// member or removing an absent one is a no-op.
func (r *Relations) Apply(change RelationChange) {
	var target *[]string
	switch change.Field {
	case FieldFriendRequestsOut:
		target = &r.FriendRequestsOut
	case FieldFriendRequestsIn:
		target = &r.FriendRequestsIn
	case FieldFriends:
		target = &r.Friends
	case FieldFollowers:
		target = &r.Followers
	case FieldFollowing:
		target = &r.Following
	default:
		return
	}

	if change.Remove {
		*target = slices.DeleteFunc(*target, func(id string) bool { return id == change.Target })
		return
	}
	if !slices.Contains(*target, change.Target) {
		*target = append(*target, change.Target)
	}
}

// Without returns a copy of r with id removed from every set.
func (r Relations) Without(id string) Relations {
	out := Relations{}
	for _, field := range RelationFields {
		for _, member := range r.Set(field) {
			if member != id {
				out.Apply(RelationChange{Field: field, Target: member})
			}
		}
	}
	return out
}

// Normalized replaces nil sets with empty ones so they serialize as [].
func (r Relations) Normalized() Relations {
	orEmpty := func(ids []string) []string {
		if ids == nil {
			return []string{}
		}
		return ids
	}
	return Relations{
		FriendRequestsOut: orEmpty(r.FriendRequestsOut),
		FriendRequestsIn:  orEmpty(r.FriendRequestsIn),
		Friends:           orEmpty(r.Friends),
		Followers:         orEmpty(r.Followers),
		Following:         orEmpty(r.Following),
	}
}

// RelationChange adds Target to, or removes it from, one set of UserID.
type RelationChange struct {
	UserID string
	Field  RelationField
	Target string
	Remove bool
}

// RelationPlan inspects the current relationship sets of the acting user and
// the other user and returns the changes to apply. Returning an error aborts
// the transaction without writing anything.
type RelationPlan func(user, other Relations) ([]RelationChange, error)

// Principal is the authenticated identity attached to a request.
type Principal struct {
	UserID   string   `json:"userId"`
	Username string   `json:"username"`
	Roles    []string `json:"roles"`
}

// HasRole reports whether the principal carries any of the given roles.
func (p Principal) HasRole(roles ...string) bool {
	for _, role := range roles {
		if slices.Contains(p.Roles, role) {
			return true
		}
	}
	return false
}

// SessionTokens groups the credentials issued at login.
type SessionTokens struct {
	AccessToken      string
	AccessExpiresAt  time.Time
	RefreshToken     string
	RefreshExpiresAt time.Time
}

// PictureKind selects which user image is being replaced.
type PictureKind string

const (
	PictureProfile PictureKind = "profile"
	PictureCover   PictureKind = "cover"
)
