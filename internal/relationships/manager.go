// Package relationships owns the friend-request lifecycle. Every change to a
// user's relationship sets is planned here and applied by the store in a
// single transaction covering both users.
package relationships

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/socialnet/backend/internal/apperr"
	"github.com/socialnet/backend/internal/events"
	"github.com/socialnet/backend/internal/logging"
	"github.com/socialnet/backend/internal/models"
	"github.com/socialnet/backend/internal/repositories"
)

// Store applies relationship plans and removes accounts.
type Store interface {
	FindByID(ctx context.Context, id string) (models.User, error)
	ApplyRelations(ctx context.Context, userID, otherID string, plan models.RelationPlan) error
	Delete(ctx context.Context, id string) error
}

// Authorizer decides whether a principal may act on an account.
type Authorizer interface {
	Require(ctx context.Context, principal models.Principal, ownerID string, requiredRoles ...string) error
}

// Publisher receives events for committed changes.
type Publisher interface {
	Publish(ctx context.Context, ev events.Event) error
}

// Manager implements the relationship transitions.
type Manager struct {
	store     Store
	authz     Authorizer
	publisher Publisher
	now       func() time.Time
}

// NewManager constructs a Manager. publisher may be nil.
func NewManager(store Store, authz Authorizer, publisher Publisher) *Manager {
	return &Manager{
		store:     store,
		authz:     authz,
		publisher: publisher,
		now:       func() time.Time { return time.Now().UTC() },
	}
}

var (
	errSelf            = apperr.Validation("cannot target your own account")
	errMissingIDs      = apperr.Validation("userId and friendId are required")
	errAlreadyPending  = apperr.Conflict("friend request already sent")
	errAlreadyFriends  = apperr.Conflict("users are already friends")
	errCrossingRequest = apperr.Conflict("this user has already sent you a friend request")
	errNoPending       = apperr.Validation("no pending friend request found")
)

// SendRequest records a pending request from userID to friendID.
func (m *Manager) SendRequest(ctx context.Context, principal models.Principal, userID, friendID string) error {
	return m.transition(ctx, principal, userID, friendID, events.FriendRequestSent, planSend)
}

// CancelRequest withdraws a pending request from userID to friendID. It is a
// no-op when no request is pending.
func (m *Manager) CancelRequest(ctx context.Context, principal models.Principal, userID, friendID string) error {
	return m.transition(ctx, principal, userID, friendID, events.FriendRequestCanceled, planCancel)
}

// AcceptRequest accepts the pending request friendID sent to userID.
func (m *Manager) AcceptRequest(ctx context.Context, principal models.Principal, userID, friendID string) error {
	return m.transition(ctx, principal, userID, friendID, events.FriendRequestAccepted, planAccept)
}

// RejectRequest discards the pending request friendID sent to userID.
func (m *Manager) RejectRequest(ctx context.Context, principal models.Principal, userID, friendID string) error {
	return m.transition(ctx, principal, userID, friendID, events.FriendRequestRejected, planReject)
}

// Unfriend removes the friendship and follow edges between the two users in
// both directions. It is a no-op when they are not related.
func (m *Manager) Unfriend(ctx context.Context, principal models.Principal, userID, friendID string) error {
	return m.transition(ctx, principal, userID, friendID, events.FriendshipRemoved, planUnfriend)
}

// DeleteAccount removes userID and every reference other users hold to it.
// It returns the deleted account.
func (m *Manager) DeleteAccount(ctx context.Context, principal models.Principal, userID string) (_ models.User, err error) {
	ctx, span := logging.StartSpan(ctx, "relationships.delete_account")
	defer func() { span.End(err) }()

	if userID == "" {
		return models.User{}, apperr.Validation("userId is required")
	}
	if err := m.authz.Require(ctx, principal, userID, models.ElevatedRoles...); err != nil {
		return models.User{}, err
	}

	user, err := m.store.FindByID(ctx, userID)
	if err != nil {
		return models.User{}, classify(err, "failed to load user")
	}

	if err := m.store.Delete(ctx, userID); err != nil {
		return models.User{}, classify(err, "failed to delete user")
	}

	logging.FromContext(ctx).Info("account deleted", slog.String("user_id", userID), slog.String("actor_id", principal.UserID))
	m.publish(ctx, events.Event{Type: events.AccountDeleted, ActorID: principal.UserID, UserID: userID})

	user.PasswordHash = ""
	return user, nil
}

type planner func(userID, friendID string) models.RelationPlan

func (m *Manager) transition(ctx context.Context, principal models.Principal, userID, friendID string, typ events.Type, plan planner) (err error) {
	ctx, span := logging.StartSpan(ctx, "relationships."+string(typ))
	defer func() { span.End(err) }()

	if userID == "" || friendID == "" {
		return errMissingIDs
	}
	if userID == friendID {
		return errSelf
	}
	if err := m.authz.Require(ctx, principal, userID, models.ElevatedRoles...); err != nil {
		return err
	}

	if err := m.store.ApplyRelations(ctx, userID, friendID, plan(userID, friendID)); err != nil {
		return classify(err, "failed to update relationship")
	}

	logging.FromContext(ctx).Info("relationship updated",
		slog.String("type", string(typ)),
		slog.String("user_id", userID),
		slog.String("friend_id", friendID),
		slog.String("actor_id", principal.UserID),
	)
	m.publish(ctx, events.Event{Type: typ, ActorID: principal.UserID, UserID: userID, TargetID: friendID})
	return nil
}

func (m *Manager) publish(ctx context.Context, ev events.Event) {
	if m.publisher == nil {
		return
	}
	ev.OccurredAt = m.now()
	if err := m.publisher.Publish(ctx, ev); err != nil {
		logging.FromContext(ctx).Warn("relationship event dropped", slog.String("type", string(ev.Type)), slog.Any("error", err))
	}
}

func classify(err error, message string) error {
	var appErr *apperr.Error
	switch {
	case errors.As(err, &appErr):
		return err
	case errors.Is(err, repositories.ErrNotFound):
		return apperr.NotFound("user not found")
	case errors.Is(err, repositories.ErrWriteConflict):
		return apperr.Conflict("relationship changed concurrently, retry the request")
	default:
		return apperr.Server(message, err)
	}
}

func planSend(a, b string) models.RelationPlan {
	return func(user, other models.Relations) ([]models.RelationChange, error) {
		switch {
		case user.Has(models.FieldFriends, b):
			return nil, errAlreadyFriends
		case other.Has(models.FieldFriendRequestsIn, a), user.Has(models.FieldFriendRequestsOut, b):
			return nil, errAlreadyPending
		case user.Has(models.FieldFriendRequestsIn, b), other.Has(models.FieldFriendRequestsOut, a):
			return nil, errCrossingRequest
		}
		return []models.RelationChange{
			{UserID: a, Field: models.FieldFriendRequestsOut, Target: b},
			{UserID: b, Field: models.FieldFriendRequestsIn, Target: a},
		}, nil
	}
}

func planCancel(a, b string) models.RelationPlan {
	return func(_, _ models.Relations) ([]models.RelationChange, error) {
		return []models.RelationChange{
			{UserID: a, Field: models.FieldFriendRequestsOut, Target: b, Remove: true},
			{UserID: b, Field: models.FieldFriendRequestsIn, Target: a, Remove: true},
		}, nil
	}
}

// planAccept is planned from the acceptor's side: a accepts the request b sent.
func planAccept(a, b string) models.RelationPlan {
	return func(user, _ models.Relations) ([]models.RelationChange, error) {
		if !user.Has(models.FieldFriendRequestsIn, b) {
			return nil, errNoPending
		}
		return []models.RelationChange{
			{UserID: a, Field: models.FieldFriendRequestsIn, Target: b, Remove: true},
			{UserID: b, Field: models.FieldFriendRequestsOut, Target: a, Remove: true},
			{UserID: a, Field: models.FieldFriends, Target: b},
			{UserID: b, Field: models.FieldFriends, Target: a},
			{UserID: a, Field: models.FieldFollowing, Target: b},
			{UserID: b, Field: models.FieldFollowers, Target: a},
		}, nil
	}
}

func planReject(a, b string) models.RelationPlan {
	return func(user, _ models.Relations) ([]models.RelationChange, error) {
		if !user.Has(models.FieldFriendRequestsIn, b) {
			return nil, errNoPending
		}
		return []models.RelationChange{
			{UserID: a, Field: models.FieldFriendRequestsIn, Target: b, Remove: true},
			{UserID: b, Field: models.FieldFriendRequestsOut, Target: a, Remove: true},
		}, nil
	}
}

func planUnfriend(a, b string) models.RelationPlan {
	return func(_, _ models.Relations) ([]models.RelationChange, error) {
		var changes []models.RelationChange
		for _, field := range []models.RelationField{models.FieldFriends, models.FieldFollowers, models.FieldFollowing} {
			changes = append(changes,
				models.RelationChange{UserID: a, Field: field, Target: b, Remove: true},
				models.RelationChange{UserID: b, Field: field, Target: a, Remove: true},
			)
		}
		return changes, nil
	}
}
