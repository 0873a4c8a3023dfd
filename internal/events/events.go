// Package events relays committed relationship changes to a message broker
// for the real-time layer.
package events

import (
	"context"
	"time"
)

// Type names a relationship event.
type Type string

const (
	FriendRequestSent     Type = "friend_request.sent"
	FriendRequestCanceled Type = "friend_request.canceled"
	FriendRequestAccepted Type = "friend_request.accepted"
	FriendRequestRejected Type = "friend_request.rejected"
	FriendshipRemoved     Type = "friendship.removed"
	AccountDeleted        Type = "account.deleted"
)

// Event describes one committed change. UserID is the account the transition
// was applied to and TargetID the other side, if any.
type Event struct {
	ID         string    `json:"id"`
	Type       Type      `json:"type"`
	ActorID    string    `json:"actorId"`
	UserID     string    `json:"userId"`
	TargetID   string    `json:"targetId,omitempty"`
	OccurredAt time.Time `json:"occurredAt"`
}

// Backend delivers encoded events to a broker channel.
type Backend interface {
	Publish(ctx context.Context, channel string, data []byte, attrs map[string]string) (string, error)
	Close() error
}
