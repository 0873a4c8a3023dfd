package handlers

import (
	"context"
	"net/http"
	"strings"

	"github.com/socialnet/backend/internal/apperr"
	"github.com/socialnet/backend/internal/middleware"
	"github.com/socialnet/backend/internal/models"
)

// FriendHandler exposes the friend-request transitions.
type FriendHandler struct {
	Relationships RelationshipManager
}

type relationshipRequest struct {
	UserID   string `json:"userId"`
	FriendID string `json:"friendId"`
}

type transition func(ctx context.Context, principal models.Principal, userID, friendID string) error

// Send handles POST /friend-request.
func (h FriendHandler) Send(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, false, h.Relationships.SendRequest, "Friend request sent")
}

// Cancel handles DELETE /friend-request/cancel.
func (h FriendHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, false, h.Relationships.CancelRequest, "Friend request canceled")
}

// Accept handles POST /friend-request/accept. The acting user is the caller.
func (h FriendHandler) Accept(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, true, h.Relationships.AcceptRequest, "Friend request accepted")
}

// Reject handles DELETE /friend-request/reject. The acting user is the caller.
func (h FriendHandler) Reject(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, true, h.Relationships.RejectRequest, "Friend request rejected")
}

// Unfriend handles DELETE /unfollow.
func (h FriendHandler) Unfriend(w http.ResponseWriter, r *http.Request) {
	h.handle(w, r, false, h.Relationships.Unfriend, "Unfollowed user successfully")
}

func (h FriendHandler) handle(w http.ResponseWriter, r *http.Request, callerActs bool, op transition, success string) {
	ctx := r.Context()

	principal, ok := middleware.PrincipalFromContext(ctx)
	if !ok {
		respondError(ctx, w, apperr.Unauthorized("unauthorized"))
		return
	}

	var req relationshipRequest
	if err := decodeJSON(r, &req); err != nil {
		respondError(ctx, w, err)
		return
	}
	req.UserID = strings.TrimSpace(req.UserID)
	req.FriendID = strings.TrimSpace(req.FriendID)

	if callerActs {
		if req.FriendID == "" {
			respondError(ctx, w, apperr.Validation("friendId is required"))
			return
		}
		req.UserID = principal.UserID
	}

	if err := op(ctx, principal, req.UserID, req.FriendID); err != nil {
		respondError(ctx, w, err)
		return
	}

	respondMessage(ctx, w, http.StatusOK, success)
}
