package handlers

import (
	"encoding/json"
	"net/http"
	"testing"

	"github.com/socialnet/backend/internal/models"
)

func (s *testServer) fetch(t *testing.T, token, id string) models.User {
	t.Helper()
	rec := s.do(t, http.MethodGet, "/users/"+id, token, nil)
	if rec.Code != http.StatusOK {
		t.Fatalf("get %s: %d", id, rec.Code)
	}
	var user models.User
	if err := json.NewDecoder(rec.Body).Decode(&user); err != nil {
		t.Fatalf("decode: %v", err)
	}
	return user
}

func TestFriendRequestLifecycle(t *testing.T) {
	srv := newTestServer(t)
	a := srv.register(t, "a")
	b := srv.register(t, "b")
	aToken, _ := srv.login(t, "a")
	bToken, _ := srv.login(t, "b")

	steps := []struct {
		name    string
		method  string
		path    string
		token   string
		body    relationshipRequest
		status  int
		message string
	}{
		{name: "send", method: http.MethodPost, path: "/friend-request", token: aToken, body: relationshipRequest{UserID: a.ID, FriendID: b.ID}, status: http.StatusOK, message: "Friend request sent"},
		{name: "send again", method: http.MethodPost, path: "/friend-request", token: aToken, body: relationshipRequest{UserID: a.ID, FriendID: b.ID}, status: http.StatusConflict},
		{name: "crossing send", method: http.MethodPost, path: "/friend-request", token: bToken, body: relationshipRequest{UserID: b.ID, FriendID: a.ID}, status: http.StatusConflict},
		{name: "accept", method: http.MethodPost, path: "/friend-request/accept", token: bToken, body: relationshipRequest{FriendID: a.ID}, status: http.StatusOK, message: "Friend request accepted"},
		{name: "accept again", method: http.MethodPost, path: "/friend-request/accept", token: bToken, body: relationshipRequest{FriendID: a.ID}, status: http.StatusBadRequest},
	}
	for _, step := range steps {
		rec := srv.do(t, step.method, step.path, step.token, step.body)
		if rec.Code != step.status {
			t.Fatalf("%s: expected %d got %d: %s", step.name, step.status, rec.Code, rec.Body.String())
		}
		if step.message != "" {
			if msg := decodeMessage(t, rec); msg != step.message {
				t.Fatalf("%s: unexpected message %q", step.name, msg)
			}
		}
	}

	gotA, gotB := srv.fetch(t, aToken, a.ID), srv.fetch(t, aToken, b.ID)
	if !gotA.Has(models.FieldFriends, b.ID) || !gotB.Has(models.FieldFriends, a.ID) {
		t.Fatalf("expected mutual friendship: %+v %+v", gotA.Relations, gotB.Relations)
	}
	if !gotB.Has(models.FieldFollowing, a.ID) || !gotA.Has(models.FieldFollowers, b.ID) {
		t.Fatalf("expected follow edge from acceptor: %+v %+v", gotA.Relations, gotB.Relations)
	}

	rec := srv.do(t, http.MethodDelete, "/unfollow", aToken, relationshipRequest{UserID: a.ID, FriendID: b.ID})
	if rec.Code != http.StatusOK {
		t.Fatalf("unfriend: expected 200 got %d", rec.Code)
	}
	gotA, gotB = srv.fetch(t, aToken, a.ID), srv.fetch(t, aToken, b.ID)
	for _, user := range []models.User{gotA, gotB} {
		for _, field := range models.RelationFields {
			if len(user.Set(field)) != 0 {
				t.Fatalf("expected %s of %s cleared, got %v", field, user.Username, user.Set(field))
			}
		}
	}
}

func TestFriendRequestCancelAndReject(t *testing.T) {
	srv := newTestServer(t)
	a := srv.register(t, "a")
	b := srv.register(t, "b")
	aToken, _ := srv.login(t, "a")
	bToken, _ := srv.login(t, "b")

	if rec := srv.do(t, http.MethodDelete, "/friend-request/reject", bToken, relationshipRequest{FriendID: a.ID}); rec.Code != http.StatusBadRequest {
		t.Fatalf("reject without pending request: expected 400 got %d", rec.Code)
	}

	if rec := srv.do(t, http.MethodPost, "/friend-request", aToken, relationshipRequest{UserID: a.ID, FriendID: b.ID}); rec.Code != http.StatusOK {
		t.Fatalf("send: %d", rec.Code)
	}
	rec := srv.do(t, http.MethodDelete, "/friend-request/cancel", aToken, relationshipRequest{UserID: a.ID, FriendID: b.ID})
	if rec.Code != http.StatusOK || decodeMessage(t, rec) != "Friend request canceled" {
		t.Fatalf("cancel: unexpected response %d", rec.Code)
	}
	if got := srv.fetch(t, bToken, b.ID); len(got.FriendRequestsIn) != 0 {
		t.Fatalf("expected request cancelled, got %v", got.FriendRequestsIn)
	}

	if rec := srv.do(t, http.MethodPost, "/friend-request", aToken, relationshipRequest{UserID: a.ID, FriendID: b.ID}); rec.Code != http.StatusOK {
		t.Fatalf("resend: %d", rec.Code)
	}
	rec = srv.do(t, http.MethodDelete, "/friend-request/reject", bToken, relationshipRequest{FriendID: a.ID})
	if rec.Code != http.StatusOK || decodeMessage(t, rec) != "Friend request rejected" {
		t.Fatalf("reject: unexpected response %d", rec.Code)
	}
	if got := srv.fetch(t, aToken, a.ID); len(got.FriendRequestsOut) != 0 || len(got.Friends) != 0 {
		t.Fatalf("expected request discarded, got %+v", got.Relations)
	}
}

func TestFriendRequestErrors(t *testing.T) {
	srv := newTestServer(t)
	a := srv.register(t, "a")
	b := srv.register(t, "b")
	srv.register(t, "c")
	aToken, _ := srv.login(t, "a")
	cToken, _ := srv.login(t, "c")

	tests := []struct {
		name   string
		method string
		path   string
		token  string
		body   any
		status int
	}{
		{name: "self request", method: http.MethodPost, path: "/friend-request", token: aToken, body: relationshipRequest{UserID: a.ID, FriendID: a.ID}, status: http.StatusBadRequest},
		{name: "missing friend", method: http.MethodPost, path: "/friend-request", token: aToken, body: relationshipRequest{UserID: a.ID}, status: http.StatusBadRequest},
		{name: "unknown friend", method: http.MethodPost, path: "/friend-request", token: aToken, body: relationshipRequest{UserID: a.ID, FriendID: "ghost"}, status: http.StatusNotFound},
		{name: "acting for someone else", method: http.MethodPost, path: "/friend-request", token: cToken, body: relationshipRequest{UserID: a.ID, FriendID: b.ID}, status: http.StatusForbidden},
		{name: "accept without friend id", method: http.MethodPost, path: "/friend-request/accept", token: aToken, body: relationshipRequest{}, status: http.StatusBadRequest},
		{name: "cancel unknown friend", method: http.MethodDelete, path: "/friend-request/cancel", token: aToken, body: relationshipRequest{UserID: a.ID, FriendID: "ghost"}, status: http.StatusNotFound},
		{name: "unfriend unknown", method: http.MethodDelete, path: "/unfollow", token: aToken, body: relationshipRequest{UserID: a.ID, FriendID: "ghost"}, status: http.StatusNotFound},
		{name: "malformed body", method: http.MethodPost, path: "/friend-request", token: aToken, body: []string{"nope"}, status: http.StatusBadRequest},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := srv.do(t, tt.method, tt.path, tt.token, tt.body)
			if rec.Code != tt.status {
				t.Fatalf("expected %d got %d: %s", tt.status, rec.Code, rec.Body.String())
			}
		})
	}
}
