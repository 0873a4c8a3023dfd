package auth

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"golang.org/x/crypto/bcrypt"

	"github.com/socialnet/backend/internal/apperr"
	"github.com/socialnet/backend/internal/models"
	"github.com/socialnet/backend/internal/repositories"
)

func newTestService(t *testing.T, opts ...Option) (*Service, *repositories.MemoryStore) {
	t.Helper()
	store := repositories.NewMemoryStore()
	tokens := NewTokenManager("access-secret", "refresh-secret", 15*time.Minute, 7*24*time.Hour)
	opts = append([]Option{WithHashCost(bcrypt.MinCost)}, opts...)
	svc, err := NewService(store, tokens, opts...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return svc, store
}

func aliceInput() RegisterInput {
	return RegisterInput{
		Username:  "alice",
		Firstname: "Alice",
		Lastname:  "Liddell",
		Email:     "alice@example.com",
		Password:  "wonderland",
		Gender:    "female",
	}
}

func TestRegister(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)

	user, err := svc.Register(ctx, aliceInput())
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if user.ID == "" || user.PasswordHash != "" {
		t.Fatalf("expected id and no hash in result, got %+v", user)
	}
	if len(user.Roles) != 1 || user.Roles[0] != models.RoleUser {
		t.Fatalf("expected default User role, got %v", user.Roles)
	}

	body, _ := json.Marshal(user)
	if strings.Contains(strings.ToLower(string(body)), "password") {
		t.Fatalf("credential leaked: %s", body)
	}

	stored, err := store.FindByUsername(ctx, "alice")
	if err != nil {
		t.Fatalf("find stored: %v", err)
	}
	if stored.PasswordHash == "wonderland" || bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("wonderland")) != nil {
		t.Fatal("expected a bcrypt hash of the password to be stored")
	}
}

func TestRegisterFailures(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	if _, err := svc.Register(ctx, aliceInput()); err != nil {
		t.Fatalf("register: %v", err)
	}

	cases := []struct {
		name   string
		mutate func(*RegisterInput)
		kind   apperr.Kind
	}{
		{"missing gender", func(in *RegisterInput) { in.Username = "bob"; in.Email = "bob@example.com"; in.Gender = "" }, apperr.KindValidation},
		{"blank username", func(in *RegisterInput) { in.Username = "   " }, apperr.KindValidation},
		{"bad email", func(in *RegisterInput) { in.Username = "bob"; in.Email = "not-an-email" }, apperr.KindValidation},
		{"duplicate username", func(in *RegisterInput) { in.Email = "other@example.com" }, apperr.KindConflict},
		{"duplicate email", func(in *RegisterInput) { in.Username = "bob" }, apperr.KindConflict},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			in := aliceInput()
			tc.mutate(&in)
			_, err := svc.Register(ctx, in)
			if !apperr.Is(err, tc.kind) {
				t.Fatalf("expected %s, got %v", tc.kind, err)
			}
		})
	}
}

func TestLogin(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	registered, err := svc.Register(ctx, aliceInput())
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	tokens, err := svc.Login(ctx, "alice", "wonderland")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	principal, err := svc.Tokens().VerifyAccess(tokens.AccessToken)
	if err != nil {
		t.Fatalf("verify access: %v", err)
	}
	if principal.UserID != registered.ID {
		t.Fatalf("expected principal for %s, got %+v", registered.ID, principal)
	}

	_, wrongPassword := svc.Login(ctx, "alice", "nope")
	_, unknownUser := svc.Login(ctx, "mallory", "nope")
	for _, err := range []error{wrongPassword, unknownUser} {
		if !apperr.Is(err, apperr.KindUnauthorized) {
			t.Fatalf("expected unauthorized, got %v", err)
		}
	}
	if apperr.Message(wrongPassword) != apperr.Message(unknownUser) {
		t.Fatalf("expected identical messages, got %q and %q", apperr.Message(wrongPassword), apperr.Message(unknownUser))
	}

	if _, err := svc.Login(ctx, "", "x"); !apperr.Is(err, apperr.KindValidation) {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestRefreshRereadsRoles(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestService(t)
	if _, err := svc.Register(ctx, aliceInput()); err != nil {
		t.Fatalf("register: %v", err)
	}
	tokens, err := svc.Login(ctx, "alice", "wonderland")
	if err != nil {
		t.Fatalf("login: %v", err)
	}

	if _, err := svc.Refresh(ctx, ""); !apperr.Is(err, apperr.KindUnauthorized) {
		t.Fatalf("expected unauthorized without cookie, got %v", err)
	}
	if _, err := svc.Refresh(ctx, "garbage"); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden for invalid token, got %v", err)
	}
	if _, err := svc.Refresh(ctx, tokens.AccessToken); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden when an access token is used to refresh, got %v", err)
	}

	refreshed, err := svc.Refresh(ctx, tokens.RefreshToken)
	if err != nil {
		t.Fatalf("refresh: %v", err)
	}
	if refreshed.RefreshToken != "" {
		t.Fatal("refresh should only mint an access token")
	}
	if _, err := svc.Tokens().VerifyAccess(refreshed.AccessToken); err != nil {
		t.Fatalf("verify refreshed access token: %v", err)
	}

	user, _ := store.FindByUsername(ctx, "alice")
	if err := store.Delete(ctx, user.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := svc.Refresh(ctx, tokens.RefreshToken); !apperr.Is(err, apperr.KindUnauthorized) {
		t.Fatalf("expected unauthorized once account is gone, got %v", err)
	}
}

func TestLogoutWithoutRevocation(t *testing.T) {
	ctx := context.Background()
	svc, _ := newTestService(t)
	if _, err := svc.Register(ctx, aliceInput()); err != nil {
		t.Fatalf("register: %v", err)
	}
	tokens, _ := svc.Login(ctx, "alice", "wonderland")

	if had, err := svc.Logout(ctx, ""); err != nil || had {
		t.Fatalf("expected no-op logout without cookie, got %v %v", had, err)
	}
	if had, err := svc.Logout(ctx, tokens.RefreshToken); err != nil || !had {
		t.Fatalf("expected logout to report a session, got %v %v", had, err)
	}
	if _, err := svc.Refresh(ctx, tokens.RefreshToken); err != nil {
		t.Fatalf("without revocation the refresh token stays valid until expiry: %v", err)
	}
}

func TestLogoutWithRevocation(t *testing.T) {
	ctx := context.Background()
	revocations := repositories.NewMemoryStore()
	svc, _ := newTestService(t, WithRevocation(revocations))
	if _, err := svc.Register(ctx, aliceInput()); err != nil {
		t.Fatalf("register: %v", err)
	}
	first, _ := svc.Login(ctx, "alice", "wonderland")
	second, _ := svc.Login(ctx, "alice", "wonderland")

	if _, err := svc.Logout(ctx, first.RefreshToken); err != nil {
		t.Fatalf("logout: %v", err)
	}
	if _, err := svc.Refresh(ctx, first.RefreshToken); !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected revoked token to be forbidden, got %v", err)
	}
	if _, err := svc.Refresh(ctx, second.RefreshToken); err != nil {
		t.Fatalf("other sessions should be unaffected: %v", err)
	}
}

type failingUsers struct{}

func (failingUsers) Create(context.Context, models.User) (models.User, error) {
	return models.User{}, errors.New("db down")
}

func (failingUsers) FindByUsername(context.Context, string) (models.User, error) {
	return models.User{}, errors.New("db down")
}

func (failingUsers) FindByEmail(context.Context, string) (models.User, error) {
	return models.User{}, errors.New("db down")
}

func TestStoreFailuresAreServerErrors(t *testing.T) {
	tokens := NewTokenManager("a", "r", time.Minute, time.Hour)
	svc, err := NewService(failingUsers{}, tokens, WithHashCost(bcrypt.MinCost))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}

	if _, err := svc.Register(context.Background(), aliceInput()); apperr.KindOf(err) != apperr.KindServer {
		t.Fatalf("expected server error, got %v", err)
	}
	if _, err := svc.Login(context.Background(), "alice", "pw"); apperr.KindOf(err) != apperr.KindServer {
		t.Fatalf("expected server error, got %v", err)
	}
}
