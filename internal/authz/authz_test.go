package authz

import (
	"context"
	"testing"

	"github.com/socialnet/backend/internal/apperr"
	"github.com/socialnet/backend/internal/models"
)

func TestAuthorize(t *testing.T) {
	ctx := context.Background()
	authorizer, err := New(ctx)
	if err != nil {
		t.Fatalf("new authorizer: %v", err)
	}

	cases := []struct {
		name      string
		principal models.Principal
		owner     string
		roles     []string
		want      bool
	}{
		{"owner", models.Principal{UserID: "a", Roles: []string{models.RoleUser}}, "a", models.ElevatedRoles, true},
		{"stranger", models.Principal{UserID: "b", Roles: []string{models.RoleUser}}, "a", models.ElevatedRoles, false},
		{"admin", models.Principal{UserID: "b", Roles: []string{models.RoleAdmin}}, "a", models.ElevatedRoles, true},
		{"manager", models.Principal{UserID: "b", Roles: []string{models.RoleUser, models.RoleManager}}, "a", models.ElevatedRoles, true},
		{"admin without required roles", models.Principal{UserID: "b", Roles: []string{models.RoleAdmin}}, "a", nil, false},
		{"anonymous", models.Principal{}, "", models.ElevatedRoles, false},
		{"nil roles", models.Principal{UserID: "b"}, "a", models.ElevatedRoles, false},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := authorizer.Authorize(ctx, tc.principal, tc.owner, tc.roles...)
			if err != nil {
				t.Fatalf("authorize: %v", err)
			}
			if got != tc.want {
				t.Fatalf("expected %v got %v", tc.want, got)
			}
		})
	}
}

func TestRequireReturnsForbidden(t *testing.T) {
	ctx := context.Background()
	authorizer, err := New(ctx)
	if err != nil {
		t.Fatalf("new authorizer: %v", err)
	}

	err = authorizer.Require(ctx, models.Principal{UserID: "b", Roles: []string{models.RoleUser}}, "a", models.ElevatedRoles...)
	if !apperr.Is(err, apperr.KindForbidden) {
		t.Fatalf("expected forbidden, got %v", err)
	}
	if err := authorizer.Require(ctx, models.Principal{UserID: "a"}, "a", models.ElevatedRoles...); err != nil {
		t.Fatalf("expected owner to pass, got %v", err)
	}
}
