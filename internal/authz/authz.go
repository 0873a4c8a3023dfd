// Package authz evaluates the account ownership policy shared by every
// relationship and account operation.
package authz

import (
	"context"
	_ "embed"
	"fmt"

	"github.com/open-policy-agent/opa/ast"
	"github.com/open-policy-agent/opa/rego"

	"github.com/socialnet/backend/internal/apperr"
	"github.com/socialnet/backend/internal/models"
)

//go:embed policy.rego
var policy string

// Authorizer answers whether a principal may act on an account.
type Authorizer struct {
	allow rego.PartialResult
}

// New compiles the embedded policy once so each decision only evaluates input.
func New(ctx context.Context) (*Authorizer, error) {
	compiler, err := ast.CompileModules(map[string]string{"policy.rego": policy})
	if err != nil {
		return nil, fmt.Errorf("compile authz policy: %w", err)
	}

	allow, err := rego.New(
		rego.Compiler(compiler),
		rego.Query("data.socialnet.authz.allow"),
	).PartialResult(ctx)
	if err != nil {
		return nil, fmt.Errorf("prepare authz policy: %w", err)
	}

	return &Authorizer{allow: allow}, nil
}

// Authorize reports whether principal owns ownerID or holds one of requiredRoles.
func (a *Authorizer) Authorize(ctx context.Context, principal models.Principal, ownerID string, requiredRoles ...string) (bool, error) {
	roles := principal.Roles
	if roles == nil {
		roles = []string{}
	}
	if requiredRoles == nil {
		requiredRoles = []string{}
	}

	input := map[string]any{
		"principal": map[string]any{
			"user_id": principal.UserID,
			"roles":   roles,
		},
		"owner_id":       ownerID,
		"required_roles": requiredRoles,
	}

	rs, err := a.allow.Rego(rego.Input(input)).Eval(ctx)
	if err != nil {
		return false, fmt.Errorf("evaluate authz policy: %w", err)
	}
	return rs.Allowed(), nil
}

// Require is Authorize with the decision folded into a classified error.
func (a *Authorizer) Require(ctx context.Context, principal models.Principal, ownerID string, requiredRoles ...string) error {
	allowed, err := a.Authorize(ctx, principal, ownerID, requiredRoles...)
	if err != nil {
		return apperr.Server("authorization failed", err)
	}
	if !allowed {
		return apperr.Forbidden("not allowed to act on this account")
	}
	return nil
}
