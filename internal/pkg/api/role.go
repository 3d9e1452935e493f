// Package api is the Go-level API Surface Contracts component (§4.J): the
// set of query/mutation/subscription operations the external transport
// (GraphQL, out of scope here) calls into, each guarded by a role check.
package api

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/open-policy-agent/opa/rego"

	"github.com/greenhouse/core/pkg/types"
)

// ErrAuthorizationDenied is returned when a caller's role does not satisfy
// the policy for the requested operation (§7 "AuthorizationDenied" — the
// error taxonomy says this is surfaced at the API boundary only).
var ErrAuthorizationDenied = errors.New("api: authorization denied")

// AuthContext carries { userId, role } (§4.J). An absent context in a
// context.Context limits callers to login/register/refresh/health, which
// this package does not implement since session issuance is external.
type AuthContext struct {
	UserID string
	Role   types.Role
}

type authContextKey struct{ name string }

var authCtxKey = &authContextKey{"auth"}

func ContextWithAuth(ctx context.Context, auth AuthContext) context.Context {
	return context.WithValue(ctx, authCtxKey, auth)
}

func AuthFromContext(ctx context.Context) (AuthContext, bool) {
	auth, ok := ctx.Value(authCtxKey).(AuthContext)
	return auth, ok
}

// RoleChecker evaluates an operation/role pair against a rego policy, the
// same evaluation shape as the teacher's presentation/api/auth.NewAuthenticator,
// adapted from an HTTP-header/tenant check into a plain Go role check that
// this package's query/mutation methods call directly.
type RoleChecker struct {
	query rego.PreparedEvalQuery
}

// NewRoleChecker compiles the rego policy read from policies. The policy is
// expected to expose data.greenhouse.authz.allow given { role, operation }.
func NewRoleChecker(ctx context.Context, policies io.Reader) (*RoleChecker, error) {
	module, err := io.ReadAll(policies)
	if err != nil {
		return nil, fmt.Errorf("unable to read authz policies: %w", err)
	}

	query, err := rego.New(
		rego.Query("x = data.greenhouse.authz.allow"),
		rego.Module("greenhouse.rego", string(module)),
	).PrepareForEval(ctx)
	if err != nil {
		return nil, err
	}

	return &RoleChecker{query: query}, nil
}

// Allow evaluates whether role may perform operation. Destructive
// operations and user/role management require admin; rule and template
// mutations require editor; device control requires operator; everything
// else requires only viewer (§4.J).
func (c *RoleChecker) Allow(ctx context.Context, role types.Role, operation string) (bool, error) {
	input := map[string]any{"role": string(role), "operation": operation}

	results, err := c.query.Eval(ctx, rego.EvalInput(input))
	if err != nil {
		return false, err
	}
	if len(results) == 0 {
		return false, nil
	}

	allowed, ok := results[0].Bindings["x"].(bool)
	if !ok {
		return false, errors.New("api: unexpected policy result type")
	}
	return allowed, nil
}

// require is the per-method guard every Queries/Mutations method calls
// before touching the Store, matching §7's "AuthorizationDenied ... internal
// code paths assume checks happened."
func (c *RoleChecker) require(ctx context.Context, operation string) error {
	auth, ok := AuthFromContext(ctx)
	if !ok {
		return ErrAuthorizationDenied
	}
	allowed, err := c.Allow(ctx, auth.Role, operation)
	if err != nil {
		return err
	}
	if !allowed {
		return ErrAuthorizationDenied
	}
	return nil
}
