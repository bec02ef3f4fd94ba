package auth

import (
	"context"

	"github.com/goliatone/go-router"
)

var userCtxKey = &contextKey{"user"}
var claimsCtxKey = &contextKey{"claims"}

type contextKey struct {
	name string
}

// WithContext sets the User in the given context
func WithContext(r context.Context, user *User) context.Context {
	return context.WithValue(r, userCtxKey, user)
}

// FromContext finds the user from the context.
func FromContext(ctx context.Context) (*User, bool) {
	raw, ok := ctx.Value(userCtxKey).(*User)
	return raw, ok
}

// WithClaimsContext sets the AuthClaims in the given context
func WithClaimsContext(r context.Context, claims AuthClaims) context.Context {
	return context.WithValue(r, claimsCtxKey, claims)
}

// GetClaims extracts the AuthClaims from the standard context
func GetClaims(ctx context.Context) (AuthClaims, bool) {
	raw, ok := ctx.Value(claimsCtxKey).(AuthClaims)
	return raw, ok
}

// GetRouterClaims extracts the AuthClaims from the router context
func GetRouterClaims(ctx router.Context, key string) (AuthClaims, bool) {
	if key == "" {
		key = "user" // Default key used by JWT middleware
	}
	raw := ctx.Locals(key)
	if raw == nil {
		return nil, false
	}
	claims, ok := raw.(AuthClaims)
	return claims, ok
}

// Can is a convenience function to check permissions directly from the standard context
// Use CanFromRouter for router-based contexts.
func Can(ctx context.Context, resource, permission string) bool {
	claims, ok := GetClaims(ctx)
	if !ok {
		return false
	}

	return claimsCan(claims, resource, permission)
}

// CanFromRouter is a convenience function to check permissions directly from the router context
func CanFromRouter(ctx router.Context, resource, permission string) bool {
	claims, ok := GetRouterClaims(ctx, "")
	if !ok {
		return false
	}

	return claimsCan(claims, resource, permission)
}

// Authorize runs the fail-closed policy check for the claims in the standard
// context. A context without claims yields ErrUnauthenticated, a role the
// table does not grant yields ErrForbidden.
func Authorize(ctx context.Context, resource string, action Action, opts ...AuthorizeOption) error {
	claims, _ := GetClaims(ctx)
	return defaultEngine.Authorize(ctx, claims, resource, action, opts...)
}

func claimsCan(claims AuthClaims, resource, permission string) bool {
	switch permission {
	case "read":
		return claims.CanRead(resource)
	case "edit", "update":
		return claims.CanEdit(resource)
	case "create":
		return claims.CanCreate(resource)
	case "delete":
		return claims.CanDelete(resource)
	case "assign":
		return defaultEngine.RoleCan(UserRole(claims.Role()), resource, ActionAssign)
	case "approve":
		return defaultEngine.RoleCan(UserRole(claims.Role()), resource, ActionApprove)
	case "grade":
		return defaultEngine.RoleCan(UserRole(claims.Role()), resource, ActionGrade)
	default:
		return false
	}
}
