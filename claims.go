package auth

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// AuthClaims represents structured JWT claims with policy-aware permission checking
type AuthClaims interface {
	Subject() string
	UserID() string
	Role() string
	Approval() string
	CanRead(resource string) bool
	CanEdit(resource string) bool
	CanCreate(resource string) bool
	CanDelete(resource string) bool
	HasRole(role string) bool
	IsAtLeast(minRole string) bool
	Expires() time.Time
	IssuedAt() time.Time
}

// JWTClaims is the concrete implementation of AuthClaims
type JWTClaims struct {
	jwt.RegisteredClaims
	UID            string            `json:"uid,omitempty"`
	UserRole       string            `json:"role,omitempty"`
	ApprovalStatus string            `json:"approval,omitempty"`
	Resources      map[string]string `json:"res,omitempty"`      // resource -> role mapping
	Metadata       map[string]any    `json:"metadata,omitempty"` // extension payload
	Scopes         []string          `json:"scopes,omitempty"`
}

// Verify interface compliance
var _ AuthClaims = (*JWTClaims)(nil)

// Subject returns the subject claim
func (c *JWTClaims) Subject() string {
	return c.RegisteredClaims.Subject
}

// UserID returns the user ID
func (c *JWTClaims) UserID() string {
	if c.UID != "" {
		return c.UID
	}
	return c.Subject()
}

// Role returns the global role
func (c *JWTClaims) Role() string {
	return c.UserRole
}

// Approval returns the approval status snapshot embedded at issuance time.
// Callers that need a fresher answer go through an ApprovalChecker.
func (c *JWTClaims) Approval() string {
	if c.ApprovalStatus == "" {
		return string(ApprovalPending)
	}
	return c.ApprovalStatus
}

// effectiveRole resolves the role used for a resource check, preferring a
// resource-scoped role over the global one.
func (c *JWTClaims) effectiveRole(resource string) UserRole {
	if resourceRole, exists := c.Resources[resource]; exists {
		return UserRole(resourceRole)
	}
	return UserRole(c.UserRole)
}

// CanRead checks if the user can read a specific resource
func (c *JWTClaims) CanRead(resource string) bool {
	return defaultEngine.RoleCan(c.effectiveRole(resource), resource, ActionRead)
}

// CanEdit checks if the user can edit a specific resource
func (c *JWTClaims) CanEdit(resource string) bool {
	return defaultEngine.RoleCan(c.effectiveRole(resource), resource, ActionUpdate)
}

// CanCreate checks if the user can create a specific resource
func (c *JWTClaims) CanCreate(resource string) bool {
	return defaultEngine.RoleCan(c.effectiveRole(resource), resource, ActionCreate)
}

// CanDelete checks if the user can delete a specific resource
func (c *JWTClaims) CanDelete(resource string) bool {
	return defaultEngine.RoleCan(c.effectiveRole(resource), resource, ActionDelete)
}

// ResourceRoles exposes resource-specific roles for optional context enrichment.
func (c *JWTClaims) ResourceRoles() map[string]string {
	return c.Resources
}

// ClaimsMetadata exposes metadata extensions for optional context enrichment.
func (c *JWTClaims) ClaimsMetadata() map[string]any {
	return c.Metadata
}

// HasRole checks if the user has a specific role (either global or for any resource)
func (c *JWTClaims) HasRole(role string) bool {
	if c.UserRole == role {
		return true
	}
	for _, resourceRole := range c.Resources {
		if resourceRole == role {
			return true
		}
	}
	return false
}

// IsAtLeast checks if the user's role is at least the minimum required role
func (c *JWTClaims) IsAtLeast(minRole string) bool {
	return RoleIsAtLeast(UserRole(c.UserRole), UserRole(minRole))
}

// Expires returns the expiration time
func (c *JWTClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAt returns the issued at time
func (c *JWTClaims) IssuedAt() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}
