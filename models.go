package auth

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserRole is the user's role
type UserRole = string

const (
	// RoleStudent can read course content and manage their own submissions
	RoleStudent UserRole = "student"
	// RoleGuardian can read content and records for linked students
	RoleGuardian UserRole = "guardian"
	// RoleTeacher can author courses, assignments, and grade submissions
	RoleTeacher UserRole = "teacher"
	// RoleAdmin manages accounts, approvals, and permission grants
	RoleAdmin UserRole = "admin"
	// RoleSuperAdmin bypasses the policy table entirely
	RoleSuperAdmin UserRole = "super_admin"
)

// ApprovalStatus is the account approval lifecycle state
type ApprovalStatus = string

const (
	// ApprovalPending is the state every new registration starts in
	ApprovalPending ApprovalStatus = "pending"
	// ApprovalApproved unlocks full role privileges
	ApprovalApproved ApprovalStatus = "approved"
	// ApprovalRejected is terminal
	ApprovalRejected ApprovalStatus = "rejected"
)

// User is the account model
type User struct {
	bun.BaseModel  `bun:"table:users,alias:usr"`
	ID             uuid.UUID      `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Role           UserRole       `bun:"user_role,notnull" json:"user_role,omitempty"`
	FirstName      string         `bun:"first_name" json:"first_name,omitempty"`
	LastName       string         `bun:"last_name" json:"last_name,omitempty"`
	Username       string         `bun:"username,notnull,unique" json:"username,omitempty"`
	Email          string         `bun:"email,notnull,unique" json:"email,omitempty"`
	PasswordHash   string         `bun:"password_hash" json:"-"`
	ApprovalStatus ApprovalStatus `bun:"approval_status,notnull" json:"approval_status,omitempty"`
	ApprovedBy     *uuid.UUID     `bun:"approved_by,nullzero" json:"approved_by,omitempty"`
	DecidedAt      *time.Time     `bun:"decided_at,nullzero" json:"decided_at,omitempty"`
	LoginAttempts  int            `bun:"login_attempts" json:"login_attempts,omitempty"`
	LoginAttemptAt *time.Time     `bun:"login_attempt_at" json:"login_attempt_at,omitempty"`
	LoggedInAt     *time.Time     `bun:"loggedin_at" json:"loggedin_at,omitempty"`
	Metadata       map[string]any `bun:"metadata" json:"metadata,omitempty"`
	CreatedAt      *time.Time     `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time     `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt      *time.Time     `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// EnsureApprovalStatus normalizes a zero-value status to pending, the state
// every account starts in.
func (u *User) EnsureApprovalStatus() {
	if u == nil {
		return
	}
	if u.ApprovalStatus == "" {
		u.ApprovalStatus = ApprovalPending
	}
}

// IsApproved reports whether the account cleared the approval gate.
func (u *User) IsApproved() bool {
	return u != nil && u.ApprovalStatus == ApprovalApproved
}

// AddMetadata will append information to a metadata attribute
func (u *User) AddMetadata(key string, val any) *User {
	if u.Metadata == nil {
		u.Metadata = make(map[string]any)
	}
	u.Metadata[key] = val
	return u
}

// RefreshToken is the stored half of the refresh credential. Only a sha256
// fingerprint of the opaque token is persisted; the raw value never touches
// the database.
type RefreshToken struct {
	bun.BaseModel `bun:"table:refresh_tokens,alias:rft"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	User          *User      `bun:"rel:belongs-to,join:user_id=id" json:"user,omitempty"`
	ChainID       uuid.UUID  `bun:"chain_id,notnull,type:uuid" json:"chain_id,omitempty"`
	TokenHash     string     `bun:"token_hash,notnull,unique" json:"-"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull" json:"expires_at,omitempty"`
	ConsumedAt    *time.Time `bun:"consumed_at,nullzero" json:"consumed_at,omitempty"`
	RevokedAt     *time.Time `bun:"revoked_at,nullzero" json:"revoked_at,omitempty"`
	RevokedReason string     `bun:"revoked_reason" json:"revoked_reason,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// Active reports whether the token can still be exchanged at the given time.
func (t *RefreshToken) Active(now time.Time) bool {
	if t == nil {
		return false
	}
	return t.ConsumedAt == nil && t.RevokedAt == nil && now.Before(t.ExpiresAt)
}
