package credentials

import (
	"time"

	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// UserRole is the user's platform role.
type UserRole string

const (
	// RoleReferrer submits loan opportunities into the platform.
	RoleReferrer UserRole = "referrer"
	// RoleBroker works referred opportunities for an organisation.
	RoleBroker UserRole = "broker"
	// RoleOrgAdmin administers a single organisation.
	RoleOrgAdmin UserRole = "org_admin"
	// RoleSuperAdmin is a platform operator; carries no organisation.
	RoleSuperAdmin UserRole = "super_admin"
)

// UserStatus is the user's lifecycle status.
type UserStatus = string

const (
	UserStatusPending   UserStatus = "pending"
	UserStatusActive    UserStatus = "active"
	UserStatusSuspended UserStatus = "suspended"
	UserStatusDisabled  UserStatus = "disabled"
)

// User is the live user record. Refresh rotation and all permission-critical
// checks read this record, never the claims embedded in an old token.
type User struct {
	bun.BaseModel  `bun:"table:users,alias:usr"`
	ID             uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Email          string     `bun:"email,notnull,unique" json:"email,omitempty"`
	Role           UserRole   `bun:"user_role,notnull" json:"user_role,omitempty"`
	OrganisationID *uuid.UUID `bun:"organisation_id,nullzero,type:uuid" json:"organisation_id,omitempty"`
	Status         UserStatus `bun:"status" json:"status,omitempty"`
	DisplayName    string     `bun:"display_name" json:"display_name,omitempty"`
	Phone          string     `bun:"phone_number" json:"phone_number,omitempty"`
	PasswordHash   string     `bun:"password_hash" json:"password_hash,omitempty"`
	TwoFAEnabled   bool       `bun:"twofa_enabled" json:"twofa_enabled,omitempty"`
	LoginAttempts  int        `bun:"login_attempts" json:"login_attempts,omitempty"`
	LoginAttemptAt *time.Time `bun:"login_attempt_at" json:"login_attempt_at,omitempty"`
	LoggedInAt     *time.Time `bun:"loggedin_at" json:"loggedin_at,omitempty"`
	CreatedAt      *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
	DeletedAt      *time.Time `bun:"deleted_at,soft_delete,nullzero" json:"deleted_at,omitempty"`
}

// EnsureStatus backfills the status for records created before the lifecycle
// column existed.
func (u *User) EnsureStatus() {
	if u.Status == "" {
		u.Status = UserStatusActive
	}
}

// IsActive reports whether the user may authenticate or rotate tokens.
func (u *User) IsActive() bool {
	u.EnsureStatus()
	return u.Status == UserStatusActive
}

// IsValid checks if the role is one of the predefined platform roles.
func (r UserRole) IsValid() bool {
	switch r {
	case RoleReferrer, RoleBroker, RoleOrgAdmin, RoleSuperAdmin:
		return true
	default:
		return false
	}
}

// IsAtLeast checks this role against the platform hierarchy.
func (r UserRole) IsAtLeast(minRole UserRole) bool {
	roleHierarchy := map[UserRole]int{
		RoleReferrer:   0,
		RoleBroker:     1,
		RoleOrgAdmin:   2,
		RoleSuperAdmin: 3,
	}

	currentLevel, exists := roleHierarchy[r]
	if !exists {
		return false
	}

	minLevel, exists := roleHierarchy[minRole]
	if !exists {
		return false
	}

	return currentLevel >= minLevel
}

// ParseRole safely parses a string into a UserRole.
func ParseRole(roleStr string) (UserRole, bool) {
	role := UserRole(roleStr)
	return role, role.IsValid()
}

// OneTimeCode is a persisted 2FA code. At most one successful consumption is
// permitted; verification matches on (user, value), never on recency.
type OneTimeCode struct {
	bun.BaseModel `bun:"table:one_time_codes,alias:otc"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	UserID        uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	Code          string     `bun:"code,notnull" json:"code,omitempty"`
	Consumed      bool       `bun:"consumed" json:"consumed,omitempty"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull" json:"expires_at,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// PasswordResetToken is a persisted single-use reset credential. UsedAt is
// set exactly once by the conditional mark-used update.
type PasswordResetToken struct {
	bun.BaseModel `bun:"table:password_reset_tokens,alias:prt"`
	ID            uuid.UUID  `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Token         string     `bun:"token,notnull,unique" json:"token,omitempty"`
	UserID        uuid.UUID  `bun:"user_id,notnull,type:uuid" json:"user_id,omitempty"`
	ExpiresAt     time.Time  `bun:"expires_at,notnull" json:"expires_at,omitempty"`
	UsedAt        *time.Time `bun:"used_at,nullzero" json:"used_at,omitempty"`
	CreatedAt     *time.Time `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
}

// Consumable reports whether the token can still be consumed at now.
func (t *PasswordResetToken) Consumable(now time.Time) bool {
	return t.UsedAt == nil && now.Before(t.ExpiresAt)
}

// InvitationStatus is the invitation's lifecycle status. Transitions are
// one-way: pending->accepted or pending->expired, never reversed.
type InvitationStatus = string

const (
	InvitationStatusPending  InvitationStatus = "pending"
	InvitationStatusAccepted InvitationStatus = "accepted"
	InvitationStatusExpired  InvitationStatus = "expired"
)

// invitationTransitions is the allowed one-way transition graph.
var invitationTransitions = map[InvitationStatus]map[InvitationStatus]struct{}{
	InvitationStatusPending: {
		InvitationStatusAccepted: {},
		InvitationStatusExpired:  {},
	},
}

func invitationCanTransition(from, to InvitationStatus) bool {
	allowed, ok := invitationTransitions[from]
	if !ok {
		return false
	}
	_, exists := allowed[to]
	return exists
}

// Invitation is a persisted organisation-invitation token.
type Invitation struct {
	bun.BaseModel  `bun:"table:invitations,alias:inv"`
	ID             uuid.UUID        `bun:"id,pk,nullzero,type:uuid" json:"id,omitempty"`
	Token          string           `bun:"token,notnull,unique" json:"token,omitempty"`
	Email          string           `bun:"email,notnull" json:"email,omitempty"`
	OrganisationID uuid.UUID        `bun:"organisation_id,notnull,type:uuid" json:"organisation_id,omitempty"`
	Role           UserRole         `bun:"user_role" json:"user_role,omitempty"`
	Status         InvitationStatus `bun:"status,notnull" json:"status,omitempty"`
	ExpiresAt      time.Time        `bun:"expires_at,notnull" json:"expires_at,omitempty"`
	AcceptedAt     *time.Time       `bun:"accepted_at,nullzero" json:"accepted_at,omitempty"`
	CreatedAt      *time.Time       `bun:"created_at,nullzero,default:current_timestamp" json:"created_at,omitempty"`
	UpdatedAt      *time.Time       `bun:"updated_at,nullzero,default:current_timestamp" json:"updated_at,omitempty"`
}

// Pending reports whether the invitation is still awaiting a decision.
func (i *Invitation) Pending() bool {
	return i.Status == InvitationStatusPending
}

// ExpiredAt reports whether the invitation's validity window has lapsed at now.
func (i *Invitation) ExpiredAt(now time.Time) bool {
	return !now.Before(i.ExpiresAt)
}

