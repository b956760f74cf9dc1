package credentials

import (
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

// TokenType discriminates the two stateless token families. The value is
// embedded in the signed payload so a token can never be replayed as the
// other family even when both keys are known to the verifier.
type TokenType string

const (
	TokenTypeAccess  TokenType = "access"
	TokenTypeRefresh TokenType = "refresh"
)

// IdentityClaims is the closed set of identity facts carried by an access
// token. OrganisationID is nil for platform-admin subjects that operate
// across organisations. The embedded role is advisory for UI purposes only;
// permission-critical checks re-derive facts from the live user record.
type IdentityClaims struct {
	SubjectID      string
	Email          string
	Role           UserRole
	OrganisationID *uuid.UUID
	TwoFAEnabled   bool
}

// SessionClaims is the wire shape of both token families. Refresh tokens
// carry the subject and type discriminator only, so role or email changes
// can never go stale inside a long-lived token.
type SessionClaims struct {
	jwt.RegisteredClaims
	TokenUse       string `json:"use,omitempty"`
	Email          string `json:"email,omitempty"`
	UserRole       string `json:"role,omitempty"`
	OrganisationID string `json:"org,omitempty"`
	TwoFAEnabled   bool   `json:"tfa,omitempty"`
}

// TokenType returns the embedded family discriminator.
func (c *SessionClaims) TokenType() TokenType {
	return TokenType(c.TokenUse)
}

// SubjectID returns the subject claim.
func (c *SessionClaims) SubjectID() string {
	return c.RegisteredClaims.Subject
}

// Identity reconstructs the identity facts embedded at signing time.
func (c *SessionClaims) Identity() IdentityClaims {
	identity := IdentityClaims{
		SubjectID:    c.SubjectID(),
		Email:        c.Email,
		Role:         UserRole(c.UserRole),
		TwoFAEnabled: c.TwoFAEnabled,
	}

	if c.OrganisationID != "" {
		if id, err := uuid.Parse(c.OrganisationID); err == nil {
			identity.OrganisationID = &id
		}
	}

	return identity
}

// Expires returns the embedded expiry, or the zero time when absent.
func (c *SessionClaims) Expires() time.Time {
	if c.RegisteredClaims.ExpiresAt != nil {
		return c.RegisteredClaims.ExpiresAt.Time
	}
	return time.Time{}
}

// IssuedAtTime returns the embedded issuance time, or the zero time when absent.
func (c *SessionClaims) IssuedAtTime() time.Time {
	if c.RegisteredClaims.IssuedAt != nil {
		return c.RegisteredClaims.IssuedAt.Time
	}
	return time.Time{}
}

// HasRole checks the advisory role claim.
func (c *SessionClaims) HasRole(role string) bool {
	return c.UserRole == role
}

// IsAtLeast checks the advisory role claim against the role hierarchy.
func (c *SessionClaims) IsAtLeast(minRole string) bool {
	return UserRole(c.UserRole).IsAtLeast(UserRole(minRole))
}

// ensureTokenID assigns a random JTI when the claims carry none.
func ensureTokenID(claims *jwt.RegisteredClaims) {
	if claims.ID == "" {
		claims.ID = uuid.NewString()
	}
}
