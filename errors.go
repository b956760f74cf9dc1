package credentials

import (
	"github.com/goliatone/go-errors"
)

// Machine-readable rejection codes. Handlers key off these rather than
// message text when mapping outcomes to responses.
const (
	TextCodeTokenMalformed  = "TOKEN_MALFORMED"
	TextCodeBadSignature    = "TOKEN_BAD_SIGNATURE"
	TextCodeTokenExpired    = "TOKEN_EXPIRED"
	TextCodeWrongTokenType  = "TOKEN_WRONG_TYPE"
	TextCodeCodeNotFound    = "CODE_NOT_FOUND"
	TextCodeCodeConsumed    = "CODE_ALREADY_CONSUMED"
	TextCodeCodeExpired     = "CODE_EXPIRED"
	TextCodeResetNotFound   = "RESET_TOKEN_NOT_FOUND"
	TextCodeResetInvalid    = "RESET_TOKEN_INVALID"
	TextCodeInviteNotFound  = "INVITATION_NOT_FOUND"
	TextCodeInviteExpired   = "INVITATION_EXPIRED"
	TextCodeInviteAccepted  = "INVITATION_ALREADY_ACCEPTED"
	TextCodeUserNotFound    = "USER_NOT_FOUND"
	TextCodeUserInactive    = "USER_INACTIVE"
	TextCodeUnauthenticated = "UNAUTHENTICATED"
	TextCodeUnauthorized    = "UNAUTHORIZED"
	TextCodeDependency      = "DEPENDENCY_UNAVAILABLE"
	TextCodeBadCredentials  = "INVALID_CREDENTIALS"
	TextCodeTooManyAttempts = "TOO_MANY_LOGIN_ATTEMPTS"
)

// ErrTokenMalformed is returned when a token cannot be parsed or decoded.
var ErrTokenMalformed = errors.New("token is malformed", errors.CategoryAuth).
	WithTextCode(TextCodeTokenMalformed).
	WithCode(errors.CodeUnauthorized)

// ErrBadSignature is returned when a token parses but its signature does not verify.
var ErrBadSignature = errors.New("token signature is invalid", errors.CategoryAuth).
	WithTextCode(TextCodeBadSignature).
	WithCode(errors.CodeUnauthorized)

// ErrTokenExpired is returned once the clock passes the token's embedded expiry.
var ErrTokenExpired = errors.New("token is expired", errors.CategoryAuth).
	WithTextCode(TextCodeTokenExpired).
	WithCode(errors.CodeUnauthorized)

// ErrWrongTokenType is returned when a cryptographically valid token of one
// family is presented where another family is expected, e.g. a refresh token
// replayed as an access token.
var ErrWrongTokenType = errors.New("token type does not match expected use", errors.CategoryAuth).
	WithTextCode(TextCodeWrongTokenType).
	WithCode(errors.CodeUnauthorized)

// ErrCodeNotFound is returned when no one-time code matches (user, value).
var ErrCodeNotFound = errors.New("one-time code not found", errors.CategoryNotFound).
	WithTextCode(TextCodeCodeNotFound).
	WithCode(errors.CodeNotFound)

// ErrCodeConsumed is returned when a one-time code was already used.
var ErrCodeConsumed = errors.New("one-time code already consumed", errors.CategoryConflict).
	WithTextCode(TextCodeCodeConsumed).
	WithCode(errors.CodeConflict)

// ErrCodeExpired is returned when a one-time code outlived its TTL unconsumed.
var ErrCodeExpired = errors.New("one-time code is expired", errors.CategoryValidation).
	WithTextCode(TextCodeCodeExpired).
	WithCode(errors.CodeBadRequest)

// ErrResetTokenNotFound is returned when a reset token was never issued.
var ErrResetTokenNotFound = errors.New("password reset token not found", errors.CategoryNotFound).
	WithTextCode(TextCodeResetNotFound).
	WithCode(errors.CodeNotFound)

// ErrResetTokenInvalid is returned for reset tokens that exist but are no
// longer consumable: already used or expired. Callers wanting a vague
// user-facing message can collapse NotFound and Invalid into one.
var ErrResetTokenInvalid = errors.New("password reset token is invalid", errors.CategoryValidation).
	WithTextCode(TextCodeResetInvalid).
	WithCode(errors.CodeBadRequest)

// ErrInvitationNotFound is returned when no invitation matches the token.
var ErrInvitationNotFound = errors.New("invitation not found", errors.CategoryNotFound).
	WithTextCode(TextCodeInviteNotFound).
	WithCode(errors.CodeNotFound)

// ErrInvitationExpired is returned for invitations past their validity window.
var ErrInvitationExpired = errors.New("invitation is expired", errors.CategoryValidation).
	WithTextCode(TextCodeInviteExpired).
	WithCode(errors.CodeBadRequest)

// ErrInvitationAccepted is returned when accepting an already-accepted invitation.
var ErrInvitationAccepted = errors.New("invitation already accepted", errors.CategoryConflict).
	WithTextCode(TextCodeInviteAccepted).
	WithCode(errors.CodeConflict)

// ErrUserNotFound is returned when a token subject has no live user record.
var ErrUserNotFound = errors.New("user not found", errors.CategoryNotFound).
	WithTextCode(TextCodeUserNotFound).
	WithCode(errors.CodeNotFound)

// ErrUserInactive is returned when the subject exists but is not in an
// active status; this is the only revocation point for refresh tokens.
var ErrUserInactive = errors.New("user is not active", errors.CategoryAuth).
	WithTextCode(TextCodeUserInactive).
	WithCode(errors.CodeUnauthorized)

// ErrUnauthenticated is returned by the credential gate when no token was
// presented at all. Token-level failures keep their own codes.
var ErrUnauthenticated = errors.New("missing authentication token", errors.CategoryAuth).
	WithTextCode(TextCodeUnauthenticated).
	WithCode(errors.CodeUnauthorized)

// ErrMismatchedHashAndPassword is returned when a password does not match
// the stored hash. Deliberately indistinguishable from an unknown email.
var ErrMismatchedHashAndPassword = errors.New("invalid credentials", errors.CategoryAuth).
	WithTextCode(TextCodeBadCredentials).
	WithCode(errors.CodeUnauthorized)

// ErrTooManyLoginAttempts is returned when the cooldown window is active.
var ErrTooManyLoginAttempts = errors.New("too many login attempts", errors.CategoryRateLimit).
	WithTextCode(TextCodeTooManyAttempts).
	WithCode(errors.CodeBadRequest)

// ErrNoEmptyString rejects empty required inputs (passwords, tokens).
var ErrNoEmptyString = errors.New("value must not be empty", errors.CategoryBadInput).
	WithCode(errors.CodeBadRequest)

// DependencyUnavailable wraps persistence or delivery failures that are fatal
// to the call: the primary record could not be read or written.
func DependencyUnavailable(err error, msg string) error {
	return errors.Wrap(err, errors.CategoryOperation, msg).
		WithTextCode(TextCodeDependency).
		WithCode(errors.CodeInternal)
}

// RejectionCode extracts the machine-readable text code carried by err, or
// an empty string for untyped errors.
func RejectionCode(err error) string {
	if err == nil {
		return ""
	}
	var rich *errors.Error
	if errors.As(err, &rich) {
		return rich.TextCode
	}
	return ""
}

// IsUnauthenticated reports whether err is an authentication-class rejection
// (missing, malformed, expired, or otherwise unusable credentials). The gate
// only ever produces these; authorization failures are the caller's domain.
func IsUnauthenticated(err error) bool {
	if err == nil {
		return false
	}
	var rich *errors.Error
	if errors.As(err, &rich) {
		return rich.Category == errors.CategoryAuth
	}
	return false
}
