package credentials

import (
	"context"
	"strings"

	"github.com/goliatone/go-errors"
)

// TokenValidator validates raw tokens and extracts claims without tying
// callers to a specific signing implementation.
type TokenValidator interface {
	Validate(tokenString string) (*SessionClaims, error)
}

// TokenValidatorFunc adapts a function into a TokenValidator.
type TokenValidatorFunc func(tokenString string) (*SessionClaims, error)

// Validate satisfies the TokenValidator interface.
func (f TokenValidatorFunc) Validate(tokenString string) (*SessionClaims, error) {
	if f == nil {
		return nil, ErrTokenMalformed
	}
	return f(tokenString)
}

// MultiTokenValidator tries validators in order until one succeeds. It treats
// a malformed rejection as "try next" and returns the last malformed error if
// all validators fail. Expired, bad-signature, and wrong-type rejections stop
// the chain: the token was meant for a validator that refused it.
type MultiTokenValidator struct {
	validators []TokenValidator
}

// NewMultiTokenValidator filters nil validators and returns a composite validator.
func NewMultiTokenValidator(validators ...TokenValidator) *MultiTokenValidator {
	filtered := make([]TokenValidator, 0, len(validators))
	for _, v := range validators {
		if v != nil {
			filtered = append(filtered, v)
		}
	}
	return &MultiTokenValidator{validators: filtered}
}

// Validate satisfies the TokenValidator interface.
func (m *MultiTokenValidator) Validate(tokenString string) (*SessionClaims, error) {
	var lastErr error
	for _, v := range m.validators {
		claims, err := v.Validate(tokenString)
		if err == nil {
			return claims, nil
		}
		if RejectionCode(err) == TextCodeTokenMalformed {
			lastErr = err
			continue
		}
		return nil, err
	}
	if lastErr != nil {
		return nil, lastErr
	}
	return nil, ErrTokenMalformed
}

// CredentialGate is the single entry point protected surfaces call before
// touching authorization. Every rejection it produces is authentication
// class: missing, malformed, forged, expired, or wrong-family credentials.
// Permission decisions on an authenticated identity are out of its scope.
type CredentialGate struct {
	codec     TokenCodec
	validator TokenValidator
	logger    Logger
}

// GateOption customizes gate construction.
type GateOption func(*CredentialGate)

// WithGateValidator replaces the codec-backed validator, for gates that
// accept tokens minted elsewhere (JWKS-verified identity providers).
func WithGateValidator(validator TokenValidator) GateOption {
	return func(g *CredentialGate) {
		if validator != nil {
			g.validator = validator
		}
	}
}

// WithGateLogger overrides the gate logger.
func WithGateLogger(logger Logger) GateOption {
	return func(g *CredentialGate) {
		g.logger = normalizeLogger(logger)
	}
}

// NewCredentialGate builds a gate that verifies access tokens with the codec.
func NewCredentialGate(codec TokenCodec, opts ...GateOption) *CredentialGate {
	gate := &CredentialGate{
		codec:  codec,
		logger: defLogger{},
	}

	gate.validator = TokenValidatorFunc(func(tokenString string) (*SessionClaims, error) {
		return codec.Verify(tokenString, TokenTypeAccess)
	})

	for _, opt := range opts {
		if opt != nil {
			opt(gate)
		}
	}

	return gate
}

// Authenticate resolves the caller's identity from a raw access token. An
// absent token is its own rejection, distinct from every token-level failure.
func (g *CredentialGate) Authenticate(ctx context.Context, rawToken string) (*SessionClaims, error) {
	select {
	case <-ctx.Done():
		return nil, errors.Wrap(ctx.Err(), errors.CategoryOperation, "context cancelled during authentication")
	default:
	}

	rawToken = stripBearerScheme(rawToken)
	if rawToken == "" {
		return nil, ErrUnauthenticated
	}

	claims, err := g.validator.Validate(rawToken)
	if err != nil {
		g.logger.Debug("gate rejected token", "reason", RejectionCode(err))
		return nil, err
	}

	return claims, nil
}

// stripBearerScheme drops an optional "Bearer" prefix so callers can pass
// an Authorization header value directly. A signed token never starts with
// the scheme word, so the check cannot eat token bytes.
func stripBearerScheme(raw string) string {
	raw = strings.TrimSpace(raw)
	const scheme = "bearer"
	if len(raw) >= len(scheme) && strings.EqualFold(raw[:len(scheme)], scheme) {
		rest := raw[len(scheme):]
		if rest == "" || rest[0] == ' ' || rest[0] == '\t' {
			return strings.TrimSpace(rest)
		}
	}
	return raw
}
