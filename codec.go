package credentials

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/goliatone/go-errors"
)

// TokenCodec signs and verifies the stateless token families. It is a pure
// function of its inputs and the injected clock; it never touches storage.
type TokenCodec interface {
	Sign(identity IdentityClaims, tokenType TokenType, ttl time.Duration) (string, time.Time, error)
	Verify(raw string, expected TokenType) (*SessionClaims, error)
}

type hmacCodec struct {
	keys     map[TokenType][]byte
	issuer   string
	audience jwt.ClaimStrings
	logger   Logger
	now      Clock
}

// CodecOption customizes codec construction.
type CodecOption func(*hmacCodec)

// WithCodecClock injects a custom clock (useful for tests).
func WithCodecClock(clock Clock) CodecOption {
	return func(c *hmacCodec) {
		if clock != nil {
			c.now = clock
		}
	}
}

// WithCodecLogger overrides the codec logger.
func WithCodecLogger(logger Logger) CodecOption {
	return func(c *hmacCodec) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// NewTokenCodec builds an HS256 codec with one key per token family.
func NewTokenCodec(cfg Config, opts ...CodecOption) TokenCodec {
	var aud jwt.ClaimStrings
	if len(cfg.Audience) > 0 {
		aud = make(jwt.ClaimStrings, len(cfg.Audience))
		copy(aud, cfg.Audience)
	}

	codec := &hmacCodec{
		keys: map[TokenType][]byte{
			TokenTypeAccess:  cfg.AccessSigningKey,
			TokenTypeRefresh: cfg.RefreshSigningKey,
		},
		issuer:   cfg.Issuer,
		audience: aud,
		logger:   defLogger{},
		now:      time.Now,
	}

	for _, opt := range opts {
		if opt != nil {
			opt(codec)
		}
	}

	return codec
}

// Sign embeds issued-at and expiry derived from ttl and the clock. Access
// tokens carry the full identity; refresh tokens carry the subject and type
// discriminator only.
func (c *hmacCodec) Sign(identity IdentityClaims, tokenType TokenType, ttl time.Duration) (string, time.Time, error) {
	key, ok := c.keys[tokenType]
	if !ok || len(key) == 0 {
		return "", time.Time{}, errors.New("no signing key for token type", errors.CategoryInternal).
			WithMetadata(map[string]any{"token_type": string(tokenType)})
	}

	if ttl <= 0 {
		return "", time.Time{}, errors.New("token TTL must be positive", errors.CategoryBadInput)
	}

	issuedAt := c.now()
	expiresAt := issuedAt.Add(ttl)

	claims := &SessionClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    c.issuer,
			Subject:   identity.SubjectID,
			Audience:  c.audience,
			IssuedAt:  jwt.NewNumericDate(issuedAt),
			ExpiresAt: jwt.NewNumericDate(expiresAt),
		},
		TokenUse: string(tokenType),
	}

	if tokenType == TokenTypeAccess {
		claims.Email = identity.Email
		claims.UserRole = string(identity.Role)
		claims.TwoFAEnabled = identity.TwoFAEnabled
		if identity.OrganisationID != nil {
			claims.OrganisationID = identity.OrganisationID.String()
		}
	}

	ensureTokenID(&claims.RegisteredClaims)

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(key)
	if err != nil {
		return "", time.Time{}, errors.Wrap(err, errors.CategoryInternal, "failed to sign token")
	}

	return signed, expiresAt, nil
}

// Verify parses and validates a token, then checks the family discriminator.
// The key used for signature verification is selected by the token's own
// embedded type, so a genuine token of the wrong family is reported as
// WrongType rather than BadSignature.
func (c *hmacCodec) Verify(raw string, expected TokenType) (*SessionClaims, error) {
	if raw == "" {
		return nil, ErrTokenMalformed
	}

	parserOptions := []jwt.ParserOption{jwt.WithTimeFunc(c.now)}
	if c.issuer != "" {
		parserOptions = append(parserOptions, jwt.WithIssuer(c.issuer))
	}
	if len(c.audience) > 0 {
		parserOptions = append(parserOptions, jwt.WithAudience(c.audience...))
	}

	token, err := jwt.ParseWithClaims(raw, &SessionClaims{}, func(t *jwt.Token) (any, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			c.logger.Error("codec encountered unexpected signing method", "alg", t.Header["alg"])
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return c.keyForToken(t, expected), nil
	}, parserOptions...)

	if err != nil {
		switch {
		case errors.Is(err, jwt.ErrTokenExpired):
			return nil, ErrTokenExpired
		case errors.Is(err, jwt.ErrTokenSignatureInvalid):
			return nil, ErrBadSignature
		default:
			return nil, errors.Wrap(err, ErrTokenMalformed.Category, ErrTokenMalformed.Message).
				WithTextCode(ErrTokenMalformed.TextCode)
		}
	}

	claims, ok := token.Claims.(*SessionClaims)
	if !ok || !token.Valid {
		c.logger.Error("codec could not decode validated claims")
		return nil, ErrTokenMalformed
	}

	if claims.TokenType() != expected {
		return nil, ErrWrongTokenType.Clone().WithMetadata(map[string]any{
			"expected": string(expected),
			"actual":   claims.TokenUse,
		})
	}

	return claims, nil
}

func (c *hmacCodec) keyForToken(t *jwt.Token, expected TokenType) []byte {
	if claims, ok := t.Claims.(*SessionClaims); ok {
		if key, exists := c.keys[claims.TokenType()]; exists {
			return key
		}
	}
	// Unknown or missing discriminator: verify against the expected family's
	// key so forged tokens still fail on signature.
	return c.keys[expected]
}
