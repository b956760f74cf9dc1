package credentials

import (
	"context"

	"github.com/loanbridge/go-credentials/middleware/tokenware"
)

// ValidationListener aliases the tokenware listener so consumers can use
// package helpers directly.
type ValidationListener = tokenware.ValidationListener

// TokenwareValidator adapts the gate into the middleware's validator shape.
func TokenwareValidator(gate *CredentialGate) tokenware.TokenValidator {
	return tokenware.TokenValidatorFunc(func(tokenString string) (tokenware.Claims, error) {
		claims, err := gate.Authenticate(context.Background(), tokenString)
		if err != nil {
			return nil, err
		}
		return claims, nil
	})
}

// ContextEnricherAdapter adapts tokenware.Claims to SessionClaims and stores
// them in the standard context for downstream usage.
func ContextEnricherAdapter(c context.Context, claims tokenware.Claims) context.Context {
	sessionClaims, ok := claims.(*SessionClaims)
	if !ok {
		return c
	}

	return WithClaimsContext(c, sessionClaims)
}

// RegisterValidationListeners appends listeners to a tokenware.Config in a safe, reusable way.
func RegisterValidationListeners(cfg *tokenware.Config, listeners ...ValidationListener) {
	if cfg == nil || len(listeners) == 0 {
		return
	}
	cfg.ValidationListeners = append(cfg.ValidationListeners, listeners...)
}
