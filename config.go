package credentials

import (
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/goliatone/go-errors"
)

// Default lifetimes. Access tokens stay short because rotation is the only
// point at which role or organisation changes propagate.
const (
	DefaultAccessTokenTTL  = 15 * time.Minute
	DefaultRefreshTokenTTL = 30 * 24 * time.Hour
	DefaultOneTimeCodeTTL  = 10 * time.Minute
	DefaultResetTokenTTL   = time.Hour
	DefaultInvitationTTL   = 7 * 24 * time.Hour
	DefaultOneTimeCodeSize = 6
)

// Config holds signing keys and default lifetimes. It is constructed once at
// process start and passed explicitly to each service constructor; nothing in
// this package reads ambient global state.
type Config struct {
	// AccessSigningKey and RefreshSigningKey must differ so a token of one
	// family can never verify under the other family's key.
	AccessSigningKey  []byte
	RefreshSigningKey []byte

	Issuer   string
	Audience []string

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration
	OneTimeCodeTTL  time.Duration
	ResetTokenTTL   time.Duration
	InvitationTTL   time.Duration

	// OneTimeCodeSize is the fixed width of generated numeric codes.
	OneTimeCodeSize int
}

// Validate checks the configuration before any service is constructed.
func (c Config) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.AccessSigningKey, validation.Required, validation.Length(32, 0)),
		validation.Field(&c.RefreshSigningKey, validation.Required, validation.Length(32, 0)),
		validation.Field(&c.AccessTokenTTL, validation.By(nonNegativeDuration)),
		validation.Field(&c.RefreshTokenTTL, validation.By(nonNegativeDuration)),
		validation.Field(&c.OneTimeCodeTTL, validation.By(nonNegativeDuration)),
		validation.Field(&c.ResetTokenTTL, validation.By(nonNegativeDuration)),
		validation.Field(&c.InvitationTTL, validation.By(nonNegativeDuration)),
	)
	if err != nil {
		return errors.Wrap(err, errors.CategoryValidation, "invalid credentials configuration")
	}

	if string(c.AccessSigningKey) == string(c.RefreshSigningKey) {
		return errors.New("access and refresh signing keys must differ", errors.CategoryValidation).
			WithTextCode("SHARED_SIGNING_KEY")
	}

	return nil
}

// WithDefaults returns a copy with zero-valued lifetimes replaced by the
// package defaults. Signing keys are never defaulted.
func (c Config) WithDefaults() Config {
	if c.AccessTokenTTL == 0 {
		c.AccessTokenTTL = DefaultAccessTokenTTL
	}
	if c.RefreshTokenTTL == 0 {
		c.RefreshTokenTTL = DefaultRefreshTokenTTL
	}
	if c.OneTimeCodeTTL == 0 {
		c.OneTimeCodeTTL = DefaultOneTimeCodeTTL
	}
	if c.ResetTokenTTL == 0 {
		c.ResetTokenTTL = DefaultResetTokenTTL
	}
	if c.InvitationTTL == 0 {
		c.InvitationTTL = DefaultInvitationTTL
	}
	if c.OneTimeCodeSize == 0 {
		c.OneTimeCodeSize = DefaultOneTimeCodeSize
	}
	return c
}

func nonNegativeDuration(value any) error {
	d, ok := value.(time.Duration)
	if !ok {
		return errors.New("expected a duration", errors.CategoryBadInput)
	}
	if d < 0 {
		return errors.New("duration must not be negative", errors.CategoryBadInput)
	}
	return nil
}
