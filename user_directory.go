package credentials

import (
	"context"

	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
)

// UserDirectory is the read path into live user records. The session manager
// consults it on every rotation so stale claims never outlive the record.
type UserDirectory interface {
	FindByID(ctx context.Context, id string) (*User, error)
	FindByEmail(ctx context.Context, email string) (*User, error)
}

// PasswordVerifier checks a password against the stored hash, enforcing the
// attempt cooldown.
type PasswordVerifier interface {
	VerifyPassword(ctx context.Context, identifier, password string) (*User, error)
}

// UserStore is the slice of the users repository the directory needs.
type UserStore interface {
	GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (*User, error)
	GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*User, error)
	TrackAttemptedLogin(ctx context.Context, user *User) error
	TrackSuccessfulLogin(ctx context.Context, user *User) error
}

// MaxLoginAttempts is the maximun number of attempts a user gets
// in a period
var MaxLoginAttempts = 5

// CoolDownPeriod is the period in which we enforce a cool down
var CoolDownPeriod = "24h"

// Directory provides live user lookups and password verification on top of
// the users repository.
type Directory struct {
	store  UserStore
	logger Logger
	now    Clock
}

var (
	_ UserDirectory    = (*Directory)(nil)
	_ PasswordVerifier = (*Directory)(nil)
)

// NewDirectory will create a new Directory
func NewDirectory(store UserStore) *Directory {
	return &Directory{
		store:  store,
		logger: defLogger{},
		now:    normalizeClock(nil),
	}
}

func (d *Directory) WithLogger(l Logger) *Directory {
	d.logger = normalizeLogger(l)
	return d
}

func (d *Directory) WithClock(c Clock) *Directory {
	d.now = normalizeClock(c)
	return d
}

// FindByID resolves a user by primary key. Missing or soft-deleted records
// report ErrUserNotFound.
func (d *Directory) FindByID(ctx context.Context, id string) (*User, error) {
	user, err := d.store.GetByID(ctx, id)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, DependencyUnavailable(err, "failed to retrieve user by id")
	}

	user.EnsureStatus()

	return user, nil
}

// FindByEmail resolves a user by email.
func (d *Directory) FindByEmail(ctx context.Context, email string) (*User, error) {
	user, err := d.store.GetByIdentifier(ctx, email)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, ErrUserNotFound
		}
		return nil, DependencyUnavailable(err, "failed to retrieve user by email")
	}

	user.EnsureStatus()

	return user, nil
}

// VerifyPassword finds the user, compares the password against the stored
// hash, and returns the record. An unknown identifier and a wrong password
// produce the same rejection so the caller cannot enumerate accounts.
func (d *Directory) VerifyPassword(ctx context.Context, identifier, password string) (*User, error) {
	user, err := d.store.GetByIdentifier(ctx, identifier)
	if err != nil {
		if errors.IsNotFound(err) {
			return nil, ErrMismatchedHashAndPassword
		}
		return nil, errors.Wrap(err, errors.CategoryInternal, "failed to retrieve user during verification")
	}

	if err := ensureActiveUser(user); err != nil {
		return nil, err
	}

	if user.LoginAttemptAt != nil {
		expired, err := IsOutsideThresholdPeriod(*user.LoginAttemptAt, CoolDownPeriod)
		if err != nil {
			return nil, errors.Wrap(err, errors.CategoryInternal, "failed to calculate login attempt cooldown")
		}

		if expired {
			user.LoginAttempts = 0
		}
	}

	// if we have too many attempts in the given window, cool off!
	if user.LoginAttempts > MaxLoginAttempts {
		return nil, ErrTooManyLoginAttempts
	}

	if err := ComparePasswordAndHash(password, user.PasswordHash); err != nil {
		if err2 := d.store.TrackAttemptedLogin(ctx, user); err2 != nil {
			return nil, errors.Wrap(err2, errors.CategoryInternal, "failed to track login attempt")
		}

		return nil, ErrMismatchedHashAndPassword
	}

	// reset the login_attempts counter and login_attempt_at
	if err := d.store.TrackSuccessfulLogin(ctx, user); err != nil {
		d.logger.Error("failed to track successful login", "error", err)
	}

	return user, nil
}

// IdentityFromUser projects the live record into the closed identity set
// embedded in access tokens.
func IdentityFromUser(user *User) IdentityClaims {
	if user == nil {
		return IdentityClaims{}
	}

	return IdentityClaims{
		SubjectID:      user.ID.String(),
		Email:          user.Email,
		Role:           user.Role,
		OrganisationID: user.OrganisationID,
		TwoFAEnabled:   user.TwoFAEnabled,
	}
}

func ensureActiveUser(user *User) error {
	if user == nil {
		return ErrUserNotFound
	}

	user.EnsureStatus()
	if !user.IsActive() {
		return ErrUserInactive.Clone().WithMetadata(map[string]any{
			"status": user.Status,
		})
	}

	return nil
}
