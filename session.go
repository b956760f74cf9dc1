package credentials

import (
	"context"
	"time"
)

// TokenPair is the outcome of issuance and rotation: a short-lived access
// token and a long-lived refresh token, each with its expiry.
type TokenPair struct {
	AccessToken      string    `json:"access_token"`
	RefreshToken     string    `json:"refresh_token"`
	AccessExpiresAt  time.Time `json:"access_expires_at"`
	RefreshExpiresAt time.Time `json:"refresh_expires_at"`
}

// SessionManager issues and rotates stateless token pairs. There is no
// server-side session store: a refresh token stays valid until its own expiry
// or until the subject's record leaves the active status. Rotation does not
// invalidate the presented refresh token.
type SessionManager struct {
	codec     TokenCodec
	directory UserDirectory
	config    Config
	sink      ActivitySink
	logger    Logger
	now       Clock
}

// SessionOption customizes session manager construction.
type SessionOption func(*SessionManager)

// WithSessionActivitySink attaches an audit sink to the manager.
func WithSessionActivitySink(sink ActivitySink) SessionOption {
	return func(s *SessionManager) {
		s.sink = normalizeActivitySink(sink)
	}
}

// WithSessionLogger overrides the manager logger.
func WithSessionLogger(logger Logger) SessionOption {
	return func(s *SessionManager) {
		s.logger = normalizeLogger(logger)
	}
}

// WithSessionClock injects a custom clock.
func WithSessionClock(clock Clock) SessionOption {
	return func(s *SessionManager) {
		s.now = normalizeClock(clock)
	}
}

// NewSessionManager builds a manager over the codec and the live user
// directory. The config should have passed Validate and WithDefaults.
func NewSessionManager(cfg Config, codec TokenCodec, directory UserDirectory, opts ...SessionOption) *SessionManager {
	manager := &SessionManager{
		codec:     codec,
		directory: directory,
		config:    cfg.WithDefaults(),
		sink:      noopActivitySink{},
		logger:    defLogger{},
		now:       normalizeClock(nil),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(manager)
		}
	}

	return manager
}

// IssuePair signs a fresh access/refresh pair for an already-authenticated
// user. The caller is responsible for credential verification; this method
// only refuses subjects that are not active.
func (s *SessionManager) IssuePair(ctx context.Context, user *User) (*TokenPair, error) {
	if err := ensureActiveUser(user); err != nil {
		return nil, err
	}

	pair, err := s.signPair(IdentityFromUser(user))
	if err != nil {
		return nil, err
	}

	s.record(ctx, ActivityEvent{
		EventType:  ActivityEventPairIssued,
		UserID:     user.ID.String(),
		OccurredAt: s.now(),
	})

	return pair, nil
}

// Rotate exchanges a valid refresh token for a fresh pair. Claims are
// re-derived from the live user record, never copied from the old token, so
// role and organisation changes propagate at most one access-token lifetime
// after they land. A deactivated subject is the single revocation point.
func (s *SessionManager) Rotate(ctx context.Context, refreshToken string) (*TokenPair, error) {
	claims, err := s.codec.Verify(refreshToken, TokenTypeRefresh)
	if err != nil {
		s.recordRotateFailure(ctx, "", err)
		return nil, err
	}

	user, err := s.directory.FindByID(ctx, claims.SubjectID())
	if err != nil {
		s.recordRotateFailure(ctx, claims.SubjectID(), err)
		return nil, err
	}

	if err := ensureActiveUser(user); err != nil {
		s.recordRotateFailure(ctx, claims.SubjectID(), err)
		return nil, err
	}

	pair, err := s.signPair(IdentityFromUser(user))
	if err != nil {
		return nil, err
	}

	s.record(ctx, ActivityEvent{
		EventType:  ActivityEventPairRotated,
		UserID:     user.ID.String(),
		OccurredAt: s.now(),
	})

	return pair, nil
}

func (s *SessionManager) signPair(identity IdentityClaims) (*TokenPair, error) {
	access, accessExp, err := s.codec.Sign(identity, TokenTypeAccess, s.config.AccessTokenTTL)
	if err != nil {
		return nil, err
	}

	refresh, refreshExp, err := s.codec.Sign(identity, TokenTypeRefresh, s.config.RefreshTokenTTL)
	if err != nil {
		return nil, err
	}

	return &TokenPair{
		AccessToken:      access,
		RefreshToken:     refresh,
		AccessExpiresAt:  accessExp,
		RefreshExpiresAt: refreshExp,
	}, nil
}

func (s *SessionManager) record(ctx context.Context, event ActivityEvent) {
	if err := s.sink.Record(ctx, event); err != nil {
		s.logger.Warn("failed to record session activity", "event", event.EventType, "error", err)
	}
}

func (s *SessionManager) recordRotateFailure(ctx context.Context, userID string, cause error) {
	s.record(ctx, ActivityEvent{
		EventType:  ActivityEventRotateFailure,
		UserID:     userID,
		Metadata:   map[string]any{"reason": RejectionCode(cause)},
		OccurredAt: s.now(),
	})
}
