package credentials

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// ResetStore is the slice of the reset tokens repository the service needs.
type ResetStore interface {
	Create(ctx context.Context, record *PasswordResetToken, criteria ...repository.InsertCriteria) (*PasswordResetToken, error)
	GetByToken(ctx context.Context, token string) (*PasswordResetToken, error)
	MarkUsed(ctx context.Context, token string, now time.Time) (*PasswordResetToken, error)
	MarkUsedTx(ctx context.Context, tx bun.IDB, token string, now time.Time) (*PasswordResetToken, error)
}

// PasswordResetService issues and redeems single-use reset tokens. Consumed
// records are kept, not deleted, so a second attempt with the same token is
// reported as no-longer-valid rather than never-existed.
type PasswordResetService struct {
	repo      ResetStore
	directory UserDirectory
	config    Config
	notifier  CodeNotifier
	sink      ActivitySink
	logger    Logger
	now       Clock
}

// ResetOption customizes service construction.
type ResetOption func(*PasswordResetService)

// WithResetNotifier attaches an out-of-band delivery channel.
func WithResetNotifier(notifier CodeNotifier) ResetOption {
	return func(s *PasswordResetService) {
		s.notifier = normalizeCodeNotifier(notifier)
	}
}

// WithResetActivitySink attaches an audit sink.
func WithResetActivitySink(sink ActivitySink) ResetOption {
	return func(s *PasswordResetService) {
		s.sink = normalizeActivitySink(sink)
	}
}

// WithResetLogger overrides the service logger.
func WithResetLogger(logger Logger) ResetOption {
	return func(s *PasswordResetService) {
		s.logger = normalizeLogger(logger)
	}
}

// WithResetClock injects a custom clock.
func WithResetClock(clock Clock) ResetOption {
	return func(s *PasswordResetService) {
		s.now = normalizeClock(clock)
	}
}

// NewPasswordResetService builds the reset token service.
func NewPasswordResetService(cfg Config, repo ResetStore, directory UserDirectory, opts ...ResetOption) *PasswordResetService {
	service := &PasswordResetService{
		repo:      repo,
		directory: directory,
		config:    cfg.WithDefaults(),
		notifier:  noopCodeNotifier{},
		sink:      noopActivitySink{},
		logger:    defLogger{},
		now:       normalizeClock(nil),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(service)
		}
	}

	return service
}

// Issue mints a high-entropy token for the user and delivers it out-of-band.
// The token value is random, never derived from the user or the clock.
func (s *PasswordResetService) Issue(ctx context.Context, userID uuid.UUID) (*PasswordResetToken, error) {
	user, err := s.directory.FindByID(ctx, userID.String())
	if err != nil {
		return nil, err
	}

	value, err := GenerateOpaqueToken()
	if err != nil {
		return nil, err
	}

	record := &PasswordResetToken{
		ID:        uuid.New(),
		Token:     value,
		UserID:    userID,
		ExpiresAt: s.now().Add(s.config.ResetTokenTTL),
	}

	record, err = s.repo.Create(ctx, record)
	if err != nil {
		return nil, DependencyUnavailable(err, "failed to persist reset token")
	}

	if err := s.notifier.SendCode(ctx, CodeDelivery{
		Email:       user.Email,
		DisplayName: user.DisplayName,
		Code:        value,
		Purpose:     PurposePasswordReset,
	}); err != nil {
		s.logger.Warn("reset token delivery failed", "user_id", userID.String(), "error", err)
	}

	s.record(ctx, ActivityEvent{
		EventType:  ActivityEventResetIssued,
		UserID:     userID.String(),
		OccurredAt: s.now(),
	})

	return record, nil
}

// Verify checks a token without consuming it, for pre-validating the reset
// form before the user types a new password. Repeated calls are idempotent.
func (s *PasswordResetService) Verify(ctx context.Context, token string) (*PasswordResetToken, error) {
	if token == "" {
		return nil, ErrResetTokenNotFound
	}

	record, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	if !record.Consumable(s.now()) {
		return nil, ErrResetTokenInvalid.Clone().WithMetadata(map[string]any{
			"used":    record.UsedAt != nil,
			"expired": record.UsedAt == nil,
		})
	}

	return record, nil
}

// Consume atomically marks the token used and returns its record. Exactly one
// of any number of concurrent calls succeeds.
func (s *PasswordResetService) Consume(ctx context.Context, token string) (*PasswordResetToken, error) {
	return s.ConsumeTx(ctx, nil, token)
}

// ConsumeTx is Consume inside a caller-managed transaction, so the password
// update and the token consumption commit or roll back together.
func (s *PasswordResetService) ConsumeTx(ctx context.Context, tx bun.IDB, token string) (*PasswordResetToken, error) {
	if token == "" {
		return nil, ErrResetTokenNotFound
	}

	var record *PasswordResetToken
	var err error

	if tx != nil {
		record, err = s.repo.MarkUsedTx(ctx, tx, token, s.now())
	} else {
		record, err = s.repo.MarkUsed(ctx, token, s.now())
	}

	if err != nil {
		return nil, err
	}

	s.record(ctx, ActivityEvent{
		EventType:  ActivityEventResetConsumed,
		UserID:     record.UserID.String(),
		OccurredAt: s.now(),
	})

	return record, nil
}

func (s *PasswordResetService) record(ctx context.Context, event ActivityEvent) {
	if err := s.sink.Record(ctx, event); err != nil {
		s.logger.Warn("failed to record reset activity", "event", event.EventType, "error", err)
	}
}
