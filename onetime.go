package credentials

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
)

// CodeStore is the slice of the codes repository the service needs.
type CodeStore interface {
	Create(ctx context.Context, record *OneTimeCode, criteria ...repository.InsertCriteria) (*OneTimeCode, error)
	Consume(ctx context.Context, userID uuid.UUID, code string, now time.Time) (*OneTimeCode, error)
}

// OneTimeCodeService issues and verifies short-lived numeric 2FA codes.
// Issuing never invalidates outstanding codes: each stays independently
// verifiable until consumed or expired, so a user who requests a resend can
// still use the first SMS that arrives.
type OneTimeCodeService struct {
	repo      CodeStore
	directory UserDirectory
	config    Config
	notifier  CodeNotifier
	sink      ActivitySink
	logger    Logger
	now       Clock
}

// OneTimeCodeOption customizes service construction.
type OneTimeCodeOption func(*OneTimeCodeService)

// WithCodeNotifier attaches an out-of-band delivery channel.
func WithCodeNotifier(notifier CodeNotifier) OneTimeCodeOption {
	return func(s *OneTimeCodeService) {
		s.notifier = normalizeCodeNotifier(notifier)
	}
}

// WithCodeActivitySink attaches an audit sink.
func WithCodeActivitySink(sink ActivitySink) OneTimeCodeOption {
	return func(s *OneTimeCodeService) {
		s.sink = normalizeActivitySink(sink)
	}
}

// WithCodeLogger overrides the service logger.
func WithCodeLogger(logger Logger) OneTimeCodeOption {
	return func(s *OneTimeCodeService) {
		s.logger = normalizeLogger(logger)
	}
}

// WithCodeClock injects a custom clock.
func WithCodeClock(clock Clock) OneTimeCodeOption {
	return func(s *OneTimeCodeService) {
		s.now = normalizeClock(clock)
	}
}

// NewOneTimeCodeService builds the 2FA code service.
func NewOneTimeCodeService(cfg Config, repo CodeStore, directory UserDirectory, opts ...OneTimeCodeOption) *OneTimeCodeService {
	service := &OneTimeCodeService{
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

// Issue generates, persists, and delivers a fresh code for the user. Delivery
// is best-effort: a notifier failure leaves the persisted code valid and is
// surfaced only through the log, so the caller can offer a resend.
func (s *OneTimeCodeService) Issue(ctx context.Context, userID uuid.UUID) (*OneTimeCode, error) {
	user, err := s.directory.FindByID(ctx, userID.String())
	if err != nil {
		return nil, err
	}

	value, err := GenerateNumericCode(s.config.OneTimeCodeSize)
	if err != nil {
		return nil, err
	}

	record := &OneTimeCode{
		ID:        uuid.New(),
		UserID:    userID,
		Code:      value,
		ExpiresAt: s.now().Add(s.config.OneTimeCodeTTL),
	}

	record, err = s.repo.Create(ctx, record)
	if err != nil {
		return nil, DependencyUnavailable(err, "failed to persist one-time code")
	}

	if err := s.notifier.SendCode(ctx, CodeDelivery{
		Email:       user.Email,
		Phone:       user.Phone,
		DisplayName: user.DisplayName,
		Code:        value,
		Purpose:     PurposeTwoFactor,
	}); err != nil {
		s.logger.Warn("one-time code delivery failed", "user_id", userID.String(), "error", err)
	}

	s.record(ctx, ActivityEvent{
		EventType:  ActivityEventCodeIssued,
		UserID:     userID.String(),
		OccurredAt: s.now(),
	})

	return record, nil
}

// Verify consumes the matching code for the user. The match is on value, not
// recency: any outstanding unexpired code for the user succeeds, regardless
// of issue order. Consumption is a single conditional update, so the same
// code can never verify twice.
func (s *OneTimeCodeService) Verify(ctx context.Context, userID uuid.UUID, code string) error {
	if code == "" {
		return ErrCodeNotFound
	}

	_, err := s.repo.Consume(ctx, userID, code, s.now())
	if err != nil {
		s.record(ctx, ActivityEvent{
			EventType:  ActivityEventCodeRejected,
			UserID:     userID.String(),
			Metadata:   map[string]any{"reason": RejectionCode(err)},
			OccurredAt: s.now(),
		})
		return err
	}

	s.record(ctx, ActivityEvent{
		EventType:  ActivityEventCodeVerified,
		UserID:     userID.String(),
		OccurredAt: s.now(),
	})

	return nil
}

func (s *OneTimeCodeService) record(ctx context.Context, event ActivityEvent) {
	if err := s.sink.Record(ctx, event); err != nil {
		s.logger.Warn("failed to record code activity", "event", event.EventType, "error", err)
	}
}
