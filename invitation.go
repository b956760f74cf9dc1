package credentials

import (
	"context"
	"time"

	validation "github.com/go-ozzo/ozzo-validation"
	"github.com/go-ozzo/ozzo-validation/is"
	"github.com/goliatone/go-errors"
	"github.com/goliatone/go-repository-bun"
	"github.com/goliatone/hashid/pkg/hashid"
	"github.com/google/uuid"
)

// InvitationStore is the slice of the invitations repository the service needs.
type InvitationStore interface {
	Create(ctx context.Context, record *Invitation, criteria ...repository.InsertCriteria) (*Invitation, error)
	GetByToken(ctx context.Context, token string) (*Invitation, error)
	MarkAccepted(ctx context.Context, token string, now time.Time) (*Invitation, error)
	MarkExpired(ctx context.Context, token string, now time.Time) (*Invitation, error)
}

// CreateInvitation is the input to InvitationService.Create.
type CreateInvitation struct {
	Email          string        `json:"email"`
	OrganisationID uuid.UUID     `json:"organisation_id"`
	Role           UserRole      `json:"user_role"`
	TTL            time.Duration `json:"-"`
}

// Validate checks the invitation input.
func (c CreateInvitation) Validate() error {
	err := validation.ValidateStruct(&c,
		validation.Field(&c.Email, validation.Required, is.Email),
		validation.Field(&c.OrganisationID, validation.By(requiredUUID)),
		validation.Field(&c.Role, validation.By(validRole)),
	)
	if err != nil {
		return errors.Wrap(err, errors.CategoryValidation, "invalid invitation")
	}
	return nil
}

// InvitationService creates and resolves organisation invitations. Status
// moves one-way out of pending; the expired transition is applied lazily the
// first time a stale invitation is observed.
type InvitationService struct {
	repo     InvitationStore
	config   Config
	notifier CodeNotifier
	sink     ActivitySink
	logger   Logger
	now      Clock
}

// InvitationOption customizes service construction.
type InvitationOption func(*InvitationService)

// WithInvitationNotifier attaches an out-of-band delivery channel.
func WithInvitationNotifier(notifier CodeNotifier) InvitationOption {
	return func(s *InvitationService) {
		s.notifier = normalizeCodeNotifier(notifier)
	}
}

// WithInvitationActivitySink attaches an audit sink.
func WithInvitationActivitySink(sink ActivitySink) InvitationOption {
	return func(s *InvitationService) {
		s.sink = normalizeActivitySink(sink)
	}
}

// WithInvitationLogger overrides the service logger.
func WithInvitationLogger(logger Logger) InvitationOption {
	return func(s *InvitationService) {
		s.logger = normalizeLogger(logger)
	}
}

// WithInvitationClock injects a custom clock.
func WithInvitationClock(clock Clock) InvitationOption {
	return func(s *InvitationService) {
		s.now = normalizeClock(clock)
	}
}

// NewInvitationService builds the invitation service.
func NewInvitationService(cfg Config, repo InvitationStore, opts ...InvitationOption) *InvitationService {
	service := &InvitationService{
		repo:     repo,
		config:   cfg.WithDefaults(),
		notifier: noopCodeNotifier{},
		sink:     noopActivitySink{},
		logger:   defLogger{},
		now:      normalizeClock(nil),
	}

	for _, opt := range opts {
		if opt != nil {
			opt(service)
		}
	}

	return service
}

// Create mints a pending invitation with an opaque token and delivers it to
// the invitee. A non-positive TTL falls back to the configured default.
func (s *InvitationService) Create(ctx context.Context, input CreateInvitation) (*Invitation, error) {
	if err := input.Validate(); err != nil {
		return nil, err
	}

	ttl := input.TTL
	if ttl <= 0 {
		ttl = s.config.InvitationTTL
	}

	role := input.Role
	if role == "" {
		role = RoleReferrer
	}

	token, err := GenerateOpaqueToken()
	if err != nil {
		return nil, err
	}

	record := &Invitation{
		Token:          token,
		Email:          input.Email,
		OrganisationID: input.OrganisationID,
		Role:           role,
		Status:         InvitationStatusPending,
		ExpiresAt:      s.now().Add(ttl),
	}

	// Deterministic ID keeps re-invites for the same (org, email) pair from
	// piling up duplicate rows.
	if id, err := hashid.NewUUID(input.OrganisationID.String() + ":" + input.Email); err == nil {
		record.ID = id
	} else {
		record.ID = uuid.New()
	}

	record, err = s.repo.Create(ctx, record)
	if err != nil {
		return nil, DependencyUnavailable(err, "failed to persist invitation")
	}

	if err := s.notifier.SendCode(ctx, CodeDelivery{
		Email:   input.Email,
		Code:    token,
		Purpose: PurposeInvitation,
	}); err != nil {
		s.logger.Warn("invitation delivery failed", "email", input.Email, "error", err)
	}

	s.record(ctx, ActivityEvent{
		EventType:  ActivityEventInviteCreated,
		Metadata:   map[string]any{"organisation_id": input.OrganisationID.String()},
		OccurredAt: s.now(),
	})

	return record, nil
}

// Resolve returns the invitation behind a token only while it is live. A
// pending invitation past its validity window is transitioned to expired
// first, so stale records self-heal on read; settled records report their
// terminal state as a rejection rather than resolving.
func (s *InvitationService) Resolve(ctx context.Context, token string) (*Invitation, error) {
	record, err := s.resolve(ctx, token)
	if err != nil {
		return nil, err
	}

	switch record.Status {
	case InvitationStatusAccepted:
		return nil, ErrInvitationAccepted
	case InvitationStatusExpired:
		return nil, ErrInvitationExpired
	}

	return record, nil
}

// resolve reads the record and applies the lazy pending -> expired transition,
// returning the settled record whatever its status.
func (s *InvitationService) resolve(ctx context.Context, token string) (*Invitation, error) {
	if token == "" {
		return nil, ErrInvitationNotFound
	}

	record, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	if record.Pending() && record.ExpiredAt(s.now()) {
		return s.lazyExpire(ctx, record)
	}

	return record, nil
}

// Accept moves a pending invitation to accepted. Accepting a stale pending
// invitation reports Expired, and accepting twice reports AlreadyAccepted;
// the two rejections never swap.
func (s *InvitationService) Accept(ctx context.Context, token string) (*Invitation, error) {
	record, err := s.resolve(ctx, token)
	if err != nil {
		return nil, err
	}

	switch record.Status {
	case InvitationStatusAccepted:
		return nil, ErrInvitationAccepted
	case InvitationStatusExpired:
		return nil, ErrInvitationExpired
	}

	if !invitationCanTransition(record.Status, InvitationStatusAccepted) {
		return nil, ErrInvitationNotFound
	}

	accepted, err := s.repo.MarkAccepted(ctx, token, s.now())
	if err != nil {
		if errors.IsNotFound(err) {
			// Lost a race: someone else moved it out of pending first.
			return s.classifySettled(ctx, token)
		}
		return nil, err
	}

	s.record(ctx, ActivityEvent{
		EventType:  ActivityEventInviteAccepted,
		Metadata:   map[string]any{"organisation_id": accepted.OrganisationID.String()},
		OccurredAt: s.now(),
	})

	return accepted, nil
}

// lazyExpire applies the pending -> expired transition and re-reads on a lost
// race, so a concurrent accept is reported as accepted rather than expired.
func (s *InvitationService) lazyExpire(ctx context.Context, record *Invitation) (*Invitation, error) {
	expired, err := s.repo.MarkExpired(ctx, record.Token, s.now())
	if err != nil {
		if errors.IsNotFound(err) {
			return s.repo.GetByToken(ctx, record.Token)
		}
		return nil, err
	}

	s.record(ctx, ActivityEvent{
		EventType:  ActivityEventInviteExpired,
		Metadata:   map[string]any{"organisation_id": expired.OrganisationID.String()},
		OccurredAt: s.now(),
	})

	return expired, nil
}

func (s *InvitationService) classifySettled(ctx context.Context, token string) (*Invitation, error) {
	record, err := s.repo.GetByToken(ctx, token)
	if err != nil {
		return nil, err
	}

	if record.Status == InvitationStatusAccepted {
		return nil, ErrInvitationAccepted
	}

	return nil, ErrInvitationExpired
}

func (s *InvitationService) record(ctx context.Context, event ActivityEvent) {
	if err := s.sink.Record(ctx, event); err != nil {
		s.logger.Warn("failed to record invitation activity", "event", event.EventType, "error", err)
	}
}

func requiredUUID(value any) error {
	id, ok := value.(uuid.UUID)
	if !ok || id == uuid.Nil {
		return errors.New("a valid organisation id is required", errors.CategoryBadInput)
	}
	return nil
}

func validRole(value any) error {
	role, ok := value.(UserRole)
	if !ok {
		return errors.New("invalid role type", errors.CategoryBadInput)
	}
	if role == "" {
		return nil
	}
	if !role.IsValid() {
		return errors.New("unknown role", errors.CategoryBadInput).
			WithMetadata(map[string]any{"role": string(role)})
	}
	return nil
}
