package credentials_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/loanbridge/go-credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

func TestInvitationServiceCreate(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	now := time.Date(2025, 3, 3, 8, 0, 0, 0, time.UTC)
	orgID := uuid.New()

	newService := func(store *MockInvitationStore, opts ...credentials.InvitationOption) *credentials.InvitationService {
		opts = append(opts, credentials.WithInvitationClock(fixedClock(now)))
		return credentials.NewInvitationService(cfg, store, opts...)
	}

	t.Run("creates a pending invitation with defaults", func(t *testing.T) {
		store := &MockInvitationStore{}
		notifier := &capturingNotifier{}
		call := store.On("Create", ctx, mock.Anything, mock.Anything).Once()
		call.Run(func(args mock.Arguments) {
			call.ReturnArguments = mock.Arguments{args.Get(1), nil}
		})

		service := newService(store, credentials.WithInvitationNotifier(notifier))

		record, err := service.Create(ctx, credentials.CreateInvitation{
			Email:          "new.broker@example.com",
			OrganisationID: orgID,
		})
		require.NoError(t, err)

		assert.Equal(t, credentials.InvitationStatusPending, record.Status)
		assert.Equal(t, credentials.RoleReferrer, record.Role)
		assert.Equal(t, now.Add(cfg.InvitationTTL), record.ExpiresAt)
		assert.NotEmpty(t, record.Token)
		assert.Nil(t, record.AcceptedAt)

		require.Len(t, notifier.deliveries, 1)
		assert.Equal(t, record.Token, notifier.deliveries[0].Code)
		assert.Equal(t, credentials.PurposeInvitation, notifier.deliveries[0].Purpose)
	})

	t.Run("re-inviting the same pair yields the same id", func(t *testing.T) {
		store := &MockInvitationStore{}
		call := store.On("Create", ctx, mock.Anything, mock.Anything).Twice()
		call.Run(func(args mock.Arguments) {
			call.ReturnArguments = mock.Arguments{args.Get(1), nil}
		})

		service := newService(store)
		input := credentials.CreateInvitation{
			Email:          "repeat@example.com",
			OrganisationID: orgID,
			Role:           credentials.RoleBroker,
		}

		first, err := service.Create(ctx, input)
		require.NoError(t, err)
		second, err := service.Create(ctx, input)
		require.NoError(t, err)

		assert.Equal(t, first.ID, second.ID)
		assert.NotEqual(t, first.Token, second.Token)
	})

	t.Run("rejects invalid input", func(t *testing.T) {
		store := &MockInvitationStore{}
		service := newService(store)

		cases := map[string]credentials.CreateInvitation{
			"bad email":    {Email: "not-an-email", OrganisationID: orgID},
			"missing org":  {Email: "ok@example.com"},
			"unknown role": {Email: "ok@example.com", OrganisationID: orgID, Role: "owner"},
		}

		for name, input := range cases {
			t.Run(name, func(t *testing.T) {
				_, err := service.Create(ctx, input)
				require.Error(t, err)
			})
		}

		store.AssertNotCalled(t, "Create", mock.Anything, mock.Anything, mock.Anything)
	})
}

func TestInvitationServiceResolve(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	orgID := uuid.New()

	newService := func(store *MockInvitationStore, sink *capturingSink) *credentials.InvitationService {
		return credentials.NewInvitationService(cfg, store,
			credentials.WithInvitationClock(fixedClock(now)),
			credentials.WithInvitationActivitySink(sink),
		)
	}

	t.Run("fresh pending invitation resolves unchanged", func(t *testing.T) {
		store := &MockInvitationStore{}
		store.On("GetByToken", ctx, "tok").Return(&credentials.Invitation{
			Token:          "tok",
			OrganisationID: orgID,
			Status:         credentials.InvitationStatusPending,
			ExpiresAt:      now.Add(time.Hour),
		}, nil).Once()

		record, err := newService(store, &capturingSink{}).Resolve(ctx, "tok")
		require.NoError(t, err)
		assert.Equal(t, credentials.InvitationStatusPending, record.Status)
		store.AssertNotCalled(t, "MarkExpired", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("stale pending invitation is lazily expired and reports expired", func(t *testing.T) {
		store := &MockInvitationStore{}
		sink := &capturingSink{}
		stale := &credentials.Invitation{
			Token:          "tok",
			OrganisationID: orgID,
			Status:         credentials.InvitationStatusPending,
			ExpiresAt:      now.Add(-time.Hour),
		}
		store.On("GetByToken", ctx, "tok").Return(stale, nil).Once()
		store.On("MarkExpired", ctx, "tok", now).Return(&credentials.Invitation{
			Token:          "tok",
			OrganisationID: orgID,
			Status:         credentials.InvitationStatusExpired,
			ExpiresAt:      stale.ExpiresAt,
		}, nil).Once()

		_, err := newService(store, sink).Resolve(ctx, "tok")
		require.Error(t, err)
		assert.Equal(t, credentials.TextCodeInviteExpired, credentials.RejectionCode(err))
		assert.Equal(t, []credentials.ActivityEventType{credentials.ActivityEventInviteExpired}, sink.eventTypes())
		store.AssertExpectations(t)
	})

	t.Run("accepted invitation reports already accepted", func(t *testing.T) {
		store := &MockInvitationStore{}
		acceptedAt := now.Add(-time.Hour)
		store.On("GetByToken", ctx, "tok").Return(&credentials.Invitation{
			Token:          "tok",
			OrganisationID: orgID,
			Status:         credentials.InvitationStatusAccepted,
			ExpiresAt:      now.Add(time.Hour),
			AcceptedAt:     &acceptedAt,
		}, nil).Once()

		_, err := newService(store, &capturingSink{}).Resolve(ctx, "tok")
		require.Error(t, err)
		assert.Equal(t, credentials.TextCodeInviteAccepted, credentials.RejectionCode(err))
	})

	t.Run("unknown token reports not found", func(t *testing.T) {
		store := &MockInvitationStore{}
		store.On("GetByToken", ctx, "missing").Return(nil, credentials.ErrInvitationNotFound).Once()

		_, err := newService(store, &capturingSink{}).Resolve(ctx, "missing")
		require.Error(t, err)
		assert.Equal(t, credentials.TextCodeInviteNotFound, credentials.RejectionCode(err))
	})
}

func TestInvitationServiceAccept(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	now := time.Date(2025, 3, 10, 8, 0, 0, 0, time.UTC)
	orgID := uuid.New()

	newService := func(store *MockInvitationStore) *credentials.InvitationService {
		return credentials.NewInvitationService(cfg, store,
			credentials.WithInvitationClock(fixedClock(now)))
	}

	t.Run("accepts a fresh pending invitation", func(t *testing.T) {
		store := &MockInvitationStore{}
		acceptedAt := now
		store.On("GetByToken", ctx, "tok").Return(&credentials.Invitation{
			Token:          "tok",
			OrganisationID: orgID,
			Status:         credentials.InvitationStatusPending,
			ExpiresAt:      now.Add(time.Hour),
		}, nil).Once()
		store.On("MarkAccepted", ctx, "tok", now).Return(&credentials.Invitation{
			Token:          "tok",
			OrganisationID: orgID,
			Status:         credentials.InvitationStatusAccepted,
			AcceptedAt:     &acceptedAt,
		}, nil).Once()

		record, err := newService(store).Accept(ctx, "tok")
		require.NoError(t, err)
		assert.Equal(t, credentials.InvitationStatusAccepted, record.Status)
		require.NotNil(t, record.AcceptedAt)
	})

	t.Run("accept after expiry reports expired, never already-accepted", func(t *testing.T) {
		store := &MockInvitationStore{}
		stale := &credentials.Invitation{
			Token:          "tok",
			OrganisationID: orgID,
			Status:         credentials.InvitationStatusPending,
			ExpiresAt:      now.Add(-7 * 24 * time.Hour),
		}
		store.On("GetByToken", ctx, "tok").Return(stale, nil).Once()
		store.On("MarkExpired", ctx, "tok", now).Return(&credentials.Invitation{
			Token:          "tok",
			OrganisationID: orgID,
			Status:         credentials.InvitationStatusExpired,
		}, nil).Once()

		_, err := newService(store).Accept(ctx, "tok")
		require.Error(t, err)
		assert.Equal(t, credentials.TextCodeInviteExpired, credentials.RejectionCode(err))
		store.AssertNotCalled(t, "MarkAccepted", mock.Anything, mock.Anything, mock.Anything)
	})

	t.Run("accepting twice reports already accepted", func(t *testing.T) {
		store := &MockInvitationStore{}
		acceptedAt := now.Add(-time.Hour)
		store.On("GetByToken", ctx, "tok").Return(&credentials.Invitation{
			Token:          "tok",
			OrganisationID: orgID,
			Status:         credentials.InvitationStatusAccepted,
			ExpiresAt:      now.Add(time.Hour),
			AcceptedAt:     &acceptedAt,
		}, nil).Once()

		_, err := newService(store).Accept(ctx, "tok")
		require.Error(t, err)
		assert.Equal(t, credentials.TextCodeInviteAccepted, credentials.RejectionCode(err))
	})

	t.Run("losing the accept race re-reads the settled status", func(t *testing.T) {
		store := &MockInvitationStore{}
		pending := &credentials.Invitation{
			Token:          "tok",
			OrganisationID: orgID,
			Status:         credentials.InvitationStatusPending,
			ExpiresAt:      now.Add(time.Hour),
		}
		settled := &credentials.Invitation{
			Token:          "tok",
			OrganisationID: orgID,
			Status:         credentials.InvitationStatusAccepted,
		}
		store.On("GetByToken", ctx, "tok").Return(pending, nil).Once()
		store.On("MarkAccepted", ctx, "tok", now).Return(nil, credentials.ErrInvitationNotFound).Once()
		store.On("GetByToken", ctx, "tok").Return(settled, nil).Once()

		_, err := newService(store).Accept(ctx, "tok")
		require.Error(t, err)
		assert.Equal(t, credentials.TextCodeInviteAccepted, credentials.RejectionCode(err))
	})
}
