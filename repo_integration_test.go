package credentials_test

import (
	"context"
	"database/sql"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/loanbridge/go-credentials"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/uptrace/bun"
	"github.com/uptrace/bun/dialect/sqlitedialect"
	"github.com/uptrace/bun/driver/sqliteshim"
)

func setupDB(t *testing.T) (credentials.RepositoryManager, *bun.DB) {
	t.Helper()

	sqldb, err := sql.Open(sqliteshim.ShimName, "file::memory:")
	require.NoError(t, err)
	sqldb.SetMaxOpenConns(1)

	db := bun.NewDB(sqldb, sqlitedialect.New())
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	for _, model := range []any{
		(*credentials.User)(nil),
		(*credentials.OneTimeCode)(nil),
		(*credentials.PasswordResetToken)(nil),
		(*credentials.Invitation)(nil),
	} {
		_, err := db.NewCreateTable().Model(model).IfNotExists().Exec(ctx)
		require.NoError(t, err)
	}

	repo := credentials.NewRepositoryManager(db)
	require.NoError(t, repo.Validate())

	return repo, db
}

func seedUser(t *testing.T, repo credentials.RepositoryManager, passwordHash string) *credentials.User {
	t.Helper()

	user := activeUser()
	user.PasswordHash = passwordHash

	created, err := repo.Users().Create(context.Background(), user)
	require.NoError(t, err)
	return created
}

func TestOneTimeCodeConsumeLifecycle(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	repo, _ := setupDB(t)
	user := seedUser(t, repo, "irrelevant")

	now := time.Date(2025, 4, 1, 10, 0, 0, 0, time.UTC)
	directory := credentials.NewDirectory(repo.Users())
	service := credentials.NewOneTimeCodeService(cfg, repo.OneTimeCodes(), directory,
		credentials.WithCodeClock(fixedClock(now)))

	first, err := service.Issue(ctx, user.ID)
	require.NoError(t, err)

	t.Run("unknown value is not found", func(t *testing.T) {
		err := service.Verify(ctx, user.ID, "999999")
		require.Error(t, err)
		assert.Equal(t, credentials.TextCodeCodeNotFound, credentials.RejectionCode(err))
	})

	t.Run("matches on value, not recency", func(t *testing.T) {
		// A newer code does not shadow the outstanding one.
		later := credentials.NewOneTimeCodeService(cfg, repo.OneTimeCodes(), directory,
			credentials.WithCodeClock(fixedClock(now.Add(2*time.Minute))))
		_, err := later.Issue(ctx, user.ID)
		require.NoError(t, err)

		require.NoError(t, later.Verify(ctx, user.ID, first.Code))
	})

	t.Run("second consumption reports already consumed", func(t *testing.T) {
		err := service.Verify(ctx, user.ID, first.Code)
		require.Error(t, err)
		assert.Equal(t, credentials.TextCodeCodeConsumed, credentials.RejectionCode(err))
	})

	t.Run("unconsumed code expires", func(t *testing.T) {
		fresh, err := service.Issue(ctx, user.ID)
		require.NoError(t, err)

		stale := credentials.NewOneTimeCodeService(cfg, repo.OneTimeCodes(), directory,
			credentials.WithCodeClock(fixedClock(now.Add(cfg.OneTimeCodeTTL+time.Minute))))

		err = stale.Verify(ctx, user.ID, fresh.Code)
		require.Error(t, err)
		assert.Equal(t, credentials.TextCodeCodeExpired, credentials.RejectionCode(err))
	})

	t.Run("codes are scoped to the user", func(t *testing.T) {
		fresh, err := service.Issue(ctx, user.ID)
		require.NoError(t, err)

		err = service.Verify(ctx, uuid.New(), fresh.Code)
		require.Error(t, err)
		assert.Equal(t, credentials.TextCodeCodeNotFound, credentials.RejectionCode(err))
	})

	t.Run("concurrent verifies consume exactly once", func(t *testing.T) {
		fresh, err := service.Issue(ctx, user.ID)
		require.NoError(t, err)

		results := make(chan error, 2)
		var wg sync.WaitGroup
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				results <- service.Verify(ctx, user.ID, fresh.Code)
			}()
		}
		wg.Wait()
		close(results)

		var succeeded, rejected int
		for err := range results {
			if err == nil {
				succeeded++
				continue
			}
			assert.Equal(t, credentials.TextCodeCodeConsumed, credentials.RejectionCode(err))
			rejected++
		}
		assert.Equal(t, 1, succeeded)
		assert.Equal(t, 1, rejected)
	})
}

func TestPasswordResetLifecycle(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	repo, _ := setupDB(t)
	user := seedUser(t, repo, "irrelevant")

	now := time.Date(2025, 4, 2, 9, 0, 0, 0, time.UTC)
	directory := credentials.NewDirectory(repo.Users())
	service := credentials.NewPasswordResetService(cfg, repo.PasswordResetTokens(), directory,
		credentials.WithResetClock(fixedClock(now)))

	issued, err := service.Issue(ctx, user.ID)
	require.NoError(t, err)

	t.Run("verify before consume is read-only", func(t *testing.T) {
		record, err := service.Verify(ctx, issued.Token)
		require.NoError(t, err)
		assert.Equal(t, user.ID, record.UserID)

		_, err = service.Verify(ctx, issued.Token)
		require.NoError(t, err)
	})

	t.Run("consume succeeds exactly once", func(t *testing.T) {
		record, err := service.Consume(ctx, issued.Token)
		require.NoError(t, err)
		require.NotNil(t, record.UsedAt)

		_, err = service.Consume(ctx, issued.Token)
		require.Error(t, err)
		assert.Equal(t, credentials.TextCodeResetInvalid, credentials.RejectionCode(err))
	})

	t.Run("verify after consume reports consumed, not missing", func(t *testing.T) {
		_, err := service.Verify(ctx, issued.Token)
		require.Error(t, err)
		assert.Equal(t, credentials.TextCodeResetInvalid, credentials.RejectionCode(err))
	})

	t.Run("unknown token reports not found", func(t *testing.T) {
		_, err := service.Verify(ctx, "never-issued")
		require.Error(t, err)
		assert.Equal(t, credentials.TextCodeResetNotFound, credentials.RejectionCode(err))
	})

	t.Run("expired token cannot be consumed", func(t *testing.T) {
		fresh, err := service.Issue(ctx, user.ID)
		require.NoError(t, err)

		stale := credentials.NewPasswordResetService(cfg, repo.PasswordResetTokens(), directory,
			credentials.WithResetClock(fixedClock(now.Add(cfg.ResetTokenTTL+time.Hour))))

		_, err = stale.Consume(ctx, fresh.Token)
		require.Error(t, err)
		assert.Equal(t, credentials.TextCodeResetInvalid, credentials.RejectionCode(err))
	})

	t.Run("concurrent consumes succeed exactly once", func(t *testing.T) {
		fresh, err := service.Issue(ctx, user.ID)
		require.NoError(t, err)

		results := make(chan error, 2)
		var wg sync.WaitGroup
		for i := 0; i < 2; i++ {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := service.Consume(ctx, fresh.Token)
				results <- err
			}()
		}
		wg.Wait()
		close(results)

		var succeeded, rejected int
		for err := range results {
			if err == nil {
				succeeded++
				continue
			}
			assert.Equal(t, credentials.TextCodeResetInvalid, credentials.RejectionCode(err))
			rejected++
		}
		assert.Equal(t, 1, succeeded)
		assert.Equal(t, 1, rejected)
	})
}

func TestInvitationLifecycle(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	repo, _ := setupDB(t)

	now := time.Date(2025, 4, 3, 12, 0, 0, 0, time.UTC)
	service := credentials.NewInvitationService(cfg, repo.Invitations(),
		credentials.WithInvitationClock(fixedClock(now)))

	invitation, err := service.Create(ctx, credentials.CreateInvitation{
		Email:          "invitee@example.com",
		OrganisationID: uuid.New(),
		Role:           credentials.RoleBroker,
	})
	require.NoError(t, err)

	t.Run("resolve and accept a live invitation", func(t *testing.T) {
		record, err := service.Resolve(ctx, invitation.Token)
		require.NoError(t, err)
		assert.Equal(t, credentials.InvitationStatusPending, record.Status)

		accepted, err := service.Accept(ctx, invitation.Token)
		require.NoError(t, err)
		assert.Equal(t, credentials.InvitationStatusAccepted, accepted.Status)
		require.NotNil(t, accepted.AcceptedAt)

		_, err = service.Accept(ctx, invitation.Token)
		require.Error(t, err)
		assert.Equal(t, credentials.TextCodeInviteAccepted, credentials.RejectionCode(err))
	})

	t.Run("resolve past the window expires the stored record", func(t *testing.T) {
		stale, err := service.Create(ctx, credentials.CreateInvitation{
			Email:          "late@example.com",
			OrganisationID: uuid.New(),
		})
		require.NoError(t, err)

		afterWindow := credentials.NewInvitationService(cfg, repo.Invitations(),
			credentials.WithInvitationClock(fixedClock(now.Add(cfg.InvitationTTL+24*time.Hour))))

		_, err = afterWindow.Resolve(ctx, stale.Token)
		require.Error(t, err)
		assert.Equal(t, credentials.TextCodeInviteExpired, credentials.RejectionCode(err))

		stored, err := repo.Invitations().GetByToken(ctx, stale.Token)
		require.NoError(t, err)
		assert.Equal(t, credentials.InvitationStatusExpired, stored.Status)

		_, err = afterWindow.Accept(ctx, stale.Token)
		require.Error(t, err)
		assert.Equal(t, credentials.TextCodeInviteExpired, credentials.RejectionCode(err))

		// The lazy transition is one-way: a later in-window clock cannot
		// resurrect the invitation.
		_, err = service.Accept(ctx, stale.Token)
		require.Error(t, err)
		assert.Equal(t, credentials.TextCodeInviteExpired, credentials.RejectionCode(err))
	})
}

func TestPasswordResetCommands(t *testing.T) {
	ctx := context.Background()
	cfg := testConfig()
	repo, _ := setupDB(t)

	oldHash, err := credentials.HashPassword("old-password-123")
	require.NoError(t, err)
	user := seedUser(t, repo, oldHash)

	directory := credentials.NewDirectory(repo.Users())
	resets := credentials.NewPasswordResetService(cfg, repo.PasswordResetTokens(), directory)

	t.Run("initialize stays silent for unknown emails", func(t *testing.T) {
		handler := credentials.NewInitializePasswordResetHandler(directory, resets).
			WithLogger(testLogger{})

		var resp *credentials.InitializePasswordResetResponse
		err := handler.Execute(ctx, credentials.InitializePasswordResetMessage{
			Email:      "ghost@example.com",
			OnResponse: func(r *credentials.InitializePasswordResetResponse) { resp = r },
		})
		require.NoError(t, err)
		require.NotNil(t, resp)
		assert.True(t, resp.Success)
		assert.Nil(t, resp.Reset)
	})

	t.Run("initialize then finalize rotates the password hash", func(t *testing.T) {
		initialize := credentials.NewInitializePasswordResetHandler(directory, resets)

		var resp *credentials.InitializePasswordResetResponse
		err := initialize.Execute(ctx, credentials.InitializePasswordResetMessage{
			Email:      user.Email,
			OnResponse: func(r *credentials.InitializePasswordResetResponse) { resp = r },
		})
		require.NoError(t, err)
		require.NotNil(t, resp.Reset)

		finalize := credentials.NewFinalizePasswordResetHandler(repo, resets)
		err = finalize.Execute(ctx, credentials.FinalizePasswordResetMessage{
			Token:    resp.Reset.Token,
			Password: "brand-new-password",
		})
		require.NoError(t, err)

		updated, err := repo.Users().GetByID(ctx, user.ID.String())
		require.NoError(t, err)
		require.NoError(t, credentials.ComparePasswordAndHash("brand-new-password", updated.PasswordHash))
		require.Error(t, credentials.ComparePasswordAndHash("old-password-123", updated.PasswordHash))

		// The token was consumed in the same transaction.
		err = finalize.Execute(ctx, credentials.FinalizePasswordResetMessage{
			Token:    resp.Reset.Token,
			Password: "another-password-1",
		})
		require.Error(t, err)
		assert.Equal(t, credentials.TextCodeResetInvalid, credentials.RejectionCode(err))
	})

	t.Run("finalize rejects weak payloads before touching storage", func(t *testing.T) {
		finalize := credentials.NewFinalizePasswordResetHandler(repo, resets)

		err := finalize.Execute(ctx, credentials.FinalizePasswordResetMessage{
			Token:    "whatever",
			Password: "short",
		})
		require.Error(t, err)
	})
}
