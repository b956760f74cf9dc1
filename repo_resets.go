package credentials

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Mark-used is a single conditional update so concurrent consume attempts
// on the same token yield exactly one success.
var markResetTokenUsedSQL = `UPDATE "password_reset_tokens" AS "prt"
SET
	"used_at" = ?
WHERE
	"prt"."token" = ?
AND "prt"."used_at" IS NULL
AND "prt"."expires_at" > ?
RETURNING *;`

// PasswordResetTokens persists reset tokens and owns their single-use guarantee.
type PasswordResetTokens interface {
	repository.Repository[*PasswordResetToken]

	GetByToken(ctx context.Context, token string) (*PasswordResetToken, error)
	GetByTokenTx(ctx context.Context, tx bun.IDB, token string) (*PasswordResetToken, error)
	MarkUsed(ctx context.Context, token string, now time.Time) (*PasswordResetToken, error)
	MarkUsedTx(ctx context.Context, tx bun.IDB, token string, now time.Time) (*PasswordResetToken, error)
}

type passwordResetTokens struct {
	repository.Repository[*PasswordResetToken]
	db *bun.DB
}

var _ PasswordResetTokens = (*passwordResetTokens)(nil)

func NewPasswordResetTokensRepository(db *bun.DB) PasswordResetTokens {
	repo := repository.NewRepository[*PasswordResetToken](db, repository.ModelHandlers[*PasswordResetToken]{
		NewRecord: func() *PasswordResetToken { return &PasswordResetToken{} },
		GetID: func(r *PasswordResetToken) uuid.UUID {
			if r == nil {
				return uuid.Nil
			}
			return r.ID
		},
		SetID: func(r *PasswordResetToken, id uuid.UUID) {
			if r != nil {
				r.ID = id
			}
		},
		GetIdentifier: func() string {
			return "token"
		},
	})

	return &passwordResetTokens{
		Repository: repo,
		db:         db,
	}
}

func (a *passwordResetTokens) GetByToken(ctx context.Context, token string) (*PasswordResetToken, error) {
	return a.GetByTokenTx(ctx, a.db, token)
}

func (a *passwordResetTokens) GetByTokenTx(ctx context.Context, tx bun.IDB, token string) (*PasswordResetToken, error) {
	record := &PasswordResetToken{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.token = ?", token).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrResetTokenNotFound
		}
		return nil, DependencyUnavailable(err, "failed to read password reset token")
	}

	return record, nil
}

func (a *passwordResetTokens) MarkUsed(ctx context.Context, token string, now time.Time) (*PasswordResetToken, error) {
	return a.MarkUsedTx(ctx, a.db, token, now)
}

// MarkUsedTx atomically sets used_at. A no-row update means the token never
// existed or is no longer consumable; a follow-up read distinguishes the two.
func (a *passwordResetTokens) MarkUsedTx(ctx context.Context, tx bun.IDB, token string, now time.Time) (*PasswordResetToken, error) {
	res, err := a.Repository.RawTx(ctx, tx, markResetTokenUsedSQL, now, token, now)
	if err != nil {
		return nil, DependencyUnavailable(err, "failed to mark reset token used")
	}

	if len(res) > 0 {
		return res[0], nil
	}

	record, err := a.GetByTokenTx(ctx, tx, token)
	if err != nil {
		return nil, err
	}

	return nil, ErrResetTokenInvalid.Clone().WithMetadata(map[string]any{
		"used":    record.UsedAt != nil,
		"expired": !record.Consumable(now) && record.UsedAt == nil,
	})
}
