package credentials

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Status transitions are conditional on the current status being pending,
// so accept and lazy-expire cannot clobber each other.
var markInvitationAcceptedSQL = `UPDATE "invitations" AS "inv"
SET
	"status" = 'accepted',
	"accepted_at" = ?,
	"updated_at" = ?
WHERE
	"inv"."token" = ?
AND "inv"."status" = 'pending'
RETURNING *;`

var markInvitationExpiredSQL = `UPDATE "invitations" AS "inv"
SET
	"status" = 'expired',
	"updated_at" = ?
WHERE
	"inv"."token" = ?
AND "inv"."status" = 'pending'
RETURNING *;`

// Invitations persists organisation-invitation tokens and enforces the
// one-way status graph at the storage layer.
type Invitations interface {
	repository.Repository[*Invitation]

	GetByToken(ctx context.Context, token string) (*Invitation, error)
	GetByTokenTx(ctx context.Context, tx bun.IDB, token string) (*Invitation, error)
	MarkAccepted(ctx context.Context, token string, now time.Time) (*Invitation, error)
	MarkAcceptedTx(ctx context.Context, tx bun.IDB, token string, now time.Time) (*Invitation, error)
	MarkExpired(ctx context.Context, token string, now time.Time) (*Invitation, error)
	MarkExpiredTx(ctx context.Context, tx bun.IDB, token string, now time.Time) (*Invitation, error)
}

type invitations struct {
	repository.Repository[*Invitation]
	db *bun.DB
}

var _ Invitations = (*invitations)(nil)

func NewInvitationsRepository(db *bun.DB) Invitations {
	repo := repository.NewRepository[*Invitation](db, repository.ModelHandlers[*Invitation]{
		NewRecord: func() *Invitation { return &Invitation{} },
		GetID: func(r *Invitation) uuid.UUID {
			if r == nil {
				return uuid.Nil
			}
			return r.ID
		},
		SetID: func(r *Invitation, id uuid.UUID) {
			if r != nil {
				r.ID = id
			}
		},
		GetIdentifier: func() string {
			return "token"
		},
	})

	return &invitations{
		Repository: repo,
		db:         db,
	}
}

func (a *invitations) GetByToken(ctx context.Context, token string) (*Invitation, error) {
	return a.GetByTokenTx(ctx, a.db, token)
}

func (a *invitations) GetByTokenTx(ctx context.Context, tx bun.IDB, token string) (*Invitation, error) {
	record := &Invitation{}
	err := tx.NewSelect().
		Model(record).
		Where("?TableAlias.token = ?", token).
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrInvitationNotFound
		}
		return nil, DependencyUnavailable(err, "failed to read invitation")
	}

	return record, nil
}

func (a *invitations) MarkAccepted(ctx context.Context, token string, now time.Time) (*Invitation, error) {
	return a.MarkAcceptedTx(ctx, a.db, token, now)
}

// MarkAcceptedTx moves pending -> accepted. Zero affected rows means the
// invitation is absent or already left the pending state.
func (a *invitations) MarkAcceptedTx(ctx context.Context, tx bun.IDB, token string, now time.Time) (*Invitation, error) {
	res, err := a.Repository.RawTx(ctx, tx, markInvitationAcceptedSQL, now, now, token)
	if err != nil {
		return nil, DependencyUnavailable(err, "failed to accept invitation")
	}

	if len(res) == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"token": token,
			})
	}

	return res[0], nil
}

func (a *invitations) MarkExpired(ctx context.Context, token string, now time.Time) (*Invitation, error) {
	return a.MarkExpiredTx(ctx, a.db, token, now)
}

// MarkExpiredTx moves pending -> expired. Used by the lazy transition on
// resolve; safe to lose the race against a concurrent accept.
func (a *invitations) MarkExpiredTx(ctx context.Context, tx bun.IDB, token string, now time.Time) (*Invitation, error) {
	res, err := a.Repository.RawTx(ctx, tx, markInvitationExpiredSQL, now, token)
	if err != nil {
		return nil, DependencyUnavailable(err, "failed to expire invitation")
	}

	if len(res) == 0 {
		return nil, repository.NewRecordNotFound().
			WithMetadata(map[string]any{
				"token": token,
			})
	}

	return res[0], nil
}
