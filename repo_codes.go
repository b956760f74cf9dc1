package credentials

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// Consumption is a single conditional update: mark consumed only if still
// unconsumed and unexpired. Two concurrent verifications of the same code
// race on this statement and exactly one sees an affected row.
var consumeOneTimeCodeSQL = `UPDATE "one_time_codes" AS "otc"
SET
	"consumed" = TRUE
WHERE
	"otc"."user_id" = ?
AND "otc"."code" = ?
AND "otc"."consumed" = FALSE
AND "otc"."expires_at" > ?
RETURNING *;`

// OneTimeCodes persists 2FA codes and owns their single-use guarantee.
type OneTimeCodes interface {
	repository.Repository[*OneTimeCode]

	Consume(ctx context.Context, userID uuid.UUID, code string, now time.Time) (*OneTimeCode, error)
	ConsumeTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, code string, now time.Time) (*OneTimeCode, error)
}

type oneTimeCodes struct {
	repository.Repository[*OneTimeCode]
	db *bun.DB
}

var _ OneTimeCodes = (*oneTimeCodes)(nil)

func NewOneTimeCodesRepository(db *bun.DB) OneTimeCodes {
	repo := repository.NewRepository[*OneTimeCode](db, repository.ModelHandlers[*OneTimeCode]{
		NewRecord: func() *OneTimeCode { return &OneTimeCode{} },
		GetID: func(r *OneTimeCode) uuid.UUID {
			if r == nil {
				return uuid.Nil
			}
			return r.ID
		},
		SetID: func(r *OneTimeCode, id uuid.UUID) {
			if r != nil {
				r.ID = id
			}
		},
		GetIdentifier: func() string {
			return "code"
		},
	})

	return &oneTimeCodes{
		Repository: repo,
		db:         db,
	}
}

func (a *oneTimeCodes) Consume(ctx context.Context, userID uuid.UUID, code string, now time.Time) (*OneTimeCode, error) {
	return a.ConsumeTx(ctx, a.db, userID, code, now)
}

// ConsumeTx atomically marks the matching record consumed. When the update
// touches no row, a follow-up read classifies the failure: the code never
// existed, was already consumed, or expired unconsumed.
func (a *oneTimeCodes) ConsumeTx(ctx context.Context, tx bun.IDB, userID uuid.UUID, code string, now time.Time) (*OneTimeCode, error) {
	res, err := a.Repository.RawTx(ctx, tx, consumeOneTimeCodeSQL, userID.String(), code, now)
	if err != nil {
		return nil, DependencyUnavailable(err, "failed to consume one-time code")
	}

	if len(res) > 0 {
		return res[0], nil
	}

	record := &OneTimeCode{}
	err = tx.NewSelect().
		Model(record).
		Where("?TableAlias.user_id = ?", userID.String()).
		Where("?TableAlias.code = ?", code).
		OrderExpr("?TableAlias.created_at DESC").
		Limit(1).
		Scan(ctx)

	if err != nil {
		if repository.IsRecordNotFound(err) {
			return nil, ErrCodeNotFound
		}
		return nil, DependencyUnavailable(err, "failed to classify one-time code rejection")
	}

	if record.Consumed {
		return nil, ErrCodeConsumed
	}

	return nil, ErrCodeExpired
}
