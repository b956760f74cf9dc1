package credentials

import (
	"context"
	"database/sql"
	"errors"
	"log"

	"github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

// RepositoryManager exposes all repositories
type RepositoryManager interface {
	repository.Validator
	repository.TransactionManager
	Users() Users
	OneTimeCodes() OneTimeCodes
	PasswordResetTokens() PasswordResetTokens
	Invitations() Invitations
}

type mngr struct {
	db           *bun.DB
	users        Users
	oneTimeCodes OneTimeCodes
	resetTokens  PasswordResetTokens
	invitations  Invitations
}

func NewRepositoryManager(db *bun.DB) RepositoryManager {
	return &mngr{
		db:           db,
		users:        NewUsersRepository(db),
		oneTimeCodes: NewOneTimeCodesRepository(db),
		resetTokens:  NewPasswordResetTokensRepository(db),
		invitations:  NewInvitationsRepository(db),
	}
}

func (m mngr) Validate() error {
	if m.users == nil {
		return errors.New("repository users should be initialized")
	}

	if m.oneTimeCodes == nil {
		return errors.New("repository oneTimeCodes should be initialized")
	}

	if m.resetTokens == nil {
		return errors.New("repository resetTokens should be initialized")
	}

	if m.invitations == nil {
		return errors.New("repository invitations should be initialized")
	}

	return nil
}

func (m mngr) MustValidate() {
	if err := m.Validate(); err != nil {
		log.Panic(err)
	}
}

func (m mngr) RunInTx(ctx context.Context, opts *sql.TxOptions, f func(ctx context.Context, tx bun.Tx) error) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return m.db.RunInTx(ctx, opts, f)
	}
}

func (m mngr) Users() Users {
	return m.users
}

func (m mngr) OneTimeCodes() OneTimeCodes {
	return m.oneTimeCodes
}

func (m mngr) PasswordResetTokens() PasswordResetTokens {
	return m.resetTokens
}

func (m mngr) Invitations() Invitations {
	return m.invitations
}
