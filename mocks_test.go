package credentials_test

import (
	"context"
	"time"

	"github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/loanbridge/go-credentials"
	"github.com/stretchr/testify/mock"
	"github.com/uptrace/bun"
)

// MockUserStore implements credentials.UserStore
type MockUserStore struct {
	mock.Mock
}

func (m *MockUserStore) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (*credentials.User, error) {
	args := m.Called(ctx, id, criteria)
	var user *credentials.User
	if v := args.Get(0); v != nil {
		user = v.(*credentials.User)
	}
	return user, args.Error(1)
}

func (m *MockUserStore) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*credentials.User, error) {
	args := m.Called(ctx, identifier, criteria)
	var user *credentials.User
	if v := args.Get(0); v != nil {
		user = v.(*credentials.User)
	}
	return user, args.Error(1)
}

func (m *MockUserStore) TrackAttemptedLogin(ctx context.Context, user *credentials.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

func (m *MockUserStore) TrackSuccessfulLogin(ctx context.Context, user *credentials.User) error {
	args := m.Called(ctx, user)
	return args.Error(0)
}

// MockUserDirectory implements credentials.UserDirectory
type MockUserDirectory struct {
	mock.Mock
}

func (m *MockUserDirectory) FindByID(ctx context.Context, id string) (*credentials.User, error) {
	args := m.Called(ctx, id)
	var user *credentials.User
	if v := args.Get(0); v != nil {
		user = v.(*credentials.User)
	}
	return user, args.Error(1)
}

func (m *MockUserDirectory) FindByEmail(ctx context.Context, email string) (*credentials.User, error) {
	args := m.Called(ctx, email)
	var user *credentials.User
	if v := args.Get(0); v != nil {
		user = v.(*credentials.User)
	}
	return user, args.Error(1)
}

// MockCodeStore implements credentials.CodeStore
type MockCodeStore struct {
	mock.Mock
}

func (m *MockCodeStore) Create(ctx context.Context, record *credentials.OneTimeCode, criteria ...repository.InsertCriteria) (*credentials.OneTimeCode, error) {
	args := m.Called(ctx, record, criteria)
	var code *credentials.OneTimeCode
	if v := args.Get(0); v != nil {
		code = v.(*credentials.OneTimeCode)
	}
	return code, args.Error(1)
}

func (m *MockCodeStore) Consume(ctx context.Context, userID uuid.UUID, code string, now time.Time) (*credentials.OneTimeCode, error) {
	args := m.Called(ctx, userID, code, now)
	var record *credentials.OneTimeCode
	if v := args.Get(0); v != nil {
		record = v.(*credentials.OneTimeCode)
	}
	return record, args.Error(1)
}

// MockResetStore implements credentials.ResetStore
type MockResetStore struct {
	mock.Mock
}

func (m *MockResetStore) Create(ctx context.Context, record *credentials.PasswordResetToken, criteria ...repository.InsertCriteria) (*credentials.PasswordResetToken, error) {
	args := m.Called(ctx, record, criteria)
	var token *credentials.PasswordResetToken
	if v := args.Get(0); v != nil {
		token = v.(*credentials.PasswordResetToken)
	}
	return token, args.Error(1)
}

func (m *MockResetStore) GetByToken(ctx context.Context, token string) (*credentials.PasswordResetToken, error) {
	args := m.Called(ctx, token)
	var record *credentials.PasswordResetToken
	if v := args.Get(0); v != nil {
		record = v.(*credentials.PasswordResetToken)
	}
	return record, args.Error(1)
}

func (m *MockResetStore) MarkUsed(ctx context.Context, token string, now time.Time) (*credentials.PasswordResetToken, error) {
	args := m.Called(ctx, token, now)
	var record *credentials.PasswordResetToken
	if v := args.Get(0); v != nil {
		record = v.(*credentials.PasswordResetToken)
	}
	return record, args.Error(1)
}

func (m *MockResetStore) MarkUsedTx(ctx context.Context, tx bun.IDB, token string, now time.Time) (*credentials.PasswordResetToken, error) {
	args := m.Called(ctx, tx, token, now)
	var record *credentials.PasswordResetToken
	if v := args.Get(0); v != nil {
		record = v.(*credentials.PasswordResetToken)
	}
	return record, args.Error(1)
}

// MockInvitationStore implements credentials.InvitationStore
type MockInvitationStore struct {
	mock.Mock
}

func (m *MockInvitationStore) Create(ctx context.Context, record *credentials.Invitation, criteria ...repository.InsertCriteria) (*credentials.Invitation, error) {
	args := m.Called(ctx, record, criteria)
	var invite *credentials.Invitation
	if v := args.Get(0); v != nil {
		invite = v.(*credentials.Invitation)
	}
	return invite, args.Error(1)
}

func (m *MockInvitationStore) GetByToken(ctx context.Context, token string) (*credentials.Invitation, error) {
	args := m.Called(ctx, token)
	var invite *credentials.Invitation
	if v := args.Get(0); v != nil {
		invite = v.(*credentials.Invitation)
	}
	return invite, args.Error(1)
}

func (m *MockInvitationStore) MarkAccepted(ctx context.Context, token string, now time.Time) (*credentials.Invitation, error) {
	args := m.Called(ctx, token, now)
	var invite *credentials.Invitation
	if v := args.Get(0); v != nil {
		invite = v.(*credentials.Invitation)
	}
	return invite, args.Error(1)
}

func (m *MockInvitationStore) MarkExpired(ctx context.Context, token string, now time.Time) (*credentials.Invitation, error) {
	args := m.Called(ctx, token, now)
	var invite *credentials.Invitation
	if v := args.Get(0); v != nil {
		invite = v.(*credentials.Invitation)
	}
	return invite, args.Error(1)
}

// capturingSink collects activity events in order.
type capturingSink struct {
	events []credentials.ActivityEvent
}

func (c *capturingSink) Record(ctx context.Context, evt credentials.ActivityEvent) error {
	c.events = append(c.events, evt)
	return nil
}

func (c *capturingSink) eventTypes() []credentials.ActivityEventType {
	types := make([]credentials.ActivityEventType, 0, len(c.events))
	for _, evt := range c.events {
		types = append(types, evt.EventType)
	}
	return types
}

// capturingNotifier collects delivered secrets in order.
type capturingNotifier struct {
	deliveries []credentials.CodeDelivery
	fail       error
}

func (c *capturingNotifier) SendCode(ctx context.Context, delivery credentials.CodeDelivery) error {
	if c.fail != nil {
		return c.fail
	}
	c.deliveries = append(c.deliveries, delivery)
	return nil
}

type testLogger struct{}

func (testLogger) Debug(format string, args ...any) {}
func (testLogger) Info(format string, args ...any)  {}
func (testLogger) Warn(format string, args ...any)  {}
func (testLogger) Error(format string, args ...any) {}

// fixedClock returns a Clock pinned to t.
func fixedClock(t time.Time) credentials.Clock {
	return func() time.Time { return t }
}

func testConfig() credentials.Config {
	return credentials.Config{
		AccessSigningKey:  []byte("access-signing-key-0123456789abcdef"),
		RefreshSigningKey: []byte("refresh-signing-key-0123456789abcde"),
		Issuer:            "loanbridge-test",
		Audience:          []string{"loanbridge-api"},
	}.WithDefaults()
}

func activeUser() *credentials.User {
	orgID := uuid.New()
	return &credentials.User{
		ID:             uuid.New(),
		Email:          "broker@example.com",
		Role:           credentials.RoleBroker,
		OrganisationID: &orgID,
		Status:         credentials.UserStatusActive,
		DisplayName:    "Test Broker",
		TwoFAEnabled:   true,
	}
}
