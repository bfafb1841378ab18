package service

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"identity-service/internal/model"
	"identity-service/internal/repository"
)

type mockAccountStore struct {
	mock.Mock
}

func (m *mockAccountStore) FindByEmail(ctx context.Context, email string) (model.Account, error) {
	args := m.Called(ctx, email)
	return args.Get(0).(model.Account), args.Error(1)
}

func (m *mockAccountStore) FindByFederatedID(ctx context.Context, federatedID string) (model.Account, error) {
	args := m.Called(ctx, federatedID)
	return args.Get(0).(model.Account), args.Error(1)
}

func (m *mockAccountStore) Create(ctx context.Context, a *model.Account) error {
	args := m.Called(ctx, a)
	return args.Error(0)
}

func (m *mockAccountStore) Update(ctx context.Context, id string, patch model.AccountPatch) error {
	args := m.Called(ctx, id, patch)
	return args.Error(0)
}

func (m *mockAccountStore) Ping(ctx context.Context) error {
	return m.Called(ctx).Error(0)
}

func verifiedAssertion() model.Assertion {
	return model.Assertion{
		Subject:       "google-sub",
		Email:         "Alice@Example.com",
		Name:          "Alice",
		Picture:       "https://img/alice.png",
		EmailVerified: true,
	}
}

func TestFederationResolver_MatchBySubjectUpdatesProfile(t *testing.T) {
	repo := repository.NewMemoryAccountRepository()
	ctx := context.Background()
	existing := &model.Account{Email: "old@example.com", FederatedID: "google-sub", Name: "Old"}
	require.NoError(t, repo.Create(ctx, existing))

	acct, outcome, err := NewFederationResolver(repo).Resolve(ctx, verifiedAssertion())
	require.NoError(t, err)
	assert.Equal(t, OutcomeMatched, outcome)
	assert.Equal(t, existing.ID, acct.ID)
	assert.Equal(t, "alice@example.com", acct.Email)
	assert.Equal(t, "Alice", acct.Name)
	assert.Equal(t, "https://img/alice.png", acct.Picture)

	_, err = repo.FindByEmail(ctx, "old@example.com")
	assert.ErrorIs(t, err, model.ErrAccountNotFound)
}

func TestFederationResolver_LinksByEmail(t *testing.T) {
	repo := repository.NewMemoryAccountRepository()
	ctx := context.Background()
	existing := &model.Account{Email: "alice@example.com", PasswordHash: "hash"}
	require.NoError(t, repo.Create(ctx, existing))

	acct, outcome, err := NewFederationResolver(repo).Resolve(ctx, verifiedAssertion())
	require.NoError(t, err)
	assert.Equal(t, OutcomeLinked, outcome)
	assert.Equal(t, existing.ID, acct.ID)
	assert.Equal(t, "google-sub", acct.FederatedID)
	assert.Equal(t, "hash", acct.PasswordHash)
	assert.True(t, acct.EmailVerified)

	stored, err := repo.FindByFederatedID(ctx, "google-sub")
	require.NoError(t, err)
	assert.Equal(t, existing.ID, stored.ID)
}

func TestFederationResolver_CreatesUserAccount(t *testing.T) {
	repo := repository.NewMemoryAccountRepository()
	ctx := context.Background()

	acct, outcome, err := NewFederationResolver(repo).Resolve(ctx, verifiedAssertion())
	require.NoError(t, err)
	assert.Equal(t, OutcomeCreated, outcome)
	assert.Equal(t, model.RoleUser, acct.Role)
	assert.Empty(t, acct.PasswordHash)
	assert.Equal(t, "google-sub", acct.FederatedID)
	assert.True(t, acct.EmailVerified)
}

func TestFederationResolver_RejectsUnverifiedEmail(t *testing.T) {
	store := new(mockAccountStore)

	a := verifiedAssertion()
	a.EmailVerified = false
	_, _, err := NewFederationResolver(store).Resolve(context.Background(), a)
	assert.ErrorIs(t, err, model.ErrEmailNotVerified)

	store.AssertNotCalled(t, "FindByFederatedID", mock.Anything, mock.Anything)
}

func TestFederationResolver_StoreFailureStopsResolution(t *testing.T) {
	store := new(mockAccountStore)
	unavailable := errors.Join(model.ErrStoreUnavailable, errors.New("connection reset"))
	store.On("FindByFederatedID", mock.Anything, "google-sub").Return(model.Account{}, unavailable)

	_, _, err := NewFederationResolver(store).Resolve(context.Background(), verifiedAssertion())
	assert.ErrorIs(t, err, model.ErrStoreUnavailable)

	store.AssertExpectations(t)
	store.AssertNotCalled(t, "FindByEmail", mock.Anything, mock.Anything)
	store.AssertNotCalled(t, "Create", mock.Anything, mock.Anything)
}
