package service

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/crypto/bcrypt"

	"identity-service/internal/event"
	"identity-service/internal/model"
	"identity-service/internal/otpstore"
	"identity-service/internal/repository"
	"identity-service/pkg/apierror"
)

type authFixture struct {
	svc      *AuthService
	accounts *repository.MemoryAccountRepository
	otps     *otpstore.MemoryStore
	tokens   *TokenCodec
	clock    *fakeClock
	events   <-chan event.Event
}

func newAuthFixture(t *testing.T, opts AuthOptions) *authFixture {
	t.Helper()

	tokens, clock := newTestCodec(t, "test-secret")
	accounts := repository.NewMemoryAccountRepository()
	otps := otpstore.NewMemoryStore()
	bus := event.NewBus()
	events, unsubscribe := bus.Subscribe()
	t.Cleanup(unsubscribe)

	svc := NewAuthService(accounts, otps, NewPasswordHasher(bcrypt.MinCost), tokens, bus, opts)
	return &authFixture{svc: svc, accounts: accounts, otps: otps, tokens: tokens, clock: clock, events: events}
}

func (f *authFixture) register(t *testing.T, email string, password string) model.Session {
	t.Helper()
	session, err := f.svc.Register(context.Background(), model.RegisterRequest{Email: email, Password: password})
	require.NoError(t, err)
	return session
}

func (f *authFixture) nextEvent(t *testing.T) event.Event {
	t.Helper()
	select {
	case e := <-f.events:
		return e
	case <-time.After(time.Second):
		t.Fatal("no event published")
		return event.Event{}
	}
}

func strPtr(s string) *string { return &s }

func TestAuthService_RegisterThenLogin(t *testing.T) {
	f := newAuthFixture(t, AuthOptions{})
	ctx := context.Background()

	session := f.register(t, "A@x.com", "Secret1")
	assert.Equal(t, model.RoleUser, session.Account.Role)
	assert.Equal(t, "a@x.com", session.Account.Email)
	assert.Equal(t, event.TypeRegistered, f.nextEvent(t).Type)

	identity, err := f.svc.Authenticate(session.Token)
	require.NoError(t, err)
	assert.Equal(t, model.Identity{Email: "a@x.com", Role: "user"}, identity)

	login, err := f.svc.Login(ctx, "a@x.com", "Secret1")
	require.NoError(t, err)
	assert.Equal(t, model.RoleUser, login.Account.Role)
	assert.Equal(t, event.TypeLogin, f.nextEvent(t).Type)
}

func TestAuthService_RegisterDuplicate(t *testing.T) {
	f := newAuthFixture(t, AuthOptions{})
	f.register(t, "a@x.com", "Secret1")

	_, err := f.svc.Register(context.Background(), model.RegisterRequest{Email: " A@X.com ", Password: "Other12"})
	assert.ErrorIs(t, err, model.ErrDuplicateIdentity)
}

func TestAuthService_LoginFailuresAreIndistinguishable(t *testing.T) {
	f := newAuthFixture(t, AuthOptions{})
	ctx := context.Background()
	f.register(t, "a@x.com", "Secret1")

	_, wrongPassword := f.svc.Login(ctx, "a@x.com", "wrong")
	_, unknown := f.svc.Login(ctx, "nobody@x.com", "Secret1")

	assert.ErrorIs(t, wrongPassword, model.ErrInvalidCredentials)
	assert.ErrorIs(t, unknown, model.ErrInvalidCredentials)
	assert.Equal(t, wrongPassword.Error(), unknown.Error())
}

func TestAuthService_LoginRejectsFederationOnlyAccount(t *testing.T) {
	f := newAuthFixture(t, AuthOptions{})
	ctx := context.Background()
	require.NoError(t, f.accounts.Create(ctx, &model.Account{Email: "g@x.com", FederatedID: "sub-1"}))

	_, err := f.svc.Login(ctx, "g@x.com", "")
	assert.ErrorIs(t, err, model.ErrInvalidCredentials)
}

func TestAuthService_Authenticate(t *testing.T) {
	f := newAuthFixture(t, AuthOptions{RegisterTTL: 30 * time.Minute})
	session := f.register(t, "a@x.com", "Secret1")

	_, err := f.svc.Authenticate("")
	assert.ErrorIs(t, err, model.ErrNoSession)

	_, err = f.svc.Authenticate("garbage")
	assert.ErrorIs(t, err, model.ErrInvalidToken)

	f.clock.Advance(30 * time.Minute)
	_, err = f.svc.Authenticate(session.Token)
	assert.ErrorIs(t, err, model.ErrTokenExpired)
}

func TestAuthService_Logout(t *testing.T) {
	f := newAuthFixture(t, AuthOptions{})

	assert.ErrorIs(t, f.svc.Logout(""), model.ErrNoSession)
	assert.NoError(t, f.svc.Logout("anything"))
}

func TestAuthService_ChangePassword(t *testing.T) {
	f := newAuthFixture(t, AuthOptions{})
	ctx := context.Background()
	session := f.register(t, "a@x.com", "Secret1")

	err := f.svc.ChangePassword(ctx, session.Token, "wrong", "NewSecret")
	assert.ErrorIs(t, err, model.ErrInvalidCredentials)

	err = f.svc.ChangePassword(ctx, "", "Secret1", "NewSecret")
	assert.ErrorIs(t, err, model.ErrNoSession)

	require.NoError(t, f.svc.ChangePassword(ctx, session.Token, "Secret1", "NewSecret"))

	_, err = f.svc.Login(ctx, "a@x.com", "Secret1")
	assert.ErrorIs(t, err, model.ErrInvalidCredentials)
	_, err = f.svc.Login(ctx, "a@x.com", "NewSecret")
	assert.NoError(t, err)
}

func TestAuthService_OTPLastWriterWins(t *testing.T) {
	f := newAuthFixture(t, AuthOptions{})
	ctx := context.Background()
	f.register(t, "a@x.com", "Secret1")

	codes := []string{"111111", "222222"}
	f.svc.newCode = func() (string, error) {
		code := codes[0]
		codes = codes[1:]
		return code, nil
	}

	first, err := f.svc.RequestOTP(ctx, "a@x.com")
	require.NoError(t, err)
	second, err := f.svc.RequestOTP(ctx, "a@x.com")
	require.NoError(t, err)

	assert.ErrorIs(t, f.svc.VerifyOTP(ctx, "a@x.com", first), model.ErrOtpMismatch)
	assert.NoError(t, f.svc.VerifyOTP(ctx, "a@x.com", second))
	assert.ErrorIs(t, f.svc.VerifyOTP(ctx, "a@x.com", second), model.ErrOtpInvalidOrExpired)
}

func TestAuthService_OTPExpires(t *testing.T) {
	f := newAuthFixture(t, AuthOptions{OTPTTL: 50 * time.Millisecond})
	ctx := context.Background()
	f.register(t, "a@x.com", "Secret1")

	code, err := f.svc.RequestOTP(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Len(t, code, 6)

	time.Sleep(100 * time.Millisecond)
	assert.ErrorIs(t, f.svc.VerifyOTP(ctx, "a@x.com", code), model.ErrOtpInvalidOrExpired)
}

func TestAuthService_OTPBurnedAfterTooManyGuesses(t *testing.T) {
	f := newAuthFixture(t, AuthOptions{ResetRequiresOTP: true})
	ctx := context.Background()
	f.register(t, "a@x.com", "Secret1")
	f.svc.newCode = func() (string, error) { return "123456", nil }

	_, err := f.svc.RequestOTP(ctx, "a@x.com")
	require.NoError(t, err)

	for i := 1; i < defaultMaxOTPAttempts; i++ {
		assert.ErrorIs(t, f.svc.VerifyOTP(ctx, "a@x.com", "000000"), model.ErrOtpMismatch, "guess %d", i)
	}
	assert.ErrorIs(t, f.svc.VerifyOTP(ctx, "a@x.com", "000000"), model.ErrOtpInvalidOrExpired)

	for i := 0; i < 20; i++ {
		assert.ErrorIs(t, f.svc.VerifyOTP(ctx, "a@x.com", "000000"), model.ErrOtpInvalidOrExpired)
	}
	assert.ErrorIs(t, f.svc.VerifyOTP(ctx, "a@x.com", "123456"), model.ErrOtpInvalidOrExpired)
	assert.ErrorIs(t, f.svc.ResetPassword(ctx, "a@x.com", "Reset123"), model.ErrResetNotAuthorized)

	_, err = f.otps.Get(ctx, otpstore.AttemptsKey("a@x.com"))
	assert.ErrorIs(t, err, otpstore.ErrNotFound)
}

func TestAuthService_NewOTPResetsGuessCounter(t *testing.T) {
	f := newAuthFixture(t, AuthOptions{MaxOTPAttempts: 2})
	ctx := context.Background()
	f.register(t, "a@x.com", "Secret1")
	f.svc.newCode = func() (string, error) { return "123456", nil }

	_, err := f.svc.RequestOTP(ctx, "a@x.com")
	require.NoError(t, err)
	assert.ErrorIs(t, f.svc.VerifyOTP(ctx, "a@x.com", "000000"), model.ErrOtpMismatch)

	_, err = f.svc.RequestOTP(ctx, "a@x.com")
	require.NoError(t, err)
	assert.ErrorIs(t, f.svc.VerifyOTP(ctx, "a@x.com", "000000"), model.ErrOtpMismatch)
	require.NoError(t, f.svc.VerifyOTP(ctx, "a@x.com", "123456"))

	_, err = f.otps.Get(ctx, otpstore.AttemptsKey("a@x.com"))
	assert.ErrorIs(t, err, otpstore.ErrNotFound)
}

func TestAuthService_RequestOTPUnknownAccount(t *testing.T) {
	f := newAuthFixture(t, AuthOptions{})

	_, err := f.svc.RequestOTP(context.Background(), "nobody@x.com")
	assert.ErrorIs(t, err, model.ErrAccountNotFound)
}

func TestAuthService_ResetPasswordRequiresVerifiedOTP(t *testing.T) {
	f := newAuthFixture(t, AuthOptions{ResetRequiresOTP: true})
	ctx := context.Background()
	f.register(t, "a@x.com", "Secret1")

	err := f.svc.ResetPassword(ctx, "a@x.com", "Reset123")
	assert.ErrorIs(t, err, model.ErrResetNotAuthorized)

	err = f.svc.ResetPassword(ctx, "nobody@x.com", "Reset123")
	assert.ErrorIs(t, err, model.ErrAccountNotFound)

	code, err := f.svc.RequestOTP(ctx, "a@x.com")
	require.NoError(t, err)
	require.NoError(t, f.svc.VerifyOTP(ctx, "a@x.com", code))

	require.NoError(t, f.svc.ResetPassword(ctx, "a@x.com", "Reset123"))
	_, err = f.svc.Login(ctx, "a@x.com", "Reset123")
	assert.NoError(t, err)

	// The grant is single-use.
	err = f.svc.ResetPassword(ctx, "a@x.com", "Again123")
	assert.ErrorIs(t, err, model.ErrResetNotAuthorized)
}

func TestAuthService_ResetPasswordWithoutOTPGate(t *testing.T) {
	f := newAuthFixture(t, AuthOptions{ResetRequiresOTP: false})
	ctx := context.Background()
	f.register(t, "a@x.com", "Secret1")

	require.NoError(t, f.svc.ResetPassword(ctx, "a@x.com", "Reset123"))
	_, err := f.svc.Login(ctx, "a@x.com", "Reset123")
	assert.NoError(t, err)
}

func TestAuthService_UpdateProfile(t *testing.T) {
	f := newAuthFixture(t, AuthOptions{})
	ctx := context.Background()
	session := f.register(t, "a@x.com", "Secret1")

	updated, fresh, err := f.svc.UpdateProfile(ctx, session.Token, model.UpdateProfileRequest{
		Bio:  strPtr("hello"),
		Name: strPtr("Alice"),
	})
	require.NoError(t, err)
	assert.Nil(t, fresh)
	assert.Equal(t, "hello", updated.Bio)
	assert.Equal(t, "Alice", updated.Name)

	stored, err := f.accounts.FindByEmail(ctx, "a@x.com")
	require.NoError(t, err)
	assert.Equal(t, "hello", stored.Bio)
}

func TestAuthService_UpdateProfileEmailChangeReissuesSession(t *testing.T) {
	f := newAuthFixture(t, AuthOptions{})
	ctx := context.Background()
	session := f.register(t, "a@x.com", "Secret1")

	_, fresh, err := f.svc.UpdateProfile(ctx, session.Token, model.UpdateProfileRequest{Email: strPtr("New@x.com")})
	require.NoError(t, err)
	require.NotNil(t, fresh)

	identity, err := f.svc.Authenticate(fresh.Token)
	require.NoError(t, err)
	assert.Equal(t, "new@x.com", identity.Email)

	_, err = f.svc.Login(ctx, "new@x.com", "Secret1")
	assert.NoError(t, err)
}

func TestAuthService_UpdateProfileRejections(t *testing.T) {
	f := newAuthFixture(t, AuthOptions{})
	ctx := context.Background()
	session := f.register(t, "a@x.com", "Secret1")
	f.register(t, "b@x.com", "Secret1")

	_, _, err := f.svc.UpdateProfile(ctx, session.Token, model.UpdateProfileRequest{Email: strPtr("b@x.com")})
	assert.ErrorIs(t, err, model.ErrDuplicateIdentity)

	_, _, err = f.svc.UpdateProfile(ctx, session.Token, model.UpdateProfileRequest{Email: strPtr("  ")})
	var validation *apierror.ValidationError
	assert.True(t, errors.As(err, &validation))

	_, _, err = f.svc.UpdateProfile(ctx, "", model.UpdateProfileRequest{Bio: strPtr("x")})
	assert.ErrorIs(t, err, model.ErrNoSession)
}

func TestAuthService_UpdateProfilePassword(t *testing.T) {
	f := newAuthFixture(t, AuthOptions{})
	ctx := context.Background()
	session := f.register(t, "a@x.com", "Secret1")

	_, _, err := f.svc.UpdateProfile(ctx, session.Token, model.UpdateProfileRequest{Password: strPtr("Changed1")})
	require.NoError(t, err)

	_, err = f.svc.Login(ctx, "a@x.com", "Changed1")
	assert.NoError(t, err)
}

func TestAuthService_Me(t *testing.T) {
	f := newAuthFixture(t, AuthOptions{})
	session := f.register(t, "a@x.com", "Secret1")

	acct, err := f.svc.Me(context.Background(), session.Token)
	require.NoError(t, err)
	assert.Equal(t, "a@x.com", acct.Email)
}

func TestAuthService_FederatedLogin(t *testing.T) {
	f := newAuthFixture(t, AuthOptions{})
	ctx := context.Background()
	f.register(t, "a@x.com", "Secret1")
	f.nextEvent(t)

	assertion := model.Assertion{Subject: "sub-1", Email: "a@x.com", Name: "Alice", EmailVerified: true}

	first, err := f.svc.FederatedLogin(ctx, assertion)
	require.NoError(t, err)
	assert.Equal(t, event.TypeFederatedLinked, f.nextEvent(t).Type)

	second, err := f.svc.FederatedLogin(ctx, assertion)
	require.NoError(t, err)
	assert.Equal(t, event.TypeFederatedMatched, f.nextEvent(t).Type)
	assert.Equal(t, first.Account.ID, second.Account.ID)

	// The password path survives linking.
	_, err = f.svc.Login(ctx, "a@x.com", "Secret1")
	assert.NoError(t, err)
}
