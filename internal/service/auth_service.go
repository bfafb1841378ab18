package service

import (
	"context"
	"crypto/rand"
	"crypto/subtle"
	"errors"
	"fmt"
	"math/big"
	"time"

	"identity-service/internal/event"
	"identity-service/internal/metrics"
	"identity-service/internal/model"
	"identity-service/internal/otpstore"
	"identity-service/pkg/apierror"
)

// SessionTTL is the lifetime of tokens minted by login and federated login.
const SessionTTL = time.Hour

const defaultOTPTTL = 600 * time.Second

const defaultMaxOTPAttempts = 5

// AccountStore is the persistence surface the auth flows depend on.
type AccountStore interface {
	FindByEmail(ctx context.Context, email string) (model.Account, error)
	FindByFederatedID(ctx context.Context, federatedID string) (model.Account, error)
	Create(ctx context.Context, a *model.Account) error
	Update(ctx context.Context, id string, patch model.AccountPatch) error
	Ping(ctx context.Context) error
}

type AuthOptions struct {
	RegisterTTL      time.Duration
	OTPTTL           time.Duration
	ResetRequiresOTP bool
	// MaxOTPAttempts is the number of mismatches after which the live code
	// is discarded.
	MaxOTPAttempts int
}

// AuthService orchestrates the session flows. It is the only component that
// reads or writes accounts.
type AuthService struct {
	accounts   AccountStore
	otps       otpstore.Store
	hasher     *PasswordHasher
	tokens     *TokenCodec
	federation *FederationResolver
	bus        event.Bus
	opts       AuthOptions
	observer   TokenObserver
	newCode    func() (string, error)
}

// TokenObserver is told the result of every session token verification.
type TokenObserver interface {
	RecordTokenVerification(result string)
}

func NewAuthService(
	accounts AccountStore,
	otps otpstore.Store,
	hasher *PasswordHasher,
	tokens *TokenCodec,
	bus event.Bus,
	opts AuthOptions,
) *AuthService {
	if opts.RegisterTTL <= 0 {
		opts.RegisterTTL = SessionTTL
	}
	if opts.OTPTTL <= 0 {
		opts.OTPTTL = defaultOTPTTL
	}
	if opts.MaxOTPAttempts <= 0 {
		opts.MaxOTPAttempts = defaultMaxOTPAttempts
	}

	return &AuthService{
		accounts:   accounts,
		otps:       otps,
		hasher:     hasher,
		tokens:     tokens,
		federation: NewFederationResolver(accounts),
		bus:        bus,
		opts:       opts,
		newCode:    generateOTP,
	}
}

func (s *AuthService) Register(ctx context.Context, req model.RegisterRequest) (model.Session, error) {
	email := model.NormalizeEmail(req.Email)

	_, err := s.accounts.FindByEmail(ctx, email)
	if err == nil {
		return model.Session{}, model.ErrDuplicateIdentity
	}
	if !errors.Is(err, model.ErrAccountNotFound) {
		return model.Session{}, err
	}

	hash, err := s.hasher.Hash(req.Password)
	if err != nil {
		return model.Session{}, fmt.Errorf("hash password: %w", err)
	}

	acct := model.Account{
		Email:        email,
		PasswordHash: hash,
		Role:         model.RoleUser,
		Name:         req.Name,
		Phone:        req.Phone.String(),
		Location:     req.Location,
		Bio:          req.Bio,
	}
	if err := s.accounts.Create(ctx, &acct); err != nil {
		return model.Session{}, err
	}

	session, err := s.issue(acct, s.opts.RegisterTTL)
	if err != nil {
		return model.Session{}, err
	}

	s.publish(event.TypeRegistered, acct.Email, nil)
	return session, nil
}

// Login reports ErrInvalidCredentials for unknown emails, wrong passwords and
// federation-only accounts alike.
func (s *AuthService) Login(ctx context.Context, email string, password string) (model.Session, error) {
	acct, err := s.accounts.FindByEmail(ctx, email)
	if errors.Is(err, model.ErrAccountNotFound) {
		return model.Session{}, model.ErrInvalidCredentials
	}
	if err != nil {
		return model.Session{}, err
	}

	if !s.hasher.Verify(password, acct.PasswordHash) {
		return model.Session{}, model.ErrInvalidCredentials
	}

	session, err := s.issue(acct, SessionTTL)
	if err != nil {
		return model.Session{}, err
	}

	s.publish(event.TypeLogin, acct.Email, nil)
	return session, nil
}

// Logout only needs a cookie to be present. Tokens are stateless, so the
// caller discards the cookie.
func (s *AuthService) Logout(cookie string) error {
	if cookie == "" {
		return model.ErrNoSession
	}
	s.publish(event.TypeLogout, "", nil)
	return nil
}

// SetTokenObserver installs o. It must be called before serving requests.
func (s *AuthService) SetTokenObserver(o TokenObserver) {
	s.observer = o
}

func (s *AuthService) Authenticate(cookie string) (model.Identity, error) {
	if cookie == "" {
		s.observe(metrics.VerificationMissing)
		return model.Identity{}, model.ErrNoSession
	}

	identity, err := s.tokens.Verify(cookie)
	switch {
	case err == nil:
		s.observe(metrics.VerificationValid)
	case errors.Is(err, model.ErrTokenExpired):
		s.observe(metrics.VerificationExpired)
	default:
		s.observe(metrics.VerificationInvalid)
	}
	return identity, err
}

func (s *AuthService) observe(result string) {
	if s.observer != nil {
		s.observer.RecordTokenVerification(result)
	}
}

func (s *AuthService) Me(ctx context.Context, cookie string) (model.Account, error) {
	_, acct, err := s.sessionAccount(ctx, cookie)
	return acct, err
}

func (s *AuthService) ChangePassword(ctx context.Context, cookie string, oldPassword string, newPassword string) error {
	_, acct, err := s.sessionAccount(ctx, cookie)
	if err != nil {
		return err
	}

	if !s.hasher.Verify(oldPassword, acct.PasswordHash) {
		return model.ErrInvalidCredentials
	}

	if err := s.setPassword(ctx, acct, newPassword); err != nil {
		return err
	}

	s.publish(event.TypePasswordChanged, acct.Email, nil)
	return nil
}

// ResetPassword sets a new password for an email. With ResetRequiresOTP the
// one-shot grant left by VerifyOTP is consumed first.
func (s *AuthService) ResetPassword(ctx context.Context, email string, newPassword string) error {
	acct, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		return err
	}

	if s.opts.ResetRequiresOTP {
		removed, err := s.otps.Delete(ctx, otpstore.ResetGrantKey(acct.Email))
		if err != nil {
			return err
		}
		if !removed {
			return model.ErrResetNotAuthorized
		}
	}

	if err := s.setPassword(ctx, acct, newPassword); err != nil {
		return err
	}

	s.publish(event.TypePasswordReset, acct.Email, nil)
	return nil
}

// RequestOTP stores a fresh code for the account, replacing any live one,
// and returns it for out-of-band delivery.
func (s *AuthService) RequestOTP(ctx context.Context, email string) (string, error) {
	acct, err := s.accounts.FindByEmail(ctx, email)
	if err != nil {
		return "", err
	}

	code, err := s.newCode()
	if err != nil {
		return "", fmt.Errorf("generate otp: %w", err)
	}

	if err := s.otps.Put(ctx, otpstore.CodeKey(acct.Email), code, s.opts.OTPTTL); err != nil {
		return "", err
	}
	if _, err := s.otps.Delete(ctx, otpstore.AttemptsKey(acct.Email)); err != nil {
		return "", err
	}

	s.publish(event.TypeOTPRequested, acct.Email, nil)
	return code, nil
}

func (s *AuthService) VerifyOTP(ctx context.Context, email string, code string) error {
	email = model.NormalizeEmail(email)
	key := otpstore.CodeKey(email)

	stored, err := s.otps.Get(ctx, key)
	if errors.Is(err, otpstore.ErrNotFound) {
		return model.ErrOtpInvalidOrExpired
	}
	if err != nil {
		return err
	}

	if subtle.ConstantTimeCompare([]byte(stored), []byte(code)) != 1 {
		return s.recordOTPMismatch(ctx, email)
	}

	removed, err := s.otps.Delete(ctx, key)
	if err != nil {
		return err
	}
	if !removed {
		// Another request consumed the code first.
		return model.ErrOtpInvalidOrExpired
	}
	if _, err := s.otps.Delete(ctx, otpstore.AttemptsKey(email)); err != nil {
		return err
	}

	if s.opts.ResetRequiresOTP {
		if err := s.otps.Put(ctx, otpstore.ResetGrantKey(email), "1", s.opts.OTPTTL); err != nil {
			return err
		}
	}

	s.publish(event.TypeOTPVerified, email, nil)
	return nil
}

// recordOTPMismatch counts a failed guess against the live code and burns the
// code once the limit is reached.
func (s *AuthService) recordOTPMismatch(ctx context.Context, email string) error {
	attempts, err := s.otps.Incr(ctx, otpstore.AttemptsKey(email), s.opts.OTPTTL)
	if err != nil {
		return err
	}
	if attempts < int64(s.opts.MaxOTPAttempts) {
		return model.ErrOtpMismatch
	}

	if _, err := s.otps.Delete(ctx, otpstore.CodeKey(email)); err != nil {
		return err
	}
	if _, err := s.otps.Delete(ctx, otpstore.AttemptsKey(email)); err != nil {
		return err
	}
	return model.ErrOtpInvalidOrExpired
}

// UpdateProfile applies the supplied fields. A new session is returned when
// the email changes so the cookie keeps naming the account.
func (s *AuthService) UpdateProfile(ctx context.Context, cookie string, req model.UpdateProfileRequest) (model.Account, *model.Session, error) {
	_, acct, err := s.sessionAccount(ctx, cookie)
	if err != nil {
		return model.Account{}, nil, err
	}

	req.Normalize()
	if req.IsEmpty() {
		return model.Account{}, nil, apierror.Validation("No valid fields to update")
	}

	patch := model.AccountPatch{
		Name:     req.Name,
		Location: req.Location,
		Bio:      req.Bio,
	}
	if req.Phone != nil {
		phone := req.Phone.String()
		patch.Phone = &phone
	}

	emailChanged := req.Email != nil && *req.Email != acct.Email
	if emailChanged {
		owner, err := s.accounts.FindByEmail(ctx, *req.Email)
		switch {
		case err == nil && owner.ID != acct.ID:
			return model.Account{}, nil, model.ErrDuplicateIdentity
		case err != nil && !errors.Is(err, model.ErrAccountNotFound):
			return model.Account{}, nil, err
		}
		patch.Email = req.Email
	}

	if req.Password != nil {
		hash, err := s.hasher.Hash(*req.Password)
		if err != nil {
			return model.Account{}, nil, fmt.Errorf("hash password: %w", err)
		}
		patch.PasswordHash = &hash
	}

	if patch.IsEmpty() {
		return acct, nil, nil
	}

	if err := s.accounts.Update(ctx, acct.ID, patch); err != nil {
		return model.Account{}, nil, err
	}
	updated := patch.Apply(acct)

	var session *model.Session
	if emailChanged {
		fresh, err := s.issue(updated, SessionTTL)
		if err != nil {
			return model.Account{}, nil, err
		}
		session = &fresh
	}

	s.publish(event.TypeProfileUpdated, updated.Email, nil)
	return updated, session, nil
}

// FederatedLogin resolves a verified assertion to an account and mints a
// one-hour session for it.
func (s *AuthService) FederatedLogin(ctx context.Context, assertion model.Assertion) (model.Session, error) {
	acct, outcome, err := s.federation.Resolve(ctx, assertion)
	if err != nil {
		return model.Session{}, err
	}

	session, err := s.issue(acct, SessionTTL)
	if err != nil {
		return model.Session{}, err
	}

	switch outcome {
	case OutcomeCreated:
		s.publish(event.TypeFederatedCreated, acct.Email, nil)
	case OutcomeLinked:
		s.publish(event.TypeFederatedLinked, acct.Email, nil)
	default:
		s.publish(event.TypeFederatedMatched, acct.Email, nil)
	}
	return session, nil
}

// Ping checks the account and OTP stores.
func (s *AuthService) Ping(ctx context.Context) (accountsErr error, otpErr error) {
	return s.accounts.Ping(ctx), s.otps.Ping(ctx)
}

func (s *AuthService) sessionAccount(ctx context.Context, cookie string) (model.Identity, model.Account, error) {
	identity, err := s.Authenticate(cookie)
	if err != nil {
		return model.Identity{}, model.Account{}, err
	}

	acct, err := s.accounts.FindByEmail(ctx, identity.Email)
	if err != nil {
		return model.Identity{}, model.Account{}, err
	}
	return identity, acct, nil
}

func (s *AuthService) setPassword(ctx context.Context, acct model.Account, password string) error {
	hash, err := s.hasher.Hash(password)
	if err != nil {
		return fmt.Errorf("hash password: %w", err)
	}
	return s.accounts.Update(ctx, acct.ID, model.AccountPatch{PasswordHash: &hash})
}

func (s *AuthService) issue(acct model.Account, ttl time.Duration) (model.Session, error) {
	token, err := s.tokens.Issue(sessionClaims(acct), ttl)
	if err != nil {
		return model.Session{}, fmt.Errorf("issue session token: %w", err)
	}
	return model.Session{Token: token, Account: acct}, nil
}

func (s *AuthService) publish(t event.Type, actor string, payload any) {
	if s.bus == nil {
		return
	}
	s.bus.Publish(event.New(t, actor, payload))
}

// sessionClaims is the account snapshot embedded in a token. The password
// hash is never included.
func sessionClaims(a model.Account) map[string]any {
	claims := map[string]any{
		"id":    a.ID,
		"email": a.Email,
		"role":  a.Role,
	}
	if a.Name != "" {
		claims["name"] = a.Name
	}
	if a.Picture != "" {
		claims["picture"] = a.Picture
	}
	return claims
}

var otpRange = big.NewInt(900000)

// generateOTP returns a uniformly random code in [100000, 999999].
func generateOTP() (string, error) {
	n, err := rand.Int(rand.Reader, otpRange)
	if err != nil {
		return "", err
	}
	return fmt.Sprintf("%06d", n.Int64()+100000), nil
}
