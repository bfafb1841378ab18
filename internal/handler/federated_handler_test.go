package handler

import (
	"context"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"identity-service/internal/model"
	"identity-service/internal/service"
)

type mockProvider struct {
	mock.Mock
}

func (m *mockProvider) VerifyIDToken(ctx context.Context, rawIDToken string) (model.Assertion, error) {
	args := m.Called(ctx, rawIDToken)
	return args.Get(0).(model.Assertion), args.Error(1)
}

func (m *mockProvider) AuthCodeURL(state string) string {
	return "https://accounts.example.com/auth?state=" + url.QueryEscape(state)
}

func (m *mockProvider) Exchange(ctx context.Context, code string) (model.Assertion, error) {
	args := m.Called(ctx, code)
	return args.Get(0).(model.Assertion), args.Error(1)
}

var googleAlice = model.Assertion{
	Subject:       "sub-alice",
	Email:         "alice@x.com",
	Name:          "Alice",
	Picture:       "https://img/a.png",
	EmailVerified: true,
}

func TestFederatedToken(t *testing.T) {
	env := newTestEnv(t, service.AuthOptions{})
	provider := new(mockProvider)
	provider.On("VerifyIDToken", mock.Anything, "id-token").Return(googleAlice, nil)
	provider.On("VerifyIDToken", mock.Anything, "forged").Return(model.Assertion{}, model.ErrInvalidAssertion)
	h := NewFederatedHandler(env.svc, provider, Cookies{Secure: true}, "http://localhost:5173")

	rec := httptest.NewRecorder()
	h.Token(rec, jsonRequest(t, http.MethodPost, "/auth/google/token", map[string]string{"credential": "id-token"}))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	body := decodeBody[model.FederatedLoginResponse](t, rec)
	assert.Equal(t, "Google login successful", body.Message)
	assert.Equal(t, "alice@x.com", body.User.Email)
	assert.Equal(t, "user", body.User.Role)
	assert.NotEmpty(t, sessionFrom(t, rec).Value)

	rec = httptest.NewRecorder()
	h.Token(rec, jsonRequest(t, http.MethodPost, "/auth/google/token", map[string]string{"credential": "forged"}))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "INVALID_ASSERTION", decodeBody[model.ErrorResponse](t, rec).Code)

	provider.AssertExpectations(t)
}

func TestFederatedTokenLinksPasswordAccount(t *testing.T) {
	env := newTestEnv(t, service.AuthOptions{})
	env.register(t, "alice@x.com", "Secret1")
	provider := new(mockProvider)
	provider.On("VerifyIDToken", mock.Anything, "id-token").Return(googleAlice, nil)
	h := NewFederatedHandler(env.svc, provider, Cookies{Secure: true}, "http://localhost:5173")

	before, err := env.accounts.FindByEmail(context.Background(), "alice@x.com")
	require.NoError(t, err)

	rec := httptest.NewRecorder()
	h.Token(rec, jsonRequest(t, http.MethodPost, "/auth/google/token", map[string]string{"credential": "id-token"}))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, before.ID, decodeBody[model.FederatedLoginResponse](t, rec).User.ID)
}

func TestFederatedRedirectFlow(t *testing.T) {
	env := newTestEnv(t, service.AuthOptions{})
	provider := new(mockProvider)
	provider.On("Exchange", mock.Anything, "auth-code").Return(googleAlice, nil)
	h := NewFederatedHandler(env.svc, provider, Cookies{Secure: true}, "http://localhost:5173")

	rec := httptest.NewRecorder()
	h.Login(rec, httptest.NewRequest(http.MethodGet, "/auth/google/login", nil))
	require.Equal(t, http.StatusTemporaryRedirect, rec.Code)

	var state *http.Cookie
	for _, c := range rec.Result().Cookies() {
		if c.Name == oauthStateName {
			state = c
		}
	}
	require.NotNil(t, state)
	assert.Contains(t, rec.Header().Get("Location"), url.QueryEscape(state.Value))

	// Mismatched state is rejected before any exchange.
	req := httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=auth-code&state=other", nil)
	req.AddCookie(state)
	rec = httptest.NewRecorder()
	h.Callback(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	provider.AssertNotCalled(t, "Exchange", mock.Anything, mock.Anything)

	req = httptest.NewRequest(http.MethodGet, "/auth/google/callback?code=auth-code&state="+url.QueryEscape(state.Value), nil)
	req.AddCookie(state)
	rec = httptest.NewRecorder()
	h.Callback(rec, req)
	require.Equal(t, http.StatusTemporaryRedirect, rec.Code, rec.Body.String())
	assert.Equal(t, "http://localhost:5173/user/dashboard", rec.Header().Get("Location"))
	assert.NotEmpty(t, sessionFrom(t, rec).Value)
}

func TestFederatedAuthURL(t *testing.T) {
	env := newTestEnv(t, service.AuthOptions{})
	h := NewFederatedHandler(env.svc, new(mockProvider), Cookies{Secure: true}, "http://localhost:5173")

	rec := httptest.NewRecorder()
	h.AuthURL(rec, httptest.NewRequest(http.MethodGet, "/auth/google/url", nil))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, decodeBody[model.AuthURLResponse](t, rec).AuthURL, "https://accounts.example.com/auth?state=")
}

func TestFederatedDisabled(t *testing.T) {
	env := newTestEnv(t, service.AuthOptions{})
	h := NewFederatedHandler(env.svc, nil, Cookies{Secure: true}, "http://localhost:5173")

	rec := httptest.NewRecorder()
	h.Login(rec, httptest.NewRequest(http.MethodGet, "/auth/google/login", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "FEDERATION_DISABLED", decodeBody[model.ErrorResponse](t, rec).Code)
}
