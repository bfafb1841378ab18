// Package identity adapts the Google identity provider: ID token
// verification against the published keys and the OAuth redirect flow.
// Key retrieval and signature checks are delegated to go-oidc.
package identity

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"slices"
	"strconv"
	"time"

	"github.com/coreos/go-oidc/v3/oidc"
	"golang.org/x/oauth2"

	"identity-service/internal/model"
)

const (
	DefaultJWKSURL     = "https://www.googleapis.com/oauth2/v3/certs"
	DefaultUserInfoURL = "https://openidconnect.googleapis.com/v1/userinfo"
)

var DefaultIssuers = []string{"accounts.google.com", "https://accounts.google.com"}

// GoogleEndpoint is the OAuth 2.0 endpoint pair for Google accounts.
var GoogleEndpoint = oauth2.Endpoint{
	AuthURL:   "https://accounts.google.com/o/oauth2/v2/auth",
	TokenURL:  "https://oauth2.googleapis.com/token",
	AuthStyle: oauth2.AuthStyleInParams,
}

type GoogleConfig struct {
	ClientID     string
	ClientSecret string
	RedirectURI  string
	JWKSURL      string
	UserInfoURL  string
	Issuers      []string
	Endpoint     oauth2.Endpoint
}

type GoogleProvider struct {
	cfg        GoogleConfig
	oauth      *oauth2.Config
	verifier   *oidc.IDTokenVerifier
	httpClient *http.Client
}

func NewGoogleProvider(cfg GoogleConfig, httpClient *http.Client) *GoogleProvider {
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 10 * time.Second}
	}
	if cfg.JWKSURL == "" {
		cfg.JWKSURL = DefaultJWKSURL
	}
	if cfg.UserInfoURL == "" {
		cfg.UserInfoURL = DefaultUserInfoURL
	}
	if len(cfg.Issuers) == 0 {
		cfg.Issuers = DefaultIssuers
	}
	if cfg.Endpoint.TokenURL == "" {
		cfg.Endpoint = GoogleEndpoint
	}

	return &GoogleProvider{
		cfg: cfg,
		oauth: &oauth2.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			RedirectURL:  cfg.RedirectURI,
			Endpoint:     cfg.Endpoint,
			Scopes:       []string{"openid", "email", "profile"},
		},
		// Issuer is matched against cfg.Issuers after verification.
		verifier: oidc.NewVerifier("", newKeySet(cfg.JWKSURL, httpClient), &oidc.Config{
			ClientID:             cfg.ClientID,
			SupportedSigningAlgs: []string{oidc.RS256},
			SkipIssuerCheck:      true,
		}),
		httpClient: httpClient,
	}
}

// flexBool decodes email_verified, which Google sends as a bool or a string.
type flexBool bool

func (b *flexBool) UnmarshalJSON(data []byte) error {
	var v any
	if err := json.Unmarshal(data, &v); err != nil {
		return err
	}
	switch t := v.(type) {
	case bool:
		*b = flexBool(t)
	case string:
		parsed, err := strconv.ParseBool(t)
		if err != nil {
			return err
		}
		*b = flexBool(parsed)
	case nil:
		*b = false
	default:
		return fmt.Errorf("unexpected email_verified value %v", v)
	}
	return nil
}

// newKeySet caches the provider's published keys and refetches when an
// unknown kid appears. Fetches are not tied to any single request context.
func newKeySet(jwksURL string, httpClient *http.Client) *oidc.RemoteKeySet {
	return oidc.NewRemoteKeySet(oidc.ClientContext(context.Background(), httpClient), jwksURL)
}

type googleClaims struct {
	Email         string   `json:"email"`
	EmailVerified flexBool `json:"email_verified"`
	Name          string   `json:"name"`
	Picture       string   `json:"picture"`
}

// VerifyIDToken checks the signature against the published keys, then the
// audience, expiry and issuer allow-list.
func (p *GoogleProvider) VerifyIDToken(ctx context.Context, rawIDToken string) (model.Assertion, error) {
	token, err := p.verifier.Verify(ctx, rawIDToken)
	if err != nil {
		return model.Assertion{}, fmt.Errorf("%w: %v", model.ErrInvalidAssertion, err)
	}

	if !slices.Contains(p.cfg.Issuers, token.Issuer) {
		return model.Assertion{}, fmt.Errorf("%w: untrusted issuer %q", model.ErrInvalidAssertion, token.Issuer)
	}

	var claims googleClaims
	if err := token.Claims(&claims); err != nil {
		return model.Assertion{}, fmt.Errorf("%w: decode claims: %v", model.ErrInvalidAssertion, err)
	}
	if token.Subject == "" || claims.Email == "" {
		return model.Assertion{}, fmt.Errorf("%w: missing subject or email", model.ErrInvalidAssertion)
	}
	if !claims.EmailVerified {
		return model.Assertion{}, model.ErrEmailNotVerified
	}

	return model.Assertion{
		Subject:       token.Subject,
		Email:         claims.Email,
		Name:          claims.Name,
		Picture:       claims.Picture,
		EmailVerified: true,
	}, nil
}

func (p *GoogleProvider) AuthCodeURL(state string) string {
	return p.oauth.AuthCodeURL(state, oauth2.AccessTypeOnline)
}

// Exchange trades an authorization code for an assertion. The returned
// id_token is preferred; without one the userinfo endpoint is used.
func (p *GoogleProvider) Exchange(ctx context.Context, code string) (model.Assertion, error) {
	ctx = context.WithValue(ctx, oauth2.HTTPClient, p.httpClient)

	token, err := p.oauth.Exchange(ctx, code)
	if err != nil {
		return model.Assertion{}, fmt.Errorf("%w: exchange code: %v", model.ErrInvalidAssertion, err)
	}

	if rawIDToken, ok := token.Extra("id_token").(string); ok && rawIDToken != "" {
		return p.VerifyIDToken(ctx, rawIDToken)
	}

	return p.userInfo(ctx, token)
}

type userInfoResponse struct {
	Sub           string   `json:"sub"`
	Email         string   `json:"email"`
	EmailVerified flexBool `json:"email_verified"`
	Name          string   `json:"name"`
	Picture       string   `json:"picture"`
}

func (p *GoogleProvider) userInfo(ctx context.Context, token *oauth2.Token) (model.Assertion, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.cfg.UserInfoURL, nil)
	if err != nil {
		return model.Assertion{}, fmt.Errorf("build userinfo request: %w", err)
	}

	resp, err := p.oauth.Client(ctx, token).Do(req)
	if err != nil {
		return model.Assertion{}, fmt.Errorf("%w: userinfo: %v", model.ErrInvalidAssertion, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return model.Assertion{}, fmt.Errorf("%w: userinfo status %d: %s", model.ErrInvalidAssertion, resp.StatusCode, string(body))
	}

	var info userInfoResponse
	if err := json.NewDecoder(resp.Body).Decode(&info); err != nil {
		return model.Assertion{}, fmt.Errorf("%w: decode userinfo: %v", model.ErrInvalidAssertion, err)
	}

	if info.Sub == "" || info.Email == "" {
		return model.Assertion{}, fmt.Errorf("%w: userinfo missing subject or email", model.ErrInvalidAssertion)
	}
	if !info.EmailVerified {
		return model.Assertion{}, model.ErrEmailNotVerified
	}

	return model.Assertion{
		Subject:       info.Sub,
		Email:         info.Email,
		Name:          info.Name,
		Picture:       info.Picture,
		EmailVerified: true,
	}, nil
}
