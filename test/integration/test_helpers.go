//go:build integration

package integration

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/cookiejar"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"identity-service/internal/app"
	"identity-service/internal/config"
	"identity-service/internal/otpstore"
	"identity-service/internal/repository"
	"identity-service/internal/service"
)

// client is a browser-like HTTP client: it keeps the session cookie between
// requests the way a frontend would.
type client struct {
	t      *testing.T
	http   *http.Client
	server *httptest.Server
}

func testConfig() *config.Config {
	return &config.Config{
		ServerPort:          "0",
		RequestTimeout:      5 * time.Second,
		SecretKey:           "integration-secret",
		Algorithm:           "HS256",
		TokenTTL:            time.Hour,
		BcryptCost:          4,
		CookieSecure:        false,
		RateLimitRPM:        1000,
		AuthRateLimitRPM:    1000,
		AccountStore:        config.StoreMemory,
		OTPStore:            config.StoreMemory,
		OTPTTL:              10 * time.Minute,
		OTPExposeInResponse: true,
		ResetRequiresOTP:    true,
		FrontendURL:         "http://localhost:5173",
		LogLevel:            "error",
	}
}

func newServer(t *testing.T, cfg *config.Config, accounts service.AccountStore, otps otpstore.Store) *httptest.Server {
	t.Helper()

	if accounts == nil {
		accounts = repository.NewMemoryAccountRepository()
	}
	if otps == nil {
		otps = otpstore.NewMemoryStore()
	}

	application, err := app.Build(cfg, accounts, otps)
	require.NoError(t, err)
	t.Cleanup(application.Close)

	server := httptest.NewServer(application.Handler())
	t.Cleanup(server.Close)
	return server
}

func newClient(t *testing.T, server *httptest.Server) *client {
	t.Helper()

	jar, err := cookiejar.New(nil)
	require.NoError(t, err)

	return &client{
		t:      t,
		http:   &http.Client{Jar: jar, Timeout: 10 * time.Second},
		server: server,
	}
}

func (c *client) do(method string, path string, body any) (int, map[string]any) {
	c.t.Helper()

	var payload bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&payload).Encode(body))
	}

	req, err := http.NewRequest(method, c.server.URL+path, &payload)
	require.NoError(c.t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.http.Do(req)
	require.NoError(c.t, err)
	c.t.Cleanup(func() { _ = resp.Body.Close() })

	var parsed map[string]any
	if resp.Header.Get("Content-Type") == "application/json" {
		require.NoError(c.t, json.NewDecoder(resp.Body).Decode(&parsed))
	}
	return resp.StatusCode, parsed
}

func (c *client) mustDo(method string, path string, body any, wantStatus int) map[string]any {
	c.t.Helper()

	status, parsed := c.do(method, path, body)
	require.Equal(c.t, wantStatus, status, "%s %s: %v", method, path, parsed)
	return parsed
}
