package app

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"identity-service/internal/config"
	"identity-service/internal/otpstore"
	"identity-service/internal/repository"
)

func memoryConfig() *config.Config {
	return &config.Config{
		ServerPort:       "0",
		RequestTimeout:   time.Second,
		SecretKey:        "app-secret",
		Algorithm:        "HS256",
		TokenTTL:         time.Hour,
		BcryptCost:       4,
		AccountStore:     config.StoreMemory,
		OTPStore:         config.StoreMemory,
		OTPTTL:           time.Minute,
		RateLimitRPM:     100,
		AuthRateLimitRPM: 100,
	}
}

func TestOpenStoresInMemory(t *testing.T) {
	cfg := memoryConfig()

	accounts, closeAccounts, err := OpenAccountStore(context.Background(), cfg)
	require.NoError(t, err)
	defer closeAccounts()
	assert.IsType(t, &repository.MemoryAccountRepository{}, accounts)

	otps, closeOTPs, err := OpenOTPStore(context.Background(), cfg)
	require.NoError(t, err)
	defer closeOTPs()
	assert.IsType(t, &otpstore.MemoryStore{}, otps)
}

func TestOpenStoresRejectUnknownBackends(t *testing.T) {
	cfg := memoryConfig()
	cfg.AccountStore = "sqlite"
	cfg.OTPStore = "memcached"

	_, _, err := OpenAccountStore(context.Background(), cfg)
	assert.ErrorContains(t, err, "unknown account store")

	_, _, err = OpenOTPStore(context.Background(), cfg)
	assert.ErrorContains(t, err, "unknown otp store")
}

func TestBuildServesRoutes(t *testing.T) {
	application, err := Build(memoryConfig(), repository.NewMemoryAccountRepository(), otpstore.NewMemoryStore())
	require.NoError(t, err)
	defer application.Close()

	rec := httptest.NewRecorder()
	application.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"healthy"`)

	req := httptest.NewRequest(http.MethodPost, "/user", strings.NewReader(`{"email":"a@x.io","password":"Secret1"}`))
	req.Header.Set("Content-Type", "application/json")
	rec = httptest.NewRecorder()
	application.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)

	rec = httptest.NewRecorder()
	application.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/auth/google/url", nil))
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
}

func TestBuildRejectsBadAlgorithm(t *testing.T) {
	cfg := memoryConfig()
	cfg.Algorithm = "RS256"

	_, err := Build(cfg, repository.NewMemoryAccountRepository(), otpstore.NewMemoryStore())
	assert.Error(t, err)
}
