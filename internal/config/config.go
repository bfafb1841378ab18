package config

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

const (
	StoreMongo    = "mongo"
	StorePostgres = "postgres"
	StoreRedis    = "redis"
	StoreMemory   = "memory"
)

type Config struct {
	ServerPort              string
	ServerReadHeaderTimeout time.Duration
	ServerWriteTimeout      time.Duration
	ServerIdleTimeout       time.Duration
	RequestTimeout          time.Duration

	SecretKey        string
	Algorithm        string
	TokenTTL         time.Duration
	BcryptCost       int
	CookieSecure     bool
	CORSOrigins      []string
	RateLimitRPM     int
	AuthRateLimitRPM int
	// TrustedProxies lists peers, as addresses or CIDR ranges, whose
	// forwarding headers name the client.
	TrustedProxies   []string

	AccountStore      string
	MongoURI          string
	MongoDatabase     string
	AccountCollection string
	PostgresURL       string
	DBMaxConns        int32
	DBMinConns        int32

	OTPStore            string
	RedisAddr           string
	RedisUsername       string
	RedisPassword       string
	RedisDB             int
	OTPTTL              time.Duration
	OTPMaxAttempts      int
	OTPExposeInResponse bool
	ResetRequiresOTP    bool

	GoogleClientID     string
	GoogleClientSecret string
	GoogleRedirectURI  string
	GoogleJWKSURL      string
	GoogleIssuers      []string
	FrontendURL        string

	LogLevel  string
	LogFormat string
}

func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		ServerPort:              getEnv("SERVER_PORT", "8001"),
		ServerReadHeaderTimeout: getDuration("SERVER_READ_HEADER_TIMEOUT", 10*time.Second),
		ServerWriteTimeout:      getDuration("SERVER_WRITE_TIMEOUT", 30*time.Second),
		ServerIdleTimeout:       getDuration("SERVER_IDLE_TIMEOUT", 120*time.Second),
		RequestTimeout:          getDuration("REQUEST_TIMEOUT", 15*time.Second),

		SecretKey:        strings.TrimSpace(os.Getenv("SECRET_KEY")),
		Algorithm:        strings.ToUpper(getEnv("ALGORITHM", "HS256")),
		TokenTTL:         time.Duration(getInt("ACCESS_TOKEN_EXPIRE_TIME", 60)) * time.Minute,
		BcryptCost:       getInt("BCRYPT_COST", 12),
		CookieSecure:     getBool("COOKIE_SECURE", true),
		CORSOrigins:      splitCSV(getEnv("CORS_ORIGINS", "http://localhost:5173,http://localhost:8080,http://localhost:3000")),
		RateLimitRPM:     getInt("RATE_LIMIT_RPM", 300),
		AuthRateLimitRPM: getInt("AUTH_RATE_LIMIT_RPM", 30),
		TrustedProxies:   splitCSV(getEnv("TRUSTED_PROXIES", "")),

		AccountStore:      strings.ToLower(getEnv("ACCOUNT_STORE", StoreMongo)),
		MongoURI:          strings.TrimSpace(os.Getenv("DATABASE_LINK")),
		MongoDatabase:     getEnv("DATABASE_NAME", "SSRealEstate"),
		AccountCollection: getEnv("ACCOUNT_COLLECTION", "User"),
		PostgresURL:       strings.TrimSpace(os.Getenv("POSTGRES_URL")),
		DBMaxConns:        int32(getInt("DB_MAX_CONNS", 10)),
		DBMinConns:        int32(getInt("DB_MIN_CONNS", 1)),

		OTPStore:            strings.ToLower(getEnv("OTP_STORE", StoreRedis)),
		RedisAddr:           getEnv("REDIS_ADDR", "localhost:6379"),
		RedisUsername:       strings.TrimSpace(os.Getenv("REDIS_USERNAME")),
		RedisPassword:       os.Getenv("REDIS_PASSWORD"),
		RedisDB:             getInt("REDIS_DB", 0),
		OTPTTL:              getDuration("OTP_TTL", 10*time.Minute),
		OTPMaxAttempts:      getInt("OTP_MAX_ATTEMPTS", 5),
		OTPExposeInResponse: getBool("OTP_EXPOSE_IN_RESPONSE", false),
		ResetRequiresOTP:    getBool("PASSWORD_RESET_REQUIRE_OTP", true),

		GoogleClientID:     strings.TrimSpace(os.Getenv("GOOGLE_CLIENT_ID")),
		GoogleClientSecret: strings.TrimSpace(os.Getenv("GOOGLE_CLIENT_SECRET")),
		GoogleRedirectURI:  strings.TrimSpace(os.Getenv("GOOGLE_REDIRECT_URI")),
		GoogleJWKSURL:      getEnv("GOOGLE_JWKS_URL", "https://www.googleapis.com/oauth2/v3/certs"),
		GoogleIssuers:      splitCSV(getEnv("GOOGLE_ISSUERS", "accounts.google.com,https://accounts.google.com")),
		FrontendURL:        strings.TrimRight(getEnv("FRONTEND_URL", "http://localhost:5173"), "/"),

		LogLevel:  strings.ToLower(getEnv("LOG_LEVEL", "info")),
		LogFormat: strings.ToLower(getEnv("LOG_FORMAT", "pretty")),
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if strings.TrimSpace(c.SecretKey) == "" {
		return fmt.Errorf("SECRET_KEY is required")
	}

	switch c.Algorithm {
	case "HS256", "HS384", "HS512":
	default:
		return fmt.Errorf("ALGORITHM must be one of HS256, HS384, HS512, got %q", c.Algorithm)
	}

	if c.ServerPort == "" {
		return fmt.Errorf("SERVER_PORT cannot be empty")
	}

	if c.TokenTTL <= 0 {
		return fmt.Errorf("ACCESS_TOKEN_EXPIRE_TIME must be positive")
	}

	if c.RequestTimeout <= 0 {
		return fmt.Errorf("REQUEST_TIMEOUT must be positive")
	}

	if c.BcryptCost < 4 || c.BcryptCost > 31 {
		return fmt.Errorf("BCRYPT_COST must be between 4 and 31")
	}

	switch c.AccountStore {
	case StoreMongo:
		if c.MongoURI == "" {
			return fmt.Errorf("DATABASE_LINK is required when ACCOUNT_STORE=mongo")
		}
	case StorePostgres:
		if c.PostgresURL == "" {
			return fmt.Errorf("POSTGRES_URL is required when ACCOUNT_STORE=postgres")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("ACCOUNT_STORE must be mongo, postgres or memory, got %q", c.AccountStore)
	}

	switch c.OTPStore {
	case StoreRedis:
		if strings.TrimSpace(c.RedisAddr) == "" {
			return fmt.Errorf("REDIS_ADDR is required when OTP_STORE=redis")
		}
	case StoreMemory:
	default:
		return fmt.Errorf("OTP_STORE must be redis or memory, got %q", c.OTPStore)
	}

	if c.OTPTTL <= 0 {
		return fmt.Errorf("OTP_TTL must be positive")
	}

	if c.OTPMaxAttempts < 0 {
		return fmt.Errorf("OTP_MAX_ATTEMPTS cannot be negative")
	}

	for _, entry := range c.TrustedProxies {
		if _, err := netip.ParsePrefix(entry); err == nil {
			continue
		}
		if _, err := netip.ParseAddr(entry); err != nil {
			return fmt.Errorf("TRUSTED_PROXIES entry %q is not an address or CIDR range", entry)
		}
	}

	if c.GoogleClientID != "" && len(c.GoogleIssuers) == 0 {
		return fmt.Errorf("GOOGLE_ISSUERS cannot be empty when GOOGLE_CLIENT_ID is set")
	}

	return nil
}

// GoogleEnabled reports whether federated login is configured.
func (c *Config) GoogleEnabled() bool {
	return c.GoogleClientID != ""
}

func getEnv(key string, fallback string) string {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return fallback
	}

	return v
}

func getInt(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.Atoi(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getBool(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}

	return v
}

func getDuration(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}

	v, err := time.ParseDuration(raw)
	if err != nil {
		return fallback
	}

	return v
}

func splitCSV(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}

	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed == "" {
			continue
		}
		out = append(out, trimmed)
	}

	return out
}
