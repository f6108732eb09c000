package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Database
	DatabaseURL string

	// Auth0
	Auth0Domain       string
	Auth0ClientID     string
	Auth0ClientSecret string
	Auth0Audience     string
	Auth0RedirectURL  string

	// Session
	SessionMaxAge int

	// Stripe Identity
	StripeAPIKey           string
	StripeWebhookSecret    string
	StripeWebhookTolerance time.Duration
	StripeTimeout          time.Duration
	StripeRequireSelfie    bool
	StripeRequireIDNumber  bool

	// JWKS
	JWKSTimeout  time.Duration
	JWKSCacheTTL time.Duration

	// Rate Limit
	RateLimitGeneral     int
	RateLimitVerifyStart int

	// Server
	ServerPort string
	BaseURL    string

	// Cookie
	CookieSecure bool
	CookieDomain string

	// CORS
	CORSAllowedOrigin string
}

// Load は環境変数からConfigを読み込む。
// 必須環境変数が未設定の場合はエラーを返す。
func Load() (*Config, error) {
	cfg := &Config{}

	// Required fields
	var missing []string

	cfg.DatabaseURL = os.Getenv("DATABASE_URL")
	if cfg.DatabaseURL == "" {
		missing = append(missing, "DATABASE_URL")
	}

	cfg.Auth0Domain = os.Getenv("AUTH0_DOMAIN")
	if cfg.Auth0Domain == "" {
		missing = append(missing, "AUTH0_DOMAIN")
	}

	cfg.Auth0ClientID = os.Getenv("AUTH0_CLIENT_ID")
	if cfg.Auth0ClientID == "" {
		missing = append(missing, "AUTH0_CLIENT_ID")
	}

	cfg.Auth0ClientSecret = os.Getenv("AUTH0_CLIENT_SECRET")
	if cfg.Auth0ClientSecret == "" {
		missing = append(missing, "AUTH0_CLIENT_SECRET")
	}

	cfg.Auth0RedirectURL = os.Getenv("AUTH0_REDIRECT_URL")
	if cfg.Auth0RedirectURL == "" {
		missing = append(missing, "AUTH0_REDIRECT_URL")
	}

	cfg.StripeAPIKey = os.Getenv("STRIPE_API_KEY")
	if cfg.StripeAPIKey == "" {
		missing = append(missing, "STRIPE_API_KEY")
	}

	cfg.StripeWebhookSecret = os.Getenv("STRIPE_WEBHOOK_SECRET")
	if cfg.StripeWebhookSecret == "" {
		missing = append(missing, "STRIPE_WEBHOOK_SECRET")
	}

	cfg.BaseURL = os.Getenv("BASE_URL")
	if cfg.BaseURL == "" {
		missing = append(missing, "BASE_URL")
	}

	if len(missing) > 0 {
		return nil, fmt.Errorf("required environment variables are not set: %v", missing)
	}

	// Optional fields with defaults
	cfg.Auth0Audience = getEnvString("AUTH0_AUDIENCE", "")
	cfg.SessionMaxAge = getEnvInt("SESSION_MAX_AGE", 86400)
	cfg.StripeWebhookTolerance = getEnvDuration("STRIPE_WEBHOOK_TOLERANCE", 5*time.Minute)
	cfg.StripeTimeout = getEnvDuration("STRIPE_TIMEOUT", 5*time.Second)
	cfg.StripeRequireSelfie = getEnvBool("STRIPE_REQUIRE_SELFIE", false)
	cfg.StripeRequireIDNumber = getEnvBool("STRIPE_REQUIRE_ID_NUMBER", false)
	cfg.JWKSTimeout = getEnvDuration("JWKS_TIMEOUT", 5*time.Second)
	cfg.JWKSCacheTTL = getEnvDuration("JWKS_CACHE_TTL", 10*time.Minute)
	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitVerifyStart = getEnvInt("RATE_LIMIT_VERIFY_START", 10)
	cfg.ServerPort = getEnvString("SERVER_PORT", "8080")
	cfg.CookieSecure = strings.HasPrefix(cfg.BaseURL, "https://")
	cfg.CookieDomain = getEnvString("COOKIE_DOMAIN", "")
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "http://localhost:3000")

	return cfg, nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvBool(key string, defaultVal bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return defaultVal
	}
	return b
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}
