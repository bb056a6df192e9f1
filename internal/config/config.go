package config

import (
	"log"
	"os"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds gateway configuration
type Config struct {
	Server    ServerConfig
	API       APIConfig
	Redis     RedisConfig
	Cookies   CookieConfig
	Session   SessionConfig
	Tenant    TenantConfig
	OIDC      OIDCConfig
	RateLimit RateLimitConfig
}

type ServerConfig struct {
	Port         string
	Host         string
	Environment  string
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// APIConfig points at the platform backend that owns all business logic
// and persistence. The gateway never talks to a database directly.
type APIConfig struct {
	BaseURL string
	Timeout time.Duration
}

type RedisConfig struct {
	Host     string
	Port     string
	Password string
	DB       int
}

type CookieConfig struct {
	Domain string
	Secure bool
}

type SessionConfig struct {
	// TTL bounds the server-side session record; refresh tokens issued by the
	// backend are expected to live at most this long.
	TTL time.Duration
}

type TenantConfig struct {
	// CacheTTL bounds the domain->tenant cache entries.
	CacheTTL time.Duration
}

// OIDCConfig enables verified-token mode when the backend publishes discovery.
// When empty, the gateway falls back to payload-only expiry parsing.
type OIDCConfig struct {
	Issuer   string
	ClientID string
}

type RateLimitConfig struct {
	Enabled       bool
	UseRedis      bool
	RPS           float64
	Burst         int
	WindowSeconds int
}

// LoadConfig loads configuration from environment variables and .env file
func LoadConfig() (*Config, error) {
	_ = godotenv.Load()

	viper.AutomaticEnv()

	viper.SetDefault("SERVER_PORT", "3000")
	viper.SetDefault("SERVER_HOST", "0.0.0.0")
	viper.SetDefault("SERVER_ENVIRONMENT", "development")
	viper.SetDefault("API_TIMEOUT", 30)
	viper.SetDefault("SESSION_TTL", 10080)
	viper.SetDefault("TENANT_CACHE_TTL", 300)
	viper.SetDefault("RATE_LIMIT_RPS", 10.0)
	viper.SetDefault("RATE_LIMIT_BURST", 20)
	viper.SetDefault("RATE_LIMIT_WINDOW_SECONDS", 1)

	cfg := &Config{
		Server: ServerConfig{
			Port:         viper.GetString("SERVER_PORT"),
			Host:         viper.GetString("SERVER_HOST"),
			Environment:  viper.GetString("SERVER_ENVIRONMENT"),
			ReadTimeout:  30 * time.Second,
			WriteTimeout: 30 * time.Second,
		},
		API: APIConfig{
			BaseURL: getEnvOrPanic("API_BASE_URL"),
			Timeout: time.Duration(viper.GetInt("API_TIMEOUT")) * time.Second,
		},
		Redis: RedisConfig{
			Host:     viper.GetString("REDIS_HOST"),
			Port:     viper.GetString("REDIS_PORT"),
			Password: os.Getenv("REDIS_PASSWORD"),
			DB:       0,
		},
		Cookies: CookieConfig{
			Domain: viper.GetString("COOKIE_DOMAIN"),
			Secure: viper.GetString("SERVER_ENVIRONMENT") == "production",
		},
		Session: SessionConfig{
			TTL: time.Duration(viper.GetInt("SESSION_TTL")) * time.Minute,
		},
		Tenant: TenantConfig{
			CacheTTL: time.Duration(viper.GetInt("TENANT_CACHE_TTL")) * time.Second,
		},
		OIDC: OIDCConfig{
			Issuer:   viper.GetString("OIDC_ISSUER"),
			ClientID: viper.GetString("OIDC_CLIENT_ID"),
		},
		RateLimit: RateLimitConfig{
			Enabled:       viper.GetBool("RATE_LIMIT_ENABLED"),
			UseRedis:      viper.GetBool("RATE_LIMIT_USE_REDIS"),
			RPS:           viper.GetFloat64("RATE_LIMIT_RPS"),
			Burst:         viper.GetInt("RATE_LIMIT_BURST"),
			WindowSeconds: viper.GetInt("RATE_LIMIT_WINDOW_SECONDS"),
		},
	}

	// Basic validation
	if cfg.Cookies.Secure && cfg.Cookies.Domain == "" {
		log.Println("WARNING: COOKIE_DOMAIN is not set; secure cookies will be host-only")
	}

	return cfg, nil
}

// IsProduction reports whether the gateway runs with production hardening
// (secure cookie prefix, strict cookie flags).
func (c *Config) IsProduction() bool {
	return c.Server.Environment == "production"
}

func getEnvOrPanic(key string) string {
	v := os.Getenv(key)
	if v == "" {
		log.Fatalf("environment variable %s is required", key)
	}
	return v
}
