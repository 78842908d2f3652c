// Package config loads and validates app config from env and an optional .env file using Viper.
package config

import (
	"errors"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Store drivers selected from the DATABASE_URL scheme.
const (
	StoreDriverPostgres = "postgres"
	StoreDriverMongo    = "mongo"
)

// Config holds application configuration loaded from the environment.
type Config struct {
	// HTTPAddr is the address the HTTP API listens on (e.g. :8080).
	HTTPAddr string `mapstructure:"HTTP_ADDR"`
	// GRPCAddr is the address of the gRPC peer verification API. Empty disables it.
	GRPCAddr string `mapstructure:"GRPC_ADDR"`
	// DatabaseURL is the user store DSN. postgres:// selects Postgres, mongodb:// selects MongoDB. Required.
	DatabaseURL string `mapstructure:"DATABASE_URL"`
	// MongoDatabase is the database name used when DatabaseURL is a MongoDB URI.
	MongoDatabase string `mapstructure:"MONGO_DATABASE"`

	// AccessTokenSecret signs access tokens (HS256). Missing is reported per request, not at startup.
	AccessTokenSecret string `mapstructure:"ACCESS_TOKEN_SECRET"`
	// RefreshTokenSecret signs refresh tokens (HS256). Must differ from AccessTokenSecret in production.
	RefreshTokenSecret string `mapstructure:"REFRESH_TOKEN_SECRET"`
	// AccessTokenTTL is the access token lifetime (e.g. "15m").
	AccessTokenTTL string `mapstructure:"ACCESS_TOKEN_TTL"`
	// RefreshTokenTTL is the refresh token and cookie lifetime (e.g. "168h").
	RefreshTokenTTL string `mapstructure:"REFRESH_TOKEN_TTL"`
	// JWTIssuer is the iss claim set on and required of every token.
	JWTIssuer string `mapstructure:"JWT_ISSUER"`
	// JWTAudience is the aud claim set on and required of every token.
	JWTAudience string `mapstructure:"JWT_AUDIENCE"`
	// BcryptCost is the bcrypt cost factor (10–31); default 10.
	BcryptCost int `mapstructure:"BCRYPT_COST"`
	// MaxSessionsPerUser caps stored refresh tokens per user; oldest are dropped first. 0 means unlimited.
	MaxSessionsPerUser int `mapstructure:"MAX_SESSIONS_PER_USER"`

	// GoogleClientID is the OAuth client id used as audience when verifying Google ID tokens.
	GoogleClientID string `mapstructure:"GOOGLE_CLIENT_ID"`

	// RefreshCookieName is the name of the refresh token cookie.
	RefreshCookieName string `mapstructure:"REFRESH_COOKIE_NAME"`
	// RefreshCookiePath scopes the refresh cookie; defaults to the refresh endpoint.
	RefreshCookiePath string `mapstructure:"REFRESH_COOKIE_PATH"`

	// Env is the application environment (e.g. "development", "production"). Production enables Secure cookies.
	Env string `mapstructure:"APP_ENV"`

	// LogLevel is one of debug, info, warn, error.
	LogLevel string `mapstructure:"LOG_LEVEL"`
	// LogFormat is text or json.
	LogFormat string `mapstructure:"LOG_FORMAT"`

	// OTLPEndpoint is the OTLP gRPC collector endpoint. Empty disables export.
	OTLPEndpoint string `mapstructure:"OTEL_EXPORTER_OTLP_ENDPOINT"`
	// OTLPInsecure forces plaintext to the collector even for https endpoints.
	OTLPInsecure bool `mapstructure:"OTEL_EXPORTER_OTLP_INSECURE"`
	// ServiceName is the OTel service.name resource attribute.
	ServiceName string `mapstructure:"OTEL_SERVICE_NAME"`
}

// Load reads .env (if present), then builds and validates Config from the environment via Viper.
// Missing .env is ignored (e.g. in CI). Env vars override .env. Returns an error if required fields are invalid.
func Load() (*Config, error) {
	v := viper.New()

	v.SetConfigFile(".env")
	v.SetConfigType("env")
	_ = v.ReadInConfig() // ignore ErrConfigFileNotFound

	v.AutomaticEnv()

	v.SetDefault("HTTP_ADDR", ":8080")
	v.SetDefault("GRPC_ADDR", ":9090")
	v.SetDefault("DATABASE_URL", "")
	v.SetDefault("MONGO_DATABASE", "contentwithcoffee")
	v.SetDefault("ACCESS_TOKEN_SECRET", "")
	v.SetDefault("REFRESH_TOKEN_SECRET", "")
	v.SetDefault("ACCESS_TOKEN_TTL", "15m")
	v.SetDefault("REFRESH_TOKEN_TTL", "168h") // 7d
	v.SetDefault("JWT_ISSUER", "content-with-coffee")
	v.SetDefault("JWT_AUDIENCE", "content-with-coffee-api")
	v.SetDefault("BCRYPT_COST", 10)
	v.SetDefault("MAX_SESSIONS_PER_USER", 20)
	v.SetDefault("GOOGLE_CLIENT_ID", "")
	v.SetDefault("REFRESH_COOKIE_NAME", "refreshToken")
	v.SetDefault("REFRESH_COOKIE_PATH", "/refresh")
	v.SetDefault("APP_ENV", "development")
	v.SetDefault("LOG_LEVEL", "info")
	v.SetDefault("LOG_FORMAT", "text")
	v.SetDefault("OTEL_EXPORTER_OTLP_ENDPOINT", "")
	v.SetDefault("OTEL_EXPORTER_OTLP_INSECURE", false)
	v.SetDefault("OTEL_SERVICE_NAME", "content-with-coffee-auth")

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, err
	}

	if cfg.HTTPAddr == "" {
		return nil, errors.New("config: HTTP_ADDR must be set")
	}
	if strings.TrimSpace(cfg.DatabaseURL) == "" {
		return nil, errors.New("config: DATABASE_URL must be set")
	}
	if cfg.StoreDriver() == "" {
		return nil, errors.New("config: DATABASE_URL must be a postgres:// or mongodb:// URL")
	}

	if cfg.BcryptCost == 0 {
		cfg.BcryptCost = 10
	}
	if cfg.BcryptCost < 10 || cfg.BcryptCost > 31 {
		return nil, errors.New("config: BCRYPT_COST must be between 10 and 31")
	}
	if cfg.MaxSessionsPerUser < 0 {
		return nil, errors.New("config: MAX_SESSIONS_PER_USER must not be negative")
	}
	switch cfg.LogFormat {
	case "text", "json":
	default:
		return nil, errors.New("config: LOG_FORMAT must be text or json")
	}

	return &cfg, nil
}

// StoreDriver returns StoreDriverPostgres or StoreDriverMongo based on the DATABASE_URL scheme, or "" if unknown.
func (c *Config) StoreDriver() string {
	dsn := strings.ToLower(strings.TrimSpace(c.DatabaseURL))
	switch {
	case strings.HasPrefix(dsn, "postgres://"), strings.HasPrefix(dsn, "postgresql://"):
		return StoreDriverPostgres
	case strings.HasPrefix(dsn, "mongodb://"), strings.HasPrefix(dsn, "mongodb+srv://"):
		return StoreDriverMongo
	default:
		return ""
	}
}

// AccessTTL parses AccessTokenTTL as a time.Duration. Returns 15m if unset or invalid.
func (c *Config) AccessTTL() time.Duration {
	d, err := time.ParseDuration(c.AccessTokenTTL)
	if err != nil || d <= 0 {
		return 15 * time.Minute
	}
	return d
}

// RefreshTTL parses RefreshTokenTTL as a time.Duration. Returns 168h if unset or invalid.
func (c *Config) RefreshTTL() time.Duration {
	d, err := time.ParseDuration(c.RefreshTokenTTL)
	if err != nil || d <= 0 {
		return 168 * time.Hour
	}
	return d
}

// IsProduction reports whether APP_ENV is production.
func (c *Config) IsProduction() bool {
	return strings.EqualFold(strings.TrimSpace(c.Env), "production")
}
