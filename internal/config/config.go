package config

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	Env       string
	HTTPAddr  string
	PublicURL string

	CORSOrigins []string

	DatabaseDriver string
	DatabaseDSN    string

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	JWTSecret   string
	JWTIssuer   string
	JWTAudience string

	AccessTokenTTL  time.Duration
	RefreshTokenTTL time.Duration

	MaxFailedAttempts int
	LockoutDuration   time.Duration

	// RevocationFailOpen controls the ledger lookup policy when the store is
	// unreachable: true allows the request through (availability over the
	// marginal defense-in-depth gain). The lockout guard has its own policy
	// and fails closed regardless.
	RevocationFailOpen bool

	AuthGoogleEnabled   bool
	GoogleClientID      string
	GoogleClientSecret  string
	GoogleRedirectURL   string
	OAuthStateSecret    string

	APIRateLimitRPM   int
	AuthRateLimitRPM  int
	RateLimitFailOpen bool

	BlacklistCleanupInterval time.Duration

	OTELServiceName           string
	OTELEnvironment           string
	OTELExporterOTLPEndpoint  string
	OTELExporterOTLPInsecure  bool
	OTELMetricsEnabled        bool
	OTELTracesEnabled         bool
	OTELLogsEnabled           bool
	OTELMetricsExportInterval time.Duration

	ShutdownTimeout time.Duration

	// DevVerboseErrors includes internal error text in 500 responses. Only
	// honored outside production.
	DevVerboseErrors bool
}

func (c *Config) IsProduction() bool { return c.Env == "production" }

func Load(ctx context.Context) (*Config, error) {
	cfg := &Config{
		Env:       getEnv("APP_ENV", "development"),
		HTTPAddr:  getEnv("HTTP_ADDR", ":8080"),
		PublicURL: getEnv("PUBLIC_URL", "http://localhost:8080"),

		CORSOrigins: splitAndTrim(getEnv("CORS_ORIGINS", "http://localhost:5173")),

		DatabaseDriver: getEnv("DATABASE_DRIVER", "sqlite"),
		DatabaseDSN:    getEnv("DATABASE_DSN", "file:gamelog.db?cache=shared"),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisDB:       getInt("REDIS_DB", 0),

		JWTSecret:   getEnv("JWT_SECRET", ""),
		JWTIssuer:   getEnv("JWT_ISSUER", "gamelog-backend"),
		JWTAudience: getEnv("JWT_AUDIENCE", "gamelog-api"),

		AccessTokenTTL:  getDuration("ACCESS_TOKEN_TTL", 15*time.Minute),
		RefreshTokenTTL: getDuration("REFRESH_TOKEN_TTL", 7*24*time.Hour),

		MaxFailedAttempts: getInt("MAX_FAILED_LOGIN_ATTEMPTS", 5),
		LockoutDuration:   getDuration("ACCOUNT_LOCKOUT_DURATION", 30*time.Minute),

		RevocationFailOpen: getBool("REVOCATION_FAIL_OPEN", true),

		AuthGoogleEnabled:  getBool("AUTH_GOOGLE_ENABLED", false),
		GoogleClientID:     getEnv("GOOGLE_CLIENT_ID", ""),
		GoogleClientSecret: getEnv("GOOGLE_CLIENT_SECRET", ""),
		GoogleRedirectURL:  getEnv("GOOGLE_REDIRECT_URL", ""),
		OAuthStateSecret:   getEnv("OAUTH_STATE_SECRET", ""),

		APIRateLimitRPM:   getInt("API_RATE_LIMIT_RPM", 300),
		AuthRateLimitRPM:  getInt("AUTH_RATE_LIMIT_RPM", 20),
		RateLimitFailOpen: getBool("RATE_LIMIT_FAIL_OPEN", false),

		BlacklistCleanupInterval: getDuration("BLACKLIST_CLEANUP_INTERVAL", time.Hour),

		OTELServiceName:           getEnv("OTEL_SERVICE_NAME", "gamelog-backend"),
		OTELEnvironment:           getEnv("OTEL_ENVIRONMENT", getEnv("APP_ENV", "development")),
		OTELExporterOTLPEndpoint:  getEnv("OTEL_EXPORTER_OTLP_ENDPOINT", "localhost:4317"),
		OTELExporterOTLPInsecure:  getBool("OTEL_EXPORTER_OTLP_INSECURE", true),
		OTELMetricsEnabled:        getBool("OTEL_METRICS_ENABLED", false),
		OTELTracesEnabled:         getBool("OTEL_TRACES_ENABLED", false),
		OTELLogsEnabled:           getBool("OTEL_LOGS_ENABLED", false),
		OTELMetricsExportInterval: getDuration("OTEL_METRICS_EXPORT_INTERVAL", 15*time.Second),

		ShutdownTimeout: getDuration("SHUTDOWN_TIMEOUT", 15*time.Second),

		DevVerboseErrors: getBool("DEV_VERBOSE_ERRORS", false),
	}

	if err := cfg.Validate(); err != nil {
		err = fmt.Errorf("validate config: %w", err)
		recordConfigValidationEvent(ctx, cfg.Env, "failure", classifyConfigLoadError(err))
		return nil, err
	}
	recordConfigValidationEvent(ctx, cfg.Env, "success", "none")
	return cfg, nil
}

func (c *Config) Validate() error {
	var errs []error
	if len(c.JWTSecret) < 32 {
		errs = append(errs, errors.New("JWT_SECRET must be at least 32 characters"))
	}
	if c.DatabaseDriver != "sqlite" && c.DatabaseDriver != "postgres" {
		errs = append(errs, fmt.Errorf("unsupported DATABASE_DRIVER %q", c.DatabaseDriver))
	}
	if c.DatabaseDSN == "" {
		errs = append(errs, errors.New("DATABASE_DSN is required"))
	}
	if c.AccessTokenTTL <= 0 || c.RefreshTokenTTL <= c.AccessTokenTTL {
		errs = append(errs, errors.New("refresh token TTL must exceed access token TTL"))
	}
	if c.MaxFailedAttempts < 1 {
		errs = append(errs, errors.New("MAX_FAILED_LOGIN_ATTEMPTS must be at least 1"))
	}
	if c.LockoutDuration <= 0 {
		errs = append(errs, errors.New("ACCOUNT_LOCKOUT_DURATION must be positive"))
	}
	if c.AuthGoogleEnabled {
		if c.GoogleClientID == "" || c.GoogleClientSecret == "" || c.GoogleRedirectURL == "" {
			errs = append(errs, errors.New("google oauth enabled but client id/secret/redirect url missing"))
		}
		if len(c.OAuthStateSecret) < 32 {
			errs = append(errs, errors.New("OAUTH_STATE_SECRET must be at least 32 characters when google oauth is enabled"))
		}
	}
	return errors.Join(errs...)
}

func getEnv(key, fallback string) string {
	if v, ok := os.LookupEnv(key); ok && strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return fallback
}

func getInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return n
}

func getBool(key string, fallback bool) bool {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	b, err := strconv.ParseBool(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return b
}

func getDuration(key string, fallback time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	d, err := time.ParseDuration(strings.TrimSpace(v))
	if err != nil {
		return fallback
	}
	return d
}

func splitAndTrim(s string) []string {
	parts := strings.Split(s, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
