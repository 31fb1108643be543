package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Config holds all application configuration.
type Config struct {
	Env      string
	HTTPAddr string
	BaseURL  string

	DBDSN          string
	JWTSecret      string
	InternalAPIKey string

	NATSURL     string
	NATSSubject string

	OTELEndpoint string

	LogLevel string

	RateLimitRPM int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	cfg := &Config{}

	cfg.Env = strings.TrimSpace(os.Getenv("RK_ENV"))
	if cfg.Env == "" {
		return nil, fmt.Errorf("RK_ENV is required")
	}
	if cfg.Env != "dev" && cfg.Env != "prod" {
		return nil, fmt.Errorf("RK_ENV must be one of: dev, prod (got: %s)", cfg.Env)
	}

	cfg.HTTPAddr = getEnvOrDefault("RK_HTTP_ADDR", ":8080")

	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(os.Getenv("RK_BASE_URL")), "/")
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("RK_BASE_URL is required")
	}

	cfg.DBDSN = strings.TrimSpace(os.Getenv("RK_DB_DSN"))
	if cfg.DBDSN == "" {
		return nil, fmt.Errorf("RK_DB_DSN is required")
	}

	cfg.JWTSecret = os.Getenv("RK_JWT_SECRET")
	if cfg.JWTSecret == "" {
		return nil, fmt.Errorf("RK_JWT_SECRET is required")
	}
	if cfg.Env == "prod" && len(cfg.JWTSecret) < 32 {
		return nil, fmt.Errorf("RK_JWT_SECRET must be at least 32 characters (currently %d)", len(cfg.JWTSecret))
	}

	cfg.InternalAPIKey = os.Getenv("RK_INTERNAL_API_KEY")
	if cfg.InternalAPIKey == "" {
		return nil, fmt.Errorf("RK_INTERNAL_API_KEY is required")
	}
	if cfg.Env == "prod" && len(cfg.InternalAPIKey) < 32 {
		return nil, fmt.Errorf("RK_INTERNAL_API_KEY must be at least 32 characters (currently %d)", len(cfg.InternalAPIKey))
	}

	// Empty NATS URL means email jobs are logged instead of published.
	cfg.NATSURL = strings.TrimSpace(os.Getenv("RK_NATS_URL"))
	cfg.NATSSubject = getEnvOrDefault("RK_NATS_SUBJECT", "rosterkit.invitations.email")

	cfg.OTELEndpoint = strings.TrimSpace(os.Getenv("RK_OTEL_ENDPOINT"))

	cfg.LogLevel = getEnvOrDefault("RK_LOG_LEVEL", "info")
	switch cfg.LogLevel {
	case "debug", "info", "warn", "error":
	default:
		return nil, fmt.Errorf("RK_LOG_LEVEL must be one of: debug, info, warn, error (got: %s)", cfg.LogLevel)
	}

	var err error
	cfg.RateLimitRPM, err = getEnvIntOrDefault("RK_RATE_LIMIT_RPM", 120)
	if err != nil {
		return nil, err
	}
	if cfg.RateLimitRPM <= 0 {
		return nil, fmt.Errorf("RK_RATE_LIMIT_RPM must be positive (got: %d)", cfg.RateLimitRPM)
	}

	return cfg, nil
}

// IsDev returns true if running in development mode.
func (c *Config) IsDev() bool {
	return c.Env == "dev"
}

// RedactedValues returns a map of config values with secrets redacted.
func (c *Config) RedactedValues() map[string]string {
	return map[string]string{
		"RK_ENV":              c.Env,
		"RK_HTTP_ADDR":        c.HTTPAddr,
		"RK_BASE_URL":         c.BaseURL,
		"RK_DB_DSN":           redactDSN(c.DBDSN),
		"RK_JWT_SECRET":       "[REDACTED]",
		"RK_INTERNAL_API_KEY": "[REDACTED]",
		"RK_NATS_URL":         c.NATSURL,
		"RK_NATS_SUBJECT":     c.NATSSubject,
		"RK_OTEL_ENDPOINT":    c.OTELEndpoint,
		"RK_LOG_LEVEL":        c.LogLevel,
		"RK_RATE_LIMIT_RPM":   fmt.Sprintf("%d", c.RateLimitRPM),
	}
}

func redactDSN(dsn string) string {
	if start := strings.Index(dsn, "://"); start != -1 {
		if end := strings.Index(dsn[start+3:], "@"); end != -1 {
			return dsn[:start+3] + "[REDACTED]" + dsn[start+3+end:]
		}
	}
	return dsn
}

func getEnvOrDefault(key, defaultValue string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue
	}
	return value
}

func getEnvIntOrDefault(key string, defaultValue int) (int, error) {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return defaultValue, nil
	}
	parsed, err := strconv.Atoi(value)
	if err != nil {
		return 0, fmt.Errorf("%s must be an integer (got: %q)", key, value)
	}
	return parsed, nil
}
