// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// =============================================================================
// Module-Specific Config Interfaces (Principle of Least Privilege)
// =============================================================================

// DatabaseConfig provides database connection settings.
type DatabaseConfig interface {
	GetDatabaseURL() string
}

// JWTConfig provides JWT validation settings for middleware.
type JWTConfig interface {
	GetJWTAccessSecret() string
}

// HTTPConfig provides settings for the HTTP server.
type HTTPConfig interface {
	GetHTTPAddr() string
	GetCORSAllowAll() bool
	GetCORSOrigins() []string
	GetCORSAllowCreds() bool
}

// SchedulerConfig provides settings for the asynq scheduler and worker.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
}

// EmailConfig provides settings for email sending.
type EmailConfig interface {
	GetEmailEnabled() bool
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetEmailFromName() string
	GetEmailFromAddress() string
}

// NotificationConfig provides settings for notification links.
type NotificationConfig interface {
	GetAppBaseURL() string
}

// RoutingConfig provides settings for the lead routing engine.
type RoutingConfig interface {
	// GetDefaultMatchType returns "all" or "any"; applied when a rule does not
	// declare how its conditions combine.
	GetDefaultMatchType() string
	// GetCancelOnReroute reports whether re-routing a lead cancels pending
	// executions scheduled by a previous action plan.
	GetCancelOnReroute() bool
	GetClaimSweepInterval() time.Duration
	GetExecutionDispatchInterval() time.Duration
	GetExecutionDispatchBatch() int
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                       string
	HTTPAddr                  string
	DatabaseURL               string
	JWTAccessSecret           string
	CORSAllowAll              bool
	CORSOrigins               []string
	CORSAllowCreds            bool
	RedisURL                  string
	RedisTLSInsecure          bool
	AsynqQueueName            string
	AsynqConcurrency          int
	EmailEnabled              bool
	SMTPHost                  string
	SMTPPort                  int
	SMTPUsername              string
	SMTPPassword              string
	EmailFromName             string
	EmailFromAddress          string
	AppBaseURL                string
	RoutingDefaultMatchType   string
	RoutingCancelOnReroute    bool
	ClaimSweepInterval        time.Duration
	ExecutionDispatchInterval time.Duration
	ExecutionDispatchBatch    int
}

// Load reads configuration from the environment, with .env as a convenience
// for local development.
func Load() (*Config, error) {
	_ = godotenv.Load()

	cfg := &Config{
		Env:                       getEnv("ENV", "development"),
		HTTPAddr:                  getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:               getEnv("DATABASE_URL", ""),
		JWTAccessSecret:           getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:              getBoolEnv("CORS_ALLOW_ALL", false),
		CORSOrigins:               getListEnv("CORS_ORIGINS"),
		CORSAllowCreds:            getBoolEnv("CORS_ALLOW_CREDENTIALS", true),
		RedisURL:                  getEnv("REDIS_URL", ""),
		RedisTLSInsecure:          getBoolEnv("REDIS_TLS_INSECURE", false),
		AsynqQueueName:            getEnv("ASYNQ_QUEUE", "default"),
		AsynqConcurrency:          getIntEnv("ASYNQ_CONCURRENCY", 10),
		EmailEnabled:              getBoolEnv("EMAIL_ENABLED", false),
		SMTPHost:                  getEnv("SMTP_HOST", ""),
		SMTPPort:                  getIntEnv("SMTP_PORT", 587),
		SMTPUsername:              getEnv("SMTP_USERNAME", ""),
		SMTPPassword:              getEnv("SMTP_PASSWORD", ""),
		EmailFromName:             getEnv("EMAIL_FROM_NAME", "Realty CRM"),
		EmailFromAddress:          getEnv("EMAIL_FROM_ADDRESS", ""),
		AppBaseURL:                getEnv("APP_BASE_URL", "http://localhost:3000"),
		RoutingDefaultMatchType:   strings.ToLower(getEnv("ROUTING_DEFAULT_MATCH_TYPE", "all")),
		RoutingCancelOnReroute:    getBoolEnv("ROUTING_CANCEL_ON_REROUTE", false),
		ClaimSweepInterval:        getDurationEnv("CLAIM_SWEEP_INTERVAL", time.Minute),
		ExecutionDispatchInterval: getDurationEnv("EXECUTION_DISPATCH_INTERVAL", 30*time.Second),
		ExecutionDispatchBatch:    getIntEnv("EXECUTION_DISPATCH_BATCH", 100),
	}

	if cfg.RoutingDefaultMatchType != "all" && cfg.RoutingDefaultMatchType != "any" {
		cfg.RoutingDefaultMatchType = "all"
	}

	return cfg, nil
}

// =============================================================================
// Interface implementations
// =============================================================================

func (c *Config) GetDatabaseURL() string    { return c.DatabaseURL }
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

func (c *Config) GetRedisURL() string      { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int  { return c.AsynqConcurrency }

func (c *Config) GetEmailEnabled() bool      { return c.EmailEnabled }
func (c *Config) GetSMTPHost() string        { return c.SMTPHost }
func (c *Config) GetSMTPPort() int           { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string    { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string    { return c.SMTPPassword }
func (c *Config) GetEmailFromName() string   { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string { return c.EmailFromAddress }

func (c *Config) GetAppBaseURL() string { return c.AppBaseURL }

func (c *Config) GetDefaultMatchType() string { return c.RoutingDefaultMatchType }
func (c *Config) GetCancelOnReroute() bool    { return c.RoutingCancelOnReroute }
func (c *Config) GetClaimSweepInterval() time.Duration {
	return c.ClaimSweepInterval
}
func (c *Config) GetExecutionDispatchInterval() time.Duration {
	return c.ExecutionDispatchInterval
}
func (c *Config) GetExecutionDispatchBatch() int { return c.ExecutionDispatchBatch }

// =============================================================================
// Env helpers
// =============================================================================

func getEnv(key, fallback string) string {
	value := strings.TrimSpace(os.Getenv(key))
	if value == "" {
		return fallback
	}
	return value
}

func getBoolEnv(key string, fallback bool) bool {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.ParseBool(raw)
	if err != nil {
		return fallback
	}
	return parsed
}

func getIntEnv(key string, fallback int) int {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getDurationEnv(key string, fallback time.Duration) time.Duration {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return fallback
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil || parsed <= 0 {
		return fallback
	}
	return parsed
}

func getListEnv(key string) []string {
	raw := strings.TrimSpace(os.Getenv(key))
	if raw == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	values := make([]string, 0, len(parts))
	for _, part := range parts {
		if trimmed := strings.TrimSpace(part); trimmed != "" {
			values = append(values, trimmed)
		}
	}
	return values
}
