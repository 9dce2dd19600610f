// Package config provides application configuration loading.
// This is part of the platform layer and contains no business logic.
package config

import (
	"fmt"
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

// TriggerConfig provides the shared secret guarding the scheduler trigger endpoints.
type TriggerConfig interface {
	GetTriggerToken() string
}

// EmailConfig provides settings for email sending.
type EmailConfig interface {
	GetEmailProvider() string
	GetEmailFromName() string
	GetEmailFromAddress() string
	GetEmailTimeout() time.Duration
	GetSMTPHost() string
	GetSMTPPort() int
	GetSMTPUsername() string
	GetSMTPPassword() string
	GetBrevoAPIKey() string
	GetAWSRegion() string
	GetAWSAccessKeyID() string
	GetAWSSecretAccessKey() string
	GetSendGridAPIKey() string
}

// NotificationConfig provides settings for links rendered into notifications.
type NotificationConfig interface {
	GetAppBaseURL() string
	GetFallbackAdminEmail() string
}

// SLAConfig provides the claim/contact windows and the alarm ladder interval.
type SLAConfig interface {
	GetClaimWindow() time.Duration
	GetContactWindow() time.Duration
	GetAlarmInterval() time.Duration
	GetSweepBatchSize() int
}

// SchedulerConfig provides settings for the asynq scheduler and worker.
type SchedulerConfig interface {
	GetRedisURL() string
	GetRedisTLSInsecure() bool
	GetAsynqQueueName() string
	GetAsynqConcurrency() int
	GetEscalationSchedule() string
	GetContactCheckSchedule() string
	GetSchedulerMetricsAddr() string
}

// IntakeConfig provides settings for public lead capture.
type IntakeConfig interface {
	GetDefaultPhoneRegion() string
}

// =============================================================================
// Main Config Struct
// =============================================================================

// Config holds all application configuration values.
type Config struct {
	Env                  string
	HTTPAddr             string
	DatabaseURL          string
	JWTAccessSecret      string
	CORSAllowAll         bool
	CORSOrigins          []string
	CORSAllowCreds       bool
	AppBaseURL           string
	TriggerToken         string
	EmailProvider        string
	EmailFromName        string
	EmailFromAddress     string
	EmailTimeout         time.Duration
	SMTPHost             string
	SMTPPort             int
	SMTPUsername         string
	SMTPPassword         string
	BrevoAPIKey          string
	AWSRegion            string
	AWSAccessKeyID       string
	AWSSecretAccessKey   string
	SendGridAPIKey       string
	FallbackAdminEmail   string
	ClaimWindow          time.Duration
	ContactWindow        time.Duration
	AlarmInterval        time.Duration
	SweepBatchSize       int
	RedisURL             string
	RedisTLSInsecure     bool
	AsynqQueueName       string
	AsynqConcurrency     int
	EscalationSchedule   string
	ContactCheckSchedule string
	SchedulerMetricsAddr string
	DefaultPhoneRegion   string
}

// =============================================================================
// Interface Implementations
// =============================================================================

// DatabaseConfig implementation
func (c *Config) GetDatabaseURL() string { return c.DatabaseURL }

// JWTConfig implementation
func (c *Config) GetJWTAccessSecret() string { return c.JWTAccessSecret }

// HTTPConfig implementation
func (c *Config) GetHTTPAddr() string      { return c.HTTPAddr }
func (c *Config) GetCORSAllowAll() bool    { return c.CORSAllowAll }
func (c *Config) GetCORSOrigins() []string { return c.CORSOrigins }
func (c *Config) GetCORSAllowCreds() bool  { return c.CORSAllowCreds }

// TriggerConfig implementation
func (c *Config) GetTriggerToken() string { return c.TriggerToken }

// EmailConfig implementation
func (c *Config) GetEmailProvider() string         { return c.EmailProvider }
func (c *Config) GetEmailFromName() string         { return c.EmailFromName }
func (c *Config) GetEmailFromAddress() string      { return c.EmailFromAddress }
func (c *Config) GetEmailTimeout() time.Duration   { return c.EmailTimeout }
func (c *Config) GetSMTPHost() string              { return c.SMTPHost }
func (c *Config) GetSMTPPort() int                 { return c.SMTPPort }
func (c *Config) GetSMTPUsername() string          { return c.SMTPUsername }
func (c *Config) GetSMTPPassword() string          { return c.SMTPPassword }
func (c *Config) GetBrevoAPIKey() string           { return c.BrevoAPIKey }
func (c *Config) GetAWSRegion() string             { return c.AWSRegion }
func (c *Config) GetAWSAccessKeyID() string        { return c.AWSAccessKeyID }
func (c *Config) GetAWSSecretAccessKey() string    { return c.AWSSecretAccessKey }
func (c *Config) GetSendGridAPIKey() string        { return c.SendGridAPIKey }

// NotificationConfig implementation
func (c *Config) GetAppBaseURL() string         { return c.AppBaseURL }
func (c *Config) GetFallbackAdminEmail() string { return c.FallbackAdminEmail }

// SLAConfig implementation
func (c *Config) GetClaimWindow() time.Duration   { return c.ClaimWindow }
func (c *Config) GetContactWindow() time.Duration { return c.ContactWindow }
func (c *Config) GetAlarmInterval() time.Duration { return c.AlarmInterval }
func (c *Config) GetSweepBatchSize() int          { return c.SweepBatchSize }

// SchedulerConfig implementation
func (c *Config) GetRedisURL() string             { return c.RedisURL }
func (c *Config) GetRedisTLSInsecure() bool       { return c.RedisTLSInsecure }
func (c *Config) GetAsynqQueueName() string       { return c.AsynqQueueName }
func (c *Config) GetAsynqConcurrency() int        { return c.AsynqConcurrency }
func (c *Config) GetEscalationSchedule() string   { return c.EscalationSchedule }
func (c *Config) GetContactCheckSchedule() string { return c.ContactCheckSchedule }
func (c *Config) GetSchedulerMetricsAddr() string { return c.SchedulerMetricsAddr }

// IntakeConfig implementation
func (c *Config) GetDefaultPhoneRegion() string { return c.DefaultPhoneRegion }

// Email providers understood by EMAIL_PROVIDER.
const (
	EmailProviderNoop     = "noop"
	EmailProviderSMTP     = "smtp"
	EmailProviderBrevo    = "brevo"
	EmailProviderSES      = "ses"
	EmailProviderSendGrid = "sendgrid"
)

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	_ = godotenv.Load()

	corsOrigins := splitCSV(getEnv("CORS_ORIGINS", "http://localhost:4200"))
	corsAllowAll := strings.EqualFold(getEnv("CORS_ALLOW_ALL", "false"), "true")
	if containsWildcard(corsOrigins) {
		corsAllowAll = true
	}

	cfg := &Config{
		Env:                  getEnv("APP_ENV", "development"),
		HTTPAddr:             getEnv("HTTP_ADDR", ":8080"),
		DatabaseURL:          getEnv("DATABASE_URL", ""),
		JWTAccessSecret:      getEnv("JWT_ACCESS_SECRET", ""),
		CORSAllowAll:         corsAllowAll,
		CORSOrigins:          corsOrigins,
		CORSAllowCreds:       strings.EqualFold(getEnv("CORS_ALLOW_CREDENTIALS", "true"), "true"),
		AppBaseURL:           getEnv("APP_BASE_URL", "http://localhost:4200"),
		TriggerToken:         getEnv("CRM_TRIGGER_TOKEN", ""),
		EmailProvider:        strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", EmailProviderNoop))),
		EmailFromName:        getEnv("EMAIL_FROM_NAME", "Estate Portal CRM"),
		EmailFromAddress:     getEnv("EMAIL_FROM_ADDRESS", ""),
		EmailTimeout:         mustDuration(getEnv("EMAIL_TIMEOUT", "10s")),
		SMTPHost:             getEnv("SMTP_HOST", ""),
		SMTPPort:             mustInt(getEnv("SMTP_PORT", "587")),
		SMTPUsername:         getEnv("SMTP_USERNAME", ""),
		SMTPPassword:         getEnv("SMTP_PASSWORD", ""),
		BrevoAPIKey:          getEnv("BREVO_API_KEY", ""),
		AWSRegion:            getEnv("AWS_REGION", "eu-west-1"),
		AWSAccessKeyID:       getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:   getEnv("AWS_SECRET_ACCESS_KEY", ""),
		SendGridAPIKey:       getEnv("SENDGRID_API_KEY", ""),
		FallbackAdminEmail:   getEnv("CRM_FALLBACK_ADMIN_EMAIL", ""),
		ClaimWindow:          mustDuration(getEnv("CRM_CLAIM_WINDOW", "5m")),
		ContactWindow:        mustDuration(getEnv("CRM_CONTACT_WINDOW", "5m")),
		AlarmInterval:        mustDuration(getEnv("CRM_ALARM_INTERVAL", "1m")),
		SweepBatchSize:       mustInt(getEnv("CRM_SWEEP_BATCH_SIZE", "100")),
		RedisURL:             getEnv("REDIS_URL", ""),
		RedisTLSInsecure:     strings.EqualFold(getEnv("REDIS_TLS_INSECURE", "false"), "true"),
		AsynqQueueName:       getEnv("ASYNQ_QUEUE", "crm"),
		AsynqConcurrency:     mustInt(getEnv("ASYNQ_CONCURRENCY", "5")),
		EscalationSchedule:   getEnv("CRM_ESCALATION_SCHEDULE", "@every 1m"),
		ContactCheckSchedule: getEnv("CRM_CONTACT_CHECK_SCHEDULE", "@every 2m"),
		SchedulerMetricsAddr: getEnv("SCHEDULER_METRICS_ADDR", ""),
		DefaultPhoneRegion:   strings.ToUpper(getEnv("DEFAULT_PHONE_REGION", "ES")),
	}

	if err := cfg.validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func (c *Config) validate() error {
	if c.DatabaseURL == "" {
		return fmt.Errorf("DATABASE_URL is required")
	}
	if c.JWTAccessSecret == "" {
		return fmt.Errorf("JWT_ACCESS_SECRET is required")
	}
	if c.CORSAllowAll && c.CORSAllowCreds {
		return fmt.Errorf("CORS_ALLOW_CREDENTIALS cannot be true when CORS_ALLOW_ALL is true")
	}
	if c.ClaimWindow <= 0 || c.ContactWindow <= 0 || c.AlarmInterval <= 0 {
		return fmt.Errorf("CRM_CLAIM_WINDOW, CRM_CONTACT_WINDOW and CRM_ALARM_INTERVAL must be positive durations")
	}
	if c.SweepBatchSize < 1 {
		return fmt.Errorf("CRM_SWEEP_BATCH_SIZE must be positive")
	}

	switch c.EmailProvider {
	case EmailProviderNoop:
		return nil
	case EmailProviderSMTP:
		if c.SMTPHost == "" {
			return fmt.Errorf("SMTP_HOST is required when EMAIL_PROVIDER is smtp")
		}
	case EmailProviderBrevo:
		if c.BrevoAPIKey == "" {
			return fmt.Errorf("BREVO_API_KEY is required when EMAIL_PROVIDER is brevo")
		}
	case EmailProviderSES:
		if c.AWSRegion == "" {
			return fmt.Errorf("AWS_REGION is required when EMAIL_PROVIDER is ses")
		}
	case EmailProviderSendGrid:
		if c.SendGridAPIKey == "" {
			return fmt.Errorf("SENDGRID_API_KEY is required when EMAIL_PROVIDER is sendgrid")
		}
	default:
		return fmt.Errorf("unknown EMAIL_PROVIDER %q", c.EmailProvider)
	}

	if c.EmailFromAddress == "" {
		return fmt.Errorf("EMAIL_FROM_ADDRESS is required when email is enabled")
	}
	return nil
}

func getEnv(key, fallback string) string {
	if val, ok := os.LookupEnv(key); ok {
		return val
	}
	return fallback
}

func mustDuration(value string) time.Duration {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0
	}
	return d
}

func mustInt(value string) int {
	result, err := strconv.Atoi(strings.TrimSpace(value))
	if err != nil {
		return 0
	}
	return result
}

func splitCSV(value string) []string {
	parts := strings.Split(value, ",")
	results := make([]string, 0, len(parts))
	for _, part := range parts {
		trimmed := strings.TrimSpace(part)
		if trimmed != "" {
			results = append(results, trimmed)
		}
	}
	return results
}

func containsWildcard(values []string) bool {
	for _, value := range values {
		if value == "*" {
			return true
		}
	}
	return false
}
