package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	DatabaseURL   string
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// Risk pipeline thresholds
	NotifyMinSeverity   string
	EscalateMinSeverity string
	RuleSetVersion      string

	// Escalation fallback recipient when no counselor resolves
	SupervisorRecipientID string

	// Counselor assignment cache
	CounselorCacheTTL time.Duration

	// Ingest worker pool
	UseMemoryQueue    bool
	IngestQueueURL    string
	IngestWorkerCount int
	IngestBuffer      int

	// Report generation
	ReportTimeout time.Duration

	// HTTP surface
	CORSAllowedOrigins []string

	// AWS (SQS queue, SES email channel)
	AWSRegion           string
	AWSAccessKeyID      string
	AWSSecretAccessKey  string
	AWSEndpointOverride string

	// Email notification channel
	CounselorContactsJSON string
	EmailProvider         string
	SESFromEmail          string
	SESFromName           string
	SendGridAPIKey        string
	SendGridFromEmail     string
	SendGridFromName      string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		NotifyMinSeverity:   strings.ToLower(getEnv("NOTIFY_MIN_SEVERITY", "medium")),
		EscalateMinSeverity: strings.ToLower(getEnv("ESCALATE_MIN_SEVERITY", "high")),
		RuleSetVersion:      getEnv("RISK_RULESET_VERSION", ""),

		SupervisorRecipientID: getEnv("SUPERVISOR_RECIPIENT_ID", "supervisor-queue"),

		CounselorCacheTTL: getEnvAsDuration("COUNSELOR_CACHE_TTL", 5*time.Minute),

		UseMemoryQueue:    getEnvAsBool("USE_MEMORY_QUEUE", true),
		IngestQueueURL:    getEnv("INGEST_QUEUE_URL", ""),
		IngestWorkerCount: getEnvAsInt("INGEST_WORKER_COUNT", 2),
		IngestBuffer:      getEnvAsInt("INGEST_BUFFER", 128),

		ReportTimeout: getEnvAsDuration("REPORT_TIMEOUT", 30*time.Second),

		CORSAllowedOrigins: getEnvAsList("CORS_ALLOWED_ORIGINS"),

		AWSRegion:           getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:      getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:  getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride: getEnv("AWS_ENDPOINT_OVERRIDE", ""),

		CounselorContactsJSON: getEnv("COUNSELOR_CONTACTS_JSON", ""),

		EmailProvider:     strings.ToLower(strings.TrimSpace(getEnv("EMAIL_PROVIDER", ""))),
		SESFromEmail:      getEnv("SES_FROM_EMAIL", ""),
		SESFromName:       getEnv("SES_FROM_NAME", "WizCoco Care"),
		SendGridAPIKey:    getEnv("SENDGRID_API_KEY", ""),
		SendGridFromEmail: getEnv("SENDGRID_FROM_EMAIL", ""),
		SendGridFromName:  getEnv("SENDGRID_FROM_NAME", "WizCoco Care"),
	}
}

// getEnv retrieves an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvAsInt retrieves an environment variable as an integer or returns a default value
func getEnvAsInt(key string, defaultValue int) int {
	valueStr := getEnv(key, "")
	if value, err := strconv.Atoi(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsBool retrieves an environment variable as a boolean or returns a default value
func getEnvAsBool(key string, defaultValue bool) bool {
	valueStr := getEnv(key, "")
	if value, err := strconv.ParseBool(valueStr); err == nil {
		return value
	}
	return defaultValue
}

// getEnvAsList splits a comma-separated environment variable, dropping
// empty entries.
func getEnvAsList(key string) []string {
	raw := getEnv(key, "")
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func getEnvAsDuration(key string, defaultValue time.Duration) time.Duration {
	valueStr := getEnv(key, "")
	if valueStr == "" {
		return defaultValue
	}
	if value, err := time.ParseDuration(valueStr); err == nil {
		return value
	}
	return defaultValue
}
