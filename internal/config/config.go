package config

import (
	"os"
	"strconv"
	"strings"
	"time"
)

// Lock strategies for the booking coordinator's conflict serialisation.
const (
	LockStrategySerializable = "serializable"
	LockStrategyAdvisory     = "advisory"
)

// Config holds application configuration
type Config struct {
	Port          string
	Env           string
	LogLevel      string
	DatabaseURL   string
	PublicBaseURL string

	// Scheduling
	DefaultSlotMinutes  int
	BookingLockStrategy string
	BookingMaxRetries   int

	// Deadlines propagated into request contexts.
	VoiceRequestDeadline time.Duration
	StaffRequestDeadline time.Duration
	WebhookDeadline      time.Duration

	// Voice webhook throttle (per caller IP).
	VoiceRateLimitPerMinute int
	VoiceRateLimitBurst     int

	// Staff surface auth (signature verification only; roles are upstream).
	StaffJWTSecret string

	CORSAllowedOrigins []string

	// Redis (practice directory cache)
	RedisAddr     string
	RedisPassword string
	RedisTLS      bool

	// AWS / event delivery
	AWSRegion                 string
	AWSAccessKeyID            string
	AWSSecretAccessKey        string
	AWSEndpointOverride       string
	AppointmentEventsQueueURL string
}

// Load reads configuration from environment variables
func Load() *Config {
	return &Config{
		Port:          getEnv("PORT", "8080"),
		Env:           getEnv("ENV", "development"),
		LogLevel:      getEnv("LOG_LEVEL", "info"),
		DatabaseURL:   getEnv("DATABASE_URL", ""),
		PublicBaseURL: getEnv("PUBLIC_BASE_URL", ""),

		DefaultSlotMinutes:  getEnvAsInt("DEFAULT_SLOT_MINUTES", 30),
		BookingLockStrategy: normalizeLockStrategy(getEnv("BOOKING_LOCK_STRATEGY", LockStrategySerializable)),
		BookingMaxRetries:   getEnvAsInt("BOOKING_MAX_RETRIES", 3),

		VoiceRequestDeadline: time.Duration(getEnvAsInt("VOICE_REQUEST_DEADLINE_MS", 8000)) * time.Millisecond,
		StaffRequestDeadline: time.Duration(getEnvAsInt("STAFF_REQUEST_DEADLINE_MS", 30000)) * time.Millisecond,
		WebhookDeadline:      time.Duration(getEnvAsInt("WEBHOOK_DEADLINE_MS", 10000)) * time.Millisecond,

		VoiceRateLimitPerMinute: getEnvAsInt("VOICE_RATE_LIMIT_PER_MINUTE", 120),
		VoiceRateLimitBurst:     getEnvAsInt("VOICE_RATE_LIMIT_BURST", 30),

		StaffJWTSecret: getEnv("STAFF_JWT_SECRET", ""),

		CORSAllowedOrigins: splitAndTrim(getEnv("CORS_ALLOWED_ORIGINS", "")),

		RedisAddr:     getEnv("REDIS_ADDR", "redis:6379"),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),
		RedisTLS:      getEnvAsBool("REDIS_TLS", false),

		AWSRegion:                 getEnv("AWS_REGION", "us-east-1"),
		AWSAccessKeyID:            getEnv("AWS_ACCESS_KEY_ID", ""),
		AWSSecretAccessKey:        getEnv("AWS_SECRET_ACCESS_KEY", ""),
		AWSEndpointOverride:       getEnv("AWS_ENDPOINT_OVERRIDE", ""),
		AppointmentEventsQueueURL: getEnv("APPOINTMENT_EVENTS_QUEUE_URL", ""),
	}
}

func normalizeLockStrategy(raw string) string {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case LockStrategyAdvisory:
		return LockStrategyAdvisory
	default:
		return LockStrategySerializable
	}
}

func splitAndTrim(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return nil
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if trimmed := strings.TrimSpace(p); trimmed != "" {
			out = append(out, trimmed)
		}
	}
	return out
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
