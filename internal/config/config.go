// Package config provides environment configuration for the API server.
package config

import (
	"os"
	"strconv"
	"time"
)

// Config holds all configuration for the application.
type Config struct {
	// Server settings
	ServerPort         string
	ServerReadTimeout  time.Duration
	ServerWriteTimeout time.Duration

	// Database settings
	DatabaseURL string

	// NATS settings (optional; empty URL disables the event stream)
	NATSURL      string
	NATSCAFile   string
	NATSCertFile string
	NATSKeyFile  string
	NATSToken    string

	// JWT settings
	JWTSecret string

	// WhatsApp provider settings
	WhatsAppAPIBase     string
	WhatsAppAccessToken string
	WhatsAppVerifyToken string
	WhatsAppAdminNumber string

	// Assistant settings
	OpenAIAPIKey      string
	AssistantID       string
	RunPollInterval   time.Duration
	RunTimeout        time.Duration
	TimestampSkewMax  time.Duration
	ActionsConfigPath string

	// Dedup cache
	DedupCapacity   int
	DedupMaxAge     time.Duration
	DedupSweepEvery time.Duration

	// Rate limiting
	RateLimitRequests int
	RateLimitWindow   time.Duration

	// Logging
	LogLevel string

	// Tracing
	TracingEndpoint string
	TracingEnabled  bool
}

// Load reads configuration from environment variables.
func Load() *Config {
	return &Config{
		// Server
		ServerPort:         getEnv("PORT", "8080"),
		ServerReadTimeout:  getDurationEnv("SERVER_READ_TIMEOUT", 30*time.Second),
		ServerWriteTimeout: getDurationEnv("SERVER_WRITE_TIMEOUT", 330*time.Second),

		// Database
		DatabaseURL: getEnv("DATABASE_URL", "postgres://localhost:5432/whatsapp_platform"),

		// NATS
		NATSURL:      getEnv("NATS_URL", ""),
		NATSCAFile:   getEnv("NATS_CA_FILE", ""),
		NATSCertFile: getEnv("NATS_CERT_FILE", ""),
		NATSKeyFile:  getEnv("NATS_KEY_FILE", ""),
		NATSToken:    getEnv("NATS_TOKEN", ""),

		// JWT
		JWTSecret: getEnv("JWT_SECRET", "development-secret-change-in-production"),

		// WhatsApp
		WhatsAppAPIBase:     getEnv("WHATSAPP_API_BASE", "https://graph.facebook.com/v24.0"),
		WhatsAppAccessToken: getEnv("WHATSAPP_ACCESS_TOKEN", ""),
		WhatsAppVerifyToken: getEnv("WHATSAPP_VERIFY_TOKEN", ""),
		WhatsAppAdminNumber: getEnv("WHATSAPP_ADMIN_NUMBER", ""),

		// Assistant
		OpenAIAPIKey:      getEnv("OPENAI_API_KEY", ""),
		AssistantID:       getEnv("WHATSAPP_ASSISTANT_ID", ""),
		RunPollInterval:   getDurationEnv("ASSISTANT_POLL_INTERVAL", time.Second),
		RunTimeout:        getDurationEnv("ASSISTANT_RUN_TIMEOUT", 300*time.Second),
		TimestampSkewMax:  getDurationEnv("WEBHOOK_TIMESTAMP_SKEW_MAX", 24*time.Hour),
		ActionsConfigPath: getEnv("ACTIONS_CONFIG_PATH", ""),

		// Dedup cache
		DedupCapacity:   getIntEnv("DEDUP_CAPACITY", 1000),
		DedupMaxAge:     getDurationEnv("DEDUP_MAX_AGE", 30*time.Minute),
		DedupSweepEvery: getDurationEnv("DEDUP_SWEEP_INTERVAL", 5*time.Minute),

		// Rate limiting
		RateLimitRequests: getIntEnv("RATE_LIMIT_REQUESTS", 60),
		RateLimitWindow:   getDurationEnv("RATE_LIMIT_WINDOW", time.Minute),

		// Logging
		LogLevel: getEnv("LOG_LEVEL", "info"),

		// Tracing
		TracingEndpoint: getEnv("TRACING_ENDPOINT", "localhost:4318"),
		TracingEnabled:  getBoolEnv("TRACING_ENABLED", false),
	}
}

func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getIntEnv(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolEnv(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationEnv(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}
