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

	// Safety analyzer
	AnalyzerSLA         time.Duration
	TriggerTableVersion string

	// Nurse-team notification webhook
	NurseWebhookURL   string
	NotifyMaxAttempts int
	NotifyRetryDelay  time.Duration
	DashboardBaseURL  string

	// Content search collaborator
	ContentSearchURL     string
	TrustedContentDomain string

	// Escalation callback estimation
	BusinessHoursStart int
	BusinessHoursEnd   int

	// Conversation state
	ConversationTTL time.Duration
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

		AnalyzerSLA:         getEnvAsDuration("ANALYZER_SLA", 500*time.Millisecond),
		TriggerTableVersion: getEnv("TRIGGER_TABLE_VERSION", ""),

		NurseWebhookURL:   getEnv("NURSE_WEBHOOK_URL", ""),
		NotifyMaxAttempts: getEnvAsInt("NOTIFY_MAX_ATTEMPTS", 3),
		NotifyRetryDelay:  getEnvAsDuration("NOTIFY_RETRY_DELAY", 1*time.Second),
		DashboardBaseURL:  getEnv("DASHBOARD_BASE_URL", "https://dashboard.eveappeal.org.uk"),

		ContentSearchURL:     getEnv("CONTENT_SEARCH_URL", ""),
		TrustedContentDomain: strings.ToLower(strings.TrimSpace(getEnv("TRUSTED_CONTENT_DOMAIN", "eveappeal.org.uk"))),

		BusinessHoursStart: getEnvAsInt("BUSINESS_HOURS_START", 9),
		BusinessHoursEnd:   getEnvAsInt("BUSINESS_HOURS_END", 17),

		ConversationTTL: getEnvAsDuration("CONVERSATION_TTL", 24*time.Hour),
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
