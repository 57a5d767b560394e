package config

import (
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// Config holds application configuration
type Config struct {
	ServerPort   string
	DatabaseType string
	DatabaseURL  string
	DatabasePath string
	LogMode      string
	AppBaseURL   string

	DBMaxOpenConns    int
	DBConnMaxLifetime time.Duration

	JWTSecret     string
	TokenDuration time.Duration

	// RedisAddr enables the Redis webhook deduper when set; otherwise an
	// in-process deduper is used.
	RedisAddr     string
	RedisPassword string

	PendingPurchaseTTL time.Duration
	SweepSchedule      string

	Payment PaymentConfig
	Email   EmailConfig
}

// PaymentConfig configures the card payment processor client
type PaymentConfig struct {
	TestMode      bool
	TestSecretKey string
	LiveSecretKey string
	WebhookSecret string
	BaseURL       string
	Timeout       time.Duration
	MaxRetries    int
}

// SecretKey returns the key for the configured mode
func (p PaymentConfig) SecretKey() string {
	if p.TestMode {
		return p.TestSecretKey
	}
	return p.LiveSecretKey
}

// EmailConfig configures outgoing mail. An empty FromEmail disables sending.
type EmailConfig struct {
	AWSRegion string
	FromEmail string
	FromName  string
}

// Load reads configuration from environment variables with sensible defaults.
// A .env file in the working directory is loaded first when present.
func Load() *Config {
	_ = godotenv.Load()

	return &Config{
		ServerPort:   getEnv("PORT", "8080"),
		DatabaseType: getEnv("DB_TYPE", "sqlite"),
		DatabaseURL:  getEnv("DATABASE_URL", ""),
		DatabasePath: getEnv("DB_PATH", "./coursegate.db"),
		LogMode:      getEnv("LOG_MODE", "dev"),
		AppBaseURL:   strings.TrimSuffix(getEnv("APP_BASE_URL", "http://localhost:8080"), "/"),

		DBMaxOpenConns:    getInt("DB_MAX_OPEN_CONNS", 25),
		DBConnMaxLifetime: getDuration("DB_CONN_MAX_LIFETIME", 5*time.Minute),

		JWTSecret:     getEnv("JWT_SECRET", ""),
		TokenDuration: getDuration("TOKEN_DURATION", 24*time.Hour),

		RedisAddr:     getEnv("REDIS_ADDR", ""),
		RedisPassword: getEnv("REDIS_PASSWORD", ""),

		PendingPurchaseTTL: getDuration("PENDING_PURCHASE_TTL", 24*time.Hour),
		SweepSchedule:      getEnv("SWEEP_SCHEDULE", "@every 1h"),

		Payment: PaymentConfig{
			TestMode:      getBool("PAYMENT_TEST_MODE", true),
			TestSecretKey: getEnv("PAYMENT_TEST_SECRET_KEY", ""),
			LiveSecretKey: getEnv("PAYMENT_LIVE_SECRET_KEY", ""),
			WebhookSecret: getEnv("PAYMENT_WEBHOOK_SECRET", ""),
			BaseURL:       getEnv("PAYMENT_API_BASE_URL", "https://api.stripe.com"),
			Timeout:       getDuration("PAYMENT_TIMEOUT", 30*time.Second),
			MaxRetries:    getInt("PAYMENT_MAX_RETRIES", 2),
		},

		Email: EmailConfig{
			AWSRegion: getEnv("AWS_REGION", "us-east-1"),
			FromEmail: getEnv("EMAIL_FROM", ""),
			FromName:  getEnv("EMAIL_FROM_NAME", "CourseGate"),
		},
	}
}

// getEnv reads an environment variable or returns a default value
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

func getBool(key string, defaultValue bool) bool {
	if value, err := strconv.ParseBool(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

func getInt(key string, defaultValue int) int {
	if value, err := strconv.Atoi(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}

func getDuration(key string, defaultValue time.Duration) time.Duration {
	if value, err := time.ParseDuration(os.Getenv(key)); err == nil {
		return value
	}
	return defaultValue
}
