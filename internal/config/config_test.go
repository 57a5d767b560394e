package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestLoadDefaults(t *testing.T) {
	t.Setenv("PORT", "")
	t.Setenv("DB_TYPE", "")
	t.Setenv("PAYMENT_TEST_MODE", "")
	t.Setenv("PAYMENT_TIMEOUT", "")
	t.Setenv("DB_MAX_OPEN_CONNS", "")

	cfg := Load()

	assert.Equal(t, "8080", cfg.ServerPort)
	assert.Equal(t, "sqlite", cfg.DatabaseType)
	assert.True(t, cfg.Payment.TestMode)
	assert.Equal(t, 30*time.Second, cfg.Payment.Timeout)
	assert.Equal(t, "@every 1h", cfg.SweepSchedule)
	assert.Equal(t, 25, cfg.DBMaxOpenConns)
	assert.Equal(t, 5*time.Minute, cfg.DBConnMaxLifetime)
}

func TestLoadOverrides(t *testing.T) {
	t.Setenv("PORT", "9090")
	t.Setenv("DB_TYPE", "postgres")
	t.Setenv("APP_BASE_URL", "https://learn.example.com/")
	t.Setenv("PAYMENT_TEST_MODE", "false")
	t.Setenv("PAYMENT_LIVE_SECRET_KEY", "sk_live_abc")
	t.Setenv("PAYMENT_TIMEOUT", "5s")
	t.Setenv("PENDING_PURCHASE_TTL", "90m")
	t.Setenv("PAYMENT_MAX_RETRIES", "not-a-number")

	cfg := Load()

	assert.Equal(t, "9090", cfg.ServerPort)
	assert.Equal(t, "postgres", cfg.DatabaseType)
	assert.Equal(t, "https://learn.example.com", cfg.AppBaseURL)
	assert.False(t, cfg.Payment.TestMode)
	assert.Equal(t, "sk_live_abc", cfg.Payment.SecretKey())
	assert.Equal(t, 5*time.Second, cfg.Payment.Timeout)
	assert.Equal(t, 90*time.Minute, cfg.PendingPurchaseTTL)
	assert.Equal(t, 2, cfg.Payment.MaxRetries)
}

func TestPaymentSecretKeyByMode(t *testing.T) {
	p := PaymentConfig{TestSecretKey: "sk_test_1", LiveSecretKey: "sk_live_1"}

	p.TestMode = true
	assert.Equal(t, "sk_test_1", p.SecretKey())

	p.TestMode = false
	assert.Equal(t, "sk_live_1", p.SecretKey())
}
