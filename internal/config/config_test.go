package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMemoryFakeDefaults(t *testing.T) {
	t.Setenv("ENV_FILE", "does-not-exist.env")
	t.Setenv("STORE_DRIVER", "memory")
	t.Setenv("PAYMENT_GATEWAY", "fake")
	t.Setenv("JWT_SECRET", "secret")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, StoreMemory, cfg.StoreDriver)
	assert.Equal(t, GatewayFake, cfg.PaymentGateway)
	assert.Equal(t, 15*time.Minute, cfg.Booking.HoldDuration)
	assert.Equal(t, 10, cfg.Booking.MaxTickets)
	assert.Equal(t, 7*24*time.Hour, cfg.Booking.WaitlistTTL)
	assert.Equal(t, []string{"EUR", "USD", "GBP", "CHF", "JPY", "CAD", "AUD"}, cfg.Booking.SupportedCurrencies)
	assert.Equal(t, 3, cfg.Email.MaxAttempts)
	assert.Equal(t, 5*time.Minute, cfg.Email.RetryBase)
	assert.Equal(t, 10, cfg.Email.BatchSize)
	assert.Equal(t, 5*time.Minute, cfg.Scheduler.CleanupInterval)
	assert.Equal(t, 2*time.Minute, cfg.Scheduler.EmailInterval)
	assert.False(t, cfg.SMTP.Configured())
}

func TestLoadRequiresDriverSettings(t *testing.T) {
	t.Setenv("ENV_FILE", "does-not-exist.env")
	t.Setenv("STORE_DRIVER", "mysql")
	t.Setenv("PAYMENT_GATEWAY", "stripe")
	t.Setenv("JWT_SECRET", "secret")
	t.Setenv("DB_USER", "")
	t.Setenv("DB_NAME", "")
	t.Setenv("STRIPE_SECRET_KEY", "")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "")

	_, err := Load()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "DB_USER")
	assert.Contains(t, err.Error(), "STRIPE_SECRET_KEY")
}

func TestLoadRejectsUnknownDriver(t *testing.T) {
	t.Setenv("ENV_FILE", "does-not-exist.env")
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("JWT_SECRET", "secret")

	_, err := Load()
	assert.ErrorContains(t, err, "STORE_DRIVER")
}

func TestLoadRateLimitConfigClampsTTL(t *testing.T) {
	t.Setenv("RATE_LIMIT_REFILL_INTERVAL", "1m")
	t.Setenv("RATE_LIMIT_TTL", "1s")

	cfg := LoadRateLimitConfig()
	assert.Equal(t, 5*time.Minute, cfg.TTL)
	assert.Equal(t, 10, cfg.Capacity)
}
