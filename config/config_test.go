package config

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadConfigDefaults(t *testing.T) {
	t.Setenv("JWT_SECRET", "jwt-secret")
	t.Setenv("LEDGER_SECRET", "")
	t.Setenv("DEMO_MODE", "Memory")
	t.Setenv("CORS_ORIGINS", "https://a.example, https://b.example ,")
	t.Setenv("SETTLEMENT_MAX_ATTEMPTS", "not-a-number")

	cfg, err := LoadConfig()
	require.NoError(t, err)

	assert.Equal(t, "jwt-secret", cfg.LedgerSecret)
	assert.Equal(t, DemoModeMemory, cfg.DemoMode)
	assert.Equal(t, []string{"https://a.example", "https://b.example"}, cfg.CORSOrigins)
	assert.Equal(t, 3, cfg.SettlementMaxAttempts)
	assert.Equal(t, "1", cfg.MinPaymentAmount)
	assert.Equal(t, "UTC", cfg.LeaderboardTZ)
	assert.Equal(t, "json", cfg.LogFormat)
}

func TestLoadConfigRejectsUnknownDemoMode(t *testing.T) {
	t.Setenv("DEMO_MODE", "mongo")

	_, err := LoadConfig()
	assert.Error(t, err)
}

func TestRedisEnabled(t *testing.T) {
	cfg := &Config{RedisAddr: "localhost", RedisPort: "6379"}
	assert.True(t, cfg.RedisEnabled())
	assert.Equal(t, "localhost:6379", cfg.RedisFullAddr())

	assert.False(t, (&Config{}).RedisEnabled())
}

func TestLoadConfigRequiresJWTSecret(t *testing.T) {
	t.Setenv("JWT_SECRET", "")
	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_123")
	t.Setenv("DEMO_MODE", "")

	_, err := LoadConfig()
	assert.Error(t, err)

	t.Setenv("DEMO_MODE", "sqlite")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.NotEmpty(t, cfg.JWTSecret)
}

func TestLoadConfigRequiresStripeOutsideDemoMode(t *testing.T) {
	t.Setenv("JWT_SECRET", "jwt-secret")
	t.Setenv("DEMO_MODE", "")
	t.Setenv("STRIPE_SECRET_KEY", "")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "")

	_, err := LoadConfig()
	assert.ErrorContains(t, err, "STRIPE_SECRET_KEY")

	t.Setenv("STRIPE_SECRET_KEY", "sk_test_123")
	_, err = LoadConfig()
	assert.ErrorContains(t, err, "STRIPE_WEBHOOK_SECRET")

	t.Setenv("STRIPE_WEBHOOK_SECRET", "whsec_123")
	cfg, err := LoadConfig()
	require.NoError(t, err)
	assert.Equal(t, "sk_test_123", cfg.StripeSecretKey)

	t.Setenv("STRIPE_SECRET_KEY", "")
	t.Setenv("STRIPE_WEBHOOK_SECRET", "")
	t.Setenv("DEMO_MODE", "memory")
	_, err = LoadConfig()
	require.NoError(t, err)
}
