package config

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoad_Defaults(t *testing.T) {
	for _, k := range []string{"HTTP_ADDR", "DELIVERY_FEE", "KAFKA_BROKERS", "PLATFORM_ACCOUNT_ID", "SETTLEMENT_MAX_ATTEMPTS", "STRICT_PRICING", "CATALOG_BREAKER_FAILURES"} {
		t.Setenv(k, "")
	}

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, ":8080", cfg.HTTPAddr)
	assert.Equal(t, ":50051", cfg.GRPCAddr)
	assert.Equal(t, int64(1500), cfg.DeliveryFee)
	assert.Equal(t, 5, cfg.SettlementMaxAttempts)
	assert.Equal(t, 20*time.Millisecond, cfg.SettlementBaseDelay)
	assert.Empty(t, cfg.KafkaBrokers)
	assert.Empty(t, cfg.PlatformAccountID)
	assert.False(t, cfg.StrictPricing)
	assert.Equal(t, 5, cfg.CatalogBreakerFailures)
	assert.Equal(t, 30*time.Second, cfg.CatalogBreakerTimeout)
}

func TestLoad_Overrides(t *testing.T) {
	t.Setenv("DELIVERY_FEE", "900")
	t.Setenv("KAFKA_BROKERS", "k1:9092, k2:9092,")
	t.Setenv("SETTLEMENT_BASE_DELAY", "5ms")
	t.Setenv("STRICT_PRICING", "true")
	t.Setenv("PLATFORM_ACCOUNT_ID", " platform ")

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, int64(900), cfg.DeliveryFee)
	assert.Equal(t, []string{"k1:9092", "k2:9092"}, cfg.KafkaBrokers)
	assert.Equal(t, 5*time.Millisecond, cfg.SettlementBaseDelay)
	assert.True(t, cfg.StrictPricing)
	assert.Equal(t, "platform", cfg.PlatformAccountID)
}

func TestLoad_InvalidValues(t *testing.T) {
	t.Setenv("DELIVERY_FEE", "lots")
	t.Setenv("SETTLEMENT_MAX_ATTEMPTS", "0")
	t.Setenv("CART_TTL", "forever")

	_, err := Load()
	require.Error(t, err)
	assert.ErrorContains(t, err, "DELIVERY_FEE")
	assert.ErrorContains(t, err, "SETTLEMENT_MAX_ATTEMPTS")
	assert.ErrorContains(t, err, "CART_TTL")
}
