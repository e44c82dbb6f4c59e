package config

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"
)

type Config struct {
	HTTPAddr string
	GRPCAddr string

	MySQLDSN      string
	RedisAddr     string
	RedisPassword string

	// Empty disables order events
	KafkaBrokers    []string
	KafkaOrderTopic string

	DeliveryFee int64

	SettlementMaxAttempts int
	SettlementBaseDelay   time.Duration
	SettlementMaxDelay    time.Duration

	// When set, delivery fees are credited here instead of leaving the system
	PlatformAccountID string
	StrictPricing     bool

	// Consecutive catalog failures before lookups fail fast, and for how long
	CatalogBreakerFailures int
	CatalogBreakerTimeout  time.Duration

	IdempotencyTTL  time.Duration
	CartTTL         time.Duration
	ShutdownTimeout time.Duration
}

func Load() (Config, error) {
	var errs []error

	cfg := Config{
		HTTPAddr:          getenv("HTTP_ADDR", ":8080"),
		GRPCAddr:          getenv("GRPC_ADDR", ":50051"),
		MySQLDSN:          getenv("MYSQL_DSN", "root:root@tcp(localhost:3306)/kravings"),
		RedisAddr:         getenv("REDIS_ADDR", "localhost:6379"),
		RedisPassword:     os.Getenv("REDIS_PASSWORD"),
		KafkaBrokers:      splitCSV(os.Getenv("KAFKA_BROKERS")),
		KafkaOrderTopic:   getenv("KAFKA_ORDER_TOPIC", "orders.created"),
		PlatformAccountID: strings.TrimSpace(os.Getenv("PLATFORM_ACCOUNT_ID")),
	}

	cfg.DeliveryFee = parseInt64("DELIVERY_FEE", 1500, &errs)
	cfg.SettlementMaxAttempts = int(parseInt64("SETTLEMENT_MAX_ATTEMPTS", 5, &errs))
	cfg.SettlementBaseDelay = parseDuration("SETTLEMENT_BASE_DELAY", 20*time.Millisecond, &errs)
	cfg.SettlementMaxDelay = parseDuration("SETTLEMENT_MAX_DELAY", 500*time.Millisecond, &errs)
	cfg.StrictPricing = parseBool("STRICT_PRICING", false, &errs)
	cfg.CatalogBreakerFailures = int(parseInt64("CATALOG_BREAKER_FAILURES", 5, &errs))
	cfg.CatalogBreakerTimeout = parseDuration("CATALOG_BREAKER_TIMEOUT", 30*time.Second, &errs)
	cfg.IdempotencyTTL = parseDuration("IDEMPOTENCY_TTL", 24*time.Hour, &errs)
	cfg.CartTTL = parseDuration("CART_TTL", 30*24*time.Hour, &errs)
	cfg.ShutdownTimeout = parseDuration("SHUTDOWN_TIMEOUT", 5*time.Second, &errs)

	if cfg.DeliveryFee < 0 {
		errs = append(errs, fmt.Errorf("DELIVERY_FEE must not be negative, got %d", cfg.DeliveryFee))
	}
	if cfg.SettlementMaxAttempts < 1 {
		errs = append(errs, fmt.Errorf("SETTLEMENT_MAX_ATTEMPTS must be at least 1, got %d", cfg.SettlementMaxAttempts))
	}

	if cfg.CatalogBreakerFailures < 1 {
		errs = append(errs, fmt.Errorf("CATALOG_BREAKER_FAILURES must be at least 1, got %d", cfg.CatalogBreakerFailures))
	}

	if err := errors.Join(errs...); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

func getenv(k, def string) string {
	if v := os.Getenv(k); strings.TrimSpace(v) != "" {
		return strings.TrimSpace(v)
	}
	return def
}

func splitCSV(v string) []string {
	parts := strings.Split(v, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		p = strings.TrimSpace(p)
		if p != "" {
			out = append(out, p)
		}
	}
	return out
}

func parseInt64(k string, def int64, errs *[]error) int64 {
	v := getenv(k, "")
	if v == "" {
		return def
	}
	n, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", k, err))
		return def
	}
	return n
}

func parseDuration(k string, def time.Duration, errs *[]error) time.Duration {
	v := getenv(k, "")
	if v == "" {
		return def
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", k, err))
		return def
	}
	return d
}

func parseBool(k string, def bool, errs *[]error) bool {
	v := getenv(k, "")
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		*errs = append(*errs, fmt.Errorf("%s: %w", k, err))
		return def
	}
	return b
}
