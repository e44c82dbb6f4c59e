package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/rl1809/kravings/internal/core/domain"
)

const (
	idempotencyKeyPrefix = "idempotency:"
	cartKeyPrefix        = "cart:"
)

// RedisAdapter holds session state: idempotency claims for in-flight
// checkouts and each consumer's cart.
type RedisAdapter struct {
	client         *redis.Client
	idempotencyTTL time.Duration
	cartTTL        time.Duration
}

func NewRedisAdapter(client *redis.Client, idempotencyTTL, cartTTL time.Duration) *RedisAdapter {
	return &RedisAdapter{client: client, idempotencyTTL: idempotencyTTL, cartTTL: cartTTL}
}

func (r *RedisAdapter) Acquire(ctx context.Context, key string) (bool, error) {
	ok, err := r.client.SetNX(ctx, idempotencyKeyPrefix+key, 1, r.idempotencyTTL).Result()
	if err != nil {
		return false, fmt.Errorf("redis setnx failed: %w", err)
	}
	return ok, nil
}

func (r *RedisAdapter) Release(ctx context.Context, key string) error {
	if err := r.client.Del(ctx, idempotencyKeyPrefix+key).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func (r *RedisAdapter) GetCart(ctx context.Context, consumerID string) (domain.Cart, error) {
	data, err := r.client.Get(ctx, cartKeyPrefix+consumerID).Bytes()
	if errors.Is(err, redis.Nil) {
		return domain.Cart{ConsumerID: consumerID}, nil
	}
	if err != nil {
		return domain.Cart{}, fmt.Errorf("redis get failed: %w", err)
	}

	var cart domain.Cart
	if err := json.Unmarshal(data, &cart); err != nil {
		return domain.Cart{}, fmt.Errorf("unmarshal cart failed: %w", err)
	}
	return cart, nil
}

func (r *RedisAdapter) SaveCart(ctx context.Context, cart domain.Cart) error {
	data, err := json.Marshal(cart)
	if err != nil {
		return fmt.Errorf("marshal cart failed: %w", err)
	}
	if err := r.client.Set(ctx, cartKeyPrefix+cart.ConsumerID, data, r.cartTTL).Err(); err != nil {
		return fmt.Errorf("redis set failed: %w", err)
	}
	return nil
}

func (r *RedisAdapter) DeleteCart(ctx context.Context, consumerID string) error {
	if err := r.client.Del(ctx, cartKeyPrefix+consumerID).Err(); err != nil {
		return fmt.Errorf("redis delete failed: %w", err)
	}
	return nil
}

func (r *RedisAdapter) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}
