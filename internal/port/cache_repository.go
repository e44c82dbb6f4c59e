package port

import (
	"context"

	"github.com/rl1809/kravings/internal/core/domain"
)

type CartStore interface {
	// GetCart returns an empty cart when none is stored
	GetCart(ctx context.Context, consumerID string) (domain.Cart, error)
	SaveCart(ctx context.Context, cart domain.Cart) error
	DeleteCart(ctx context.Context, consumerID string) error
}

type IdempotencyGuard interface {
	// Acquire claims key, returns false if it is already claimed
	Acquire(ctx context.Context, key string) (bool, error)

	// Release drops a claim so the key can be reused
	Release(ctx context.Context, key string) error
}
