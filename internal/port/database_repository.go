package port

import (
	"context"
	"errors"

	"github.com/rl1809/kravings/internal/core/domain"
)

var (
	// ErrConflict means a transaction lost an optimistic-concurrency race and
	// may be retried from the start.
	ErrConflict        = errors.New("transaction conflict")
	ErrAccountNotFound = errors.New("account not found")
	ErrOrderNotFound   = errors.New("order not found")
	ErrProductNotFound = errors.New("product not found")
	ErrAccountExists   = errors.New("account already exists")
	ErrStatusConflict  = errors.New("order status changed concurrently")
)

// Tx is the set of reads and writes available inside RunTransaction.
// Writes become visible only if the transaction commits.
type Tx interface {
	GetAccount(ctx context.Context, userID string) (domain.Account, error)

	// PutAccount stores acct if its Version still matches the stored one
	PutAccount(ctx context.Context, acct domain.Account) error

	CreateOrder(ctx context.Context, order domain.Order) error
}

type AccountStore interface {
	GetBalance(ctx context.Context, userID string) (int64, error)

	// CreateAccount inserts a zero-balance account, ErrAccountExists if present
	CreateAccount(ctx context.Context, userID string) error

	// RunTransaction commits every write made through tx atomically, or none.
	// Returns ErrConflict when the commit raced another writer.
	RunTransaction(ctx context.Context, fn func(ctx context.Context, tx Tx) error) error
}

type OrderLog interface {
	GetOrder(ctx context.Context, orderID string) (*domain.Order, error)
	ListOrdersByConsumer(ctx context.Context, consumerID string) ([]domain.Order, error)
	ListOrdersByVendor(ctx context.Context, vendorID string) ([]domain.Order, error)

	// UpdateOrderStatus is a compare-and-set from -> to, ErrStatusConflict on mismatch
	UpdateOrderStatus(ctx context.Context, orderID string, from, to domain.OrderStatus) error
}

type Catalog interface {
	// GetProductsByIDs returns the products that exist; missing ids are omitted
	GetProductsByIDs(ctx context.Context, ids []string) ([]domain.Product, error)
}
