package storage

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/kravings/internal/core/domain"
	"github.com/rl1809/kravings/internal/port"
)

type fullStore interface {
	port.AccountStore
	port.OrderLog
	port.Catalog
}

// storeFixture adapts the seeding helpers, which differ per backend.
type storeFixture struct {
	store         fullStore
	setBalance    func(userID string, balance int64)
	putProduct    func(p domain.Product)
	deleteProduct func(id string)
}

func memoryFixture(t *testing.T) storeFixture {
	s := NewMemoryStore()
	return storeFixture{
		store:         s,
		setBalance:    s.SetBalance,
		putProduct:    s.PutProduct,
		deleteProduct: s.DeleteProduct,
	}
}

func sqlFixture(t *testing.T, s *SQLStore) storeFixture {
	ctx := context.Background()
	return storeFixture{
		store: s,
		setBalance: func(userID string, balance int64) {
			require.NoError(t, s.SetBalance(ctx, userID, balance))
		},
		putProduct: func(p domain.Product) {
			require.NoError(t, s.PutProduct(ctx, p))
		},
		deleteProduct: func(id string) {
			require.NoError(t, s.DeleteProduct(ctx, id))
		},
	}
}

func testOrder(id, consumerID, vendorID string, createdAt time.Time) domain.Order {
	items := []domain.OrderItem{
		{ProductID: "p1", Name: "Jollof Rice", Quantity: 2, Price: 2500, ImageURL: "https://img/p1.png"},
		{ProductID: "p3", Name: "Zobo", Quantity: 1, Price: 500},
	}
	return domain.Order{
		ID:         id,
		ConsumerID: consumerID,
		VendorID:   vendorID,
		Items:      items,
		Total:      2*2500 + 500,
		Status:     domain.OrderStatusReceived,
		CreatedAt:  createdAt,
		UpdatedAt:  createdAt,
	}
}

// settle moves amount from consumer to vendor and records order in one
// transaction, the same shape the checkout engine uses.
func settle(ctx context.Context, s port.AccountStore, consumerID, vendorID string, amount int64, order *domain.Order) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx port.Tx) error {
		c, err := tx.GetAccount(ctx, consumerID)
		if err != nil {
			return err
		}
		v, err := tx.GetAccount(ctx, vendorID)
		if err != nil {
			return err
		}
		debited, ok := c.Debit(amount)
		if !ok {
			return errors.New("insufficient")
		}
		if err := tx.PutAccount(ctx, debited); err != nil {
			return err
		}
		if err := tx.PutAccount(ctx, v.Credit(amount)); err != nil {
			return err
		}
		if order != nil {
			return tx.CreateOrder(ctx, *order)
		}
		return nil
	})
}

func runStoreContract(t *testing.T, newFixture func(t *testing.T) storeFixture) {
	t.Run("accounts", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()

		_, err := f.store.GetBalance(ctx, "ghost")
		assert.ErrorIs(t, err, port.ErrAccountNotFound)

		require.NoError(t, f.store.CreateAccount(ctx, "alice"))
		assert.ErrorIs(t, f.store.CreateAccount(ctx, "alice"), port.ErrAccountExists)

		balance, err := f.store.GetBalance(ctx, "alice")
		require.NoError(t, err)
		assert.Equal(t, int64(0), balance)
	})

	t.Run("settlement commits balances and order together", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		f.setBalance("c1", 10000)
		f.setBalance("v1", 300)

		order := testOrder("order-1", "c1", "v1", time.UnixMilli(1_700_000_000_000))
		require.NoError(t, settle(ctx, f.store, "c1", "v1", order.Total, &order))

		c, _ := f.store.GetBalance(ctx, "c1")
		v, _ := f.store.GetBalance(ctx, "v1")
		assert.Equal(t, int64(10000-5500), c)
		assert.Equal(t, int64(300+5500), v)
		assert.Equal(t, int64(10000+300), c+v)

		got, err := f.store.GetOrder(ctx, "order-1")
		require.NoError(t, err)
		assert.Equal(t, order.Items, got.Items)
		assert.Equal(t, order.Total, got.Total)
		assert.Equal(t, domain.OrderStatusReceived, got.Status)
		assert.True(t, order.CreatedAt.Equal(got.CreatedAt))
	})

	t.Run("aborted transaction leaves no trace", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		f.setBalance("c1", 5000)
		f.setBalance("v1", 0)
		boom := errors.New("simulated failure")

		err := f.store.RunTransaction(ctx, func(ctx context.Context, tx port.Tx) error {
			c, _ := tx.GetAccount(ctx, "c1")
			debited, _ := c.Debit(2500)
			require.NoError(t, tx.PutAccount(ctx, debited))
			require.NoError(t, tx.CreateOrder(ctx, testOrder("order-x", "c1", "v1", time.Now())))
			return boom
		})
		assert.ErrorIs(t, err, boom)

		c, _ := f.store.GetBalance(ctx, "c1")
		assert.Equal(t, int64(5000), c)
		_, err = f.store.GetOrder(ctx, "order-x")
		assert.ErrorIs(t, err, port.ErrOrderNotFound)
	})

	t.Run("stale version is a conflict", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		f.setBalance("c1", 5000)

		err := f.store.RunTransaction(ctx, func(ctx context.Context, tx port.Tx) error {
			c, err := tx.GetAccount(ctx, "c1")
			if err != nil {
				return err
			}
			c.Version--
			return tx.PutAccount(ctx, c.Credit(1))
		})
		assert.ErrorIs(t, err, port.ErrConflict)
		assert.ErrorIs(t, err, ErrOptimisticLock)

		c, _ := f.store.GetBalance(ctx, "c1")
		assert.Equal(t, int64(5000), c)
	})

	t.Run("missing account inside transaction", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		f.setBalance("c1", 5000)

		err := settle(ctx, f.store, "c1", "nobody", 100, nil)
		assert.ErrorIs(t, err, port.ErrAccountNotFound)
	})

	t.Run("order history and status", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		f.setBalance("c1", 100000)
		f.setBalance("c2", 100000)
		f.setBalance("v1", 0)
		f.setBalance("v2", 0)

		base := time.UnixMilli(1_700_000_000_000)
		orders := []domain.Order{
			testOrder("o-1", "c1", "v1", base),
			testOrder("o-2", "c1", "v2", base.Add(time.Second)),
			testOrder("o-3", "c2", "v1", base.Add(2*time.Second)),
		}
		for i := range orders {
			require.NoError(t, settle(ctx, f.store, orders[i].ConsumerID, orders[i].VendorID, orders[i].Total, &orders[i]))
		}

		byConsumer, err := f.store.ListOrdersByConsumer(ctx, "c1")
		require.NoError(t, err)
		require.Len(t, byConsumer, 2)
		assert.Equal(t, "o-2", byConsumer[0].ID)
		assert.Equal(t, "o-1", byConsumer[1].ID)

		byVendor, err := f.store.ListOrdersByVendor(ctx, "v1")
		require.NoError(t, err)
		require.Len(t, byVendor, 2)
		assert.Equal(t, "o-3", byVendor[0].ID)

		require.NoError(t, f.store.UpdateOrderStatus(ctx, "o-1", domain.OrderStatusReceived, domain.OrderStatusProcessing))
		err = f.store.UpdateOrderStatus(ctx, "o-1", domain.OrderStatusReceived, domain.OrderStatusProcessing)
		assert.ErrorIs(t, err, port.ErrStatusConflict)
		err = f.store.UpdateOrderStatus(ctx, "missing", domain.OrderStatusReceived, domain.OrderStatusProcessing)
		assert.ErrorIs(t, err, port.ErrOrderNotFound)

		got, err := f.store.GetOrder(ctx, "o-1")
		require.NoError(t, err)
		assert.Equal(t, domain.OrderStatusProcessing, got.Status)
	})

	t.Run("catalog lookup omits missing products", func(t *testing.T) {
		f := newFixture(t)
		ctx := context.Background()
		f.putProduct(domain.Product{ID: "p1", VendorID: "v1", Name: "Jollof Rice", Price: 2500})
		f.putProduct(domain.Product{ID: "p2", VendorID: "v2", Name: "Suya", Price: 1000})
		f.deleteProduct("p2")

		products, err := f.store.GetProductsByIDs(ctx, []string{"p1", "p2", "p9"})
		require.NoError(t, err)
		require.Len(t, products, 1)
		assert.Equal(t, "v1", products[0].VendorID)
		assert.Equal(t, int64(2500), products[0].Price)
	})
}
