package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/rl1809/kravings/internal/core/domain"
	"github.com/rl1809/kravings/internal/port"
)

// MemoryStore keeps accounts, products and orders in process. Transactions
// are optimistic: reads record the account version, and commit fails with
// port.ErrConflict if any of them moved in the meantime.
type MemoryStore struct {
	mu       sync.Mutex
	accounts map[string]domain.Account
	products map[string]domain.Product
	orders   map[string]domain.Order
	now      func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		accounts: make(map[string]domain.Account),
		products: make(map[string]domain.Product),
		orders:   make(map[string]domain.Order),
		now:      time.Now,
	}
}

func (m *MemoryStore) GetBalance(ctx context.Context, userID string) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	acct, ok := m.accounts[userID]
	if !ok {
		return 0, fmt.Errorf("%w: %s", port.ErrAccountNotFound, userID)
	}
	return acct.WalletBalance, nil
}

func (m *MemoryStore) CreateAccount(ctx context.Context, userID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.accounts[userID]; ok {
		return port.ErrAccountExists
	}
	now := m.now()
	m.accounts[userID] = domain.Account{UserID: userID, CreatedAt: now, UpdatedAt: now}
	return nil
}

// SetBalance overwrites a wallet balance, creating the account if needed.
// Used for seeding.
func (m *MemoryStore) SetBalance(userID string, balance int64) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.now()
	acct, ok := m.accounts[userID]
	if !ok {
		acct = domain.Account{UserID: userID, CreatedAt: now}
	} else {
		acct.Version++
	}
	acct.WalletBalance = balance
	acct.UpdatedAt = now
	m.accounts[userID] = acct
}

func (m *MemoryStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx port.Tx) error) error {
	tx := &memoryTx{
		store:  m,
		reads:  make(map[string]int64),
		writes: make(map[string]domain.Account),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return tx.commit()
}

func (m *MemoryStore) PutProduct(p domain.Product) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.products[p.ID] = p
}

func (m *MemoryStore) DeleteProduct(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.products, id)
}

func (m *MemoryStore) GetProductsByIDs(ctx context.Context, ids []string) ([]domain.Product, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	products := make([]domain.Product, 0, len(ids))
	for _, id := range ids {
		if p, ok := m.products[id]; ok {
			products = append(products, p)
		}
	}
	return products, nil
}

func (m *MemoryStore) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok {
		return nil, port.ErrOrderNotFound
	}
	o = copyOrder(o)
	return &o, nil
}

func (m *MemoryStore) ListOrdersByConsumer(ctx context.Context, consumerID string) ([]domain.Order, error) {
	return m.listOrders(func(o domain.Order) bool { return o.ConsumerID == consumerID }), nil
}

func (m *MemoryStore) ListOrdersByVendor(ctx context.Context, vendorID string) ([]domain.Order, error) {
	return m.listOrders(func(o domain.Order) bool { return o.VendorID == vendorID }), nil
}

func (m *MemoryStore) UpdateOrderStatus(ctx context.Context, orderID string, from, to domain.OrderStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	o, ok := m.orders[orderID]
	if !ok {
		return port.ErrOrderNotFound
	}
	if o.Status != from {
		return fmt.Errorf("%w: order %s is %s", port.ErrStatusConflict, orderID, o.Status)
	}
	o.Status = to
	o.UpdatedAt = m.now()
	m.orders[orderID] = o
	return nil
}

func (m *MemoryStore) listOrders(match func(domain.Order) bool) []domain.Order {
	m.mu.Lock()
	defer m.mu.Unlock()

	var out []domain.Order
	for _, o := range m.orders {
		if match(o) {
			out = append(out, copyOrder(o))
		}
	}
	sortNewestFirst(out)
	return out
}

type memoryTx struct {
	store  *MemoryStore
	reads  map[string]int64
	writes map[string]domain.Account
	orders []domain.Order
}

func (t *memoryTx) GetAccount(ctx context.Context, userID string) (domain.Account, error) {
	if acct, ok := t.writes[userID]; ok {
		return acct, nil
	}

	t.store.mu.Lock()
	acct, ok := t.store.accounts[userID]
	t.store.mu.Unlock()

	if !ok {
		return domain.Account{}, fmt.Errorf("%w: %s", port.ErrAccountNotFound, userID)
	}
	t.reads[userID] = acct.Version
	return acct, nil
}

func (t *memoryTx) PutAccount(ctx context.Context, acct domain.Account) error {
	seen, ok := t.reads[acct.UserID]
	if !ok || seen != acct.Version {
		return ErrOptimisticLock
	}
	if acct.WalletBalance < 0 {
		return fmt.Errorf("account %s: negative balance %d", acct.UserID, acct.WalletBalance)
	}
	t.writes[acct.UserID] = acct
	return nil
}

func (t *memoryTx) CreateOrder(ctx context.Context, order domain.Order) error {
	if err := order.Validate(); err != nil {
		return err
	}
	t.orders = append(t.orders, copyOrder(order))
	return nil
}

func (t *memoryTx) commit() error {
	m := t.store
	m.mu.Lock()
	defer m.mu.Unlock()

	for userID, version := range t.reads {
		if cur, ok := m.accounts[userID]; !ok || cur.Version != version {
			return fmt.Errorf("%w: account %s changed", port.ErrConflict, userID)
		}
	}
	for _, o := range t.orders {
		if _, ok := m.orders[o.ID]; ok {
			return fmt.Errorf("order %s already exists", o.ID)
		}
	}

	now := m.now()
	for userID, acct := range t.writes {
		acct.Version++
		acct.UpdatedAt = now
		m.accounts[userID] = acct
	}
	for _, o := range t.orders {
		m.orders[o.ID] = o
	}
	return nil
}

func copyOrder(o domain.Order) domain.Order {
	o.Items = append([]domain.OrderItem(nil), o.Items...)
	return o
}

func sortNewestFirst(orders []domain.Order) {
	sort.Slice(orders, func(i, j int) bool {
		if !orders[i].CreatedAt.Equal(orders[j].CreatedAt) {
			return orders[i].CreatedAt.After(orders[j].CreatedAt)
		}
		return orders[i].ID < orders[j].ID
	})
}
