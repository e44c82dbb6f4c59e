package service

import (
	"context"
	"fmt"
	"sync"

	"github.com/rl1809/kravings/internal/adapter/storage"
	"github.com/rl1809/kravings/internal/core/domain"
	"github.com/rl1809/kravings/internal/port"
)

// flakyStore injects conflicts and failures into transactions that read
// particular accounts.
type flakyStore struct {
	*storage.MemoryStore

	mu        sync.Mutex
	conflicts map[string]int
	failures  map[string]error
	txCount   int
}

func newFlakyStore() *flakyStore {
	return &flakyStore{
		MemoryStore: storage.NewMemoryStore(),
		conflicts:   make(map[string]int),
		failures:    make(map[string]error),
	}
}

func (s *flakyStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx port.Tx) error) error {
	s.mu.Lock()
	s.txCount++
	s.mu.Unlock()

	return s.MemoryStore.RunTransaction(ctx, func(ctx context.Context, tx port.Tx) error {
		return fn(ctx, &flakyTx{Tx: tx, store: s})
	})
}

func (s *flakyStore) conflictOn(userID string, times int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.conflicts[userID] = times
}

func (s *flakyStore) failOn(userID string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.failures[userID] = err
}

func (s *flakyStore) transactions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.txCount
}

func (s *flakyStore) inject(userID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.failures[userID]; err != nil {
		return err
	}
	if s.conflicts[userID] > 0 {
		s.conflicts[userID]--
		return fmt.Errorf("injected on %s: %w", userID, port.ErrConflict)
	}
	return nil
}

type flakyTx struct {
	port.Tx
	store *flakyStore
}

func (t *flakyTx) GetAccount(ctx context.Context, userID string) (domain.Account, error) {
	if err := t.store.inject(userID); err != nil {
		return domain.Account{}, err
	}
	return t.Tx.GetAccount(ctx, userID)
}

type fakeGuard struct {
	mu       sync.Mutex
	claimed  map[string]bool
	released []string
	err      error
}

func newFakeGuard() *fakeGuard {
	return &fakeGuard{claimed: make(map[string]bool)}
}

func (g *fakeGuard) Acquire(ctx context.Context, key string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	if g.err != nil {
		return false, g.err
	}
	if g.claimed[key] {
		return false, nil
	}
	g.claimed[key] = true
	return true, nil
}

func (g *fakeGuard) Release(ctx context.Context, key string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.claimed, key)
	g.released = append(g.released, key)
	return nil
}

type fakeCartStore struct {
	mu      sync.Mutex
	carts   map[string]domain.Cart
	deleted []string
	err     error
}

func newFakeCartStore() *fakeCartStore {
	return &fakeCartStore{carts: make(map[string]domain.Cart)}
}

func (c *fakeCartStore) GetCart(ctx context.Context, consumerID string) (domain.Cart, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return domain.Cart{}, c.err
	}
	cart, ok := c.carts[consumerID]
	if !ok {
		return domain.Cart{ConsumerID: consumerID}, nil
	}
	cart.Lines = append([]domain.CartLine(nil), cart.Lines...)
	return cart, nil
}

func (c *fakeCartStore) SaveCart(ctx context.Context, cart domain.Cart) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return c.err
	}
	cart.Lines = append([]domain.CartLine(nil), cart.Lines...)
	c.carts[cart.ConsumerID] = cart
	return nil
}

func (c *fakeCartStore) DeleteCart(ctx context.Context, consumerID string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.err != nil {
		return c.err
	}
	delete(c.carts, consumerID)
	c.deleted = append(c.deleted, consumerID)
	return nil
}

type fakePublisher struct {
	mu     sync.Mutex
	orders []domain.Order
	err    error
	onSend func(domain.Order)
}

func (p *fakePublisher) PublishOrderCreated(ctx context.Context, order domain.Order) error {
	p.mu.Lock()
	p.orders = append(p.orders, order)
	onSend := p.onSend
	p.mu.Unlock()

	if onSend != nil {
		onSend(order)
	}
	return p.err
}

func (p *fakePublisher) published() []domain.Order {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]domain.Order(nil), p.orders...)
}

type failingCatalog struct {
	err error
}

func (c failingCatalog) GetProductsByIDs(ctx context.Context, ids []string) ([]domain.Product, error) {
	return nil, c.err
}
