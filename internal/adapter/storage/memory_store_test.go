package storage

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rl1809/kravings/internal/port"
)

func TestMemoryStore_Contract(t *testing.T) {
	runStoreContract(t, memoryFixture)
}

func TestMemoryStore_CommitDetectsInterleavedWriter(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.SetBalance("c1", 5000)
	store.SetBalance("v1", 0)

	err := store.RunTransaction(ctx, func(ctx context.Context, tx port.Tx) error {
		c, err := tx.GetAccount(ctx, "c1")
		require.NoError(t, err)

		// another checkout commits in between
		require.NoError(t, settle(ctx, store, "c1", "v1", 1000, nil))

		debited, _ := c.Debit(4500)
		return tx.PutAccount(ctx, debited)
	})
	assert.ErrorIs(t, err, port.ErrConflict)

	c, _ := store.GetBalance(ctx, "c1")
	assert.Equal(t, int64(4000), c, "losing transaction must not overwrite the winner")
}

func TestMemoryStore_ConcurrentTransfersConserveMoney(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.SetBalance("vendor", 0)

	consumers := []string{"c1", "c2", "c3", "c4"}
	for _, c := range consumers {
		store.SetBalance(c, 1000)
	}

	var wg sync.WaitGroup
	for _, c := range consumers {
		for i := 0; i < 25; i++ {
			wg.Add(1)
			go func(consumerID string) {
				defer wg.Done()
				for {
					err := settle(ctx, store, consumerID, "vendor", 10, nil)
					if err == nil {
						return
					}
					if !errors.Is(err, port.ErrConflict) {
						t.Errorf("unexpected error: %v", err)
						return
					}
				}
			}(c)
		}
	}
	wg.Wait()

	var total int64
	for _, c := range consumers {
		b, err := store.GetBalance(ctx, c)
		require.NoError(t, err)
		assert.Equal(t, int64(1000-25*10), b)
		total += b
	}
	v, _ := store.GetBalance(ctx, "vendor")
	assert.Equal(t, int64(len(consumers)*25*10), v)
	assert.Equal(t, int64(len(consumers)*1000), total+v)
}

func TestMemoryStore_RejectsNegativeBalance(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryStore()
	store.SetBalance("c1", 100)

	err := store.RunTransaction(ctx, func(ctx context.Context, tx port.Tx) error {
		c, _ := tx.GetAccount(ctx, "c1")
		c.WalletBalance -= 200
		return tx.PutAccount(ctx, c)
	})
	require.Error(t, err)

	c, _ := store.GetBalance(ctx, "c1")
	assert.Equal(t, int64(100), c)
}
