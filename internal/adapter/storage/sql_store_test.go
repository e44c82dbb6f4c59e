package storage

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func newSQLiteStore(t *testing.T) *SQLStore {
	db, err := sql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	// every connection would otherwise get its own empty in-memory database
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	store := NewSQLStore(db, DialectSQLite)
	require.NoError(t, store.Migrate(context.Background()))
	return store
}

func getMySQLStore(t *testing.T) *SQLStore {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		t.Skip("MYSQL_DSN not set")
	}

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	if err := db.Ping(); err != nil {
		t.Skipf("MySQL not available: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	ctx := context.Background()
	store := NewSQLStore(db, DialectMySQL)
	require.NoError(t, store.Migrate(ctx))
	for _, table := range []string{"orders", "products", "accounts"} {
		_, err := db.ExecContext(ctx, "DELETE FROM "+table)
		require.NoError(t, err)
	}
	return store
}

func TestSQLiteStore_Contract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) storeFixture {
		return sqlFixture(t, newSQLiteStore(t))
	})
}

func TestMySQLStore_Contract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) storeFixture {
		return sqlFixture(t, getMySQLStore(t))
	})
}

func TestSQLStore_MigrateIsIdempotent(t *testing.T) {
	store := newSQLiteStore(t)
	assert.NoError(t, store.Migrate(context.Background()))
}

func TestSQLStore_CheckConstraintRejectsNegativeBalance(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)
	require.NoError(t, store.SetBalance(ctx, "c1", 100))

	err := store.SetBalance(ctx, "c1", -1)
	assert.Error(t, err)

	balance, err := store.GetBalance(ctx, "c1")
	require.NoError(t, err)
	assert.Equal(t, int64(100), balance)
}

func TestSQLStore_CreateOrderRejectsInconsistentTotal(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t)
	require.NoError(t, store.SetBalance(ctx, "c1", 10000))
	require.NoError(t, store.SetBalance(ctx, "v1", 0))

	order := testOrder("bad-total", "c1", "v1", time.Now())
	order.Total++

	err := settle(ctx, store, "c1", "v1", order.Total, &order)
	require.Error(t, err)

	balance, _ := store.GetBalance(ctx, "c1")
	assert.Equal(t, int64(10000), balance)
}
