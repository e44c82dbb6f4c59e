package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-sql-driver/mysql"

	"github.com/rl1809/kravings/internal/core/domain"
	"github.com/rl1809/kravings/internal/port"
)

// ErrOptimisticLock is returned when a versioned write finds the row already
// changed. It is a port.ErrConflict.
var ErrOptimisticLock = fmt.Errorf("optimistic lock conflict: %w", port.ErrConflict)

// InnoDB errors that mean "run the transaction again".
const (
	mysqlErrLockWaitTimeout = 1205
	mysqlErrDeadlock        = 1213
)

type Dialect string

const (
	DialectMySQL  Dialect = "mysql"
	DialectSQLite Dialect = "sqlite"
)

var (
	//go:embed schema/mysql.sql
	mysqlSchema string

	//go:embed schema/sqlite.sql
	sqliteSchema string
)

// SQLStore implements the account store, order log and catalog on one
// database so a settlement's balance updates and order insert share a
// transaction.
type SQLStore struct {
	db      *sql.DB
	dialect Dialect
	now     func() time.Time
}

func NewSQLStore(db *sql.DB, dialect Dialect) *SQLStore {
	return &SQLStore{db: db, dialect: dialect, now: time.Now}
}

// Migrate creates the tables if they do not exist.
func (s *SQLStore) Migrate(ctx context.Context) error {
	schema := mysqlSchema
	if s.dialect == DialectSQLite {
		schema = sqliteSchema
	}
	for _, stmt := range strings.Split(schema, ";") {
		if strings.TrimSpace(stmt) == "" {
			continue
		}
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("apply schema: %w", err)
		}
	}
	return nil
}

func (s *SQLStore) GetBalance(ctx context.Context, userID string) (int64, error) {
	var balance int64
	err := s.db.QueryRowContext(ctx,
		`SELECT wallet_balance FROM accounts WHERE user_id = ?`, userID,
	).Scan(&balance)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, fmt.Errorf("%w: %s", port.ErrAccountNotFound, userID)
	}
	if err != nil {
		return 0, fmt.Errorf("query balance: %w", err)
	}
	return balance, nil
}

func (s *SQLStore) CreateAccount(ctx context.Context, userID string) error {
	exists, err := s.accountExists(ctx, userID)
	if err != nil {
		return err
	}
	if exists {
		return port.ErrAccountExists
	}

	now := s.now().UnixMilli()
	_, err = s.db.ExecContext(ctx, `
		INSERT INTO accounts (user_id, wallet_balance, version, created_at, updated_at)
		VALUES (?, 0, 0, ?, ?)`,
		userID, now, now,
	)
	if err != nil {
		// lost a race with another first sign-in
		if exists, _ := s.accountExists(ctx, userID); exists {
			return port.ErrAccountExists
		}
		return fmt.Errorf("insert account: %w", err)
	}
	return nil
}

func (s *SQLStore) accountExists(ctx context.Context, userID string) (bool, error) {
	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM accounts WHERE user_id = ?`, userID,
	).Scan(&n)
	if err != nil {
		return false, fmt.Errorf("query account: %w", err)
	}
	return n > 0, nil
}

func (s *SQLStore) RunTransaction(ctx context.Context, fn func(ctx context.Context, tx port.Tx) error) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", classifyTxError(err))
	}
	defer tx.Rollback()

	if err := fn(ctx, &sqlTx{tx: tx, now: s.now}); err != nil {
		return classifyTxError(err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", classifyTxError(err))
	}
	return nil
}

func classifyTxError(err error) error {
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlErrDeadlock, mysqlErrLockWaitTimeout:
			return fmt.Errorf("%w: %w", port.ErrConflict, err)
		}
	}
	return err
}

// SetBalance overwrites a wallet balance, creating the account if needed.
// Used for seeding.
func (s *SQLStore) SetBalance(ctx context.Context, userID string, balance int64) error {
	if err := s.CreateAccount(ctx, userID); err != nil && !errors.Is(err, port.ErrAccountExists) {
		return err
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE accounts
		SET wallet_balance = ?, version = version + 1, updated_at = ?
		WHERE user_id = ?`,
		balance, s.now().UnixMilli(), userID,
	)
	if err != nil {
		return fmt.Errorf("set balance: %w", err)
	}
	return nil
}

func (s *SQLStore) PutProduct(ctx context.Context, p domain.Product) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer tx.Rollback()

	if _, err := tx.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, p.ID); err != nil {
		return fmt.Errorf("replace product: %w", err)
	}
	_, err = tx.ExecContext(ctx, `
		INSERT INTO products (id, vendor_id, name, price, image_url)
		VALUES (?, ?, ?, ?, ?)`,
		p.ID, p.VendorID, p.Name, p.Price, p.ImageURL,
	)
	if err != nil {
		return fmt.Errorf("insert product: %w", err)
	}
	return tx.Commit()
}

func (s *SQLStore) DeleteProduct(ctx context.Context, id string) error {
	if _, err := s.db.ExecContext(ctx, `DELETE FROM products WHERE id = ?`, id); err != nil {
		return fmt.Errorf("delete product: %w", err)
	}
	return nil
}

func (s *SQLStore) GetProductsByIDs(ctx context.Context, ids []string) ([]domain.Product, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	args := make([]any, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(ids)), ", ")

	rows, err := s.db.QueryContext(ctx,
		`SELECT id, vendor_id, name, price, image_url FROM products WHERE id IN (`+placeholders+`)`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query products: %w", err)
	}
	defer rows.Close()

	var products []domain.Product
	for rows.Next() {
		var p domain.Product
		if err := rows.Scan(&p.ID, &p.VendorID, &p.Name, &p.Price, &p.ImageURL); err != nil {
			return nil, fmt.Errorf("scan product: %w", err)
		}
		products = append(products, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return products, nil
}

const orderColumns = `id, consumer_id, vendor_id, items, total, status, created_at, updated_at`

func (s *SQLStore) GetOrder(ctx context.Context, orderID string) (*domain.Order, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE id = ?`, orderID,
	)
	o, err := scanOrder(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, port.ErrOrderNotFound
	}
	if err != nil {
		return nil, err
	}
	return &o, nil
}

func (s *SQLStore) ListOrdersByConsumer(ctx context.Context, consumerID string) ([]domain.Order, error) {
	return s.listOrders(ctx, `consumer_id = ?`, consumerID)
}

func (s *SQLStore) ListOrdersByVendor(ctx context.Context, vendorID string) ([]domain.Order, error) {
	return s.listOrders(ctx, `vendor_id = ?`, vendorID)
}

func (s *SQLStore) listOrders(ctx context.Context, where string, arg string) ([]domain.Order, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+orderColumns+` FROM orders WHERE `+where+` ORDER BY created_at DESC, id`, arg,
	)
	if err != nil {
		return nil, fmt.Errorf("select orders: %w", err)
	}
	defer rows.Close()

	var orders []domain.Order
	for rows.Next() {
		o, err := scanOrder(rows)
		if err != nil {
			return nil, err
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows: %w", err)
	}
	return orders, nil
}

func (s *SQLStore) UpdateOrderStatus(ctx context.Context, orderID string, from, to domain.OrderStatus) error {
	result, err := s.db.ExecContext(ctx, `
		UPDATE orders SET status = ?, updated_at = ?
		WHERE id = ? AND status = ?`,
		string(to), s.now().UnixMilli(), orderID, string(from),
	)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		if _, err := s.GetOrder(ctx, orderID); err != nil {
			return err
		}
		return fmt.Errorf("%w: order %s is no longer %s", port.ErrStatusConflict, orderID, from)
	}
	return nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (domain.Order, error) {
	var (
		o                    domain.Order
		items                []byte
		status               string
		createdAt, updatedAt int64
	)
	err := row.Scan(&o.ID, &o.ConsumerID, &o.VendorID, &items, &o.Total, &status, &createdAt, &updatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return o, err
		}
		return o, fmt.Errorf("scan order: %w", err)
	}
	if err := json.Unmarshal(items, &o.Items); err != nil {
		return o, fmt.Errorf("decode order %s items: %w", o.ID, err)
	}
	o.Status = domain.OrderStatus(status)
	o.CreatedAt = time.UnixMilli(createdAt)
	o.UpdatedAt = time.UnixMilli(updatedAt)
	return o, nil
}

type sqlTx struct {
	tx  *sql.Tx
	now func() time.Time
}

func (t *sqlTx) GetAccount(ctx context.Context, userID string) (domain.Account, error) {
	var (
		acct                 domain.Account
		createdAt, updatedAt int64
	)
	err := t.tx.QueryRowContext(ctx, `
		SELECT user_id, wallet_balance, version, created_at, updated_at
		FROM accounts WHERE user_id = ?`, userID,
	).Scan(&acct.UserID, &acct.WalletBalance, &acct.Version, &createdAt, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Account{}, fmt.Errorf("%w: %s", port.ErrAccountNotFound, userID)
	}
	if err != nil {
		return domain.Account{}, fmt.Errorf("query account: %w", err)
	}
	acct.CreatedAt = time.UnixMilli(createdAt)
	acct.UpdatedAt = time.UnixMilli(updatedAt)
	return acct, nil
}

func (t *sqlTx) PutAccount(ctx context.Context, acct domain.Account) error {
	result, err := t.tx.ExecContext(ctx, `
		UPDATE accounts
		SET wallet_balance = ?, version = version + 1, updated_at = ?
		WHERE user_id = ? AND version = ?`,
		acct.WalletBalance, t.now().UnixMilli(), acct.UserID, acct.Version,
	)
	if err != nil {
		return fmt.Errorf("update account: %w", err)
	}

	rows, _ := result.RowsAffected()
	if rows == 0 {
		return ErrOptimisticLock
	}
	return nil
}

func (t *sqlTx) CreateOrder(ctx context.Context, order domain.Order) error {
	if err := order.Validate(); err != nil {
		return err
	}
	items, err := json.Marshal(order.Items)
	if err != nil {
		return fmt.Errorf("encode items: %w", err)
	}

	_, err = t.tx.ExecContext(ctx, `
		INSERT INTO orders (`+orderColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		order.ID, order.ConsumerID, order.VendorID, string(items), order.Total, string(order.Status),
		order.CreatedAt.UnixMilli(), order.UpdatedAt.UnixMilli(),
	)
	if err != nil {
		return fmt.Errorf("insert order: %w", err)
	}
	return nil
}
