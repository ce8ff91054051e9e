package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/ibarbylev/go-shop-orders/internal/orders"
)

// Store implements orders.Store on a pgx pool.
type Store struct{ DB *pgxpool.Pool }

var (
	_ orders.Store = (*Store)(nil)
	_ orders.Tx    = (*tx)(nil)
)

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

const fkViolation = "23503"

func (s *Store) WithinTx(ctx context.Context, fn func(tx orders.Tx) error) error {
	txn, err := s.DB.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return err
	}
	defer func() { _ = txn.Rollback(ctx) }()
	if err := fn(&tx{q: txn}); err != nil {
		return err
	}
	return txn.Commit(ctx)
}

const orderCols = `id, user_id, COALESCE(number,''), status, total, created_at, updated_at`

func scanOrder(row pgx.Row) (orders.Order, error) {
	var o orders.Order
	err := row.Scan(&o.ID, &o.UserID, &o.Number, &o.Status, &o.Total, &o.CreatedAt, &o.UpdatedAt)
	return o, err
}

func getOrder(ctx context.Context, q querier, id, suffix string) (orders.Order, error) {
	o, err := scanOrder(q.QueryRow(ctx,
		`SELECT `+orderCols+` FROM orders WHERE id=$1`+suffix, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Order{}, fmt.Errorf("order %s: %w", id, orders.ErrOrderNotFound)
	}
	return o, err
}

func (s *Store) GetOrder(ctx context.Context, id string) (orders.Order, error) {
	return getOrder(ctx, s.DB, id, "")
}

func listItems(ctx context.Context, q querier, orderID string) ([]orders.OrderItem, error) {
	rows, err := q.Query(ctx,
		`SELECT id, order_id, product_id, qty, price FROM order_items WHERE order_id=$1`, orderID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []orders.OrderItem
	for rows.Next() {
		var it orders.OrderItem
		if err := rows.Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Qty, &it.Price); err != nil {
			return nil, err
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s *Store) ListItems(ctx context.Context, orderID string) ([]orders.OrderItem, error) {
	return listItems(ctx, s.DB, orderID)
}

func paymentByOrder(ctx context.Context, q querier, orderID string) (orders.Payment, bool, error) {
	var p orders.Payment
	err := q.QueryRow(ctx,
		`SELECT id, order_id, status, created_at FROM payments WHERE order_id=$1`, orderID).
		Scan(&p.ID, &p.OrderID, &p.Status, &p.CreatedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Payment{}, false, nil
	}
	if err != nil {
		return orders.Payment{}, false, err
	}
	return p, true, nil
}

func (s *Store) GetPaymentByOrder(ctx context.Context, orderID string) (orders.Payment, bool, error) {
	return paymentByOrder(ctx, s.DB, orderID)
}

func (s *Store) OldestPending(ctx context.Context, userID string) (orders.Order, bool, error) {
	o, err := scanOrder(s.DB.QueryRow(ctx,
		`SELECT `+orderCols+` FROM orders
		 WHERE user_id=$1 AND status=$2
		 ORDER BY created_at ASC, id ASC LIMIT 1`, userID, orders.StatusPending))
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Order{}, false, nil
	}
	if err != nil {
		return orders.Order{}, false, err
	}
	return o, true, nil
}

func (s *Store) GetBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	var b decimal.Decimal
	err := s.DB.QueryRow(ctx,
		`SELECT balance FROM user_profiles WHERE user_id=$1`, userID).Scan(&b)
	if errors.Is(err, pgx.ErrNoRows) {
		return decimal.Zero, fmt.Errorf("user %s: %w", userID, orders.ErrProfileNotFound)
	}
	return b, err
}

const productCols = `id, name, slug, price, stock, active, created_at, updated_at`

func scanProduct(row pgx.Row) (orders.Product, error) {
	var p orders.Product
	err := row.Scan(&p.ID, &p.Name, &p.Slug, &p.Price, &p.Stock, &p.Active, &p.CreatedAt, &p.UpdatedAt)
	return p, err
}

func getProduct(ctx context.Context, q querier, id string) (orders.Product, error) {
	p, err := scanProduct(q.QueryRow(ctx,
		`SELECT `+productCols+` FROM products WHERE id=$1`, id))
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Product{}, fmt.Errorf("product %s: %w", id, orders.ErrProductNotFound)
	}
	return p, err
}

func (s *Store) GetProduct(ctx context.Context, id string) (orders.Product, error) {
	return getProduct(ctx, s.DB, id)
}

func (s *Store) ListProducts(ctx context.Context) ([]orders.Product, error) {
	rows, err := s.DB.Query(ctx,
		`SELECT `+productCols+` FROM products ORDER BY slug`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []orders.Product
	for rows.Next() {
		p, err := scanProduct(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, rows.Err()
}

func (s *Store) CreateProduct(ctx context.Context, p orders.Product) error {
	_, err := s.DB.Exec(ctx, `
		INSERT INTO products(id, name, slug, price, stock, active, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8)`,
		p.ID, p.Name, p.Slug, p.Price, p.Stock, p.Active, p.CreatedAt, p.UpdatedAt)
	return err
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	ct, err := s.DB.Exec(ctx, `DELETE FROM products WHERE id=$1`, id)
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) && pgErr.Code == fkViolation {
		return fmt.Errorf("product %s: %w", id, orders.ErrProductInUse)
	}
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("product %s: %w", id, orders.ErrProductNotFound)
	}
	return nil
}

func (s *Store) SlugTaken(ctx context.Context, slug string) (bool, error) {
	var taken bool
	err := s.DB.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM products WHERE slug=$1)`, slug).Scan(&taken)
	return taken, err
}

func (s *Store) OrderNumberTaken(ctx context.Context, n string) (bool, error) {
	var taken bool
	err := s.DB.QueryRow(ctx,
		`SELECT EXISTS(SELECT 1 FROM orders WHERE number=$1)`, n).Scan(&taken)
	return taken, err
}

func (s *Store) DeleteOrdersBefore(ctx context.Context, st orders.Status, cutoff time.Time) (int64, error) {
	ct, err := s.DB.Exec(ctx,
		`DELETE FROM orders WHERE status=$1 AND created_at < $2`, st, cutoff)
	if err != nil {
		return 0, err
	}
	return ct.RowsAffected(), nil
}

// ---- transaction surface ----

type tx struct{ q pgx.Tx }

func (t *tx) GetOrderForUpdate(ctx context.Context, id string) (orders.Order, error) {
	return getOrder(ctx, t.q, id, ` FOR UPDATE`)
}

func (t *tx) InsertOrder(ctx context.Context, o orders.Order) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO orders(id, user_id, number, status, total, created_at, updated_at)
		VALUES ($1,$2,NULLIF($3,''),$4,$5,$6,$7)`,
		o.ID, o.UserID, o.Number, o.Status, o.Total, o.CreatedAt, o.UpdatedAt)
	return err
}

func (t *tx) SetOrderStatus(ctx context.Context, id string, st orders.Status) error {
	return t.updateOrder(ctx, id,
		`UPDATE orders SET status=$2, updated_at=now() WHERE id=$1`, st)
}

func (t *tx) SetOrderNumber(ctx context.Context, id, number string) error {
	return t.updateOrder(ctx, id,
		`UPDATE orders SET number=$2, updated_at=now() WHERE id=$1`, number)
}

func (t *tx) SetOrderTotal(ctx context.Context, id string, total decimal.Decimal) error {
	return t.updateOrder(ctx, id,
		`UPDATE orders SET total=$2, updated_at=now() WHERE id=$1`, total)
}

func (t *tx) updateOrder(ctx context.Context, id, sql string, arg any) error {
	ct, err := t.q.Exec(ctx, sql, id, arg)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("order %s: %w", id, orders.ErrOrderNotFound)
	}
	return nil
}

func (t *tx) GetProduct(ctx context.Context, id string) (orders.Product, error) {
	return getProduct(ctx, t.q, id)
}

func (t *tx) ListItems(ctx context.Context, orderID string) ([]orders.OrderItem, error) {
	return listItems(ctx, t.q, orderID)
}

func (t *tx) GetItem(ctx context.Context, orderID, productID string) (orders.OrderItem, bool, error) {
	var it orders.OrderItem
	err := t.q.QueryRow(ctx, `
		SELECT id, order_id, product_id, qty, price FROM order_items
		WHERE order_id=$1 AND product_id=$2`, orderID, productID).
		Scan(&it.ID, &it.OrderID, &it.ProductID, &it.Qty, &it.Price)
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.OrderItem{}, false, nil
	}
	if err != nil {
		return orders.OrderItem{}, false, err
	}
	return it, true, nil
}

func (t *tx) InsertItem(ctx context.Context, it orders.OrderItem) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO order_items(id, order_id, product_id, qty, price)
		VALUES ($1,$2,$3,$4,$5)`,
		it.ID, it.OrderID, it.ProductID, it.Qty, it.Price)
	return err
}

func (t *tx) SetItemQty(ctx context.Context, id string, qty int) error {
	_, err := t.q.Exec(ctx, `UPDATE order_items SET qty=$2 WHERE id=$1`, id, qty)
	return err
}

func (t *tx) DeleteItem(ctx context.Context, id string) error {
	_, err := t.q.Exec(ctx, `DELETE FROM order_items WHERE id=$1`, id)
	return err
}

func (t *tx) GetProfileForUpdate(ctx context.Context, userID string) (orders.Profile, error) {
	var p orders.Profile
	err := t.q.QueryRow(ctx,
		`SELECT user_id, balance FROM user_profiles WHERE user_id=$1 FOR UPDATE`, userID).
		Scan(&p.UserID, &p.Balance)
	if errors.Is(err, pgx.ErrNoRows) {
		return orders.Profile{}, fmt.Errorf("user %s: %w", userID, orders.ErrProfileNotFound)
	}
	return p, err
}

func (t *tx) EnsureProfile(ctx context.Context, userID string) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO user_profiles(user_id, balance) VALUES ($1, 0)
		ON CONFLICT (user_id) DO NOTHING`, userID)
	return err
}

func (t *tx) SetBalance(ctx context.Context, userID string, balance decimal.Decimal) error {
	ct, err := t.q.Exec(ctx,
		`UPDATE user_profiles SET balance=$2 WHERE user_id=$1`, userID, balance)
	if err != nil {
		return err
	}
	if ct.RowsAffected() == 0 {
		return fmt.Errorf("user %s: %w", userID, orders.ErrProfileNotFound)
	}
	return nil
}

func (t *tx) GetPaymentByOrder(ctx context.Context, orderID string) (orders.Payment, bool, error) {
	return paymentByOrder(ctx, t.q, orderID)
}

func (t *tx) InsertPayment(ctx context.Context, p orders.Payment) error {
	_, err := t.q.Exec(ctx, `
		INSERT INTO payments(id, order_id, status, created_at)
		VALUES ($1,$2,$3,$4)`,
		p.ID, p.OrderID, p.Status, p.CreatedAt)
	return err
}

func (t *tx) SetPaymentStatus(ctx context.Context, id string, st orders.PaymentStatus) error {
	_, err := t.q.Exec(ctx, `UPDATE payments SET status=$2 WHERE id=$1`, id, st)
	return err
}
