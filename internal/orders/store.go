package orders

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// Store is the durable backing for the ledger and the settlement engine.
// Multi-row mutations go through WithinTx; the one-shot reads below run
// outside any transaction.
type Store interface {
	// WithinTx runs fn inside one transaction. fn returning an error
	// rolls every write back.
	WithinTx(ctx context.Context, fn func(tx Tx) error) error

	GetOrder(ctx context.Context, id string) (Order, error)
	ListItems(ctx context.Context, orderID string) ([]OrderItem, error)
	GetPaymentByOrder(ctx context.Context, orderID string) (Payment, bool, error)

	// OldestPending returns the user's oldest order with status pending,
	// ties broken by created_at ascending. ok=false when none remain.
	OldestPending(ctx context.Context, userID string) (o Order, ok bool, err error)
	GetBalance(ctx context.Context, userID string) (decimal.Decimal, error)

	GetProduct(ctx context.Context, id string) (Product, error)
	ListProducts(ctx context.Context) ([]Product, error)
	CreateProduct(ctx context.Context, p Product) error
	// DeleteProduct fails with ErrProductInUse while any order item
	// references the product.
	DeleteProduct(ctx context.Context, id string) error

	SlugTaken(ctx context.Context, s string) (bool, error)
	OrderNumberTaken(ctx context.Context, n string) (bool, error)

	// DeleteOrdersBefore removes orders in the given status created before
	// cutoff, cascading to their items. Zero rows affected is normal.
	DeleteOrdersBefore(ctx context.Context, st Status, cutoff time.Time) (int64, error)
}

// Tx is the transaction-scoped surface. ForUpdate variants take row locks
// so concurrent settlements for one user serialize on the profile row.
type Tx interface {
	GetOrderForUpdate(ctx context.Context, id string) (Order, error)
	InsertOrder(ctx context.Context, o Order) error
	SetOrderStatus(ctx context.Context, id string, st Status) error
	SetOrderNumber(ctx context.Context, id, number string) error
	SetOrderTotal(ctx context.Context, id string, total decimal.Decimal) error

	GetProduct(ctx context.Context, id string) (Product, error)

	ListItems(ctx context.Context, orderID string) ([]OrderItem, error)
	GetItem(ctx context.Context, orderID, productID string) (it OrderItem, ok bool, err error)
	InsertItem(ctx context.Context, it OrderItem) error
	SetItemQty(ctx context.Context, id string, qty int) error
	DeleteItem(ctx context.Context, id string) error

	GetProfileForUpdate(ctx context.Context, userID string) (Profile, error)
	EnsureProfile(ctx context.Context, userID string) error
	SetBalance(ctx context.Context, userID string, balance decimal.Decimal) error

	GetPaymentByOrder(ctx context.Context, orderID string) (p Payment, ok bool, err error)
	InsertPayment(ctx context.Context, p Payment) error
	SetPaymentStatus(ctx context.Context, id string, st PaymentStatus) error
}
