package orders_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/shopspring/decimal"

	"github.com/ibarbylev/go-shop-orders/internal/memstore"
	"github.com/ibarbylev/go-shop-orders/internal/orders"
)

// env bundles a memstore-backed ledger, engine and minter for tests.
type env struct {
	store  *memstore.Store
	minter *orders.Minter
	engine *orders.Engine
	ledger *orders.Ledger
}

func newEnv(t *testing.T) *env {
	t.Helper()
	s := memstore.New()
	m := &orders.Minter{SlugTaken: s.SlugTaken, NumberTaken: s.OrderNumberTaken}
	e := &orders.Engine{Store: s, Service: "test"}
	l := &orders.Ledger{Store: s, Minter: m, Engine: e, Service: "test"}
	return &env{store: s, minter: m, engine: e, ledger: l}
}

func dec(t *testing.T, s string) decimal.Decimal {
	t.Helper()
	d, err := decimal.NewFromString(s)
	if err != nil {
		t.Fatalf("bad decimal %q: %v", s, err)
	}
	return d
}

func (e *env) addProduct(t *testing.T, name, price string) orders.Product {
	t.Helper()
	ctx := context.Background()
	s, err := e.minter.ProductSlug(ctx, name)
	if err != nil {
		t.Fatalf("mint slug: %v", err)
	}
	now := time.Now().UTC()
	p := orders.Product{
		ID:        uuid.NewString(),
		Name:      name,
		Slug:      s,
		Price:     dec(t, price),
		Stock:     10,
		Active:    true,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := e.store.CreateProduct(ctx, p); err != nil {
		t.Fatalf("create product: %v", err)
	}
	return p
}

func (e *env) newCart(t *testing.T, userID string) orders.Order {
	t.Helper()
	o, err := e.ledger.CreateCart(context.Background(), userID)
	if err != nil {
		t.Fatalf("create cart: %v", err)
	}
	return o
}

// pendingOrder inserts an order directly in pending status with an
// explicit total and creation time, bypassing the ledger.
func (e *env) pendingOrder(t *testing.T, userID, total string, createdAt time.Time) orders.Order {
	t.Helper()
	o := orders.Order{
		ID:        uuid.NewString(),
		UserID:    userID,
		Number:    createdAt.Format("20060102__150405") + "__" + userID + "__" + uuid.NewString()[:6],
		Status:    orders.StatusPending,
		Total:     dec(t, total),
		CreatedAt: createdAt,
		UpdatedAt: createdAt,
	}
	err := e.store.WithinTx(context.Background(), func(tx orders.Tx) error {
		return tx.InsertOrder(context.Background(), o)
	})
	if err != nil {
		t.Fatalf("insert pending order: %v", err)
	}
	return o
}

func (e *env) fund(t *testing.T, userID, amount string) {
	t.Helper()
	ctx := context.Background()
	err := e.store.WithinTx(ctx, func(tx orders.Tx) error {
		if err := tx.EnsureProfile(ctx, userID); err != nil {
			return err
		}
		return tx.SetBalance(ctx, userID, dec(t, amount))
	})
	if err != nil {
		t.Fatalf("fund %s: %v", userID, err)
	}
}

func (e *env) balance(t *testing.T, userID string) decimal.Decimal {
	t.Helper()
	b, err := e.store.GetBalance(context.Background(), userID)
	if err != nil {
		t.Fatalf("get balance: %v", err)
	}
	return b
}

func (e *env) order(t *testing.T, id string) orders.Order {
	t.Helper()
	o, err := e.store.GetOrder(context.Background(), id)
	if err != nil {
		t.Fatalf("get order: %v", err)
	}
	return o
}

// checkTotal asserts the derived-total invariant: order.total equals the
// sum of price*qty over its current items.
func (e *env) checkTotal(t *testing.T, orderID string) {
	t.Helper()
	ctx := context.Background()
	o := e.order(t, orderID)
	items, err := e.store.ListItems(ctx, orderID)
	if err != nil {
		t.Fatalf("list items: %v", err)
	}
	want := decimal.Zero
	for _, it := range items {
		want = want.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Qty))))
	}
	if !o.Total.Equal(want) {
		t.Fatalf("order %s total = %s, sum of items = %s", orderID, o.Total, want)
	}
}

// recordPub captures published messages for assertions.
type recordPub struct {
	msgs []kafkago.Message
}

func (p *recordPub) Publish(key, value []byte, headers ...kafkago.Header) {
	p.msgs = append(p.msgs, kafkago.Message{Key: key, Value: value, Headers: headers})
}
