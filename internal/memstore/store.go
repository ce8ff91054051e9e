// Package memstore is an in-memory orders.Store used by tests and local
// runs. A single mutex serializes transactions; rollback restores a
// snapshot taken at transaction start. Unique constraints and the
// cascade/restrict delete rules mirror the postgres schema.
package memstore

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/ibarbylev/go-shop-orders/internal/orders"
)

type data struct {
	orders   map[string]orders.Order
	items    map[string]orders.OrderItem
	products map[string]orders.Product
	payments map[string]orders.Payment
	profiles map[string]orders.Profile
}

func (d *data) clone() *data {
	c := &data{
		orders:   make(map[string]orders.Order, len(d.orders)),
		items:    make(map[string]orders.OrderItem, len(d.items)),
		products: make(map[string]orders.Product, len(d.products)),
		payments: make(map[string]orders.Payment, len(d.payments)),
		profiles: make(map[string]orders.Profile, len(d.profiles)),
	}
	for k, v := range d.orders {
		c.orders[k] = v
	}
	for k, v := range d.items {
		c.items[k] = v
	}
	for k, v := range d.products {
		c.products[k] = v
	}
	for k, v := range d.payments {
		c.payments[k] = v
	}
	for k, v := range d.profiles {
		c.profiles[k] = v
	}
	return c
}

type Store struct {
	mu sync.Mutex
	d  *data
}

var (
	_ orders.Store = (*Store)(nil)
	_ orders.Tx    = (*tx)(nil)
)

func New() *Store {
	return &Store{d: &data{
		orders:   map[string]orders.Order{},
		items:    map[string]orders.OrderItem{},
		products: map[string]orders.Product{},
		payments: map[string]orders.Payment{},
		profiles: map[string]orders.Profile{},
	}}
}

func (s *Store) WithinTx(ctx context.Context, fn func(tx orders.Tx) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := s.d.clone()
	if err := fn(&tx{d: s.d}); err != nil {
		s.d = snap
		return err
	}
	return nil
}

// ---- one-shot reads / deletes ----

func (s *Store) GetOrder(ctx context.Context, id string) (orders.Order, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return getOrder(s.d, id)
}

func (s *Store) ListItems(ctx context.Context, orderID string) ([]orders.OrderItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return listItems(s.d, orderID), nil
}

func (s *Store) GetPaymentByOrder(ctx context.Context, orderID string) (orders.Payment, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return paymentByOrder(s.d, orderID)
}

func (s *Store) OldestPending(ctx context.Context, userID string) (orders.Order, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var (
		best  orders.Order
		found bool
	)
	for _, o := range s.d.orders {
		if o.UserID != userID || o.Status != orders.StatusPending {
			continue
		}
		if !found || o.CreatedAt.Before(best.CreatedAt) ||
			(o.CreatedAt.Equal(best.CreatedAt) && o.ID < best.ID) {
			best = o
			found = true
		}
	}
	return best, found, nil
}

func (s *Store) GetBalance(ctx context.Context, userID string) (decimal.Decimal, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.d.profiles[userID]
	if !ok {
		return decimal.Zero, fmt.Errorf("user %s: %w", userID, orders.ErrProfileNotFound)
	}
	return p.Balance, nil
}

func (s *Store) GetProduct(ctx context.Context, id string) (orders.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return getProduct(s.d, id)
}

func (s *Store) ListProducts(ctx context.Context) ([]orders.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]orders.Product, 0, len(s.d.products))
	for _, p := range s.d.products {
		out = append(out, p)
	}
	return out, nil
}

func (s *Store) CreateProduct(ctx context.Context, p orders.Product) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, q := range s.d.products {
		if q.Slug == p.Slug {
			return fmt.Errorf("slug %q already exists", p.Slug)
		}
	}
	s.d.products[p.ID] = p
	return nil
}

func (s *Store) DeleteProduct(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.d.products[id]; !ok {
		return fmt.Errorf("product %s: %w", id, orders.ErrProductNotFound)
	}
	for _, it := range s.d.items {
		if it.ProductID == id {
			return fmt.Errorf("product %s: %w", id, orders.ErrProductInUse)
		}
	}
	delete(s.d.products, id)
	return nil
}

func (s *Store) SlugTaken(ctx context.Context, slug string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, p := range s.d.products {
		if p.Slug == slug {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) OrderNumberTaken(ctx context.Context, n string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, o := range s.d.orders {
		if o.Number == n {
			return true, nil
		}
	}
	return false, nil
}

func (s *Store) DeleteOrdersBefore(ctx context.Context, st orders.Status, cutoff time.Time) (int64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var n int64
	for id, o := range s.d.orders {
		if o.Status != st || !o.CreatedAt.Before(cutoff) {
			continue
		}
		delete(s.d.orders, id)
		n++
		// cascade: items and payment go with the order
		for itID, it := range s.d.items {
			if it.OrderID == id {
				delete(s.d.items, itID)
			}
		}
		for pID, p := range s.d.payments {
			if p.OrderID == id {
				delete(s.d.payments, pID)
			}
		}
	}
	return n, nil
}

// ---- shared lookups ----

func getOrder(d *data, id string) (orders.Order, error) {
	o, ok := d.orders[id]
	if !ok {
		return orders.Order{}, fmt.Errorf("order %s: %w", id, orders.ErrOrderNotFound)
	}
	return o, nil
}

func getProduct(d *data, id string) (orders.Product, error) {
	p, ok := d.products[id]
	if !ok {
		return orders.Product{}, fmt.Errorf("product %s: %w", id, orders.ErrProductNotFound)
	}
	return p, nil
}

func listItems(d *data, orderID string) []orders.OrderItem {
	var out []orders.OrderItem
	for _, it := range d.items {
		if it.OrderID == orderID {
			out = append(out, it)
		}
	}
	return out
}

func paymentByOrder(d *data, orderID string) (orders.Payment, bool, error) {
	for _, p := range d.payments {
		if p.OrderID == orderID {
			return p, true, nil
		}
	}
	return orders.Payment{}, false, nil
}

// ---- transaction surface ----

type tx struct{ d *data }

func (t *tx) GetOrderForUpdate(ctx context.Context, id string) (orders.Order, error) {
	return getOrder(t.d, id)
}

func (t *tx) InsertOrder(ctx context.Context, o orders.Order) error {
	if _, ok := t.d.orders[o.ID]; ok {
		return fmt.Errorf("order %s already exists", o.ID)
	}
	t.d.orders[o.ID] = o
	return nil
}

func (t *tx) SetOrderStatus(ctx context.Context, id string, st orders.Status) error {
	o, err := getOrder(t.d, id)
	if err != nil {
		return err
	}
	o.Status = st
	o.UpdatedAt = time.Now().UTC()
	t.d.orders[id] = o
	return nil
}

func (t *tx) SetOrderNumber(ctx context.Context, id, number string) error {
	for _, o := range t.d.orders {
		if o.Number == number && o.ID != id {
			return fmt.Errorf("order number %q already exists", number)
		}
	}
	o, err := getOrder(t.d, id)
	if err != nil {
		return err
	}
	o.Number = number
	o.UpdatedAt = time.Now().UTC()
	t.d.orders[id] = o
	return nil
}

func (t *tx) SetOrderTotal(ctx context.Context, id string, total decimal.Decimal) error {
	o, err := getOrder(t.d, id)
	if err != nil {
		return err
	}
	o.Total = total
	o.UpdatedAt = time.Now().UTC()
	t.d.orders[id] = o
	return nil
}

func (t *tx) GetProduct(ctx context.Context, id string) (orders.Product, error) {
	return getProduct(t.d, id)
}

func (t *tx) ListItems(ctx context.Context, orderID string) ([]orders.OrderItem, error) {
	return listItems(t.d, orderID), nil
}

func (t *tx) GetItem(ctx context.Context, orderID, productID string) (orders.OrderItem, bool, error) {
	for _, it := range t.d.items {
		if it.OrderID == orderID && it.ProductID == productID {
			return it, true, nil
		}
	}
	return orders.OrderItem{}, false, nil
}

func (t *tx) InsertItem(ctx context.Context, it orders.OrderItem) error {
	for _, x := range t.d.items {
		if x.OrderID == it.OrderID && x.ProductID == it.ProductID {
			return fmt.Errorf("item for order %s product %s already exists", it.OrderID, it.ProductID)
		}
	}
	if _, ok := t.d.products[it.ProductID]; !ok {
		return fmt.Errorf("product %s: %w", it.ProductID, orders.ErrProductNotFound)
	}
	t.d.items[it.ID] = it
	return nil
}

func (t *tx) SetItemQty(ctx context.Context, id string, qty int) error {
	it, ok := t.d.items[id]
	if !ok {
		return fmt.Errorf("item %s not found", id)
	}
	it.Qty = qty
	t.d.items[id] = it
	return nil
}

func (t *tx) DeleteItem(ctx context.Context, id string) error {
	delete(t.d.items, id)
	return nil
}

func (t *tx) GetProfileForUpdate(ctx context.Context, userID string) (orders.Profile, error) {
	p, ok := t.d.profiles[userID]
	if !ok {
		return orders.Profile{}, fmt.Errorf("user %s: %w", userID, orders.ErrProfileNotFound)
	}
	return p, nil
}

func (t *tx) EnsureProfile(ctx context.Context, userID string) error {
	if _, ok := t.d.profiles[userID]; !ok {
		t.d.profiles[userID] = orders.Profile{UserID: userID, Balance: decimal.Zero}
	}
	return nil
}

func (t *tx) SetBalance(ctx context.Context, userID string, balance decimal.Decimal) error {
	if _, ok := t.d.profiles[userID]; !ok {
		return fmt.Errorf("user %s: %w", userID, orders.ErrProfileNotFound)
	}
	t.d.profiles[userID] = orders.Profile{UserID: userID, Balance: balance}
	return nil
}

func (t *tx) GetPaymentByOrder(ctx context.Context, orderID string) (orders.Payment, bool, error) {
	return paymentByOrder(t.d, orderID)
}

func (t *tx) InsertPayment(ctx context.Context, p orders.Payment) error {
	for _, x := range t.d.payments {
		if x.OrderID == p.OrderID {
			return fmt.Errorf("payment for order %s already exists", p.OrderID)
		}
	}
	t.d.payments[p.ID] = p
	return nil
}

func (t *tx) SetPaymentStatus(ctx context.Context, id string, st orders.PaymentStatus) error {
	p, ok := t.d.payments[id]
	if !ok {
		return fmt.Errorf("payment %s not found", id)
	}
	p.Status = st
	t.d.payments[id] = p
	return nil
}
