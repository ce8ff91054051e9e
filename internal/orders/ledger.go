package orders

import (
	"context"
	"fmt"
	"log"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Ledger owns orders and their line items: add-or-increment item
// semantics, derived total maintenance, the cart -> pending transition and
// the reclamation sweeps.
type Ledger struct {
	Store    Store
	Minter   *Minter
	Engine   *Engine   // auto-drain on checkout, optional
	PubTotal Publisher // order.total_changed, optional
	PubOut   Publisher // order.checked_out, optional
	Service  string
	Now      func() time.Time
}

func (l *Ledger) now() time.Time {
	if l.Now != nil {
		return l.Now()
	}
	return time.Now().UTC()
}

// CreateCart opens an empty order in cart status for the user.
func (l *Ledger) CreateCart(ctx context.Context, userID string) (Order, error) {
	now := l.now()
	o := Order{
		ID:        uuid.NewString(),
		UserID:    userID,
		Status:    StatusCart,
		Total:     decimal.Zero,
		CreatedAt: now,
		UpdatedAt: now,
	}
	err := l.Store.WithinTx(ctx, func(tx Tx) error {
		return tx.InsertOrder(ctx, o)
	})
	if err != nil {
		return Order{}, err
	}
	return o, nil
}

// AddItem adds qty of the product to the order, incrementing the existing
// line if one exists, else inserting one with a snapshot of the product's
// current price. The order total is recalculated in the same transaction.
func (l *Ledger) AddItem(ctx context.Context, orderID, productID string, qty int) error {
	if qty < 1 {
		return fmt.Errorf("qty %d: %w", qty, ErrInvalidQty)
	}
	return l.mutateItems(ctx, orderID, func(tx Tx) error {
		p, err := tx.GetProduct(ctx, productID)
		if err != nil {
			return err
		}
		it, ok, err := tx.GetItem(ctx, orderID, productID)
		if err != nil {
			return err
		}
		if ok {
			return tx.SetItemQty(ctx, it.ID, it.Qty+qty)
		}
		return tx.InsertItem(ctx, OrderItem{
			ID:        uuid.NewString(),
			OrderID:   orderID,
			ProductID: productID,
			Qty:       qty,
			Price:     p.Price,
		})
	})
}

// RemoveItem drops the product's line from the order. Removing an absent
// line is a no-op; the total is still recalculated.
func (l *Ledger) RemoveItem(ctx context.Context, orderID, productID string) error {
	return l.mutateItems(ctx, orderID, func(tx Tx) error {
		it, ok, err := tx.GetItem(ctx, orderID, productID)
		if err != nil || !ok {
			return err
		}
		return tx.DeleteItem(ctx, it.ID)
	})
}

// SetItemQty overwrites the line's quantity; qty 0 removes the line.
func (l *Ledger) SetItemQty(ctx context.Context, orderID, productID string, qty int) error {
	if qty < 0 {
		return fmt.Errorf("qty %d: %w", qty, ErrInvalidQty)
	}
	if qty == 0 {
		return l.RemoveItem(ctx, orderID, productID)
	}
	return l.mutateItems(ctx, orderID, func(tx Tx) error {
		it, ok, err := tx.GetItem(ctx, orderID, productID)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("order %s product %s: %w", orderID, productID, ErrProductNotFound)
		}
		return tx.SetItemQty(ctx, it.ID, qty)
	})
}

// mutateItems wraps an item mutation with the order row lock and the
// mandatory total recalculation, then emits order.total_changed. Every
// item write path funnels through here so the derived total can never go
// stale.
func (l *Ledger) mutateItems(ctx context.Context, orderID string, fn func(tx Tx) error) error {
	var total decimal.Decimal
	err := l.Store.WithinTx(ctx, func(tx Tx) error {
		if _, err := tx.GetOrderForUpdate(ctx, orderID); err != nil {
			return err
		}
		if err := fn(tx); err != nil {
			return err
		}
		t, err := recalcTotal(ctx, tx, orderID)
		if err != nil {
			return err
		}
		total = t
		return nil
	})
	if err != nil {
		return err
	}
	Emit(l.PubTotal, EventTotalChanged, l.Service, orderID, TotalChangedPayload{
		OrderID: orderID,
		Total:   total,
	})
	return nil
}

// recalcTotal sets order.total = sum(item.price * item.qty) over the
// current items and persists only the total (plus updated_at).
func recalcTotal(ctx context.Context, tx Tx, orderID string) (decimal.Decimal, error) {
	items, err := tx.ListItems(ctx, orderID)
	if err != nil {
		return decimal.Zero, err
	}
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Price.Mul(decimal.NewFromInt(int64(it.Qty))))
	}
	return total, tx.SetOrderTotal(ctx, orderID, total)
}

// ToPending transitions a cart to pending: fails with ErrInvalidState for
// any other starting status, mints the order number if absent, persists,
// then synchronously attempts the owner's auto-drain. The transition is
// not complete until the drain attempt returns.
func (l *Ledger) ToPending(ctx context.Context, orderID string) (Order, error) {
	cur, err := l.Store.GetOrder(ctx, orderID)
	if err != nil {
		return Order{}, err
	}
	number := cur.Number
	if number == "" {
		// the minter probes through the store, so minting must happen
		// before the transaction opens; the unique constraint on number
		// backstops a concurrent mint of the same candidate
		number, err = l.Minter.OrderNumber(ctx, cur.UserID, l.now())
		if err != nil {
			return Order{}, err
		}
	}
	var out Order
	err = l.Store.WithinTx(ctx, func(tx Tx) error {
		o, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		if !CanTransition(o.Status, StatusPending) {
			return fmt.Errorf("order %s is %s: %w", o.ID, o.Status, ErrInvalidState)
		}
		if o.Number == "" {
			if err := tx.SetOrderNumber(ctx, o.ID, number); err != nil {
				return err
			}
			o.Number = number
		}
		if err := tx.SetOrderStatus(ctx, o.ID, StatusPending); err != nil {
			return err
		}
		o.Status = StatusPending
		out = o
		return nil
	})
	if err != nil {
		return Order{}, err
	}
	Emit(l.PubOut, EventCheckedOut, l.Service, out.ID, CheckedOutPayload{
		OrderID: out.ID,
		Number:  out.Number,
		UserID:  out.UserID,
		Total:   out.Total,
	})
	if l.Engine != nil {
		if _, err := l.Engine.DrainPending(ctx, out.UserID); err != nil {
			// the transition is already committed; a failed drain must
			// not read as a failed checkout
			log.Printf("auto drain after checkout %s: %v", out.ID, err)
			return out, nil
		}
		// the drain may have paid this very order
		return l.Store.GetOrder(ctx, out.ID)
	}
	return out, nil
}

const cartTTL = 7 * 24 * time.Hour

// CleanupExpiredCarts deletes carts untouched for more than 7 days.
// Data loss is intentional policy.
func (l *Ledger) CleanupExpiredCarts(ctx context.Context) (int64, error) {
	return l.Store.DeleteOrdersBefore(ctx, StatusCart, l.now().Add(-cartTTL))
}

// CleanupOldPending deletes pending orders unpaid for more than days
// (default 100).
func (l *Ledger) CleanupOldPending(ctx context.Context, days int) (int64, error) {
	if days <= 0 {
		days = 100
	}
	cutoff := l.now().Add(-time.Duration(days) * 24 * time.Hour)
	return l.Store.DeleteOrdersBefore(ctx, StatusPending, cutoff)
}
