package orders

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Engine settles pending orders against the owner's balance.
//
// State machine per order: pending -> paid (terminal) or pending -> pending
// (insufficient funds). cart and paid orders are never settlement-eligible.
type Engine struct {
	Store   Store
	PubPaid Publisher // order.paid, optional
	Service string
	Now     func() time.Time // defaults to time.Now
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now().UTC()
}

// SettleOne pays a single pending order in one atomic transaction. Calling
// it on an order in any other status is a no-op returning a nil payment,
// so it is safe to call from cascading contexts.
//
// Ordering inside the transaction matters: the order is marked paid before
// the debited balance lands, so anything reacting to the balance write can
// no longer select this order as pending.
func (e *Engine) SettleOne(ctx context.Context, orderID string) (*Payment, error) {
	var (
		pay    *Payment
		owner  string
		amount decimal.Decimal
	)
	err := e.Store.WithinTx(ctx, func(tx Tx) error {
		o, err := tx.GetOrderForUpdate(ctx, orderID)
		if err != nil {
			return err
		}
		// deliberate no-op guard, not an error: cascading callers may
		// race each other to the same order
		if !CanTransition(o.Status, StatusPaid) {
			return nil
		}
		prof, err := tx.GetProfileForUpdate(ctx, o.UserID)
		if err != nil {
			return err
		}
		if prof.Balance.LessThan(o.Total) {
			return fmt.Errorf("order %s total %s balance %s: %w",
				o.ID, o.Total, prof.Balance, ErrInsufficientFunds)
		}

		if err := tx.SetOrderStatus(ctx, o.ID, StatusPaid); err != nil {
			return err
		}
		if err := tx.SetBalance(ctx, o.UserID, prof.Balance.Sub(o.Total)); err != nil {
			return err
		}

		// One payment per order: complete a pre-existing pending row if
		// the payment was requested out of band, otherwise insert.
		p, ok, err := tx.GetPaymentByOrder(ctx, o.ID)
		if err != nil {
			return err
		}
		if ok {
			if err := tx.SetPaymentStatus(ctx, p.ID, PaymentCompleted); err != nil {
				return err
			}
			p.Status = PaymentCompleted
		} else {
			p = Payment{
				ID:        uuid.NewString(),
				OrderID:   o.ID,
				Status:    PaymentCompleted,
				CreatedAt: e.now(),
			}
			if err := tx.InsertPayment(ctx, p); err != nil {
				return err
			}
		}
		pay = &p
		owner = o.UserID
		amount = o.Total
		return nil
	})
	if err != nil {
		return nil, err
	}
	if pay != nil {
		Emit(e.PubPaid, EventOrderPaid, e.Service, orderID, OrderPaidPayload{
			OrderID:   orderID,
			UserID:    owner,
			PaymentID: pay.ID,
			Amount:    amount,
		})
	}
	return pay, nil
}

// DrainPending settles the user's pending orders oldest-first while the
// balance covers the next candidate. Strict FIFO: the first unaffordable
// order stops the drain even if a later, cheaper one would fit. The
// balance is re-read on every iteration since SettleOne mutates it.
// Returns the number of orders settled.
func (e *Engine) DrainPending(ctx context.Context, userID string) (int, error) {
	settled := 0
	for {
		o, ok, err := e.Store.OldestPending(ctx, userID)
		if err != nil {
			return settled, err
		}
		if !ok {
			return settled, nil
		}
		bal, err := e.Store.GetBalance(ctx, userID)
		if errors.Is(err, ErrProfileNotFound) {
			return settled, nil // no wallet, nothing to drain
		}
		if err != nil {
			return settled, err
		}
		if bal.LessThan(o.Total) {
			return settled, nil
		}
		p, err := e.SettleOne(ctx, o.ID)
		if errors.Is(err, ErrInsufficientFunds) {
			// concurrent debit between the balance read and the settle
			return settled, nil
		}
		if err != nil {
			return settled, err
		}
		if p != nil {
			settled++
		}
	}
}
