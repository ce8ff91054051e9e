package orders_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/ibarbylev/go-shop-orders/internal/orders"
)

func TestSettleOne_NoOpOutsidePending(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	cart := e.newCart(t, "u1")
	e.fund(t, "u1", "100.00")

	pay, err := e.engine.SettleOne(ctx, cart.ID)
	if err != nil {
		t.Fatalf("settle cart: %v", err)
	}
	if pay != nil {
		t.Fatal("settling a cart must return no payment")
	}
	if _, ok, _ := e.store.GetPaymentByOrder(ctx, cart.ID); ok {
		t.Fatal("no payment row may be created for a cart")
	}
	if got := e.balance(t, "u1"); !got.Equal(dec(t, "100.00")) {
		t.Fatalf("balance = %s, want untouched 100.00", got)
	}
}

func TestSettleOne_PaidOrderIsNoOp(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.fund(t, "u1", "100.00")
	o := e.pendingOrder(t, "u1", "10.00", time.Now().UTC())

	if _, err := e.engine.SettleOne(ctx, o.ID); err != nil {
		t.Fatalf("first settle: %v", err)
	}
	pay, err := e.engine.SettleOne(ctx, o.ID)
	if err != nil {
		t.Fatalf("second settle: %v", err)
	}
	if pay != nil {
		t.Fatal("re-settling a paid order must be a no-op")
	}
	if got := e.balance(t, "u1"); !got.Equal(dec(t, "90.00")) {
		t.Fatalf("balance = %s, want single debit to 90.00", got)
	}
}

func TestSettleOne_InsufficientFunds(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.fund(t, "u1", "50.00")
	o := e.pendingOrder(t, "u1", "60.00", time.Now().UTC())

	_, err := e.engine.SettleOne(ctx, o.ID)
	if !errors.Is(err, orders.ErrInsufficientFunds) {
		t.Fatalf("err = %v, want ErrInsufficientFunds", err)
	}
	// the failed transaction must leave no trace
	if got := e.order(t, o.ID).Status; got != orders.StatusPending {
		t.Fatalf("status = %s, want still pending", got)
	}
	if got := e.balance(t, "u1"); !got.Equal(dec(t, "50.00")) {
		t.Fatalf("balance = %s, want untouched 50.00", got)
	}
	if _, ok, _ := e.store.GetPaymentByOrder(ctx, o.ID); ok {
		t.Fatal("no payment row on failed settlement")
	}
}

func TestSettleOne_MissingProfile(t *testing.T) {
	e := newEnv(t)
	o := e.pendingOrder(t, "ghost", "10.00", time.Now().UTC())

	if _, err := e.engine.SettleOne(context.Background(), o.ID); !errors.Is(err, orders.ErrProfileNotFound) {
		t.Fatalf("err = %v, want ErrProfileNotFound", err)
	}
}

func TestSettleOne_DebitsAndCompletesPayment(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.fund(t, "u1", "100.00")
	o := e.pendingOrder(t, "u1", "60.00", time.Now().UTC())

	pay, err := e.engine.SettleOne(ctx, o.ID)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if pay == nil || pay.Status != orders.PaymentCompleted {
		t.Fatalf("payment = %+v, want completed", pay)
	}
	if got := e.order(t, o.ID).Status; got != orders.StatusPaid {
		t.Fatalf("status = %s, want paid", got)
	}
	if got := e.balance(t, "u1"); !got.Equal(dec(t, "40.00")) {
		t.Fatalf("balance = %s, want 40.00", got)
	}
}

func TestSettleOne_CompletesPreexistingPendingPayment(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	e.fund(t, "u1", "100.00")
	o := e.pendingOrder(t, "u1", "30.00", time.Now().UTC())

	requested := orders.Payment{
		ID:        uuid.NewString(),
		OrderID:   o.ID,
		Status:    orders.PaymentPending,
		CreatedAt: time.Now().UTC(),
	}
	err := e.store.WithinTx(ctx, func(tx orders.Tx) error {
		return tx.InsertPayment(ctx, requested)
	})
	if err != nil {
		t.Fatalf("insert pending payment: %v", err)
	}

	pay, err := e.engine.SettleOne(ctx, o.ID)
	if err != nil {
		t.Fatalf("settle: %v", err)
	}
	if pay.ID != requested.ID {
		t.Fatalf("payment id = %s, want the pre-existing row %s completed", pay.ID, requested.ID)
	}
	if pay.Status != orders.PaymentCompleted {
		t.Fatalf("payment status = %s, want completed", pay.Status)
	}
}

func TestSettleOne_EmitsOrderPaid(t *testing.T) {
	e := newEnv(t)
	pub := &recordPub{}
	e.engine.PubPaid = pub
	e.fund(t, "u1", "100.00")
	o := e.pendingOrder(t, "u1", "10.00", time.Now().UTC())

	if _, err := e.engine.SettleOne(context.Background(), o.ID); err != nil {
		t.Fatalf("settle: %v", err)
	}
	if len(pub.msgs) != 1 {
		t.Fatalf("published = %d, want 1 order.paid event", len(pub.msgs))
	}
}

func TestDrainPending_BalanceBoundedFIFO(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	now := time.Now().UTC()
	e.fund(t, "u1", "100.00")
	first := e.pendingOrder(t, "u1", "60.00", now.Add(-2*time.Minute))
	second := e.pendingOrder(t, "u1", "50.00", now.Add(-1*time.Minute))

	n, err := e.engine.DrainPending(ctx, "u1")
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if n != 1 {
		t.Fatalf("settled = %d, want 1", n)
	}
	if got := e.order(t, first.ID).Status; got != orders.StatusPaid {
		t.Fatalf("first order status = %s, want paid", got)
	}
	if got := e.order(t, second.ID).Status; got != orders.StatusPending {
		t.Fatalf("second order status = %s, want still pending (40 < 50)", got)
	}
	if got := e.balance(t, "u1"); !got.Equal(dec(t, "40.00")) {
		t.Fatalf("balance = %s, want 40.00", got)
	}
}

func TestDrainPending_SettlesAllWhenFunded(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	now := time.Now().UTC()
	e.fund(t, "u1", "110.00")
	first := e.pendingOrder(t, "u1", "60.00", now.Add(-2*time.Minute))
	second := e.pendingOrder(t, "u1", "50.00", now.Add(-1*time.Minute))

	n, err := e.engine.DrainPending(ctx, "u1")
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if n != 2 {
		t.Fatalf("settled = %d, want 2", n)
	}
	if got := e.balance(t, "u1"); !got.IsZero() {
		t.Fatalf("balance = %s, want 0", got)
	}
	for _, id := range []string{first.ID, second.ID} {
		if got := e.order(t, id).Status; got != orders.StatusPaid {
			t.Fatalf("order %s status = %s, want paid", id, got)
		}
		pay, ok, err := e.store.GetPaymentByOrder(ctx, id)
		if err != nil || !ok {
			t.Fatalf("payment for %s missing: ok=%v err=%v", id, ok, err)
		}
		if pay.Status != orders.PaymentCompleted {
			t.Fatalf("payment for %s = %s, want completed", id, pay.Status)
		}
	}
}

func TestDrainPending_StrictFIFONoSkipping(t *testing.T) {
	e := newEnv(t)
	ctx := context.Background()
	now := time.Now().UTC()
	e.fund(t, "u1", "50.00")
	// the older order is unaffordable; the newer one would fit but FIFO
	// stops at the first unaffordable candidate
	big := e.pendingOrder(t, "u1", "60.00", now.Add(-2*time.Minute))
	small := e.pendingOrder(t, "u1", "40.00", now.Add(-1*time.Minute))

	n, err := e.engine.DrainPending(ctx, "u1")
	if err != nil {
		t.Fatalf("drain: %v", err)
	}
	if n != 0 {
		t.Fatalf("settled = %d, want 0", n)
	}
	for _, id := range []string{big.ID, small.ID} {
		if got := e.order(t, id).Status; got != orders.StatusPending {
			t.Fatalf("order %s status = %s, want pending", id, got)
		}
	}
}

func TestDrainPending_NoProfileIsQuiet(t *testing.T) {
	e := newEnv(t)
	_ = e.pendingOrder(t, "ghost", "10.00", time.Now().UTC())

	n, err := e.engine.DrainPending(context.Background(), "ghost")
	if err != nil {
		t.Fatalf("drain without wallet: %v", err)
	}
	if n != 0 {
		t.Fatalf("settled = %d, want 0", n)
	}
}

func TestDrainPending_NoPendingOrders(t *testing.T) {
	e := newEnv(t)
	e.fund(t, "u1", "100.00")

	n, err := e.engine.DrainPending(context.Background(), "u1")
	if err != nil || n != 0 {
		t.Fatalf("drain: n=%d err=%v, want 0, nil", n, err)
	}
}
