package orders_test

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/ibarbylev/go-shop-orders/internal/orders"
)

// setProbe backs an ExistsFunc with a plain map.
func setProbe(occupied map[string]bool) orders.ExistsFunc {
	return func(ctx context.Context, cand string) (bool, error) {
		return occupied[cand], nil
	}
}

func TestProductSlug_Normalizes(t *testing.T) {
	m := &orders.Minter{SlugTaken: setProbe(nil)}

	cases := []struct{ name, want string }{
		{"Red Paint", "red-paint"},
		{"  Spaced   Out  ", "spaced-out"},
		{"Hello, World!", "hello-world"},
		{"Übergröße", "ubergrosse"},
	}
	for _, c := range cases {
		got, err := m.ProductSlug(context.Background(), c.name)
		if err != nil {
			t.Fatalf("%q: %v", c.name, err)
		}
		if got != c.want {
			t.Fatalf("%q: slug = %q, want %q", c.name, got, c.want)
		}
	}
}

func TestProductSlug_EmptyNameGetsFallbackBase(t *testing.T) {
	m := &orders.Minter{SlugTaken: setProbe(nil)}
	got, err := m.ProductSlug(context.Background(), "!!!")
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if got == "" {
		t.Fatal("slug must be non-empty")
	}
}

func TestProductSlug_CollisionNeverDuplicates(t *testing.T) {
	occupied := map[string]bool{"red-paint": true}
	m := &orders.Minter{SlugTaken: setProbe(occupied)}

	for i := 0; i < 100; i++ {
		got, err := m.ProductSlug(context.Background(), "Red Paint")
		if err != nil {
			t.Fatalf("mint %d: %v", i, err)
		}
		if occupied[got] {
			t.Fatalf("mint %d returned occupied slug %q", i, got)
		}
		if !strings.HasPrefix(got, "red-paint-") {
			t.Fatalf("mint %d: %q should carry the base plus a suffix", i, got)
		}
		occupied[got] = true
	}
}

func TestProductSlug_ProbeErrorPropagates(t *testing.T) {
	boom := errors.New("probe down")
	m := &orders.Minter{SlugTaken: func(ctx context.Context, s string) (bool, error) {
		return false, boom
	}}
	if _, err := m.ProductSlug(context.Background(), "x"); !errors.Is(err, boom) {
		t.Fatalf("err = %v, want probe error", err)
	}
}

func TestOrderNumber_Format(t *testing.T) {
	m := &orders.Minter{NumberTaken: setProbe(nil)}
	now := time.Date(2025, 11, 23, 10, 15, 2, 0, time.UTC)

	got, err := m.OrderNumber(context.Background(), "42", now)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if got != "20251123__101502__42" {
		t.Fatalf("number = %q, want 20251123__101502__42", got)
	}
}

func TestOrderNumber_CollisionAdvancesOneSecond(t *testing.T) {
	occupied := map[string]bool{"20251123__101502__42": true}
	m := &orders.Minter{NumberTaken: setProbe(occupied)}
	now := time.Date(2025, 11, 23, 10, 15, 2, 0, time.UTC)

	got, err := m.OrderNumber(context.Background(), "42", now)
	if err != nil {
		t.Fatalf("mint: %v", err)
	}
	if got != "20251123__101503__42" {
		t.Fatalf("number = %q, want the next second", got)
	}
}

func TestOrderNumber_SameSecondSameUserNeverCollides(t *testing.T) {
	occupied := map[string]bool{}
	m := &orders.Minter{NumberTaken: setProbe(occupied)}
	now := time.Date(2025, 11, 23, 10, 15, 2, 0, time.UTC)

	seen := map[string]bool{}
	for i := 0; i < 10; i++ {
		got, err := m.OrderNumber(context.Background(), "42", now)
		if err != nil {
			t.Fatalf("mint %d: %v", i, err)
		}
		if seen[got] {
			t.Fatalf("mint %d returned duplicate %q", i, got)
		}
		seen[got] = true
		occupied[got] = true
	}
}

func TestOrderNumber_ExhaustionIsAnError(t *testing.T) {
	m := &orders.Minter{NumberTaken: func(ctx context.Context, s string) (bool, error) {
		return true, nil // everything is taken
	}}
	_, err := m.OrderNumber(context.Background(), "42", time.Now())
	if !errors.Is(err, orders.ErrMintExhausted) {
		t.Fatalf("err = %v, want ErrMintExhausted", err)
	}
}

func TestProductSlug_ExhaustionIsAnError(t *testing.T) {
	m := &orders.Minter{SlugTaken: func(ctx context.Context, s string) (bool, error) {
		return true, nil
	}}
	_, err := m.ProductSlug(context.Background(), "anything")
	if !errors.Is(err, orders.ErrMintExhausted) {
		t.Fatalf("err = %v, want ErrMintExhausted", err)
	}
}

func ExampleMinter_OrderNumber() {
	m := &orders.Minter{NumberTaken: func(ctx context.Context, s string) (bool, error) {
		return false, nil
	}}
	n, _ := m.OrderNumber(context.Background(), "7", time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC))
	fmt.Println(n)
	// Output: 20250102__030405__7
}
