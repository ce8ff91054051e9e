package postgres

import (
	"context"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Migrate applies the schema. Statements are idempotent so every binary
// can run this at startup.
//
// Constraints carry three of the domain invariants: unique slug + order
// number, one payment per order, and CASCADE from orders to items vs
// RESTRICT from items to products.
var migrations = []string{
	`CREATE TABLE IF NOT EXISTS user_profiles (
		user_id    TEXT PRIMARY KEY,
		balance    NUMERIC(10,2) NOT NULL DEFAULT 0 CHECK (balance >= 0)
	)`,
	`CREATE TABLE IF NOT EXISTS products (
		id         UUID PRIMARY KEY,
		name       TEXT NOT NULL,
		slug       TEXT NOT NULL UNIQUE CHECK (slug <> ''),
		price      NUMERIC(10,2) NOT NULL,
		stock      INT NOT NULL DEFAULT 0,
		active     BOOLEAN NOT NULL DEFAULT TRUE,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE TABLE IF NOT EXISTS orders (
		id         UUID PRIMARY KEY,
		user_id    TEXT NOT NULL,
		number     TEXT UNIQUE,
		status     TEXT NOT NULL DEFAULT 'cart',
		total      NUMERIC(10,2) NOT NULL DEFAULT 0,
		created_at TIMESTAMPTZ NOT NULL DEFAULT now(),
		updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
	`CREATE INDEX IF NOT EXISTS orders_user_status_created_idx
		ON orders (user_id, status, created_at)`,
	`CREATE TABLE IF NOT EXISTS order_items (
		id         UUID PRIMARY KEY,
		order_id   UUID NOT NULL REFERENCES orders(id) ON DELETE CASCADE,
		product_id UUID NOT NULL REFERENCES products(id) ON DELETE RESTRICT,
		qty        INT NOT NULL CHECK (qty >= 1),
		price      NUMERIC(10,2) NOT NULL,
		UNIQUE (order_id, product_id)
	)`,
	`CREATE TABLE IF NOT EXISTS payments (
		id         UUID PRIMARY KEY,
		order_id   UUID NOT NULL UNIQUE REFERENCES orders(id) ON DELETE CASCADE,
		status     TEXT NOT NULL DEFAULT 'pending',
		created_at TIMESTAMPTZ NOT NULL DEFAULT now()
	)`,
}

func Migrate(ctx context.Context, db *pgxpool.Pool) error {
	for _, stmt := range migrations {
		if _, err := db.Exec(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
