package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ibarbylev/go-shop-orders/internal/config"
	"github.com/ibarbylev/go-shop-orders/internal/orders"
	"github.com/ibarbylev/go-shop-orders/internal/postgres"
)

// Periodic reclamation: expired carts (7 days) and stale pending orders
// (PENDING_MAX_DAYS, default 100) are deleted for good.
func main() {
	_ = godotenv.Load()
	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}

	ledger := &orders.Ledger{Store: &postgres.Store{DB: db}}

	sweep := func() {
		sctx, scancel := context.WithTimeout(ctx, time.Minute)
		defer scancel()
		carts, err := ledger.CleanupExpiredCarts(sctx)
		if err != nil {
			log.Printf("cleanup carts: %v", err)
		}
		pending, err := ledger.CleanupOldPending(sctx, cfg.PendingMaxDays)
		if err != nil {
			log.Printf("cleanup pending: %v", err)
		}
		log.Printf("sweep done: carts=%d pending=%d", carts, pending)
	}

	log.Printf("sweeper started: interval=%s pending_max_days=%d", cfg.SweepInterval, cfg.PendingMaxDays)
	sweep()

	t := time.NewTicker(cfg.SweepInterval)
	defer t.Stop()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	for {
		select {
		case <-t.C:
			sweep()
		case <-sig:
			log.Println("shutting down sweeper...")
			return
		}
	}
}
