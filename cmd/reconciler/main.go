package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	kafkago "github.com/segmentio/kafka-go"

	"github.com/ibarbylev/go-shop-orders/internal/config"
	kafkax "github.com/ibarbylev/go-shop-orders/internal/kafka"
	"github.com/ibarbylev/go-shop-orders/internal/orders"
	"github.com/ibarbylev/go-shop-orders/internal/postgres"
	"github.com/ibarbylev/go-shop-orders/internal/redisx"
)

func mustAtoi(s, def string) int {
	if s == "" {
		s = def
	}
	i, err := strconv.Atoi(s)
	if err != nil {
		return 1
	}
	return i
}

func getenv(k, def string) string {
	if v := os.Getenv(k); v != "" {
		return v
	}
	return def
}

// The reconciler is the re-entry path for settlement: whenever a pending
// payment is observed (payment.pending event), it re-runs the owner's
// auto-drain. SettleOne's no-op guard makes duplicate deliveries harmless;
// redis dedup just keeps the noise down.
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
	store := &postgres.Store{DB: db}

	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	pubPaid := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderPaid, 1024)
	pubPaid.Start(ctx)

	engine := &orders.Engine{
		Store:   store,
		PubPaid: pubPaid,
		Service: cfg.ServiceName + "-reconciler",
	}

	handle := func(ctx context.Context, m kafkago.Message) error {
		var env orders.Envelope
		if err := kafkax.UnmarshalEnvelope(m.Value, &env); err != nil {
			return err
		}
		if env.EventType != orders.EventPaymentPending {
			return nil
		}
		dkey := fmt.Sprintf(redisx.KeyDedup, "reconciler", env.EventID)
		if seen, _ := redisx.MarkSeen(ctx, rdb, dkey, redisx.TTLDedup); seen {
			return nil
		}
		p, err := kafkax.UnwrapPayload[orders.PaymentPendingPayload](env.Payload)
		if err != nil {
			return err
		}
		n, err := engine.DrainPending(ctx, p.UserID)
		if err != nil {
			return err
		}
		if n > 0 {
			log.Printf("drained user=%s settled=%d", p.UserID, n)
		}
		return nil
	}

	group := getenv("RECONCILER_GROUP", "settlement-reconciler")
	workers := mustAtoi(os.Getenv("RECONCILER_WORKERS"), "4")
	cons := kafkax.NewConsumer(cfg.KafkaBrokers, group, orders.TopicPaymentPending, workers)

	go func() {
		log.Printf("reconciler started: group=%s topic=%s workers=%d", group, orders.TopicPaymentPending, workers)
		if err := cons.Start(ctx, handle); err != nil {
			log.Printf("consumer exit: %v", err)
			cancel()
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down reconciler...")
	cancel()
	time.Sleep(500 * time.Millisecond)
	pubPaid.Close()
	pubPaid.WaitClosed()
}
