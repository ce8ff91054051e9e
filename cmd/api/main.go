package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/ibarbylev/go-shop-orders/internal/config"
	"github.com/ibarbylev/go-shop-orders/internal/httpx"
	kafkax "github.com/ibarbylev/go-shop-orders/internal/kafka"
	"github.com/ibarbylev/go-shop-orders/internal/orders"
	"github.com/ibarbylev/go-shop-orders/internal/postgres"
	"github.com/ibarbylev/go-shop-orders/internal/redisx"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// DB
	db, err := postgres.Connect(ctx, cfg.PostgresDSN)
	if err != nil {
		log.Fatalf("db connect: %v", err)
	}
	defer db.Close()
	if err := postgres.Migrate(ctx, db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	store := &postgres.Store{DB: db}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producers, one per topic
	pubTotal := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicTotalChanged, 1024)
	pubTotal.Start(ctx)
	pubOut := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicCheckedOut, 1024)
	pubOut.Start(ctx)
	pubPaid := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicOrderPaid, 1024)
	pubPaid.Start(ctx)
	pubPayment := kafkax.NewProducer(cfg.KafkaBrokers, orders.TopicPaymentPending, 1024)
	pubPayment.Start(ctx)
	producers := []*kafkax.Producer{pubTotal, pubOut, pubPaid, pubPayment}

	// Domain wiring
	minter := &orders.Minter{
		SlugTaken:   store.SlugTaken,
		NumberTaken: store.OrderNumberTaken,
	}
	engine := &orders.Engine{Store: store, PubPaid: pubPaid, Service: cfg.ServiceName}
	ledger := &orders.Ledger{
		Store:    store,
		Minter:   minter,
		Engine:   engine,
		PubTotal: pubTotal,
		PubOut:   pubOut,
		Service:  cfg.ServiceName,
	}

	router := httpx.NewRouter()
	sh := &httpx.ShopHandler{
		Store:      store,
		Ledger:     ledger,
		Engine:     engine,
		Minter:     minter,
		Redis:      rdb,
		PubPayment: pubPayment,
		Service:    cfg.ServiceName,
	}
	sh.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

	// graceful shutdown
	go func() {
		log.Printf("HTTP listening at %s", cfg.HTTPAddr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Fatalf("listen: %v", err)
		}
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)
	<-sig
	log.Println("shutting down...")

	ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel2()
	_ = srv.Shutdown(ctx2)
	for _, p := range producers {
		p.Close() // stop intake -> flush & close writer
	}
	cancel()
	for _, p := range producers {
		p.WaitClosed()
	}
}
