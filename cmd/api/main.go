package main

import (
	"context"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/elishop/go-checkout/internal/checkout"
	"github.com/elishop/go-checkout/internal/config"
	"github.com/elishop/go-checkout/internal/httpx"
	kafkax "github.com/elishop/go-checkout/internal/kafka"
	"github.com/elishop/go-checkout/internal/memstore"
	"github.com/elishop/go-checkout/internal/postgres"
	"github.com/elishop/go-checkout/internal/redisx"
	"github.com/joho/godotenv"
)

func main() {
	_ = godotenv.Load()

	cfg := config.Load()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Store
	var store checkout.Store
	switch cfg.StoreBackend {
	case "memory":
		ms := memstore.New()
		seedDemo(ms)
		store = ms
		log.Println("using in-memory store (demo data seeded)")
	default:
		db, err := postgres.Connect(ctx, cfg.PostgresDSN)
		if err != nil {
			log.Fatalf("db connect: %v", err)
		}
		defer db.Close()
		if err := postgres.EnsureSchema(ctx, db); err != nil {
			log.Fatalf("db schema: %v", err)
		}
		store = &postgres.Store{DB: db}
	}

	// Redis
	rdb := redisx.New(cfg.RedisAddr)
	defer rdb.Close()

	// Kafka producer for OrderCreated
	prod := kafkax.NewProducer(cfg.KafkaBrokers, checkout.TopicOrderCreated, 1024)
	prod.Start(ctx)

	// Core services & handler
	svc := checkout.NewService(store, kafkax.NewEventEmitter(prod), cfg.ServiceName)
	router := httpx.NewRouter()
	oh := &httpx.OrdersHandler{
		Checkout: svc,
		Queries:  checkout.NewQueryGateway(store),
		Redis:    rdb,
	}
	oh.Register(router)

	srv := &http.Server{Addr: cfg.HTTPAddr, Handler: router}

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
	prod.Close() // stop accepting, flush what is queued
	cancel()
	prod.WaitClosed()
}

// seedDemo fills the memory store with a user and catalog for local runs.
func seedDemo(ms *memstore.Store) {
	ms.AddOwner("demo-user")
	ms.AddProduct(checkout.Product{ID: "p-keyboard", Name: "Keyboard", PriceCents: 4900, Stock: 25})
	ms.AddProduct(checkout.Product{ID: "p-monitor", Name: "Monitor 27\"", PriceCents: 24900, Stock: 10})
	ms.AddProduct(checkout.Product{ID: "p-mouse", Name: "Mouse", PriceCents: 1900, Stock: 40})
}
